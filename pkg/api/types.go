package api

import (
	"time"

	"github.com/ssargent/framewire/pkg/channel"
	"github.com/ssargent/framewire/pkg/telem"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// CreateChannelRequest is the body of POST /channels. A zero key is assigned by the server.
type CreateChannelRequest struct {
	Key      channel.Key    `json:"key,omitempty"`
	Name     string         `json:"name"`
	DataType telem.DataType `json:"data_type"`
}

// SeriesResponse is the JSON form of the latest series written to a channel.
type SeriesResponse struct {
	Key       channel.Key     `json:"key"`
	DataType  telem.DataType  `json:"data_type"`
	TimeRange telem.TimeRange `json:"time_range"`
	Alignment telem.Alignment `json:"alignment"`
	Samples   int             `json:"samples"`
	Data      []byte          `json:"data"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Port   int
	Bind   string
	APIKey string // Empty disables authentication
	// Fallback names the envelope fallback codec, json or msgpack.
	Fallback       string
	CodecRetention int
	// StreamBuffer is the number of frames buffered per streamer.
	StreamBuffer int
	WriteTimeout time.Duration
	// StatsInterval controls how often store gauges are refreshed. 0 uses 15s.
	StatsInterval time.Duration
}

func (c ServerConfig) withDefaults() ServerConfig {
	if c.Fallback == "" {
		c.Fallback = "json"
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.StatsInterval <= 0 {
		c.StatsInterval = 15 * time.Second
	}
	return c
}
