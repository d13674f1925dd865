package framer

import (
	"github.com/ssargent/framewire/pkg/channel"
	"github.com/ssargent/framewire/pkg/telem"
)

// MessageType tags a transport message.
type MessageType string

const (
	MessageOpen  MessageType = "open"
	MessageData  MessageType = "data"
	MessageClose MessageType = "close"
)

// Message is the envelope exchanged over a framer transport.
type Message[P any] struct {
	Type    MessageType `json:"type" msgpack:"type"`
	Payload P           `json:"payload" msgpack:"payload"`
	Error   string      `json:"error,omitempty" msgpack:"error,omitempty"`
}

// WriterCommand selects the action a writer request performs.
type WriterCommand uint8

const (
	WriterOpen WriterCommand = iota
	WriterWrite
	WriterCommit
	WriterError
)

func (c WriterCommand) String() string {
	switch c {
	case WriterOpen:
		return "open"
	case WriterWrite:
		return "write"
	case WriterCommit:
		return "commit"
	case WriterError:
		return "error"
	}
	return "unknown"
}

// WriterConfig configures a writer session. DataTypes, when set, declares the type of
// each key and must match the server's channels.
type WriterConfig struct {
	Keys      channel.Keys     `json:"keys" msgpack:"keys"`
	DataTypes []telem.DataType `json:"data_types,omitempty" msgpack:"data_types,omitempty"`
	Start     telem.TimeStamp  `json:"start" msgpack:"start"`
}

// WriterRequest is sent by a client to the server's write endpoint.
type WriterRequest struct {
	Command WriterCommand `json:"command" msgpack:"command"`
	Config  WriterConfig  `json:"config" msgpack:"config"`
	Frame   Frame         `json:"frame" msgpack:"frame"`
}

// WriterResponse acknowledges a writer request.
type WriterResponse struct {
	Command WriterCommand   `json:"command" msgpack:"command"`
	Ack     bool            `json:"ack" msgpack:"ack"`
	SeqNum  int             `json:"seq_num" msgpack:"seq_num"`
	End     telem.TimeStamp `json:"end" msgpack:"end"`
	Error   string          `json:"error,omitempty" msgpack:"error,omitempty"`
}

// StreamerRequest sets the channels a streamer receives.
type StreamerRequest struct {
	Keys channel.Keys `json:"keys" msgpack:"keys"`
}

// StreamerResponse carries a frame to a streamer.
type StreamerResponse struct {
	Frame Frame `json:"frame" msgpack:"frame"`
}
