package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Dependencies are the long lived components a server is built from
type Dependencies struct {
	Channels ChannelService
	Store    SeriesStore
	Relay    Relay
	Registry *prometheus.Registry
	Logger   *zap.Logger
}

// DefaultServerFactory is the default implementation of ServerFactory
type DefaultServerFactory struct{}

// NewServerFactory creates a new server factory
func NewServerFactory() ServerFactory {
	return &DefaultServerFactory{}
}

// CreateServer builds a Server
func (f *DefaultServerFactory) CreateServer(deps Dependencies, config ServerConfig) (ServerRunner, error) {
	return NewServer(deps, config)
}
