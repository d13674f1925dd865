// Package di provides dependency injection container
package di

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/ssargent/framewire/pkg/api" //nolint:depguard
	"github.com/ssargent/framewire/pkg/config"
	"github.com/ssargent/framewire/pkg/logging"
)

// LoggerFactory builds the process logger from the configured level.
type LoggerFactory func(level string, verbose bool) (*zap.Logger, error)

// Container holds all the dependencies for the application
type Container struct {
	serverFactory api.ServerFactory
	loggerFactory LoggerFactory
}

// NewContainer creates a new dependency injection container
func NewContainer() *Container {
	return &Container{
		serverFactory: api.NewServerFactory(),
		loggerFactory: defaultLogger,
	}
}

func defaultLogger(level string, verbose bool) (*zap.Logger, error) {
	if verbose {
		return logging.NewDevelopment()
	}
	return logging.New(level)
}

// GetServerFactory returns the server factory
func (c *Container) GetServerFactory() api.ServerFactory {
	return c.serverFactory
}

// SetServerFactory allows overriding the server factory (for testing)
func (c *Container) SetServerFactory(factory api.ServerFactory) {
	c.serverFactory = factory
}

// SetLoggerFactory allows overriding the logger factory (for testing)
func (c *Container) SetLoggerFactory(factory LoggerFactory) {
	c.loggerFactory = factory
}

// Logger builds the logger for cfg
func (c *Container) Logger(cfg *config.Config, verbose bool) (*zap.Logger, error) {
	return c.loggerFactory(cfg.Logging.Level, verbose)
}

// Serve opens the runtime for cfg and runs the API server until ctx is cancelled
func (c *Container) Serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) (err error) {
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	logger = logging.OrNop(logger)

	rt, err := OpenRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			logger.Error("close runtime", zap.Error(closeErr))
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go rt.Relay.Run(ctx)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	server, err := c.serverFactory.CreateServer(rt.Dependencies(registry), ServerConfig(cfg))
	if err != nil {
		return errors.Wrap(err, "create server")
	}
	return server.Run(ctx)
}

// ServerConfig maps the file configuration onto the API server's
func ServerConfig(cfg *config.Config) api.ServerConfig {
	return api.ServerConfig{
		Port:           cfg.Port,
		Bind:           cfg.Bind,
		APIKey:         cfg.Security.APIKey,
		Fallback:       cfg.Codec.Fallback,
		CodecRetention: cfg.Codec.Retention,
		StreamBuffer:   cfg.Stream.BufferSize,
		WriteTimeout:   cfg.Stream.WriteTimeout,
	}
}
