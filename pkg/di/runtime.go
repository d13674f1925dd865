package di

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ssargent/framewire/pkg/api"
	"github.com/ssargent/framewire/pkg/channel"
	"github.com/ssargent/framewire/pkg/config"
	"github.com/ssargent/framewire/pkg/logging"
	"github.com/ssargent/framewire/pkg/relay"
	"github.com/ssargent/framewire/pkg/store"
)

const (
	channelsDir = "channels"
	seriesDir   = "series"
)

// Runtime is the set of components opened from a data directory
type Runtime struct {
	Channels *channel.Service
	Store    *store.Store
	Relay    *relay.Hub
	Recovery *store.RecoveryResult
	logger   *zap.Logger
}

// ChannelsPath returns where the channel database of dataDir lives
func ChannelsPath(dataDir string) string {
	return filepath.Join(dataDir, channelsDir)
}

// OpenChannels opens only the channel database of cfg, for offline administration
func OpenChannels(cfg *config.Config) (*channel.Service, error) {
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return nil, errors.Wrap(err, "failed to create data dir")
	}
	return channel.OpenService(ChannelsPath(cfg.DataDir))
}

// OpenRuntime opens the channel database and series store under cfg.DataDir
func OpenRuntime(cfg *config.Config, logger *zap.Logger) (*Runtime, error) {
	logger = logging.OrNop(logger)
	channels, err := OpenChannels(cfg)
	if err != nil {
		return nil, err
	}

	st, err := store.New(store.Config{
		DataDir:       filepath.Join(cfg.DataDir, seriesDir),
		FsyncInterval: cfg.Store.FsyncInterval,
		BufferSize:    cfg.Store.BufferSize,
		Logger:        logger,
	})
	if err != nil {
		return nil, multierr.Append(err, channels.Close())
	}
	recovery, err := st.Open()
	if err != nil {
		return nil, multierr.Append(errors.Wrap(err, "failed to open store"), channels.Close())
	}
	if recovery.RecordsTruncated > 0 {
		logger.Warn("recovered from corruption", zap.Int64("records_truncated", recovery.RecordsTruncated))
	}

	return &Runtime{
		Channels: channels,
		Store:    st,
		Relay: relay.NewHub(
			relay.WithClientBuffer(cfg.Stream.BufferSize),
			relay.WithLogger(logger),
		),
		Recovery: recovery,
		logger:   logger,
	}, nil
}

// Dependencies returns the runtime as API server dependencies
func (r *Runtime) Dependencies(registry *prometheus.Registry) api.Dependencies {
	return api.Dependencies{
		Channels: r.Channels,
		Store:    r.Store,
		Relay:    r.Relay,
		Registry: registry,
		Logger:   r.logger,
	}
}

// Close closes the store and the channel database
func (r *Runtime) Close() error {
	return multierr.Append(r.Store.Close(), r.Channels.Close())
}
