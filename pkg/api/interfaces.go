package api

import (
	"context"

	"github.com/ssargent/framewire/pkg/channel"
	"github.com/ssargent/framewire/pkg/framer"
	"github.com/ssargent/framewire/pkg/relay"
	"github.com/ssargent/framewire/pkg/store"
	"github.com/ssargent/framewire/pkg/telem"
)

// ChannelService defines the channel operations the server exposes
type ChannelService interface {
	channel.Retriever
	Create(ctx context.Context, ch *channel.Channel) error
	Retrieve(ctx context.Context, key channel.Key) (channel.Channel, error)
	List(ctx context.Context) ([]channel.Channel, error)
	Delete(ctx context.Context, key channel.Key) error
}

// SeriesStore persists frames received from writers
type SeriesStore interface {
	Write(frame framer.Frame) (int64, error)
	Latest(key channel.Key) (telem.Series, error)
	LatestFrame(keys channel.Keys) (framer.Frame, error)
	Stats() store.Stats
	Sync() error
}

// Relay fans written frames out to streamers
type Relay interface {
	Subscribe(ctx context.Context, keys channel.Keys, size int) (*relay.Subscription, error)
	Unsubscribe(sub *relay.Subscription)
	Publish(ctx context.Context, frame framer.Frame) error
}

// ServerRunner runs a server until its context is cancelled
type ServerRunner interface {
	Run(ctx context.Context) error
}

// ServerFactory creates server instances
type ServerFactory interface {
	// CreateServer builds a server from its dependencies
	CreateServer(deps Dependencies, config ServerConfig) (ServerRunner, error)
}
