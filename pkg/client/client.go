// Package client opens writer and streamer sessions against a framewire server.
package client

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ssargent/framewire/pkg/codec"
	"github.com/ssargent/framewire/pkg/envelope"
	"github.com/ssargent/framewire/pkg/logging"
)

const (
	writePath  = "/api/v1/frame/write"
	streamPath = "/api/v1/frame/stream"
)

// Option configures a client session.
type Option func(*options)

type options struct {
	apiKey       string
	fallback     envelope.Fallback
	dialer       *websocket.Dialer
	logger       *zap.Logger
	retention    int
	writeTimeout time.Duration
}

// WithAPIKey sends key in the X-API-Key header.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithFallback selects the fallback codec. It must match the server's.
func WithFallback(f envelope.Fallback) Option {
	return func(o *options) { o.fallback = f }
}

// WithDialer replaces websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithLogger sets the session logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRetention bounds the number of codec states the session keeps.
func WithRetention(n int) Option {
	return func(o *options) { o.retention = n }
}

func newOptions(opts []Option) options {
	o := options{
		fallback:     envelope.JSON{},
		dialer:       websocket.DefaultDialer,
		writeTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.OrNop(o.logger)
	return o
}

func (o options) envelopeOptions() []envelope.Option {
	return []envelope.Option{
		envelope.WithFallback(o.fallback),
		envelope.WithCodecOptions(codec.WithRetention(o.retention)),
		envelope.WithLogger(o.logger),
	}
}

// endpointURL turns a server base URL into the websocket URL of path.
func endpointURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", errors.Wrapf(err, "invalid server url %q", base)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", errors.Newf("unsupported url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String(), nil
}

func dial(ctx context.Context, base, path string, o options) (*websocket.Conn, error) {
	target, err := endpointURL(base, path)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if o.apiKey != "" {
		header.Set("X-API-Key", o.apiKey)
	}
	dialer := *o.dialer
	dialer.Subprotocols = []string{envelope.ContentType}
	conn, res, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		if res != nil {
			return nil, errors.Wrapf(err, "dial %s: %s", target, res.Status)
		}
		return nil, errors.Wrapf(err, "dial %s", target)
	}
	return conn, nil
}

// conn wraps a websocket connection with deadline handling shared by both sessions.
type conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
}

func (c *conn) send(data []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

// read blocks for the next message. Cancelling ctx interrupts the read and leaves the
// connection unusable.
func (c *conn) read(ctx context.Context) ([]byte, error) {
	deadline, _ := ctx.Deadline()
	if err := c.ws.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.SetReadDeadline(time.Now())
	})
	defer stop()
	_, data, err := c.ws.ReadMessage()
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return data, err
}

func (c *conn) close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.ws.Close()
}
