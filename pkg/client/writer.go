package client

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ssargent/framewire/pkg/envelope"
	"github.com/ssargent/framewire/pkg/framer"
	"github.com/ssargent/framewire/pkg/telem"
)

// ErrRejected wraps errors reported by the server.
var ErrRejected = errors.New("server rejected request")

// Writer streams frames to a server writer session. Methods are safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	conn   conn
	codec  *envelope.WriterCodec
	config framer.WriterConfig
	logger *zap.Logger
}

// OpenWriter dials the server at baseURL and opens a writer for cfg.Keys, where
// dataTypes[i] is the data type of cfg.Keys[i]. The server rejects the open when
// dataTypes disagree with its channels.
func OpenWriter(
	ctx context.Context,
	baseURL string,
	cfg framer.WriterConfig,
	dataTypes []telem.DataType,
	opts ...Option,
) (*Writer, error) {
	o := newOptions(opts)
	wc := envelope.NewWriterCodec(o.envelopeOptions()...)
	if err := wc.Update(cfg.Keys, dataTypes); err != nil {
		return nil, err
	}
	cfg.DataTypes = dataTypes
	ws, err := dial(ctx, baseURL, writePath, o)
	if err != nil {
		return nil, err
	}
	w := &Writer{
		conn:   conn{ws: ws, writeTimeout: o.writeTimeout},
		codec:  wc,
		config: cfg,
		logger: o.logger,
	}

	open := envelope.WriterMessage{
		Type:    framer.MessageOpen,
		Payload: framer.WriterRequest{Command: framer.WriterOpen, Config: cfg},
	}
	if err := w.send(ctx, open); err != nil {
		_ = w.conn.close()
		return nil, err
	}
	res, err := w.receive(ctx)
	if err == nil && (res.Payload.Command != framer.WriterOpen || !res.Payload.Ack) {
		err = errors.Newf("unexpected %s response to open", res.Payload.Command)
	}
	if err != nil {
		_ = w.conn.close()
		return nil, errors.Wrap(err, "open writer")
	}
	w.logger.Debug("writer opened", zap.Stringers("keys", cfg.Keys), zap.Int("seq_num", res.Payload.SeqNum))
	return w, nil
}

// Write sends frame. Server side failures surface on the next Commit.
func (w *Writer) Write(ctx context.Context, frame framer.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.send(ctx, envelope.WriterMessage{
		Type:    framer.MessageData,
		Payload: framer.WriterRequest{Command: framer.WriterWrite, Frame: frame},
	})
}

// Commit asks the server to make every prior write durable. It returns the commit
// acknowledgement, along with any write errors the server reported since the last commit.
func (w *Writer) Commit(ctx context.Context) (framer.WriterResponse, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.send(ctx, envelope.WriterMessage{
		Type:    framer.MessageData,
		Payload: framer.WriterRequest{Command: framer.WriterCommit},
	}); err != nil {
		return framer.WriterResponse{}, err
	}

	var errs error
	for {
		res, err := w.receive(ctx)
		if res.Payload.Command == framer.WriterCommit || res.Type == "" {
			return res.Payload, multierr.Append(errs, err)
		}
		errs = multierr.Append(errs, err)
	}
}

// Close ends the session.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.send(context.Background(), envelope.WriterMessage{Type: framer.MessageClose})
	return multierr.Append(err, w.conn.close())
}

func (w *Writer) send(ctx context.Context, msg envelope.WriterMessage) error {
	data, err := w.codec.Encode(ctx, msg)
	if err != nil {
		return err
	}
	return w.conn.send(data)
}

// receive reads one response. A response carrying an error is returned alongside an
// error wrapping ErrRejected.
func (w *Writer) receive(ctx context.Context) (envelope.WriterResponseMessage, error) {
	data, err := w.conn.read(ctx)
	if err != nil {
		return envelope.WriterResponseMessage{}, err
	}
	res, err := w.codec.DecodeResponse(data)
	if err != nil {
		return res, err
	}
	if res.Payload.Error != "" {
		return res, errors.Wrapf(ErrRejected, "%s: %s", res.Payload.Command, res.Payload.Error)
	}
	return res, nil
}
