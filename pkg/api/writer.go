package api

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/ssargent/framewire/pkg/channel"
	"github.com/ssargent/framewire/pkg/codec"
	"github.com/ssargent/framewire/pkg/envelope"
	"github.com/ssargent/framewire/pkg/framer"
	"github.com/ssargent/framewire/pkg/telem"
)

var (
	errWriterNotOpen = errors.New("writer is not open")
	errNoChannels    = errors.New("writer must open at least one channel")
)

// writerSession tracks what a writer has opened and written since its last commit.
type writerSession struct {
	open   bool
	keys   channel.Keys
	writes int
	end    telem.TimeStamp
}

// handleWrite godoc
//
//	@Summary		Writer session
//	@Description	Upgrade to a websocket carrying framewire writer messages
//	@Tags			frames
//	@Produce		application/x-framewire
//	@Success		101
//	@Security		ApiKeyAuth
//	@Router			/frame/write [get]
func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("writer upgrade failed", zap.Error(err))
		return
	}
	ctx := r.Context()
	ws := s.newSession(ctx, conn, sessionWriter)
	defer ws.close()

	wc := envelope.NewWriterCodec(s.envelopeOptions()...)
	var state writerSession
	for {
		data, err := ws.read()
		if err != nil {
			ws.logReadError(err)
			return
		}
		s.metrics.RecordMessage(directionIngress, data)

		// A rejected open ends the session: the client codec has already registered a
		// state the server may not hold, so later sequence numbers would disagree.
		res, done := s.processWrite(ctx, ws, wc, &state, data)
		if res != nil {
			out, err := wc.EncodeResponse(*res)
			if err != nil {
				ws.logger.Error("encode writer response", zap.Error(err))
				return
			}
			if err := ws.send(out); err != nil {
				ws.logger.Debug("send writer response", zap.Error(err))
				return
			}
			s.metrics.RecordMessage(directionEgress, out)
		}
		if done {
			return
		}
	}
}

// processWrite applies one writer message and returns the response to send, if any.
func (s *Server) processWrite(
	ctx context.Context,
	ws *session,
	wc *envelope.WriterCodec,
	state *writerSession,
	data []byte,
) (*envelope.WriterResponseMessage, bool) {
	msg, err := wc.Decode(ctx, data)
	if err != nil {
		cmd := msg.Payload.Command
		if envelope.FormatOf(data) == envelope.FormatCompact {
			cmd = framer.WriterWrite
		}
		if errors.Is(err, codec.ErrNotInitialized) {
			err = errWriterNotOpen
		}
		ws.logger.Warn("rejected writer message", zap.Stringer("command", cmd), zap.Error(err))
		return writerError(cmd, err), msg.Type == framer.MessageOpen
	}

	switch msg.Type {
	case framer.MessageOpen:
		keys := msg.Payload.Config.Keys.Unique()
		if len(keys) == 0 {
			return writerError(framer.WriterOpen, errNoChannels), true
		}
		if err := s.checkDataTypes(ctx, msg.Payload.Config); err != nil {
			ws.logger.Warn("rejected writer open", zap.Error(err))
			return writerError(framer.WriterOpen, err), true
		}
		*state = writerSession{open: true, keys: keys}
		s.metrics.RecordCodecUpdate()
		ws.logger.Info("writer opened", zap.Stringers("keys", keys), zap.Uint32("seq_num", wc.SeqNum()))
		return &envelope.WriterResponseMessage{
			Type:    framer.MessageOpen,
			Payload: framer.WriterResponse{Command: framer.WriterOpen, Ack: true, SeqNum: int(wc.SeqNum())},
		}, false
	case framer.MessageClose:
		return nil, true
	case framer.MessageData:
	default:
		return writerError(framer.WriterError, errors.Newf("unknown message type %q", msg.Type)), false
	}

	if !state.open {
		return writerError(msg.Payload.Command, errWriterNotOpen), false
	}

	switch msg.Payload.Command {
	case framer.WriterWrite:
		if err := s.persist(ctx, state, msg.Payload.Frame); err != nil {
			ws.logger.Warn("write failed", zap.Error(err))
			return writerError(framer.WriterWrite, err), false
		}
		return nil, false
	case framer.WriterCommit:
		if err := s.store.Sync(); err != nil {
			ws.logger.Error("commit failed", zap.Error(err))
			return writerError(framer.WriterCommit, err), false
		}
		res := &envelope.WriterResponseMessage{
			Type: framer.MessageData,
			Payload: framer.WriterResponse{
				Command: framer.WriterCommit,
				Ack:     true,
				SeqNum:  state.writes,
				End:     state.end,
			},
		}
		state.writes = 0
		return res, false
	default:
		return writerError(msg.Payload.Command, errors.Newf("unsupported writer command %s", msg.Payload.Command)), false
	}
}

// checkDataTypes verifies the data types a writer declared against its channels.
// Writers that declare none take the server's types.
func (s *Server) checkDataTypes(ctx context.Context, cfg framer.WriterConfig) error {
	if len(cfg.DataTypes) == 0 {
		return nil
	}
	if len(cfg.DataTypes) != len(cfg.Keys) {
		return errors.Wrapf(codec.ErrKeyTypeCount, "%d keys, %d data types", len(cfg.Keys), len(cfg.DataTypes))
	}
	actual, err := channel.DataTypes(ctx, s.channels, cfg.Keys)
	if err != nil {
		return err
	}
	for i, dt := range cfg.DataTypes {
		if dt != actual[i] {
			return errors.Wrapf(codec.ErrDataTypeMismatch,
				"channel %s is %s, writer declared %s", cfg.Keys[i], actual[i], dt)
		}
	}
	return nil
}

// persist stores frame and hands it to the relay.
func (s *Server) persist(ctx context.Context, state *writerSession, frame framer.Frame) error {
	if frame.Empty() {
		return nil
	}
	if unknown, _ := lo.Difference(frame.Keys, state.keys); len(unknown) > 0 {
		return errors.Newf("channels %v were not opened by this writer", unknown)
	}
	if _, err := s.store.Write(frame); err != nil {
		return err
	}
	s.metrics.RecordFrame(directionIngress)
	if err := s.relay.Publish(ctx, frame); err != nil {
		s.logger.Warn("relay publish failed", zap.Error(err))
	}
	state.writes++
	for _, series := range frame.Series {
		if series.TimeRange.End > state.end {
			state.end = series.TimeRange.End
		}
	}
	return nil
}

func writerError(cmd framer.WriterCommand, err error) *envelope.WriterResponseMessage {
	return &envelope.WriterResponseMessage{
		Type:    framer.MessageData,
		Payload: framer.WriterResponse{Command: cmd, Ack: false, Error: err.Error()},
		Error:   err.Error(),
	}
}
