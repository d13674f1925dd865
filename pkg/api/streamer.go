package api

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/ssargent/framewire/pkg/codec"
	"github.com/ssargent/framewire/pkg/envelope"
	"github.com/ssargent/framewire/pkg/framer"
	"github.com/ssargent/framewire/pkg/relay"
)

// handleStream godoc
//
//	@Summary		Streamer session
//	@Description	Upgrade to a websocket delivering live frames for the requested channels
//	@Tags			frames
//	@Produce		application/x-framewire
//	@Success		101
//	@Security		ApiKeyAuth
//	@Router			/frame/stream [get]
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("streamer upgrade failed", zap.Error(err))
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	ws := s.newSession(ctx, conn, sessionStreamer)
	defer ws.close()

	sub, err := s.relay.Subscribe(ctx, nil, s.config.StreamBuffer)
	if err != nil {
		ws.logger.Warn("relay subscribe failed", zap.Error(err))
		return
	}
	defer s.relay.Unsubscribe(sub)

	sc := envelope.NewStreamerCodec(s.envelopeOptions()...)
	// control is closed once the client closes, the connection fails or a request is
	// rejected. Responses queued before that are still sent.
	control := make(chan envelope.StreamerResponseMessage, 4)
	go func() {
		defer close(control)
		s.readStreamerRequests(ctx, ws, sc, sub, control)
	}()

	for {
		var msg envelope.StreamerResponseMessage
		select {
		case <-ctx.Done():
			return
		case m, ok := <-control:
			if !ok {
				return
			}
			msg = m
		case frame, ok := <-sub.Frames():
			if !ok {
				return
			}
			// Keys may have changed since the relay filtered this frame.
			frame = frame.FilterKeys(sub.Keys())
			if frame.Empty() {
				continue
			}
			msg = envelope.StreamerResponseMessage{
				Type:    framer.MessageData,
				Payload: framer.StreamerResponse{Frame: frame},
			}
		}
		if err := s.sendStreamerResponse(ws, sc, msg); err != nil {
			ws.logger.Debug("send streamer response", zap.Error(err))
			return
		}
	}
}

// readStreamerRequests applies requests until the client closes, the connection fails
// or a request is rejected.
func (s *Server) readStreamerRequests(
	ctx context.Context,
	ws *session,
	sc *envelope.StreamerCodec,
	sub *relay.Subscription,
	control chan<- envelope.StreamerResponseMessage,
) {
	push := func(msg envelope.StreamerResponseMessage) bool {
		select {
		case control <- msg:
			return true
		case <-ctx.Done():
			return false
		}
	}
	for {
		data, err := ws.read()
		if err != nil {
			ws.logReadError(err)
			return
		}
		s.metrics.RecordMessage(directionIngress, data)

		// The client registered a codec state before sending the request. A request the
		// server cannot apply leaves the two sequences apart, so the session ends here.
		req, err := sc.DecodeRequest(ctx, data)
		if err != nil {
			ws.logger.Warn("rejected streamer request", zap.Error(err))
			push(envelope.StreamerResponseMessage{Type: framer.MessageData, Error: err.Error()})
			return
		}
		if req.Type == framer.MessageClose {
			return
		}

		keys := req.Payload.Keys.Unique()
		sub.SetKeys(keys)
		s.metrics.RecordCodecUpdate()
		ws.logger.Info("streamer configured", zap.Stringers("keys", keys), zap.Uint32("seq_num", sc.SeqNum()))
		if !push(envelope.StreamerResponseMessage{Type: framer.MessageOpen}) {
			return
		}

		latest, err := s.store.LatestFrame(keys)
		if err != nil {
			ws.logger.Warn("read latest frame", zap.Error(err))
			continue
		}
		if !latest.Empty() {
			msg := envelope.StreamerResponseMessage{
				Type:    framer.MessageData,
				Payload: framer.StreamerResponse{Frame: latest},
			}
			if !push(msg) {
				return
			}
		}
	}
}

func (s *Server) sendStreamerResponse(ws *session, sc *envelope.StreamerCodec, msg envelope.StreamerResponseMessage) error {
	data, err := sc.EncodeResponse(msg)
	if err != nil {
		// A reconfigure can race a frame filtered under the previous keys.
		if errors.Is(err, codec.ErrChannelNotDeclared) || errors.Is(err, codec.ErrDataTypeMismatch) {
			ws.logger.Debug("dropped frame the codec cannot encode", zap.Error(err))
			return nil
		}
		return err
	}
	if err := ws.send(data); err != nil {
		return err
	}
	s.metrics.RecordMessage(directionEgress, data)
	if msg.Type == framer.MessageData && !msg.Payload.Frame.Empty() {
		s.metrics.RecordFrame(directionEgress)
	}
	return nil
}
