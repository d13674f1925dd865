package api

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
)

// session is one upgraded websocket connection. Only the handler goroutine sends.
type session struct {
	id           ksuid.KSUID
	conn         *websocket.Conn
	logger       *zap.Logger
	writeTimeout time.Duration
	stopWatch    func() bool
	done         func()
}

func (s *Server) newSession(ctx context.Context, conn *websocket.Conn, kind string) *session {
	id := ksuid.New()
	ws := &session{
		id:           id,
		conn:         conn,
		logger:       s.logger.With(zap.String("session", id.String()), zap.String("kind", kind)),
		writeTimeout: s.config.WriteTimeout,
		done:         s.metrics.SessionOpened(kind),
	}
	// Hijacked connections outlive http.Server.Shutdown, so close them with the context.
	ws.stopWatch = context.AfterFunc(ctx, func() {
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = conn.Close()
	})
	ws.logger.Info("session opened")
	return ws
}

func (ws *session) send(data []byte) error {
	if err := ws.conn.SetWriteDeadline(time.Now().Add(ws.writeTimeout)); err != nil {
		return err
	}
	return ws.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (ws *session) read() ([]byte, error) {
	_, data, err := ws.conn.ReadMessage()
	return data, err
}

func (ws *session) logReadError(err error) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && (closeErr.Code == websocket.CloseNormalClosure ||
		closeErr.Code == websocket.CloseGoingAway) {
		return
	}
	ws.logger.Debug("session read ended", zap.Error(err))
}

func (ws *session) close() {
	ws.stopWatch()
	_ = ws.conn.Close()
	ws.done()
	ws.logger.Info("session closed")
}
