package realtime

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 32
)

// Session is one live websocket connection of one user. A user may hold many
// sessions at once; each carries its own outbound queue.
type Session struct {
	ID       string
	UserID   string
	Username string

	conn *websocket.Conn
	send chan Envelope

	// room ids this session has joined; guarded by the hub mutex.
	rooms map[string]struct{}
}

// NewSession wraps an upgraded connection. The connection may be nil, in which
// case outbound envelopes accumulate on the send queue and no pumps run.
func NewSession(id, userID, username string, conn *websocket.Conn) *Session {
	return &Session{
		ID:       id,
		UserID:   userID,
		Username: username,
		conn:     conn,
		send:     make(chan Envelope, sendBuffer),
		rooms:    make(map[string]struct{}),
	}
}

// Outbound exposes the send queue for draining without a live connection.
func (s *Session) Outbound() <-chan Envelope {
	return s.send
}

// Serve runs the read and write pumps until the connection closes, then
// unregisters the session from the hub. Blocks until the peer goes away.
func (s *Session) Serve(ctx context.Context, hub *Hub) {
	if s.conn == nil {
		return
	}
	done := make(chan struct{})
	go s.writePump(done)
	s.readPump(ctx, hub)
	close(done)
	hub.Unregister(s, "transport close")
}

func (s *Session) readPump(ctx context.Context, hub *Hub) {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				hub.logger.Debug("websocket read failed",
					zap.String("session_id", s.ID), zap.Error(err))
			}
			return
		}
		hub.HandleMessage(ctx, s, raw)
	}
}

func (s *Session) writePump(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case envelope, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteJSON(envelope); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
