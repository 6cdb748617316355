package progress

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxClientFrame = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The UI is served from the same process; any origin may observe.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocketServer streams hub events to websocket clients as JSON text
// frames of the form {"event": ..., "data": ..., "time": ...}.
type WebSocketServer struct {
	hub       *Hub
	heartbeat time.Duration
	logger    *slog.Logger

	// initial, when set, produces events sent to each client right after it
	// connects, e.g. the current QR code.
	initial func() []Event
}

// NewWebSocketServer creates a server. heartbeat is the ping interval; a
// client silent for two intervals is dropped.
func NewWebSocketServer(hub *Hub, heartbeat time.Duration, logger *slog.Logger) *WebSocketServer {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &WebSocketServer{hub: hub, heartbeat: heartbeat, logger: logger}
}

// WithInitial sets the events sent to every newly connected client.
func (s *WebSocketServer) WithInitial(fn func() []Event) *WebSocketServer {
	s.initial = fn
	return s
}

// ServeHTTP upgrades the request and pumps events until the client leaves.
func (s *WebSocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Warn("WebSocket upgrade failed", slog.Any("error", err))
		return
	}

	events, unsubscribe := s.hub.Subscribe()
	s.logger.Info("Observer connected",
		slog.String("remote", r.RemoteAddr),
		slog.Int("observers", s.hub.Observers()),
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.readLoop(conn)
	}()

	s.writeLoop(conn, events, done)

	unsubscribe()
	_ = conn.Close()
	<-done
	s.logger.Info("Observer disconnected", slog.String("remote", r.RemoteAddr))
}

// readLoop discards client frames and keeps the read deadline alive on pong.
func (s *WebSocketServer) readLoop(conn *websocket.Conn) {
	deadline := 2 * s.heartbeat
	conn.SetReadLimit(maxClientFrame)
	_ = conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *WebSocketServer) writeLoop(conn *websocket.Conn, events <-chan Event, done <-chan struct{}) {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	if s.initial != nil {
		for _, e := range s.initial() {
			if e.Time.IsZero() {
				e.Time = time.Now()
			}
			if err := s.write(conn, e); err != nil {
				return
			}
		}
	}

	for {
		select {
		case <-done:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := s.write(conn, e); err != nil {
				s.logger.Debug("WebSocket write failed", slog.Any("error", err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (s *WebSocketServer) write(conn *websocket.Conn, e Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(e)
}
