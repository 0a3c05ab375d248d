package inspector

import (
	"compress/flate"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// upgrader allows any origin: an inspector is expected to run on localhost
// or behind a trusted reverse proxy.
var upgrader = websocket.Upgrader{
	CheckOrigin:       func(_ *http.Request) bool { return true },
	EnableCompression: true,
}

// handleWebSocket upgrades the connection and streams PackChangeEvents to
// it until the client disconnects.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := getClientIP(r)
	if !s.rateLimiter.allow(ip) {
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "err", err)
		return
	}

	conn.EnableWriteCompression(true)
	_ = conn.SetCompressionLevel(flate.BestSpeed)
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	writeMu := s.hub.register(conn)

	done := make(chan struct{})
	s.hub.clientWg.Add(2)
	go s.clientReadPump(conn, done)
	go s.clientWritePump(conn, done, writeMu)
}

func (s *Server) clientReadPump(conn *websocket.Conn, done chan struct{}) {
	defer s.hub.clientWg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("recovered panic in client read pump", "addr", conn.RemoteAddr(), "panic", r)
		}
		close(done)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) clientWritePump(conn *websocket.Conn, done chan struct{}, writeMu *sync.Mutex) {
	defer s.hub.clientWg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer s.hub.remove(conn)

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			writeMu.Lock()
			err := conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err == nil {
				err = conn.WriteMessage(websocket.PingMessage, nil)
			}
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
