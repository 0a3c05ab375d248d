package inspector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vcslab/packv4/internal/packmgr"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512

	broadcastChannelSize = 64
)

// hub fans PackChangeEvents out to every connected WebSocket client.
// Adapted from the broadcast/registry pattern a per-session WebSocket hub would use
// machinery, trimmed to one shared client set (there is no per-repo
// session concept here — one inspector watches one directory).
type hub struct {
	logger *slog.Logger

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]*sync.Mutex

	broadcast chan packmgr.PackChangeEvent

	clientWg sync.WaitGroup
}

func newHub(logger *slog.Logger) *hub {
	return &hub{
		logger:    logger,
		clients:   make(map[*websocket.Conn]*sync.Mutex),
		broadcast: make(chan packmgr.PackChangeEvent, broadcastChannelSize),
	}
}

// run drains the broadcast channel until ctx is cancelled.
func (h *hub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-h.broadcast:
			h.sendToAllClients(ev)
		}
	}
}

// broadcastChange is registered with the pack manager via Manager.Subscribe.
// Non-blocking: drops the event if the channel is full rather than stalling
// the watcher goroutine that produced it.
func (h *hub) broadcastChange(ev packmgr.PackChangeEvent) {
	select {
	case h.broadcast <- ev:
	default:
		h.logger.Warn("broadcast channel full, dropping pack change event", "pack", ev.ID)
	}
}

func (h *hub) sendToAllClients(ev packmgr.PackChangeEvent) {
	h.clientsMu.RLock()
	snapshot := make(map[*websocket.Conn]*sync.Mutex, len(h.clients))
	for conn, mu := range h.clients {
		snapshot[conn] = mu
	}
	h.clientsMu.RUnlock()

	var failed []*websocket.Conn
	for conn, mu := range snapshot {
		mu.Lock()
		err := conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err == nil {
			err = conn.WriteJSON(ev)
		}
		mu.Unlock()

		if err != nil {
			h.logger.Error("broadcast failed", "addr", conn.RemoteAddr(), "err", err)
			failed = append(failed, conn)
		}
	}

	if len(failed) > 0 {
		h.clientsMu.Lock()
		for _, conn := range failed {
			delete(h.clients, conn)
			conn.Close()
		}
		h.clientsMu.Unlock()
	}
}

func (h *hub) register(conn *websocket.Conn) *sync.Mutex {
	writeMu := &sync.Mutex{}
	h.clientsMu.Lock()
	h.clients[conn] = writeMu
	count := len(h.clients)
	h.clientsMu.Unlock()
	h.logger.Info("websocket client connected", "addr", conn.RemoteAddr(), "total", count)
	return writeMu
}

func (h *hub) remove(conn *websocket.Conn) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
		h.logger.Info("websocket client disconnected", "total", len(h.clients))
	}
}

// closeAll sends close frames to, then force-closes, every connected client.
func (h *hub) closeAll() {
	h.clientsMu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.clientsMu.RUnlock()

	if len(conns) == 0 {
		return
	}

	closeMsg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	deadline := time.Now().Add(1 * time.Second)
	for _, conn := range conns {
		_ = conn.WriteControl(websocket.CloseMessage, closeMsg, deadline)
	}
	time.Sleep(500 * time.Millisecond)

	h.clientsMu.Lock()
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]*sync.Mutex)
	h.clientsMu.Unlock()

	h.clientWg.Wait()
}
