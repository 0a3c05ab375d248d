// Package inspector exposes a pack-v4 directory over HTTP: a small REST API
// for listing packs and decoding individual objects, plus a WebSocket feed
// of pack-change events. Adapted from a local-mode HTTP server,
// stripped of its SaaS multi-repo-session machinery — an inspector watches
// exactly one directory, so there is only ever one "session".
package inspector

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	webassets "github.com/vcslab/packv4"
	"github.com/vcslab/packv4/internal/packmgr"
)

// Server serves the inspector HTTP and WebSocket API over a single
// *packmgr.Manager.
type Server struct {
	addr        string
	mgr         *packmgr.Manager
	rateLimiter *rateLimiter
	httpServer  *http.Server
	logger      *slog.Logger
	hub         *hub

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Server over an already-running pack manager.
func New(mgr *packmgr.Manager, addr string) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	logger := slog.Default()

	s := &Server{
		addr:        addr,
		mgr:         mgr,
		rateLimiter: newRateLimiter(100, 200, time.Second),
		logger:      logger,
		hub:         newHub(logger),
		ctx:         ctx,
		cancel:      cancel,
	}

	mgr.Subscribe(s.hub.broadcastChange)
	return s
}

// Start begins serving and blocks until the server exits or hits a fatal
// error. A nil return means graceful shutdown via Shutdown.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	const apiWriteDeadline = 30 * time.Second

	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/packs", writeDeadline(apiWriteDeadline, s.rateLimiter.middleware(s.handlePacks)))
	mux.HandleFunc("/api/object", writeDeadline(apiWriteDeadline, s.rateLimiter.middleware(s.handleObject)))
	mux.HandleFunc("/ws", s.handleWebSocket)

	if webFS, err := webassets.GetWebFS(); err == nil {
		mux.Handle("/", http.FileServer(http.FS(webFS)))
	} else {
		s.logger.Warn("web assets unavailable, serving API only", "err", err)
	}

	handler := corsMiddleware(requestLogger(s.logger, mux))

	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // WebSocket connections are long-lived
		IdleTimeout:  120 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.run(s.ctx)
	}()

	s.logger.Info("inspector server starting", "addr", "http://"+s.addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP listener and the WebSocket hub.
func (s *Server) Shutdown() {
	s.logger.Info("inspector server shutting down")

	if s.httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP server shutdown error", "err", err)
		}
	}

	s.cancel()
	s.rateLimiter.Close()
	s.wg.Wait()
	s.hub.closeAll()
}
