package web

import (
	"context"
	"log"
	"net/http"
	"time"
)

// Server wraps the HTTP server and handlers.
type Server struct {
	addr     string
	handlers *Handlers
	metrics  http.Handler
}

// NewServer creates a server for addr. metrics may be nil to leave
// /metrics unrouted.
func NewServer(addr string, handlers *Handlers, metrics http.Handler) *Server {
	return &Server{
		addr:     addr,
		handlers: handlers,
		metrics:  metrics,
	}
}

// Mux returns an http.Handler with all routes registered.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /track", s.handlers.HandleTrack)
	mux.HandleFunc("POST /stop", s.handlers.HandleStop)
	mux.HandleFunc("POST /home", s.handlers.HandleHome)
	mux.HandleFunc("POST /jog", s.handlers.HandleJog)
	mux.HandleFunc("GET /config", s.handlers.HandleConfig)
	mux.HandleFunc("GET /status", s.handlers.HandleStatus)
	mux.HandleFunc("GET /sessions", s.handlers.HandleSessions)
	mux.HandleFunc("GET /status/stream", s.handlers.HandleStatusStream)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	return mux
}

// Run starts the server and blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Mux(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("web server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
