package stream

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the viewer API:
//
//	GET /ws        live snapshot, crowd and bookmark events
//	GET /snapshot  latest snapshot as JSON
//	GET /healthz   liveness
//
// It starts no goroutines.
func NewRouter(h *Hub) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/ws", h.ServeWS)
	r.Get("/snapshot", func(w http.ResponseWriter, _ *http.Request) {
		data := h.Latest()
		if data == nil {
			http.Error(w, "no snapshot yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return r
}

// Server runs the hub and serves its router on addr.
type Server struct {
	Hub *Hub

	logger *slog.Logger
	srv    *http.Server
	ln     net.Listener
}

// Listen binds addr and prepares a server; call Serve to start it.
func Listen(addr string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	hub := NewHub(logger)
	return &Server{
		Hub:    hub,
		logger: logger,
		ln:     ln,
		srv: &http.Server{
			Handler:           NewRouter(hub),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Serve blocks until ctx is done, then shuts the server down.
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		s.Hub.Run(ctx)
	}()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("stream listening", "addr", s.Addr())
		errCh <- s.srv.Serve(s.ln)
	}()

	var err error
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = s.srv.Shutdown(shutdownCtx)
		cancel()
		<-errCh
	case err = <-errCh:
		cancel()
	}
	<-hubDone

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
