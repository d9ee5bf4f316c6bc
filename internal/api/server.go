package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"broadphase/internal/render"

	"github.com/go-chi/chi/v5"
)

// ServerOptions configures NewServer.
type ServerOptions struct {
	FrameWidth        int
	FrameHeight       int
	BroadcastInterval time.Duration // Live stream rate, default 100ms
	CORSOrigins       []string
}

// Server is the HTTP API server with WebSocket support.
// It combines the HTTP router with WebSocket hub for real-time updates.
type Server struct {
	engine      EngineInterface
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter
	interval    time.Duration
	httpServer  *http.Server
}

// NewServer creates a new API server.
//
// Background workers do NOT start until Start() is called, so the server
// can be constructed in tests and driven through Router().
func NewServer(engine EngineInterface, opts ServerOptions) *Server {
	if opts.FrameWidth <= 0 || opts.FrameHeight <= 0 {
		opts.FrameWidth, opts.FrameHeight = 1280, 720
	}
	if opts.BroadcastInterval <= 0 {
		opts.BroadcastInterval = 100 * time.Millisecond
	}
	origins := opts.CORSOrigins
	if origins == nil {
		origins = DefaultCORSOrigins
	}

	s := &Server{
		engine:      engine,
		wsHub:       NewWebSocketHub(origins),
		rateLimiter: NewIPRateLimiter(DefaultRateLimitConfig),
		interval:    opts.BroadcastInterval,
	}

	s.router = NewRouter(RouterConfig{
		Engine:      engine,
		Renderer:    render.NewRenderer(opts.FrameWidth, opts.FrameHeight),
		RateLimiter: s.rateLimiter,
		CORSOrigins: origins,
	})

	// The live stream needs the hub instance, so it is not part of NewRouter
	s.router.Get("/ws", s.wsHub.HandleWebSocket)

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// Start runs the hub and broadcast loop and serves addr until Stop.
// It returns nil after a clean shutdown.
func (s *Server) Start(addr string) error {
	go s.wsHub.Run()
	s.wsHub.StartBroadcastLoop(s.engine, s.interval)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	log.Printf("🌐 API server listening on %s", ln.Addr())
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the live stream hub.
func (s *Server) Hub() *WebSocketHub {
	return s.wsHub
}

// Stop shuts the listener down gracefully and stops background workers.
func (s *Server) Stop(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.wsHub.Stop()
	s.rateLimiter.Stop()
	return err
}
