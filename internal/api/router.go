package api

import (
	"net/http"
	"time"

	"broadphase/internal/collider"
	"broadphase/internal/render"
	"broadphase/internal/sim"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-gl/mathgl/mgl64"
)

// EngineInterface defines the scheduler methods used by the API.
// This interface enables mocking for tests without running the step loop.
type EngineInterface interface {
	// Snapshot returns a copy of the latest published step
	Snapshot() *sim.Snapshot
	// Bodies returns the live bodies in spawn order
	Bodies() []collider.Body
	// Spawn adds a body; it enters the broad phase on the next step
	Spawn(shape collider.Shape, pos, vel mgl64.Vec3) (collider.ID, error)
	// SpawnRandom adds a body with a random shape, position and velocity
	SpawnRandom() (collider.ID, error)
	// Despawn removes a body; it leaves the broad phase on the next step
	Despawn(id collider.ID) error
	// SetVelocity changes a body's velocity
	SetVelocity(id collider.ID, vel mgl64.Vec3) error
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
// Example usage in tests:
//
//	router := api.NewRouter(api.RouterConfig{
//	    Engine: mockEngine,
//	    RateLimitConfig: &api.RateLimitConfig{
//	        RequestsPerSecond: 1000,
//	        Burst:             1000,
//	    },
//	})
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Engine is the broad-phase scheduler (required)
	Engine EngineInterface

	// Renderer draws /api/frame.png. If nil, a 1280x720 renderer is created.
	Renderer *render.Renderer

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is only used if RateLimiter is nil.
	// If both are nil, uses DefaultRateLimitConfig.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins overrides DefaultCORSOrigins.
	CORSOrigins []string

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool
}

type routerHandlers struct {
	engine   EngineInterface
	renderer *render.Renderer
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// NewRouter starts no goroutines besides the rate limiter's cleanup loop
// and opens no listeners, so it is safe to use with httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - Order matters!
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	// Rate limiting (BEFORE CORS to reject early and save CPU)
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = DefaultCORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	renderer := cfg.Renderer
	if renderer == nil {
		renderer = render.NewRenderer(1280, 720)
	}

	h := &routerHandlers{
		engine:   cfg.Engine,
		renderer: renderer,
	}

	r.Route("/api", func(r chi.Router) {
		// Step state
		r.Get("/stats", h.handleGetStats)
		r.Get("/pairs", h.handleGetPairs)
		r.Get("/frame.png", h.handleGetFrame)

		// Population
		r.Get("/bodies", h.handleGetBodies)
		r.Post("/bodies", h.handleSpawnBody)
		r.Delete("/bodies/{id}", h.handleDespawnBody)
		r.Post("/bodies/{id}/velocity", h.handleSetVelocity)
	})

	r.Get("/", h.handleIndex)

	return r
}

// metricsMiddleware records latency and status per chi route pattern, so
// label cardinality stays bounded by the route table.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				endpoint = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RecordRequest(r.Method, endpoint, status, time.Since(start))
	})
}
