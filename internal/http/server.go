package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"cantiere/internal/auth"
	"cantiere/internal/cache"
	"cantiere/internal/docstore"
	applog "cantiere/internal/log"
	"cantiere/internal/middleware/ratelimit"
	"cantiere/internal/middleware/security"
	"cantiere/internal/middleware/trace"
	"cantiere/internal/services"
)

// Server is the JSON API server. All business routes sit behind bearer
// token auth; only the health probes are open.
type Server struct {
	http.Server

	verifier  *auth.Verifier
	lifecycle *services.LifecycleManager
	ventures  *services.VentureService
	engine    *services.AggregationEngine

	limiter  *ratelimit.Limiter
	detector *security.Detector
	docs     docstore.Store

	dashCache *cache.LRUCache[services.Dashboard]

	shutdownOnce sync.Once
}

// Options tunes the server beyond its collaborators. Docs is the
// attachment store; nil disables inline uploads.
type Options struct {
	DashboardCacheTTL time.Duration
	RateLimit         ratelimit.Config
	Docs              docstore.Store
	Logger            *applog.Logger
}

func DefaultOptions() Options {
	return Options{
		DashboardCacheTTL: 30 * time.Second,
		RateLimit:         ratelimit.DefaultConfig(),
	}
}

// NewServer configures routes and middleware, returning a ready-to-run
// server.
func NewServer(addr string, verifier *auth.Verifier, lifecycle *services.LifecycleManager, ventures *services.VentureService, engine *services.AggregationEngine, opts Options) *Server {
	if opts.DashboardCacheTTL <= 0 {
		opts.DashboardCacheTTL = DefaultOptions().DashboardCacheTTL
	}
	if opts.RateLimit.RequestsPerMinute <= 0 {
		opts.RateLimit = ratelimit.DefaultConfig()
	}
	if opts.Logger == nil {
		cfg := applog.DefaultConfig()
		cfg.Component = applog.ComponentHTTP
		opts.Logger = applog.New(cfg)
	}

	s := &Server{
		verifier:  verifier,
		lifecycle: lifecycle,
		ventures:  ventures,
		engine:    engine,
		limiter:   ratelimit.NewLimiter(opts.RateLimit),
		detector:  security.NewDetector(),
		docs:      opts.Docs,
		dashCache: cache.NewLRUCache[services.Dashboard](100, opts.DashboardCacheTTL),
	}
	s.dashCache.StartCleanup(10 * time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	api := http.NewServeMux()
	api.HandleFunc("POST /expenses", s.handleCreateExpense)
	api.HandleFunc("GET /expenses", s.handleListExpenses)
	api.HandleFunc("GET /expenses/{id}", s.handleGetExpense)
	api.HandleFunc("PUT /expenses/{id}", s.handleEditExpense)
	api.HandleFunc("DELETE /expenses/{id}", s.handleDeleteExpense)
	api.HandleFunc("PUT /expenses/{id}/review", s.handleReviewExpense)
	api.HandleFunc("GET /dashboard", s.handleDashboard)
	api.HandleFunc("POST /ventures", s.handleCreateVenture)
	api.HandleFunc("GET /ventures", s.handleListVentures)
	api.HandleFunc("GET /ventures/{id}", s.handleGetVenture)
	api.HandleFunc("POST /ventures/{id}/ledger", s.handleProvisionLedger)
	mux.Handle("/", s.withAuth(api))

	handler := applog.Middleware(opts.Logger)(
		trace.NewMiddleware(s.detector.ExtractClientIP).Middleware(
			security.Headers(security.DefaultHeadersConfig())(
				s.limiter.Middleware(s.detector.ExtractClientIP, rateLimited)(
					s.withSuspiciousFilter(mux)))))

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// withAuth verifies the bearer token and attaches the caller identity to
// the request context.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := s.verifier.IdentityFromRequest(r)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

func (s *Server) withSuspiciousFilter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			slog.WarnContext(r.Context(), "Suspicious request blocked",
				"method", r.Method, "path", r.URL.Path,
				"client_ip", s.detector.ExtractClientIP(r))
			BadRequest(w, "malformed request")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func rateLimited(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", "60")
	NewResponse().Status(http.StatusTooManyRequests).
		JSON(errorPayload{Error: "rate limit exceeded"}).Write(w)
}

// Shutdown stops the HTTP server and the background cleanup goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		s.dashCache.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
