// Package api provides the read-only search surface and the small set of
// admin-gated control endpoints (manual sync/queue triggers) for engagic.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/engagic/engagic/internal/config"
	"github.com/engagic/engagic/internal/ratelimit"
	"github.com/engagic/engagic/internal/scheduler"
	"github.com/engagic/engagic/internal/store"
)

// queueDrainer is the subset of the queue worker the API needs to trigger a
// manual drain from the /queue/trigger control endpoint.
type queueDrainer interface {
	DrainAll(ctx context.Context)
}

// Server is the HTTP API server: the read-only search surface plus the
// admin-gated sync/queue triggers.
type Server struct {
	cfg            *config.Config
	store          *store.Store
	rateLimiter    *ratelimit.Limiter
	scheduler      *scheduler.Scheduler
	worker         queueDrainer
	logger         *slog.Logger
	startTime      time.Time
	httpServer     *http.Server
	authMiddleware *AuthMiddleware
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, s *store.Store, rl *ratelimit.Limiter, sched *scheduler.Scheduler, worker queueDrainer, logger *slog.Logger) (*Server, error) {
	authMiddleware, err := NewAuthMiddleware(&cfg.API.Security, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize auth middleware: %w", err)
	}

	return &Server{
		cfg:            cfg,
		store:          s,
		rateLimiter:    rl,
		scheduler:      sched,
		worker:         worker,
		logger:         logger.With("component", "api"),
		startTime:      time.Now(),
		authMiddleware: authMiddleware,
	}, nil
}

// Close closes the server and cleans up resources.
func (s *Server) Close() error {
	if s.authMiddleware != nil {
		return s.authMiddleware.Close()
	}
	return nil
}

// Start begins listening on the configured bind address. Blocks until the
// context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	// Read-only endpoints, no auth required.
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/search", s.withRateLimit(s.handleSearch))
	mux.HandleFunc("/topics/", s.withRateLimit(s.handleTopicSearch))

	// Control endpoints (write operations) require auth.
	mux.HandleFunc("/sync/trigger", s.authMiddleware.RequireAuth(s.handleSyncTrigger))
	mux.HandleFunc("/queue/trigger", s.authMiddleware.RequireAuth(s.handleQueueTrigger))

	s.httpServer = &http.Server{
		Addr:        s.cfg.API.Bind,
		Handler:     withCORS(s.cfg.API.AllowedOrigins, mux),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutCtx)
	}()

	s.logger.Info("api server starting", "bind", s.cfg.API.Bind)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// withCORS applies the configured allowed-origins list to every response.
// An empty list disables CORS headers entirely (same-origin only).
func withCORS(allowedOrigins []string, next http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		return next
	}
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			if _, ok := allowed[origin]; ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit enforces the persistent per-client request budget ahead of
// the search handlers. Clients are keyed by remote address; a client with
// no limiter configured (rl == nil, e.g. in tests) passes through.
func (s *Server) withRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.rateLimiter == nil {
			next(w, r)
			return
		}
		clientID, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			clientID = r.RemoteAddr
		}
		allowed, remaining, err := s.rateLimiter.Allow(clientID)
		if err != nil {
			s.logger.Error("rate limiter check failed", "error", err)
			next(w, r)
			return
		}
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		if !allowed {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, please slow down")
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"status": "ok", "uptime_s": time.Since(s.startTime).Seconds()})
}

// GET /status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetQueueStats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load queue stats")
		return
	}

	resp := map[string]any{
		"uptime_s":   time.Since(s.startTime).Seconds(),
		"queue":      stats.CountByStatus,
		"avg_proc_s": stats.AvgProcessingSecs,
	}
	if s.scheduler != nil {
		schedStatus := s.scheduler.Status()
		resp["scheduler"] = map[string]any{
			"running":       schedStatus.Running,
			"failed_cities": schedStatus.FailedCities,
		}
	}
	writeJSON(w, resp)
}

// POST /sync/trigger runs a sync sweep in the background and returns
// immediately; the caller polls /status for progress.
func (s *Server) handleSyncTrigger(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not available")
		return
	}
	go s.scheduler.RunSync(context.Background())
	writeJSON(w, map[string]any{"triggered": true})
}

// POST /queue/trigger runs a processing sweep (enqueue stragglers + drain)
// in the background.
func (s *Server) handleQueueTrigger(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not available")
		return
	}
	go s.scheduler.RunProcessingSweep(context.Background())
	writeJSON(w, map[string]any{"triggered": true})
}
