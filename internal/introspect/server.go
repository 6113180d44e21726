package introspect

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/rclgo/internal/executor"
	"github.com/roach88/rclgo/internal/rcl"
)

// Server is the introspection HTTP handler for one context and executor.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	rctx      *rcl.Context
	exec      *executor.Executor
	startTime time.Time
}

// New creates a Server with all routes registered. exec may be nil, in
// which case /executor reports the executor as unavailable.
func New(rctx *rcl.Context, exec *executor.Executor, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "introspect"),
		rctx:      rctx,
		exec:      exec,
		startTime: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Route("/graph", func(r chi.Router) {
		r.Get("/nodes", s.handleNodes)
		r.Get("/topics", s.handleTopics)
		r.Get("/topics/*", s.handleTopic)
		r.Get("/services", s.handleServices)
	})
	r.Get("/executor", s.handleExecutor)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "no route for "+r.URL.Path)
	})
}

// loggingMiddleware logs requests at DEBUG level (method, path, status, duration).
func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start).String(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
