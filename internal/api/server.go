// Package api exposes the HTTP interface for the scraper service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/EnsoG/empleo-talento/internal/config"
	"github.com/EnsoG/empleo-talento/internal/metrics"
	"github.com/EnsoG/empleo-talento/internal/scraper"
	"github.com/EnsoG/empleo-talento/internal/store"
)

// Server wires HTTP handlers to the scraper, runner and repository.
type Server struct {
	router  chi.Router
	scraper *scraper.Scraper
	runner  *scraper.Runner
	repo    store.JobRepository
	cfg     config.Config
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	sc *scraper.Scraper,
	runner *scraper.Runner,
	repo store.JobRepository,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		scraper: sc,
		runner:  runner,
		repo:    repo,
		cfg:     cfg,
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(10 * time.Minute))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/scrapers", func(r chi.Router) {
			r.Get("/status", s.scrapersStatus)
			r.Route("/codelco", func(r chi.Router) {
				r.Get("/test", s.testScraper)
				r.Post("/execute", s.executeScrape)
				r.Post("/run", s.runScrapeDetached)
				r.Get("/jobs", s.listJobs)
				r.Delete("/jobs", s.deactivateJobs)
			})
		})
		r.Route("/admin", func(r chi.Router) {
			if cfg.Auth.Enabled {
				r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
			}
			r.Post("/codelco/scrape", s.adminStartScrape)
			r.Get("/codelco/scrape/progress", s.adminScrapeProgress)
			r.Post("/codelco/scrape/progress/reset", s.adminResetProgress)
			r.Get("/codelco/status", s.adminStatus)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The repository is the only hard downstream dependency.
	if _, err := s.repo.CountActive(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("request_id", requestIDFrom(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("panic", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTPRequest(r.Method, route, ww.status, time.Since(start))
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

// requestIDFrom reads the id stamped by requestIDMiddleware. Empty when the
// middleware did not run, as in direct handler tests.
func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
