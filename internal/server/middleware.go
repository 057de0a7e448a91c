package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/jackzampolin/folio/internal/svcctx"
)

// withServices enriches the request context with services. The logger is
// scoped to the request ID so pipeline logs can be correlated.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		services := *s.services
		if id := middleware.GetReqID(r.Context()); id != "" {
			services.Logger = services.Logger.With("request_id", id)
		}
		next.ServeHTTP(w, r.WithContext(svcctx.WithServices(r.Context(), &services)))
	})
}

// logRequests logs one line per request with status and duration.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		level := s.logger.Debug
		if ww.Status() >= http.StatusInternalServerError {
			level = s.logger.Warn
		}
		level("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
			"remote", r.RemoteAddr)
	})
}

// requireInit rejects requests until the managed conversion backend is up.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
