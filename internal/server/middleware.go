package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/verte-zerg/gradelens/internal/logger"
)

// metricsMiddleware records every request under its route pattern so ids in
// paths do not explode label cardinality.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		s.metrics.RecordHTTPRequest(route, r.Method, status, elapsed)
		s.log.Debug(r.Context(), "http request",
			logger.String("request_id", middleware.GetReqID(r.Context())),
			logger.String("method", r.Method),
			logger.String("route", route),
			logger.Int("status", status),
			logger.Any("elapsed", elapsed),
		)
	})
}
