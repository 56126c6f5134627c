// pkg/api/router.go
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter registers every route. auth scopes /api/v1 requests to an owner
// identity; it is identity.(*Verifier).Middleware in production.
func NewRouter(a *API, auth func(http.Handler) http.Handler, logger *zap.SugaredLogger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth)

		r.Get("/targets", a.ListTargets)
		r.Post("/targets/unassign", a.UnassignTargets)

		r.Route("/rooms", func(r chi.Router) {
			r.Get("/", a.ListRooms)
			r.Post("/", a.CreateRoom)
			r.Patch("/{roomId}", a.UpdateRoom)
			r.Delete("/{roomId}", a.DeleteRoom)
			r.Post("/{roomId}/targets", a.AssignTargets)
		})

		r.Post("/cache/invalidate", a.InvalidateCache)
	})

	return r
}

// RequestLogger logs one line per request through zap.
func RequestLogger(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Debugw("Handled request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"requestId", middleware.GetReqID(r.Context()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
