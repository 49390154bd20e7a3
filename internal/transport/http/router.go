// Package http exposes the order lifecycle over a JSON API.
package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const requestTimeout = 60 * time.Second

type RouterDeps struct {
	Orders       *OrderHandlers
	Appointments *AppointmentHandlers
	Metrics      http.Handler
	Log          *zap.Logger
}

// NewRouter builds the chi router with shared middleware and the command
// route groups.
func NewRouter(deps RouterDeps) chi.Router {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusNotFound, errorPayload{
			Error:   "route_not_found",
			Message: fmt.Sprintf("no route for %s", req.URL.Path),
			Status:  http.StatusNotFound,
		})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorPayload{
			Error:   "method_not_allowed",
			Message: fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path),
			Status:  http.StatusMethodNotAllowed,
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api/v1", func(api chi.Router) {
		if deps.Orders != nil {
			deps.Orders.Routes(api)
		}
		if deps.Appointments != nil {
			deps.Appointments.Routes(api)
		}
	})

	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
