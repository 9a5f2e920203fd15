package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"parking-lot/internal/logging"
	"parking-lot/internal/parking"
)

type Options struct {
	Port        int
	ServiceName string
	JWTSecret   string
}

type Server struct {
	httpServer *http.Server
	handler    *Handler
}

func NewServer(opts Options, manager *parking.Manager) *Server {
	handler := NewHandler(manager, opts.ServiceName)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		parking.NewCollector(manager.Core),
	)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      newRouter(handler, registry, opts.JWTSecret),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		handler:    handler,
	}
}

func newRouter(handler *Handler, registry *prometheus.Registry, jwtSecret string) http.Handler {
	r := chi.NewRouter()

	r.Use(RecoveryMiddleware)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(TracingMiddleware)
	r.Use(CORSMiddleware)

	r.Get("/health", handler.HealthCheck)
	r.Get("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}).ServeHTTP)

	r.Route("/api/parking-lot", func(r chi.Router) {
		r.Post("/enter", handler.EnterVehicle)
		r.Post("/leave", handler.LeaveVehicle)
		r.Get("/status", handler.GetStatus)
		r.Get("/find/{vehicle}", handler.FindVehicle)
		r.Get("/exit/{vehicle}", handler.OptimalExit)
		r.Get("/moves", handler.MoveHistory)
		r.Get("/history", handler.History)

		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin(jwtSecret))
			r.Post("/", handler.CreateParkingLot)
			r.Post("/rebalance", handler.Rebalance)
			r.Put("/billing", handler.SetBilling)
		})
	})

	return r
}

// Handler exposes the routed handler, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	logging.Info(context.Background(), "starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info(ctx, "shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
