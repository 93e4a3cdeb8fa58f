package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/shohag/feedbackhooks/internal/config"
	"github.com/shohag/feedbackhooks/internal/delivery"
	"github.com/shohag/feedbackhooks/internal/storage"
)

type Server struct {
	cfg        config.ServerConfig
	store      storage.Storage
	dispatcher delivery.EventDispatcher
	sweeper    delivery.Sweeper
	queue      Enqueuer
	router     *chi.Mux
	log        zerolog.Logger
	http       *http.Server
}

func NewServer(cfg config.ServerConfig, store storage.Storage, dispatcher delivery.EventDispatcher, sweeper delivery.Sweeper, queue Enqueuer, log zerolog.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		store:      store,
		dispatcher: dispatcher,
		sweeper:    sweeper,
		queue:      queue,
		log:        log,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(s.log))

	dispatchHandler := NewDispatchHandler(s.dispatcher, s.sweeper, s.queue)
	whHandler := NewWebhookHandler(s.store)
	dlvHandler := NewDeliveryHandler(s.store)
	statsHandler := NewStatsHandler(s.store)

	r.Get("/health", statsHandler.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIToken))

		// Delivery entry points
		r.Post("/events/dispatch", dispatchHandler.Dispatch)
		r.Post("/events", dispatchHandler.Enqueue)
		r.Post("/deliveries/sweep", dispatchHandler.Sweep)

		// Webhooks
		r.Post("/webhooks", whHandler.Create)
		r.Get("/webhooks", whHandler.List)
		r.Get("/webhooks/{id}", whHandler.Get)
		r.Put("/webhooks/{id}", whHandler.Update)
		r.Delete("/webhooks/{id}", whHandler.Delete)
		r.Patch("/webhooks/{id}/toggle", whHandler.Toggle)
		r.Post("/webhooks/{id}/rotate-secret", whHandler.RotateSecret)
		r.Get("/webhooks/{id}/deliveries", whHandler.ListDeliveries)

		// Deliveries
		r.Get("/deliveries/{id}", dlvHandler.Get)

		// Stats
		r.Get("/stats", statsHandler.Stats)
	})

	return r
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.log.Info().Str("addr", addr).Msg("starting HTTP server")
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(timeout time.Duration) error {
	if s.http == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}
