package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vitalflow/internal/admission"
	"vitalflow/internal/alerts"
	"vitalflow/internal/bus"
	"vitalflow/internal/config"
	"vitalflow/internal/discharge"
	"vitalflow/internal/enrich"
	"vitalflow/internal/handlers"
	"vitalflow/internal/logger"
	"vitalflow/internal/middleware"
	"vitalflow/internal/store"
)

// Server is the ingestion-side coordinator: HTTP API, rule engine, alert
// lifecycle, and the discharge batch trigger.
type Server struct {
	cfg        *config.Config
	store      store.Store
	kafka      *bus.KafkaBus
	httpServer *http.Server
	wg         sync.WaitGroup
}

// New constructs a Server with the given config
func New(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// Run starts background goroutines and blocks until context cancelled
func (s *Server) Run(ctx context.Context) error {
	log := logger.WithComponent("server")
	log.Info().Msg("server starting")

	st, err := store.Open(store.UseSqliteDialector(s.cfg.DBPath))
	if err != nil {
		log.Error().Err(err).Msg("failed to open store")
		return fmt.Errorf("failed to open store: %w", err)
	}
	s.store = st

	kafkaBus, err := bus.NewKafkaBus(bus.KafkaConfig{
		Brokers:      s.cfg.KafkaBrokers,
		MaxRetries:   3,
		RetryBackoff: 100 * time.Millisecond,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize event bus")
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	s.kafka = kafkaBus
	defer s.kafka.Close()

	log.Info().
		Strs("brokers", s.cfg.KafkaBrokers).
		Str("topic", s.cfg.TopicAlerts).
		Msg("event bus initialized")

	manager := alerts.NewManager(s.store, s.kafka, s.cfg.TopicAlerts)
	llm := enrich.NewLLMClient(s.cfg.LLMBaseURL, "", s.cfg.EnrichTimeout)
	evaluator := discharge.NewEvaluator(s.store, llm, s.cfg.Discharge, s.cfg.EnrichTimeout)
	admitter := admission.NewService(s.store)

	s.initHTTPServer(manager, evaluator, admitter)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Info().Str("addr", s.cfg.HTTPAddr).Msg("starting HTTP server")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	return s.shutdown()
}

// initHTTPServer builds the mux with the middleware chain applied
func (s *Server) initHTTPServer(manager *alerts.Manager, evaluator *discharge.Evaluator, admitter *admission.Service) {
	api := http.NewServeMux()
	api.Handle("POST /vitals", handlers.NewIngestHandler(s.store, manager, s.kafka, s.cfg.TopicVitals))
	handlers.NewAPI(s.store, manager, evaluator, admitter).Register(api)

	// Probes and metrics stay outside the auth boundary
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", middleware.Auth(s.cfg.APIToken)(api))

	s.httpServer = &http.Server{
		Addr: s.cfg.HTTPAddr,
		Handler: middleware.Chain(
			mux,
			middleware.Recovery,
			middleware.Logging,
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// shutdown performs graceful shutdown
func (s *Server) shutdown() error {
	log := logger.WithComponent("server")
	log.Info().Msg("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info().Msg("stopping HTTP server")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("closing event bus")
	if err := s.kafka.Close(); err != nil {
		log.Error().Err(err).Msg("event bus close error")
	}

	s.wg.Wait()
	log.Info().Msg("server stopped gracefully")
	return nil
}

// healthHandler handles health check requests
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}
