package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vitalflow/internal/bus"
	"vitalflow/internal/config"
	"vitalflow/internal/copilot"
	"vitalflow/internal/enrich"
	"vitalflow/internal/logger"
	"vitalflow/internal/store"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(store.UseSqliteDialector(cfg.DBPath))
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}

	kafkaBus, err := bus.NewKafkaBus(bus.KafkaConfig{Brokers: cfg.KafkaBrokers})
	if err != nil {
		log.Fatalf("failed to initialize event bus: %v", err)
	}
	defer kafkaBus.Close()

	worker := copilot.NewWorker(copilot.Config{
		Store:         st,
		Explainer:     enrich.NewLLMClient(cfg.LLMBaseURL, "", cfg.EnrichTimeout),
		Topic:         cfg.TopicAlerts,
		Group:         cfg.ConsumerGroup,
		EnrichTimeout: cfg.EnrichTimeout,
	})

	// Metrics endpoint for the worker process
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.CopilotAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server error: %v", err)
		}
	}()

	if err := worker.Run(ctx, kafkaBus); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("worker exited: %v", err)
		os.Exit(1)
	}
	log.Println("exited")
}
