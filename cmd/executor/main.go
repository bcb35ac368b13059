package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robert-nguyenn/strategy-engine/internal/config"
	"github.com/robert-nguyenn/strategy-engine/internal/executor"
	"github.com/robert-nguyenn/strategy-engine/internal/pubsub"
	"github.com/robert-nguyenn/strategy-engine/internal/store"
	"github.com/robert-nguyenn/strategy-engine/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	consumerName := fmt.Sprintf("executor-%s", uuid.NewString()[:8])

	logger.Info("Starting action execution service",
		logger.String("health_port", fmt.Sprintf("%d", cfg.Executor.HealthCheckPort)),
		logger.String("stream", cfg.Executor.StreamName),
		logger.String("consumer_group", cfg.Executor.ConsumerGroup),
		logger.String("consumer", consumerName),
	)

	// Initialize Redis client
	redisClient, err := pubsub.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to initialize Redis client",
			logger.ErrorField(err),
		)
	}
	defer redisClient.Close()

	// Initialize strategy store (trading account lookups)
	strategyStore, err := store.NewPostgresStore(cfg.Database, cfg.Evaluator.TreeMaxDepth)
	if err != nil {
		logger.Fatal("Failed to initialize strategy store",
			logger.ErrorField(err),
		)
	}
	defer strategyStore.Close()

	// Initialize broker client
	broker := executor.NewAlpacaBrokerClient(cfg.Broker)

	// Initialize and start consumer
	consumer := executor.NewConsumer(cfg.Executor, redisClient, strategyStore, broker, consumerName)
	if err := consumer.Start(); err != nil {
		logger.Fatal("Failed to start execution consumer",
			logger.ErrorField(err),
		)
	}
	defer consumer.Stop()

	// Set up HTTP server for health checks and metrics
	routerMux := mux.NewRouter()

	routerMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	routerMux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if consumer.IsRunning() {
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "not ready"})
		}
	})

	routerMux.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	})

	routerMux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		stats := consumer.GetStats()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(&stats)
	})

	routerMux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Executor.HealthCheckPort),
		Handler: routerMux,
	}

	go func() {
		logger.Info("Starting HTTP server",
			logger.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start HTTP server",
				logger.ErrorField(err),
			)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutting down action execution service")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Error shutting down HTTP server",
			logger.ErrorField(err),
		)
	}

	logger.Info("Action execution service stopped")
}
