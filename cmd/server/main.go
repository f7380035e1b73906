package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LiteObject/github-traffic-monitor/internal/config"
	"github.com/LiteObject/github-traffic-monitor/internal/db"
	"github.com/LiteObject/github-traffic-monitor/internal/github"
	"github.com/LiteObject/github-traffic-monitor/internal/handler"
	md "github.com/LiteObject/github-traffic-monitor/internal/middleware"
	"github.com/LiteObject/github-traffic-monitor/internal/queue"
	"github.com/LiteObject/github-traffic-monitor/internal/service"
	"github.com/LiteObject/github-traffic-monitor/internal/worker"
	"github.com/LiteObject/github-traffic-monitor/pkg/logger"
	"github.com/gorilla/mux"
)

func main() {
	if os.Getenv("DEBUG") == "true" {
		logger.SetLevel(logger.LevelDebug)
	}

	// * Load configuration
	cfg, err := config.LoadConfiguration()
	if err != nil {
		logger.Error("failed to load config: %v", err)
		os.Exit(1)
	}

	// * Initialize PostgreSQL database
	database, err := db.NewPostgresDB(cfg.DBURL)
	if err != nil {
		logger.Error("failed to initialize database: %v", err)
		os.Exit(1)
	}
	defer database.Close()

	// * Run migrations
	if err := database.Migrate(); err != nil {
		logger.Error("failed to run migrations: %v", err)
		os.Exit(1)
	}
	logger.Info("successfully ran migrations")

	// * Initialize GitHub client
	githubClient := github.NewClient(cfg.GitHubToken, cfg.GitHubUsername)

	// * Create services
	trafficService := service.NewTrafficService(githubClient, database)

	// * Parse collection interval
	collectInterval, err := time.ParseDuration(cfg.CollectInterval)
	if err != nil {
		logger.Error("invalid collect interval: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// * Optional message broker for run events and on-demand triggers
	var broker *queue.RabbitMQ
	if cfg.RabbitMQURL != "" {
		broker, err = queue.NewRabbitMQ(cfg.RabbitMQURL)
		if err != nil {
			logger.Error("failed to initialize RabbitMQ: %v", err)
			os.Exit(1)
		}
		defer broker.Close()
	}

	// * Create and start worker
	collectWorker := worker.NewCollectWorker(trafficService, broker, collectInterval)
	go collectWorker.Run(ctx)

	if broker != nil {
		err := broker.ConsumeCollectRequests(ctx, func(username string) error {
			logger.Info("collect request received for %s", username)
			return collectWorker.Collect(ctx)
		})
		if err != nil {
			logger.Error("failed to consume collect requests: %v", err)
		}
	}

	// * Create API server
	apiHandler := handler.NewTrafficHandler(ctx, trafficService, collectWorker)
	router := mux.NewRouter()
	router.Use(md.LoggingMiddleware)
	api := router.PathPrefix("/v1").Subrouter()
	apiHandler.RegisterRoutes(api)

	server := &http.Server{
		Addr:    cfg.ServerPort,
		Handler: router,
	}

	go func() {
		logger.Info("starting API server on %s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("API server error: %v", err)
			os.Exit(1)
		}
	}()

	// * Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
}
