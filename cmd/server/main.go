package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"browsepulse/internal/config"
	"browsepulse/internal/handler"
	"browsepulse/internal/insight"
	"browsepulse/internal/jobs"
	"browsepulse/internal/logger"
	"browsepulse/internal/scheduler"
	"browsepulse/internal/store"
	"browsepulse/internal/token"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/server.yaml", "Path to configuration file")
	flag.Parse()

	// Secrets commonly arrive via .env in local setups.
	godotenv.Load()

	cfg, err := config.LoadServer(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	log.Info("Starting browsepulse server",
		zap.String("env", cfg.Env),
		zap.String("addr", cfg.HTTP.Addr),
	)

	pg, err := store.NewPostgresDB(cfg.Postgres.DSN, log.Logger)
	if err != nil {
		log.Fatal("Failed to initialize postgres", zap.Error(err))
	}
	defer pg.Close()

	ch, err := store.NewClickHouseDB(store.ClickHouseOptions{
		Addr:     cfg.ClickHouse.Addr,
		Database: cfg.ClickHouse.Database,
		Username: cfg.ClickHouse.Username,
		Password: cfg.ClickHouse.Password,
	}, log.Logger)
	if err != nil {
		log.Fatal("Failed to initialize clickhouse", zap.Error(err))
	}
	defer ch.Close()

	userStore := store.NewUserStore(pg)
	eventStore := store.NewEventStore(ch, log.Logger)
	metricStore := store.NewMetricStore(pg)
	insightStore := store.NewInsightStore(pg)

	tokens := token.NewManager(
		cfg.Auth.AccessSecret,
		cfg.Auth.RefreshSecret,
		time.Duration(cfg.Auth.AccessTTL)*time.Minute,
		time.Duration(cfg.Auth.RefreshTTL)*time.Hour,
	)

	trackingHandler := handler.NewTrackingHandler(eventStore, log.Logger)
	authHandler := handler.NewAuthHandler(userStore, tokens, log.Logger)
	router := handler.NewRouter(trackingHandler, authHandler, tokens, log.Logger)

	var generator insight.Generator
	if cfg.Insight.Mode == "http" && cfg.Insight.Endpoint != "" {
		generator = insight.NewHTTPGenerator(
			cfg.Insight.Endpoint,
			time.Duration(cfg.Insight.Timeout)*time.Second,
			log.Logger,
		)
	} else {
		generator = insight.NewTemplateGenerator()
	}

	aggregation := jobs.NewAggregationJob(
		eventStore,
		metricStore,
		time.Duration(cfg.Jobs.AggregationLookback)*time.Hour,
		log.Logger,
	)
	insightJob := jobs.NewInsightJob(
		eventStore,
		metricStore,
		insightStore,
		generator,
		time.Duration(cfg.Jobs.InsightLookback)*time.Minute,
		time.Duration(cfg.Jobs.InsightCooldown)*time.Minute,
		cfg.Jobs.InsightConcurrency,
		log.Logger,
	)

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	sched := scheduler.New(log.Logger)
	sched.Register("aggregation", time.Duration(cfg.Jobs.AggregationPeriod)*time.Minute, func() {
		aggregation.Run(jobCtx)
	})
	sched.Register("insight-generation", time.Duration(cfg.Jobs.InsightPeriod)*time.Minute, func() {
		insightJob.Run(jobCtx)
	})

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	log.Info("Server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("Received shutdown signal", zap.String("signal", sig.String()))

	cancelJobs()
	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warn("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("Server stopped")
}
