package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"browsepulse/internal/agent"
	"browsepulse/internal/authstore"
	"browsepulse/internal/broadcast"
	"browsepulse/internal/client"
	"browsepulse/internal/config"
	"browsepulse/internal/database"
	"browsepulse/internal/device"
	"browsepulse/internal/focus"
	"browsepulse/internal/ipc"
	"browsepulse/internal/kv"
	"browsepulse/internal/logger"
	"browsepulse/internal/queue"
	"browsepulse/internal/scheduler"
	"browsepulse/internal/uploader"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/agent.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadAgent(*configPath)
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

	log.Info("Starting browsepulse agent",
		zap.String("env", cfg.Env),
		zap.String("config_path", *configPath),
	)

	db, err := database.New(cfg.StoragePath, log.Logger)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close database", zap.Error(err))
		}
	}()

	kvStore := kv.New(db.DB)

	deviceID, err := device.GetOrCreateID(kvStore)
	if err != nil {
		log.Fatal("Failed to get device id", zap.Error(err))
	}
	log.Info("Device id ready", zap.String("device_id", deviceID))

	eventQueue := queue.New(db.DB, log.Logger)
	authStore := authstore.New(kvStore, log.Logger)
	focusMachine := focus.New(log.Logger)
	hub := broadcast.NewHub(log.Logger)

	apiClient := client.NewAPIClient(
		cfg.Backend.BaseURL,
		time.Duration(cfg.Backend.Timeout)*time.Second,
		log.Logger,
	)

	coordinator := uploader.New(
		eventQueue,
		authStore,
		apiClient,
		deviceID,
		cfg.Upload.BatchSize,
		time.Duration(cfg.Backend.Timeout)*time.Second,
		agent.BuildHooks(hub, log.Logger),
		log.Logger,
	)

	service := agent.New(eventQueue, authStore, focusMachine, coordinator, hub, kvStore, log.Logger)
	if err := service.Start(); err != nil {
		log.Fatal("Failed to start agent service", zap.Error(err))
	}

	ipcServer := ipc.NewServer(cfg.SocketPath, service.Handle, hub, log.Logger)
	if err := ipcServer.Start(); err != nil {
		log.Fatal("Failed to start IPC server", zap.Error(err))
	}

	// One named alarm; re-registration on cold start is idempotent.
	sched := scheduler.New(log.Logger)
	sched.Register("upload-flush", time.Duration(cfg.Upload.AlarmPeriod)*time.Second, service.AlarmTick)

	// Anything left over from the previous run goes out as soon as we're up.
	service.AlarmTick()

	log.Info("Agent started",
		zap.String("backend_url", cfg.Backend.BaseURL),
		zap.String("socket", cfg.SocketPath),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("Received shutdown signal", zap.String("signal", sig.String()))

	sched.Stop()
	ipcServer.Stop()

	// Let an in-flight cycle finish; there is no mid-cycle cancellation.
	if !coordinator.WaitIdle(5 * time.Second) {
		log.Warn("Upload cycle still running at shutdown")
	}

	log.Info("Agent stopped")
}
