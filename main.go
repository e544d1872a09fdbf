package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"energyflow/config"
	"energyflow/db"
	qhttp "energyflow/http"
	"energyflow/logging"
	"energyflow/monitoring"
	"energyflow/scheduler"
	"energyflow/source"
	"energyflow/workflow"
)

func main() {
	configPath := flag.String("config", "config.yaml", "config file path")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	var live atomic.Pointer[config.Config]
	live.Store(cfg)

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Initialize database
	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer store.Close()
	logger.Info("Database initialized", zap.String("path", cfg.Database.Path))

	// 3. Monitoring
	metrics := monitoring.NewMetrics()
	hub := monitoring.NewHub(logger, metrics)
	go hub.Run(ctx)

	loader, err := source.NewCachedLoader(cfg.Source.CacheSize, source.Options{Charset: cfg.Source.Charset}, logger)
	if err != nil {
		logger.Fatal("Failed to build source loader", zap.Error(err))
	}

	// 4. Scheduled retraining
	deps := workflow.Deps{
		Logger:     logger,
		Store:      store,
		Metrics:    metrics,
		Loader:     loader,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	retrain := func(ctx context.Context) error {
		_, err := workflow.Run(ctx, live.Load(), deps)
		return err
	}
	interval := cfg.Scheduler.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	sched, err := scheduler.New(interval, cfg.Scheduler.Timeout, retrain, logger)
	if err != nil {
		logger.Fatal("Failed to create scheduler", zap.Error(err))
	}
	sched.SetEnabled(cfg.Scheduler.Enabled)
	alerter := monitoring.NewAlerter(cfg.Alerts.Webhooks, cfg.Alerts.RateLimit, nil, logger)
	sched.Subscribe(func(o scheduler.Outcome) {
		if o.Err != nil {
			hub.Publish(monitoring.RetrainFailed, map[string]any{"run": o.Run, "trigger": o.Trigger, "error": o.Err.Error()})
			go func() {
				err := alerter.Send(ctx, monitoring.Alert{
					Level:    monitoring.LevelError,
					Title:    "Retrain failed",
					Message:  o.Err.Error(),
					Source:   "scheduler",
					Metadata: map[string]any{"run": o.Run, "trigger": o.Trigger},
				})
				if err != nil {
					logger.Warn("Alert delivery failed", zap.Error(err))
				}
			}()
			return
		}
		hub.Publish(monitoring.RetrainCompleted, o)
	})
	if err := sched.Start(ctx); err != nil {
		logger.Fatal("Failed to start scheduler", zap.Error(err))
	}

	// 5. Hot reload
	go func() {
		err := config.Watch(ctx, *configPath, logger, func(next *config.Config) {
			live.Store(next)
			loader.SetOptions(source.Options{Charset: next.Source.Charset})
			sched.SetEnabled(next.Scheduler.Enabled)
			hub.Publish(monitoring.ConfigReloaded, map[string]any{"path": *configPath})
		})
		if err != nil {
			logger.Error("Config watcher stopped", zap.Error(err))
		}
	}()

	// 6. Start HTTP server
	handlers := qhttp.NewHandlers(qhttp.HandlerDeps{
		Logger:    logger,
		Settings:  live.Load,
		Store:     store,
		Metrics:   metrics,
		Hub:       hub,
		Retrainer: sched,
	})
	srvCfg := qhttp.DefaultServerConfig()
	srvCfg.Port = cfg.HTTP.Port
	if cfg.HTTP.ReadTimeout > 0 {
		srvCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	}
	if cfg.HTTP.WriteTimeout > 0 {
		srvCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	}
	srvCfg.MaxUploadBytes = int64(cfg.HTTP.MaxUploadMB) << 20
	server := qhttp.NewServer(srvCfg, handlers)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	// 7. Handle graceful shutdown
	select {
	case <-ctx.Done():
		logger.Info("Shutting down...")
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if sched.IsRunning() {
		sched.Stop()
	}
	logger.Info("Exiting")
}
