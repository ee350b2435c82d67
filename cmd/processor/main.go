package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/app"
	"github.com/Pguillen87/arcanum-ai-sub001/internal/config"
	"github.com/Pguillen87/arcanum-ai-sub001/internal/processor"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/logger"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/prom"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	cfg := config.Get()
	if err := logger.Setup(cfg.AppEnv, cfg.LogLevel, cfg.AppName+"-processor"); err != nil {
		logger.Error("invalid log settings", "error", err)
		return
	}
	logger.Info("starting processor", "version", version, "commit", commit, "date", date, "env", cfg.AppEnv)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if err = prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace); err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}
	go func() {
		if err := prom.ListenAndServer(cfg.AppDebugMetricsAddr, cfg.AppDebugMetricsURI); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	infra, err := app.Connect(cfg)
	if err != nil {
		logger.Error("failed to connect", "error", err)
		return
	}
	svc, err := app.Build(cfg, infra)
	if err != nil {
		logger.Error("failed to build services", "error", err)
		return
	}
	defer svc.Close()

	locks := processor.NewIdempotencyService(infra.Redis, processor.IdempotencyConfig{
		LockTTL: cfg.ProcessorLockTTL,
	})
	service, err := processor.NewProcessorService(infra.Redis, processor.NewJobProcessor(svc.Jobs, locks), processor.ProcessorOptions{
		Queue:     app.QueueConfig(cfg),
		Consumers: cfg.ProcessorConsumers,
		Workers:   cfg.ProcessorWorkers,
	})
	if err != nil {
		logger.Error("failed to create the processor", "error", err)
		return
	}

	reconciler, err := processor.NewReconciler(svc.Jobs, cfg.ReconcileSchedule)
	if err != nil {
		logger.Error("failed to create the reconciler", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := service.Start(); err != nil {
		logger.Error("failed to start processor", "error", err)
		return
	}
	if err := reconciler.Start(ctx); err != nil {
		logger.Error("failed to start reconciler", "error", err)
		service.Stop()
		return
	}

	go func() {
		ticker := time.NewTicker(processor.MetricsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				svc.LogProviderStats()
			case <-ctx.Done():
				return
			}
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	reconciler.Stop()
	service.Stop()
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.HasPrefix(v, "--env=") {
			path := strings.TrimPrefix(v, "--env=")
			if _, err := os.Stat(path); err != nil {
				logger.Error("failed to open the passed env file", "path", path, "error", err)
				return ""
			}
			return path
		}
	}
	return ""
}
