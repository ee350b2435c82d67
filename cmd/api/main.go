package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/app"
	"github.com/Pguillen87/arcanum-ai-sub001/internal/config"
	"github.com/Pguillen87/arcanum-ai-sub001/internal/handlers"
	"github.com/Pguillen87/arcanum-ai-sub001/internal/ratelimit"
	xhttp "github.com/Pguillen87/arcanum-ai-sub001/pkg/http"
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
	if err := logger.Setup(cfg.AppEnv, cfg.LogLevel, cfg.AppName+"-api"); err != nil {
		logger.Error("invalid log settings", "error", err)
		return
	}
	logger.Info("starting api", "version", version, "commit", commit, "date", date, "env", cfg.AppEnv)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if err = prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace); err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}

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

	limiter, err := ratelimit.NewFixedWindow(infra.Redis, cfg.RateLimitRequests, cfg.RateLimitWindow)
	if err != nil {
		logger.Error("failed to create rate limiter", "error", err)
		return
	}

	s := xhttp.CreateServer(cfg.HttpServerReadTimeout, cfg.HttpServerWriteTimeout)
	s.Use(xhttp.RecoverMiddleware)
	s.Use(xhttp.RequestIDMiddleware)
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.CORSMiddleware(xhttp.CORSOptions{AllowOrigin: cfg.CorsAllowOrigin}))
	s.Use(xhttp.RateLimitMiddleware(limiter))
	s.Use(xhttp.TimeoutMiddleware(cfg.HttpRequestTimeout))

	g := s.Router.Group("/api/v1")
	handlers.RegisterJobRoutes(g, handlers.NewJobHandler(svc.Jobs))
	handlers.RegisterLedgerRoutes(g, handlers.NewLedgerHandler(svc.Ledger))
	handlers.RegisterWebhookRoutes(g, handlers.NewWebhookHandler(svc.Payments))
	handlers.RegisterHealthRoutes(g, handlers.NewHealthHandler(svc.Health))
	s.Router.GET(cfg.AppDebugMetricsURI, prom.Handler())

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := s.ListenAndServe(cfg.HttpListenAddr); err != nil {
			logger.Error("error in running http-server", "error", err)
			c <- syscall.SIGTERM
		}
	}()

	<-c
	s.Shutdown()
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
