// Package app wires configuration, storage and services for the binaries.
package app

import (
	"context"
	"fmt"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/audit"
	"github.com/Pguillen87/arcanum-ai-sub001/internal/config"
	gateway "github.com/Pguillen87/arcanum-ai-sub001/internal/gateways"
	"github.com/Pguillen87/arcanum-ai-sub001/internal/media"
	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	"github.com/Pguillen87/arcanum-ai-sub001/internal/queue"
	"github.com/Pguillen87/arcanum-ai-sub001/internal/repository"
	"github.com/Pguillen87/arcanum-ai-sub001/internal/services"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/logger"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/pg"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/redis"
)

// Infra holds the shared connections.
type Infra struct {
	DB    *pg.DB
	Redis redis.RedisAdapter
}

func PostgresConfigs(c *config.Config) (read, write pg.Config) {
	read = pg.Config{
		User:     c.PostgresReadUser,
		Host:     c.PostgresReadHost,
		Port:     c.PostgresReadPort,
		Password: c.PostgresReadPassword,
		Database: c.PostgresReadDatabase,
		SSLMode:  c.PostgresSSLMode,
	}
	write = pg.Config{
		User:     c.PostgresWriteUser,
		Host:     c.PostgresWriteHost,
		Port:     c.PostgresWritePort,
		Password: c.PostgresWritePassword,
		Database: c.PostgresWriteDatabase,
		SSLMode:  c.PostgresSSLMode,
	}
	return read, write
}

func Connect(c *config.Config) (*Infra, error) {
	readConf, writeConf := PostgresConfigs(c)
	db, err := pg.CreateReadWrite(readConf, writeConf, c.AppEnv == "dev" && c.AppDebug)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	rd, err := redis.NewRedisAdapter("default", c.RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{c.RedisAddr},
		ClientName: c.AppName,
		DB:         c.RedisDatabase,
		Username:   c.RedisUsername,
		Password:   c.RedisPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &Infra{DB: db, Redis: rd}, nil
}

func QueueConfig(c *config.Config) queue.QueueConfig {
	return queue.QueueConfig{
		Name:              c.QueueName,
		ConsumerGroup:     c.QueueConsumerGroup,
		ConsumerName:      c.QueueConsumerName,
		MaxRetries:        c.QueueMaxRetries,
		VisibilityTimeout: c.QueueVisibilityTimeout,
		PollInterval:      c.QueuePollInterval,
		BatchSize:         c.QueueBatchSize,
		MaxLen:            c.QueueMaxLen,
		EnableDLQ:         c.QueueEnableDLQ,
	}
}

func gatewayConfig(c *config.Config, name, baseURL, apiKey string) gateway.Config {
	return gateway.Config{
		Name:             name,
		BaseURL:          baseURL,
		APIKey:           apiKey,
		Timeout:          c.ExternalTimeout,
		MaxAttempts:      c.ExternalMaxAttempts,
		BaseDelay:        c.ExternalRetryBaseDelay,
		MaxDelay:         c.ExternalRetryMaxDelay,
		MaxResponseBytes: c.MediaMaxBytes,
	}
}

type providerStatter interface {
	Stats() gateway.ProviderStats
}

// Services is the assembled service graph.
type Services struct {
	Ledger   *services.LedgerService
	Jobs     *services.JobService
	Payments *services.PaymentService
	Health   *services.HealthService
	Queue    *queue.Queue
	Audit    *audit.Logger

	providers []providerStatter
}

func Build(c *config.Config, infra *Infra) (*Services, error) {
	auditLog, err := audit.Open(c.AuditLogPath)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	q, err := queue.NewQueue(infra.Redis, QueueConfig(c))
	if err != nil {
		_ = auditLog.Close()
		return nil, fmt.Errorf("create job queue: %w", err)
	}

	accounts := repository.NewAccountRepository(infra.DB)
	transactions := repository.NewTransactionRepository(infra.DB)
	recon := repository.NewReconciliationRepository(infra.DB)
	jobs := repository.NewJobRepository(infra.DB)

	ledger := services.NewLedgerService(accounts, transactions, recon, auditLog, services.LedgerOptions{
		UnlimitedPrincipals: c.UnlimitedPrincipals(),
		UnlimitedAll:        c.LedgerUnlimitedAll,
	})
	pricer := services.NewPricer(services.PriceTable{
		Transformation:         c.PriceTransformation,
		TranscriptionPerMinute: c.PriceTranscriptionPerMinute,
		TranscriptionMinimum:   c.PriceTranscriptionMinimum,
		VideoShort:             c.PriceVideoShort,
		VideoShortPer30Seconds: c.PriceVideoShortPer30Seconds,
	})
	jobSvc := services.NewJobService(jobs, ledger, recon, q, pricer, auditLog, services.JobOptions{
		JobTimeout:     c.JobTimeout,
		StaleAfter:     c.JobStaleAfter,
		ReconcileBatch: c.ReconcileBatch,
	})

	llm := gateway.NewLLMClient(gatewayConfig(c, "llm", c.LLMBaseURL, c.LLMAPIKey), c.LLMModel)
	stt := gateway.NewSTTClient(gatewayConfig(c, "stt", c.STTBaseURL, c.STTAPIKey), c.STTModel)
	assets := gateway.NewAssetClient(gatewayConfig(c, "asset", "", ""))
	normalizer := media.NewNormalizer(media.Options{
		FFmpegPath: c.FFmpegPath,
		Timeout:    c.FFmpegTimeout,
		MaxBytes:   c.MediaMaxBytes,
	})
	jobSvc.RegisterExecutor(model.JobKindTransformation, services.NewTransformationExecutor(llm))
	jobSvc.RegisterExecutor(model.JobKindTranscription, services.NewTranscriptionExecutor(assets, normalizer, stt))
	jobSvc.RegisterExecutor(model.JobKindVideoShort, services.NewVideoShortExecutor(llm))

	health := services.NewHealthService(0)
	health.Register("postgres", services.PingFunc(infra.DB.Ping))
	health.Register("redis", services.PingFunc(func(ctx context.Context) error {
		return infra.Redis.Client().Ping(ctx).Err()
	}))

	logger.Info("services ready",
		"queue", q.Config().Name,
		"unlimited_principals", len(c.UnlimitedPrincipals()),
		"unlimited_all", c.LedgerUnlimitedAll)

	return &Services{
		Ledger:   ledger,
		Jobs:     jobSvc,
		Payments: services.NewPaymentService(ledger, auditLog, c.CreditsPerMajorUnit),
		Health:   health,
		Queue:    q,
		Audit:    auditLog,

		providers: []providerStatter{llm, stt, assets},
	}, nil
}

// LogProviderStats logs the in-process counters of every outbound client.
func (s *Services) LogProviderStats() {
	for _, p := range s.providers {
		st := p.Stats()
		if st.TotalRequests == 0 {
			continue
		}
		logger.Info("provider stats",
			"name", st.Name,
			"total", st.TotalRequests,
			"failed", st.FailedReqs,
			"success_rate", st.SuccessRate,
			"avg_latency_ms", st.AvgLatencyMs,
			"p95_latency_ms", st.P95LatencyMs,
			"consecutive_fails", st.ConsecutiveFails)
	}
}

func (s *Services) Close() {
	if err := s.Audit.Close(); err != nil {
		logger.Warn("audit log close failed", "error", err)
	}
}
