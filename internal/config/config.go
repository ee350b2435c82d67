package config

import (
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

var config *Config

// Config holds every configuration value of the api, processor and cli
// binaries. Only this struct must be used to hold configuration values,
// no direct access to env or any other config source should be made.
type Config struct {
	AppEnv              string `env:"APP_ENV,default=dev"`
	AppName             string `env:"APP_NAME,default=arcanum"`
	AppDebug            bool   `env:"APP_DEBUG,default=false"`
	LogLevel            string `env:"LOG_LEVEL,default=info"`
	AppDebugMetricsAddr string `env:"APP_DEBUG_METRIC_ADDR,default=:9090"`
	AppDebugMetricsURI  string `env:"APP_DEBUG_METRIC_URI,default=/metrics"`

	HttpListenAddr         string        `env:"HTTP_LISTEN_ADDR,default=:8080"`
	HttpServerReadTimeout  time.Duration `env:"HTTP_SERVER_READ_TIMEOUT,default=5s"`
	HttpServerWriteTimeout time.Duration `env:"HTTP_SERVER_WRITE_TIMEOUT,default=5s"`
	HttpRequestTimeout     time.Duration `env:"HTTP_REQUEST_TIMEOUT,default=10s"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST,default=localhost"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT,default=5432"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER,default=postgres"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME,default=arcanum"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST,default=localhost"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT,default=5432"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER,default=postgres"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME,default=arcanum"`
	PostgresSSLMode       string `env:"POSTGRES_SSLMODE,default=disable"`
	MigrationsDir         string `env:"MIGRATIONS_DIR,default=migrations"`

	RedisAddr               string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE,default=0"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX,default=arcanum:"`

	PromNamespace string `env:"PROM_NAMESPACE,default=arcanum"`

	QueueName              string        `env:"QUEUE_NAME,default=jobs"`
	QueueConsumerGroup     string        `env:"QUEUE_CONSUMER_GROUP,default=job-processors"`
	QueueConsumerName      string        `env:"QUEUE_CONSUMER_NAME"`
	QueueMaxRetries        int           `env:"QUEUE_MAX_RETRIES,default=3"`
	QueueVisibilityTimeout time.Duration `env:"QUEUE_VISIBILITY_TIMEOUT,default=15m"`
	QueuePollInterval      time.Duration `env:"QUEUE_POLL_INTERVAL,default=200ms"`
	QueueBatchSize         int64         `env:"QUEUE_BATCH_SIZE,default=10"`
	QueueMaxLen            int64         `env:"QUEUE_MAX_LEN,default=100000"`
	QueueEnableDLQ         bool          `env:"QUEUE_ENABLE_DLQ,default=true"`
	ProcessorWorkers       int           `env:"PROCESSOR_WORKERS,default=8"`
	ProcessorConsumers     int           `env:"PROCESSOR_CONSUMERS,default=1"`
	ProcessorLockTTL       time.Duration `env:"PROCESSOR_LOCK_TTL,default=15m"`

	// comma separated principal ids
	LedgerUnlimitedPrincipals string `env:"LEDGER_UNLIMITED_PRINCIPALS"`
	LedgerUnlimitedAll        bool   `env:"LEDGER_UNLIMITED_ALL,default=false"`

	PriceTransformation         int64 `env:"PRICE_TRANSFORMATION,default=10"`
	PriceTranscriptionPerMinute int64 `env:"PRICE_TRANSCRIPTION_PER_MINUTE,default=5"`
	PriceTranscriptionMinimum   int64 `env:"PRICE_TRANSCRIPTION_MINIMUM,default=5"`
	PriceVideoShort             int64 `env:"PRICE_VIDEO_SHORT,default=25"`
	PriceVideoShortPer30Seconds int64 `env:"PRICE_VIDEO_SHORT_PER_30S,default=10"`

	JobTimeout        time.Duration `env:"JOB_TIMEOUT,default=10m"`
	JobStaleAfter     time.Duration `env:"JOB_STALE_AFTER,default=30m"`
	ReconcileSchedule string        `env:"RECONCILE_SCHEDULE,default=@every 1m"`
	ReconcileBatch    int           `env:"RECONCILE_BATCH,default=100"`

	LLMBaseURL string `env:"LLM_BASE_URL,default=https://api.openai.com/v1"`
	LLMAPIKey  string `env:"LLM_API_KEY"`
	LLMModel   string `env:"LLM_MODEL,default=gpt-4o-mini"`
	STTBaseURL string `env:"STT_BASE_URL,default=https://api.openai.com/v1"`
	STTAPIKey  string `env:"STT_API_KEY"`
	STTModel   string `env:"STT_MODEL,default=whisper-1"`

	ExternalTimeout        time.Duration `env:"EXTERNAL_TIMEOUT,default=60s"`
	ExternalMaxAttempts    int           `env:"EXTERNAL_MAX_ATTEMPTS,default=3"`
	ExternalRetryBaseDelay time.Duration `env:"EXTERNAL_RETRY_BASE_DELAY,default=500ms"`
	ExternalRetryMaxDelay  time.Duration `env:"EXTERNAL_RETRY_MAX_DELAY,default=5s"`

	FFmpegPath    string        `env:"FFMPEG_PATH,default=ffmpeg"`
	FFmpegTimeout time.Duration `env:"FFMPEG_TIMEOUT,default=2m"`
	MediaMaxBytes int           `env:"MEDIA_MAX_BYTES,default=26214400"`

	CreditsPerMajorUnit int64 `env:"CREDITS_PER_MAJOR_UNIT,default=10"`

	CorsAllowOrigin string `env:"CORS_ALLOW_ORIGIN,default=*"`

	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS,default=60"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW,default=1m"`

	AuditLogPath string `env:"AUDIT_LOG_PATH"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	var err error
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		err = godotenv.Load(path)
		if err != nil {
			return errors.Wrapf(err, "failed to load configuration file %s", path)
		}
	}

	if _, err = env.UnmarshalFromEnviron(c); err != nil {
		return errors.Wrap(err, "failed to map env variables to Configuration object")
	}
	if err = c.Validate(); err != nil {
		return err
	}

	config = c
	return nil
}

// Set replaces the loaded configuration. Used by tests and tools.
func Set(c *Config) {
	config = c
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}

func (c *Config) Validate() error {
	switch {
	case c.ExternalMaxAttempts < 1:
		return errors.New("EXTERNAL_MAX_ATTEMPTS must be at least 1")
	case c.JobTimeout <= 0:
		return errors.New("JOB_TIMEOUT must be positive")
	case c.JobStaleAfter <= c.JobTimeout:
		return errors.Errorf("JOB_STALE_AFTER (%s) must exceed JOB_TIMEOUT (%s)", c.JobStaleAfter, c.JobTimeout)
	case c.QueueVisibilityTimeout <= c.JobTimeout:
		return errors.Errorf("QUEUE_VISIBILITY_TIMEOUT (%s) must exceed JOB_TIMEOUT (%s)", c.QueueVisibilityTimeout, c.JobTimeout)
	case c.CreditsPerMajorUnit <= 0:
		return errors.New("CREDITS_PER_MAJOR_UNIT must be positive")
	case c.PriceTransformation <= 0 || c.PriceTranscriptionMinimum <= 0 || c.PriceVideoShort <= 0:
		return errors.New("prices must be positive")
	}
	return nil
}

// UnlimitedPrincipals returns the parsed LEDGER_UNLIMITED_PRINCIPALS list.
func (c *Config) UnlimitedPrincipals() []string {
	return splitList(c.LedgerUnlimitedPrincipals)
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
