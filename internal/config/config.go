package config

import (
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/nimasrn/support-inbox/pkg/logger"
	"github.com/pkg/errors"
)

var config *Config

// Config holds every configuration value of the inbox services. Only this struct
// must be used to read configuration, no direct access to env or any other
// config source should be made.
type Config struct {
	AppEnv              string `env:"APP_ENV,default=dev"`
	AppName             string `env:"APP_NAME,default=support_inbox"`
	AppDebug            bool   `env:"APP_DEBUG,default=false"`
	AppDebugMetricsAddr string `env:"APP_DEBUG_METRIC_ADDR,default=:9100"`
	AppDebugMetricsURI  string `env:"APP_DEBUG_METRIC_URI,default=/metrics"`

	HttpListenAddr            string        `env:"HTTP_LISTEN_ADDR,default=:8080"`
	HttpServerReadTimeout     time.Duration `env:"HTTP_SERVER_READ_TIMEOUT,default=5s"`
	HttpServerWriteTimeout    time.Duration `env:"HTTP_SERVER_WRITE_TIMEOUT,default=5s"`
	HttpServerReadBufferSize  int           `env:"HTTP_SERVER_READ_BUFFER_SIZE,default=16384"`
	HttpServerWriteBufferSize int           `env:"HTTP_SERVER_WRITE_BUFFER_SIZE,default=16384"`
	HttpRequestTimeout        time.Duration `env:"HTTP_REQUEST_TIMEOUT,default=10s"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT,default=5432"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT,default=5432"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`

	RedisAddr               string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX,default=inbox:"`

	PromNamespace string `env:"PROM_NAMESPACE,default=support_inbox"`

	LogLevel string `env:"LOG_LEVEL"`

	WebhookSecret string `env:"WEBHOOK_SECRET"`
	CronSecret    string `env:"CRON_SECRET"`

	SLAFirstResponseWindow time.Duration `env:"SLA_FIRST_RESPONSE_WINDOW,default=1h"`
	SLAFollowUpWindow      time.Duration `env:"SLA_FOLLOW_UP_WINDOW,default=24h"`
	SLASweepInterval       time.Duration `env:"SLA_SWEEP_INTERVAL,default=1m"`

	AutoReplyDefaultCooldown time.Duration `env:"AUTO_REPLY_DEFAULT_COOLDOWN,default=5m"`
	IdempotencyCacheTTL      time.Duration `env:"IDEMPOTENCY_CACHE_TTL,default=24h"`
	RulesCacheTTL            time.Duration `env:"RULES_CACHE_TTL,default=0s"`

	QueueName              string        `env:"QUEUE_NAME,default=outbox:jobs"`
	QueueConsumerGroup     string        `env:"QUEUE_CONSUMER_GROUP,default=delivery"`
	QueueConsumerName      string        `env:"QUEUE_CONSUMER_NAME,default=worker"`
	QueueConsumers         int           `env:"QUEUE_CONSUMERS,default=2"`
	QueueMaxRetries        int           `env:"QUEUE_MAX_RETRIES,default=5"`
	QueueVisibilityTimeout time.Duration `env:"QUEUE_VISIBILITY_TIMEOUT,default=30s"`
	QueuePollInterval      time.Duration `env:"QUEUE_POLL_INTERVAL,default=500ms"`
	QueueBatchSize         int64         `env:"QUEUE_BATCH_SIZE,default=10"`
	QueueMaxLen            int64         `env:"QUEUE_MAX_LEN,default=100000"`
	QueueEnableDLQ         bool          `env:"QUEUE_ENABLE_DLQ,default=true"`

	WorkerPoolSize          int           `env:"WORKER_POOL_SIZE,default=16"`
	WorkerMaxAttempts       int           `env:"WORKER_MAX_ATTEMPTS,default=5"`
	WorkerRetryBaseDelay    time.Duration `env:"WORKER_RETRY_BASE_DELAY,default=10s"`
	WorkerStuckTimeout      time.Duration `env:"WORKER_STUCK_TIMEOUT,default=5m"`
	WorkerMaintenanceEvery  time.Duration `env:"WORKER_MAINTENANCE_INTERVAL,default=15s"`
	WorkerStaleQueuedAfter  time.Duration `env:"WORKER_STALE_QUEUED_AFTER,default=1m"`
	WorkerMaintenanceBatch  int           `env:"WORKER_MAINTENANCE_BATCH,default=100"`
	WorkerProcessingTimeout time.Duration `env:"WORKER_PROCESSING_TIMEOUT,default=10s"`

	ProviderPrimaryUrl   string        `env:"PROVIDER_PRIMARY_URL"`
	ProviderSecondaryUrl string        `env:"PROVIDER_SECONDARY_URL"`
	ProviderTimeout      time.Duration `env:"PROVIDER_TIMEOUT,default=5s"`
	ProviderToken        string        `env:"PROVIDER_TOKEN"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	if path != "" {
		logger.Info("loading env from file", "path", path)
		if err := godotenv.Load(path); err != nil {
			return errors.Wrapf(err, "failed to load configuration file %s", path)
		}
	}

	if _, err := env.UnmarshalFromEnviron(c); err != nil {
		return errors.Wrap(err, "failed to map env variables to configuration")
	}

	if c.LogLevel != "" {
		if err := logger.SetLevel(c.LogLevel); err != nil {
			logger.Warn("ignoring invalid log level", "level", c.LogLevel)
		}
	}

	config = c
	return nil
}

// Set replaces the loaded configuration, used by tests and tools.
func Set(c *Config) {
	config = c
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}

// ValidateAPI checks the values the HTTP API cannot run without.
func (c *Config) ValidateAPI() error {
	if c.WebhookSecret == "" {
		return errors.New("WEBHOOK_SECRET is required")
	}
	if c.PostgresWriteHost == "" || c.PostgresReadHost == "" {
		return errors.New("POSTGRES_READ_HOST and POSTGRES_WRITE_HOST are required")
	}
	if c.SLAFirstResponseWindow <= 0 || c.SLAFollowUpWindow <= 0 {
		return errors.New("SLA windows must be positive")
	}
	return nil
}

// ValidateProcessor checks the values the delivery worker cannot run without.
func (c *Config) ValidateProcessor() error {
	if c.ProviderPrimaryUrl == "" {
		return errors.New("PROVIDER_PRIMARY_URL is required")
	}
	if c.WorkerMaxAttempts <= 0 {
		return errors.New("WORKER_MAX_ATTEMPTS must be positive")
	}
	if c.QueueConsumers <= 0 {
		return errors.New("QUEUE_CONSUMERS must be positive")
	}
	return nil
}
