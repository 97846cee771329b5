package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nimasrn/support-inbox/internal/config"
	gateway "github.com/nimasrn/support-inbox/internal/gateways"
	"github.com/nimasrn/support-inbox/internal/processor"
	"github.com/nimasrn/support-inbox/internal/queue"
	"github.com/nimasrn/support-inbox/internal/repository"
	"github.com/nimasrn/support-inbox/internal/services"
	"github.com/nimasrn/support-inbox/pkg/logger"
	"github.com/nimasrn/support-inbox/pkg/pg"
	"github.com/nimasrn/support-inbox/pkg/prom"
	"github.com/nimasrn/support-inbox/pkg/redis"
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
	if err := cfg.ValidateProcessor(); err != nil {
		logger.Error("invalid config", "error", err)
		return
	}
	logger.Info("starting delivery worker", "version", version, "commit", commit, "date", date)

	readConf := pg.Config{
		User:     cfg.PostgresReadUser,
		Host:     cfg.PostgresReadHost,
		Port:     cfg.PostgresReadPort,
		Password: cfg.PostgresReadPassword,
		Database: cfg.PostgresReadDatabase,
	}
	writeConf := pg.Config{
		User:     cfg.PostgresWriteUser,
		Host:     cfg.PostgresWriteHost,
		Port:     cfg.PostgresWritePort,
		Password: cfg.PostgresWritePassword,
		Database: cfg.PostgresWriteDatabase,
	}

	pgDebug := false
	if cfg.AppEnv == "dev" {
		pgDebug = true
	}
	db, err := pg.CreateReadWrite(readConf, writeConf, pgDebug)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter("default", cfg.RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{cfg.RedisAddr},
		ClientName: "inbox-processor",
		DB:         cfg.RedisDatabase,
		Username:   cfg.RedisUsername,
		Password:   cfg.RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	relay, err := gateway.NewRelay(gateway.Config{
		Providers: []gateway.ProviderConfig{
			{Name: "primary", URL: cfg.ProviderPrimaryUrl, Weight: 100},
			{Name: "secondary", URL: cfg.ProviderSecondaryUrl, Weight: 80},
		},
		Token:           cfg.ProviderToken,
		Timeout:         cfg.ProviderTimeout,
		MaxConns:        cfg.WorkerPoolSize * 2,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	})
	if err != nil {
		logger.Error("failed to create provider relay", "error", err)
		return
	}

	queueConfig := queue.QueueConfig{
		Name:              cfg.QueueName,
		ConsumerGroup:     cfg.QueueConsumerGroup,
		ConsumerName:      cfg.QueueConsumerName,
		MaxRetries:        cfg.QueueMaxRetries,
		VisibilityTimeout: cfg.QueueVisibilityTimeout,
		PollInterval:      cfg.QueuePollInterval,
		BatchSize:         cfg.QueueBatchSize,
		MaxLen:            cfg.QueueMaxLen,
		EnableDLQ:         cfg.QueueEnableDLQ,
	}
	notifyConfig := queueConfig
	notifyConfig.ConsumerName = cfg.QueueConsumerName + "-maintenance"
	notifier, err := queue.NewQueue(redisAdap, notifyConfig)
	if err != nil {
		logger.Error("failed to create queue", "error", err)
		return
	}

	jobRepo := repository.NewOutboxJobRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	reportRepo := repository.NewDeliveryReportRepository(db)
	threadRepo := repository.NewThreadRepository(db)

	sla := services.NewSLATracker(threadRepo, services.SLAConfig{
		FirstResponseWindow: cfg.SLAFirstResponseWindow,
		FollowUpWindow:      cfg.SLAFollowUpWindow,
	})
	delivery := processor.NewDeliveryProcessor(jobRepo, messageRepo, reportRepo, relay,
		processor.NewRelayLedger(redisAdap, 0),
		processor.DeliveryConfig{
			MaxAttempts:    cfg.WorkerMaxAttempts,
			RetryBaseDelay: cfg.WorkerRetryBaseDelay,
		})
	maintenance := processor.NewMaintenance(jobRepo, messageRepo, notifier, sla, processor.MaintenanceConfig{
		MaxAttempts:      cfg.WorkerMaxAttempts,
		RetryDelay:       cfg.WorkerRetryBaseDelay,
		StuckTimeout:     cfg.WorkerStuckTimeout,
		StaleQueuedAfter: cfg.WorkerStaleQueuedAfter,
		Batch:            cfg.WorkerMaintenanceBatch,
	})

	service := processor.NewProcessorService(redisAdap, delivery, maintenance, processor.ServiceConfig{
		Queue:             queueConfig,
		Consumers:         cfg.QueueConsumers,
		Workers:           cfg.WorkerPoolSize,
		ProcessingTimeout: cfg.WorkerProcessingTimeout,
		MaintenanceEvery:  cfg.WorkerMaintenanceEvery,
	})

	var hostname string
	hostname, err = os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	err = prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace)
	if err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}

	go func() {
		prom.ListenAndServer(cfg.AppDebugMetricsAddr, cfg.AppDebugMetricsURI)
	}()

	if err := service.Start(); err != nil {
		logger.Error("failed to start processor", "error", err)
		return
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, st := range relay.Stats() {
				logger.Info("provider stats", "name", st.Name, "state", st.State, "score", st.Score,
					"success_rate", st.SuccessRate, "p95_ms", st.P95LatencyMs)
			}
		case <-c:
			service.Stop()
			_ = notifier.Stop(5 * time.Second)
			_ = redis.Close("default")
			return
		}
	}
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
