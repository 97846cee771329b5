package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nimasrn/support-inbox/internal/config"
	"github.com/nimasrn/support-inbox/internal/handlers"
	"github.com/nimasrn/support-inbox/internal/queue"
	"github.com/nimasrn/support-inbox/internal/repository"
	"github.com/nimasrn/support-inbox/internal/services"
	xhttp "github.com/nimasrn/support-inbox/pkg/http"
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
	if err := cfg.ValidateAPI(); err != nil {
		logger.Error("invalid config", "error", err)
		return
	}
	logger.Info("starting api", "version", version, "commit", commit, "date", date)

	opt := xhttp.DefaultServerOption
	opt.ReadBufferSize = cfg.HttpServerReadBufferSize
	opt.WriteBufferSize = cfg.HttpServerWriteBufferSize
	opt.ReadTimeout = cfg.HttpServerReadTimeout
	opt.WriteTimeout = cfg.HttpServerWriteTimeout
	s := xhttp.NewServer(opt)
	s.Use(xhttp.RecoverMiddleware)
	s.Use(xhttp.RequestIDMiddleware)
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.CompressMiddleware(6))
	s.Use(xhttp.TimeoutMiddleware(cfg.HttpRequestTimeout + time.Second))

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
		ClientName: "inbox-api",
		DB:         cfg.RedisDatabase,
		Username:   cfg.RedisUsername,
		Password:   cfg.RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	q, err := queue.NewQueue(redisAdap, queue.QueueConfig{
		Name:          cfg.QueueName,
		ConsumerGroup: cfg.QueueConsumerGroup,
		ConsumerName:  "api-publisher",
		MaxLen:        cfg.QueueMaxLen,
	})
	if err != nil {
		// jobs stay queued in the store and are picked up by maintenance
		logger.Error("failed creating queue, notifications disabled", "error", err)
	}

	var hostname string
	hostname, err = os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if err := prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace); err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}
	go prom.ListenAndServer(cfg.AppDebugMetricsAddr, cfg.AppDebugMetricsURI)

	contactRepo := repository.NewContactRepository(db)
	threadRepo := repository.NewThreadRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	jobRepo := repository.NewOutboxJobRepository(db)
	tagRepo := repository.NewTagRepository(db)
	ruleRepo := repository.NewRuleRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	heartbeatRepo := repository.NewHeartbeatRepository(db)
	noteRepo := repository.NewThreadNoteRepository(db)

	// services
	var notifier services.JobNotifier
	if q != nil {
		notifier = q
	}
	guard := services.NewIdempotencyGuard(messageRepo, jobRepo, redisAdap, cfg.IdempotencyCacheTTL)
	resolver := services.NewContactThreadResolver(contactRepo, threadRepo)
	sla := services.NewSLATracker(threadRepo, services.SLAConfig{
		FirstResponseWindow: cfg.SLAFirstResponseWindow,
		FollowUpWindow:      cfg.SLAFollowUpWindow,
	})
	publisher := services.NewOutboxPublisher(threadRepo, contactRepo, messageRepo, jobRepo, guard, sla, notifier)
	replyGuard := services.NewAutoReplyGuard(threadRepo, messageRepo, redisAdap)
	replier := services.NewAutoReplyService(replyGuard, templateRepo, contactRepo, publisher, cfg.AutoReplyDefaultCooldown)
	engine := services.NewRuleEngine(ruleRepo, threadRepo, tagRepo, replier, cfg.RulesCacheTTL)
	ingestor := services.NewWebhookIngestor(guard, resolver, messageRepo, sla, engine, heartbeatRepo)
	threadService := services.NewThreadService(threadRepo, contactRepo, tagRepo, messageRepo, noteRepo, sla)
	healthService := services.NewHealthService(db, redisAdap, heartbeatRepo)

	// v1 handlers
	timeout := cfg.HttpRequestTimeout
	g := s.Router.Group("/api/v1")
	handlers.RegisterWebhookRoutes(g, handlers.NewWebhookHandler(ingestor, cfg.WebhookSecret, timeout))
	handlers.RegisterMessageRoutes(g, handlers.NewMessageHandler(publisher, timeout))
	handlers.RegisterCronRoutes(g, handlers.NewCronHandler(sla, cfg.CronSecret, timeout))
	handlers.RegisterThreadRoutes(g, handlers.NewThreadHandler(threadService, timeout))
	handlers.RegisterHealthRoutes(g, handlers.NewHealthHandler(healthService, timeout))

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		var err = s.ListenAndServe(cfg.HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	<-c
	s.Shutdown()
	if q != nil {
		_ = q.Stop(5 * time.Second)
	}
	_ = redis.Close("default")
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
