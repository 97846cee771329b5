package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type bridgeConfig struct {
	Port         string        `env:"PORT,default=8081"`
	Token        string        `env:"BRIDGE_TOKEN"`
	DeliveryRate float64       `env:"DELIVERY_RATE,default=1"`
	OutageRate   float64       `env:"OUTAGE_RATE,default=0"`
	MinDelay     time.Duration `env:"MIN_DELAY,default=50ms"`
	MaxDelay     time.Duration `env:"MAX_DELAY,default=500ms"`
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	var cfg bridgeConfig
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid bridge config")
	}
	log.Info().
		Str("port", cfg.Port).
		Bool("auth", cfg.Token != "").
		Float64("delivery_rate", cfg.DeliveryRate).
		Float64("outage_rate", cfg.OutageRate).
		Dur("min_delay", cfg.MinDelay).
		Dur("max_delay", cfg.MaxDelay).
		Msg("starting provider bridge")

	bridge := NewBridge(cfg.DeliveryRate, cfg.OutageRate, cfg.MinDelay, cfg.MaxDelay)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      SetupRouter(NewHandler(bridge, cfg.Token)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  time.Minute,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("bridge stopped")
		}
		return
	case <-quit:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("bridge shutdown")
	}
}
