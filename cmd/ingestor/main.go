package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	natsbus "voice_review/internal/adapters/nats"
	"voice_review/internal/adapters/observability"
	"voice_review/internal/shared"
	"voice_review/internal/wiring"
)

// The ingestor consumes inbound turns from NATS and owns the session
// controller and reclamation sweep. Run a single instance: per-sender
// ordering is enforced in-process.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := shared.Load()

	// console in dev, JSON otherwise
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel, "ingestor")

	if cfg.NatsURL == "" {
		log.Fatal().Msg("NATS_URL is required for the ingestor")
	}

	log.Info().
		Str("subject", cfg.NatsSubject).
		Int("sweep_workers", cfg.SweepWorkers).
		Dur("sweep_interval", cfg.SweepInterval).
		Msg("ingestor starting")

	reg := observability.InitRegistry()
	metricsSrv := observability.Serve(cfg.MetricsAddr, reg)

	stores, err := wiring.OpenStores(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open stores failed")
	}
	defer stores.Close()

	ctrl, err := wiring.NewController(ctx, cfg, stores)
	if err != nil {
		log.Fatal().Err(err).Msg("controller init failed")
	}

	bus, err := natsbus.Connect(ctx, cfg.NatsURL, cfg.NatsSubject)
	if err != nil {
		log.Fatal().Err(err).Msg("nats connect failed")
	}
	if err := bus.Consume(ctrl); err != nil {
		log.Fatal().Err(err).Msg("nats subscribe failed")
	}

	ctrl.RunSweeper(ctx, cfg.SweepInterval)

	// stop intake first, then drain in-flight turns and timers
	bus.Close()
	ctrl.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	observability.Shutdown(shutdownCtx, metricsSrv)
	log.Info().Msg("ingestor stopped")
}
