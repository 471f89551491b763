package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	server "voice_review/internal/adapters/http_server"
	natsbus "voice_review/internal/adapters/nats"
	"voice_review/internal/adapters/observability"
	"voice_review/internal/app"
	"voice_review/internal/domain"
	"voice_review/internal/shared"
	"voice_review/internal/wiring"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel, "api")

	reg := observability.InitRegistry()
	metricsSrv := observability.Serve(cfg.MetricsAddr, reg)

	stores, err := wiring.OpenStores(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open stores failed")
	}
	defer stores.Close()

	// Inbound turns either go to NATS for the ingestor or run in-process.
	var inbound domain.Dispatcher
	if cfg.NatsURL != "" {
		bus, err := natsbus.Connect(ctx, cfg.NatsURL, cfg.NatsSubject)
		if err != nil {
			log.Fatal().Err(err).Msg("nats connect failed")
		}
		defer bus.Close()
		inbound = bus
		log.Info().Str("subject", cfg.NatsSubject).Msg("publishing inbound turns to nats")
	} else {
		ctrl, err := wiring.NewController(ctx, cfg, stores)
		if err != nil {
			log.Fatal().Err(err).Msg("controller init failed")
		}
		defer ctrl.Close()
		go ctrl.RunSweeper(ctx, cfg.SweepInterval)
		inbound = ctrl
		log.Info().Msg("processing inbound turns in-process")
	}

	q := app.NewQueryService(stores.Catalog, stores.VoiceNotes, stores.Cache, cfg.CacheTTL)

	// http
	srv := server.New(cfg.RequestTimeout)
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{Q: q, Inbound: inbound, AdminToken: cfg.AdminToken})

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		observability.Shutdown(shutdownCtx, metricsSrv)
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
	log.Info().Msg("API stopped")
}
