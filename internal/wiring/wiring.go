// Package wiring builds the stores and collaborators shared by the binaries.
package wiring

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"voice_review/internal/adapters/gemini"
	"voice_review/internal/adapters/observability"
	redisad "voice_review/internal/adapters/redis"
	"voice_review/internal/adapters/vonage"
	"voice_review/internal/app"
	"voice_review/internal/domain"
	"voice_review/internal/shared"
	"voice_review/internal/storage/memory"
	mysqlrepo "voice_review/internal/storage/mysql"
)

// Stores holds the state backends picked from config: MySQL and Redis when
// configured, process memory otherwise.
type Stores struct {
	Sessions   domain.SessionStore
	Catalog    domain.VenueCatalog
	VoiceNotes domain.VoiceNoteLog
	Cache      domain.Cache // nil without Redis

	closers []func() error
}

func (s *Stores) Close() {
	for _, c := range s.closers {
		if err := c(); err != nil {
			log.Warn().Err(err).Msg("close store")
		}
	}
}

func OpenStores(ctx context.Context, cfg shared.Config) (*Stores, error) {
	st := &Stores{VoiceNotes: memory.NewVoiceNotes()}

	if cfg.MySQLDSN != "" {
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, fmt.Errorf("sql.Open: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("db.Ping: %w", err)
		}
		log.Info().Msg("database connection ok")
		st.Catalog = mysqlrepo.New(db)
		st.closers = append(st.closers, db.Close)
	} else {
		log.Warn().Msg("MYSQL_DSN is empty, using in-memory venue catalog")
		st.Catalog = memory.NewCatalog()
	}

	if cfg.RedisAddr != "" {
		rc, err := redisad.Open(ctx, cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		log.Info().Str("addr", cfg.RedisAddr).Msg("redis connection ok")
		st.Sessions = redisad.NewSessions(rc, 0)
		st.Cache = redisad.NewCache(rc)
		st.VoiceNotes = redisad.NewVoiceNotes(rc)
		st.closers = append(st.closers, rc.Close)
	} else {
		log.Warn().Msg("REDIS_ADDR is empty, using in-memory sessions without cache")
		st.Sessions = memory.NewSessions()
	}
	return st, nil
}

// NewController builds the session controller with Gemini collaborators and
// the Vonage messenger. Without Vonage credentials outbound messages are
// only logged.
func NewController(ctx context.Context, cfg shared.Config, st *Stores) (*app.Controller, error) {
	var (
		messenger domain.Messenger = logMessenger{}
		media     gemini.MediaFetcher
	)
	if cfg.VonageAppID != "" && cfg.VonageKeyPath != "" {
		pem, err := os.ReadFile(cfg.VonageKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read vonage private key: %w", err)
		}
		vc, err := vonage.New(vonage.Config{
			Base:          cfg.VonageBase,
			ApplicationID: cfg.VonageAppID,
			PrivateKeyPEM: pem,
			From:          cfg.VonageSender,
			Channel:       cfg.VonageChannel,
			RPS:           cfg.VonageRPS,
		})
		if err != nil {
			return nil, err
		}
		messenger, media = vc, vc
	}

	gc, err := gemini.New(ctx, cfg.GeminiKey, cfg.GeminiModel, cfg.GeminiRPS, media)
	if err != nil {
		return nil, err
	}

	return app.NewController(app.Deps{
		Sessions:    st.Sessions,
		Catalog:     st.Catalog,
		Cache:       st.Cache,
		VoiceNotes:  st.VoiceNotes,
		Transcriber: gc,
		Extractor:   gc,
		Synthesizer: gc,
		Verifier:    gc,
		Messenger:   messenger,
	}, app.Options{
		ApprovalWindow: cfg.ApprovalWindow,
		SessionTimeout: cfg.SessionTimeout,
		LocationDelay:  cfg.LocationDelay,
		SweepWorkers:   cfg.SweepWorkers,
	}), nil
}

// logMessenger stands in for Vonage when no credentials are configured.
// Message bodies are only logged at debug level.
type logMessenger struct{}

func (logMessenger) SendMessage(_ context.Context, to, text string) error {
	masked := observability.MaskSender(to)
	log.Info().Str("to", masked).Int("length", len(text)).Msg("outbound message (not sent)")
	log.Debug().Str("to", masked).Str("text", text).Msg("outbound message body")
	return nil
}

func (logMessenger) SendLocation(_ context.Context, to string, pin domain.LocationPin) error {
	log.Info().Str("to", observability.MaskSender(to)).Str("venue", pin.Name).Msg("outbound location (not sent)")
	return nil
}
