package shared

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv         string
	LogLevel       string
	HTTPAddr       string
	RequestTimeout time.Duration
	MetricsAddr    string
	MySQLDSN       string
	RedisAddr      string
	RedisDB        int
	RedisPass      string
	CacheTTL       time.Duration
	AdminToken     string

	GeminiKey   string
	GeminiModel string
	GeminiRPS   int

	VonageBase     string
	VonageAppID    string
	VonageKeyPath  string
	VonageSender   string
	VonageChannel  string
	VonageRPS      int
	NatsURL        string
	NatsSubject    string
	ApprovalWindow time.Duration
	SessionTimeout time.Duration
	SweepInterval  time.Duration
	SweepWorkers   int
	LocationDelay  time.Duration
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	c := Config{
		AppEnv:         env("APP_ENV", "prod"),
		LogLevel:       env("LOG_LEVEL", "info"),
		HTTPAddr:       env("HTTP_ADDR", ":8080"),
		RequestTimeout: time.Duration(atoi("REQUEST_TIMEOUT_SECONDS", 15)) * time.Second,
		MetricsAddr:    env("METRICS_ADDR", ""),
		MySQLDSN:       env("MYSQL_DSN", ""),
		RedisAddr:      env("REDIS_ADDR", ""),
		RedisPass:      env("REDIS_PASSWORD", ""),
		RedisDB:        atoi("REDIS_DB", 0),
		CacheTTL:       time.Duration(atoi("CACHE_TTL_SECONDS", 60)) * time.Second,
		AdminToken:     env("ADMIN_TOKEN", ""),

		GeminiKey:   env("GEMINI_API_KEY", ""),
		GeminiModel: env("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiRPS:   atoi("GEMINI_RPS", 5),

		VonageBase:    env("VONAGE_BASE_URL", "https://api.nexmo.com"),
		VonageAppID:   env("VONAGE_APP_ID", ""),
		VonageKeyPath: env("VONAGE_PRIVATE_KEY_PATH", ""),
		VonageSender:  env("VONAGE_SENDER", ""),
		VonageChannel: env("VONAGE_CHANNEL", "whatsapp"),
		VonageRPS:     atoi("VONAGE_RPS", 10),

		NatsURL:     env("NATS_URL", ""),
		NatsSubject: env("NATS_SUBJECT", "reviews.inbound"),

		ApprovalWindow: time.Duration(atoi("APPROVAL_WINDOW_MS", 15000)) * time.Millisecond,
		SessionTimeout: time.Duration(atoi("SESSION_TIMEOUT_SECONDS", 300)) * time.Second,
		SweepInterval:  time.Duration(atoi("SWEEP_INTERVAL_SECONDS", 120)) * time.Second,
		SweepWorkers:   atoi("SWEEP_WORKERS", 4),
		LocationDelay:  time.Duration(atoi("LOCATION_DELAY_MS", 1500)) * time.Millisecond,
	}
	if c.GeminiKey == "" {
		log.Warn().Msg("GEMINI_API_KEY is empty")
	}
	if c.VonageAppID == "" || c.VonageKeyPath == "" {
		log.Warn().Msg("VONAGE_APP_ID or VONAGE_PRIVATE_KEY_PATH is empty")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
