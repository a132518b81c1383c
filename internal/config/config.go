package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; only DATABASE_URL is required.
// Channel pacing rules live in a separate YAML file (see rules.go) so they
// can be hot-reloaded without a restart.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Database
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// Scheduler
	TickInterval time.Duration
	MaxRetries   int

	// Channel adapters
	AdapterTimeout time.Duration
	WebhookBaseURL string
	WebhookRate    int // outbound requests/sec against the webhook endpoint
	TelegramToken  string
	TelegramChatID int64

	// Channel rules file
	RulesFile string

	// Batch generation
	BatchSlots   []string // "HH:MM" slot times, one batch per slot per day
	BatchGenSpec string   // cron spec for the daily generator
}

func Load() (*Config, error) {
	// A missing .env file is fine; real env vars win either way.
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DatabaseURL: dbURL,
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 25)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 5)),

		TickInterval: getDuration("TICK_INTERVAL", 60*time.Second),
		MaxRetries:   getInt("MAX_RETRIES", 3),

		AdapterTimeout: getDuration("ADAPTER_TIMEOUT", 15*time.Second),
		WebhookBaseURL: getEnv("WEBHOOK_BASE_URL", ""),
		WebhookRate:    getInt("WEBHOOK_RATE", 5),
		TelegramToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID: getInt64("TELEGRAM_CHAT_ID", 0),

		RulesFile: getEnv("CHANNEL_RULES_FILE", "channel_rules.yaml"),

		BatchSlots:   getList("BATCH_SLOTS", []string{"08:00", "11:00", "14:00", "18:00", "22:00"}),
		BatchGenSpec: getEnv("BATCH_GEN_SPEC", "5 0 * * *"),
	}, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getInt64(key string, defaultVal int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
