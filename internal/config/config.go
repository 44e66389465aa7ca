package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgallion1/notes2anki/internal/segment"
)

type Config struct {
	Port string

	// Auth: when set, /api/* (except health) requires a bearer token.
	APIKey string

	// Allowed CORS origins for the Docs add-on.
	CORSOrigins []string

	// Upload limits
	MaxUploadBytes int64

	// Deck output
	DefaultDeckName string

	// Heading palette
	OrangeColors []string
	PurpleColors []string

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Job state
	JobTTL time.Duration

	// Deck history (optional)
	DatabaseURL string

	// AnkiConnect push (optional)
	AnkiConnectURL     string
	AnkiConnectEnabled bool
}

const defaultMaxUpload = 20 << 20 // 20MB

var defaultCORSOrigins = []string{"https://docs.google.com", "https://script.google.com"}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8000"),

		APIKey: os.Getenv("API_KEY"),

		CORSOrigins: envList("CORS_ORIGINS", defaultCORSOrigins),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", defaultMaxUpload),

		DefaultDeckName: envOr("DEFAULT_DECK_NAME", "My Deck"),

		OrangeColors: envList("ORANGE_COLORS", segment.OrangeColors),
		PurpleColors: envList("PURPLE_COLORS", segment.PurpleColors),

		WorkerCount:  envInt("WORKER_COUNT", 2),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 50),

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		AnkiConnectURL:     envOr("ANKICONNECT_URL", "http://127.0.0.1:8765"),
		AnkiConnectEnabled: envBool("ANKICONNECT_ENABLED", false),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 50
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUpload
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}
	if strings.TrimSpace(cfg.DefaultDeckName) == "" {
		cfg.DefaultDeckName = "My Deck"
	}

	return cfg
}

// Palette builds the heading palette from the configured color lists.
func (c Config) Palette() segment.Palette {
	return segment.NewPalette(c.OrangeColors, c.PurpleColors)
}

func (c Config) Validate() error {
	if len(c.OrangeColors) == 0 && len(c.PurpleColors) == 0 {
		return fmt.Errorf("ORANGE_COLORS and PURPLE_COLORS cannot both be empty")
	}
	if c.AnkiConnectEnabled {
		u, err := url.Parse(c.AnkiConnectURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("ANKICONNECT_URL %q is not a valid URL", c.AnkiConnectURL)
		}
	}
	if c.DatabaseURL != "" && !strings.HasPrefix(c.DatabaseURL, "postgres://") && !strings.HasPrefix(c.DatabaseURL, "postgresql://") {
		return fmt.Errorf("DATABASE_URL must be a postgres:// URL")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envList splits a comma-separated variable, dropping empty items.
func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
