package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "API_KEY", "CORS_ORIGINS", "MAX_UPLOAD_BYTES", "DEFAULT_DECK_NAME",
		"ORANGE_COLORS", "PURPLE_COLORS", "WORKER_COUNT", "MAX_QUEUE_SIZE", "JOB_TTL", "DATABASE_URL",
		"ANKICONNECT_URL", "ANKICONNECT_ENABLED"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	if cfg.Port != "8000" {
		t.Errorf("expected port 8000, got %q", cfg.Port)
	}
	if cfg.MaxUploadBytes != 20<<20 {
		t.Errorf("expected 20MB cap, got %d", cfg.MaxUploadBytes)
	}
	if cfg.DefaultDeckName != "My Deck" {
		t.Errorf("expected default deck name, got %q", cfg.DefaultDeckName)
	}
	if cfg.WorkerCount != 2 || cfg.MaxQueueSize != 50 || cfg.JobTTL != time.Hour {
		t.Errorf("unexpected pool settings %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Errorf("expected 2 default origins, got %v", cfg.CORSOrigins)
	}
	if level, ok := cfg.Palette().Lookup("#ff6600"); !ok || level != 1 {
		t.Errorf("expected reference orange in palette, got (%d, %v)", level, ok)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ORANGE_COLORS", " #00FF00, ,#0000ff")
	t.Setenv("PURPLE_COLORS", "#123456")
	t.Setenv("WORKER_COUNT", "-1")
	t.Setenv("JOB_TTL", "90s")
	t.Setenv("ANKICONNECT_ENABLED", "true")

	cfg := Load()
	if len(cfg.OrangeColors) != 2 {
		t.Errorf("expected 2 orange colors, got %v", cfg.OrangeColors)
	}
	if level, ok := cfg.Palette().Lookup("#00ff00"); !ok || level != 1 {
		t.Errorf("expected override color at level 1, got (%d, %v)", level, ok)
	}
	if level, ok := cfg.Palette().Lookup("#123456"); !ok || level != 2 {
		t.Errorf("expected override color at level 2, got (%d, %v)", level, ok)
	}
	if _, ok := cfg.Palette().Lookup("#ff6600"); ok {
		t.Error("expected reference orange to be replaced")
	}
	if cfg.WorkerCount != 2 {
		t.Errorf("expected invalid worker count to fall back to 2, got %d", cfg.WorkerCount)
	}
	if cfg.JobTTL != 90*time.Second {
		t.Errorf("expected 90s TTL, got %v", cfg.JobTTL)
	}
	if !cfg.AnkiConnectEnabled {
		t.Error("expected AnkiConnect to be enabled")
	}
}

func TestValidate(t *testing.T) {
	base := Config{OrangeColors: []string{"#ff6600"}}
	if err := base.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	empty := Config{}
	if err := empty.Validate(); err == nil {
		t.Error("expected error for empty palette")
	}

	badURL := base
	badURL.AnkiConnectEnabled = true
	badURL.AnkiConnectURL = "not a url"
	if err := badURL.Validate(); err == nil {
		t.Error("expected error for invalid AnkiConnect URL")
	}

	badDB := base
	badDB.DatabaseURL = "mysql://x"
	if err := badDB.Validate(); err == nil {
		t.Error("expected error for non-postgres database URL")
	}
}
