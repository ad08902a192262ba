package config

import "testing"

type mapEnv map[string]string

func (m mapEnv) Getenv(key string) string { return m[key] }

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv(mapEnv{"MASTER_SECRET": "x"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Port != 3000 {
		t.Fatalf("expected default port 3000, got %d", cfg.Port)
	}
	if cfg.GinMode != "release" {
		t.Fatalf("expected default gin mode release, got %q", cfg.GinMode)
	}
	if cfg.HackerDailyLimit != 20 {
		t.Fatalf("expected default daily limit 20, got %d", cfg.HackerDailyLimit)
	}
}

func TestLoadConfigFromEnv_MissingSecret(t *testing.T) {
	_, err := LoadConfigFromEnv(mapEnv{})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoadConfigFromEnv_MissingGeminiKeyIsAllowed(t *testing.T) {
	cfg, err := LoadConfigFromEnv(mapEnv{"MASTER_SECRET": "x"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.GeminiAPIKey != "" {
		t.Fatalf("expected empty gemini key, got %q", cfg.GeminiAPIKey)
	}
}

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	cfg, err := LoadConfigFromEnv(mapEnv{
		"MASTER_SECRET":      "x",
		"PORT":               "1234",
		"HACKER_DAILY_LIMIT": "5",
		"STATE_FILE":         "/tmp/state.json",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Port != 1234 {
		t.Fatalf("expected port 1234, got %d", cfg.Port)
	}
	if cfg.HackerDailyLimit != 5 {
		t.Fatalf("expected daily limit 5, got %d", cfg.HackerDailyLimit)
	}
	if cfg.StateFile != "/tmp/state.json" {
		t.Fatalf("unexpected state file %q", cfg.StateFile)
	}
}

func TestLoadConfigFromEnv_InvalidDailyLimit(t *testing.T) {
	_, err := LoadConfigFromEnv(mapEnv{"MASTER_SECRET": "x", "HACKER_DAILY_LIMIT": "0"})
	if err == nil {
		t.Fatalf("expected error")
	}
}
