package config

import (
	"os"
	"path/filepath"
	"testing"
)

// ── Load / Defaults ──

func TestLoadReturnsDefaults(t *testing.T) {
	envVars := []string{
		"MARKETMIND_LLM_API_KEY", "MARKETMIND_API_WRITE_KEY",
		"MARKETMIND_PROVIDERS_FRED_API_KEY", "MARKETMIND_PROVIDERS_FMP_API_KEY",
		"MARKETMIND_PROVIDERS_ALPHA_VANTAGE_API_KEY", "MARKETMIND_PROVIDERS_POLYGON_API_KEY",
		"MARKETMIND_DATABASE_PASSWORD",
	}
	for _, e := range envVars {
		os.Unsetenv(e)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.LLM.Provider != "ollama" {
		t.Errorf("LLM.Provider: got %q, want %q", cfg.LLM.Provider, "ollama")
	}
	if cfg.LLM.MaxConcurrent != 2 {
		t.Errorf("LLM.MaxConcurrent: got %d, want 2", cfg.LLM.MaxConcurrent)
	}
	if cfg.LLM.CacheTTLSeconds != 900 {
		t.Errorf("LLM.CacheTTLSeconds: got %d, want 900", cfg.LLM.CacheTTLSeconds)
	}
	if cfg.Embedding.VectorSize != 768 {
		t.Errorf("Embedding.VectorSize: got %d, want 768", cfg.Embedding.VectorSize)
	}
	if cfg.Ingest.MinIntervalSeconds != 60 {
		t.Errorf("Ingest.MinIntervalSeconds: got %d, want 60", cfg.Ingest.MinIntervalSeconds)
	}
	if !cfg.Ingest.RequireRobots {
		t.Error("Ingest.RequireRobots: want true by default")
	}
	if cfg.Ingest.DenyOnRobotsError {
		t.Error("Ingest.DenyOnRobotsError: want false by default")
	}
	if cfg.Retention.InsightsDays != 90 {
		t.Errorf("Retention.InsightsDays: got %d, want 90", cfg.Retention.InsightsDays)
	}
	if cfg.Retention.AuditDays != 365 {
		t.Errorf("Retention.AuditDays: got %d, want 365", cfg.Retention.AuditDays)
	}
	if cfg.Pipeline.TimeoutSeconds != 600 {
		t.Errorf("Pipeline.TimeoutSeconds: got %d, want 600", cfg.Pipeline.TimeoutSeconds)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("API.Port: got %d, want 8080", cfg.API.Port)
	}
}

func TestEnvOverrides(t *testing.T) {
	os.Setenv("MARKETMIND_PROVIDERS_FMP_API_KEY", "fmp-test-key")
	os.Setenv("MARKETMIND_LLM_API_KEY", "sk-test-1234567890")
	defer os.Unsetenv("MARKETMIND_PROVIDERS_FMP_API_KEY")
	defer os.Unsetenv("MARKETMIND_LLM_API_KEY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Providers.FMPAPIKey != "fmp-test-key" {
		t.Errorf("Providers.FMPAPIKey: got %q", cfg.Providers.FMPAPIKey)
	}
	if cfg.LLM.APIKey != "sk-test-1234567890" {
		t.Errorf("LLM.APIKey: got %q", cfg.LLM.APIKey)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
database:
  host: db.internal
  port: 5433
llm:
  provider: anthropic
  cloud_model: claude-sonnet
pipeline:
  timeout_seconds: 120
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error: %v", err)
	}
	if cfg.Database.Host != "db.internal" {
		t.Errorf("Database.Host: got %q", cfg.Database.Host)
	}
	if cfg.Database.Port != 5433 {
		t.Errorf("Database.Port: got %d", cfg.Database.Port)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("LLM.Provider: got %q", cfg.LLM.Provider)
	}
	if !cfg.LLM.IsCloud() {
		t.Error("IsCloud: anthropic should be cloud")
	}
	if cfg.Pipeline.TimeoutSeconds != 120 {
		t.Errorf("Pipeline.TimeoutSeconds: got %d", cfg.Pipeline.TimeoutSeconds)
	}
	// File values should not disturb untouched defaults.
	if cfg.Embedding.VectorSize != 768 {
		t.Errorf("Embedding.VectorSize: got %d, want 768", cfg.Embedding.VectorSize)
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "h", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	want := "postgres://u:p@h:5432/n?sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("DSN: got %q, want %q", got, want)
	}
}

// ── Key status ──

func TestCheckAPIKeys(t *testing.T) {
	os.Unsetenv("MARKETMIND_PROVIDERS_FMP_API_KEY")
	cfg := &Config{}
	cfg.Providers.FMPAPIKey = "abcdef0123456789"

	statuses := CheckAPIKeys(cfg)
	var fmp *KeyStatus
	for i := range statuses {
		if statuses[i].Name == "FMP API Key" {
			fmp = &statuses[i]
		}
	}
	if fmp == nil {
		t.Fatal("FMP key status missing")
	}
	if !fmp.IsSet || fmp.Source != KeySourceConfig {
		t.Errorf("FMP status: %+v", *fmp)
	}
	if fmp.Masked != "abc...789" {
		t.Errorf("Masked: got %q", fmp.Masked)
	}
}

func TestMaskKeyShort(t *testing.T) {
	if got := maskKey("short"); got != "***" {
		t.Errorf("maskKey short: got %q", got)
	}
}
