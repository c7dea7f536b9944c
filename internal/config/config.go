// Package config handles configuration loading for MarketMind.
// It supports YAML config files with environment variable overrides and
// an optional local .env file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"  yaml:"database"`
	API       APIConfig       `mapstructure:"api"       yaml:"api"`
	LLM       LLMConfig       `mapstructure:"llm"       yaml:"llm"`
	Embedding EmbeddingConfig `mapstructure:"embedding" yaml:"embedding"`
	Ingest    IngestConfig    `mapstructure:"ingest"    yaml:"ingest"`
	Providers ProvidersConfig `mapstructure:"providers" yaml:"providers"`
	Retention RetentionConfig `mapstructure:"retention" yaml:"retention"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"  yaml:"pipeline"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"     yaml:"host"`
	Port     int    `mapstructure:"port"     yaml:"port"`
	User     string `mapstructure:"user"     yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	Name     string `mapstructure:"name"     yaml:"name"`
	SSLMode  string `mapstructure:"sslmode"  yaml:"sslmode"`
	MaxConns int    `mapstructure:"max_conns" yaml:"max_conns"`
}

// DSN returns the pgx connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
	WriteKey    string   `mapstructure:"write_key"    yaml:"write_key"`
}

// LLMConfig holds generation backend configuration.
type LLMConfig struct {
	Provider        string  `mapstructure:"provider"          yaml:"provider"` // "ollama", "openai", "gemini", "anthropic"
	APIKey          string  `mapstructure:"api_key"           yaml:"api_key"`
	BaseURL         string  `mapstructure:"base_url"          yaml:"base_url"`
	Model           string  `mapstructure:"model"             yaml:"model"`
	CloudModel      string  `mapstructure:"cloud_model"       yaml:"cloud_model"`
	OllamaHost      string  `mapstructure:"ollama_host"       yaml:"ollama_host"`
	MaxConcurrent   int     `mapstructure:"max_concurrent"    yaml:"max_concurrent"`
	RequestTimeout  int     `mapstructure:"request_timeout"   yaml:"request_timeout"` // seconds
	CacheTTLSeconds int     `mapstructure:"cache_ttl_seconds" yaml:"cache_ttl_seconds"`
	Temperature     float64 `mapstructure:"temperature"       yaml:"temperature"`
	MaxTokens       int     `mapstructure:"max_tokens"        yaml:"max_tokens"`
}

// IsCloud reports whether the configured backend is a rate-limited cloud
// API rather than a local model server.
func (l LLMConfig) IsCloud() bool {
	switch l.Provider {
	case "openai", "gemini", "anthropic":
		return true
	}
	return false
}

// EmbeddingConfig holds embedding service settings.
type EmbeddingConfig struct {
	Model      string `mapstructure:"model"       yaml:"model"`
	VectorSize int    `mapstructure:"vector_size" yaml:"vector_size"`
}

// IngestConfig holds ingestion worker settings.
type IngestConfig struct {
	MinIntervalSeconds int      `mapstructure:"min_interval_seconds"  yaml:"min_interval_seconds"`
	UserAgent          string   `mapstructure:"user_agent"            yaml:"user_agent"`
	AllowedDomains     []string `mapstructure:"allowed_domains"       yaml:"allowed_domains"`
	RequireRobots      bool     `mapstructure:"require_robots"        yaml:"require_robots"`
	DenyOnRobotsError  bool     `mapstructure:"deny_on_robots_error"  yaml:"deny_on_robots_error"`
	WorkerConcurrency  int      `mapstructure:"worker_concurrency"    yaml:"worker_concurrency"`
}

// MinInterval returns the per-source throttle window.
func (i IngestConfig) MinInterval() time.Duration {
	return time.Duration(i.MinIntervalSeconds) * time.Second
}

// ProvidersConfig holds one credential per external data provider.
type ProvidersConfig struct {
	SECUserAgent    string `mapstructure:"sec_user_agent"        yaml:"sec_user_agent"`
	FREDAPIKey      string `mapstructure:"fred_api_key"          yaml:"fred_api_key"`
	AlphaVantageKey string `mapstructure:"alpha_vantage_api_key" yaml:"alpha_vantage_api_key"`
	FMPAPIKey       string `mapstructure:"fmp_api_key"           yaml:"fmp_api_key"`
	PolygonAPIKey   string `mapstructure:"polygon_api_key"       yaml:"polygon_api_key"`
}

// RetentionConfig holds data retention windows in days.
type RetentionConfig struct {
	InsightsDays  int `mapstructure:"insights_days"  yaml:"insights_days"`
	SnapshotsDays int `mapstructure:"snapshots_days" yaml:"snapshots_days"`
	ReportsDays   int `mapstructure:"reports_days"   yaml:"reports_days"`
	SearchDays    int `mapstructure:"search_days"    yaml:"search_days"`
	AuditDays     int `mapstructure:"audit_days"     yaml:"audit_days"`
}

// PipelineConfig holds query pipeline settings.
type PipelineConfig struct {
	TimeoutSeconds  int `mapstructure:"timeout_seconds"   yaml:"timeout_seconds"`
	MinEvidence     int `mapstructure:"min_evidence"      yaml:"min_evidence"`
	StaleAfterHours int `mapstructure:"stale_after_hours" yaml:"stale_after_hours"`
}

// Timeout returns the per-query deadline.
func (p PipelineConfig) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 600 * time.Second
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.marketmind/config.yaml (home directory)
//  3. /etc/marketmind/config.yaml (system)
//
// A local .env file is loaded first so container setups can keep secrets
// out of the YAML. Environment variables override config file values.
// Format: MARKETMIND_<SECTION>_<KEY>, e.g., MARKETMIND_PROVIDERS_FMP_API_KEY
func Load() (*Config, error) {
	_ = godotenv.Load() // best-effort; absent .env is fine

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".marketmind"))
	v.AddConfigPath("/etc/marketmind")

	v.SetEnvPrefix("MARKETMIND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found — that's fine, use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)
	return &cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("MARKETMIND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "marketmind")
	v.SetDefault("database.password", "marketmind")
	v.SetDefault("database.name", "marketmind")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})

	// LLM defaults
	v.SetDefault("llm.provider", "ollama")
	v.SetDefault("llm.ollama_host", "http://localhost:11434")
	v.SetDefault("llm.model", "llama3.1")
	v.SetDefault("llm.max_concurrent", 2)
	v.SetDefault("llm.request_timeout", 120)
	v.SetDefault("llm.cache_ttl_seconds", 900)
	v.SetDefault("llm.temperature", 0.25)
	v.SetDefault("llm.max_tokens", 512)

	// Embedding defaults
	v.SetDefault("embedding.model", "nomic-embed-text")
	v.SetDefault("embedding.vector_size", 768)

	// Ingestion defaults
	v.SetDefault("ingest.min_interval_seconds", 60)
	v.SetDefault("ingest.user_agent", "MarketMind/1.0 (market intelligence platform)")
	v.SetDefault("ingest.require_robots", true)
	v.SetDefault("ingest.deny_on_robots_error", false)
	v.SetDefault("ingest.worker_concurrency", 4)

	// Retention defaults (days)
	v.SetDefault("retention.insights_days", 90)
	v.SetDefault("retention.snapshots_days", 90)
	v.SetDefault("retention.reports_days", 180)
	v.SetDefault("retention.search_days", 60)
	v.SetDefault("retention.audit_days", 365)

	// Pipeline defaults
	v.SetDefault("pipeline.timeout_seconds", 600)
	v.SetDefault("pipeline.min_evidence", 3)
	v.SetDefault("pipeline.stale_after_hours", 18)
}

// overrideFromEnv explicitly reads sensitive keys from environment variables.
func overrideFromEnv(cfg *Config) {
	if key := os.Getenv("MARKETMIND_LLM_API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	}
	if key := os.Getenv("MARKETMIND_API_WRITE_KEY"); key != "" {
		cfg.API.WriteKey = key
	}
	if key := os.Getenv("MARKETMIND_PROVIDERS_FRED_API_KEY"); key != "" {
		cfg.Providers.FREDAPIKey = key
	}
	if key := os.Getenv("MARKETMIND_PROVIDERS_ALPHA_VANTAGE_API_KEY"); key != "" {
		cfg.Providers.AlphaVantageKey = key
	}
	if key := os.Getenv("MARKETMIND_PROVIDERS_FMP_API_KEY"); key != "" {
		cfg.Providers.FMPAPIKey = key
	}
	if key := os.Getenv("MARKETMIND_PROVIDERS_POLYGON_API_KEY"); key != "" {
		cfg.Providers.PolygonAPIKey = key
	}
	if key := os.Getenv("MARKETMIND_DATABASE_PASSWORD"); key != "" {
		cfg.Database.Password = key
	}
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
