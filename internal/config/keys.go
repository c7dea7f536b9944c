package config

import "os"

// APIKeySource represents where an API key comes from.
type APIKeySource string

const (
	KeySourceEnv    APIKeySource = "env"
	KeySourceConfig APIKeySource = "config"
	KeySourceNone   APIKeySource = "none"
)

// KeyStatus represents the status of an API key.
type KeyStatus struct {
	Name   string       `json:"name"`
	Source APIKeySource `json:"source"`
	IsSet  bool         `json:"is_set"`
	Masked string       `json:"masked,omitempty"` // e.g., "sk-...abc"
}

// CheckAPIKeys returns the status of all provider credentials. Providers
// with an unset key are skipped by enrichment rather than failing it.
func CheckAPIKeys(cfg *Config) []KeyStatus {
	return []KeyStatus{
		checkKey("LLM API Key", cfg.LLM.APIKey, "MARKETMIND_LLM_API_KEY"),
		checkKey("FRED API Key", cfg.Providers.FREDAPIKey, "MARKETMIND_PROVIDERS_FRED_API_KEY"),
		checkKey("Alpha Vantage API Key", cfg.Providers.AlphaVantageKey, "MARKETMIND_PROVIDERS_ALPHA_VANTAGE_API_KEY"),
		checkKey("FMP API Key", cfg.Providers.FMPAPIKey, "MARKETMIND_PROVIDERS_FMP_API_KEY"),
		checkKey("Polygon API Key", cfg.Providers.PolygonAPIKey, "MARKETMIND_PROVIDERS_POLYGON_API_KEY"),
		checkKey("Write API Key", cfg.API.WriteKey, "MARKETMIND_API_WRITE_KEY"),
	}
}

// checkKey checks if a key is set and where it came from.
func checkKey(name, value, envVar string) KeyStatus {
	status := KeyStatus{
		Name:  name,
		IsSet: value != "",
	}

	if value != "" {
		if os.Getenv(envVar) != "" {
			status.Source = KeySourceEnv
		} else {
			status.Source = KeySourceConfig
		}
		status.Masked = maskKey(value)
	} else {
		status.Source = KeySourceNone
	}

	return status
}

// maskKey masks an API key for display, showing only first 3 and last 3 chars.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:3] + "..." + key[len(key)-3:]
}
