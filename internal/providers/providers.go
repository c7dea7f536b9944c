// Package providers implements the concrete external data providers used
// by enrichment: regulatory filings (SEC EDGAR), fundamentals (FMP, Alpha
// Vantage, Polygon), macroeconomic series (FRED), social signals (Reddit,
// FINRA short interest, Cboe options), scraped analyst data (Finviz) and
// web discovery (DuckDuckGo). Each provider writes straight to the store
// and reports what it did through provider.ProviderResult entries.
package providers

import (
	"context"
	"strconv"
	"strings"

	"github.com/fahimulhaque/MarketMind/internal/config"
	"github.com/fahimulhaque/MarketMind/internal/provider"
	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// Store is the slice of the persistence layer providers write through.
type Store interface {
	UpsertFinancialPeriod(ctx context.Context, p models.FinancialPeriod) error
	UpsertMacro(ctx context.Context, m models.MacroObservation) error
	UpsertSocialSignal(ctx context.Context, sig models.SocialSignal) error
	UpsertFiling(ctx context.Context, f models.EntityFiling) error
	AddSource(ctx context.Context, name, url, connectorType string) (models.Source, error)
}

// BuildAll constructs every provider in stable dispatch order. Providers
// without credentials are still returned; the dispatcher skips them via
// IsConfigured.
func BuildAll(cfg config.ProvidersConfig, st Store) []provider.Provider {
	return []provider.Provider{
		NewSEC(st, cfg.SECUserAgent),
		NewFMP(st, cfg.FMPAPIKey),
		NewAlphaVantage(st, cfg.AlphaVantageKey),
		NewPolygon(st, cfg.PolygonAPIKey),
		NewFRED(st, cfg.FREDAPIKey),
		NewReddit(st),
		NewFinviz(st),
		NewFINRA(st),
		NewCboe(st),
		NewDuckDuckGo(st),
	}
}

// parseNumber converts the string-or-number JSON values the fundamentals
// APIs emit. Returns nil for "None", empty, or unparseable values.
func parseNumber(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "None" || raw == "-" || raw == "N/A" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
	if err != nil {
		return nil
	}
	return &v
}

// clampSentiment keeps aggregate sentiment in [-1, 1].
func clampSentiment(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
