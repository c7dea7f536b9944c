package enrich

import (
	"context"
	"fmt"
	"log"

	"github.com/fahimulhaque/MarketMind/internal/infra"
	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// QuoteSource is the exchange-API surface for real-time snapshots.
type QuoteSource interface {
	FetchQuote(ctx context.Context, symbol string) (models.FinancialSnapshot, error)
	FetchChart(ctx context.Context, symbol string) (models.FinancialSnapshot, error)
}

// GapFiller fills snapshot fields the exchange API left unset.
type GapFiller interface {
	FillGaps(ctx context.Context, snap *models.FinancialSnapshot) error
}

// BuildSnapshot runs the fallback chain: quote API, then chart API, then
// optional gap-fill for fields still unset. A nil return means no price
// source responded at all.
func BuildSnapshot(ctx context.Context, quotes QuoteSource, filler GapFiller, symbol string) *models.FinancialSnapshot {
	snap, err := quotes.FetchQuote(ctx, symbol)
	if err != nil {
		log.Printf("enrich: quote for %s failed, trying chart: %v", symbol, err)
		snap, err = quotes.FetchChart(ctx, symbol)
		if err != nil {
			log.Printf("enrich: chart for %s failed: %v", symbol, err)
			return nil
		}
	}

	if filler != nil {
		if err := filler.FillGaps(ctx, &snap); err != nil {
			log.Printf("enrich: gap-fill for %s: %v", symbol, err)
		}
	}

	normalizeSnapshot(&snap)
	snap.Warnings = validateSnapshot(snap)
	return &snap
}

// normalizeSnapshot fixes unit mismatches between providers. FMP reports
// debt-to-equity as a ratio while some sources report percent; values
// above 5 are treated as percent.
func normalizeSnapshot(snap *models.FinancialSnapshot) {
	if snap.DebtToEquity != nil && *snap.DebtToEquity > 5 {
		snap.DebtToEquity = models.Float(*snap.DebtToEquity / 100)
	}
}

// validateSnapshot raises informational warnings on implausible numbers.
func validateSnapshot(snap models.FinancialSnapshot) []string {
	var warnings []string
	check := func(label string, v *float64) {
		if v == nil {
			return
		}
		if *v > 5.0 {
			warnings = append(warnings, fmt.Sprintf("%s above +500%%, verify data", label))
		}
		if *v < -0.9 {
			warnings = append(warnings, fmt.Sprintf("%s below -90%%, verify data", label))
		}
	}
	check("revenue_growth", snap.RevenueGrowth)
	check("earnings_growth", snap.EarningsGrowth)
	if snap.OperatingMargin != nil && snap.GrossMargin != nil && *snap.OperatingMargin > *snap.GrossMargin {
		warnings = append(warnings, "operating_margin exceeds gross_margin, verify data")
	}
	return warnings
}

// FMPGapFiller pulls profile and trailing ratios from Financial Modeling
// Prep and fills only fields the snapshot is missing.
type FMPGapFiller struct {
	apiKey  string
	baseURL string
}

// NewFMPGapFiller creates a gap filler; returns nil when no key is set so
// callers can pass it straight to BuildSnapshot.
func NewFMPGapFiller(apiKey string) *FMPGapFiller {
	if apiKey == "" {
		return nil
	}
	return &FMPGapFiller{apiKey: apiKey, baseURL: "https://financialmodelingprep.com/api/v3"}
}

type fmpProfile struct {
	Price  float64 `json:"price"`
	MktCap float64 `json:"mktCap"`
	Range  string  `json:"range"`
}

type fmpSnapshotRatios struct {
	PERatioTTM            float64 `json:"peRatioTTM"`
	GrossProfitMarginTTM  float64 `json:"grossProfitMarginTTM"`
	OperatingMarginTTM    float64 `json:"operatingProfitMarginTTM"`
	NetProfitMarginTTM    float64 `json:"netProfitMarginTTM"`
	DebtEquityRatioTTM    float64 `json:"debtEquityRatioTTM"`
}

// FillGaps sets unset snapshot fields from FMP and tags the source.
func (f *FMPGapFiller) FillGaps(ctx context.Context, snap *models.FinancialSnapshot) error {
	filled := false
	set := func(dst **float64, v float64) {
		if *dst == nil && v != 0 {
			*dst = models.Float(v)
			filled = true
		}
	}

	var profiles []fmpProfile
	profileURL := infra.BuildURL(f.baseURL+"/profile/"+snap.Symbol, map[string]string{"apikey": f.apiKey})
	if err := infra.GetJSON(ctx, profileURL, nil, &profiles); err != nil {
		return fmt.Errorf("fmp profile: %w", err)
	}
	if len(profiles) > 0 {
		set(&snap.Price, profiles[0].Price)
		set(&snap.MarketCap, profiles[0].MktCap)
		if snap.FiftyTwoWeekRange == "" && profiles[0].Range != "" {
			snap.FiftyTwoWeekRange = profiles[0].Range
			filled = true
		}
	}

	var ratios []fmpSnapshotRatios
	ratiosURL := infra.BuildURL(f.baseURL+"/ratios-ttm/"+snap.Symbol, map[string]string{"apikey": f.apiKey})
	if err := infra.GetJSON(ctx, ratiosURL, nil, &ratios); err != nil {
		return fmt.Errorf("fmp ratios: %w", err)
	}
	if len(ratios) > 0 {
		r := ratios[0]
		set(&snap.TrailingPE, r.PERatioTTM)
		set(&snap.GrossMargin, r.GrossProfitMarginTTM)
		set(&snap.OperatingMargin, r.OperatingMarginTTM)
		set(&snap.ProfitMargin, r.NetProfitMarginTTM)
		set(&snap.DebtToEquity, r.DebtEquityRatioTTM)
	}

	if filled {
		snap.Source += "+fmp"
	}
	return nil
}
