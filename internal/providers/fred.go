package providers

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/fahimulhaque/MarketMind/internal/infra"
	"github.com/fahimulhaque/MarketMind/internal/provider"
	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// FRED pulls the core macroeconomic series set from the St. Louis Fed.
// Macro data is entity-independent: repeated enrichments for different
// tickers refresh the same series, so rows upsert by (series, date).
type FRED struct {
	store   Store
	apiKey  string
	baseURL string
	now     func() time.Time
}

// macroSeries is the fixed series set every report's macro context reads.
var macroSeries = []struct {
	ID   string
	Name string
}{
	{"GDP", "Gross Domestic Product"},
	{"CPIAUCSL", "Consumer Price Index"},
	{"UNRATE", "Unemployment Rate"},
	{"DFF", "Federal Funds Effective Rate"},
	{"T10YIE", "10-Year Breakeven Inflation"},
	{"VIXCLS", "CBOE Volatility Index"},
	{"SP500", "S&P 500"},
	{"DTWEXBGS", "Trade Weighted U.S. Dollar Index"},
	{"DGS10", "10-Year Treasury Yield"},
	{"DGS2", "2-Year Treasury Yield"},
	{"FEDFUNDS", "Federal Funds Rate"},
	{"MORTGAGE30US", "30-Year Fixed Mortgage Rate"},
}

// MacroSeriesIDs returns the core series identifiers in display order.
func MacroSeriesIDs() []string {
	ids := make([]string, len(macroSeries))
	for i, s := range macroSeries {
		ids[i] = s.ID
	}
	return ids
}

// MacroSeriesName returns the display name for a series ID.
func MacroSeriesName(id string) string {
	for _, s := range macroSeries {
		if s.ID == id {
			return s.Name
		}
	}
	return id
}

// NewFRED creates the FRED provider.
func NewFRED(st Store, apiKey string) *FRED {
	return &FRED{store: st, apiKey: apiKey, baseURL: "https://api.stlouisfed.org/fred", now: time.Now}
}

func (p *FRED) Name() string       { return "fred" }
func (p *FRED) IsConfigured() bool { return p.apiKey != "" }

type fredObservations struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"` // "." for missing
	} `json:"observations"`
}

// FetchCompanyData refreshes the last two years of each macro series.
func (p *FRED) FetchCompanyData(ctx context.Context, _ models.Entity) []provider.ProviderResult {
	return []provider.ProviderResult{p.RefreshSeries(ctx)}
}

// RefreshSeries pulls every series in the core set. Exposed separately so
// the background worker can refresh macro data on a schedule without a
// full enrichment pass.
func (p *FRED) RefreshSeries(ctx context.Context) provider.ProviderResult {
	start := p.now().AddDate(-2, 0, 0).Format("2006-01-02")
	stored := 0
	var lastErr error
	for _, series := range macroSeries {
		url := infra.BuildURL(p.baseURL+"/series/observations", map[string]string{
			"series_id":         series.ID,
			"api_key":           p.apiKey,
			"file_type":         "json",
			"observation_start": start,
			"sort_order":        "desc",
			"limit":             "100",
		})
		var resp fredObservations
		if err := infra.GetJSON(ctx, url, nil, &resp); err != nil {
			lastErr = fmt.Errorf("fred %s: %w", series.ID, err)
			log.Printf("providers: %v", lastErr)
			continue
		}
		for _, obs := range resp.Observations {
			value := parseNumber(obs.Value) // "." filtered here
			if value == nil {
				continue
			}
			m := models.MacroObservation{
				SeriesID:   series.ID,
				SeriesName: series.Name,
				Date:       obs.Date,
				Value:      *value,
				Provider:   p.Name(),
			}
			if err := p.store.UpsertMacro(ctx, m); err != nil {
				log.Printf("providers: fred upsert %s %s: %v", series.ID, obs.Date, err)
				continue
			}
			stored++
		}
	}
	if stored == 0 && lastErr != nil {
		return provider.Failure(p.Name(), "macro", lastErr)
	}
	return provider.Success(p.Name(), "macro", stored)
}
