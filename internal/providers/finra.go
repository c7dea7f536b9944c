package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/fahimulhaque/MarketMind/internal/infra"
	"github.com/fahimulhaque/MarketMind/internal/provider"
	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// FINRA pulls consolidated short interest from the FINRA Query API and
// converts it into a positioning signal: heavy shorting reads bearish,
// very light shorting bullish.
type FINRA struct {
	store   Store
	baseURL string
}

// NewFINRA creates the short interest provider.
func NewFINRA(st Store) *FINRA {
	return &FINRA{store: st, baseURL: "https://api.finra.org"}
}

func (p *FINRA) Name() string       { return "finra" }
func (p *FINRA) IsConfigured() bool { return true }

type finraShortInterest struct {
	SettlementDate     string  `json:"settlementDate"`
	SymbolCode         string  `json:"symbolCode"`
	ShortInterest      float64 `json:"currentShortPositionQuantity"`
	AvgDailyVolume     float64 `json:"averageDailyVolumeQuantity"`
	DaysToCover        float64 `json:"daysToCoverQuantity"`
	ShortPercentChange float64 `json:"changePercent"`
}

// shortInterestSentiment maps days-to-cover into [-1, 1]. Above 8 days
// the float is heavily shorted; under 2 days shorts are nearly absent.
func shortInterestSentiment(daysToCover float64) float64 {
	switch {
	case daysToCover > 8:
		return -0.5
	case daysToCover > 0 && daysToCover < 2:
		return 0.5
	}
	return 0
}

// FetchCompanyData stores the latest short-interest reading as a
// positioning signal dated by its settlement date.
func (p *FINRA) FetchCompanyData(ctx context.Context, entity models.Entity) []provider.ProviderResult {
	payload := map[string]any{
		"limit": 1,
		"compareFilters": []map[string]any{
			{"fieldName": "symbolCode", "compareType": "EQUAL", "fieldValue": entity.Ticker},
		},
		"sortFields": []string{"-settlementDate"},
	}
	var rows []finraShortInterest
	err := infra.PostJSON(ctx,
		p.baseURL+"/data/group/otcMarket/name/consolidatedShortInterest",
		map[string]string{"Accept": "application/json"}, payload, &rows)
	if err != nil {
		return []provider.ProviderResult{
			provider.Failure(p.Name(), "short_interest", fmt.Errorf("finra short interest: %w", err)),
		}
	}
	if len(rows) == 0 {
		return []provider.ProviderResult{provider.Success(p.Name(), "short_interest", 0)}
	}

	row := rows[0]
	date := row.SettlementDate
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	sig := models.SocialSignal{
		Ticker:       entity.Ticker,
		Platform:     "finra_short_interest",
		SignalDate:   date,
		MentionCount: 1,
		AvgSentiment: shortInterestSentiment(row.DaysToCover),
		TopPosts: []models.SocialPost{{
			Title: fmt.Sprintf("Short interest %.0f shares, %.1f days to cover (settled %s)",
				row.ShortInterest, row.DaysToCover, date),
			URL: "https://www.finra.org/finra-data/browse-catalog/equity-short-interest",
		}},
		SourceProvider: p.Name(),
	}
	if entity.ID != 0 {
		id := entity.ID
		sig.EntityID = &id
	}
	if err := p.store.UpsertSocialSignal(ctx, sig); err != nil {
		return []provider.ProviderResult{provider.Failure(p.Name(), "short_interest", err)}
	}
	return []provider.ProviderResult{provider.Success(p.Name(), "short_interest", 1)}
}
