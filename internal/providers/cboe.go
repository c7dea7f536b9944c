package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fahimulhaque/MarketMind/internal/infra"
	"github.com/fahimulhaque/MarketMind/internal/provider"
	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// Cboe reads the delayed option chain from the public Cboe CDN and
// derives a put/call volume ratio. Ratios above 1.0 read as hedging or
// bearish positioning, well below parity as bullish.
type Cboe struct {
	store   Store
	baseURL string
	now     func() time.Time
}

// NewCboe creates the options-positioning provider.
func NewCboe(st Store) *Cboe {
	return &Cboe{store: st, baseURL: "https://cdn.cboe.com", now: time.Now}
}

func (p *Cboe) Name() string       { return "cboe" }
func (p *Cboe) IsConfigured() bool { return true }

type cboeOptionChain struct {
	Data struct {
		Options []struct {
			Option string  `json:"option"` // OCC symbol, e.g. AAPL260918C00150000
			Volume float64 `json:"volume"`
		} `json:"options"`
	} `json:"data"`
}

// putCallSentiment maps the ratio into [-1, 1].
func putCallSentiment(ratio float64) float64 {
	switch {
	case ratio > 1.0:
		return -0.5
	case ratio > 0 && ratio < 0.7:
		return 0.5
	}
	return 0
}

// FetchCompanyData aggregates the chain's put and call volume for the day.
func (p *Cboe) FetchCompanyData(ctx context.Context, entity models.Entity) []provider.ProviderResult {
	url := fmt.Sprintf("%s/api/global/delayed_quotes/options/%s.json", p.baseURL, strings.ToUpper(entity.Ticker))
	var chain cboeOptionChain
	if err := infra.GetJSON(ctx, url, nil, &chain); err != nil {
		return []provider.ProviderResult{
			provider.Failure(p.Name(), "options", fmt.Errorf("cboe option chain: %w", err)),
		}
	}

	var putVol, callVol float64
	for _, opt := range chain.Data.Options {
		side := occOptionSide(opt.Option)
		switch side {
		case 'P':
			putVol += opt.Volume
		case 'C':
			callVol += opt.Volume
		}
	}
	if putVol+callVol == 0 {
		return []provider.ProviderResult{provider.Success(p.Name(), "options", 0)}
	}

	ratio := 0.0
	if callVol > 0 {
		ratio = putVol / callVol
	} else {
		ratio = 2.0 // all puts, maximally bearish bucket
	}

	sig := models.SocialSignal{
		Ticker:       entity.Ticker,
		Platform:     "cboe_options",
		SignalDate:   p.now().UTC().Format("2006-01-02"),
		MentionCount: int(putVol + callVol),
		AvgSentiment: putCallSentiment(ratio),
		TopPosts: []models.SocialPost{{
			Title: fmt.Sprintf("Put/call volume ratio %.2f (puts %.0f, calls %.0f)", ratio, putVol, callVol),
			URL:   url,
		}},
		SourceProvider: p.Name(),
	}
	if entity.ID != 0 {
		id := entity.ID
		sig.EntityID = &id
	}
	if err := p.store.UpsertSocialSignal(ctx, sig); err != nil {
		return []provider.ProviderResult{provider.Failure(p.Name(), "options", err)}
	}
	return []provider.ProviderResult{provider.Success(p.Name(), "options", 1)}
}

// occOptionSide extracts the C/P flag from an OCC option symbol: root,
// 6-digit date, side, 8-digit strike.
func occOptionSide(symbol string) byte {
	if len(symbol) < 9 {
		return 0
	}
	return symbol[len(symbol)-9]
}
