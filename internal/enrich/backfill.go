package enrich

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fahimulhaque/MarketMind/internal/infra"
	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// PeriodWriter persists backfilled quarterly periods.
type PeriodWriter interface {
	UpsertFinancialPeriod(ctx context.Context, p models.FinancialPeriod) error
}

// YahooBackfill fills missing quarterly periods from the Yahoo
// fundamentals-timeseries API when no statement provider has populated
// revenue yet.
type YahooBackfill struct {
	baseURL string
	writer  PeriodWriter
}

// NewYahooBackfill creates the backfill provider. Pass "" for the public
// endpoint.
func NewYahooBackfill(baseURL string, writer PeriodWriter) *YahooBackfill {
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}
	return &YahooBackfill{baseURL: baseURL, writer: writer}
}

var backfillSeries = []string{
	"quarterlyTotalRevenue",
	"quarterlyNetIncome",
	"quarterlyBasicEPS",
}

type timeseriesResponse struct {
	Timeseries struct {
		Result []map[string]any `json:"result"`
	} `json:"timeseries"`
}

// BackfillQuarters pulls the last two years of quarterly revenue, net
// income and EPS and upserts one period row per quarter end. Deep-merge
// at the repository keeps fields other providers wrote.
func (y *YahooBackfill) BackfillQuarters(ctx context.Context, entity models.Entity) error {
	if entity.Ticker == "" {
		return fmt.Errorf("enrich: backfill: entity %q has no ticker", entity.Name)
	}
	now := time.Now()
	url := infra.BuildURL(y.baseURL+"/ws/fundamentals-timeseries/v1/finance/timeseries/"+entity.Ticker,
		map[string]string{
			"type":    strings.Join(backfillSeries, ","),
			"period1": strconv.FormatInt(now.AddDate(-2, 0, 0).Unix(), 10),
			"period2": strconv.FormatInt(now.Unix(), 10),
			"merge":   "false",
		})

	var resp timeseriesResponse
	if err := infra.GetJSON(ctx, url, nil, &resp); err != nil {
		return fmt.Errorf("enrich: backfill %s: %w", entity.Ticker, err)
	}

	byQuarter := make(map[string]*models.FinancialPeriod)
	for _, block := range resp.Timeseries.Result {
		for _, series := range backfillSeries {
			points, ok := block[series].([]any)
			if !ok {
				continue
			}
			for _, raw := range points {
				point, ok := raw.(map[string]any)
				if !ok {
					continue
				}
				endDate, _ := point["asOfDate"].(string)
				value, ok := reportedValue(point)
				if endDate == "" || !ok {
					continue
				}
				period := byQuarter[endDate]
				if period == nil {
					period = newQuarter(entity, endDate)
					byQuarter[endDate] = period
				}
				switch series {
				case "quarterlyTotalRevenue":
					period.Income.Revenue = models.Float(value)
				case "quarterlyNetIncome":
					period.Income.NetIncome = models.Float(value)
				case "quarterlyBasicEPS":
					period.Income.EPS = models.Float(value)
				}
			}
		}
	}
	if len(byQuarter) == 0 {
		return fmt.Errorf("enrich: backfill %s: no quarterly data", entity.Ticker)
	}

	for _, period := range byQuarter {
		if err := y.writer.UpsertFinancialPeriod(ctx, *period); err != nil {
			return fmt.Errorf("enrich: backfill %s: %w", entity.Ticker, err)
		}
	}
	return nil
}

func reportedValue(point map[string]any) (float64, bool) {
	rv, ok := point["reportedValue"].(map[string]any)
	if !ok {
		return 0, false
	}
	raw, ok := rv["raw"].(float64)
	return raw, ok
}

func newQuarter(entity models.Entity, endDate string) *models.FinancialPeriod {
	p := &models.FinancialPeriod{
		Ticker:         entity.Ticker,
		PeriodType:     "quarterly",
		PeriodEnd:      endDate,
		SourceProvider: "yahoo_backfill",
	}
	if t, err := time.Parse("2006-01-02", endDate); err == nil {
		p.FiscalYear = t.Year()
		p.FiscalQuarter = (int(t.Month())-1)/3 + 1
	}
	return p
}
