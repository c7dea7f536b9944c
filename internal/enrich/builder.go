package enrich

import (
	"context"
	"log"
	"time"

	"github.com/fahimulhaque/MarketMind/internal/providers"
	"github.com/fahimulhaque/MarketMind/pkg/models"
)

const (
	maxTrendQuarters = 8
	maxTrendAnnual   = 5
	maxFilings       = 10
	sentimentDays    = 7
	trendThreshold   = 0.05
)

// Store is the repository surface the builders read from.
type Store interface {
	GetFinancialHistory(ctx context.Context, ticker, periodType string, limit int) ([]models.FinancialPeriod, error)
	LatestMacroValues(ctx context.Context, seriesIDs []string) (map[string]models.MacroObservation, error)
	GetSocialSignals(ctx context.Context, ticker string, days int) ([]models.SocialSignal, error)
	GetCoverage(ctx context.Context, ticker string) (models.EntityCoverage, error)
	GetFilings(ctx context.Context, ticker, filingType string, limit int) ([]models.EntityFiling, error)
}

// QuarterlyBackfillProvider upserts missing quarterly periods on demand.
// Used when the stored history has no usable revenue figures.
type QuarterlyBackfillProvider interface {
	BackfillQuarters(ctx context.Context, entity models.Entity) error
}

// Builder assembles the per-entity report sections.
type Builder struct {
	store    Store
	quotes   QuoteSource
	filler   GapFiller
	backfill QuarterlyBackfillProvider
}

// NewBuilder wires the section builders. quotes, filler and backfill are
// optional; nil disables the corresponding enrichment.
func NewBuilder(store Store, quotes QuoteSource, filler GapFiller, backfill QuarterlyBackfillProvider) *Builder {
	return &Builder{store: store, quotes: quotes, filler: filler, backfill: backfill}
}

// Snapshot builds the real-time financial snapshot, or nil when every
// price source failed.
func (b *Builder) Snapshot(ctx context.Context, entity models.Entity) *models.FinancialSnapshot {
	if b.quotes == nil || entity.Ticker == "" {
		return nil
	}
	return BuildSnapshot(ctx, b.quotes, b.filler, entity.Ticker)
}

// Trends summarizes recent quarterly and annual periods. When no stored
// quarter carries revenue, the inline backfill runs once and the history
// is re-read.
func (b *Builder) Trends(ctx context.Context, entity models.Entity) models.HistoricalTrends {
	quarters, err := b.store.GetFinancialHistory(ctx, entity.Ticker, "quarterly", maxTrendQuarters)
	if err != nil {
		log.Printf("enrich: quarterly history %s: %v", entity.Ticker, err)
	}

	if !hasRevenue(quarters) && b.backfill != nil {
		if err := b.backfill.BackfillQuarters(ctx, entity); err != nil {
			log.Printf("enrich: backfill %s: %v", entity.Ticker, err)
		} else if quarters, err = b.store.GetFinancialHistory(ctx, entity.Ticker, "quarterly", maxTrendQuarters); err != nil {
			log.Printf("enrich: quarterly history after backfill %s: %v", entity.Ticker, err)
		}
	}

	annual, err := b.store.GetFinancialHistory(ctx, entity.Ticker, "annual", maxTrendAnnual)
	if err != nil {
		log.Printf("enrich: annual history %s: %v", entity.Ticker, err)
	}

	trends := models.HistoricalTrends{
		Quarters:       summarize(quarters),
		Annual:         summarize(annual),
		TrendDirection: trendDirection(quarters),
	}
	trends.Available = len(trends.Quarters) > 0 || len(trends.Annual) > 0
	return trends
}

func hasRevenue(periods []models.FinancialPeriod) bool {
	for _, p := range periods {
		if p.Income.Revenue != nil {
			return true
		}
	}
	return false
}

func summarize(periods []models.FinancialPeriod) []models.PeriodSummary {
	out := make([]models.PeriodSummary, 0, len(periods))
	for _, p := range periods {
		out = append(out, models.PeriodSummary{
			PeriodEnd: p.PeriodEnd,
			Revenue:   p.Income.Revenue,
			NetIncome: p.Income.NetIncome,
			EPS:       p.Income.EPS,
			Provider:  p.SourceProvider,
		})
	}
	return out
}

// trendDirection classifies the QoQ revenue change of the two most
// recent periods. History arrives newest-first.
func trendDirection(quarters []models.FinancialPeriod) string {
	var revs []float64
	for _, q := range quarters {
		if q.Income.Revenue != nil {
			revs = append(revs, *q.Income.Revenue)
		}
		if len(revs) == 2 {
			break
		}
	}
	if len(revs) < 2 || revs[1] == 0 {
		return "unknown"
	}
	change := (revs[0] - revs[1]) / revs[1]
	switch {
	case change > trendThreshold:
		return "growing"
	case change < -trendThreshold:
		return "declining"
	}
	return "stable"
}

// Macro returns the latest value of each core series.
func (b *Builder) Macro(ctx context.Context) models.MacroContext {
	latest, err := b.store.LatestMacroValues(ctx, providers.MacroSeriesIDs())
	if err != nil {
		log.Printf("enrich: macro values: %v", err)
		return models.MacroContext{}
	}
	if len(latest) == 0 {
		return models.MacroContext{}
	}
	indicators := make(map[string]models.MacroIndicator, len(latest))
	for id, obs := range latest {
		v := obs.Value
		indicators[id] = models.MacroIndicator{
			Name:  providers.MacroSeriesName(id),
			Value: &v,
			Date:  obs.Date,
		}
	}
	return models.MacroContext{Available: true, Indicators: indicators}
}

// Sentiment aggregates the last 7 days of social signals across
// platforms, weighting each day's sentiment by its mention count.
func (b *Builder) Sentiment(ctx context.Context, entity models.Entity) models.SentimentSummary {
	signals, err := b.store.GetSocialSignals(ctx, entity.Ticker, sentimentDays)
	if err != nil {
		log.Printf("enrich: social signals %s: %v", entity.Ticker, err)
		return models.SentimentSummary{}
	}
	if len(signals) == 0 {
		return models.SentimentSummary{}
	}

	totalMentions := 0
	weighted := 0.0
	days := make(map[string]bool)
	for _, sig := range signals {
		totalMentions += sig.MentionCount
		weighted += sig.AvgSentiment * float64(sig.MentionCount)
		days[sig.SignalDate] = true
	}
	avg := 0.0
	if totalMentions > 0 {
		avg = weighted / float64(totalMentions)
	}

	label := "neutral"
	switch {
	case avg > 0.2:
		label = "bullish"
	case avg < -0.2:
		label = "bearish"
	}
	return models.SentimentSummary{
		Available:      true,
		TotalMentions:  totalMentions,
		AvgSentiment:   avg,
		SentimentLabel: label,
		DaysData:       len(days),
	}
}

// Filings returns the most recent structured filings.
func (b *Builder) Filings(ctx context.Context, entity models.Entity) []models.EntityFiling {
	filings, err := b.store.GetFilings(ctx, entity.Ticker, "", maxFilings)
	if err != nil {
		log.Printf("enrich: filings %s: %v", entity.Ticker, err)
		return nil
	}
	return filings
}

// Coverage overlay weights. The query-time view values fresh signals
// (news, price) more than the stored ingest-time weighting does.
const (
	overlayFinancials = 0.25
	overlayFilings    = 0.15
	overlayMacro      = 0.10
	overlaySocial     = 0.10
	overlayNews       = 0.20
	overlayPrice      = 0.20
)

// Coverage overlays real-time signals onto the stored coverage row and
// keeps the higher score.
func (b *Builder) Coverage(ctx context.Context, entity models.Entity, snap *models.FinancialSnapshot, sentiment models.SentimentSummary) models.EntityCoverage {
	cov, err := b.store.GetCoverage(ctx, entity.Ticker)
	if err != nil {
		log.Printf("enrich: coverage %s: %v", entity.Ticker, err)
		cov = models.EntityCoverage{Ticker: entity.Ticker}
	}

	if snap != nil && snap.Price != nil {
		cov.HasPrice = true
	}
	if sentiment.Available {
		cov.HasSocial = true
	}

	recomputed := overlayScore(cov)
	if recomputed > cov.Score {
		cov.Score = recomputed
	}
	cov.UpdatedAt = time.Now().UTC()
	return cov
}

func overlayScore(cov models.EntityCoverage) float64 {
	total := 0.0
	add := func(has bool, weight float64) {
		if has {
			total += weight
		}
	}
	add(cov.HasFinancials, overlayFinancials)
	add(cov.HasFilings, overlayFilings)
	add(cov.HasMacro, overlayMacro)
	add(cov.HasSocial, overlaySocial)
	add(cov.HasNews, overlayNews)
	add(cov.HasPrice, overlayPrice)
	return total / (overlayFinancials + overlayFilings + overlayMacro + overlaySocial + overlayNews + overlayPrice)
}
