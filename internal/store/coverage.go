package store

import (
	"context"
	"fmt"
	"math"

	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// Stored-coverage weights. The six axes sum to 1.0.
const (
	coverageWeightFinancials = 0.30
	coverageWeightFilings    = 0.20
	coverageWeightMacro      = 0.15
	coverageWeightSocial     = 0.10
	coverageWeightNews       = 0.15
	coverageWeightPrice      = 0.10
)

// UpdateCoverage recomputes and stores coverage for a ticker from what the
// repository currently holds. Financials and filings contribute
// proportionally (8 quarters and 5 filings saturate their axes).
func (s *Store) UpdateCoverage(ctx context.Context, entityName, ticker string) (models.EntityCoverage, error) {
	quarters, err := s.CountQuarterlyPeriods(ctx, ticker)
	if err != nil {
		return models.EntityCoverage{}, fmt.Errorf("store: coverage quarters: %w", err)
	}
	filings, err := s.CountFilings(ctx, ticker)
	if err != nil {
		return models.EntityCoverage{}, fmt.Errorf("store: coverage filings: %w", err)
	}
	macroSeries, err := s.CountMacroSeries(ctx)
	if err != nil {
		return models.EntityCoverage{}, fmt.Errorf("store: coverage macro: %w", err)
	}
	signals, err := s.GetSocialSignals(ctx, ticker, 7)
	if err != nil {
		return models.EntityCoverage{}, fmt.Errorf("store: coverage social: %w", err)
	}
	newsCount, err := s.CountNewsInsights(ctx, entityName)
	if err != nil {
		return models.EntityCoverage{}, fmt.Errorf("store: coverage news: %w", err)
	}

	cov := models.EntityCoverage{
		Ticker:           ticker,
		HasFinancials:    quarters > 0,
		HasFilings:       filings > 0,
		HasMacro:         macroSeries > 0,
		HasSocial:        len(signals) > 0,
		HasNews:          newsCount > 0,
		HasPrice:         quarters > 0, // price axis follows financial presence until a live quote lands
		QuarterlyPeriods: quarters,
		FilingCount:      filings,
	}

	score := coverageWeightFinancials*math.Min(float64(quarters)/8.0, 1.0) +
		coverageWeightFilings*math.Min(float64(filings)/5.0, 1.0)
	if cov.HasMacro {
		score += coverageWeightMacro
	}
	if cov.HasSocial {
		score += coverageWeightSocial
	}
	if cov.HasNews {
		score += coverageWeightNews
	}
	if cov.HasPrice {
		score += coverageWeightPrice
	}
	cov.Score = math.Round(score*100) / 100

	_, err = s.pool.Exec(ctx, `
		INSERT INTO entity_coverage
			(ticker, has_financials, has_filings, has_macro, has_social, has_news, has_price,
			 quarterly_periods, filing_count, score, updated_at)
		VALUES (upper($1), $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (ticker) DO UPDATE SET
			has_financials = EXCLUDED.has_financials,
			has_filings = EXCLUDED.has_filings,
			has_macro = EXCLUDED.has_macro,
			has_social = EXCLUDED.has_social,
			has_news = EXCLUDED.has_news,
			has_price = EXCLUDED.has_price,
			quarterly_periods = EXCLUDED.quarterly_periods,
			filing_count = EXCLUDED.filing_count,
			score = GREATEST(EXCLUDED.score, entity_coverage.score),
			updated_at = now()`,
		ticker, cov.HasFinancials, cov.HasFilings, cov.HasMacro, cov.HasSocial,
		cov.HasNews, cov.HasPrice, cov.QuarterlyPeriods, cov.FilingCount, cov.Score)
	if err != nil {
		return models.EntityCoverage{}, fmt.Errorf("store: update coverage %s: %w", ticker, err)
	}
	s.appendAudit(ctx, "coverage_updated", "entity_coverage", 0,
		fmt.Sprintf("%s score=%.2f", ticker, cov.Score))
	return cov, nil
}

// GetCoverage returns the stored coverage row for a ticker.
func (s *Store) GetCoverage(ctx context.Context, ticker string) (models.EntityCoverage, error) {
	var cov models.EntityCoverage
	err := s.pool.QueryRow(ctx, `
		SELECT ticker, has_financials, has_filings, has_macro, has_social, has_news, has_price,
		       quarterly_periods, filing_count, score, updated_at
		FROM entity_coverage WHERE ticker = upper($1)`, ticker).Scan(
		&cov.Ticker, &cov.HasFinancials, &cov.HasFilings, &cov.HasMacro, &cov.HasSocial,
		&cov.HasNews, &cov.HasPrice, &cov.QuarterlyPeriods, &cov.FilingCount, &cov.Score, &cov.UpdatedAt)
	if err != nil {
		return models.EntityCoverage{}, asNotFound(err)
	}
	return cov, nil
}
