package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// UpsertFinancialPeriod inserts or deep-merges a financial period. Each
// statement sub-document merges at the JSONB level: an empty incoming
// document preserves the stored one; otherwise incoming keys override
// stored keys and stored-only keys survive. The merge runs in SQL so
// concurrent writers cannot lose fields.
func (s *Store) UpsertFinancialPeriod(ctx context.Context, p models.FinancialPeriod) error {
	income, err := json.Marshal(p.Income)
	if err != nil {
		return fmt.Errorf("store: marshal income: %w", err)
	}
	balance, err := json.Marshal(p.Balance)
	if err != nil {
		return fmt.Errorf("store: marshal balance: %w", err)
	}
	cashFlow, err := json.Marshal(p.CashFlow)
	if err != nil {
		return fmt.Errorf("store: marshal cash flow: %w", err)
	}
	metrics, err := json.Marshal(p.Metrics)
	if err != nil {
		return fmt.Errorf("store: marshal key metrics: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO financial_periods
			(entity_id, ticker, period_type, period_end_date, fiscal_year, fiscal_quarter,
			 source_provider, income_statement, balance_sheet, cash_flow, key_metrics)
		VALUES ($1, upper($2), $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (ticker, period_type, period_end_date, source_provider) DO UPDATE SET
			entity_id = COALESCE(EXCLUDED.entity_id, financial_periods.entity_id),
			fiscal_year = GREATEST(EXCLUDED.fiscal_year, financial_periods.fiscal_year),
			fiscal_quarter = GREATEST(EXCLUDED.fiscal_quarter, financial_periods.fiscal_quarter),
			income_statement = CASE WHEN EXCLUDED.income_statement::text = '{}'
				THEN financial_periods.income_statement
				ELSE financial_periods.income_statement || EXCLUDED.income_statement END,
			balance_sheet = CASE WHEN EXCLUDED.balance_sheet::text = '{}'
				THEN financial_periods.balance_sheet
				ELSE financial_periods.balance_sheet || EXCLUDED.balance_sheet END,
			cash_flow = CASE WHEN EXCLUDED.cash_flow::text = '{}'
				THEN financial_periods.cash_flow
				ELSE financial_periods.cash_flow || EXCLUDED.cash_flow END,
			key_metrics = CASE WHEN EXCLUDED.key_metrics::text = '{}'
				THEN financial_periods.key_metrics
				ELSE financial_periods.key_metrics || EXCLUDED.key_metrics END`,
		p.EntityID, p.Ticker, p.PeriodType, p.PeriodEnd, p.FiscalYear, p.FiscalQuarter,
		p.SourceProvider, income, balance, cashFlow, metrics)
	if err != nil {
		return fmt.Errorf("store: upsert financial period %s/%s/%s: %w",
			p.Ticker, p.PeriodType, p.PeriodEnd, err)
	}

	s.appendAudit(ctx, "financial_period_upserted", "financial_period", 0,
		fmt.Sprintf("%s %s %s via %s", p.Ticker, p.PeriodType, p.PeriodEnd, p.SourceProvider))
	return nil
}

// GetFinancialHistory returns the most recent periods of the given type,
// newest first.
func (s *Store) GetFinancialHistory(ctx context.Context, ticker, periodType string, limit int) ([]models.FinancialPeriod, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, entity_id, ticker, period_type, period_end_date, fiscal_year,
		       fiscal_quarter, source_provider, income_statement, balance_sheet,
		       cash_flow, key_metrics, created_at
		FROM financial_periods
		WHERE ticker = upper($1) AND period_type = $2
		ORDER BY period_end_date DESC
		LIMIT $3`, ticker, periodType, limit)
	if err != nil {
		return nil, fmt.Errorf("store: financial history %s: %w", ticker, err)
	}
	defer rows.Close()

	var out []models.FinancialPeriod
	for rows.Next() {
		var p models.FinancialPeriod
		var periodEnd time.Time
		var income, balance, cashFlow, metrics []byte
		if err := rows.Scan(&p.ID, &p.EntityID, &p.Ticker, &p.PeriodType, &periodEnd,
			&p.FiscalYear, &p.FiscalQuarter, &p.SourceProvider,
			&income, &balance, &cashFlow, &metrics, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.PeriodEnd = periodEnd.Format("2006-01-02")
		if err := json.Unmarshal(income, &p.Income); err != nil {
			return nil, fmt.Errorf("store: decode income: %w", err)
		}
		if err := json.Unmarshal(balance, &p.Balance); err != nil {
			return nil, fmt.Errorf("store: decode balance: %w", err)
		}
		if err := json.Unmarshal(cashFlow, &p.CashFlow); err != nil {
			return nil, fmt.Errorf("store: decode cash flow: %w", err)
		}
		if err := json.Unmarshal(metrics, &p.Metrics); err != nil {
			return nil, fmt.Errorf("store: decode key metrics: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountQuarterlyPeriods returns how many quarterly rows exist for a ticker.
func (s *Store) CountQuarterlyPeriods(ctx context.Context, ticker string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(DISTINCT period_end_date) FROM financial_periods
		WHERE ticker = upper($1) AND period_type = 'quarterly'`, ticker).Scan(&n)
	return n, err
}
