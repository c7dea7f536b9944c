package models

import "time"

// FinancialPeriod is one reported fiscal period for a ticker. Rows are
// unique by (ticker, period_type, period_end_date, source_provider); the
// four statement sub-documents deep-merge on upsert.
type FinancialPeriod struct {
	ID             int64             `json:"id,omitempty"`
	EntityID       *int64            `json:"entity_id,omitempty"`
	Ticker         string            `json:"ticker"`
	PeriodType     string            `json:"period_type"` // "quarterly" or "annual"
	PeriodEnd      string            `json:"period_end_date"` // YYYY-MM-DD
	FiscalYear     int               `json:"fiscal_year,omitempty"`
	FiscalQuarter  int               `json:"fiscal_quarter,omitempty"`
	SourceProvider string            `json:"source_provider"`
	Income         IncomeStatement   `json:"income_statement"`
	Balance        BalanceSheet      `json:"balance_sheet"`
	CashFlow       CashFlowStatement `json:"cash_flow"`
	Metrics        KeyMetrics        `json:"key_metrics"`
	CreatedAt      time.Time         `json:"created_at,omitempty"`
}

// FinancialSnapshot is the real-time numeric picture of a ticker built from
// the exchange-API fallback chain. Pointer fields distinguish "unset" from
// zero so gap-fill only touches missing values.
type FinancialSnapshot struct {
	Symbol            string   `json:"symbol"`
	Price             *float64 `json:"price,omitempty"`
	Currency          string   `json:"currency,omitempty"`
	MarketCap         *float64 `json:"market_cap,omitempty"`
	TrailingPE        *float64 `json:"trailing_pe,omitempty"`
	ForwardPE         *float64 `json:"forward_pe,omitempty"`
	RevenueGrowth     *float64 `json:"revenue_growth,omitempty"`
	EarningsGrowth    *float64 `json:"earnings_growth,omitempty"`
	GrossMargin       *float64 `json:"gross_margin,omitempty"`
	OperatingMargin   *float64 `json:"operating_margin,omitempty"`
	ProfitMargin      *float64 `json:"profit_margin,omitempty"`
	DebtToEquity      *float64 `json:"debt_to_equity,omitempty"`
	FiftyTwoWeekRange string   `json:"fifty_two_week_range,omitempty"`
	Source            string   `json:"source"`
	Warnings          []string `json:"warnings,omitempty"`
}

// PeriodSummary is a compact view of one period used in trend reporting.
type PeriodSummary struct {
	PeriodEnd string   `json:"period_end"`
	Revenue   *float64 `json:"revenue,omitempty"`
	NetIncome *float64 `json:"net_income,omitempty"`
	EPS       *float64 `json:"eps,omitempty"`
	Provider  string   `json:"provider,omitempty"`
}

// HistoricalTrends summarizes recent quarterly and annual periods.
type HistoricalTrends struct {
	Available      bool            `json:"available"`
	Quarters       []PeriodSummary `json:"quarters,omitempty"`
	Annual         []PeriodSummary `json:"annual,omitempty"`
	TrendDirection string          `json:"trend_direction,omitempty"` // growing|stable|declining|unknown
}
