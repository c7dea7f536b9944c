package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/fahimulhaque/MarketMind/internal/infra"
	"github.com/fahimulhaque/MarketMind/internal/provider"
	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// AlphaVantage pulls quarterly fundamentals and the company overview.
// The free tier allows 25 requests/day, so one enrichment pass spends
// the budget carefully: statements first, overview last.
type AlphaVantage struct {
	store   Store
	apiKey  string
	baseURL string
}

const (
	alphaVantageDailyLimit = 25

	// One enrichment pass hits four endpoints: income statement,
	// balance sheet, cash flow, overview.
	alphaVantageRequestCost = 4
)

// NewAlphaVantage creates the Alpha Vantage provider.
func NewAlphaVantage(st Store, apiKey string) *AlphaVantage {
	return &AlphaVantage{store: st, apiKey: apiKey, baseURL: "https://www.alphavantage.co"}
}

func (p *AlphaVantage) Name() string       { return "alphavantage" }
func (p *AlphaVantage) IsConfigured() bool { return p.apiKey != "" }
func (p *AlphaVantage) DailyLimit() int    { return alphaVantageDailyLimit }
func (p *AlphaVantage) RequestCost() int   { return alphaVantageRequestCost }

// avReport is one quarterly report. Alpha Vantage serializes every number
// as a string, with "None" for missing values.
type avReport struct {
	FiscalDateEnding string `json:"fiscalDateEnding"`

	TotalRevenue    string `json:"totalRevenue"`
	CostOfRevenue   string `json:"costOfRevenue"`
	GrossProfit     string `json:"grossProfit"`
	OperatingIncome string `json:"operatingIncome"`
	NetIncome       string `json:"netIncome"`

	TotalAssets            string `json:"totalAssets"`
	TotalLiabilities       string `json:"totalLiabilities"`
	TotalShareholderEquity string `json:"totalShareholderEquity"`
	CashAndCashEquivalents string `json:"cashAndCashEquivalentsAtCarryingValue"`
	TotalCurrentAssets     string `json:"totalCurrentAssets"`
	TotalCurrentLiab       string `json:"totalCurrentLiabilities"`
	LongTermDebt           string `json:"longTermDebt"`

	OperatingCashflow   string `json:"operatingCashflow"`
	CapitalExpenditures string `json:"capitalExpenditures"`
	DividendPayout      string `json:"dividendPayout"`
}

type avStatementResponse struct {
	QuarterlyReports []avReport `json:"quarterlyReports"`
}

type avOverview struct {
	PERatio            string `json:"PERatio"`
	PriceToBookRatio   string `json:"PriceToBookRatio"`
	AnalystTargetPrice string `json:"AnalystTargetPrice"`
	ReturnOnEquityTTM  string `json:"ReturnOnEquityTTM"`
}

// FetchCompanyData stores quarterly income, balance-sheet and cash-flow
// reports plus overview ratios on the most recent quarter.
func (p *AlphaVantage) FetchCompanyData(ctx context.Context, entity models.Entity) []provider.ProviderResult {
	periods := make(map[string]*models.FinancialPeriod)
	get := func(end string) *models.FinancialPeriod {
		fp, ok := periods[end]
		if !ok {
			fp = &models.FinancialPeriod{
				Ticker:         entity.Ticker,
				PeriodType:     "quarterly",
				PeriodEnd:      end,
				SourceProvider: p.Name(),
			}
			if entity.ID != 0 {
				id := entity.ID
				fp.EntityID = &id
			}
			periods[end] = fp
		}
		return fp
	}

	var income avStatementResponse
	if err := p.query(ctx, "INCOME_STATEMENT", entity.Ticker, &income); err != nil {
		return []provider.ProviderResult{provider.Failure(p.Name(), "financials", err)}
	}
	for _, r := range limitReports(income.QuarterlyReports, 8) {
		fp := get(r.FiscalDateEnding)
		fp.Income = models.IncomeStatement{
			Revenue:         parseNumber(r.TotalRevenue),
			CostOfRevenue:   parseNumber(r.CostOfRevenue),
			GrossProfit:     parseNumber(r.GrossProfit),
			OperatingIncome: parseNumber(r.OperatingIncome),
			NetIncome:       parseNumber(r.NetIncome),
		}
	}

	var balance avStatementResponse
	if err := p.query(ctx, "BALANCE_SHEET", entity.Ticker, &balance); err != nil {
		log.Printf("providers: alphavantage balance sheet %s: %v", entity.Ticker, err)
	}
	for _, r := range limitReports(balance.QuarterlyReports, 8) {
		fp := get(r.FiscalDateEnding)
		fp.Balance = models.BalanceSheet{
			TotalAssets:        parseNumber(r.TotalAssets),
			TotalLiabilities:   parseNumber(r.TotalLiabilities),
			ShareholderEquity:  parseNumber(r.TotalShareholderEquity),
			CashAndEquivalents: parseNumber(r.CashAndCashEquivalents),
			CurrentAssets:      parseNumber(r.TotalCurrentAssets),
			CurrentLiabilities: parseNumber(r.TotalCurrentLiab),
			LongTermDebt:       parseNumber(r.LongTermDebt),
		}
	}

	var cashflow avStatementResponse
	if err := p.query(ctx, "CASH_FLOW", entity.Ticker, &cashflow); err != nil {
		log.Printf("providers: alphavantage cash flow %s: %v", entity.Ticker, err)
	}
	for _, r := range limitReports(cashflow.QuarterlyReports, 8) {
		fp := get(r.FiscalDateEnding)
		fp.CashFlow = models.CashFlowStatement{
			OperatingCashFlow:  parseNumber(r.OperatingCashflow),
			CapitalExpenditure: parseNumber(r.CapitalExpenditures),
			DividendsPaid:      parseNumber(r.DividendPayout),
		}
	}

	var overview avOverview
	if err := p.query(ctx, "OVERVIEW", entity.Ticker, &overview); err != nil {
		log.Printf("providers: alphavantage overview %s: %v", entity.Ticker, err)
	} else if fp := latestPeriod(periods); fp != nil {
		fp.Metrics = models.KeyMetrics{
			PERatio:            parseNumber(overview.PERatio),
			PBRatio:            parseNumber(overview.PriceToBookRatio),
			AnalystTargetPrice: parseNumber(overview.AnalystTargetPrice),
			ReturnOnEquity:     parseNumber(overview.ReturnOnEquityTTM),
		}
	}

	stored := 0
	for _, fp := range periods {
		if err := p.store.UpsertFinancialPeriod(ctx, *fp); err != nil {
			log.Printf("providers: alphavantage period %s %s: %v", fp.Ticker, fp.PeriodEnd, err)
			continue
		}
		stored++
	}
	return []provider.ProviderResult{provider.Success(p.Name(), "financials", stored)}
}

func limitReports(reports []avReport, n int) []avReport {
	if len(reports) > n {
		return reports[:n]
	}
	return reports
}

// query calls one Alpha Vantage function. The API returns HTTP 200 with an
// "Error Message" or "Note" body on bad symbols and throttling, so those
// are surfaced as errors before decoding into out.
func (p *AlphaVantage) query(ctx context.Context, function, symbol string, out any) error {
	url := infra.BuildURL(p.baseURL+"/query", map[string]string{
		"function": function,
		"symbol":   symbol,
		"apikey":   p.apiKey,
	})
	body, err := infra.DoGet(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("alphavantage %s: %w", function, err)
	}

	var envelope struct {
		ErrorMessage string `json:"Error Message"`
		Note         string `json:"Note"`
		Information  string `json:"Information"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		switch {
		case envelope.ErrorMessage != "":
			return fmt.Errorf("alphavantage %s: %s", function, envelope.ErrorMessage)
		case envelope.Note != "":
			return fmt.Errorf("alphavantage %s: throttled: %s", function, envelope.Note)
		case envelope.Information != "":
			return fmt.Errorf("alphavantage %s: %s", function, envelope.Information)
		}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("alphavantage %s: decode: %w", function, err)
	}
	return nil
}
