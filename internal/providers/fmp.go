package providers

import (
	"context"
	"fmt"
	"log"

	"github.com/fahimulhaque/MarketMind/internal/infra"
	"github.com/fahimulhaque/MarketMind/internal/provider"
	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// FMP pulls quarterly statements and trailing ratios from Financial
// Modeling Prep. Free tier: 250 requests/day, enforced by the shared
// budget tracker.
type FMP struct {
	store   Store
	apiKey  string
	baseURL string
}

const (
	fmpDailyLimit = 250

	// Income, balance sheet, cash flow, TTM ratios.
	fmpRequestCost = 4
)

// NewFMP creates the Financial Modeling Prep provider.
func NewFMP(st Store, apiKey string) *FMP {
	return &FMP{store: st, apiKey: apiKey, baseURL: "https://financialmodelingprep.com/api/v3"}
}

func (p *FMP) Name() string       { return "fmp" }
func (p *FMP) IsConfigured() bool { return p.apiKey != "" }
func (p *FMP) DailyLimit() int    { return fmpDailyLimit }
func (p *FMP) RequestCost() int   { return fmpRequestCost }

type fmpIncomeStatement struct {
	Date            string  `json:"date"`
	Period          string  `json:"period"`
	CalendarYear    string  `json:"calendarYear"`
	Revenue         float64 `json:"revenue"`
	CostOfRevenue   float64 `json:"costOfRevenue"`
	GrossProfit     float64 `json:"grossProfit"`
	OperatingIncome float64 `json:"operatingIncome"`
	NetIncome       float64 `json:"netIncome"`
	EPS             float64 `json:"eps"`
	EPSDiluted      float64 `json:"epsdiluted"`
}

type fmpBalanceSheet struct {
	Date                    string  `json:"date"`
	TotalAssets             float64 `json:"totalAssets"`
	TotalLiabilities        float64 `json:"totalLiabilities"`
	TotalStockholdersEquity float64 `json:"totalStockholdersEquity"`
	CashAndCashEquivalents  float64 `json:"cashAndCashEquivalents"`
	TotalCurrentAssets      float64 `json:"totalCurrentAssets"`
	TotalCurrentLiabilities float64 `json:"totalCurrentLiabilities"`
	LongTermDebt            float64 `json:"longTermDebt"`
}

type fmpCashFlow struct {
	Date                string  `json:"date"`
	OperatingCashFlow   float64 `json:"operatingCashFlow"`
	CapitalExpenditure  float64 `json:"capitalExpenditure"`
	FreeCashFlow        float64 `json:"freeCashFlow"`
	DividendsPaid       float64 `json:"dividendsPaid"`
	NetChangeInCash     float64 `json:"netChangeInCash"`
	StockBasedComp      float64 `json:"stockBasedCompensation"`
	AcquisitionsNet     float64 `json:"acquisitionsNet"`
	CommonStockRepurch  float64 `json:"commonStockRepurchased"`
	DebtRepayment       float64 `json:"debtRepayment"`
	OtherFinancingActiv float64 `json:"otherFinancingActivites"`
}

type fmpRatiosTTM struct {
	PERatioTTM        float64 `json:"peRatioTTM"`
	PBRatioTTM        float64 `json:"priceToBookRatioTTM"`
	DebtEquityTTM     float64 `json:"debtEquityRatioTTM"`
	CurrentRatioTTM   float64 `json:"currentRatioTTM"`
	ReturnOnEquityTTM float64 `json:"returnOnEquityTTM"`
}

// FetchCompanyData stores the last eight quarterly statements plus
// trailing-twelve-month ratios attached to the most recent quarter.
func (p *FMP) FetchCompanyData(ctx context.Context, entity models.Entity) []provider.ProviderResult {
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

	var income []fmpIncomeStatement
	if err := p.getJSON(ctx, fmt.Sprintf("/income-statement/%s", entity.Ticker),
		map[string]string{"period": "quarter", "limit": "8"}, &income); err != nil {
		return []provider.ProviderResult{provider.Failure(p.Name(), "financials", err)}
	}
	for _, r := range income {
		fp := get(r.Date)
		fp.FiscalQuarter = fiscalQuarter(r.Period)
		fp.Income = models.IncomeStatement{
			Revenue:         models.Float(r.Revenue),
			CostOfRevenue:   models.Float(r.CostOfRevenue),
			GrossProfit:     models.Float(r.GrossProfit),
			OperatingIncome: models.Float(r.OperatingIncome),
			NetIncome:       models.Float(r.NetIncome),
			EPS:             models.Float(r.EPS),
			EPSDiluted:      models.Float(r.EPSDiluted),
		}
	}

	var balance []fmpBalanceSheet
	if err := p.getJSON(ctx, fmt.Sprintf("/balance-sheet-statement/%s", entity.Ticker),
		map[string]string{"period": "quarter", "limit": "8"}, &balance); err != nil {
		log.Printf("providers: fmp balance sheet %s: %v", entity.Ticker, err)
	}
	for _, r := range balance {
		fp := get(r.Date)
		fp.Balance = models.BalanceSheet{
			TotalAssets:        models.Float(r.TotalAssets),
			TotalLiabilities:   models.Float(r.TotalLiabilities),
			ShareholderEquity:  models.Float(r.TotalStockholdersEquity),
			CashAndEquivalents: models.Float(r.CashAndCashEquivalents),
			CurrentAssets:      models.Float(r.TotalCurrentAssets),
			CurrentLiabilities: models.Float(r.TotalCurrentLiabilities),
			LongTermDebt:       models.Float(r.LongTermDebt),
		}
	}

	var cashflow []fmpCashFlow
	if err := p.getJSON(ctx, fmt.Sprintf("/cash-flow-statement/%s", entity.Ticker),
		map[string]string{"period": "quarter", "limit": "8"}, &cashflow); err != nil {
		log.Printf("providers: fmp cash flow %s: %v", entity.Ticker, err)
	}
	for _, r := range cashflow {
		fp := get(r.Date)
		fp.CashFlow = models.CashFlowStatement{
			OperatingCashFlow:  models.Float(r.OperatingCashFlow),
			CapitalExpenditure: models.Float(r.CapitalExpenditure),
			FreeCashFlow:       models.Float(r.FreeCashFlow),
			DividendsPaid:      models.Float(r.DividendsPaid),
		}
	}

	var ratios []fmpRatiosTTM
	if err := p.getJSON(ctx, fmt.Sprintf("/ratios-ttm/%s", entity.Ticker), nil, &ratios); err != nil {
		log.Printf("providers: fmp ratios %s: %v", entity.Ticker, err)
	}
	if len(ratios) > 0 {
		if fp := latestPeriod(periods); fp != nil {
			r := ratios[0]
			fp.Metrics = models.KeyMetrics{
				PERatio:        models.Float(r.PERatioTTM),
				PBRatio:        models.Float(r.PBRatioTTM),
				DebtToEquity:   models.Float(r.DebtEquityTTM),
				CurrentRatio:   models.Float(r.CurrentRatioTTM),
				ReturnOnEquity: models.Float(r.ReturnOnEquityTTM),
			}
		}
	}

	stored := 0
	for _, fp := range periods {
		if err := p.store.UpsertFinancialPeriod(ctx, *fp); err != nil {
			log.Printf("providers: fmp period %s %s: %v", fp.Ticker, fp.PeriodEnd, err)
			continue
		}
		stored++
	}
	return []provider.ProviderResult{provider.Success(p.Name(), "financials", stored)}
}

func latestPeriod(periods map[string]*models.FinancialPeriod) *models.FinancialPeriod {
	var latest *models.FinancialPeriod
	for _, fp := range periods {
		if latest == nil || fp.PeriodEnd > latest.PeriodEnd {
			latest = fp
		}
	}
	return latest
}

func (p *FMP) getJSON(ctx context.Context, path string, params map[string]string, out any) error {
	if params == nil {
		params = map[string]string{}
	}
	params["apikey"] = p.apiKey
	url := infra.BuildURL(p.baseURL+path, params)
	if err := infra.GetJSON(ctx, url, nil, out); err != nil {
		return fmt.Errorf("fmp %s: %w", path, err)
	}
	return nil
}
