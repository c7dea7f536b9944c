package providers

import (
	"context"
	"fmt"
	"log"

	"github.com/fahimulhaque/MarketMind/internal/infra"
	"github.com/fahimulhaque/MarketMind/internal/provider"
	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// Polygon pulls standardized fundamentals from the Polygon.io financials
// endpoint. Free tier is request-per-minute limited rather than daily, so
// a modest daily cap keeps it inside one enrichment pass.
type Polygon struct {
	store   Store
	apiKey  string
	baseURL string
}

const polygonDailyLimit = 100

// NewPolygon creates the Polygon.io provider.
func NewPolygon(st Store, apiKey string) *Polygon {
	return &Polygon{store: st, apiKey: apiKey, baseURL: "https://api.polygon.io"}
}

func (p *Polygon) Name() string       { return "polygon" }
func (p *Polygon) IsConfigured() bool { return p.apiKey != "" }
func (p *Polygon) DailyLimit() int    { return polygonDailyLimit }
func (p *Polygon) RequestCost() int   { return 1 }

type polygonValue struct {
	Value float64 `json:"value"`
}

type polygonFinancials struct {
	Results []struct {
		FiscalPeriod string `json:"fiscal_period"` // "Q1".."Q4", "FY"
		FiscalYear   string `json:"fiscal_year"`
		EndDate      string `json:"end_date"`
		Financials   struct {
			IncomeStatement struct {
				Revenues        polygonValue `json:"revenues"`
				CostOfRevenue   polygonValue `json:"cost_of_revenue"`
				GrossProfit     polygonValue `json:"gross_profit"`
				OperatingIncome polygonValue `json:"operating_income_loss"`
				NetIncomeLoss   polygonValue `json:"net_income_loss"`
				BasicEPS        polygonValue `json:"basic_earnings_per_share"`
				DilutedEPS      polygonValue `json:"diluted_earnings_per_share"`
			} `json:"income_statement"`
			BalanceSheet struct {
				Assets             polygonValue `json:"assets"`
				Liabilities        polygonValue `json:"liabilities"`
				Equity             polygonValue `json:"equity"`
				CurrentAssets      polygonValue `json:"current_assets"`
				CurrentLiabilities polygonValue `json:"current_liabilities"`
				LongTermDebt       polygonValue `json:"long_term_debt"`
			} `json:"balance_sheet"`
			CashFlowStatement struct {
				OperatingActivities polygonValue `json:"net_cash_flow_from_operating_activities"`
			} `json:"cash_flow_statement"`
		} `json:"financials"`
	} `json:"results"`
}

// FetchCompanyData stores the latest quarterly financial reports.
func (p *Polygon) FetchCompanyData(ctx context.Context, entity models.Entity) []provider.ProviderResult {
	url := infra.BuildURL(p.baseURL+"/vX/reference/financials", map[string]string{
		"ticker":    entity.Ticker,
		"timeframe": "quarterly",
		"limit":     "8",
		"apiKey":    p.apiKey,
	})
	var resp polygonFinancials
	if err := infra.GetJSON(ctx, url, nil, &resp); err != nil {
		return []provider.ProviderResult{
			provider.Failure(p.Name(), "financials", fmt.Errorf("polygon financials: %w", err)),
		}
	}

	stored := 0
	for _, r := range resp.Results {
		if r.EndDate == "" {
			continue
		}
		inc := r.Financials.IncomeStatement
		bal := r.Financials.BalanceSheet
		cf := r.Financials.CashFlowStatement
		fp := models.FinancialPeriod{
			Ticker:         entity.Ticker,
			PeriodType:     "quarterly",
			PeriodEnd:      r.EndDate,
			FiscalQuarter:  fiscalQuarter(r.FiscalPeriod),
			SourceProvider: p.Name(),
			Income: models.IncomeStatement{
				Revenue:         nonZero(inc.Revenues.Value),
				CostOfRevenue:   nonZero(inc.CostOfRevenue.Value),
				GrossProfit:     nonZero(inc.GrossProfit.Value),
				OperatingIncome: nonZero(inc.OperatingIncome.Value),
				NetIncome:       nonZero(inc.NetIncomeLoss.Value),
				EPS:             nonZero(inc.BasicEPS.Value),
				EPSDiluted:      nonZero(inc.DilutedEPS.Value),
			},
			Balance: models.BalanceSheet{
				TotalAssets:        nonZero(bal.Assets.Value),
				TotalLiabilities:   nonZero(bal.Liabilities.Value),
				ShareholderEquity:  nonZero(bal.Equity.Value),
				CurrentAssets:      nonZero(bal.CurrentAssets.Value),
				CurrentLiabilities: nonZero(bal.CurrentLiabilities.Value),
				LongTermDebt:       nonZero(bal.LongTermDebt.Value),
			},
			CashFlow: models.CashFlowStatement{
				OperatingCashFlow: nonZero(cf.OperatingActivities.Value),
			},
		}
		if entity.ID != 0 {
			id := entity.ID
			fp.EntityID = &id
		}
		if err := p.store.UpsertFinancialPeriod(ctx, fp); err != nil {
			log.Printf("providers: polygon period %s %s: %v", fp.Ticker, fp.PeriodEnd, err)
			continue
		}
		stored++
	}
	return []provider.ProviderResult{provider.Success(p.Name(), "financials", stored)}
}

// nonZero treats Polygon's zero-valued absent line items as unset.
func nonZero(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}
