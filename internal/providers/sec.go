package providers

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/fahimulhaque/MarketMind/internal/infra"
	"github.com/fahimulhaque/MarketMind/internal/provider"
	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// SEC pulls XBRL company facts and the filing index from EDGAR. EDGAR has
// no daily quota but enforces 10 req/s per user agent, so requests are
// self-spaced. Requires a descriptive User-Agent with contact info per
// SEC fair-access policy.
type SEC struct {
	store     Store
	userAgent string
	baseURL   string // overridable in tests
	limiter   *infra.RateLimiter
}

var filingTypesOfInterest = map[string]bool{
	"10-K": true, "10-Q": true, "8-K": true, "DEF 14A": true, "S-1": true,
	"4": true, // insider ownership
}

// NewSEC creates the EDGAR provider.
func NewSEC(st Store, userAgent string) *SEC {
	return &SEC{
		store:     st,
		userAgent: userAgent,
		baseURL:   "https://data.sec.gov",
		limiter:   infra.NewRateLimiter(1, 120*time.Millisecond),
	}
}

func (p *SEC) Name() string       { return "sec" }
func (p *SEC) IsConfigured() bool { return p.userAgent != "" }

// FetchCompanyData stores financial periods from company facts and the
// recent filing index. Skips cleanly when the entity has no CIK.
func (p *SEC) FetchCompanyData(ctx context.Context, entity models.Entity) []provider.ProviderResult {
	if entity.CIK == "" {
		return []provider.ProviderResult{
			provider.Failure(p.Name(), "financials", fmt.Errorf("no CIK for %s", entity.Ticker)),
		}
	}
	var out []provider.ProviderResult
	out = append(out, p.fetchCompanyFacts(ctx, entity))
	out = append(out, p.fetchFilings(ctx, entity))
	return out
}

// --- company facts ---

type secFactEntry struct {
	End  string  `json:"end"`
	Val  float64 `json:"val"`
	FY   int     `json:"fy"`
	FP   string  `json:"fp"`
	Form string  `json:"form"`
}

type secCompanyFacts struct {
	Facts map[string]map[string]struct {
		Units map[string][]secFactEntry `json:"units"`
	} `json:"facts"`
}

// gaapConcepts maps us-gaap tags to the canonical statement keys. Revenue
// has two tags because issuers switched vocabularies with ASC 606.
var gaapConcepts = map[string]string{
	"Revenues": "totalRevenue",
	"RevenueFromContractWithCustomerExcludingAssessedTax": "totalRevenue",
	"GrossProfit":         "grossProfit",
	"OperatingIncomeLoss": "operatingIncome",
	"NetIncomeLoss":       "netIncome",
	"EarningsPerShareBasic":   "eps",
	"EarningsPerShareDiluted": "epsDiluted",

	"Assets":                                 "totalAssets",
	"Liabilities":                            "totalLiabilities",
	"StockholdersEquity":                     "totalShareholderEquity",
	"CashAndCashEquivalentsAtCarryingValue":  "cashAndCashEquivalents",
	"AssetsCurrent":                          "totalCurrentAssets",
	"LiabilitiesCurrent":                     "totalCurrentLiabilities",
	"LongTermDebtNoncurrent":                 "longTermDebt",
	"NetCashProvidedByUsedInOperatingActivities": "operatingCashflow",
	"PaymentsToAcquirePropertyPlantAndEquipment": "capitalExpenditures",
}

func (p *SEC) fetchCompanyFacts(ctx context.Context, entity models.Entity) provider.ProviderResult {
	url := fmt.Sprintf("%s/api/xbrl/companyfacts/CIK%s.json", p.baseURL, entity.CIK)
	var facts secCompanyFacts
	if err := p.getJSON(ctx, url, &facts); err != nil {
		return provider.Failure(p.Name(), "financials", err)
	}

	periods := p.buildPeriods(entity, facts)
	stored := 0
	for _, period := range periods {
		if err := p.store.UpsertFinancialPeriod(ctx, period); err != nil {
			log.Printf("providers: sec period %s %s: %v", period.Ticker, period.PeriodEnd, err)
			continue
		}
		stored++
	}
	return provider.Success(p.Name(), "financials", stored)
}

// buildPeriods folds per-concept fact lists into one FinancialPeriod per
// (form class, period end). 10-K facts become annual periods, 10-Q
// quarterly. Later fiscal years win on duplicate period ends.
func (p *SEC) buildPeriods(entity models.Entity, facts secCompanyFacts) []models.FinancialPeriod {
	gaap := facts.Facts["us-gaap"]
	type key struct{ periodType, end string }
	acc := make(map[key]*models.FinancialPeriod)

	for tag, canonical := range gaapConcepts {
		concept, ok := gaap[tag]
		if !ok {
			continue
		}
		for unit, entries := range concept.Units {
			if unit != "USD" && !strings.HasPrefix(unit, "USD/") {
				continue
			}
			for _, e := range entries {
				var periodType string
				switch e.Form {
				case "10-K":
					periodType = "annual"
				case "10-Q":
					periodType = "quarterly"
				default:
					continue
				}
				k := key{periodType, e.End}
				fp, ok := acc[k]
				if !ok {
					fp = &models.FinancialPeriod{
						Ticker:         entity.Ticker,
						PeriodType:     periodType,
						PeriodEnd:      e.End,
						FiscalYear:     e.FY,
						FiscalQuarter:  fiscalQuarter(e.FP),
						SourceProvider: p.Name(),
					}
					if entity.ID != 0 {
						id := entity.ID
						fp.EntityID = &id
					}
					acc[k] = fp
				}
				setStatementValue(fp, canonical, e.Val)
			}
		}
	}

	out := make([]models.FinancialPeriod, 0, len(acc))
	for _, fp := range acc {
		out = append(out, *fp)
	}
	return out
}

func fiscalQuarter(fp string) int {
	switch fp {
	case "Q1":
		return 1
	case "Q2":
		return 2
	case "Q3":
		return 3
	case "Q4", "FY":
		return 4
	}
	return 0
}

// setStatementValue routes a canonical key into the right sub-document.
// Capex arrives as a positive payment figure; it is stored negated to
// match the cash-flow sign convention the other providers use.
func setStatementValue(fp *models.FinancialPeriod, key string, val float64) {
	switch key {
	case "totalRevenue":
		fp.Income.Revenue = models.Float(val)
	case "grossProfit":
		fp.Income.GrossProfit = models.Float(val)
	case "operatingIncome":
		fp.Income.OperatingIncome = models.Float(val)
	case "netIncome":
		fp.Income.NetIncome = models.Float(val)
	case "eps":
		fp.Income.EPS = models.Float(val)
	case "epsDiluted":
		fp.Income.EPSDiluted = models.Float(val)
	case "totalAssets":
		fp.Balance.TotalAssets = models.Float(val)
	case "totalLiabilities":
		fp.Balance.TotalLiabilities = models.Float(val)
	case "totalShareholderEquity":
		fp.Balance.ShareholderEquity = models.Float(val)
	case "cashAndCashEquivalents":
		fp.Balance.CashAndEquivalents = models.Float(val)
	case "totalCurrentAssets":
		fp.Balance.CurrentAssets = models.Float(val)
	case "totalCurrentLiabilities":
		fp.Balance.CurrentLiabilities = models.Float(val)
	case "longTermDebt":
		fp.Balance.LongTermDebt = models.Float(val)
	case "operatingCashflow":
		fp.CashFlow.OperatingCashFlow = models.Float(val)
	case "capitalExpenditures":
		fp.CashFlow.CapitalExpenditure = models.Float(-val)
	}
}

// --- filing index ---

type secSubmissions struct {
	Filings struct {
		Recent struct {
			AccessionNumber   []string `json:"accessionNumber"`
			FilingDate        []string `json:"filingDate"`
			Form              []string `json:"form"`
			PrimaryDocument   []string `json:"primaryDocument"`
			PrimaryDocDescrip []string `json:"primaryDocDescription"`
		} `json:"recent"`
	} `json:"filings"`
}

func (p *SEC) fetchFilings(ctx context.Context, entity models.Entity) provider.ProviderResult {
	url := fmt.Sprintf("%s/submissions/CIK%s.json", p.baseURL, entity.CIK)
	var subs secSubmissions
	if err := p.getJSON(ctx, url, &subs); err != nil {
		return provider.Failure(p.Name(), "filings", err)
	}

	recent := subs.Filings.Recent
	stored := 0
	// Parallel arrays; a truncated response can leave them ragged.
	n := len(recent.AccessionNumber)
	if len(recent.Form) < n {
		n = len(recent.Form)
	}
	if len(recent.FilingDate) < n {
		n = len(recent.FilingDate)
	}
	for i := 0; i < n && i < 100; i++ {
		form := recent.Form[i]
		if !filingTypesOfInterest[form] {
			continue
		}
		accession := recent.AccessionNumber[i]
		doc := ""
		if i < len(recent.PrimaryDocument) {
			doc = recent.PrimaryDocument[i]
		}
		desc := ""
		if i < len(recent.PrimaryDocDescrip) {
			desc = recent.PrimaryDocDescrip[i]
		}
		filing := models.EntityFiling{
			Ticker:          entity.Ticker,
			CIK:             entity.CIK,
			FilingType:      form,
			FilingDate:      recent.FilingDate[i],
			AccessionNumber: accession,
			Description:     desc,
			FilingURL: fmt.Sprintf("https://www.sec.gov/Archives/edgar/data/%s/%s/%s",
				strings.TrimLeft(entity.CIK, "0"), strings.ReplaceAll(accession, "-", ""), doc),
		}
		if err := p.store.UpsertFiling(ctx, filing); err != nil {
			log.Printf("providers: sec filing %s: %v", accession, err)
			continue
		}
		stored++
	}
	return provider.Success(p.Name(), "filings", stored)
}

func (p *SEC) getJSON(ctx context.Context, url string, out any) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	return infra.GetJSON(ctx, url, map[string]string{"User-Agent": p.userAgent}, out)
}
