package models

import "encoding/json"

// Statement types model the four sparse financial sub-documents stored per
// FinancialPeriod. Known fields are typed; provider-specific keys that do
// not map to a canonical field land in Extra. Serialization flattens Extra
// into the same JSON object so the persisted shape stays an open map.

// IncomeStatement holds canonical income-statement line items.
type IncomeStatement struct {
	Revenue         *float64
	CostOfRevenue   *float64
	GrossProfit     *float64
	OperatingIncome *float64
	NetIncome       *float64
	EPS             *float64
	EPSDiluted      *float64
	Extra           map[string]float64
}

// BalanceSheet holds canonical balance-sheet line items.
type BalanceSheet struct {
	TotalAssets        *float64
	TotalLiabilities   *float64
	ShareholderEquity  *float64
	CashAndEquivalents *float64
	CurrentAssets      *float64
	CurrentLiabilities *float64
	LongTermDebt       *float64
	Extra              map[string]float64
}

// CashFlowStatement holds canonical cash-flow line items.
type CashFlowStatement struct {
	OperatingCashFlow  *float64
	CapitalExpenditure *float64
	FreeCashFlow       *float64
	DividendsPaid      *float64
	Extra              map[string]float64
}

// KeyMetrics holds canonical valuation and quality ratios.
type KeyMetrics struct {
	PERatio            *float64
	PBRatio            *float64
	DebtToEquity       *float64
	CurrentRatio       *float64
	ReturnOnEquity     *float64
	AnalystTargetPrice *float64
	Extra              map[string]float64
}

// Canonical JSON keys match the upstream provider vocabulary so rows written
// by different providers deep-merge cleanly.
func (s *IncomeStatement) fields() map[string]**float64 {
	return map[string]**float64{
		"totalRevenue":    &s.Revenue,
		"costOfRevenue":   &s.CostOfRevenue,
		"grossProfit":     &s.GrossProfit,
		"operatingIncome": &s.OperatingIncome,
		"netIncome":       &s.NetIncome,
		"eps":             &s.EPS,
		"epsDiluted":      &s.EPSDiluted,
	}
}

func (s *BalanceSheet) fields() map[string]**float64 {
	return map[string]**float64{
		"totalAssets":             &s.TotalAssets,
		"totalLiabilities":        &s.TotalLiabilities,
		"totalShareholderEquity":  &s.ShareholderEquity,
		"cashAndCashEquivalents":  &s.CashAndEquivalents,
		"totalCurrentAssets":      &s.CurrentAssets,
		"totalCurrentLiabilities": &s.CurrentLiabilities,
		"longTermDebt":            &s.LongTermDebt,
	}
}

func (s *CashFlowStatement) fields() map[string]**float64 {
	return map[string]**float64{
		"operatingCashflow":  &s.OperatingCashFlow,
		"capitalExpenditure": &s.CapitalExpenditure,
		"freeCashFlow":       &s.FreeCashFlow,
		"dividendsPaid":      &s.DividendsPaid,
	}
}

func (s *KeyMetrics) fields() map[string]**float64 {
	return map[string]**float64{
		"peRatio":            &s.PERatio,
		"pbRatio":            &s.PBRatio,
		"debtToEquity":       &s.DebtToEquity,
		"currentRatio":       &s.CurrentRatio,
		"roe":                &s.ReturnOnEquity,
		"analystTargetPrice": &s.AnalystTargetPrice,
	}
}

func marshalStatement(fields map[string]**float64, extra map[string]float64) ([]byte, error) {
	out := make(map[string]float64, len(fields)+len(extra))
	for key, ptr := range fields {
		if *ptr != nil {
			out[key] = **ptr
		}
	}
	for key, val := range extra {
		if _, ok := out[key]; !ok {
			out[key] = val
		}
	}
	return json.Marshal(out)
}

func unmarshalStatement(data []byte, fields map[string]**float64) (map[string]float64, error) {
	var raw map[string]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	var extra map[string]float64
	for key, val := range raw {
		if ptr, ok := fields[key]; ok {
			v := val
			*ptr = &v
			continue
		}
		if extra == nil {
			extra = make(map[string]float64)
		}
		extra[key] = val
	}
	return extra, nil
}

func mergeFields(dst, src map[string]**float64, dstExtra map[string]float64, srcExtra map[string]float64) map[string]float64 {
	for key, srcPtr := range src {
		if *srcPtr != nil {
			v := **srcPtr
			*dst[key] = &v
		}
	}
	if len(srcExtra) == 0 {
		return dstExtra
	}
	if dstExtra == nil {
		dstExtra = make(map[string]float64, len(srcExtra))
	}
	for key, val := range srcExtra {
		dstExtra[key] = val
	}
	return dstExtra
}

func (s IncomeStatement) MarshalJSON() ([]byte, error) {
	return marshalStatement(s.fields(), s.Extra)
}

func (s *IncomeStatement) UnmarshalJSON(data []byte) error {
	extra, err := unmarshalStatement(data, s.fields())
	s.Extra = extra
	return err
}

// IsEmpty reports whether no fields are set. Empty statements preserve the
// stored sub-document on upsert.
func (s IncomeStatement) IsEmpty() bool { return statementEmpty(s.fields(), s.Extra) }

// Merge overlays set fields from other onto s, field by field.
func (s *IncomeStatement) Merge(other IncomeStatement) {
	s.Extra = mergeFields(s.fields(), other.fields(), s.Extra, other.Extra)
}

func (s BalanceSheet) MarshalJSON() ([]byte, error) {
	return marshalStatement(s.fields(), s.Extra)
}

func (s *BalanceSheet) UnmarshalJSON(data []byte) error {
	extra, err := unmarshalStatement(data, s.fields())
	s.Extra = extra
	return err
}

func (s BalanceSheet) IsEmpty() bool { return statementEmpty(s.fields(), s.Extra) }

func (s *BalanceSheet) Merge(other BalanceSheet) {
	s.Extra = mergeFields(s.fields(), other.fields(), s.Extra, other.Extra)
}

func (s CashFlowStatement) MarshalJSON() ([]byte, error) {
	return marshalStatement(s.fields(), s.Extra)
}

func (s *CashFlowStatement) UnmarshalJSON(data []byte) error {
	extra, err := unmarshalStatement(data, s.fields())
	s.Extra = extra
	return err
}

func (s CashFlowStatement) IsEmpty() bool { return statementEmpty(s.fields(), s.Extra) }

func (s *CashFlowStatement) Merge(other CashFlowStatement) {
	s.Extra = mergeFields(s.fields(), other.fields(), s.Extra, other.Extra)
}

func (s KeyMetrics) MarshalJSON() ([]byte, error) {
	return marshalStatement(s.fields(), s.Extra)
}

func (s *KeyMetrics) UnmarshalJSON(data []byte) error {
	extra, err := unmarshalStatement(data, s.fields())
	s.Extra = extra
	return err
}

func (s KeyMetrics) IsEmpty() bool { return statementEmpty(s.fields(), s.Extra) }

func (s *KeyMetrics) Merge(other KeyMetrics) {
	s.Extra = mergeFields(s.fields(), other.fields(), s.Extra, other.Extra)
}

func statementEmpty(fields map[string]**float64, extra map[string]float64) bool {
	if len(extra) > 0 {
		return false
	}
	for _, ptr := range fields {
		if *ptr != nil {
			return false
		}
	}
	return true
}

// Float returns a pointer to v, for building sparse statements.
func Float(v float64) *float64 { return &v }
