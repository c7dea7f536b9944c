package models

import "time"

// QueryContext is the parsed interpretation of a free-text query.
type QueryContext struct {
	Entity    string `json:"entity"`
	Ticker    string `json:"ticker,omitempty"`
	Timeframe string `json:"timeframe"` // current|quarter|year|recent
	Intent    string `json:"intent"`    // general|risk|financial|market
}

// DecisionCard is the headline recommendation of a report.
type DecisionCard struct {
	Recommendation string  `json:"recommendation"`
	Confidence     float64 `json:"confidence"`
	RiskLevel      string  `json:"risk_level"` // low|medium|high
}

// Scenario is one forward-looking outcome with a normalized probability.
type Scenario struct {
	Name           string   `json:"name"`
	Probability    float64  `json:"probability"`
	Assumption     string   `json:"assumption"`
	Impact         string   `json:"impact"`
	TriggerSignals []string `json:"trigger_signals"`
}

// Citation points a report statement back at its evidence.
type Citation struct {
	SourceName  string  `json:"source_name"`
	EvidenceRef string  `json:"evidence_ref,omitempty"`
	Confidence  float64 `json:"confidence"`
}

// ReportBody is the analytic core of a search result.
type ReportBody struct {
	ExecutiveSummary     string             `json:"executive_summary"`
	DecisionCard         DecisionCard       `json:"decision_card"`
	FinancialPerformance *FinancialSnapshot `json:"financial_performance,omitempty"`
	HistoricalTrends     *HistoricalTrends  `json:"historical_trends,omitempty"`
	TrendAnalysis        string             `json:"trend_analysis,omitempty"`
	MacroContext         *MacroContext      `json:"macro_context,omitempty"`
	SocialSentiment      *SentimentSummary  `json:"social_sentiment,omitempty"`
	Filings              []EntityFiling     `json:"filings,omitempty"`
	Coverage             *EntityCoverage    `json:"coverage,omitempty"`
	RelatedEntities      []ConnectedEntity  `json:"related_entities"`
	MarketNarrative      string             `json:"market_narrative,omitempty"`
	WhyItMatters         string             `json:"why_it_matters,omitempty"`
	KeySignalShifts      []string           `json:"key_signal_shifts"`
	Scenarios            []Scenario         `json:"scenarios"`
	Contradictions       []Contradiction    `json:"contradictions"`
	Citations            []Citation         `json:"citations"`
	CompetitiveLandscape string             `json:"competitive_landscape,omitempty"`
	ValidationWarnings   []string           `json:"validation_warnings,omitempty"`
}

// KnowledgeStatus describes what the engine knew when answering.
type KnowledgeStatus struct {
	EvidenceCount          int               `json:"evidence_count"`
	SemanticMatches        int               `json:"semantic_matches"`
	GraphRelatedSources    int               `json:"graph_related_sources"`
	ConnectedEntities      []ConnectedEntity `json:"connected_entities"`
	EnrichmentTriggered    bool              `json:"enrichment_triggered"`
	BackgroundPriorityTask string            `json:"background_priority_task_id,omitempty"`
	Enrichment             any               `json:"enrichment,omitempty"`
}

// Report is the full JSON payload returned by a batch query.
type Report struct {
	SearchID        string          `json:"search_id"`
	GeneratedAt     time.Time       `json:"generated_at"`
	QueryContext    QueryContext    `json:"query_context"`
	Report          ReportBody      `json:"report"`
	KnowledgeStatus KnowledgeStatus `json:"knowledge_status"`
	Evidence        []EvidenceItem  `json:"evidence"`
}

// StageEvent is one message on the streaming channel: a completed pipeline
// phase or a single generated token.
type StageEvent struct {
	Stage    string  `json:"stage"`
	Progress float64 `json:"progress"`
	Data     any     `json:"data,omitempty"`
	Message  string  `json:"message,omitempty"`
}

// SearchRecord is the persisted history row for an executed query.
type SearchRecord struct {
	ID             string    `json:"id"`
	Query          string    `json:"query"`
	Answer         string    `json:"answer"`
	Confidence     float64   `json:"confidence"`
	RiskLevel      string    `json:"risk_level"`
	Recommendation string    `json:"recommendation"`
	CreatedAt      time.Time `json:"created_at"`
}
