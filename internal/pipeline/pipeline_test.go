package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fahimulhaque/MarketMind/internal/config"
	"github.com/fahimulhaque/MarketMind/internal/llm"
	"github.com/fahimulhaque/MarketMind/internal/provider"
	"github.com/fahimulhaque/MarketMind/internal/retrieve"
	"github.com/fahimulhaque/MarketMind/pkg/models"
)

type fakeResolver struct {
	entity models.Entity
	ok     bool
}

func (f *fakeResolver) Resolve(_ context.Context, _, _ string) (models.Entity, bool, error) {
	return f.entity, f.ok, nil
}

type fakePipeStore struct {
	mu        sync.Mutex
	existing  []models.EvidenceItem
	connected []models.ConnectedEntity
	news      []models.EvidenceItem
	signals   []models.SocialSignal
	saved     []models.SearchRecord
}

func (f *fakePipeStore) SearchInsightsByText(_ context.Context, _ string, _ int) ([]models.EvidenceItem, error) {
	return f.existing, nil
}

func (f *fakePipeStore) SaveSearchResult(_ context.Context, rec models.SearchRecord, _ []models.EvidenceItem) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, rec)
	return "search-1", nil
}

func (f *fakePipeStore) GraphConnectedEntities(_ context.Context, _ string, _ int) ([]models.ConnectedEntity, error) {
	return f.connected, nil
}

func (f *fakePipeStore) RecentNewsInsights(_ context.Context, _ string, _ int) ([]models.EvidenceItem, error) {
	return f.news, nil
}

func (f *fakePipeStore) GetSocialSignals(_ context.Context, _ string, _ int) ([]models.SocialSignal, error) {
	return f.signals, nil
}

func (f *fakePipeStore) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

type fakePipeRetriever struct{ result retrieve.Result }

func (f *fakePipeRetriever) Retrieve(_ context.Context, _, _ string) retrieve.Result {
	return f.result
}

type fakeEnricher struct {
	mu      sync.Mutex
	calls   int
	results []provider.ProviderResult
}

func (f *fakeEnricher) RunFullEnrichment(_ context.Context, entity models.Entity, onProvider func(provider.ProviderResult)) provider.EnrichmentSummary {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	for _, res := range f.results {
		if onProvider != nil {
			onProvider(res)
		}
	}
	return provider.EnrichmentSummary{
		Entity:       entity,
		ProvidersRun: f.results,
		TotalRecords: 4,
	}
}

func (f *fakeEnricher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSections struct {
	snap        *models.FinancialSnapshot
	trends      models.HistoricalTrends
	macro       models.MacroContext
	sentiment   models.SentimentSummary
	filings     []models.EntityFiling
	coverage    models.EntityCoverage
	blockTrends bool
}

func (f *fakeSections) Snapshot(_ context.Context, _ models.Entity) *models.FinancialSnapshot {
	return f.snap
}

func (f *fakeSections) Trends(ctx context.Context, _ models.Entity) models.HistoricalTrends {
	if f.blockTrends {
		<-ctx.Done()
	}
	return f.trends
}

func (f *fakeSections) Macro(_ context.Context) models.MacroContext { return f.macro }

func (f *fakeSections) Sentiment(_ context.Context, _ models.Entity) models.SentimentSummary {
	return f.sentiment
}

func (f *fakeSections) Filings(_ context.Context, _ models.Entity) []models.EntityFiling {
	return f.filings
}

func (f *fakeSections) Coverage(_ context.Context, _ models.Entity, _ *models.FinancialSnapshot, _ models.SentimentSummary) models.EntityCoverage {
	return f.coverage
}

const scenarioJSON = `[
  {"name":"Bull case","probability":0.5,"assumption":"growth holds","impact":"upside","trigger_signals":["beat"]},
  {"name":"Base case","probability":0.3,"assumption":"in line","impact":"flat","trigger_signals":["inline"]},
  {"name":"Bear case","probability":0.2,"assumption":"risks hit","impact":"downside","trigger_signals":["miss"]}
]`

type fakePipeGen struct{}

func (fakePipeGen) Generate(_ context.Context, system, _ string, _ float64, _ int) (string, error) {
	if system == llm.SystemScenario {
		return scenarioJSON, nil
	}
	return "analysis text", nil
}

func (fakePipeGen) GenerateStream(_ context.Context, system, _ string, _ float64, _ int) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, 3)
	ch <- llm.StreamChunk{Content: "alpha"}
	ch <- llm.StreamChunk{Content: "beta"}
	ch <- llm.StreamChunk{Done: true, FinishReason: llm.FinishStop}
	close(ch)
	return ch, nil
}

func testEntity() models.Entity {
	return models.Entity{Name: "Acme Corp", Ticker: "ACME", Sector: "Industrials", Industry: "Machinery"}
}

func pipeEvidence(id int64, insight string, confidence float64, threat string) models.EvidenceItem {
	return models.EvidenceItem{Insight: models.Insight{
		ID: id, SourceID: id, SourceName: fmt.Sprintf("src-%d", id),
		Insight: insight, ThreatLevel: threat, Confidence: confidence,
		CriticStatus: "approved", CreatedAt: time.Now(),
		EvidenceRef: fmt.Sprintf("ref-%d", id),
	}}
}

func freshEvidence() []models.EvidenceItem {
	return []models.EvidenceItem{
		pipeEvidence(1, "Acme expands battery output in Nevada", 0.8, "medium"),
		pipeEvidence(2, "Acme quarterly margin improved on pricing", 0.7, "low"),
		pipeEvidence(3, "Acme faces supplier audit exposure", 0.6, "high"),
	}
}

func newTestPipeline(store *fakePipeStore, result retrieve.Result, enr *fakeEnricher, sec *fakeSections, gen Generator) *Pipeline {
	deps := Deps{
		Resolver:  &fakeResolver{entity: testEntity(), ok: true},
		Store:     store,
		Retriever: &fakePipeRetriever{result: result},
		Sections:  sec,
		Generator: gen,
	}
	if enr != nil {
		deps.Enricher = enr
	}
	return New(config.PipelineConfig{TimeoutSeconds: 30, MinEvidence: 3, StaleAfterHours: 18}, deps)
}

func price(v float64) *float64 { return &v }

func TestRunAssemblesReport(t *testing.T) {
	store := &fakePipeStore{
		existing:  freshEvidence(),
		connected: []models.ConnectedEntity{{Name: "Globex", SharedEvidence: 2}},
	}
	result := retrieve.Result{
		Items:           freshEvidence(),
		SemanticMatches: 2,
		GraphRelated:    []models.RelatedSource{{SourceID: 9, Name: "supplier report"}},
	}
	sec := &fakeSections{
		snap:     &models.FinancialSnapshot{Symbol: "ACME", Price: price(101.5), Source: "fmp"},
		coverage: models.EntityCoverage{Ticker: "ACME", Score: 0.75},
	}
	p := newTestPipeline(store, result, nil, sec, fakePipeGen{})

	report, err := p.Run(context.Background(), "acme supplier risk", 10)
	require.NoError(t, err)

	assert.Equal(t, "search-1", report.SearchID)
	assert.Equal(t, "Acme Corp", report.QueryContext.Entity)
	assert.Equal(t, "risk", report.QueryContext.Intent)
	assert.Equal(t, "analysis text", report.Report.ExecutiveSummary)
	assert.Equal(t, report.Report.DecisionCard.Recommendation, report.Report.WhyItMatters)
	assert.Equal(t, "high", report.Report.DecisionCard.RiskLevel, "one high-threat item drives risk")

	require.Len(t, report.Report.Scenarios, 3)
	total := 0.0
	for _, s := range report.Report.Scenarios {
		total += s.Probability
	}
	assert.InDelta(t, 1.0, total, 1e-9)

	require.NotEmpty(t, report.Report.Citations)
	assert.LessOrEqual(t, len(report.Report.Citations), 8)
	assert.NotEmpty(t, report.Report.Citations[0].SourceName)

	assert.Equal(t, len(report.Evidence), report.KnowledgeStatus.EvidenceCount)
	assert.Equal(t, 2, report.KnowledgeStatus.SemanticMatches)
	assert.Equal(t, 1, report.KnowledgeStatus.GraphRelatedSources)
	assert.False(t, report.KnowledgeStatus.EnrichmentTriggered, "fresh evidence skips enrichment")
	require.Len(t, report.Report.RelatedEntities, 1)
	assert.Equal(t, "supplier report", report.Report.RelatedEntities[0].Name)

	require.Equal(t, 1, store.savedCount())
	assert.Equal(t, "acme supplier risk", store.saved[0].Query)
}

func TestRunTriggersEnrichmentWhenEvidenceThin(t *testing.T) {
	store := &fakePipeStore{} // no stored evidence
	enr := &fakeEnricher{results: []provider.ProviderResult{{Provider: "fmp", Success: true}}}
	p := newTestPipeline(store, retrieve.Result{Items: freshEvidence()}, enr, &fakeSections{}, nil)

	report, err := p.Run(context.Background(), "acme risk", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, enr.callCount())
	assert.True(t, report.KnowledgeStatus.EnrichmentTriggered)
}

func TestRunSkipsEnrichmentWhenFresh(t *testing.T) {
	store := &fakePipeStore{existing: freshEvidence()}
	enr := &fakeEnricher{}
	p := newTestPipeline(store, retrieve.Result{Items: freshEvidence()}, enr, &fakeSections{}, nil)

	_, err := p.Run(context.Background(), "acme risk", 10)
	require.NoError(t, err)
	assert.Equal(t, 0, enr.callCount())
}

func TestRunEmptyEvidenceDecision(t *testing.T) {
	store := &fakePipeStore{existing: freshEvidence()}
	p := newTestPipeline(store, retrieve.Result{}, nil, &fakeSections{}, nil)

	report, err := p.Run(context.Background(), "unknown entity", 10)
	require.NoError(t, err)

	card := report.Report.DecisionCard
	assert.Equal(t, noEvidenceSummary, report.Report.ExecutiveSummary)
	assert.Equal(t, noEvidenceRecommendation, card.Recommendation)
	assert.InDelta(t, 0.25, card.Confidence, 1e-9)
	assert.Equal(t, "low", card.RiskLevel)
	assert.Equal(t, []string{"No strong market shift detected from current evidence."}, report.Report.KeySignalShifts)

	require.Len(t, report.Report.Scenarios, 3, "arithmetic fallback scenarios")
	total := 0.0
	for _, s := range report.Report.Scenarios {
		total += s.Probability
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestRunTemplatedFallbacksWithoutGenerator(t *testing.T) {
	store := &fakePipeStore{existing: freshEvidence()}
	items := []models.EvidenceItem{
		pipeEvidence(1, "Acme expands battery output in Nevada beyond current plant capacity", 0.8, "medium"),
		pipeEvidence(2, "Acme quarterly margin improved on pricing", 0.7, "low"),
	}
	sec := &fakeSections{
		snap: &models.FinancialSnapshot{
			Symbol: "ACME", Price: price(101.5), MarketCap: price(2.4e12), Source: "fmp",
		},
	}
	p := newTestPipeline(store, retrieve.Result{Items: items}, nil, sec, nil)

	report, err := p.Run(context.Background(), "acme capacity", 10)
	require.NoError(t, err)

	summary := report.Report.ExecutiveSummary
	assert.Contains(t, summary, "$101.5")
	assert.Contains(t, summary, "$2.4T")
	assert.Contains(t, summary, "Based on 2 evidence sources")
	assert.Contains(t, summary, "Top signal:")
	assert.Contains(t, report.Report.DecisionCard.Recommendation, "Review supporting evidence")
	assert.NotEmpty(t, report.Report.MarketNarrative)
	assert.Contains(t, report.Report.CompetitiveLandscape, "requires more data coverage")
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 20, clampLimit(0))
	assert.Equal(t, 20, clampLimit(-3))
	assert.Equal(t, 7, clampLimit(7))
	assert.Equal(t, 50, clampLimit(99))
}

func TestAssessEvidence(t *testing.T) {
	conf, risk := assessEvidence(nil)
	assert.InDelta(t, 0.25, conf, 1e-9)
	assert.Equal(t, "low", risk)

	items := []models.EvidenceItem{
		pipeEvidence(1, "a", 0.9, "low"),
		pipeEvidence(2, "b", 0.7, "medium"),
	}
	conf, risk = assessEvidence(items)
	assert.InDelta(t, 0.8, conf, 1e-9)
	assert.Equal(t, "medium", risk)

	items = append(items, pipeEvidence(3, "c", 0.5, "high"))
	_, risk = assessEvidence(items)
	assert.Equal(t, "high", risk)
}

func TestPriceHistory(t *testing.T) {
	assert.Equal(t, map[string]any{"available": false}, priceHistory(nil))

	snap := &models.FinancialSnapshot{Price: price(150), FiftyTwoWeekRange: "100.00 - 200.00"}
	data := priceHistory(snap)
	assert.Equal(t, true, data["available"])
	assert.InDelta(t, 0.5, data["range_position"].(float64), 1e-9)

	snap = &models.FinancialSnapshot{Price: price(150), FiftyTwoWeekRange: "n/a"}
	data = priceHistory(snap)
	assert.Equal(t, true, data["available"])
	_, ok := data["range_position"]
	assert.False(t, ok, "unparseable range omits position")
}

func TestSignalShifts(t *testing.T) {
	a := pipeEvidence(1, "x", 0.8, "high")
	dup := pipeEvidence(1, "y", 0.8, "high") // same source, threat, confidence
	shifts := signalShifts([]models.EvidenceItem{a, dup, pipeEvidence(2, "z", 0.6, "low")})
	assert.Len(t, shifts, 2, "identical shift lines deduplicate")
	assert.Contains(t, shifts[0], "src-1: high risk signal")

	assert.Equal(t,
		[]string{"No strong market shift detected from current evidence."},
		signalShifts(nil))
}

func TestParseQuery(t *testing.T) {
	p := New(config.PipelineConfig{}, Deps{})
	tests := []struct {
		query     string
		timeframe string
		intent    string
	}{
		{"tesla q3 margin risk", "quarter", "risk"},
		{"acme annual revenue growth", "year", "financial"},
		{"latest pricing strategy", "recent", "market"},
		{"hello", "current", "general"},
	}
	for _, tt := range tests {
		parsed := p.parseQuery(context.Background(), tt.query)
		assert.Equal(t, tt.timeframe, parsed.Timeframe, tt.query)
		assert.Equal(t, tt.intent, parsed.Intent, tt.query)
	}

	parsed := p.parseQuery(context.Background(), "acme supplier exposure")
	assert.Equal(t, "acme", parsed.Entity.Name, "unresolved query keeps first word")
	assert.False(t, parsed.Resolved)
}

func TestParseQueryUsesResolver(t *testing.T) {
	p := New(config.PipelineConfig{}, Deps{Resolver: &fakeResolver{entity: testEntity(), ok: true}})
	parsed := p.parseQuery(context.Background(), "acme supplier exposure")
	assert.True(t, parsed.Resolved)
	assert.Equal(t, "Acme Corp", parsed.QueryContext.Entity)
	assert.Equal(t, "ACME", parsed.QueryContext.Ticker)
}

func collectEvents(ch <-chan models.StageEvent) []models.StageEvent {
	var events []models.StageEvent
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func TestRunStreamEmitsStagesInOrder(t *testing.T) {
	store := &fakePipeStore{}
	enr := &fakeEnricher{results: []provider.ProviderResult{
		{Provider: "fmp", Success: true},
		{Provider: "sec", Success: true},
	}}
	sec := &fakeSections{
		snap:     &models.FinancialSnapshot{Symbol: "ACME", Price: price(101.5), Source: "fmp"},
		coverage: models.EntityCoverage{Score: 0.6},
		filings: []models.EntityFiling{
			{Ticker: "ACME", FilingType: "10-Q", AccessionNumber: "0001-25-000001"},
			{Ticker: "ACME", FilingType: "4", AccessionNumber: "0001-25-000002"},
		},
	}
	p := newTestPipeline(store, retrieve.Result{Items: freshEvidence()}, enr, sec, fakePipeGen{})

	events := collectEvents(p.RunStream(context.Background(), "acme supplier risk", 10))
	require.NotEmpty(t, events)

	assert.Equal(t, "query_parsed", events[0].Stage)
	last := events[len(events)-1]
	assert.Equal(t, "complete", last.Stage)
	assert.InDelta(t, 1.0, last.Progress, 1e-9)

	prev := 0.0
	providerEvents := 0
	tokens := ""
	narrative := ""
	var insider []models.EntityFiling
	for _, ev := range events {
		assert.GreaterOrEqual(t, ev.Progress, prev, "progress must never regress at %s", ev.Stage)
		prev = ev.Progress
		switch ev.Stage {
		case "provider_complete":
			providerEvents++
		case "decision_token":
			tokens += ev.Data.(string)
		case "narrative_ready":
			narrative = ev.Data.(string)
		case "insider_activity":
			insider = ev.Data.([]models.EntityFiling)
			assert.InDelta(t, 0.715, ev.Progress, 1e-9)
		}
	}
	assert.Equal(t, 2, providerEvents)
	assert.Equal(t, "alphabeta", tokens)
	assert.Equal(t, "alphabeta", narrative)
	require.Len(t, insider, 1, "only ownership filings belong in insider_activity")
	assert.Equal(t, "4", insider[0].FilingType)

	payload, ok := last.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "search-1", payload["search_id"])
	assert.Equal(t, 1, store.savedCount(), "completed stream persists once")
}

func TestRunStreamCancelSkipsPersist(t *testing.T) {
	store := &fakePipeStore{existing: freshEvidence()}
	sec := &fakeSections{
		snap:        &models.FinancialSnapshot{Symbol: "ACME", Price: price(101.5), Source: "fmp"},
		blockTrends: true,
	}
	p := newTestPipeline(store, retrieve.Result{Items: freshEvidence()}, nil, sec, nil)

	ctx, cancel := context.WithCancel(context.Background())
	ch := p.RunStream(ctx, "acme supplier risk", 10)

	sawComplete := false
	for ev := range ch {
		if ev.Stage == "financial_snapshot" {
			cancel()
		}
		if ev.Stage == "complete" {
			sawComplete = true
		}
	}
	cancel()

	assert.False(t, sawComplete, "cancelled stream must not complete")
	assert.Equal(t, 0, store.savedCount(), "cancelled stream must not persist")
}
