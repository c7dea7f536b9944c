package pipeline

import (
	"context"
	"log"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fahimulhaque/MarketMind/internal/config"
	"github.com/fahimulhaque/MarketMind/internal/enrich"
	"github.com/fahimulhaque/MarketMind/internal/llm"
	"github.com/fahimulhaque/MarketMind/internal/provider"
	"github.com/fahimulhaque/MarketMind/internal/rank"
	"github.com/fahimulhaque/MarketMind/internal/retrieve"
	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// Generation parameters per report section.
const (
	summaryTemp, summaryTokens         = 0.25, 384
	narrativeTemp, narrativeTokens     = 0.3, 512
	scenariosTemp, scenariosTokens     = 0.3, 512
	recommendTemp, recommendTokens     = 0.25, 192
	trendTemp, trendTokens             = 0.25, 256
	competitiveTemp, competitiveTokens = 0.3, 384

	defaultLimit = 20
	maxLimit     = 50

	refreshProbeLimit = 5
	connectedLimit    = 5
	citationLimit     = 8
)

// Resolver turns free text into a canonical entity.
type Resolver interface {
	Resolve(ctx context.Context, query, preTicker string) (models.Entity, bool, error)
}

// Retriever runs hybrid retrieval for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query, entityName string) retrieve.Result
}

// Enricher runs the provider enrichment pass for an entity.
type Enricher interface {
	RunFullEnrichment(ctx context.Context, entity models.Entity, onProvider func(provider.ProviderResult)) provider.EnrichmentSummary
}

// Sections builds the data-driven report sections.
type Sections interface {
	Snapshot(ctx context.Context, entity models.Entity) *models.FinancialSnapshot
	Trends(ctx context.Context, entity models.Entity) models.HistoricalTrends
	Macro(ctx context.Context) models.MacroContext
	Sentiment(ctx context.Context, entity models.Entity) models.SentimentSummary
	Filings(ctx context.Context, entity models.Entity) []models.EntityFiling
	Coverage(ctx context.Context, entity models.Entity, snap *models.FinancialSnapshot, sentiment models.SentimentSummary) models.EntityCoverage
}

// Generator is the LLM surface the pipeline writes prose through.
type Generator interface {
	Generate(ctx context.Context, system, prompt string, temperature float64, maxTokens int) (string, error)
	GenerateStream(ctx context.Context, system, prompt string, temperature float64, maxTokens int) (<-chan llm.StreamChunk, error)
}

// Store is the repository surface the orchestrator needs directly.
type Store interface {
	SearchInsightsByText(ctx context.Context, query string, limit int) ([]models.EvidenceItem, error)
	SaveSearchResult(ctx context.Context, rec models.SearchRecord, evidence []models.EvidenceItem) (string, error)
	GraphConnectedEntities(ctx context.Context, entityName string, limit int) ([]models.ConnectedEntity, error)
	RecentNewsInsights(ctx context.Context, entityName string, limit int) ([]models.EvidenceItem, error)
	GetSocialSignals(ctx context.Context, ticker string, days int) ([]models.SocialSignal, error)
}

// PriorityIngest schedules a background priority ingestion for a query
// and returns a task identifier. Failures are swallowed by the caller.
type PriorityIngest func(ctx context.Context, query string) (string, error)

// Deps bundles the pipeline collaborators. Generator and Priority are
// optional; a nil Generator routes every section to its template
// fallback.
type Deps struct {
	Resolver  Resolver
	Store     Store
	Retriever Retriever
	Enricher  Enricher
	Sections  Sections
	Generator Generator
	Priority  PriorityIngest
}

// Pipeline orchestrates intelligence queries.
type Pipeline struct {
	cfg       config.PipelineConfig
	resolver  Resolver
	store     Store
	retriever Retriever
	enricher  Enricher
	sections  Sections
	gen       Generator
	priority  PriorityIngest
	ranker    *rank.Ranker
	now       func() time.Time
}

// New creates a pipeline.
func New(cfg config.PipelineConfig, d Deps) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		resolver:  d.Resolver,
		store:     d.Store,
		retriever: d.Retriever,
		enricher:  d.Enricher,
		sections:  d.Sections,
		gen:       d.Generator,
		priority:  d.Priority,
		ranker:    rank.New(),
		now:       time.Now,
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

func (p *Pipeline) minEvidence() int {
	if p.cfg.MinEvidence > 0 {
		return p.cfg.MinEvidence
	}
	return 3
}

func (p *Pipeline) staleAfter() time.Duration {
	if p.cfg.StaleAfterHours > 0 {
		return time.Duration(p.cfg.StaleAfterHours) * time.Hour
	}
	return 18 * time.Hour
}

// decision is the numeric decision state shared by batch and stream.
type decision struct {
	Summary        string
	Confidence     float64
	RiskLevel      string
	Recommendation string
}

// assessEvidence derives confidence and risk from the top five items.
func assessEvidence(items []models.EvidenceItem) (float64, string) {
	n := len(items)
	if n > 5 {
		n = 5
	}
	if n == 0 {
		return 0.25, "low"
	}
	total := 0.0
	maxThreat := 1
	for _, item := range items[:n] {
		total += item.Confidence
		if rung := threatRank(item.ThreatLevel); rung > maxThreat {
			maxThreat = rung
		}
	}
	avg := math.Round(total/float64(n)*1000) / 1000
	risk := "low"
	switch maxThreat {
	case 2:
		risk = "medium"
	case 3:
		risk = "high"
	}
	return avg, risk
}

func threatRank(level string) int {
	switch level {
	case "high":
		return 3
	case "medium":
		return 2
	}
	return 1
}

// generated holds the LLM outputs of one query; empty fields mean the
// backend declined and templates take over.
type generated struct {
	Summary        string
	Narrative      string
	TrendAnalysis  string
	Competitive    string
	Recommendation string
	Scenarios      []models.Scenario
}

// generateAll runs the independent prompts concurrently. The generation
// client's semaphore and cloud serialization bound the real parallelism;
// the recommendation waits for the summary it builds on.
func (p *Pipeline) generateAll(ctx context.Context, parsed ParsedQuery, query string, top []models.EvidenceItem, snap *models.FinancialSnapshot, trends models.HistoricalTrends, macro models.MacroContext, sentiment models.SentimentSummary, coverage models.EntityCoverage, contradictions []models.Contradiction) generated {
	var out generated
	if p.gen == nil || len(top) == 0 {
		return out
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		text, err := p.gen.Generate(gctx, llm.SystemAnalyst,
			llm.ExecutiveSummaryPrompt(query, top, snap, macro, sentiment, trends), summaryTemp, summaryTokens)
		if err == nil {
			out.Summary = text
		}
		return nil
	})
	g.Go(func() error {
		text, err := p.gen.Generate(gctx, llm.SystemAnalyst,
			llm.NarrativePrompt(query, top, snap, trends, macro, sentiment, coverage.Score, ""), narrativeTemp, narrativeTokens)
		if err == nil {
			out.Narrative = text
		}
		return nil
	})
	g.Go(func() error {
		text, err := p.gen.Generate(gctx, llm.SystemScenario,
			llm.ScenariosPrompt(query, top, snap, trends, macro), scenariosTemp, scenariosTokens)
		if err != nil {
			return nil
		}
		var raw []models.Scenario
		if !llm.ParseJSONArray(text, &raw) {
			return nil
		}
		if normalized, ok := enrich.NormalizeScenarios(raw); ok {
			out.Scenarios = normalized
		}
		return nil
	})
	g.Go(func() error {
		text, err := p.gen.Generate(gctx, llm.SystemCompetitive,
			llm.CompetitivePrompt(query, parsed.Entity.Ticker, parsed.Entity.Sector, parsed.Entity.Industry, top, snap), competitiveTemp, competitiveTokens)
		if err == nil {
			out.Competitive = text
		}
		return nil
	})
	if trends.Available && parsed.Entity.Ticker != "" {
		g.Go(func() error {
			text, err := p.gen.Generate(gctx, llm.SystemAnalyst,
				llm.TrendAnalysisPrompt(parsed.Entity.Ticker, trends), trendTemp, trendTokens)
			if err == nil {
				out.TrendAnalysis = text
			}
			return nil
		})
	}
	_ = g.Wait()

	// The recommendation references the summary, so it runs after.
	avgConfidence, riskLevel := assessEvidence(top)
	summaryExcerpt := out.Summary
	if len(summaryExcerpt) > 200 {
		summaryExcerpt = summaryExcerpt[:200]
	}
	var price *float64
	if snap != nil {
		price = snap.Price
	}
	card := models.DecisionCard{Confidence: avgConfidence, RiskLevel: riskLevel}
	text, err := p.gen.Generate(ctx, llm.SystemAnalyst,
		llm.RecommendationPrompt(query, card, price, summaryExcerpt, contradictions, coverage.Score), recommendTemp, recommendTokens)
	if err == nil {
		out.Recommendation = text
	}
	return out
}

// buildDecision folds LLM output and fallbacks into the decision card.
func (p *Pipeline) buildDecision(query string, top []models.EvidenceItem, snap *models.FinancialSnapshot, gen generated, contradicted bool) decision {
	if len(top) == 0 {
		return decision{
			Summary:        noEvidenceSummary,
			Confidence:     0.25,
			RiskLevel:      "low",
			Recommendation: noEvidenceRecommendation,
		}
	}
	avgConfidence, riskLevel := assessEvidence(top)
	d := decision{Confidence: avgConfidence, RiskLevel: riskLevel}

	d.Summary = gen.Summary
	if d.Summary == "" {
		d.Summary = fallbackSummary(query, snap, top)
	}
	d.Recommendation = gen.Recommendation
	if d.Recommendation == "" {
		n := len(top)
		if n > 5 {
			n = 5
		}
		d.Recommendation = fallbackRecommendation(riskLevel, avgConfidence, n, contradicted)
	}
	return d
}

func citations(items []models.EvidenceItem) []models.Citation {
	n := len(items)
	if n > citationLimit {
		n = citationLimit
	}
	out := make([]models.Citation, 0, n)
	for _, item := range items[:n] {
		out = append(out, models.Citation{
			SourceName:  item.SourceName,
			EvidenceRef: item.EvidenceRef,
			Confidence:  item.Confidence,
		})
	}
	return out
}

func relatedEntities(related []models.RelatedSource) []models.ConnectedEntity {
	var out []models.ConnectedEntity
	for i, rel := range related {
		if i == connectedLimit {
			break
		}
		out = append(out, models.ConnectedEntity{Name: rel.Name, SharedEvidence: 1})
	}
	return out
}

// Run executes the batch pipeline and returns the assembled report.
func (p *Pipeline) Run(ctx context.Context, query string, limit int) (*models.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout())
	defer cancel()
	limit = clampLimit(limit)

	parsed := p.parseQuery(ctx, query)

	// Best-effort background priority ingestion.
	taskID := ""
	if p.priority != nil {
		id, err := p.priority(ctx, query)
		if err != nil {
			log.Printf("pipeline: priority ingestion unavailable: %v", err)
		} else {
			taskID = id
		}
	}

	// Refresh provider data when stored evidence is thin or stale.
	var enrichment *provider.EnrichmentSummary
	existing, err := p.store.SearchInsightsByText(ctx, query, refreshProbeLimit)
	if err != nil {
		log.Printf("pipeline: refresh probe: %v", err)
	}
	if p.ranker.NeedsRefresh(existing, p.minEvidence(), p.staleAfter()) && p.enricher != nil {
		summary := p.enricher.RunFullEnrichment(ctx, parsed.Entity, nil)
		enrichment = &summary
	}

	retrieved := p.retriever.Retrieve(ctx, query, parsed.Entity.Name)
	ranked := p.ranker.Rank(retrieved.Items, parsed.Entity, parsed.Tokens)
	top := ranked
	if len(top) > limit {
		top = top[:limit]
	}

	snap := p.sections.Snapshot(ctx, parsed.Entity)
	trends := p.sections.Trends(ctx, parsed.Entity)
	macro := p.sections.Macro(ctx)
	sentiment := p.sections.Sentiment(ctx, parsed.Entity)
	coverage := p.sections.Coverage(ctx, parsed.Entity, snap, sentiment)
	filings := p.sections.Filings(ctx, parsed.Entity)
	contradictions := rank.DetectContradictions(top)

	gen := p.generateAll(ctx, parsed, query, top, snap, trends, macro, sentiment, coverage, contradictions)
	d := p.buildDecision(query, top, snap, gen, len(contradictions) > 0)

	scenarios := gen.Scenarios
	if scenarios == nil {
		scenarios = enrich.FallbackScenarios(parsed.Entity.Name, d.Confidence)
	}
	narrative := gen.Narrative
	if narrative == "" {
		narrative = fallbackNarrative(parsed.QueryContext, top, trends, sentiment, coverage)
	}
	competitive := gen.Competitive
	if competitive == "" {
		competitive = fallbackCompetitive(query, coverage.Score)
	}

	connected, err := p.store.GraphConnectedEntities(ctx, parsed.Entity.Name, connectedLimit)
	if err != nil {
		log.Printf("pipeline: connected entities: %v", err)
	}

	var warnings []string
	if snap != nil {
		warnings = snap.Warnings
	}
	report := &models.Report{
		GeneratedAt:  p.now().UTC(),
		QueryContext: parsed.QueryContext,
		Report: models.ReportBody{
			ExecutiveSummary: d.Summary,
			DecisionCard: models.DecisionCard{
				Recommendation: d.Recommendation,
				Confidence:     d.Confidence,
				RiskLevel:      d.RiskLevel,
			},
			FinancialPerformance: snap,
			HistoricalTrends:     &trends,
			TrendAnalysis:        gen.TrendAnalysis,
			MacroContext:         &macro,
			SocialSentiment:      &sentiment,
			Filings:              filings,
			Coverage:             &coverage,
			RelatedEntities:      relatedEntities(retrieved.GraphRelated),
			MarketNarrative:      narrative,
			WhyItMatters:         d.Recommendation,
			KeySignalShifts:      signalShifts(top),
			Scenarios:            scenarios,
			Contradictions:       contradictions,
			Citations:            citations(top),
			CompetitiveLandscape: competitive,
			ValidationWarnings:   warnings,
		},
		KnowledgeStatus: models.KnowledgeStatus{
			EvidenceCount:          len(top),
			SemanticMatches:        retrieved.SemanticMatches,
			GraphRelatedSources:    len(retrieved.GraphRelated),
			ConnectedEntities:      connected,
			EnrichmentTriggered:    enrichment != nil,
			BackgroundPriorityTask: taskID,
			Enrichment:             enrichment,
		},
		Evidence: top,
	}

	searchID, err := p.store.SaveSearchResult(ctx, models.SearchRecord{
		Query:          query,
		Answer:         d.Summary,
		Confidence:     d.Confidence,
		RiskLevel:      d.RiskLevel,
		Recommendation: d.Recommendation,
	}, top)
	if err != nil {
		log.Printf("pipeline: persist search: %v", err)
	}
	report.SearchID = searchID
	return report, nil
}
