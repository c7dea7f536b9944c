package pipeline

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"

	"github.com/fahimulhaque/MarketMind/internal/enrich"
	"github.com/fahimulhaque/MarketMind/internal/provider"
	"github.com/fahimulhaque/MarketMind/internal/rank"
	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// Stage progress anchors. Token events repeat their anchor; every
// non-token stage is strictly later than the one before it, so a
// consumer can render a monotone progress bar straight off the feed.
const (
	progQueryParsed        = 0.05
	progEnrichmentStarted  = 0.08
	progProviderComplete   = 0.12
	progEnrichmentComplete = 0.20
	progRetrievalStarted   = 0.22
	progRetrievalComplete  = 0.30
	progRankingComplete    = 0.35
	progSnapshot           = 0.42
	progAnalystConsensus   = 0.435
	progTrends             = 0.50
	progMacro              = 0.56
	progSentiment          = 0.62
	progMarketNews         = 0.64
	progCoverage           = 0.65
	progFilings            = 0.70
	progInsiderActivity    = 0.715
	progAnalyzing          = 0.72
	progDecisionToken      = 0.74
	progDecisionReady      = 0.78
	progNarrativeStarted   = 0.80
	progNarrativeToken     = 0.82
	progNarrativeReady     = 0.85
	progScenariosReady     = 0.90
	progCompetitiveStarted = 0.91
	progCompetitiveToken   = 0.92
	progCompetitive        = 0.93
	progPriceHistory       = 0.95
	progComplete           = 1.00
)

const analystPlatform = "finviz_analyst"

// RunStream executes the pipeline progressively, emitting one event per
// completed stage plus token events for the generated prose. The channel
// closes when the run finishes, fails, or the context is cancelled; a
// cancelled run persists nothing.
func (p *Pipeline) RunStream(ctx context.Context, query string, limit int) <-chan models.StageEvent {
	out := make(chan models.StageEvent)
	go func() {
		defer close(out)
		ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout())
		defer cancel()
		p.runStream(ctx, out, query, clampLimit(limit))
	}()
	return out
}

func (p *Pipeline) runStream(ctx context.Context, out chan<- models.StageEvent, query string, limit int) {
	emit := func(stage string, progress float64, data any, message string) bool {
		select {
		case out <- models.StageEvent{Stage: stage, Progress: progress, Data: data, Message: message}:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(err error) {
		// Terminal error event; cancelled consumers get nothing.
		select {
		case out <- models.StageEvent{Stage: "error", Progress: progComplete, Message: err.Error()}:
		case <-ctx.Done():
		}
	}

	parsed := p.parseQuery(ctx, query)
	if !emit("query_parsed", progQueryParsed, map[string]any{
		"entity":    parsed.Entity.Name,
		"ticker":    parsed.Entity.Ticker,
		"timeframe": parsed.Timeframe,
		"intent":    parsed.Intent,
		"resolved":  parsed.Resolved,
	}, "") {
		return
	}

	taskID := ""
	if p.priority != nil {
		if id, err := p.priority(ctx, query); err != nil {
			log.Printf("pipeline: priority ingestion unavailable: %v", err)
		} else {
			taskID = id
		}
	}

	var enrichment *provider.EnrichmentSummary
	existing, err := p.store.SearchInsightsByText(ctx, query, refreshProbeLimit)
	if err != nil {
		log.Printf("pipeline: refresh probe: %v", err)
	}
	if p.ranker.NeedsRefresh(existing, p.minEvidence(), p.staleAfter()) && p.enricher != nil {
		if !emit("enrichment_started", progEnrichmentStarted, map[string]any{"entity": parsed.Entity.Name}, "") {
			return
		}
		cancelled := false
		summary := p.enricher.RunFullEnrichment(ctx, parsed.Entity, func(res provider.ProviderResult) {
			if cancelled {
				return
			}
			if !emit("provider_complete", progProviderComplete, res, "") {
				cancelled = true
			}
		})
		if cancelled {
			return
		}
		enrichment = &summary
		if !emit("enrichment_complete", progEnrichmentComplete, map[string]any{
			"providers_run":          len(summary.ProvidersRun),
			"total_records":          summary.TotalRecords,
			"rss_sources_discovered": summary.RSSSourcesDiscovered,
		}, "") {
			return
		}
	}

	if !emit("retrieval_started", progRetrievalStarted, nil, "") {
		return
	}
	retrieved := p.retriever.Retrieve(ctx, query, parsed.Entity.Name)
	if !emit("retrieval_complete", progRetrievalComplete, map[string]any{
		"candidates":       len(retrieved.Items),
		"semantic_matches": retrieved.SemanticMatches,
		"graph_related":    len(retrieved.GraphRelated),
	}, "") {
		return
	}

	ranked := p.ranker.Rank(retrieved.Items, parsed.Entity, parsed.Tokens)
	top := ranked
	if len(top) > limit {
		top = top[:limit]
	}
	contradictions := rank.DetectContradictions(top)
	if !emit("ranking_complete", progRankingComplete, map[string]any{
		"evidence_count": len(top),
		"contradictions": len(contradictions),
	}, "") {
		return
	}

	snap := p.sections.Snapshot(ctx, parsed.Entity)
	if !emit("financial_snapshot", progSnapshot, snap, "") {
		return
	}
	if consensus := p.analystConsensus(ctx, parsed.Entity.Ticker); consensus != nil {
		if !emit("analyst_consensus", progAnalystConsensus, consensus, "") {
			return
		}
	}
	trends := p.sections.Trends(ctx, parsed.Entity)
	if !emit("historical_trends", progTrends, trends, "") {
		return
	}
	macro := p.sections.Macro(ctx)
	if !emit("macro_context", progMacro, macro, "") {
		return
	}
	sentiment := p.sections.Sentiment(ctx, parsed.Entity)
	if !emit("social_sentiment", progSentiment, sentiment, "") {
		return
	}
	if news, err := p.store.RecentNewsInsights(ctx, parsed.Entity.Name, 5); err != nil {
		log.Printf("pipeline: market news: %v", err)
	} else if len(news) > 0 {
		if !emit("market_news", progMarketNews, news, "") {
			return
		}
	}
	coverage := p.sections.Coverage(ctx, parsed.Entity, snap, sentiment)
	if !emit("coverage", progCoverage, coverage, "") {
		return
	}
	filings := p.sections.Filings(ctx, parsed.Entity)
	if !emit("filings", progFilings, filings, "") {
		return
	}
	if insider := ownershipFilings(filings); len(insider) > 0 {
		if !emit("insider_activity", progInsiderActivity, insider, "") {
			return
		}
	}

	if !emit("analyzing", progAnalyzing, nil, "Synthesizing decision from evidence") {
		return
	}

	gen, ok := p.streamGenerated(ctx, emit, parsed, query, top, snap, trends, macro, sentiment, coverage, contradictions)
	if !ok {
		return
	}
	d := p.buildDecision(query, top, snap, gen.generated, len(contradictions) > 0)
	if !emit("decision_ready", progDecisionReady, models.DecisionCard{
		Recommendation: d.Recommendation,
		Confidence:     d.Confidence,
		RiskLevel:      d.RiskLevel,
	}, "") {
		return
	}

	if !emit("narrative_started", progNarrativeStarted, nil, "") {
		return
	}
	narrative, ok := gen.narrative(ctx, emit, d)
	if !ok {
		return
	}
	if narrative == "" {
		narrative = fallbackNarrative(parsed.QueryContext, top, trends, sentiment, coverage)
	}
	if !emit("narrative_ready", progNarrativeReady, narrative, "") {
		return
	}

	scenarios := gen.scenarios(ctx)
	if scenarios == nil {
		scenarios = enrich.FallbackScenarios(parsed.Entity.Name, d.Confidence)
	}
	if !emit("scenarios_ready", progScenariosReady, scenarios, "") {
		return
	}

	if !emit("competitive_started", progCompetitiveStarted, nil, "") {
		return
	}
	competitive, ok := gen.competitive(ctx, emit)
	if !ok {
		return
	}
	if competitive == "" {
		competitive = fallbackCompetitive(query, coverage.Score)
	}
	if !emit("competitive_landscape", progCompetitive, competitive, "") {
		return
	}

	if !emit("price_history", progPriceHistory, priceHistory(snap), "") {
		return
	}

	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			fail(err)
		}
		return
	}

	connected, err := p.store.GraphConnectedEntities(ctx, parsed.Entity.Name, connectedLimit)
	if err != nil {
		log.Printf("pipeline: connected entities: %v", err)
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

	emit("complete", progComplete, map[string]any{
		"search_id": searchID,
		"knowledge_status": models.KnowledgeStatus{
			EvidenceCount:          len(top),
			SemanticMatches:        retrieved.SemanticMatches,
			GraphRelatedSources:    len(retrieved.GraphRelated),
			ConnectedEntities:      connected,
			EnrichmentTriggered:    enrichment != nil,
			BackgroundPriorityTask: taskID,
		},
	}, "")
}

// analystConsensus returns the latest analyst-platform social signal for
// the ticker, or nil when none is stored.
// ownershipFilings picks the Form 4 insider filings out of the filing
// index, newest first as stored.
func ownershipFilings(filings []models.EntityFiling) []models.EntityFiling {
	var insider []models.EntityFiling
	for _, f := range filings {
		if f.FilingType == "4" {
			insider = append(insider, f)
		}
	}
	return insider
}

func (p *Pipeline) analystConsensus(ctx context.Context, ticker string) *models.SocialSignal {
	if ticker == "" {
		return nil
	}
	signals, err := p.store.GetSocialSignals(ctx, ticker, 30)
	if err != nil {
		log.Printf("pipeline: analyst consensus: %v", err)
		return nil
	}
	for i := range signals {
		if signals[i].Platform == analystPlatform {
			return &signals[i]
		}
	}
	return nil
}

// priceHistory condenses the snapshot into the closing price-history
// payload: current price against the 52-week range.
func priceHistory(snap *models.FinancialSnapshot) map[string]any {
	data := map[string]any{"available": false}
	if snap == nil || snap.Price == nil {
		return data
	}
	data["available"] = true
	data["price"] = *snap.Price
	if snap.FiftyTwoWeekRange == "" {
		return data
	}
	data["fifty_two_week_range"] = snap.FiftyTwoWeekRange
	parts := strings.SplitN(snap.FiftyTwoWeekRange, "-", 2)
	if len(parts) != 2 {
		return data
	}
	low, errLow := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	high, errHigh := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errLow != nil || errHigh != nil || high <= low {
		return data
	}
	pos := (*snap.Price - low) / (high - low)
	if pos < 0 {
		pos = 0
	}
	if pos > 1 {
		pos = 1
	}
	data["range_position"] = pos
	return data
}
