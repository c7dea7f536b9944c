package pipeline

import (
	"context"
	"log"
	"strings"

	"github.com/fahimulhaque/MarketMind/internal/enrich"
	"github.com/fahimulhaque/MarketMind/internal/llm"
	"github.com/fahimulhaque/MarketMind/pkg/models"
)

type emitFunc func(stage string, progress float64, data any, message string) bool

// streamOutputs carries the generation state of one streaming run. The
// executive summary streams up front; the later sections stream on
// demand so their token events land inside the right stage window.
type streamOutputs struct {
	p         *Pipeline
	parsed    ParsedQuery
	query     string
	top       []models.EvidenceItem
	snap      *models.FinancialSnapshot
	trends    models.HistoricalTrends
	macro     models.MacroContext
	sentiment models.SentimentSummary
	coverage  models.EntityCoverage
	contras   []models.Contradiction
	generated generated
}

// streamGenerated streams the executive summary as decision tokens and
// generates the recommendation that builds on it. A false return means
// the consumer went away.
func (p *Pipeline) streamGenerated(ctx context.Context, emit emitFunc, parsed ParsedQuery, query string, top []models.EvidenceItem, snap *models.FinancialSnapshot, trends models.HistoricalTrends, macro models.MacroContext, sentiment models.SentimentSummary, coverage models.EntityCoverage, contras []models.Contradiction) (*streamOutputs, bool) {
	s := &streamOutputs{
		p: p, parsed: parsed, query: query, top: top, snap: snap,
		trends: trends, macro: macro, sentiment: sentiment,
		coverage: coverage, contras: contras,
	}
	if p.gen == nil || len(top) == 0 {
		return s, true
	}

	summary, ok := s.streamText(ctx, emit, "decision_token", progDecisionToken,
		llm.SystemAnalyst,
		llm.ExecutiveSummaryPrompt(query, top, snap, macro, sentiment, trends),
		summaryTemp, summaryTokens)
	if !ok {
		return s, false
	}
	s.generated.Summary = summary

	avgConfidence, riskLevel := assessEvidence(top)
	excerpt := summary
	if len(excerpt) > 200 {
		excerpt = excerpt[:200]
	}
	var price *float64
	if snap != nil {
		price = snap.Price
	}
	card := models.DecisionCard{Confidence: avgConfidence, RiskLevel: riskLevel}
	text, err := p.gen.Generate(ctx, llm.SystemAnalyst,
		llm.RecommendationPrompt(query, card, price, excerpt, contras, coverage.Score),
		recommendTemp, recommendTokens)
	if err != nil {
		log.Printf("pipeline: recommendation generation: %v", err)
	} else {
		s.generated.Recommendation = text
	}
	return s, true
}

// narrative streams the market narrative, grounded on the decision the
// consumer has already seen.
func (s *streamOutputs) narrative(ctx context.Context, emit emitFunc, d decision) (string, bool) {
	if s.p.gen == nil || len(s.top) == 0 {
		return "", true
	}
	verdict := d.Summary
	if len(verdict) > 200 {
		verdict = verdict[:200]
	}
	return s.streamText(ctx, emit, "narrative_token", progNarrativeToken,
		llm.SystemAnalyst,
		llm.NarrativePrompt(s.query, s.top, s.snap, s.trends, s.macro, s.sentiment, s.coverage.Score, verdict),
		narrativeTemp, narrativeTokens)
}

// scenarios generates and normalizes the scenario array; nil means the
// caller should fall back to the arithmetic set.
func (s *streamOutputs) scenarios(ctx context.Context) []models.Scenario {
	if s.p.gen == nil || len(s.top) == 0 {
		return nil
	}
	text, err := s.p.gen.Generate(ctx, llm.SystemScenario,
		llm.ScenariosPrompt(s.query, s.top, s.snap, s.trends, s.macro),
		scenariosTemp, scenariosTokens)
	if err != nil {
		log.Printf("pipeline: scenario generation: %v", err)
		return nil
	}
	var raw []models.Scenario
	if !llm.ParseJSONArray(text, &raw) {
		return nil
	}
	normalized, ok := enrich.NormalizeScenarios(raw)
	if !ok {
		return nil
	}
	return normalized
}

// competitive streams the competitive landscape section.
func (s *streamOutputs) competitive(ctx context.Context, emit emitFunc) (string, bool) {
	if s.p.gen == nil || len(s.top) == 0 {
		return "", true
	}
	return s.streamText(ctx, emit, "competitive_token", progCompetitiveToken,
		llm.SystemCompetitive,
		llm.CompetitivePrompt(s.query, s.parsed.Entity.Ticker, s.parsed.Entity.Sector, s.parsed.Entity.Industry, s.top, s.snap),
		competitiveTemp, competitiveTokens)
}

// streamText relays generation chunks as token events and returns the
// assembled text. Generation failures return empty text so templates
// take over; only a departed consumer returns false.
func (s *streamOutputs) streamText(ctx context.Context, emit emitFunc, stage string, progress float64, system, prompt string, temperature float64, maxTokens int) (string, bool) {
	chunks, err := s.p.gen.GenerateStream(ctx, system, prompt, temperature, maxTokens)
	if err != nil {
		log.Printf("pipeline: %s generation: %v", stage, err)
		return "", true
	}
	var b strings.Builder
	for chunk := range chunks {
		if chunk.Err != nil {
			log.Printf("pipeline: %s stream: %v", stage, chunk.Err)
			for range chunks {
			}
			return "", true
		}
		if chunk.Content == "" {
			continue
		}
		b.WriteString(chunk.Content)
		if !emit(stage, progress, chunk.Content, "") {
			for range chunks {
			}
			return "", false
		}
	}
	return b.String(), true
}
