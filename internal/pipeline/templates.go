package pipeline

import (
	"fmt"
	"strings"

	"github.com/fahimulhaque/MarketMind/internal/llm"
	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// Templated fallbacks used whenever the generation backend is
// unavailable. They lean on the structured data so a degraded report
// still carries the numbers.

const (
	noEvidenceSummary        = "No strong evidence found for this query in current ingested intelligence."
	noEvidenceRecommendation = "Ingest additional relevant sources or broaden query terms before making a decision."
)

func fallbackSummary(query string, snap *models.FinancialSnapshot, items []models.EvidenceItem) string {
	parts := []string{fmt.Sprintf("Analysis for '%s':", query)}
	if snap != nil && snap.Price != nil {
		if snap.MarketCap != nil {
			parts = append(parts, fmt.Sprintf("Current price $%v (market cap %s).", *snap.Price, llm.FormatMoney(snap.MarketCap)))
		} else {
			parts = append(parts, fmt.Sprintf("Current price $%v.", *snap.Price))
		}
		if snap.TrailingPE != nil {
			parts = append(parts, fmt.Sprintf("P/E %v.", *snap.TrailingPE))
		}
		if snap.RevenueGrowth != nil {
			parts = append(parts, fmt.Sprintf("Revenue growth %.1f%%.", *snap.RevenueGrowth*100))
		}
	}
	topThreat := "low"
	if len(items) > 0 {
		topThreat = items[0].ThreatLevel
	}
	parts = append(parts, fmt.Sprintf("Based on %d evidence sources, overall risk is %s.", len(items), topThreat))
	if len(items) > 0 && items[0].Insight.Insight != "" {
		insight := items[0].Insight.Insight
		if len(insight) > 150 {
			insight = insight[:150]
		}
		parts = append(parts, fmt.Sprintf("Top signal: %s", insight))
	}
	return strings.Join(parts, " ")
}

func fallbackRecommendation(riskLevel string, avgConfidence float64, sources int, contradicted bool) string {
	prefix := ""
	switch riskLevel {
	case "high":
		prefix = "Exercise caution — "
	case "medium":
		prefix = "Monitor closely — "
	}
	tail := "Review supporting evidence before making decisions."
	if contradicted {
		tail = "Contradictory signals detected; verify before acting."
	}
	return fmt.Sprintf("%sEvidence confidence is %.0f%% across %d sources. %s", prefix, avgConfidence*100, sources, tail)
}

func fallbackNarrative(qc models.QueryContext, items []models.EvidenceItem, trends models.HistoricalTrends, sentiment models.SentimentSummary, coverage models.EntityCoverage) string {
	var parts []string
	if len(items) > 0 {
		var sources []string
		for i, item := range items {
			if i == 3 {
				break
			}
			sources = append(sources, item.SourceName)
		}
		parts = append(parts, fmt.Sprintf("Signals cluster around %s.", strings.Join(sources, ", ")))
	} else {
		parts = append(parts, "Limited source diversity in current evidence.")
	}
	parts = append(parts, fmt.Sprintf("Query intent is interpreted as %s within %s horizon.", qc.Intent, qc.Timeframe))
	if trends.Available {
		parts = append(parts, fmt.Sprintf("Historical data shows %s trend over %d quarters.", trends.TrendDirection, len(trends.Quarters)))
	}
	if sentiment.Available {
		parts = append(parts, fmt.Sprintf("Social sentiment: %s.", sentiment.SentimentLabel))
	}
	switch {
	case coverage.Score < 0.3:
		parts = append(parts, "Coverage is thin — consider adding more data sources for robust analysis.")
	case coverage.Score >= 0.7:
		parts = append(parts, "Good data coverage across multiple sources.")
	}
	if len(items) > 0 {
		parts = append(parts, "Current intelligence indicates active movement that warrants monitored execution.")
	} else {
		parts = append(parts, "Evidence is thin; run broader coverage and revisit before material decisions.")
	}
	return strings.Join(parts, " ")
}

func fallbackCompetitive(query string, coverageScore float64) string {
	return fmt.Sprintf("Competitive landscape analysis for %s requires more data coverage (current: %.0f%%). "+
		"See financial metrics and evidence sections for available intelligence.", query, coverageScore*100)
}

// signalShifts summarizes the top three evidence items as one-line
// market shift statements, deduplicated in order.
func signalShifts(items []models.EvidenceItem) []string {
	var shifts []string
	seen := make(map[string]bool)
	for i, item := range items {
		if i == 3 {
			break
		}
		shift := fmt.Sprintf("%s: %s risk signal at confidence %.2f.", item.SourceName, item.ThreatLevel, item.Confidence)
		if !seen[shift] {
			seen[shift] = true
			shifts = append(shifts, shift)
		}
	}
	if len(shifts) == 0 {
		shifts = append(shifts, "No strong market shift detected from current evidence.")
	}
	return shifts
}
