package ingest

import (
	"fmt"
	"strings"

	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// Threat keywords that escalate an analysis to high regardless of change
// state. Matched case-insensitively on the normalized content.
var highThreatKeywords = []string{
	"bankruptcy", "fraud", "lawsuit", "investigation", "data breach",
	"recall", "delisting", "default", "sec subpoena", "restatement",
}

// Analyze produces the rule-based insight for one snapshot. The analyst
// runs without an LLM: content that changed since the last snapshot is a
// medium-threat development, unchanged content a low-threat confirmation,
// and specific risk keywords escalate to high.
func Analyze(src models.Source, content, contentHash string, changed bool) models.Insight {
	excerpt := firstSentences(content, 2, 300)

	threat := "low"
	confidence := 0.61
	recommendation := "Monitor for further developments."
	if changed {
		threat = "medium"
		confidence = 0.72
		recommendation = "Review the new content and reassess exposure."
	}

	lower := strings.ToLower(content)
	for _, kw := range highThreatKeywords {
		if strings.Contains(lower, kw) {
			threat = "high"
			recommendation = fmt.Sprintf("Act on the %q development immediately.", kw)
			break
		}
	}

	insight := models.Insight{
		SourceID:       src.ID,
		SourceName:     src.Name,
		Insight:        fmt.Sprintf("%s: %s", src.Name, excerpt),
		ThreatLevel:    threat,
		Recommendation: recommendation,
		EvidenceRef:    src.URL,
		ContentHash:    contentHash,
		Confidence:     confidence,
	}
	insight.CriticStatus = criticReview(insight)
	return insight
}

// criticReview approves or flags an insight. Low confidence, missing
// evidence text, and under-supported high-threat claims are flagged for
// downstream down-weighting.
func criticReview(in models.Insight) string {
	switch {
	case strings.TrimSpace(in.Insight) == "":
		return "flagged"
	case in.Confidence < 0.55:
		return "flagged"
	case in.ThreatLevel == "high" && in.Confidence < 0.75:
		return "flagged"
	}
	return "approved"
}

// firstSentences returns up to n sentences of text, capped at maxLen runes.
func firstSentences(text string, n, maxLen int) string {
	text = strings.Join(strings.Fields(text), " ")
	count := 0
	end := len(text)
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			count++
			if count == n {
				end = i + 1
				break
			}
		}
	}
	out := text[:end]
	if len(out) > maxLen {
		out = out[:maxLen]
	}
	return strings.TrimSpace(out)
}
