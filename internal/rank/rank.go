// Package rank scores, filters and orders candidate evidence for a query:
// weighted fusion of entity relevance, source-quality priors, recency and
// retrieval scores, followed by relevance filtering, deduplication and
// contradiction detection.
package rank

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// Fusion weights. Entity relevance dominates so off-topic items sink even
// when a strong source published them.
const (
	wEntityRelevance = 0.35
	wSourceQuality   = 0.15
	wConfidence      = 0.15
	wSemantic        = 0.10
	wTextRank        = 0.10
	wTokenRelevance  = 0.10
	wRecency         = 0.05

	criticPenalty    = 0.5
	sectorBoost      = 1.1
	pollutionPenalty = 0.2

	relevanceFloor  = 0.3
	relevantMinimum = 3
	contradictionTopN = 8
)

// Corporate suffixes excluded from name-part matching. Applies to name
// parts only; a ticker that collides with a suffix still matches.
var nameStopWords = map[string]bool{
	"inc": true, "incorporated": true, "corp": true, "corporation": true,
	"ltd": true, "limited": true, "plc": true, "llc": true, "lp": true,
	"company": true, "holdings": true, "group": true, "the": true,
	"co": true, "sa": true, "ag": true, "nv": true, "se": true,
}

// Pollution applies only to auto-discovered feed items whose titles name
// a different company.
var pollutionPrefixes = []string{"Google News:", "Yahoo Finance News:"}

var (
	actionWords = []string{"act", "immediate", "respond", "accelerate", "launch"}
	waitWords   = []string{"monitor", "continue", "observe", "hold", "wait"}
)

// Ranker scores evidence for one resolved entity.
type Ranker struct {
	now func() time.Time
}

// New creates a ranker.
func New() *Ranker {
	return &Ranker{now: time.Now}
}

// Rank scores every candidate in place, applies the relevance filter,
// deduplicates, and returns items sorted by descending rank score.
func (r *Ranker) Rank(items []models.EvidenceItem, entity models.Entity, queryTokens []string) []models.EvidenceItem {
	for i := range items {
		r.score(&items[i], entity, queryTokens)
	}
	items = filterRelevant(items)
	items = dedupe(items)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].RankScore > items[j].RankScore
	})
	return items
}

func (r *Ranker) score(item *models.EvidenceItem, entity models.Entity, queryTokens []string) {
	text := item.Insight.Insight + " " + item.Recommendation

	item.EntityRelevance = EntityRelevance(item.SourceName, text, entity.Name, entity.Ticker)
	isPolluted := polluted(item.SourceName, entity.Name)
	if isPolluted && item.EntityRelevance > 0.2 {
		// A feed item titled after another company is about that company,
		// whatever a partial name match in the body says.
		item.EntityRelevance = 0.2
	}
	item.SourceQuality = SourceQuality(item.SourceName)
	item.RecencyScore = Recency(r.now().Sub(item.CreatedAt))
	item.TokenRelevance = tokenRelevance(text, queryTokens)

	score := wEntityRelevance*item.EntityRelevance +
		wSourceQuality*item.SourceQuality +
		wConfidence*item.Confidence +
		wSemantic*item.SimilarityScore +
		wTextRank*clamp01(item.TextRank) +
		wTokenRelevance*item.TokenRelevance +
		wRecency*item.RecencyScore
	item.SemanticScore = item.SimilarityScore

	if item.CriticStatus == "flagged" {
		score *= criticPenalty
	}
	if entity.Sector != "" && containsFold(text, entity.Sector) {
		score *= sectorBoost
	}
	if isPolluted {
		score *= pollutionPenalty
	}
	item.RankScore = score
}

// EntityRelevance measures how strongly a piece of evidence is about the
// entity, searching the title (source name) before the body.
func EntityRelevance(title, body, entityName, ticker string) float64 {
	parts := significantNameParts(entityName)

	if ticker != "" {
		if wordBoundaryMatch(title, ticker) {
			return 1.0
		}
	}
	if entityName != "" && containsFold(title, entityName) {
		return 0.95
	}
	if ticker != "" && wordBoundaryMatch(body, ticker) {
		return 0.8
	}
	if len(parts) > 0 {
		if frac := partFraction(title, parts); frac > 0 {
			return 0.85 * frac
		}
		if frac := partFraction(body, parts); frac > 0 {
			return 0.4 * frac
		}
	}
	if ticker == "" && entityName == "" {
		// Nothing to match against: stay neutral rather than sink
		// everything below the relevance floor.
		return 0.5
	}
	return 0
}

// significantNameParts splits the company name into matchable words,
// dropping short tokens and corporate suffixes.
func significantNameParts(name string) []string {
	var parts []string
	for _, p := range strings.FieldsFunc(name, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '-' || r == '&'
	}) {
		if len(p) <= 2 || nameStopWords[strings.ToLower(p)] {
			continue
		}
		parts = append(parts, p)
	}
	return parts
}

func partFraction(text string, parts []string) float64 {
	found := 0
	for _, p := range parts {
		if wordBoundaryMatch(text, p) {
			found++
		}
	}
	return float64(found) / float64(len(parts))
}

func wordBoundaryMatch(text, word string) bool {
	re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
	if err != nil {
		return false
	}
	return re.MatchString(text)
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// SourceQuality is the static prior by source host, in [0.70, 1.00].
func SourceQuality(sourceName string) float64 {
	name := strings.ToLower(sourceName)
	switch {
	case strings.Contains(name, "sec") || strings.Contains(name, "edgar"):
		return 1.0
	case strings.Contains(name, "yahoo"):
		return 0.98
	case strings.Contains(name, "fmp") || strings.Contains(name, "alpha vantage") || strings.Contains(name, "alphavantage"):
		return 0.95
	case strings.Contains(name, "google news"):
		return 0.9
	case strings.Contains(name, "rss") || strings.Contains(name, "feed"):
		return 0.85
	case strings.Contains(name, "duckduckgo"):
		return 0.75
	case strings.Contains(name, "reddit"):
		return 0.7
	}
	return 0.8
}

// Recency decays with age: one day old scores 0.5.
func Recency(age time.Duration) float64 {
	hours := age.Hours()
	if hours < 0 {
		hours = 0
	}
	return 1 / (1 + hours/24)
}

func tokenRelevance(text string, tokens []string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	found := 0
	for _, tok := range tokens {
		if strings.Contains(lower, strings.ToLower(tok)) {
			found++
		}
	}
	return float64(found) / float64(len(tokens))
}

func polluted(sourceName, entityName string) bool {
	for _, prefix := range pollutionPrefixes {
		if strings.HasPrefix(sourceName, prefix) {
			return entityName == "" || !containsFold(sourceName, entityName)
		}
	}
	return false
}

// filterRelevant drops weakly-related items, but only when enough
// strongly-related ones remain to answer from.
func filterRelevant(items []models.EvidenceItem) []models.EvidenceItem {
	relevant := 0
	for _, item := range items {
		if item.EntityRelevance > relevanceFloor {
			relevant++
		}
	}
	if relevant < relevantMinimum {
		return items
	}
	out := items[:0]
	for _, item := range items {
		if item.EntityRelevance > relevanceFloor {
			out = append(out, item)
		}
	}
	return out
}

// dedupe collapses near-identical insights from the same source, keeping
// the highest-scoring copy.
func dedupe(items []models.EvidenceItem) []models.EvidenceItem {
	best := make(map[string]int, len(items))
	for i, item := range items {
		key := dedupeKey(item)
		if j, ok := best[key]; ok {
			if item.RankScore > items[j].RankScore {
				best[key] = i
			}
			continue
		}
		best[key] = i
	}
	keep := make(map[int]bool, len(best))
	for _, i := range best {
		keep[i] = true
	}
	out := items[:0]
	for i, item := range items {
		if keep[i] {
			out = append(out, item)
		}
	}
	return out
}

func dedupeKey(item models.EvidenceItem) string {
	text := item.Insight.Insight
	if len(text) > 200 {
		text = text[:200]
	}
	sum := md5.Sum([]byte(strings.TrimSpace(strings.ToLower(text))))
	return item.SourceName + "|" + hex.EncodeToString(sum[:])
}

// DetectContradictions inspects the top items for conflicting threat
// levels and mixed act/wait recommendations.
func DetectContradictions(items []models.EvidenceItem) []models.Contradiction {
	top := items
	if len(top) > contradictionTopN {
		top = top[:contradictionTopN]
	}

	var out []models.Contradiction
	hasHigh, hasLow := false, false
	for _, item := range top {
		switch item.ThreatLevel {
		case "high":
			hasHigh = true
		case "low":
			hasLow = true
		}
	}
	if hasHigh && hasLow {
		out = append(out, models.Contradiction{
			Type:   "threat_level_conflict",
			Detail: "Top evidence mixes high and low threat assessments.",
		})
	}

	for _, item := range top {
		rec := strings.ToLower(item.Recommendation)
		if containsAny(rec, actionWords) && containsAny(rec, waitWords) {
			out = append(out, models.Contradiction{
				Type:   "recommendation_conflict",
				Detail: fmt.Sprintf("%q both urges action and counsels waiting.", item.SourceName),
			})
			break
		}
	}
	return out
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// NeedsRefresh reports whether enrichment should run before answering:
// too little evidence, or the freshest item is stale.
func (r *Ranker) NeedsRefresh(items []models.EvidenceItem, minEvidence int, staleAfter time.Duration) bool {
	if len(items) < minEvidence {
		return true
	}
	freshest := items[0].CreatedAt
	for _, item := range items[1:] {
		if item.CreatedAt.After(freshest) {
			freshest = item.CreatedAt
		}
	}
	return r.now().Sub(freshest) > staleAfter
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
