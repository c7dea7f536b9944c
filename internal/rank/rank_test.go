package rank

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fahimulhaque/MarketMind/pkg/models"
)

var apple = models.Entity{Name: "Apple Inc.", Ticker: "AAPL", Sector: "Technology"}

func newItem(source, text string) models.EvidenceItem {
	return models.EvidenceItem{Insight: models.Insight{
		SourceName:   source,
		Insight:      text,
		ThreatLevel:  "medium",
		Confidence:   0.7,
		CriticStatus: "approved",
		CreatedAt:    time.Now().Add(-2 * time.Hour),
	}}
}

func testRanker(at time.Time) *Ranker {
	r := New()
	r.now = func() time.Time { return at }
	return r
}

func TestEntityRelevanceLadder(t *testing.T) {
	tests := []struct {
		name  string
		title string
		body  string
		want  float64
	}{
		{"ticker in title", "AAPL earnings beat", "", 1.0},
		{"name in title", "Apple Inc. guidance", "", 0.95},
		{"ticker in body", "Market wrap", "AAPL led gainers", 0.8},
		{"name part in title", "Apple supplier news", "", 0.85},
		{"name part in body only", "Market wrap", "Apple was mentioned", 0.4},
		{"no signal", "Market wrap", "broad selloff in bonds", 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EntityRelevance(tt.title, tt.body, apple.Name, apple.Ticker)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestEntityRelevanceWordBoundary(t *testing.T) {
	// "SNAPPLE" must not match ticker or name part.
	got := EntityRelevance("SNAPPLE sales jump", "pineapple harvest", apple.Name, apple.Ticker)
	assert.InDelta(t, 0.0, got, 1e-9)
}

func TestEntityRelevanceNeutralOnlyWithoutEntity(t *testing.T) {
	// With no ticker and no name to match there is nothing to judge, so
	// the score stays neutral instead of sinking every item.
	assert.InDelta(t, 0.5, EntityRelevance("Market wrap", "broad selloff", "", ""), 1e-9)

	// With a known entity, a non-matching item earns nothing.
	assert.InDelta(t, 0.0, EntityRelevance("Market wrap", "broad selloff", apple.Name, apple.Ticker), 1e-9)
}

func TestEntityRelevanceStopWordsApplyToNamePartsOnly(t *testing.T) {
	// "SE" is a stop word as a name suffix but must still match as a ticker.
	sea := models.Entity{Name: "Sea Limited", Ticker: "SE"}
	got := EntityRelevance("SE reports record bookings", "", sea.Name, sea.Ticker)
	assert.InDelta(t, 1.0, got, 1e-9)

	// "Inc" never counts as a significant name part.
	parts := significantNameParts("Apple Inc.")
	assert.Equal(t, []string{"Apple"}, parts)
}

func TestSourceQualityPriors(t *testing.T) {
	assert.InDelta(t, 1.0, SourceQuality("SEC EDGAR"), 1e-9)
	assert.InDelta(t, 0.98, SourceQuality("Yahoo Finance News: Apple"), 1e-9)
	assert.InDelta(t, 0.9, SourceQuality("Google News: Apple"), 1e-9)
	assert.InDelta(t, 0.7, SourceQuality("reddit r/stocks"), 1e-9)
	assert.InDelta(t, 0.8, SourceQuality("Some Blog"), 1e-9)
}

func TestRecencyDecay(t *testing.T) {
	assert.InDelta(t, 1.0, Recency(0), 1e-9)
	assert.InDelta(t, 0.5, Recency(24*time.Hour), 1e-9)
	assert.Greater(t, Recency(1*time.Hour), Recency(48*time.Hour))
}

func TestRankScoreBoundsAndMonotonicity(t *testing.T) {
	r := testRanker(time.Now())
	base := newItem("AAPL daily", "AAPL revenue grows")
	better := base
	better.SourceName = "AAPL weekly" // distinct dedupe key, same quality prior
	better.Confidence = base.Confidence + 0.2

	ranked := r.Rank([]models.EvidenceItem{base, better}, apple, []string{"revenue"})
	require.Len(t, ranked, 2)
	for _, item := range ranked {
		assert.GreaterOrEqual(t, item.RankScore, 0.0)
		assert.LessOrEqual(t, item.RankScore, 1.5)
	}
	assert.Greater(t, ranked[0].Confidence, ranked[1].Confidence,
		"higher confidence must rank first, all else equal")
}

func TestTickerInTitleOutranksNoTicker(t *testing.T) {
	r := testRanker(time.Now())
	withTicker := newItem("AAPL earnings preview", "strong quarter expected")
	without := newItem("Market wrap", "strong quarter expected")

	ranked := r.Rank([]models.EvidenceItem{without, withTicker}, apple, nil)
	require.Len(t, ranked, 2)
	assert.Equal(t, "AAPL earnings preview", ranked[0].SourceName)
}

func TestCriticPenaltyHalvesScore(t *testing.T) {
	r := testRanker(time.Now())
	approved := newItem("AAPL daily", "AAPL update")
	flagged := approved
	flagged.SourceName = "AAPL weekly" // avoid dedupe, same quality prior
	flagged.CriticStatus = "flagged"

	ranked := r.Rank([]models.EvidenceItem{approved, flagged}, models.Entity{Name: "Apple Inc.", Ticker: "AAPL"}, nil)
	require.Len(t, ranked, 2)
	assert.InDelta(t, ranked[0].RankScore/2, ranked[1].RankScore, 1e-9)
}

func TestPollutionPenalty(t *testing.T) {
	r := testRanker(time.Now())
	item := newItem("Google News: Microsoft Q4", "Microsoft cloud growth")

	ranked := r.Rank([]models.EvidenceItem{item}, apple, nil)
	require.Len(t, ranked, 1)
	got := ranked[0]

	unpenalized := wEntityRelevance*got.EntityRelevance +
		wSourceQuality*got.SourceQuality +
		wConfidence*got.Confidence +
		wSemantic*got.SimilarityScore +
		wTextRank*got.TextRank +
		wTokenRelevance*got.TokenRelevance +
		wRecency*got.RecencyScore
	assert.InDelta(t, pollutionPenalty*unpenalized, got.RankScore, 1e-9)
}

func TestPollutionRequiresEntityAbsence(t *testing.T) {
	assert.True(t, polluted("Google News: Microsoft Q4", "Apple Inc."))
	assert.False(t, polluted("Google News: Apple Inc. Q4", "Apple Inc."))
	assert.False(t, polluted("Reuters: Microsoft Q4", "Apple Inc."))
}

func TestPollutedItemExcludedFromTopEvidence(t *testing.T) {
	r := testRanker(time.Now())
	items := []models.EvidenceItem{
		newItem("Google News: Microsoft Q4", "Microsoft cloud growth accelerated"),
		newItem("AAPL wire", "AAPL beats on services"),
		newItem("Apple Inc. IR", "Apple announces buyback"),
		newItem("AAPL analyst note", "AAPL margin expansion"),
	}
	ranked := r.Rank(items, apple, nil)
	for _, item := range ranked {
		assert.NotEqual(t, "Google News: Microsoft Q4", item.SourceName,
			"irrelevant item must be filtered when 3 relevant items exist")
	}
	assert.Len(t, ranked, 3)
}

func TestOffTopicItemFilteredWithoutPollutionPrefix(t *testing.T) {
	r := testRanker(time.Now())
	items := []models.EvidenceItem{
		newItem("Reuters: Microsoft Q4", "Microsoft Azure cloud growth accelerated"),
		newItem("AAPL wire", "AAPL beats on services"),
		newItem("Apple Inc. IR", "Apple announces buyback"),
		newItem("AAPL analyst note", "AAPL margin expansion"),
	}
	ranked := r.Rank(items, apple, nil)
	require.Len(t, ranked, 3, "off-topic wire item must fall below the relevance floor")
	for _, item := range ranked {
		assert.NotEqual(t, "Reuters: Microsoft Q4", item.SourceName)
	}
}

func TestRelevanceFilterKeepsAllWhenFewRelevant(t *testing.T) {
	r := testRanker(time.Now())
	items := []models.EvidenceItem{
		newItem("AAPL wire", "AAPL beats"),
		newItem("Market wrap", "bond yields fell"),
	}
	ranked := r.Rank(items, apple, nil)
	assert.Len(t, ranked, 2, "filter only applies with 3+ relevant items")
}

func TestDedupeKeepsHighestScore(t *testing.T) {
	r := testRanker(time.Now())
	a := newItem("AAPL wire", "Apple announces dividend increase for shareholders")
	b := a
	b.Confidence = 0.9
	c := newItem("Other wire", "Apple announces dividend increase for shareholders")

	ranked := r.Rank([]models.EvidenceItem{a, b, c}, apple, nil)
	require.Len(t, ranked, 2, "same source + same text collapses; other source survives")
	assert.InDelta(t, 0.9, ranked[0].Confidence, 1e-9)
}

func TestDetectContradictions(t *testing.T) {
	high := newItem("a", "x")
	high.ThreatLevel = "high"
	low := newItem("b", "y")
	low.ThreatLevel = "low"
	mixed := newItem("c", "z")
	mixed.Recommendation = "Act now but continue to monitor the position"

	out := DetectContradictions([]models.EvidenceItem{high, low, mixed})
	require.Len(t, out, 2)
	assert.Equal(t, "threat_level_conflict", out[0].Type)
	assert.Equal(t, "recommendation_conflict", out[1].Type)
}

func TestDetectContradictionsOnlyTopEight(t *testing.T) {
	var items []models.EvidenceItem
	for i := 0; i < 8; i++ {
		it := newItem("s", "t")
		it.ThreatLevel = "high"
		items = append(items, it)
	}
	low := newItem("late", "u")
	low.ThreatLevel = "low"
	items = append(items, low)

	assert.Empty(t, DetectContradictions(items), "item 9 is outside the window")
}

func TestNeedsRefresh(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	r := testRanker(now)

	fresh := newItem("a", "x")
	fresh.CreatedAt = now.Add(-1 * time.Hour)
	stale := newItem("b", "y")
	stale.CreatedAt = now.Add(-30 * time.Hour)

	assert.True(t, r.NeedsRefresh([]models.EvidenceItem{fresh, stale}, 3, 18*time.Hour), "below min evidence")
	assert.False(t, r.NeedsRefresh([]models.EvidenceItem{fresh, stale, stale}, 3, 18*time.Hour), "one fresh item suffices")
	assert.True(t, r.NeedsRefresh([]models.EvidenceItem{stale, stale, stale}, 3, 18*time.Hour), "all stale")
}
