package llm

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// System prompts. The analyst voice is shared by the summary, narrative
// and recommendation prompts; scenarios and competitive analysis get
// their own personas.
const (
	SystemAnalyst = "You are the voice of a proprietary financial terminal. " +
		"Write as an authoritative analyst delivering a briefing to a portfolio manager. " +
		"State facts and conclusions directly — never say 'Based on the provided data', " +
		"'According to the data', 'The data suggests', or similar hedging phrases. " +
		"The reader knows the data came from this terminal; do not reference your own process. " +
		"Cite specific numbers inline (e.g. 'Revenue grew 12% YoY to $53.8B'). " +
		"Be concise, assertive, and decision-ready. Avoid filler sentences. " +
		"Resolve conflicts between Evidence and Financials; do not hallucinate missing data if Summary has it."

	SystemScenario = "You are a scenario planning strategist at a hedge fund. " +
		"Construct three scenarios (bull, base, bear) with specific probability estimates, " +
		"concrete assumptions tied to real metrics, and measurable trigger signals. " +
		"Probabilities must reflect the actual data — if financials are strong, bull should be higher. " +
		"Write assertively. Never say 'Based on the provided data' or similar hedges. " +
		"Output valid JSON only, no other text."

	SystemCompetitive = "You are a competitive intelligence analyst delivering a terminal briefing. " +
		"Identify key competitors, market positioning, competitive advantages and threats. " +
		"Be specific about market share, product differentiation, and strategic moves. " +
		"State findings directly — never reference 'the data' or your own analysis process. " +
		"Cite evidence inline with specific numbers."
)

// ExecutiveSummaryPrompt asks for the headline/verdict/drivers summary.
func ExecutiveSummaryPrompt(query string, evidence []models.EvidenceItem, snap *models.FinancialSnapshot, macro models.MacroContext, sentiment models.SentimentSummary, trends models.HistoricalTrends) string {
	return fmt.Sprintf(`Analyze the following market intelligence for the query: %q

=== TOP EVIDENCE ===
%s

=== FINANCIAL SNAPSHOT ===
%s

=== HISTORICAL TRENDS ===
%s

=== MACRO CONTEXT ===
%s

=== SOCIAL SENTIMENT ===
%s

Write a structured executive summary using strict Markdown.
Follow this EXACT format:

# [Punchy, data-driven Headline (max 8 words)]

## VERDICT
[One clear sentence stating Bullish/Bearish/Neutral stance with conviction level.]

## KEY DRIVERS
* **[Driver 1]**: [Brief explanation citing specific numbers]
* **[Driver 2]**: [Brief explanation citing specific numbers]
* **[Risk/Catalyst]**: [Brief explanation]

Do not use preamble. Go straight to the # Headline.`,
		query,
		FormatEvidenceBlock(evidence, 5),
		FormatFinancialsBlock(snap),
		FormatTrendBlock(trends),
		FormatMacroBlock(macro),
		FormatSentimentBlock(sentiment))
}

// NarrativePrompt asks for the deep-dive market narrative. verdict, when
// non-empty, is the already-issued executive verdict the narrative must
// stay consistent with.
func NarrativePrompt(query string, evidence []models.EvidenceItem, snap *models.FinancialSnapshot, trends models.HistoricalTrends, macro models.MacroContext, sentiment models.SentimentSummary, coverageScore float64, verdict string) string {
	coverageNote := ""
	switch {
	case coverageScore < 0.3:
		coverageNote = fmt.Sprintf("NOTE: Data coverage is thin (score %.0f%%). Acknowledge gaps explicitly.", coverageScore*100)
	case coverageScore >= 0.7:
		coverageNote = fmt.Sprintf("Data coverage is good (score %.0f%%).", coverageScore*100)
	}

	verdictNote := ""
	if verdict != "" {
		verdictNote = fmt.Sprintf("\n=== EXECUTIVE VERDICT (already issued) ===\n%s\n\n"+
			"IMPORTANT: Your narrative MUST be consistent with the above verdict. "+
			"Do not contradict the recommendation or risk assessment.\n", verdict)
	}

	return fmt.Sprintf(`Write a market intelligence narrative for: %q

=== EVIDENCE ===
%s

=== FINANCIALS ===
%s

=== HISTORICAL TRENDS ===
%s

=== MACRO ENVIRONMENT ===
%s

=== SOCIAL SENTIMENT ===
%s

%s
%s
Write a deep-dive analysis using these Markdown sections:

## CURRENT SITUATION
[What the data shows regarding financial health, trajectory, and key metrics. Cite numbers.]

## MARKET DYNAMICS
[Macro environment, competitive pressures, and sentiment signals.]

## OUTLOOK & WATCHLIST
[Upcoming catalysts, risk factors, and what to monitor next.]

Ground every claim in specific data from above. No generic statements.`,
		query,
		FormatEvidenceBlock(evidence, 6),
		FormatFinancialsBlock(snap),
		FormatTrendBlock(trends),
		FormatMacroBlock(macro),
		FormatSentimentBlock(sentiment),
		coverageNote,
		verdictNote)
}

// CompetitivePrompt asks for the competitive landscape section.
func CompetitivePrompt(query, ticker, sector, industry string, evidence []models.EvidenceItem, snap *models.FinancialSnapshot) string {
	sectorInfo := ""
	if sector != "" || industry != "" {
		sectorInfo = fmt.Sprintf("Sector: %s  |  Industry: %s", sector, industry)
	}
	return fmt.Sprintf(`Analyze the competitive landscape for %s (%s):

%s

=== FINANCIAL POSITION ===
%s

=== MARKET EVIDENCE ===
%s

Write a competitive analysis using these Markdown sections:

## COMPETITIVE POSITION
[Key competitors, market share dynamics, and positioning.]

## ADVANTAGES
[Moats, unique strengths, or distinct capabilities.]

## STRATEGIC THREATS
[Vulnerabilities and moves to watch in the next 6-12 months.]

Ground every claim in the data provided.`,
		query, ticker, sectorInfo,
		FormatFinancialsBlock(snap),
		FormatEvidenceBlock(evidence, 6))
}

// ScenariosPrompt asks for the bull/base/bear JSON array.
func ScenariosPrompt(query string, evidence []models.EvidenceItem, snap *models.FinancialSnapshot, trends models.HistoricalTrends, macro models.MacroContext) string {
	return fmt.Sprintf(`Given this market intelligence for %q:

=== EVIDENCE ===
%s

=== FINANCIALS ===
%s

=== HISTORICAL TRENDS ===
%s

=== MACRO ===
%s

Generate three scenarios. Respond ONLY with a JSON array, no other text:
[
  {
    "name": "bull",
    "probability": <0.0-1.0>,
    "assumption": "<specific assumption grounded in the data>",
    "impact": "<concrete impact description with numbers if possible>",
    "trigger_signals": ["<signal 1>", "<signal 2>", "<signal 3>"]
  },
  {
    "name": "base",
    "probability": <0.0-1.0>,
    "assumption": "...",
    "impact": "...",
    "trigger_signals": ["...", "...", "..."]
  },
  {
    "name": "bear",
    "probability": <0.0-1.0>,
    "assumption": "...",
    "impact": "...",
    "trigger_signals": ["...", "...", "..."]
  }
]

Probabilities must sum to 1.0. Base assumptions on actual data provided. Verify any percentage calculations against the current price to ensure they are mathematically accurate.`,
		query,
		FormatEvidenceBlock(evidence, 5),
		FormatFinancialsBlock(snap),
		FormatTrendBlock(trends),
		FormatMacroBlock(macro))
}

// RecommendationPrompt asks for the 2-3 sentence decision-card text.
func RecommendationPrompt(query string, card models.DecisionCard, price *float64, summary string, contradictions []models.Contradiction, coverageScore float64) string {
	contraText := ""
	if len(contradictions) > 0 {
		var lines []string
		for _, c := range contradictions {
			lines = append(lines, fmt.Sprintf("- %s: %s", c.Type, c.Detail))
		}
		contraText = "CONTRADICTIONS:\n" + strings.Join(lines, "\n")
	}
	priceText := ""
	if price != nil {
		priceText = fmt.Sprintf("Current Price: %v\n", *price)
	}

	return fmt.Sprintf(`Decision context for %q:

Risk Level: %s
Confidence: %v
%sCurrent Summary: %s
Data Coverage: %.0f%%
%s

Write a direct, assertive recommendation in 2-3 sentences. Plain text only, no markdown.
Rules:
1. Start with a clear action verb (BUY / SELL / HOLD / ACCUMULATE / REDUCE / MONITOR).
2. State specific conditions or price triggers to watch.
3. Include timeline or urgency.
4. NEVER start with 'Based on the provided data', 'The data suggests', or any similar hedge.
5. Write as if you ARE the terminal delivering a verdict, not an AI summarizing data.
6. Ensure any price targets or percentage changes are mathematically accurate and calculated based on the Current Price (if provided).

If data coverage is low, state what is missing and recommend gathering it before acting.`,
		query, card.RiskLevel, card.Confidence, priceText, summary, coverageScore*100, contraText)
}

// TrendAnalysisPrompt asks for the 2-3 sentence trend commentary.
func TrendAnalysisPrompt(ticker string, trends models.HistoricalTrends) string {
	var qLines []string
	for i, q := range trends.Quarters {
		if i == 8 {
			break
		}
		qLines = append(qLines, fmt.Sprintf("  %s: Rev=%s NI=%s EPS=%s",
			q.PeriodEnd, FormatMoney(q.Revenue), FormatMoney(q.NetIncome), formatPlain(q.EPS)))
	}
	var aLines []string
	for i, a := range trends.Annual {
		if i == 5 {
			break
		}
		aLines = append(aLines, fmt.Sprintf("  %s: Rev=%s NI=%s",
			a.PeriodEnd, FormatMoney(a.Revenue), FormatMoney(a.NetIncome)))
	}
	quarterly := "  No quarterly data"
	if len(qLines) > 0 {
		quarterly = strings.Join(qLines, "\n")
	}
	annual := "  No annual data"
	if len(aLines) > 0 {
		annual = strings.Join(aLines, "\n")
	}

	return fmt.Sprintf(`Analyze the financial trends for %s:

QUARTERLY (most recent first):
%s

ANNUAL (most recent first):
%s

Write a 2-3 sentence analysis covering:
1. Revenue trajectory (growing/declining/stable, acceleration/deceleration)
2. Margin trends (gross/net margin compression or expansion)
3. Any inflection points or notable quarter-over-quarter changes

Use specific numbers and percentages from the data.`, ticker, quarterly, annual)
}

// FormatMoney renders a dollar amount compactly ($1.2T / $53.8B / $4.1M).
func FormatMoney(v *float64) string {
	if v == nil {
		return "n/a"
	}
	n := *v
	a := n
	if a < 0 {
		a = -a
	}
	switch {
	case a >= 1e12:
		return fmt.Sprintf("$%.1fT", n/1e12)
	case a >= 1e9:
		return fmt.Sprintf("$%.1fB", n/1e9)
	case a >= 1e6:
		return fmt.Sprintf("$%.1fM", n/1e6)
	}
	return fmt.Sprintf("$%.0f", n)
}

func formatPct(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", *v*100)
}

func formatPlain(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%v", *v)
}

// FormatEvidenceBlock renders the top evidence as numbered lines.
func FormatEvidenceBlock(items []models.EvidenceItem, limit int) string {
	if len(items) == 0 {
		return "No evidence available."
	}
	if len(items) > limit {
		items = items[:limit]
	}
	var lines []string
	for i, item := range items {
		insight := item.Insight.Insight
		if len(insight) > 200 {
			insight = insight[:200]
		}
		lines = append(lines, fmt.Sprintf("%d. [%s] (confidence=%.2f, threat=%s) %s",
			i+1, item.SourceName, item.Confidence, item.ThreatLevel, insight))
	}
	return strings.Join(lines, "\n")
}

// FormatFinancialsBlock renders the snapshot with per-line source tags.
func FormatFinancialsBlock(snap *models.FinancialSnapshot) string {
	if snap == nil || snap.Symbol == "" {
		return "No financial snapshot available."
	}
	src := snap.Source
	if src == "" {
		src = "market_data"
	}
	r52 := snap.FiftyTwoWeekRange
	if r52 == "" {
		r52 = "n/a"
	}
	lines := []string{
		fmt.Sprintf("Symbol: %s", snap.Symbol),
		strings.TrimSpace(fmt.Sprintf("Price: %s %s (Source: %s)", formatPlain(snap.Price), snap.Currency, src)),
		fmt.Sprintf("Market Cap: %s (Source: %s)", FormatMoney(snap.MarketCap), src),
		fmt.Sprintf("P/E (trailing): %s (Source: %s)", formatPlain(snap.TrailingPE), src),
		fmt.Sprintf("P/E (forward): %s (Source: %s)", formatPlain(snap.ForwardPE), src),
		fmt.Sprintf("Revenue Growth YoY: %s (Source: %s)", formatPct(snap.RevenueGrowth), src),
		fmt.Sprintf("Earnings Growth YoY: %s (Source: %s)", formatPct(snap.EarningsGrowth), src),
		fmt.Sprintf("Gross Margin: %s (Source: %s)", formatPct(snap.GrossMargin), src),
		fmt.Sprintf("Operating Margin: %s (Source: %s)", formatPct(snap.OperatingMargin), src),
		fmt.Sprintf("Net Margin: %s (Source: %s)", formatPct(snap.ProfitMargin), src),
		fmt.Sprintf("Debt/Equity: %s (Source: %s)", formatPlain(snap.DebtToEquity), src),
		fmt.Sprintf("52W Range: %s (Source: %s)", r52, src),
	}
	return strings.Join(lines, "\n")
}

// FormatMacroBlock renders the macro indicators one per line.
func FormatMacroBlock(macro models.MacroContext) string {
	if !macro.Available {
		return "No macro data available."
	}
	if len(macro.Indicators) == 0 {
		return "Macro data flag set but no indicators populated."
	}
	var lines []string
	for id, info := range macro.Indicators {
		name := info.Name
		if name == "" {
			name = id
		}
		lines = append(lines, fmt.Sprintf("%s: %s (as of %s)", name, formatPlain(info.Value), info.Date))
	}
	return strings.Join(lines, "\n")
}

// FormatSentimentBlock renders the 7-day social aggregate.
func FormatSentimentBlock(sentiment models.SentimentSummary) string {
	if !sentiment.Available {
		return "No social sentiment data available."
	}
	return fmt.Sprintf("Mentions (7d): %d\nAvg Sentiment: %.2f (%s)\nDays of data: %d",
		sentiment.TotalMentions, sentiment.AvgSentiment, sentiment.SentimentLabel, sentiment.DaysData)
}

// FormatTrendBlock renders direction plus the last four quarters.
func FormatTrendBlock(trends models.HistoricalTrends) string {
	if !trends.Available {
		return "No historical financial data available."
	}
	quarters := trends.Quarters
	if len(quarters) > 4 {
		quarters = quarters[:4]
	}
	if len(quarters) == 0 {
		return "Historical flag set but no periods available."
	}
	lines := []string{fmt.Sprintf("Trend direction: %s", trends.TrendDirection)}
	for _, q := range quarters {
		lines = append(lines, fmt.Sprintf("  %s: Rev=%s NI=%s", q.PeriodEnd, FormatMoney(q.Revenue), FormatMoney(q.NetIncome)))
	}
	return strings.Join(lines, "\n")
}

// ParseJSONArray extracts a JSON array from LLM output, tolerating
// markdown code fences and surrounding prose.
func ParseJSONArray(text string, out any) bool {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") {
		var kept []string
		for _, line := range strings.Split(cleaned, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				continue
			}
			kept = append(kept, line)
		}
		cleaned = strings.TrimSpace(strings.Join(kept, "\n"))
	}
	start := strings.Index(cleaned, "[")
	end := strings.LastIndex(cleaned, "]")
	if start == -1 || end == -1 || end <= start {
		return false
	}
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), out); err != nil {
		log.Printf("llm: failed to parse JSON output: %v", err)
		return false
	}
	return true
}
