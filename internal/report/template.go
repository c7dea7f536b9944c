package report

// reportTemplate is the HTML shell for an exported report. It is
// embedded as a constant so the binary has no file dependencies.
const reportTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>{{.QueryContext.Entity}} — Intelligence Report</title>
<style>
  body { font-family: -apple-system, 'Segoe UI', Roboto, sans-serif; color: #1a1a2e; line-height: 1.6; max-width: 880px; margin: 0 auto; padding: 24px; }
  h1 { font-size: 1.5rem; margin-bottom: 2px; }
  h2 { font-size: 1.15rem; margin: 22px 0 10px; padding-bottom: 5px; border-bottom: 2px solid #2563eb; }
  .muted { color: #6b7280; font-size: 0.85rem; }
  .card { background: #f8fafc; border: 1px solid #e5e7eb; border-radius: 8px; padding: 14px 18px; margin: 14px 0; }
  .badge { display: inline-block; padding: 2px 10px; border-radius: 10px; font-size: 0.8rem; font-weight: 600; }
  .risk-low { background: #dcfce7; color: #16a34a; }
  .risk-medium { background: #ffedd5; color: #ea580c; }
  .risk-high { background: #fee2e2; color: #dc2626; }
  table { width: 100%; border-collapse: collapse; font-size: 0.9rem; }
  th, td { text-align: left; padding: 6px 10px; border-bottom: 1px solid #e5e7eb; }
  th { color: #6b7280; font-weight: 600; }
  ul { padding-left: 20px; }
  .warn { color: #ea580c; font-size: 0.85rem; }
</style>
</head>
<body>
<h1>{{.QueryContext.Entity}}{{if .QueryContext.Ticker}} ({{.QueryContext.Ticker}}){{end}}</h1>
<p class="muted">Generated {{.GeneratedAt.Format "Jan 2, 2006 15:04 MST"}} · Search {{.SearchID}}</p>

<div class="card">
  <strong>{{.Report.DecisionCard.Recommendation}}</strong><br>
  Confidence {{conf .Report.DecisionCard.Confidence}} ·
  <span class="badge {{riskCls .Report.DecisionCard.RiskLevel}}">{{.Report.DecisionCard.RiskLevel}} risk</span>
</div>

<h2>Executive Summary</h2>
<p>{{.Report.ExecutiveSummary}}</p>

{{with .Report.FinancialPerformance}}
<h2>Financial Performance</h2>
<table>
  <tr><th>Price</th><th>Market Cap</th><th>Trailing P/E</th><th>Revenue Growth</th><th>Profit Margin</th></tr>
  <tr>
    <td>{{money .Price}}</td>
    <td>{{money .MarketCap}}</td>
    <td>{{num .TrailingPE}}</td>
    <td>{{pct .RevenueGrowth}}</td>
    <td>{{pct .ProfitMargin}}</td>
  </tr>
</table>
{{range .Warnings}}<p class="warn">⚠ {{.}}</p>{{end}}
{{end}}

{{with .Report.HistoricalTrends}}{{if .Available}}
<h2>Historical Trends <span class="muted">({{.TrendDirection}})</span></h2>
<table>
  <tr><th>Period</th><th>Revenue</th><th>Net Income</th><th>EPS</th></tr>
  {{range .Quarters}}
  <tr><td>{{.PeriodEnd}}</td><td>{{money .Revenue}}</td><td>{{money .NetIncome}}</td><td>{{num .EPS}}</td></tr>
  {{end}}
</table>
{{end}}{{end}}

{{if .Report.MarketNarrative}}
<h2>Market Narrative</h2>
<p>{{.Report.MarketNarrative}}</p>
{{end}}

{{if .Report.Scenarios}}
<h2>Scenarios</h2>
{{range .Report.Scenarios}}
<div class="card">
  <strong>{{.Name}}</strong> — {{conf .Probability}} probability<br>
  {{.Assumption}}<br>
  <span class="muted">{{.Impact}}</span>
</div>
{{end}}
{{end}}

{{if .Report.KeySignalShifts}}
<h2>Key Signal Shifts</h2>
<ul>{{range .Report.KeySignalShifts}}<li>{{.}}</li>{{end}}</ul>
{{end}}

{{if .Report.Contradictions}}
<h2>Contradictions</h2>
<ul>{{range .Report.Contradictions}}<li class="warn">{{.Detail}}</li>{{end}}</ul>
{{end}}

{{if .Report.CompetitiveLandscape}}
<h2>Competitive Landscape</h2>
<p>{{.Report.CompetitiveLandscape}}</p>
{{end}}

{{if .Report.Citations}}
<h2>Sources</h2>
<ul>{{range .Report.Citations}}<li>{{.SourceName}} <span class="muted">({{conf .Confidence}})</span></li>{{end}}</ul>
{{end}}

<p class="muted">Evidence items: {{.KnowledgeStatus.EvidenceCount}} · Semantic matches: {{.KnowledgeStatus.SemanticMatches}} · Graph-related sources: {{.KnowledgeStatus.GraphRelatedSources}}</p>
</body>
</html>`
