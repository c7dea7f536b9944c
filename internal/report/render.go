// Package report renders persisted intelligence reports as standalone
// HTML documents for export and archival.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"math"
	"strings"

	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// Renderer turns a models.Report into a self-contained HTML page.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the embedded template. Panics on a malformed
// template, which is a programming error.
func NewRenderer() *Renderer {
	t := template.Must(template.New("report").Funcs(template.FuncMap{
		"money":   fmtMoney,
		"num":     fmtNum,
		"pct":     fmtPct,
		"conf":    fmtConfidence,
		"riskCls": riskClass,
	}).Parse(reportTemplate))
	return &Renderer{tmpl: t}
}

// RenderHTML renders the report. The output embeds all styling inline
// so the document can be saved or mailed as a single file.
func (r *Renderer) RenderHTML(rep models.Report) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, rep); err != nil {
		return nil, fmt.Errorf("report: render %s: %w", rep.SearchID, err)
	}
	return buf.Bytes(), nil
}

// fmtMoney abbreviates large currency values (1.2T, 340.5B, 12.3M).
func fmtMoney(v *float64) string {
	if v == nil {
		return "—"
	}
	n := *v
	abs := math.Abs(n)
	switch {
	case abs >= 1e12:
		return fmt.Sprintf("$%.1fT", n/1e12)
	case abs >= 1e9:
		return fmt.Sprintf("$%.1fB", n/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("$%.1fM", n/1e6)
	default:
		return fmt.Sprintf("$%.2f", n)
	}
}

// fmtNum renders an optional numeric field with two decimals.
func fmtNum(v *float64) string {
	if v == nil {
		return "—"
	}
	return fmt.Sprintf("%.2f", *v)
}

// fmtPct renders a ratio as a signed percentage.
func fmtPct(v *float64) string {
	if v == nil {
		return "—"
	}
	return fmt.Sprintf("%+.1f%%", *v*100)
}

func fmtConfidence(v float64) string {
	return fmt.Sprintf("%.0f%%", v*100)
}

func riskClass(level string) string {
	switch strings.ToLower(level) {
	case "high":
		return "risk-high"
	case "medium":
		return "risk-medium"
	default:
		return "risk-low"
	}
}
