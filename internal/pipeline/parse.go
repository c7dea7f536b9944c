// Package pipeline orchestrates a market intelligence query: parse and
// resolve the entity, refresh provider data when evidence is stale, run
// hybrid retrieval and ranking, generate the narrative sections, and
// assemble the report. Two entry points share the machinery: Run returns
// a complete report, RunStream emits progressive stage events.
package pipeline

import (
	"context"
	"log"
	"strings"

	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// ParsedQuery is the structured interpretation of a free-text query.
type ParsedQuery struct {
	models.QueryContext
	Tokens   []string
	Entity   models.Entity
	Resolved bool
}

var (
	quarterWords   = []string{"quarter", "q1", "q2", "q3", "q4"}
	yearWords      = []string{"year", "annual", "yoy"}
	recentWords    = []string{"week", "today", "latest", "recent"}
	riskWords      = []string{"risk", "threat", "exposure"}
	financialWords = []string{"growth", "revenue", "earnings", "profit", "margin"}
	marketWords    = []string{"pricing", "competition", "market", "strategy"}
)

// parseQuery tokenizes the query and classifies timeframe and intent,
// then resolves the entity through the resolver.
func (p *Pipeline) parseQuery(ctx context.Context, query string) ParsedQuery {
	lowered := strings.ToLower(strings.TrimSpace(query))
	var tokens []string
	for _, tok := range strings.Fields(strings.ReplaceAll(lowered, ",", " ")) {
		tokens = append(tokens, tok)
	}

	parsed := ParsedQuery{Tokens: tokens}
	parsed.Timeframe = classify(tokens, "current", [][]string{quarterWords, yearWords, recentWords}, []string{"quarter", "year", "recent"})
	parsed.Intent = classify(tokens, "general", [][]string{riskWords, financialWords, marketWords}, []string{"risk", "financial", "market"})

	// Default entity name: first word of the query, replaced on resolution.
	parsed.Entity.Name = query
	if fields := strings.Fields(query); len(fields) > 0 {
		parsed.Entity.Name = fields[0]
	}

	if p.resolver != nil {
		entity, resolved, err := p.resolver.Resolve(ctx, query, "")
		if err != nil {
			log.Printf("pipeline: entity resolution for %q: %v", query, err)
		} else if resolved {
			parsed.Entity = entity
			parsed.Resolved = true
		}
	}

	parsed.QueryContext.Entity = parsed.Entity.Name
	parsed.QueryContext.Ticker = parsed.Entity.Ticker
	return parsed
}

func classify(tokens []string, fallback string, wordSets [][]string, labels []string) string {
	for i, set := range wordSets {
		for _, tok := range tokens {
			for _, w := range set {
				if tok == w {
					return labels[i]
				}
			}
		}
	}
	return fallback
}
