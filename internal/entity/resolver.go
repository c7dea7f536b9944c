// Package entity resolves free-text queries to canonical tradable entities.
// Resolution prefers the repository cache, then falls back to the quotes
// search API, the SEC ticker registry for CIK, and an optional profile
// lookup for sector/industry.
package entity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/fahimulhaque/MarketMind/internal/infra"
	"github.com/fahimulhaque/MarketMind/internal/store"
	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// Repository is the slice of the store the resolver needs.
type Repository interface {
	LookupEntityByTicker(ctx context.Context, ticker string) (models.Entity, error)
	LookupEntityByName(ctx context.Context, name string) (models.Entity, error)
	LookupEntityByAlias(ctx context.Context, alias string) (models.Entity, error)
	UpsertEntity(ctx context.Context, e models.Entity) (models.Entity, error)
	SuggestEntities(ctx context.Context, q string, limit int) ([]models.EntitySuggestion, error)
}

// QuoteSearcher finds symbol candidates for a free-text query.
type QuoteSearcher interface {
	SearchSymbols(ctx context.Context, query string, limit int) ([]models.EntitySuggestion, error)
}

// ProfileLookup enriches a ticker with sector and industry when configured.
type ProfileLookup interface {
	FetchProfile(ctx context.Context, ticker string) (sector, industry string, err error)
}

// Resolver maps queries to entities and caches results in the repository.
type Resolver struct {
	repo     Repository
	quotes   QuoteSearcher
	cik      *CIKRegistry
	profiles ProfileLookup // may be nil
}

// NewResolver wires a resolver. profiles may be nil when no provider key
// is configured.
func NewResolver(repo Repository, quotes QuoteSearcher, cik *CIKRegistry, profiles ProfileLookup) *Resolver {
	return &Resolver{repo: repo, quotes: quotes, cik: cik, profiles: profiles}
}

// tickerParen matches an explicit "(TSLA)" style ticker in a query.
var tickerParen = regexp.MustCompile(`\(([A-Za-z][A-Za-z.\-]{0,9})\)`)

// Resolve maps a query to a canonical entity. The boolean is false only
// when symbol search yields nothing; other lookup failures degrade
// gracefully and still produce an entity.
func (r *Resolver) Resolve(ctx context.Context, query, preTicker string) (models.Entity, bool, error) {
	query = strings.TrimSpace(query)

	// 1. Repository cache.
	if e, ok := r.fromCache(ctx, query, preTicker); ok {
		return e, true, nil
	}

	// 2. Symbol search: explicit parenthetical ticker, the query as given,
	// then the first token for multi-word queries.
	attempts := searchAttempts(query, preTicker)
	var hit *models.EntitySuggestion
	for _, attempt := range attempts {
		candidates, err := r.quotes.SearchSymbols(ctx, attempt, 8)
		if err != nil {
			log.Printf("entity: symbol search %q failed: %v", attempt, err)
			continue
		}
		if best := pickCandidate(candidates); best != nil {
			hit = best
			break
		}
	}
	if hit == nil {
		return models.Entity{}, false, nil
	}

	e := models.Entity{
		Name:     hit.Name,
		Ticker:   strings.ToUpper(hit.Ticker),
		Exchange: hit.Exchange,
		Type:     entityType(hit.Type),
		Aliases:  []string{strings.ToLower(query)},
	}

	// 3. CIK from the ticker registry.
	if r.cik != nil {
		if cik, err := r.cik.Lookup(ctx, e.Ticker); err == nil && cik != "" {
			e.CIK = cik
		}
	}

	// 4. Sector/industry profile when configured.
	if r.profiles != nil {
		if sector, industry, err := r.profiles.FetchProfile(ctx, e.Ticker); err == nil {
			e.Sector = sector
			e.Industry = industry
		}
	}

	// 5. Cache in the repository with the alias union.
	saved, err := r.repo.UpsertEntity(ctx, e)
	if err != nil {
		log.Printf("entity: upsert %s failed: %v", e.Ticker, err)
		return e, true, nil // still usable this query
	}
	return saved, true, nil
}

func (r *Resolver) fromCache(ctx context.Context, query, preTicker string) (models.Entity, bool) {
	if preTicker != "" {
		if e, err := r.repo.LookupEntityByTicker(ctx, preTicker); err == nil {
			return e, true
		}
	}
	if e, err := r.repo.LookupEntityByTicker(ctx, query); err == nil {
		return e, true
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Printf("entity: ticker lookup failed: %v", err)
	}
	if e, err := r.repo.LookupEntityByName(ctx, query); err == nil {
		return e, true
	}
	if e, err := r.repo.LookupEntityByAlias(ctx, query); err == nil {
		return e, true
	}
	return models.Entity{}, false
}

func searchAttempts(query, preTicker string) []string {
	var attempts []string
	if preTicker != "" {
		attempts = append(attempts, preTicker)
	}
	if m := tickerParen.FindStringSubmatch(query); m != nil {
		attempts = append(attempts, m[1])
	}
	attempts = append(attempts, query)
	if fields := strings.Fields(query); len(fields) > 1 {
		attempts = append(attempts, fields[0])
	}
	return attempts
}

// pickCandidate prefers equities and ETFs, preserving API order.
func pickCandidate(candidates []models.EntitySuggestion) *models.EntitySuggestion {
	for i := range candidates {
		switch strings.ToUpper(candidates[i].Type) {
		case "EQUITY", "ETF":
			return &candidates[i]
		}
	}
	return nil
}

func entityType(quoteType string) string {
	if strings.EqualFold(quoteType, "ETF") {
		return "etf"
	}
	return "company"
}

// Autocomplete returns up to limit suggestions: repository rows first,
// quotes API second, deduplicated by ticker.
func (r *Resolver) Autocomplete(ctx context.Context, q string, limit int) ([]models.EntitySuggestion, error) {
	if limit <= 0 {
		limit = 10
	}
	out, err := r.repo.SuggestEntities(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("entity: autocomplete db: %w", err)
	}
	seen := make(map[string]bool, len(out))
	for _, s := range out {
		seen[strings.ToUpper(s.Ticker)] = true
	}
	if len(out) < limit {
		remote, err := r.quotes.SearchSymbols(ctx, q, limit)
		if err != nil {
			log.Printf("entity: autocomplete remote failed: %v", err)
		}
		for _, s := range remote {
			if len(out) >= limit {
				break
			}
			key := strings.ToUpper(s.Ticker)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, s)
		}
	}
	return out, nil
}

// CIKRegistry resolves tickers to zero-padded SEC CIK numbers using the
// public company_tickers.json registry. The full map is cached.
type CIKRegistry struct {
	userAgent string
	cache     *infra.Cache
}

// NewCIKRegistry creates a registry client. userAgent is the SEC-required
// contact identification.
func NewCIKRegistry(userAgent string) *CIKRegistry {
	return &CIKRegistry{
		userAgent: userAgent,
		cache:     infra.NewCache(12 * time.Hour),
	}
}

const secTickersURL = "https://www.sec.gov/files/company_tickers.json"

// Lookup returns the 10-digit CIK for a ticker, or "" when unknown.
func (c *CIKRegistry) Lookup(ctx context.Context, ticker string) (string, error) {
	ticker = strings.ToUpper(ticker)
	if cached, ok := c.cache.Get("cik_map"); ok {
		return cached.(map[string]string)[ticker], nil
	}

	var raw map[string]struct {
		CIK    int64  `json:"cik_str"`
		Ticker string `json:"ticker"`
	}
	err := infra.GetJSON(ctx, secTickersURL, map[string]string{"User-Agent": c.userAgent}, &raw)
	if err != nil {
		return "", fmt.Errorf("entity: cik registry: %w", err)
	}

	m := make(map[string]string, len(raw))
	for _, rec := range raw {
		m[strings.ToUpper(rec.Ticker)] = fmt.Sprintf("%010d", rec.CIK)
	}
	c.cache.Set("cik_map", m)
	return m[ticker], nil
}
