package provider

import (
	"context"
	"fmt"
	"log"

	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// Repository is the slice of the store the dispatcher needs.
type Repository interface {
	AddSource(ctx context.Context, name, url, connectorType string) (models.Source, error)
	UpdateCoverage(ctx context.Context, entityName, ticker string) (models.EntityCoverage, error)
}

// EnrichmentSummary aggregates one full enrichment pass.
type EnrichmentSummary struct {
	Entity               models.Entity          `json:"entity"`
	ProvidersRun         []ProviderResult       `json:"providers_run"`
	TotalRecords         int                    `json:"total_records"`
	RSSSourcesDiscovered int                    `json:"rss_sources_discovered"`
	Coverage             *models.EntityCoverage `json:"coverage,omitempty"`
}

// Dispatcher fans enrichment out to every configured provider under the
// shared daily budget, isolating per-provider failures.
type Dispatcher struct {
	repo      Repository
	providers []Provider // stable order
	budget    *BudgetTracker
}

// NewDispatcher wires a dispatcher. Provider order is preserved across
// runs so budgets drain predictably.
func NewDispatcher(repo Repository, budget *BudgetTracker, providers ...Provider) *Dispatcher {
	return &Dispatcher{repo: repo, providers: providers, budget: budget}
}

// Budget exposes the shared tracker (the ops surface reports remaining
// budgets from it).
func (d *Dispatcher) Budget() *BudgetTracker { return d.budget }

// Providers returns the registered providers in dispatch order.
func (d *Dispatcher) Providers() []Provider { return d.providers }

// RunFullEnrichment refreshes every data axis for the entity. onProvider,
// when non-nil, is invoked after each provider completes (the streaming
// pipeline uses it for provider_complete events). Provider panics and
// errors are contained: a failing provider contributes a failed
// ProviderResult and the batch continues.
func (d *Dispatcher) RunFullEnrichment(ctx context.Context, entity models.Entity, onProvider func(ProviderResult)) EnrichmentSummary {
	summary := EnrichmentSummary{Entity: entity}

	summary.RSSSourcesDiscovered = d.discoverRSSSources(ctx, entity)

	for _, p := range d.providers {
		if ctx.Err() != nil {
			break
		}
		if !p.IsConfigured() {
			continue
		}
		if limiter, ok := p.(DailyLimiter); ok {
			if !d.budget.AllowN(p.Name(), limiter.DailyLimit(), limiter.RequestCost()) {
				log.Printf("provider: %s daily budget exhausted, skipping", p.Name())
				continue
			}
		}

		results := d.fetchIsolated(ctx, p, entity)
		for _, res := range results {
			summary.ProvidersRun = append(summary.ProvidersRun, res)
			summary.TotalRecords += res.RecordsStored
			if onProvider != nil {
				onProvider(res)
			}
		}
	}

	if cov, err := d.repo.UpdateCoverage(ctx, entity.Name, entity.Ticker); err != nil {
		log.Printf("provider: coverage update for %s failed: %v", entity.Ticker, err)
	} else {
		summary.Coverage = &cov
	}
	return summary
}

// fetchIsolated calls one provider, converting panics into a failed result.
func (d *Dispatcher) fetchIsolated(ctx context.Context, p Provider, entity models.Entity) (results []ProviderResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("provider: %s panicked: %v", p.Name(), r)
			results = []ProviderResult{Failure(p.Name(), "fetch", fmt.Errorf("panic: %v", r))}
		}
	}()
	return p.FetchCompanyData(ctx, entity)
}

// discoverRSSSources registers news feeds for the entity so the ingestion
// worker picks them up. Returns how many registrations succeeded.
func (d *Dispatcher) discoverRSSSources(ctx context.Context, entity models.Entity) int {
	if entity.Ticker == "" {
		return 0
	}
	feeds := []struct {
		name, url string
	}{
		{
			name: fmt.Sprintf("Google News: %s", entity.Name),
			url: fmt.Sprintf("https://news.google.com/rss/search?q=%%22%s%%22+stock&hl=en-US&gl=US&ceid=US:en",
				entity.Ticker),
		},
		{
			name: fmt.Sprintf("Yahoo Finance News: %s", entity.Name),
			url: fmt.Sprintf("https://feeds.finance.yahoo.com/rss/2.0/headline?s=%s&region=US&lang=en-US",
				entity.Ticker),
		},
	}
	registered := 0
	for _, f := range feeds {
		if _, err := d.repo.AddSource(ctx, f.name, f.url, "rss"); err != nil {
			log.Printf("provider: rss discovery register %q failed: %v", f.name, err)
			continue
		}
		registered++
	}
	return registered
}
