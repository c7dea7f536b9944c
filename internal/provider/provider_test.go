package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// fakeProvider records fetch invocations.
type fakeProvider struct {
	name       string
	configured bool
	limit      int
	cost       int
	calls      int
	results    []ProviderResult
	panics     bool
}

func (f *fakeProvider) Name() string       { return f.name }
func (f *fakeProvider) IsConfigured() bool { return f.configured }
func (f *fakeProvider) DailyLimit() int    { return f.limit }
func (f *fakeProvider) RequestCost() int   { return f.cost }

func (f *fakeProvider) FetchCompanyData(_ context.Context, _ models.Entity) []ProviderResult {
	f.calls++
	if f.panics {
		panic("boom")
	}
	return f.results
}

// fakeDispatchRepo satisfies Repository in memory.
type fakeDispatchRepo struct {
	sources  []string
	coverage models.EntityCoverage
	covErr   error
}

func (f *fakeDispatchRepo) AddSource(_ context.Context, name, url, connectorType string) (models.Source, error) {
	f.sources = append(f.sources, url)
	return models.Source{ID: int64(len(f.sources)), Name: name, URL: url, ConnectorType: connectorType}, nil
}

func (f *fakeDispatchRepo) UpdateCoverage(_ context.Context, _, _ string) (models.EntityCoverage, error) {
	return f.coverage, f.covErr
}

func TestBudgetTrackerConsumesAndDenies(t *testing.T) {
	b := NewBudgetTracker()
	for i := 0; i < 3; i++ {
		assert.True(t, b.Allow("alphavantage", 3))
	}
	assert.False(t, b.Allow("alphavantage", 3))
	assert.Equal(t, 0, b.Remaining("alphavantage", 3))
}

func TestBudgetTrackerChargesRequestCost(t *testing.T) {
	b := NewBudgetTracker()
	// 25/day at 4 requests per fetch: six fetches fit, the seventh does not.
	for i := 0; i < 6; i++ {
		require.True(t, b.AllowN("alphavantage", 25, 4))
	}
	assert.False(t, b.AllowN("alphavantage", 25, 4))
	assert.Equal(t, 1, b.Remaining("alphavantage", 25))
}

func TestBudgetTrackerUnlimitedProviders(t *testing.T) {
	b := NewBudgetTracker()
	for i := 0; i < 1000; i++ {
		require.True(t, b.Allow("sec", 0))
	}
	assert.Equal(t, -1, b.Remaining("sec", 0))
}

func TestBudgetTrackerResetsAtUTCMidnight(t *testing.T) {
	clock := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)
	b := NewBudgetTracker()
	b.now = func() time.Time { return clock }

	b.SetUsed("fmp", 250)
	assert.False(t, b.Allow("fmp", 250))

	clock = clock.Add(2 * time.Minute) // crosses into the next UTC day
	assert.True(t, b.Allow("fmp", 250))
	assert.Equal(t, 249, b.Remaining("fmp", 250))
}

func TestDispatcherSkipsExhaustedProvider(t *testing.T) {
	av := &fakeProvider{name: "alphavantage", configured: true, limit: 25}
	fmp := &fakeProvider{name: "fmp", configured: true, limit: 250,
		results: []ProviderResult{Success("fmp", "financials", 4)}}

	budget := NewBudgetTracker()
	budget.SetUsed("alphavantage", 25)

	repo := &fakeDispatchRepo{coverage: models.EntityCoverage{Score: 0.4}}
	d := NewDispatcher(repo, budget, av, fmp)

	summary := d.RunFullEnrichment(context.Background(), models.Entity{Name: "Tesla, Inc.", Ticker: "TSLA"}, nil)

	assert.Zero(t, av.calls, "exhausted provider must not be invoked")
	assert.Equal(t, 1, fmp.calls)
	for _, res := range summary.ProvidersRun {
		assert.NotEqual(t, "alphavantage", res.Provider)
	}
	assert.Equal(t, 4, summary.TotalRecords)
	require.NotNil(t, summary.Coverage)
	assert.InDelta(t, 0.4, summary.Coverage.Score, 1e-9)
}

func TestDispatcherChargesMultiRequestProviders(t *testing.T) {
	av := &fakeProvider{name: "alphavantage", configured: true, limit: 25, cost: 4,
		results: []ProviderResult{Success("alphavantage", "financials", 8)}}
	budget := NewBudgetTracker()
	repo := &fakeDispatchRepo{}
	d := NewDispatcher(repo, budget, av)

	entity := models.Entity{Name: "Tesla, Inc.", Ticker: "TSLA"}
	for i := 0; i < 7; i++ {
		d.RunFullEnrichment(context.Background(), entity, nil)
	}
	assert.Equal(t, 6, av.calls, "four upstream requests per fetch must exhaust 25/day after six fetches")
}

func TestDispatcherIsolatesProviderPanics(t *testing.T) {
	bad := &fakeProvider{name: "finviz", configured: true, panics: true}
	good := &fakeProvider{name: "fred", configured: true,
		results: []ProviderResult{Success("fred", "macro", 12)}}

	repo := &fakeDispatchRepo{}
	d := NewDispatcher(repo, NewBudgetTracker(), bad, good)

	summary := d.RunFullEnrichment(context.Background(), models.Entity{Name: "Apple Inc.", Ticker: "AAPL"}, nil)

	require.Len(t, summary.ProvidersRun, 2)
	assert.False(t, summary.ProvidersRun[0].Success)
	assert.Equal(t, "finviz", summary.ProvidersRun[0].Provider)
	assert.True(t, summary.ProvidersRun[1].Success)
	assert.Equal(t, 1, good.calls, "panic in one provider must not stop the batch")
}

func TestDispatcherSkipsUnconfiguredAndDiscoversRSS(t *testing.T) {
	off := &fakeProvider{name: "polygon", configured: false}
	repo := &fakeDispatchRepo{}
	d := NewDispatcher(repo, NewBudgetTracker(), off)

	var events []ProviderResult
	summary := d.RunFullEnrichment(context.Background(), models.Entity{Name: "NVIDIA Corporation", Ticker: "NVDA"},
		func(res ProviderResult) { events = append(events, res) })

	assert.Zero(t, off.calls)
	assert.Empty(t, events)
	assert.Equal(t, 2, summary.RSSSourcesDiscovered)
	require.Len(t, repo.sources, 2)
	assert.Contains(t, repo.sources[0], "news.google.com/rss")
	assert.Contains(t, repo.sources[1], "NVDA")
}

func TestFailureAndSuccessConstructors(t *testing.T) {
	f := Failure("sec", "filings", errors.New("rate limited"))
	assert.False(t, f.Success)
	assert.Equal(t, "rate limited", f.Error)

	s := Success("sec", "filings", 10)
	assert.True(t, s.Success)
	assert.Equal(t, 10, s.RecordsStored)
	assert.False(t, s.FetchedAt.IsZero())
}
