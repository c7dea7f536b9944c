package entity

import (
	"context"
	"strings"
	"testing"

	"github.com/fahimulhaque/MarketMind/internal/store"
	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// fakeRepo is an in-memory Repository for resolver tests.
type fakeRepo struct {
	byTicker map[string]models.Entity
	upserted []models.Entity
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byTicker: make(map[string]models.Entity)}
}

func (f *fakeRepo) LookupEntityByTicker(_ context.Context, ticker string) (models.Entity, error) {
	if e, ok := f.byTicker[strings.ToUpper(ticker)]; ok {
		return e, nil
	}
	return models.Entity{}, store.ErrNotFound
}

func (f *fakeRepo) LookupEntityByName(_ context.Context, name string) (models.Entity, error) {
	for _, e := range f.byTicker {
		if strings.EqualFold(e.Name, name) {
			return e, nil
		}
	}
	return models.Entity{}, store.ErrNotFound
}

func (f *fakeRepo) LookupEntityByAlias(_ context.Context, alias string) (models.Entity, error) {
	for _, e := range f.byTicker {
		for _, a := range e.Aliases {
			if a == strings.ToLower(alias) {
				return e, nil
			}
		}
	}
	return models.Entity{}, store.ErrNotFound
}

func (f *fakeRepo) UpsertEntity(_ context.Context, e models.Entity) (models.Entity, error) {
	e.ID = int64(len(f.byTicker) + 1)
	f.byTicker[strings.ToUpper(e.Ticker)] = e
	f.upserted = append(f.upserted, e)
	return e, nil
}

func (f *fakeRepo) SuggestEntities(_ context.Context, q string, limit int) ([]models.EntitySuggestion, error) {
	var out []models.EntitySuggestion
	for _, e := range f.byTicker {
		if strings.HasPrefix(e.Ticker, strings.ToUpper(q)) {
			out = append(out, models.EntitySuggestion{Ticker: e.Ticker, Name: e.Name})
		}
	}
	return out, nil
}

// fakeQuotes returns canned symbol search results.
type fakeQuotes struct {
	results map[string][]models.EntitySuggestion
	calls   []string
}

func (f *fakeQuotes) SearchSymbols(_ context.Context, query string, _ int) ([]models.EntitySuggestion, error) {
	f.calls = append(f.calls, query)
	return f.results[query], nil
}

func TestResolveHitsRepositoryCacheFirst(t *testing.T) {
	repo := newFakeRepo()
	repo.byTicker["AAPL"] = models.Entity{ID: 1, Name: "Apple Inc.", Ticker: "AAPL"}
	quotes := &fakeQuotes{}
	r := NewResolver(repo, quotes, nil, nil)

	e, ok, err := r.Resolve(context.Background(), "AAPL", "")
	if err != nil || !ok {
		t.Fatalf("Resolve: ok=%v err=%v", ok, err)
	}
	if e.Name != "Apple Inc." {
		t.Errorf("Name = %q", e.Name)
	}
	if len(quotes.calls) != 0 {
		t.Errorf("symbol search should not run on cache hit, got %v", quotes.calls)
	}
}

func TestResolveFallsBackToSymbolSearchAndUpserts(t *testing.T) {
	repo := newFakeRepo()
	quotes := &fakeQuotes{results: map[string][]models.EntitySuggestion{
		"Tesla earnings": nil, // full query misses
		"Tesla": {
			{Ticker: "TSLA", Name: "Tesla, Inc.", Exchange: "NMS", Type: "EQUITY"},
		},
	}}
	r := NewResolver(repo, quotes, nil, nil)

	e, ok, err := r.Resolve(context.Background(), "Tesla earnings", "")
	if err != nil || !ok {
		t.Fatalf("Resolve: ok=%v err=%v", ok, err)
	}
	if e.Ticker != "TSLA" {
		t.Errorf("Ticker = %q", e.Ticker)
	}
	if len(repo.upserted) != 1 {
		t.Fatalf("expected one upsert, got %d", len(repo.upserted))
	}
	// The original query becomes an alias so the next resolve is a cache hit.
	found := false
	for _, a := range repo.upserted[0].Aliases {
		if a == "tesla earnings" {
			found = true
		}
	}
	if !found {
		t.Errorf("query alias missing: %v", repo.upserted[0].Aliases)
	}
}

func TestResolveReturnsNotFoundOnEmptySearch(t *testing.T) {
	repo := newFakeRepo()
	quotes := &fakeQuotes{results: map[string][]models.EntitySuggestion{}}
	r := NewResolver(repo, quotes, nil, nil)

	_, ok, err := r.Resolve(context.Background(), "Zzz9 Corp", "")
	if err != nil {
		t.Fatalf("Resolve err = %v", err)
	}
	if ok {
		t.Error("expected not-found for unknown query")
	}
}

func TestResolvePrefersEquityOverOtherQuoteTypes(t *testing.T) {
	repo := newFakeRepo()
	quotes := &fakeQuotes{results: map[string][]models.EntitySuggestion{
		"Apple": {
			{Ticker: "AAPL240621C", Name: "AAPL Call", Type: "OPTION"},
			{Ticker: "AAPL", Name: "Apple Inc.", Type: "EQUITY"},
		},
	}}
	r := NewResolver(repo, quotes, nil, nil)

	e, ok, _ := r.Resolve(context.Background(), "Apple", "")
	if !ok || e.Ticker != "AAPL" {
		t.Errorf("got %+v ok=%v, want AAPL equity", e, ok)
	}
}

func TestSearchAttemptsOrder(t *testing.T) {
	got := searchAttempts("Palantir (PLTR) outlook", "")
	want := []string{"PLTR", "Palantir (PLTR) outlook", "Palantir"}
	if len(got) != len(want) {
		t.Fatalf("attempts = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("attempt[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestAutocompleteMergesAndDeduplicates(t *testing.T) {
	repo := newFakeRepo()
	repo.byTicker["MS"] = models.Entity{Ticker: "MS", Name: "Morgan Stanley"}
	quotes := &fakeQuotes{results: map[string][]models.EntitySuggestion{
		"MS": {
			{Ticker: "MS", Name: "Morgan Stanley"},   // duplicate of DB row
			{Ticker: "MSFT", Name: "Microsoft Corp"}, // new
		},
	}}
	r := NewResolver(repo, quotes, nil, nil)

	out, err := r.Autocomplete(context.Background(), "MS", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d suggestions: %v", len(out), out)
	}
	if out[0].Ticker != "MS" {
		t.Errorf("DB rows must come first, got %v", out)
	}
}
