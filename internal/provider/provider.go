// Package provider defines the data-provider abstraction used by
// enrichment: a common contract, per-provider daily rate budgets, and a
// dispatcher that fans out to every configured provider with per-provider
// error isolation.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// ProviderResult describes one fetch performed by a provider.
type ProviderResult struct {
	Provider      string    `json:"provider"`
	DataType      string    `json:"data_type"`
	RecordsStored int       `json:"records_stored"`
	Success       bool      `json:"success"`
	Error         string    `json:"error,omitempty"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// Provider is the contract every external data provider implements.
// FetchCompanyData must contain its own error handling: it reports
// failures through ProviderResult entries, and a returned error is
// treated as a provider-level fault that never aborts the batch.
type Provider interface {
	// Name returns the stable provider identifier (e.g. "sec", "fmp").
	Name() string

	// IsConfigured reports whether required credentials are present.
	IsConfigured() bool

	// FetchCompanyData refreshes stored data for the entity.
	FetchCompanyData(ctx context.Context, entity models.Entity) []ProviderResult
}

// DailyLimiter is implemented by providers with a daily request budget.
// The dispatcher skips providers whose budget is exhausted. RequestCost
// is the number of upstream HTTP requests one FetchCompanyData issues;
// the dispatcher charges that many units per dispatch so the budget
// counts requests the way the vendor does.
type DailyLimiter interface {
	DailyLimit() int
	RequestCost() int
}

// ErrNotConfigured signals a provider invoked without its credentials.
type ErrNotConfigured struct {
	Provider string
}

func (e *ErrNotConfigured) Error() string {
	return fmt.Sprintf("provider %q is not configured", e.Provider)
}

// Failure builds a failed ProviderResult.
func Failure(name, dataType string, err error) ProviderResult {
	return ProviderResult{
		Provider:  name,
		DataType:  dataType,
		Success:   false,
		Error:     err.Error(),
		FetchedAt: time.Now().UTC(),
	}
}

// Success builds a successful ProviderResult.
func Success(name, dataType string, records int) ProviderResult {
	return ProviderResult{
		Provider:      name,
		DataType:      dataType,
		RecordsStored: records,
		Success:       records >= 0,
		FetchedAt:     time.Now().UTC(),
	}
}
