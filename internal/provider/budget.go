package provider

import (
	"sync"
	"time"
)

// BudgetTracker keeps per-provider per-day request counters. Counters
// reset when the UTC date changes. A limit of 0 means unlimited.
type BudgetTracker struct {
	mu       sync.Mutex
	counters map[string]int
	date     string // UTC date the counters belong to
	now      func() time.Time
}

// NewBudgetTracker creates an empty tracker.
func NewBudgetTracker() *BudgetTracker {
	return &BudgetTracker{
		counters: make(map[string]int),
		now:      time.Now,
	}
}

// Allow reports whether the provider still has budget today, and when it
// does, consumes one unit.
func (b *BudgetTracker) Allow(provider string, dailyLimit int) bool {
	return b.AllowN(provider, dailyLimit, 1)
}

// AllowN consumes n units if the full amount fits in today's budget.
// Providers that issue several upstream requests per fetch charge their
// true request count so the tracker mirrors the vendor-side quota.
func (b *BudgetTracker) AllowN(provider string, dailyLimit, n int) bool {
	if dailyLimit <= 0 {
		return true
	}
	if n < 1 {
		n = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	if b.counters[provider]+n > dailyLimit {
		return false
	}
	b.counters[provider] += n
	return true
}

// Remaining returns how much budget the provider has left today.
// Unlimited providers report -1.
func (b *BudgetTracker) Remaining(provider string, dailyLimit int) int {
	if dailyLimit <= 0 {
		return -1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	left := dailyLimit - b.counters[provider]
	if left < 0 {
		left = 0
	}
	return left
}

// SetUsed pre-sets today's counter. Used by tests and by operators after
// out-of-band API usage.
func (b *BudgetTracker) SetUsed(provider string, used int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	b.counters[provider] = used
}

// rollover clears counters on UTC date change. Must hold mu.
func (b *BudgetTracker) rollover() {
	today := b.now().UTC().Format("2006-01-02")
	if b.date != today {
		b.date = today
		b.counters = make(map[string]int)
	}
}
