// Package ingest implements the source ingestion pipeline: policy checks,
// content fetch and normalization, chunking, redaction, rule-based
// analysis, and persistence into the evidence and memory stores.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fahimulhaque/MarketMind/internal/config"
	"github.com/fahimulhaque/MarketMind/internal/infra"
)

// ErrPolicyBlocked marks a fetch denied by robots.txt or the domain
// allow-list. Blocked sources are logged, never retried.
var ErrPolicyBlocked = errors.New("ingest: blocked by fetch policy")

// ErrThrottled marks a source fetched again before its minimum interval
// elapsed. Throttled runs are skipped, not failures.
var ErrThrottled = errors.New("ingest: source throttled")

// Policy gates outbound fetches: per-source throttling, an optional
// domain allow-list, and robots.txt compliance with cached rule sets.
type Policy struct {
	cfg    config.IngestConfig
	robots *infra.Cache // host -> []string of disallowed prefixes

	mu        sync.Mutex
	lastFetch map[int64]time.Time
}

// NewPolicy creates a fetch policy from the ingestion config.
func NewPolicy(cfg config.IngestConfig) *Policy {
	return &Policy{
		cfg:       cfg,
		robots:    infra.NewCache(1 * time.Hour),
		lastFetch: make(map[int64]time.Time),
	}
}

// CheckThrottle enforces the per-source minimum fetch interval. The first
// check after the window opens claims the slot.
func (p *Policy) CheckThrottle(sourceID int64, lastIngest time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	last := p.lastFetch[sourceID]
	if lastIngest.After(last) {
		last = lastIngest
	}
	if !last.IsZero() && time.Since(last) < p.cfg.MinInterval() {
		return ErrThrottled
	}
	p.lastFetch[sourceID] = time.Now()
	return nil
}

// Allow reports whether rawURL may be fetched. The allow-list, when set,
// matches domain suffixes. Robots failures deny or allow per
// DenyOnRobotsError.
func (p *Policy) Allow(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: invalid url %q", ErrPolicyBlocked, rawURL)
	}

	if len(p.cfg.AllowedDomains) > 0 && !p.domainAllowed(u.Hostname()) {
		return fmt.Errorf("%w: domain %q not in allow-list", ErrPolicyBlocked, u.Hostname())
	}

	if !p.cfg.RequireRobots {
		return nil
	}
	disallowed, err := p.disallowedPrefixes(ctx, u)
	if err != nil {
		if p.cfg.DenyOnRobotsError {
			return fmt.Errorf("%w: robots.txt unavailable for %s: %v", ErrPolicyBlocked, u.Hostname(), err)
		}
		log.Printf("ingest: robots.txt for %s unavailable, allowing: %v", u.Hostname(), err)
		return nil
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	for _, prefix := range disallowed {
		if strings.HasPrefix(path, prefix) {
			return fmt.Errorf("%w: %s disallowed by robots.txt", ErrPolicyBlocked, path)
		}
	}
	return nil
}

func (p *Policy) domainAllowed(host string) bool {
	host = strings.ToLower(host)
	for _, d := range p.cfg.AllowedDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// disallowedPrefixes fetches and caches the robots.txt rules that apply
// to the wildcard agent. A 404 means no restrictions.
func (p *Policy) disallowedPrefixes(ctx context.Context, u *url.URL) ([]string, error) {
	key := u.Scheme + "://" + u.Host
	if cached, ok := p.robots.Get(key); ok {
		return cached.([]string), nil
	}

	body, err := infra.DoGet(ctx, key+"/robots.txt", map[string]string{"User-Agent": p.cfg.UserAgent})
	if err != nil {
		var statusErr *infra.HTTPStatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == 404 {
			p.robots.Set(key, []string{})
			return nil, nil
		}
		return nil, err
	}

	rules := parseRobots(string(body))
	p.robots.Set(key, rules)
	return rules, nil
}

// parseRobots extracts Disallow prefixes from the groups that apply to
// the wildcard user agent.
func parseRobots(body string) []string {
	var rules []string
	applies := false
	for _, line := range strings.Split(body, "\n") {
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		field, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		field = strings.ToLower(strings.TrimSpace(field))
		value = strings.TrimSpace(value)
		switch field {
		case "user-agent":
			applies = value == "*"
		case "disallow":
			if applies && value != "" {
				rules = append(rules, value)
			}
		}
	}
	return rules
}
