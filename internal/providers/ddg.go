package providers

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/fahimulhaque/MarketMind/internal/infra"
	"github.com/fahimulhaque/MarketMind/internal/provider"
	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// DuckDuckGo discovers fresh web sources for an entity through the HTML
// search endpoint and registers them for the ingestion worker. It stores
// no data itself: discovered pages flow in through ingestion.
type DuckDuckGo struct {
	store      Store
	baseURL    string
	maxResults int
}

// NewDuckDuckGo creates the web discovery provider.
func NewDuckDuckGo(st Store) *DuckDuckGo {
	return &DuckDuckGo{store: st, baseURL: "https://html.duckduckgo.com", maxResults: 5}
}

func (p *DuckDuckGo) Name() string       { return "duckduckgo" }
func (p *DuckDuckGo) IsConfigured() bool { return true }

// FetchCompanyData runs a news-flavored and an analysis-flavored search
// and registers the top hits as web sources.
func (p *DuckDuckGo) FetchCompanyData(ctx context.Context, entity models.Entity) []provider.ProviderResult {
	name := shortCompanyName(entity.Name)
	queries := []string{
		fmt.Sprintf("%s %s stock news", name, entity.Ticker),
		fmt.Sprintf("%s %s analysis outlook", name, entity.Ticker),
	}

	seen := make(map[string]bool)
	registered := 0
	var lastErr error
	for _, q := range queries {
		links, err := p.search(ctx, q)
		if err != nil {
			lastErr = err
			log.Printf("providers: duckduckgo %q: %v", q, err)
			continue
		}
		for _, link := range links {
			if seen[link.href] {
				continue
			}
			seen[link.href] = true
			if _, err := p.store.AddSource(ctx, link.title, link.href, "web"); err != nil {
				log.Printf("providers: duckduckgo register %q: %v", link.href, err)
				continue
			}
			registered++
		}
	}
	if registered == 0 && lastErr != nil {
		return []provider.ProviderResult{provider.Failure(p.Name(), "web_discovery", lastErr)}
	}
	return []provider.ProviderResult{provider.Success(p.Name(), "web_discovery", registered)}
}

type ddgLink struct {
	title string
	href  string
}

func (p *DuckDuckGo) search(ctx context.Context, query string) ([]ddgLink, error) {
	searchURL := infra.BuildURL(p.baseURL+"/html/", map[string]string{"q": query})
	body, err := infra.DoGet(ctx, searchURL, map[string]string{"Accept": "text/html"})
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var links []ddgLink
	doc.Find("a.result__a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, ok := a.Attr("href")
		if !ok {
			return true
		}
		href = resolveRedirect(href)
		title := strings.TrimSpace(a.Text())
		if href == "" || title == "" {
			return true
		}
		links = append(links, ddgLink{title: title, href: href})
		return len(links) < p.maxResults
	})
	return links, nil
}

// resolveRedirect unwraps the /l/?uddg= redirect the HTML endpoint emits.
func resolveRedirect(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "http" || u.Scheme == "https" {
		return href
	}
	return ""
}
