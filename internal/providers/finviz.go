package providers

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/fahimulhaque/MarketMind/internal/infra"
	"github.com/fahimulhaque/MarketMind/internal/provider"
	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// Finviz scrapes the public quote page for analyst ratings and the price
// target consensus. Rating actions map to a sentiment score, stored as a
// daily social signal on the "finviz_analyst" platform.
type Finviz struct {
	store   Store
	baseURL string
	now     func() time.Time
}

// NewFinviz creates the Finviz scraper.
func NewFinviz(st Store) *Finviz {
	return &Finviz{store: st, baseURL: "https://finviz.com", now: time.Now}
}

func (p *Finviz) Name() string       { return "finviz" }
func (p *Finviz) IsConfigured() bool { return true }

// ratingSentiment maps a rating action to a score in [-1, 1].
func ratingSentiment(action string) float64 {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "upgrade":
		return 0.8
	case "initiated", "resumed":
		return 0.3
	case "reiterated", "maintained":
		return 0.1
	case "downgrade":
		return -0.8
	}
	return 0
}

// FetchCompanyData scrapes analyst ratings and the target price.
func (p *Finviz) FetchCompanyData(ctx context.Context, entity models.Entity) []provider.ProviderResult {
	pageURL := infra.BuildURL(p.baseURL+"/quote.ashx", map[string]string{"t": entity.Ticker})
	body, err := infra.DoGet(ctx, pageURL, map[string]string{
		"Accept": "text/html",
	})
	if err != nil {
		return []provider.ProviderResult{
			provider.Failure(p.Name(), "analyst", fmt.Errorf("finviz quote page: %w", err)),
		}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return []provider.ProviderResult{
			provider.Failure(p.Name(), "analyst", fmt.Errorf("finviz parse: %w", err)),
		}
	}

	var posts []models.SocialPost
	total := 0.0
	doc.Find("table.js-table-ratings tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 5 {
			return
		}
		date := strings.TrimSpace(cells.Eq(0).Text())
		action := strings.TrimSpace(cells.Eq(1).Text())
		analyst := strings.TrimSpace(cells.Eq(2).Text())
		rating := strings.TrimSpace(cells.Eq(3).Text())
		target := strings.TrimSpace(cells.Eq(4).Text())
		if action == "" || analyst == "" {
			return
		}
		score := ratingSentiment(action)
		total += score
		posts = append(posts, models.SocialPost{
			Title:     fmt.Sprintf("%s: %s %s", analyst, action, rating),
			Content:   strings.TrimSpace(fmt.Sprintf("%s %s", date, target)),
			URL:       pageURL,
			Author:    analyst,
			Sentiment: score,
		})
	})

	// The snapshot table interleaves label/value cells.
	if target := snapshotField(doc, "Target Price"); target != "" {
		posts = append(posts, models.SocialPost{
			Title: fmt.Sprintf("Price target consensus: %s", target),
			URL:   pageURL,
		})
	}

	if len(posts) == 0 {
		return []provider.ProviderResult{provider.Success(p.Name(), "analyst", 0)}
	}
	if len(posts) > 10 {
		posts = posts[:10]
	}

	rated := 0
	for _, post := range posts {
		if post.Author != "" {
			rated++
		}
	}
	avg := 0.0
	if rated > 0 {
		avg = clampSentiment(total / float64(rated))
	}

	sig := models.SocialSignal{
		Ticker:         entity.Ticker,
		Platform:       "finviz_analyst",
		SignalDate:     p.now().UTC().Format("2006-01-02"),
		MentionCount:   rated,
		AvgSentiment:   avg,
		TopPosts:       posts,
		SourceProvider: p.Name(),
	}
	if entity.ID != 0 {
		id := entity.ID
		sig.EntityID = &id
	}
	if err := p.store.UpsertSocialSignal(ctx, sig); err != nil {
		return []provider.ProviderResult{provider.Failure(p.Name(), "analyst", err)}
	}
	return []provider.ProviderResult{provider.Success(p.Name(), "analyst", 1)}
}

// snapshotField reads a labeled value from the snapshot metrics table.
func snapshotField(doc *goquery.Document, label string) string {
	value := ""
	doc.Find("table.snapshot-table2 td").Each(func(i int, cell *goquery.Selection) {
		if value != "" {
			return
		}
		if strings.TrimSpace(cell.Text()) == label {
			value = strings.TrimSpace(cell.Next().Text())
		}
	})
	return value
}
