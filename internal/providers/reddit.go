package providers

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fahimulhaque/MarketMind/internal/infra"
	"github.com/fahimulhaque/MarketMind/internal/provider"
	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// Reddit aggregates retail-investor chatter from the public JSON API into
// one daily social signal per ticker. No credentials needed; the listing
// endpoints are open with a descriptive User-Agent.
type Reddit struct {
	store   Store
	baseURL string
	now     func() time.Time
}

var redditSubreddits = []string{"wallstreetbets", "stocks", "investing", "stockmarket", "options"}

// Highest-scored posts kept on the stored signal.
const maxTopPosts = 10

// Keyword sentiment: crude but stable, and cheap enough to run on every
// post without an LLM call.
var (
	bullishWords = []string{"buy", "bull", "bullish", "moon", "calls", "long", "undervalued", "breakout", "rally", "upgrade"}
	bearishWords = []string{"sell", "bear", "bearish", "puts", "short", "overvalued", "crash", "dump", "downgrade", "bagholder"}
)

// NewReddit creates the Reddit provider.
func NewReddit(st Store) *Reddit {
	return &Reddit{store: st, baseURL: "https://www.reddit.com", now: time.Now}
}

func (p *Reddit) Name() string       { return "reddit" }
func (p *Reddit) IsConfigured() bool { return true }

type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				Title       string  `json:"title"`
				Selftext    string  `json:"selftext"`
				Permalink   string  `json:"permalink"`
				Author      string  `json:"author"`
				Score       int     `json:"score"`
				NumComments int     `json:"num_comments"`
				Subreddit   string  `json:"subreddit"`
				CreatedUTC  float64 `json:"created_utc"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// FetchCompanyData searches each subreddit for the ticker and company
// name, deduplicates by permalink, and stores the daily aggregate.
func (p *Reddit) FetchCompanyData(ctx context.Context, entity models.Entity) []provider.ProviderResult {
	queries := []string{entity.Ticker}
	if short := shortCompanyName(entity.Name); short != "" && !strings.EqualFold(short, entity.Ticker) {
		queries = append(queries, short)
	}

	seen := make(map[string]bool)
	var posts []models.SocialPost
	var lastErr error
	for _, sub := range redditSubreddits {
		for _, q := range queries {
			listing, err := p.search(ctx, sub, q)
			if err != nil {
				lastErr = err
				log.Printf("providers: reddit r/%s %q: %v", sub, q, err)
				continue
			}
			for _, child := range listing.Data.Children {
				d := child.Data
				if d.Permalink == "" || seen[d.Permalink] {
					continue
				}
				seen[d.Permalink] = true
				posts = append(posts, models.SocialPost{
					Title:       d.Title,
					Content:     truncateText(d.Selftext, 500),
					URL:         "https://www.reddit.com" + d.Permalink,
					Author:      d.Author,
					Score:       d.Score,
					NumComments: d.NumComments,
					Subreddit:   d.Subreddit,
					Sentiment:   keywordSentiment(d.Title + " " + d.Selftext),
					CreatedAt:   time.Unix(int64(d.CreatedUTC), 0).UTC().Format(time.RFC3339),
				})
			}
		}
	}

	if len(posts) == 0 {
		if lastErr != nil {
			return []provider.ProviderResult{provider.Failure(p.Name(), "social", lastErr)}
		}
		return []provider.ProviderResult{provider.Success(p.Name(), "social", 0)}
	}

	total := 0.0
	for _, post := range posts {
		total += post.Sentiment
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].Score > posts[j].Score })
	top := posts
	if len(top) > maxTopPosts {
		top = top[:maxTopPosts]
	}

	sig := models.SocialSignal{
		Ticker:         entity.Ticker,
		Platform:       "reddit",
		SignalDate:     p.now().UTC().Format("2006-01-02"),
		MentionCount:   len(posts),
		AvgSentiment:   clampSentiment(total / float64(len(posts))),
		TopPosts:       top,
		SourceProvider: p.Name(),
	}
	if entity.ID != 0 {
		id := entity.ID
		sig.EntityID = &id
	}
	if err := p.store.UpsertSocialSignal(ctx, sig); err != nil {
		return []provider.ProviderResult{provider.Failure(p.Name(), "social", err)}
	}
	return []provider.ProviderResult{provider.Success(p.Name(), "social", 1)}
}

func (p *Reddit) search(ctx context.Context, subreddit, query string) (*redditListing, error) {
	url := infra.BuildURL(fmt.Sprintf("%s/r/%s/search.json", p.baseURL, subreddit), map[string]string{
		"q":           query,
		"restrict_sr": "1",
		"sort":        "new",
		"t":           "week",
		"limit":       "25",
	})
	var listing redditListing
	if err := infra.GetJSON(ctx, url, nil, &listing); err != nil {
		return nil, err
	}
	return &listing, nil
}

// keywordSentiment scores text by bullish/bearish keyword balance in [-1, 1].
func keywordSentiment(text string) float64 {
	lower := strings.ToLower(text)
	bulls, bears := 0, 0
	for _, w := range bullishWords {
		bulls += strings.Count(lower, w)
	}
	for _, w := range bearishWords {
		bears += strings.Count(lower, w)
	}
	if bulls+bears == 0 {
		return 0
	}
	return float64(bulls-bears) / float64(bulls+bears)
}

// shortCompanyName strips legal suffixes so "Tesla, Inc." searches as "Tesla".
func shortCompanyName(name string) string {
	name = strings.TrimSpace(name)
	for _, suffix := range []string{", Inc.", " Inc.", " Inc", ", Corp.", " Corp.", " Corp", " Corporation", " Ltd.", " Ltd", " PLC", " plc", " Co.", " Company"} {
		name = strings.TrimSuffix(name, suffix)
	}
	return strings.TrimSuffix(strings.TrimSpace(name), ",")
}

func truncateText(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
