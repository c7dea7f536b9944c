package ingest

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/fahimulhaque/MarketMind/internal/infra"
	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// Connector fetches a source and returns its normalized text content.
type Connector interface {
	Fetch(ctx context.Context, src models.Source) (string, error)
}

var whitespaceRun = regexp.MustCompile(`[ \t\r\f]+`)

// normalizeWhitespace collapses runs of spaces and blank lines.
func normalizeWhitespace(s string) string {
	s = whitespaceRun.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// WebConnector fetches an HTML page and extracts readable text.
type WebConnector struct {
	userAgent string
}

// NewWebConnector creates the HTML connector.
func NewWebConnector(userAgent string) *WebConnector {
	return &WebConnector{userAgent: userAgent}
}

// Fetch downloads the page and strips boilerplate markup. Scripts,
// styles, navigation and footers are dropped before text extraction.
func (c *WebConnector) Fetch(ctx context.Context, src models.Source) (string, error) {
	body, err := infra.DoGet(ctx, src.URL, map[string]string{
		"User-Agent": c.userAgent,
		"Accept":     "text/html,application/xhtml+xml",
	})
	if err != nil {
		return "", fmt.Errorf("ingest: fetch %s: %w", src.URL, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ingest: parse %s: %w", src.URL, err)
	}
	doc.Find("script, style, noscript, nav, header, footer, iframe, svg").Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())
	content := doc.Find("main, article").Text()
	if strings.TrimSpace(content) == "" {
		content = doc.Find("body").Text()
	}

	text := normalizeWhitespace(content)
	if title != "" {
		text = title + "\n" + text
	}
	if text == "" {
		return "", fmt.Errorf("ingest: no text content at %s", src.URL)
	}
	return text, nil
}

// RSSConnector fetches a feed and flattens entries into one document so
// the snapshot hash changes whenever any entry changes.
type RSSConnector struct {
	parser     *gofeed.Parser
	maxEntries int
}

// NewRSSConnector creates the feed connector.
func NewRSSConnector(userAgent string) *RSSConnector {
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	return &RSSConnector{parser: parser, maxEntries: 20}
}

// Fetch parses the feed and concatenates recent entry titles and
// descriptions in feed order.
func (c *RSSConnector) Fetch(ctx context.Context, src models.Source) (string, error) {
	feed, err := c.parser.ParseURLWithContext(src.URL, ctx)
	if err != nil {
		return "", fmt.Errorf("ingest: parse feed %s: %w", src.URL, err)
	}

	var sb strings.Builder
	if feed.Title != "" {
		sb.WriteString(feed.Title)
		sb.WriteString("\n")
	}
	for i, item := range feed.Items {
		if i >= c.maxEntries {
			break
		}
		sb.WriteString(item.Title)
		if item.Description != "" {
			sb.WriteString("\n")
			sb.WriteString(stripTags(item.Description))
		}
		if item.Link != "" {
			sb.WriteString("\n")
			sb.WriteString(item.Link)
		}
		sb.WriteString("\n\n")
	}

	text := normalizeWhitespace(sb.String())
	if text == "" {
		return "", fmt.Errorf("ingest: empty feed %s", src.URL)
	}
	return text, nil
}

// stripTags removes inline HTML from feed descriptions.
func stripTags(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return doc.Text()
}

// ConnectorFor returns the connector matching the source type.
func ConnectorFor(src models.Source, userAgent string) Connector {
	if src.ConnectorType == "rss" {
		return NewRSSConnector(userAgent)
	}
	return NewWebConnector(userAgent)
}
