package models

import "time"

// MacroObservation is one dated value of a macroeconomic series.
// Unique by (series_id, observation_date).
type MacroObservation struct {
	SeriesID   string  `json:"series_id"`
	SeriesName string  `json:"series_name"`
	Date       string  `json:"date"` // YYYY-MM-DD
	Value      float64 `json:"value"`
	Provider   string  `json:"source_provider,omitempty"`
}

// MacroIndicator is the latest value of a series, for reporting.
type MacroIndicator struct {
	Name  string   `json:"name"`
	Value *float64 `json:"value"`
	Date  string   `json:"date"`
}

// MacroContext carries the latest values for the core series set.
type MacroContext struct {
	Available  bool                      `json:"available"`
	Indicators map[string]MacroIndicator `json:"indicators,omitempty"`
}

// SocialPost is one ranked post backing a social signal.
type SocialPost struct {
	Title       string  `json:"title,omitempty"`
	Content     string  `json:"content,omitempty"`
	URL         string  `json:"url"`
	Author      string  `json:"author,omitempty"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments,omitempty"`
	Subreddit   string  `json:"subreddit,omitempty"`
	Sentiment   float64 `json:"sentiment,omitempty"`
	CreatedAt   string  `json:"created_utc,omitempty"`
}

// SocialSignal is a one-per-day aggregate of platform mentions for a ticker.
// Unique by (ticker, platform, signal_date).
type SocialSignal struct {
	EntityID       *int64       `json:"entity_id,omitempty"`
	Ticker         string       `json:"ticker"`
	Platform       string       `json:"platform"`
	SignalDate     string       `json:"signal_date"` // YYYY-MM-DD
	MentionCount   int          `json:"mention_count"`
	AvgSentiment   float64      `json:"avg_sentiment"` // in [-1, 1]
	TopPosts       []SocialPost `json:"top_posts,omitempty"`
	SourceProvider string       `json:"source_provider,omitempty"`
}

// SentimentSummary is the 7-day social aggregate used in reports.
type SentimentSummary struct {
	Available      bool    `json:"available"`
	TotalMentions  int     `json:"total_mentions_7d,omitempty"`
	AvgSentiment   float64 `json:"avg_sentiment,omitempty"`
	SentimentLabel string  `json:"sentiment_label,omitempty"` // bullish|bearish|neutral
	DaysData       int     `json:"days_data,omitempty"`
}

// EntityFiling is a regulatory filing reference, unique by accession number.
type EntityFiling struct {
	Ticker          string    `json:"ticker"`
	CIK             string    `json:"cik,omitempty"`
	FilingType      string    `json:"filing_type"`
	FilingDate      string    `json:"filing_date"` // YYYY-MM-DD
	FilingURL       string    `json:"filing_url"`
	AccessionNumber string    `json:"accession_number"`
	Description     string    `json:"description,omitempty"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
}

// EntityCoverage tracks which data axes are populated for a ticker.
type EntityCoverage struct {
	Ticker           string    `json:"ticker"`
	HasFinancials    bool      `json:"has_financials"`
	HasFilings       bool      `json:"has_filings"`
	HasMacro         bool      `json:"has_macro"`
	HasSocial        bool      `json:"has_social"`
	HasNews          bool      `json:"has_news"`
	HasPrice         bool      `json:"has_price"`
	QuarterlyPeriods int       `json:"quarterly_periods"`
	FilingCount      int       `json:"filing_count"`
	Score            float64   `json:"score"` // weighted, in [0, 1]
	UpdatedAt        time.Time `json:"updated_at,omitempty"`
}
