package entity

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fahimulhaque/MarketMind/internal/infra"
	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// YahooSearch queries the public Yahoo Finance symbol search endpoint.
type YahooSearch struct {
	baseURL string
}

// NewYahooSearch creates a search client. baseURL overrides the public
// endpoint in tests; pass "" for the default.
func NewYahooSearch(baseURL string) *YahooSearch {
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}
	return &YahooSearch{baseURL: baseURL}
}

type yahooSearchResponse struct {
	Quotes []struct {
		Symbol    string `json:"symbol"`
		ShortName string `json:"shortname"`
		LongName  string `json:"longname"`
		Exchange  string `json:"exchange"`
		QuoteType string `json:"quoteType"`
	} `json:"quotes"`
}

// SearchSymbols returns candidates in API order.
func (y *YahooSearch) SearchSymbols(ctx context.Context, query string, limit int) ([]models.EntitySuggestion, error) {
	url := infra.BuildURL(y.baseURL+"/v1/finance/search", map[string]string{
		"q":           query,
		"quotesCount": strconv.Itoa(limit),
		"newsCount":   "0",
	})
	var resp yahooSearchResponse
	if err := infra.GetJSON(ctx, url, nil, &resp); err != nil {
		return nil, fmt.Errorf("entity: yahoo search: %w", err)
	}

	out := make([]models.EntitySuggestion, 0, len(resp.Quotes))
	for _, q := range resp.Quotes {
		if q.Symbol == "" {
			continue
		}
		name := q.LongName
		if name == "" {
			name = q.ShortName
		}
		out = append(out, models.EntitySuggestion{
			Ticker:   q.Symbol,
			Name:     name,
			Exchange: q.Exchange,
			Type:     q.QuoteType,
		})
	}
	return out, nil
}
