// Package enrich builds the typed report sections for an entity from
// repository reads and real-time exchange data: financial snapshot,
// historical trends, macro context, social sentiment, coverage overlay,
// filings and scenarios.
package enrich

import (
	"context"
	"fmt"

	"github.com/fahimulhaque/MarketMind/internal/infra"
	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// YahooQuotes reads real-time quote data from the public Yahoo Finance
// endpoints. The quote API is the primary path; the chart API serves as
// fallback because it survives consent-wall changes that break quote.
type YahooQuotes struct {
	baseURL string
}

// NewYahooQuotes creates the client. Pass "" for the public endpoint.
func NewYahooQuotes(baseURL string) *YahooQuotes {
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}
	return &YahooQuotes{baseURL: baseURL}
}

type yahooQuoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			RegularMarketPrice float64 `json:"regularMarketPrice"`
			MarketCap          float64 `json:"marketCap"`
			TrailingPE         float64 `json:"trailingPE"`
			ForwardPE          float64 `json:"forwardPE"`
			Currency           string  `json:"currency"`
			FiftyTwoWeekRange  string  `json:"fiftyTwoWeekRange"`
		} `json:"result"`
	} `json:"quoteResponse"`
}

// FetchQuote returns a snapshot from the quote API.
func (y *YahooQuotes) FetchQuote(ctx context.Context, symbol string) (models.FinancialSnapshot, error) {
	url := infra.BuildURL(y.baseURL+"/v7/finance/quote", map[string]string{"symbols": symbol})
	var resp yahooQuoteResponse
	if err := infra.GetJSON(ctx, url, nil, &resp); err != nil {
		return models.FinancialSnapshot{}, fmt.Errorf("enrich: yahoo quote %s: %w", symbol, err)
	}
	if len(resp.QuoteResponse.Result) == 0 {
		return models.FinancialSnapshot{}, fmt.Errorf("enrich: yahoo quote %s: empty result", symbol)
	}
	q := resp.QuoteResponse.Result[0]
	snap := models.FinancialSnapshot{
		Symbol:            symbol,
		Currency:          q.Currency,
		FiftyTwoWeekRange: q.FiftyTwoWeekRange,
		Source:            "yahoo",
	}
	if q.RegularMarketPrice != 0 {
		snap.Price = models.Float(q.RegularMarketPrice)
	}
	if q.MarketCap != 0 {
		snap.MarketCap = models.Float(q.MarketCap)
	}
	if q.TrailingPE != 0 {
		snap.TrailingPE = models.Float(q.TrailingPE)
	}
	if q.ForwardPE != 0 {
		snap.ForwardPE = models.Float(q.ForwardPE)
	}
	return snap, nil
}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				Currency           string  `json:"currency"`
				FiftyTwoWeekHigh   float64 `json:"fiftyTwoWeekHigh"`
				FiftyTwoWeekLow    float64 `json:"fiftyTwoWeekLow"`
			} `json:"meta"`
		} `json:"result"`
	} `json:"chart"`
}

// FetchChart returns a reduced snapshot from the chart API metadata.
func (y *YahooQuotes) FetchChart(ctx context.Context, symbol string) (models.FinancialSnapshot, error) {
	url := infra.BuildURL(y.baseURL+"/v8/finance/chart/"+symbol, map[string]string{
		"range":    "1d",
		"interval": "1d",
	})
	var resp yahooChartResponse
	if err := infra.GetJSON(ctx, url, nil, &resp); err != nil {
		return models.FinancialSnapshot{}, fmt.Errorf("enrich: yahoo chart %s: %w", symbol, err)
	}
	if len(resp.Chart.Result) == 0 {
		return models.FinancialSnapshot{}, fmt.Errorf("enrich: yahoo chart %s: empty result", symbol)
	}
	meta := resp.Chart.Result[0].Meta
	snap := models.FinancialSnapshot{
		Symbol:   symbol,
		Currency: meta.Currency,
		Source:   "yahoo_chart_fallback",
	}
	if meta.RegularMarketPrice != 0 {
		snap.Price = models.Float(meta.RegularMarketPrice)
	}
	if meta.FiftyTwoWeekLow != 0 || meta.FiftyTwoWeekHigh != 0 {
		snap.FiftyTwoWeekRange = fmt.Sprintf("%.2f - %.2f", meta.FiftyTwoWeekLow, meta.FiftyTwoWeekHigh)
	}
	return snap, nil
}
