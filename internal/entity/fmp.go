package entity

import (
	"context"
	"fmt"

	"github.com/fahimulhaque/MarketMind/internal/infra"
)

// FMPProfiles looks up sector and industry from the Financial Modeling
// Prep company-profile endpoint.
type FMPProfiles struct {
	baseURL string
	apiKey  string
}

// NewFMPProfiles creates the lookup client. Pass "" for the public
// endpoint.
func NewFMPProfiles(baseURL, apiKey string) *FMPProfiles {
	if baseURL == "" {
		baseURL = "https://financialmodelingprep.com"
	}
	return &FMPProfiles{baseURL: baseURL, apiKey: apiKey}
}

type fmpProfile struct {
	Sector   string `json:"sector"`
	Industry string `json:"industry"`
}

// FetchProfile returns the sector and industry for a ticker.
func (f *FMPProfiles) FetchProfile(ctx context.Context, ticker string) (string, string, error) {
	url := infra.BuildURL(f.baseURL+"/api/v3/profile/"+ticker, map[string]string{
		"apikey": f.apiKey,
	})
	var profiles []fmpProfile
	if err := infra.GetJSON(ctx, url, nil, &profiles); err != nil {
		return "", "", fmt.Errorf("entity: fmp profile %s: %w", ticker, err)
	}
	if len(profiles) == 0 {
		return "", "", fmt.Errorf("entity: fmp profile %s: empty result", ticker)
	}
	return profiles[0].Sector, profiles[0].Industry, nil
}
