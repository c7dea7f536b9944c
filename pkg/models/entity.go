// Package models defines the core data structures used throughout MarketMind.
package models

import "time"

// Entity is a canonical tradable issuer resolved from free text.
// Tickers are unique case-insensitively; aliases are lowercased.
type Entity struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Ticker    string    `json:"ticker"`
	CIK       string    `json:"cik,omitempty"`      // zero-padded to 10 digits
	Sector    string    `json:"sector,omitempty"`
	Industry  string    `json:"industry,omitempty"`
	Exchange  string    `json:"exchange,omitempty"`
	Type      string    `json:"type"`               // "company" or "etf"
	Aliases   []string  `json:"aliases,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// EntitySuggestion is a single autocomplete candidate.
type EntitySuggestion struct {
	Ticker   string `json:"ticker"`
	Name     string `json:"name"`
	Exchange string `json:"exchange,omitempty"`
	Type     string `json:"type,omitempty"`
}
