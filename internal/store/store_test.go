package store

import (
	"testing"

	"github.com/fahimulhaque/MarketMind/pkg/models"
)

func TestVectorLiteral(t *testing.T) {
	tests := []struct {
		name string
		vec  []float32
		want string
	}{
		{"empty", nil, "[]"},
		{"single", []float32{1}, "[1]"},
		{"negative and fraction", []float32{-0.5, 0.25, 2}, "[-0.5,0.25,2]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VectorLiteral(tt.vec); got != tt.want {
				t.Errorf("VectorLiteral(%v) = %q, want %q", tt.vec, got, tt.want)
			}
		})
	}
}

func TestNormalizeAliases(t *testing.T) {
	e := models.Entity{
		Name:    "Apple Inc.",
		Ticker:  "AAPL",
		Aliases: []string{"apple", "Apple Inc.", "  AAPL  "},
	}
	got := normalizeAliases(e)

	want := map[string]bool{"apple": true, "apple inc.": true, "aapl": true}
	if len(got) != len(want) {
		t.Fatalf("aliases = %v, want 3 unique entries", got)
	}
	for _, a := range got {
		if !want[a] {
			t.Errorf("unexpected alias %q", a)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 10); got != "hello" {
		t.Errorf("truncate short: got %q", got)
	}
	if got := truncate("hello world", 5); got != "hello" {
		t.Errorf("truncate long: got %q", got)
	}
}
