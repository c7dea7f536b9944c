package enrich

import (
	"fmt"
	"math"

	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// NormalizeScenarios validates LLM-produced scenarios: exactly three with
// probabilities renormalized to sum to 1.0. Returns false when the set is
// unusable and the arithmetic fallback should run instead.
func NormalizeScenarios(scenarios []models.Scenario) ([]models.Scenario, bool) {
	if len(scenarios) != 3 {
		return nil, false
	}
	total := 0.0
	for _, s := range scenarios {
		if s.Name == "" || s.Probability < 0 {
			return nil, false
		}
		total += s.Probability
	}
	if total <= 0 {
		return nil, false
	}
	out := make([]models.Scenario, len(scenarios))
	copy(out, scenarios)
	for i := range out {
		out[i].Probability = out[i].Probability / total
	}
	// Absorb rounding residue into the largest scenario.
	sum := 0.0
	largest := 0
	for i := range out {
		out[i].Probability = math.Round(out[i].Probability*1000) / 1000
		sum += out[i].Probability
		if out[i].Probability > out[largest].Probability {
			largest = i
		}
	}
	out[largest].Probability += math.Round((1.0-sum)*1000) / 1000
	return out, true
}

// FallbackScenarios derives a bull/base/bear baseline from the decision
// confidence when the LLM declines.
func FallbackScenarios(entityName string, confidence float64) []models.Scenario {
	bull := math.Min(confidence+0.12, 0.92)
	base := math.Max(math.Min(confidence, 0.8), 0.1)
	bear := math.Max(1-confidence+0.05, 0.1)
	total := bull + base + bear

	return []models.Scenario{
		{
			Name:        "Bull case",
			Probability: bull / total,
			Assumption:  fmt.Sprintf("Current positive signals for %s strengthen and broaden.", entityName),
			Impact:      "Upside re-rating as results confirm the thesis.",
			TriggerSignals: []string{
				"Earnings beat with raised guidance",
				"Analyst upgrades",
				"Positive sentiment momentum",
			},
		},
		{
			Name:        "Base case",
			Probability: base / total,
			Assumption:  fmt.Sprintf("%s performs in line with current expectations.", entityName),
			Impact:      "Range-bound trading around consensus estimates.",
			TriggerSignals: []string{
				"In-line quarterly results",
				"Stable macro backdrop",
			},
		},
		{
			Name:        "Bear case",
			Probability: bear / total,
			Assumption:  fmt.Sprintf("Key risks around %s materialize.", entityName),
			Impact:      "Downside pressure until the risk clears.",
			TriggerSignals: []string{
				"Earnings miss or withdrawn guidance",
				"Negative regulatory development",
				"Deteriorating sentiment",
			},
		},
	}
}
