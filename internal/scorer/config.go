// Package scorer implements newsworthiness scoring for discovered events.
package scorer

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/dailyworker/newsroom/internal/config"
)

// DefaultThreshold is the minimum final score for an event to be approved.
const DefaultThreshold = 65.0

// Weights holds the per-component multipliers. They sum to 1.
type Weights struct {
	Impact        float64
	Timeliness    float64
	Verifiability float64
	Regional      float64
	Conflict      float64
	Novelty       float64
}

// DefaultWeights returns the newsroom's standard weighting.
func DefaultWeights() Weights {
	return Weights{
		Impact:        0.30,
		Timeliness:    0.20,
		Verifiability: 0.20,
		Regional:      0.15,
		Conflict:      0.10,
		Novelty:       0.05,
	}
}

// WeightsFromConfig maps the scoring config section onto Weights.
func WeightsFromConfig(c config.ScoringConfig) Weights {
	return Weights{
		Impact:        c.ImpactWeight,
		Timeliness:    c.TimelinessWeight,
		Verifiability: c.VerifiabilityWeight,
		Regional:      c.RegionalWeight,
		Conflict:      c.ConflictWeight,
		Novelty:       c.NoveltyWeight,
	}
}

// Sum returns the total of all component weights.
func (w Weights) Sum() float64 {
	return w.Impact + w.Timeliness + w.Verifiability + w.Regional + w.Conflict + w.Novelty
}

// ValidateWeights checks that weights are non-negative and sum to 1.
func ValidateWeights(w Weights) error {
	var errs []string

	weights := []struct {
		name string
		v    float64
	}{
		{"impact_weight", w.Impact},
		{"timeliness_weight", w.Timeliness},
		{"verifiability_weight", w.Verifiability},
		{"regional_weight", w.Regional},
		{"conflict_weight", w.Conflict},
		{"novelty_weight", w.Novelty},
	}
	for _, wt := range weights {
		if wt.v < 0 || math.IsNaN(wt.v) {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", wt.name))
		}
	}

	// Allow a little floating-point slack.
	if sum := w.Sum(); math.Abs(sum-1) > 0.001 {
		errs = append(errs, fmt.Sprintf("weights should sum to 1, got %.3f", sum))
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: weight validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
