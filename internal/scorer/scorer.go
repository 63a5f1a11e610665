package scorer

import (
	"fmt"
	"math"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/dailyworker/newsroom/internal/model"
)

// ErrInvalidSubScore is returned when a sub-score lies outside [0, 100].
var ErrInvalidSubScore = eris.New("scorer: sub-score out of range")

// Result is the outcome of scoring one event. A rejection is a Result with
// Approved false and a Reason, not an error.
type Result struct {
	Final           float64            `json:"final"`
	Approved        bool               `json:"approved"`
	Reason          string             `json:"reason,omitempty"`
	ComponentScores map[string]float64 `json:"component_scores"`
}

// Score computes the weighted newsworthiness score. It is a pure function of
// its inputs; out-of-range sub-scores yield ErrInvalidSubScore.
func Score(s model.SubScores, w Weights, threshold float64) (Result, error) {
	if err := validateSubScores(s); err != nil {
		return Result{}, err
	}

	components := map[string]float64{
		"impact":        w.Impact * s.Impact,
		"timeliness":    w.Timeliness * s.Timeliness,
		"verifiability": w.Verifiability * s.Verifiability,
		"regional":      w.Regional * s.Regional,
		"conflict":      w.Conflict * s.Conflict,
		"novelty":       w.Novelty * s.Novelty,
	}

	// Summed in a fixed order so repeated runs agree exactly.
	total := components["impact"] + components["timeliness"] + components["verifiability"] +
		components["regional"] + components["conflict"] + components["novelty"]

	// Compared unrounded. floatEpsilon absorbs binary error in weights like 0.15.
	res := Result{Final: total, Approved: total >= threshold-floatEpsilon, ComponentScores: components}
	if !res.Approved {
		res.Reason = fmt.Sprintf("score %s below threshold %s", formatScore(total), formatScore(threshold))
	}
	return res, nil
}

const floatEpsilon = 1e-9

// formatScore prints two decimals unless that would round v.
func formatScore(v float64) string {
	if math.Abs(round2(v)-v) < floatEpsilon {
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func validateSubScores(s model.SubScores) error {
	fields := []struct {
		name string
		v    float64
	}{
		{"impact", s.Impact},
		{"timeliness", s.Timeliness},
		{"verifiability", s.Verifiability},
		{"regional", s.Regional},
		{"conflict", s.Conflict},
		{"novelty", s.Novelty},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || f.v < 0 || f.v > 100 {
			return eris.Wrapf(ErrInvalidSubScore, "%s = %v", f.name, f.v)
		}
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
