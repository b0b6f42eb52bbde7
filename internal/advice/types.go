// Package advice defines the structured trading recommendation contract and
// the tolerant-extraction / strict-validation pair that turns free-form model
// output into a conforming result.
package advice

import (
	"fmt"
	"math"
)

// Direction values the contract recognizes.
const (
	DirectionLong  = "long"
	DirectionShort = "short"
	DirectionWait  = "wait"
)

// Result is the validated advisory output for one captured chart.
type Result struct {
	Direction  string    `json:"direction"`
	EntryPrice *float64  `json:"entry_price,omitempty"`
	StopLoss   *float64  `json:"stop_loss,omitempty"`
	Targets    []float64 `json:"targets,omitempty"`
	Rationale  string    `json:"rationale"`
	RiskScore  int       `json:"risk_score"`
	Confidence float64   `json:"confidence"`
	Notes      string    `json:"notes,omitempty"`

	// Filled in by the pipeline, never required from the model.
	ModelUsed      string `json:"model_used,omitempty"`
	ResponseTimeMS int64  `json:"response_time_ms,omitempty"`
}

// Validate checks the schema invariants: recognized direction, confidence in
// [0,1], risk score in 1..5, non-empty rationale, finite numeric levels.
func (r *Result) Validate() error {
	switch r.Direction {
	case DirectionLong, DirectionShort, DirectionWait:
	default:
		return fmt.Errorf("direction %q not one of long/short/wait", r.Direction)
	}
	if r.Rationale == "" {
		return fmt.Errorf("rationale is empty")
	}
	if r.RiskScore < 1 || r.RiskScore > 5 {
		return fmt.Errorf("risk_score %d outside 1..5", r.RiskScore)
	}
	if r.Confidence < 0 || r.Confidence > 1 || !isFinite(r.Confidence) {
		return fmt.Errorf("confidence %v outside [0,1]", r.Confidence)
	}
	if err := finitePtr("entry_price", r.EntryPrice); err != nil {
		return err
	}
	if err := finitePtr("stop_loss", r.StopLoss); err != nil {
		return err
	}
	for i, t := range r.Targets {
		if !isFinite(t) {
			return fmt.Errorf("targets[%d] is not a finite number", i)
		}
	}
	return nil
}

func finitePtr(name string, v *float64) error {
	if v != nil && !isFinite(*v) {
		return fmt.Errorf("%s is not a finite number", name)
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
