package advice

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const conforming = `{
	"direction": "long",
	"entry_price": 101.5,
	"stop_loss": 99.0,
	"targets": [104, 108.5],
	"rationale": "breakout over yesterday's high on rising volume",
	"risk_score": 2,
	"confidence": 0.74,
	"notes": "watch VWAP reclaim"
}`

func TestParseConforming(t *testing.T) {
	r, err := Parse(conforming)
	require.NoError(t, err)
	assert.Equal(t, "long", r.Direction)
	require.NotNil(t, r.EntryPrice)
	assert.InDelta(t, 101.5, *r.EntryPrice, 1e-9)
	assert.Equal(t, []float64{104, 108.5}, r.Targets)
	assert.Equal(t, 2, r.RiskScore)
	assert.InDelta(t, 0.74, r.Confidence, 1e-9)
}

// A schema-conforming payload wrapped in fences or prose must parse to the
// same result as the bare payload.
func TestParseWrappedRoundTrip(t *testing.T) {
	bare, err := Parse(conforming)
	require.NoError(t, err)

	wrappings := map[string]string{
		"fenced":        "```json\n" + conforming + "\n```",
		"bare_fence":    "```\n" + conforming + "\n```",
		"leading_prose": "Here is my analysis of the chart:\n" + conforming,
		"both_sides":    "Sure! " + conforming + "\nLet me know if you need more.",
	}
	for name, raw := range wrappings {
		t.Run(name, func(t *testing.T) {
			r, err := Parse(raw)
			require.NoError(t, err)
			assert.Equal(t, bare, r)
		})
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"prose only", "I cannot read this chart, sorry."},
		{"fenced prose", "```\nnot json at all\n```"},
		{"truncated object", `{"direction": "long", "rationale":`},
		{"missing rationale", `{"direction": "long", "risk_score": 2, "confidence": 0.5}`},
		{"bad direction", `{"direction": "sideways", "rationale": "x", "risk_score": 2, "confidence": 0.5}`},
		{"confidence too high", `{"direction": "wait", "rationale": "x", "risk_score": 2, "confidence": 1.2}`},
		{"confidence negative", `{"direction": "wait", "rationale": "x", "risk_score": 2, "confidence": -0.1}`},
		{"risk zero", `{"direction": "wait", "rationale": "x", "risk_score": 0, "confidence": 0.5}`},
		{"risk six", `{"direction": "wait", "rationale": "x", "risk_score": 6, "confidence": 0.5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw)
			assert.Error(t, err)
		})
	}
}

// Extraction never fabricates fields: braces inside string values must not
// confuse the balanced-object scan.
func TestBalancedObjectScan(t *testing.T) {
	raw := `Note: {"direction":"wait","rationale":"range {100..105} holds","risk_score":3,"confidence":0.4} done`
	r, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "range {100..105} holds", r.Rationale)
}

func TestValidateNonFinite(t *testing.T) {
	inf := math.Inf(1)
	nan := math.NaN()

	base := func() *Result {
		return &Result{Direction: "long", Rationale: "x", RiskScore: 3, Confidence: 0.5}
	}

	r := base()
	r.EntryPrice = &inf
	assert.Error(t, r.Validate())

	r = base()
	r.StopLoss = &nan
	assert.Error(t, r.Validate())

	r = base()
	r.Targets = []float64{100, inf}
	assert.Error(t, r.Validate())

	r = base()
	r.Confidence = nan
	assert.Error(t, r.Validate())

	assert.NoError(t, base().Validate())
}
