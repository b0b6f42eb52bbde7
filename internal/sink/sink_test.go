package sink

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chart-advisor/internal/advice"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDeliverSuccess(t *testing.T) {
	var calls []Outcome
	s := New(time.Minute, func(_ string, o Outcome) {
		calls = append(calls, o)
	}, testLogger())
	defer s.Close()

	s.Deliver(Outcome{
		ItemID: "item-1",
		Advice: &advice.Result{Direction: "long", Rationale: "r", RiskScore: 2, Confidence: 0.8},
	})

	require.Len(t, calls, 1)
	assert.True(t, calls[0].Succeeded())
	assert.False(t, calls[0].At.IsZero())

	got, ok := s.Get("item-1")
	require.True(t, ok)
	assert.Equal(t, "long", got.Advice.Direction)
}

func TestDeliverFailureTagged(t *testing.T) {
	s := New(time.Minute, nil, testLogger())
	defer s.Close()

	s.Deliver(Outcome{ItemID: "item-2", Failure: FailureRetriesExhausted, Detail: "after 3 attempts"})

	got, ok := s.Get("item-2")
	require.True(t, ok)
	assert.False(t, got.Succeeded())
	assert.Equal(t, FailureRetriesExhausted, got.Failure)
}

// A second terminal for the same item must not reach the presentation
// callback or overwrite the retained outcome.
func TestDuplicateTerminalDropped(t *testing.T) {
	calls := 0
	s := New(time.Minute, func(string, Outcome) { calls++ }, testLogger())
	defer s.Close()

	s.Deliver(Outcome{ItemID: "item-3", Failure: FailureContractViolation})
	s.Deliver(Outcome{
		ItemID: "item-3",
		Advice: &advice.Result{Direction: "wait", Rationale: "late", RiskScore: 1, Confidence: 0.1},
	})

	assert.Equal(t, 1, calls)
	got, _ := s.Get("item-3")
	assert.Equal(t, FailureContractViolation, got.Failure)
	assert.Nil(t, got.Advice)
}

func TestRetentionExpires(t *testing.T) {
	s := New(30*time.Millisecond, nil, testLogger())
	defer s.Close()

	s.Deliver(Outcome{ItemID: "item-4", Failure: FailureEncode})
	_, ok := s.Get("item-4")
	require.True(t, ok)

	assert.Eventually(t, func() bool {
		_, ok := s.Get("item-4")
		return !ok
	}, time.Second, 10*time.Millisecond)
}
