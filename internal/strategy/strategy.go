// Package strategy decides, per attempt, which request tier to use and how
// long to wait for it. Attempt 1 favors responsiveness (fast tier, short
// budget); after a timeout or backend pressure the item escalates to the deep
// tier and never de-escalates.
package strategy

import "time"

// Tier selects the backend model/parameter tier for a request.
type Tier string

const (
	TierFast Tier = "fast"
	TierDeep Tier = "deep"
)

// Decision is the tier and timeout budget chosen for one attempt.
type Decision struct {
	Tier    Tier
	Timeout time.Duration
}

// Policy holds the configured schedule.
type Policy struct {
	FastTimeout time.Duration
	DeepTimeout time.Duration
	MaxAttempts int
}

func New(fastTimeout, deepTimeout time.Duration, maxAttempts int) *Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Policy{
		FastTimeout: fastTimeout,
		DeepTimeout: deepTimeout,
		MaxAttempts: maxAttempts,
	}
}

// Select returns the tier and timeout budget for the next attempt. escalated
// carries the item's monotonic escalation state: it starts false (attempt 1
// is always fast), flips to true after a timeout or capacity pressure, and
// never flips back — so every attempt after escalation stays on the deep
// tier. A malformed-response retry keeps the current tier.
func (p *Policy) Select(escalated bool) Decision {
	if escalated {
		return Decision{Tier: TierDeep, Timeout: p.DeepTimeout}
	}
	return Decision{Tier: TierFast, Timeout: p.FastTimeout}
}

// AttemptsRemaining reports whether another attempt may start after the given
// attempt number has failed.
func (p *Policy) AttemptsRemaining(attempt int) bool {
	return attempt < p.MaxAttempts
}
