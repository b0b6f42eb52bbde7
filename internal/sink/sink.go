// Package sink receives terminal pipeline outcomes, exactly once per
// non-abandoned item, and retains them for the presentation collaborator
// until they age out.
package sink

import (
	"log/slog"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"chart-advisor/internal/advice"
)

// FailureReason is the closed set of terminal failure tags.
type FailureReason string

const (
	FailureEncode            FailureReason = "EncodeError"
	FailureRetriesExhausted  FailureReason = "RetriesExhausted"
	FailureContractViolation FailureReason = "ContractViolation"
	FailureBackendRejected   FailureReason = "BackendRejected"
)

// Outcome is the terminal result for one item: either Advice (success) or a
// Failure tag with detail.
type Outcome struct {
	ItemID  string
	Advice  *advice.Result
	Failure FailureReason
	Detail  string
	At      time.Time
}

// Succeeded reports whether the outcome carries validated advice.
func (o Outcome) Succeeded() bool { return o.Advice != nil }

// TerminalFunc is the presentation callback, invoked once per item.
type TerminalFunc func(itemID string, outcome Outcome)

// Sink stores outcomes keyed by item id. It never reorders and never
// deduplicates across items; a second terminal for the same item is dropped.
type Sink struct {
	results    *ttlcache.Cache[string, Outcome]
	onTerminal TerminalFunc
	logger     *slog.Logger
}

func New(retention time.Duration, onTerminal TerminalFunc, logger *slog.Logger) *Sink {
	c := ttlcache.New[string, Outcome](
		ttlcache.WithTTL[string, Outcome](retention),
		ttlcache.WithDisableTouchOnHit[string, Outcome](),
	)
	go c.Start()
	return &Sink{results: c, onTerminal: onTerminal, logger: logger}
}

// Deliver records the outcome and notifies the presentation callback. A
// duplicate terminal for a retained item is logged and ignored.
func (s *Sink) Deliver(o Outcome) {
	if s.results.Has(o.ItemID) {
		s.logger.Warn("duplicate terminal dropped", "item", o.ItemID)
		return
	}
	if o.At.IsZero() {
		o.At = time.Now()
	}
	s.results.Set(o.ItemID, o, ttlcache.DefaultTTL)

	if o.Succeeded() {
		s.logger.Info("advice delivered",
			"item", o.ItemID,
			"direction", o.Advice.Direction,
			"confidence", o.Advice.Confidence,
			"model", o.Advice.ModelUsed)
	} else {
		s.logger.Info("analysis failed", "item", o.ItemID, "reason", o.Failure, "detail", o.Detail)
	}
	if s.onTerminal != nil {
		s.onTerminal(o.ItemID, o)
	}
}

// Get returns the retained outcome for an item, if still present.
func (s *Sink) Get(itemID string) (Outcome, bool) {
	it := s.results.Get(itemID)
	if it == nil {
		return Outcome{}, false
	}
	return it.Value(), true
}

// Close stops the retention janitor.
func (s *Sink) Close() {
	s.results.Stop()
}
