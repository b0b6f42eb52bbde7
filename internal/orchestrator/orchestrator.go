// Package orchestrator drives captured items through the analysis pipeline:
// admission from the upload queue, compression on the worker pool, backend
// dispatch under the fast/deep strategy, degrade-and-retry on timeout, and
// contract validation of the response.
//
// One goroutine owns all state. Compression workers and in-flight backend
// calls run elsewhere and report back over channels, so the loop itself
// never blocks on CPU or network work.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"chart-advisor/internal/advice"
	"chart-advisor/internal/backend"
	"chart-advisor/internal/compress"
	"chart-advisor/internal/queue"
	"chart-advisor/internal/sink"
	"chart-advisor/internal/strategy"
)

// itemPhase is the per-item position in the pipeline state machine.
type itemPhase uint8

const (
	phaseCompressing itemPhase = iota
	phaseAwaitingResponse
)

func (p itemPhase) String() string {
	switch p {
	case phaseCompressing:
		return "compressing"
	case phaseAwaitingResponse:
		return "awaiting_response"
	default:
		return "unknown"
	}
}

// itemState is the live record for one admitted item. Only the loop
// goroutine touches it.
type itemState struct {
	item      *queue.Item
	phase     itemPhase
	attempt   int
	escalated bool
	payload   compress.Payload
	timer     *time.Timer
}

// attemptDone reports the outcome of one backend attempt back to the loop.
// timedOut marks the loop's own budget timer firing; the backend call may
// still be in flight, and its eventual completion arrives with a stale
// attempt number and is discarded.
type attemptDone struct {
	itemID   string
	attempt  int
	text     string
	model    string
	err      error
	elapsed  time.Duration
	timedOut bool
}

// Config bounds the pipeline.
type Config struct {
	// MaxInFlight caps items concurrently between admission and terminal.
	MaxInFlight int
}

type Orchestrator struct {
	cfg    Config
	queue  *queue.Queue
	pool   *compress.Pool
	policy *strategy.Policy
	engine backend.Engine
	sink   *sink.Sink
	logger *slog.Logger

	inflight map[string]*itemState
	events   chan attemptDone
	wake     chan struct{}
}

func New(cfg Config, q *queue.Queue, pool *compress.Pool, policy *strategy.Policy, engine backend.Engine, snk *sink.Sink, logger *slog.Logger) *Orchestrator {
	if cfg.MaxInFlight < 1 {
		cfg.MaxInFlight = 1
	}
	return &Orchestrator{
		cfg:      cfg,
		queue:    q,
		pool:     pool,
		policy:   policy,
		engine:   engine,
		sink:     snk,
		logger:   logger,
		inflight: make(map[string]*itemState),
		events:   make(chan attemptDone, cfg.MaxInFlight*2),
		wake:     make(chan struct{}, 1),
	}
}

// Wake tells the loop new items may be dispatchable. Safe from any goroutine;
// coalesces when the loop is busy.
func (o *Orchestrator) Wake() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// Run owns the event loop until ctx is canceled. It is the only goroutine
// that mutates orchestrator state.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		o.admit(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.wake:
		case res, ok := <-o.pool.Results():
			if !ok {
				return errors.New("orchestrator: compression pool closed")
			}
			o.onCompressed(ctx, res)
		case ev := <-o.events:
			o.onAttemptDone(ctx, ev)
		}
	}
}

// admit pulls queued items while in-flight capacity remains.
func (o *Orchestrator) admit(ctx context.Context) {
	for len(o.inflight) < o.cfg.MaxInFlight {
		item, ok := o.queue.ClaimNext()
		if !ok {
			return
		}
		st := &itemState{item: item, phase: phaseCompressing}
		o.inflight[item.ID] = st
		o.logger.Debug("admitted", "item", item.ID, "inflight", len(o.inflight))
		if err := o.pool.Submit(ctx, item.ID, item.Raw); err != nil {
			// Shutdown under way; the item stays claimed and is dropped
			// with the rest of the loop state.
			delete(o.inflight, item.ID)
			return
		}
	}
}

func (o *Orchestrator) onCompressed(ctx context.Context, res compress.Result) {
	st, ok := o.inflight[res.ItemID]
	if !ok || st.phase != phaseCompressing {
		return // stray completion
	}
	if o.queue.Abandoned(res.ItemID) {
		o.drop(st)
		return
	}
	if res.Err != nil {
		o.terminal(st, sink.Outcome{
			ItemID:  st.item.ID,
			Failure: sink.FailureEncode,
			Detail:  res.Err.Error(),
		})
		return
	}
	st.payload = res.Payload
	o.dispatch(ctx, st)
}

// dispatch starts the next attempt for an item that has a payload.
func (o *Orchestrator) dispatch(ctx context.Context, st *itemState) {
	if o.queue.Abandoned(st.item.ID) {
		o.drop(st)
		return
	}

	st.attempt++
	dec := o.policy.Select(st.escalated)
	st.phase = phaseAwaitingResponse
	o.logger.Info("dispatching",
		"item", st.item.ID,
		"attempt", st.attempt,
		"tier", dec.Tier,
		"budget", dec.Timeout)

	req := backend.Request{
		ImageData: st.payload.Data,
		ImageMIME: st.payload.MIME,
		Note:      st.item.Note,
		Tier:      dec.Tier,
	}

	// Wall-clock budget tracked on the loop side: the backend call is not
	// necessarily cancellable, so the timer decides the timeout and any
	// late completion is discarded by attempt number.
	itemID, attempt := st.item.ID, st.attempt
	st.timer = time.AfterFunc(dec.Timeout, func() {
		select {
		case o.events <- attemptDone{itemID: itemID, attempt: attempt, timedOut: true}:
		case <-ctx.Done():
		}
	})
	go o.attempt(ctx, itemID, attempt, dec, req)
}

// attempt performs one backend call off the loop. The loop discards stale
// completions by attempt number, so a late response from a superseded
// attempt can never overwrite a newer one (last-attempt-wins).
func (o *Orchestrator) attempt(ctx context.Context, itemID string, attempt int, dec strategy.Decision, req backend.Request) {
	actx, cancel := context.WithTimeout(ctx, dec.Timeout)
	defer cancel()

	start := time.Now()
	text, err := o.engine.Analyze(actx, req)
	done := attemptDone{
		itemID:  itemID,
		attempt: attempt,
		text:    text,
		model:   o.engine.Model(dec.Tier),
		err:     err,
		elapsed: time.Since(start),
	}
	select {
	case o.events <- done:
	case <-ctx.Done():
	}
}

func (o *Orchestrator) onAttemptDone(ctx context.Context, ev attemptDone) {
	st, ok := o.inflight[ev.itemID]
	if !ok || st.phase != phaseAwaitingResponse || ev.attempt != st.attempt {
		o.logger.Debug("stale attempt result discarded", "item", ev.itemID, "attempt", ev.attempt)
		return
	}
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	if o.queue.Abandoned(ev.itemID) {
		o.drop(st)
		return
	}

	switch {
	case ev.timedOut:
		st.escalated = true
		o.logger.Warn("attempt timed out", "item", st.item.ID, "attempt", ev.attempt)
		o.retryOrFail(ctx, st, sink.FailureRetriesExhausted, "attempt timed out")

	case ev.err == nil:
		o.validate(ctx, st, ev)

	case errors.Is(ev.err, backend.ErrRejected):
		o.terminal(st, sink.Outcome{
			ItemID:  st.item.ID,
			Failure: sink.FailureBackendRejected,
			Detail:  ev.err.Error(),
		})

	default:
		// Timeout, capacity pressure, or transient transport failure:
		// escalate and retry within the attempt budget.
		st.escalated = true
		o.logger.Warn("attempt failed",
			"item", st.item.ID,
			"attempt", ev.attempt,
			"timeout", backend.IsTimeout(ev.err),
			"err", ev.err)
		o.retryOrFail(ctx, st, sink.FailureRetriesExhausted, ev.err.Error())
	}
}

// validate enforces the output contract on a received response.
func (o *Orchestrator) validate(ctx context.Context, st *itemState, ev attemptDone) {
	result, err := advice.Parse(ev.text)
	if err != nil {
		// Malformed output spends an attempt like a timeout would, but
		// keeps the current tier.
		o.logger.Warn("contract violation",
			"item", st.item.ID,
			"attempt", ev.attempt,
			"err", err)
		o.retryOrFail(ctx, st, sink.FailureContractViolation, err.Error())
		return
	}

	result.ModelUsed = o.engine.Name() + "/" + ev.model
	result.ResponseTimeMS = ev.elapsed.Milliseconds()
	o.terminal(st, sink.Outcome{ItemID: st.item.ID, Advice: result})
}

// retryOrFail dispatches a new attempt if budget remains, else fails the
// item with the given reason.
func (o *Orchestrator) retryOrFail(ctx context.Context, st *itemState, reason sink.FailureReason, detail string) {
	if o.policy.AttemptsRemaining(st.attempt) {
		o.dispatch(ctx, st)
		return
	}
	o.terminal(st, sink.Outcome{
		ItemID:  st.item.ID,
		Failure: reason,
		Detail:  fmt.Sprintf("after %d attempts: %s", st.attempt, detail),
	})
}

// terminal emits exactly one outcome for the item, unless it was abandoned
// while in flight, in which case the result is suppressed.
func (o *Orchestrator) terminal(st *itemState, outcome sink.Outcome) {
	if o.queue.Abandoned(st.item.ID) {
		o.drop(st)
		return
	}
	if st.timer != nil {
		st.timer.Stop()
	}
	delete(o.inflight, st.item.ID)
	o.queue.Release(st.item.ID)
	o.sink.Deliver(outcome)
}

// drop discards an abandoned item without emitting a result.
func (o *Orchestrator) drop(st *itemState) {
	o.logger.Info("abandoned item dropped", "item", st.item.ID, "phase", st.phase)
	if st.timer != nil {
		st.timer.Stop()
	}
	delete(o.inflight, st.item.ID)
	o.queue.Release(st.item.ID)
}
