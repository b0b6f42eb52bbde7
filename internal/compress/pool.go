// Package compress re-encodes raw captures into upload-ready JPEG payloads on
// a bounded worker pool, keeping CPU-bound encoding off the orchestration
// loop. Completions come back over a channel in no particular order; the
// caller re-associates them by item id.
package compress

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"
	"time"

	_ "image/gif"
	_ "image/png"
)

// ErrEncode marks a deterministic input defect (corrupt or unsupported
// image). Retrying an encode cannot succeed, so the caller treats it as
// terminal.
var ErrEncode = errors.New("compress: unsupported or corrupt image")

// Payload is the compressed bytes for exactly one capture. Immutable once
// produced; ownership passes to the orchestrator.
type Payload struct {
	Data []byte
	MIME string
}

// Result is one completed (or failed) encode.
type Result struct {
	ItemID  string
	Payload Payload
	Err     error
}

type job struct {
	itemID string
	raw    []byte
}

// Pool runs a fixed number of encode workers.
type Pool struct {
	quality int
	jobs    chan job
	results chan Result
	logger  *slog.Logger

	wg   sync.WaitGroup
	once sync.Once
}

func NewPool(workers, quality int, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if quality < 1 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	p := &Pool{
		quality: quality,
		jobs:    make(chan job, workers*2),
		results: make(chan Result, workers*2),
		logger:  logger,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Submit hands a raw capture to the pool. Blocks only if every worker is busy
// and the job buffer is full; honor ctx to stay responsive during shutdown.
func (p *Pool) Submit(ctx context.Context, itemID string, raw []byte) error {
	select {
	case p.jobs <- job{itemID: itemID, raw: raw}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Results delivers completions. The channel closes after Close once all
// in-flight jobs have drained.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Close stops accepting jobs, waits for workers to drain, then closes the
// results channel.
func (p *Pool) Close() {
	p.once.Do(func() {
		close(p.jobs)
		p.wg.Wait()
		close(p.results)
	})
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		start := time.Now()
		payload, err := Encode(j.raw, p.quality)
		if err != nil {
			p.logger.Warn("encode failed", "item", j.itemID, "err", err)
		} else {
			p.logger.Debug("encoded",
				"item", j.itemID,
				"in_bytes", len(j.raw),
				"out_bytes", len(payload.Data),
				"elapsed", time.Since(start))
		}
		p.results <- Result{ItemID: j.itemID, Payload: payload, Err: err}
	}
}

// Encode decodes the raw image and re-encodes it as JPEG at the given
// quality. Failures are wrapped in ErrEncode.
func Encode(raw []byte, quality int) (Payload, error) {
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return Payload{}, fmt.Errorf("%w: re-encode %s: %v", ErrEncode, format, err)
	}
	return Payload{Data: buf.Bytes(), MIME: "image/jpeg"}, nil
}
