// Package backend sends compressed chart images to an LLM provider and
// returns the raw response text. Engines are provider-specific; the
// orchestrator only sees the Engine interface and the error classes below.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net"

	"chart-advisor/internal/strategy"
)

// ErrRejected is a hard backend refusal (bad request, auth, quota ban).
// Not retryable.
var ErrRejected = errors.New("backend: request rejected")

// ErrOverloaded signals capacity pressure (rate limit, transient 5xx). The
// caller treats it like a timeout: consume an attempt and escalate.
var ErrOverloaded = errors.New("backend: capacity pressure")

// Request is one analysis attempt's payload.
type Request struct {
	ImageData []byte
	ImageMIME string
	Note      string
	Tier      strategy.Tier
}

// Engine is a provider backend. Analyze returns the raw model output text;
// contract validation happens upstream.
type Engine interface {
	Name() string
	Model(tier strategy.Tier) string
	Analyze(ctx context.Context, req Request) (string, error)
}

// Engines is the provider registry.
type Engines struct {
	OpenAI Engine
	Gemini Engine
}

func (e *Engines) Get(provider string) (Engine, error) {
	switch provider {
	case "openai", "gpt":
		return e.OpenAI, nil
	case "gemini":
		return e.Gemini, nil
	default:
		return nil, fmt.Errorf("unknown provider %q; use 'openai' or 'gemini'", provider)
	}
}

// IsTimeout reports whether err is the attempt budget elapsing (context
// deadline) or a network-level timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// classifyStatus maps an HTTP status to the backend error taxonomy.
func classifyStatus(code int, detail string) error {
	switch {
	case code == 429 || code == 503 || code == 529 || code == 500 || code == 502:
		return fmt.Errorf("%w: http %d: %s", ErrOverloaded, code, detail)
	case code >= 400 && code < 500:
		return fmt.Errorf("%w: http %d: %s", ErrRejected, code, detail)
	default:
		return fmt.Errorf("backend: http %d: %s", code, detail)
	}
}

func truncateBytes(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
