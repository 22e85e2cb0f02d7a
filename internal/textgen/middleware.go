package textgen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rahul/autopilot/internal/observability"
	"golang.org/x/time/rate"
)

// Limited throttles requests to a backend.
type Limited struct {
	Next    Generator
	Limiter *rate.Limiter
}

// NewLimited allows perMinute requests per minute with a burst of one.
func NewLimited(next Generator, perMinute int) *Limited {
	return &Limited{
		Next:    next,
		Limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1),
	}
}

func (l *Limited) Generate(ctx context.Context, prompt string) (string, error) {
	if err := l.Limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	return l.Next.Generate(ctx, prompt)
}

// Timed bounds every request by Timeout.
type Timed struct {
	Next    Generator
	Timeout time.Duration
}

func (t *Timed) Generate(ctx context.Context, prompt string) (string, error) {
	if t.Timeout <= 0 {
		return t.Next.Generate(ctx, prompt)
	}
	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()
	return t.Next.Generate(ctx, prompt)
}

// Instrumented logs every exchange and records latency.
type Instrumented struct {
	Next     Generator
	Provider string
	Logger   *observability.Logger
	Metrics  *observability.Metrics
}

func (i *Instrumented) Generate(ctx context.Context, prompt string) (string, error) {
	sessionID, purpose := callInfo(ctx)
	start := time.Now()
	out, err := i.Next.Generate(ctx, prompt)
	i.Metrics.ObserveGeneration(i.Provider, purpose, status(err), time.Since(start))
	response := out
	if err != nil {
		response = "error: " + err.Error()
	}
	i.Logger.LogLLM(sessionID, purpose, prompt, response)
	return out, err
}

func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrBlocked):
		return "blocked"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
