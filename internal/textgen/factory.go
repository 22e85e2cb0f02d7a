package textgen

import (
	"context"
	"fmt"
	"time"

	"github.com/rahul/autopilot/internal/observability"
	"github.com/rahul/autopilot/pkg/config"
)

// Options carries the ambient pieces every backend is wrapped with.
type Options struct {
	Timeout time.Duration
	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// New builds the named backend and wraps it with throttling, timeouts and
// instrumentation.
func New(ctx context.Context, name string, p config.ProviderConfig, opts Options) (Generator, error) {
	var (
		gen Generator
		err error
	)
	switch name {
	case "gemini":
		gen, err = NewGemini(ctx, p.APIKey, p.Model)
	case "ollama":
		gen, err = NewOllama(p.BaseURL, p.Model)
	case "openai", "openrouter":
		gen, err = NewOpenAI(p.APIKey, p.Model, p.BaseURL)
	default:
		return nil, fmt.Errorf("provider %s is not supported", name)
	}
	if err != nil {
		return nil, err
	}

	if p.RequestsPerMinute > 0 {
		gen = NewLimited(gen, p.RequestsPerMinute)
	}
	gen = &Timed{Next: gen, Timeout: opts.Timeout}
	return &Instrumented{Next: gen, Provider: name, Logger: opts.Logger, Metrics: opts.Metrics}, nil
}
