package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/rahul/autopilot/internal/agent"
	"github.com/rahul/autopilot/internal/governance"
	"github.com/rahul/autopilot/internal/observability"
	"github.com/rahul/autopilot/internal/store"
	"github.com/rahul/autopilot/internal/surface"
	"github.com/rahul/autopilot/internal/textgen"
	"github.com/rahul/autopilot/pkg/config"
)

// app holds everything a command wires from the config.
type app struct {
	cfg      *config.Config
	zap      *zap.Logger
	logger   *observability.Logger
	metrics  *observability.Metrics
	registry *prometheus.Registry
	gen      textgen.Generator
	prompts  *agent.PromptManager
	audit    *store.AuditStore
	orch     *agent.Orchestrator
}

// newCore builds the logging, metrics and text generation layers. logw
// receives the process log; nil means the terminal writer.
func newCore(ctx context.Context, cfg *config.Config, logw io.Writer) (*app, error) {
	z, err := observability.NewZap(cfg.Log.Level, cfg.Log.Format, logw)
	if err != nil {
		return nil, fmt.Errorf("invalid log settings: %w", err)
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &app{
		cfg:      cfg,
		zap:      z,
		logger:   observability.NewLogger(z, cfg.Log.LLMLogPath),
		metrics:  observability.NewMetrics("autopilot", reg),
		registry: reg,
		prompts:  agent.NewPromptManager(cfg.App.PromptsDir),
	}

	name, p := cfg.GetDefaultProvider()
	if name == "" {
		z.Warn("no text generation provider enabled, using built-in plans")
		return a, nil
	}
	gen, err := textgen.New(ctx, name, p, textgen.Options{
		Timeout: cfg.Agent.GenerateTimeout.Std(),
		Logger:  a.logger,
		Metrics: a.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize provider %s: %w", name, err)
	}
	z.Info("text generation ready", zap.String("provider", name), zap.String("model", p.Model))
	a.gen = gen
	return a, nil
}

// newApp adds the browser, policy, audit store and orchestrator to the core.
func newApp(ctx context.Context, cfg *config.Config, logw io.Writer) (*app, error) {
	a, err := newCore(ctx, cfg, logw)
	if err != nil {
		return nil, err
	}

	policy, err := governance.NewPolicyEngine(cfg.Policy.DenyKinds, cfg.Policy.DenyPatterns)
	if err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}

	opts := surface.BrowserOptions{
		Headless:  cfg.Browser.Headless,
		UserAgent: cfg.Browser.UserAgent,
		Width:     cfg.Browser.Width,
		Height:    cfg.Browser.Height,
	}
	if cfg.Browser.SearchMode == "api" {
		search, err := surface.NewWebSearch()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize web search: %w", err)
		}
		opts.Search = search
	}

	orchOpts := agent.Options{
		Generator: a.gen,
		Surfaces:  surface.NewBrowserFactory(opts, a.zap),
		Policy:    policy,
		Prompts:   a.prompts,
		Logger:    a.logger,
		Metrics:   a.metrics,
		Zap:       a.zap,
	}
	if cfg.Memory.Type == "sqlite" && cfg.Memory.Path != "" {
		audit, err := store.NewAuditStore(cfg.Memory.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit store: %w", err)
		}
		a.audit = audit
		orchOpts.Audit = audit
	}

	reg := agent.NewRegistry(cfg.Agent.SessionIdleTTL.Std(), a.metrics, a.zap)
	a.orch = agent.NewOrchestrator(cfg.Agent, reg, orchOpts)
	return a, nil
}

// close releases every session and the audit store.
func (a *app) close(ctx context.Context) {
	if a.orch != nil {
		if err := a.orch.Registry.CloseAll(ctx); err != nil {
			a.zap.Warn("failed to close sessions", zap.Error(err))
		}
	}
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			a.zap.Warn("failed to close audit store", zap.Error(err))
		}
	}
	_ = a.zap.Sync()
}
