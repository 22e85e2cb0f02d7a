package agent

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rahul/autopilot/internal/plan"
	"github.com/rahul/autopilot/internal/surface"
	"github.com/rahul/autopilot/pkg/config"
)

// fakePage succeeds for every action unless its target is listed in fail.
type fakePage struct {
	mu      sync.Mutex
	fail    map[string]bool
	perform func(ctx context.Context, a plan.Action) (surface.Outcome, error)
	calls   []plan.Action
	snap    surface.Snapshot
	closed  int
}

func newFakePage(failing ...string) *fakePage {
	p := &fakePage{fail: map[string]bool{}}
	for _, t := range failing {
		p.fail[t] = true
	}
	return p
}

func (p *fakePage) Perform(ctx context.Context, a plan.Action) (surface.Outcome, error) {
	p.mu.Lock()
	p.calls = append(p.calls, a)
	fn := p.perform
	failing := p.fail[a.Target]
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx, a)
	}
	if failing {
		return surface.Outcome{Reason: "no element matches " + a.Target}, nil
	}
	return surface.Outcome{Success: true, Reason: "ok"}, nil
}

func (p *fakePage) Snapshot(context.Context) (surface.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap, nil
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *fakePage) targets() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	for i, a := range p.calls {
		out[i] = a.Target
	}
	return out
}

func (p *fakePage) factory() surface.Factory {
	return func(context.Context, string) (surface.Surface, error) { return p, nil }
}

// scriptGen answers each kind of prompt from its own queue. The last reply
// of a queue repeats once the queue is drained.
type scriptGen struct {
	mu      sync.Mutex
	replies map[string][]string
	errs    map[string]error
	prompts map[string][]string
}

func newScriptGen() *scriptGen {
	return &scriptGen{
		replies: map[string][]string{},
		errs:    map[string]error{},
		prompts: map[string][]string{},
	}
}

func (g *scriptGen) on(purpose string, replies ...string) *scriptGen {
	g.replies[purpose] = append(g.replies[purpose], replies...)
	return g
}

func (g *scriptGen) fail(purpose string, err error) *scriptGen {
	g.errs[purpose] = err
	return g
}

func (g *scriptGen) Generate(_ context.Context, prompt string) (string, error) {
	purpose := purposeOf(prompt)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts[purpose] = append(g.prompts[purpose], prompt)
	if err := g.errs[purpose]; err != nil {
		return "", err
	}
	q := g.replies[purpose]
	if len(q) == 0 {
		return "", nil
	}
	reply := q[0]
	if len(q) > 1 {
		g.replies[purpose] = q[1:]
	}
	return reply, nil
}

func (g *scriptGen) count(purpose string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts[purpose])
}

func (g *scriptGen) lastPrompt(purpose string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ps := g.prompts[purpose]
	if len(ps) == 0 {
		return ""
	}
	return ps[len(ps)-1]
}

func purposeOf(prompt string) string {
	switch {
	case strings.Contains(prompt, "browser automation planner"):
		return "plan"
	case strings.Contains(prompt, "could not be completed"):
		return "replacement"
	case strings.Contains(prompt, "checking whether a browser task is finished"):
		return "verification"
	}
	return "unknown"
}

type fakeAudit struct {
	mu       sync.Mutex
	statuses []string
	entries  int
}

func (a *fakeAudit) SaveSession(_ context.Context, _, _, status, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.statuses = append(a.statuses, status)
	return nil
}

func (a *fakeAudit) AppendEntry(context.Context, string, plan.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries++
	return nil
}

func testAgentConfig() config.AgentConfig {
	return config.AgentConfig{
		MaxAttempts:        60,
		ReplacementRetries: 1,
		VerifierHistory:    10,
		MaxVerifications:   5,
		ActionTimeout:      config.Duration(time.Second),
	}
}

func click(target string) plan.Action {
	return plan.Action{Kind: plan.KindClick, Target: target}
}

func outcomes(entries []plan.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = string(e.Outcome) + ":" + e.Action.Target
	}
	return out
}
