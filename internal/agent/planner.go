package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/rahul/autopilot/internal/extract"
	"github.com/rahul/autopilot/internal/plan"
	"github.com/rahul/autopilot/internal/textgen"
	"go.uber.org/zap"
)

// Plan sources.
const (
	SourceGenerator = "generator"
	SourceFallback  = "fallback"
)

// Planner turns a goal into the initial plan.
type Planner struct {
	Gen     textgen.Generator
	Prompts *PromptManager
	log     *zap.Logger
}

func NewPlanner(gen textgen.Generator, prompts *PromptManager, z *zap.Logger) *Planner {
	if z == nil {
		z = zap.NewNop()
	}
	return &Planner{Gen: gen, Prompts: prompts, log: z.With(zap.String("component", "planner"))}
}

// Plan asks the generator for a plan. The template planner is used only
// when no generator is configured or it cannot be reached; a refusal or an
// unreadable reply is an error, not a reason to guess.
func (p *Planner) Plan(ctx context.Context, sessionID, goal string) (plan.StepPlan, string, error) {
	if p.Gen == nil {
		return p.fallback(goal)
	}
	prompt, err := p.Prompts.Render(PromptPlanner, struct{ Goal string }{goal})
	if err != nil {
		return nil, "", err
	}
	reply, err := p.Gen.Generate(textgen.WithCall(ctx, sessionID, "plan"), prompt)
	if errors.Is(err, textgen.ErrUnavailable) {
		p.log.Warn("generator unavailable, using template plan", zap.String("session_id", sessionID), zap.Error(err))
		return p.fallback(goal)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate plan: %w", err)
	}

	raw, err := extract.ExtractShape(reply, extract.Array)
	if err != nil {
		return nil, "", err
	}
	steps, err := plan.DecodeStepPlan(raw)
	if err != nil {
		return nil, "", err
	}
	if len(steps) == 0 {
		return nil, "", errors.New("generator returned an empty plan")
	}
	return steps, SourceGenerator, nil
}

func (p *Planner) fallback(goal string) (plan.StepPlan, string, error) {
	steps := FallbackPlan(goal)
	if len(steps) == 0 {
		return nil, "", errors.New("no template matches the goal")
	}
	return steps, SourceFallback, nil
}
