package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rahul/autopilot/internal/extract"
	"github.com/rahul/autopilot/internal/plan"
	"github.com/rahul/autopilot/internal/surface"
	"github.com/rahul/autopilot/internal/textgen"
)

const maxAlternatives = 3

// ReplacementRequest describes a step whose alternatives are exhausted.
type ReplacementRequest struct {
	SessionID string
	// Goal is the unmet sub-goal of the step.
	Goal string
	// Tried holds every action already attempted for the step.
	Tried plan.AlternativeSet
	Page  surface.Snapshot
}

// Replacer asks the generator for a fresh step grounded in what is on the
// page right now.
type Replacer struct {
	Gen     textgen.Generator
	Prompts *PromptManager
}

func NewReplacer(gen textgen.Generator, prompts *PromptManager) *Replacer {
	return &Replacer{Gen: gen, Prompts: prompts}
}

// Request returns 1 to 3 alternatives, none of which reuses a tried target.
// All failures are *ReplacementError.
func (r *Replacer) Request(ctx context.Context, req ReplacementRequest) (plan.AlternativeSet, error) {
	if r.Gen == nil {
		return nil, &ReplacementError{Reason: ServiceFailure, Err: textgen.ErrUnavailable}
	}
	prompt, err := r.Prompts.Render(PromptReplacement, struct {
		Goal     string
		Tried    plan.AlternativeSet
		Elements string
	}{req.Goal, req.Tried, req.Page.Elements()})
	if err != nil {
		return nil, &ReplacementError{Reason: ServiceFailure, Err: err}
	}

	reply, err := r.Gen.Generate(textgen.WithCall(ctx, req.SessionID, "replacement"), prompt)
	if err != nil {
		return nil, &ReplacementError{Reason: ServiceFailure, Err: err}
	}

	set, err := decodeReplacement(reply)
	if err != nil {
		return nil, &ReplacementError{Reason: Malformed, Err: err}
	}
	if len(set) > maxAlternatives {
		set = set[:maxAlternatives]
	}

	tried := make(map[string]bool)
	for _, t := range req.Tried.Targets() {
		tried[t] = true
	}
	for _, a := range set {
		if t := strings.ToLower(strings.TrimSpace(a.Target)); t != "" && tried[t] {
			return nil, &ReplacementError{Reason: Repeated, Err: fmt.Errorf("target %q was already tried", a.Target)}
		}
	}
	return set, nil
}

// decodeReplacement accepts a flat array of actions, or a plan holding a
// single step.
func decodeReplacement(reply string) (plan.AlternativeSet, error) {
	raw, err := extract.ExtractShape(reply, extract.Array)
	if err != nil {
		return nil, err
	}
	set, err := plan.DecodeAlternativeSet(raw)
	if err == nil {
		return set, nil
	}
	if p, perr := plan.DecodeStepPlan(raw); perr == nil && len(p) == 1 {
		return p[0], nil
	}
	return nil, err
}
