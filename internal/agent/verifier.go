package agent

import (
	"context"
	"errors"

	"github.com/rahul/autopilot/internal/extract"
	"github.com/rahul/autopilot/internal/plan"
	"github.com/rahul/autopilot/internal/surface"
	"github.com/rahul/autopilot/internal/textgen"
)

const maxContinuation = 5

// Verifier asks the generator whether the goal is met and, if not, what to
// do next.
type Verifier struct {
	Gen     textgen.Generator
	Prompts *PromptManager
	// History bounds how many recent record entries go into the prompt.
	History int
}

func NewVerifier(gen textgen.Generator, prompts *PromptManager, history int) *Verifier {
	return &Verifier{Gen: gen, Prompts: prompts, History: history}
}

// Verify returns a consistent verdict: Achieved with no continuation, or not
// achieved with 1 to 5 continuation steps. Anything else is a
// *VerificationError. Without a generator there is nothing to check against
// and a finished plan is taken as done.
func (v *Verifier) Verify(ctx context.Context, sessionID, goal string, history []plan.Entry, page surface.Snapshot) (plan.Verification, error) {
	if v.Gen == nil {
		return plan.Verification{Achieved: true, Reason: "plan completed (no generator configured to verify the goal)"}, nil
	}
	if v.History > 0 && len(history) > v.History {
		history = history[len(history)-v.History:]
	}
	prompt, err := v.Prompts.Render(PromptVerifier, struct {
		Goal    string
		History string
		Page    string
	}{goal, plan.FormatEntries(history), page.Summary()})
	if err != nil {
		return plan.Verification{}, &VerificationError{Msg: "prompt", Err: err}
	}

	reply, err := v.Gen.Generate(textgen.WithCall(ctx, sessionID, "verification"), prompt)
	if err != nil {
		return plan.Verification{}, &VerificationError{Msg: "generator failed", Err: err}
	}
	raw, err := extract.ExtractShape(reply, extract.Object)
	if err != nil {
		return plan.Verification{}, &VerificationError{Msg: "unreadable reply", Err: err}
	}
	res, err := plan.DecodeVerification(raw)
	if err != nil {
		return plan.Verification{}, &VerificationError{Msg: "unreadable reply", Err: err}
	}

	// An achieved verdict that still proposes steps is not trusted.
	if res.Achieved && len(res.Continuation) > 0 {
		res.Achieved = false
	}
	if !res.Achieved && len(res.Continuation) == 0 {
		var cause error
		if res.Reason != "" {
			cause = errors.New(res.Reason)
		}
		return plan.Verification{}, &VerificationError{Msg: "goal not achieved and no next steps given", Err: cause}
	}
	if len(res.Continuation) > maxContinuation {
		res.Continuation = res.Continuation[:maxContinuation]
	}
	return res, nil
}
