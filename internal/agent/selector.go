package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rahul/autopilot/internal/governance"
	"github.com/rahul/autopilot/internal/observability"
	"github.com/rahul/autopilot/internal/plan"
	"github.com/rahul/autopilot/internal/surface"
	"go.uber.org/zap"
)

// StepContext ties one selection to the session running it.
type StepContext struct {
	SessionID string
	Index     int
	// Record receives one entry per attempted action.
	Record func(plan.Entry)
	// Check runs before every attempt; an error stops the selection.
	Check func() error
}

// Selection is the alternative that won a step.
type Selection struct {
	Action  plan.Action
	Outcome surface.Outcome
	// AwaitingUser is set when the step reached an unanswered question.
	AwaitingUser bool
}

// Selector tries the alternatives of a step in order until one succeeds.
type Selector struct {
	Policy  governance.PolicyEngine
	Timeout time.Duration
	Logger  *observability.Logger
	Metrics *observability.Metrics
	log     *zap.Logger
}

func NewSelector(policy governance.PolicyEngine, timeout time.Duration, logger *observability.Logger, metrics *observability.Metrics, z *zap.Logger) *Selector {
	if z == nil {
		z = zap.NewNop()
	}
	return &Selector{
		Policy:  policy,
		Timeout: timeout,
		Logger:  logger,
		Metrics: metrics,
		log:     z.With(zap.String("component", "selector")),
	}
}

// Select performs at most one successful action from set. When every
// alternative fails it returns a *SelectionError carrying a fresh snapshot
// of the page.
func (s *Selector) Select(ctx context.Context, page surface.Surface, set plan.AlternativeSet, sc StepContext) (Selection, error) {
	if len(set) == 0 {
		return Selection{}, &SelectionError{Tried: set, Page: s.snapshot(ctx, page)}
	}
	for i, a := range set {
		if sc.Check != nil {
			if err := sc.Check(); err != nil {
				return Selection{}, err
			}
		}

		if a.Kind == plan.KindAskUser {
			if !a.Answered {
				return Selection{Action: a, AwaitingUser: true}, nil
			}
			out := surface.Outcome{Success: true, Reason: "answered by user"}
			s.note(sc, a, plan.Succeeded, out.Reason)
			return Selection{Action: a, Outcome: out}, nil
		}

		out, err := s.attempt(ctx, page, sc, a)
		if err == nil && out.Success {
			s.note(sc, a, plan.Succeeded, out.Reason)
			return Selection{Action: a, Outcome: out}, nil
		}
		reason := out.Reason
		if err != nil {
			reason = err.Error()
		}
		if reason == "" {
			reason = "action failed"
		}
		s.log.Debug("alternative failed",
			zap.String("session_id", sc.SessionID),
			zap.Int("step", sc.Index),
			zap.Int("alternative", i),
			zap.String("action", a.String()),
			zap.String("reason", reason),
		)
		s.note(sc, a, plan.Failed, reason)
	}
	return Selection{}, &SelectionError{Tried: set, Page: s.snapshot(ctx, page)}
}

func (s *Selector) attempt(ctx context.Context, page surface.Surface, sc StepContext, a plan.Action) (surface.Outcome, error) {
	if s.Policy != nil {
		res, err := s.Policy.Evaluate(ctx, governance.Request{
			SessionID: sc.SessionID,
			Kind:      string(a.Kind),
			Target:    a.Target,
			Value:     a.Value,
		})
		if err != nil {
			return surface.Outcome{}, fmt.Errorf("policy check failed: %w", err)
		}
		s.Logger.LogPolicy(sc.SessionID, a.String(), string(res.Effect), res.Reason)
		if res.Effect == governance.EffectDeny {
			return surface.Outcome{Reason: "denied by policy: " + res.Reason}, nil
		}
	}

	actx, cancel := s.withTimeout(ctx)
	defer cancel()
	out, err := page.Perform(actx, a)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return surface.Outcome{}, fmt.Errorf("timed out after %s", s.Timeout)
	}
	return out, err
}

func (s *Selector) note(sc StepContext, a plan.Action, outcome plan.Outcome, reason string) {
	if sc.Record != nil {
		sc.Record(plan.Entry{Action: a, Outcome: outcome, Reason: reason, Time: time.Now()})
	}
	s.Logger.LogStep(sc.SessionID, sc.Index, a.String(), string(outcome), reason)
	s.Metrics.ObserveAction(string(a.Kind), string(outcome))
}

func (s *Selector) snapshot(ctx context.Context, page surface.Surface) surface.Snapshot {
	sctx, cancel := s.withTimeout(ctx)
	defer cancel()
	snap, err := page.Snapshot(sctx)
	if err != nil {
		s.log.Warn("page snapshot failed", zap.Error(err))
	}
	return snap
}

func (s *Selector) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.Timeout > 0 {
		return context.WithTimeout(ctx, s.Timeout)
	}
	return context.WithCancel(ctx)
}
