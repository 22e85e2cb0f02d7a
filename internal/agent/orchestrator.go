package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rahul/autopilot/internal/flights"
	"github.com/rahul/autopilot/internal/governance"
	"github.com/rahul/autopilot/internal/observability"
	"github.com/rahul/autopilot/internal/plan"
	"github.com/rahul/autopilot/internal/surface"
	"github.com/rahul/autopilot/internal/textgen"
	"github.com/rahul/autopilot/pkg/config"
	"go.uber.org/zap"
)

// Audit persists session transitions and record entries.
type Audit interface {
	SaveSession(ctx context.Context, id, goal, status, reason string) error
	AppendEntry(ctx context.Context, sessionID string, e plan.Entry) error
}

// Limits bound the work one goal may cause.
type Limits struct {
	// MaxAttempts caps attempted actions per goal.
	MaxAttempts int
	// ReplacementRetries is the number of extra replacement requests a step
	// gets after its first one.
	ReplacementRetries int
	MaxVerifications   int
}

// Options carries the collaborators of an Orchestrator. Only Surfaces is
// required.
type Options struct {
	Generator textgen.Generator
	Surfaces  surface.Factory
	Policy    governance.PolicyEngine
	Audit     Audit
	Prompts   *PromptManager
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	Zap       *zap.Logger
}

// Orchestrator drives sessions from goal to Done or Failed.
type Orchestrator struct {
	Registry *Registry
	Planner  *Planner
	Selector *Selector
	Replacer *Replacer
	Verifier *Verifier
	Limits   Limits

	surfaces surface.Factory
	audit    Audit
	logger   *observability.Logger
	metrics  *observability.Metrics
	log      *zap.Logger
	timeout  time.Duration
}

func NewOrchestrator(cfg config.AgentConfig, reg *Registry, opts Options) *Orchestrator {
	z := opts.Zap
	if z == nil {
		z = zap.NewNop()
	}
	prompts := opts.Prompts
	if prompts == nil {
		prompts = NewPromptManager("")
	}
	return &Orchestrator{
		Registry: reg,
		Planner:  NewPlanner(opts.Generator, prompts, z),
		Selector: NewSelector(opts.Policy, cfg.ActionTimeout.Std(), opts.Logger, opts.Metrics, z),
		Replacer: NewReplacer(opts.Generator, prompts),
		Verifier: NewVerifier(opts.Generator, prompts, cfg.VerifierHistory),
		Limits: Limits{
			MaxAttempts:        cfg.MaxAttempts,
			ReplacementRetries: cfg.ReplacementRetries,
			MaxVerifications:   cfg.MaxVerifications,
		},
		surfaces: opts.Surfaces,
		audit:    opts.Audit,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		log:      z.With(zap.String("component", "orchestrator")),
		timeout:  cfg.ActionTimeout.Std(),
	}
}

// Start runs goal in session id until it is done, fails or needs an
// answer. A session that is already running returns ErrSessionBusy. Failed
// runs return the view together with a *FailureError.
func (o *Orchestrator) Start(ctx context.Context, id, goal string) (View, error) {
	s := o.Registry.CreateOrGet(id)
	if !s.runMu.TryLock() {
		return View{}, ErrSessionBusy
	}
	defer s.runMu.Unlock()

	if err := s.reset(goal, time.Now()); err != nil {
		return View{}, err
	}
	observability.SetLastGoal(goal)
	o.transition(ctx, s, StatusRunning, "")

	if err := o.checkpoint(ctx, s); err != nil {
		return o.fail(ctx, s, err)
	}
	steps, source, err := o.Planner.Plan(ctx, s.ID, goal)
	if err != nil {
		return o.fail(ctx, s, fatal(PlanningFailed, err))
	}
	o.logger.LogPlan(s.ID, source, len(steps), plan.Format(steps))

	s.mu.Lock()
	s.install(steps)
	s.phase = PhaseExecuting
	s.mu.Unlock()

	return o.run(ctx, s)
}

// Resume answers the question a session is waiting on and continues it.
func (o *Orchestrator) Resume(ctx context.Context, id, answer string) (View, error) {
	s, ok := o.Registry.Get(id)
	if !ok {
		return View{}, ErrUnknownSession
	}
	if !s.runMu.TryLock() {
		return View{}, ErrSessionBusy
	}
	defer s.runMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return View{}, ErrSessionClosed
	}
	if s.status != StatusAwaitingUser || s.question == nil {
		s.mu.Unlock()
		return s.View(), ErrNotAwaitingUser
	}
	q := *s.question
	if q.Value != "" {
		s.answers[q.Value] = answer
	}
	// The answered question is the whole step now; alternatives tried
	// before it already failed.
	s.steps[s.index] = plan.AlternativeSet{q.WithAnswer(answer)}
	s.question = nil
	s.status = StatusRunning
	s.phase = PhaseExecuting
	s.prefs = flights.ParsePreferences(s.goal + " " + answer)
	s.lastActive = time.Now()
	s.mu.Unlock()

	o.transition(ctx, s, StatusRunning, "resumed")
	return o.run(ctx, s)
}

// Cancel stops a session. A running session notices before its next
// attempt; a session waiting for an answer fails immediately.
func (o *Orchestrator) Cancel(id string) error {
	s, ok := o.Registry.Get(id)
	if !ok {
		return ErrUnknownSession
	}
	s.cancelled.Store(true)

	s.mu.Lock()
	waiting := s.status == StatusAwaitingUser
	if waiting {
		s.status = StatusFailed
		s.failure = Cancelled
		s.reason = string(Cancelled)
		s.question = nil
		s.lastActive = time.Now()
	}
	s.mu.Unlock()

	if waiting {
		o.settled(context.Background(), s, StatusFailed, Cancelled, string(Cancelled))
	}
	return nil
}

// Close cancels the session and removes it, releasing its page.
func (o *Orchestrator) Close(ctx context.Context, id string) error {
	if _, ok := o.Registry.Get(id); !ok {
		return ErrUnknownSession
	}
	if err := o.Cancel(id); err != nil && !errors.Is(err, ErrUnknownSession) {
		return err
	}
	err := o.Registry.Remove(id)
	if errors.Is(err, ErrUnknownSession) {
		return nil
	}
	return err
}

func (o *Orchestrator) Status(id string) (View, error) {
	return o.Registry.Status(id)
}

func (o *Orchestrator) run(ctx context.Context, s *Session) (View, error) {
	for {
		var err error
		switch s.currentPhase() {
		case PhaseExecuting:
			err = o.execute(ctx, s)
		case PhaseReplacementRequested:
			err = o.replace(ctx, s)
		case PhaseVerifying:
			err = o.verify(ctx, s)
		default:
			return s.View(), nil
		}
		if err != nil {
			return o.fail(ctx, s, err)
		}
	}
}

// execute runs the current step.
func (o *Orchestrator) execute(ctx context.Context, s *Session) error {
	s.mu.Lock()
	if s.index >= len(s.steps) {
		s.phase = PhaseVerifying
		s.mu.Unlock()
		return nil
	}
	idx := s.index
	set := expand(s.steps[idx], s.answers)
	s.mu.Unlock()

	page, err := o.page(ctx, s)
	if err != nil {
		return fatal(StepUnrecoverable, err)
	}

	sel, err := o.Selector.Select(ctx, page, set, o.stepContext(ctx, s, idx))
	var exhausted *SelectionError
	switch {
	case errors.As(err, &exhausted):
		s.mu.Lock()
		s.exhausted = exhausted
		s.tried[idx] = append(s.tried[idx], exhausted.Tried...)
		s.phase = PhaseReplacementRequested
		s.mu.Unlock()
		return nil
	case err != nil:
		return err
	case sel.AwaitingUser:
		return o.suspend(ctx, s, sel.Action)
	}

	o.collect(s, sel)
	s.mu.Lock()
	s.index++
	s.mu.Unlock()
	return nil
}

// replace asks for a new step in place of an exhausted one. The step keeps
// its index.
func (o *Orchestrator) replace(ctx context.Context, s *Session) error {
	s.mu.Lock()
	idx := s.index
	exhausted := s.exhausted
	tried := append(plan.AlternativeSet(nil), s.tried[idx]...)
	intent := s.steps[idx].Intent()
	goal := s.goal
	s.mu.Unlock()

	budget := 1 + o.Limits.ReplacementRetries
	var lastErr error = exhausted
	for {
		s.mu.Lock()
		used := s.replacements[idx]
		s.mu.Unlock()
		if used >= budget {
			return fatal(StepUnrecoverable, fmt.Errorf("step %d: %w", idx+1, lastErr))
		}
		if err := o.checkpoint(ctx, s); err != nil {
			return err
		}

		set, err := o.Replacer.Request(ctx, ReplacementRequest{
			SessionID: s.ID,
			Goal:      fmt.Sprintf("%s (overall goal: %s)", intent, goal),
			Tried:     tried,
			Page:      exhausted.Page,
		})

		s.mu.Lock()
		s.replacements[idx]++
		attempt := s.replacements[idx]
		if err == nil {
			s.steps[idx] = set
			s.exhausted = nil
			s.phase = PhaseExecuting
		}
		s.mu.Unlock()

		result := "accepted"
		var rerr *ReplacementError
		if errors.As(err, &rerr) {
			result = string(rerr.Reason)
		} else if err != nil {
			result = string(ServiceFailure)
		}
		o.logger.LogReplacement(s.ID, idx, attempt, result)
		o.metrics.ObserveReplacement(result)

		if err == nil {
			o.logger.LogPlan(s.ID, "replacement", 1, plan.Format(plan.StepPlan{set}))
			return nil
		}
		o.log.Debug("replacement rejected", zap.String("session_id", s.ID), zap.Int("step", idx), zap.Error(err))
		lastErr = err
	}
}

// verify checks the goal once the current plan is finished.
func (o *Orchestrator) verify(ctx context.Context, s *Session) error {
	// Verifying is not an attempted action, so only cancellation applies.
	if err := o.interrupted(ctx, s); err != nil {
		return err
	}
	s.mu.Lock()
	if o.Limits.MaxVerifications > 0 && s.verifications >= o.Limits.MaxVerifications {
		n := s.verifications
		s.mu.Unlock()
		return fatal(IterationCapExceeded, fmt.Errorf("goal still not achieved after %d verifications", n))
	}
	s.verifications++
	goal := s.goal
	history := s.record.Entries()[s.base:]
	s.mu.Unlock()

	var snap surface.Snapshot
	if page, err := o.page(ctx, s); err == nil {
		snap = o.snapshot(ctx, s, page)
	}

	res, err := o.Verifier.Verify(ctx, s.ID, goal, history, snap)
	if err != nil {
		o.metrics.ObserveVerification("invalid")
		return fatal(InvalidVerification, err)
	}
	o.logger.LogVerification(s.ID, res.Achieved, res.Reason, len(res.Continuation))

	if res.Achieved {
		o.metrics.ObserveVerification("achieved")
		s.mu.Lock()
		s.status = StatusDone
		s.reason = res.Reason
		s.phase = ""
		s.lastActive = time.Now()
		s.mu.Unlock()
		o.settled(ctx, s, StatusDone, "", res.Reason)
		return nil
	}

	o.metrics.ObserveVerification("continued")
	s.mu.Lock()
	s.install(res.Continuation)
	s.phase = PhaseExecuting
	s.mu.Unlock()
	o.logger.LogPlan(s.ID, "continuation", len(res.Continuation), plan.Format(res.Continuation))
	return nil
}

// suspend parks the session on a question.
func (o *Orchestrator) suspend(ctx context.Context, s *Session, q plan.Action) error {
	s.mu.Lock()
	if s.cancelled.Load() {
		s.mu.Unlock()
		return fatal(Cancelled, nil)
	}
	s.status = StatusAwaitingUser
	s.phase = ""
	s.question = &q
	s.lastActive = time.Now()
	s.mu.Unlock()
	o.transition(ctx, s, StatusAwaitingUser, q.Description)
	return nil
}

// collect ranks flight options when an extraction succeeds on a flight goal.
func (o *Orchestrator) collect(s *Session, sel Selection) {
	if sel.Action.Kind != plan.KindExtract || sel.Outcome.Data == "" {
		return
	}
	s.mu.Lock()
	goal, prefs := s.goal, s.prefs
	s.mu.Unlock()
	if !flights.IsFlightGoal(goal) {
		return
	}
	candidates, err := flights.ParseCandidates(sel.Outcome.Data)
	if err != nil {
		o.log.Warn("failed to read flight options", zap.String("session_id", s.ID), zap.Error(err))
		return
	}
	ranked := flights.Rank(candidates, prefs)
	s.mu.Lock()
	s.options = ranked
	s.recommendation = flights.Recommend(ranked)
	s.mu.Unlock()
	o.log.Info("ranked flight options",
		zap.String("session_id", s.ID),
		zap.Int("options", len(ranked)),
		zap.Any("preferences", prefs.List()),
	)
}

// checkpoint runs between attempts. It is where cancellation and the
// attempt cap take effect.
func (o *Orchestrator) checkpoint(ctx context.Context, s *Session) error {
	if err := o.interrupted(ctx, s); err != nil {
		return err
	}
	if o.Limits.MaxAttempts > 0 {
		if n := s.attempts(); n >= o.Limits.MaxAttempts {
			return fatal(IterationCapExceeded, fmt.Errorf("%d actions attempted", n))
		}
	}
	return nil
}

// interrupted reports a cancel request or a done context.
func (o *Orchestrator) interrupted(ctx context.Context, s *Session) error {
	if s.cancelled.Load() {
		return fatal(Cancelled, nil)
	}
	if err := ctx.Err(); err != nil {
		return fatal(Cancelled, err)
	}
	return nil
}

func (o *Orchestrator) stepContext(ctx context.Context, s *Session, idx int) StepContext {
	return StepContext{
		SessionID: s.ID,
		Index:     idx,
		Record: func(e plan.Entry) {
			s.appendEntry(e)
			if o.audit != nil {
				if err := o.audit.AppendEntry(context.WithoutCancel(ctx), s.ID, e); err != nil {
					o.log.Warn("failed to persist record entry", zap.String("session_id", s.ID), zap.Error(err))
				}
			}
		},
		Check: func() error { return o.checkpoint(ctx, s) },
	}
}

// page opens the session's surface on first use.
func (o *Orchestrator) page(ctx context.Context, s *Session) (surface.Surface, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page != nil {
		return s.page, nil
	}
	if o.surfaces == nil {
		return nil, errors.New("no execution surface configured")
	}
	page, err := o.surfaces(ctx, s.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to open surface: %w", err)
	}
	s.page = page
	return page, nil
}

func (o *Orchestrator) snapshot(ctx context.Context, s *Session, page surface.Surface) surface.Snapshot {
	sctx, cancel := ctx, context.CancelFunc(func() {})
	if o.timeout > 0 {
		sctx, cancel = context.WithTimeout(ctx, o.timeout)
	}
	defer cancel()
	snap, err := page.Snapshot(sctx)
	if err != nil {
		o.log.Warn("page snapshot failed", zap.String("session_id", s.ID), zap.Error(err))
	}
	return snap
}

// fail ends the session with the reason carried by err.
func (o *Orchestrator) fail(ctx context.Context, s *Session, err error) (View, error) {
	var fe *FailureError
	if !errors.As(err, &fe) {
		fe = fatal(StepUnrecoverable, err)
	}
	s.mu.Lock()
	s.status = StatusFailed
	s.failure = fe.Reason
	s.reason = fe.Error()
	s.phase = ""
	s.question = nil
	s.lastActive = time.Now()
	s.mu.Unlock()

	o.settled(ctx, s, StatusFailed, fe.Reason, fe.Error())
	return s.View(), fe
}

// settled records a terminal status.
func (o *Orchestrator) settled(ctx context.Context, s *Session, status Status, failure FailureReason, reason string) {
	label := string(failure)
	if label == "" {
		label = "none"
	}
	o.metrics.ObserveSession(string(status), label)
	o.transition(ctx, s, status, reason)
}

// transition logs, persists and publishes a status change.
func (o *Orchestrator) transition(ctx context.Context, s *Session, status Status, reason string) {
	o.logger.LogSession(s.ID, string(status), reason)
	if o.audit != nil {
		s.mu.Lock()
		goal := s.goal
		s.mu.Unlock()
		if err := o.audit.SaveSession(context.WithoutCancel(ctx), s.ID, goal, string(status), reason); err != nil {
			o.log.Warn("failed to persist session", zap.String("session_id", s.ID), zap.Error(err))
		}
	}
	o.Registry.publish()
}

func expand(set plan.AlternativeSet, answers map[string]string) plan.AlternativeSet {
	if len(answers) == 0 {
		return set
	}
	out := make(plan.AlternativeSet, len(set))
	for i, a := range set {
		out[i] = a.Expand(answers)
	}
	return out
}
