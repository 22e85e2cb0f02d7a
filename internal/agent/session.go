package agent

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rahul/autopilot/internal/flights"
	"github.com/rahul/autopilot/internal/plan"
	"github.com/rahul/autopilot/internal/surface"
)

// Status is where a session stands from the outside.
type Status string

const (
	StatusRunning      Status = "running"
	StatusAwaitingUser Status = "awaiting_user"
	StatusDone         Status = "done"
	StatusFailed       Status = "failed"
)

// Phase is where a running session is inside the control loop. It is empty
// whenever the session is not running.
type Phase string

const (
	PhasePlanning             Phase = "planning"
	PhaseExecuting            Phase = "executing"
	PhaseReplacementRequested Phase = "replacement_requested"
	PhaseVerifying            Phase = "verifying"
)

// Session is the state of one goal run. runMu admits a single runner;
// mu guards the fields and is held only briefly.
type Session struct {
	ID string

	runMu     sync.Mutex
	cancelled atomic.Bool

	mu       sync.Mutex
	goal     string
	status   Status
	phase    Phase
	failure  FailureReason
	reason   string
	steps    plan.StepPlan
	index    int
	record   plan.Record
	base     int
	answers  map[string]string
	question *plan.Action

	// per-plan bookkeeping, reset when a plan is installed
	exhausted    *SelectionError
	replacements map[int]int
	tried        map[int]plan.AlternativeSet

	verifications  int
	prefs          flights.Preferences
	options        []flights.Candidate
	recommendation string

	page       surface.Surface
	closed     bool
	created    time.Time
	lastActive time.Time
}

func newSession(id string, now time.Time) *Session {
	return &Session{ID: id, created: now, lastActive: now}
}

// reset prepares the session for a new goal. The record is kept. Callers
// hold runMu.
func (s *Session) reset(goal string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.cancelled.Store(false)
	s.goal = goal
	s.status = StatusRunning
	s.phase = PhasePlanning
	s.failure = ""
	s.reason = ""
	s.base = s.record.Len()
	s.answers = make(map[string]string)
	s.question = nil
	s.verifications = 0
	s.prefs = flights.ParsePreferences(goal)
	s.options = nil
	s.recommendation = ""
	s.install(nil)
	s.lastActive = now
	return nil
}

// install makes p the current plan, starting at its first step. Callers
// hold mu.
func (s *Session) install(p plan.StepPlan) {
	s.steps = p.Clone()
	s.index = 0
	s.exhausted = nil
	s.replacements = make(map[int]int)
	s.tried = make(map[int]plan.AlternativeSet)
}

// appendEntry adds to the record.
func (s *Session) appendEntry(e plan.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record.Append(e)
	s.lastActive = time.Now()
}

// attempts counts actions attempted for the current goal.
func (s *Session) attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.Len() - s.base
}

func (s *Session) currentPhase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusRunning {
		return ""
	}
	return s.phase
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActive)
}

// shutdown releases the page. Callers hold runMu.
func (s *Session) shutdown() error {
	s.mu.Lock()
	s.closed = true
	page := s.page
	s.page = nil
	s.mu.Unlock()
	if page == nil {
		return nil
	}
	return page.Close()
}

// close stops any run in progress and releases the page.
func (s *Session) close() error {
	s.cancelled.Store(true)
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.shutdown()
}

// View is a read-only copy of a session's state.
type View struct {
	ID             string              `json:"id"`
	Goal           string              `json:"goal"`
	Status         Status              `json:"status"`
	Phase          Phase               `json:"phase,omitempty"`
	Failure        FailureReason       `json:"failure,omitempty"`
	Reason         string              `json:"reason,omitempty"`
	Question       string              `json:"question,omitempty"`
	Plan           plan.StepPlan       `json:"plan"`
	Step           int                 `json:"step"`
	Record         []plan.Entry        `json:"record"`
	Options        []flights.Candidate `json:"options,omitempty"`
	Recommendation string              `json:"recommendation,omitempty"`
	LastActive     time.Time           `json:"last_active"`
}

// View copies the session state.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{
		ID:             s.ID,
		Goal:           s.goal,
		Status:         s.status,
		Phase:          s.phase,
		Failure:        s.failure,
		Reason:         s.reason,
		Plan:           s.steps.Clone(),
		Step:           s.index,
		Record:         s.record.Entries(),
		Recommendation: s.recommendation,
		LastActive:     s.lastActive,
	}
	if s.status != StatusRunning {
		v.Phase = ""
	}
	if s.question != nil {
		v.Question = s.question.Description
		if v.Question == "" {
			v.Question = s.question.Target
		}
	}
	if len(s.options) > 0 {
		v.Options = append([]flights.Candidate(nil), s.options...)
	}
	return v
}
