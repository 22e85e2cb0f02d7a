package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rahul/autopilot/internal/agent"
	"github.com/rahul/autopilot/internal/flights"
	"github.com/rahul/autopilot/internal/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDriver struct {
	views     map[string]agent.View
	startErr  error
	resumeErr error
	calls     []string
}

func (d *fakeDriver) Start(_ context.Context, id, goal string) (agent.View, error) {
	d.calls = append(d.calls, "start:"+goal)
	if d.startErr != nil {
		return d.views[id], d.startErr
	}
	v := agent.View{ID: id, Goal: goal, Status: agent.StatusDone, Reason: "finished"}
	d.views[id] = v
	return v, nil
}

func (d *fakeDriver) Resume(_ context.Context, id, answer string) (agent.View, error) {
	d.calls = append(d.calls, "resume:"+answer)
	v := d.views[id]
	if d.resumeErr != nil {
		return v, d.resumeErr
	}
	v.Status = agent.StatusDone
	v.Reason = "answered"
	d.views[id] = v
	return v, nil
}

func (d *fakeDriver) Cancel(id string) error {
	d.calls = append(d.calls, "cancel")
	if _, ok := d.views[id]; !ok {
		return agent.ErrUnknownSession
	}
	return nil
}

func (d *fakeDriver) Status(id string) (agent.View, error) {
	v, ok := d.views[id]
	if !ok {
		return agent.View{}, agent.ErrUnknownSession
	}
	return v, nil
}

func newDriver() *fakeDriver {
	return &fakeDriver{views: map[string]agent.View{}}
}

func TestHandler_StartsGoal(t *testing.T) {
	d := newDriver()
	h := NewHandler(d, nil)
	reply := h.Handle(context.Background(), "telegram:1", "  open youtube ")
	assert.Equal(t, "Done: finished", reply)
	assert.Equal(t, []string{"start:open youtube"}, d.calls)
}

func TestHandler_AnswersPendingQuestion(t *testing.T) {
	d := newDriver()
	d.views["telegram:1"] = agent.View{Status: agent.StatusAwaitingUser, Question: "Where from?"}
	h := NewHandler(d, nil)

	assert.Equal(t, "Where from?", h.Handle(context.Background(), "telegram:1", "/status"))
	assert.Equal(t, "Done: answered", h.Handle(context.Background(), "telegram:1", "Toronto"))
	assert.Equal(t, []string{"resume:Toronto"}, d.calls)
}

func TestHandler_AnswerAfterQuestionWithdrawn(t *testing.T) {
	d := newDriver()
	d.views["telegram:1"] = agent.View{Status: agent.StatusAwaitingUser, Question: "Where from?"}
	// Cancelled between the status check and the answer.
	d.resumeErr = agent.ErrNotAwaitingUser
	h := NewHandler(d, nil)

	reply := h.Handle(context.Background(), "telegram:1", "Toronto")
	assert.Equal(t, "That question is no longer open. Where from?", reply)
	assert.Equal(t, []string{"resume:Toronto"}, d.calls)
}

func TestHandler_Commands(t *testing.T) {
	d := newDriver()
	h := NewHandler(d, nil)
	ctx := context.Background()

	assert.Equal(t, "Nothing to cancel.", h.Handle(ctx, "discord:9", "/cancel"))
	assert.Contains(t, h.Handle(ctx, "discord:9", "/status"), "No goal yet.")
	assert.Equal(t, helpText, h.Handle(ctx, "discord:9", "/help@autopilot_bot"))
	assert.True(t, strings.HasPrefix(h.Handle(ctx, "discord:9", "/dance"), "Unknown command /dance."))

	d.views["discord:9"] = agent.View{Status: agent.StatusRunning}
	assert.Equal(t, "Cancelling.", h.Handle(ctx, "discord:9", "/CANCEL"))
}

func TestHandler_Errors(t *testing.T) {
	d := newDriver()
	d.startErr = agent.ErrSessionBusy
	h := NewHandler(d, nil)
	assert.Contains(t, h.Handle(context.Background(), "s", "go"), "Still working")

	d.startErr = &agent.FailureError{Reason: agent.PlanningFailed, Err: errors.New("no plan")}
	d.views["s"] = agent.View{Status: agent.StatusFailed, Failure: agent.PlanningFailed, Reason: "no plan"}
	assert.Equal(t, "Failed (planning_failed): no plan", h.Handle(context.Background(), "s", "go"))

	d.startErr = errors.New("boom")
	assert.Equal(t, "Something went wrong: boom", h.Handle(context.Background(), "x", "go"))
}

func TestFormatView(t *testing.T) {
	opts := []flights.Candidate{{
		ID:          "1",
		Numeric:     map[string]float64{flights.AttrPrice: 250},
		Categorical: map[string]string{flights.AttrPriceText: "$250", flights.AttrAirline: "WestJet"},
	}}
	tests := []struct {
		name string
		view agent.View
		want string
	}{
		{"cancelled", agent.View{Status: agent.StatusFailed, Failure: agent.Cancelled, Reason: "cancelled"}, "Failed (cancelled)"},
		{"running", agent.View{Status: agent.StatusRunning, Goal: "g", Phase: agent.PhaseVerifying, Plan: plan.StepPlan{{}, {}}, Step: 2}, `Working on "g": step 2 of 2 (verifying)`},
		{"idle", agent.View{}, "Idle"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatView(tt.view))
		})
	}

	out := FormatView(agent.View{Status: agent.StatusDone, Reason: "found flights", Options: opts, Recommendation: "Take 1."})
	assert.True(t, strings.HasPrefix(out, "Done: found flights\n\n1. $250 WestJet"))
	assert.True(t, strings.HasSuffix(out, "\nTake 1."))
}

func TestChunk(t *testing.T) {
	assert.Equal(t, []string{""}, chunk("", 10))
	assert.Equal(t, []string{"abc"}, chunk("abc", 10))
	assert.Equal(t, []string{"aaaa\n", "bbbbbb"}, chunk("aaaa\nbbbbbb", 6))
	assert.Equal(t, []string{"abcdef", "gh"}, chunk("abcdefgh", 6))

	parts := chunk(strings.Repeat("é", 4500), discordLimit)
	require.Len(t, parts, 3)
	assert.Len(t, []rune(parts[0]), discordLimit)
}
