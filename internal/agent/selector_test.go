package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rahul/autopilot/internal/governance"
	"github.com/rahul/autopilot/internal/plan"
	"github.com/rahul/autopilot/internal/surface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func recorder(rec *plan.Record) func(plan.Entry) {
	return func(e plan.Entry) { rec.Append(e) }
}

func TestSelect_FirstSuccessWins(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(t, "n")
		k := rapid.IntRange(0, n-1).Draw(t, "k")

		set := make(plan.AlternativeSet, n)
		var failing []string
		for i := range set {
			set[i] = click(fmt.Sprintf("button %d", i))
			if i < k {
				failing = append(failing, set[i].Target)
			}
		}
		page := newFakePage(failing...)
		var rec plan.Record

		sel, err := NewSelector(nil, time.Second, nil, nil, nil).Select(context.Background(), page, set, StepContext{Record: recorder(&rec)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := len(page.targets()); got != k+1 {
			t.Fatalf("performed %d actions, want %d", got, k+1)
		}
		if sel.Action != set[k] {
			t.Fatalf("selected %v, want %v", sel.Action, set[k])
		}
		entries := rec.Entries()
		if len(entries) != k+1 {
			t.Fatalf("recorded %d entries, want %d", len(entries), k+1)
		}
		for i := 0; i < k; i++ {
			if entries[i].Outcome != plan.Failed {
				t.Fatalf("entry %d is %s, want failed", i, entries[i].Outcome)
			}
		}
		if entries[k].Outcome != plan.Succeeded {
			t.Fatalf("last entry is %s, want succeeded", entries[k].Outcome)
		}
	})
}

func TestSelect_ExhaustsEveryAlternativeOnce(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(t, "n")
		set := make(plan.AlternativeSet, n)
		targets := make([]string, n)
		for i := range set {
			targets[i] = fmt.Sprintf("link %d", i)
			set[i] = click(targets[i])
		}
		page := newFakePage(targets...)
		page.snap = surface.Snapshot{Title: "Inbox"}
		var rec plan.Record

		_, err := NewSelector(nil, time.Second, nil, nil, nil).Select(context.Background(), page, set, StepContext{Record: recorder(&rec)})
		var selErr *SelectionError
		if !errors.As(err, &selErr) {
			t.Fatalf("got %v, want *SelectionError", err)
		}
		if got := len(page.targets()); got != n {
			t.Fatalf("performed %d actions, want %d", got, n)
		}
		if rec.Len() != n {
			t.Fatalf("recorded %d entries, want %d", rec.Len(), n)
		}
		if len(selErr.Tried) != n || selErr.Page.Title != "Inbox" {
			t.Fatalf("unexpected selection error %+v", selErr)
		}
	})
}

func TestSelect_AskUserSuspends(t *testing.T) {
	page := newFakePage("Create")
	var rec plan.Record
	set := plan.AlternativeSet{
		click("Create"),
		{Kind: plan.KindAskUser, Value: "city", Description: "Which city?"},
		click("never reached"),
	}

	sel, err := NewSelector(nil, time.Second, nil, nil, nil).Select(context.Background(), page, set, StepContext{Record: recorder(&rec)})
	require.NoError(t, err)
	assert.True(t, sel.AwaitingUser)
	assert.Equal(t, "Which city?", sel.Action.Description)
	assert.Equal(t, []string{"Create"}, page.targets())
	assert.Equal(t, []string{"failed:Create"}, outcomes(rec.Entries()))
}

func TestSelect_AnsweredQuestionSucceeds(t *testing.T) {
	page := newFakePage()
	var rec plan.Record
	q := plan.Action{Kind: plan.KindAskUser, Value: "city"}.WithAnswer("Paris")

	sel, err := NewSelector(nil, time.Second, nil, nil, nil).Select(context.Background(), page, plan.AlternativeSet{q}, StepContext{Record: recorder(&rec)})
	require.NoError(t, err)
	assert.False(t, sel.AwaitingUser)
	assert.Empty(t, page.targets())
	require.Equal(t, 1, rec.Len())
	assert.Equal(t, plan.Succeeded, rec.Entries()[0].Outcome)
}

func TestSelect_PolicyDenialCountsAsFailure(t *testing.T) {
	policy, err := governance.NewPolicyEngine(nil, []string{`(?i)delete account`})
	require.NoError(t, err)
	page := newFakePage()
	var rec plan.Record
	set := plan.AlternativeSet{click("Delete account"), click("Settings")}

	sel, err := NewSelector(policy, time.Second, nil, nil, nil).Select(context.Background(), page, set, StepContext{Record: recorder(&rec)})
	require.NoError(t, err)
	assert.Equal(t, "Settings", sel.Action.Target)
	assert.Equal(t, []string{"Settings"}, page.targets())

	entries := rec.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, plan.Failed, entries[0].Outcome)
	assert.Contains(t, entries[0].Reason, "denied by policy")
}

func TestSelect_TimeoutIsAFailedAttempt(t *testing.T) {
	page := newFakePage()
	page.perform = func(ctx context.Context, a plan.Action) (surface.Outcome, error) {
		if a.Target == "slow" {
			<-ctx.Done()
			return surface.Outcome{}, ctx.Err()
		}
		return surface.Outcome{Success: true}, nil
	}
	var rec plan.Record
	set := plan.AlternativeSet{click("slow"), click("fast")}

	sel, err := NewSelector(nil, 20*time.Millisecond, nil, nil, nil).Select(context.Background(), page, set, StepContext{Record: recorder(&rec)})
	require.NoError(t, err)
	assert.Equal(t, "fast", sel.Action.Target)
	entries := rec.Entries()
	require.Len(t, entries, 2)
	assert.Contains(t, entries[0].Reason, "timed out")
}

func TestSelect_CheckStopsBeforeAttempt(t *testing.T) {
	page := newFakePage("a")
	stop := errors.New("stop")
	calls := 0
	check := func() error {
		calls++
		if calls > 1 {
			return stop
		}
		return nil
	}

	_, err := NewSelector(nil, time.Second, nil, nil, nil).Select(context.Background(), page, plan.AlternativeSet{click("a"), click("b")}, StepContext{Check: check})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, []string{"a"}, page.targets())
}
