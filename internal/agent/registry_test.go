package agent

import (
	"context"
	"testing"
	"time"

	"github.com/rahul/autopilot/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Lifecycle(t *testing.T) {
	r := NewRegistry(time.Minute, nil, nil)
	a := r.CreateOrGet("b")
	assert.Same(t, a, r.CreateOrGet("b"))
	r.CreateOrGet("a")
	assert.Equal(t, []string{"a", "b"}, r.ListIDs())
	assert.Equal(t, 2, observability.GetStatus().Sessions)

	page := newFakePage()
	a.page = page
	require.NoError(t, r.Remove("b"))
	assert.Equal(t, 1, page.closed)
	assert.Equal(t, []string{"a"}, r.ListIDs())
	assert.ErrorIs(t, r.Remove("b"), ErrUnknownSession)

	_, err := r.Status("b")
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestRegistry_ReapSkipsRunningSessions(t *testing.T) {
	r := NewRegistry(time.Minute, nil, nil)
	start := time.Now()

	idle := r.CreateOrGet("idle")
	idlePage := newFakePage()
	idle.page = idlePage

	busy := r.CreateOrGet("busy")
	busy.runMu.Lock()
	defer busy.runMu.Unlock()

	r.CreateOrGet("fresh").lastActive = start.Add(2 * time.Minute)

	reaped := r.Reap(start.Add(2 * time.Minute))
	assert.Equal(t, []string{"idle"}, reaped)
	assert.Equal(t, []string{"busy", "fresh"}, r.ListIDs())
	assert.Equal(t, 1, idlePage.closed)

	assert.Empty(t, NewRegistry(0, nil, nil).Reap(start.Add(time.Hour)))
}

func TestRegistry_ReapedSessionRejectsNewGoal(t *testing.T) {
	r := NewRegistry(time.Minute, nil, nil)
	s := r.CreateOrGet("s1")
	r.Reap(time.Now().Add(time.Hour))
	assert.ErrorIs(t, s.reset("goal", time.Now()), ErrSessionClosed)
}

func TestRegistry_CloseAll(t *testing.T) {
	r := NewRegistry(time.Minute, nil, nil)
	pages := []*fakePage{newFakePage(), newFakePage(), newFakePage()}
	for i, p := range pages {
		r.CreateOrGet(string(rune('a' + i))).page = p
	}

	require.NoError(t, r.CloseAll(context.Background()))
	assert.Empty(t, r.ListIDs())
	for _, p := range pages {
		assert.Equal(t, 1, p.closed)
	}
}

func TestRegistry_StartReaperStops(t *testing.T) {
	r := NewRegistry(time.Millisecond, nil, nil)
	r.CreateOrGet("old").lastActive = time.Now().Add(-time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.StartReaper(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(r.ListIDs()) == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
}
