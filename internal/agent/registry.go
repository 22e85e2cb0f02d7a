package agent

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rahul/autopilot/internal/observability"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Registry maps session ids to sessions. Sessions idle longer than the TTL
// are reaped unless they are running.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	idleTTL time.Duration
	metrics *observability.Metrics
	log     *zap.Logger
	now     func() time.Time
}

func NewRegistry(idleTTL time.Duration, metrics *observability.Metrics, z *zap.Logger) *Registry {
	if z == nil {
		z = zap.NewNop()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		idleTTL:  idleTTL,
		metrics:  metrics,
		log:      z.With(zap.String("component", "registry")),
		now:      time.Now,
	}
}

// CreateOrGet returns the session for id, creating it on first use.
func (r *Registry) CreateOrGet(id string) *Session {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		s = newSession(id, r.now())
		r.sessions[id] = s
	}
	r.mu.Unlock()
	if !ok {
		r.publish()
	}
	return s
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Status returns a copy of the session's state.
func (r *Registry) Status(id string) (View, error) {
	s, ok := r.Get(id)
	if !ok {
		return View{}, ErrUnknownSession
	}
	return s.View(), nil
}

// Remove drops the session and releases its page, waiting for a run in
// progress to notice the cancellation.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return ErrUnknownSession
	}
	r.publish()
	return s.close()
}

// ListIDs returns the known session ids in sorted order.
func (r *Registry) ListIDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Reap removes sessions idle for longer than the TTL and returns their ids.
// Running sessions are skipped.
func (r *Registry) Reap(now time.Time) []string {
	if r.idleTTL <= 0 {
		return nil
	}
	r.mu.RLock()
	var idle []*Session
	for _, s := range r.sessions {
		if s.idleSince(now) > r.idleTTL {
			idle = append(idle, s)
		}
	}
	r.mu.RUnlock()

	var reaped []string
	for _, s := range idle {
		if !s.runMu.TryLock() {
			continue
		}
		r.mu.Lock()
		current, ok := r.sessions[s.ID]
		if ok && current == s {
			delete(r.sessions, s.ID)
		}
		r.mu.Unlock()
		if ok && current == s {
			if err := s.shutdown(); err != nil {
				r.log.Warn("failed to close reaped session", zap.String("session_id", s.ID), zap.Error(err))
			}
			reaped = append(reaped, s.ID)
		}
		s.runMu.Unlock()
	}
	if len(reaped) > 0 {
		sort.Strings(reaped)
		r.log.Info("reaped idle sessions", zap.Strings("session_ids", reaped))
		r.publish()
	}
	return reaped
}

// StartReaper calls Reap every interval until ctx is done.
func (r *Registry) StartReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 || r.idleTTL <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.log.Info("session reaper started", zap.Duration("interval", interval), zap.Duration("idle_ttl", r.idleTTL))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Reap(r.now())
		}
	}
}

// CloseAll removes every session, closing their pages in parallel.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	r.publish()

	g, _ := errgroup.WithContext(ctx)
	for _, s := range all {
		g.Go(s.close)
	}
	return g.Wait()
}

// publish pushes occupancy to the status line and metrics.
func (r *Registry) publish() {
	r.mu.RLock()
	total := len(r.sessions)
	var running, awaiting int
	for _, s := range r.sessions {
		s.mu.Lock()
		switch s.status {
		case StatusRunning:
			running++
		case StatusAwaitingUser:
			awaiting++
		}
		s.mu.Unlock()
	}
	r.mu.RUnlock()
	observability.SetSessions(total, running, awaiting)
	r.metrics.SetActiveSessions(total)
}
