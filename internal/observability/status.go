package observability

import (
	"sync"
	"time"
)

// Activity is what the live status line shows.
type Activity struct {
	Sessions      int
	Running       int
	AwaitingUser  int
	LastGoal      string
	LastHeartbeat time.Time
}

type systemStatus struct {
	mu sync.RWMutex
	Activity
}

var globalStatus = &systemStatus{
	Activity: Activity{LastHeartbeat: time.Now()},
}

// SetSessions records registry occupancy by status.
func SetSessions(total, running, awaiting int) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.Sessions = total
	globalStatus.Running = running
	globalStatus.AwaitingUser = awaiting
}

// SetLastGoal records the most recently started goal.
func SetLastGoal(goal string) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.LastGoal = goal
}

// GetStatus retrieves a copy of the global status.
func GetStatus() Activity {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	return globalStatus.Activity
}

// Heartbeat updates the last heartbeat time.
func Heartbeat() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.LastHeartbeat = time.Now()
}
