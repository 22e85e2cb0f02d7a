package plan

import "time"

// Outcome is the result of one attempted action.
type Outcome string

const (
	Succeeded Outcome = "succeeded"
	Failed    Outcome = "failed"
)

// Entry is one attempted action in a session's history.
type Entry struct {
	Action  Action    `json:"action"`
	Outcome Outcome   `json:"outcome"`
	Reason  string    `json:"reason,omitempty"`
	Time    time.Time `json:"time"`
}

// Record is the append-only execution history of a session. It is not safe
// for concurrent use; the owning session serializes access.
type Record struct {
	entries []Entry
}

func (r *Record) Append(e Entry) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	r.entries = append(r.entries, e)
}

func (r *Record) Len() int {
	return len(r.entries)
}

// Entries returns a copy of the full history.
func (r *Record) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Tail returns a copy of at most n of the most recent entries.
func (r *Record) Tail(n int) []Entry {
	if n <= 0 || n > len(r.entries) {
		n = len(r.entries)
	}
	out := make([]Entry, n)
	copy(out, r.entries[len(r.entries)-n:])
	return out
}
