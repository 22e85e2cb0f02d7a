package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/rahul/autopilot/internal/plan"
)

// AuditStore keeps a durable copy of session outcomes and their execution
// records. It never feeds back into a running session.
type AuditStore struct {
	DB *sql.DB
}

func NewAuditStore(dbPath string) (*AuditStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// sqlite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	queries := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			goal TEXT,
			status TEXT,
			reason TEXT,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT,
			action TEXT,
			outcome TEXT,
			reason TEXT,
			timestamp TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS entries_session ON entries (session_id, id);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &AuditStore{DB: db}, nil
}

// SaveSession upserts the latest status of a session.
func (a *AuditStore) SaveSession(ctx context.Context, id, goal, status, reason string) error {
	query := `INSERT INTO sessions (id, goal, status, reason, updated_at) VALUES (?, ?, ?, ?, datetime('now'))
		ON CONFLICT(id) DO UPDATE SET goal = excluded.goal, status = excluded.status, reason = excluded.reason, updated_at = excluded.updated_at`
	_, err := a.DB.ExecContext(ctx, query, id, goal, status, reason)
	return err
}

// AppendEntry stores one attempted action.
func (a *AuditStore) AppendEntry(ctx context.Context, sessionID string, e plan.Entry) error {
	action, err := json.Marshal(e.Action)
	if err != nil {
		return fmt.Errorf("failed to encode action: %w", err)
	}
	ts := e.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	query := `INSERT INTO entries (session_id, action, outcome, reason, timestamp) VALUES (?, ?, ?, ?, ?)`
	_, err = a.DB.ExecContext(ctx, query, sessionID, string(action), string(e.Outcome), e.Reason, ts.UTC().Format(time.RFC3339Nano))
	return err
}

// Entries returns a session's stored record in insertion order.
func (a *AuditStore) Entries(ctx context.Context, sessionID string) ([]plan.Entry, error) {
	query := `SELECT action, outcome, reason, timestamp FROM entries WHERE session_id = ? ORDER BY id`
	rows, err := a.DB.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []plan.Entry
	for rows.Next() {
		var action, outcome, reason, ts string
		if err := rows.Scan(&action, &outcome, &reason, &ts); err != nil {
			return nil, err
		}
		var e plan.Entry
		if err := json.Unmarshal([]byte(action), &e.Action); err != nil {
			return nil, fmt.Errorf("failed to decode stored action: %w", err)
		}
		e.Outcome = plan.Outcome(outcome)
		e.Reason = reason
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			e.Time = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Session returns the stored status and reason for id.
func (a *AuditStore) Session(ctx context.Context, id string) (status, reason string, err error) {
	row := a.DB.QueryRowContext(ctx, `SELECT status, reason FROM sessions WHERE id = ?`, id)
	err = row.Scan(&status, &reason)
	return status, reason, err
}

func (a *AuditStore) Close() error {
	return a.DB.Close()
}
