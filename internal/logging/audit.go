package logging

import (
	"database/sql"
	"fmt"
	"time"
)

// #region event
// Outcome values for Event.Outcome.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Event is a single row in the run_log table.
type Event struct {
	RunID      string
	Event      string // "predict" | "rescore"
	Outcome    string // OutcomeOK | OutcomeFailed
	DetailJSON string
	Reason     string
	CreatedAt  time.Time
}

// #endregion event

// #region log-event
// LogEvent appends an audit entry to the run_log table.
func LogEvent(db *sql.DB, e Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO run_log (run_id, event, outcome, detail_json, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		nullIfEmpty(e.RunID),
		e.Event,
		e.Outcome,
		nullIfEmpty(e.DetailJSON),
		nullIfEmpty(e.Reason),
		e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log event: %w", err)
	}
	return nil
}

// #endregion log-event

// #region helpers
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
