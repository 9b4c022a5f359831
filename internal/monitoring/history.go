// Package monitoring - history.go persists flow events to SQLite.
//
// DESIGN: An optional durable audit trail alongside the JSONL telemetry.
// JSONL is append-and-forget for live tailing; the SQLite history survives
// rotation and supports ad hoc queries after an incident ("which exchanges
// hit auto-fetch failures last Tuesday"). Both receive the same FlowEvent.
package monitoring

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// History is a SQLite-backed audit log of flow events.
type History struct {
	db    *sql.DB
	runID string
}

// OpenHistory opens (or creates) the audit database at path.
func OpenHistory(path, runID string) (*History, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	h := &History{db: db, runID: runID}
	if err := h.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return h, nil
}

func (h *History) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS flow_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			event TEXT NOT NULL,
			flow TEXT NOT NULL,
			session INTEGER NOT NULL,
			request_id TEXT,
			host TEXT,
			path TEXT,
			method TEXT,
			status INTEGER,
			auto_fetch INTEGER NOT NULL DEFAULT 0,
			detail TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_flow_events_timestamp ON flow_events(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_flow_events_event ON flow_events(event)`,
	}

	for _, stmt := range statements {
		if _, err := h.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Record inserts one flow event. Failures are returned rather than logged so
// the caller decides whether the audit trail is best-effort.
func (h *History) Record(ctx context.Context, e *FlowEvent) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	_, err := h.db.ExecContext(ctx,
		`INSERT INTO flow_events
			(run_id, timestamp, event, flow, session, request_id, host, path, method, status, auto_fetch, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.runID, ts.Format(time.RFC3339Nano), e.Event, string(e.Flow), e.Session,
		e.RequestID, e.Host, e.Path, e.Method, e.Status, boolToInt(e.AutoFetch), e.Detail,
	)
	if err != nil {
		return fmt.Errorf("failed to record flow event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (h *History) Recent(ctx context.Context, limit int) ([]FlowEvent, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT timestamp, event, flow, session, request_id, host, path, method, status, auto_fetch, detail
		 FROM flow_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query flow events: %w", err)
	}
	defer rows.Close()

	var events []FlowEvent
	for rows.Next() {
		var e FlowEvent
		var ts, flow string
		var autoFetch int
		if err := rows.Scan(&ts, &e.Event, &flow, &e.Session, &e.RequestID,
			&e.Host, &e.Path, &e.Method, &e.Status, &autoFetch, &e.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan flow event: %w", err)
		}
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			e.Timestamp = parsed
		}
		e.Flow = FlowKind(flow)
		e.AutoFetch = autoFetch != 0
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close closes the underlying database.
func (h *History) Close() error {
	return h.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
