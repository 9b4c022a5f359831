// Package monitoring - telemetry.go records events to JSONL files.
//
// DESIGN: Tracker writes structured events as JSONL (one JSON object per line):
//   - StartEvent: one per gateway run, with the effective configuration
//   - FlowEvent:  one per transform decision (transformed, skipped, failed)
//
// Events are appended immediately so the file is useful while the gateway is
// still running. A write failure is logged and dropped; telemetry must never
// interfere with traffic.
package monitoring

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Tracker handles telemetry event recording to a JSONL file, optionally
// mirrored into the SQLite history.
type Tracker struct {
	path    string
	runID   string
	history *History
	count   int
	mu      sync.Mutex
}

// NewTracker creates a tracker appending to path. An empty path disables
// recording entirely; every Record call then becomes a no-op.
func NewTracker(path, runID string) (*Tracker, error) {
	t := &Tracker{path: path, runID: runID}
	if path == "" {
		return t, nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, err
		}
	}
	// Create empty file if it doesn't exist
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if f, err := os.Create(path); err == nil {
			_ = f.Close()
		}
	}
	return t, nil
}

// Enabled reports whether events are being written anywhere.
func (t *Tracker) Enabled() bool {
	return t.path != "" || t.history != nil
}

// AttachHistory mirrors every recorded flow event into the audit database.
// Call before serving traffic; not synchronized with Record.
func (t *Tracker) AttachHistory(h *History) {
	t.history = h
}

// appendJSONL appends a single JSON object as a line to the file.
func appendJSONL(path string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = f.Write(data)
	return err
}

// Record appends a flow event. The timestamp is stamped here when the caller
// left it zero.
func (t *Tracker) Record(event *FlowEvent) {
	if event == nil || !t.Enabled() {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.path != "" {
		if err := appendJSONL(t.path, event); err != nil {
			log.Error().Err(err).Str("path", t.path).Msg("telemetry: failed to write flow event")
		} else {
			t.count++
		}
	}

	if t.history != nil {
		if err := t.history.Record(context.Background(), event); err != nil {
			log.Error().Err(err).Msg("telemetry: failed to write audit record")
		}
	}
}

// RecordStart appends the startup configuration event.
func (t *Tracker) RecordStart(event *StartEvent) {
	if t.path == "" || event == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.Event = EventGatewayStart
	event.RunID = t.runID

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := appendJSONL(t.path, event); err != nil {
		log.Error().Err(err).Str("path", t.path).Msg("telemetry: failed to write start event")
	}
}

// Close logs a session summary.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.path != "" && t.count > 0 {
		log.Info().
			Str("path", t.path).
			Int("events", t.count).
			Msg("telemetry: session complete")
	}
	return nil
}
