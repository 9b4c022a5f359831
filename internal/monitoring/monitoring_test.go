package monitoring

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestTrackerWritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	tracker, err := NewTracker(path, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	defer tracker.Close()

	tracker.RecordStart(&StartEvent{Listen: "127.0.0.1:8080", TLSIntercept: true})
	tracker.Record(&FlowEvent{
		Event:   EventAuthRequest,
		Flow:    FlowCheckpointAuth,
		Session: 7,
		Host:    "cloudinfra-gw.portal.checkpoint.com",
		Method:  "POST",
	})
	tracker.Record(&FlowEvent{
		Event:   EventAutoFetchFailed,
		Flow:    FlowCheckpointAuth,
		Session: 7,
		Status:  500,
	})

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var obj map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &obj); err != nil {
			t.Fatalf("line %d is not JSON: %v", len(lines)+1, err)
		}
		lines = append(lines, obj)
	}

	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	if lines[0]["event"] != EventGatewayStart || lines[0]["run_id"] != "run-1" {
		t.Errorf("start line = %v", lines[0])
	}
	if lines[1]["event"] != EventAuthRequest {
		t.Errorf("second line event = %v", lines[1]["event"])
	}
	if lines[2]["status"] != float64(500) {
		t.Errorf("third line status = %v", lines[2]["status"])
	}
	if _, ok := lines[1]["timestamp"]; !ok {
		t.Error("timestamp should be stamped on record")
	}
}

func TestTrackerDisabled(t *testing.T) {
	tracker, err := NewTracker("", "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if tracker.Enabled() {
		t.Error("tracker with empty path should be disabled")
	}
	// Must not panic or create files.
	tracker.Record(&FlowEvent{Event: EventAuthRequest})
	tracker.Close()
}

func TestMetricsFullStats(t *testing.T) {
	mc := NewMetricsCollector()

	mc.RecordIntercepted()
	mc.RecordIntercepted()
	mc.RecordIntercepted()
	mc.RecordRequestTransform(FlowCheckpointAuth, true)
	mc.RecordRequestTransform(FlowCheckpointLog, true)
	mc.RecordRequestTransform(FlowGraphToken, false)
	mc.RecordResponseTransform(true)
	mc.RecordAutoFetch(true)
	mc.RecordAutoFetch(false)
	mc.RecordStateWrite()
	mc.RecordStateConsumed()

	stats := mc.FullStats(4)

	if stats.Exchanges.Intercepted != 3 {
		t.Errorf("Intercepted = %d", stats.Exchanges.Intercepted)
	}
	if stats.Exchanges.Transformed != 2 || stats.Exchanges.PassedThrough != 1 {
		t.Errorf("Transformed/PassedThrough = %d/%d",
			stats.Exchanges.Transformed, stats.Exchanges.PassedThrough)
	}
	if stats.Flows.AuthRequests != 1 || stats.Flows.GraphPassthroughs != 1 {
		t.Errorf("flow stats = %+v", stats.Flows)
	}
	if stats.AutoFetch.Attempts != 2 || stats.AutoFetch.Failures != 1 {
		t.Errorf("auto-fetch stats = %+v", stats.AutoFetch)
	}
	if stats.State.Writes != 1 || stats.State.Consumed != 1 || stats.State.OrphansSwept != 4 {
		t.Errorf("state stats = %+v", stats.State)
	}
	if stats.Uptime == "" || stats.StartedAt == "" {
		t.Error("uptime fields should be populated")
	}
}

func TestHistoryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	h, err := OpenHistory(path, "run-xyz")
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	ctx := context.Background()
	events := []*FlowEvent{
		{Event: EventAuthRequest, Flow: FlowCheckpointAuth, Session: 1, Method: "POST", Host: "a.test"},
		{Event: EventAuthResponse, Flow: FlowCheckpointAuth, Session: 1, AutoFetch: true},
		{Event: EventGraphRequest, Flow: FlowGraphToken, Session: 2, Path: "/common/oauth2/v2.0/token"},
	}
	for _, e := range events {
		if err := h.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := h.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3", len(got))
	}
	// Newest first.
	if got[0].Event != EventGraphRequest || got[0].Session != 2 {
		t.Errorf("newest = %+v", got[0])
	}
	if got[1].Event != EventAuthResponse || !got[1].AutoFetch {
		t.Errorf("middle = %+v", got[1])
	}
	if got[2].Flow != FlowCheckpointAuth || got[2].Host != "a.test" {
		t.Errorf("oldest = %+v", got[2])
	}
}

func TestTrackerMirrorsToHistory(t *testing.T) {
	dir := t.TempDir()
	h, err := OpenHistory(filepath.Join(dir, "audit.db"), "run-1")
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	tracker, err := NewTracker("", "run-1")
	if err != nil {
		t.Fatal(err)
	}
	tracker.AttachHistory(h)

	if !tracker.Enabled() {
		t.Error("tracker with history should report enabled")
	}
	tracker.Record(&FlowEvent{Event: EventAuthRequest, Flow: FlowCheckpointAuth, Session: 3})

	got, err := h.Recent(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Event != EventAuthRequest || got[0].Session != 3 {
		t.Errorf("mirrored event = %+v", got)
	}
}

func TestHistoryRecentLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	h, err := OpenHistory(path, "run-xyz")
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := h.Record(ctx, &FlowEvent{Event: EventLogRequest, Flow: FlowCheckpointLog, Session: int64(i)}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := h.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Session != 4 {
		t.Errorf("limit query = %+v", got)
	}
}
