// Package monitoring - metrics.go provides simple counters.
//
// DESIGN: Lightweight in-memory counters for operational metrics:
//   - intercepted:        Exchanges routed into the transform pipeline
//   - per-flow counters:  Transformed vs passed-through, per integration flow
//   - auto_fetch:         Secondary log-call attempts and failures
//   - state:              Flow state written, consumed, and swept as orphans
//
// For production, export these to Prometheus or similar.
package monitoring

import (
	"fmt"
	"sync/atomic"
	"time"
)

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	startedAt time.Time

	// Exchange counters
	intercepted atomic.Int64

	// Per-flow request transform counters
	authRequests      atomic.Int64
	authPassthroughs  atomic.Int64
	logRequests       atomic.Int64
	logPassthroughs   atomic.Int64
	graphRequests     atomic.Int64
	graphPassthroughs atomic.Int64

	// Response transform counters
	authResponses            atomic.Int64
	authResponsePassthroughs atomic.Int64

	// Auto-fetch counters
	autoFetchAttempts atomic.Int64
	autoFetchFailures atomic.Int64

	// Flow state counters
	stateWrites   atomic.Int64
	stateConsumed atomic.Int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		startedAt: time.Now(),
	}
}

// RecordIntercepted records an exchange entering the pipeline.
func (mc *MetricsCollector) RecordIntercepted() { mc.intercepted.Add(1) }

// RecordRequestTransform records a request-phase transform decision for a
// flow: transformed means the body was rewritten, false means the exchange
// passed through untouched.
func (mc *MetricsCollector) RecordRequestTransform(flow FlowKind, transformed bool) {
	switch flow {
	case FlowCheckpointAuth:
		if transformed {
			mc.authRequests.Add(1)
		} else {
			mc.authPassthroughs.Add(1)
		}
	case FlowCheckpointLog:
		if transformed {
			mc.logRequests.Add(1)
		} else {
			mc.logPassthroughs.Add(1)
		}
	case FlowGraphToken:
		if transformed {
			mc.graphRequests.Add(1)
		} else {
			mc.graphPassthroughs.Add(1)
		}
	}
}

// RecordResponseTransform records a response-phase decision on the auth flow.
func (mc *MetricsCollector) RecordResponseTransform(transformed bool) {
	if transformed {
		mc.authResponses.Add(1)
	} else {
		mc.authResponsePassthroughs.Add(1)
	}
}

// RecordAutoFetch records an auto-fetch attempt and its outcome.
func (mc *MetricsCollector) RecordAutoFetch(ok bool) {
	mc.autoFetchAttempts.Add(1)
	if !ok {
		mc.autoFetchFailures.Add(1)
	}
}

// RecordStateWrite records a flow-state entry being stored.
func (mc *MetricsCollector) RecordStateWrite() { mc.stateWrites.Add(1) }

// RecordStateConsumed records a flow-state entry being taken by its response.
func (mc *MetricsCollector) RecordStateConsumed() { mc.stateConsumed.Add(1) }

// StartedAt returns when the metrics collector was created.
func (mc *MetricsCollector) StartedAt() time.Time { return mc.startedAt }

// FullStats returns all metrics in a structured format for the /stats
// endpoint. orphansSwept comes from the flow state store, which owns that
// counter.
func (mc *MetricsCollector) FullStats(orphansSwept int64) StatsResponse {
	uptime := time.Since(mc.startedAt)

	transformed := mc.authRequests.Load() + mc.logRequests.Load() + mc.graphRequests.Load()
	passed := mc.authPassthroughs.Load() + mc.logPassthroughs.Load() + mc.graphPassthroughs.Load()

	return StatsResponse{
		Uptime:        formatDuration(uptime),
		UptimeSeconds: int64(uptime.Seconds()),
		StartedAt:     mc.startedAt.Format(time.RFC3339),
		Exchanges: ExchangeStats{
			Intercepted:   mc.intercepted.Load(),
			Transformed:   transformed,
			PassedThrough: passed,
		},
		Flows: FlowStats{
			AuthRequests:      mc.authRequests.Load(),
			AuthPassthroughs:  mc.authPassthroughs.Load(),
			AuthResponses:     mc.authResponses.Load(),
			LogRequests:       mc.logRequests.Load(),
			LogPassthroughs:   mc.logPassthroughs.Load(),
			GraphRequests:     mc.graphRequests.Load(),
			GraphPassthroughs: mc.graphPassthroughs.Load(),
		},
		AutoFetch: AutoFetchStats{
			Attempts: mc.autoFetchAttempts.Load(),
			Failures: mc.autoFetchFailures.Load(),
		},
		State: StateStats{
			Writes:       mc.stateWrites.Load(),
			Consumed:     mc.stateConsumed.Load(),
			OrphansSwept: orphansSwept,
		},
	}
}

// StatsResponse is the structured response for the /stats endpoint.
type StatsResponse struct {
	Uptime        string         `json:"uptime"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	StartedAt     string         `json:"started_at"`
	Exchanges     ExchangeStats  `json:"exchanges"`
	Flows         FlowStats      `json:"flows"`
	AutoFetch     AutoFetchStats `json:"auto_fetch"`
	State         StateStats     `json:"state"`
}

// ExchangeStats holds top-level exchange counts.
type ExchangeStats struct {
	Intercepted   int64 `json:"intercepted"`
	Transformed   int64 `json:"transformed"`
	PassedThrough int64 `json:"passed_through"`
}

// FlowStats holds per-flow transform counts.
type FlowStats struct {
	AuthRequests      int64 `json:"checkpoint_auth_requests"`
	AuthPassthroughs  int64 `json:"checkpoint_auth_passthroughs"`
	AuthResponses     int64 `json:"checkpoint_auth_responses"`
	LogRequests       int64 `json:"checkpoint_log_requests"`
	LogPassthroughs   int64 `json:"checkpoint_log_passthroughs"`
	GraphRequests     int64 `json:"graph_token_requests"`
	GraphPassthroughs int64 `json:"graph_token_passthroughs"`
}

// AutoFetchStats holds secondary-call metrics.
type AutoFetchStats struct {
	Attempts int64 `json:"attempts"`
	Failures int64 `json:"failures"`
}

// StateStats holds flow state store metrics.
type StateStats struct {
	Writes       int64 `json:"writes"`
	Consumed     int64 `json:"consumed"`
	OrphansSwept int64 `json:"orphans_swept"`
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
