// Package monitoring - types.go defines shared types.
//
// DESIGN: These types are used by the flow, pipeline, and proxy packages.
// Defined here ONCE to avoid duplication and circular imports.
//
// TYPES:
//   - FlowKind:   Identifies which integration flow handled an exchange
//   - FlowEvent:  Telemetry data for each transform decision
//   - StartEvent: Gateway startup configuration snapshot
package monitoring

import "time"

// =============================================================================
// FLOW KINDS - Used by the pipeline router and telemetry
// =============================================================================

// FlowKind identifies which integration flow an exchange was routed to.
type FlowKind string

const (
	FlowUnknown        FlowKind = ""
	FlowCheckpointAuth FlowKind = "checkpoint-auth"
	FlowCheckpointLog  FlowKind = "checkpoint-log"
	FlowGraphToken     FlowKind = "graph-token"
)

// =============================================================================
// EVENT NAMES - Stable identifiers written to telemetry and audit records
// =============================================================================

const (
	EventAuthRequest         = "checkpoint_auth_request"
	EventAuthMissingID       = "checkpoint_auth_request_missing_id"
	EventAuthMissingSecret   = "checkpoint_auth_request_missing_secret"
	EventAuthResponse        = "checkpoint_auth_response"
	EventAuthResponseSkipped = "checkpoint_auth_response_passthrough"
	EventLogRequest          = "checkpoint_log_request"
	EventLogMissingToken     = "checkpoint_log_request_missing_token"
	EventAutoFetch           = "checkpoint_auto_fetch"
	EventAutoFetchFailed     = "checkpoint_auto_fetch_failed"
	EventGraphRequest        = "graph_token_request"
	EventGraphMissingCreds   = "graph_token_request_missing_credentials"
	EventGatewayStart        = "gateway_start"
)

// =============================================================================
// EVENT TYPES - Structured data for telemetry recording
// =============================================================================

// FlowEvent captures one transform decision on an intercepted exchange.
// Bodies and credentials are never recorded; Detail carries short context
// such as a truncated upstream error.
type FlowEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	Flow      FlowKind  `json:"flow"`
	Session   int64     `json:"session"`
	RequestID string    `json:"request_id,omitempty"`
	Host      string    `json:"host,omitempty"`
	Path      string    `json:"path,omitempty"`
	Method    string    `json:"method,omitempty"`
	Status    int       `json:"status,omitempty"`
	AutoFetch bool      `json:"auto_fetch,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// StartEvent captures gateway startup configuration without leaking secrets.
type StartEvent struct {
	Timestamp         time.Time `json:"timestamp"`
	Event             string    `json:"event"`
	RunID             string    `json:"run_id"`
	Listen            string    `json:"listen"`
	TLSIntercept      bool      `json:"tls_intercept"`
	AutoFetch         bool      `json:"auto_fetch"`
	Targets           []string  `json:"targets"`
	UpstreamTimeoutMs int64     `json:"upstream_timeout_ms"`
}
