// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: All default values that appear in multiple places should be defined here.
// This makes configuration more maintainable and auditable.
package config

import "time"

// =============================================================================
// LISTENER DEFAULTS
// =============================================================================

// DefaultListenAddr is where the proxy listens when AUTHGATE_LISTEN is unset.
// Loopback by default: the gateway handles live credentials and should not sit
// on a routable interface without an explicit operator decision.
const DefaultListenAddr = "127.0.0.1:8080"

// =============================================================================
// TARGET ENDPOINT DEFAULTS
// =============================================================================

// DefaultCheckpointAuthURL is the Check Point Infinity external auth endpoint.
const DefaultCheckpointAuthURL = "https://cloudinfra-gw.portal.checkpoint.com/auth/external"

// DefaultCheckpointLogURL is the Check Point log query endpoint.
const DefaultCheckpointLogURL = "https://cloudinfra-gw.portal.checkpoint.com/app/laas-logs-api/api/logs_query"

// DefaultGraphTokenURL is the Microsoft identity platform token endpoint.
// The "common" tenant segment is a placeholder: matching is host plus path
// prefix, so tenant-specific paths still resolve to the same flow.
const DefaultGraphTokenURL = "https://login.microsoftonline.com/common/oauth2/v2.0/token"

// =============================================================================
// UPSTREAM TIMEOUT BOUNDS
// =============================================================================

// DefaultUpstreamTimeout bounds side-channel calls the gateway makes on the
// client's behalf (the auto-fetch log call).
const DefaultUpstreamTimeout = 30 * time.Second

// MinUpstreamTimeout and MaxUpstreamTimeout clamp operator-supplied values.
// Below 5s auto-fetch fails spuriously on slow links; above 240s a hung
// upstream pins an intercepted exchange longer than any client waits.
const (
	MinUpstreamTimeout = 5 * time.Second
	MaxUpstreamTimeout = 240 * time.Second
)

// =============================================================================
// FLOW STATE DEFAULTS
// =============================================================================

// DefaultStateTTL is how long request-side flow state survives waiting for its
// response half. Responses that never arrive (client disconnect, upstream
// reset) would otherwise leak entries forever.
const DefaultStateTTL = 5 * time.Minute

// DefaultStateSweepInterval is the frequency for the background sweep of
// expired flow state.
const DefaultStateSweepInterval = 1 * time.Minute

// =============================================================================
// BODY HANDLING LIMITS
// =============================================================================

// MaxBodyBytes caps how much of an intercepted body is read into memory.
// Payloads on the matched endpoints are small (credentials, query filters);
// anything larger passes through untransformed.
const MaxBodyBytes = 10 * 1024 * 1024

// MaxErrorBodyLogLen limits upstream error bodies quoted in event logs.
const MaxErrorBodyLogLen = 500

// =============================================================================
// ENVIRONMENT
// =============================================================================

// EnvPrefix namespaces every environment variable the gateway reads.
const EnvPrefix = "AUTHGATE_"
