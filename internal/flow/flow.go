// Package flow implements the per-endpoint transform logic applied to
// intercepted exchanges.
//
// DESIGN: Three integration flows share one shape:
//   - CheckpointAuth: rewrites credential posts to the Infinity portal form,
//     correlates request and response phases, optionally auto-fetches logs
//   - CheckpointLog:  rewrites explicit log queries with bearer auth
//   - GraphToken:     rewrites Microsoft identity token requests to the
//     documented form encoding
//
// Every transform degrades gracefully: missing credentials, malformed
// bodies, and upstream failures all result in the original bytes passing
// through untouched. Nothing in this package returns an error to the
// interception layer.
package flow

import (
	"context"

	"github.com/logward/auth-gateway/internal/monitoring"
	"github.com/logward/auth-gateway/internal/payload"
)

// AuthState is the per-exchange metadata the auth request transform stores
// for its matching response transform. Query and Body are already sanitized;
// nothing in here may reach a downstream API unfiltered.
type AuthState struct {
	// AutoFetch records the combined decision: global flag AND the client
	// asked for it on this exchange.
	AutoFetch bool

	// Query and Body carry the sanitized parameter mappings for a follow-up
	// log call.
	Query *payload.Params
	Body  *payload.Params

	// CSRF is the session token captured from the request, possibly replaced
	// by a fresher one from the auth response before auto-fetch runs.
	CSRF string
}

// FlowKind marks AuthState as checkpoint-auth metadata in the state store.
func (s *AuthState) FlowKind() string {
	return string(monitoring.FlowCheckpointAuth)
}

// LogFetcher issues the secondary log call during the auth response phase.
// Implementations must be safe for concurrent use, never panic, and report
// failure through the boolean rather than an error: the caller's only
// recovery is falling back to the envelope it already built.
type LogFetcher interface {
	FetchLogs(ctx context.Context, session int64, token string, state *AuthState) (body string, ok bool)
}

// lookupOr reads key from the snapshot, falling back when absent or blank.
func lookupOr(snap *payload.Snapshot, key, fallback string) string {
	if v, ok := snap.Lookup(key); ok {
		return v
	}
	return fallback
}
