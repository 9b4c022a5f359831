// Check Point log query flow: request transform for explicit log calls.
//
// DESIGN: Clients hand us the token in the payload; we move it into an
// Authorization header and strip every reserved key before the query goes
// upstream. GET queries are re-encoded onto the URL, anything else becomes a
// JSON body.
package flow

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/logward/auth-gateway/internal/monitoring"
	"github.com/logward/auth-gateway/internal/payload"
	"github.com/logward/auth-gateway/internal/utils"
)

// LogFlow handles exchanges bound for the Check Point log endpoint.
type LogFlow struct {
	tracker *monitoring.Tracker
	metrics *monitoring.MetricsCollector
}

// NewLogFlow wires the log flow.
func NewLogFlow(tracker *monitoring.Tracker, metrics *monitoring.MetricsCollector) *LogFlow {
	return &LogFlow{tracker: tracker, metrics: metrics}
}

// TransformRequest rewrites a log query. Without an access token the
// exchange passes through untouched.
func (f *LogFlow) TransformRequest(session int64, req *http.Request, snap *payload.Snapshot) string {
	token, ok := snap.Lookup("access_token")
	if !ok {
		f.metrics.RecordRequestTransform(monitoring.FlowCheckpointLog, false)
		log.Warn().
			Int64("session", session).
			Msg("Check Point log request missing access token, passing through")
		f.tracker.Record(&monitoring.FlowEvent{
			Event:     monitoring.EventLogMissingToken,
			Flow:      monitoring.FlowCheckpointLog,
			Session:   session,
			RequestID: monitoring.RequestIDFromContext(req.Context()),
			Host:      req.Host,
			Path:      req.URL.Path,
			Method:    req.Method,
		})
		return snap.RawBody
	}

	req.Header.Set("Authorization", "Bearer "+token)
	if csrf, ok := snap.Lookup("csrf"); ok {
		req.Header.Set("x-av-req-id", csrf)
	}

	body := sanitize(snap.Body, reservedKeys)

	var newBody string
	if req.Method == http.MethodGet {
		// Fold the sanitized body parameters into the query string. Body
		// entries win over same-named query entries; the query itself is
		// sanitized too so reserved keys can't ride along on the URL.
		merged := sanitize(snap.Query, reservedKeys)
		body.Each(func(k, v string) { merged.Set(k, v) })
		req.URL.RawQuery = payload.EncodeQuery(merged)
		newBody = ""
	} else if body.Len() > 0 {
		req.Header.Set("Content-Type", "application/json")
		newBody = payload.EncodeJSON(body)
	} else {
		newBody = ""
	}

	f.metrics.RecordRequestTransform(monitoring.FlowCheckpointLog, true)
	log.Info().
		Int64("session", session).
		Str("token", utils.MaskKey(token)).
		Str("method", req.Method).
		Msg("Rewrote Check Point log request")
	f.tracker.Record(&monitoring.FlowEvent{
		Event:     monitoring.EventLogRequest,
		Flow:      monitoring.FlowCheckpointLog,
		Session:   session,
		RequestID: monitoring.RequestIDFromContext(req.Context()),
		Host:      req.Host,
		Path:      req.URL.Path,
		Method:    req.Method,
	})
	return newBody
}
