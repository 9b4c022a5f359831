// Microsoft identity platform token flow: request transform.
//
// DESIGN: Clients send credentials in whatever shape they like; the upstream
// wants the documented form encoding with exactly five fields. Defaults for
// grant_type, scope, and resource apply individually, each overridable by a
// same-named value in the request.
package flow

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/logward/auth-gateway/internal/monitoring"
	"github.com/logward/auth-gateway/internal/payload"
	"github.com/logward/auth-gateway/internal/utils"
)

const (
	defaultGrantType = "client_credentials"
	defaultScope     = "https://graph.microsoft.com/.default"
	defaultResource  = "https://graph.microsoft.com"
)

// GraphFlow handles exchanges bound for the Microsoft token endpoint.
type GraphFlow struct {
	tracker *monitoring.Tracker
	metrics *monitoring.MetricsCollector
}

// NewGraphFlow wires the Graph token flow.
func NewGraphFlow(tracker *monitoring.Tracker, metrics *monitoring.MetricsCollector) *GraphFlow {
	return &GraphFlow{tracker: tracker, metrics: metrics}
}

// TransformRequest rewrites a token request as the form post the identity
// platform expects. Missing credentials leave the exchange untouched.
func (f *GraphFlow) TransformRequest(session int64, req *http.Request, snap *payload.Snapshot) string {
	clientID, okID := snap.Lookup("client_id")
	clientSecret, okSecret := snap.Lookup("client_secret")
	if !okID || !okSecret {
		f.metrics.RecordRequestTransform(monitoring.FlowGraphToken, false)
		log.Warn().
			Int64("session", session).
			Bool("has_client_id", okID).
			Bool("has_client_secret", okSecret).
			Msg("Graph token request missing credentials, passing through")
		f.tracker.Record(&monitoring.FlowEvent{
			Event:     monitoring.EventGraphMissingCreds,
			Flow:      monitoring.FlowGraphToken,
			Session:   session,
			RequestID: monitoring.RequestIDFromContext(req.Context()),
			Host:      req.Host,
			Path:      req.URL.Path,
			Method:    req.Method,
		})
		return snap.RawBody
	}

	// Field order matters to nothing but diffability, so keep the documented
	// order.
	form := payload.NewParams()
	form.Add("client_id", clientID)
	form.Add("client_secret", clientSecret)
	form.Add("grant_type", lookupOr(snap, "grant_type", defaultGrantType))
	form.Add("scope", lookupOr(snap, "scope", defaultScope))
	form.Add("resource", lookupOr(snap, "resource", defaultResource))

	req.Method = http.MethodPost
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	f.metrics.RecordRequestTransform(monitoring.FlowGraphToken, true)
	log.Info().
		Int64("session", session).
		Str("client_id", utils.MaskKey(clientID)).
		Msg("Rewrote Graph token request")
	f.tracker.Record(&monitoring.FlowEvent{
		Event:     monitoring.EventGraphRequest,
		Flow:      monitoring.FlowGraphToken,
		Session:   session,
		RequestID: monitoring.RequestIDFromContext(req.Context()),
		Host:      req.Host,
		Path:      req.URL.Path,
		Method:    req.Method,
	})
	return payload.EncodeQuery(form)
}
