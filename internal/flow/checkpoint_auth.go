// Check Point Infinity auth flow: request and response transforms.
//
// DESIGN: The request phase rewrites {client_id, client_secret} into the
// portal's {clientId, accessKey} JSON and stashes sanitized exchange
// metadata in the state store. The response phase rebuilds the provider
// response as a canonical token envelope, consumes the stored metadata
// exactly once, and may run the auto-fetch side call.
//
// FLOW (response): raw body -> parsed -> envelope built ->
// (no state | auto-fetch eligible) -> final body. Every early exit returns
// the upstream bytes untouched.
package flow

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/sjson"

	"github.com/logward/auth-gateway/internal/config"
	"github.com/logward/auth-gateway/internal/flowstate"
	"github.com/logward/auth-gateway/internal/monitoring"
	"github.com/logward/auth-gateway/internal/payload"
	"github.com/logward/auth-gateway/internal/utils"
)

// AuthFlow handles exchanges bound for the Check Point auth endpoint.
type AuthFlow struct {
	store     *flowstate.Store
	fetcher   LogFetcher
	autoFetch bool
	tracker   *monitoring.Tracker
	metrics   *monitoring.MetricsCollector
}

// NewAuthFlow wires the auth flow. autoFetchEnabled is the global switch; a
// client still has to ask per exchange before the side call happens.
func NewAuthFlow(store *flowstate.Store, fetcher LogFetcher, autoFetchEnabled bool,
	tracker *monitoring.Tracker, metrics *monitoring.MetricsCollector) *AuthFlow {
	return &AuthFlow{
		store:     store,
		fetcher:   fetcher,
		autoFetch: autoFetchEnabled,
		tracker:   tracker,
		metrics:   metrics,
	}
}

// TransformRequest rewrites an auth request body and records per-exchange
// metadata. Missing credentials leave the exchange untouched.
func (f *AuthFlow) TransformRequest(session int64, req *http.Request, snap *payload.Snapshot) string {
	clientID, ok := snap.Lookup("client_id")
	if !ok {
		f.skipRequest(session, req, monitoring.EventAuthMissingID)
		return snap.RawBody
	}
	clientSecret, ok := snap.Lookup("client_secret")
	if !ok {
		f.skipRequest(session, req, monitoring.EventAuthMissingSecret)
		return snap.RawBody
	}

	body := "{}"
	body, _ = sjson.Set(body, "clientId", clientID)
	body, _ = sjson.Set(body, "accessKey", clientSecret)

	req.Method = http.MethodPost
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	autoFetch := f.autoFetch && autoFetchRequested(snap)
	csrf, _ := snap.Lookup("csrf")

	f.store.Put(session, &AuthState{
		AutoFetch: autoFetch,
		Query:     sanitize(snap.Query, authQueryDrops),
		Body:      sanitize(snap.Body, reservedKeys),
		CSRF:      csrf,
	})
	f.metrics.RecordStateWrite()
	f.metrics.RecordRequestTransform(monitoring.FlowCheckpointAuth, true)

	log.Info().
		Int64("session", session).
		Str("client_id", utils.MaskKey(clientID)).
		Bool("auto_fetch", autoFetch).
		Msg("Rewrote Check Point auth request")

	f.tracker.Record(&monitoring.FlowEvent{
		Event:     monitoring.EventAuthRequest,
		Flow:      monitoring.FlowCheckpointAuth,
		Session:   session,
		RequestID: monitoring.RequestIDFromContext(req.Context()),
		Host:      req.Host,
		Path:      req.URL.Path,
		Method:    req.Method,
		AutoFetch: autoFetch,
	})
	return body
}

// TransformResponse runs the response-side state machine. It returns the
// replacement body; on any shortfall the upstream bytes come back untouched.
func (f *AuthFlow) TransformResponse(ctx context.Context, session int64, resp *http.Response, rawBody string) string {
	if utils.IsBlank(rawBody) {
		f.skipResponse(ctx, session, "blank body")
		return rawBody
	}

	env, ok := BuildEnvelope(rawBody)
	if !ok {
		f.skipResponse(ctx, session, "no token in upstream response")
		return rawBody
	}

	resp.Header.Set("Content-Type", "application/json")
	f.metrics.RecordResponseTransform(true)

	state, eligible := f.takeState(session, env)
	f.tracker.Record(&monitoring.FlowEvent{
		Event:     monitoring.EventAuthResponse,
		Flow:      monitoring.FlowCheckpointAuth,
		Session:   session,
		RequestID: monitoring.RequestIDFromContext(ctx),
		Status:    resp.StatusCode,
		AutoFetch: eligible,
	})

	if !eligible {
		log.Info().
			Int64("session", session).
			Str("token", utils.MaskKey(env.Token)).
			Msg("Built token envelope")
		return env.Body
	}

	// The response may carry a fresher CSRF than the one captured during the
	// request phase; the side call wants the newest.
	if !utils.IsBlank(env.CSRF) {
		state.CSRF = env.CSRF
	}

	if fetched, ok := f.fetcher.FetchLogs(ctx, session, env.Token, state); ok {
		log.Info().
			Int64("session", session).
			Int("bytes", len(fetched)).
			Msg("Auto-fetch replaced auth response with log payload")
		return fetched
	}

	// Auto-fetch failure is never surfaced; the envelope is always a valid
	// answer for the original caller.
	return env.Body
}

// takeState consumes this exchange's metadata and decides auto-fetch
// eligibility: state present and auth-flavored, both flags set, and a usable
// token in hand.
func (f *AuthFlow) takeState(session int64, env *Envelope) (*AuthState, bool) {
	meta, ok := f.store.Take(session)
	if !ok {
		return nil, false
	}
	f.metrics.RecordStateConsumed()

	state, isAuth := meta.(*AuthState)
	if !isAuth {
		log.Warn().
			Int64("session", session).
			Str("kind", meta.FlowKind()).
			Msg("Flow state kind mismatch, skipping auto-fetch")
		return nil, false
	}
	if !state.AutoFetch || !f.autoFetch || utils.IsBlank(env.Token) {
		return state, false
	}
	return state, true
}

func (f *AuthFlow) skipRequest(session int64, req *http.Request, event string) {
	f.metrics.RecordRequestTransform(monitoring.FlowCheckpointAuth, false)
	log.Warn().
		Int64("session", session).
		Str("event", event).
		Msg("Check Point auth request missing credentials, passing through")
	f.tracker.Record(&monitoring.FlowEvent{
		Event:     event,
		Flow:      monitoring.FlowCheckpointAuth,
		Session:   session,
		RequestID: monitoring.RequestIDFromContext(req.Context()),
		Host:      req.Host,
		Path:      req.URL.Path,
		Method:    req.Method,
	})
}

func (f *AuthFlow) skipResponse(ctx context.Context, session int64, reason string) {
	f.metrics.RecordResponseTransform(false)
	log.Debug().
		Int64("session", session).
		Str("reason", reason).
		Msg("Check Point auth response passed through")
	f.tracker.Record(&monitoring.FlowEvent{
		Event:     monitoring.EventAuthResponseSkipped,
		Flow:      monitoring.FlowCheckpointAuth,
		Session:   session,
		RequestID: monitoring.RequestIDFromContext(ctx),
		Detail:    reason,
	})
}

// autoFetchRequested accepts both flag spellings and both boolean notations:
// auto_fetch=true, autofetch=1, AutoFetch=TRUE all count.
func autoFetchRequested(snap *payload.Snapshot) bool {
	for _, key := range []string{"auto_fetch", "autofetch"} {
		v, ok := snap.Lookup(key)
		if !ok {
			continue
		}
		if parsed, valid := config.ParseBool(v); valid && parsed {
			return true
		}
	}
	return false
}
