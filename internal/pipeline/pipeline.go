// Package pipeline routes intercepted exchanges to their flow transforms.
//
// DESIGN: The interception layer hands over raw request/response pairs with
// an opaque session identifier; everything protocol-aware happens here.
// Targets are evaluated in a fixed priority order (checkpoint-auth,
// checkpoint-log, graph-token) so overlapping configurations resolve
// deterministically. Exchanges matching nothing pass through untouched.
//
// FLOW: raw request -> payload.Parse -> endpoint match -> flow transform ->
// (upstream) -> raw response -> auth response transform when the exchange
// was auth-bound.
package pipeline

import (
	"context"
	"net/http"

	"github.com/logward/auth-gateway/internal/config"
	"github.com/logward/auth-gateway/internal/fetch"
	"github.com/logward/auth-gateway/internal/flow"
	"github.com/logward/auth-gateway/internal/flowstate"
	"github.com/logward/auth-gateway/internal/monitoring"
	"github.com/logward/auth-gateway/internal/payload"
	"github.com/logward/auth-gateway/internal/target"
)

// Pipeline owns the flow transforms and the state store binding the two
// phases of an exchange together.
type Pipeline struct {
	authEndpoint  *target.Endpoint
	logEndpoint   *target.Endpoint
	graphEndpoint *target.Endpoint

	auth  *flow.AuthFlow
	logs  *flow.LogFlow
	graph *flow.GraphFlow

	store   *flowstate.Store
	metrics *monitoring.MetricsCollector
}

// New builds the pipeline from validated options.
func New(opts *config.Options, tracker *monitoring.Tracker, metrics *monitoring.MetricsCollector) (*Pipeline, error) {
	authEP, err := target.ParseEndpoint(opts.CheckpointAuthURL)
	if err != nil {
		return nil, err
	}
	logEP, err := target.ParseEndpoint(opts.CheckpointLogURL)
	if err != nil {
		return nil, err
	}
	graphEP, err := target.ParseEndpoint(opts.GraphTokenURL)
	if err != nil {
		return nil, err
	}

	store := flowstate.NewStore(config.DefaultStateTTL, config.DefaultStateSweepInterval)
	fetcher := fetch.NewClient(logEP.URL, tracker, metrics, fetch.WithTimeout(opts.UpstreamTimeout))

	return &Pipeline{
		authEndpoint:  authEP,
		logEndpoint:   logEP,
		graphEndpoint: graphEP,
		auth:          flow.NewAuthFlow(store, fetcher, opts.AutoFetch, tracker, metrics),
		logs:          flow.NewLogFlow(tracker, metrics),
		graph:         flow.NewGraphFlow(tracker, metrics),
		store:         store,
		metrics:       metrics,
	}, nil
}

// MatchesHost reports whether an authority belongs to any configured
// target. The interception layer uses this to decide which CONNECT tunnels
// are worth opening.
func (p *Pipeline) MatchesHost(authority string) bool {
	return p.authEndpoint.MatchesHost(authority) ||
		p.logEndpoint.MatchesHost(authority) ||
		p.graphEndpoint.MatchesHost(authority)
}

// MatchesRequest reports whether the request is aimed at any target host.
// Callers use this to skip body buffering for unrelated traffic.
func (p *Pipeline) MatchesRequest(req *http.Request) bool {
	return p.MatchesHost(requestAuthority(req))
}

// TransformRequest routes a request-phase exchange. It returns the
// replacement body (possibly the unchanged raw body) and which flow claimed
// the exchange; FlowUnknown means no target matched and nothing was touched.
func (p *Pipeline) TransformRequest(session int64, req *http.Request, rawBody string) (string, monitoring.FlowKind) {
	authority := requestAuthority(req)
	path := req.URL.Path

	var kind monitoring.FlowKind
	switch {
	case p.authEndpoint.Matches(authority, path):
		kind = monitoring.FlowCheckpointAuth
	case p.logEndpoint.Matches(authority, path):
		kind = monitoring.FlowCheckpointLog
	case p.graphEndpoint.Matches(authority, path):
		kind = monitoring.FlowGraphToken
	default:
		return rawBody, monitoring.FlowUnknown
	}

	p.metrics.RecordIntercepted()
	snap := payload.Parse(rawBody, req.URL.RequestURI())

	switch kind {
	case monitoring.FlowCheckpointAuth:
		return p.auth.TransformRequest(session, req, snap), kind
	case monitoring.FlowCheckpointLog:
		return p.logs.TransformRequest(session, req, snap), kind
	default:
		return p.graph.TransformRequest(session, req, snap), kind
	}
}

// TransformResponse routes a response-phase exchange. Only auth-bound
// exchanges have a response transform; everything else comes back unchanged
// with replaced=false.
func (p *Pipeline) TransformResponse(ctx context.Context, session int64, req *http.Request, resp *http.Response, rawBody string) (body string, replaced bool) {
	if req == nil || !p.authEndpoint.Matches(requestAuthority(req), req.URL.Path) {
		return rawBody, false
	}
	out := p.auth.TransformResponse(ctx, session, resp, rawBody)
	return out, out != rawBody
}

// StateOrphansSwept exposes the store's eviction counter for stats.
func (p *Pipeline) StateOrphansSwept() int64 {
	return p.store.Swept()
}

// Close releases the background resources (the state sweeper).
func (p *Pipeline) Close() {
	p.store.Close()
}

// requestAuthority prefers the Host header field, which is what the
// interception layer preserves for proxied requests.
func requestAuthority(req *http.Request) string {
	if req.Host != "" {
		return req.Host
	}
	return req.URL.Host
}
