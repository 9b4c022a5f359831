// Package fetch issues the secondary log call made on the client's behalf
// after a successful auth exchange.
//
// DESIGN: The call happens inside the response phase of an intercepted
// exchange, so it is strictly bounded: a context deadline covers connect,
// request, and body read, and cancellation aborts the call in flight. The
// result is a plain (body, ok) pair — no error ever escapes, because the
// caller's only recovery is falling back to the envelope it already built.
package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/logward/auth-gateway/internal/config"
	"github.com/logward/auth-gateway/internal/flow"
	"github.com/logward/auth-gateway/internal/monitoring"
	"github.com/logward/auth-gateway/internal/payload"
	"github.com/logward/auth-gateway/internal/utils"
)

// Client fetches logs from the configured Check Point log endpoint.
type Client struct {
	logURL     *url.URL
	httpClient *http.Client
	timeout    time.Duration
	tracker    *monitoring.Tracker
	metrics    *monitoring.MetricsCollector
}

var _ flow.LogFetcher = (*Client)(nil)

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithTimeout bounds each fetch, connect through body read.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(client *Client) {
		client.timeout = timeout
	}
}

// NewClient creates a log fetch client for the given endpoint.
func NewClient(logURL *url.URL, tracker *monitoring.Tracker, metrics *monitoring.MetricsCollector, opts ...ClientOption) *Client {
	c := &Client{
		logURL:     logURL,
		httpClient: &http.Client{},
		timeout:    config.DefaultUpstreamTimeout,
		tracker:    tracker,
		metrics:    metrics,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchLogs performs the bounded log call. Method selection follows the
// stored metadata: a sanitized body means POST with JSON, otherwise GET with
// the sanitized query appended to the endpoint URL.
func (c *Client) FetchLogs(ctx context.Context, session int64, token string, state *flow.AuthState) (string, bool) {
	u := *c.logURL
	if state.Query.Len() > 0 {
		extra := payload.EncodeQuery(state.Query)
		if u.RawQuery != "" {
			u.RawQuery += "&" + extra
		} else {
			u.RawQuery = extra
		}
	}

	method := http.MethodGet
	var bodyReader io.Reader
	if state.Body.Len() > 0 {
		method = http.MethodPost
		bodyReader = strings.NewReader(payload.EncodeJSON(state.Body))
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return c.fail(ctx, session, 0, err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if !utils.IsBlank(state.CSRF) {
		req.Header.Set("x-av-req-id", state.CSRF)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	log.Debug().
		Int64("session", session).
		Str("method", method).
		Str("url", u.Redacted()).
		Msg("Auto-fetching logs")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.fail(ctx, session, 0, err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, config.MaxBodyBytes))
	if err != nil {
		return c.fail(ctx, session, resp.StatusCode, err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.fail(ctx, session, resp.StatusCode, utils.Truncate(string(raw), config.MaxErrorBodyLogLen))
	}

	c.metrics.RecordAutoFetch(true)
	c.tracker.Record(&monitoring.FlowEvent{
		Event:     monitoring.EventAutoFetch,
		Flow:      monitoring.FlowCheckpointAuth,
		Session:   session,
		RequestID: monitoring.RequestIDFromContext(ctx),
		Method:    method,
		Status:    resp.StatusCode,
	})
	log.Info().
		Int64("session", session).
		Int("status", resp.StatusCode).
		Int("bytes", len(raw)).
		Msg("Auto-fetch succeeded")

	return string(raw), true
}

func (c *Client) fail(ctx context.Context, session int64, status int, detail string) (string, bool) {
	c.metrics.RecordAutoFetch(false)
	c.tracker.Record(&monitoring.FlowEvent{
		Event:     monitoring.EventAutoFetchFailed,
		Flow:      monitoring.FlowCheckpointAuth,
		Session:   session,
		RequestID: monitoring.RequestIDFromContext(ctx),
		Status:    status,
		Detail:    utils.Truncate(detail, config.MaxErrorBodyLogLen),
	})
	log.Warn().
		Int64("session", session).
		Int("status", status).
		Str("detail", utils.Truncate(detail, config.MaxErrorBodyLogLen)).
		Msg("Auto-fetch failed, falling back to token envelope")
	return "", false
}
