package fetch

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logward/auth-gateway/internal/flow"
	"github.com/logward/auth-gateway/internal/monitoring"
	"github.com/logward/auth-gateway/internal/payload"
)

func newTestClient(t *testing.T, rawURL string, opts ...ClientOption) *Client {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	tracker, err := monitoring.NewTracker("", "test")
	require.NoError(t, err)
	return NewClient(u, tracker, monitoring.NewMetricsCollector(), opts...)
}

func emptyState() *flow.AuthState {
	return &flow.AuthState{Query: payload.NewParams(), Body: payload.NewParams()}
}

func TestFetchLogsGet(t *testing.T) {
	var gotMethod, gotAuth, gotCSRF, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotAuth = r.Header.Get("Authorization")
		gotCSRF = r.Header.Get("x-av-req-id")
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"records":[]}`))
	}))
	defer server.Close()

	state := emptyState()
	state.CSRF = "C1"
	state.Query.Add("limit", "5")
	state.Query.Add("timeframe", "last24h")

	c := newTestClient(t, server.URL+"/app/laas-logs-api/api/logs_query")
	body, ok := c.FetchLogs(context.Background(), 1, "T1", state)

	require.True(t, ok)
	assert.Equal(t, `{"records":[]}`, body)
	assert.Equal(t, http.MethodGet, gotMethod)
	assert.Equal(t, "Bearer T1", gotAuth)
	assert.Equal(t, "C1", gotCSRF)
	assert.Equal(t, "limit=5&timeframe=last24h", gotQuery)
}

func TestFetchLogsPost(t *testing.T) {
	var gotMethod, gotContentType, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	state := emptyState()
	state.Body.Add("timeframe", "last24h")
	state.Body.Add("limit", "50")

	c := newTestClient(t, server.URL+"/logs")
	body, ok := c.FetchLogs(context.Background(), 1, "T1", state)

	require.True(t, ok)
	assert.Equal(t, "ok", body)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, `{"timeframe":"last24h","limit":"50"}`, gotBody)
}

func TestFetchLogsAppendsToExistingQuery(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	state := emptyState()
	state.Query.Add("limit", "5")

	c := newTestClient(t, server.URL+"/logs?tenant=acme")
	_, ok := c.FetchLogs(context.Background(), 1, "T1", state)

	require.True(t, ok)
	assert.Equal(t, "tenant=acme&limit=5", gotQuery)
}

func TestFetchLogsNoCSRFHeaderWhenBlank(t *testing.T) {
	var csrfPresent bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, csrfPresent = r.Header["X-Av-Req-Id"]
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	_, ok := c.FetchLogs(context.Background(), 1, "T1", emptyState())

	require.True(t, ok)
	assert.False(t, csrfPresent)
}

func TestFetchLogsNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("upstream exploded"))
	}))
	defer server.Close()

	eventLog := filepath.Join(t.TempDir(), "events.jsonl")
	tracker, err := monitoring.NewTracker(eventLog, "test")
	require.NoError(t, err)
	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	c := NewClient(u, tracker, monitoring.NewMetricsCollector())

	body, ok := c.FetchLogs(context.Background(), 7, "T1", emptyState())

	assert.False(t, ok)
	assert.Empty(t, body)

	// The failure event carries the status and the upstream body.
	f, err := os.Open(eventLog)
	require.NoError(t, err)
	defer f.Close()
	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan(), "expected one event line")
	var event map[string]any
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &event))
	assert.Equal(t, monitoring.EventAutoFetchFailed, event["event"])
	assert.Equal(t, float64(500), event["status"])
	assert.Equal(t, "upstream exploded", event["detail"])
	assert.Equal(t, float64(7), event["session"])
}

func TestFetchLogsTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	c := newTestClient(t, server.URL, WithTimeout(50*time.Millisecond))

	start := time.Now()
	body, ok := c.FetchLogs(context.Background(), 1, "T1", emptyState())
	elapsed := time.Since(start)

	assert.False(t, ok)
	assert.Empty(t, body)
	assert.Less(t, elapsed, 2*time.Second, "timeout must abort the call")
}

func TestFetchLogsParentCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	c := newTestClient(t, server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, ok := c.FetchLogs(ctx, 1, "T1", emptyState())
	assert.False(t, ok)
}

func TestFetchLogsTransportError(t *testing.T) {
	// Nothing listens here.
	c := newTestClient(t, "http://127.0.0.1:1", WithTimeout(time.Second))

	body, ok := c.FetchLogs(context.Background(), 1, "T1", emptyState())
	assert.False(t, ok)
	assert.Empty(t, body)
}
