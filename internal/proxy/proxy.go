// Forward proxy and TLS interception layer.
//
// DESIGN: Exchange flow through the proxy:
//   - handleConnect():  decide per CONNECT whether to open the tunnel (pass
//     the bytes through untouched) or man-in-the-middle it
//   - onRequest():      buffer the body of target-bound requests and hand the
//     exchange to the pipeline
//   - onResponse():     same for the response phase of the same exchange
//
// Only exchanges aimed at a configured target host are ever buffered; all
// other traffic streams through. goproxy assigns each exchange a session
// number that request and response handlers share, which is what ties the
// two pipeline phases together.
package proxy

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/elazarl/goproxy"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/logward/auth-gateway/internal/config"
	"github.com/logward/auth-gateway/internal/monitoring"
	"github.com/logward/auth-gateway/internal/pipeline"
)

// HeaderRequestID carries a caller-chosen request ID; one is generated when
// the header is absent.
const HeaderRequestID = "X-Request-Id"

// Server hosts the intercepting proxy and its local HTTP endpoints.
type Server struct {
	proxy      *goproxy.ProxyHttpServer
	httpServer *http.Server
	pipeline   *pipeline.Pipeline
	metrics    *monitoring.MetricsCollector
	opts       *config.Options
	mitm       *goproxy.ConnectAction
}

// New builds the proxy server around an already-wired pipeline.
func New(opts *config.Options, pl *pipeline.Pipeline, metrics *monitoring.MetricsCollector) (*Server, error) {
	ca, err := loadCA(opts.CACertFile, opts.CAKeyFile)
	if err != nil {
		return nil, err
	}

	s := &Server{
		pipeline: pl,
		metrics:  metrics,
		opts:     opts,
		mitm: &goproxy.ConnectAction{
			Action:    goproxy.ConnectMitm,
			TLSConfig: goproxy.TLSConfigFromCA(ca),
		},
	}

	p := goproxy.NewProxyHttpServer()
	p.Verbose = opts.Verbose
	p.Logger = proxyLogger{}
	p.NonproxyHandler = s.localMux()
	p.OnRequest().HandleConnectFunc(s.handleConnect)
	p.OnRequest().DoFunc(s.onRequest)
	p.OnResponse().DoFunc(s.onResponse)

	s.proxy = p
	s.httpServer = &http.Server{Addr: opts.ListenAddr, Handler: p}
	return s, nil
}

// Start blocks serving the proxy until Shutdown.
func (s *Server) Start() error {
	log.Info().
		Str("listen", s.opts.ListenAddr).
		Bool("tls_intercept", s.opts.TLSIntercept).
		Msg("Proxy listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the proxy handler, mainly so tests can mount it on their
// own listener.
func (s *Server) Handler() http.Handler {
	return s.proxy
}

// handleConnect picks the CONNECT treatment: target hosts get intercepted
// when interception is on, everything else is tunneled untouched.
func (s *Server) handleConnect(host string, ctx *goproxy.ProxyCtx) (*goproxy.ConnectAction, string) {
	if s.opts.TLSIntercept && s.pipeline.MatchesHost(host) {
		log.Debug().
			Int64("session", ctx.Session).
			Str("host", host).
			Msg("Intercepting TLS for target host")
		return s.mitm, host
	}
	return goproxy.OkConnect, host
}

func (s *Server) onRequest(req *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
	if req == nil || !s.pipeline.MatchesRequest(req) {
		return req, nil
	}

	reqID := req.Header.Get(HeaderRequestID)
	if reqID == "" {
		reqID = uuid.New().String()
	}
	ctx.UserData = reqID
	req = req.WithContext(monitoring.WithRequestID(req.Context(), reqID))

	// Transforms need plaintext bodies. Without the client's preference the
	// transport negotiates gzip itself and undoes it before we see the
	// response.
	req.Header.Del("Accept-Encoding")

	raw, overflow, err := readCapped(req.Body)
	if err != nil {
		log.Warn().
			Int64("session", ctx.Session).
			Err(err).
			Msg("Request body read failed, passing through")
		req.Body = io.NopCloser(bytes.NewReader(raw))
		req.ContentLength = int64(len(raw))
		return req, nil
	}
	if overflow {
		log.Warn().
			Int64("session", ctx.Session).
			Str("host", req.Host).
			Msg("Request body exceeds transform cap, passing through")
		req.Body = io.NopCloser(io.MultiReader(bytes.NewReader(raw), req.Body))
		return req, nil
	}
	if req.Body != nil {
		_ = req.Body.Close()
	}

	body, _ := s.pipeline.TransformRequest(ctx.Session, req, string(raw))
	req.Body = io.NopCloser(strings.NewReader(body))
	req.ContentLength = int64(len(body))
	return req, nil
}

func (s *Server) onResponse(resp *http.Response, ctx *goproxy.ProxyCtx) *http.Response {
	if resp == nil || ctx.Req == nil || !s.pipeline.MatchesRequest(ctx.Req) {
		return resp
	}

	rctx := ctx.Req.Context()
	if reqID, ok := ctx.UserData.(string); ok {
		rctx = monitoring.WithRequestID(rctx, reqID)
	}

	raw, overflow, err := readCapped(resp.Body)
	if err != nil {
		log.Warn().
			Int64("session", ctx.Session).
			Err(err).
			Msg("Response body read failed, passing through")
		if resp.Body != nil {
			_ = resp.Body.Close()
		}
		resp.Body = io.NopCloser(bytes.NewReader(raw))
		setResponseLength(resp, len(raw))
		return resp
	}
	if overflow {
		log.Warn().
			Int64("session", ctx.Session).
			Msg("Response body exceeds transform cap, passing through")
		resp.Body = io.NopCloser(io.MultiReader(bytes.NewReader(raw), resp.Body))
		return resp
	}
	if resp.Body != nil {
		_ = resp.Body.Close()
	}

	body, _ := s.pipeline.TransformResponse(rctx, ctx.Session, ctx.Req, resp, string(raw))
	resp.Body = io.NopCloser(strings.NewReader(body))
	setResponseLength(resp, len(body))
	return resp
}

// readCapped drains up to the transform cap. overflow means the body was
// larger than the cap; the returned bytes hold everything already pulled off
// the wire (so the caller can splice them back) and the reader owns the rest.
func readCapped(rc io.ReadCloser) (body []byte, overflow bool, err error) {
	if rc == nil {
		return nil, false, nil
	}
	buf, err := io.ReadAll(io.LimitReader(rc, config.MaxBodyBytes+1))
	if err != nil {
		return buf, false, err
	}
	if int64(len(buf)) > config.MaxBodyBytes {
		return buf, true, nil
	}
	return buf, false, nil
}

func setResponseLength(resp *http.Response, n int) {
	resp.ContentLength = int64(n)
	resp.Header.Set("Content-Length", strconv.Itoa(n))
}

// loadCA returns the interception CA: the configured keypair, or goproxy's
// bundled one when none is configured.
func loadCA(certFile, keyFile string) (*tls.Certificate, error) {
	if certFile == "" && keyFile == "" {
		return &goproxy.GoproxyCa, nil
	}
	ca, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load CA keypair: %w", err)
	}
	if ca.Leaf, err = x509.ParseCertificate(ca.Certificate[0]); err != nil {
		return nil, fmt.Errorf("failed to parse CA certificate: %w", err)
	}
	return &ca, nil
}

// proxyLogger routes goproxy's internal chatter to zerolog at debug level.
type proxyLogger struct{}

func (proxyLogger) Printf(format string, v ...interface{}) {
	log.Debug().Msgf(strings.TrimSpace(format), v...)
}
