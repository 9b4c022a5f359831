// Package config loads gateway settings from the environment and an optional
// YAML file.
//
// FLOW: built-in defaults -> YAML file (if provided) -> environment variables.
// The environment always wins so a unit file or shell export can pin a value
// without touching a YAML shipped by a package manager.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Options holds everything the gateway needs to run.
type Options struct {
	// ListenAddr is the host:port the proxy listens on.
	ListenAddr string

	// Target endpoints. Matching is by host (case-insensitive, port ignored)
	// and path prefix, so these also define which exchanges get transformed.
	CheckpointAuthURL string
	CheckpointLogURL  string
	GraphTokenURL     string

	// AutoFetch is the global switch for the secondary log call after a
	// successful auth exchange. Individual exchanges still have to request it.
	AutoFetch bool

	// Verbose switches event logging from info to debug granularity.
	Verbose bool

	// TLSIntercept enables man-in-the-middle handling of CONNECT tunnels.
	// When false, HTTPS traffic is tunneled untouched and only plain HTTP
	// exchanges are transformed.
	TLSIntercept bool

	// UpstreamTimeout bounds side-channel calls made on the client's behalf.
	// Clamped to [MinUpstreamTimeout, MaxUpstreamTimeout].
	UpstreamTimeout time.Duration

	// CACertFile and CAKeyFile point at a PEM certificate/key pair used to
	// forge leaf certificates during interception. Empty means the built-in
	// development CA.
	CACertFile string
	CAKeyFile  string

	// EventLogPath is an optional JSONL file appended with one line per
	// transformation event. Empty disables it.
	EventLogPath string

	// AuditDBPath is an optional SQLite database recording transformed
	// exchanges. Empty disables it.
	AuditDBPath string
}

// fileOptions mirrors Options for YAML decoding. Booleans and the timeout are
// pointers so an absent key is distinguishable from an explicit zero value.
type fileOptions struct {
	Listen             string `yaml:"listen"`
	CheckpointAuthURL  string `yaml:"checkpoint_auth_url"`
	CheckpointLogURL   string `yaml:"checkpoint_log_url"`
	GraphTokenURL      string `yaml:"graph_token_url"`
	AutoFetch          *bool  `yaml:"auto_fetch"`
	Verbose            *bool  `yaml:"verbose"`
	TLSIntercept       *bool  `yaml:"tls_intercept"`
	UpstreamTimeoutSec *int   `yaml:"upstream_timeout_seconds"`
	CACert             string `yaml:"ca_cert"`
	CAKey              string `yaml:"ca_key"`
	EventLog           string `yaml:"event_log"`
	AuditDB            string `yaml:"audit_db"`
}

// Defaults returns Options with every field set to its built-in default.
func Defaults() *Options {
	return &Options{
		ListenAddr:        DefaultListenAddr,
		CheckpointAuthURL: DefaultCheckpointAuthURL,
		CheckpointLogURL:  DefaultCheckpointLogURL,
		GraphTokenURL:     DefaultGraphTokenURL,
		AutoFetch:         false,
		Verbose:           false,
		TLSIntercept:      true,
		UpstreamTimeout:   DefaultUpstreamTimeout,
	}
}

// Load builds Options from defaults, an optional YAML file, and the
// environment, then validates the result.
//
// path may be empty; AUTHGATE_CONFIG is consulted as a fallback location.
func Load(path string) (*Options, error) {
	opts := Defaults()

	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		if err := opts.applyFile(path); err != nil {
			return nil, err
		}
	}

	opts.applyEnv()
	opts.clampTimeout()

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

func (o *Options) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var f fileOptions
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if f.Listen != "" {
		o.ListenAddr = f.Listen
	}
	if f.CheckpointAuthURL != "" {
		o.CheckpointAuthURL = f.CheckpointAuthURL
	}
	if f.CheckpointLogURL != "" {
		o.CheckpointLogURL = f.CheckpointLogURL
	}
	if f.GraphTokenURL != "" {
		o.GraphTokenURL = f.GraphTokenURL
	}
	if f.AutoFetch != nil {
		o.AutoFetch = *f.AutoFetch
	}
	if f.Verbose != nil {
		o.Verbose = *f.Verbose
	}
	if f.TLSIntercept != nil {
		o.TLSIntercept = *f.TLSIntercept
	}
	if f.UpstreamTimeoutSec != nil {
		o.UpstreamTimeout = time.Duration(*f.UpstreamTimeoutSec) * time.Second
	}
	if f.CACert != "" {
		o.CACertFile = f.CACert
	}
	if f.CAKey != "" {
		o.CAKeyFile = f.CAKey
	}
	if f.EventLog != "" {
		o.EventLogPath = f.EventLog
	}
	if f.AuditDB != "" {
		o.AuditDBPath = f.AuditDB
	}
	return nil
}

func (o *Options) applyEnv() {
	envString("LISTEN", &o.ListenAddr)
	envString("CHECKPOINT_AUTH_URL", &o.CheckpointAuthURL)
	envString("CHECKPOINT_LOG_URL", &o.CheckpointLogURL)
	envString("GRAPH_TOKEN_URL", &o.GraphTokenURL)
	envBool("AUTO_FETCH", &o.AutoFetch)
	envBool("VERBOSE", &o.Verbose)
	envBool("TLS_INTERCEPT", &o.TLSIntercept)
	envSeconds("UPSTREAM_TIMEOUT_SECONDS", &o.UpstreamTimeout)
	envString("CA_CERT", &o.CACertFile)
	envString("CA_KEY", &o.CAKeyFile)
	envString("EVENT_LOG", &o.EventLogPath)
	envString("AUDIT_DB", &o.AuditDBPath)
}

// clampTimeout forces UpstreamTimeout into its allowed range. Zero and
// negative values mean "unset" and take the default rather than the minimum.
func (o *Options) clampTimeout() {
	switch {
	case o.UpstreamTimeout <= 0:
		o.UpstreamTimeout = DefaultUpstreamTimeout
	case o.UpstreamTimeout < MinUpstreamTimeout:
		log.Warn().
			Dur("requested", o.UpstreamTimeout).
			Dur("clamped", MinUpstreamTimeout).
			Msg("Upstream timeout below minimum, clamping")
		o.UpstreamTimeout = MinUpstreamTimeout
	case o.UpstreamTimeout > MaxUpstreamTimeout:
		log.Warn().
			Dur("requested", o.UpstreamTimeout).
			Dur("clamped", MaxUpstreamTimeout).
			Msg("Upstream timeout above maximum, clamping")
		o.UpstreamTimeout = MaxUpstreamTimeout
	}
}

// Validate checks that the loaded options can actually start a gateway.
func (o *Options) Validate() error {
	if _, _, err := net.SplitHostPort(o.ListenAddr); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", o.ListenAddr, err)
	}

	for name, raw := range map[string]string{
		"checkpoint_auth_url": o.CheckpointAuthURL,
		"checkpoint_log_url":  o.CheckpointLogURL,
		"graph_token_url":     o.GraphTokenURL,
	} {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, raw, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid %s %q: need an absolute http(s) URL", name, raw)
		}
	}

	if (o.CACertFile == "") != (o.CAKeyFile == "") {
		return fmt.Errorf("ca_cert and ca_key must be set together")
	}
	return nil
}

// =============================================================================
// ENVIRONMENT HELPERS
// =============================================================================

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func envBool(key string, dst *bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok {
		return
	}
	parsed, valid := ParseBool(v)
	if !valid {
		log.Warn().Str("var", EnvPrefix+key).Str("value", v).Msg("Ignoring unparseable boolean")
		return
	}
	*dst = parsed
}

func envSeconds(key string, dst *time.Duration) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok {
		return
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		log.Warn().Str("var", EnvPrefix+key).Str("value", v).Msg("Ignoring unparseable seconds value")
		return
	}
	*dst = time.Duration(secs) * time.Second
}

// ParseBool reads the boolean spellings accepted across the gateway: true and
// false, 1 and 0, any letter case. The second return reports whether the
// input was recognized at all.
func ParseBool(raw string) (value bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1":
		return true, true
	case "false", "0":
		return false, true
	}
	return false, false
}
