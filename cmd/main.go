package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/logward/auth-gateway/internal/config"
	"github.com/logward/auth-gateway/internal/monitoring"
	"github.com/logward/auth-gateway/internal/pipeline"
	"github.com/logward/auth-gateway/internal/proxy"
)

// main wires the gateway: configuration, telemetry, the transform pipeline,
// and the intercepting proxy, then runs until a shutdown signal.
func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to YAML config file")
	listen := flag.String("listen", "", "listen address override (host:port)")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	setupLogging(*verbose)

	opts, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *verbose {
		opts.Verbose = true
	}
	if *listen != "" {
		opts.ListenAddr = *listen
	}
	if err := opts.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if opts.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	runID := uuid.New().String()

	tracker, err := monitoring.NewTracker(opts.EventLogPath, runID)
	if err != nil {
		// Telemetry trouble never blocks the gateway.
		log.Warn().Err(err).Str("path", opts.EventLogPath).
			Msg("Event log unavailable, continuing without it")
		tracker, _ = monitoring.NewTracker("", runID)
	}

	var history *monitoring.History
	if opts.AuditDBPath != "" {
		history, err = monitoring.OpenHistory(opts.AuditDBPath, runID)
		if err != nil {
			log.Warn().Err(err).Str("path", opts.AuditDBPath).
				Msg("Audit database unavailable, continuing without it")
		} else {
			tracker.AttachHistory(history)
		}
	}

	metrics := monitoring.NewMetricsCollector()

	pl, err := pipeline.New(opts, tracker, metrics)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build transform pipeline")
	}

	srv, err := proxy.New(opts, pl, metrics)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build proxy server")
	}

	tracker.RecordStart(&monitoring.StartEvent{
		Listen:       opts.ListenAddr,
		TLSIntercept: opts.TLSIntercept,
		AutoFetch:    opts.AutoFetch,
		Targets: []string{
			opts.CheckpointAuthURL,
			opts.CheckpointLogURL,
			opts.GraphTokenURL,
		},
		UpstreamTimeoutMs: opts.UpstreamTimeout.Milliseconds(),
	})
	log.Info().
		Str("run_id", runID).
		Str("listen", opts.ListenAddr).
		Bool("tls_intercept", opts.TLSIntercept).
		Bool("auto_fetch", opts.AutoFetch).
		Msg("Auth gateway starting")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("Proxy server failed")
		}
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Shutdown did not drain cleanly")
		}
	}

	pl.Close()
	tracker.Close()
	if history != nil {
		_ = history.Close()
	}
}
