package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"

	"github.com/jkaninda/mlinzi/internal/audit"
	"github.com/jkaninda/mlinzi/internal/config"
	"github.com/jkaninda/mlinzi/internal/diag"
	"github.com/jkaninda/mlinzi/internal/mcpserver"
	"github.com/jkaninda/mlinzi/internal/observability"
	"github.com/jkaninda/mlinzi/internal/opcli"
	"github.com/jkaninda/mlinzi/internal/secrets"
	"github.com/jkaninda/mlinzi/internal/vault"
)

var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP broker on stdio",
	RunE:  runServe,
}

func init() {
	// Register the flag on both root and serve so that
	// `mlinzi --config path` and `mlinzi serve --config path` both work.
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&serveConfigPath, "config", config.DefaultConfigPath(), "path to config file")
	}
}

// runServe starts the broker: op runner, audit trail, observability,
// diagnostics server, and the MCP stdio transport.
//
// stdout belongs to the MCP transport, so every log line goes to stderr.
func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(goutils.Env("MLINZI_CONFIG", serveConfigPath))
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log)
	logger.Info("starting", slog.String("version", version))

	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return fmt.Errorf("creating data directory %s: %w", cfg.DataDir, err)
	}

	// Service-account token. Resolved once at startup and handed only to
	// the op runner; it never appears in config structs, logs, or argv.
	tokenRef := cfg.Op.TokenRef
	if tokenRef == "" {
		tokenRef = secrets.DefaultTokenRef
	}
	secret, err := secrets.Default().Resolve(context.Background(), tokenRef)
	if err != nil {
		return fmt.Errorf("resolving service-account token: %w", err)
	}
	logger.Debug("token resolved", slog.String("source", secret.Metadata["source"]))

	// Observability.
	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return fmt.Errorf("initializing observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		obs.Shutdown(shutdownCtx)
	}()

	// Audit trail: JSONL log plus optional SQLite history.
	trail, closeTrail, err := buildTrail(cfg, obs, logger)
	if err != nil {
		return err
	}
	defer closeTrail()

	// op runner.
	var run opcli.Invoker = opcli.NewRunner(opcli.Config{
		Executable: cfg.Op.Path,
		Timeout:    cfg.OpTimeout(),
	}, secret.Value, logger)

	if obs != nil && (obs.Metrics != nil || obs.Tracer != nil || obs.Anomaly != nil) {
		run = observability.NewInstrumentedInvoker(run, obs.Metrics, obs.TracerOrNil(), obs.Anomaly)
	}

	session := vault.NewSession()
	broker := vault.NewBroker(run, session, trail, logger)

	if obs != nil && obs.Metrics != nil {
		obs.Metrics.RegisterUnlockedItemsGauge(session.Count)
	}

	// Readiness: op must be runnable and the token accepted.
	if obs != nil && obs.Health != nil {
		obs.Health.AddCheck("op", func(ctx context.Context) error {
			_, err := run.Run(ctx, "whoami")
			return err
		})
	}

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Diagnostics server (optional, loopback by default).
	var diagServer *diag.Server
	if cfg.Diagnostics != nil && cfg.Diagnostics.Enabled {
		diagCfg := diag.Config{Addr: cfg.Diagnostics.Addr}
		if obs != nil {
			diagCfg.HealthChecker = obs.Health
			diagCfg.Metrics = obs.Metrics
			if obs.Metrics != nil {
				diagCfg.MetricsRegistry = obs.Metrics.Registry
			}
			if obs.Tracer != nil {
				diagCfg.Tracer = obs.Tracer.Tracer()
			}
		}
		diagServer = diag.NewServer(diagCfg, logger)
		go func() {
			if err := diagServer.Start(ctx); err != nil {
				logger.Error("diagnostics server exited", slog.String("error", err.Error()))
			}
		}()
	}

	// MCP stdio server. Blocks until stdin closes or a signal arrives.
	srv := mcpserver.New(broker, version, logger)
	errs := make(chan error, 1)
	go func() {
		errs <- srv.Serve()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errs:
		if err != nil {
			logger.Error("mcp server exited with error", slog.String("error", err.Error()))
		}
	}

	if diagServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := diagServer.Stop(shutdownCtx); err != nil {
			logger.Error("stopping diagnostics server", slog.String("error", err.Error()))
		}
	}

	logger.Info("stopped",
		slog.Int("session_unlocks", session.Count()),
	)
	return nil
}

// buildTrail assembles the audit recorder chain from config. Returns a nil
// recorder when auditing is disabled.
func buildTrail(cfg *config.Config, obs *observability.Observability, logger *slog.Logger) (audit.Recorder, func(), error) {
	if cfg.Audit.Disable {
		logger.Warn("audit trail disabled by config")
		return nil, func() {}, nil
	}

	var recorders audit.Multi
	var closers []func()

	if cfg.Audit.LogPath != "" {
		jsonl, err := audit.NewLogger(cfg.Audit.LogPath, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("opening audit log: %w", err)
		}
		recorders = append(recorders, jsonl)
		closers = append(closers, func() {
			if err := jsonl.Close(); err != nil {
				logger.Error("closing audit log", slog.String("error", err.Error()))
			}
		})
		logger.Debug("audit log opened", slog.String("path", cfg.Audit.LogPath))
	}

	if cfg.Audit.DBPath != "" {
		store, err := audit.OpenStore(cfg.Audit.DBPath, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("opening audit store: %w", err)
		}
		recorders = append(recorders, store)
		closers = append(closers, func() {
			if err := store.Close(); err != nil {
				logger.Error("closing audit store", slog.String("error", err.Error()))
			}
		})
	}

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if len(recorders) == 0 {
		return nil, closeAll, nil
	}

	var trail audit.Recorder = recorders
	if obs != nil && obs.Metrics != nil {
		trail = observability.NewInstrumentedRecorder(trail, obs.Metrics)
	}
	return trail, closeAll, nil
}

// newLogger builds the slog logger from config, writing to stderr.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
