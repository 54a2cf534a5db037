package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/pitwall/internal/adapters/artifact"
	"github.com/okian/pitwall/internal/adapters/http/api"
	"github.com/okian/pitwall/internal/adapters/provider"
	"github.com/okian/pitwall/internal/adapters/repository"
	service "github.com/okian/pitwall/internal/app"
	"github.com/okian/pitwall/internal/config"
	"github.com/okian/pitwall/internal/domain/layout"
	"github.com/okian/pitwall/internal/domain/retry"
	"github.com/okian/pitwall/pkg/logger"
	"github.com/okian/pitwall/pkg/metrics"
)

// HTTP server timeout constants for the optional ops listener.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

type envOptions struct {
	runLog bool // tee logs into logs/run_<ts>.log
	stdout io.Writer
}

// env is everything a command needs: layout, ledger and logger. It owns the
// run log file and the metrics listener.
type env struct {
	cfg     *config.Config
	layout  layout.Layout
	ledger  *repository.SQLiteStore
	log     logger.Logger
	started time.Time
	cutoff  time.Time

	logFile *os.File
	srv     *http.Server
}

func openEnv(ctx context.Context, cfg *config.Config, opts envOptions) (*env, error) {
	started := time.Now()
	cutoff, err := cfg.CutoffTime(started)
	if err != nil {
		return nil, wrapExit(exitConfig, "invalid cutoff", err)
	}
	e := &env{
		cfg:     cfg,
		layout:  layout.New(cfg.OutputDir, cfg.CacheDir, cfg.Season),
		started: started,
		cutoff:  cutoff,
	}

	if opts.runLog {
		path := e.layout.RunLog(started)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, wrapExit(exitConfig, "cannot create log directory", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, wrapExit(exitConfig, "cannot open run log", err)
		}
		e.logFile = f
		out := opts.stdout
		if out == nil {
			out = os.Stdout
		}
		if err := logger.InitWithWriter(io.MultiWriter(out, f)); err != nil {
			_ = f.Close()
			return nil, err
		}
		// InitWithWriter resets the level.
		_ = logger.SetLevelString(cfg.LogLevel)
	}
	e.log = logger.Named("pitwall")

	ledgerPath := cfg.LedgerPath
	if ledgerPath == "" {
		ledgerPath = e.layout.Ledger()
	}
	ledger, err := repository.OpenSQLite(ctx, ledgerPath)
	if err != nil {
		e.close(ctx)
		return nil, wrapExit(exitConfig, "cannot open ledger", err)
	}
	e.ledger = ledger
	if opts.runLog {
		e.log.Info(ctx, "run log opened", logger.String("path", e.logFile.Name()), logger.String("ledger", ledgerPath))
	}
	return e, nil
}

// service wires the provider client, retry policy and stores into a Service.
func (e *env) service() *service.Service {
	cfg := e.cfg
	client := provider.NewClient(e.layout,
		provider.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		provider.WithOpenF1URL(cfg.OpenF1BaseURL),
		provider.WithJolpicaURL(cfg.JolpicaBaseURL),
		provider.WithLogger(e.log.Named("provider")),
	)
	policy := retry.New(
		retry.WithMaxAttempts(cfg.MaxAttempts),
		retry.WithBackoffStep(cfg.BackoffStep),
		retry.WithCallDelay(cfg.CallDelay),
		retry.WithLogger(e.log.Named("retry")),
	)
	return service.New(e.layout, client, artifact.NewCSVStore(),
		service.WithLedger(e.ledger),
		service.WithRetryPolicy(policy),
		service.WithLogger(e.log.Named("fetch")),
		service.WithCutoff(e.cutoff),
		service.WithMode(cfg.Mode()),
	)
}

// serveOps exposes /metrics, /healthz and /status for the life of the run
// when configured.
func (e *env) serveOps(ctx context.Context, status api.StatusProvider) {
	if e.cfg.MetricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	api.NewServer(status).Register(mux)
	e.srv = &http.Server{
		Addr:              e.cfg.MetricsAddr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	go func() {
		e.log.Info(ctx, "starting ops server", logger.String("addr", e.cfg.MetricsAddr))
		if err := e.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.log.Warn(ctx, "ops server failed", logger.Error(err))
		}
	}()
}

// writeMetrics leaves a textfile snapshot next to the run log.
func (e *env) writeMetrics(ctx context.Context) {
	path := e.layout.MetricsFile(e.started)
	if err := metrics.WriteTextfile(path); err != nil {
		e.log.Warn(ctx, "failed to write metrics snapshot", logger.String("path", path), logger.Error(err))
		return
	}
	e.log.Debug(ctx, "metrics snapshot written", logger.String("path", path))
}

func (e *env) close(ctx context.Context) {
	if e.srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		if err := e.srv.Shutdown(shutdownCtx); err != nil {
			e.log.Warn(ctx, "ops server shutdown failed", logger.Error(err))
		}
		cancel()
	}
	if e.ledger != nil {
		if err := e.ledger.Close(); err != nil {
			e.log.Warn(ctx, "ledger close failed", logger.Error(err))
		}
	}
	if e.logFile != nil {
		// Point the global logger back at stdout before the file goes away.
		_ = logger.Init()
		_ = logger.SetLevelString(e.cfg.LogLevel)
		if err := e.logFile.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "close run log: %v\n", err)
		}
	}
}
