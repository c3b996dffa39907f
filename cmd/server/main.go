// Command server starts the text generation horde HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"k8s.io/utils/clock"

	httpserver "github.com/fairyhunter13/textgen-horde/internal/adapter/httpserver"
	"github.com/fairyhunter13/textgen-horde/internal/adapter/observability"
	"github.com/fairyhunter13/textgen-horde/internal/adapter/oracle"
	"github.com/fairyhunter13/textgen-horde/internal/adapter/repo/jsonfile"
	"github.com/fairyhunter13/textgen-horde/internal/adapter/tokencount"
	"github.com/fairyhunter13/textgen-horde/internal/app"
	"github.com/fairyhunter13/textgen-horde/internal/config"
	"github.com/fairyhunter13/textgen-horde/internal/domain"
	hordeobs "github.com/fairyhunter13/textgen-horde/internal/observability"
	"github.com/fairyhunter13/textgen-horde/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Register all Prometheus metrics once per process so that /metrics
	// exposes HTTP, oracle, and horde instrumentation.
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	// Model oracle: the reference table answers first, the Hugging Face
	// Hub covers the rest, and a size parsed from the model id is the
	// final layer.
	ref, err := loadModelReference(cfg)
	if err != nil {
		slog.Error("model reference load failed", slog.String("path", cfg.ModelReferenceFile), slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("model reference loaded", slog.Int("models", ref.Len()))
	layers := oracle.Layered{
		ref,
		oracle.NewHFClient(cfg.HFBaseURL, cfg.HFTimeout, cfg.HFBackoffMaxElapsed),
		oracle.NameSize{},
	}
	instrumented := hordeobs.NewInstrumentedOracle(layers, "layered")

	// Engine with state restored from the last snapshot, if any.
	engine := usecase.NewCoordinator(instrumented, clock.RealClock{}, cfg.AllowAnonymous)
	store := jsonfile.New(cfg.DataDir)
	snap, err := store.Load()
	if err != nil {
		slog.Error("snapshot load failed", slog.String("dir", cfg.DataDir), slog.Any("error", err))
		os.Exit(1)
	}
	convert := domain.ConvertMode(cfg.ConvertMode)
	engine.ImportState(snap, convert)

	// A conversion run rewrites the snapshot under the new unit and exits;
	// the server is then restarted without the flag.
	if convert == domain.ConvertToTokens {
		if err := store.Save(engine.ExportState()); err != nil {
			slog.Error("converted snapshot save failed", slog.Any("error", err))
			os.Exit(1)
		}
		slog.Info("persisted counters converted to tokens, exiting")
		return
	}

	drift := observability.NewThroughputDriftMonitor(cfg.DriftWindow, cfg.DriftThreshold)

	// Readiness checks
	oracleCheck, storeCheck := app.BuildReadinessChecks(instrumented, cfg.DataDir)

	// HTTP server
	srv := httpserver.NewServer(cfg, engine, tokencount.NewCounter(), drift, oracleCheck, storeCheck)
	handler := app.BuildRouter(cfg, srv)

	// Background services: the stale prompt sweeper and the snapshot loop.
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go app.NewStaleSweeper(engine, cfg.ReapInterval).Run(ctx)
	snapDone := make(chan struct{})
	go func() {
		store.RunPeriodic(ctx, engine, cfg.SnapshotInterval)
		close(snapDone)
	}()

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)

	// Stop the background loops after traffic drains; the snapshot loop
	// writes a final snapshot on its way out.
	stop()
	select {
	case <-snapDone:
	case <-time.After(cfg.ServerShutdownTimeout):
		slog.Warn("final snapshot did not complete before timeout")
	}
}

// loadModelReference prefers an operator-supplied file over the table
// bundled with the binary.
func loadModelReference(cfg config.Config) (*oracle.Reference, error) {
	if cfg.ModelReferenceFile != "" {
		return oracle.LoadReference(cfg.ModelReferenceFile)
	}
	return oracle.DefaultReference()
}
