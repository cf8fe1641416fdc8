package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/pitchlens/scoutcore/internal/app"
	"github.com/pitchlens/scoutcore/internal/config"
	"github.com/pitchlens/scoutcore/internal/observability"
	"github.com/pitchlens/scoutcore/internal/platform/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	logger := logging.NewJSON(zapLevel(cfg.LogLevel))
	logging.SetDefault(logger)
	defer func() {
		_ = logger.Sync()
	}()

	shutdownUptrace, err := observability.InitUptrace(cfg, logger)
	if err != nil {
		slogger.Error("init uptrace", "error", err)
		os.Exit(1)
	}
	stopPyroscope, err := observability.InitPyroscope(cfg, slogger)
	if err != nil {
		slogger.Error("init pyroscope", "error", err)
		os.Exit(1)
	}
	pprofSrv, err := observability.StartPprofServer(cfg, slogger)
	if err != nil {
		slogger.Error("start pprof", "error", err)
		os.Exit(1)
	}

	srv, cleanup, err := app.NewHTTPServer(cfg, logger)
	if err != nil {
		slogger.Error("build app", "error", err)
		os.Exit(1)
	}

	var wg conc.WaitGroup
	wg.Go(func() {
		slogger.Info("http server starting", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slogger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slogger.Error("graceful shutdown failed", "error", err)
	}
	wg.Wait()

	if err := observability.StopPprofServer(pprofSrv, slogger, 5*time.Second); err != nil {
		slogger.Error("stop pprof", "error", err)
	}
	if err := stopPyroscope(); err != nil {
		slogger.Error("stop pyroscope", "error", err)
	}
	if err := shutdownUptrace(shutdownCtx); err != nil {
		slogger.Error("shutdown uptrace", "error", err)
	}
	if err := cleanup(); err != nil {
		slogger.Error("close store", "error", err)
	}

	slogger.Info("http server stopped")
}

func zapLevel(level slog.Level) logging.Level {
	switch {
	case level <= slog.LevelDebug:
		return logging.LevelDebug
	case level <= slog.LevelInfo:
		return logging.LevelInfo
	case level <= slog.LevelWarn:
		return logging.LevelWarn
	default:
		return logging.LevelError
	}
}
