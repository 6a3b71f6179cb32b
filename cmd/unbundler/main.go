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

	"github.com/Lllllllleong/unbundler/internal/gcp"
	"github.com/Lllllllleong/unbundler/internal/services"
)

func main() {
	// --- Set up structured logging ---
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	slog.Info("Entering main routine for unbundler.")

	if err := run(); err != nil {
		slog.Error("Unbundler terminated.", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := services.ConfigFromEnv(gcp.GetEnv)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	// SIGINT/SIGTERM stop polling; the in-flight batch still completes.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	unbundler, err := services.NewUnbundler(ctx, cfg)
	if err != nil {
		return err
	}
	defer unbundler.Close()

	if cfg.MetricsAddr != "" {
		srv := unbundler.Metrics().NewServer(cfg.MetricsAddr)
		go func() {
			slog.Info("Serving metrics.", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	return unbundler.Run(ctx)
}
