// Command leaderboard-engine runs the leaderboard update engine: it
// consumes score-submitted events, maintains the Redis-backed
// leaderboards, and emits rank-change notifications while tailing.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"syscall"

	"os/signal"

	"leaderboard-engine/internal/config"
	"leaderboard-engine/internal/engine"
	"leaderboard-engine/internal/eventlog"
	"leaderboard-engine/internal/httpserver"
	"leaderboard-engine/internal/logging"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "reset-offsets" {
		runResetOffsets()
		return
	}
	runEngine()
}

func runEngine() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	log := logging.New(cfg.LogLevel, cfg.LogPretty)
	log.Info("leaderboard_engine_starting", slog.String("listen", cfg.ListenAddress))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	health := httpserver.NewHealthState()
	eng := engine.New(cfg, log, health)
	defer func() {
		if err := eng.Close(); err != nil {
			log.Error("engine_close_failed", slog.Any("err", err))
		}
	}()

	httpSrv := &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: httpserver.NewRouter(log, health),
	}
	go func() {
		log.Info("http_server_listen", slog.String("address", cfg.ListenAddress))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http_server_failed", slog.Any("err", err))
		}
	}()

	runErr := eng.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("http_server_shutdown_failed", slog.Any("err", err))
	}

	if runErr != nil {
		log.Error("engine_run_failed", slog.Any("err", runErr))
		os.Exit(1)
	}
	log.Info("leaderboard_engine_stopped")
}

// runResetOffsets is an admin entry point for forcing a full replay on
// the next engine start, mirroring the donor's standalone topic-init
// command shape: a tiny one-shot CLI reusing the same config loader.
func runResetOffsets() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	log := logging.New(cfg.LogLevel, cfg.LogPretty)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := eventlog.ResetToEarliest(ctx, cfg.Brokers, cfg.GroupID); err != nil {
		log.Error("reset_offsets_failed", slog.Any("err", err))
		os.Exit(1)
	}
	log.Info("reset_offsets_complete", slog.String("groupId", cfg.GroupID))
}
