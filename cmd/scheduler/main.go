package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/magabrotheeeer/habit-tracker/internal/app/scheduler"
	"github.com/magabrotheeeer/habit-tracker/internal/config"
	"github.com/magabrotheeeer/habit-tracker/internal/lib/logger"
	"github.com/magabrotheeeer/habit-tracker/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.Env, os.Stdout)

	log.Info("starting scheduler", slog.String("env", cfg.Env), slog.String("api", cfg.Scheduler.APIBaseURL))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := scheduler.New(cfg, log)
	if err != nil {
		log.Error("failed to initialize app", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		log.Error("app stopped with error", sl.Err(err))
		os.Exit(1)
	}

	log.Info("scheduler stopped gracefully")
}
