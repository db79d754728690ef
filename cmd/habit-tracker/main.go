// Package main Habit Tracker API
//
// @title           Habit Tracker API
// @version         1.0
// @description     API трекера привычек с сериями, лимитом бесплатного тарифа и премиум-подпиской
// @termsOfService  http://swagger.io/terms/

// @contact.name   API Support
// @contact.url    http://www.swagger.io/support
// @contact.email  support@swagger.io

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// @securityDefinitions.apikey InternalToken
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the internal sweep token.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/magabrotheeeer/habit-tracker/internal/app/habittracker"
	"github.com/magabrotheeeer/habit-tracker/internal/config"
	"github.com/magabrotheeeer/habit-tracker/internal/lib/logger"
	"github.com/magabrotheeeer/habit-tracker/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.Env, os.Stdout)

	log.Info("starting habit-tracker", slog.String("env", cfg.Env))
	log.Debug("debug messages are enabled")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := habittracker.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize app", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("app stopped with error", sl.Err(err))
		os.Exit(1)
	}

	log.Info("habit-tracker stopped gracefully")
}
