// Package scheduler содержит приложение, которое по расписанию запускает
// фоновые задачи API трекера привычек.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/magabrotheeeer/habit-tracker/internal/config"
	schedulerservice "github.com/magabrotheeeer/habit-tracker/internal/services/scheduler"
)

// App представляет приложение планировщика.
type App struct {
	schedulerService *schedulerservice.Service
	stopTimeout      time.Duration
	logger           *slog.Logger
}

// New создает новый экземпляр приложения планировщика.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	s := schedulerservice.New(cfg.Scheduler.APIBaseURL, cfg.Reminder.SweepToken, cfg.Scheduler.Timeout,
		&http.Client{Timeout: cfg.Scheduler.Timeout}, logger)

	jobs := schedulerservice.Jobs(cfg.Scheduler.SweepCron, cfg.Scheduler.ExpireCron, cfg.Scheduler.RecheckCron)
	if err := s.Register(jobs); err != nil {
		return nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	return &App{
		schedulerService: s,
		stopTimeout:      cfg.Scheduler.Timeout,
		logger:           logger,
	}, nil
}

// Run запускает планировщик и останавливает его при отмене ctx.
func (a *App) Run(ctx context.Context) error {
	a.schedulerService.Start()

	<-ctx.Done()
	a.logger.Info("shutting down scheduler service")

	stopCtx, cancel := context.WithTimeout(context.Background(), a.stopTimeout)
	defer cancel()
	a.schedulerService.Stop(stopCtx)
	return nil
}
