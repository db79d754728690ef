// Package scheduler вызывает внутренние эндпоинты API по расписанию cron:
// рассылку напоминаний, истечение подписок и перепроверку платежей.
// Все задачи на стороне API идемпотентны, поэтому пропуск или повтор
// запуска безопасны.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/magabrotheeeer/habit-tracker/internal/lib/sl"
)

// ErrJobFailed эндпоинт задачи ответил ошибкой.
var ErrJobFailed = errors.New("job failed")

// Job задача по расписанию.
type Job struct {
	Name string
	Spec string // Расписание cron, например "@every 1m"
	Path string // Путь внутреннего эндпоинта
}

// Jobs возвращает стандартный набор задач.
func Jobs(sweepSpec, expireSpec, recheckSpec string) []Job {
	return []Job{
		{Name: "reminders.sweep", Spec: sweepSpec, Path: "/internal/reminders/sweep"},
		{Name: "subscriptions.expire", Spec: expireSpec, Path: "/internal/subscriptions/expire"},
		{Name: "payments.recheck", Spec: recheckSpec, Path: "/internal/payments/recheck"},
	}
}

// Service планировщик задач.
type Service struct {
	baseURL string
	token   string
	client  *http.Client
	timeout time.Duration
	cron    *cron.Cron
	log     *slog.Logger
}

// New создает планировщик, который вызывает эндпоинты по адресу baseURL.
func New(baseURL, token string, timeout time.Duration, client *http.Client, log *slog.Logger) *Service {
	if client == nil {
		client = &http.Client{}
	}
	return &Service{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
		timeout: timeout,
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		log:     log,
	}
}

// Register добавляет задачи в расписание.
func (s *Service) Register(jobs []Job) error {
	const op = "scheduler.Register"
	for _, job := range jobs {
		if _, err := s.cron.AddFunc(job.Spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()
			if err := s.Trigger(ctx, job); err != nil {
				s.log.Error("scheduled job failed", slog.String("job", job.Name), sl.Err(err))
			}
		}); err != nil {
			return fmt.Errorf("%s: job %s: %w", op, job.Name, err)
		}
		s.log.Info("job scheduled", slog.String("job", job.Name), slog.String("spec", job.Spec))
	}
	return nil
}

// Start запускает расписание.
func (s *Service) Start() {
	s.cron.Start()
}

// Stop останавливает расписание и ждет завершения запущенных задач.
func (s *Service) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("scheduled jobs did not finish in time")
	}
}

// Trigger однократно вызывает эндпоинт задачи.
func (s *Service) Trigger(ctx context.Context, job Job) error {
	const op = "scheduler.Trigger"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+job.Path, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %w: %s: status %d: %s", op, ErrJobFailed, job.Name, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	s.log.Debug("job finished", slog.String("job", job.Name), slog.String("result", strings.TrimSpace(string(body))))
	return nil
}
