// Package reminder рассылает напоминания о привычках, время которых наступило.
// Обход запускается извне и может выполняться повторно и параллельно:
// повторная отправка одного срабатывания отсекается ключом в Redis.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/habit-tracker/internal/lib/rabbitmq"
	window "github.com/magabrotheeeer/habit-tracker/internal/lib/reminder"
	"github.com/magabrotheeeer/habit-tracker/internal/lib/sl"
	"github.com/magabrotheeeer/habit-tracker/internal/metrics"
	"github.com/magabrotheeeer/habit-tracker/internal/models"
)

// Repository источник привычек с напоминаниями.
type Repository interface {
	ListReminderCandidates(ctx context.Context, now, period time.Time) ([]models.ReminderCandidate, error)
}

// Claimer однократный захват ключа дедупликации.
type Claimer interface {
	ClaimOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Publisher очередь рассылки.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

// Periods текущее время и начало текущего периода.
type Periods interface {
	Now() time.Time
	CurrentPeriodStart() time.Time
}

// Config параметры обхода.
type Config struct {
	Tolerance time.Duration
	DedupeTTL time.Duration
}

// SweepResult итог обхода.
type SweepResult struct {
	Scanned    int `json:"scanned"`
	Due        int `json:"due"`
	Dispatched int `json:"dispatched"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// Service сервис напоминаний.
type Service struct {
	repo      Repository
	claims    Claimer
	publisher Publisher
	periods   Periods
	cfg       Config
	metrics   *metrics.Metrics
	log       *slog.Logger
}

// New создает сервис напоминаний.
func New(repo Repository, claims Claimer, publisher Publisher, periods Periods, cfg Config,
	m *metrics.Metrics, log *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		claims:    claims,
		publisher: publisher,
		periods:   periods,
		cfg:       cfg,
		metrics:   m,
		log:       log,
	}
}

// DedupeKey ключ однократной отправки срабатывания напоминания at.
func DedupeKey(habitID int64, at time.Time) string {
	return fmt.Sprintf("reminder:%d:%d", habitID, at.Unix())
}

// Sweep отправляет напоминания по всем привычкам, время которых наступило и
// которые еще не отмечены в текущем периоде. Ошибка по отдельной привычке
// логируется и не прерывает обход.
func (s *Service) Sweep(ctx context.Context) (*SweepResult, error) {
	const op = "reminder.Sweep"
	log := s.log.With(slog.String("op", op))

	now := s.periods.Now()
	period := s.periods.CurrentPeriodStart()
	candidates, err := s.repo.ListReminderCandidates(ctx, now, period)
	if err != nil {
		log.Error("failed to list reminder candidates", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	res := &SweepResult{}
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("%s: %w", op, err)
		}
		res.Scanned++

		hlog := log.With(slog.Int64("habit_id", c.HabitID))
		if _, ok := window.ParseOffset(c.Timezone); !ok && c.Timezone != "" {
			hlog.Warn("invalid timezone, using default offset", slog.String("timezone", c.Timezone))
		}
		at, due, err := window.Occurrence(c.ReminderTime, c.Timezone, now, s.cfg.Tolerance)
		if err != nil {
			res.Failed++
			s.metrics.Reminder("invalid")
			hlog.Warn("invalid reminder time", slog.String("reminder_time", c.ReminderTime), sl.Err(err))
			continue
		}
		if !due {
			continue
		}
		res.Due++
		if c.Completed {
			res.Skipped++
			s.metrics.Reminder("completed")
			continue
		}

		sent, err := s.dispatch(ctx, c, at)
		switch {
		case err != nil:
			res.Failed++
			s.metrics.Reminder("failed")
			hlog.Error("failed to dispatch reminder", sl.Err(err))
		case sent:
			res.Dispatched++
			s.metrics.Reminder("sent")
		default:
			res.Skipped++
			s.metrics.Reminder("duplicate")
		}
	}

	log.Info("reminder sweep finished",
		slog.Int("scanned", res.Scanned), slog.Int("due", res.Due),
		slog.Int("dispatched", res.Dispatched), slog.Int("skipped", res.Skipped),
		slog.Int("failed", res.Failed))
	return res, nil
}

// dispatch захватывает ключ и публикует сообщение. Если публикация не
// удалась, ключ освобождается для следующего обхода.
func (s *Service) dispatch(ctx context.Context, c models.ReminderCandidate, at time.Time) (bool, error) {
	key := DedupeKey(c.HabitID, at)
	claimed, err := s.claims.ClaimOnce(ctx, key, s.cfg.DedupeTTL)
	if err != nil {
		return false, err
	}
	if !claimed {
		return false, nil
	}

	msg := models.ReminderMessage{
		TelegramID:   c.TelegramID,
		HabitID:      c.HabitID,
		HabitName:    c.HabitName,
		ReminderTime: c.ReminderTime,
	}
	if err := s.publisher.Publish(ctx, rabbitmq.ReminderRoutingKey, msg); err != nil {
		if relErr := s.claims.Release(ctx, key); relErr != nil {
			s.log.Warn("failed to release reminder claim", slog.String("key", key), sl.Err(relErr))
		}
		return false, err
	}
	return true, nil
}
