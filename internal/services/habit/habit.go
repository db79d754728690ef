// Package habit реализует операции над привычками: ограничение бесплатного
// тарифа при создании и изменении, переключение отметки за текущий период,
// список привычек с сериями и историю отметок.
//
// Каждая изменяющая операция выполняется в одной транзакции хранилища.
// Блокировка строки владельца сериализует конкурентные создания, блокировка
// строки привычки сериализует конкурентные переключения.
package habit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/magabrotheeeer/habit-tracker/internal/lib/reminder"
	"github.com/magabrotheeeer/habit-tracker/internal/lib/sl"
	"github.com/magabrotheeeer/habit-tracker/internal/lib/streak"
	"github.com/magabrotheeeer/habit-tracker/internal/metrics"
	"github.com/magabrotheeeer/habit-tracker/internal/models"
	"github.com/magabrotheeeer/habit-tracker/internal/storage/repository"
)

// HistoryLength число периодов в истории привычки.
const HistoryLength = 7

const (
	maxNameLength        = 100
	maxDescriptionLength = 500
)

// Repository доступ к хранилищу, нужный сервису привычек.
type Repository interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	LockUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	SetSubscriptionStatus(ctx context.Context, userID int64, status models.SubscriptionStatus) error
	ListHabits(ctx context.Context, userID int64) ([]models.Habit, error)
	CreateHabit(ctx context.Context, userID int64, d models.HabitDraft) (*models.Habit, error)
	UpdateHabit(ctx context.Context, userID, habitID int64, d models.HabitDraft) (*models.Habit, error)
	DeleteHabit(ctx context.Context, userID, habitID int64) error
	GetHabit(ctx context.Context, userID, habitID int64) (*models.Habit, error)
	LockHabit(ctx context.Context, userID, habitID int64) (*models.Habit, error)
	HasLog(ctx context.Context, habitID int64, period time.Time) (bool, error)
	InsertLog(ctx context.Context, habitID int64, period time.Time) error
	DeleteLog(ctx context.Context, habitID int64, period time.Time) (bool, error)
	ListCompletions(ctx context.Context, habitID int64) ([]time.Time, error)
	ListUserCompletions(ctx context.Context, userID int64) (map[int64][]time.Time, error)
}

// Periods границы периодов и текущее время.
type Periods interface {
	Now() time.Time
	CurrentPeriodStart() time.Time
	Normalize(t time.Time) time.Time
	Previous(t time.Time) time.Time
}

// ToggleResult результат переключения отметки.
type ToggleResult struct {
	HabitID   int64
	Completed bool
	Streak    int
}

// Service сервис привычек.
type Service struct {
	repo    Repository
	periods Periods
	metrics *metrics.Metrics
	log     *slog.Logger
}

// New создает сервис привычек.
func New(repo Repository, periods Periods, m *metrics.Metrics, log *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		periods: periods,
		metrics: m,
		log:     log,
	}
}

// Create создает привычку с учетом ограничений бесплатного тарифа.
func (s *Service) Create(ctx context.Context, telegramID int64, draft models.HabitDraft) (*models.Habit, error) {
	const op = "habit.Create"
	log := s.log.With(slog.String("op", op), slog.Int64("telegram_id", telegramID))

	draft, err := normalizeDraft(draft)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var created *models.Habit
	err = s.repo.RunInTx(ctx, func(ctx context.Context) error {
		owner, premium, err := s.lockOwner(ctx, telegramID)
		if err != nil {
			return err
		}
		habits, err := s.repo.ListHabits(ctx, owner.ID)
		if err != nil {
			return err
		}
		if !premium && len(habits) >= models.FreeHabitLimit {
			s.metrics.LimitRefused("limit")
			return models.ErrLimitExceeded
		}
		if !premium && draft.WantsPremium() {
			s.metrics.LimitRefused("premium")
			return models.ErrPremiumRequired
		}
		if !premium {
			draft = stripDraft(draft)
		}
		created, err = s.repo.CreateHabit(ctx, owner.ID, draft)
		return err
	})
	if err != nil {
		if !isRefusal(err) {
			log.Error("failed to create habit", sl.Err(err))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("habit created", slog.Int64("habit_id", created.ID))
	return created, nil
}

// Update изменяет привычку. Для пользователя без активной подписки
// напоминание и цель молча отключаются.
func (s *Service) Update(ctx context.Context, telegramID, habitID int64, draft models.HabitDraft) (*models.Habit, error) {
	const op = "habit.Update"
	log := s.log.With(slog.String("op", op), slog.Int64("telegram_id", telegramID), slog.Int64("habit_id", habitID))

	draft, err := normalizeDraft(draft)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var updated *models.Habit
	err = s.repo.RunInTx(ctx, func(ctx context.Context) error {
		owner, premium, err := s.lockOwner(ctx, telegramID)
		if err != nil {
			return err
		}
		if !premium {
			draft = stripDraft(draft)
		}
		updated, err = s.repo.UpdateHabit(ctx, owner.ID, habitID, draft)
		return err
	})
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			log.Error("failed to update habit", sl.Err(err))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return updated, nil
}

// Delete удаляет привычку пользователя вместе с отметками.
func (s *Service) Delete(ctx context.Context, telegramID, habitID int64) error {
	const op = "habit.Delete"

	owner, err := s.repo.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.repo.DeleteHabit(ctx, owner.ID, habitID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("habit deleted", slog.String("op", op), slog.Int64("habit_id", habitID))
	return nil
}

// Toggle переключает отметку привычки за текущий период. Если отметку
// одновременно создал другой запрос, она удаляется: два переключения
// подряд всегда возвращают исходное состояние.
func (s *Service) Toggle(ctx context.Context, telegramID, habitID int64) (*ToggleResult, error) {
	const op = "habit.Toggle"
	log := s.log.With(slog.String("op", op), slog.Int64("telegram_id", telegramID), slog.Int64("habit_id", habitID))

	current := s.periods.CurrentPeriodStart()
	completed := false
	err := s.repo.RunInTx(ctx, func(ctx context.Context) error {
		owner, err := s.repo.GetUserByTelegramID(ctx, telegramID)
		if err != nil {
			return err
		}
		if _, err := s.repo.LockHabit(ctx, owner.ID, habitID); err != nil {
			return err
		}
		exists, err := s.repo.HasLog(ctx, habitID, current)
		if err != nil {
			return err
		}
		if exists {
			_, err = s.repo.DeleteLog(ctx, habitID, current)
			return err
		}

		err = s.repo.InsertLog(ctx, habitID, current)
		if errors.Is(err, repository.ErrDuplicate) {
			log.Warn("completion created concurrently, removing it")
			_, err = s.repo.DeleteLog(ctx, habitID, current)
			return err
		}
		if err != nil {
			return err
		}
		completed = true
		return nil
	})
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			log.Error("failed to toggle completion", sl.Err(err))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.metrics.HabitToggled(completed)

	completions, err := s.repo.ListCompletions(ctx, habitID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &ToggleResult{
		HabitID:   habitID,
		Completed: completed,
		Streak:    streak.Compute(s.periods, completions, current),
	}, nil
}

// List возвращает привычки пользователя с серией и отметкой за текущий период.
func (s *Service) List(ctx context.Context, telegramID int64) ([]models.HabitView, error) {
	const op = "habit.List"

	owner, err := s.repo.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	habits, err := s.repo.ListHabits(ctx, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	completions, err := s.repo.ListUserCompletions(ctx, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	current := s.periods.CurrentPeriodStart()
	views := make([]models.HabitView, 0, len(habits))
	for _, h := range habits {
		logs := completions[h.ID]
		views = append(views, models.HabitView{
			Habit:          h,
			Streak:         streak.Compute(s.periods, logs, current),
			CompletedToday: containsPeriod(s.periods, logs, current),
		})
	}
	return views, nil
}

// History возвращает отметки привычки за последние HistoryLength периодов.
func (s *Service) History(ctx context.Context, telegramID, habitID int64) ([]models.DayMark, error) {
	const op = "habit.History"

	owner, err := s.repo.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := s.repo.GetHabit(ctx, owner.ID, habitID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	completions, err := s.repo.ListCompletions(ctx, habitID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return streak.History(s.periods, completions, s.periods.CurrentPeriodStart(), HistoryLength), nil
}

// lockOwner блокирует строку владельца и понижает устаревший активный статус.
func (s *Service) lockOwner(ctx context.Context, telegramID int64) (*models.User, bool, error) {
	owner, err := s.repo.LockUserByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, false, err
	}
	now := s.periods.Now()
	if owner.ActiveButExpired(now) {
		if err := s.repo.SetSubscriptionStatus(ctx, owner.ID, models.SubscriptionStatusExpired); err != nil {
			return nil, false, err
		}
		owner.SubscriptionStatus = models.SubscriptionStatusExpired
		s.log.Info("subscription expired on access", slog.Int64("user_id", owner.ID))
	}
	return owner, owner.HasPremium(now), nil
}

func containsPeriod(p Periods, completions []time.Time, current time.Time) bool {
	for _, c := range completions {
		if p.Normalize(c).Equal(current) {
			return true
		}
	}
	return false
}

func isRefusal(err error) bool {
	return errors.Is(err, models.ErrLimitExceeded) ||
		errors.Is(err, models.ErrPremiumRequired) ||
		errors.Is(err, models.ErrNotFound)
}

func stripDraft(d models.HabitDraft) models.HabitDraft {
	d.ReminderEnabled = false
	d.ReminderTime = nil
	d.Goal = models.Goal{}
	return d
}

// normalizeDraft обрезает пробелы и проверяет поля привычки.
func normalizeDraft(d models.HabitDraft) (models.HabitDraft, error) {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" || utf8.RuneCountInString(d.Name) > maxNameLength {
		return d, fmt.Errorf("%w: name must be 1-%d characters", models.ErrValidation, maxNameLength)
	}
	if d.Description != nil {
		desc := strings.TrimSpace(*d.Description)
		if utf8.RuneCountInString(desc) > maxDescriptionLength {
			return d, fmt.Errorf("%w: description must be at most %d characters", models.ErrValidation, maxDescriptionLength)
		}
		if desc == "" {
			d.Description = nil
		} else {
			d.Description = &desc
		}
	}

	if d.ReminderEnabled {
		if d.ReminderTime == nil {
			return d, fmt.Errorf("%w: reminder_time is required when reminder is enabled", models.ErrValidation)
		}
		if _, err := reminder.ParseClock(*d.ReminderTime); err != nil {
			return d, fmt.Errorf("%w: reminder_time must be HH:MM", models.ErrValidation)
		}
	} else {
		d.ReminderTime = nil
	}

	if d.Goal.Enabled {
		if d.Goal.Type == models.GoalTypeNone {
			return d, fmt.Errorf("%w: goal_type is required when goal is enabled", models.ErrValidation)
		}
		if d.Goal.Target <= 0 {
			return d, fmt.Errorf("%w: goal_target must be positive", models.ErrValidation)
		}
		if d.Goal.Type == models.GoalTypePeriod && d.Goal.PeriodDays <= 0 {
			return d, fmt.Errorf("%w: goal_period_days must be positive", models.ErrValidation)
		}
		if d.Goal.PeriodDays < 0 {
			return d, fmt.Errorf("%w: goal_period_days must be positive", models.ErrValidation)
		}
	} else {
		d.Goal = models.Goal{}
	}
	return d, nil
}
