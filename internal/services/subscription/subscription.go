// Package subscription отдает состояние подписки пользователя и понижает
// истекшие подписки.
package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/habit-tracker/internal/lib/sl"
	"github.com/magabrotheeeer/habit-tracker/internal/models"
)

// Repository определяет методы хранилища пользователей.
type Repository interface {
	// UpsertUser создает пользователя при первом обращении.
	UpsertUser(ctx context.Context, telegramID int64, displayName *string) (*models.User, error)
	// GetUserByTelegramID возвращает пользователя по внешнему идентификатору.
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	// ExpireOverdue переводит истекшие активные подписки в expired.
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

// Service сервис подписок.
type Service struct {
	repo Repository
	log  *slog.Logger
	now  func() time.Time
}

// New создает сервис подписок. now может быть nil.
func New(repo Repository, log *slog.Logger, now func() time.Time) *Service {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{repo: repo, log: log, now: now}
}

// EnsureUser создает пользователя при первом обращении и возвращает его.
func (s *Service) EnsureUser(ctx context.Context, telegramID int64, displayName string) (*models.User, error) {
	const op = "subscription.EnsureUser"

	if telegramID <= 0 {
		return nil, fmt.Errorf("%s: %w: telegram id must be positive", op, models.ErrValidation)
	}
	var name *string
	if trimmed := strings.TrimSpace(displayName); trimmed != "" {
		name = &trimmed
	}
	u, err := s.repo.UpsertUser(ctx, telegramID, name)
	if err != nil {
		s.log.Error("failed to upsert user", slog.String("op", op), slog.Int64("telegram_id", telegramID), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// Status возвращает состояние подписки на текущий момент.
func (s *Service) Status(ctx context.Context, telegramID int64) (models.SubscriptionView, error) {
	const op = "subscription.Status"

	u, err := s.repo.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return models.SubscriptionView{}, fmt.Errorf("%s: %w", op, err)
	}
	return models.NewSubscriptionView(u, s.now()), nil
}

// ExpireOverdue понижает пользователей, чья подписка истекла. Повторный
// вызов ничего не меняет.
func (s *Service) ExpireOverdue(ctx context.Context) (int64, error) {
	const op = "subscription.ExpireOverdue"
	log := s.log.With(slog.String("op", op))

	n, err := s.repo.ExpireOverdue(ctx, s.now())
	if err != nil {
		log.Error("failed to expire subscriptions", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if n > 0 {
		log.Info("subscriptions expired", slog.Int64("count", n))
	}
	return n, nil
}
