package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/magabrotheeeer/habit-tracker/internal/models"
)

const userColumns = `id, telegram_id, display_name, timezone, subscription_type,
	subscription_status, subscription_started_at, subscription_expires_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u                  models.User
		displayName        sql.NullString
		subType, subStatus string
		started, expires   sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.TelegramID, &displayName, &u.Timezone, &subType,
		&subStatus, &started, &expires, &u.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if u.SubscriptionType, err = models.ParseSubscriptionType(subType); err != nil {
		return nil, err
	}
	if u.SubscriptionStatus, err = models.ParseSubscriptionStatus(subStatus); err != nil {
		return nil, err
	}
	u.DisplayName = stringPtr(displayName)
	u.SubscriptionStartedAt = timePtr(started)
	u.SubscriptionExpiresAt = timePtr(expires)
	return &u, nil
}

// UpsertUser создает пользователя при первом обращении или обновляет его имя.
func (s *Storage) UpsertUser(ctx context.Context, telegramID int64, displayName *string) (*models.User, error) {
	const op = "storage.UpsertUser"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `INSERT INTO users (telegram_id, display_name, timezone)
			  VALUES ($1, $2, $3)
			  ON CONFLICT (telegram_id) DO UPDATE
			  SET display_name = COALESCE(EXCLUDED.display_name, users.display_name)
			  RETURNING ` + userColumns
	u, err := scanUser(s.exec(ctx).QueryRowContext(ctx, query,
		telegramID, nullString(displayName), models.DefaultTimezone))
	if err != nil {
		return nil, mapErr(op, err)
	}
	return u, nil
}

// GetUserByTelegramID возвращает пользователя по telegram id.
func (s *Storage) GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	const op = "storage.GetUserByTelegramID"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1`
	u, err := scanUser(s.exec(ctx).QueryRowContext(ctx, query, telegramID))
	if err != nil {
		return nil, mapErr(op, err)
	}
	return u, nil
}

// LockUserByTelegramID читает пользователя с блокировкой строки до конца транзакции.
func (s *Storage) LockUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	const op = "storage.LockUserByTelegramID"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1 FOR UPDATE`
	u, err := scanUser(s.exec(ctx).QueryRowContext(ctx, query, telegramID))
	if err != nil {
		return nil, mapErr(op, err)
	}
	return u, nil
}

// LockUserByID читает пользователя по внутреннему id с блокировкой строки.
func (s *Storage) LockUserByID(ctx context.Context, userID int64) (*models.User, error) {
	const op = "storage.LockUserByID"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
	u, err := scanUser(s.exec(ctx).QueryRowContext(ctx, query, userID))
	if err != nil {
		return nil, mapErr(op, err)
	}
	return u, nil
}

// SetSubscriptionStatus меняет сохраненный статус подписки.
func (s *Storage) SetSubscriptionStatus(ctx context.Context, userID int64, status models.SubscriptionStatus) error {
	const op = "storage.SetSubscriptionStatus"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	res, err := s.exec(ctx).ExecContext(ctx,
		`UPDATE users SET subscription_status = $1 WHERE id = $2`, status.String(), userID)
	if err != nil {
		return mapErr(op, err)
	}
	return requireAffected(op, res)
}

// ActivateSubscription переводит пользователя на активную премиум-подписку
// до expiresAt. Дата начала записывается, только если ещё не задана.
func (s *Storage) ActivateSubscription(ctx context.Context, userID int64, startedAt, expiresAt time.Time) error {
	const op = "storage.ActivateSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	query := `UPDATE users
			  SET subscription_type = $1,
			      subscription_status = $2,
			      subscription_started_at = COALESCE(subscription_started_at, $3),
			      subscription_expires_at = $4
			  WHERE id = $5`
	res, err := s.exec(ctx).ExecContext(ctx, query,
		models.SubscriptionTypePremium.String(), models.SubscriptionStatusActive.String(),
		startedAt.UTC(), expiresAt.UTC(), userID)
	if err != nil {
		return mapErr(op, err)
	}
	return requireAffected(op, res)
}

// ExpireOverdue понижает статус активных подписок, срок которых истек к now.
func (s *Storage) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.ExpireOverdue"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}

	res, err := s.exec(ctx).ExecContext(ctx,
		`UPDATE users SET subscription_status = $1
		 WHERE subscription_status = $2 AND subscription_expires_at <= $3`,
		models.SubscriptionStatusExpired.String(), models.SubscriptionStatusActive.String(), now.UTC())
	if err != nil {
		return 0, mapErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

func requireAffected(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return nil
}
