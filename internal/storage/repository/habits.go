package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/magabrotheeeer/habit-tracker/internal/models"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const habitColumns = `id, user_id, name, description, reminder_enabled, reminder_time,
	goal_enabled, goal_type, goal_target, goal_period_days, created_at, updated_at`

func scanHabit(row rowScanner) (*models.Habit, error) {
	var (
		h                       models.Habit
		description, remindTime sql.NullString
		goalType                sql.NullString
		goalTarget, goalPeriod  sql.NullInt64
	)
	if err := row.Scan(&h.ID, &h.UserID, &h.Name, &description, &h.ReminderEnabled, &remindTime,
		&h.Goal.Enabled, &goalType, &goalTarget, &goalPeriod, &h.CreatedAt, &h.UpdatedAt); err != nil {
		return nil, err
	}
	h.Description = stringPtr(description)
	h.ReminderTime = stringPtr(remindTime)
	gt, err := models.ParseGoalType(goalType.String)
	if err != nil {
		return nil, err
	}
	h.Goal.Type = gt
	h.Goal.Target = int(goalTarget.Int64)
	h.Goal.PeriodDays = int(goalPeriod.Int64)
	return &h, nil
}

// goalValues возвращает значения колонок цели; для выключенной цели все NULL.
func goalValues(g models.Goal) (sql.NullString, sql.NullInt64, sql.NullInt64) {
	if !g.Enabled {
		return sql.NullString{}, sql.NullInt64{}, sql.NullInt64{}
	}
	var gt sql.NullString
	if g.Type != models.GoalTypeNone {
		gt = sql.NullString{String: g.Type.String(), Valid: true}
	}
	var target, periodDays sql.NullInt64
	if g.Target > 0 {
		target = sql.NullInt64{Int64: int64(g.Target), Valid: true}
	}
	if g.PeriodDays > 0 {
		periodDays = sql.NullInt64{Int64: int64(g.PeriodDays), Valid: true}
	}
	return gt, target, periodDays
}

// ListHabits возвращает привычки пользователя в порядке создания.
func (s *Storage) ListHabits(ctx context.Context, userID int64) ([]models.Habit, error) {
	const op = "storage.ListHabits"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.exec(ctx).QueryContext(ctx,
		`SELECT `+habitColumns+` FROM habits WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result := make([]models.Habit, 0)
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// CreateHabit сохраняет новую привычку пользователя.
func (s *Storage) CreateHabit(ctx context.Context, userID int64, d models.HabitDraft) (*models.Habit, error) {
	const op = "storage.CreateHabit"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	goalType, goalTarget, goalPeriod := goalValues(d.Goal)
	query := `INSERT INTO habits (user_id, name, description, reminder_enabled, reminder_time,
			      goal_enabled, goal_type, goal_target, goal_period_days)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			  RETURNING ` + habitColumns
	h, err := scanHabit(s.exec(ctx).QueryRowContext(ctx, query,
		userID, d.Name, nullString(d.Description), d.ReminderEnabled, nullString(d.ReminderTime),
		d.Goal.Enabled, goalType, goalTarget, goalPeriod))
	if err != nil {
		return nil, mapErr(op, err)
	}
	return h, nil
}

// UpdateHabit изменяет привычку, принадлежащую пользователю.
func (s *Storage) UpdateHabit(ctx context.Context, userID, habitID int64, d models.HabitDraft) (*models.Habit, error) {
	const op = "storage.UpdateHabit"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	goalType, goalTarget, goalPeriod := goalValues(d.Goal)
	query, args, err := psql.Update("habits").
		SetMap(map[string]any{
			"name":             d.Name,
			"description":      nullString(d.Description),
			"reminder_enabled": d.ReminderEnabled,
			"reminder_time":    nullString(d.ReminderTime),
			"goal_enabled":     d.Goal.Enabled,
			"goal_type":        goalType,
			"goal_target":      goalTarget,
			"goal_period_days": goalPeriod,
			"updated_at":       sq.Expr("now()"),
		}).
		Where(sq.Eq{"id": habitID, "user_id": userID}).
		Suffix("RETURNING " + habitColumns).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	h, err := scanHabit(s.exec(ctx).QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, mapErr(op, err)
	}
	return h, nil
}

// DeleteHabit удаляет привычку пользователя вместе с отметками.
func (s *Storage) DeleteHabit(ctx context.Context, userID, habitID int64) error {
	const op = "storage.DeleteHabit"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	res, err := s.exec(ctx).ExecContext(ctx,
		`DELETE FROM habits WHERE id = $1 AND user_id = $2`, habitID, userID)
	if err != nil {
		return mapErr(op, err)
	}
	return requireAffected(op, res)
}

// GetHabit возвращает привычку пользователя.
func (s *Storage) GetHabit(ctx context.Context, userID, habitID int64) (*models.Habit, error) {
	const op = "storage.GetHabit"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	h, err := scanHabit(s.exec(ctx).QueryRowContext(ctx,
		`SELECT `+habitColumns+` FROM habits WHERE id = $1 AND user_id = $2`, habitID, userID))
	if err != nil {
		return nil, mapErr(op, err)
	}
	return h, nil
}

// LockHabit читает привычку пользователя с блокировкой строки до конца транзакции.
func (s *Storage) LockHabit(ctx context.Context, userID, habitID int64) (*models.Habit, error) {
	const op = "storage.LockHabit"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	h, err := scanHabit(s.exec(ctx).QueryRowContext(ctx,
		`SELECT `+habitColumns+` FROM habits WHERE id = $1 AND user_id = $2 FOR UPDATE`, habitID, userID))
	if err != nil {
		return nil, mapErr(op, err)
	}
	return h, nil
}

// HasLog сообщает, есть ли отметка привычки за период.
func (s *Storage) HasLog(ctx context.Context, habitID int64, period time.Time) (bool, error) {
	const op = "storage.HasLog"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}

	var exists bool
	err := s.exec(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM habit_logs WHERE habit_id = $1 AND completed_at = $2)`,
		habitID, period.UTC()).Scan(&exists)
	if err != nil {
		return false, mapErr(op, err)
	}
	return exists, nil
}

// InsertLog добавляет отметку за период. Если отметка уже есть, возвращает ErrDuplicate.
func (s *Storage) InsertLog(ctx context.Context, habitID int64, period time.Time) error {
	const op = "storage.InsertLog"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	var id int64
	err := s.exec(ctx).QueryRowContext(ctx,
		`INSERT INTO habit_logs (habit_id, completed_at) VALUES ($1, $2)
		 ON CONFLICT (habit_id, completed_at) DO NOTHING
		 RETURNING id`, habitID, period.UTC()).Scan(&id)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%s: %w", op, ErrDuplicate)
	}
	if err != nil {
		return mapErr(op, err)
	}
	return nil
}

// DeleteLog удаляет отметку за период и сообщает, была ли она.
func (s *Storage) DeleteLog(ctx context.Context, habitID int64, period time.Time) (bool, error) {
	const op = "storage.DeleteLog"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}

	res, err := s.exec(ctx).ExecContext(ctx,
		`DELETE FROM habit_logs WHERE habit_id = $1 AND completed_at = $2`, habitID, period.UTC())
	if err != nil {
		return false, mapErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n > 0, nil
}

// ListCompletions возвращает все отметки привычки.
func (s *Storage) ListCompletions(ctx context.Context, habitID int64) ([]time.Time, error) {
	const op = "storage.ListCompletions"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.exec(ctx).QueryContext(ctx,
		`SELECT completed_at FROM habit_logs WHERE habit_id = $1`, habitID)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, t.UTC())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// ListUserCompletions возвращает отметки всех привычек пользователя по id привычки.
func (s *Storage) ListUserCompletions(ctx context.Context, userID int64) (map[int64][]time.Time, error) {
	const op = "storage.ListUserCompletions"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.exec(ctx).QueryContext(ctx,
		`SELECT l.habit_id, l.completed_at
		 FROM habit_logs l
		 JOIN habits h ON h.id = l.habit_id
		 WHERE h.user_id = $1`, userID)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result := make(map[int64][]time.Time)
	for rows.Next() {
		var (
			habitID int64
			t       time.Time
		)
		if err := rows.Scan(&habitID, &t); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result[habitID] = append(result[habitID], t.UTC())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// ListReminderCandidates возвращает привычки с включенным напоминанием,
// владельцы которых имеют активную подписку на момент now, и признак
// отметки за период period.
func (s *Storage) ListReminderCandidates(ctx context.Context, now, period time.Time) ([]models.ReminderCandidate, error) {
	const op = "storage.ListReminderCandidates"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT h.id, h.name, h.reminder_time, u.telegram_id, u.timezone,
			      EXISTS (SELECT 1 FROM habit_logs l WHERE l.habit_id = h.id AND l.completed_at = $3)
			  FROM habits h
			  JOIN users u ON u.id = h.user_id
			  WHERE h.reminder_enabled
			    AND h.reminder_time IS NOT NULL
			    AND u.subscription_status = $1
			    AND u.subscription_expires_at > $2
			  ORDER BY h.id`
	rows, err := s.exec(ctx).QueryContext(ctx, query,
		models.SubscriptionStatusActive.String(), now.UTC(), period.UTC())
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []models.ReminderCandidate
	for rows.Next() {
		var c models.ReminderCandidate
		if err := rows.Scan(&c.HabitID, &c.HabitName, &c.ReminderTime, &c.TelegramID,
			&c.Timezone, &c.Completed); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
