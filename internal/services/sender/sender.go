// Package sender доставляет напоминания из очереди пользователям в Telegram.
package sender

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/habit-tracker/internal/lib/sl"
	"github.com/magabrotheeeer/habit-tracker/internal/models"
	"github.com/magabrotheeeer/habit-tracker/internal/telegram"
)

// Messenger канал доставки сообщений пользователю.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Service сервис доставки напоминаний.
type Service struct {
	messenger Messenger
	log       *slog.Logger
}

// New создает сервис доставки.
func New(messenger Messenger, log *slog.Logger) *Service {
	return &Service{messenger: messenger, log: log}
}

// ReminderText текст напоминания о привычке.
func ReminderText(m models.ReminderMessage) string {
	return fmt.Sprintf("⏰ Напоминание: пора выполнить привычку «%s». Отметьте ее, когда закончите!", m.HabitName)
}

// HandleReminder обрабатывает сообщение очереди напоминаний. Возвращенная
// ошибка возвращает сообщение в очередь, поэтому окончательные отказы
// (битое сообщение, бот заблокирован) только логируются.
func (s *Service) HandleReminder(ctx context.Context, body []byte) error {
	const op = "sender.HandleReminder"
	log := s.log.With(slog.String("op", op))

	var msg models.ReminderMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		log.Error("failed to unmarshal message body, dropping", sl.Err(err))
		return nil
	}
	if msg.TelegramID == 0 {
		log.Error("reminder without recipient, dropping", slog.Int64("habit_id", msg.HabitID))
		return nil
	}
	log = log.With(slog.Int64("telegram_id", msg.TelegramID), slog.Int64("habit_id", msg.HabitID))

	err := s.messenger.SendMessage(ctx, msg.TelegramID, ReminderText(msg))
	switch {
	case err == nil:
		log.Info("reminder delivered")
		return nil
	case errors.Is(err, telegram.ErrRejected):
		log.Warn("reminder rejected by telegram, dropping", sl.Err(err))
		return nil
	default:
		log.Error("failed to deliver reminder", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
}
