// Package sender содержит приложение доставки напоминаний из очереди в Telegram.
package sender

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/habit-tracker/internal/config"
	"github.com/magabrotheeeer/habit-tracker/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/habit-tracker/internal/lib/sl"
	senderservice "github.com/magabrotheeeer/habit-tracker/internal/services/sender"
	"github.com/magabrotheeeer/habit-tracker/internal/telegram"
)

// App приложение доставки напоминаний.
type App struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	senderService *senderservice.Service
	workers       int
	logger        *slog.Logger
}

// New подключается к брокеру и создает клиента Telegram.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "sender.New"

	conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.MaxRetries, cfg.RabbitMQ.RetryDelay)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.NotificationQueues())
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := ch.Qos(cfg.RabbitMQ.Workers, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	bot := telegram.NewClient(cfg.Telegram.BotToken,
		telegram.WithAPIURL(cfg.Telegram.APIURL),
		telegram.WithHTTPClient(&http.Client{Timeout: cfg.Telegram.Timeout}),
	)

	return &App{
		conn:          conn,
		ch:            ch,
		senderService: senderservice.New(bot, logger),
		workers:       cfg.RabbitMQ.Workers,
		logger:        logger,
	}, nil
}

// Run читает очередь напоминаний до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.ConsumerMessage(ctx, a.logger, a.ch, rabbitmq.ReminderQueue, a.workers, a.senderService.HandleReminder)
	if err != nil {
		a.logger.Error("failed to start reminder consumer", sl.Err(err))
		return err
	}

	<-ctx.Done()
	a.logger.Info("sender service shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}
	return nil
}
