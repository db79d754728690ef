package habittracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/habit-tracker/internal/cache"
	"github.com/magabrotheeeer/habit-tracker/internal/config"
	"github.com/magabrotheeeer/habit-tracker/internal/http/handlers/health"
	"github.com/magabrotheeeer/habit-tracker/internal/lib/jwt"
	"github.com/magabrotheeeer/habit-tracker/internal/lib/period"
	"github.com/magabrotheeeer/habit-tracker/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/habit-tracker/internal/lib/sl"
	"github.com/magabrotheeeer/habit-tracker/internal/metrics"
	"github.com/magabrotheeeer/habit-tracker/internal/migrations"
	"github.com/magabrotheeeer/habit-tracker/internal/paymentprovider"
	habitservice "github.com/magabrotheeeer/habit-tracker/internal/services/habit"
	paymentservice "github.com/magabrotheeeer/habit-tracker/internal/services/payment"
	reminderservice "github.com/magabrotheeeer/habit-tracker/internal/services/reminder"
	subservice "github.com/magabrotheeeer/habit-tracker/internal/services/subscription"
	"github.com/magabrotheeeer/habit-tracker/internal/storage/repository"
)

// shutdownTimeout время на завершение запросов и фоновых сверок.
const shutdownTimeout = 15 * time.Second

// billingStore хранилище, общее для подписок и платежей.
type billingStore interface {
	subservice.Repository
	paymentservice.Repository
}

// newBillingServices собирает сервисы подписок и платежей на часах провайдера периодов.
func newBillingServices(store billingStore, gateway paymentservice.Gateway, periods *period.Provider,
	cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*subservice.Service, *paymentservice.Service) {
	subscriptions := subservice.New(store, logger, periods.Now)
	payments := paymentservice.New(store, gateway, paymentservice.DefaultCatalogue(), paymentservice.Config{
		ReturnURL:        cfg.YooKassa.ReturnURL,
		PendingTTL:       cfg.Payment.PendingTTL,
		PollDelay:        cfg.Payment.PollDelay,
		RecheckAfter:     cfg.Payment.RecheckAfter,
		WebhookSecret:    cfg.WebhookSecret(),
		VerifySignatures: cfg.IsProd(),
	}, m, logger, paymentservice.WithClock(periods.Now))
	return subscriptions, payments
}

// App HTTP API трекера привычек.
type App struct {
	server   *http.Server
	logger   *slog.Logger
	db       *repository.Storage
	cache    *cache.Cache
	conn     *amqp.Connection
	ch       *amqp.Channel
	payments *paymentservice.Service
}

// New подключает зависимости и собирает сервисы.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "habittracker.New"

	periods, err := period.New(cfg.Period.LengthMinutes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.MaxRetries, cfg.RabbitMQ.RetryDelay)
	if err != nil {
		_ = cacheRedis.Close()
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.NotificationQueues())
	if err != nil {
		_ = conn.Close()
		_ = cacheRedis.Close()
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	gateway := paymentprovider.NewClient(cfg.YooKassa.ShopID, cfg.YooKassa.SecretKey,
		paymentprovider.WithAPIURL(cfg.YooKassa.APIURL),
		paymentprovider.WithHTTPClient(&http.Client{Timeout: cfg.YooKassa.Timeout}),
	)
	subscriptions, payments := newBillingServices(db, gateway, periods, cfg, m, logger)

	reminders := reminderservice.New(db, cacheRedis, rabbitmq.NewPublisher(ch), periods, reminderservice.Config{
		Tolerance: cfg.ReminderTolerance(),
		DedupeTTL: cfg.Reminder.DedupeTTL,
	}, m, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, Services{
		Habits:        habitservice.New(db, periods, m, logger),
		Subscriptions: subscriptions,
		Payments:      payments,
		Reminders:     reminders,
		Tokens:        jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL),
		Health: map[string]health.Pinger{
			"postgres": db,
			"redis":    cacheRedis,
		},
	}, RouteConfig{
		InternalToken: cfg.Reminder.SweepToken,
		RateRPS:       cfg.RateLimit.RPS,
		RateBurst:     cfg.RateLimit.Burst,
	})

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:   srv,
		logger:   logger,
		db:       db,
		cache:    cacheRedis,
		conn:     conn,
		ch:       ch,
		payments: payments,
	}, nil
}

// Run обслуживает запросы до отмены ctx, затем останавливает сервер,
// дожидается фоновых сверок платежей и закрывает соединения.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		runErr = a.server.Shutdown(timeoutCtx)
		if err := a.payments.Shutdown(timeoutCtx); err != nil {
			a.logger.Warn("payment tasks did not finish in time", sl.Err(err))
		}
	}
	a.close()
	return runErr
}

func (a *App) close() {
	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}
	if err := a.cache.Close(); err != nil {
		a.logger.Error("failed to close redis", sl.Err(err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close database", sl.Err(err))
	}
}
