// Package habittracker собирает HTTP API трекера привычек.
package habittracker

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/habit-tracker/internal/http/handlers/habit/create"
	"github.com/magabrotheeeer/habit-tracker/internal/http/handlers/habit/history"
	"github.com/magabrotheeeer/habit-tracker/internal/http/handlers/habit/list"
	"github.com/magabrotheeeer/habit-tracker/internal/http/handlers/habit/remove"
	"github.com/magabrotheeeer/habit-tracker/internal/http/handlers/habit/toggle"
	"github.com/magabrotheeeer/habit-tracker/internal/http/handlers/habit/update"
	"github.com/magabrotheeeer/habit-tracker/internal/http/handlers/health"
	"github.com/magabrotheeeer/habit-tracker/internal/http/handlers/jobs"
	"github.com/magabrotheeeer/habit-tracker/internal/http/handlers/payment/paymentcheck"
	"github.com/magabrotheeeer/habit-tracker/internal/http/handlers/payment/paymentcreate"
	"github.com/magabrotheeeer/habit-tracker/internal/http/handlers/payment/paymentlatest"
	"github.com/magabrotheeeer/habit-tracker/internal/http/handlers/payment/paymentwebhook"
	"github.com/magabrotheeeer/habit-tracker/internal/http/handlers/subscription/plans"
	"github.com/magabrotheeeer/habit-tracker/internal/http/handlers/subscription/status"
	"github.com/magabrotheeeer/habit-tracker/internal/http/middlewarectx"
	habitservice "github.com/magabrotheeeer/habit-tracker/internal/services/habit"
	paymentservice "github.com/magabrotheeeer/habit-tracker/internal/services/payment"
	reminderservice "github.com/magabrotheeeer/habit-tracker/internal/services/reminder"
	subservice "github.com/magabrotheeeer/habit-tracker/internal/services/subscription"
)

// Services сервисы, которые обслуживают маршруты.
type Services struct {
	Habits        *habitservice.Service
	Subscriptions *subservice.Service
	Payments      *paymentservice.Service
	Reminders     *reminderservice.Service
	Tokens        middlewarectx.TokenParser
	Health        map[string]health.Pinger
}

// RouteConfig параметры маршрутов.
type RouteConfig struct {
	InternalToken string
	RateRPS       float64
	RateBurst     int
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, svc Services, cfg RouteConfig) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Уведомления шлюза (без аутентификации)
		r.Post("/payments/webhook", paymentwebhook.New(logger, svc.Payments).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(svc.Tokens, svc.Subscriptions, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger, cfg.RateRPS, cfg.RateBurst))

			r.Get("/habits", list.New(logger, svc.Habits).ServeHTTP)
			r.Post("/habits", create.New(logger, svc.Habits).ServeHTTP)
			r.Put("/habits/{id}", update.New(logger, svc.Habits).ServeHTTP)
			r.Delete("/habits/{id}", remove.New(logger, svc.Habits).ServeHTTP)
			r.Post("/habits/{id}/toggle", toggle.New(logger, svc.Habits).ServeHTTP)
			r.Get("/habits/{id}/history", history.New(logger, svc.Habits).ServeHTTP)

			r.Get("/subscription", status.New(logger, svc.Subscriptions).ServeHTTP)
			r.Get("/plans", plans.New(logger, svc.Payments).ServeHTTP)

			r.Post("/payments", paymentcreate.New(logger, svc.Payments).ServeHTTP)
			r.Get("/payments/latest", paymentlatest.New(logger, svc.Payments).ServeHTTP)
			r.Get("/payments/{id}", paymentcheck.New(logger, svc.Payments).ServeHTTP)
		})
	})

	// Задачи по расписанию
	r.Route("/internal", func(r chi.Router) {
		r.Use(middlewarectx.InternalTokenMiddleware(cfg.InternalToken, logger))
		r.Post("/reminders/sweep", jobs.New(logger, "reminders.sweep", func(ctx context.Context) (any, error) {
			return svc.Reminders.Sweep(ctx)
		}).ServeHTTP)
		r.Post("/subscriptions/expire", jobs.New(logger, "subscriptions.expire", func(ctx context.Context) (any, error) {
			n, err := svc.Subscriptions.ExpireOverdue(ctx)
			return map[string]int64{"expired": n}, err
		}).ServeHTTP)
		r.Post("/payments/recheck", jobs.New(logger, "payments.recheck", func(ctx context.Context) (any, error) {
			return svc.Payments.ReconcilePending(ctx)
		}).ServeHTTP)
	})

	r.Get("/health", health.New(logger, svc.Health).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
