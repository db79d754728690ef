// Package jobs реализует внутренние эндпоинты запуска фоновых задач:
// рассылки напоминаний, истечения подписок и перепроверки платежей.
// Их вызывает планировщик по расписанию.
package jobs

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/habit-tracker/internal/http/response"
	"github.com/magabrotheeeer/habit-tracker/internal/lib/sl"
)

// Job выполняет задачу и возвращает ее итог.
type Job func(ctx context.Context) (any, error)

// Handler запускает задачу по запросу.
type Handler struct {
	log  *slog.Logger
	name string
	job  Job
}

// New создает Handler для задачи name.
func New(log *slog.Logger, name string, job Job) *Handler {
	return &Handler{
		log:  log,
		name: name,
		job:  job,
	}
}

// ServeHTTP godoc
// @Summary Запуск фоновой задачи
// @Description Доступен только с внутренним токеном. Задачи идемпотентны, повторный запуск безопасен.
// @Tags Internal
// @Produce  json
// @Security InternalToken
// @Success 200 {object} response.Response
// @Failure 401 {object} response.ErrorResponse "Неверный токен"
// @Failure 500 {object} response.ErrorResponse "Ошибка задачи"
// @Router /internal/reminders/sweep [post]
// @Router /internal/subscriptions/expire [post]
// @Router /internal/payments/recheck [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.jobs"
	log := h.log.With(
		slog.String("op", op),
		slog.String("job", h.name),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	started := time.Now()
	res, err := h.job(r.Context())
	if err != nil {
		log.Error("job failed", sl.Err(err))
		response.WriteError(w, r, err)
		return
	}

	log.Info("job finished", slog.Duration("took", time.Since(started)))
	render.JSON(w, r, response.OKWithData(res))
}
