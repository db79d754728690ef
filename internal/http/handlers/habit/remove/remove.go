// Package remove реализует HTTP-обработчик удаления привычки вместе с ее отметками.
package remove

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/habit-tracker/internal/http/middlewarectx"
	"github.com/magabrotheeeer/habit-tracker/internal/http/response"
	"github.com/magabrotheeeer/habit-tracker/internal/lib/sl"
)

// Handler обрабатывает HTTP-запросы на удаление привычки.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики удаления привычки.
type Service interface {
	Delete(ctx context.Context, telegramID, habitID int64) error
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Удалить привычку
// @Tags Habits
// @Produce  json
// @Security BearerAuth
// @Param id path int true "ID привычки"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Некорректный id"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Привычка не найдена"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /habits/{id} [delete]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.habit.remove"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	telegramID, ok := middlewarectx.TelegramIDFrom(r.Context())
	if !ok {
		log.Error("telegram id not found in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	habitID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || habitID <= 0 {
		log.Warn("failed to decode id from url", slog.String("id", chi.URLParam(r, "id")))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode id from url"))
		return
	}

	if err := h.service.Delete(r.Context(), telegramID, habitID); err != nil {
		log.Warn("failed to delete habit", slog.Int64("habit_id", habitID), sl.Err(err))
		response.WriteError(w, r, err)
		return
	}

	log.Info("habit deleted", slog.Int64("habit_id", habitID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"deleted_id": habitID,
	}))
}
