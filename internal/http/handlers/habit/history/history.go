// Package history реализует HTTP-обработчик истории отметок привычки за последние дни.
package history

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
	"github.com/magabrotheeeer/habit-tracker/internal/models"
)

// Handler обрабатывает запрос истории.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс получения истории.
type Service interface {
	History(ctx context.Context, telegramID, habitID int64) ([]models.DayMark, error)
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary История привычки
// @Description Отметки за последние семь периодов, старые первыми.
// @Tags Habits
// @Produce  json
// @Security BearerAuth
// @Param id path int true "ID привычки"
// @Success 200 {object} response.Response{data=[]models.DayMarkResponse}
// @Failure 400 {object} response.ErrorResponse "Некорректный id"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Привычка не найдена"
// @Router /habits/{id}/history [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.habit.history"
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

	marks, err := h.service.History(r.Context(), telegramID, habitID)
	if err != nil {
		log.Warn("failed to load history", slog.Int64("habit_id", habitID), sl.Err(err))
		response.WriteError(w, r, err)
		return
	}
	render.JSON(w, r, response.OKWithData(models.NewHistoryResponse(marks)))
}
