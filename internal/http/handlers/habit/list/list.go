// Package list реализует HTTP-обработчик списка привычек пользователя
// с текущей серией и отметкой за сегодняшний период.
package list

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/habit-tracker/internal/http/middlewarectx"
	"github.com/magabrotheeeer/habit-tracker/internal/http/response"
	"github.com/magabrotheeeer/habit-tracker/internal/lib/sl"
	"github.com/magabrotheeeer/habit-tracker/internal/models"
)

// Handler обрабатывает запросы списка привычек.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс получения привычек.
type Service interface {
	List(ctx context.Context, telegramID int64) ([]models.HabitView, error)
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Список привычек
// @Tags Habits
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=[]models.HabitResponse}
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /habits [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.habit.list"
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

	views, err := h.service.List(r.Context(), telegramID)
	if err != nil {
		log.Error("failed to list habits", sl.Err(err))
		response.WriteError(w, r, err)
		return
	}

	habits := make([]models.HabitResponse, 0, len(views))
	for _, v := range views {
		habits = append(habits, models.NewHabitViewResponse(v))
	}
	render.JSON(w, r, response.OKWithData(habits))
}
