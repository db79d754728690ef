// Package toggle реализует HTTP-обработчик переключения отметки выполнения
// привычки за текущий период. Повторный вызов снимает отметку.
package toggle

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
	habitservice "github.com/magabrotheeeer/habit-tracker/internal/services/habit"
)

// Handler обрабатывает переключение отметки.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс переключения отметки.
type Service interface {
	Toggle(ctx context.Context, telegramID, habitID int64) (*habitservice.ToggleResult, error)
}

// Result ответ на переключение.
type Result struct {
	HabitID   int64 `json:"habit_id"`
	Completed bool  `json:"completed"`
	Streak    int   `json:"streak"`
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Отметить выполнение
// @Description Ставит отметку за текущий период или снимает ее, если она уже есть. Возвращает новое состояние и серию.
// @Tags Habits
// @Produce  json
// @Security BearerAuth
// @Param id path int true "ID привычки"
// @Success 200 {object} response.Response{data=Result}
// @Failure 400 {object} response.ErrorResponse "Некорректный id"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Привычка не найдена"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /habits/{id}/toggle [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.habit.toggle"
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

	res, err := h.service.Toggle(r.Context(), telegramID, habitID)
	if err != nil {
		log.Warn("failed to toggle habit", slog.Int64("habit_id", habitID), sl.Err(err))
		response.WriteError(w, r, err)
		return
	}

	log.Info("habit toggled", slog.Int64("habit_id", habitID), slog.Bool("completed", res.Completed))
	render.JSON(w, r, response.OKWithData(Result{
		HabitID:   res.HabitID,
		Completed: res.Completed,
		Streak:    res.Streak,
	}))
}
