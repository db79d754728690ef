// Package update реализует HTTP-обработчик изменения привычки.
package update

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/habit-tracker/internal/http/middlewarectx"
	"github.com/magabrotheeeer/habit-tracker/internal/http/response"
	"github.com/magabrotheeeer/habit-tracker/internal/lib/sl"
	"github.com/magabrotheeeer/habit-tracker/internal/models"
)

// Handler управляет HTTP-запросами на изменение привычки.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики изменения привычки.
type Service interface {
	Update(ctx context.Context, telegramID, habitID int64, draft models.HabitDraft) (*models.Habit, error)
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Изменить привычку
// @Description Полностью заменяет поля привычки. Без подписки напоминание и цель молча отключаются.
// @Tags Habits
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param id path int true "ID привычки"
// @Param request body models.HabitRequest true "Новые данные привычки"
// @Success 200 {object} response.Response{data=models.HabitResponse}
// @Failure 400 {object} response.ErrorResponse "Некорректный запрос"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Привычка не найдена"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /habits/{id} [put]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.habit.update"
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

	var req models.HabitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to decode request", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		log.Warn("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}
	draft, err := req.Draft()
	if err != nil {
		response.WriteError(w, r, err)
		return
	}

	habit, err := h.service.Update(r.Context(), telegramID, habitID, draft)
	if err != nil {
		log.Warn("failed to update habit", slog.Int64("habit_id", habitID), sl.Err(err))
		response.WriteError(w, r, err)
		return
	}

	log.Info("habit updated", slog.Int64("habit_id", habitID))
	render.JSON(w, r, response.OKWithData(models.NewHabitResponse(*habit)))
}
