// Package create реализует HTTP-обработчик создания привычки.
//
// Handler принимает JSON с данными привычки, валидирует его, берет аккаунт
// из контекста и передает черновик сервису, который проверяет лимит
// бесплатного тарифа и доступность функций подписки.
package create

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/habit-tracker/internal/http/middlewarectx"
	"github.com/magabrotheeeer/habit-tracker/internal/http/response"
	"github.com/magabrotheeeer/habit-tracker/internal/lib/sl"
	"github.com/magabrotheeeer/habit-tracker/internal/models"
)

// Handler управляет HTTP-запросами на создание привычек.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики создания привычки.
type Service interface {
	Create(ctx context.Context, telegramID int64, draft models.HabitDraft) (*models.Habit, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Создать привычку
// @Description Создает привычку. Без подписки доступно не больше трех привычек, напоминания и цели недоступны.
// @Tags Habits
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body models.HabitRequest true "Данные привычки"
// @Success 201 {object} response.Response{data=models.HabitResponse}
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 403 {object} response.ErrorResponse "Нужна подписка"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /habits [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.habit.create"
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

	habit, err := h.service.Create(r.Context(), telegramID, draft)
	if err != nil {
		log.Warn("failed to create habit", sl.Err(err))
		response.WriteError(w, r, err)
		return
	}

	log.Info("habit created", slog.Int64("habit_id", habit.ID))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.OKWithData(models.NewHabitResponse(*habit)))
}
