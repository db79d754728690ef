// Package paymentcreate реализует HTTP-обработчик создания платежа за подписку.
//
// Ключ идемпотентности берется из заголовка Idempotence-Key. Без заголовка
// сервис генерирует ключ сам.
package paymentcreate

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

// IdempotenceKeyHeader заголовок с ключом идемпотентности клиента.
const IdempotenceKeyHeader = "Idempotence-Key"

// Handler обрабатывает создание платежа.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс создания платежа.
type Service interface {
	CreatePayment(ctx context.Context, telegramID int64, planID, idempotencyKey string) (*models.Payment, error)
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
// @Summary Создать платеж
// @Description Создает платеж в шлюзе и возвращает ссылку на оплату. Если незавершенный платеж уже есть, возвращается он.
// @Tags Payments
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param Idempotence-Key header string false "Ключ идемпотентности"
// @Param request body models.CreatePaymentRequest true "Тариф"
// @Success 201 {object} response.Response{data=models.PaymentResponse}
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 409 {object} response.ErrorResponse "Платеж уже оплачен"
// @Failure 422 {object} response.ErrorResponse "Неизвестный тариф"
// @Failure 503 {object} response.ErrorResponse "Шлюз недоступен"
// @Router /payments [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.create"
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

	var req models.CreatePaymentRequest
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

	p, err := h.service.CreatePayment(r.Context(), telegramID, req.PlanID, r.Header.Get(IdempotenceKeyHeader))
	if err != nil {
		log.Warn("failed to create payment", slog.String("plan_id", req.PlanID), sl.Err(err))
		response.WriteError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.OKWithData(models.NewPaymentResponse(*p)))
}
