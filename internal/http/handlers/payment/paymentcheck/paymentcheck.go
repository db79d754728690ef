// Package paymentcheck реализует HTTP-обработчик проверки платежа по запросу клиента.
// Незавершенный платеж перед ответом сверяется со шлюзом.
package paymentcheck

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
	paymentservice "github.com/magabrotheeeer/habit-tracker/internal/services/payment"
)

// Handler обрабатывает проверку платежа.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс проверки платежа.
type Service interface {
	CheckPayment(ctx context.Context, telegramID, paymentID int64) (*paymentservice.CheckResult, error)
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Проверить платеж
// @Tags Payments
// @Produce  json
// @Security BearerAuth
// @Param id path int true "ID платежа"
// @Success 200 {object} response.Response{data=models.PaymentCheckResponse}
// @Failure 400 {object} response.ErrorResponse "Некорректный id"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Платеж не найден"
// @Failure 503 {object} response.ErrorResponse "Шлюз недоступен"
// @Router /payments/{id} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.check"
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

	paymentID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || paymentID <= 0 {
		log.Warn("failed to decode id from url", slog.String("id", chi.URLParam(r, "id")))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode id from url"))
		return
	}

	res, err := h.service.CheckPayment(r.Context(), telegramID, paymentID)
	if err != nil {
		log.Warn("failed to check payment", slog.Int64("payment_id", paymentID), sl.Err(err))
		response.WriteError(w, r, err)
		return
	}
	render.JSON(w, r, response.OKWithData(models.PaymentCheckResponse{
		Payment:      models.NewPaymentResponse(*res.Payment),
		Subscription: res.Subscription,
	}))
}
