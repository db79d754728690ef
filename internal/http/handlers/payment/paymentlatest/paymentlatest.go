// Package paymentlatest реализует HTTP-обработчик проверки последнего платежа пользователя.
package paymentlatest

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
	paymentservice "github.com/magabrotheeeer/habit-tracker/internal/services/payment"
)

// Handler обрабатывает проверку последнего платежа.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс проверки последнего платежа.
type Service interface {
	CheckLatest(ctx context.Context, telegramID int64) (*paymentservice.CheckResult, error)
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Последний платеж
// @Description Используется клиентом после возврата со страницы оплаты.
// @Tags Payments
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=models.PaymentCheckResponse}
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Платежей нет"
// @Failure 503 {object} response.ErrorResponse "Шлюз недоступен"
// @Router /payments/latest [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.latest"
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

	res, err := h.service.CheckLatest(r.Context(), telegramID)
	if err != nil {
		log.Warn("failed to check latest payment", sl.Err(err))
		response.WriteError(w, r, err)
		return
	}
	render.JSON(w, r, response.OKWithData(models.PaymentCheckResponse{
		Payment:      models.NewPaymentResponse(*res.Payment),
		Subscription: res.Subscription,
	}))
}
