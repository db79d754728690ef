// Package paymentwebhook реализует прием уведомлений платежного шлюза.
//
// Шлюзу отвечаем сразу после разбора тела. Сверка идет в фоне, ее результат
// на ответ не влияет. Некорректное тело отклоняется с 400, чтобы шлюз
// не повторял его бесконечно с тем же содержимым.
package paymentwebhook

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/habit-tracker/internal/http/response"
	"github.com/magabrotheeeer/habit-tracker/internal/lib/sl"
	"github.com/magabrotheeeer/habit-tracker/internal/models"
	paymentservice "github.com/magabrotheeeer/habit-tracker/internal/services/payment"
)

// SignatureHeader заголовок с подписью уведомления.
const SignatureHeader = "X-Api-Signature"

// maxBodyBytes предел размера тела уведомления.
const maxBodyBytes = 64 << 10

// Handler принимает уведомления шлюза.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает прием уведомления.
type Service interface {
	HandleWebhook(body []byte, signature string) (*paymentservice.Event, error)
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Уведомление платежного шлюза
// @Tags Payments
// @Accept  json
// @Produce  json
// @Param X-Api-Signature header string false "Подпись уведомления"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Некорректное уведомление"
// @Router /payments/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.webhook"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		log.Warn("failed to read notification body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	ev, err := h.service.HandleWebhook(body, r.Header.Get(SignatureHeader))
	if err != nil {
		if errors.Is(err, models.ErrValidation) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("invalid notification"))
			return
		}
		log.Error("failed to accept notification", sl.Err(err))
		response.WriteError(w, r, err)
		return
	}

	log.Info("notification accepted", slog.String("event", ev.Name), slog.String("gateway_payment_id", ev.PaymentID))
	render.JSON(w, r, response.Response{Status: response.StatusOK})
}
