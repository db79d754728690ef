// Package response содержит вспомогательные типы и функции для формирования
// унифицированных JSON‑ответов HTTP‑обработчиков. Доменные ошибки
// сопоставляются со статусами HTTP в одном месте.
package response

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/habit-tracker/internal/models"
)

// Response описывает стандартную структуру JSON‑ответа сервера.
// Поле Status: статус запроса ("OK" или "Error").
// Поле Error: текст ошибки (опционально, при неуспехе).
// Поле Data: данные ответа (опционально, при успехе).
type Response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// ErrorResponse структура ошибки. UpgradeRequired подсказывает клиенту
// предложить подписку, Retryable разрешает повторить запрос позже.
type ErrorResponse struct {
	Status          string `json:"status" example:"Error"`
	Error           string `json:"error" example:"invalid request body"`
	UpgradeRequired bool   `json:"upgrade_required" example:"false"`
	Retryable       bool   `json:"retryable" example:"false"`
}

const (
	// StatusOK: значение статуса для успешного ответа.
	StatusOK = "OK"
	// StatusError: значение статуса для ответа с ошибкой.
	StatusError = "Error"
)

// RetryAfterSeconds значение заголовка Retry-After при недоступности шлюза.
const RetryAfterSeconds = 30

// OKWithData возвращает успешный Response с переданными данными.
func OKWithData(data any) Response {
	return Response{
		Status: StatusOK,
		Data:   data,
	}
}

// Error возвращает ErrorResponse с переданным сообщением.
func Error(msg string) ErrorResponse {
	return ErrorResponse{
		Status: StatusError,
		Error:  msg,
	}
}

// ValidationError формирует ErrorResponse на основе ошибок валидации.
// Каждое нарушение формируется в человеко‑читаемый текст, объединённый через запятую.
func ValidationError(errs validator.ValidationErrors) ErrorResponse {
	var errsMsgs []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is a required field", err.Field()))
		case "max":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be at most %s characters long", err.Field(), err.Param()))
		case "oneof":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be one of: %s", err.Field(), err.Param()))
		case "gte":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must not be negative", err.Field()))
		default:
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is not a valid", err.Field()))
		}
	}
	return Error(strings.Join(errsMsgs, ", "))
}

type mapping struct {
	target  error
	status  int
	upgrade bool
	retry   bool
}

var mappings = []mapping{
	{target: models.ErrValidation, status: http.StatusUnprocessableEntity},
	{target: models.ErrUnknownPlan, status: http.StatusUnprocessableEntity},
	{target: models.ErrUnauthenticated, status: http.StatusUnauthorized},
	{target: models.ErrNotFound, status: http.StatusNotFound},
	{target: models.ErrLimitExceeded, status: http.StatusForbidden, upgrade: true},
	{target: models.ErrPremiumRequired, status: http.StatusForbidden, upgrade: true},
	{target: models.ErrConflict, status: http.StatusConflict},
	{target: models.ErrAlreadySubscribed, status: http.StatusConflict},
	{target: models.ErrUpstreamUnavailable, status: http.StatusServiceUnavailable, retry: true},
}

// FromError сопоставляет доменную ошибку со статусом HTTP и телом ответа.
// Текст неизвестных ошибок наружу не отдается.
func FromError(err error) (int, ErrorResponse) {
	for _, m := range mappings {
		if errors.Is(err, m.target) {
			resp := Error(publicMessage(err, m.target))
			resp.UpgradeRequired = m.upgrade
			resp.Retryable = m.retry
			return m.status, resp
		}
	}
	return http.StatusInternalServerError, Error("internal error")
}

// WriteError отправляет ответ с ошибкой err.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := FromError(err)
	if resp.Retryable {
		w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds))
	}
	render.Status(r, status)
	render.JSON(w, r, resp)
}

// publicMessage отрезает от текста ошибки префиксы операций до сигнальной ошибки.
func publicMessage(err, target error) string {
	msg := err.Error()
	if i := strings.Index(msg, target.Error()); i >= 0 {
		return msg[i:]
	}
	return target.Error()
}
