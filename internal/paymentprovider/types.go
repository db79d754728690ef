package paymentprovider

import (
	"time"

	"github.com/magabrotheeeer/habit-tracker/internal/models"
)

// Amount денежная сумма в формате ЮKassa: строка с двумя знаками после точки.
type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// Confirmation сценарий подтверждения платежа.
type Confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

// PaymentMethod способ оплаты, которым был проведен платеж.
type PaymentMethod struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Saved bool   `json:"saved"`
}

// CreatePaymentRequest запрос на создание платежа.
type CreatePaymentRequest struct {
	Amount       Amount            `json:"amount"`
	Capture      bool              `json:"capture"`
	Confirmation Confirmation      `json:"confirmation"`
	Description  string            `json:"description,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Payment платеж в ЮKassa.
type Payment struct {
	ID            string            `json:"id"`
	Status        string            `json:"status"`
	Paid          bool              `json:"paid"`
	Amount        Amount            `json:"amount"`
	Confirmation  *Confirmation     `json:"confirmation,omitempty"`
	PaymentMethod *PaymentMethod    `json:"payment_method,omitempty"`
	Description   string            `json:"description,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// ParsedStatus переводит статус шлюза в доменный.
func (p *Payment) ParsedStatus() (models.PaymentStatus, error) {
	return models.ParsePaymentStatus(p.Status)
}

// ConfirmationURL ссылка на страницу оплаты, если шлюз ее вернул.
func (p *Payment) ConfirmationURL() *string {
	if p.Confirmation == nil || p.Confirmation.ConfirmationURL == "" {
		return nil
	}
	u := p.Confirmation.ConfirmationURL
	return &u
}

// MethodType тип способа оплаты, если он известен.
func (p *Payment) MethodType() *string {
	if p.PaymentMethod == nil || p.PaymentMethod.Type == "" {
		return nil
	}
	t := p.PaymentMethod.Type
	return &t
}

// apiError тело ответа ЮKassa с ошибкой.
type apiError struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	Code        string `json:"code"`
	Description string `json:"description"`
}
