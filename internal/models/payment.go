package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// PaymentStatus статус платежа в платежном шлюзе.
type PaymentStatus int

const (
	PaymentStatusPending PaymentStatus = iota
	PaymentStatusWaitingForCapture
	PaymentStatusSucceeded
	PaymentStatusCanceled
)

func (s PaymentStatus) String() string {
	switch s {
	case PaymentStatusWaitingForCapture:
		return "waiting_for_capture"
	case PaymentStatusSucceeded:
		return "succeeded"
	case PaymentStatusCanceled:
		return "canceled"
	default:
		return "pending"
	}
}

// Terminal сообщает, что статус больше не изменится.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusSucceeded || s == PaymentStatusCanceled
}

// MarshalJSON отдает статус строкой.
func (s PaymentStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// ParsePaymentStatus разбирает статус, пришедший из шлюза или из БД.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch s {
	case "pending":
		return PaymentStatusPending, nil
	case "waiting_for_capture":
		return PaymentStatusWaitingForCapture, nil
	case "succeeded":
		return PaymentStatusSucceeded, nil
	case "canceled":
		return PaymentStatusCanceled, nil
	}
	return PaymentStatusPending, fmt.Errorf("unknown payment status %q", s)
}

// Ключи метаданных платежа.
const (
	MetaPlanID       = "plan_id"
	MetaPlanName     = "plan_name"
	MetaDurationDays = "duration_days"
	MetaTelegramID   = "telegram_id"
)

// Payment представляет платеж за подписку.
type Payment struct {
	ID               int64
	UserID           int64
	GatewayPaymentID *string
	Amount           string
	Currency         string
	Status           PaymentStatus
	PaymentMethod    *string
	ConfirmationURL  *string
	IdempotencyKey   string
	Metadata         map[string]string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PlanID возвращает идентификатор тарифа из метаданных.
func (p *Payment) PlanID() (string, error) {
	id, ok := p.Metadata[MetaPlanID]
	if !ok || id == "" {
		return "", ErrMetadataCorrupt
	}
	return id, nil
}

// Plan тариф подписки.
type Plan struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Amount       string   `json:"amount"`
	Currency     string   `json:"currency"`
	DurationDays int      `json:"duration_days"`
	Features     []string `json:"features"`
}
