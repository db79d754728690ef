package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/habit-tracker/internal/lib/sl"
	"github.com/magabrotheeeer/habit-tracker/internal/models"
)

const notificationType = "notification"

// Notification тело уведомления шлюза. Поддерживаются две формы:
// {"type":"payment.succeeded","object":{...}} и
// {"type":"notification","event":"payment.succeeded","object":{...}},
// в последней event может отсутствовать.
type Notification struct {
	Type   string `json:"type"`
	Event  string `json:"event,omitempty"`
	Object struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"object"`
}

// Event нормализованное уведомление.
type Event struct {
	Name      string // Например "payment.succeeded"
	PaymentID string
	Status    string
	RawType   string
}

// ParseNotification разбирает и нормализует уведомление.
func ParseNotification(body []byte) (*Event, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("%w: malformed notification: %v", models.ErrValidation, err)
	}
	if n.Object.ID == "" {
		return nil, fmt.Errorf("%w: notification without object id", models.ErrValidation)
	}

	ev := &Event{PaymentID: n.Object.ID, Status: n.Object.Status, RawType: n.Type}
	switch {
	case strings.HasPrefix(n.Type, "payment."):
		ev.Name = n.Type
	case n.Type == notificationType && n.Event != "":
		ev.Name = n.Event
	case n.Type == notificationType && n.Object.Status != "":
		ev.Name = "payment." + n.Object.Status
	default:
		return nil, fmt.Errorf("%w: unsupported notification type %q", models.ErrValidation, n.Type)
	}
	if ev.Status == "" {
		ev.Status = strings.TrimPrefix(ev.Name, "payment.")
	}
	return ev, nil
}

// Signature вычисляет подпись sha256(type&id&status&secret) в hex.
func Signature(eventType, objectID, objectStatus, secret string) string {
	sum := sha256.Sum256([]byte(eventType + "&" + objectID + "&" + objectStatus + "&" + secret))
	return hex.EncodeToString(sum[:])
}

// VerifySignature сравнивает подпись без учета регистра.
func VerifySignature(ev *Event, secret, signature string) bool {
	if signature == "" {
		return false
	}
	return strings.EqualFold(Signature(ev.RawType, ev.PaymentID, ev.Status, secret), strings.TrimSpace(signature))
}

// HandleWebhook принимает уведомление и запускает сверку в фоне. Ответ шлюзу
// не зависит от результата сверки. Несовпадение подписи только логируется:
// статус в любом случае перечитывается из шлюза.
func (s *Service) HandleWebhook(body []byte, signature string) (*Event, error) {
	const op = "payment.HandleWebhook"
	log := s.log.With(slog.String("op", op))

	ev, err := ParseNotification(body)
	if err != nil {
		log.Warn("rejected notification", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	log = log.With(slog.String("gateway_payment_id", ev.PaymentID), slog.String("event", ev.Name))

	if s.cfg.VerifySignatures {
		if VerifySignature(ev, s.cfg.WebhookSecret, signature) {
			s.metrics.WebhookSignature("ok")
		} else {
			s.metrics.WebhookSignature("mismatch")
			log.Warn("webhook signature missing or mismatched, continuing with gateway re-fetch")
		}
	}

	started := s.goTracked(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		outcome, err := s.Reconcile(ctx, ev.PaymentID, ev.Status, SourceWebhook)
		if err != nil {
			log.Error("webhook reconciliation failed", sl.Err(err))
			return
		}
		log.Info("webhook processed",
			slog.Bool("changed", outcome.Changed), slog.Bool("activated", outcome.Activated))
	})
	if !started {
		log.Warn("service is shutting down, notification dropped")
	}
	return ev, nil
}
