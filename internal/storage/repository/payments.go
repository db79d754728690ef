package repository

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/magabrotheeeer/habit-tracker/internal/models"
)

const paymentColumns = `id, user_id, gateway_payment_id, amount::text, currency, status,
	payment_method, confirmation_url, idempotency_key, metadata, created_at, updated_at`

var liveStatuses = []string{
	models.PaymentStatusPending.String(),
	models.PaymentStatusWaitingForCapture.String(),
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	var (
		p                          models.Payment
		gatewayID, method, confURL sql.NullString
		status                     string
		metadata                   []byte
	)
	if err := row.Scan(&p.ID, &p.UserID, &gatewayID, &p.Amount, &p.Currency, &status,
		&method, &confURL, &p.IdempotencyKey, &metadata, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if p.Status, err = models.ParsePaymentStatus(status); err != nil {
		return nil, err
	}
	p.GatewayPaymentID = stringPtr(gatewayID)
	p.PaymentMethod = stringPtr(method)
	p.ConfirmationURL = stringPtr(confURL)
	p.Metadata = decodeMetadata(metadata)
	return &p, nil
}

// decodeMetadata приводит значения метаданных к строкам. Неразборчивые
// метаданные дают пустую карту, ошибка проявится при активации подписки.
func decodeMetadata(raw []byte) map[string]string {
	out := map[string]string{}
	var fields map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return out
	}
	for k, v := range fields {
		switch val := v.(type) {
		case nil:
		case string:
			out[k] = val
		case json.Number:
			out[k] = val.String()
		case bool:
			out[k] = strconv.FormatBool(val)
		default:
			if b, err := json.Marshal(val); err == nil {
				out[k] = string(b)
			}
		}
	}
	return out
}

// CreatePayment сохраняет платеж, созданный в шлюзе.
func (s *Storage) CreatePayment(ctx context.Context, p models.Payment) (*models.Payment, error) {
	const op = "storage.CreatePayment"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	metadata, err := json.Marshal(p.Metadata)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	query := `INSERT INTO payments (user_id, gateway_payment_id, amount, currency, status,
			      payment_method, confirmation_url, idempotency_key, metadata)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			  RETURNING ` + paymentColumns
	created, err := scanPayment(s.exec(ctx).QueryRowContext(ctx, query,
		p.UserID, nullString(p.GatewayPaymentID), p.Amount, p.Currency, p.Status.String(),
		nullString(p.PaymentMethod), nullString(p.ConfirmationURL), p.IdempotencyKey, metadata))
	if err != nil {
		return nil, mapErr(op, err)
	}
	return created, nil
}

// GetPaymentByGatewayID возвращает платеж по идентификатору шлюза.
func (s *Storage) GetPaymentByGatewayID(ctx context.Context, gatewayID string) (*models.Payment, error) {
	const op = "storage.GetPaymentByGatewayID"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	p, err := scanPayment(s.exec(ctx).QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE gateway_payment_id = $1`, gatewayID))
	if err != nil {
		return nil, mapErr(op, err)
	}
	return p, nil
}

// LockPaymentByGatewayID читает платеж с блокировкой строки до конца транзакции.
func (s *Storage) LockPaymentByGatewayID(ctx context.Context, gatewayID string) (*models.Payment, error) {
	const op = "storage.LockPaymentByGatewayID"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	p, err := scanPayment(s.exec(ctx).QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE gateway_payment_id = $1 FOR UPDATE`, gatewayID))
	if err != nil {
		return nil, mapErr(op, err)
	}
	return p, nil
}

// GetUserPayment возвращает платеж, принадлежащий пользователю.
func (s *Storage) GetUserPayment(ctx context.Context, userID, paymentID int64) (*models.Payment, error) {
	const op = "storage.GetUserPayment"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	p, err := scanPayment(s.exec(ctx).QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1 AND user_id = $2`, paymentID, userID))
	if err != nil {
		return nil, mapErr(op, err)
	}
	return p, nil
}

// LatestPayment возвращает последний платеж пользователя.
func (s *Storage) LatestPayment(ctx context.Context, userID int64) (*models.Payment, error) {
	const op = "storage.LatestPayment"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	p, err := scanPayment(s.exec(ctx).QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT 1`, userID))
	if err != nil {
		return nil, mapErr(op, err)
	}
	return p, nil
}

// FindLivePending возвращает самый свежий незавершенный платеж пользователя,
// созданный после since.
func (s *Storage) FindLivePending(ctx context.Context, userID int64, since time.Time) (*models.Payment, error) {
	const op = "storage.FindLivePending"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	p, err := scanPayment(s.exec(ctx).QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE user_id = $1 AND status IN ($2, $3) AND created_at > $4
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		userID, liveStatuses[0], liveStatuses[1], since.UTC()))
	if err != nil {
		return nil, mapErr(op, err)
	}
	return p, nil
}

// ListPendingBetween возвращает незавершенные платежи, созданные в интервале (after, before].
func (s *Storage) ListPendingBetween(ctx context.Context, after, before time.Time) ([]models.Payment, error) {
	const op = "storage.ListPendingBetween"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.exec(ctx).QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE status IN ($1, $2) AND gateway_payment_id IS NOT NULL
		   AND created_at > $3 AND created_at <= $4
		 ORDER BY created_at`,
		liveStatuses[0], liveStatuses[1], after.UTC(), before.UTC())
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// UpdatePaymentStatus сохраняет наблюдаемый статус и способ оплаты.
func (s *Storage) UpdatePaymentStatus(ctx context.Context, paymentID int64, status models.PaymentStatus, method *string) error {
	const op = "storage.UpdatePaymentStatus"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	res, err := s.exec(ctx).ExecContext(ctx,
		`UPDATE payments
		 SET status = $1, payment_method = COALESCE($2, payment_method), updated_at = now()
		 WHERE id = $3`, status.String(), nullString(method), paymentID)
	if err != nil {
		return mapErr(op, err)
	}
	return requireAffected(op, res)
}
