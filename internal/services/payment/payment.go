// Package payment сводит наблюдения статуса платежа из трех источников
// (уведомление шлюза, отложенная проверка после создания, запрос клиента)
// к одному состоянию платежа и подписки пользователя.
//
// Reconcile единственное место, где меняется статус платежа и поля подписки.
// Статус всегда перечитывается из шлюза, завершенный платеж повторно не
// обрабатывается, а подписка активируется только при переходе в succeeded.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/magabrotheeeer/habit-tracker/internal/lib/sl"
	"github.com/magabrotheeeer/habit-tracker/internal/metrics"
	"github.com/magabrotheeeer/habit-tracker/internal/models"
	"github.com/magabrotheeeer/habit-tracker/internal/paymentprovider"
)

// Source канал, из которого пришло наблюдение статуса.
type Source string

const (
	SourceWebhook Source = "webhook"
	SourcePoll    Source = "poll"
	SourcePull    Source = "pull"
	SourceSweep   Source = "sweep"
)

// Repository доступ к хранилищу, нужный сервису платежей.
type Repository interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	LockUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	LockUserByID(ctx context.Context, userID int64) (*models.User, error)
	ActivateSubscription(ctx context.Context, userID int64, startedAt, expiresAt time.Time) error
	CreatePayment(ctx context.Context, p models.Payment) (*models.Payment, error)
	GetPaymentByGatewayID(ctx context.Context, gatewayID string) (*models.Payment, error)
	LockPaymentByGatewayID(ctx context.Context, gatewayID string) (*models.Payment, error)
	GetUserPayment(ctx context.Context, userID, paymentID int64) (*models.Payment, error)
	LatestPayment(ctx context.Context, userID int64) (*models.Payment, error)
	FindLivePending(ctx context.Context, userID int64, since time.Time) (*models.Payment, error)
	ListPendingBetween(ctx context.Context, after, before time.Time) ([]models.Payment, error)
	UpdatePaymentStatus(ctx context.Context, paymentID int64, status models.PaymentStatus, method *string) error
}

// Gateway платежный шлюз.
type Gateway interface {
	CreatePayment(ctx context.Context, req paymentprovider.CreatePaymentRequest, idempotencyKey string) (*paymentprovider.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*paymentprovider.Payment, error)
}

// Config параметры жизненного цикла платежей.
type Config struct {
	ReturnURL        string
	PendingTTL       time.Duration // Возраст, после которого незавершенный платеж не считается живым
	PollDelay        time.Duration // Задержка проверки после создания, 0 отключает проверку
	RecheckAfter     time.Duration // Минимальный возраст платежа для повторной проверки
	WebhookSecret    string
	VerifySignatures bool
}

// Outcome результат сверки.
type Outcome struct {
	Payment   *models.Payment
	Previous  models.PaymentStatus
	Changed   bool
	Activated bool
	ExpiresAt *time.Time
}

// CheckResult платеж и состояние подписки после проверки.
type CheckResult struct {
	Payment      *models.Payment
	Subscription models.SubscriptionView
}

// SweepResult итог повторной проверки незавершенных платежей.
type SweepResult struct {
	Checked   int `json:"checked"`
	Changed   int `json:"changed"`
	Activated int `json:"activated"`
	Failed    int `json:"failed"`
}

const reconcileTimeout = 30 * time.Second

// Service сервис платежей.
type Service struct {
	repo    Repository
	gateway Gateway
	plans   *Catalogue
	cfg     Config
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time

	group singleflight.Group

	mu     sync.Mutex
	closed bool
	timers map[*time.Timer]struct{}
	tasks  sync.WaitGroup
}

// Option настраивает Service.
type Option func(*Service)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New создает сервис платежей.
func New(repo Repository, gateway Gateway, plans *Catalogue, cfg Config, m *metrics.Metrics, log *slog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		gateway: gateway,
		plans:   plans,
		cfg:     cfg,
		metrics: m,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
		timers:  make(map[*time.Timer]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListPlans возвращает каталог тарифов.
func (s *Service) ListPlans() []models.Plan {
	return s.plans.List()
}

// CreatePayment создает платеж за тариф planID. Если у пользователя уже есть
// живой незавершенный платеж, он перепроверяется в шлюзе: оплаченный
// применяется и возвращается ErrAlreadySubscribed, ожидающий возвращается
// как есть, отмененный записывается и создается новый.
func (s *Service) CreatePayment(ctx context.Context, telegramID int64, planID, idempotencyKey string) (*models.Payment, error) {
	const op = "payment.CreatePayment"
	log := s.log.With(slog.String("op", op), slog.Int64("telegram_id", telegramID), slog.String("plan_id", planID))

	plan, err := s.plans.Find(planID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, models.ErrValidation, err)
	}
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}

	var (
		result    *models.Payment
		created   bool
		alreadyOK bool
	)
	err = s.repo.RunInTx(ctx, func(ctx context.Context) error {
		owner, err := s.repo.LockUserByTelegramID(ctx, telegramID)
		if err != nil {
			return err
		}

		live, err := s.repo.FindLivePending(ctx, owner.ID, s.now().Add(-s.cfg.PendingTTL))
		switch {
		case err == nil && live.GatewayPaymentID != nil:
			remote, status, err := s.fetch(ctx, *live.GatewayPaymentID)
			if err != nil {
				return err
			}
			switch status {
			case models.PaymentStatusSucceeded:
				if _, err := s.applyObservation(ctx, *live.GatewayPaymentID, remote, status, SourcePull); err != nil {
					return err
				}
				alreadyOK = true
				return nil
			case models.PaymentStatusPending, models.PaymentStatusWaitingForCapture:
				result = live
				return nil
			case models.PaymentStatusCanceled:
				if _, err := s.applyObservation(ctx, *live.GatewayPaymentID, remote, status, SourcePull); err != nil {
					return err
				}
				log.Info("previous pending payment canceled, creating a new one")
			}
		case err != nil && !errors.Is(err, models.ErrNotFound):
			return err
		}

		result, err = s.create(ctx, owner, plan, idempotencyKey)
		created = err == nil
		return err
	})
	if err != nil {
		log.Error("failed to create payment", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if alreadyOK {
		log.Info("pending payment already succeeded")
		return nil, fmt.Errorf("%s: %w", op, models.ErrAlreadySubscribed)
	}

	if created {
		log.Info("payment created", slog.String("gateway_payment_id", *result.GatewayPaymentID))
		s.schedulePoll(*result.GatewayPaymentID)
	}
	return result, nil
}

// create создает платеж в шлюзе и сохраняет его.
func (s *Service) create(ctx context.Context, owner *models.User, plan models.Plan, idempotencyKey string) (*models.Payment, error) {
	metadata := map[string]string{
		models.MetaPlanID:       plan.ID,
		models.MetaPlanName:     plan.Name,
		models.MetaDurationDays: strconv.Itoa(plan.DurationDays),
		models.MetaTelegramID:   strconv.FormatInt(owner.TelegramID, 10),
	}
	remote, err := s.gateway.CreatePayment(ctx, paymentprovider.CreatePaymentRequest{
		Amount:  paymentprovider.Amount{Value: plan.Amount, Currency: plan.Currency},
		Capture: true,
		Confirmation: paymentprovider.Confirmation{
			Type:      "redirect",
			ReturnURL: s.cfg.ReturnURL,
		},
		Description: plan.Name,
		Metadata:    metadata,
	}, idempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrUpstreamUnavailable, err)
	}
	status, err := remote.ParsedStatus()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrUpstreamUnavailable, err)
	}

	gatewayID := remote.ID
	return s.repo.CreatePayment(ctx, models.Payment{
		UserID:           owner.ID,
		GatewayPaymentID: &gatewayID,
		Amount:           plan.Amount,
		Currency:         plan.Currency,
		Status:           status,
		PaymentMethod:    remote.MethodType(),
		ConfirmationURL:  remote.ConfirmationURL(),
		IdempotencyKey:   idempotencyKey,
		Metadata:         metadata,
	})
}

// Reconcile сверяет платеж со шлюзом. Одновременные вызовы для одного
// платежа внутри процесса объединяются. observed подсказка источника,
// решение принимается только по ответу шлюза.
func (s *Service) Reconcile(ctx context.Context, gatewayPaymentID, observed string, source Source) (*Outcome, error) {
	const op = "payment.Reconcile"

	// Общий вызов не зависит от отмены контекста того, кто пришел первым.
	ch := s.group.DoChan(gatewayPaymentID, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reconcileTimeout)
		defer cancel()
		return s.reconcile(ctx, gatewayPaymentID, observed, source)
	})

	select {
	case <-ctx.Done():
		s.metrics.Reconciled(string(source), "error")
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			s.metrics.Reconciled(string(source), "error")
			return nil, fmt.Errorf("%s: %w", op, res.Err)
		}
		return res.Val.(*Outcome), nil
	}
}

func (s *Service) reconcile(ctx context.Context, gatewayPaymentID, observed string, source Source) (*Outcome, error) {
	log := s.log.With(slog.String("gateway_payment_id", gatewayPaymentID), slog.String("source", string(source)))

	stored, err := s.repo.GetPaymentByGatewayID(ctx, gatewayPaymentID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			log.Warn("observation for unknown payment")
		}
		return nil, err
	}
	if stored.Status.Terminal() {
		s.metrics.Reconciled(string(source), "terminal")
		return &Outcome{Payment: stored, Previous: stored.Status}, nil
	}

	remote, status, err := s.fetch(ctx, gatewayPaymentID)
	if err != nil {
		log.Warn("failed to fetch payment from gateway", sl.Err(err))
		return nil, err
	}
	if observed != "" && observed != status.String() {
		log.Info("observed status differs from gateway", slog.String("observed", observed), slog.String("gateway", status.String()))
	}

	var outcome *Outcome
	err = s.repo.RunInTx(ctx, func(ctx context.Context) error {
		outcome, err = s.applyObservation(ctx, gatewayPaymentID, remote, status, source)
		return err
	})
	if err != nil {
		log.Error("failed to apply payment status", sl.Err(err))
		return nil, err
	}
	return outcome, nil
}

// fetch читает платеж из шлюза.
func (s *Service) fetch(ctx context.Context, gatewayPaymentID string) (*paymentprovider.Payment, models.PaymentStatus, error) {
	remote, err := s.gateway.GetPayment(ctx, gatewayPaymentID)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", models.ErrUpstreamUnavailable, err)
	}
	status, err := remote.ParsedStatus()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", models.ErrUpstreamUnavailable, err)
	}
	return remote, status, nil
}

// applyObservation сохраняет статус из шлюза под блокировкой строки платежа
// и активирует подписку при переходе в succeeded. Вызывается в транзакции.
// Строка владельца блокируется раньше строки платежа, как и в CreatePayment.
func (s *Service) applyObservation(ctx context.Context, gatewayPaymentID string, remote *paymentprovider.Payment,
	status models.PaymentStatus, source Source) (*Outcome, error) {
	stored, err := s.repo.GetPaymentByGatewayID(ctx, gatewayPaymentID)
	if err != nil {
		return nil, err
	}
	owner, err := s.repo.LockUserByID(ctx, stored.UserID)
	if err != nil {
		return nil, err
	}
	locked, err := s.repo.LockPaymentByGatewayID(ctx, gatewayPaymentID)
	if err != nil {
		return nil, err
	}
	outcome := &Outcome{Payment: locked, Previous: locked.Status}
	if locked.Status.Terminal() || locked.Status == status {
		s.metrics.Reconciled(string(source), "unchanged")
		return outcome, nil
	}

	method := remote.MethodType()
	if err := s.repo.UpdatePaymentStatus(ctx, locked.ID, status, method); err != nil {
		return nil, err
	}
	updated := *locked
	updated.Status = status
	if method != nil {
		updated.PaymentMethod = method
	}
	outcome.Payment = &updated
	outcome.Changed = true

	if status != models.PaymentStatusSucceeded {
		s.metrics.Reconciled(string(source), "changed")
		return outcome, nil
	}

	expires, err := s.activate(ctx, owner, locked)
	if err != nil {
		s.log.Error("failed to activate subscription",
			slog.String("gateway_payment_id", gatewayPaymentID), sl.Err(err))
		return nil, err
	}
	outcome.Activated = true
	outcome.ExpiresAt = &expires
	s.metrics.Reconciled(string(source), "activated")
	s.metrics.Activated()
	s.log.Info("subscription activated",
		slog.String("gateway_payment_id", gatewayPaymentID),
		slog.Int64("user_id", locked.UserID),
		slog.Time("expires_at", expires),
		slog.String("source", string(source)))
	return outcome, nil
}

// activate продлевает активную подписку или начинает новую. owner должен
// быть заблокирован в текущей транзакции.
func (s *Service) activate(ctx context.Context, owner *models.User, p *models.Payment) (time.Time, error) {
	planID, err := p.PlanID()
	if err != nil {
		return time.Time{}, err
	}
	plan, err := s.plans.Find(planID)
	if err != nil {
		return time.Time{}, err
	}

	now := s.now()
	base := now
	if owner.HasPremium(now) {
		base = *owner.SubscriptionExpiresAt
	}
	expires := base.AddDate(0, 0, plan.DurationDays)
	if err := s.repo.ActivateSubscription(ctx, owner.ID, now, expires); err != nil {
		return time.Time{}, err
	}
	return expires, nil
}

// CheckPayment сверяет платеж пользователя по запросу клиента.
func (s *Service) CheckPayment(ctx context.Context, telegramID, paymentID int64) (*CheckResult, error) {
	const op = "payment.CheckPayment"

	owner, err := s.repo.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	p, err := s.repo.GetUserPayment(ctx, owner.ID, paymentID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	res, err := s.check(ctx, telegramID, p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// CheckLatest сверяет последний платеж пользователя.
func (s *Service) CheckLatest(ctx context.Context, telegramID int64) (*CheckResult, error) {
	const op = "payment.CheckLatest"

	owner, err := s.repo.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	p, err := s.repo.LatestPayment(ctx, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	res, err := s.check(ctx, telegramID, p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

func (s *Service) check(ctx context.Context, telegramID int64, p *models.Payment) (*CheckResult, error) {
	if !p.Status.Terminal() && p.GatewayPaymentID != nil {
		outcome, err := s.Reconcile(ctx, *p.GatewayPaymentID, "", SourcePull)
		if err != nil {
			return nil, err
		}
		p = outcome.Payment
	}
	owner, err := s.repo.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	return &CheckResult{Payment: p, Subscription: models.NewSubscriptionView(owner, s.now())}, nil
}

// ReconcilePending перепроверяет живые незавершенные платежи старше RecheckAfter.
// Ошибки отдельных платежей логируются и не прерывают проход.
func (s *Service) ReconcilePending(ctx context.Context) (*SweepResult, error) {
	const op = "payment.ReconcilePending"
	log := s.log.With(slog.String("op", op))

	now := s.now()
	pending, err := s.repo.ListPendingBetween(ctx, now.Add(-s.cfg.PendingTTL), now.Add(-s.cfg.RecheckAfter))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	res := &SweepResult{}
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("%s: %w", op, err)
		}
		res.Checked++
		outcome, err := s.Reconcile(ctx, *p.GatewayPaymentID, "", SourceSweep)
		if err != nil {
			res.Failed++
			log.Warn("failed to reconcile pending payment", slog.Int64("payment_id", p.ID), sl.Err(err))
			continue
		}
		if outcome.Changed {
			res.Changed++
		}
		if outcome.Activated {
			res.Activated++
		}
	}
	log.Info("pending payments rechecked",
		slog.Int("checked", res.Checked), slog.Int("changed", res.Changed),
		slog.Int("activated", res.Activated), slog.Int("failed", res.Failed))
	return res, nil
}

// schedulePoll планирует проверку платежа через PollDelay.
func (s *Service) schedulePoll(gatewayPaymentID string) {
	if s.cfg.PollDelay <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	var timer *time.Timer
	s.tasks.Add(1)
	timer = time.AfterFunc(s.cfg.PollDelay, func() {
		defer s.tasks.Done()
		s.mu.Lock()
		delete(s.timers, timer)
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.Reconcile(ctx, gatewayPaymentID, "", SourcePoll); err != nil {
			s.log.Warn("poll after create failed",
				slog.String("gateway_payment_id", gatewayPaymentID), sl.Err(err))
		}
	})
	s.timers[timer] = struct{}{}
}

// goTracked запускает фоновую задачу, которую дожидается Shutdown.
func (s *Service) goTracked(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		fn()
	}()
	return true
}

// Shutdown отменяет запланированные проверки и ждет завершения фоновых задач.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for t := range s.timers {
		if t.Stop() {
			s.tasks.Done()
		}
		delete(s.timers, t)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
