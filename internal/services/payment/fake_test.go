package payment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/magabrotheeeer/habit-tracker/internal/models"
	"github.com/magabrotheeeer/habit-tracker/internal/paymentprovider"
	"github.com/magabrotheeeer/habit-tracker/internal/storage/repository"
)

// fakeRepo хранилище в памяти с откатом транзакции по снимку.
type fakeRepo struct {
	txMu sync.Mutex
	mu   sync.Mutex
	now  func() time.Time

	users    map[int64]*models.User // по telegram id
	payments map[int64]*models.Payment
	nextID   int64

	activations int
	locks       []string
}

func newFakeRepo(now func() time.Time) *fakeRepo {
	return &fakeRepo{
		now:      now,
		users:    map[int64]*models.User{},
		payments: map[int64]*models.Payment{},
	}
}

func (f *fakeRepo) addUser(telegramID int64, status models.SubscriptionStatus, expires *time.Time) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	u := &models.User{
		ID:                    f.nextID,
		TelegramID:            telegramID,
		Timezone:              models.DefaultTimezone,
		SubscriptionStatus:    status,
		SubscriptionExpiresAt: expires,
	}
	if status == models.SubscriptionStatusActive {
		u.SubscriptionType = models.SubscriptionTypePremium
	}
	f.users[telegramID] = u
	c := *u
	return &c
}

func (f *fakeRepo) addPayment(p models.Payment) *models.Payment {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	p.ID = f.nextID
	if p.CreatedAt.IsZero() {
		p.CreatedAt = f.now()
	}
	f.payments[p.ID] = &p
	c := p
	return &c
}

func (f *fakeRepo) user(telegramID int64) models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.users[telegramID]
}

func (f *fakeRepo) payment(id int64) models.Payment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.payments[id]
}

func (f *fakeRepo) paymentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payments)
}

func (f *fakeRepo) activationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activations
}

type repoSnapshot struct {
	users       map[int64]models.User
	payments    map[int64]models.Payment
	activations int
}

func (f *fakeRepo) snapshot() repoSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := repoSnapshot{users: map[int64]models.User{}, payments: map[int64]models.Payment{}, activations: f.activations}
	for k, v := range f.users {
		s.users[k] = *v
	}
	for k, v := range f.payments {
		s.payments[k] = *v
	}
	return s
}

func (f *fakeRepo) restore(s repoSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = map[int64]*models.User{}
	for k, v := range s.users {
		u := v
		f.users[k] = &u
	}
	f.payments = map[int64]*models.Payment{}
	for k, v := range s.payments {
		p := v
		f.payments[k] = &p
	}
	f.activations = s.activations
}

func (f *fakeRepo) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.txMu.Lock()
	defer f.txMu.Unlock()
	snap := f.snapshot()
	if err := fn(ctx); err != nil {
		f.restore(snap)
		return err
	}
	return nil
}

func (f *fakeRepo) GetUserByTelegramID(_ context.Context, telegramID int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[telegramID]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *u
	return &c, nil
}

// lockOrder возвращает порядок взятых блокировок и очищает журнал.
func (f *fakeRepo) lockOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.locks
	f.locks = nil
	return out
}

func (f *fakeRepo) recordLock(kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locks = append(f.locks, kind)
}

func (f *fakeRepo) LockUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	f.recordLock("user")
	return f.GetUserByTelegramID(ctx, telegramID)
}

func (f *fakeRepo) LockUserByID(_ context.Context, userID int64) (*models.User, error) {
	f.recordLock("user")
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID == userID {
			c := *u
			return &c, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeRepo) ActivateSubscription(_ context.Context, userID int64, startedAt, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID != userID {
			continue
		}
		u.SubscriptionType = models.SubscriptionTypePremium
		u.SubscriptionStatus = models.SubscriptionStatusActive
		if u.SubscriptionStartedAt == nil {
			u.SubscriptionStartedAt = &startedAt
		}
		u.SubscriptionExpiresAt = &expiresAt
		f.activations++
		return nil
	}
	return models.ErrNotFound
}

func (f *fakeRepo) CreatePayment(_ context.Context, p models.Payment) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.payments {
		if p.GatewayPaymentID != nil && existing.GatewayPaymentID != nil &&
			*existing.GatewayPaymentID == *p.GatewayPaymentID {
			return nil, repository.ErrDuplicate
		}
	}
	f.nextID++
	p.ID = f.nextID
	p.CreatedAt = f.now()
	p.UpdatedAt = p.CreatedAt
	f.payments[p.ID] = &p
	c := p
	return &c, nil
}

func (f *fakeRepo) GetPaymentByGatewayID(_ context.Context, gatewayID string) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if p.GatewayPaymentID != nil && *p.GatewayPaymentID == gatewayID {
			c := *p
			return &c, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeRepo) LockPaymentByGatewayID(ctx context.Context, gatewayID string) (*models.Payment, error) {
	f.recordLock("payment")
	return f.GetPaymentByGatewayID(ctx, gatewayID)
}

func (f *fakeRepo) GetUserPayment(_ context.Context, userID, paymentID int64) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[paymentID]
	if !ok || p.UserID != userID {
		return nil, models.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (f *fakeRepo) LatestPayment(_ context.Context, userID int64) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.Payment
	for _, p := range f.payments {
		if p.UserID == userID && (latest == nil || p.ID > latest.ID) {
			latest = p
		}
	}
	if latest == nil {
		return nil, models.ErrNotFound
	}
	c := *latest
	return &c, nil
}

func (f *fakeRepo) FindLivePending(_ context.Context, userID int64, since time.Time) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var live *models.Payment
	for _, p := range f.payments {
		if p.UserID != userID || p.Status.Terminal() || p.CreatedAt.Before(since) {
			continue
		}
		if live == nil || p.ID > live.ID {
			live = p
		}
	}
	if live == nil {
		return nil, models.ErrNotFound
	}
	c := *live
	return &c, nil
}

func (f *fakeRepo) ListPendingBetween(_ context.Context, after, before time.Time) ([]models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Payment
	for id := int64(1); id <= f.nextID; id++ {
		p, ok := f.payments[id]
		if !ok || p.Status.Terminal() || p.GatewayPaymentID == nil {
			continue
		}
		if p.CreatedAt.Before(after) || p.CreatedAt.After(before) {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeRepo) UpdatePaymentStatus(_ context.Context, paymentID int64, status models.PaymentStatus, method *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[paymentID]
	if !ok {
		return models.ErrNotFound
	}
	p.Status = status
	if method != nil {
		p.PaymentMethod = method
	}
	p.UpdatedAt = f.now()
	return nil
}

// fakeGateway шлюз в памяти.
type fakeGateway struct {
	mu       sync.Mutex
	payments map[string]*paymentprovider.Payment
	byKey    map[string]string
	nextID   int

	createErr error
	getErr    error

	// entered получает сигнал при входе в GetPayment, release держит вызов до закрытия.
	entered chan struct{}
	release chan struct{}

	creates int
	gets    int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		payments: map[string]*paymentprovider.Payment{},
		byKey:    map[string]string{},
	}
}

func (g *fakeGateway) CreatePayment(_ context.Context, req paymentprovider.CreatePaymentRequest, key string) (*paymentprovider.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.creates++
	if g.createErr != nil {
		return nil, g.createErr
	}
	if id, ok := g.byKey[key]; ok {
		c := *g.payments[id]
		return &c, nil
	}
	g.nextID++
	id := fmt.Sprintf("gw-%d", g.nextID)
	p := &paymentprovider.Payment{
		ID:       id,
		Status:   "pending",
		Amount:   req.Amount,
		Metadata: req.Metadata,
		Confirmation: &paymentprovider.Confirmation{
			Type:            "redirect",
			ConfirmationURL: "https://pay.example/" + id,
		},
	}
	g.payments[id] = p
	g.byKey[key] = id
	c := *p
	return &c, nil
}

func (g *fakeGateway) GetPayment(_ context.Context, id string) (*paymentprovider.Payment, error) {
	g.mu.Lock()
	entered, release := g.entered, g.release
	g.mu.Unlock()
	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if release != nil {
		<-release
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.gets++
	if g.getErr != nil {
		return nil, g.getErr
	}
	p, ok := g.payments[id]
	if !ok {
		return nil, paymentprovider.ErrNotFound
	}
	c := *p
	return &c, nil
}

// put регистрирует платеж, созданный вне сервиса.
func (g *fakeGateway) put(id, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[id] = &paymentprovider.Payment{ID: id, Status: status}
}

func (g *fakeGateway) setStatus(id, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := g.payments[id]
	p.Status = status
	if status == "succeeded" {
		p.Paid = true
		p.PaymentMethod = &paymentprovider.PaymentMethod{Type: "bank_card", ID: id}
	}
}

func (g *fakeGateway) getCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gets
}

func (g *fakeGateway) createCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.creates
}

var errGatewayDown = errors.New("connection refused")

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}
