package payment

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/habit-tracker/internal/metrics"
	"github.com/magabrotheeeer/habit-tracker/internal/models"
)

var fixedNow = time.Date(2024, 5, 20, 9, 30, 0, 0, time.UTC)

const (
	freeTG    int64 = 100
	premiumTG int64 = 200
)

type testEnv struct {
	svc     *Service
	repo    *fakeRepo
	gateway *fakeGateway
	clock   *testClock
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func defaultConfig() Config {
	return Config{
		ReturnURL:    "https://t.me/habit_bot",
		PendingTTL:   24 * time.Hour,
		RecheckAfter: 5 * time.Minute,
	}
}

func newTestEnv(t *testing.T, cfg Config, m *metrics.Metrics) *testEnv {
	t.Helper()
	clock := &testClock{now: fixedNow}
	repo := newFakeRepo(clock.Now)
	gw := newFakeGateway()
	svc := New(repo, gw, DefaultCatalogue(), cfg, m, newNoopLogger(), WithClock(clock.Now))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return &testEnv{svc: svc, repo: repo, gateway: gw, clock: clock}
}

// pendingPayment заводит ожидающий платеж пользователя в хранилище и шлюзе.
func (e *testEnv) pendingPayment(userID int64, gatewayID, planID string) *models.Payment {
	e.gateway.put(gatewayID, "pending")
	return e.repo.addPayment(models.Payment{
		UserID:           userID,
		GatewayPaymentID: &gatewayID,
		Amount:           "199.00",
		Currency:         Currency,
		Status:           models.PaymentStatusPending,
		IdempotencyKey:   "key-" + gatewayID,
		Metadata:         map[string]string{models.MetaPlanID: planID},
	})
}

func TestService_Reconcile_DuplicateNotificationActivatesOnce(t *testing.T) {
	env := newTestEnv(t, defaultConfig(), nil)
	ctx := context.Background()
	u := env.repo.addUser(freeTG, models.SubscriptionStatusFree, nil)
	p := env.pendingPayment(u.ID, "gw-a", "month")
	env.gateway.setStatus("gw-a", "succeeded")

	first, err := env.svc.Reconcile(ctx, "gw-a", "succeeded", SourceWebhook)
	require.NoError(t, err)
	assert.True(t, first.Changed)
	assert.True(t, first.Activated)
	require.NotNil(t, first.ExpiresAt)
	assert.Equal(t, fixedNow.AddDate(0, 0, 30), *first.ExpiresAt)
	assert.Equal(t, models.PaymentStatusPending, first.Previous)

	second, err := env.svc.Reconcile(ctx, "gw-a", "succeeded", SourceWebhook)
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.False(t, second.Activated)

	assert.Equal(t, 1, env.repo.activationCount())
	assert.Equal(t, 1, env.gateway.getCount(), "terminal payment is not fetched again")

	stored := env.repo.payment(p.ID)
	assert.Equal(t, models.PaymentStatusSucceeded, stored.Status)
	require.NotNil(t, stored.PaymentMethod)
	assert.Equal(t, "bank_card", *stored.PaymentMethod)

	user := env.repo.user(freeTG)
	assert.True(t, user.HasPremium(fixedNow))
	assert.Equal(t, models.SubscriptionTypePremium, user.SubscriptionType)
	require.NotNil(t, user.SubscriptionStartedAt)
	assert.Equal(t, fixedNow, *user.SubscriptionStartedAt)
}

func TestService_Reconcile_ConcurrentSourcesActivateOnce(t *testing.T) {
	env := newTestEnv(t, defaultConfig(), nil)
	u := env.repo.addUser(freeTG, models.SubscriptionStatusFree, nil)
	env.pendingPayment(u.ID, "gw-a", "month")
	env.gateway.setStatus("gw-a", "succeeded")

	sources := []Source{SourceWebhook, SourcePoll, SourcePull, SourceSweep}
	var wg sync.WaitGroup
	for i := range 12 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = env.svc.Reconcile(context.Background(), "gw-a", "", sources[i%len(sources)])
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, env.repo.activationCount())
	user := env.repo.user(freeTG)
	require.NotNil(t, user.SubscriptionExpiresAt)
	assert.Equal(t, fixedNow.AddDate(0, 0, 30), *user.SubscriptionExpiresAt)
}

func TestService_Reconcile_ExtendsActiveSubscription(t *testing.T) {
	tests := []struct {
		name    string
		expires time.Time
		want    time.Time
	}{
		{
			name:    "active premium stacks on current expiry",
			expires: fixedNow.AddDate(0, 0, 10),
			want:    fixedNow.AddDate(0, 0, 40),
		},
		{
			name:    "lapsed premium starts from now",
			expires: fixedNow.Add(-time.Hour),
			want:    fixedNow.AddDate(0, 0, 30),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, defaultConfig(), nil)
			expires := tt.expires
			u := env.repo.addUser(premiumTG, models.SubscriptionStatusActive, &expires)
			env.pendingPayment(u.ID, "gw-b", "month")
			env.gateway.setStatus("gw-b", "succeeded")

			out, err := env.svc.Reconcile(context.Background(), "gw-b", "", SourcePoll)
			require.NoError(t, err)
			require.True(t, out.Activated)
			assert.Equal(t, tt.want, *out.ExpiresAt)

			user := env.repo.user(premiumTG)
			assert.Equal(t, tt.want, *user.SubscriptionExpiresAt)
		})
	}
}

func TestService_Reconcile_TerminalIsNoop(t *testing.T) {
	env := newTestEnv(t, defaultConfig(), nil)
	u := env.repo.addUser(freeTG, models.SubscriptionStatusFree, nil)
	p := env.pendingPayment(u.ID, "gw-c", "month")
	require.NoError(t, env.repo.UpdatePaymentStatus(context.Background(), p.ID, models.PaymentStatusCanceled, nil))
	env.gateway.setStatus("gw-c", "succeeded")

	out, err := env.svc.Reconcile(context.Background(), "gw-c", "succeeded", SourceWebhook)
	require.NoError(t, err)
	assert.False(t, out.Changed)
	assert.Equal(t, models.PaymentStatusCanceled, out.Payment.Status)
	assert.Zero(t, env.gateway.getCount())
	freeUser := env.repo.user(freeTG)
	assert.False(t, freeUser.HasPremium(fixedNow))
}

func TestService_Reconcile_NonSucceededTransition(t *testing.T) {
	env := newTestEnv(t, defaultConfig(), nil)
	u := env.repo.addUser(freeTG, models.SubscriptionStatusFree, nil)
	p := env.pendingPayment(u.ID, "gw-d", "month")

	out, err := env.svc.Reconcile(context.Background(), "gw-d", "pending", SourcePoll)
	require.NoError(t, err)
	assert.False(t, out.Changed, "same status is not rewritten")

	env.gateway.setStatus("gw-d", "canceled")
	out, err = env.svc.Reconcile(context.Background(), "gw-d", "", SourcePoll)
	require.NoError(t, err)
	assert.True(t, out.Changed)
	assert.False(t, out.Activated)
	assert.Equal(t, models.PaymentStatusCanceled, env.repo.payment(p.ID).Status)
	assert.Zero(t, env.repo.activationCount())
}

func TestService_Reconcile_GatewayIsSourceOfTruth(t *testing.T) {
	env := newTestEnv(t, defaultConfig(), nil)
	u := env.repo.addUser(freeTG, models.SubscriptionStatusFree, nil)
	p := env.pendingPayment(u.ID, "gw-e", "month")

	out, err := env.svc.Reconcile(context.Background(), "gw-e", "succeeded", SourceWebhook)
	require.NoError(t, err)
	assert.False(t, out.Activated, "a forged notification does not activate")
	assert.Equal(t, models.PaymentStatusPending, env.repo.payment(p.ID).Status)
}

func TestService_Reconcile_Errors(t *testing.T) {
	t.Run("unknown payment", func(t *testing.T) {
		env := newTestEnv(t, defaultConfig(), nil)
		_, err := env.svc.Reconcile(context.Background(), "gw-missing", "succeeded", SourceWebhook)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("gateway unavailable", func(t *testing.T) {
		env := newTestEnv(t, defaultConfig(), nil)
		u := env.repo.addUser(freeTG, models.SubscriptionStatusFree, nil)
		p := env.pendingPayment(u.ID, "gw-f", "month")
		env.gateway.getErr = errGatewayDown

		_, err := env.svc.Reconcile(context.Background(), "gw-f", "", SourcePull)
		assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)
		assert.Equal(t, models.PaymentStatusPending, env.repo.payment(p.ID).Status)
	})

	t.Run("unknown plan rolls back", func(t *testing.T) {
		env := newTestEnv(t, defaultConfig(), nil)
		u := env.repo.addUser(freeTG, models.SubscriptionStatusFree, nil)
		p := env.pendingPayment(u.ID, "gw-g", "lifetime")
		env.gateway.setStatus("gw-g", "succeeded")

		_, err := env.svc.Reconcile(context.Background(), "gw-g", "", SourceWebhook)
		assert.ErrorIs(t, err, models.ErrUnknownPlan)
		assert.Equal(t, models.PaymentStatusPending, env.repo.payment(p.ID).Status)
		freeUser := env.repo.user(freeTG)
		assert.False(t, freeUser.HasPremium(fixedNow))
	})

	t.Run("missing metadata", func(t *testing.T) {
		env := newTestEnv(t, defaultConfig(), nil)
		u := env.repo.addUser(freeTG, models.SubscriptionStatusFree, nil)
		id := "gw-h"
		env.gateway.put(id, "succeeded")
		p := env.repo.addPayment(models.Payment{UserID: u.ID, GatewayPaymentID: &id, Status: models.PaymentStatusPending})

		_, err := env.svc.Reconcile(context.Background(), id, "", SourceWebhook)
		assert.ErrorIs(t, err, models.ErrMetadataCorrupt)
		assert.Equal(t, models.PaymentStatusPending, env.repo.payment(p.ID).Status)
	})
}

func TestService_CreatePayment(t *testing.T) {
	env := newTestEnv(t, defaultConfig(), nil)
	ctx := context.Background()
	env.repo.addUser(freeTG, models.SubscriptionStatusFree, nil)

	p, err := env.svc.CreatePayment(ctx, freeTG, "quarter", "idem-1")
	require.NoError(t, err)
	require.NotNil(t, p.GatewayPaymentID)
	assert.Equal(t, "499.00", p.Amount)
	assert.Equal(t, Currency, p.Currency)
	assert.Equal(t, models.PaymentStatusPending, p.Status)
	assert.Equal(t, "idem-1", p.IdempotencyKey)
	require.NotNil(t, p.ConfirmationURL)
	assert.Equal(t, "https://pay.example/"+*p.GatewayPaymentID, *p.ConfirmationURL)
	assert.Equal(t, "quarter", p.Metadata[models.MetaPlanID])
	assert.Equal(t, "90", p.Metadata[models.MetaDurationDays])
	assert.Equal(t, "100", p.Metadata[models.MetaTelegramID])
}

func TestService_CreatePayment_Admission(t *testing.T) {
	t.Run("live pending is returned", func(t *testing.T) {
		env := newTestEnv(t, defaultConfig(), nil)
		ctx := context.Background()
		env.repo.addUser(freeTG, models.SubscriptionStatusFree, nil)

		first, err := env.svc.CreatePayment(ctx, freeTG, "month", "")
		require.NoError(t, err)
		second, err := env.svc.CreatePayment(ctx, freeTG, "month", "")
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 1, env.gateway.createCount())
		assert.Equal(t, 1, env.repo.paymentCount())
	})

	t.Run("already paid pending is applied", func(t *testing.T) {
		env := newTestEnv(t, defaultConfig(), nil)
		ctx := context.Background()
		env.repo.addUser(freeTG, models.SubscriptionStatusFree, nil)

		first, err := env.svc.CreatePayment(ctx, freeTG, "month", "")
		require.NoError(t, err)
		env.gateway.setStatus(*first.GatewayPaymentID, "succeeded")

		_, err = env.svc.CreatePayment(ctx, freeTG, "month", "")
		require.ErrorIs(t, err, models.ErrAlreadySubscribed)
		assert.Equal(t, models.PaymentStatusSucceeded, env.repo.payment(first.ID).Status)
		freeUser := env.repo.user(freeTG)
		assert.True(t, freeUser.HasPremium(fixedNow))
		assert.Equal(t, 1, env.repo.paymentCount())
	})

	t.Run("canceled pending is replaced", func(t *testing.T) {
		env := newTestEnv(t, defaultConfig(), nil)
		ctx := context.Background()
		env.repo.addUser(freeTG, models.SubscriptionStatusFree, nil)

		first, err := env.svc.CreatePayment(ctx, freeTG, "month", "")
		require.NoError(t, err)
		env.gateway.setStatus(*first.GatewayPaymentID, "canceled")

		second, err := env.svc.CreatePayment(ctx, freeTG, "month", "")
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, second.ID)
		assert.Equal(t, models.PaymentStatusCanceled, env.repo.payment(first.ID).Status)
		assert.Equal(t, 2, env.gateway.createCount())
	})

	t.Run("stale pending is ignored", func(t *testing.T) {
		env := newTestEnv(t, defaultConfig(), nil)
		ctx := context.Background()
		env.repo.addUser(freeTG, models.SubscriptionStatusFree, nil)

		first, err := env.svc.CreatePayment(ctx, freeTG, "month", "")
		require.NoError(t, err)
		env.clock.Advance(25 * time.Hour)

		second, err := env.svc.CreatePayment(ctx, freeTG, "month", "")
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, second.ID)
		assert.Equal(t, models.PaymentStatusPending, env.repo.payment(first.ID).Status)
	})

	t.Run("gateway check failure", func(t *testing.T) {
		env := newTestEnv(t, defaultConfig(), nil)
		ctx := context.Background()
		env.repo.addUser(freeTG, models.SubscriptionStatusFree, nil)

		_, err := env.svc.CreatePayment(ctx, freeTG, "month", "")
		require.NoError(t, err)
		env.gateway.getErr = errGatewayDown

		_, err = env.svc.CreatePayment(ctx, freeTG, "month", "")
		assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)
		assert.Equal(t, 1, env.repo.paymentCount())
	})
}

func TestService_CreatePayment_Errors(t *testing.T) {
	env := newTestEnv(t, defaultConfig(), nil)
	ctx := context.Background()
	env.repo.addUser(freeTG, models.SubscriptionStatusFree, nil)

	_, err := env.svc.CreatePayment(ctx, freeTG, "lifetime", "")
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.ErrorIs(t, err, models.ErrUnknownPlan)

	_, err = env.svc.CreatePayment(ctx, 999, "month", "")
	assert.ErrorIs(t, err, models.ErrNotFound)

	env.gateway.createErr = errGatewayDown
	_, err = env.svc.CreatePayment(ctx, freeTG, "month", "")
	assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)
	assert.Zero(t, env.repo.paymentCount())
}

func TestService_CheckPayment(t *testing.T) {
	env := newTestEnv(t, defaultConfig(), nil)
	ctx := context.Background()
	u := env.repo.addUser(freeTG, models.SubscriptionStatusFree, nil)
	other := env.repo.addUser(premiumTG, models.SubscriptionStatusFree, nil)
	p := env.pendingPayment(u.ID, "gw-i", "year")
	foreign := env.pendingPayment(other.ID, "gw-j", "month")

	res, err := env.svc.CheckPayment(ctx, freeTG, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, res.Payment.Status)
	assert.False(t, res.Subscription.IsPremium)

	env.gateway.setStatus("gw-i", "succeeded")
	res, err = env.svc.CheckPayment(ctx, freeTG, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSucceeded, res.Payment.Status)
	assert.True(t, res.Subscription.IsPremium)
	assert.Equal(t, 365, res.Subscription.DaysLeft)

	gets := env.gateway.getCount()
	_, err = env.svc.CheckPayment(ctx, freeTG, p.ID)
	require.NoError(t, err)
	assert.Equal(t, gets, env.gateway.getCount(), "terminal payment is answered from storage")

	_, err = env.svc.CheckPayment(ctx, freeTG, foreign.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestService_CheckLatest(t *testing.T) {
	env := newTestEnv(t, defaultConfig(), nil)
	ctx := context.Background()
	u := env.repo.addUser(freeTG, models.SubscriptionStatusFree, nil)

	_, err := env.svc.CheckLatest(ctx, freeTG)
	require.ErrorIs(t, err, models.ErrNotFound)

	env.pendingPayment(u.ID, "gw-k", "month")
	latest := env.pendingPayment(u.ID, "gw-l", "month")
	env.gateway.setStatus("gw-l", "succeeded")

	res, err := env.svc.CheckLatest(ctx, freeTG)
	require.NoError(t, err)
	assert.Equal(t, latest.ID, res.Payment.ID)
	assert.True(t, res.Subscription.IsPremium)
}

func TestService_ReconcilePending(t *testing.T) {
	reg := prometheus.NewRegistry()
	env := newTestEnv(t, defaultConfig(), metrics.New(reg))
	ctx := context.Background()
	u := env.repo.addUser(freeTG, models.SubscriptionStatusFree, nil)

	env.pendingPayment(u.ID, "gw-old", "month")
	env.pendingPayment(u.ID, "gw-paid", "month")
	env.pendingPayment(u.ID, "gw-down", "month")
	env.clock.Advance(10 * time.Minute)
	young := env.pendingPayment(u.ID, "gw-young", "month")

	env.gateway.setStatus("gw-paid", "succeeded")
	env.gateway.setStatus("gw-young", "succeeded")
	env.gateway.mu.Lock()
	delete(env.gateway.payments, "gw-down")
	env.gateway.mu.Unlock()

	res, err := env.svc.ReconcilePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, &SweepResult{Checked: 3, Changed: 1, Activated: 1, Failed: 1}, res)
	assert.Equal(t, models.PaymentStatusPending, env.repo.payment(young.ID).Status, "young payment is left to the poll")
	freeUser := env.repo.user(freeTG)
	assert.True(t, freeUser.HasPremium(env.clock.Now()))

	expected := `
# HELP habit_tracker_subscription_activations_total Subscriptions activated or extended by a succeeded payment.
# TYPE habit_tracker_subscription_activations_total counter
habit_tracker_subscription_activations_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "habit_tracker_subscription_activations_total"))
}

func TestService_PollAfterCreate(t *testing.T) {
	cfg := defaultConfig()
	cfg.PollDelay = 100 * time.Millisecond
	env := newTestEnv(t, cfg, nil)
	env.repo.addUser(freeTG, models.SubscriptionStatusFree, nil)

	p, err := env.svc.CreatePayment(context.Background(), freeTG, "month", "")
	require.NoError(t, err)
	env.gateway.setStatus(*p.GatewayPaymentID, "succeeded")

	assert.Eventually(t, func() bool {
		return env.repo.activationCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, models.PaymentStatusSucceeded, env.repo.payment(p.ID).Status)
}

func TestService_ShutdownCancelsPolls(t *testing.T) {
	cfg := defaultConfig()
	cfg.PollDelay = time.Hour
	env := newTestEnv(t, cfg, nil)
	env.repo.addUser(freeTG, models.SubscriptionStatusFree, nil)

	_, err := env.svc.CreatePayment(context.Background(), freeTG, "month", "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, env.svc.Shutdown(ctx))
	assert.Zero(t, env.gateway.getCount())

	env.svc.schedulePoll("gw-late")
	env.svc.mu.Lock()
	assert.Empty(t, env.svc.timers, "no polls after shutdown")
	env.svc.mu.Unlock()
}

func TestService_LocksOwnerBeforePayment(t *testing.T) {
	t.Run("reconcile", func(t *testing.T) {
		env := newTestEnv(t, defaultConfig(), nil)
		u := env.repo.addUser(freeTG, models.SubscriptionStatusFree, nil)
		env.pendingPayment(u.ID, "gw-lock", "month")
		env.gateway.setStatus("gw-lock", "succeeded")

		_, err := env.svc.Reconcile(context.Background(), "gw-lock", "", SourceWebhook)
		require.NoError(t, err)
		assert.Equal(t, []string{"user", "payment"}, env.repo.lockOrder())
	})

	t.Run("create over a paid pending payment", func(t *testing.T) {
		env := newTestEnv(t, defaultConfig(), nil)
		ctx := context.Background()
		env.repo.addUser(freeTG, models.SubscriptionStatusFree, nil)

		p, err := env.svc.CreatePayment(ctx, freeTG, "month", "")
		require.NoError(t, err)
		env.gateway.setStatus(*p.GatewayPaymentID, "succeeded")
		env.repo.lockOrder()

		_, err = env.svc.CreatePayment(ctx, freeTG, "month", "")
		require.ErrorIs(t, err, models.ErrAlreadySubscribed)
		assert.Equal(t, []string{"user", "user", "payment"}, env.repo.lockOrder())
	})
}

func TestService_Reconcile_CancelledCallerDoesNotFailOthers(t *testing.T) {
	env := newTestEnv(t, defaultConfig(), nil)
	u := env.repo.addUser(freeTG, models.SubscriptionStatusFree, nil)
	env.pendingPayment(u.ID, "gw-shared", "month")
	env.gateway.setStatus("gw-shared", "succeeded")

	env.gateway.mu.Lock()
	env.gateway.entered = make(chan struct{}, 1)
	env.gateway.release = make(chan struct{})
	env.gateway.mu.Unlock()

	pullCtx, cancel := context.WithCancel(context.Background())
	pullErr := make(chan error, 1)
	go func() {
		_, err := env.svc.Reconcile(pullCtx, "gw-shared", "", SourcePull)
		pullErr <- err
	}()
	<-env.gateway.entered

	type result struct {
		outcome *Outcome
		err     error
	}
	webhook := make(chan result, 1)
	go func() {
		out, err := env.svc.Reconcile(context.Background(), "gw-shared", "succeeded", SourceWebhook)
		webhook <- result{outcome: out, err: err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-pullErr, context.Canceled)
	close(env.gateway.release)

	res := <-webhook
	require.NoError(t, res.err)
	assert.Equal(t, models.PaymentStatusSucceeded, res.outcome.Payment.Status)
	assert.Equal(t, 1, env.repo.activationCount())
	freeUser := env.repo.user(freeTG)
	assert.True(t, freeUser.HasPremium(env.clock.Now()))
}

func TestService_ReconcilePending_SkipsCorruptMetadata(t *testing.T) {
	env := newTestEnv(t, defaultConfig(), nil)
	u := env.repo.addUser(freeTG, models.SubscriptionStatusFree, nil)

	env.pendingPayment(u.ID, "gw-first", "month")
	badID := "gw-bad"
	env.gateway.put(badID, "pending")
	bad := env.repo.addPayment(models.Payment{
		UserID:           u.ID,
		GatewayPaymentID: &badID,
		Status:           models.PaymentStatusPending,
		Metadata:         map[string]string{models.MetaDurationDays: "30"},
	})
	env.pendingPayment(u.ID, "gw-second", "month")
	for _, id := range []string{"gw-first", badID, "gw-second"} {
		env.gateway.setStatus(id, "succeeded")
	}
	env.clock.Advance(10 * time.Minute)

	res, err := env.svc.ReconcilePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &SweepResult{Checked: 3, Changed: 2, Activated: 2, Failed: 1}, res)
	assert.Equal(t, models.PaymentStatusPending, env.repo.payment(bad.ID).Status)
	assert.Equal(t, 2, env.repo.activationCount())
}
