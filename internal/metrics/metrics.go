// Package metrics содержит счетчики Prometheus сервиса привычек.
// Методы безопасно вызывать на nil *Metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "habit_tracker"

// Metrics набор счетчиков.
type Metrics struct {
	habitToggles     *prometheus.CounterVec
	limitRefusals    *prometheus.CounterVec
	reconciles       *prometheus.CounterVec
	activations      prometheus.Counter
	remindersSent    *prometheus.CounterVec
	webhookSignature *prometheus.CounterVec
}

// New создает счетчики и регистрирует их в reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		habitToggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "habit_toggles_total",
			Help:      "Completion toggles by resulting state.",
		}, []string{"completed"}),
		limitRefusals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "limit_refusals_total",
			Help:      "Habit mutations refused by the free tier gate.",
		}, []string{"reason"}),
		reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_reconciles_total",
			Help:      "Payment status observations by source and outcome.",
		}, []string{"source", "outcome"}),
		activations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_activations_total",
			Help:      "Subscriptions activated or extended by a succeeded payment.",
		}),
		remindersSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_total",
			Help:      "Reminder sweep decisions.",
		}, []string{"result"}),
		webhookSignature: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_signature_total",
			Help:      "Webhook signature checks.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.habitToggles, m.limitRefusals, m.reconciles, m.activations,
		m.remindersSent, m.webhookSignature)
	return m
}

// HabitToggled учитывает переключение отметки.
func (m *Metrics) HabitToggled(completed bool) {
	if m == nil {
		return
	}
	label := "false"
	if completed {
		label = "true"
	}
	m.habitToggles.WithLabelValues(label).Inc()
}

// LimitRefused учитывает отказ ограничителя бесплатного тарифа.
func (m *Metrics) LimitRefused(reason string) {
	if m == nil {
		return
	}
	m.limitRefusals.WithLabelValues(reason).Inc()
}

// Reconciled учитывает обработку наблюдения статуса платежа.
func (m *Metrics) Reconciled(source, outcome string) {
	if m == nil {
		return
	}
	m.reconciles.WithLabelValues(source, outcome).Inc()
}

// Activated учитывает активацию или продление подписки.
func (m *Metrics) Activated() {
	if m == nil {
		return
	}
	m.activations.Inc()
}

// Reminder учитывает решение рассылки напоминания.
func (m *Metrics) Reminder(result string) {
	if m == nil {
		return
	}
	m.remindersSent.WithLabelValues(result).Inc()
}

// WebhookSignature учитывает результат проверки подписи.
func (m *Metrics) WebhookSignature(result string) {
	if m == nil {
		return
	}
	m.webhookSignature.WithLabelValues(result).Inc()
}
