// Package period задает границы периодов для подсчета серий.
//
// Период по умолчанию равен суткам UTC. Для ускоренного тестирования длину
// можно уменьшить: границы всегда выравниваются на кратные длине минуты
// от начала эпохи UTC.
package period

import (
	"fmt"
	"time"
)

// DayMinutes длина периода в продакшене.
const DayMinutes = 1440

// Provider вычисляет границы периодов.
type Provider struct {
	length time.Duration
	now    func() time.Time
}

// Option настраивает Provider.
type Option func(*Provider)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		p.now = now
	}
}

// New создает Provider с длиной периода lengthMinutes.
func New(lengthMinutes int, opts ...Option) (*Provider, error) {
	const op = "period.New"
	if lengthMinutes <= 0 {
		return nil, fmt.Errorf("%s: period length must be positive, got %d", op, lengthMinutes)
	}
	p := &Provider{
		length: time.Duration(lengthMinutes) * time.Minute,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Length возвращает длину периода.
func (p *Provider) Length() time.Duration {
	return p.length
}

// Now возвращает текущее время в UTC.
func (p *Provider) Now() time.Time {
	return p.now().UTC()
}

// Normalize возвращает начало периода, содержащего t.
func (p *Provider) Normalize(t time.Time) time.Time {
	step := int64(p.length / time.Minute)
	minutes := floorDiv(t.UTC().Unix(), 60)
	start := floorDiv(minutes, step) * step
	return time.Unix(start*60, 0).UTC()
}

// CurrentPeriodStart возвращает начало текущего периода.
func (p *Provider) CurrentPeriodStart() time.Time {
	return p.Normalize(p.Now())
}

// Next возвращает начало периода, следующего за периодом t.
func (p *Provider) Next(t time.Time) time.Time {
	return p.Normalize(t).Add(p.length)
}

// Previous возвращает начало периода, предшествующего периоду t.
func (p *Provider) Previous(t time.Time) time.Time {
	return p.Normalize(t).Add(-p.length)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
