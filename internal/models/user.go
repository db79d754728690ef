// Package models содержит доменные структуры сервиса привычек: пользователя,
// привычку, отметку выполнения и платеж, а также закрытые перечисления статусов.
// Строковое представление статусов используется только на границе с БД и внешними API.
package models

import (
	"fmt"
	"time"
)

// SubscriptionType тип подписки пользователя.
type SubscriptionType int

const (
	SubscriptionTypeFree SubscriptionType = iota
	SubscriptionTypePremium
	SubscriptionTypeTrial
)

func (t SubscriptionType) String() string {
	switch t {
	case SubscriptionTypePremium:
		return "premium"
	case SubscriptionTypeTrial:
		return "trial"
	default:
		return "free"
	}
}

// ParseSubscriptionType разбирает строковое значение из БД.
func ParseSubscriptionType(s string) (SubscriptionType, error) {
	switch s {
	case "free", "":
		return SubscriptionTypeFree, nil
	case "premium":
		return SubscriptionTypePremium, nil
	case "trial":
		return SubscriptionTypeTrial, nil
	}
	return SubscriptionTypeFree, fmt.Errorf("unknown subscription type %q", s)
}

// SubscriptionStatus сохраненный статус подписки. Это кеш: фактическую
// активность определяет сравнение SubscriptionExpiresAt с текущим временем.
type SubscriptionStatus int

const (
	SubscriptionStatusFree SubscriptionStatus = iota
	SubscriptionStatusActive
	SubscriptionStatusExpired
	SubscriptionStatusCanceled
)

func (s SubscriptionStatus) String() string {
	switch s {
	case SubscriptionStatusActive:
		return "active"
	case SubscriptionStatusExpired:
		return "expired"
	case SubscriptionStatusCanceled:
		return "canceled"
	default:
		return "free"
	}
}

// ParseSubscriptionStatus разбирает строковое значение из БД.
func ParseSubscriptionStatus(s string) (SubscriptionStatus, error) {
	switch s {
	case "free", "":
		return SubscriptionStatusFree, nil
	case "active":
		return SubscriptionStatusActive, nil
	case "expired":
		return SubscriptionStatusExpired, nil
	case "canceled":
		return SubscriptionStatusCanceled, nil
	}
	return SubscriptionStatusFree, fmt.Errorf("unknown subscription status %q", s)
}

// DefaultTimezone используется, если пользователь не указал часовой пояс.
const DefaultTimezone = "UTC+3"

// User представляет пользователя сервиса.
type User struct {
	ID                    int64              // Внутренний идентификатор
	TelegramID            int64              // Внешний идентификатор аккаунта
	DisplayName           *string            // Отображаемое имя (опционально)
	Timezone              string             // Смещение часового пояса, например "UTC+3"
	SubscriptionType      SubscriptionType   // Тип подписки
	SubscriptionStatus    SubscriptionStatus // Сохраненный статус подписки
	SubscriptionStartedAt *time.Time         // Дата первой активации
	SubscriptionExpiresAt *time.Time         // Дата окончания оплаченного периода
	CreatedAt             time.Time
}

// HasPremium сообщает, активна ли подписка на момент now.
func (u *User) HasPremium(now time.Time) bool {
	return u.SubscriptionStatus == SubscriptionStatusActive &&
		u.SubscriptionExpiresAt != nil &&
		u.SubscriptionExpiresAt.After(now)
}

// ActiveButExpired сообщает, что сохраненный статус устарел и пользователя нужно понизить.
func (u *User) ActiveButExpired(now time.Time) bool {
	return u.SubscriptionStatus == SubscriptionStatusActive && !u.HasPremium(now)
}

// SubscriptionView состояние подписки пользователя на момент вычисления.
type SubscriptionView struct {
	Type           string     `json:"type"`
	Status         string     `json:"status"`
	IsPremium      bool       `json:"is_premium"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	DaysLeft       int        `json:"days_left"`
	FreeHabitLimit int        `json:"free_habit_limit"`
}

// NewSubscriptionView строит представление подписки. Неполный день
// оставшегося срока считается целым.
func NewSubscriptionView(u *User, now time.Time) SubscriptionView {
	v := SubscriptionView{
		Type:           u.SubscriptionType.String(),
		Status:         u.SubscriptionStatus.String(),
		IsPremium:      u.HasPremium(now),
		StartedAt:      u.SubscriptionStartedAt,
		ExpiresAt:      u.SubscriptionExpiresAt,
		FreeHabitLimit: FreeHabitLimit,
	}
	if u.ActiveButExpired(now) {
		v.Status = SubscriptionStatusExpired.String()
	}
	if v.IsPremium {
		left := u.SubscriptionExpiresAt.Sub(now)
		v.DaysLeft = int((left + 24*time.Hour - 1) / (24 * time.Hour))
	}
	return v
}
