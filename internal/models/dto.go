package models

import (
	"fmt"
	"time"
)

// HabitRequest тело запроса на создание или изменение привычки.
type HabitRequest struct {
	Name            string  `json:"name" validate:"required,max=100" example:"Чтение"`
	Description     *string `json:"description,omitempty" validate:"omitempty,max=500" example:"20 страниц в день"`
	ReminderEnabled bool    `json:"reminder_enabled" example:"true"`
	ReminderTime    *string `json:"reminder_time,omitempty" example:"09:00"`
	GoalEnabled     bool    `json:"goal_enabled" example:"false"`
	GoalType        string  `json:"goal_type,omitempty" validate:"omitempty,oneof=streak count period" example:"streak"`
	GoalTarget      int     `json:"goal_target,omitempty" validate:"gte=0" example:"30"`
	GoalPeriodDays  int     `json:"goal_period_days,omitempty" validate:"gte=0" example:"7"`
}

// Draft переводит запрос в доменный черновик привычки.
func (r HabitRequest) Draft() (HabitDraft, error) {
	goalType, err := ParseGoalType(r.GoalType)
	if err != nil {
		return HabitDraft{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return HabitDraft{
		Name:            r.Name,
		Description:     r.Description,
		ReminderEnabled: r.ReminderEnabled,
		ReminderTime:    r.ReminderTime,
		Goal: Goal{
			Enabled:    r.GoalEnabled,
			Type:       goalType,
			Target:     r.GoalTarget,
			PeriodDays: r.GoalPeriodDays,
		},
	}, nil
}

// HabitResponse привычка в ответе API.
type HabitResponse struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Description     *string   `json:"description,omitempty"`
	ReminderEnabled bool      `json:"reminder_enabled"`
	ReminderTime    *string   `json:"reminder_time,omitempty"`
	GoalEnabled     bool      `json:"goal_enabled"`
	GoalType        string    `json:"goal_type,omitempty"`
	GoalTarget      int       `json:"goal_target,omitempty"`
	GoalPeriodDays  int       `json:"goal_period_days,omitempty"`
	Streak          *int      `json:"streak,omitempty"`
	CompletedToday  *bool     `json:"completed_today,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewHabitResponse строит ответ по привычке.
func NewHabitResponse(h Habit) HabitResponse {
	return HabitResponse{
		ID:              h.ID,
		Name:            h.Name,
		Description:     h.Description,
		ReminderEnabled: h.ReminderEnabled,
		ReminderTime:    h.ReminderTime,
		GoalEnabled:     h.Goal.Enabled,
		GoalType:        h.Goal.Type.String(),
		GoalTarget:      h.Goal.Target,
		GoalPeriodDays:  h.Goal.PeriodDays,
		CreatedAt:       h.CreatedAt,
		UpdatedAt:       h.UpdatedAt,
	}
}

// NewHabitViewResponse строит ответ по привычке с серией.
func NewHabitViewResponse(v HabitView) HabitResponse {
	resp := NewHabitResponse(v.Habit)
	streak, completed := v.Streak, v.CompletedToday
	resp.Streak = &streak
	resp.CompletedToday = &completed
	return resp
}

// DayMarkResponse отметка за период в истории.
type DayMarkResponse struct {
	Date      string `json:"date" example:"2024-05-20"`
	Completed bool   `json:"completed"`
}

// NewHistoryResponse строит историю отметок, старые периоды первыми.
func NewHistoryResponse(marks []DayMark) []DayMarkResponse {
	out := make([]DayMarkResponse, 0, len(marks))
	for _, m := range marks {
		out = append(out, DayMarkResponse{Date: m.Period.UTC().Format(time.DateOnly), Completed: m.Completed})
	}
	return out
}

// CreatePaymentRequest тело запроса на создание платежа.
type CreatePaymentRequest struct {
	PlanID string `json:"plan_id" validate:"required" example:"month"`
}

// PaymentResponse платеж в ответе API.
type PaymentResponse struct {
	ID               int64     `json:"id"`
	GatewayPaymentID *string   `json:"gateway_payment_id,omitempty"`
	Amount           string    `json:"amount"`
	Currency         string    `json:"currency"`
	Status           string    `json:"status"`
	PaymentMethod    *string   `json:"payment_method,omitempty"`
	ConfirmationURL  *string   `json:"confirmation_url,omitempty"`
	PlanID           string    `json:"plan_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// NewPaymentResponse строит ответ по платежу.
func NewPaymentResponse(p Payment) PaymentResponse {
	return PaymentResponse{
		ID:               p.ID,
		GatewayPaymentID: p.GatewayPaymentID,
		Amount:           p.Amount,
		Currency:         p.Currency,
		Status:           p.Status.String(),
		PaymentMethod:    p.PaymentMethod,
		ConfirmationURL:  p.ConfirmationURL,
		PlanID:           p.Metadata[MetaPlanID],
		CreatedAt:        p.CreatedAt,
	}
}

// PaymentCheckResponse платеж и подписка после сверки.
type PaymentCheckResponse struct {
	Payment      PaymentResponse  `json:"payment"`
	Subscription SubscriptionView `json:"subscription"`
}
