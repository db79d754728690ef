package models

import (
	"fmt"
	"time"
)

// FreeHabitLimit максимальное число привычек для пользователя без подписки.
const FreeHabitLimit = 3

// GoalType тип цели привычки.
type GoalType int

const (
	GoalTypeNone GoalType = iota
	GoalTypeStreak
	GoalTypeCount
	GoalTypePeriod
)

func (g GoalType) String() string {
	switch g {
	case GoalTypeStreak:
		return "streak"
	case GoalTypeCount:
		return "count"
	case GoalTypePeriod:
		return "period"
	default:
		return ""
	}
}

// ParseGoalType разбирает тип цели. Пустая строка означает отсутствие цели.
func ParseGoalType(s string) (GoalType, error) {
	switch s {
	case "":
		return GoalTypeNone, nil
	case "streak":
		return GoalTypeStreak, nil
	case "count":
		return GoalTypeCount, nil
	case "period":
		return GoalTypePeriod, nil
	}
	return GoalTypeNone, fmt.Errorf("unknown goal type %q", s)
}

// Goal настройки цели привычки.
type Goal struct {
	Enabled    bool
	Type       GoalType
	Target     int
	PeriodDays int
}

// Habit представляет привычку пользователя.
type Habit struct {
	ID              int64
	UserID          int64
	Name            string
	Description     *string
	ReminderEnabled bool
	ReminderTime    *string // Локальное время напоминания "HH:MM"
	Goal            Goal
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StripPremium отключает напоминание и цель.
func (h *Habit) StripPremium() {
	h.ReminderEnabled = false
	h.ReminderTime = nil
	h.Goal = Goal{}
}

// HabitDraft данные для создания или изменения привычки.
type HabitDraft struct {
	Name            string
	Description     *string
	ReminderEnabled bool
	ReminderTime    *string
	Goal            Goal
}

// WantsPremium сообщает, запрошены ли функции подписки.
func (d HabitDraft) WantsPremium() bool {
	return d.ReminderEnabled || d.Goal.Enabled
}

// HabitView привычка с вычисленной серией и отметкой за текущий период.
type HabitView struct {
	Habit
	Streak         int
	CompletedToday bool
}

// DayMark отметка выполнения за один период.
type DayMark struct {
	Period    time.Time
	Completed bool
}

// ReminderCandidate привычка с включенным напоминанием у пользователя с подпиской.
type ReminderCandidate struct {
	HabitID      int64
	HabitName    string
	ReminderTime string
	TelegramID   int64
	Timezone     string
	Completed    bool // Есть отметка за текущий период
}

// ReminderMessage сообщение в очередь рассылки напоминаний.
type ReminderMessage struct {
	TelegramID   int64  `json:"telegram_id"`
	HabitID      int64  `json:"habit_id"`
	HabitName    string `json:"habit_name"`
	ReminderTime string `json:"reminder_time"`
}
