// Package streak вычисляет серии последовательных периодов с отметкой выполнения.
// Пакет не выполняет ввода-вывода и зависит только от границ периодов.
package streak

import (
	"sort"
	"time"

	"github.com/magabrotheeeer/habit-tracker/internal/models"
)

// Periods задает границы периодов.
type Periods interface {
	Normalize(t time.Time) time.Time
	Previous(t time.Time) time.Time
}

// Compute возвращает длину серии, заканчивающейся текущим периодом
// или периодом перед ним. Порядок completions не влияет на результат.
func Compute(p Periods, completions []time.Time, current time.Time) int {
	current = p.Normalize(current)
	periods := normalize(p, completions)

	hasCurrent := false
	older := make([]time.Time, 0, len(periods))
	for _, t := range periods {
		switch {
		case t.Equal(current):
			hasCurrent = true
		case t.Before(current):
			older = append(older, t)
		}
	}
	sort.Slice(older, func(i, j int) bool { return older[i].After(older[j]) })

	streak := 0
	if hasCurrent {
		streak = 1
	}
	cursor := p.Previous(current)
	for _, t := range older {
		if !t.Equal(cursor) {
			break
		}
		streak++
		cursor = p.Previous(cursor)
	}
	return streak
}

// History возвращает n последних периодов (от старого к текущему) с отметками.
func History(p Periods, completions []time.Time, current time.Time, n int) []models.DayMark {
	if n <= 0 {
		return nil
	}
	set := make(map[int64]struct{}, len(completions))
	for _, t := range normalize(p, completions) {
		set[t.Unix()] = struct{}{}
	}

	marks := make([]models.DayMark, n)
	cursor := p.Normalize(current)
	for i := n - 1; i >= 0; i-- {
		_, done := set[cursor.Unix()]
		marks[i] = models.DayMark{Period: cursor, Completed: done}
		cursor = p.Previous(cursor)
	}
	return marks
}

// normalize приводит отметки к началу периода и убирает дубликаты.
func normalize(p Periods, completions []time.Time) []time.Time {
	seen := make(map[int64]struct{}, len(completions))
	out := make([]time.Time, 0, len(completions))
	for _, c := range completions {
		t := p.Normalize(c)
		if _, ok := seen[t.Unix()]; ok {
			continue
		}
		seen[t.Unix()] = struct{}{}
		out = append(out, t)
	}
	return out
}
