// Package reminder решает, наступило ли время напоминания о привычке.
//
// Время напоминания задается в локальном времени пользователя, смещение
// часового пояса хранится строкой вида "UTC+3". Периодическая проверка
// запускается извне и не обязана срабатывать ровно в начале минуты,
// поэтому напоминание считается своевременным в окне допуска после
// назначенной минуты и никогда до нее.
package reminder

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const minutesPerDay = 24 * 60

// DefaultOffset смещение, используемое при отсутствующем или некорректном часовом поясе.
const DefaultOffset = 3 * time.Hour

// ParseOffset разбирает смещение вида "UTC+3", "+3", "-5", "UTC+5:30", "GMT-2".
// При ошибке возвращает DefaultOffset и ok=false.
func ParseOffset(tz string) (time.Duration, bool) {
	s := strings.ToUpper(strings.TrimSpace(tz))
	s = strings.TrimPrefix(s, "UTC")
	s = strings.TrimPrefix(s, "GMT")
	if s == "" {
		if strings.TrimSpace(tz) == "" {
			return DefaultOffset, false
		}
		return 0, true
	}

	sign := 1
	switch s[0] {
	case '+':
		s = s[1:]
	case '-':
		sign = -1
		s = s[1:]
	}

	hoursPart, minutesPart, hasMinutes := strings.Cut(s, ":")
	hours, err := strconv.Atoi(hoursPart)
	if err != nil || hours < 0 || hours > 14 {
		return DefaultOffset, false
	}
	minutes := 0
	if hasMinutes {
		minutes, err = strconv.Atoi(minutesPart)
		if err != nil || minutes < 0 || minutes > 59 {
			return DefaultOffset, false
		}
	}
	return time.Duration(sign) * (time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute), true
}

// ParseClock разбирает локальное время "HH:MM" в минуты от полуночи.
func ParseClock(hhmm string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(hhmm))
	if err != nil {
		return 0, fmt.Errorf("invalid reminder time %q: %w", hhmm, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// ToUTCMinutes переводит локальное "HH:MM" в минуты от полуночи UTC.
func ToUTCMinutes(hhmm string, offset time.Duration) (int, error) {
	local, err := ParseClock(hhmm)
	if err != nil {
		return 0, err
	}
	return mod(local-int(offset/time.Minute), minutesPerDay), nil
}

// Due сообщает, попадает ли now в окно [напоминание; напоминание+tolerance].
func Due(hhmm, tz string, now time.Time, tolerance time.Duration) (bool, error) {
	_, due, err := Occurrence(hhmm, tz, now, tolerance)
	return due, err
}

// Occurrence возвращает момент срабатывания напоминания в UTC, окно которого
// содержит now. Момент один для всех обходов внутри окна, в том числе когда
// окно переходит через полночь UTC.
func Occurrence(hhmm, tz string, now time.Time, tolerance time.Duration) (time.Time, bool, error) {
	offset, _ := ParseOffset(tz)
	reminderMinutes, err := ToUTCMinutes(hhmm, offset)
	if err != nil {
		return time.Time{}, false, err
	}
	now = now.UTC().Truncate(time.Minute)
	nowMinutes := now.Hour()*60 + now.Minute()

	diff := mod(nowMinutes-reminderMinutes, minutesPerDay)
	if diff > int(tolerance/time.Minute) {
		return time.Time{}, false, nil
	}
	return now.Add(-time.Duration(diff) * time.Minute), true, nil
}

func mod(a, b int) int {
	return ((a % b) + b) % b
}
