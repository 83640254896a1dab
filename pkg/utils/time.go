package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// time.go - утилиты для работы со временем
//
// Назначение:
// Границы периодов для истории риск-анализов и разбор
// временных меток индексера dYdX.
//
// Функции:
// - DayStart: начало дня (00:00:00 UTC)
// - PeriodRange: диапазон day/week/month/all относительно now
// - LastNHours: скользящее окно последних n часов
// - ParseTimestamp: ISO-8601 индексера или unix millis
// - FormatDuration: uptime для health
//
// Все функции принимают now явно, чтобы тесты не зависели от часов.

// TimeRange представляет временной диапазон [Start, End]
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains проверяет, попадает ли время в диапазон (границы включены)
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && !t.After(tr.End)
}

// Duration возвращает продолжительность диапазона
func (tr TimeRange) Duration() time.Duration {
	return tr.End.Sub(tr.Start)
}

// DayStart возвращает начало дня t в UTC
func DayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// WeekStart возвращает понедельник 00:00:00 UTC недели t
func WeekStart(t time.Time) time.Time {
	day := DayStart(t)
	offset := int(day.Weekday()) - int(time.Monday)
	if offset < 0 {
		offset += 7
	}
	return day.AddDate(0, 0, -offset)
}

// MonthStart возвращает 1-е число месяца t в UTC
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// LastNHours возвращает окно [now-n часов, now]. n <= 0 считается как 1.
func LastNHours(now time.Time, n int) TimeRange {
	if n <= 0 {
		n = 1
	}
	now = now.UTC()
	return TimeRange{Start: now.Add(-time.Duration(n) * time.Hour), End: now}
}

// PeriodType - период выборки истории
type PeriodType string

const (
	PeriodDay   PeriodType = "day"
	PeriodWeek  PeriodType = "week"
	PeriodMonth PeriodType = "month"
	PeriodAll   PeriodType = "all"
)

// ParsePeriod разбирает период из query-параметра. Пустая строка дает PeriodAll.
func ParsePeriod(s string) (PeriodType, error) {
	switch p := PeriodType(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PeriodAll, nil
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodAll:
		return p, nil
	default:
		return "", fmt.Errorf("unknown period %q: expected day, week, month or all", s)
	}
}

// PeriodRange возвращает диапазон периода, заканчивающийся в now.
// Для PeriodAll Start нулевой.
func PeriodRange(period PeriodType, now time.Time) TimeRange {
	now = now.UTC()
	switch period {
	case PeriodDay:
		return TimeRange{Start: DayStart(now), End: now}
	case PeriodWeek:
		return TimeRange{Start: WeekStart(now), End: now}
	case PeriodMonth:
		return TimeRange{Start: MonthStart(now), End: now}
	default:
		return TimeRange{End: now}
	}
}

// ParseTimestamp разбирает время индексера.
// Индексер отдает ISO-8601 с миллисекундами, старые ответы - unix millis строкой.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// FormatDuration форматирует продолжительность с точностью до секунды
//
// Примеры: "45s", "5m30s", "72h0m0s". Отрицательные значения берутся по модулю.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	return d.Truncate(time.Second).String()
}
