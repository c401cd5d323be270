package automation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"screen-automations/internal/domain"
)

// TimeOfDay хранит локальное время суток правила.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// Minutes возвращает количество минут от полуночи.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ParseTimeOfDay разбирает строку HH:MM в 24-часовом формате.
// Некорректное значение не подменяется значением по умолчанию.
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	value := strings.TrimSpace(raw)
	hh, mm, ok := strings.Cut(value, ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 || !isDigits(hh) || !isDigits(mm) {
		return TimeOfDay{}, fmt.Errorf("%q: %w", raw, domain.ErrInvalidTimeOfDay)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("%q: %w", raw, domain.ErrInvalidTimeOfDay)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("%q: %w", raw, domain.ErrInvalidTimeOfDay)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// LocalClock хранит поля настенных часов в поясе правила.
type LocalClock struct {
	Year    int
	Month   time.Month
	Day     int
	Hour    int
	Minute  int
	Weekday int
}

// ClockIn переводит момент в локальные поля указанного пояса.
// Weekday считается по ISO: 1 — понедельник, 7 — воскресенье.
func ClockIn(t time.Time, loc *time.Location) LocalClock {
	local := t.In(loc)
	weekday := int(local.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return LocalClock{
		Year:    local.Year(),
		Month:   local.Month(),
		Day:     local.Day(),
		Hour:    local.Hour(),
		Minute:  local.Minute(),
		Weekday: weekday,
	}
}

// Minutes возвращает минуты от локальной полуночи.
func (c LocalClock) Minutes() int {
	return c.Hour*60 + c.Minute
}

// SameDate сравнивает календарные даты.
func (c LocalClock) SameDate(other LocalClock) bool {
	return c.Year == other.Year && c.Month == other.Month && c.Day == other.Day
}

// Date возвращает дату в формате 2006-01-02.
func (c LocalClock) Date() string {
	return fmt.Sprintf("%04d-%02d-%02d", c.Year, int(c.Month), c.Day)
}

// WindowResult результат проверки окна опроса.
type WindowResult struct {
	Matched          bool
	ScheduledMinutes int
	PreviousMinutes  int
	NowMinutes       int
	DayRolledOver    bool
	Previous         LocalClock
	Now              LocalClock
}

// EvaluateWindow проверяет, попадает ли запланированная минута в окно (previous, now].
// Минуты берутся из локальных часов, а не из разницы UTC, чтобы переходы
// на летнее время не сдвигали окно. Обнаруживается не более одной смены суток.
func EvaluateWindow(loc *time.Location, at TimeOfDay, previous, now time.Time) WindowResult {
	prev := ClockIn(previous, loc)
	cur := ClockIn(now, loc)
	res := WindowResult{
		ScheduledMinutes: at.Minutes(),
		PreviousMinutes:  prev.Minutes(),
		NowMinutes:       cur.Minutes(),
		DayRolledOver:    !prev.SameDate(cur),
		Previous:         prev,
		Now:              cur,
	}
	if res.DayRolledOver {
		res.Matched = res.ScheduledMinutes > res.PreviousMinutes || res.ScheduledMinutes <= res.NowMinutes
	} else {
		res.Matched = res.PreviousMinutes < res.ScheduledMinutes && res.ScheduledMinutes <= res.NowMinutes
	}
	return res
}

// validateSchedule проверяет обязательные поля частоты.
func validateSchedule(rule domain.AutomationRule) error {
	switch rule.Frequency {
	case domain.FrequencyDaily:
		return nil
	case domain.FrequencyWeekly:
		if rule.DayOfWeek == nil {
			return fmt.Errorf("weekly без day_of_week: %w", domain.ErrInvalidSchedule)
		}
		if *rule.DayOfWeek < 1 || *rule.DayOfWeek > 7 {
			return fmt.Errorf("day_of_week=%d: %w", *rule.DayOfWeek, domain.ErrInvalidSchedule)
		}
		return nil
	case domain.FrequencyMonthly:
		if rule.DayOfMonth == nil {
			return fmt.Errorf("monthly без day_of_month: %w", domain.ErrInvalidSchedule)
		}
		if *rule.DayOfMonth < 1 || *rule.DayOfMonth > 31 {
			return fmt.Errorf("day_of_month=%d: %w", *rule.DayOfMonth, domain.ErrInvalidSchedule)
		}
		return nil
	default:
		return fmt.Errorf("частота %q: %w", rule.Frequency, domain.ErrInvalidSchedule)
	}
}

// MatchesFrequency проверяет, подходит ли локальный день для срабатывания.
// day_of_month=31 в тридцатидневном месяце не срабатывает: подгонки к концу месяца нет.
func MatchesFrequency(rule domain.AutomationRule, now LocalClock) bool {
	switch rule.Frequency {
	case domain.FrequencyDaily:
		return true
	case domain.FrequencyWeekly:
		return rule.DayOfWeek != nil && now.Weekday == *rule.DayOfWeek
	case domain.FrequencyMonthly:
		return rule.DayOfMonth != nil && now.Day == *rule.DayOfMonth
	default:
		return false
	}
}

// FiredOnLocalDay сообщает, было ли последнее срабатывание в тот же локальный день, что и now.
// Второе значение содержит локальную дату последнего срабатывания или пусто.
func FiredOnLocalDay(lastFiredAt *time.Time, loc *time.Location, now LocalClock) (bool, string) {
	if lastFiredAt == nil || lastFiredAt.IsZero() {
		return false, ""
	}
	last := ClockIn(*lastFiredAt, loc)
	return last.SameDate(now), last.Date()
}
