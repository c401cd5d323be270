package automation

import (
	"time"

	"github.com/rs/zerolog"

	"screen-automations/internal/domain"
)

// Tick описывает одно срабатывание опроса. Previous не хранится, а вычисляется как Now - интервал.
type Tick struct {
	Previous time.Time
	Now      time.Time
}

// NewTick строит тик по моменту и фактическому интервалу опроса.
func NewTick(now time.Time, pollInterval time.Duration) Tick {
	now = now.UTC().Truncate(time.Minute)
	return Tick{Previous: now.Add(-pollInterval), Now: now}
}

// DecisionStatus итог проверки правила.
type DecisionStatus string

const (
	StatusDue     DecisionStatus = "due"
	StatusSkipped DecisionStatus = "skipped"
)

// SkipReason объясняет, почему правило не сработало.
type SkipReason string

const (
	ReasonNone              SkipReason = ""
	ReasonDisabled          SkipReason = "disabled"
	ReasonInvalidConfig     SkipReason = "invalid-config"
	ReasonOutsideWindow     SkipReason = "outside-window"
	ReasonFrequencyMismatch SkipReason = "frequency-mismatch"
	ReasonAlreadyFiredToday SkipReason = "already-fired-today"
)

// Trace содержит входы и промежуточные значения решения.
// Только для наблюдаемости, на ход решения не влияет.
type Trace struct {
	Timezone         string `json:"timezone"`
	TimezoneFallback bool   `json:"timezone_fallback,omitempty"`
	TimeOfDay        string `json:"time_of_day"`
	Frequency        string `json:"frequency"`
	ScheduledMinutes int    `json:"scheduled_minutes"`
	PreviousMinutes  int    `json:"previous_minutes"`
	NowMinutes       int    `json:"now_minutes"`
	DayRolledOver    bool   `json:"day_rolled_over"`
	LocalDate        string `json:"local_date,omitempty"`
	LocalWeekday     int    `json:"local_weekday,omitempty"`
	LastFiredDate    string `json:"last_fired_date,omitempty"`
	Error            string `json:"error,omitempty"`
}

// MarshalZerologObject пишет трассу в лог.
func (t Trace) MarshalZerologObject(e *zerolog.Event) {
	e.Str("timezone", t.Timezone).
		Bool("timezone_fallback", t.TimezoneFallback).
		Str("time_of_day", t.TimeOfDay).
		Str("frequency", t.Frequency).
		Int("scheduled_minutes", t.ScheduledMinutes).
		Int("previous_minutes", t.PreviousMinutes).
		Int("now_minutes", t.NowMinutes).
		Bool("day_rolled_over", t.DayRolledOver)
	if t.LocalDate != "" {
		e.Str("local_date", t.LocalDate).Int("local_weekday", t.LocalWeekday)
	}
	if t.LastFiredDate != "" {
		e.Str("last_fired_date", t.LastFiredDate)
	}
	if t.Error != "" {
		e.Str("error", t.Error)
	}
}

// Decision описывает решение по одному правилу в одном тике.
type Decision struct {
	RuleID string         `json:"rule_id"`
	Status DecisionStatus `json:"status"`
	Reason SkipReason     `json:"reason,omitempty"`
	Trace  Trace          `json:"trace"`
	// Location и LocalNow нужны дальнейшим шагам срабатывания.
	Location *time.Location `json:"-"`
	LocalNow LocalClock     `json:"-"`
}

// Due сообщает, что правило нужно выполнить.
func (d Decision) Due() bool {
	return d.Status == StatusDue
}

// ReasonLabel возвращает метку для метрик.
func (d Decision) ReasonLabel() string {
	if d.Due() {
		return string(StatusDue)
	}
	return string(d.Reason)
}

type locationResolver interface {
	Resolve(raw string) (*time.Location, error)
}

// Decide последовательно применяет проверки конфигурации, окна, частоты и идемпотентности.
func Decide(rule domain.AutomationRule, tick Tick, zones locationResolver) Decision {
	d := Decision{
		RuleID: rule.ID,
		Trace: Trace{
			Timezone:  rule.Timezone,
			TimeOfDay: rule.TimeOfDay,
			Frequency: string(rule.Frequency),
		},
	}
	if !rule.IsEnabled {
		return d.skip(ReasonDisabled)
	}

	at, err := ParseTimeOfDay(rule.TimeOfDay)
	if err != nil {
		d.Trace.Error = err.Error()
		return d.skip(ReasonInvalidConfig)
	}
	if err := validateSchedule(rule); err != nil {
		d.Trace.Error = err.Error()
		return d.skip(ReasonInvalidConfig)
	}

	loc, err := zones.Resolve(rule.Timezone)
	if err != nil {
		d.Trace.TimezoneFallback = true
		d.Trace.Error = err.Error()
	}
	d.Location = loc
	d.Trace.Timezone = loc.String()

	window := EvaluateWindow(loc, at, tick.Previous, tick.Now)
	d.LocalNow = window.Now
	d.Trace.ScheduledMinutes = window.ScheduledMinutes
	d.Trace.PreviousMinutes = window.PreviousMinutes
	d.Trace.NowMinutes = window.NowMinutes
	d.Trace.DayRolledOver = window.DayRolledOver
	d.Trace.LocalDate = window.Now.Date()
	d.Trace.LocalWeekday = window.Now.Weekday
	if !window.Matched {
		return d.skip(ReasonOutsideWindow)
	}

	if !MatchesFrequency(rule, window.Now) {
		return d.skip(ReasonFrequencyMismatch)
	}

	fired, lastDate := FiredOnLocalDay(rule.LastFiredAt, loc, window.Now)
	d.Trace.LastFiredDate = lastDate
	if fired {
		return d.skip(ReasonAlreadyFiredToday)
	}

	d.Status = StatusDue
	return d
}

func (d Decision) skip(reason SkipReason) Decision {
	d.Status = StatusSkipped
	d.Reason = reason
	return d
}
