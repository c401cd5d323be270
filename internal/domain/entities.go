package domain

import (
	"strings"
	"time"
)

// Organization описывает организацию, которой принадлежат правила и экраны.
type Organization struct {
	ID   string
	Name string
}

// Screen описывает экран организации.
type Screen struct {
	ID             string
	OrganizationID string
	Name           string
	IsActive       bool
}

// Frequency задаёт форму расписания правила.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// AutomationRule описывает правило автоматической генерации предложений.
// Значение передаётся по копии и планировщиком не изменяется.
type AutomationRule struct {
	ID             string
	OrganizationID string
	IsEnabled      bool
	Timezone       string
	// TimeOfDay задаёт локальное время срабатывания в формате HH:MM.
	TimeOfDay string
	Frequency Frequency
	// DayOfWeek обязателен для weekly: 1 — понедельник, 7 — воскресенье.
	DayOfWeek *int
	// DayOfMonth обязателен для monthly: 1–31, без подгонки под короткие месяцы.
	DayOfMonth *int
	// LastFiredAt — момент последнего успешного коммита (UTC).
	LastFiredAt *time.Time
	// TargetScreenIDs — явный список экранов; nil означает все активные экраны.
	TargetScreenIDs []string
	Topic           string
	MaxWords        *int
	Layout          string
}

const (
	LayoutText            = "text"
	LayoutImage           = "image"
	LayoutImageText       = "image-text"
	LayoutFullscreenImage = "fullscreen-image"
)

// LayoutRequiresImage сообщает, нужна ли раскладке картинка.
func LayoutRequiresImage(layout string) bool {
	switch strings.ToLower(strings.TrimSpace(layout)) {
	case LayoutImage, LayoutImageText, LayoutFullscreenImage:
		return true
	default:
		return false
	}
}
