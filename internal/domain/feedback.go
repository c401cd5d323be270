package domain

import "time"

// FeedbackEntry описывает предложение, прошедшее ручную модерацию.
type FeedbackEntry struct {
	SuggestionID string
	RuleID       string
	Status       SuggestionStatus
	Headline     string
	Body         string
	ReviewedAt   time.Time
}

// StyleProfile хранит стилистические предпочтения организации.
type StyleProfile struct {
	OrganizationID string
	Tone           string
	Audience       string
	Language       string
	Guidelines     []string
}

// IsEmpty сообщает, что профиль не заполнен.
func (p StyleProfile) IsEmpty() bool {
	return p.Tone == "" && p.Audience == "" && p.Language == "" && len(p.Guidelines) == 0
}
