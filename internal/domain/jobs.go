package domain

import "time"

// SuggestionStatus описывает состояние предложения.
type SuggestionStatus string

const (
	SuggestionStatusPending  SuggestionStatus = "pending"
	SuggestionStatusApproved SuggestionStatus = "approved"
	SuggestionStatusRejected SuggestionStatus = "rejected"
	SuggestionStatusEdited   SuggestionStatus = "edited"
)

// SuggestionContent содержит сгенерированный контент предложения.
type SuggestionContent struct {
	Headline string `json:"headline"`
	Body     string `json:"body"`
	ImageRef string `json:"image_ref,omitempty"`
}

// SuggestionDraft — предложение для одного экрана, созданное одним срабатыванием правила.
type SuggestionDraft struct {
	ID             string            `json:"id"`
	OrganizationID string            `json:"organization_id"`
	RuleID         string            `json:"rule_id"`
	TargetScreenID string            `json:"target_screen_id"`
	CreatedAt      time.Time         `json:"created_at"`
	Status         SuggestionStatus  `json:"status"`
	Content        SuggestionContent `json:"content"`
}

// RuleFire описывает срабатывание одного правила в рамках тика.
type RuleFire struct {
	RuleID string
	Drafts []SuggestionDraft
}

// TickCommit — явная дельта, которую нужно атомарно записать для организации.
type TickCommit struct {
	OrganizationID string
	// FiredAt — момент тика, записывается в last_fired_at каждого сработавшего правила.
	FiredAt time.Time
	// CreatedAt — момент коммита, общий для всех черновиков.
	CreatedAt time.Time
	Fires     []RuleFire
}

// DraftCount возвращает количество черновиков в коммите.
func (c TickCommit) DraftCount() int {
	total := 0
	for _, fire := range c.Fires {
		total += len(fire.Drafts)
	}
	return total
}

// RuleIDs возвращает идентификаторы сработавших правил.
func (c TickCommit) RuleIDs() []string {
	ids := make([]string, 0, len(c.Fires))
	for _, fire := range c.Fires {
		ids = append(ids, fire.RuleID)
	}
	return ids
}

// GeneratedContent возвращается конвейером генерации для одного правила.
type GeneratedContent struct {
	Content SuggestionContent
	// ImageDegraded — картинка требовалась, но не получена; черновик только с текстом.
	ImageDegraded bool
}
