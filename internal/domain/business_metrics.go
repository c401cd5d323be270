package domain

import (
	"context"
	"time"
)

// SuggestionsCreatedEvent публикуется после успешного коммита тика организации.
type SuggestionsCreatedEvent struct {
	Event          string    `json:"event"`
	OrganizationID string    `json:"organization_id"`
	RuleIDs        []string  `json:"rule_ids"`
	SuggestionIDs  []string  `json:"suggestion_ids"`
	CreatedAt      time.Time `json:"created_at"`
}

const (
	// EventSuggestionsCreated фиксирует появление новых предложений на модерации.
	EventSuggestionsCreated = "suggestions.created"
)

// NewSuggestionsCreatedEvent собирает событие из закоммиченной дельты.
func NewSuggestionsCreatedEvent(commit TickCommit) SuggestionsCreatedEvent {
	ids := make([]string, 0, commit.DraftCount())
	for _, fire := range commit.Fires {
		for _, draft := range fire.Drafts {
			ids = append(ids, draft.ID)
		}
	}
	return SuggestionsCreatedEvent{
		Event:          EventSuggestionsCreated,
		OrganizationID: commit.OrganizationID,
		RuleIDs:        commit.RuleIDs(),
		SuggestionIDs:  ids,
		CreatedAt:      commit.CreatedAt,
	}
}

// EventPublisher доставляет события о новых предложениях.
type EventPublisher interface {
	PublishSuggestionsCreated(ctx context.Context, event SuggestionsCreatedEvent) error
}
