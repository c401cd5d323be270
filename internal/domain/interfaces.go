package domain

import (
	"context"
	"time"
)

// OrganizationRepo отдаёт организации для обхода планировщиком.
type OrganizationRepo interface {
	ListOrganizations(ctx context.Context) ([]Organization, error)
	GetOrganization(ctx context.Context, id string) (Organization, error)
}

// RuleRepo отдаёт правила организации только для чтения.
type RuleRepo interface {
	ListRules(ctx context.Context, organizationID string) ([]AutomationRule, error)
}

// ScreenRepo отдаёт экраны организации.
type ScreenRepo interface {
	ListActiveScreens(ctx context.Context, organizationID string) ([]Screen, error)
}

// FeedbackRepo отдаёт историю модерации предложений.
type FeedbackRepo interface {
	ListRecentFeedback(ctx context.Context, organizationID, ruleID string, limit int) ([]FeedbackEntry, error)
	GetStyleProfile(ctx context.Context, organizationID string) (StyleProfile, error)
}

// TickCommitter атомарно записывает черновики и last_fired_at сработавших правил.
// Либо записывается вся дельта, либо ничего.
type TickCommitter interface {
	CommitTick(ctx context.Context, commit TickCommit) error
}

// TextRequest описывает запрос на генерацию текста.
type TextRequest struct {
	OrganizationID string
	RuleID         string
	Topic          string
	MaxWords       int
	Prompt         string
}

// TextGenerator генерирует текст предложения.
type TextGenerator interface {
	GenerateText(ctx context.Context, req TextRequest) (SuggestionContent, error)
}

// ImageGenerator генерирует картинку и возвращает ссылку на неё.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// RunLock не даёт двум запускам обрабатывать одну организацию одновременно.
type RunLock interface {
	// Acquire возвращает функцию освобождения; ok=false, если блокировка занята.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}
