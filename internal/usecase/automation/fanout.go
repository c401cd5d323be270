package automation

import (
	"strings"

	"screen-automations/internal/domain"
)

// ResolveTargets возвращает экраны срабатывания: явный список правила
// или снимок активных экранов организации. Вызывается один раз на срабатывание.
func ResolveTargets(rule domain.AutomationRule, active []domain.Screen) []string {
	if len(rule.TargetScreenIDs) > 0 {
		return uniqueIDs(rule.TargetScreenIDs)
	}
	ids := make([]string, 0, len(active))
	for _, screen := range active {
		if !screen.IsActive {
			continue
		}
		ids = append(ids, screen.ID)
	}
	return uniqueIDs(ids)
}

// BuildDrafts создаёт по черновику на экран с общим контентом.
// CreatedAt проставляется при коммите.
func BuildDrafts(rule domain.AutomationRule, content domain.SuggestionContent, targets []string, newID func() string) []domain.SuggestionDraft {
	drafts := make([]domain.SuggestionDraft, 0, len(targets))
	for _, screenID := range targets {
		drafts = append(drafts, domain.SuggestionDraft{
			ID:             newID(),
			OrganizationID: rule.OrganizationID,
			RuleID:         rule.ID,
			TargetScreenID: screenID,
			Status:         domain.SuggestionStatusPending,
			Content:        content,
		})
	}
	return drafts
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
