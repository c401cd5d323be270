package generation

import (
	"fmt"
	"strings"

	"screen-automations/internal/domain"
)

const maxExampleRunes = 280

// BuildPrompt собирает пользовательский промпт: тема, ограничение длины,
// стиль организации и сводка последних решений модераторов.
func BuildPrompt(topic string, maxWords int, history []domain.FeedbackEntry, style domain.StyleProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", strings.TrimSpace(topic))
	fmt.Fprintf(&b, "Write a short headline and a body of at most %d words for a digital signage screen.\n", maxWords)
	if !style.IsEmpty() {
		b.WriteString("\nStyle profile:\n")
		if style.Tone != "" {
			fmt.Fprintf(&b, "- tone: %s\n", style.Tone)
		}
		if style.Audience != "" {
			fmt.Fprintf(&b, "- audience: %s\n", style.Audience)
		}
		if style.Language != "" {
			fmt.Fprintf(&b, "- language: %s\n", style.Language)
		}
		for _, g := range style.Guidelines {
			if g = strings.TrimSpace(g); g != "" {
				fmt.Fprintf(&b, "- %s\n", g)
			}
		}
	}
	if summary := SummarizeFeedback(history); summary != "" {
		b.WriteString("\nReviewer feedback on recent suggestions:\n")
		b.WriteString(summary)
	}
	b.WriteString("\nReturn JSON {\"headline\": \"...\", \"body\": \"...\"} without explanations.")
	return b.String()
}

// SummarizeFeedback превращает историю модерации в список примеров.
// Принятые и отредактированные идут как образцы, отклонённые как антипримеры.
func SummarizeFeedback(history []domain.FeedbackEntry) string {
	var liked, disliked []string
	for _, entry := range history {
		example := clipRunes(strings.TrimSpace(entry.Headline+" — "+entry.Body), maxExampleRunes)
		switch entry.Status {
		case domain.SuggestionStatusApproved, domain.SuggestionStatusEdited:
			liked = append(liked, example)
		case domain.SuggestionStatusRejected:
			disliked = append(disliked, example)
		}
	}
	var b strings.Builder
	if len(liked) > 0 {
		fmt.Fprintf(&b, "Approved (%d), keep this direction:\n", len(liked))
		for _, ex := range liked {
			fmt.Fprintf(&b, "+ %s\n", ex)
		}
	}
	if len(disliked) > 0 {
		fmt.Fprintf(&b, "Rejected (%d), avoid this:\n", len(disliked))
		for _, ex := range disliked {
			fmt.Fprintf(&b, "- %s\n", ex)
		}
	}
	return b.String()
}

// ImagePrompt строит описание картинки по сгенерированному тексту.
func ImagePrompt(topic string, content domain.SuggestionContent, style domain.StyleProfile) string {
	prompt := fmt.Sprintf("Illustration for a digital signage screen about %q. Headline: %q.", strings.TrimSpace(topic), content.Headline)
	if style.Tone != "" {
		prompt += " Mood: " + style.Tone + "."
	}
	return prompt + " No text in the image."
}

func clipRunes(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}
