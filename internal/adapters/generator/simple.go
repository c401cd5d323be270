package generator

import (
	"context"
	"strings"
	"unicode/utf8"

	"screen-automations/internal/domain"
)

// Simple реализует domain.TextGenerator эвристикой, без LLM.
// Используется, когда ключ OpenAI не задан.
type Simple struct{}

// NewSimple создаёт генератор.
func NewSimple() *Simple {
	return &Simple{}
}

// GenerateText строит заголовок из темы и короткий текст-заготовку.
func (s *Simple) GenerateText(ctx context.Context, req domain.TextRequest) (domain.SuggestionContent, error) {
	if err := ctx.Err(); err != nil {
		return domain.SuggestionContent{}, err
	}
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		topic = "Новости"
	}
	words := strings.Fields(topic)
	headline := truncate(strings.Join(words[:min(len(words), 8)], " "), 80)
	body := "Сегодня в фокусе: " + topic + "."
	if req.MaxWords > 0 {
		bodyWords := strings.Fields(body)
		if len(bodyWords) > req.MaxWords {
			body = strings.Join(bodyWords[:req.MaxWords], " ")
		}
	}
	return domain.SuggestionContent{Headline: headline, Body: body}, nil
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "…"
}
