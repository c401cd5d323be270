package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"screen-automations/internal/domain"
	openai "screen-automations/internal/infra/openai"
)

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIText генерирует текст предложения через Chat Completions.
// Таймаут задаёт вызывающий конвейер через ctx.
type OpenAIText struct {
	client chatClient
	model  string
}

// NewOpenAIText создаёт генератор текста.
func NewOpenAIText(client chatClient, model string) *OpenAIText {
	if model == "" {
		model = "gpt-4.1-mini"
	}
	return &OpenAIText{client: client, model: model}
}

type contentPayload struct {
	Headline string `json:"headline"`
	Body     string `json:"body"`
}

// GenerateText запрашивает заголовок и текст по подготовленному промпту.
func (g *OpenAIText) GenerateText(ctx context.Context, req domain.TextRequest) (domain.SuggestionContent, error) {
	maxTokens := req.MaxWords*3 + 60
	chatReq := openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: 0.7,
		MaxTokens:   maxTokens,
		Messages: []openai.ChatMessage{
			{
				Role:    openai.RoleSystem,
				Content: "You write short, factual announcements for screens in offices and shops. Follow the style profile and reviewer feedback.",
			},
			{
				Role:    openai.RoleUser,
				Content: req.Prompt,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ResponseFormatTypeJSONObject},
	}

	resp, err := g.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return domain.SuggestionContent{}, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.SuggestionContent{}, fmt.Errorf("openai completion: пустой ответ")
	}
	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	var parsed contentPayload
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return domain.SuggestionContent{}, fmt.Errorf("распаковка ответа LLM: %w", err)
	}
	return domain.SuggestionContent{
		Headline: strings.TrimSpace(parsed.Headline),
		Body:     strings.TrimSpace(parsed.Body),
	}, nil
}
