package generator

import (
	"context"
	"fmt"

	openai "screen-automations/internal/infra/openai"
)

type imageClient interface {
	CreateImage(ctx context.Context, req openai.ImageGenerationRequest) (openai.ImageGenerationResponse, error)
}

// OpenAIImage генерирует картинку и возвращает её URL.
type OpenAIImage struct {
	client imageClient
	model  string
	size   string
}

// NewOpenAIImage создаёт генератор картинок.
func NewOpenAIImage(client imageClient, model string) *OpenAIImage {
	if model == "" {
		model = "dall-e-3"
	}
	return &OpenAIImage{client: client, model: model, size: "1792x1024"}
}

// GenerateImage запрашивает одну картинку.
func (g *OpenAIImage) GenerateImage(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateImage(ctx, openai.ImageGenerationRequest{
		Model:  g.model,
		Prompt: prompt,
		N:      1,
		Size:   g.size,
	})
	if err != nil {
		return "", fmt.Errorf("openai images: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", fmt.Errorf("openai images: пустой ответ")
	}
	return resp.Data[0].URL, nil
}
