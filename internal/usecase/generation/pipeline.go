package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"screen-automations/internal/domain"
	"screen-automations/internal/infra/metrics"
)

const defaultMaxWords = 60

// Config задаёт таймауты и размер истории.
type Config struct {
	TextTimeout  time.Duration
	ImageTimeout time.Duration
	// HistorySize ограничивает число промодерированных предложений в промпте.
	HistorySize int
}

// Pipeline собирает промпт из истории модерации и стиля организации,
// запрашивает текст и, если раскладка требует, картинку.
type Pipeline struct {
	text     domain.TextGenerator
	image    domain.ImageGenerator
	feedback domain.FeedbackRepo
	limiter  *rate.Limiter
	cfg      Config
	log      zerolog.Logger
}

// NewPipeline создаёт конвейер. image и limiter могут быть nil.
func NewPipeline(text domain.TextGenerator, image domain.ImageGenerator, feedback domain.FeedbackRepo, limiter *rate.Limiter, cfg Config, log zerolog.Logger) *Pipeline {
	if cfg.TextTimeout <= 0 {
		cfg.TextTimeout = 60 * time.Second
	}
	if cfg.ImageTimeout <= 0 {
		cfg.ImageTimeout = 120 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 10
	}
	return &Pipeline{text: text, image: image, feedback: feedback, limiter: limiter, cfg: cfg, log: log}
}

// Generate выполняет генерацию для правила. Ошибка текста прерывает срабатывание,
// ошибка картинки превращается в черновик только с текстом.
func (p *Pipeline) Generate(ctx context.Context, rule domain.AutomationRule) (domain.GeneratedContent, error) {
	ruleLog := p.log.With().Str("organization", rule.OrganizationID).Str("rule", rule.ID).Logger()

	history, err := p.feedback.ListRecentFeedback(ctx, rule.OrganizationID, rule.ID, p.cfg.HistorySize)
	if err != nil {
		ruleLog.Warn().Err(err).Msg("generation: история модерации недоступна, генерируем без неё")
		history = nil
	}
	style, err := p.feedback.GetStyleProfile(ctx, rule.OrganizationID)
	if err != nil {
		ruleLog.Warn().Err(err).Msg("generation: профиль стиля недоступен, генерируем без него")
		style = domain.StyleProfile{}
	}

	maxWords := defaultMaxWords
	if rule.MaxWords != nil && *rule.MaxWords > 0 {
		maxWords = *rule.MaxWords
	}
	req := domain.TextRequest{
		OrganizationID: rule.OrganizationID,
		RuleID:         rule.ID,
		Topic:          rule.Topic,
		MaxWords:       maxWords,
		Prompt:         BuildPrompt(rule.Topic, maxWords, history, style),
	}

	content, err := p.generateText(ctx, req)
	if err != nil {
		metrics.IncGenerationFailure("text")
		return domain.GeneratedContent{}, err
	}
	out := domain.GeneratedContent{Content: content}

	if !domain.LayoutRequiresImage(rule.Layout) || p.image == nil {
		return out, nil
	}
	ref, err := p.generateImage(ctx, ImagePrompt(rule.Topic, content, style))
	if err != nil {
		metrics.IncGenerationFailure("image")
		ruleLog.Warn().Err(err).Msg("generation: картинка не получена, сохраняем только текст")
		out.ImageDegraded = true
		return out, nil
	}
	out.Content.ImageRef = ref
	return out, nil
}

func (p *Pipeline) generateText(ctx context.Context, req domain.TextRequest) (domain.SuggestionContent, error) {
	if err := p.wait(ctx); err != nil {
		return domain.SuggestionContent{}, fmt.Errorf("%w: %v", domain.ErrTextGeneration, err)
	}
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.TextTimeout)
	defer cancel()
	content, err := p.text.GenerateText(callCtx, req)
	if err != nil {
		return domain.SuggestionContent{}, fmt.Errorf("%w: %v", domain.ErrTextGeneration, describe(callCtx, err))
	}
	content.Headline = strings.TrimSpace(content.Headline)
	content.Body = ClipWords(strings.TrimSpace(content.Body), req.MaxWords)
	if content.Headline == "" && content.Body == "" {
		return domain.SuggestionContent{}, fmt.Errorf("%w: пустой ответ", domain.ErrTextGeneration)
	}
	return content, nil
}

func (p *Pipeline) generateImage(ctx context.Context, prompt string) (string, error) {
	if err := p.wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrImageGeneration, err)
	}
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.ImageTimeout)
	defer cancel()
	ref, err := p.image.GenerateImage(callCtx, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrImageGeneration, describe(callCtx, err))
	}
	if strings.TrimSpace(ref) == "" {
		return "", fmt.Errorf("%w: пустая ссылка", domain.ErrImageGeneration)
	}
	return ref, nil
}

func (p *Pipeline) wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

// describe помечает таймаут вызова, чтобы его было видно в логах.
func describe(callCtx context.Context, err error) error {
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("таймаут: %w", err)
	}
	return err
}

// ClipWords обрезает текст до limit слов.
func ClipWords(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	words := strings.Fields(text)
	if len(words) <= limit {
		return text
	}
	return strings.Join(words[:limit], " ") + "…"
}
