package generation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"screen-automations/internal/domain"
)

type stubFeedback struct {
	history    []domain.FeedbackEntry
	style      domain.StyleProfile
	historyErr error
	styleErr   error
	limit      int
}

func (s *stubFeedback) ListRecentFeedback(_ context.Context, _, _ string, limit int) ([]domain.FeedbackEntry, error) {
	s.limit = limit
	return s.history, s.historyErr
}

func (s *stubFeedback) GetStyleProfile(context.Context, string) (domain.StyleProfile, error) {
	return s.style, s.styleErr
}

type stubText struct {
	content  domain.SuggestionContent
	err      error
	block    bool
	captured domain.TextRequest
}

func (s *stubText) GenerateText(ctx context.Context, req domain.TextRequest) (domain.SuggestionContent, error) {
	s.captured = req
	if s.block {
		<-ctx.Done()
		return domain.SuggestionContent{}, ctx.Err()
	}
	return s.content, s.err
}

type stubImage struct {
	ref    string
	err    error
	called bool
}

func (s *stubImage) GenerateImage(context.Context, string) (string, error) {
	s.called = true
	return s.ref, s.err
}

func rule(layout string) domain.AutomationRule {
	return domain.AutomationRule{ID: "r-1", OrganizationID: "org-1", Topic: "Акция на кофе", Layout: layout}
}

func TestGenerateTextOnlyLayout(t *testing.T) {
	text := &stubText{content: domain.SuggestionContent{Headline: " Кофе ", Body: "Скидка 20% до пятницы"}}
	image := &stubImage{ref: "https://img/1.png"}
	feedback := &stubFeedback{}
	p := NewPipeline(text, image, feedback, nil, Config{HistorySize: 5}, zerolog.Nop())

	out, err := p.Generate(context.Background(), rule(domain.LayoutText))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if image.called {
		t.Fatalf("текстовой раскладке картинка не нужна")
	}
	if out.Content.Headline != "Кофе" || out.Content.ImageRef != "" || out.ImageDegraded {
		t.Fatalf("неожиданный результат: %+v", out)
	}
	if feedback.limit != 5 {
		t.Fatalf("ожидали лимит истории 5, получили %d", feedback.limit)
	}
	if text.captured.MaxWords != defaultMaxWords {
		t.Fatalf("ожидали лимит слов по умолчанию")
	}
}

func TestGenerateWithImage(t *testing.T) {
	image := &stubImage{ref: "https://img/1.png"}
	p := NewPipeline(&stubText{content: domain.SuggestionContent{Headline: "Кофе", Body: "Скидка"}}, image, &stubFeedback{}, nil, Config{}, zerolog.Nop())
	out, err := p.Generate(context.Background(), rule(domain.LayoutImageText))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if out.Content.ImageRef != "https://img/1.png" || out.ImageDegraded {
		t.Fatalf("ожидали картинку: %+v", out)
	}
}

func TestGenerateImageFailureDegrades(t *testing.T) {
	image := &stubImage{err: errors.New("content policy")}
	p := NewPipeline(&stubText{content: domain.SuggestionContent{Headline: "Кофе", Body: "Скидка"}}, image, &stubFeedback{}, nil, Config{}, zerolog.Nop())
	out, err := p.Generate(context.Background(), rule(domain.LayoutFullscreenImage))
	if err != nil {
		t.Fatalf("ошибка картинки не должна отменять срабатывание: %v", err)
	}
	if !out.ImageDegraded || out.Content.ImageRef != "" || out.Content.Headline != "Кофе" {
		t.Fatalf("ожидали черновик только с текстом: %+v", out)
	}
}

func TestGenerateTextFailureAborts(t *testing.T) {
	image := &stubImage{ref: "x"}
	p := NewPipeline(&stubText{err: errors.New("502")}, image, &stubFeedback{}, nil, Config{}, zerolog.Nop())
	if _, err := p.Generate(context.Background(), rule(domain.LayoutImage)); !errors.Is(err, domain.ErrTextGeneration) {
		t.Fatalf("ожидали ErrTextGeneration, получили %v", err)
	}
	if image.called {
		t.Fatalf("после ошибки текста картинка не запрашивается")
	}
}

func TestGenerateTextTimeout(t *testing.T) {
	p := NewPipeline(&stubText{block: true}, nil, &stubFeedback{}, nil, Config{TextTimeout: 10 * time.Millisecond}, zerolog.Nop())
	_, err := p.Generate(context.Background(), rule(domain.LayoutText))
	if !errors.Is(err, domain.ErrTextGeneration) || !strings.Contains(err.Error(), "таймаут") {
		t.Fatalf("ожидали таймаут генерации текста, получили %v", err)
	}
}

func TestGenerateEmptyTextIsFailure(t *testing.T) {
	p := NewPipeline(&stubText{content: domain.SuggestionContent{Headline: "  "}}, nil, &stubFeedback{}, nil, Config{}, zerolog.Nop())
	if _, err := p.Generate(context.Background(), rule(domain.LayoutText)); !errors.Is(err, domain.ErrTextGeneration) {
		t.Fatalf("пустой ответ должен считаться ошибкой, получили %v", err)
	}
}

func TestGenerateIgnoresFeedbackErrors(t *testing.T) {
	text := &stubText{content: domain.SuggestionContent{Headline: "Кофе", Body: "Скидка"}}
	feedback := &stubFeedback{historyErr: errors.New("db"), styleErr: errors.New("db")}
	maxWords := 3
	r := rule(domain.LayoutText)
	r.MaxWords = &maxWords
	p := NewPipeline(text, nil, feedback, nil, Config{}, zerolog.Nop())
	if _, err := p.Generate(context.Background(), r); err != nil {
		t.Fatalf("ошибки истории не должны мешать генерации: %v", err)
	}
	if text.captured.MaxWords != 3 || !strings.Contains(text.captured.Prompt, "at most 3 words") {
		t.Fatalf("лимит слов правила не попал в промпт: %+v", text.captured)
	}
}

func TestClipWords(t *testing.T) {
	if got := ClipWords("раз два три четыре", 2); got != "раз два…" {
		t.Fatalf("неожиданный результат %q", got)
	}
	if got := ClipWords("раз два", 5); got != "раз два" {
		t.Fatalf("короткий текст не должен меняться, получили %q", got)
	}
	if got := ClipWords("раз два", 0); got != "раз два" {
		t.Fatalf("нулевой лимит не обрезает")
	}
}
