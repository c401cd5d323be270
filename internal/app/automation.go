package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"screen-automations/internal/adapters/events"
	"screen-automations/internal/adapters/generator"
	"screen-automations/internal/adapters/repo"
	"screen-automations/internal/domain"
	"screen-automations/internal/infra/cache"
	"screen-automations/internal/infra/config"
	"screen-automations/internal/infra/db"
	"screen-automations/internal/infra/openai"
	"screen-automations/internal/usecase/automation"
	"screen-automations/internal/usecase/generation"
	"screen-automations/internal/usecase/schedule"
)

// Automation хранит собранный сервис и открытые соединения.
type Automation struct {
	Service *automation.Service
	closers []func()
}

// Close освобождает соединения в обратном порядке.
func (a *Automation) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// BuildAutomation подключает Postgres, Redis, RabbitMQ и генераторы по конфигу.
// Redis и RabbitMQ необязательны: без них работают без блокировки и без событий.
func BuildAutomation(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (*Automation, error) {
	a := &Automation{}
	fail := func(err error) (*Automation, error) {
		a.Close()
		return nil, err
	}

	zones, err := schedule.NewResolver(cfg.DefaultTimezone)
	if err != nil {
		return nil, err
	}

	pool, err := db.Connect(ctx, cfg.PGDSN, int32(cfg.Scheduler.Concurrency*2))
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	a.closers = append(a.closers, pool.Close)
	store := repo.NewPostgres(pool)

	var lock domain.RunLock = cache.NewLocalLock()
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return fail(fmt.Errorf("redis: %w", err))
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		lock = cache.NewRedisLock(client)
	} else {
		logger.Warn().Msg("app: REDIS_ADDR не задан, блокировка организаций только в пределах процесса")
	}

	var publisher domain.EventPublisher
	if cfg.Rabbit.URL != "" {
		rabbit, err := events.NewRabbit(cfg.Rabbit.URL, cfg.Rabbit.Exchange)
		if err != nil {
			return fail(err)
		}
		a.closers = append(a.closers, func() { _ = rabbit.Close() })
		publisher = rabbit
	} else {
		logger.Warn().Msg("app: RABBITMQ_URL не задан, события о предложениях не публикуются")
	}

	var (
		text  domain.TextGenerator
		image domain.ImageGenerator
	)
	if cfg.OpenAI.APIKey != "" {
		client := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout)
		text = generator.NewOpenAIText(client, cfg.OpenAI.Model)
		image = generator.NewOpenAIImage(client, cfg.OpenAI.ImageModel)
	} else {
		logger.Warn().Msg("app: OPENAI_API_KEY не задан, используем простой генератор без картинок")
		text = generator.NewSimple()
	}

	var limiter *rate.Limiter
	if cfg.Generation.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Generation.RPS), 1)
	}
	pipeline := generation.NewPipeline(text, image, store, limiter, generation.Config{
		TextTimeout:  cfg.Generation.TextTimeout,
		ImageTimeout: cfg.Generation.ImageTimeout,
		HistorySize:  cfg.Generation.HistorySize,
	}, logger.With().Str("component", "generation").Logger())

	a.Service = automation.NewService(automation.Deps{
		Organizations: store,
		Rules:         store,
		Screens:       store,
		Committer:     store,
		Generator:     pipeline,
		Zones:         zones,
		Lock:          lock,
		Events:        publisher,
	}, automation.Config{
		PollInterval: cfg.Scheduler.PollInterval,
		Concurrency:  cfg.Scheduler.Concurrency,
		LockTTL:      cfg.Scheduler.LockTTL,
	}, logger.With().Str("component", "automation").Logger())
	return a, nil
}
