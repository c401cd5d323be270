package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv          string `envconfig:"APP_ENV" default:"dev"`
	DefaultTimezone string `envconfig:"DEFAULT_TIMEZONE" default:"Europe/Stockholm"`
	Port            int    `envconfig:"PORT" default:"8080"`
	MetricsAddr     string `envconfig:"METRICS_ADDR" default:":9090"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Rabbit struct {
		URL      string `envconfig:"RABBITMQ_URL"`
		Exchange string `envconfig:"SUGGESTIONS_EXCHANGE" default:"suggestions"`
	} `envconfig:""`

	Scheduler struct {
		Schedule     string        `envconfig:"POLL_SCHEDULE" default:"*/15 * * * *"`
		PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"15m"`
		Concurrency  int           `envconfig:"ORG_CONCURRENCY" default:"4"`
		LockTTL      time.Duration `envconfig:"RUN_LOCK_TTL" default:"10m"`
	} `envconfig:""`

	Generation struct {
		TextTimeout  time.Duration `envconfig:"GENERATION_TIMEOUT" default:"60s"`
		ImageTimeout time.Duration `envconfig:"IMAGE_GENERATION_TIMEOUT" default:"120s"`
		RPS          float64       `envconfig:"GENERATION_RPS" default:"2"`
		HistorySize  int           `envconfig:"FEEDBACK_HISTORY_SIZE" default:"10"`
	} `envconfig:""`

	OpenAI struct {
		APIKey     string        `envconfig:"OPENAI_API_KEY"`
		BaseURL    string        `envconfig:"OPENAI_BASE_URL"`
		Model      string        `envconfig:"OPENAI_MODEL" default:"gpt-4.1-mini"`
		ImageModel string        `envconfig:"OPENAI_IMAGE_MODEL" default:"dall-e-3"`
		Timeout    time.Duration `envconfig:"OPENAI_TIMEOUT" default:"150s"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения и .env, если файл есть.
func Load() AppConfig {
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// Parse читает конфиг без завершения процесса.
func Parse() (AppConfig, error) {
	_ = godotenv.Load()
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}
