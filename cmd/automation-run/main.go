package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"screen-automations/internal/app"
	"screen-automations/internal/infra/config"
	applog "screen-automations/internal/infra/log"
)

// automation-run выполняет один тик вручную: для всех организаций или для одной.
// -at позволяет воспроизвести тик в прошлом моменте.
func main() {
	orgID := flag.String("org", "", "идентификатор организации; пусто означает все")
	atRaw := flag.String("at", "", "момент тика в RFC3339; пусто означает сейчас")
	flag.Parse()

	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	var at time.Time
	if *atRaw != "" {
		parsed, err := time.Parse(time.RFC3339, *atRaw)
		if err != nil {
			logger.Fatal().Err(err).Str("at", *atRaw).Msg("automation-run: некорректный -at")
		}
		at = parsed
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	built, err := app.BuildAutomation(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("automation-run: не удалось собрать сервис")
	}
	defer built.Close()

	report, err := built.Service.Trigger(ctx, *orgID, at)
	if err != nil {
		logger.Error().Err(err).Msg("automation-run: запуск не удался")
		built.Close()
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		logger.Error().Err(err).Msg("automation-run: не удалось вывести отчёт")
	}
}
