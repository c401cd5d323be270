package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"screen-automations/internal/app"
	"screen-automations/internal/infra/config"
	httpinfra "screen-automations/internal/infra/http"
	applog "screen-automations/internal/infra/log"
	"screen-automations/internal/infra/metrics"
	"screen-automations/internal/infra/scheduler"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	built, err := app.BuildAutomation(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось собрать сервис")
	}
	defer built.Close()

	sched, err := scheduler.New(ctx, cfg.Scheduler.Schedule, cfg.Scheduler.PollInterval, built.Service,
		applog.NewCronLogger(logger), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: расписание не совпадает с POLL_INTERVAL")
	}
	if err := sched.Start(); err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось запустить cron")
	}

	server := httpinfra.NewServer(logger, built.Service)
	go func() {
		if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("scheduler: HTTP сервер остановлен")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("scheduler: завершаем работу")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("scheduler: ошибка остановки HTTP сервера")
	}
	sched.Stop()
}
