package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	TickSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "automation_tick_seconds",
		Help:    "Длительность одного тика планировщика",
		Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	})

	RuleDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "automation_rule_decisions_total",
		Help: "Решения по правилам с разбивкой по причине",
	}, []string{"reason"})

	RuleOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "automation_rule_outcomes_total",
		Help: "Итоги срабатываний правил",
	}, []string{"outcome"})

	DraftsCommittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "automation_drafts_committed_total",
		Help: "Закоммиченные черновики по организациям",
	}, []string{"organization_id"})

	CommitFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "automation_commit_failures_total",
		Help: "Отклонённые коммиты тиков",
	})

	GenerationFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "automation_generation_failures_total",
		Help: "Ошибки генерации контента",
	}, []string{"kind"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 25, 30, 45, 60, 90, 120, 180, 240, 300},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	LLMGenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_generation_duration_seconds",
		Help:    "Длительность генерации ответа LLM",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	LLMTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_tokens_total",
		Help: "Количество токенов, использованных LLM",
	}, []string{"model", "type"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		TickSeconds,
		RuleDecisionsTotal,
		RuleOutcomesTotal,
		DraftsCommittedTotal,
		CommitFailuresTotal,
		GenerationFailuresTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
		LLMGenerationDuration,
		LLMTokensTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveTick записывает длительность тика.
func ObserveTick(start time.Time) {
	TickSeconds.Observe(time.Since(start).Seconds())
}

// ObserveRuleDecision учитывает решение по правилу.
func ObserveRuleDecision(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	RuleDecisionsTotal.WithLabelValues(reason).Inc()
}

// ObserveRuleOutcome учитывает итог срабатывания правила.
func ObserveRuleOutcome(outcome string) {
	RuleOutcomesTotal.WithLabelValues(outcome).Inc()
}

// AddDraftsCommitted увеличивает счётчик черновиков организации.
func AddDraftsCommitted(organizationID string, count int) {
	if count <= 0 {
		return
	}
	DraftsCommittedTotal.WithLabelValues(organizationID).Add(float64(count))
}

// IncCommitFailure учитывает отклонённый коммит.
func IncCommitFailure() {
	CommitFailuresTotal.Inc()
}

// IncGenerationFailure учитывает ошибку генерации: kind: text или image.
func IncGenerationFailure(kind string) {
	GenerationFailuresTotal.WithLabelValues(kind).Inc()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveLLMGeneration записывает длительность и токены генерации LLM.
func ObserveLLMGeneration(model string, duration time.Duration, promptTokens, completionTokens, totalTokens int) {
	if model == "" {
		model = "unknown"
	}
	LLMGenerationDuration.WithLabelValues(model).Observe(duration.Seconds())
	if promptTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
	if totalTokens <= 0 {
		totalTokens = promptTokens + completionTokens
	}
	if totalTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "total").Add(float64(totalTokens))
	}
}
