package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"screen-automations/internal/usecase/automation"
)

// TickRunner выполняет один тик планировщика.
type TickRunner interface {
	RunTick(ctx context.Context, now time.Time) (automation.TickReport, error)
}

// Scheduler запускает тики по cron-расписанию в UTC.
// Пропускает запуск, если предыдущий тик ещё не завершён.
type Scheduler struct {
	engine   *cron.Cron
	runner   TickRunner
	spec     string
	interval time.Duration
	clock    func() time.Time
	log      zerolog.Logger
	ctx      context.Context
}

// New проверяет, что шаг расписания равен интервалу опроса, и создаёт планировщик.
func New(ctx context.Context, spec string, interval time.Duration, runner TickRunner, cronLog cron.Logger, log zerolog.Logger) (*Scheduler, error) {
	if err := ValidateCadence(spec, interval); err != nil {
		return nil, err
	}
	engine := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	return &Scheduler{
		engine:   engine,
		runner:   runner,
		spec:     spec,
		interval: interval,
		clock:    time.Now,
		log:      log.With().Str("component", "scheduler").Logger(),
		ctx:      ctx,
	}, nil
}

// Start регистрирует задачу и запускает cron.
func (s *Scheduler) Start() error {
	if _, err := s.engine.AddFunc(s.spec, s.tick); err != nil {
		return fmt.Errorf("cron %q: %w", s.spec, err)
	}
	s.engine.Start()
	s.log.Info().Str("schedule", s.spec).Dur("interval", s.interval).Msg("scheduler: запущен")
	return nil
}

// Stop останавливает cron и ждёт завершения текущего тика.
func (s *Scheduler) Stop() {
	<-s.engine.Stop().Done()
	s.log.Info().Msg("scheduler: остановлен")
}

func (s *Scheduler) tick() {
	if err := s.ctx.Err(); err != nil {
		return
	}
	report, err := s.runner.RunTick(s.ctx, s.clock())
	if err != nil {
		s.log.Error().Err(err).Msg("scheduler: тик не выполнен")
		return
	}
	s.log.Debug().Time("now", report.Now).Int("drafts", report.DraftsCommitted()).Msg("scheduler: тик выполнен")
}

// ValidateCadence проверяет, что все промежутки между запусками по spec
// на двух сутках равны interval. Иначе окно (now - interval, now]
// пропускало бы или дублировало минуты.
func ValidateCadence(spec string, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("интервал опроса должен быть положительным: %s", interval)
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("cron %q: %w", spec, err)
	}
	horizon := 48 * time.Hour
	if 4*interval > horizon {
		horizon = 4 * interval
	}
	ref := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	prev := schedule.Next(ref.Add(-time.Second))
	for i := 0; i < 10000; i++ {
		next := schedule.Next(prev)
		if next.IsZero() {
			return fmt.Errorf("cron %q: нет следующего запуска", spec)
		}
		if gap := next.Sub(prev); gap != interval {
			return fmt.Errorf("cron %q: шаг %s между %s и %s не равен POLL_INTERVAL=%s",
				spec, gap, prev.Format(time.RFC3339), next.Format(time.RFC3339), interval)
		}
		if next.Sub(ref) > horizon {
			return nil
		}
		prev = next
	}
	return nil
}
