package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"screen-automations/internal/domain"
	"screen-automations/internal/infra/metrics"
)

// Generator генерирует контент для одного правила.
type Generator interface {
	Generate(ctx context.Context, rule domain.AutomationRule) (domain.GeneratedContent, error)
}

// Config задаёт параметры планировщика.
type Config struct {
	// PollInterval должен совпадать с фактическим периодом опроса развёртывания.
	PollInterval time.Duration
	// Concurrency ограничивает число организаций в обработке.
	Concurrency int
	LockTTL     time.Duration
}

// Deps собирает зависимости сервиса. Lock и Events необязательны.
type Deps struct {
	Organizations domain.OrganizationRepo
	Rules         domain.RuleRepo
	Screens       domain.ScreenRepo
	Committer     domain.TickCommitter
	Generator     Generator
	Zones         locationResolver
	Lock          domain.RunLock
	Events        domain.EventPublisher
	Clock         func() time.Time
	NewID         func() string
}

// Service выполняет тики планировщика автоматизаций.
type Service struct {
	orgs      domain.OrganizationRepo
	rules     domain.RuleRepo
	screens   domain.ScreenRepo
	committer domain.TickCommitter
	generator Generator
	zones     locationResolver
	lock      domain.RunLock
	events    domain.EventPublisher
	clock     func() time.Time
	newID     func() string
	cfg       Config
	log       zerolog.Logger
}

// NewService создаёт сервис.
func NewService(deps Deps, cfg Config, log zerolog.Logger) *Service {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	return &Service{
		orgs:      deps.Organizations,
		rules:     deps.Rules,
		screens:   deps.Screens,
		committer: deps.Committer,
		generator: deps.Generator,
		zones:     deps.Zones,
		lock:      deps.Lock,
		events:    deps.Events,
		clock:     deps.Clock,
		newID:     deps.NewID,
		cfg:       cfg,
		log:       log,
	}
}

// RuleOutcome итог срабатывания правила, признанного due.
type RuleOutcome string

const (
	OutcomeCommitted        RuleOutcome = "committed"
	OutcomeCommitFailed     RuleOutcome = "commit-failed"
	OutcomeGenerationFailed RuleOutcome = "generation-failed"
	OutcomeNoTargets        RuleOutcome = "no-target-screens"
)

// RuleReport хранит решение и итог по правилу.
type RuleReport struct {
	Decision      Decision    `json:"decision"`
	Outcome       RuleOutcome `json:"outcome,omitempty"`
	Drafts        int         `json:"drafts,omitempty"`
	ImageDegraded bool        `json:"image_degraded,omitempty"`
	Error         string      `json:"error,omitempty"`
}

// OrgReport итог тика по организации.
type OrgReport struct {
	OrganizationID  string       `json:"organization_id"`
	Rules           []RuleReport `json:"rules"`
	Fired           []string     `json:"fired,omitempty"`
	DraftsCommitted int          `json:"drafts_committed"`
	Error           string       `json:"error,omitempty"`
}

// TickReport итог тика по всем организациям.
type TickReport struct {
	Previous      time.Time   `json:"previous"`
	Now           time.Time   `json:"now"`
	Organizations []OrgReport `json:"organizations"`
}

// DraftsCommitted суммирует черновики по всем организациям.
func (r TickReport) DraftsCommitted() int {
	total := 0
	for _, org := range r.Organizations {
		total += org.DraftsCommitted
	}
	return total
}

// PollInterval возвращает интервал, из которого вычисляется начало окна.
func (s *Service) PollInterval() time.Duration {
	return s.cfg.PollInterval
}

// RunTick обрабатывает все организации в момент now.
func (s *Service) RunTick(ctx context.Context, now time.Time) (TickReport, error) {
	start := time.Now()
	defer metrics.ObserveTick(start)

	tick := NewTick(now, s.cfg.PollInterval)
	report := TickReport{Previous: tick.Previous, Now: tick.Now}

	orgs, err := s.orgs.ListOrganizations(ctx)
	if err != nil {
		return report, fmt.Errorf("список организаций: %w", err)
	}

	results := make([]OrgReport, len(orgs))
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, org := range orgs {
		g.Go(func() error {
			results[i] = s.processOrganization(ctx, org, tick)
			return nil
		})
	}
	_ = g.Wait()
	report.Organizations = results

	s.log.Info().
		Time("now", tick.Now).
		Int("organizations", len(orgs)).
		Int("drafts", report.DraftsCommitted()).
		Dur("took", time.Since(start)).
		Msg("automation: тик завершён")
	return report, nil
}

// RunOrganization обрабатывает одну организацию в момент now той же логикой, что и RunTick.
func (s *Service) RunOrganization(ctx context.Context, organizationID string, now time.Time) (TickReport, error) {
	tick := NewTick(now, s.cfg.PollInterval)
	report := TickReport{Previous: tick.Previous, Now: tick.Now}
	org, err := s.orgs.GetOrganization(ctx, organizationID)
	if err != nil {
		return report, fmt.Errorf("организация %s: %w", organizationID, err)
	}
	report.Organizations = []OrgReport{s.processOrganization(ctx, org, tick)}
	return report, nil
}

// Trigger выполняет ручной запуск. Пустой organizationID означает все организации,
// нулевой at означает текущий момент.
func (s *Service) Trigger(ctx context.Context, organizationID string, at time.Time) (TickReport, error) {
	if at.IsZero() {
		at = s.clock()
	}
	if organizationID == "" {
		return s.RunTick(ctx, at)
	}
	return s.RunOrganization(ctx, organizationID, at)
}

type pendingFire struct {
	index    int
	rule     domain.AutomationRule
	targets  []string
	drafts   []domain.SuggestionDraft
	degraded bool
	err      error
}

func (s *Service) processOrganization(ctx context.Context, org domain.Organization, tick Tick) OrgReport {
	report := OrgReport{OrganizationID: org.ID}
	orgLog := s.log.With().Str("organization", org.ID).Logger()

	if s.lock != nil {
		release, ok, err := s.lock.Acquire(ctx, "automation:org:"+org.ID, s.cfg.LockTTL)
		if err != nil {
			orgLog.Error().Err(err).Msg("automation: не удалось взять блокировку организации")
			report.Error = err.Error()
			return report
		}
		if !ok {
			orgLog.Warn().Msg("automation: организация уже обрабатывается, пропускаем")
			report.Error = domain.ErrLockBusy.Error()
			return report
		}
		defer release()
	}

	rules, err := s.rules.ListRules(ctx, org.ID)
	if err != nil {
		orgLog.Error().Err(err).Msg("automation: не удалось получить правила")
		report.Error = fmt.Sprintf("список правил: %v", err)
		return report
	}

	report.Rules = make([]RuleReport, len(rules))
	var due []pendingFire
	for i, rule := range rules {
		decision := Decide(rule, tick, s.zones)
		report.Rules[i] = RuleReport{Decision: decision}
		metrics.ObserveRuleDecision(decision.ReasonLabel())
		s.logDecision(orgLog, decision)
		if decision.Due() {
			due = append(due, pendingFire{index: i, rule: rule})
		}
	}
	if len(due) == 0 {
		return report
	}

	due = s.resolveTargets(ctx, orgLog, org.ID, due)
	s.generate(ctx, due)

	fires := make([]domain.RuleFire, 0, len(due))
	fireIdx := make([]int, 0, len(due))
	for _, p := range due {
		rr := &report.Rules[p.index]
		switch {
		case p.err != nil:
			rr.Outcome = OutcomeGenerationFailed
			rr.Error = p.err.Error()
			metrics.ObserveRuleOutcome(string(rr.Outcome))
			orgLog.Error().Err(p.err).Str("rule", p.rule.ID).Msg("automation: срабатывание отменено до следующего тика")
		case len(p.targets) == 0:
			rr.Outcome = OutcomeNoTargets
			metrics.ObserveRuleOutcome(string(rr.Outcome))
			orgLog.Warn().Str("rule", p.rule.ID).Msg("automation: у правила нет экранов, пропускаем")
		default:
			rr.ImageDegraded = p.degraded
			fires = append(fires, domain.RuleFire{RuleID: p.rule.ID, Drafts: p.drafts})
			fireIdx = append(fireIdx, p.index)
		}
	}
	if len(fires) == 0 {
		return report
	}

	commit := domain.TickCommit{
		OrganizationID: org.ID,
		FiredAt:        tick.Now,
		CreatedAt:      s.clock().UTC(),
		Fires:          fires,
	}
	for i := range commit.Fires {
		for j := range commit.Fires[i].Drafts {
			commit.Fires[i].Drafts[j].CreatedAt = commit.CreatedAt
		}
	}

	if err := s.committer.CommitTick(ctx, commit); err != nil {
		err = fmt.Errorf("%w: %v", domain.ErrCommit, err)
		metrics.IncCommitFailure()
		for _, idx := range fireIdx {
			report.Rules[idx].Outcome = OutcomeCommitFailed
			report.Rules[idx].Error = err.Error()
			metrics.ObserveRuleOutcome(string(OutcomeCommitFailed))
		}
		report.Error = err.Error()
		orgLog.Error().Err(err).Int("rules", len(fires)).Msg("automation: коммит отклонён, повторим в следующем тике")
		return report
	}

	for k, idx := range fireIdx {
		report.Rules[idx].Outcome = OutcomeCommitted
		report.Rules[idx].Drafts = len(commit.Fires[k].Drafts)
		metrics.ObserveRuleOutcome(string(OutcomeCommitted))
	}
	report.Fired = commit.RuleIDs()
	report.DraftsCommitted = commit.DraftCount()
	metrics.AddDraftsCommitted(org.ID, report.DraftsCommitted)
	orgLog.Info().
		Strs("rules", report.Fired).
		Int("drafts", report.DraftsCommitted).
		Msg("automation: предложения сохранены")

	s.publish(ctx, orgLog, commit)
	return report
}

// resolveTargets берёт снимок активных экранов не более одного раза на организацию
// и только если хотя бы одно правило без явного списка.
func (s *Service) resolveTargets(ctx context.Context, log zerolog.Logger, orgID string, due []pendingFire) []pendingFire {
	var (
		active    []domain.Screen
		loaded    bool
		screenErr error
	)
	for i := range due {
		if len(due[i].rule.TargetScreenIDs) == 0 && !loaded {
			active, screenErr = s.screens.ListActiveScreens(ctx, orgID)
			loaded = true
			if screenErr != nil {
				log.Error().Err(screenErr).Msg("automation: не удалось получить активные экраны")
			}
		}
		if len(due[i].rule.TargetScreenIDs) == 0 && screenErr != nil {
			due[i].err = fmt.Errorf("активные экраны: %w", screenErr)
			continue
		}
		due[i].targets = ResolveTargets(due[i].rule, active)
	}
	return due
}

// generate параллельно запускает генерацию для правил с экранами.
// Ошибка одного правила не отменяет остальные.
func (s *Service) generate(ctx context.Context, due []pendingFire) {
	var g errgroup.Group
	for i := range due {
		p := &due[i]
		if p.err != nil || len(p.targets) == 0 {
			continue
		}
		g.Go(func() error {
			content, err := s.generator.Generate(ctx, p.rule)
			if err != nil {
				p.err = err
				return nil
			}
			p.degraded = content.ImageDegraded
			p.drafts = BuildDrafts(p.rule, content.Content, p.targets, s.newID)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Service) publish(ctx context.Context, log zerolog.Logger, commit domain.TickCommit) {
	if s.events == nil {
		return
	}
	event := domain.NewSuggestionsCreatedEvent(commit)
	if err := s.events.PublishSuggestionsCreated(ctx, event); err != nil {
		log.Error().Err(err).Msg("automation: не удалось опубликовать событие о предложениях")
	}
}

func (s *Service) logDecision(log zerolog.Logger, d Decision) {
	ev := log.Debug()
	if d.Reason == ReasonInvalidConfig {
		ev = log.Warn()
	}
	ev.Str("rule", d.RuleID).
		Str("status", string(d.Status)).
		Str("reason", string(d.Reason)).
		Object("trace", d.Trace).
		Msg("automation: решение по правилу")
}
