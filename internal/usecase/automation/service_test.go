package automation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"screen-automations/internal/domain"
)

type memoryStore struct {
	mu          sync.Mutex
	orgs        []domain.Organization
	rules       map[string][]domain.AutomationRule
	screens     map[string][]domain.Screen
	screensErr  error
	screenCalls int
	ruleCalls   int
	commits     []domain.TickCommit
	commitErr   error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		rules:   make(map[string][]domain.AutomationRule),
		screens: make(map[string][]domain.Screen),
	}
}

func (m *memoryStore) ListOrganizations(context.Context) ([]domain.Organization, error) {
	return m.orgs, nil
}

func (m *memoryStore) GetOrganization(_ context.Context, id string) (domain.Organization, error) {
	for _, org := range m.orgs {
		if org.ID == id {
			return org, nil
		}
	}
	return domain.Organization{}, fmt.Errorf("%w: %s", domain.ErrOrganizationNotFound, id)
}

func (m *memoryStore) ListRules(_ context.Context, orgID string) ([]domain.AutomationRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ruleCalls++
	out := make([]domain.AutomationRule, len(m.rules[orgID]))
	copy(out, m.rules[orgID])
	return out, nil
}

func (m *memoryStore) ListActiveScreens(_ context.Context, orgID string) ([]domain.Screen, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.screenCalls++
	if m.screensErr != nil {
		return nil, m.screensErr
	}
	return m.screens[orgID], nil
}

// CommitTick применяет дельту так же, как Postgres: черновики и last_fired_at вместе.
func (m *memoryStore) CommitTick(_ context.Context, commit domain.TickCommit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commitErr != nil {
		return m.commitErr
	}
	m.commits = append(m.commits, commit)
	fired := make(map[string]bool)
	for _, id := range commit.RuleIDs() {
		fired[id] = true
	}
	rules := m.rules[commit.OrganizationID]
	for i := range rules {
		if fired[rules[i].ID] {
			ts := commit.FiredAt
			rules[i].LastFiredAt = &ts
		}
	}
	return nil
}

type fakeGenerator struct {
	mu       sync.Mutex
	failures map[string]error
	degraded map[string]bool
	calls    []string
}

func (g *fakeGenerator) Generate(_ context.Context, rule domain.AutomationRule) (domain.GeneratedContent, error) {
	g.mu.Lock()
	g.calls = append(g.calls, rule.ID)
	err := g.failures[rule.ID]
	degraded := g.degraded[rule.ID]
	g.mu.Unlock()
	if err != nil {
		return domain.GeneratedContent{}, err
	}
	return domain.GeneratedContent{
		Content:       domain.SuggestionContent{Headline: "Заголовок " + rule.ID, Body: rule.Topic},
		ImageDegraded: degraded,
	}, nil
}

type busyLock struct{ busy map[string]bool }

func (l busyLock) Acquire(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	if l.busy[key] {
		return nil, false, nil
	}
	return func() {}, true, nil
}

type recordingEvents struct {
	mu     sync.Mutex
	events []domain.SuggestionsCreatedEvent
	err    error
}

func (r *recordingEvents) PublishSuggestionsCreated(_ context.Context, event domain.SuggestionsCreatedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

var (
	tickAt   = utc(2024, 3, 5, 9, 0)
	commitAt = time.Date(2024, 3, 5, 9, 0, 42, 0, time.UTC)
)

type fixture struct {
	store  *memoryStore
	gen    *fakeGenerator
	events *recordingEvents
	deps   Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemoryStore()
	store.orgs = []domain.Organization{{ID: "org-1", Name: "Кафе"}}
	gen := &fakeGenerator{failures: map[string]error{}, degraded: map[string]bool{}}
	events := &recordingEvents{}
	var seq atomic.Int64
	return &fixture{
		store:  store,
		gen:    gen,
		events: events,
		deps: Deps{
			Organizations: store,
			Rules:         store,
			Screens:       store,
			Committer:     store,
			Generator:     gen,
			Zones:         newZones(t, "UTC"),
			Events:        events,
			Clock:         func() time.Time { return commitAt },
			NewID:         func() string { return fmt.Sprintf("s-%d", seq.Add(1)) },
		},
	}
}

func (f *fixture) service() *Service {
	return NewService(f.deps, Config{PollInterval: 15 * time.Minute, Concurrency: 2}, zerolog.Nop())
}

func ruleReport(t *testing.T, org OrgReport, ruleID string) RuleReport {
	t.Helper()
	for _, rr := range org.Rules {
		if rr.Decision.RuleID == ruleID {
			return rr
		}
	}
	t.Fatalf("нет отчёта по правилу %s", ruleID)
	return RuleReport{}
}

func TestRunTickCommitsDueRulesAtomically(t *testing.T) {
	f := newFixture(t)
	explicit := dailyRule("r-explicit", "UTC", "09:00")
	explicit.TargetScreenIDs = []string{"s1"}
	f.store.rules["org-1"] = []domain.AutomationRule{
		explicit,
		dailyRule("r-all", "UTC", "08:55"),
		dailyRule("r-later", "UTC", "12:00"),
	}
	f.store.screens["org-1"] = []domain.Screen{{ID: "a1", IsActive: true}, {ID: "a2", IsActive: true}}

	report, err := f.service().RunTick(context.Background(), tickAt.Add(20*time.Second))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(f.store.commits) != 1 {
		t.Fatalf("ожидали один коммит на организацию, получили %d", len(f.store.commits))
	}
	commit := f.store.commits[0]
	if !commit.FiredAt.Equal(tickAt) {
		t.Fatalf("last_fired_at должен быть моментом тика, получили %s", commit.FiredAt)
	}
	if commit.DraftCount() != 3 {
		t.Fatalf("ожидали 3 черновика, получили %d", commit.DraftCount())
	}
	ids := map[string]bool{}
	for _, fire := range commit.Fires {
		for _, d := range fire.Drafts {
			if !d.CreatedAt.Equal(commitAt) {
				t.Fatalf("все черновики коммита должны иметь общий CreatedAt, получили %s", d.CreatedAt)
			}
			if d.Status != domain.SuggestionStatusPending {
				t.Fatalf("черновик должен ждать модерации")
			}
			ids[d.ID] = true
		}
	}
	if len(ids) != 3 {
		t.Fatalf("идентификаторы черновиков должны быть уникальны")
	}
	if f.store.screenCalls != 1 {
		t.Fatalf("активные экраны должны читаться один раз, прочитаны %d", f.store.screenCalls)
	}
	org := report.Organizations[0]
	fired := append([]string(nil), org.Fired...)
	sort.Strings(fired)
	if len(fired) != 2 || fired[0] != "r-all" || fired[1] != "r-explicit" {
		t.Fatalf("неожиданные сработавшие правила: %v", org.Fired)
	}
	if rr := ruleReport(t, org, "r-later"); rr.Decision.Reason != ReasonOutsideWindow || rr.Outcome != "" {
		t.Fatalf("r-later не должен срабатывать: %+v", rr)
	}
	if rr := ruleReport(t, org, "r-all"); rr.Outcome != OutcomeCommitted || rr.Drafts != 2 {
		t.Fatalf("r-all должен создать 2 черновика: %+v", rr)
	}
	if len(f.events.events) != 1 || len(f.events.events[0].SuggestionIDs) != 3 {
		t.Fatalf("ожидали одно событие с 3 предложениями: %+v", f.events.events)
	}
	if report.DraftsCommitted() != 3 {
		t.Fatalf("ожидали 3 черновика в отчёте")
	}
}

func TestRunTickIsIdempotentWithinLocalDay(t *testing.T) {
	f := newFixture(t)
	f.store.rules["org-1"] = []domain.AutomationRule{dailyRule("r-1", "UTC", "09:00")}
	f.store.screens["org-1"] = []domain.Screen{{ID: "a1", IsActive: true}}
	svc := f.service()

	if _, err := svc.RunTick(context.Background(), tickAt); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	report, err := svc.RunTick(context.Background(), tickAt)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(f.store.commits) != 1 {
		t.Fatalf("повторный тик не должен коммитить, коммитов %d", len(f.store.commits))
	}
	if rr := ruleReport(t, report.Organizations[0], "r-1"); rr.Decision.Reason != ReasonAlreadyFiredToday {
		t.Fatalf("ожидали already-fired-today, получили %+v", rr.Decision)
	}
}

func TestRunTickTextFailureSkipsOnlyThatRule(t *testing.T) {
	f := newFixture(t)
	f.store.rules["org-1"] = []domain.AutomationRule{
		dailyRule("r-ok", "UTC", "09:00"),
		dailyRule("r-broken", "UTC", "09:00"),
	}
	f.store.screens["org-1"] = []domain.Screen{{ID: "a1", IsActive: true}}
	f.gen.failures["r-broken"] = fmt.Errorf("%w: таймаут", domain.ErrTextGeneration)
	f.gen.degraded["r-ok"] = true

	report, err := f.service().RunTick(context.Background(), tickAt)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(f.store.commits) != 1 || len(f.store.commits[0].Fires) != 1 || f.store.commits[0].Fires[0].RuleID != "r-ok" {
		t.Fatalf("в коммит должно попасть только r-ok: %+v", f.store.commits)
	}
	org := report.Organizations[0]
	if rr := ruleReport(t, org, "r-broken"); rr.Outcome != OutcomeGenerationFailed || rr.Error == "" {
		t.Fatalf("ожидали generation-failed: %+v", rr)
	}
	if rr := ruleReport(t, org, "r-ok"); !rr.ImageDegraded {
		t.Fatalf("ожидали отметку о черновике без картинки")
	}
	if f.store.rules["org-1"][1].LastFiredAt != nil {
		t.Fatalf("last_fired_at упавшего правила не должен меняться")
	}
}

func TestRunTickCommitFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	f.store.rules["org-1"] = []domain.AutomationRule{dailyRule("r-1", "UTC", "09:00")}
	f.store.screens["org-1"] = []domain.Screen{{ID: "a1", IsActive: true}}
	f.store.commitErr = errors.New("serialization failure")

	report, err := f.service().RunTick(context.Background(), tickAt)
	if err != nil {
		t.Fatalf("ошибка коммита не должна валить весь тик: %v", err)
	}
	org := report.Organizations[0]
	if rr := ruleReport(t, org, "r-1"); rr.Outcome != OutcomeCommitFailed {
		t.Fatalf("ожидали commit-failed: %+v", rr)
	}
	if org.Error == "" || org.DraftsCommitted != 0 {
		t.Fatalf("ожидали ошибку организации без черновиков: %+v", org)
	}
	if len(f.events.events) != 0 {
		t.Fatalf("событие не должно публиковаться без коммита")
	}
	if f.store.rules["org-1"][0].LastFiredAt != nil {
		t.Fatalf("last_fired_at не должен меняться")
	}
}

func TestRunTickNoTargetScreens(t *testing.T) {
	f := newFixture(t)
	f.store.rules["org-1"] = []domain.AutomationRule{dailyRule("r-1", "UTC", "09:00")}

	report, err := f.service().RunTick(context.Background(), tickAt)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(f.store.commits) != 0 || len(f.gen.calls) != 0 {
		t.Fatalf("без экранов не должно быть ни генерации, ни коммита")
	}
	if rr := ruleReport(t, report.Organizations[0], "r-1"); rr.Outcome != OutcomeNoTargets {
		t.Fatalf("ожидали no-target-screens: %+v", rr)
	}
}

func TestRunTickScreensErrorFailsOnlyImplicitRules(t *testing.T) {
	f := newFixture(t)
	explicit := dailyRule("r-explicit", "UTC", "09:00")
	explicit.TargetScreenIDs = []string{"s1"}
	f.store.rules["org-1"] = []domain.AutomationRule{explicit, dailyRule("r-all", "UTC", "09:00")}
	f.store.screensErr = errors.New("connection reset")

	report, err := f.service().RunTick(context.Background(), tickAt)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	org := report.Organizations[0]
	if rr := ruleReport(t, org, "r-all"); rr.Outcome != OutcomeGenerationFailed {
		t.Fatalf("ожидали отказ правила без явных экранов: %+v", rr)
	}
	if rr := ruleReport(t, org, "r-explicit"); rr.Outcome != OutcomeCommitted {
		t.Fatalf("правило с явными экранами должно сработать: %+v", rr)
	}
}

func TestRunTickSkipsLockedOrganization(t *testing.T) {
	f := newFixture(t)
	f.store.orgs = append(f.store.orgs, domain.Organization{ID: "org-2"})
	f.store.rules["org-1"] = []domain.AutomationRule{dailyRule("r-1", "UTC", "09:00")}
	f.store.rules["org-2"] = []domain.AutomationRule{dailyRule("r-2", "UTC", "09:00")}
	f.store.screens["org-2"] = []domain.Screen{{ID: "b1", IsActive: true}}
	f.deps.Lock = busyLock{busy: map[string]bool{"automation:org:org-1": true}}

	report, err := f.service().RunTick(context.Background(), tickAt)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(report.Organizations) != 2 {
		t.Fatalf("ожидали отчёт по двум организациям")
	}
	if report.Organizations[0].OrganizationID != "org-1" || report.Organizations[0].Error != domain.ErrLockBusy.Error() {
		t.Fatalf("org-1 должна быть пропущена из-за блокировки: %+v", report.Organizations[0])
	}
	if report.Organizations[1].DraftsCommitted != 1 {
		t.Fatalf("org-2 должна обработаться: %+v", report.Organizations[1])
	}
	if f.store.ruleCalls != 1 {
		t.Fatalf("правила заблокированной организации не должны читаться")
	}
}

func TestRunOrganizationAndTrigger(t *testing.T) {
	f := newFixture(t)
	f.store.rules["org-1"] = []domain.AutomationRule{dailyRule("r-1", "UTC", "09:00")}
	f.store.screens["org-1"] = []domain.Screen{{ID: "a1", IsActive: true}}
	f.deps.Clock = func() time.Time { return tickAt }
	svc := f.service()

	if _, err := svc.RunOrganization(context.Background(), "missing", tickAt); !errors.Is(err, domain.ErrOrganizationNotFound) {
		t.Fatalf("ожидали ErrOrganizationNotFound, получили %v", err)
	}

	report, err := svc.Trigger(context.Background(), "org-1", time.Time{})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !report.Now.Equal(tickAt) {
		t.Fatalf("нулевой at должен заменяться часами сервиса, получили %s", report.Now)
	}
	if report.DraftsCommitted() != 1 {
		t.Fatalf("ожидали 1 черновик, получили %d", report.DraftsCommitted())
	}

	// Воспроизведение тика на следующий день.
	replay, err := svc.Trigger(context.Background(), "", tickAt.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if replay.DraftsCommitted() != 1 {
		t.Fatalf("на следующий день правило должно сработать снова")
	}
}

func TestRunTickEventErrorIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.store.rules["org-1"] = []domain.AutomationRule{dailyRule("r-1", "UTC", "09:00")}
	f.store.screens["org-1"] = []domain.Screen{{ID: "a1", IsActive: true}}
	f.events.err = errors.New("channel closed")

	report, err := f.service().RunTick(context.Background(), tickAt)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if report.Organizations[0].Error != "" || report.DraftsCommitted() != 1 {
		t.Fatalf("ошибка публикации не должна влиять на коммит: %+v", report.Organizations[0])
	}
}
