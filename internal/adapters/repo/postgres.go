package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"screen-automations/internal/domain"
	"screen-automations/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.OrganizationRepo = (*Postgres)(nil)
	_ domain.RuleRepo         = (*Postgres)(nil)
	_ domain.ScreenRepo       = (*Postgres)(nil)
	_ domain.FeedbackRepo     = (*Postgres)(nil)
	_ domain.TickCommitter    = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// ListOrganizations реализует domain.OrganizationRepo.
func (p *Postgres) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT id, name FROM organizations ORDER BY id`)
	metrics.ObserveNetworkRequest("postgres", "organizations_list", "organizations", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orgs []domain.Organization
	for rows.Next() {
		var org domain.Organization
		if err := rows.Scan(&org.ID, &org.Name); err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

// GetOrganization реализует domain.OrganizationRepo.
func (p *Postgres) GetOrganization(ctx context.Context, id string) (domain.Organization, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var org domain.Organization
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT id, name FROM organizations WHERE id=$1`, id).Scan(&org.ID, &org.Name)
	metrics.ObserveNetworkRequest("postgres", "organizations_get", "organizations", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Organization{}, fmt.Errorf("%w: %s", domain.ErrOrganizationNotFound, id)
	}
	return org, err
}

// ListRules реализует domain.RuleRepo.
func (p *Postgres) ListRules(ctx context.Context, organizationID string) ([]domain.AutomationRule, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, organization_id, is_enabled, timezone, time_of_day, frequency, day_of_week, day_of_month,
       last_fired_at, target_screen_ids, topic, max_words, layout
FROM automation_rules
WHERE organization_id=$1
ORDER BY created_at, id
`, organizationID)
	metrics.ObserveNetworkRequest("postgres", "automation_rules_list", "automation_rules", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []domain.AutomationRule
	for rows.Next() {
		var (
			rule       domain.AutomationRule
			frequency  string
			dayOfWeek  sql.NullInt32
			dayOfMonth sql.NullInt32
			maxWords   sql.NullInt32
			lastFired  sql.NullTime
			timezone   sql.NullString
			targets    []string
		)
		if err := rows.Scan(&rule.ID, &rule.OrganizationID, &rule.IsEnabled, &timezone, &rule.TimeOfDay, &frequency,
			&dayOfWeek, &dayOfMonth, &lastFired, &targets, &rule.Topic, &maxWords, &rule.Layout); err != nil {
			return nil, err
		}
		rule.Frequency = domain.Frequency(frequency)
		rule.Timezone = timezone.String
		rule.DayOfWeek = intPtr(dayOfWeek)
		rule.DayOfMonth = intPtr(dayOfMonth)
		rule.MaxWords = intPtr(maxWords)
		if lastFired.Valid {
			ts := lastFired.Time.UTC()
			rule.LastFiredAt = &ts
		}
		rule.TargetScreenIDs = targets
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func intPtr(v sql.NullInt32) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int32)
	return &n
}

// ListActiveScreens реализует domain.ScreenRepo.
func (p *Postgres) ListActiveScreens(ctx context.Context, organizationID string) ([]domain.Screen, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, organization_id, name, is_active
FROM screens
WHERE organization_id=$1 AND is_active
ORDER BY id
`, organizationID)
	metrics.ObserveNetworkRequest("postgres", "screens_list_active", "screens", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var screens []domain.Screen
	for rows.Next() {
		var screen domain.Screen
		if err := rows.Scan(&screen.ID, &screen.OrganizationID, &screen.Name, &screen.IsActive); err != nil {
			return nil, err
		}
		screens = append(screens, screen)
	}
	return screens, rows.Err()
}

// ListRecentFeedback возвращает последние промодерированные предложения правила.
func (p *Postgres) ListRecentFeedback(ctx context.Context, organizationID, ruleID string, limit int) ([]domain.FeedbackEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, rule_id, status, content, reviewed_at
FROM suggestions
WHERE organization_id=$1 AND rule_id=$2 AND status <> 'pending' AND reviewed_at IS NOT NULL
ORDER BY reviewed_at DESC
LIMIT $3
`, organizationID, ruleID, limit)
	metrics.ObserveNetworkRequest("postgres", "suggestions_list_feedback", "suggestions", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []domain.FeedbackEntry
	for rows.Next() {
		var (
			entry   domain.FeedbackEntry
			status  string
			payload []byte
		)
		if err := rows.Scan(&entry.SuggestionID, &entry.RuleID, &status, &payload, &entry.ReviewedAt); err != nil {
			return nil, err
		}
		entry.Status = domain.SuggestionStatus(status)
		var content domain.SuggestionContent
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &content); err != nil {
				return nil, fmt.Errorf("распаковка предложения %s: %w", entry.SuggestionID, err)
			}
		}
		entry.Headline = content.Headline
		entry.Body = content.Body
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// GetStyleProfile возвращает профиль стиля; отсутствие профиля не ошибка.
func (p *Postgres) GetStyleProfile(ctx context.Context, organizationID string) (domain.StyleProfile, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	profile := domain.StyleProfile{OrganizationID: organizationID}
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT tone, audience, language, guidelines
FROM style_profiles
WHERE organization_id=$1
`, organizationID).Scan(&profile.Tone, &profile.Audience, &profile.Language, &profile.Guidelines)
	metrics.ObserveNetworkRequest("postgres", "style_profiles_get", "style_profiles", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StyleProfile{OrganizationID: organizationID}, nil
	}
	if err != nil {
		return domain.StyleProfile{}, err
	}
	return profile, nil
}

// CommitTick записывает черновики и last_fired_at одной транзакцией.
// last_fired_at не уменьшается, даже если коммит пришёл от запоздавшего запуска.
func (p *Postgres) CommitTick(ctx context.Context, commit domain.TickCommit) error {
	if len(commit.Fires) == 0 {
		return nil
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "suggestions", start, err)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	queued := 0
	for _, fire := range commit.Fires {
		for _, draft := range fire.Drafts {
			payload, err := json.Marshal(draft.Content)
			if err != nil {
				return fmt.Errorf("упаковка черновика %s: %w", draft.ID, err)
			}
			batch.Queue(`
INSERT INTO suggestions (id, organization_id, rule_id, target_screen_id, status, content, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, draft.ID, draft.OrganizationID, draft.RuleID, draft.TargetScreenID, string(draft.Status), payload, draft.CreatedAt)
			queued++
		}
		batch.Queue(`
UPDATE automation_rules
SET last_fired_at = GREATEST(COALESCE(last_fired_at, $3), $3), updated_at = now()
WHERE id=$1 AND organization_id=$2
`, fire.RuleID, commit.OrganizationID, commit.FiredAt)
		queued++
	}

	start = time.Now()
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < queued; i++ {
		if _, err = br.Exec(); err != nil {
			break
		}
	}
	if closeErr := br.Close(); err == nil {
		err = closeErr
	}
	metrics.ObserveNetworkRequest("postgres", "tick_commit_batch", "suggestions", start, err)
	if err != nil {
		return err
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "suggestions", start, err)
	return err
}
