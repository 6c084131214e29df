// Package repository persists routing rules and round-robin configuration.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"crm_backend/internal/routing/domain"
	"crm_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opRuleCreate  = "routing.repository.rule_create"
	opRuleUpdate  = "routing.repository.rule_update"
	opRuleGet     = "routing.repository.rule_get"
	opRuleList    = "routing.repository.rule_list"
	opRuleDelete  = "routing.repository.rule_delete"
	opRecordMatch = "routing.repository.record_match"

	errRepoNotConfigured = "routing repository not configured"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const ruleColumns = `id, name, priority, is_active, languages, page_types, page_slugs, sources,
	segments, budget_ranges, property_types, timeframes, target_agent_id,
	fallback_to_broadcast, total_matches, last_matched_at, created_at, updated_at`

func scanRule(row pgx.Row) (domain.Rule, error) {
	var rule domain.Rule
	err := row.Scan(
		&rule.ID, &rule.Name, &rule.Priority, &rule.IsActive, &rule.Languages, &rule.PageTypes,
		&rule.PageSlugs, &rule.Sources, &rule.Segments, &rule.BudgetRanges, &rule.PropertyTypes,
		&rule.Timeframes, &rule.TargetAgentID, &rule.FallbackToBroadcast, &rule.TotalMatches,
		&rule.LastMatchedAt, &rule.CreatedAt, &rule.UpdatedAt,
	)
	return rule, err
}

type RuleParams struct {
	Name                string
	Priority            int
	IsActive            bool
	Languages           []string
	PageTypes           []string
	PageSlugs           []string
	Sources             []string
	Segments            []string
	BudgetRanges        []string
	PropertyTypes       []string
	Timeframes          []string
	TargetAgentID       uuid.UUID
	FallbackToBroadcast bool
}

func (r *Repository) CreateRule(ctx context.Context, p RuleParams) (domain.Rule, error) {
	if r == nil || r.pool == nil {
		return domain.Rule{}, apperr.Internal(errRepoNotConfigured).WithOp(opRuleCreate)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO crm_routing_rules (name, priority, is_active, languages, page_types, page_slugs,
			sources, segments, budget_ranges, property_types, timeframes, target_agent_id, fallback_to_broadcast)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+ruleColumns,
		p.Name, p.Priority, p.IsActive, emptySet(p.Languages), emptySet(p.PageTypes),
		emptySet(p.PageSlugs), emptySet(p.Sources), emptySet(p.Segments), emptySet(p.BudgetRanges),
		emptySet(p.PropertyTypes), emptySet(p.Timeframes), p.TargetAgentID, p.FallbackToBroadcast,
	)
	rule, err := scanRule(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return domain.Rule{}, apperr.Validation("target agent does not exist").WithOp(opRuleCreate)
		}
		return domain.Rule{}, apperr.Internal(fmt.Sprintf("create rule failed: %v", err)).WithOp(opRuleCreate)
	}
	return rule, nil
}

func (r *Repository) UpdateRule(ctx context.Context, id uuid.UUID, p RuleParams) (domain.Rule, error) {
	if r == nil || r.pool == nil {
		return domain.Rule{}, apperr.Internal(errRepoNotConfigured).WithOp(opRuleUpdate)
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE crm_routing_rules
		SET name = $2, priority = $3, is_active = $4, languages = $5, page_types = $6,
			page_slugs = $7, sources = $8, segments = $9, budget_ranges = $10,
			property_types = $11, timeframes = $12, target_agent_id = $13,
			fallback_to_broadcast = $14, updated_at = now()
		WHERE id = $1
		RETURNING `+ruleColumns,
		id, p.Name, p.Priority, p.IsActive, emptySet(p.Languages), emptySet(p.PageTypes),
		emptySet(p.PageSlugs), emptySet(p.Sources), emptySet(p.Segments), emptySet(p.BudgetRanges),
		emptySet(p.PropertyTypes), emptySet(p.Timeframes), p.TargetAgentID, p.FallbackToBroadcast,
	)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Rule{}, apperr.NotFound("routing rule not found").WithOp(opRuleUpdate)
		}
		return domain.Rule{}, apperr.Internal(fmt.Sprintf("update rule failed: %v", err)).WithOp(opRuleUpdate)
	}
	return rule, nil
}

func (r *Repository) GetRule(ctx context.Context, id uuid.UUID) (domain.Rule, error) {
	if r == nil || r.pool == nil {
		return domain.Rule{}, apperr.Internal(errRepoNotConfigured).WithOp(opRuleGet)
	}

	rule, err := scanRule(r.pool.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM crm_routing_rules WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Rule{}, apperr.NotFound("routing rule not found").WithOp(opRuleGet)
		}
		return domain.Rule{}, apperr.Internal(fmt.Sprintf("get rule failed: %v", err)).WithOp(opRuleGet)
	}
	return rule, nil
}

// ListRules returns all rules for administration, highest priority first.
func (r *Repository) ListRules(ctx context.Context) ([]domain.Rule, error) {
	if r == nil || r.pool == nil {
		return nil, apperr.Internal(errRepoNotConfigured).WithOp(opRuleList)
	}
	return r.queryRules(ctx, `SELECT `+ruleColumns+` FROM crm_routing_rules
		ORDER BY priority DESC, created_at ASC`)
}

// ListActiveRules returns the active rule set in evaluation order.
func (r *Repository) ListActiveRules(ctx context.Context) ([]domain.Rule, error) {
	if r == nil || r.pool == nil {
		return nil, apperr.Internal(errRepoNotConfigured).WithOp(opRuleList)
	}
	return r.queryRules(ctx, `SELECT `+ruleColumns+` FROM crm_routing_rules
		WHERE is_active ORDER BY priority DESC, created_at ASC`)
}

func (r *Repository) queryRules(ctx context.Context, query string) ([]domain.Rule, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("list rules failed: %v", err)).WithOp(opRuleList)
	}
	defer rows.Close()

	rules := make([]domain.Rule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan rule failed: %v", err)).WithOp(opRuleList)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(fmt.Sprintf("iterate rules failed: %v", err)).WithOp(opRuleList)
	}
	return rules, nil
}

func (r *Repository) DeleteRule(ctx context.Context, id uuid.UUID) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opRuleDelete)
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM crm_routing_rules WHERE id = $1`, id)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("delete rule failed: %v", err)).WithOp(opRuleDelete)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("routing rule not found").WithOp(opRuleDelete)
	}
	return nil
}

// RecordMatch bumps the rule's match statistics after a successful
// assignment.
func (r *Repository) RecordMatch(ctx context.Context, id uuid.UUID) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opRecordMatch)
	}

	_, err := r.pool.Exec(ctx, `
		UPDATE crm_routing_rules
		SET total_matches = total_matches + 1, last_matched_at = now(), updated_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("record rule match failed: %v", err)).WithOp(opRecordMatch)
	}
	return nil
}

// emptySet normalizes nil slices to empty arrays so NOT NULL array columns
// accept them, and trims stray whitespace from configured values.
func emptySet(values []string) []string {
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}
