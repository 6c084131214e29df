// Package repository persists leads and their audit trail. All lifecycle
// transitions are single conditional statements so that concurrent writers
// can never leave a row half-transitioned.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crm_backend/internal/leads/domain"
	"crm_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opCreate  = "leads.repository.create"
	opGetByID = "leads.repository.get_by_id"
	opList    = "leads.repository.list"

	errRepoNotConfigured = "leads repository not configured"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadColumns = `id, full_name, email, phone, message, language, source, page_type, page_slug,
	budget_range, timeframe, property_type, score, segment, status, routing_rule_id,
	claimed_by, assigned_at, current_round, claim_window_expires_at,
	sla_breached, breach_timestamp, is_night_held, scheduled_release_at, created_at, updated_at`

func scanLead(row pgx.Row) (domain.Lead, error) {
	var l domain.Lead
	err := row.Scan(
		&l.ID, &l.FullName, &l.Email, &l.Phone, &l.Message, &l.Language, &l.Source, &l.PageType,
		&l.PageSlug, &l.BudgetRange, &l.Timeframe, &l.PropertyType, &l.Score, &l.Segment,
		&l.Status, &l.RoutingRuleID, &l.ClaimedBy, &l.AssignedAt, &l.CurrentRound,
		&l.ClaimWindowExpiresAt, &l.SLABreached, &l.BreachTimestamp, &l.IsNightHeld,
		&l.ScheduledReleaseAt, &l.CreatedAt, &l.UpdatedAt,
	)
	return l, err
}

type CreateParams struct {
	FullName           string
	Email              string
	Phone              string
	Message            string
	Language           string
	Source             string
	PageType           string
	PageSlug           string
	BudgetRange        string
	Timeframe          string
	PropertyType       string
	Score              int
	Segment            domain.Segment
	IsNightHeld        bool
	ScheduledReleaseAt *time.Time
}

func (r *Repository) Create(ctx context.Context, p CreateParams) (domain.Lead, error) {
	if r == nil || r.pool == nil {
		return domain.Lead{}, apperr.Internal(errRepoNotConfigured).WithOp(opCreate)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO crm_leads (full_name, email, phone, message, language, source, page_type, page_slug,
			budget_range, timeframe, property_type, score, segment, is_night_held, scheduled_release_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING `+leadColumns,
		p.FullName, p.Email, p.Phone, p.Message, p.Language, p.Source, p.PageType, p.PageSlug,
		p.BudgetRange, p.Timeframe, p.PropertyType, p.Score, p.Segment, p.IsNightHeld, p.ScheduledReleaseAt,
	)
	l, err := scanLead(row)
	if err != nil {
		return domain.Lead{}, apperr.Internal(fmt.Sprintf("create lead failed: %v", err)).WithOp(opCreate)
	}
	return l, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	if r == nil || r.pool == nil {
		return domain.Lead{}, apperr.Internal(errRepoNotConfigured).WithOp(opGetByID)
	}

	l, err := scanLead(r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM crm_leads WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Lead{}, apperr.NotFound("lead not found").WithOp(opGetByID)
		}
		return domain.Lead{}, apperr.Internal(fmt.Sprintf("get lead failed: %v", err)).WithOp(opGetByID)
	}
	return l, nil
}

type ListFilter struct {
	Status    string
	ClaimedBy *uuid.UUID
	Segment   string
	Language  string
	Limit     int
	Offset    int
}

func (r *Repository) List(ctx context.Context, f ListFilter) ([]domain.Lead, int, error) {
	if r == nil || r.pool == nil {
		return nil, 0, apperr.Internal(errRepoNotConfigured).WithOp(opList)
	}

	where := make([]string, 0, 4)
	args := make([]any, 0, 6)
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.ClaimedBy != nil {
		add("claimed_by = $%d", *f.ClaimedBy)
	}
	if f.Segment != "" {
		add("segment = $%d", f.Segment)
	}
	if f.Language != "" {
		add("language = $%d", f.Language)
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM crm_leads`+clause, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Internal(fmt.Sprintf("count leads failed: %v", err)).WithOp(opList)
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit, f.Offset)
	query := fmt.Sprintf(`SELECT %s FROM crm_leads%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		leadColumns, clause, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, apperr.Internal(fmt.Sprintf("list leads failed: %v", err)).WithOp(opList)
	}
	defer rows.Close()

	leads, err := collectLeads(rows, opList)
	if err != nil {
		return nil, 0, err
	}
	return leads, total, nil
}

func collectLeads(rows pgx.Rows, op string) ([]domain.Lead, error) {
	leads := make([]domain.Lead, 0)
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan lead failed: %v", err)).WithOp(op)
		}
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(fmt.Sprintf("iterate leads failed: %v", err)).WithOp(op)
	}
	return leads, nil
}
