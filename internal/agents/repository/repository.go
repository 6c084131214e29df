// Package repository persists CRM agents: the humans leads are routed to,
// with their language coverage, capacity, and live lead counts.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crm_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opCreate        = "agents.repository.create"
	opUpdate        = "agents.repository.update"
	opGetByID       = "agents.repository.get_by_id"
	opList          = "agents.repository.list"
	opListEligible  = "agents.repository.list_eligible"
	opAdjustCount   = "agents.repository.adjust_lead_count"
	opReconcile     = "agents.repository.reconcile_lead_counts"
	opFirstAdmin    = "agents.repository.first_active_admin"

	errRepoNotConfigured = "agents repository not configured"
)

const (
	RoleAgent = "agent"
	RoleAdmin = "admin"
)

// Agent is a CRM agent eligible to receive and claim leads.
type Agent struct {
	ID               uuid.UUID `json:"id"`
	FullName         string    `json:"fullName"`
	Email            string    `json:"email"`
	Phone            string    `json:"phone"`
	Role             string    `json:"role"`
	Languages        []string  `json:"languages"`
	IsActive         bool      `json:"isActive"`
	AcceptsNewLeads  bool      `json:"acceptsNewLeads"`
	MaxActiveLeads   int       `json:"maxActiveLeads"`
	CurrentLeadCount int       `json:"currentLeadCount"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// HasCapacity reports whether the agent can take another lead.
func (a Agent) HasCapacity() bool {
	return a.CurrentLeadCount < a.MaxActiveLeads
}

type CreateParams struct {
	FullName        string
	Email           string
	Phone           string
	Role            string
	Languages       []string
	AcceptsNewLeads bool
	MaxActiveLeads  int
}

type UpdateParams struct {
	FullName        *string
	Phone           *string
	Role            *string
	Languages       []string
	IsActive        *bool
	AcceptsNewLeads *bool
	MaxActiveLeads  *int
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const agentColumns = `id, full_name, email, phone, role, languages, is_active, accepts_new_leads,
	max_active_leads, current_lead_count, created_at, updated_at`

func scanAgent(row pgx.Row) (Agent, error) {
	var a Agent
	err := row.Scan(
		&a.ID, &a.FullName, &a.Email, &a.Phone, &a.Role, &a.Languages, &a.IsActive,
		&a.AcceptsNewLeads, &a.MaxActiveLeads, &a.CurrentLeadCount, &a.CreatedAt, &a.UpdatedAt,
	)
	return a, err
}

func (r *Repository) Create(ctx context.Context, p CreateParams) (Agent, error) {
	if r == nil || r.pool == nil {
		return Agent{}, apperr.Internal(errRepoNotConfigured).WithOp(opCreate)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO crm_agents (full_name, email, phone, role, languages, accepts_new_leads, max_active_leads)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+agentColumns,
		p.FullName, p.Email, p.Phone, p.Role, p.Languages, p.AcceptsNewLeads, p.MaxActiveLeads,
	)
	a, err := scanAgent(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Agent{}, apperr.Conflict("an agent with this email already exists").WithOp(opCreate)
		}
		return Agent{}, apperr.Internal(fmt.Sprintf("create agent failed: %v", err)).WithOp(opCreate)
	}
	return a, nil
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, p UpdateParams) (Agent, error) {
	if r == nil || r.pool == nil {
		return Agent{}, apperr.Internal(errRepoNotConfigured).WithOp(opUpdate)
	}

	set := make([]string, 0, 8)
	args := make([]any, 0, 9)
	add := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if p.FullName != nil {
		add("full_name", *p.FullName)
	}
	if p.Phone != nil {
		add("phone", *p.Phone)
	}
	if p.Role != nil {
		add("role", *p.Role)
	}
	if p.Languages != nil {
		add("languages", p.Languages)
	}
	if p.IsActive != nil {
		add("is_active", *p.IsActive)
	}
	if p.AcceptsNewLeads != nil {
		add("accepts_new_leads", *p.AcceptsNewLeads)
	}
	if p.MaxActiveLeads != nil {
		add("max_active_leads", *p.MaxActiveLeads)
	}

	if len(set) == 0 {
		return r.GetByID(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE crm_agents SET %s, updated_at = now() WHERE id = $%d RETURNING %s`,
		strings.Join(set, ", "), len(args), agentColumns)

	a, err := scanAgent(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Agent{}, apperr.NotFound("agent not found").WithOp(opUpdate)
		}
		return Agent{}, apperr.Internal(fmt.Sprintf("update agent failed: %v", err)).WithOp(opUpdate)
	}
	return a, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Agent, error) {
	if r == nil || r.pool == nil {
		return Agent{}, apperr.Internal(errRepoNotConfigured).WithOp(opGetByID)
	}

	a, err := scanAgent(r.pool.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM crm_agents WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Agent{}, apperr.NotFound("agent not found").WithOp(opGetByID)
		}
		return Agent{}, apperr.Internal(fmt.Sprintf("get agent failed: %v", err)).WithOp(opGetByID)
	}
	return a, nil
}

func (r *Repository) List(ctx context.Context, includeInactive bool) ([]Agent, error) {
	if r == nil || r.pool == nil {
		return nil, apperr.Internal(errRepoNotConfigured).WithOp(opList)
	}

	query := `SELECT ` + agentColumns + ` FROM crm_agents`
	if !includeInactive {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY full_name ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("list agents failed: %v", err)).WithOp(opList)
	}
	defer rows.Close()

	return collectAgents(rows, opList)
}

// ListEligible returns active, accepting agents with spare capacity whose
// languages include the given language. Admins are included; callers treat
// them as last resort.
func (r *Repository) ListEligible(ctx context.Context, language string) ([]Agent, error) {
	if r == nil || r.pool == nil {
		return nil, apperr.Internal(errRepoNotConfigured).WithOp(opListEligible)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+agentColumns+`
		FROM crm_agents
		WHERE is_active
		  AND accepts_new_leads
		  AND current_lead_count < max_active_leads
		  AND $1 = ANY(languages)
		ORDER BY role ASC, current_lead_count ASC, created_at ASC`, language)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("list eligible agents failed: %v", err)).WithOp(opListEligible)
	}
	defer rows.Close()

	return collectAgents(rows, opListEligible)
}

// GetByIDs loads agents preserving eligibility filters for broadcast pools.
func (r *Repository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]Agent, error) {
	if r == nil || r.pool == nil {
		return nil, apperr.Internal(errRepoNotConfigured).WithOp(opListEligible)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+agentColumns+` FROM crm_agents WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("get agents by ids failed: %v", err)).WithOp(opListEligible)
	}
	defer rows.Close()

	return collectAgents(rows, opListEligible)
}

// IncrementLeadCount bumps the agent's live lead count after a successful
// claim or escalation handover.
func (r *Repository) IncrementLeadCount(ctx context.Context, id uuid.UUID) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opAdjustCount)
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE crm_agents
		SET current_lead_count = current_lead_count + 1, updated_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("increment lead count failed: %v", err)).WithOp(opAdjustCount)
	}
	return nil
}

// DecrementLeadCount lowers the count, clamping at zero.
func (r *Repository) DecrementLeadCount(ctx context.Context, id uuid.UUID) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opAdjustCount)
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE crm_agents
		SET current_lead_count = GREATEST(current_lead_count - 1, 0), updated_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("decrement lead count failed: %v", err)).WithOp(opAdjustCount)
	}
	return nil
}

// ReconcileLeadCounts recomputes every agent's current_lead_count from the
// leads table. Counter drift accumulates when a process dies between the
// lead transition and the counter update; a nightly run corrects it.
func (r *Repository) ReconcileLeadCounts(ctx context.Context) (int64, error) {
	if r == nil || r.pool == nil {
		return 0, apperr.Internal(errRepoNotConfigured).WithOp(opReconcile)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE crm_agents a
		SET current_lead_count = sub.cnt, updated_at = now()
		FROM (
			SELECT b.id, COALESCE(live.cnt, 0) AS cnt
			FROM crm_agents b
			LEFT JOIN (
				SELECT claimed_by, COUNT(*) AS cnt
				FROM crm_leads
				WHERE claimed_by IS NOT NULL AND status IN ('claimed', 'first_action_completed')
				GROUP BY claimed_by
			) live ON live.claimed_by = b.id
		) sub
		WHERE a.id = sub.id AND a.current_lead_count IS DISTINCT FROM sub.cnt`)
	if err != nil {
		return 0, apperr.Internal(fmt.Sprintf("reconcile lead counts failed: %v", err)).WithOp(opReconcile)
	}
	return tag.RowsAffected(), nil
}

// FirstActiveAdmin returns the longest-standing active admin, used as the
// escalation target when none is configured.
func (r *Repository) FirstActiveAdmin(ctx context.Context) (Agent, error) {
	if r == nil || r.pool == nil {
		return Agent{}, apperr.Internal(errRepoNotConfigured).WithOp(opFirstAdmin)
	}

	a, err := scanAgent(r.pool.QueryRow(ctx, `
		SELECT `+agentColumns+`
		FROM crm_agents
		WHERE role = 'admin' AND is_active
		ORDER BY created_at ASC
		LIMIT 1`))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Agent{}, apperr.NotFound("no active admin agent").WithOp(opFirstAdmin)
		}
		return Agent{}, apperr.Internal(fmt.Sprintf("get escalation admin failed: %v", err)).WithOp(opFirstAdmin)
	}
	return a, nil
}

func collectAgents(rows pgx.Rows, op string) ([]Agent, error) {
	agents := make([]Agent, 0)
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan agent failed: %v", err)).WithOp(op)
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(fmt.Sprintf("iterate agents failed: %v", err)).WithOp(op)
	}
	return agents, nil
}
