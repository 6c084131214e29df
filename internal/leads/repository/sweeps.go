package repository

import (
	"context"
	"fmt"
	"time"

	"crm_backend/internal/leads/domain"
	"crm_backend/platform/apperr"

	"github.com/google/uuid"
)

const (
	opExpiredBroadcasts = "leads.repository.select_expired_broadcasts"
	opSLACandidates     = "leads.repository.select_sla_candidates"
	opDueNightHeld      = "leads.repository.select_due_night_held"
)

// SelectExpiredBroadcasts returns broadcast leads whose claim window has
// lapsed without a claim. The partial index on (status, claimed_by,
// claim_window_expires_at) keeps this cheap even on large tables.
func (r *Repository) SelectExpiredBroadcasts(ctx context.Context, now time.Time, limit int) ([]domain.Lead, error) {
	if r == nil || r.pool == nil {
		return nil, apperr.Internal(errRepoNotConfigured).WithOp(opExpiredBroadcasts)
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM crm_leads
		WHERE status = 'broadcast' AND claimed_by IS NULL
		  AND claim_window_expires_at IS NOT NULL AND claim_window_expires_at <= $1
		ORDER BY claim_window_expires_at ASC
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("select expired broadcasts failed: %v", err)).WithOp(opExpiredBroadcasts)
	}
	defer rows.Close()

	return collectLeads(rows, opExpiredBroadcasts)
}

// SLACandidate pairs a lead with the agent currently on the hook for it.
type SLACandidate struct {
	Lead    domain.Lead
	AgentID uuid.UUID
}

// SelectSLACandidates returns claimed, unbreached leads whose assignment is
// older than the cutoff. Escalation itself is a separate conditional
// transition, so reading the same row in overlapping sweeps is harmless.
func (r *Repository) SelectSLACandidates(ctx context.Context, cutoff time.Time, limit int) ([]SLACandidate, error) {
	if r == nil || r.pool == nil {
		return nil, apperr.Internal(errRepoNotConfigured).WithOp(opSLACandidates)
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM crm_leads
		WHERE status = 'claimed' AND sla_breached = FALSE
		  AND assigned_at IS NOT NULL AND assigned_at <= $1
		ORDER BY assigned_at ASC
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("select sla candidates failed: %v", err)).WithOp(opSLACandidates)
	}
	defer rows.Close()

	leads, err := collectLeads(rows, opSLACandidates)
	if err != nil {
		return nil, err
	}

	candidates := make([]SLACandidate, 0, len(leads))
	for _, l := range leads {
		if l.ClaimedBy == nil {
			continue
		}
		candidates = append(candidates, SLACandidate{Lead: l, AgentID: *l.ClaimedBy})
	}
	return candidates, nil
}

// SelectDueNightHeld returns night-held leads whose scheduled release time
// has arrived.
func (r *Repository) SelectDueNightHeld(ctx context.Context, now time.Time, limit int) ([]domain.Lead, error) {
	if r == nil || r.pool == nil {
		return nil, apperr.Internal(errRepoNotConfigured).WithOp(opDueNightHeld)
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM crm_leads
		WHERE is_night_held AND claimed_by IS NULL
		  AND scheduled_release_at IS NOT NULL AND scheduled_release_at <= $1
		ORDER BY scheduled_release_at ASC
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("select due night-held failed: %v", err)).WithOp(opDueNightHeld)
	}
	defer rows.Close()

	return collectLeads(rows, opDueNightHeld)
}
