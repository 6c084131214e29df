package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm_backend/internal/leads/domain"
	"crm_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	opClaim        = "leads.repository.claim"
	opRuleAssign   = "leads.repository.rule_assign"
	opBroadcast    = "leads.repository.mark_broadcast"
	opEscalate     = "leads.repository.escalate_sla"
	opRelease      = "leads.repository.release_night_hold"
	opFirstAction  = "leads.repository.mark_first_action"
	opArchive      = "leads.repository.archive"
	opAssignDirect = "leads.repository.assign_direct"
	opReassign     = "leads.repository.reassign"
)

// Claim atomically hands the lead to the claiming agent. The compare-and-swap
// on claimed_by guarantees at most one winner per lead; everyone else gets
// an AlreadyClaimed conflict. A claim arriving after the window expired but
// before re-broadcast still succeeds.
func (r *Repository) Claim(ctx context.Context, leadID, agentID uuid.UUID) (domain.Lead, error) {
	if r == nil || r.pool == nil {
		return domain.Lead{}, apperr.Internal(errRepoNotConfigured).WithOp(opClaim)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Lead{}, apperr.Internal(fmt.Sprintf("begin claim tx: %v", err)).WithOp(opClaim)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		UPDATE crm_leads
		SET claimed_by = $2, status = 'claimed', assigned_at = now(),
			claim_window_expires_at = NULL, updated_at = now()
		WHERE id = $1 AND claimed_by IS NULL AND status IN ('new', 'broadcast')
		RETURNING `+leadColumns, leadID, agentID)

	lead, err := scanLead(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Lead{}, r.classifyClaimFailure(ctx, leadID)
		}
		return domain.Lead{}, apperr.Internal(fmt.Sprintf("claim lead failed: %v", err)).WithOp(opClaim)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE crm_agents
		SET current_lead_count = current_lead_count + 1, updated_at = now()
		WHERE id = $1`, agentID); err != nil {
		return domain.Lead{}, apperr.Internal(fmt.Sprintf("increment claim count failed: %v", err)).WithOp(opClaim)
	}

	if err := insertActivity(ctx, tx, ActivityParams{
		LeadID:  leadID,
		AgentID: &agentID,
		Type:    domain.ActivityClaimed,
		Detail:  fmt.Sprintf("lead claimed in round %d", lead.CurrentRound),
	}); err != nil {
		return domain.Lead{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Lead{}, apperr.Internal(fmt.Sprintf("commit claim failed: %v", err)).WithOp(opClaim)
	}
	return lead, nil
}

// classifyClaimFailure distinguishes "someone else won" from "no such lead"
// for callers, without mutating anything.
func (r *Repository) classifyClaimFailure(ctx context.Context, leadID uuid.UUID) error {
	var status string
	var claimedBy *uuid.UUID
	err := r.pool.QueryRow(ctx,
		`SELECT status, claimed_by FROM crm_leads WHERE id = $1`, leadID).Scan(&status, &claimedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("lead not found").WithOp(opClaim)
		}
		return apperr.Internal(fmt.Sprintf("inspect lead failed: %v", err)).WithOp(opClaim)
	}
	return apperr.Conflict("lead already claimed or not claimable").
		WithOp(opClaim).
		WithDetails(map[string]any{"status": status, "claimed": claimedBy != nil})
}

// AssignViaRule performs a rule-based direct assignment. Capacity was checked
// by the caller; the conditional transition still refuses if another writer
// got there first.
func (r *Repository) AssignViaRule(ctx context.Context, leadID, agentID, ruleID uuid.UUID, ruleName string) (bool, error) {
	if r == nil || r.pool == nil {
		return false, apperr.Internal(errRepoNotConfigured).WithOp(opRuleAssign)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, apperr.Internal(fmt.Sprintf("begin assign tx: %v", err)).WithOp(opRuleAssign)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE crm_leads
		SET claimed_by = $2, status = 'claimed', assigned_at = now(), routing_rule_id = $3,
			claim_window_expires_at = NULL, updated_at = now()
		WHERE id = $1 AND claimed_by IS NULL AND status = 'new'`,
		leadID, agentID, ruleID)
	if err != nil {
		return false, apperr.Internal(fmt.Sprintf("rule assign failed: %v", err)).WithOp(opRuleAssign)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE crm_agents
		SET current_lead_count = current_lead_count + 1, updated_at = now()
		WHERE id = $1`, agentID); err != nil {
		return false, apperr.Internal(fmt.Sprintf("increment assign count failed: %v", err)).WithOp(opRuleAssign)
	}

	if err := insertActivity(ctx, tx, ActivityParams{
		LeadID:  leadID,
		AgentID: &agentID,
		Type:    domain.ActivityRuleAssigned,
		Detail:  fmt.Sprintf("assigned via routing rule %q", ruleName),
	}); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, apperr.Internal(fmt.Sprintf("commit rule assign failed: %v", err)).WithOp(opRuleAssign)
	}
	return true, nil
}

// AssignDirect hands an unclaimed lead to a specific agent outside the rule
// path (admin fallback when no further broadcast round exists).
func (r *Repository) AssignDirect(ctx context.Context, leadID, agentID uuid.UUID, activityType, detail string) (bool, error) {
	if r == nil || r.pool == nil {
		return false, apperr.Internal(errRepoNotConfigured).WithOp(opAssignDirect)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, apperr.Internal(fmt.Sprintf("begin direct assign tx: %v", err)).WithOp(opAssignDirect)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE crm_leads
		SET claimed_by = $2, status = 'claimed', assigned_at = now(),
			claim_window_expires_at = NULL, updated_at = now()
		WHERE id = $1 AND claimed_by IS NULL AND status IN ('new', 'broadcast')`,
		leadID, agentID)
	if err != nil {
		return false, apperr.Internal(fmt.Sprintf("direct assign failed: %v", err)).WithOp(opAssignDirect)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE crm_agents
		SET current_lead_count = current_lead_count + 1, updated_at = now()
		WHERE id = $1`, agentID); err != nil {
		return false, apperr.Internal(fmt.Sprintf("increment direct assign count failed: %v", err)).WithOp(opAssignDirect)
	}

	if err := insertActivity(ctx, tx, ActivityParams{
		LeadID:  leadID,
		AgentID: &agentID,
		Type:    activityType,
		Detail:  detail,
	}); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, apperr.Internal(fmt.Sprintf("commit direct assign failed: %v", err)).WithOp(opAssignDirect)
	}
	return true, nil
}

// MarkBroadcast opens (or advances) a claim window. The transition only
// fires from status=new, or from an unclaimed broadcast at a strictly lower
// round, so a late claim or a concurrent sweep can never rewind a lead and
// two overlapping sweeps advance it at most once.
func (r *Repository) MarkBroadcast(ctx context.Context, leadID uuid.UUID, round int, expiresAt time.Time) (bool, error) {
	if r == nil || r.pool == nil {
		return false, apperr.Internal(errRepoNotConfigured).WithOp(opBroadcast)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE crm_leads
		SET status = 'broadcast', current_round = $2, claim_window_expires_at = $3, updated_at = now()
		WHERE id = $1 AND claimed_by IS NULL
		  AND (status = 'new' OR (status = 'broadcast' AND current_round < $2))`,
		leadID, round, expiresAt)
	if err != nil {
		return false, apperr.Internal(fmt.Sprintf("mark broadcast failed: %v", err)).WithOp(opBroadcast)
	}
	return tag.RowsAffected() > 0, nil
}

// EscalateSLA flags the breach and hands the lead to the escalation agent in
// one transaction. The sla_breached precondition makes repeated sweeps
// no-ops: once flagged, a row can never be escalated again.
func (r *Repository) EscalateSLA(ctx context.Context, leadID, fromAgent, toAgent uuid.UUID) (bool, error) {
	if r == nil || r.pool == nil {
		return false, apperr.Internal(errRepoNotConfigured).WithOp(opEscalate)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, apperr.Internal(fmt.Sprintf("begin escalate tx: %v", err)).WithOp(opEscalate)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE crm_leads
		SET sla_breached = TRUE, breach_timestamp = now(),
			claimed_by = $3, assigned_at = now(), updated_at = now()
		WHERE id = $1 AND claimed_by = $2 AND status = 'claimed' AND sla_breached = FALSE`,
		leadID, fromAgent, toAgent)
	if err != nil {
		return false, apperr.Internal(fmt.Sprintf("escalate lead failed: %v", err)).WithOp(opEscalate)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE crm_agents
		SET current_lead_count = GREATEST(current_lead_count - 1, 0), updated_at = now()
		WHERE id = $1`, fromAgent); err != nil {
		return false, apperr.Internal(fmt.Sprintf("decrement breached agent failed: %v", err)).WithOp(opEscalate)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE crm_agents
		SET current_lead_count = current_lead_count + 1, updated_at = now()
		WHERE id = $1`, toAgent); err != nil {
		return false, apperr.Internal(fmt.Sprintf("increment escalation agent failed: %v", err)).WithOp(opEscalate)
	}

	if err := insertActivity(ctx, tx, ActivityParams{
		LeadID:  leadID,
		AgentID: &toAgent,
		Type:    domain.ActivitySLABreach,
		Detail:  fmt.Sprintf("first-action SLA breached; reassigned from %s", fromAgent),
	}); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, apperr.Internal(fmt.Sprintf("commit escalate failed: %v", err)).WithOp(opEscalate)
	}
	return true, nil
}

// ReassignResult carries the updated lead plus the receiving agent's
// identity for notification fan-out.
type ReassignResult struct {
	Lead        domain.Lead
	FromAgentID *uuid.UUID
	AgentName   string
	AgentEmail  string
}

// Reassign is the admin override: it hands any non-archived lead to a chosen
// agent, claimed or not. Reasons other than a plain manual move restart the
// first-action clock by clearing the breach flag alongside the fresh
// assigned_at.
func (r *Repository) Reassign(ctx context.Context, leadID, toAgent uuid.UUID, actorID *uuid.UUID, reason string) (ReassignResult, error) {
	if r == nil || r.pool == nil {
		return ReassignResult{}, apperr.Internal(errRepoNotConfigured).WithOp(opReassign)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return ReassignResult{}, apperr.Internal(fmt.Sprintf("begin reassign tx: %v", err)).WithOp(opReassign)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var agentName, agentEmail string
	err = tx.QueryRow(ctx, `
		SELECT full_name, email FROM crm_agents
		WHERE id = $1 AND is_active`, toAgent).Scan(&agentName, &agentEmail)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ReassignResult{}, apperr.NotFound("target agent not found or inactive").WithOp(opReassign)
		}
		return ReassignResult{}, apperr.Internal(fmt.Sprintf("resolve target agent failed: %v", err)).WithOp(opReassign)
	}

	var fromAgent *uuid.UUID
	var status string
	err = tx.QueryRow(ctx, `
		SELECT claimed_by, status FROM crm_leads WHERE id = $1 FOR UPDATE`, leadID).
		Scan(&fromAgent, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ReassignResult{}, apperr.NotFound("lead not found").WithOp(opReassign)
		}
		return ReassignResult{}, apperr.Internal(fmt.Sprintf("inspect lead failed: %v", err)).WithOp(opReassign)
	}
	if status == string(domain.StatusArchived) {
		return ReassignResult{}, apperr.Conflict("archived leads cannot be reassigned").WithOp(opReassign)
	}
	if fromAgent != nil && *fromAgent == toAgent {
		return ReassignResult{}, apperr.Conflict("lead is already assigned to this agent").WithOp(opReassign)
	}

	resetSLA := reason != domain.ReassignReasonManual
	row := tx.QueryRow(ctx, `
		UPDATE crm_leads
		SET claimed_by = $2, status = 'claimed', assigned_at = now(),
			claim_window_expires_at = NULL,
			is_night_held = FALSE, scheduled_release_at = NULL,
			sla_breached = CASE WHEN $3 THEN FALSE ELSE sla_breached END,
			breach_timestamp = CASE WHEN $3 THEN NULL ELSE breach_timestamp END,
			updated_at = now()
		WHERE id = $1
		RETURNING `+leadColumns, leadID, toAgent, resetSLA)

	lead, err := scanLead(row)
	if err != nil {
		return ReassignResult{}, apperr.Internal(fmt.Sprintf("reassign lead failed: %v", err)).WithOp(opReassign)
	}

	if fromAgent != nil {
		if _, err := tx.Exec(ctx, `
			UPDATE crm_agents
			SET current_lead_count = GREATEST(current_lead_count - 1, 0), updated_at = now()
			WHERE id = $1`, *fromAgent); err != nil {
			return ReassignResult{}, apperr.Internal(fmt.Sprintf("decrement previous agent failed: %v", err)).WithOp(opReassign)
		}
	}
	if _, err := tx.Exec(ctx, `
		UPDATE crm_agents
		SET current_lead_count = current_lead_count + 1, updated_at = now()
		WHERE id = $1`, toAgent); err != nil {
		return ReassignResult{}, apperr.Internal(fmt.Sprintf("increment new agent failed: %v", err)).WithOp(opReassign)
	}

	detail := fmt.Sprintf("reassigned to %s (%s)", agentName, reason)
	if fromAgent != nil {
		detail = fmt.Sprintf("reassigned from %s to %s (%s)", *fromAgent, agentName, reason)
	}
	if err := insertActivity(ctx, tx, ActivityParams{
		LeadID:  leadID,
		AgentID: actorID,
		Type:    domain.ActivityReassigned,
		Detail:  detail,
	}); err != nil {
		return ReassignResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return ReassignResult{}, apperr.Internal(fmt.Sprintf("commit reassign failed: %v", err)).WithOp(opReassign)
	}
	return ReassignResult{Lead: lead, FromAgentID: fromAgent, AgentName: agentName, AgentEmail: agentEmail}, nil
}

// ReleaseNightHold clears the hold so the lead can be routed. The round
// resets to 1 so the released lead enters the ladder at its first tier.
// Leads claimed manually while held are excluded by the claimed_by condition.
func (r *Repository) ReleaseNightHold(ctx context.Context, leadID uuid.UUID) (bool, error) {
	if r == nil || r.pool == nil {
		return false, apperr.Internal(errRepoNotConfigured).WithOp(opRelease)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE crm_leads
		SET is_night_held = FALSE, scheduled_release_at = NULL,
			status = 'new', current_round = 1, updated_at = now()
		WHERE id = $1 AND is_night_held AND claimed_by IS NULL`,
		leadID)
	if err != nil {
		return false, apperr.Internal(fmt.Sprintf("release night hold failed: %v", err)).WithOp(opRelease)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkFirstAction records that the claiming agent logged their first action
// within the SLA.
func (r *Repository) MarkFirstAction(ctx context.Context, leadID, agentID uuid.UUID) (domain.Lead, error) {
	if r == nil || r.pool == nil {
		return domain.Lead{}, apperr.Internal(errRepoNotConfigured).WithOp(opFirstAction)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Lead{}, apperr.Internal(fmt.Sprintf("begin first action tx: %v", err)).WithOp(opFirstAction)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		UPDATE crm_leads
		SET status = 'first_action_completed', updated_at = now()
		WHERE id = $1 AND claimed_by = $2 AND status = 'claimed'
		RETURNING `+leadColumns, leadID, agentID)

	lead, err := scanLead(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Lead{}, apperr.Conflict("lead is not claimed by this agent").WithOp(opFirstAction)
		}
		return domain.Lead{}, apperr.Internal(fmt.Sprintf("mark first action failed: %v", err)).WithOp(opFirstAction)
	}

	if err := insertActivity(ctx, tx, ActivityParams{
		LeadID:  leadID,
		AgentID: &agentID,
		Type:    domain.ActivityFirstAction,
		Detail:  "first action logged",
	}); err != nil {
		return domain.Lead{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Lead{}, apperr.Internal(fmt.Sprintf("commit first action failed: %v", err)).WithOp(opFirstAction)
	}
	return lead, nil
}

// Archive closes out a lead. If it was still held by an agent, the agent's
// live count is released.
func (r *Repository) Archive(ctx context.Context, leadID uuid.UUID, actorID *uuid.UUID) (domain.Lead, error) {
	if r == nil || r.pool == nil {
		return domain.Lead{}, apperr.Internal(errRepoNotConfigured).WithOp(opArchive)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Lead{}, apperr.Internal(fmt.Sprintf("begin archive tx: %v", err)).WithOp(opArchive)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		UPDATE crm_leads
		SET status = 'archived', claim_window_expires_at = NULL, updated_at = now()
		WHERE id = $1 AND status != 'archived'
		RETURNING `+leadColumns, leadID)

	lead, err := scanLead(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Lead{}, apperr.NotFound("lead not found or already archived").WithOp(opArchive)
		}
		return domain.Lead{}, apperr.Internal(fmt.Sprintf("archive lead failed: %v", err)).WithOp(opArchive)
	}

	if lead.ClaimedBy != nil {
		if _, err := tx.Exec(ctx, `
			UPDATE crm_agents
			SET current_lead_count = GREATEST(current_lead_count - 1, 0), updated_at = now()
			WHERE id = $1`, *lead.ClaimedBy); err != nil {
			return domain.Lead{}, apperr.Internal(fmt.Sprintf("release archived agent count failed: %v", err)).WithOp(opArchive)
		}
	}

	if err := insertActivity(ctx, tx, ActivityParams{
		LeadID:  leadID,
		AgentID: actorID,
		Type:    domain.ActivityArchived,
		Detail:  "lead archived",
	}); err != nil {
		return domain.Lead{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Lead{}, apperr.Internal(fmt.Sprintf("commit archive failed: %v", err)).WithOp(opArchive)
	}
	return lead, nil
}
