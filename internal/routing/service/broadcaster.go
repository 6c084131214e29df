package service

import (
	"context"
	"fmt"
	"time"

	agentsrepo "crm_backend/internal/agents/repository"
	"crm_backend/internal/events"
	leaddomain "crm_backend/internal/leads/domain"
	leadsrepo "crm_backend/internal/leads/repository"
	"crm_backend/platform/apperr"
)

// Broadcast opens a claim window for the given round. A first round without
// a configured pool falls back to every eligible agent for the lead's
// language; a deeper round without one escalates to an admin instead of
// re-broadcasting the same pool forever. A saturated tier recurses into the
// next round.
func (e *Engine) Broadcast(ctx context.Context, lead leaddomain.Lead, round int) error {
	cfg, err := e.configs.GetConfig(ctx, lead.Language, round)
	if err != nil {
		if apperr.GetKind(err) == apperr.KindNotFound {
			if round <= 1 {
				return e.fallbackBroadcast(ctx, lead, round)
			}
			return e.adminFallback(ctx, lead, fmt.Sprintf("no broadcast pool for language %q round %d", lead.Language, round))
		}
		return err
	}

	agents, err := e.agents.GetByIDs(ctx, cfg.AgentIDs)
	if err != nil {
		return err
	}

	candidates := make([]events.Candidate, 0, len(agents))
	for _, a := range agents {
		if !a.IsActive || !a.AcceptsNewLeads || !a.HasCapacity() {
			continue
		}
		candidates = append(candidates, events.Candidate{AgentID: a.ID, Email: a.Email, Name: a.FullName})
	}
	if len(candidates) == 0 {
		// Skip straight past a fully saturated tier.
		return e.Broadcast(ctx, lead, round+1)
	}

	return e.openWindow(ctx, lead, round, cfg.ClaimWindow(), candidates)
}

// fallbackBroadcast handles a first round with no configured pool: every
// active, accepting agent speaking the lead's language becomes a candidate.
// Admins join only when nobody else can take the lead.
func (e *Engine) fallbackBroadcast(ctx context.Context, lead leaddomain.Lead, round int) error {
	e.log.Warn("no broadcast pool configured, using language fallback",
		"language", lead.Language, "lead_id", lead.ID)

	agents, err := e.agents.ListEligible(ctx, lead.Language)
	if err != nil {
		return err
	}

	var regular, admins []events.Candidate
	for _, a := range agents {
		c := events.Candidate{AgentID: a.ID, Email: a.Email, Name: a.FullName}
		if a.Role == agentsrepo.RoleAdmin {
			admins = append(admins, c)
			continue
		}
		regular = append(regular, c)
	}

	candidates := regular
	if len(candidates) == 0 {
		candidates = admins
	}
	if len(candidates) == 0 {
		return e.adminFallback(ctx, lead, fmt.Sprintf("no eligible agents for language %q", lead.Language))
	}

	return e.openWindow(ctx, lead, round, e.cfg.GetDefaultClaimWindow(), candidates)
}

// openWindow stamps the broadcast transition and notifies the candidates.
func (e *Engine) openWindow(ctx context.Context, lead leaddomain.Lead, round int,
	window time.Duration, candidates []events.Candidate) error {
	expiresAt := e.now().Add(window)
	marked, err := e.leads.MarkBroadcast(ctx, lead.ID, round, expiresAt)
	if err != nil {
		return err
	}
	if !marked {
		// Claimed or advanced concurrently; this round no longer applies.
		return nil
	}

	activityType := leaddomain.ActivityBroadcast
	if round > 1 {
		activityType = leaddomain.ActivityRoundAdvanced
	}
	if err := e.leads.AppendActivity(ctx, leadsrepo.ActivityParams{
		LeadID: lead.ID,
		Type:   activityType,
		Detail: fmt.Sprintf("broadcast round %d to %d agents, window %s", round, len(candidates), window),
	}); err != nil {
		e.log.Error("record broadcast activity failed", "error", err, "lead_id", lead.ID)
	}

	e.publish(ctx, events.LeadBroadcast{
		BaseEvent:  events.NewBaseEvent(),
		LeadID:     lead.ID,
		Language:   lead.Language,
		Round:      round,
		Candidates: candidates,
		LeadName:   lead.FullName,
		Segment:    string(lead.Segment),
	})
	e.log.LeadEvent("broadcast", lead.ID.String(), "round", round, "candidates", len(candidates))
	return nil
}

// AdvanceExpiredWindows moves every lapsed broadcast lead into the next
// round. Safe to run concurrently: the round-advance transition is a
// compare-and-swap on (status, round), so overlapping sweeps advance each
// lead at most once.
func (e *Engine) AdvanceExpiredWindows(ctx context.Context) (examined, acted int, err error) {
	expired, err := e.leads.SelectExpiredBroadcasts(ctx, e.now(), 100)
	if err != nil {
		e.log.SweepResult("claim_window_expiry", 0, 0, err)
		return 0, 0, err
	}

	for _, lead := range expired {
		if err := e.Broadcast(ctx, lead, lead.CurrentRound+1); err != nil {
			e.log.Error("advance broadcast round failed", "error", err, "lead_id", lead.ID)
			continue
		}
		acted++
	}
	e.log.SweepResult("claim_window_expiry", len(expired), acted, nil)
	return len(expired), acted, nil
}

// adminFallback hands an unroutable lead to the escalation agent or, absent
// one, the first active admin, so no lead is ever stranded.
func (e *Engine) adminFallback(ctx context.Context, lead leaddomain.Lead, reason string) error {
	admin, err := e.resolveEscalationAgent(ctx)
	if err != nil {
		e.log.Error("no admin available for fallback assignment", "error", err, "lead_id", lead.ID)
		return e.leads.AppendActivity(ctx, leadsrepo.ActivityParams{
			LeadID: lead.ID,
			Type:   leaddomain.ActivityManualTriage,
			Detail: reason + "; no admin available",
		})
	}

	assigned, err := e.leads.AssignDirect(ctx, lead.ID, admin.ID,
		leaddomain.ActivityAdminFallback, reason)
	if err != nil {
		return err
	}
	if !assigned {
		return nil
	}

	e.publish(ctx, events.LeadAssigned{
		BaseEvent:  events.NewBaseEvent(),
		LeadID:     lead.ID,
		AgentID:    admin.ID,
		AgentEmail: admin.Email,
		AgentName:  admin.FullName,
		LeadName:   lead.FullName,
	})
	e.log.LeadEvent("admin_fallback", lead.ID.String(), "agent_id", admin.ID.String(), "reason", reason)
	return nil
}
