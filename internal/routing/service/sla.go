package service

import (
	"context"

	agentsrepo "crm_backend/internal/agents/repository"
	"crm_backend/internal/events"
	"crm_backend/platform/apperr"

	"github.com/google/uuid"
)

// SLASweep escalates every claimed lead whose first-action SLA has lapsed:
// the breach is flagged and the lead reassigned to the escalation agent.
// The escalate transition is conditional on sla_breached being false, so
// overlapping sweeps escalate each lead at most once.
func (e *Engine) SLASweep(ctx context.Context) (examined, acted int, err error) {
	cutoff := e.now().Add(-e.cfg.GetFirstActionSLA())
	candidates, err := e.leads.SelectSLACandidates(ctx, cutoff, 100)
	if err != nil {
		e.log.SweepResult("sla_breach", 0, 0, err)
		return 0, 0, err
	}
	if len(candidates) == 0 {
		e.log.SweepResult("sla_breach", 0, 0, nil)
		return 0, 0, nil
	}

	escalation, err := e.resolveEscalationAgent(ctx)
	if err != nil {
		e.log.SweepResult("sla_breach", len(candidates), 0, err)
		return len(candidates), 0, err
	}

	for _, c := range candidates {
		if c.AgentID == escalation.ID {
			// The escalation agent's own breaches have nowhere to go.
			continue
		}
		escalated, err := e.leads.EscalateSLA(ctx, c.Lead.ID, c.AgentID, escalation.ID)
		if err != nil {
			e.log.Error("escalate lead failed", "error", err, "lead_id", c.Lead.ID)
			continue
		}
		if !escalated {
			continue
		}
		acted++

		original, err := e.agents.GetByID(ctx, c.AgentID)
		if err != nil {
			original = agentsrepo.Agent{ID: c.AgentID}
		}
		e.publish(ctx, events.LeadSLABreached{
			BaseEvent:            events.NewBaseEvent(),
			LeadID:               c.Lead.ID,
			OriginalAgentID:      c.AgentID,
			OriginalAgentEmail:   original.Email,
			OriginalAgentName:    original.FullName,
			EscalationAgentID:    escalation.ID,
			EscalationAgentEmail: escalation.Email,
			EscalationAgentName:  escalation.FullName,
			LeadName:             c.Lead.FullName,
		})
		e.log.LeadEvent("sla_breached", c.Lead.ID.String(),
			"from_agent", c.AgentID.String(), "to_agent", escalation.ID.String())
	}

	e.log.SweepResult("sla_breach", len(candidates), acted, nil)
	return len(candidates), acted, nil
}

// resolveEscalationAgent prefers the configured escalation agent and falls
// back to the first active admin.
func (e *Engine) resolveEscalationAgent(ctx context.Context) (agentsrepo.Agent, error) {
	if raw := e.cfg.GetEscalationAgentID(); raw != "" {
		id, err := uuid.Parse(raw)
		if err == nil {
			agent, err := e.agents.GetByID(ctx, id)
			if err == nil && agent.IsActive {
				return agent, nil
			}
			if err != nil && apperr.GetKind(err) != apperr.KindNotFound {
				return agentsrepo.Agent{}, err
			}
		}
	}
	return e.agents.FirstActiveAdmin(ctx)
}
