package service

import (
	"context"
	"time"

	"crm_backend/internal/events"
	leaddomain "crm_backend/internal/leads/domain"
	leadsrepo "crm_backend/internal/leads/repository"
	"crm_backend/internal/routing/domain"
	"crm_backend/platform/apperr"
	"crm_backend/platform/config"
	"crm_backend/platform/logger"
)

// Engine decides where each lead goes: a matching rule's target agent, a
// round-robin broadcast pool, or the admin of last resort.
type Engine struct {
	leads   LeadStore
	agents  AgentDirectory
	rules   RuleStore
	configs ConfigStore
	bus     events.Bus
	cfg     config.RoutingConfig
	log     *logger.Logger
	now     func() time.Time
}

func NewEngine(leads LeadStore, agents AgentDirectory, rules RuleStore, configs ConfigStore,
	bus events.Bus, cfg config.RoutingConfig, log *logger.Logger) *Engine {
	return &Engine{
		leads:   leads,
		agents:  agents,
		rules:   rules,
		configs: configs,
		bus:     bus,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
}

// Route runs rule evaluation for a new lead. The highest-priority matching
// rule wins; if its target agent cannot take the lead the rule's fallback
// flag decides between broadcast and trying nothing further via that rule.
// Leads with no matching rule go straight to round-robin broadcast.
func (e *Engine) Route(ctx context.Context, lead leaddomain.Lead) error {
	rules, err := e.rules.ListActiveRules(ctx)
	if err != nil {
		return err
	}

	rule := domain.SelectRule(rules, lead.RoutingAttributes())
	if rule == nil {
		return e.Broadcast(ctx, lead, 1)
	}

	agent, err := e.agents.GetByID(ctx, rule.TargetAgentID)
	if err != nil && apperr.GetKind(err) != apperr.KindNotFound {
		return err
	}

	eligible := err == nil && agent.IsActive && agent.AcceptsNewLeads && agent.HasCapacity()
	if eligible {
		assigned, err := e.leads.AssignViaRule(ctx, lead.ID, agent.ID, rule.ID, rule.Name)
		if err != nil {
			return err
		}
		if assigned {
			if err := e.rules.RecordMatch(ctx, rule.ID); err != nil {
				e.log.Error("record rule match failed", "error", err, "rule_id", rule.ID)
			}
			e.publish(ctx, events.LeadAssigned{
				BaseEvent:  events.NewBaseEvent(),
				LeadID:     lead.ID,
				AgentID:    agent.ID,
				AgentEmail: agent.Email,
				AgentName:  agent.FullName,
				RuleID:     rule.ID,
				LeadName:   lead.FullName,
			})
			e.log.LeadEvent("rule_assigned", lead.ID.String(),
				"rule", rule.Name, "agent_id", agent.ID.String())
			return nil
		}
		// Lost the race to a concurrent writer; nothing left to do here.
		return nil
	}

	if !rule.FallbackToBroadcast {
		e.log.LeadEvent("rule_target_unavailable", lead.ID.String(), "rule", rule.Name)
		return e.leads.AppendActivity(ctx, leadsrepo.ActivityParams{
			LeadID: lead.ID,
			Type:   leaddomain.ActivityManualTriage,
			Detail: "rule " + rule.Name + " matched but target agent unavailable, fallback disabled",
		})
	}
	return e.Broadcast(ctx, lead, 1)
}

func (e *Engine) publish(ctx context.Context, evt events.Event) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(ctx, evt)
}
