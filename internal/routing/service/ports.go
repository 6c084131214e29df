// Package service implements the routing engine: rule evaluation, broadcast
// rounds, claim-window advancement, SLA escalation, and night-hold release.
package service

import (
	"context"
	"time"

	agentsrepo "crm_backend/internal/agents/repository"
	leaddomain "crm_backend/internal/leads/domain"
	leadsrepo "crm_backend/internal/leads/repository"
	"crm_backend/internal/routing/domain"

	"github.com/google/uuid"
)

// LeadStore is the lead persistence surface the engine drives. Every
// transition is conditional; a false return means another writer got there
// first and the engine moves on.
type LeadStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (leaddomain.Lead, error)
	AssignViaRule(ctx context.Context, leadID, agentID, ruleID uuid.UUID, ruleName string) (bool, error)
	AssignDirect(ctx context.Context, leadID, agentID uuid.UUID, activityType, detail string) (bool, error)
	MarkBroadcast(ctx context.Context, leadID uuid.UUID, round int, expiresAt time.Time) (bool, error)
	EscalateSLA(ctx context.Context, leadID, fromAgent, toAgent uuid.UUID) (bool, error)
	ReleaseNightHold(ctx context.Context, leadID uuid.UUID) (bool, error)
	SelectExpiredBroadcasts(ctx context.Context, now time.Time, limit int) ([]leaddomain.Lead, error)
	SelectSLACandidates(ctx context.Context, cutoff time.Time, limit int) ([]leadsrepo.SLACandidate, error)
	SelectDueNightHeld(ctx context.Context, now time.Time, limit int) ([]leaddomain.Lead, error)
	AppendActivity(ctx context.Context, p leadsrepo.ActivityParams) error
}

// AgentDirectory resolves agents and their current eligibility.
type AgentDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (agentsrepo.Agent, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]agentsrepo.Agent, error)
	ListEligible(ctx context.Context, language string) ([]agentsrepo.Agent, error)
	FirstActiveAdmin(ctx context.Context) (agentsrepo.Agent, error)
}

// RuleStore provides the active rule set and match bookkeeping.
type RuleStore interface {
	ListActiveRules(ctx context.Context) ([]domain.Rule, error)
	RecordMatch(ctx context.Context, id uuid.UUID) error
}

// ConfigStore resolves broadcast pools per (language, round) tier.
type ConfigStore interface {
	GetConfig(ctx context.Context, language string, round int) (domain.RoundRobinConfig, error)
}
