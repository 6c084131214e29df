package service

import (
	"context"
	"testing"
	"time"

	agentsrepo "crm_backend/internal/agents/repository"
	"crm_backend/internal/events"
	leaddomain "crm_backend/internal/leads/domain"
	"crm_backend/internal/routing/domain"
	"crm_backend/platform/logger"

	"github.com/google/uuid"
)

func newTestEngine(leads *fakeLeadStore, agents *fakeAgentDirectory,
	rules *fakeRuleStore, configs *fakeConfigStore, bus *fakeBus) *Engine {
	return NewEngine(leads, agents, rules, configs, bus,
		fakeRoutingConfig{
			claimWindow:    15 * time.Minute,
			firstActionSLA: 10 * time.Minute,
		}, logger.New("test"))
}

func newLead(language string) *leaddomain.Lead {
	return &leaddomain.Lead{
		ID:       uuid.New(),
		FullName: "Test Lead",
		Language: language,
		Segment:  leaddomain.SegmentWarm,
		Status:   leaddomain.StatusNew,
	}
}

func activeAgent(role string, capacity int) agentsrepo.Agent {
	return agentsrepo.Agent{
		ID:              uuid.New(),
		FullName:        "Agent",
		Email:           "agent@example.com",
		Role:            role,
		IsActive:        true,
		AcceptsNewLeads: true,
		MaxActiveLeads:  capacity,
		CreatedAt:       time.Now(),
	}
}

func TestRouteAssignsViaMatchingRule(t *testing.T) {
	agent := activeAgent(agentsrepo.RoleAgent, 10)
	lead := newLead("en")
	leads := newFakeLeadStore(lead)
	rules := &fakeRuleStore{rules: []domain.Rule{{
		ID:            uuid.New(),
		Name:          "english-hot",
		Priority:      10,
		IsActive:      true,
		Languages:     []string{"en"},
		TargetAgentID: agent.ID,
	}}}
	bus := &fakeBus{}

	engine := newTestEngine(leads, newFakeAgentDirectory(agent), rules, &fakeConfigStore{}, bus)
	if err := engine.Route(context.Background(), *lead); err != nil {
		t.Fatalf("Route: %v", err)
	}

	got, _ := leads.GetByID(context.Background(), lead.ID)
	if got.Status != leaddomain.StatusClaimed || got.ClaimedBy == nil || *got.ClaimedBy != agent.ID {
		t.Fatalf("lead not assigned to rule target: status=%s claimedBy=%v", got.Status, got.ClaimedBy)
	}
	if len(rules.matched) != 1 {
		t.Fatalf("expected 1 recorded match, got %d", len(rules.matched))
	}
	if names := bus.names(); len(names) != 1 || names[0] != "leads.lead.assigned" {
		t.Fatalf("unexpected events: %v", names)
	}
}

func TestRouteHighestPriorityRuleWins(t *testing.T) {
	low := activeAgent(agentsrepo.RoleAgent, 10)
	high := activeAgent(agentsrepo.RoleAgent, 10)
	lead := newLead("en")
	leads := newFakeLeadStore(lead)
	rules := &fakeRuleStore{rules: []domain.Rule{
		{ID: uuid.New(), Name: "low", Priority: 1, IsActive: true, TargetAgentID: low.ID},
		{ID: uuid.New(), Name: "high", Priority: 5, IsActive: true, TargetAgentID: high.ID},
	}}

	engine := newTestEngine(leads, newFakeAgentDirectory(low, high), rules, &fakeConfigStore{}, &fakeBus{})
	if err := engine.Route(context.Background(), *lead); err != nil {
		t.Fatalf("Route: %v", err)
	}

	got, _ := leads.GetByID(context.Background(), lead.ID)
	if got.ClaimedBy == nil || *got.ClaimedBy != high.ID {
		t.Fatalf("expected high-priority rule target, got %v", got.ClaimedBy)
	}
}

func TestRouteFallsBackToBroadcastWhenTargetAtCapacity(t *testing.T) {
	full := activeAgent(agentsrepo.RoleAgent, 5)
	full.CurrentLeadCount = 5
	pooled := activeAgent(agentsrepo.RoleAgent, 10)

	lead := newLead("en")
	leads := newFakeLeadStore(lead)
	rules := &fakeRuleStore{rules: []domain.Rule{{
		ID: uuid.New(), Name: "full-target", Priority: 1, IsActive: true,
		TargetAgentID: full.ID, FallbackToBroadcast: true,
	}}}
	configs := &fakeConfigStore{}
	configs.set(domain.RoundRobinConfig{
		Language: "en", RoundNumber: 1, AgentIDs: []uuid.UUID{pooled.ID},
		ClaimWindowMinutes: 15, IsActive: true,
	})
	bus := &fakeBus{}

	engine := newTestEngine(leads, newFakeAgentDirectory(full, pooled), rules, configs, bus)
	if err := engine.Route(context.Background(), *lead); err != nil {
		t.Fatalf("Route: %v", err)
	}

	got, _ := leads.GetByID(context.Background(), lead.ID)
	if got.Status != leaddomain.StatusBroadcast || got.CurrentRound != 1 {
		t.Fatalf("expected broadcast round 1, got status=%s round=%d", got.Status, got.CurrentRound)
	}
	if got.ClaimWindowExpiresAt == nil {
		t.Fatal("claim window not set")
	}
	if names := bus.names(); len(names) != 1 || names[0] != "leads.lead.broadcast" {
		t.Fatalf("unexpected events: %v", names)
	}
}

func TestRouteWithoutFallbackLeavesLeadForTriage(t *testing.T) {
	full := activeAgent(agentsrepo.RoleAgent, 1)
	full.CurrentLeadCount = 1

	lead := newLead("en")
	leads := newFakeLeadStore(lead)
	rules := &fakeRuleStore{rules: []domain.Rule{{
		ID: uuid.New(), Name: "strict", Priority: 1, IsActive: true,
		TargetAgentID: full.ID, FallbackToBroadcast: false,
	}}}

	engine := newTestEngine(leads, newFakeAgentDirectory(full), rules, &fakeConfigStore{}, &fakeBus{})
	if err := engine.Route(context.Background(), *lead); err != nil {
		t.Fatalf("Route: %v", err)
	}

	got, _ := leads.GetByID(context.Background(), lead.ID)
	if got.Status != leaddomain.StatusNew {
		t.Fatalf("expected lead to stay new, got %s", got.Status)
	}
	types := leads.activityTypes()
	if len(types) != 1 || types[0] != leaddomain.ActivityManualTriage {
		t.Fatalf("expected manual triage activity, got %v", types)
	}
}

func TestBroadcastExcludesIneligibleAgents(t *testing.T) {
	eligible := activeAgent(agentsrepo.RoleAgent, 10)
	inactive := activeAgent(agentsrepo.RoleAgent, 10)
	inactive.IsActive = false
	paused := activeAgent(agentsrepo.RoleAgent, 10)
	paused.AcceptsNewLeads = false
	full := activeAgent(agentsrepo.RoleAgent, 3)
	full.CurrentLeadCount = 3

	lead := newLead("en")
	leads := newFakeLeadStore(lead)
	configs := &fakeConfigStore{}
	configs.set(domain.RoundRobinConfig{
		Language: "en", RoundNumber: 1,
		AgentIDs:           []uuid.UUID{eligible.ID, inactive.ID, paused.ID, full.ID},
		ClaimWindowMinutes: 15, IsActive: true,
	})
	bus := &fakeBus{}

	engine := newTestEngine(leads, newFakeAgentDirectory(eligible, inactive, paused, full),
		&fakeRuleStore{}, configs, bus)
	if err := engine.Broadcast(context.Background(), *lead, 1); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()
	if len(bus.published) != 1 {
		t.Fatalf("expected 1 event, got %d", len(bus.published))
	}
	evt, ok := bus.published[0].(events.LeadBroadcast)
	if !ok {
		t.Fatalf("unexpected event %T", bus.published[0])
	}
	if len(evt.Candidates) != 1 || evt.Candidates[0].AgentID != eligible.ID {
		t.Fatalf("expected only the eligible agent as candidate, got %v", evt.Candidates)
	}
}

func TestBroadcastSkipsSaturatedTier(t *testing.T) {
	full := activeAgent(agentsrepo.RoleAgent, 2)
	full.CurrentLeadCount = 2
	fresh := activeAgent(agentsrepo.RoleAgent, 10)

	lead := newLead("en")
	leads := newFakeLeadStore(lead)
	configs := &fakeConfigStore{}
	configs.set(domain.RoundRobinConfig{
		Language: "en", RoundNumber: 1, AgentIDs: []uuid.UUID{full.ID},
		ClaimWindowMinutes: 15, IsActive: true,
	})
	configs.set(domain.RoundRobinConfig{
		Language: "en", RoundNumber: 2, AgentIDs: []uuid.UUID{fresh.ID},
		ClaimWindowMinutes: 30, IsActive: true,
	})

	engine := newTestEngine(leads, newFakeAgentDirectory(full, fresh), &fakeRuleStore{}, configs, &fakeBus{})
	if err := engine.Broadcast(context.Background(), *lead, 1); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	got, _ := leads.GetByID(context.Background(), lead.ID)
	if got.CurrentRound != 2 {
		t.Fatalf("expected saturated round 1 skipped, got round %d", got.CurrentRound)
	}
}

func TestBroadcastFallsBackToLanguagePoolWithoutConfig(t *testing.T) {
	first := activeAgent(agentsrepo.RoleAgent, 10)
	first.Languages = []string{"en", "de"}
	second := activeAgent(agentsrepo.RoleAgent, 10)
	second.Languages = []string{"de"}
	other := activeAgent(agentsrepo.RoleAgent, 10)
	other.Languages = []string{"nl"}
	admin := activeAgent(agentsrepo.RoleAdmin, 100)
	admin.Languages = []string{"de"}

	lead := newLead("de")
	leads := newFakeLeadStore(lead)
	bus := &fakeBus{}

	engine := newTestEngine(leads, newFakeAgentDirectory(first, second, other, admin),
		&fakeRuleStore{}, &fakeConfigStore{}, bus)
	if err := engine.Broadcast(context.Background(), *lead, 1); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	got, _ := leads.GetByID(context.Background(), lead.ID)
	if got.Status != leaddomain.StatusBroadcast || got.CurrentRound != 1 {
		t.Fatalf("expected fallback broadcast, got status=%s round=%d", got.Status, got.CurrentRound)
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()
	evt, ok := bus.published[0].(events.LeadBroadcast)
	if !ok {
		t.Fatalf("unexpected event %T", bus.published[0])
	}
	if len(evt.Candidates) != 2 {
		t.Fatalf("expected the two German-speaking agents, got %d candidates", len(evt.Candidates))
	}
	for _, c := range evt.Candidates {
		if c.AgentID == admin.ID {
			t.Fatal("admin should not join the pool while regular agents are available")
		}
		if c.AgentID == other.ID {
			t.Fatal("agent without the lead's language must be excluded")
		}
	}
}

func TestBroadcastFallbackUsesAdminsAsLastResort(t *testing.T) {
	admin := activeAgent(agentsrepo.RoleAdmin, 100)
	admin.Languages = []string{"de"}

	lead := newLead("de")
	leads := newFakeLeadStore(lead)
	bus := &fakeBus{}

	engine := newTestEngine(leads, newFakeAgentDirectory(admin), &fakeRuleStore{}, &fakeConfigStore{}, bus)
	if err := engine.Broadcast(context.Background(), *lead, 1); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	got, _ := leads.GetByID(context.Background(), lead.ID)
	if got.Status != leaddomain.StatusBroadcast {
		t.Fatalf("expected broadcast to the admin, got status=%s", got.Status)
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()
	evt, ok := bus.published[0].(events.LeadBroadcast)
	if !ok {
		t.Fatalf("unexpected event %T", bus.published[0])
	}
	if len(evt.Candidates) != 1 || evt.Candidates[0].AgentID != admin.ID {
		t.Fatalf("expected the admin as sole candidate, got %v", evt.Candidates)
	}
}

func TestBroadcastAdminFallbackWhenLadderExhausted(t *testing.T) {
	admin := activeAgent(agentsrepo.RoleAdmin, 100)
	lead := newLead("de")
	leads := newFakeLeadStore(lead)
	bus := &fakeBus{}

	engine := newTestEngine(leads, newFakeAgentDirectory(admin), &fakeRuleStore{}, &fakeConfigStore{}, bus)
	if err := engine.Broadcast(context.Background(), *lead, 1); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	got, _ := leads.GetByID(context.Background(), lead.ID)
	if got.Status != leaddomain.StatusClaimed || got.ClaimedBy == nil || *got.ClaimedBy != admin.ID {
		t.Fatalf("expected admin fallback assignment, got status=%s claimedBy=%v", got.Status, got.ClaimedBy)
	}
	if names := bus.names(); len(names) != 1 || names[0] != "leads.lead.assigned" {
		t.Fatalf("unexpected events: %v", names)
	}
}

func TestAdvanceExpiredWindowsMovesToNextRound(t *testing.T) {
	first := activeAgent(agentsrepo.RoleAgent, 10)
	second := activeAgent(agentsrepo.RoleAgent, 10)

	expired := time.Now().Add(-time.Minute)
	lead := newLead("en")
	lead.Status = leaddomain.StatusBroadcast
	lead.CurrentRound = 1
	lead.ClaimWindowExpiresAt = &expired

	leads := newFakeLeadStore(lead)
	configs := &fakeConfigStore{}
	configs.set(domain.RoundRobinConfig{
		Language: "en", RoundNumber: 2, AgentIDs: []uuid.UUID{first.ID, second.ID},
		ClaimWindowMinutes: 30, IsActive: true,
	})

	engine := newTestEngine(leads, newFakeAgentDirectory(first, second), &fakeRuleStore{}, configs, &fakeBus{})
	examined, acted, err := engine.AdvanceExpiredWindows(context.Background())
	if err != nil {
		t.Fatalf("AdvanceExpiredWindows: %v", err)
	}
	if examined != 1 || acted != 1 {
		t.Fatalf("examined=%d acted=%d, want 1/1", examined, acted)
	}

	got, _ := leads.GetByID(context.Background(), lead.ID)
	if got.CurrentRound != 2 {
		t.Fatalf("expected round 2, got %d", got.CurrentRound)
	}
	if got.ClaimWindowExpiresAt == nil || !got.ClaimWindowExpiresAt.After(time.Now()) {
		t.Fatal("new claim window not opened")
	}
}

func TestAdvanceExpiredWindowsLeavesLiveWindowsAlone(t *testing.T) {
	live := time.Now().Add(10 * time.Minute)
	lead := newLead("en")
	lead.Status = leaddomain.StatusBroadcast
	lead.CurrentRound = 1
	lead.ClaimWindowExpiresAt = &live

	leads := newFakeLeadStore(lead)
	engine := newTestEngine(leads, newFakeAgentDirectory(), &fakeRuleStore{}, &fakeConfigStore{}, &fakeBus{})

	examined, acted, err := engine.AdvanceExpiredWindows(context.Background())
	if err != nil {
		t.Fatalf("AdvanceExpiredWindows: %v", err)
	}
	if examined != 0 || acted != 0 {
		t.Fatalf("examined=%d acted=%d, want 0/0", examined, acted)
	}

	got, _ := leads.GetByID(context.Background(), lead.ID)
	if got.CurrentRound != 1 {
		t.Fatalf("round changed unexpectedly to %d", got.CurrentRound)
	}
}

func TestSLASweepEscalatesAndIsIdempotent(t *testing.T) {
	slacker := activeAgent(agentsrepo.RoleAgent, 10)
	admin := activeAgent(agentsrepo.RoleAdmin, 100)

	assigned := time.Now().Add(-time.Hour)
	lead := newLead("en")
	lead.Status = leaddomain.StatusClaimed
	lead.ClaimedBy = &slacker.ID
	lead.AssignedAt = &assigned

	leads := newFakeLeadStore(lead)
	bus := &fakeBus{}
	engine := newTestEngine(leads, newFakeAgentDirectory(slacker, admin), &fakeRuleStore{}, &fakeConfigStore{}, bus)

	_, acted, err := engine.SLASweep(context.Background())
	if err != nil {
		t.Fatalf("SLASweep: %v", err)
	}
	if acted != 1 {
		t.Fatalf("acted=%d, want 1", acted)
	}

	got, _ := leads.GetByID(context.Background(), lead.ID)
	if !got.SLABreached || got.ClaimedBy == nil || *got.ClaimedBy != admin.ID {
		t.Fatalf("expected breach + reassignment to admin, got breached=%v claimedBy=%v", got.SLABreached, got.ClaimedBy)
	}

	// Second sweep must be a no-op: the lead is already flagged.
	_, acted, err = engine.SLASweep(context.Background())
	if err != nil {
		t.Fatalf("second SLASweep: %v", err)
	}
	if acted != 0 {
		t.Fatalf("second sweep acted=%d, want 0", acted)
	}
	if names := bus.names(); len(names) != 1 || names[0] != "leads.lead.sla_breached" {
		t.Fatalf("unexpected events: %v", names)
	}
}

func TestSLASweepSkipsFreshClaims(t *testing.T) {
	agent := activeAgent(agentsrepo.RoleAgent, 10)
	admin := activeAgent(agentsrepo.RoleAdmin, 100)

	assigned := time.Now().Add(-time.Minute)
	lead := newLead("en")
	lead.Status = leaddomain.StatusClaimed
	lead.ClaimedBy = &agent.ID
	lead.AssignedAt = &assigned

	leads := newFakeLeadStore(lead)
	engine := newTestEngine(leads, newFakeAgentDirectory(agent, admin), &fakeRuleStore{}, &fakeConfigStore{}, &fakeBus{})

	_, acted, err := engine.SLASweep(context.Background())
	if err != nil {
		t.Fatalf("SLASweep: %v", err)
	}
	if acted != 0 {
		t.Fatalf("acted=%d, want 0", acted)
	}
}

func TestSLASweepSkipsEscalationAgentsOwnLeads(t *testing.T) {
	admin := activeAgent(agentsrepo.RoleAdmin, 100)

	assigned := time.Now().Add(-time.Hour)
	lead := newLead("en")
	lead.Status = leaddomain.StatusClaimed
	lead.ClaimedBy = &admin.ID
	lead.AssignedAt = &assigned

	leads := newFakeLeadStore(lead)
	engine := newTestEngine(leads, newFakeAgentDirectory(admin), &fakeRuleStore{}, &fakeConfigStore{}, &fakeBus{})

	_, acted, err := engine.SLASweep(context.Background())
	if err != nil {
		t.Fatalf("SLASweep: %v", err)
	}
	if acted != 0 {
		t.Fatalf("acted=%d, want 0", acted)
	}
	got, _ := leads.GetByID(context.Background(), lead.ID)
	if got.SLABreached {
		t.Fatal("escalation agent's own lead must not be escalated onto itself")
	}
}

func TestSLASweepPrefersConfiguredEscalationAgent(t *testing.T) {
	slacker := activeAgent(agentsrepo.RoleAgent, 10)
	escalation := activeAgent(agentsrepo.RoleAgent, 50)
	admin := activeAgent(agentsrepo.RoleAdmin, 100)

	assigned := time.Now().Add(-time.Hour)
	lead := newLead("en")
	lead.Status = leaddomain.StatusClaimed
	lead.ClaimedBy = &slacker.ID
	lead.AssignedAt = &assigned

	leads := newFakeLeadStore(lead)
	engine := NewEngine(leads, newFakeAgentDirectory(slacker, escalation, admin),
		&fakeRuleStore{}, &fakeConfigStore{}, &fakeBus{},
		fakeRoutingConfig{
			claimWindow:       15 * time.Minute,
			firstActionSLA:    10 * time.Minute,
			escalationAgentID: escalation.ID.String(),
		}, logger.New("test"))

	if _, _, err := engine.SLASweep(context.Background()); err != nil {
		t.Fatalf("SLASweep: %v", err)
	}

	got, _ := leads.GetByID(context.Background(), lead.ID)
	if got.ClaimedBy == nil || *got.ClaimedBy != escalation.ID {
		t.Fatalf("expected configured escalation agent, got %v", got.ClaimedBy)
	}
}

func TestReleaseDueLeadsRoutesReleasedLead(t *testing.T) {
	pooled := activeAgent(agentsrepo.RoleAgent, 10)

	due := time.Now().Add(-time.Minute)
	lead := newLead("en")
	lead.IsNightHeld = true
	lead.ScheduledReleaseAt = &due

	leads := newFakeLeadStore(lead)
	configs := &fakeConfigStore{}
	configs.set(domain.RoundRobinConfig{
		Language: "en", RoundNumber: 1, AgentIDs: []uuid.UUID{pooled.ID},
		ClaimWindowMinutes: 15, IsActive: true,
	})
	bus := &fakeBus{}

	engine := newTestEngine(leads, newFakeAgentDirectory(pooled), &fakeRuleStore{}, configs, bus)
	examined, acted, err := engine.ReleaseDueLeads(context.Background())
	if err != nil {
		t.Fatalf("ReleaseDueLeads: %v", err)
	}
	if examined != 1 || acted != 1 {
		t.Fatalf("examined=%d acted=%d, want 1/1", examined, acted)
	}

	got, _ := leads.GetByID(context.Background(), lead.ID)
	if got.IsNightHeld {
		t.Fatal("night hold not cleared")
	}
	if got.Status != leaddomain.StatusBroadcast || got.CurrentRound != 1 {
		t.Fatalf("released lead not routed: status=%s round=%d", got.Status, got.CurrentRound)
	}

	// A released lead starts the ladder over at its first tier.
	bus.mu.Lock()
	defer bus.mu.Unlock()
	for _, evt := range bus.published {
		if b, ok := evt.(events.LeadBroadcast); ok && b.Round != 1 {
			t.Fatalf("released lead re-entered ladder at round %d, want 1", b.Round)
		}
	}
}

func TestReleaseDueLeadsSkipsClaimedAndFutureLeads(t *testing.T) {
	agent := activeAgent(agentsrepo.RoleAgent, 10)

	due := time.Now().Add(-time.Minute)
	claimed := newLead("en")
	claimed.IsNightHeld = true
	claimed.ScheduledReleaseAt = &due
	claimed.ClaimedBy = &agent.ID
	claimed.Status = leaddomain.StatusClaimed

	future := time.Now().Add(time.Hour)
	held := newLead("en")
	held.IsNightHeld = true
	held.ScheduledReleaseAt = &future

	leads := newFakeLeadStore(claimed, held)
	engine := newTestEngine(leads, newFakeAgentDirectory(agent), &fakeRuleStore{}, &fakeConfigStore{}, &fakeBus{})

	examined, acted, err := engine.ReleaseDueLeads(context.Background())
	if err != nil {
		t.Fatalf("ReleaseDueLeads: %v", err)
	}
	if examined != 0 || acted != 0 {
		t.Fatalf("examined=%d acted=%d, want 0/0", examined, acted)
	}
}
