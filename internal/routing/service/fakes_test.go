package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	agentsrepo "crm_backend/internal/agents/repository"
	"crm_backend/internal/events"
	leaddomain "crm_backend/internal/leads/domain"
	leadsrepo "crm_backend/internal/leads/repository"
	"crm_backend/internal/routing/domain"
	"crm_backend/platform/apperr"

	"github.com/google/uuid"
)

// fakeLeadStore mirrors the repository's conditional-transition semantics
// in memory so engine behavior under concurrency can be exercised directly.
type fakeLeadStore struct {
	mu         sync.Mutex
	leads      map[uuid.UUID]*leaddomain.Lead
	activities []leadsrepo.ActivityParams
}

func newFakeLeadStore(leads ...*leaddomain.Lead) *fakeLeadStore {
	s := &fakeLeadStore{leads: make(map[uuid.UUID]*leaddomain.Lead)}
	for _, l := range leads {
		s.leads[l.ID] = l
	}
	return s
}

func (s *fakeLeadStore) GetByID(_ context.Context, id uuid.UUID) (leaddomain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return leaddomain.Lead{}, apperr.NotFound("lead not found")
	}
	return *l, nil
}

func (s *fakeLeadStore) AssignViaRule(_ context.Context, leadID, agentID, ruleID uuid.UUID, _ string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[leadID]
	if !ok || l.ClaimedBy != nil || l.Status != leaddomain.StatusNew {
		return false, nil
	}
	now := time.Now()
	l.ClaimedBy = &agentID
	l.RoutingRuleID = &ruleID
	l.Status = leaddomain.StatusClaimed
	l.AssignedAt = &now
	return true, nil
}

func (s *fakeLeadStore) AssignDirect(_ context.Context, leadID, agentID uuid.UUID, activityType, detail string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[leadID]
	if !ok || !l.Claimable() {
		return false, nil
	}
	now := time.Now()
	l.ClaimedBy = &agentID
	l.Status = leaddomain.StatusClaimed
	l.AssignedAt = &now
	s.activities = append(s.activities, leadsrepo.ActivityParams{
		LeadID: leadID, AgentID: &agentID, Type: activityType, Detail: detail,
	})
	return true, nil
}

func (s *fakeLeadStore) MarkBroadcast(_ context.Context, leadID uuid.UUID, round int, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[leadID]
	if !ok || l.ClaimedBy != nil {
		return false, nil
	}
	if l.Status != leaddomain.StatusNew && !(l.Status == leaddomain.StatusBroadcast && l.CurrentRound < round) {
		return false, nil
	}
	l.Status = leaddomain.StatusBroadcast
	l.CurrentRound = round
	l.ClaimWindowExpiresAt = &expiresAt
	return true, nil
}

func (s *fakeLeadStore) EscalateSLA(_ context.Context, leadID, fromAgent, toAgent uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[leadID]
	if !ok || l.ClaimedBy == nil || *l.ClaimedBy != fromAgent ||
		l.Status != leaddomain.StatusClaimed || l.SLABreached {
		return false, nil
	}
	now := time.Now()
	l.SLABreached = true
	l.BreachTimestamp = &now
	l.ClaimedBy = &toAgent
	l.AssignedAt = &now
	return true, nil
}

func (s *fakeLeadStore) ReleaseNightHold(_ context.Context, leadID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[leadID]
	if !ok || !l.IsNightHeld || l.ClaimedBy != nil {
		return false, nil
	}
	l.IsNightHeld = false
	l.ScheduledReleaseAt = nil
	l.Status = leaddomain.StatusNew
	l.CurrentRound = 1
	return true, nil
}

func (s *fakeLeadStore) SelectExpiredBroadcasts(_ context.Context, now time.Time, _ int) ([]leaddomain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []leaddomain.Lead
	for _, l := range s.leads {
		if l.Status == leaddomain.StatusBroadcast && l.ClaimedBy == nil &&
			l.ClaimWindowExpiresAt != nil && !l.ClaimWindowExpiresAt.After(now) {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (s *fakeLeadStore) SelectSLACandidates(_ context.Context, cutoff time.Time, _ int) ([]leadsrepo.SLACandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []leadsrepo.SLACandidate
	for _, l := range s.leads {
		if l.Status == leaddomain.StatusClaimed && !l.SLABreached &&
			l.ClaimedBy != nil && l.AssignedAt != nil && !l.AssignedAt.After(cutoff) {
			out = append(out, leadsrepo.SLACandidate{Lead: *l, AgentID: *l.ClaimedBy})
		}
	}
	return out, nil
}

func (s *fakeLeadStore) SelectDueNightHeld(_ context.Context, now time.Time, _ int) ([]leaddomain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []leaddomain.Lead
	for _, l := range s.leads {
		if l.IsNightHeld && l.ClaimedBy == nil &&
			l.ScheduledReleaseAt != nil && !l.ScheduledReleaseAt.After(now) {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (s *fakeLeadStore) AppendActivity(_ context.Context, p leadsrepo.ActivityParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities = append(s.activities, p)
	return nil
}

func (s *fakeLeadStore) activityTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]string, 0, len(s.activities))
	for _, a := range s.activities {
		types = append(types, a.Type)
	}
	return types
}

type fakeAgentDirectory struct {
	mu     sync.Mutex
	agents map[uuid.UUID]agentsrepo.Agent
}

func newFakeAgentDirectory(agents ...agentsrepo.Agent) *fakeAgentDirectory {
	d := &fakeAgentDirectory{agents: make(map[uuid.UUID]agentsrepo.Agent)}
	for _, a := range agents {
		d.agents[a.ID] = a
	}
	return d
}

func (d *fakeAgentDirectory) GetByID(_ context.Context, id uuid.UUID) (agentsrepo.Agent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.agents[id]
	if !ok {
		return agentsrepo.Agent{}, apperr.NotFound("agent not found")
	}
	return a, nil
}

func (d *fakeAgentDirectory) GetByIDs(_ context.Context, ids []uuid.UUID) ([]agentsrepo.Agent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]agentsrepo.Agent, 0, len(ids))
	for _, id := range ids {
		if a, ok := d.agents[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (d *fakeAgentDirectory) ListEligible(_ context.Context, language string) ([]agentsrepo.Agent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []agentsrepo.Agent
	for _, a := range d.agents {
		if !a.IsActive || !a.AcceptsNewLeads || !a.HasCapacity() {
			continue
		}
		for _, l := range a.Languages {
			if l == language {
				out = append(out, a)
				break
			}
		}
	}
	return out, nil
}

func (d *fakeAgentDirectory) FirstActiveAdmin(_ context.Context) (agentsrepo.Agent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var admin *agentsrepo.Agent
	for _, a := range d.agents {
		if a.Role == agentsrepo.RoleAdmin && a.IsActive {
			candidate := a
			if admin == nil || candidate.CreatedAt.Before(admin.CreatedAt) {
				admin = &candidate
			}
		}
	}
	if admin == nil {
		return agentsrepo.Agent{}, apperr.NotFound("no active admin")
	}
	return *admin, nil
}

type fakeRuleStore struct {
	mu      sync.Mutex
	rules   []domain.Rule
	matched []uuid.UUID
}

func (s *fakeRuleStore) ListActiveRules(_ context.Context) ([]domain.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	active := make([]domain.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		if r.IsActive {
			active = append(active, r)
		}
	}
	return active, nil
}

func (s *fakeRuleStore) RecordMatch(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matched = append(s.matched, id)
	return nil
}

type fakeConfigStore struct {
	mu      sync.Mutex
	configs map[string]domain.RoundRobinConfig // key: language|round
}

func configKey(language string, round int) string {
	return fmt.Sprintf("%s|%d", language, round)
}

func (s *fakeConfigStore) set(cfg domain.RoundRobinConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.configs == nil {
		s.configs = make(map[string]domain.RoundRobinConfig)
	}
	s.configs[configKey(cfg.Language, cfg.RoundNumber)] = cfg
}

func (s *fakeConfigStore) GetConfig(_ context.Context, language string, round int) (domain.RoundRobinConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[configKey(language, round)]
	if !ok {
		return domain.RoundRobinConfig{}, apperr.NotFound("no config")
	}
	return cfg, nil
}

// fakeBus records published events synchronously.
type fakeBus struct {
	mu        sync.Mutex
	published []events.Event
}

func (b *fakeBus) Publish(_ context.Context, evt events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, evt)
}

func (b *fakeBus) PublishSync(ctx context.Context, evt events.Event) error {
	b.Publish(ctx, evt)
	return nil
}

func (b *fakeBus) Subscribe(string, events.Handler) {}

func (b *fakeBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.published))
	for _, e := range b.published {
		names = append(names, e.EventName())
	}
	return names
}

type fakeRoutingConfig struct {
	claimWindow       time.Duration
	firstActionSLA    time.Duration
	escalationAgentID string
}

func (c fakeRoutingConfig) GetDefaultClaimWindow() time.Duration { return c.claimWindow }
func (c fakeRoutingConfig) GetFirstActionSLA() time.Duration     { return c.firstActionSLA }
func (c fakeRoutingConfig) GetEscalationAgentID() string         { return c.escalationAgentID }
