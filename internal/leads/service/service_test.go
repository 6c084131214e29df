package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"crm_backend/internal/events"
	"crm_backend/internal/leads/domain"
	"crm_backend/internal/leads/repository"
	"crm_backend/platform/apperr"
	"crm_backend/platform/logger"

	"github.com/google/uuid"
)

// fakeStore mirrors the repository's compare-and-swap claim semantics in
// memory so the claim race can be exercised without a database.
type fakeStore struct {
	mu         sync.Mutex
	leads      map[uuid.UUID]*domain.Lead
	activities []repository.ActivityParams
}

func newFakeStore() *fakeStore {
	return &fakeStore{leads: make(map[uuid.UUID]*domain.Lead)}
}

func (s *fakeStore) Create(_ context.Context, p repository.CreateParams) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead := domain.Lead{
		ID:                 uuid.New(),
		FullName:           p.FullName,
		Email:              p.Email,
		Phone:              p.Phone,
		Language:           p.Language,
		Source:             p.Source,
		BudgetRange:        p.BudgetRange,
		Timeframe:          p.Timeframe,
		PropertyType:       p.PropertyType,
		Score:              p.Score,
		Segment:            p.Segment,
		Status:             domain.StatusNew,
		IsNightHeld:        p.IsNightHeld,
		ScheduledReleaseAt: p.ScheduledReleaseAt,
		CreatedAt:          time.Now(),
	}
	s.leads[lead.ID] = &lead
	return lead, nil
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return domain.Lead{}, apperr.NotFound("lead not found")
	}
	return *l, nil
}

func (s *fakeStore) List(_ context.Context, _ repository.ListFilter) ([]domain.Lead, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Lead, 0, len(s.leads))
	for _, l := range s.leads {
		out = append(out, *l)
	}
	return out, len(out), nil
}

func (s *fakeStore) Claim(_ context.Context, leadID, agentID uuid.UUID) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[leadID]
	if !ok {
		return domain.Lead{}, apperr.NotFound("lead not found")
	}
	if !l.Claimable() {
		return domain.Lead{}, apperr.Conflict("lead already claimed or not claimable")
	}
	now := time.Now()
	l.ClaimedBy = &agentID
	l.Status = domain.StatusClaimed
	l.AssignedAt = &now
	l.ClaimWindowExpiresAt = nil
	return *l, nil
}

func (s *fakeStore) MarkFirstAction(_ context.Context, leadID, agentID uuid.UUID) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[leadID]
	if !ok {
		return domain.Lead{}, apperr.NotFound("lead not found")
	}
	if l.Status != domain.StatusClaimed || l.ClaimedBy == nil || *l.ClaimedBy != agentID {
		return domain.Lead{}, apperr.Conflict("lead is not claimed by this agent")
	}
	l.Status = domain.StatusFirstActionCompleted
	return *l, nil
}

func (s *fakeStore) Reassign(_ context.Context, leadID, toAgent uuid.UUID, _ *uuid.UUID, reason string) (repository.ReassignResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[leadID]
	if !ok {
		return repository.ReassignResult{}, apperr.NotFound("lead not found")
	}
	if l.Status == domain.StatusArchived {
		return repository.ReassignResult{}, apperr.Conflict("archived leads cannot be reassigned")
	}
	if l.ClaimedBy != nil && *l.ClaimedBy == toAgent {
		return repository.ReassignResult{}, apperr.Conflict("lead is already assigned to this agent")
	}
	from := l.ClaimedBy
	now := time.Now()
	l.ClaimedBy = &toAgent
	l.Status = domain.StatusClaimed
	l.AssignedAt = &now
	l.ClaimWindowExpiresAt = nil
	if reason != domain.ReassignReasonManual {
		l.SLABreached = false
		l.BreachTimestamp = nil
	}
	return repository.ReassignResult{
		Lead: *l, FromAgentID: from,
		AgentName: "Eva Martens", AgentEmail: "eva@example.com",
	}, nil
}

func (s *fakeStore) Archive(_ context.Context, leadID uuid.UUID, _ *uuid.UUID) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[leadID]
	if !ok || l.Status == domain.StatusArchived {
		return domain.Lead{}, apperr.NotFound("lead not found or already archived")
	}
	l.Status = domain.StatusArchived
	return *l, nil
}

func (s *fakeStore) AppendActivity(_ context.Context, p repository.ActivityParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities = append(s.activities, p)
	return nil
}

func (s *fakeStore) ListActivities(_ context.Context, leadID uuid.UUID) ([]repository.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]repository.Activity, 0)
	for _, a := range s.activities {
		if a.LeadID == leadID {
			out = append(out, repository.Activity{LeadID: a.LeadID, Type: a.Type, Detail: a.Detail})
		}
	}
	return out, nil
}

type fakeRouter struct {
	mu     sync.Mutex
	routed []uuid.UUID
	err    error
}

func (r *fakeRouter) Route(_ context.Context, lead domain.Lead) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.routed = append(r.routed, lead.ID)
	return nil
}

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

func businessHours() domain.BusinessHours {
	return domain.BusinessHours{StartHour: 8, EndHour: 21, Location: time.UTC}
}

func newTestService(store *fakeStore, router *fakeRouter, bus *fakeBus, at time.Time) *Service {
	svc := New(store, router, bus, businessHours(), logger.New("test"))
	svc.now = func() time.Time { return at }
	return svc
}

func TestIngestRoutesDuringBusinessHours(t *testing.T) {
	store := newFakeStore()
	router := &fakeRouter{}
	bus := &fakeBus{}
	daytime := time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)
	svc := newTestService(store, router, bus, daytime)

	lead, err := svc.Ingest(context.Background(), IngestParams{
		FullName:    "Jan de Vries",
		Email:       "JAN@Example.com",
		Language:    "NL",
		BudgetRange: "€1m - €2m",
		Timeframe:   "immediate",
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if lead.IsNightHeld {
		t.Fatal("daytime lead must not be night-held")
	}
	if lead.Email != "jan@example.com" || lead.Language != "nl" {
		t.Fatalf("normalization failed: email=%q language=%q", lead.Email, lead.Language)
	}
	if len(router.routed) != 1 {
		t.Fatalf("expected 1 routed lead, got %d", len(router.routed))
	}
	if lead.Score == 0 || lead.Segment == "" {
		t.Fatalf("lead not scored: score=%d segment=%q", lead.Score, lead.Segment)
	}
}

func TestIngestScoresIntakeAnswers(t *testing.T) {
	store := newFakeStore()
	daytime := time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)
	svc := newTestService(store, &fakeRouter{}, &fakeBus{}, daytime)

	in := IngestParams{
		FullName:           "Maria Keller",
		Email:              "maria@example.com",
		Phone:              "+34 612 345 678",
		Language:           "de",
		BudgetRange:        "€2,000,000+",
		Timeframe:          "immediate",
		IntakeComplete:     true,
		LocationPreference: []string{"marbella", "estepona"},
		PropertyType:       "villa",
		PropertyPurpose:    "residence",
		BedroomsDesired:    "4",
		SeaViewImportance:  "essential",
	}
	lead, err := svc.Ingest(context.Background(), in)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	want := domain.Score(domain.ScoreInput{
		BudgetRange:        in.BudgetRange,
		Timeframe:          in.Timeframe,
		IntakeComplete:     in.IntakeComplete,
		QuestionsAnswered:  in.QuestionsAnswered,
		LocationPreference: in.LocationPreference,
		PropertyType:       in.PropertyType,
		PropertyPurpose:    in.PropertyPurpose,
		BedroomsDesired:    in.BedroomsDesired,
		SeaViewImportance:  in.SeaViewImportance,
	})
	if lead.Score != want {
		t.Fatalf("score=%d, want %d", lead.Score, want)
	}
	if lead.Segment != domain.SegmentFor(want) {
		t.Fatalf("segment=%s, want %s", lead.Segment, domain.SegmentFor(want))
	}
	if lead.Phone != "+34612345678" {
		t.Fatalf("phone not normalized: %q", lead.Phone)
	}
}

func TestIngestHoldsLeadOutsideBusinessHours(t *testing.T) {
	store := newFakeStore()
	router := &fakeRouter{}
	night := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
	svc := newTestService(store, router, &fakeBus{}, night)

	lead, err := svc.Ingest(context.Background(), IngestParams{
		FullName: "Night Owl",
		Email:    "owl@example.com",
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if !lead.IsNightHeld {
		t.Fatal("lead ingested at 23:30 must be night-held")
	}
	if lead.ScheduledReleaseAt == nil {
		t.Fatal("night-held lead needs a scheduled release")
	}
	want := time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC)
	if !lead.ScheduledReleaseAt.Equal(want) {
		t.Fatalf("release at %v, want %v", lead.ScheduledReleaseAt, want)
	}
	if len(router.routed) != 0 {
		t.Fatal("night-held lead must not be routed at ingest")
	}
}

func TestIngestSurvivesRoutingFailure(t *testing.T) {
	store := newFakeStore()
	router := &fakeRouter{err: apperr.Internal("routing down")}
	daytime := time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)
	svc := newTestService(store, router, &fakeBus{}, daytime)

	lead, err := svc.Ingest(context.Background(), IngestParams{
		FullName: "Resilient",
		Email:    "r@example.com",
	})
	if err != nil {
		t.Fatalf("Ingest must not fail when routing fails: %v", err)
	}
	got, err := store.GetByID(context.Background(), lead.ID)
	if err != nil {
		t.Fatalf("lead lost: %v", err)
	}
	if got.Status != domain.StatusNew {
		t.Fatalf("expected status new for triage, got %s", got.Status)
	}
}

func TestIngestRejectsMissingContact(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeRouter{}, &fakeBus{}, time.Now())
	_, err := svc.Ingest(context.Background(), IngestParams{FullName: "  ", Email: ""})
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestClaimRaceHasExactlyOneWinner(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeRouter{}, &fakeBus{}, time.Now())

	lead, err := store.Create(context.Background(), repository.CreateParams{
		FullName: "Contested", Email: "c@example.com", Language: "en",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	store.leads[lead.ID].Status = domain.StatusBroadcast

	const claimants = 20
	var wg sync.WaitGroup
	var winners, conflicts int
	var mu sync.Mutex

	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Claim(context.Background(), lead.ID, uuid.New())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case apperr.GetKind(err) == apperr.KindConflict:
				conflicts++
			default:
				t.Errorf("unexpected claim error: %v", err)
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("winners=%d, want exactly 1", winners)
	}
	if conflicts != claimants-1 {
		t.Fatalf("conflicts=%d, want %d", conflicts, claimants-1)
	}
}

func TestClaimAfterWindowExpiryStillSucceeds(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeRouter{}, &fakeBus{}, time.Now())

	lead, _ := store.Create(context.Background(), repository.CreateParams{
		FullName: "Late", Email: "late@example.com", Language: "en",
	})
	expired := time.Now().Add(-time.Hour)
	store.leads[lead.ID].Status = domain.StatusBroadcast
	store.leads[lead.ID].ClaimWindowExpiresAt = &expired

	agentID := uuid.New()
	claimed, err := svc.Claim(context.Background(), lead.ID, agentID)
	if err != nil {
		t.Fatalf("late claim must succeed before re-broadcast: %v", err)
	}
	if claimed.ClaimedBy == nil || *claimed.ClaimedBy != agentID {
		t.Fatalf("claim not recorded: %v", claimed.ClaimedBy)
	}
}

func TestFirstActionRequiresClaimOwnership(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeRouter{}, &fakeBus{}, time.Now())

	lead, _ := store.Create(context.Background(), repository.CreateParams{
		FullName: "Owned", Email: "o@example.com", Language: "en",
	})
	owner := uuid.New()
	store.leads[lead.ID].Status = domain.StatusClaimed
	store.leads[lead.ID].ClaimedBy = &owner

	if _, err := svc.FirstAction(context.Background(), lead.ID, uuid.New()); apperr.GetKind(err) != apperr.KindConflict {
		t.Fatalf("expected conflict for non-owner, got %v", err)
	}

	got, err := svc.FirstAction(context.Background(), lead.ID, owner)
	if err != nil {
		t.Fatalf("owner first action: %v", err)
	}
	if got.Status != domain.StatusFirstActionCompleted {
		t.Fatalf("status=%s, want first_action_completed", got.Status)
	}
}

func TestReassignMovesLeadToNewAgent(t *testing.T) {
	store := newFakeStore()
	bus := &fakeBus{}
	svc := newTestService(store, &fakeRouter{}, bus, time.Now())

	lead, _ := store.Create(context.Background(), repository.CreateParams{
		FullName: "Stalled", Email: "s@example.com", Language: "en",
	})
	previous := uuid.New()
	store.leads[lead.ID].Status = domain.StatusClaimed
	store.leads[lead.ID].ClaimedBy = &previous
	store.leads[lead.ID].SLABreached = true

	next := uuid.New()
	admin := uuid.New()
	got, err := svc.Reassign(context.Background(), lead.ID, next, &admin, domain.ReassignReasonNoContact)
	if err != nil {
		t.Fatalf("Reassign: %v", err)
	}
	if got.ClaimedBy == nil || *got.ClaimedBy != next {
		t.Fatalf("lead not handed over: %v", got.ClaimedBy)
	}
	if got.SLABreached {
		t.Fatal("no-contact reassignment must restart the first-action clock")
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()
	if len(bus.published) != 1 {
		t.Fatalf("expected 1 event, got %d", len(bus.published))
	}
	evt, ok := bus.published[0].(events.LeadReassigned)
	if !ok {
		t.Fatalf("expected LeadReassigned, got %T", bus.published[0])
	}
	if evt.ToAgentID != next || evt.Reason != domain.ReassignReasonNoContact {
		t.Fatalf("event agent=%s reason=%s", evt.ToAgentID, evt.Reason)
	}
	if evt.FromAgentID == nil || *evt.FromAgentID != previous {
		t.Fatalf("event missing previous holder: %v", evt.FromAgentID)
	}
}

func TestReassignRejectsUnknownReason(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeRouter{}, &fakeBus{}, time.Now())

	lead, _ := store.Create(context.Background(), repository.CreateParams{
		FullName: "Untouched", Email: "u@example.com", Language: "en",
	})

	_, err := svc.Reassign(context.Background(), lead.ID, uuid.New(), nil, "because")
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	got, _ := store.GetByID(context.Background(), lead.ID)
	if got.ClaimedBy != nil {
		t.Fatal("rejected reassignment must not touch the lead")
	}
}

func TestReassignToCurrentHolderConflicts(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeRouter{}, &fakeBus{}, time.Now())

	lead, _ := store.Create(context.Background(), repository.CreateParams{
		FullName: "Held", Email: "h@example.com", Language: "en",
	})
	holder := uuid.New()
	store.leads[lead.ID].Status = domain.StatusClaimed
	store.leads[lead.ID].ClaimedBy = &holder

	_, err := svc.Reassign(context.Background(), lead.ID, holder, nil, domain.ReassignReasonManual)
	if apperr.GetKind(err) != apperr.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}
