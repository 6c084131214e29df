// Package service implements the lead lifecycle: ingestion with scoring and
// night holds, claim arbitration, first-action tracking, and archival.
package service

import (
	"context"
	"strings"
	"time"

	"crm_backend/internal/events"
	"crm_backend/internal/leads/domain"
	"crm_backend/internal/leads/repository"
	"crm_backend/platform/apperr"
	"crm_backend/platform/logger"
	"crm_backend/platform/phone"

	"github.com/google/uuid"
)

// Store is the persistence surface the service needs from the lead repository.
type Store interface {
	Create(ctx context.Context, p repository.CreateParams) (domain.Lead, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	List(ctx context.Context, f repository.ListFilter) ([]domain.Lead, int, error)
	Claim(ctx context.Context, leadID, agentID uuid.UUID) (domain.Lead, error)
	MarkFirstAction(ctx context.Context, leadID, agentID uuid.UUID) (domain.Lead, error)
	Reassign(ctx context.Context, leadID, toAgent uuid.UUID, actorID *uuid.UUID, reason string) (repository.ReassignResult, error)
	Archive(ctx context.Context, leadID uuid.UUID, actorID *uuid.UUID) (domain.Lead, error)
	AppendActivity(ctx context.Context, p repository.ActivityParams) error
	ListActivities(ctx context.Context, leadID uuid.UUID) ([]repository.Activity, error)
}

// Router hands a freshly ingested lead to the routing engine.
type Router interface {
	Route(ctx context.Context, lead domain.Lead) error
}

// ReleaseScheduler enqueues a one-off release sweep for a night-held lead.
type ReleaseScheduler interface {
	ScheduleNightRelease(ctx context.Context, runAt time.Time) error
}

type Service struct {
	store    Store
	router   Router
	bus      events.Bus
	hours    domain.BusinessHours
	releases ReleaseScheduler
	log      *logger.Logger
	now      func() time.Time
}

func New(store Store, router Router, bus events.Bus, hours domain.BusinessHours, log *logger.Logger) *Service {
	return &Service{
		store:  store,
		router: router,
		bus:    bus,
		hours:  hours,
		log:    log,
		now:    time.Now,
	}
}

// SetReleaseScheduler injects the optional release scheduler. Without it,
// night-held leads wait for the recurring release sweep.
func (s *Service) SetReleaseScheduler(rs ReleaseScheduler) {
	s.releases = rs
}

// IngestParams carries everything the public intake form submits.
type IngestParams struct {
	FullName     string
	Email        string
	Phone        string
	Message      string
	Language     string
	Source       string
	PageType     string
	PageSlug     string
	BudgetRange  string
	Timeframe    string
	PropertyType string

	IntakeComplete     bool
	QuestionsAnswered  int
	LocationPreference []string
	PropertyPurpose    string
	BedroomsDesired    string
	SeaViewImportance  string
}

// Ingest scores and persists an incoming lead, then either holds it until
// the next business-day opening or hands it straight to the routing engine.
// Routing failures never lose the lead: it stays in status new for manual
// triage and the error is logged.
func (s *Service) Ingest(ctx context.Context, p IngestParams) (domain.Lead, error) {
	if strings.TrimSpace(p.FullName) == "" || strings.TrimSpace(p.Email) == "" {
		return domain.Lead{}, apperr.Validation("full name and email are required")
	}
	language := strings.ToLower(strings.TrimSpace(p.Language))
	if language == "" {
		language = "en"
	}

	normalizedPhone := phone.NormalizeE164(p.Phone)

	score := domain.Score(domain.ScoreInput{
		BudgetRange:        p.BudgetRange,
		Timeframe:          p.Timeframe,
		IntakeComplete:     p.IntakeComplete,
		QuestionsAnswered:  p.QuestionsAnswered,
		LocationPreference: p.LocationPreference,
		PropertyType:       p.PropertyType,
		PropertyPurpose:    p.PropertyPurpose,
		BedroomsDesired:    p.BedroomsDesired,
		SeaViewImportance:  p.SeaViewImportance,
	})
	segment := domain.SegmentFor(score)

	now := s.now()
	var releaseAt *time.Time
	nightHeld := !s.hours.Contains(now)
	if nightHeld {
		t := s.hours.NextOpening(now)
		releaseAt = &t
	}

	lead, err := s.store.Create(ctx, repository.CreateParams{
		FullName:           strings.TrimSpace(p.FullName),
		Email:              strings.ToLower(strings.TrimSpace(p.Email)),
		Phone:              normalizedPhone,
		Message:            strings.TrimSpace(p.Message),
		Language:           language,
		Source:             p.Source,
		PageType:           p.PageType,
		PageSlug:           p.PageSlug,
		BudgetRange:        p.BudgetRange,
		Timeframe:          p.Timeframe,
		PropertyType:       p.PropertyType,
		Score:              score,
		Segment:            segment,
		IsNightHeld:        nightHeld,
		ScheduledReleaseAt: releaseAt,
	})
	if err != nil {
		return domain.Lead{}, err
	}

	activityType := domain.ActivityIngested
	detail := "lead ingested"
	if nightHeld {
		activityType = domain.ActivityNightHeld
		detail = "lead ingested outside business hours, held until " + releaseAt.Format(time.RFC3339)
	}
	if err := s.store.AppendActivity(ctx, repository.ActivityParams{
		LeadID: lead.ID,
		Type:   activityType,
		Detail: detail,
	}); err != nil {
		s.log.Error("record ingest activity failed", "error", err, "lead_id", lead.ID)
	}

	s.publish(ctx, events.LeadIngested{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
		Language:  lead.Language,
		Segment:   string(lead.Segment),
		Score:     lead.Score,
		Source:    lead.Source,
		NightHeld: nightHeld,
	})
	s.log.LeadEvent("ingested", lead.ID.String(),
		"segment", string(lead.Segment), "score", lead.Score, "night_held", nightHeld)

	if nightHeld {
		if s.releases != nil {
			if err := s.releases.ScheduleNightRelease(ctx, *releaseAt); err != nil {
				s.log.Warn("schedule night release failed", "error", err, "lead_id", lead.ID)
			}
		}
		return lead, nil
	}

	if err := s.router.Route(ctx, lead); err != nil {
		s.log.Error("routing ingested lead failed", "error", err, "lead_id", lead.ID)
		return lead, nil
	}
	return s.store.GetByID(ctx, lead.ID)
}

// Claim resolves a claim attempt. Exactly one agent wins each lead; the rest
// receive a conflict. Claims after the window expired but before the next
// round opened are honored.
func (s *Service) Claim(ctx context.Context, leadID, agentID uuid.UUID) (domain.Lead, error) {
	lead, err := s.store.Claim(ctx, leadID, agentID)
	if err != nil {
		return domain.Lead{}, err
	}

	s.publish(ctx, events.LeadClaimed{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
		AgentID:   agentID,
		Round:     lead.CurrentRound,
	})
	s.log.LeadEvent("claimed", lead.ID.String(), "agent_id", agentID.String(), "round", lead.CurrentRound)
	return lead, nil
}

// FirstAction records that the claiming agent performed their first action,
// stopping the SLA clock.
func (s *Service) FirstAction(ctx context.Context, leadID, agentID uuid.UUID) (domain.Lead, error) {
	lead, err := s.store.MarkFirstAction(ctx, leadID, agentID)
	if err != nil {
		return domain.Lead{}, err
	}
	s.log.LeadEvent("first_action", lead.ID.String(), "agent_id", agentID.String())
	return lead, nil
}

// Reassign hands a lead to the chosen agent on an admin's authority,
// regardless of who holds it. The receiving agent is notified through the
// reassignment event.
func (s *Service) Reassign(ctx context.Context, leadID, toAgent uuid.UUID, actorID *uuid.UUID, reason string) (domain.Lead, error) {
	switch reason {
	case domain.ReassignReasonUnclaimed, domain.ReassignReasonNoContact, domain.ReassignReasonManual:
	default:
		return domain.Lead{}, apperr.Validation("reason must be unclaimed, no_contact, or manual")
	}

	res, err := s.store.Reassign(ctx, leadID, toAgent, actorID, reason)
	if err != nil {
		return domain.Lead{}, err
	}

	s.publish(ctx, events.LeadReassigned{
		BaseEvent:   events.NewBaseEvent(),
		LeadID:      res.Lead.ID,
		FromAgentID: res.FromAgentID,
		ToAgentID:   toAgent,
		AgentEmail:  res.AgentEmail,
		AgentName:   res.AgentName,
		LeadName:    res.Lead.FullName,
		Reason:      reason,
	})
	s.log.LeadEvent("reassigned", res.Lead.ID.String(), "agent_id", toAgent.String(), "reason", reason)
	return res.Lead, nil
}

// Archive closes a lead out of the pipeline.
func (s *Service) Archive(ctx context.Context, leadID uuid.UUID, actorID *uuid.UUID) (domain.Lead, error) {
	return s.store.Archive(ctx, leadID, actorID)
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f repository.ListFilter) ([]domain.Lead, int, error) {
	return s.store.List(ctx, f)
}

func (s *Service) ListActivities(ctx context.Context, leadID uuid.UUID) ([]repository.Activity, error) {
	return s.store.ListActivities(ctx, leadID)
}

func (s *Service) publish(ctx context.Context, evt events.Event) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, evt)
}
