package service

import (
	"context"

	"crm_backend/internal/events"
	leaddomain "crm_backend/internal/leads/domain"
	leadsrepo "crm_backend/internal/leads/repository"
)

// ReleaseDueLeads moves night-held leads whose release time has arrived into
// routing, oldest first. A lead claimed manually during the night is left
// alone: the release transition requires claimed_by to still be empty.
func (e *Engine) ReleaseDueLeads(ctx context.Context) (examined, acted int, err error) {
	due, err := e.leads.SelectDueNightHeld(ctx, e.now(), 100)
	if err != nil {
		e.log.SweepResult("night_release", 0, 0, err)
		return 0, 0, err
	}

	for _, lead := range due {
		released, err := e.leads.ReleaseNightHold(ctx, lead.ID)
		if err != nil {
			e.log.Error("release night hold failed", "error", err, "lead_id", lead.ID)
			continue
		}
		if !released {
			continue
		}
		acted++

		if err := e.leads.AppendActivity(ctx, leadsrepo.ActivityParams{
			LeadID: lead.ID,
			Type:   leaddomain.ActivityNightReleased,
			Detail: "night hold released, entering routing",
		}); err != nil {
			e.log.Error("record night release activity failed", "error", err, "lead_id", lead.ID)
		}
		e.publish(ctx, events.LeadNightReleased{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    lead.ID,
			Language:  lead.Language,
		})

		fresh, err := e.leads.GetByID(ctx, lead.ID)
		if err != nil {
			e.log.Error("reload released lead failed", "error", err, "lead_id", lead.ID)
			continue
		}
		if err := e.Route(ctx, fresh); err != nil {
			e.log.Error("route released lead failed", "error", err, "lead_id", lead.ID)
		}
	}

	e.log.SweepResult("night_release", len(due), acted, nil)
	return len(due), acted, nil
}
