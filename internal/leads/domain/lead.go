// Package domain holds the lead aggregate and the pure business rules
// applied to it: lifecycle states, scoring, and night-hold timing.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lead lifecycle state.
type Status string

const (
	StatusNew                  Status = "new"
	StatusBroadcast            Status = "broadcast"
	StatusClaimed              Status = "claimed"
	StatusFirstActionCompleted Status = "first_action_completed"
	StatusArchived             Status = "archived"
)

// Segment buckets a lead by its score.
type Segment string

const (
	SegmentHot  Segment = "Hot"
	SegmentWarm Segment = "Warm"
	SegmentCool Segment = "Cool"
	SegmentCold Segment = "Cold"
)

// Lead is a sales lead moving through routing, claiming, and follow-up.
type Lead struct {
	ID                   uuid.UUID  `json:"id"`
	FullName             string     `json:"fullName"`
	Email                string     `json:"email"`
	Phone                string     `json:"phone"`
	Message              string     `json:"message,omitempty"`
	Language             string     `json:"language"`
	Source               string     `json:"source,omitempty"`
	PageType             string     `json:"pageType,omitempty"`
	PageSlug             string     `json:"pageSlug,omitempty"`
	BudgetRange          string     `json:"budgetRange,omitempty"`
	Timeframe            string     `json:"timeframe,omitempty"`
	PropertyType         string     `json:"propertyType,omitempty"`
	Score                int        `json:"score"`
	Segment              Segment    `json:"segment"`
	Status               Status     `json:"status"`
	RoutingRuleID        *uuid.UUID `json:"routingRuleId,omitempty"`
	ClaimedBy            *uuid.UUID `json:"claimedBy,omitempty"`
	AssignedAt           *time.Time `json:"assignedAt,omitempty"`
	CurrentRound         int        `json:"currentRound"`
	ClaimWindowExpiresAt *time.Time `json:"claimWindowExpiresAt,omitempty"`
	SLABreached          bool       `json:"slaBreached"`
	BreachTimestamp      *time.Time `json:"breachTimestamp,omitempty"`
	IsNightHeld          bool       `json:"isNightHeld"`
	ScheduledReleaseAt   *time.Time `json:"scheduledReleaseAt,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// Claimable reports whether a claim attempt may still succeed. A lapsed
// claim window does not block a claim: expiry triggers re-broadcast but is
// not a deadline on claimability.
func (l *Lead) Claimable() bool {
	return l.ClaimedBy == nil && (l.Status == StatusNew || l.Status == StatusBroadcast)
}

// Attributes is the routing-relevant snapshot of a lead, used for rule
// matching. It deliberately excludes contact details.
type Attributes struct {
	Language     string
	PageType     string
	PageSlug     string
	Source       string
	Segment      string
	BudgetRange  string
	PropertyType string
	Timeframe    string
}

// RoutingAttributes extracts the matcher snapshot from a lead.
func (l *Lead) RoutingAttributes() Attributes {
	return Attributes{
		Language:     l.Language,
		PageType:     l.PageType,
		PageSlug:     l.PageSlug,
		Source:       l.Source,
		Segment:      string(l.Segment),
		BudgetRange:  l.BudgetRange,
		PropertyType: l.PropertyType,
		Timeframe:    l.Timeframe,
	}
}

// Activity types recorded in the lead audit trail.
const (
	ActivityIngested      = "ingested"
	ActivityRuleAssigned  = "rule_assigned"
	ActivityBroadcast     = "broadcast"
	ActivityClaimed       = "claimed"
	ActivityRoundAdvanced = "round_advanced"
	ActivityAdminFallback = "admin_fallback"
	ActivitySLABreach     = "sla_breach"
	ActivityReassigned    = "reassigned"
	ActivityNightHeld     = "night_held"
	ActivityNightReleased = "night_released"
	ActivityFirstAction   = "first_action"
	ActivityArchived      = "archived"
	ActivityManualTriage  = "manual_triage"
)

// Reassignment reasons accepted by the admin override. Unclaimed and
// no-contact moves restart the first-action clock; a manual move keeps it.
const (
	ReassignReasonUnclaimed = "unclaimed"
	ReassignReasonNoContact = "no_contact"
	ReassignReasonManual    = "manual"
)
