// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"crm_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Lead Lifecycle Events
// =============================================================================

// LeadIngested is published when a new lead enters the system via the
// intake endpoint, after scoring and segmentation.
type LeadIngested struct {
	BaseEvent
	LeadID    uuid.UUID `json:"leadId"`
	Language  string    `json:"language"`
	Segment   string    `json:"segment"`
	Score     int       `json:"score"`
	Source    string    `json:"source,omitempty"`
	NightHeld bool      `json:"nightHeld"`
}

func (e LeadIngested) EventName() string { return "leads.lead.ingested" }

// LeadAssigned is published when a routing rule assigns a lead directly
// to an agent.
type LeadAssigned struct {
	BaseEvent
	LeadID     uuid.UUID `json:"leadId"`
	AgentID    uuid.UUID `json:"agentId"`
	AgentEmail string    `json:"agentEmail"`
	AgentName  string    `json:"agentName"`
	RuleID     uuid.UUID `json:"ruleId"`
	LeadName   string    `json:"leadName"`
}

func (e LeadAssigned) EventName() string { return "leads.lead.assigned" }

// LeadBroadcast is published when a lead is broadcast to a pool of agents
// for claiming.
type LeadBroadcast struct {
	BaseEvent
	LeadID     uuid.UUID   `json:"leadId"`
	Language   string      `json:"language"`
	Round      int         `json:"round"`
	Candidates []Candidate `json:"candidates"`
	LeadName   string      `json:"leadName"`
	Segment    string      `json:"segment"`
}

func (e LeadBroadcast) EventName() string { return "leads.lead.broadcast" }

// Candidate identifies one agent notified during a broadcast.
type Candidate struct {
	AgentID uuid.UUID `json:"agentId"`
	Email   string    `json:"email"`
	Name    string    `json:"name"`
}

// LeadClaimed is published when an agent wins the claim race for a lead.
type LeadClaimed struct {
	BaseEvent
	LeadID  uuid.UUID `json:"leadId"`
	AgentID uuid.UUID `json:"agentId"`
	Round   int       `json:"round"`
}

func (e LeadClaimed) EventName() string { return "leads.lead.claimed" }

// LeadSLABreached is published when a claimed lead passes its first-action
// SLA and is reassigned to the escalation agent.
type LeadSLABreached struct {
	BaseEvent
	LeadID               uuid.UUID `json:"leadId"`
	OriginalAgentID      uuid.UUID `json:"originalAgentId"`
	OriginalAgentEmail   string    `json:"originalAgentEmail"`
	OriginalAgentName    string    `json:"originalAgentName"`
	EscalationAgentID    uuid.UUID `json:"escalationAgentId"`
	EscalationAgentEmail string    `json:"escalationAgentEmail"`
	EscalationAgentName  string    `json:"escalationAgentName"`
	LeadName             string    `json:"leadName"`
}

func (e LeadSLABreached) EventName() string { return "leads.lead.sla_breached" }

// LeadReassigned is published when an admin moves a lead to another agent,
// whether it was claimed before or not.
type LeadReassigned struct {
	BaseEvent
	LeadID      uuid.UUID  `json:"leadId"`
	FromAgentID *uuid.UUID `json:"fromAgentId,omitempty"`
	ToAgentID   uuid.UUID  `json:"toAgentId"`
	AgentEmail  string     `json:"agentEmail"`
	AgentName   string     `json:"agentName"`
	LeadName    string     `json:"leadName"`
	Reason      string     `json:"reason"`
}

func (e LeadReassigned) EventName() string { return "leads.lead.reassigned" }

// LeadNightReleased is published when a night-held lead is released into
// routing at the start of the business day.
type LeadNightReleased struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	Language string    `json:"language"`
}

func (e LeadNightReleased) EventName() string { return "leads.lead.night_released" }

// =============================================================================
// Notification Events
// =============================================================================

// NotificationOutboxDue is published by the scheduler when a notification
// outbox record should be processed.
type NotificationOutboxDue struct {
	BaseEvent
	OutboxID uuid.UUID `json:"outboxId"`
}

func (e NotificationOutboxDue) EventName() string { return "notification.outbox.due" }
