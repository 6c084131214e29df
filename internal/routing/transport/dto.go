// Package transport defines the request/response DTOs for the routing
// configuration API.
package transport

import "github.com/google/uuid"

// RuleRequest creates or replaces a routing rule. Empty dimension arrays
// are wildcards.
type RuleRequest struct {
	Name                string    `json:"name" binding:"required" validate:"required,min=2,max=120"`
	Priority            int       `json:"priority" validate:"min=0,max=1000"`
	IsActive            *bool     `json:"isActive"`
	Languages           []string  `json:"languages" validate:"omitempty,dive,min=2,max=8"`
	PageTypes           []string  `json:"pageTypes" validate:"omitempty,dive,min=1,max=64"`
	PageSlugs           []string  `json:"pageSlugs" validate:"omitempty,dive,min=1,max=128"`
	Sources             []string  `json:"sources" validate:"omitempty,dive,min=1,max=64"`
	Segments            []string  `json:"segments" validate:"omitempty,dive,oneof=Hot Warm Cool Cold"`
	BudgetRanges        []string  `json:"budgetRanges" validate:"omitempty,dive,min=1,max=64"`
	PropertyTypes       []string  `json:"propertyTypes" validate:"omitempty,dive,min=1,max=64"`
	Timeframes          []string  `json:"timeframes" validate:"omitempty,dive,min=1,max=64"`
	TargetAgentID       uuid.UUID `json:"targetAgentId" binding:"required" validate:"required"`
	FallbackToBroadcast *bool     `json:"fallbackToBroadcast"`
}

// ConfigRequest creates or replaces a round-robin broadcast pool.
type ConfigRequest struct {
	Language           string      `json:"language" binding:"required" validate:"required,min=2,max=8"`
	RoundNumber        int         `json:"roundNumber" binding:"required" validate:"required,min=1,max=10"`
	AgentIDs           []uuid.UUID `json:"agentIds" binding:"required" validate:"required,min=1"`
	ClaimWindowMinutes int         `json:"claimWindowMinutes" validate:"omitempty,min=1,max=1440"`
	IsActive           *bool       `json:"isActive"`
}
