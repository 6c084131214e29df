// Package transport defines the request/response DTOs for the leads API.
package transport

// ReassignLeadRequest names the receiving agent and why the lead moves.
type ReassignLeadRequest struct {
	AgentID string `json:"agentId" binding:"required" validate:"required,uuid"`
	Reason  string `json:"reason" binding:"required" validate:"required,oneof=unclaimed no_contact manual"`
}

// ListLeadsQuery captures the supported filter parameters for lead listings.
type ListLeadsQuery struct {
	Status   string `form:"status" validate:"omitempty,oneof=new broadcast claimed first_action_completed archived"`
	Segment  string `form:"segment" validate:"omitempty,oneof=Hot Warm Cool Cold"`
	Language string `form:"language" validate:"omitempty,min=2,max=8"`
	Mine     bool   `form:"mine"`
	Limit    int    `form:"limit" validate:"omitempty,min=1,max=200"`
	Offset   int    `form:"offset" validate:"omitempty,min=0"`
}
