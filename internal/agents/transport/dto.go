// Package transport defines the request/response DTOs for the agents API.
package transport

type CreateAgentRequest struct {
	FullName        string   `json:"fullName" binding:"required" validate:"required,min=2,max=120"`
	Email           string   `json:"email" binding:"required" validate:"required,email"`
	Phone           string   `json:"phone" validate:"omitempty,max=32"`
	Role            string   `json:"role" validate:"omitempty,oneof=agent admin"`
	Languages       []string `json:"languages" validate:"required,min=1,dive,min=2,max=8"`
	AcceptsNewLeads *bool    `json:"acceptsNewLeads"`
	MaxActiveLeads  int      `json:"maxActiveLeads" validate:"omitempty,min=1,max=500"`
}

type UpdateAgentRequest struct {
	FullName        *string  `json:"fullName" validate:"omitempty,min=2,max=120"`
	Phone           *string  `json:"phone" validate:"omitempty,max=32"`
	Role            *string  `json:"role" validate:"omitempty,oneof=agent admin"`
	Languages       []string `json:"languages" validate:"omitempty,min=1,dive,min=2,max=8"`
	IsActive        *bool    `json:"isActive"`
	AcceptsNewLeads *bool    `json:"acceptsNewLeads"`
	MaxActiveLeads  *int     `json:"maxActiveLeads" validate:"omitempty,min=1,max=500"`
}
