package domain

import (
	"time"

	"github.com/google/uuid"
)

// RoundRobinConfig defines the broadcast pool for one (language, round)
// tier. Round numbers start at 1 per language; a higher round is only used
// after the previous round's claim window lapses unclaimed.
type RoundRobinConfig struct {
	ID                 uuid.UUID   `json:"id"`
	Language           string      `json:"language"`
	RoundNumber        int         `json:"roundNumber"`
	AgentIDs           []uuid.UUID `json:"agentIds"`
	ClaimWindowMinutes int         `json:"claimWindowMinutes"`
	IsActive           bool        `json:"isActive"`
	CreatedAt          time.Time   `json:"createdAt"`
	UpdatedAt          time.Time   `json:"updatedAt"`
}

// ClaimWindow converts the configured minutes to a duration.
func (c RoundRobinConfig) ClaimWindow() time.Duration {
	return time.Duration(c.ClaimWindowMinutes) * time.Minute
}
