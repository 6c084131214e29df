package repository

import (
	"context"
	"fmt"
	"time"

	"crm_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	opAppendActivity = "leads.repository.append_activity"
	opListActivities = "leads.repository.list_activities"
)

// Activity is one entry in a lead's audit trail.
type Activity struct {
	ID        uuid.UUID  `json:"id"`
	LeadID    uuid.UUID  `json:"leadId"`
	AgentID   *uuid.UUID `json:"agentId,omitempty"`
	Type      string     `json:"type"`
	Detail    string     `json:"detail"`
	CreatedAt time.Time  `json:"createdAt"`
}

type ActivityParams struct {
	LeadID  uuid.UUID
	AgentID *uuid.UUID
	Type    string
	Detail  string
}

// insertActivity writes an audit row inside an already-open transaction so
// the trail commits or rolls back with the state change it describes.
func insertActivity(ctx context.Context, tx pgx.Tx, p ActivityParams) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO crm_activities (lead_id, agent_id, type, detail)
		VALUES ($1, $2, $3, $4)`,
		p.LeadID, p.AgentID, p.Type, p.Detail)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("insert activity failed: %v", err)).WithOp(opAppendActivity)
	}
	return nil
}

// AppendActivity records an audit entry outside any state transition, for
// events that do not change the lead row (broadcast rounds, night holds).
func (r *Repository) AppendActivity(ctx context.Context, p ActivityParams) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opAppendActivity)
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO crm_activities (lead_id, agent_id, type, detail)
		VALUES ($1, $2, $3, $4)`,
		p.LeadID, p.AgentID, p.Type, p.Detail)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("append activity failed: %v", err)).WithOp(opAppendActivity)
	}
	return nil
}

// ListActivities returns a lead's audit trail, newest first.
func (r *Repository) ListActivities(ctx context.Context, leadID uuid.UUID) ([]Activity, error) {
	if r == nil || r.pool == nil {
		return nil, apperr.Internal(errRepoNotConfigured).WithOp(opListActivities)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, agent_id, type, detail, created_at
		FROM crm_activities
		WHERE lead_id = $1
		ORDER BY created_at DESC`, leadID)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("list activities failed: %v", err)).WithOp(opListActivities)
	}
	defer rows.Close()

	activities := make([]Activity, 0)
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.LeadID, &a.AgentID, &a.Type, &a.Detail, &a.CreatedAt); err != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan activity failed: %v", err)).WithOp(opListActivities)
		}
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(fmt.Sprintf("iterate activities failed: %v", err)).WithOp(opListActivities)
	}
	return activities, nil
}
