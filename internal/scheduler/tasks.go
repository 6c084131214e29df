// Package scheduler runs the background work the routing engine depends on:
// claim window expiry, SLA breach detection, night-hold release, lead count
// reconciliation, and notification outbox dispatch. Tasks ride on asynq so
// sweeps survive restarts and multiple workers stay coordinated.
package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	TaskClaimExpirySweep      = "routing.claim_expiry.sweep"
	TaskSLASweep              = "routing.sla.sweep"
	TaskNightRelease          = "leads.night_hold.release"
	TaskCountReconcile        = "agents.lead_counts.reconcile"
	TaskNotificationOutboxDue = "notification.outbox.due"
)

type NotificationOutboxDuePayload struct {
	OutboxID string `json:"outboxId"`
}

func NewClaimExpirySweepTask() *asynq.Task {
	return asynq.NewTask(TaskClaimExpirySweep, nil)
}

func NewSLASweepTask() *asynq.Task {
	return asynq.NewTask(TaskSLASweep, nil)
}

func NewNightReleaseTask() *asynq.Task {
	return asynq.NewTask(TaskNightRelease, nil)
}

func NewCountReconcileTask() *asynq.Task {
	return asynq.NewTask(TaskCountReconcile, nil)
}

func NewNotificationOutboxDueTask(payload NotificationOutboxDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationOutboxDue, data), nil
}

func ParseNotificationOutboxDuePayload(task *asynq.Task) (NotificationOutboxDuePayload, error) {
	var payload NotificationOutboxDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return NotificationOutboxDuePayload{}, err
	}
	return payload, nil
}
