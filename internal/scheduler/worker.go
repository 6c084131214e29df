package scheduler

import (
	"context"
	"fmt"

	"crm_backend/internal/events"
	"crm_backend/platform/config"
	"crm_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// SweepEngine is the slice of the routing engine the worker drives.
type SweepEngine interface {
	AdvanceExpiredWindows(ctx context.Context) (examined, acted int, err error)
	SLASweep(ctx context.Context) (examined, acted int, err error)
	ReleaseDueLeads(ctx context.Context) (examined, acted int, err error)
}

// AgentCounts reconciles the denormalized active lead counters.
type AgentCounts interface {
	ReconcileLeadCounts(ctx context.Context) (int64, error)
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	engine SweepEngine
	agents AgentCounts
	bus    events.Bus
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, engine SweepEngine, agents AgentCounts, bus events.Bus, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		engine: engine,
		agents: agents,
		bus:    bus,
		log:    log,
	}

	mux.HandleFunc(TaskClaimExpirySweep, w.handleClaimExpirySweep)
	mux.HandleFunc(TaskSLASweep, w.handleSLASweep)
	mux.HandleFunc(TaskNightRelease, w.handleNightRelease)
	mux.HandleFunc(TaskCountReconcile, w.handleCountReconcile)
	mux.HandleFunc(TaskNotificationOutboxDue, w.handleNotificationOutboxDue)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.server == nil {
		return nil
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
		return err
	}
	return nil
}

func (w *Worker) handleClaimExpirySweep(ctx context.Context, _ *asynq.Task) error {
	if w.engine == nil {
		return nil
	}
	_, _, err := w.engine.AdvanceExpiredWindows(ctx)
	return err
}

func (w *Worker) handleSLASweep(ctx context.Context, _ *asynq.Task) error {
	if w.engine == nil {
		return nil
	}
	_, _, err := w.engine.SLASweep(ctx)
	return err
}

func (w *Worker) handleNightRelease(ctx context.Context, _ *asynq.Task) error {
	if w.engine == nil {
		return nil
	}
	_, _, err := w.engine.ReleaseDueLeads(ctx)
	return err
}

func (w *Worker) handleCountReconcile(ctx context.Context, _ *asynq.Task) error {
	if w.agents == nil {
		return nil
	}
	corrected, err := w.agents.ReconcileLeadCounts(ctx)
	if err != nil {
		return err
	}
	if corrected > 0 {
		w.log.Info("agent lead counts reconciled", "corrected", corrected)
	}
	return nil
}

func (w *Worker) handleNotificationOutboxDue(ctx context.Context, task *asynq.Task) error {
	if w.bus == nil {
		return nil
	}

	payload, err := ParseNotificationOutboxDuePayload(task)
	if err != nil {
		return err
	}

	outboxID, err := uuid.Parse(payload.OutboxID)
	if err != nil {
		return err
	}

	return w.bus.PublishSync(ctx, events.NotificationOutboxDue{
		BaseEvent: events.NewBaseEvent(),
		OutboxID:  outboxID,
	})
}
