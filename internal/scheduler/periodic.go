package scheduler

import (
	"context"
	"fmt"

	"crm_backend/platform/config"
	"crm_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Periodic registers the recurring sweeps on an asynq scheduler. Cron specs
// come from configuration so operators can tune sweep cadence per deploy.
type Periodic struct {
	scheduler *asynq.Scheduler
	log       *logger.Logger
}

func NewPeriodic(cfg config.SchedulerConfig, log *logger.Logger) (*Periodic, error) {
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

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{})

	entries := []struct {
		spec string
		task *asynq.Task
	}{
		{cfg.GetClaimExpirySweepSpec(), NewClaimExpirySweepTask()},
		{cfg.GetSLASweepSpec(), NewSLASweepTask()},
		{cfg.GetNightReleaseSpec(), NewNightReleaseTask()},
		{cfg.GetCountReconcileSpec(), NewCountReconcileTask()},
	}
	for _, entry := range entries {
		if entry.spec == "" {
			continue
		}
		if _, err := scheduler.Register(entry.spec, entry.task, asynq.Queue(queue)); err != nil {
			return nil, fmt.Errorf("register %s (%q): %w", entry.task.Type(), entry.spec, err)
		}
		log.Info("registered periodic task", "task", entry.task.Type(), "spec", entry.spec)
	}

	return &Periodic{scheduler: scheduler, log: log}, nil
}

// Run blocks until the scheduler stops. Cancel the context to shut down.
func (p *Periodic) Run(ctx context.Context) error {
	if p == nil || p.scheduler == nil {
		return nil
	}

	go func() {
		<-ctx.Done()
		p.scheduler.Shutdown()
	}()

	if err := p.scheduler.Run(); err != nil {
		p.log.Error("periodic scheduler stopped", "error", err)
		return err
	}
	return nil
}
