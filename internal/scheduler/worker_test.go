package scheduler

import (
	"context"
	"errors"
	"testing"

	"crm_backend/internal/events"
	"crm_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type fakeEngine struct {
	claimSweeps int
	slaSweeps   int
	releases    int
	err         error
}

func (f *fakeEngine) AdvanceExpiredWindows(context.Context) (int, int, error) {
	f.claimSweeps++
	return 0, 0, f.err
}

func (f *fakeEngine) SLASweep(context.Context) (int, int, error) {
	f.slaSweeps++
	return 0, 0, f.err
}

func (f *fakeEngine) ReleaseDueLeads(context.Context) (int, int, error) {
	f.releases++
	return 0, 0, f.err
}

type fakeCounts struct {
	corrected int64
	calls     int
}

func (f *fakeCounts) ReconcileLeadCounts(context.Context) (int64, error) {
	f.calls++
	return f.corrected, nil
}

type recordingBus struct {
	synced []events.Event
}

func (b *recordingBus) Publish(context.Context, events.Event) {}

func (b *recordingBus) PublishSync(_ context.Context, e events.Event) error {
	b.synced = append(b.synced, e)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func newTestWorker(engine SweepEngine, agents AgentCounts, bus events.Bus) *Worker {
	return &Worker{
		engine: engine,
		agents: agents,
		bus:    bus,
		log:    logger.New("development"),
	}
}

func TestSweepHandlersDriveTheEngine(t *testing.T) {
	engine := &fakeEngine{}
	w := newTestWorker(engine, nil, nil)
	ctx := context.Background()

	if err := w.handleClaimExpirySweep(ctx, NewClaimExpirySweepTask()); err != nil {
		t.Fatalf("claim expiry sweep: %v", err)
	}
	if err := w.handleSLASweep(ctx, NewSLASweepTask()); err != nil {
		t.Fatalf("sla sweep: %v", err)
	}
	if err := w.handleNightRelease(ctx, NewNightReleaseTask()); err != nil {
		t.Fatalf("night release: %v", err)
	}

	if engine.claimSweeps != 1 || engine.slaSweeps != 1 || engine.releases != 1 {
		t.Errorf("expected one call each, got claim=%d sla=%d release=%d",
			engine.claimSweeps, engine.slaSweeps, engine.releases)
	}
}

func TestSweepHandlerPropagatesEngineError(t *testing.T) {
	engine := &fakeEngine{err: errors.New("pool exhausted")}
	w := newTestWorker(engine, nil, nil)

	if err := w.handleSLASweep(context.Background(), NewSLASweepTask()); err == nil {
		t.Fatal("expected error so asynq retries the sweep")
	}
}

func TestCountReconcileHandler(t *testing.T) {
	counts := &fakeCounts{corrected: 3}
	w := newTestWorker(nil, counts, nil)

	if err := w.handleCountReconcile(context.Background(), NewCountReconcileTask()); err != nil {
		t.Fatalf("count reconcile: %v", err)
	}
	if counts.calls != 1 {
		t.Errorf("expected one reconcile call, got %d", counts.calls)
	}
}

func TestOutboxDueHandlerPublishesSync(t *testing.T) {
	bus := &recordingBus{}
	w := newTestWorker(nil, nil, bus)

	outboxID := uuid.New()
	task, err := NewNotificationOutboxDueTask(NotificationOutboxDuePayload{OutboxID: outboxID.String()})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}

	if err := w.handleNotificationOutboxDue(context.Background(), task); err != nil {
		t.Fatalf("outbox due: %v", err)
	}
	if len(bus.synced) != 1 {
		t.Fatalf("expected one sync publish, got %d", len(bus.synced))
	}
	due, ok := bus.synced[0].(events.NotificationOutboxDue)
	if !ok {
		t.Fatalf("unexpected event type %T", bus.synced[0])
	}
	if due.OutboxID != outboxID {
		t.Errorf("got outbox id %s, want %s", due.OutboxID, outboxID)
	}
}

func TestOutboxDueHandlerRejectsBadPayload(t *testing.T) {
	w := newTestWorker(nil, nil, &recordingBus{})

	task := asynq.NewTask(TaskNotificationOutboxDue, []byte("{"))
	if err := w.handleNotificationOutboxDue(context.Background(), task); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
