package notification

import (
	"context"
	"testing"
	"time"

	"crm_backend/internal/events"
	"crm_backend/platform/logger"

	"github.com/google/uuid"
)

type testNotificationConfig struct{}

func (testNotificationConfig) GetAppBaseURL() string { return "https://app.example.com/" }

type testSender struct {
	broadcastCalls  int
	assignedCalls   int
	breachCalls     int
	escalationCalls int
}

func (s *testSender) SendLeadBroadcastEmail(context.Context, string, string, string, string, int, string) error {
	s.broadcastCalls++
	return nil
}

func (s *testSender) SendLeadAssignedEmail(context.Context, string, string, string, string) error {
	s.assignedCalls++
	return nil
}

func (s *testSender) SendSLABreachEmail(context.Context, string, string, string) error {
	s.breachCalls++
	return nil
}

func (s *testSender) SendSLAEscalationEmail(context.Context, string, string, string, string) error {
	s.escalationCalls++
	return nil
}

func newTestModule() (*Module, *testSender) {
	sender := &testSender{}
	m := NewModule(nil, sender, testNotificationConfig{}, logger.New("development"))
	return m, sender
}

func TestComputeOutboxRetryDelayBacksOffAndCaps(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Minute},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{4, 8 * time.Minute},
		{10, 60 * time.Minute},
	}
	for _, tc := range cases {
		if got := computeOutboxRetryDelay(tc.attempt); got != tc.want {
			t.Errorf("attempt %d: got %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestBuildLeadURLTrimsTrailingSlash(t *testing.T) {
	m, _ := newTestModule()
	id := uuid.New()

	got := m.buildLeadURL(id)
	want := "https://app.example.com/leads/" + id.String()
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestHandleLeadBroadcastSurvivesStorageOutage(t *testing.T) {
	m, sender := newTestModule()

	err := m.handleLeadBroadcast(context.Background(), events.LeadBroadcast{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    uuid.New(),
		LeadName:  "Jan de Vries",
		Segment:   "Hot",
		Round:     1,
		Candidates: []events.Candidate{
			{AgentID: uuid.New(), Email: "agent@example.com", Name: "Agent"},
		},
	})
	if err != nil {
		t.Fatalf("handleLeadBroadcast returned error: %v", err)
	}
	// Emails go through the outbox, never straight to the sender.
	if sender.broadcastCalls != 0 {
		t.Errorf("expected no direct sends, got %d", sender.broadcastCalls)
	}
}

func TestHandleLeadClaimedIsFireAndForget(t *testing.T) {
	m, _ := newTestModule()

	err := m.Handle(context.Background(), events.LeadClaimed{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    uuid.New(),
		AgentID:   uuid.New(),
		Round:     2,
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
}
