package email

import (
	"strings"
	"testing"
)

func TestRenderLeadBroadcastTemplate(t *testing.T) {
	html, err := renderEmailTemplate("lead_broadcast.html", leadBroadcastEmailData{
		baseEmailData: baseEmailData{
			Title:    "Nieuwe lead beschikbaar",
			Heading:  "Nieuwe lead beschikbaar",
			CTALabel: "Lead claimen",
			CTAURL:   "https://app.example.com/leads/abc",
		},
		AgentName: "Sanne",
		LeadName:  "Jan de Vries",
		Segment:   "Hot",
		Round:     2,
	})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	for _, want := range []string{"Sanne", "Jan de Vries", "ronde 2", "Lead claimen", "https://app.example.com/leads/abc"} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered template missing %q", want)
		}
	}
}

func TestRenderFirstRoundBroadcastOmitsRound(t *testing.T) {
	html, err := renderEmailTemplate("lead_broadcast.html", leadBroadcastEmailData{
		baseEmailData: baseEmailData{Title: "t", Heading: "h"},
		AgentName:     "Sanne",
		LeadName:      "Jan",
		Segment:       "Warm",
		Round:         1,
	})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if strings.Contains(html, "ronde") {
		t.Error("first-round broadcast should not mention a round")
	}
}

func TestRenderAllTemplates(t *testing.T) {
	cases := []struct {
		name string
		data any
	}{
		{"lead_assigned.html", leadAssignedEmailData{
			baseEmailData: baseEmailData{Title: "t", Heading: "h", CTALabel: "c", CTAURL: "u"},
			AgentName:     "Sanne", LeadName: "Jan",
		}},
		{"sla_breach.html", slaBreachEmailData{
			baseEmailData: baseEmailData{Title: "t", Heading: "h"},
			AgentName:     "Sanne", LeadName: "Jan",
		}},
		{"sla_escalation.html", slaEscalationEmailData{
			baseEmailData: baseEmailData{Title: "t", Heading: "h", CTALabel: "c", CTAURL: "u"},
			AgentName:     "Sanne", LeadName: "Jan",
		}},
	}
	for _, tc := range cases {
		if _, err := renderEmailTemplate(tc.name, tc.data); err != nil {
			t.Errorf("render %s failed: %v", tc.name, err)
		}
	}
}
