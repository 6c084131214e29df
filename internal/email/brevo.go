package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"crm_backend/platform/config"
)

// Sender delivers agent-facing email. All methods render an HTML template
// and are safe to call concurrently.
type Sender interface {
	SendLeadBroadcastEmail(ctx context.Context, toEmail, agentName, leadName, segment string, round int, claimURL string) error
	SendLeadAssignedEmail(ctx context.Context, toEmail, agentName, leadName, leadURL string) error
	SendSLABreachEmail(ctx context.Context, toEmail, agentName, leadName string) error
	SendSLAEscalationEmail(ctx context.Context, toEmail, agentName, leadName, leadURL string) error
}

type NoopSender struct{}

func (NoopSender) SendLeadBroadcastEmail(ctx context.Context, toEmail, agentName, leadName, segment string, round int, claimURL string) error {
	return nil
}

func (NoopSender) SendLeadAssignedEmail(ctx context.Context, toEmail, agentName, leadName, leadURL string) error {
	return nil
}

func (NoopSender) SendSLABreachEmail(ctx context.Context, toEmail, agentName, leadName string) error {
	return nil
}

func (NoopSender) SendSLAEscalationEmail(ctx context.Context, toEmail, agentName, leadName, leadURL string) error {
	return nil
}

type BrevoSender struct {
	apiKey    string
	fromName  string
	fromEmail string
	client    *http.Client
}

type brevoEmailRequest struct {
	Sender struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"sender"`
	To []struct {
		Email string `json:"email"`
	} `json:"to"`
	Subject     string `json:"subject"`
	HTMLContent string `json:"htmlContent"`
}

func NewSender(cfg config.EmailConfig) (Sender, error) {
	if !cfg.GetEmailEnabled() {
		return NoopSender{}, nil
	}

	client := &http.Client{Timeout: 10 * time.Second}
	return &BrevoSender{
		apiKey:    cfg.GetBrevoAPIKey(),
		fromName:  cfg.GetEmailFromName(),
		fromEmail: cfg.GetEmailFromAddress(),
		client:    client,
	}, nil
}

func (b *BrevoSender) SendLeadBroadcastEmail(ctx context.Context, toEmail, agentName, leadName, segment string, round int, claimURL string) error {
	subject := fmt.Sprintf(subjectLeadBroadcastFmt, leadName)
	content, err := renderEmailTemplate("lead_broadcast.html", leadBroadcastEmailData{
		baseEmailData: baseEmailData{
			Title:    "Nieuwe lead beschikbaar",
			Heading:  "Nieuwe lead beschikbaar",
			CTALabel: "Lead claimen",
			CTAURL:   claimURL,
		},
		AgentName: agentName,
		LeadName:  leadName,
		Segment:   segment,
		Round:     round,
	})
	if err != nil {
		return err
	}
	return b.send(ctx, toEmail, subject, content)
}

func (b *BrevoSender) SendLeadAssignedEmail(ctx context.Context, toEmail, agentName, leadName, leadURL string) error {
	subject := fmt.Sprintf(subjectLeadAssignedFmt, leadName)
	content, err := renderEmailTemplate("lead_assigned.html", leadAssignedEmailData{
		baseEmailData: baseEmailData{
			Title:    "Lead aan u toegewezen",
			Heading:  "Lead aan u toegewezen",
			CTALabel: "Lead bekijken",
			CTAURL:   leadURL,
		},
		AgentName: agentName,
		LeadName:  leadName,
	})
	if err != nil {
		return err
	}
	return b.send(ctx, toEmail, subject, content)
}

func (b *BrevoSender) SendSLABreachEmail(ctx context.Context, toEmail, agentName, leadName string) error {
	subject := fmt.Sprintf(subjectSLABreachFmt, leadName)
	content, err := renderEmailTemplate("sla_breach.html", slaBreachEmailData{
		baseEmailData: baseEmailData{
			Title:   "Reactietermijn verlopen",
			Heading: "Reactietermijn verlopen",
		},
		AgentName: agentName,
		LeadName:  leadName,
	})
	if err != nil {
		return err
	}
	return b.send(ctx, toEmail, subject, content)
}

func (b *BrevoSender) SendSLAEscalationEmail(ctx context.Context, toEmail, agentName, leadName, leadURL string) error {
	subject := fmt.Sprintf(subjectSLAEscalationFmt, leadName)
	content, err := renderEmailTemplate("sla_escalation.html", slaEscalationEmailData{
		baseEmailData: baseEmailData{
			Title:    "Geëscaleerde lead",
			Heading:  "Geëscaleerde lead aan u toegewezen",
			CTALabel: "Lead bekijken",
			CTAURL:   leadURL,
		},
		AgentName: agentName,
		LeadName:  leadName,
	})
	if err != nil {
		return err
	}
	return b.send(ctx, toEmail, subject, content)
}

func (b *BrevoSender) send(ctx context.Context, toEmail, subject, htmlContent string) error {
	payload := brevoEmailRequest{
		Subject:     subject,
		HTMLContent: htmlContent,
	}
	payload.Sender.Name = b.fromName
	payload.Sender.Email = b.fromEmail
	payload.To = []struct {
		Email string `json:"email"`
	}{{Email: toEmail}}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.brevo.com/v3/smtp/email", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("api-key", b.apiKey)
	req.Header.Set("content-type", "application/json")
	req.Header.Set("accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("brevo send failed: status %d: %s", resp.StatusCode, string(data))
	}

	return nil
}
