package email

import (
	"context"
	"fmt"
	"net"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// SMTPSender implements the Sender interface using a direct SMTP connection
// via go-mail. It renders the same HTML templates as BrevoSender but delivers
// through a self-hosted mail server.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewSMTPSender creates a new SMTPSender with the given SMTP credentials.
func NewSMTPSender(host string, port int, username, password, fromEmail, fromName string) *SMTPSender {
	return &SMTPSender{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		fromName:  fromName,
		fromEmail: fromEmail,
	}
}

func (s *SMTPSender) send(ctx context.Context, toEmail, subject, htmlContent string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlContent)

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

func (s *SMTPSender) SendLeadBroadcastEmail(ctx context.Context, toEmail, agentName, leadName, segment string, round int, claimURL string) error {
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
	return s.send(ctx, toEmail, subject, content)
}

func (s *SMTPSender) SendLeadAssignedEmail(ctx context.Context, toEmail, agentName, leadName, leadURL string) error {
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
	return s.send(ctx, toEmail, subject, content)
}

func (s *SMTPSender) SendSLABreachEmail(ctx context.Context, toEmail, agentName, leadName string) error {
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
	return s.send(ctx, toEmail, subject, content)
}

func (s *SMTPSender) SendSLAEscalationEmail(ctx context.Context, toEmail, agentName, leadName, leadURL string) error {
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
	return s.send(ctx, toEmail, subject, content)
}
