// Package notification fans lead lifecycle events out to agents: persisted
// in-app notifications, live SSE pushes, and emails delivered through a
// durable outbox with retry.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"crm_backend/internal/email"
	"crm_backend/internal/events"
	apphttp "crm_backend/internal/http"
	"crm_backend/internal/notification/handler"
	"crm_backend/internal/notification/inapp"
	"crm_backend/internal/notification/outbox"
	"crm_backend/internal/notification/sse"
	"crm_backend/platform/config"
	"crm_backend/platform/httpkit"
	"crm_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	outboxKindEmail = "email"

	templateLeadBroadcast = "lead_broadcast"
	templateLeadAssigned  = "lead_assigned"
	templateSLABreach     = "sla_breach"
	templateSLAEscalation = "sla_escalation"

	maxOutboxRetryAttempts = 5
	outboxRetryBaseDelay   = time.Minute
	outboxRetryMaxDelay    = 60 * time.Minute
)

// emailOutboxPayload is the persisted payload for every email template.
type emailOutboxPayload struct {
	ToEmail   string    `json:"toEmail"`
	AgentName string    `json:"agentName"`
	LeadID    uuid.UUID `json:"leadId"`
	LeadName  string    `json:"leadName"`
	Segment   string    `json:"segment,omitempty"`
	Round     int       `json:"round,omitempty"`
}

type Module struct {
	inapp   *inapp.Service
	sse     *sse.Service
	outbox  *outbox.Repository
	sender  email.Sender
	handler *handler.HTTPHandler
	bus     events.Bus
	cfg     config.NotificationConfig
	log     *logger.Logger
}

func NewModule(pool *pgxpool.Pool, sender email.Sender, cfg config.NotificationConfig, log *logger.Logger) *Module {
	inappRepo := inapp.NewRepository(pool)
	inappSvc := inapp.NewService(inappRepo, log)
	sseSvc := sse.New()
	inappSvc.SetSSE(sseSvc)

	return &Module{
		inapp:   inappSvc,
		sse:     sseSvc,
		outbox:  outbox.New(pool),
		sender:  sender,
		handler: handler.NewHTTPHandler(inappSvc),
		cfg:     cfg,
		log:     log,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "notification"
}

// Outbox exposes the outbox repository for the scheduler's dispatcher.
func (m *Module) Outbox() *outbox.Repository {
	return m.outbox
}

// RegisterRoutes mounts the agent notification feed and the SSE stream.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	rg := ctx.Protected.Group("/notifications")
	m.handler.RegisterRoutes(rg)

	ctx.Protected.GET("/notifications/stream", m.sse.Handler(func(c *gin.Context) (uuid.UUID, bool) {
		identity := httpkit.GetIdentity(c)
		if identity == nil || !identity.IsAuthenticated() {
			return uuid.Nil, false
		}
		return identity.UserID(), true
	}))
}

// RegisterHandlers subscribes to all relevant domain events on the event bus.
func (m *Module) RegisterHandlers(bus events.Bus) {
	m.bus = bus

	bus.Subscribe(events.LeadBroadcast{}.EventName(), m)
	bus.Subscribe(events.LeadAssigned{}.EventName(), m)
	bus.Subscribe(events.LeadReassigned{}.EventName(), m)
	bus.Subscribe(events.LeadClaimed{}.EventName(), m)
	bus.Subscribe(events.LeadSLABreached{}.EventName(), m)
	bus.Subscribe(events.NotificationOutboxDue{}.EventName(), m)

	m.log.Info("notification module registered event handlers")
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.LeadBroadcast:
		return m.handleLeadBroadcast(ctx, e)
	case events.LeadAssigned:
		return m.handleLeadAssigned(ctx, e)
	case events.LeadReassigned:
		return m.handleLeadReassigned(ctx, e)
	case events.LeadClaimed:
		return m.handleLeadClaimed(ctx, e)
	case events.LeadSLABreached:
		return m.handleLeadSLABreached(ctx, e)
	case events.NotificationOutboxDue:
		return m.handleNotificationOutboxDue(ctx, e)
	default:
		m.log.Warn("unhandled event type", "event", event.EventName())
		return nil
	}
}

// Close shuts down open SSE streams.
func (m *Module) Close() {
	m.sse.Close()
}

func (m *Module) handleLeadBroadcast(ctx context.Context, e events.LeadBroadcast) error {
	title := "Nieuwe lead beschikbaar"
	body := fmt.Sprintf("%s (segment %s)", e.LeadName, e.Segment)
	if e.Round > 1 {
		body = fmt.Sprintf("%s (segment %s, ronde %d)", e.LeadName, e.Segment, e.Round)
	}

	for _, cand := range e.Candidates {
		if err := m.inapp.Send(ctx, inapp.SendParams{
			AgentID: cand.AgentID,
			LeadID:  e.LeadID,
			Type:    inapp.TypeNewLeadAvailable,
			Title:   title,
			Body:    body,
		}); err != nil {
			m.log.Error("broadcast in-app notification failed", "error", err, "leadId", e.LeadID, "agentId", cand.AgentID)
		}

		m.sse.Publish(cand.AgentID, sse.Event{
			Type:    sse.EventLeadAvailable,
			LeadID:  e.LeadID,
			Message: title,
			Data: map[string]any{
				"leadName": e.LeadName,
				"segment":  e.Segment,
				"round":    e.Round,
			},
		})

		if cand.Email == "" {
			continue
		}
		m.enqueueEmail(ctx, templateLeadBroadcast, emailOutboxPayload{
			ToEmail:   cand.Email,
			AgentName: cand.Name,
			LeadID:    e.LeadID,
			LeadName:  e.LeadName,
			Segment:   e.Segment,
			Round:     e.Round,
		})
	}

	return nil
}

func (m *Module) handleLeadAssigned(ctx context.Context, e events.LeadAssigned) error {
	if err := m.inapp.Send(ctx, inapp.SendParams{
		AgentID: e.AgentID,
		LeadID:  e.LeadID,
		Type:    inapp.TypeNewLeadAvailable,
		Title:   "Lead aan u toegewezen",
		Body:    e.LeadName,
	}); err != nil {
		m.log.Error("assignment in-app notification failed", "error", err, "leadId", e.LeadID, "agentId", e.AgentID)
	}

	if e.AgentEmail != "" {
		m.enqueueEmail(ctx, templateLeadAssigned, emailOutboxPayload{
			ToEmail:   e.AgentEmail,
			AgentName: e.AgentName,
			LeadID:    e.LeadID,
			LeadName:  e.LeadName,
		})
	}

	return nil
}

// handleLeadReassigned tells the receiving agent an admin moved a lead onto
// their plate. The previous holder learns it the next time their board
// refreshes; the claimed broadcast below covers live watchers.
func (m *Module) handleLeadReassigned(ctx context.Context, e events.LeadReassigned) error {
	if err := m.inapp.Send(ctx, inapp.SendParams{
		AgentID: e.ToAgentID,
		LeadID:  e.LeadID,
		Type:    inapp.TypeLeadReassigned,
		Title:   "Lead opnieuw aan u toegewezen",
		Body:    fmt.Sprintf("%s (%s)", e.LeadName, strings.ReplaceAll(e.Reason, "_", " ")),
	}); err != nil {
		m.log.Error("reassignment in-app notification failed", "error", err, "leadId", e.LeadID, "agentId", e.ToAgentID)
	}

	m.sse.Broadcast(sse.Event{
		Type:    sse.EventLeadClaimed,
		LeadID:  e.LeadID,
		Message: "Lead opnieuw toegewezen",
		Data: map[string]any{
			"agentId": e.ToAgentID,
			"reason":  e.Reason,
		},
	})

	if e.AgentEmail != "" {
		m.enqueueEmail(ctx, templateLeadAssigned, emailOutboxPayload{
			ToEmail:   e.AgentEmail,
			AgentName: e.AgentName,
			LeadID:    e.LeadID,
			LeadName:  e.LeadName,
		})
	}

	return nil
}

// handleLeadClaimed closes the claim race for everyone watching: the lead
// disappears from other agents' boards the moment someone wins.
func (m *Module) handleLeadClaimed(ctx context.Context, e events.LeadClaimed) error {
	m.sse.Broadcast(sse.Event{
		Type:   sse.EventLeadClaimed,
		LeadID: e.LeadID,
		Data: map[string]any{
			"agentId": e.AgentID,
			"round":   e.Round,
		},
	})
	return nil
}

func (m *Module) handleLeadSLABreached(ctx context.Context, e events.LeadSLABreached) error {
	if err := m.inapp.Send(ctx, inapp.SendParams{
		AgentID: e.OriginalAgentID,
		LeadID:  e.LeadID,
		Type:    inapp.TypeSLABreach,
		Title:   "Reactietermijn verlopen",
		Body:    fmt.Sprintf("%s is opnieuw toegewezen", e.LeadName),
	}); err != nil {
		m.log.Error("sla breach in-app notification failed", "error", err, "leadId", e.LeadID, "agentId", e.OriginalAgentID)
	}

	if err := m.inapp.Send(ctx, inapp.SendParams{
		AgentID: e.EscalationAgentID,
		LeadID:  e.LeadID,
		Type:    inapp.TypeSLAEscalation,
		Title:   "Geëscaleerde lead aan u toegewezen",
		Body:    e.LeadName,
	}); err != nil {
		m.log.Error("sla escalation in-app notification failed", "error", err, "leadId", e.LeadID, "agentId", e.EscalationAgentID)
	}

	m.sse.Publish(e.EscalationAgentID, sse.Event{
		Type:    sse.EventSLAEscalation,
		LeadID:  e.LeadID,
		Message: "Geëscaleerde lead aan u toegewezen",
		Data:    map[string]any{"leadName": e.LeadName},
	})

	if e.OriginalAgentEmail != "" {
		m.enqueueEmail(ctx, templateSLABreach, emailOutboxPayload{
			ToEmail:   e.OriginalAgentEmail,
			AgentName: e.OriginalAgentName,
			LeadID:    e.LeadID,
			LeadName:  e.LeadName,
		})
	}
	if e.EscalationAgentEmail != "" {
		m.enqueueEmail(ctx, templateSLAEscalation, emailOutboxPayload{
			ToEmail:   e.EscalationAgentEmail,
			AgentName: e.EscalationAgentName,
			LeadID:    e.LeadID,
			LeadName:  e.LeadName,
		})
	}

	return nil
}

// enqueueEmail persists an outbox record and nudges processing right away.
// The scheduler's dispatcher sweeps up anything the nudge misses.
func (m *Module) enqueueEmail(ctx context.Context, template string, payload emailOutboxPayload) {
	id, err := m.outbox.Insert(ctx, outbox.InsertParams{
		Kind:     outboxKindEmail,
		Template: template,
		Payload:  payload,
	})
	if err != nil {
		m.log.Error("enqueue outbox email failed", "error", err, "template", template, "leadId", payload.LeadID)
		return
	}
	if m.bus != nil {
		m.bus.Publish(ctx, events.NotificationOutboxDue{
			BaseEvent: events.NewBaseEvent(),
			OutboxID:  id,
		})
	}
}

func (m *Module) handleNotificationOutboxDue(ctx context.Context, e events.NotificationOutboxDue) error {
	rec, process, err := m.prepareOutboxRecord(ctx, e.OutboxID)
	if err != nil || !process {
		if err != nil {
			m.log.Error("failed to prepare outbox record", "outboxId", e.OutboxID, "error", err)
		}
		return err
	}

	if rec.Kind != outboxKindEmail {
		m.markOutboxUnsupported(ctx, rec)
		return nil
	}

	var payload emailOutboxPayload
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		_ = m.outbox.MarkFailed(ctx, rec.ID, fmt.Sprintf("unmarshal payload: %v", err))
		return nil
	}

	var sendErr error
	switch rec.Template {
	case templateLeadBroadcast:
		sendErr = m.sender.SendLeadBroadcastEmail(ctx, payload.ToEmail, payload.AgentName,
			payload.LeadName, payload.Segment, payload.Round, m.buildLeadURL(payload.LeadID))
	case templateLeadAssigned:
		sendErr = m.sender.SendLeadAssignedEmail(ctx, payload.ToEmail, payload.AgentName,
			payload.LeadName, m.buildLeadURL(payload.LeadID))
	case templateSLABreach:
		sendErr = m.sender.SendSLABreachEmail(ctx, payload.ToEmail, payload.AgentName, payload.LeadName)
	case templateSLAEscalation:
		sendErr = m.sender.SendSLAEscalationEmail(ctx, payload.ToEmail, payload.AgentName,
			payload.LeadName, m.buildLeadURL(payload.LeadID))
	default:
		m.markOutboxUnsupported(ctx, rec)
		return nil
	}

	if sendErr != nil {
		m.handleOutboxDeliveryError(ctx, rec, sendErr)
		return sendErr
	}

	if err := m.outbox.MarkSucceeded(ctx, rec.ID); err != nil {
		m.log.Error("mark outbox succeeded failed", "outboxId", rec.ID.String(), "error", err)
	}
	return nil
}

func (m *Module) prepareOutboxRecord(ctx context.Context, outboxID uuid.UUID) (outbox.Record, bool, error) {
	rec, err := m.outbox.GetByID(ctx, outboxID)
	if err != nil {
		return outbox.Record{}, false, err
	}
	if rec.Status == outbox.StatusSucceeded {
		return rec, false, nil
	}
	if err := m.outbox.MarkProcessing(ctx, rec.ID); err != nil {
		return outbox.Record{}, false, err
	}
	return rec, true, nil
}

func (m *Module) markOutboxUnsupported(ctx context.Context, rec outbox.Record) {
	_ = m.outbox.MarkFailed(ctx, rec.ID, fmt.Sprintf("unsupported outbox record: kind=%s template=%s", rec.Kind, rec.Template))
	m.log.Warn("unsupported outbox record", "outboxId", rec.ID.String(), "kind", rec.Kind, "template", rec.Template)
}

func (m *Module) handleOutboxDeliveryError(ctx context.Context, rec outbox.Record, deliveryErr error) {
	attempt := rec.Attempts + 1
	if attempt >= maxOutboxRetryAttempts {
		_ = m.outbox.MarkFailed(ctx, rec.ID, deliveryErr.Error())
		m.log.Warn("notification outbox exhausted retries",
			"outboxId", rec.ID.String(),
			"template", rec.Template,
			"attempt", attempt,
			"maxAttempts", maxOutboxRetryAttempts,
			"error", deliveryErr,
		)
		return
	}

	retryAt := time.Now().UTC().Add(computeOutboxRetryDelay(attempt))
	if err := m.outbox.ScheduleRetry(ctx, rec.ID, retryAt, deliveryErr.Error()); err != nil {
		_ = m.outbox.MarkFailed(ctx, rec.ID, deliveryErr.Error())
		m.log.Error("notification outbox retry scheduling failed; marked failed",
			"outboxId", rec.ID.String(),
			"attempt", attempt,
			"error", err,
		)
		return
	}

	m.log.Warn("notification outbox scheduled retry",
		"outboxId", rec.ID.String(),
		"template", rec.Template,
		"attempt", attempt,
		"maxAttempts", maxOutboxRetryAttempts,
		"retryAt", retryAt,
		"error", deliveryErr,
	)
}

func computeOutboxRetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := outboxRetryBaseDelay << (attempt - 1)
	if delay > outboxRetryMaxDelay {
		return outboxRetryMaxDelay
	}
	return delay
}

func (m *Module) buildLeadURL(leadID uuid.UUID) string {
	return strings.TrimRight(m.cfg.GetAppBaseURL(), "/") + "/leads/" + leadID.String()
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
