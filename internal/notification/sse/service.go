// Package sse provides Server-Sent Events support for real-time agent
// notifications. Claim races are won in seconds, so broadcast alerts are
// pushed over a live stream instead of waiting for the next poll.
package sse

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EventType represents different types of SSE events
type EventType string

const (
	// EventLeadAvailable tells a candidate agent a broadcast lead can be claimed.
	EventLeadAvailable EventType = "lead_available"
	// EventLeadClaimed tells watching agents the claim race is over.
	EventLeadClaimed EventType = "lead_claimed"
	// EventSLAEscalation tells the escalation agent a breached lead landed on them.
	EventSLAEscalation EventType = "sla_escalation"
	// EventNotification pushes a persisted in-app notification.
	EventNotification EventType = "in_app_notification"
)

// Event represents an SSE event payload
type Event struct {
	Type    EventType   `json:"type"`
	LeadID  uuid.UUID   `json:"leadId,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// client represents a connected SSE client
type client struct {
	agentID uuid.UUID
	events  chan Event
}

// Service manages SSE connections and event delivery
type Service struct {
	mu      sync.RWMutex
	clients map[uuid.UUID][]*client // agentID -> clients
}

// New creates a new SSE service
func New() *Service {
	return &Service{
		clients: make(map[uuid.UUID][]*client),
	}
}

func (s *Service) addClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.agentID] = append(s.clients[c.agentID], c)
}

func (s *Service) removeClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clients := s.clients[c.agentID]
	for i, cl := range clients {
		if cl == c {
			s.clients[c.agentID] = append(clients[:i], clients[i+1:]...)
			break
		}
	}
	if len(s.clients[c.agentID]) == 0 {
		delete(s.clients, c.agentID)
	}

	close(c.events)
}

// Publish sends an event to a specific agent's open connections.
func (s *Service) Publish(agentID uuid.UUID, event Event) {
	s.mu.RLock()
	clients := s.clients[agentID]
	s.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.events <- event:
		default:
			log.Printf("SSE: Event buffer full for agent %s", agentID)
		}
	}
}

// Broadcast sends an event to every connected agent. Used when a claim race
// closes so watchers can drop the lead from their board.
func (s *Service) Broadcast(event Event) {
	s.mu.RLock()
	agentIDs := make([]uuid.UUID, 0, len(s.clients))
	for agentID := range s.clients {
		agentIDs = append(agentIDs, agentID)
	}
	s.mu.RUnlock()

	for _, agentID := range agentIDs {
		s.Publish(agentID, event)
	}
}

// Handler returns a Gin handler for SSE connections
func (s *Service) Handler(getAgentID func(*gin.Context) (uuid.UUID, bool)) gin.HandlerFunc {
	return func(c *gin.Context) {
		agentID, ok := getAgentID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		// Set SSE headers
		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")

		cl := &client{
			agentID: agentID,
			events:  make(chan Event, 32),
		}
		s.addClient(cl)
		defer s.removeClient(cl)

		c.SSEvent("connected", gin.H{"agentId": agentID})
		c.Writer.Flush()

		clientGone := c.Request.Context().Done()
		for {
			select {
			case <-clientGone:
				return
			case event, ok := <-cl.events:
				if !ok {
					return
				}
				data, _ := json.Marshal(event)
				c.SSEvent(string(event.Type), string(data))
				c.Writer.Flush()
			}
		}
	}
}

// Close shuts down the SSE service
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, clients := range s.clients {
		for _, c := range clients {
			close(c.events)
		}
	}
	s.clients = make(map[uuid.UUID][]*client)
}
