package ingest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"crm_backend/internal/leads/service"
	"crm_backend/platform/httpkit"
	"crm_backend/platform/logger"
	"crm_backend/platform/validator"
)

// SubmitLeadRequest is the payload external intake forms post. Everything
// beyond name, email, and language feeds scoring and routing.
type SubmitLeadRequest struct {
	FullName     string `json:"fullName" binding:"required" validate:"required,min=2,max=160"`
	Email        string `json:"email" binding:"required" validate:"required,email"`
	Phone        string `json:"phone" validate:"omitempty,max=32"`
	Message      string `json:"message" validate:"omitempty,max=4000"`
	Language     string `json:"language" validate:"omitempty,min=2,max=8"`
	Source       string `json:"source" validate:"omitempty,max=64"`
	PageType     string `json:"pageType" validate:"omitempty,max=64"`
	PageSlug     string `json:"pageSlug" validate:"omitempty,max=128"`
	BudgetRange  string `json:"budgetRange" validate:"omitempty,max=64"`
	Timeframe    string `json:"timeframe" validate:"omitempty,max=64"`
	PropertyType string `json:"propertyType" validate:"omitempty,max=64"`

	IntakeComplete     bool     `json:"intakeComplete"`
	QuestionsAnswered  int      `json:"questionsAnswered" validate:"omitempty,min=0,max=50"`
	LocationPreference []string `json:"locationPreference" validate:"omitempty,max=20,dive,max=120"`
	PropertyPurpose    string   `json:"propertyPurpose" validate:"omitempty,max=64"`
	BedroomsDesired    string   `json:"bedroomsDesired" validate:"omitempty,max=32"`
	SeaViewImportance  string   `json:"seaViewImportance" validate:"omitempty,max=32"`
}

// CreateKeyRequest names a new ingest API key.
type CreateKeyRequest struct {
	Name string `json:"name" binding:"required" validate:"required,min=2,max=120"`
}

type Handler struct {
	leads *service.Service
	repo  *Repository
	val   *validator.Validator
	log   *logger.Logger
}

func NewHandler(leads *service.Service, repo *Repository, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{leads: leads, repo: repo, val: val, log: log}
}

// SubmitLead ingests a lead from an external site.
// POST /api/v1/public/leads
func (h *Handler) SubmitLead(c *gin.Context) {
	var req SubmitLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	lead, err := h.leads.Ingest(c.Request.Context(), service.IngestParams{
		FullName:           req.FullName,
		Email:              req.Email,
		Phone:              req.Phone,
		Message:            req.Message,
		Language:           req.Language,
		Source:             req.Source,
		PageType:           req.PageType,
		PageSlug:           req.PageSlug,
		BudgetRange:        req.BudgetRange,
		Timeframe:          req.Timeframe,
		PropertyType:       req.PropertyType,
		IntakeComplete:     req.IntakeComplete,
		QuestionsAnswered:  req.QuestionsAnswered,
		LocationPreference: req.LocationPreference,
		PropertyPurpose:    req.PropertyPurpose,
		BedroomsDesired:    req.BedroomsDesired,
		SeaViewImportance:  req.SeaViewImportance,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	// External callers get an acknowledgment, not the full internal record.
	httpkit.JSON(c, http.StatusCreated, gin.H{
		"id":      lead.ID,
		"segment": lead.Segment,
		"status":  lead.Status,
	})
}

// CreateKey issues a new ingest API key. The plaintext key appears in this
// response only.
// POST /api/v1/admin/ingest/keys
func (h *Handler) CreateKey(c *gin.Context) {
	var req CreateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	plaintext, hash, prefix, err := GenerateAPIKey()
	if err != nil {
		httpkit.Error(c, http.StatusInternalServerError, "key generation failed", nil)
		return
	}
	key, err := h.repo.Create(c.Request.Context(), req.Name, hash, prefix)
	if err != nil {
		h.log.Error("create ingest key failed", "error", err)
		httpkit.Error(c, http.StatusInternalServerError, "create key failed", nil)
		return
	}

	httpkit.JSON(c, http.StatusCreated, gin.H{"key": key, "plaintext": plaintext})
}

// ListKeys returns all ingest API keys without hashes.
// GET /api/v1/admin/ingest/keys
func (h *Handler) ListKeys(c *gin.Context) {
	keys, err := h.repo.List(c.Request.Context())
	if err != nil {
		h.log.Error("list ingest keys failed", "error", err)
		httpkit.Error(c, http.StatusInternalServerError, "list keys failed", nil)
		return
	}
	httpkit.OK(c, gin.H{"keys": keys})
}

// RevokeKey deactivates an ingest API key.
// DELETE /api/v1/admin/ingest/keys/:id
func (h *Handler) RevokeKey(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid key ID", nil)
		return
	}
	if err := h.repo.Revoke(c.Request.Context(), id); err != nil {
		if errors.Is(err, ErrAPIKeyNotFound) {
			httpkit.Error(c, http.StatusNotFound, "key not found", nil)
			return
		}
		h.log.Error("revoke ingest key failed", "error", err)
		httpkit.Error(c, http.StatusInternalServerError, "revoke key failed", nil)
		return
	}
	httpkit.OK(c, gin.H{"revoked": true})
}
