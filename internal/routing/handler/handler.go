// Package handler exposes routing rule and round-robin pool administration
// over HTTP.
package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"crm_backend/internal/routing/repository"
	"crm_backend/internal/routing/service"
	"crm_backend/internal/routing/transport"
	"crm_backend/platform/httpkit"
	"crm_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid ID"

	defaultClaimWindowMinutes = 15
)

type Handler struct {
	admin *service.Admin
	val   *validator.Validator
}

func New(admin *service.Admin, val *validator.Validator) *Handler {
	return &Handler{admin: admin, val: val}
}

// ListRules returns every routing rule, highest priority first.
// GET /api/v1/admin/routing/rules
func (h *Handler) ListRules(c *gin.Context) {
	rules, err := h.admin.ListRules(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"rules": rules})
}

// GetRule returns one routing rule.
// GET /api/v1/admin/routing/rules/:id
func (h *Handler) GetRule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	rule, err := h.admin.GetRule(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, rule)
}

// CreateRule adds a routing rule.
// POST /api/v1/admin/routing/rules
func (h *Handler) CreateRule(c *gin.Context) {
	params, ok := h.bindRule(c)
	if !ok {
		return
	}
	rule, err := h.admin.CreateRule(c.Request.Context(), params)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, rule)
}

// UpdateRule replaces a routing rule.
// PUT /api/v1/admin/routing/rules/:id
func (h *Handler) UpdateRule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	params, ok := h.bindRule(c)
	if !ok {
		return
	}
	rule, err := h.admin.UpdateRule(c.Request.Context(), id, params)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, rule)
}

// DeleteRule removes a routing rule.
// DELETE /api/v1/admin/routing/rules/:id
func (h *Handler) DeleteRule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	if httpkit.HandleError(c, h.admin.DeleteRule(c.Request.Context(), id)) {
		return
	}
	httpkit.OK(c, gin.H{"deleted": true})
}

// ListConfigs returns all round-robin pools.
// GET /api/v1/admin/routing/round-robin
func (h *Handler) ListConfigs(c *gin.Context) {
	configs, err := h.admin.ListConfigs(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"configs": configs})
}

// CreateConfig adds a round-robin pool for a (language, round) tier.
// POST /api/v1/admin/routing/round-robin
func (h *Handler) CreateConfig(c *gin.Context) {
	params, ok := h.bindConfig(c)
	if !ok {
		return
	}
	cfg, err := h.admin.CreateConfig(c.Request.Context(), params)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, cfg)
}

// UpdateConfig replaces a round-robin pool.
// PUT /api/v1/admin/routing/round-robin/:id
func (h *Handler) UpdateConfig(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	params, ok := h.bindConfig(c)
	if !ok {
		return
	}
	cfg, err := h.admin.UpdateConfig(c.Request.Context(), id, params)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, cfg)
}

// DeleteConfig removes a round-robin pool.
// DELETE /api/v1/admin/routing/round-robin/:id
func (h *Handler) DeleteConfig(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	if httpkit.HandleError(c, h.admin.DeleteConfig(c.Request.Context(), id)) {
		return
	}
	httpkit.OK(c, gin.H{"deleted": true})
}

func (h *Handler) bindRule(c *gin.Context) (repository.RuleParams, bool) {
	var req transport.RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return repository.RuleParams{}, false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return repository.RuleParams{}, false
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	fallback := true
	if req.FallbackToBroadcast != nil {
		fallback = *req.FallbackToBroadcast
	}
	return repository.RuleParams{
		Name:                strings.TrimSpace(req.Name),
		Priority:            req.Priority,
		IsActive:            isActive,
		Languages:           req.Languages,
		PageTypes:           req.PageTypes,
		PageSlugs:           req.PageSlugs,
		Sources:             req.Sources,
		Segments:            req.Segments,
		BudgetRanges:        req.BudgetRanges,
		PropertyTypes:       req.PropertyTypes,
		Timeframes:          req.Timeframes,
		TargetAgentID:       req.TargetAgentID,
		FallbackToBroadcast: fallback,
	}, true
}

func (h *Handler) bindConfig(c *gin.Context) (repository.ConfigParams, bool) {
	var req transport.ConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return repository.ConfigParams{}, false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return repository.ConfigParams{}, false
	}

	window := req.ClaimWindowMinutes
	if window <= 0 {
		window = defaultClaimWindowMinutes
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	return repository.ConfigParams{
		Language:           strings.ToLower(strings.TrimSpace(req.Language)),
		RoundNumber:        req.RoundNumber,
		AgentIDs:           req.AgentIDs,
		ClaimWindowMinutes: window,
		IsActive:           isActive,
	}, true
}
