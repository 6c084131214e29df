// Package leads provides the lead lifecycle bounded context: intake,
// scoring, claiming, first-action tracking, and archival.
package leads

import (
	apphttp "crm_backend/internal/http"

	"crm_backend/internal/events"
	"crm_backend/internal/leads/domain"
	"crm_backend/internal/leads/handler"
	"crm_backend/internal/leads/repository"
	"crm_backend/internal/leads/service"
	"crm_backend/platform/logger"
	"crm_backend/platform/validator"
)

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    *repository.Repository
}

// NewModule wires the leads module. The repository is injected rather than
// constructed here because the routing engine shares it.
func NewModule(repo *repository.Repository, router service.Router, bus events.Bus,
	hours domain.BusinessHours, val *validator.Validator, log *logger.Logger) *Module {

	svc := service.New(repo, router, bus, hours, log)
	h := handler.New(svc, val)

	return &Module{handler: h, service: svc, repo: repo}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// Repository returns the repository for cross-module wiring.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// RegisterRoutes mounts lead lifecycle routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/leads")
	group.GET("", m.handler.List)
	group.GET("/:id", m.handler.GetByID)
	group.GET("/:id/activities", m.handler.Activities)
	group.POST("/:id/claim", m.handler.Claim)
	group.POST("/:id/first-action", m.handler.FirstAction)

	adminGroup := ctx.Admin.Group("/leads")
	adminGroup.POST("/:id/archive", m.handler.Archive)
	adminGroup.POST("/:id/reassign", m.handler.Reassign)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
