// Package routing provides the routing bounded context: rule evaluation,
// round-robin broadcast, SLA escalation, night-hold release, and the admin
// API for routing configuration.
package routing

import (
	apphttp "crm_backend/internal/http"

	"crm_backend/internal/events"
	"crm_backend/internal/routing/handler"
	"crm_backend/internal/routing/repository"
	"crm_backend/internal/routing/service"
	"crm_backend/platform/config"
	"crm_backend/platform/logger"
	"crm_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the routing bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	engine  *service.Engine
	admin   *service.Admin
	repo    *repository.Repository
}

// NewModule wires the routing module. The lead store and agent directory
// are injected because they belong to other bounded contexts.
func NewModule(pool *pgxpool.Pool, leads service.LeadStore, agents service.AgentDirectory,
	bus events.Bus, cfg config.RoutingConfig, val *validator.Validator, log *logger.Logger) *Module {

	repo := repository.New(pool)
	engine := service.NewEngine(leads, agents, repo, repo, bus, cfg, log)
	admin := service.NewAdmin(repo, agents, log)
	h := handler.New(admin, val)

	return &Module{handler: h, engine: engine, admin: admin, repo: repo}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "routing"
}

// Engine returns the routing engine for cross-module wiring and the
// scheduler's sweeps.
func (m *Module) Engine() *service.Engine {
	return m.engine
}

// RegisterRoutes mounts routing administration routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Admin.Group("/routing")

	group.GET("/rules", m.handler.ListRules)
	group.POST("/rules", m.handler.CreateRule)
	group.GET("/rules/:id", m.handler.GetRule)
	group.PUT("/rules/:id", m.handler.UpdateRule)
	group.DELETE("/rules/:id", m.handler.DeleteRule)

	group.GET("/round-robin", m.handler.ListConfigs)
	group.POST("/round-robin", m.handler.CreateConfig)
	group.PUT("/round-robin/:id", m.handler.UpdateConfig)
	group.DELETE("/round-robin/:id", m.handler.DeleteConfig)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
