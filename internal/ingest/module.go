package ingest

import (
	apphttp "crm_backend/internal/http"

	leadservice "crm_backend/internal/leads/service"
	"crm_backend/platform/logger"
	"crm_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the public intake module implementing http.Module.
type Module struct {
	handler *Handler
	repo    *Repository
}

// NewModule creates and initializes the ingest module.
func NewModule(pool *pgxpool.Pool, leads *leadservice.Service, val *validator.Validator, log *logger.Logger) *Module {
	repo := NewRepository(pool)
	h := NewHandler(leads, repo, val, log)
	return &Module{handler: h, repo: repo}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "ingest"
}

// RegisterRoutes mounts the public intake route and the admin key surface.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	public := ctx.V1.Group("/public")
	public.Use(ctx.IngestRateLimiter.RateLimit(), APIKeyAuthMiddleware(m.repo))
	public.POST("/leads", m.handler.SubmitLead)

	admin := ctx.Admin.Group("/ingest")
	admin.GET("/keys", m.handler.ListKeys)
	admin.POST("/keys", m.handler.CreateKey)
	admin.DELETE("/keys/:id", m.handler.RevokeKey)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
