// Package service implements agent directory management.
package service

import (
	"context"
	"strings"

	"crm_backend/internal/agents/repository"
	"crm_backend/internal/agents/transport"
	"crm_backend/platform/apperr"
	"crm_backend/platform/logger"
	"crm_backend/platform/phone"

	"github.com/google/uuid"
)

// Store is the persistence surface the service needs.
type Store interface {
	Create(ctx context.Context, p repository.CreateParams) (repository.Agent, error)
	Update(ctx context.Context, id uuid.UUID, p repository.UpdateParams) (repository.Agent, error)
	GetByID(ctx context.Context, id uuid.UUID) (repository.Agent, error)
	List(ctx context.Context, includeInactive bool) ([]repository.Agent, error)
	ReconcileLeadCounts(ctx context.Context) (int64, error)
}

type Service struct {
	store Store
	log   *logger.Logger
}

func New(store Store, log *logger.Logger) *Service {
	return &Service{store: store, log: log}
}

func (s *Service) Create(ctx context.Context, req transport.CreateAgentRequest) (repository.Agent, error) {
	role := req.Role
	if role == "" {
		role = repository.RoleAgent
	}
	if role != repository.RoleAgent && role != repository.RoleAdmin {
		return repository.Agent{}, apperr.Validation("role must be agent or admin")
	}
	if len(req.Languages) == 0 {
		return repository.Agent{}, apperr.Validation("at least one language is required")
	}

	maxLeads := req.MaxActiveLeads
	if maxLeads <= 0 {
		maxLeads = 10
	}

	accepts := true
	if req.AcceptsNewLeads != nil {
		accepts = *req.AcceptsNewLeads
	}

	return s.store.Create(ctx, repository.CreateParams{
		FullName:        req.FullName,
		Email:           req.Email,
		Phone:           phone.NormalizeE164(req.Phone),
		Role:            role,
		Languages:       normalizeLanguages(req.Languages),
		AcceptsNewLeads: accepts,
		MaxActiveLeads:  maxLeads,
	})
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req transport.UpdateAgentRequest) (repository.Agent, error) {
	if req.Role != nil && *req.Role != repository.RoleAgent && *req.Role != repository.RoleAdmin {
		return repository.Agent{}, apperr.Validation("role must be agent or admin")
	}
	if req.Languages != nil && len(req.Languages) == 0 {
		return repository.Agent{}, apperr.Validation("at least one language is required")
	}
	if req.MaxActiveLeads != nil && *req.MaxActiveLeads <= 0 {
		return repository.Agent{}, apperr.Validation("maxActiveLeads must be positive")
	}

	params := repository.UpdateParams{
		FullName:        req.FullName,
		Role:            req.Role,
		IsActive:        req.IsActive,
		AcceptsNewLeads: req.AcceptsNewLeads,
		MaxActiveLeads:  req.MaxActiveLeads,
	}
	if req.Phone != nil {
		normalized := phone.NormalizeE164(*req.Phone)
		params.Phone = &normalized
	}
	if req.Languages != nil {
		params.Languages = normalizeLanguages(req.Languages)
	}

	return s.store.Update(ctx, id, params)
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (repository.Agent, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, includeInactive bool) ([]repository.Agent, error) {
	return s.store.List(ctx, includeInactive)
}

// ReconcileLeadCounts recomputes live lead counters from the leads table
// and returns how many agents were corrected.
func (s *Service) ReconcileLeadCounts(ctx context.Context) (int64, error) {
	corrected, err := s.store.ReconcileLeadCounts(ctx)
	if err != nil {
		return 0, err
	}
	if corrected > 0 {
		s.log.Warn("agent lead counters drifted", "corrected", corrected)
	}
	return corrected, nil
}

func normalizeLanguages(langs []string) []string {
	out := make([]string, 0, len(langs))
	seen := make(map[string]bool, len(langs))
	for _, l := range langs {
		lowered := strings.ToLower(strings.TrimSpace(l))
		if lowered == "" || seen[lowered] {
			continue
		}
		seen[lowered] = true
		out = append(out, lowered)
	}
	return out
}
