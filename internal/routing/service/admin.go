package service

import (
	"context"

	"crm_backend/internal/routing/domain"
	"crm_backend/internal/routing/repository"
	"crm_backend/platform/apperr"
	"crm_backend/platform/logger"

	"github.com/google/uuid"
)

// Admin manages the routing configuration: rules and round-robin pools.
type Admin struct {
	repo   *repository.Repository
	agents AgentDirectory
	log    *logger.Logger
}

func NewAdmin(repo *repository.Repository, agents AgentDirectory, log *logger.Logger) *Admin {
	return &Admin{repo: repo, agents: agents, log: log}
}

func (a *Admin) CreateRule(ctx context.Context, p repository.RuleParams) (domain.Rule, error) {
	if err := a.checkAgent(ctx, p.TargetAgentID); err != nil {
		return domain.Rule{}, err
	}
	return a.repo.CreateRule(ctx, p)
}

func (a *Admin) UpdateRule(ctx context.Context, id uuid.UUID, p repository.RuleParams) (domain.Rule, error) {
	if err := a.checkAgent(ctx, p.TargetAgentID); err != nil {
		return domain.Rule{}, err
	}
	return a.repo.UpdateRule(ctx, id, p)
}

func (a *Admin) GetRule(ctx context.Context, id uuid.UUID) (domain.Rule, error) {
	return a.repo.GetRule(ctx, id)
}

func (a *Admin) ListRules(ctx context.Context) ([]domain.Rule, error) {
	return a.repo.ListRules(ctx)
}

func (a *Admin) DeleteRule(ctx context.Context, id uuid.UUID) error {
	return a.repo.DeleteRule(ctx, id)
}

func (a *Admin) CreateConfig(ctx context.Context, p repository.ConfigParams) (domain.RoundRobinConfig, error) {
	if err := a.checkPool(ctx, p.AgentIDs); err != nil {
		return domain.RoundRobinConfig{}, err
	}
	return a.repo.CreateConfig(ctx, p)
}

func (a *Admin) UpdateConfig(ctx context.Context, id uuid.UUID, p repository.ConfigParams) (domain.RoundRobinConfig, error) {
	if err := a.checkPool(ctx, p.AgentIDs); err != nil {
		return domain.RoundRobinConfig{}, err
	}
	return a.repo.UpdateConfig(ctx, id, p)
}

func (a *Admin) ListConfigs(ctx context.Context) ([]domain.RoundRobinConfig, error) {
	return a.repo.ListConfigs(ctx)
}

func (a *Admin) DeleteConfig(ctx context.Context, id uuid.UUID) error {
	return a.repo.DeleteConfig(ctx, id)
}

func (a *Admin) checkAgent(ctx context.Context, id uuid.UUID) error {
	agent, err := a.agents.GetByID(ctx, id)
	if err != nil {
		if apperr.GetKind(err) == apperr.KindNotFound {
			return apperr.Validation("target agent does not exist")
		}
		return err
	}
	if !agent.IsActive {
		return apperr.Validation("target agent is deactivated")
	}
	return nil
}

// checkPool verifies every referenced agent exists; capacity and
// availability are evaluated at broadcast time, not here.
func (a *Admin) checkPool(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return apperr.Validation("agent pool must not be empty")
	}
	agents, err := a.agents.GetByIDs(ctx, ids)
	if err != nil {
		return err
	}
	if len(agents) != len(ids) {
		return apperr.Validation("agent pool references unknown agents")
	}
	return nil
}
