package repository

import (
	"context"
	"errors"
	"fmt"

	"crm_backend/internal/routing/domain"
	"crm_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	opConfigCreate = "routing.repository.config_create"
	opConfigUpdate = "routing.repository.config_update"
	opConfigGet    = "routing.repository.config_get"
	opConfigList   = "routing.repository.config_list"
	opConfigDelete = "routing.repository.config_delete"
)

const configColumns = `id, language, round_number, agent_ids, claim_window_minutes, is_active, created_at, updated_at`

func scanConfig(row pgx.Row) (domain.RoundRobinConfig, error) {
	var c domain.RoundRobinConfig
	err := row.Scan(&c.ID, &c.Language, &c.RoundNumber, &c.AgentIDs,
		&c.ClaimWindowMinutes, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

type ConfigParams struct {
	Language           string
	RoundNumber        int
	AgentIDs           []uuid.UUID
	ClaimWindowMinutes int
	IsActive           bool
}

func (r *Repository) CreateConfig(ctx context.Context, p ConfigParams) (domain.RoundRobinConfig, error) {
	if r == nil || r.pool == nil {
		return domain.RoundRobinConfig{}, apperr.Internal(errRepoNotConfigured).WithOp(opConfigCreate)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO crm_round_robin_config (language, round_number, agent_ids, claim_window_minutes, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+configColumns,
		p.Language, p.RoundNumber, p.AgentIDs, p.ClaimWindowMinutes, p.IsActive)
	cfg, err := scanConfig(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.RoundRobinConfig{}, apperr.Conflict(
				fmt.Sprintf("round %d for language %q already configured", p.RoundNumber, p.Language)).
				WithOp(opConfigCreate)
		}
		return domain.RoundRobinConfig{}, apperr.Internal(fmt.Sprintf("create config failed: %v", err)).WithOp(opConfigCreate)
	}
	return cfg, nil
}

func (r *Repository) UpdateConfig(ctx context.Context, id uuid.UUID, p ConfigParams) (domain.RoundRobinConfig, error) {
	if r == nil || r.pool == nil {
		return domain.RoundRobinConfig{}, apperr.Internal(errRepoNotConfigured).WithOp(opConfigUpdate)
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE crm_round_robin_config
		SET language = $2, round_number = $3, agent_ids = $4, claim_window_minutes = $5,
			is_active = $6, updated_at = now()
		WHERE id = $1
		RETURNING `+configColumns,
		id, p.Language, p.RoundNumber, p.AgentIDs, p.ClaimWindowMinutes, p.IsActive)
	cfg, err := scanConfig(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RoundRobinConfig{}, apperr.NotFound("round-robin config not found").WithOp(opConfigUpdate)
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.RoundRobinConfig{}, apperr.Conflict(
				fmt.Sprintf("round %d for language %q already configured", p.RoundNumber, p.Language)).
				WithOp(opConfigUpdate)
		}
		return domain.RoundRobinConfig{}, apperr.Internal(fmt.Sprintf("update config failed: %v", err)).WithOp(opConfigUpdate)
	}
	return cfg, nil
}

// GetConfig resolves the active broadcast pool for one (language, round)
// tier. NotFound means the ladder is exhausted for that language.
func (r *Repository) GetConfig(ctx context.Context, language string, round int) (domain.RoundRobinConfig, error) {
	if r == nil || r.pool == nil {
		return domain.RoundRobinConfig{}, apperr.Internal(errRepoNotConfigured).WithOp(opConfigGet)
	}

	cfg, err := scanConfig(r.pool.QueryRow(ctx, `
		SELECT `+configColumns+`
		FROM crm_round_robin_config
		WHERE language = $1 AND round_number = $2 AND is_active`, language, round))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RoundRobinConfig{}, apperr.NotFound(
				fmt.Sprintf("no round-robin config for language %q round %d", language, round)).
				WithOp(opConfigGet)
		}
		return domain.RoundRobinConfig{}, apperr.Internal(fmt.Sprintf("get config failed: %v", err)).WithOp(opConfigGet)
	}
	return cfg, nil
}

// ListConfigs returns all pools ordered by language then round.
func (r *Repository) ListConfigs(ctx context.Context) ([]domain.RoundRobinConfig, error) {
	if r == nil || r.pool == nil {
		return nil, apperr.Internal(errRepoNotConfigured).WithOp(opConfigList)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+configColumns+`
		FROM crm_round_robin_config
		ORDER BY language ASC, round_number ASC`)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("list configs failed: %v", err)).WithOp(opConfigList)
	}
	defer rows.Close()

	configs := make([]domain.RoundRobinConfig, 0)
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan config failed: %v", err)).WithOp(opConfigList)
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(fmt.Sprintf("iterate configs failed: %v", err)).WithOp(opConfigList)
	}
	return configs, nil
}

func (r *Repository) DeleteConfig(ctx context.Context, id uuid.UUID) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opConfigDelete)
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM crm_round_robin_config WHERE id = $1`, id)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("delete config failed: %v", err)).WithOp(opConfigDelete)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("round-robin config not found").WithOp(opConfigDelete)
	}
	return nil
}
