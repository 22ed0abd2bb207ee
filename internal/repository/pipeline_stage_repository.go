package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pipelineStageRepository implements PipelineStageRepository backed by Postgres.
type pipelineStageRepository struct {
	pool *pgxpool.Pool
}

// NewPipelineStageRepository creates a new pipeline stage repository
func NewPipelineStageRepository(pool *pgxpool.Pool) PipelineStageRepository {
	return &pipelineStageRepository{pool: pool}
}

// BelongsToCompany reports whether the stage exists within the given tenant.
func (r *pipelineStageRepository) BelongsToCompany(ctx context.Context, stageID uuid.UUID, companyID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pipeline_stages WHERE id = $1 AND company_id = $2)`,
		stageID, companyID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check pipeline stage ownership: %w", err)
	}
	return exists, nil
}
