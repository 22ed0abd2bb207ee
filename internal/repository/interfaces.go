package repository

import (
	"context"

	"github.com/chlear/crm/internal/domain"

	"github.com/google/uuid"
)

// LeadRepository defines the storage surface the import/export pipeline
// consumes. Duplicate lookups are batched; the pipeline never issues
// per-row queries.
type LeadRepository interface {
	// FindByEmails returns the tenant's leads whose normalized email matches
	// any of the given (already lowercased, trimmed) addresses.
	FindByEmails(ctx context.Context, companyID uuid.UUID, emails []string) ([]domain.Lead, error)
	InsertBatch(ctx context.Context, leads []domain.Lead) (int, error)
	UpdateBatch(ctx context.Context, leads []domain.Lead) (int, error)
	List(ctx context.Context, companyID uuid.UUID, filter *domain.LeadFilter, limit int, offset int) ([]domain.Lead, int, error)
}

// PipelineStageRepository validates stage ownership before an import stamps
// a caller-supplied stage id onto inserted rows.
type PipelineStageRepository interface {
	BelongsToCompany(ctx context.Context, stageID uuid.UUID, companyID uuid.UUID) (bool, error)
}

// ImportLogRepository stores one audit row per completed commit run.
type ImportLogRepository interface {
	Record(ctx context.Context, entry domain.ImportLogEntry) error
	List(ctx context.Context, companyID uuid.UUID, limit int, offset int) ([]domain.ImportLogEntry, error)
}
