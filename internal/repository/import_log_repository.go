package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chlear/crm/internal/domain"
)

// importLogRepository implements ImportLogRepository backed by Postgres.
type importLogRepository struct {
	pool *pgxpool.Pool
}

// NewImportLogRepository creates a new import log repository
func NewImportLogRepository(pool *pgxpool.Pool) ImportLogRepository {
	return &importLogRepository{pool: pool}
}

// Record writes one audit row for a completed commit run.
func (r *importLogRepository) Record(ctx context.Context, entry domain.ImportLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	errorsJSON, err := json.Marshal(entry.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal import errors: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO import_history (id, company_id, user_id, file_name,
			total_records, successful_imports, failed_imports, errors, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.CompanyID, entry.UserID, entry.FileName,
		entry.TotalRecords, entry.SuccessfulImports, entry.FailedImports, errorsJSON, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record import history: %w", err)
	}
	return nil
}

// List returns the tenant's import history, newest first.
func (r *importLogRepository) List(ctx context.Context, companyID uuid.UUID, limit int, offset int) ([]domain.ImportLogEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, company_id, user_id, file_name,
			total_records, successful_imports, failed_imports, errors, created_at
		 FROM import_history
		 WHERE company_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		companyID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list import history: %w", err)
	}
	defer rows.Close()

	entries := []domain.ImportLogEntry{}
	for rows.Next() {
		var entry domain.ImportLogEntry
		var errorsJSON []byte
		if err := rows.Scan(
			&entry.ID, &entry.CompanyID, &entry.UserID, &entry.FileName,
			&entry.TotalRecords, &entry.SuccessfulImports, &entry.FailedImports, &errorsJSON, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan import history: %w", err)
		}
		if len(errorsJSON) > 0 {
			if err := json.Unmarshal(errorsJSON, &entry.Errors); err != nil {
				return nil, fmt.Errorf("failed to unmarshal import errors: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read import history: %w", err)
	}
	return entries, nil
}
