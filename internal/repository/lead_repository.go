package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chlear/crm/internal/domain"
)

const leadColumns = `id, company_id, created_by, assigned_to, pipeline_stage_id,
	first_name, last_name, email, phone, company, job_title,
	lead_source, status, notes, deal_value, probability,
	expected_close_date, priority, created_at, updated_at`

// leadRepository implements LeadRepository backed by Postgres.
type leadRepository struct {
	pool *pgxpool.Pool
}

// NewLeadRepository creates a new lead repository
func NewLeadRepository(pool *pgxpool.Pool) LeadRepository {
	return &leadRepository{pool: pool}
}

// FindByEmails looks up existing leads by normalized email in one query.
func (r *leadRepository) FindByEmails(ctx context.Context, companyID uuid.UUID, emails []string) ([]domain.Lead, error) {
	if len(emails) == 0 {
		return []domain.Lead{}, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+leadColumns+` FROM leads
		 WHERE company_id = $1 AND lower(email) = ANY($2)`,
		companyID, emails,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find leads by email: %w", err)
	}
	defer rows.Close()

	return scanLeads(rows)
}

// InsertBatch inserts the given leads in one batched round trip.
func (r *leadRepository) InsertBatch(ctx context.Context, leads []domain.Lead) (int, error) {
	if len(leads) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, lead := range leads {
		batch.Queue(
			`INSERT INTO leads (id, company_id, created_by, assigned_to, pipeline_stage_id,
				first_name, last_name, email, phone, company, job_title,
				lead_source, status, notes, deal_value, probability,
				expected_close_date, priority, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
			lead.ID, lead.CompanyID, lead.CreatedBy, lead.AssignedTo, lead.PipelineStageID,
			lead.FirstName, lead.LastName, lead.Email, lead.Phone, lead.Company, lead.JobTitle,
			lead.LeadSource, lead.Status, lead.Notes, lead.DealValue, lead.Probability,
			lead.ExpectedCloseDate, lead.Priority, lead.CreatedAt, lead.UpdatedAt,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range leads {
		if _, err := results.Exec(); err != nil {
			return inserted, fmt.Errorf("failed to insert lead batch: %w", err)
		}
		inserted++
	}
	return inserted, nil
}

// UpdateBatch applies imported field values onto existing leads. The pipeline
// stage is deliberately left untouched; imports never move a lead between
// stages through an update.
func (r *leadRepository) UpdateBatch(ctx context.Context, leads []domain.Lead) (int, error) {
	if len(leads) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, lead := range leads {
		batch.Queue(
			`UPDATE leads SET
				first_name = $3, last_name = $4, email = $5, phone = $6,
				company = $7, job_title = $8, lead_source = $9, status = $10,
				notes = $11, deal_value = $12, probability = $13,
				expected_close_date = $14, priority = $15, updated_at = $16
			 WHERE id = $1 AND company_id = $2`,
			lead.ID, lead.CompanyID,
			lead.FirstName, lead.LastName, lead.Email, lead.Phone,
			lead.Company, lead.JobTitle, lead.LeadSource, lead.Status,
			lead.Notes, lead.DealValue, lead.Probability,
			lead.ExpectedCloseDate, lead.Priority, time.Now(),
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	updated := 0
	for range leads {
		if _, err := results.Exec(); err != nil {
			return updated, fmt.Errorf("failed to update lead batch: %w", err)
		}
		updated++
	}
	return updated, nil
}

// List returns one page of the tenant's leads matching the filter, newest
// first, along with the total match count.
func (r *leadRepository) List(ctx context.Context, companyID uuid.UUID, filter *domain.LeadFilter, limit int, offset int) ([]domain.Lead, int, error) {
	where := []string{"company_id = $1"}
	args := []any{companyID}

	appendArg := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if filter != nil {
		if filter.Status != "" {
			appendArg("status = $%d", filter.Status)
		}
		if filter.LeadSource != "" {
			appendArg("lead_source = $%d", filter.LeadSource)
		}
		if filter.AssignedTo != nil {
			appendArg("assigned_to = $%d", *filter.AssignedTo)
		}
		if filter.PipelineStageID != nil {
			appendArg("pipeline_stage_id = $%d", *filter.PipelineStageID)
		}
		if filter.DateFrom != nil {
			appendArg("created_at >= $%d", *filter.DateFrom)
		}
		if filter.DateTo != nil {
			appendArg("created_at <= $%d", *filter.DateTo)
		}
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx,
		"SELECT count(*) FROM leads WHERE "+whereClause, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count leads: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT %s FROM leads WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		leadColumns, whereClause, len(args)+1, len(args)+2,
	)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list leads: %w", err)
	}
	defer rows.Close()

	leads, err := scanLeads(rows)
	if err != nil {
		return nil, 0, err
	}
	return leads, total, nil
}

func scanLeads(rows pgx.Rows) ([]domain.Lead, error) {
	leads := []domain.Lead{}
	for rows.Next() {
		var lead domain.Lead
		if err := rows.Scan(
			&lead.ID, &lead.CompanyID, &lead.CreatedBy, &lead.AssignedTo, &lead.PipelineStageID,
			&lead.FirstName, &lead.LastName, &lead.Email, &lead.Phone, &lead.Company, &lead.JobTitle,
			&lead.LeadSource, &lead.Status, &lead.Notes, &lead.DealValue, &lead.Probability,
			&lead.ExpectedCloseDate, &lead.Priority, &lead.CreatedAt, &lead.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan lead: %w", err)
		}
		leads = append(leads, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read leads: %w", err)
	}
	return leads, nil
}
