package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/chlear/crm/internal/domain"
	"github.com/chlear/crm/internal/repository"
)

const sheetName = "Leads"

var exportColumns = []string{
	"first_name",
	"last_name",
	"email",
	"phone",
	"company",
	"job_title",
	"lead_source",
	"status",
	"priority",
	"deal_value",
	"probability",
	"expected_close_date",
	"notes",
	"created_at",
}

// Service projects a company's leads into downloadable files. Rows are
// fetched in pages so large exports never hold the full result set, and the
// total is capped to keep a single request bounded.
type Service struct {
	leadRepo repository.LeadRepository

	pageSize int
	maxRows  int
}

type Option func(*Service)

func WithPageSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

func WithMaxRows(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.maxRows = limit
		}
	}
}

func NewService(leadRepo repository.LeadRepository, opts ...Option) *Service {
	service := &Service{
		leadRepo: leadRepo,
		pageSize: 1000,
		maxRows:  50000,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// WriteCSV streams the filtered leads to w as CSV, newest first, and
// returns the number of data rows written.
func (s *Service) WriteCSV(ctx context.Context, w io.Writer, companyID uuid.UUID, filter *domain.LeadFilter) (int, error) {
	writer := csv.NewWriter(w)
	if err := writer.Write(exportColumns); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	rows := 0
	err := s.eachPage(ctx, companyID, filter, func(lead domain.Lead) error {
		if err := writer.Write(leadRow(lead)); err != nil {
			return fmt.Errorf("write lead row: %w", err)
		}
		rows++
		return nil
	})
	if err != nil {
		return rows, err
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return rows, fmt.Errorf("flush export: %w", err)
	}
	return rows, nil
}

// WriteXLSX renders the filtered leads as a spreadsheet with a single
// sheet, one header row, and one row per lead.
func (s *Service) WriteXLSX(ctx context.Context, w io.Writer, companyID uuid.UUID, filter *domain.LeadFilter) (int, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return 0, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return 0, fmt.Errorf("drop default sheet: %w", err)
	}

	stream, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return 0, fmt.Errorf("open stream writer: %w", err)
	}

	header := make([]interface{}, len(exportColumns))
	for i, column := range exportColumns {
		header[i] = column
	}
	if err := stream.SetRow("A1", header); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	rows := 0
	err = s.eachPage(ctx, companyID, filter, func(lead domain.Lead) error {
		values := leadRow(lead)
		cells := make([]interface{}, len(values))
		for i, value := range values {
			cells[i] = value
		}
		cell, cellErr := excelize.CoordinatesToCellName(1, rows+2)
		if cellErr != nil {
			return cellErr
		}
		if err := stream.SetRow(cell, cells); err != nil {
			return fmt.Errorf("write lead row: %w", err)
		}
		rows++
		return nil
	})
	if err != nil {
		return rows, err
	}

	if err := stream.Flush(); err != nil {
		return rows, fmt.Errorf("flush sheet: %w", err)
	}
	if err := f.Write(w); err != nil {
		return rows, fmt.Errorf("write workbook: %w", err)
	}
	return rows, nil
}

// eachPage walks the filtered leads page by page until the result set is
// exhausted or the export cap is reached.
func (s *Service) eachPage(ctx context.Context, companyID uuid.UUID, filter *domain.LeadFilter, visit func(domain.Lead) error) error {
	offset := 0
	emitted := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		pageSize := s.pageSize
		if remaining := s.maxRows - emitted; remaining < pageSize {
			pageSize = remaining
		}
		if pageSize <= 0 {
			return nil
		}
		leads, _, err := s.leadRepo.List(ctx, companyID, filter, pageSize, offset)
		if err != nil {
			return fmt.Errorf("list leads: %w", err)
		}
		for _, lead := range leads {
			if err := visit(lead); err != nil {
				return err
			}
			emitted++
		}
		if len(leads) < pageSize || emitted >= s.maxRows {
			return nil
		}
		offset += pageSize
	}
}

func leadRow(lead domain.Lead) []string {
	return []string{
		lead.FirstName,
		lead.LastName,
		lead.Email,
		lead.Phone,
		lead.Company,
		lead.JobTitle,
		lead.LeadSource,
		lead.Status,
		lead.Priority,
		strconv.FormatFloat(lead.DealValue, 'f', -1, 64),
		strconv.Itoa(lead.Probability),
		formatDate(lead.ExpectedCloseDate),
		lead.Notes,
		lead.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func formatDate(ts *time.Time) string {
	if ts == nil {
		return ""
	}
	return ts.UTC().Format("2006-01-02")
}
