package importer

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/chlear/crm/internal/auth"
	"github.com/chlear/crm/internal/domain"
	"github.com/chlear/crm/internal/repository"
)

var (
	ErrStageNotFound = errors.New("pipeline stage not found for this company")

	// ErrInvalidRequest marks caller mistakes in the import parameters, as
	// opposed to file content problems or persistence failures.
	ErrInvalidRequest = errors.New("invalid import request")
)

// Service runs the lead import pipeline: parse the uploaded file, apply the
// field mapping, validate every row, resolve duplicates, and optionally
// persist. Dry-run and commit share the same pipeline up to persistence.
type Service struct {
	leadRepo  repository.LeadRepository
	stageRepo repository.PipelineStageRepository
	logRepo   repository.ImportLogRepository
	resolver  *Resolver

	maxFileBytes int64
	maxRows      int
	batchSize    int
	batchTimeout time.Duration
	now          func() time.Time
}

type Option func(*Service)

func WithMaxFileBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxFileBytes = n
		}
	}
}

func WithMaxRows(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRows = n
		}
	}
}

func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func WithBatchTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.batchTimeout = d
		}
	}
}

func NewService(
	leadRepo repository.LeadRepository,
	stageRepo repository.PipelineStageRepository,
	logRepo repository.ImportLogRepository,
	opts ...Option,
) *Service {
	service := &Service{
		leadRepo:     leadRepo,
		stageRepo:    stageRepo,
		logRepo:      logRepo,
		resolver:     NewResolver(leadRepo),
		maxFileBytes: 10 << 20,
		maxRows:      10000,
		batchSize:    100,
		batchTimeout: 30 * time.Second,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Request carries one uploaded file plus the caller's import choices.
type Request struct {
	FileName        string
	Payload         []byte
	Mapping         domain.FieldMapping
	Policy          domain.DuplicatePolicy
	PipelineStageID *uuid.UUID
}

// DryRun evaluates the file without writing anything. The result carries a
// per-row outcome so the caller can show exactly what a commit would do.
// Nothing is persisted, so both import counters stay at zero; the planned
// action for each row lives in its disposition.
// Running it twice never changes what a later commit does.
func (s *Service) DryRun(ctx context.Context, identity auth.Identity, req Request) (*domain.ImportResult, error) {
	resolved, result, err := s.evaluate(ctx, identity, req)
	if err != nil {
		return nil, err
	}

	for _, row := range resolved {
		outcome := domain.RowOutcome{
			RowNumber: row.Candidate.Number,
			IsValid:   row.Verdict.IsValid(),
			Errors:    row.Verdict.Errors,
			Warnings:  append(append([]string(nil), row.Verdict.Warnings...), row.Warnings...),
		}
		if outcome.IsValid {
			outcome.Disposition = row.Disposition
		}
		result.Rows = append(result.Rows, outcome)
	}

	return result, nil
}

// Commit evaluates the file and persists the valid rows in batches. Each
// batch runs under its own timeout; a failed batch is reported and the
// remaining batches still run. Batches are not atomic with one another.
func (s *Service) Commit(ctx context.Context, identity auth.Identity, req Request) (*domain.ImportResult, error) {
	resolved, result, err := s.evaluate(ctx, identity, req)
	if err != nil {
		return nil, err
	}

	var persistable []evaluatedRow
	for _, row := range resolved {
		warnings := append(append([]string(nil), row.Verdict.Warnings...), row.Warnings...)
		if len(row.Verdict.Errors) > 0 {
			result.ValidationErrors = append(result.ValidationErrors, domain.RowMessages{
				Row:      row.Candidate.Number,
				Messages: row.Verdict.Errors,
			})
		}
		if len(warnings) > 0 {
			result.ValidationWarnings = append(result.ValidationWarnings, domain.RowMessages{
				Row:      row.Candidate.Number,
				Messages: warnings,
			})
		}
		if !row.Verdict.IsValid() || row.Disposition == domain.DispositionSkip {
			result.FailedImports++
			continue
		}
		persistable = append(persistable, row)
	}

	for start := 0; start < len(persistable); start += s.batchSize {
		end := start + s.batchSize
		if end > len(persistable) {
			end = len(persistable)
		}
		batchNumber := start/s.batchSize + 1

		inserted, updated, err := s.persistBatch(ctx, identity, req.PipelineStageID, persistable[start:end])
		if err != nil {
			log.Printf("[import] batch %d failed for company %s: %v", batchNumber, identity.CompanyID, err)
			result.Errors = append(result.Errors, domain.BatchError{
				Batch: batchNumber,
				Error: err.Error(),
			})
			result.FailedImports += end - start
			continue
		}
		result.SuccessfulImports += inserted + updated
	}

	s.recordHistory(ctx, identity, req.FileName, result)

	return result, nil
}

type evaluatedRow struct {
	domain.ResolvedRow
	Verdict domain.RowVerdict
}

// evaluate runs the shared portion of the pipeline: ingest, map, validate,
// and resolve duplicates. Run-level failures return an error; row-level
// problems are captured in the returned rows.
func (s *Service) evaluate(ctx context.Context, identity auth.Identity, req Request) ([]evaluatedRow, *domain.ImportResult, error) {
	if len(req.Mapping) == 0 {
		return nil, nil, fmt.Errorf("%w: field mapping is required", ErrInvalidRequest)
	}
	for header, field := range req.Mapping {
		if !domain.IsCanonicalField(string(field)) {
			return nil, nil, fmt.Errorf("%w: unknown field %q mapped from column %q", ErrInvalidRequest, field, header)
		}
	}
	if !req.Policy.Valid() {
		return nil, nil, fmt.Errorf("%w: unknown duplicate policy %q", ErrInvalidRequest, req.Policy)
	}
	if req.PipelineStageID != nil {
		ok, err := s.stageRepo.BelongsToCompany(ctx, *req.PipelineStageID, identity.CompanyID)
		if err != nil {
			return nil, nil, fmt.Errorf("checking pipeline stage: %w", err)
		}
		if !ok {
			return nil, nil, ErrStageNotFound
		}
	}

	_, reader, err := NewIngestor(s.maxFileBytes, s.maxRows).Open(req.FileName, req.Payload)
	if err != nil {
		return nil, nil, err
	}
	defer reader.Close()

	var candidates []domain.CandidateLead
	for {
		raw, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		candidates = append(candidates, ApplyMapping(raw, req.Mapping))
	}
	if len(candidates) == 0 {
		return nil, nil, ErrEmptyFile
	}

	verdicts := make([]domain.RowVerdict, len(candidates))
	var valid []domain.CandidateLead
	for i := range candidates {
		verdicts[i] = Validate(&candidates[i])
		if verdicts[i].IsValid() {
			valid = append(valid, candidates[i])
		}
	}

	resolvedValid, err := s.resolver.Resolve(ctx, identity.CompanyID, valid, req.Policy)
	if err != nil {
		return nil, nil, err
	}
	byNumber := make(map[int]domain.ResolvedRow, len(resolvedValid))
	for _, row := range resolvedValid {
		byNumber[row.Candidate.Number] = row
	}

	rows := make([]evaluatedRow, len(candidates))
	stats := domain.ImportStats{Total: len(candidates)}
	for i, candidate := range candidates {
		rows[i] = evaluatedRow{
			ResolvedRow: domain.ResolvedRow{Candidate: candidate},
			Verdict:     verdicts[i],
		}
		if verdicts[i].IsValid() {
			stats.Valid++
			rows[i].ResolvedRow = byNumber[candidate.Number]
		} else {
			stats.Invalid++
		}
	}

	return rows, &domain.ImportResult{Stats: stats}, nil
}

func (s *Service) persistBatch(ctx context.Context, identity auth.Identity, stageID *uuid.UUID, rows []evaluatedRow) (int, int, error) {
	batchCtx, cancel := context.WithTimeout(ctx, s.batchTimeout)
	defer cancel()

	var inserts, updates []domain.Lead
	for _, row := range rows {
		lead := s.buildLead(identity, row.Candidate)
		switch row.Disposition {
		case domain.DispositionUpdate:
			lead.ID = row.ExistingID
			updates = append(updates, lead)
		default:
			lead.ID = uuid.New()
			lead.PipelineStageID = stageID
			inserts = append(inserts, lead)
		}
	}

	inserted := 0
	if len(inserts) > 0 {
		n, err := s.leadRepo.InsertBatch(batchCtx, inserts)
		if err != nil {
			return 0, 0, err
		}
		inserted = n
	}
	updated := 0
	if len(updates) > 0 {
		n, err := s.leadRepo.UpdateBatch(batchCtx, updates)
		if err != nil {
			return inserted, 0, err
		}
		updated = n
	}
	return inserted, updated, nil
}

// buildLead maps a validated candidate onto a lead, applying insert defaults
// for the fields the file left blank. Numeric and date fields already passed
// validation, so conversion failures are ignored here.
func (s *Service) buildLead(identity auth.Identity, candidate domain.CandidateLead) domain.Lead {
	now := s.now()
	lead := domain.Lead{
		CompanyID:  identity.CompanyID,
		CreatedBy:  identity.UserID,
		Status:     domain.DefaultStatus,
		LeadSource: domain.DefaultLeadSource,
		Priority:   domain.DefaultPriority,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if v, ok := candidate.Get(domain.FieldFirstName); ok {
		lead.FirstName = v
	}
	if v, ok := candidate.Get(domain.FieldLastName); ok {
		lead.LastName = v
	}
	if v, ok := candidate.Get(domain.FieldEmail); ok {
		lead.Email = v
	}
	if v, ok := candidate.Get(domain.FieldPhone); ok {
		lead.Phone = v
	}
	if v, ok := candidate.Get(domain.FieldCompany); ok {
		lead.Company = v
	}
	if v, ok := candidate.Get(domain.FieldJobTitle); ok {
		lead.JobTitle = v
	}
	if v, ok := candidate.Get(domain.FieldLeadSource); ok {
		lead.LeadSource = v
	}
	if v, ok := candidate.Get(domain.FieldStatus); ok {
		lead.Status = v
	}
	if v, ok := candidate.Get(domain.FieldPriority); ok {
		lead.Priority = v
	}
	if v, ok := candidate.Get(domain.FieldNotes); ok {
		lead.Notes = v
	}
	if v, ok := candidate.Get(domain.FieldDealValue); ok {
		if value, err := strconv.ParseFloat(v, 64); err == nil {
			lead.DealValue = value
		}
	}
	if v, ok := candidate.Get(domain.FieldProbability); ok {
		if value, err := strconv.Atoi(v); err == nil {
			lead.Probability = value
		}
	}
	if v, ok := candidate.Get(domain.FieldExpectedCloseDate); ok {
		if ts, err := ParseDate(v); err == nil {
			lead.ExpectedCloseDate = &ts
		}
	}
	return lead
}

func (s *Service) recordHistory(ctx context.Context, identity auth.Identity, fileName string, result *domain.ImportResult) {
	entry := domain.ImportLogEntry{
		CompanyID:         identity.CompanyID,
		UserID:            identity.UserID,
		FileName:          fileName,
		TotalRecords:      result.Stats.Total,
		SuccessfulImports: result.SuccessfulImports,
		FailedImports:     result.FailedImports,
		Errors:            result.Errors,
	}
	if err := s.logRepo.Record(ctx, entry); err != nil {
		// History is advisory; the import itself already succeeded or failed.
		log.Printf("[import] failed to record import history for company %s: %v", identity.CompanyID, err)
	}
}

// HeadersPreview is what the mapping UI needs before an import: the column
// names, a few sample rows, and a suggested mapping to start from.
type HeadersPreview struct {
	Headers          []string            `json:"headers"`
	Data             []map[string]string `json:"data"`
	SuggestedMapping domain.FieldMapping `json:"suggested_mapping"`
}

func (s *Service) Headers(fileName string, payload []byte) (*HeadersPreview, error) {
	headers, reader, err := NewIngestor(s.maxFileBytes, s.maxRows).Open(fileName, payload)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	preview := &HeadersPreview{
		Headers:          headers,
		SuggestedMapping: SuggestMapping(headers),
	}
	for len(preview.Data) < 5 {
		raw, err := reader.Next()
		if errors.Is(err, io.EOF) || errors.Is(err, ErrTooManyRows) {
			break
		}
		if err != nil {
			return nil, err
		}
		preview.Data = append(preview.Data, raw.Values)
	}
	return preview, nil
}

// Template renders a CSV with every canonical column and one example row.
func (s *Service) Template() ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	fields := domain.CanonicalFields()
	headers := make([]string, len(fields))
	for i, field := range fields {
		headers[i] = string(field)
	}
	if err := writer.Write(headers); err != nil {
		return nil, err
	}
	example := map[domain.CanonicalField]string{
		domain.FieldFirstName:         "Jane",
		domain.FieldLastName:          "Doe",
		domain.FieldEmail:             "jane.doe@example.com",
		domain.FieldPhone:             "+1 555 0100",
		domain.FieldCompany:           "Acme Inc",
		domain.FieldJobTitle:          "Operations Manager",
		domain.FieldLeadSource:        "website",
		domain.FieldStatus:            "new",
		domain.FieldNotes:             "Met at the spring trade show",
		domain.FieldDealValue:         "2500.00",
		domain.FieldProbability:       "40",
		domain.FieldExpectedCloseDate: "2026-10-15",
		domain.FieldPriority:          "medium",
	}
	row := make([]string, len(fields))
	for i, field := range fields {
		row[i] = example[field]
	}
	if err := writer.Write(row); err != nil {
		return nil, err
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Service) History(ctx context.Context, companyID uuid.UUID, limit, offset int) ([]domain.ImportLogEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.logRepo.List(ctx, companyID, limit, offset)
}
