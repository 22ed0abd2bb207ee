package importer

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/chlear/crm/internal/auth"
	"github.com/chlear/crm/internal/domain"
)

func testIdentity() auth.Identity {
	return auth.Identity{UserID: uuid.New(), CompanyID: uuid.New(), Role: "admin"}
}

func newTestService(leadRepo *stubLeadRepo, opts ...Option) (*Service, *stubStageRepo, *stubImportLogRepo) {
	stageRepo := &stubStageRepo{owned: map[uuid.UUID]uuid.UUID{}}
	logRepo := &stubImportLogRepo{}
	return NewService(leadRepo, stageRepo, logRepo, opts...), stageRepo, logRepo
}

func exampleMapping() domain.FieldMapping {
	return domain.FieldMapping{
		"Name":    domain.FieldFirstName,
		"Email":   domain.FieldEmail,
		"Phone":   domain.FieldPhone,
		"Company": domain.FieldCompany,
	}
}

const exampleFile = `Name,Email,Phone,Company
John Doe,john@acme.com,555-0100,Acme
Jane Roe,not-an-email,,Beta
,,,Gamma
`

func TestServiceDryRunEndToEnd(t *testing.T) {
	identity := testIdentity()
	leadRepo := &stubLeadRepo{}
	service, _, _ := newTestService(leadRepo)

	req := Request{
		FileName: "leads.csv",
		Payload:  []byte(exampleFile),
		Mapping:  exampleMapping(),
		Policy:   domain.DuplicatePolicySkip,
	}

	result, err := service.DryRun(context.Background(), identity, req)
	if err != nil {
		t.Fatalf("dry run returned error: %v", err)
	}

	if result.Stats.Total != 3 || result.Stats.Valid != 1 || result.Stats.Invalid != 2 {
		t.Fatalf("unexpected stats: %+v", result.Stats)
	}
	if len(result.Rows) != 3 {
		t.Fatalf("expected 3 row outcomes, got %d", len(result.Rows))
	}

	if !result.Rows[0].IsValid || result.Rows[0].Disposition != domain.DispositionInsert {
		t.Fatalf("row 1 should be a valid insert: %+v", result.Rows[0])
	}
	if result.Rows[1].IsValid {
		t.Fatalf("row 2 should be invalid")
	}
	foundEmailErr := false
	for _, msg := range result.Rows[1].Errors {
		if msg == "Invalid email format" {
			foundEmailErr = true
		}
	}
	if !foundEmailErr {
		t.Fatalf("row 2 missing email error: %v", result.Rows[1].Errors)
	}
	if result.Rows[2].IsValid {
		t.Fatalf("row 3 should be invalid")
	}
	wantContact := "At least one contact method (email or phone) is required"
	foundContactErr := false
	for _, msg := range result.Rows[2].Errors {
		if msg == wantContact {
			foundContactErr = true
		}
	}
	if !foundContactErr {
		t.Fatalf("row 3 missing contact error: %v", result.Rows[2].Errors)
	}

	if result.SuccessfulImports != 0 || result.FailedImports != 0 {
		t.Fatalf("dry run persisted nothing, counts must be zero: successful=%d failed=%d",
			result.SuccessfulImports, result.FailedImports)
	}
	if len(leadRepo.inserted) != 0 || len(leadRepo.updated) != 0 {
		t.Fatalf("dry run must not persist anything")
	}
}

func TestServiceDryRunIsIdempotent(t *testing.T) {
	identity := testIdentity()
	leadRepo := &stubLeadRepo{}
	service, _, _ := newTestService(leadRepo)

	req := Request{
		FileName: "leads.csv",
		Payload:  []byte(exampleFile),
		Mapping:  exampleMapping(),
		Policy:   domain.DuplicatePolicySkip,
	}

	first, err := service.DryRun(context.Background(), identity, req)
	if err != nil {
		t.Fatalf("first dry run returned error: %v", err)
	}
	second, err := service.DryRun(context.Background(), identity, req)
	if err != nil {
		t.Fatalf("second dry run returned error: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("dry run is not deterministic:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestServiceRowNumbersAreSequential(t *testing.T) {
	identity := testIdentity()
	leadRepo := &stubLeadRepo{}
	service, _, _ := newTestService(leadRepo)

	var sb strings.Builder
	sb.WriteString("Email\n")
	for i := 0; i < 7; i++ {
		fmt.Fprintf(&sb, "user%d@example.com\n", i)
	}

	req := Request{
		FileName: "leads.csv",
		Payload:  []byte(sb.String()),
		Mapping:  domain.FieldMapping{"Email": domain.FieldEmail},
		Policy:   domain.DuplicatePolicySkip,
	}

	result, err := service.DryRun(context.Background(), identity, req)
	if err != nil {
		t.Fatalf("dry run returned error: %v", err)
	}
	for i, row := range result.Rows {
		if row.RowNumber != i+1 {
			t.Fatalf("row %d carries number %d", i, row.RowNumber)
		}
	}
}

func TestServiceCommitInsertAppliesDefaults(t *testing.T) {
	identity := testIdentity()
	leadRepo := &stubLeadRepo{}
	service, _, _ := newTestService(leadRepo)

	req := Request{
		FileName: "leads.csv",
		Payload:  []byte("Email\njohn@acme.com\n"),
		Mapping:  domain.FieldMapping{"Email": domain.FieldEmail},
		Policy:   domain.DuplicatePolicySkip,
	}

	result, err := service.Commit(context.Background(), identity, req)
	if err != nil {
		t.Fatalf("commit returned error: %v", err)
	}

	if result.SuccessfulImports != 1 {
		t.Fatalf("expected 1 successful import, got %d", result.SuccessfulImports)
	}
	if len(leadRepo.inserted) != 1 {
		t.Fatalf("expected 1 inserted lead, got %d", len(leadRepo.inserted))
	}
	lead := leadRepo.inserted[0]
	if lead.CompanyID != identity.CompanyID || lead.CreatedBy != identity.UserID {
		t.Fatalf("tenant stamping wrong: %+v", lead)
	}
	if lead.Status != "new" || lead.LeadSource != "other" || lead.Priority != "medium" || lead.Probability != 0 {
		t.Fatalf("defaults not applied: %+v", lead)
	}
}

func TestServiceDryRunKeepsImportCountsZero(t *testing.T) {
	identity := testIdentity()
	existing := domain.Lead{ID: uuid.New(), CompanyID: identity.CompanyID, Email: "a@x.com", FirstName: "Original"}
	leadRepo := &stubLeadRepo{existing: []domain.Lead{existing}}
	service, _, _ := newTestService(leadRepo)

	req := Request{
		FileName: "leads.csv",
		Payload:  []byte("Email,Name\na@x.com,Replacement\nb@x.com,Fresh\n"),
		Mapping:  domain.FieldMapping{"Email": domain.FieldEmail, "Name": domain.FieldFirstName},
		Policy:   domain.DuplicatePolicyUpdate,
	}

	result, err := service.DryRun(context.Background(), identity, req)
	if err != nil {
		t.Fatalf("dry run returned error: %v", err)
	}

	if result.SuccessfulImports != 0 || result.FailedImports != 0 {
		t.Fatalf("nothing was persisted, counts must be zero: successful=%d failed=%d",
			result.SuccessfulImports, result.FailedImports)
	}
	if result.Rows[0].Disposition != domain.DispositionUpdate || result.Rows[1].Disposition != domain.DispositionInsert {
		t.Fatalf("dispositions should still describe the planned writes: %+v", result.Rows)
	}
}

func TestServiceCommitSkipPolicyDoesNotMutate(t *testing.T) {
	identity := testIdentity()
	existing := domain.Lead{ID: uuid.New(), CompanyID: identity.CompanyID, Email: "a@x.com", FirstName: "Original"}
	leadRepo := &stubLeadRepo{existing: []domain.Lead{existing}}
	service, _, _ := newTestService(leadRepo)

	req := Request{
		FileName: "leads.csv",
		Payload:  []byte("Email,Name\na@x.com,Replacement\n"),
		Mapping:  domain.FieldMapping{"Email": domain.FieldEmail, "Name": domain.FieldFirstName},
		Policy:   domain.DuplicatePolicySkip,
	}

	result, err := service.Commit(context.Background(), identity, req)
	if err != nil {
		t.Fatalf("commit returned error: %v", err)
	}

	if len(leadRepo.inserted) != 0 || len(leadRepo.updated) != 0 {
		t.Fatalf("skip policy must not write: inserted=%d updated=%d", len(leadRepo.inserted), len(leadRepo.updated))
	}
	if result.SuccessfulImports != 0 || result.FailedImports != 1 {
		t.Fatalf("unexpected counts: successful=%d failed=%d", result.SuccessfulImports, result.FailedImports)
	}
}

func TestServiceCommitUpdatePolicyMutates(t *testing.T) {
	identity := testIdentity()
	existing := domain.Lead{ID: uuid.New(), CompanyID: identity.CompanyID, Email: "a@x.com", FirstName: "Original"}
	leadRepo := &stubLeadRepo{existing: []domain.Lead{existing}}
	service, _, _ := newTestService(leadRepo)

	req := Request{
		FileName: "leads.csv",
		Payload:  []byte("Email,Name\na@x.com,Replacement\n"),
		Mapping:  domain.FieldMapping{"Email": domain.FieldEmail, "Name": domain.FieldFirstName},
		Policy:   domain.DuplicatePolicyUpdate,
	}

	result, err := service.Commit(context.Background(), identity, req)
	if err != nil {
		t.Fatalf("commit returned error: %v", err)
	}

	if result.SuccessfulImports != 1 || result.FailedImports != 0 {
		t.Fatalf("unexpected counts: successful=%d failed=%d", result.SuccessfulImports, result.FailedImports)
	}
	if len(leadRepo.updated) != 1 {
		t.Fatalf("expected 1 updated lead, got %d", len(leadRepo.updated))
	}
	updated := leadRepo.updated[0]
	if updated.ID != existing.ID {
		t.Fatalf("update targeted wrong lead: %s", updated.ID)
	}
	if updated.FirstName != "Replacement" {
		t.Fatalf("update did not carry new values: %+v", updated)
	}
}

func TestServiceCommitIntraFileDuplicateSkipsSecond(t *testing.T) {
	identity := testIdentity()
	leadRepo := &stubLeadRepo{}
	service, _, _ := newTestService(leadRepo)

	req := Request{
		FileName: "leads.csv",
		Payload:  []byte("Email,Name\ndup@x.com,First\ndup@x.com,Second\n"),
		Mapping:  domain.FieldMapping{"Email": domain.FieldEmail, "Name": domain.FieldFirstName},
		Policy:   domain.DuplicatePolicyUpdate,
	}

	result, err := service.Commit(context.Background(), identity, req)
	if err != nil {
		t.Fatalf("commit returned error: %v", err)
	}

	if result.SuccessfulImports != 1 || result.FailedImports != 1 {
		t.Fatalf("unexpected counts: successful=%d failed=%d", result.SuccessfulImports, result.FailedImports)
	}
	if len(leadRepo.inserted) != 1 || leadRepo.inserted[0].FirstName != "First" {
		t.Fatalf("first occurrence should win: %+v", leadRepo.inserted)
	}
	foundWarning := false
	for _, rw := range result.ValidationWarnings {
		if rw.Row == 2 {
			for _, msg := range rw.Messages {
				if msg == "Duplicate email within this file" {
					foundWarning = true
				}
			}
		}
	}
	if !foundWarning {
		t.Fatalf("missing intra-file duplicate warning: %+v", result.ValidationWarnings)
	}
}

func TestServiceCommitBatchPartialFailure(t *testing.T) {
	identity := testIdentity()
	leadRepo := &stubLeadRepo{failInsertCall: 2}
	service, _, _ := newTestService(leadRepo, WithBatchSize(1))

	req := Request{
		FileName: "leads.csv",
		Payload:  []byte("Email\na@x.com\nb@x.com\nc@x.com\n"),
		Mapping:  domain.FieldMapping{"Email": domain.FieldEmail},
		Policy:   domain.DuplicatePolicySkip,
	}

	result, err := service.Commit(context.Background(), identity, req)
	if err != nil {
		t.Fatalf("commit returned error: %v", err)
	}

	if result.SuccessfulImports != 2 || result.FailedImports != 1 {
		t.Fatalf("unexpected counts: successful=%d failed=%d", result.SuccessfulImports, result.FailedImports)
	}
	if len(result.Errors) != 1 || result.Errors[0].Batch != 2 {
		t.Fatalf("expected one error for batch 2, got %+v", result.Errors)
	}
	if len(leadRepo.inserted) != 2 {
		t.Fatalf("batches 1 and 3 should persist, got %d leads", len(leadRepo.inserted))
	}
}

func TestServiceCommitStampsPipelineStageOnInserts(t *testing.T) {
	identity := testIdentity()
	stageID := uuid.New()
	leadRepo := &stubLeadRepo{}
	service, stageRepo, _ := newTestService(leadRepo)
	stageRepo.owned[stageID] = identity.CompanyID

	req := Request{
		FileName:        "leads.csv",
		Payload:         []byte("Email\njohn@acme.com\n"),
		Mapping:         domain.FieldMapping{"Email": domain.FieldEmail},
		Policy:          domain.DuplicatePolicySkip,
		PipelineStageID: &stageID,
	}

	if _, err := service.Commit(context.Background(), identity, req); err != nil {
		t.Fatalf("commit returned error: %v", err)
	}
	if len(leadRepo.inserted) != 1 || leadRepo.inserted[0].PipelineStageID == nil || *leadRepo.inserted[0].PipelineStageID != stageID {
		t.Fatalf("pipeline stage not stamped: %+v", leadRepo.inserted)
	}
}

func TestServiceRejectsForeignPipelineStage(t *testing.T) {
	identity := testIdentity()
	stageID := uuid.New()
	leadRepo := &stubLeadRepo{}
	service, stageRepo, _ := newTestService(leadRepo)
	stageRepo.owned[stageID] = uuid.New() // some other tenant

	req := Request{
		FileName:        "leads.csv",
		Payload:         []byte("Email\njohn@acme.com\n"),
		Mapping:         domain.FieldMapping{"Email": domain.FieldEmail},
		Policy:          domain.DuplicatePolicySkip,
		PipelineStageID: &stageID,
	}

	if _, err := service.Commit(context.Background(), identity, req); !errors.Is(err, ErrStageNotFound) {
		t.Fatalf("expected ErrStageNotFound, got %v", err)
	}
}

func TestServiceCommitRecordsHistory(t *testing.T) {
	identity := testIdentity()
	leadRepo := &stubLeadRepo{}
	service, _, logRepo := newTestService(leadRepo)

	req := Request{
		FileName: "spring-leads.csv",
		Payload:  []byte(exampleFile),
		Mapping:  exampleMapping(),
		Policy:   domain.DuplicatePolicySkip,
	}

	if _, err := service.Commit(context.Background(), identity, req); err != nil {
		t.Fatalf("commit returned error: %v", err)
	}

	if len(logRepo.entries) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(logRepo.entries))
	}
	entry := logRepo.entries[0]
	if entry.FileName != "spring-leads.csv" || entry.CompanyID != identity.CompanyID {
		t.Fatalf("unexpected history entry: %+v", entry)
	}
	if entry.TotalRecords != 3 || entry.SuccessfulImports != 1 || entry.FailedImports != 2 {
		t.Fatalf("unexpected history counts: %+v", entry)
	}
}

func TestServiceRejectsUnknownMappingTarget(t *testing.T) {
	identity := testIdentity()
	leadRepo := &stubLeadRepo{}
	service, _, _ := newTestService(leadRepo)

	req := Request{
		FileName: "leads.csv",
		Payload:  []byte("Email\njohn@acme.com\n"),
		Mapping:  domain.FieldMapping{"Email": "electronic_mail"},
		Policy:   domain.DuplicatePolicySkip,
	}

	if _, err := service.DryRun(context.Background(), identity, req); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestServiceHeadersPreview(t *testing.T) {
	leadRepo := &stubLeadRepo{}
	service, _, _ := newTestService(leadRepo)

	preview, err := service.Headers("leads.csv", []byte(exampleFile))
	if err != nil {
		t.Fatalf("headers returned error: %v", err)
	}

	if len(preview.Headers) != 4 || preview.Headers[0] != "Name" {
		t.Fatalf("unexpected headers: %v", preview.Headers)
	}
	if len(preview.Data) != 3 {
		t.Fatalf("expected 3 preview rows, got %d", len(preview.Data))
	}
	if preview.SuggestedMapping["Email"] != domain.FieldEmail {
		t.Fatalf("expected email suggestion, got %v", preview.SuggestedMapping)
	}
}

func TestServiceTemplate(t *testing.T) {
	leadRepo := &stubLeadRepo{}
	service, _, _ := newTestService(leadRepo)

	template, err := service.Template()
	if err != nil {
		t.Fatalf("template returned error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(template)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus example row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "first_name,last_name,email") {
		t.Fatalf("unexpected template header: %q", lines[0])
	}
}

type stubLeadRepo struct {
	existing []domain.Lead
	inserted []domain.Lead
	updated  []domain.Lead

	findCalls      int
	insertCalls    int
	failInsertCall int
}

func (s *stubLeadRepo) FindByEmails(ctx context.Context, companyID uuid.UUID, emails []string) ([]domain.Lead, error) {
	s.findCalls++
	wanted := make(map[string]struct{}, len(emails))
	for _, email := range emails {
		wanted[strings.ToLower(email)] = struct{}{}
	}
	var matched []domain.Lead
	for _, lead := range s.existing {
		if lead.CompanyID != companyID {
			continue
		}
		if _, ok := wanted[strings.ToLower(lead.Email)]; ok {
			matched = append(matched, lead)
		}
	}
	return matched, nil
}

func (s *stubLeadRepo) InsertBatch(ctx context.Context, leads []domain.Lead) (int, error) {
	s.insertCalls++
	if s.failInsertCall > 0 && s.insertCalls == s.failInsertCall {
		return 0, errors.New("connection reset by peer")
	}
	s.inserted = append(s.inserted, leads...)
	return len(leads), nil
}

func (s *stubLeadRepo) UpdateBatch(ctx context.Context, leads []domain.Lead) (int, error) {
	s.updated = append(s.updated, leads...)
	return len(leads), nil
}

func (s *stubLeadRepo) List(ctx context.Context, companyID uuid.UUID, filter *domain.LeadFilter, limit int, offset int) ([]domain.Lead, int, error) {
	return nil, 0, errors.New("not implemented")
}

type stubStageRepo struct {
	owned map[uuid.UUID]uuid.UUID
}

func (s *stubStageRepo) BelongsToCompany(ctx context.Context, stageID, companyID uuid.UUID) (bool, error) {
	return s.owned[stageID] == companyID, nil
}

type stubImportLogRepo struct {
	entries []domain.ImportLogEntry
}

func (s *stubImportLogRepo) Record(ctx context.Context, entry domain.ImportLogEntry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubImportLogRepo) List(ctx context.Context, companyID uuid.UUID, limit, offset int) ([]domain.ImportLogEntry, error) {
	return append([]domain.ImportLogEntry(nil), s.entries...), nil
}
