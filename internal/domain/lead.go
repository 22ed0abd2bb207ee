package domain

import (
	"time"

	"github.com/google/uuid"
)

// CanonicalField identifies one of the lead attributes the importer understands.
type CanonicalField string

const (
	FieldFirstName         CanonicalField = "first_name"
	FieldLastName          CanonicalField = "last_name"
	FieldEmail             CanonicalField = "email"
	FieldPhone             CanonicalField = "phone"
	FieldCompany           CanonicalField = "company"
	FieldJobTitle          CanonicalField = "job_title"
	FieldLeadSource        CanonicalField = "lead_source"
	FieldStatus            CanonicalField = "status"
	FieldNotes             CanonicalField = "notes"
	FieldDealValue         CanonicalField = "deal_value"
	FieldProbability       CanonicalField = "probability"
	FieldExpectedCloseDate CanonicalField = "expected_close_date"
	FieldPriority          CanonicalField = "priority"
)

// CanonicalFields returns the importer's field set in its canonical column order.
func CanonicalFields() []CanonicalField {
	return []CanonicalField{
		FieldFirstName,
		FieldLastName,
		FieldEmail,
		FieldPhone,
		FieldCompany,
		FieldJobTitle,
		FieldLeadSource,
		FieldStatus,
		FieldNotes,
		FieldDealValue,
		FieldProbability,
		FieldExpectedCloseDate,
		FieldPriority,
	}
}

var canonicalFieldSet = func() map[CanonicalField]struct{} {
	set := make(map[CanonicalField]struct{})
	for _, field := range CanonicalFields() {
		set[field] = struct{}{}
	}
	return set
}()

// IsCanonicalField reports whether name is a member of the canonical field set.
func IsCanonicalField(name string) bool {
	_, ok := canonicalFieldSet[CanonicalField(name)]
	return ok
}

// FieldMaxLength returns the persisted column width for a canonical field,
// or 0 when the field is unbounded or non-textual.
func FieldMaxLength(field CanonicalField) int {
	switch field {
	case FieldFirstName, FieldLastName:
		return 50
	case FieldEmail, FieldCompany, FieldJobTitle:
		return 100
	case FieldPhone, FieldLeadSource, FieldStatus, FieldPriority:
		return 20
	case FieldNotes:
		return 2000
	default:
		return 0
	}
}

// Allowed vocabularies for the enumerated lead fields. Values are stored
// lowercase; input matching is case-insensitive.
var (
	LeadSources    = []string{"website", "referral", "cold_call", "social_media", "advertisement", "other"}
	LeadStatuses   = []string{"new", "contacted", "qualified", "converted", "lost"}
	LeadPriorities = []string{"low", "medium", "high", "urgent"}
)

// Defaults stamped onto inserted leads when the source row leaves the field blank.
const (
	DefaultStatus     = "new"
	DefaultLeadSource = "other"
	DefaultPriority   = "medium"
)

// Lead is the canonical persisted record, always scoped to a company.
type Lead struct {
	ID                uuid.UUID  `json:"id"`
	CompanyID         uuid.UUID  `json:"company_id"`
	CreatedBy         uuid.UUID  `json:"created_by"`
	AssignedTo        *uuid.UUID `json:"assigned_to,omitempty"`
	PipelineStageID   *uuid.UUID `json:"pipeline_stage_id,omitempty"`
	FirstName         string     `json:"first_name"`
	LastName          string     `json:"last_name"`
	Email             string     `json:"email"`
	Phone             string     `json:"phone"`
	Company           string     `json:"company"`
	JobTitle          string     `json:"job_title"`
	LeadSource        string     `json:"lead_source"`
	Status            string     `json:"status"`
	Notes             string     `json:"notes"`
	DealValue         float64    `json:"deal_value"`
	Probability       int        `json:"probability"`
	ExpectedCloseDate *time.Time `json:"expected_close_date,omitempty"`
	Priority          string     `json:"priority"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// PipelineStage is the tenant-scoped stage a lead sits in. The importer only
// ever checks ownership before stamping the id onto inserted rows.
type PipelineStage struct {
	ID        uuid.UUID `json:"id"`
	CompanyID uuid.UUID `json:"company_id"`
	Name      string    `json:"name"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}
