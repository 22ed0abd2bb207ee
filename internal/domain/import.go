package domain

import (
	"github.com/google/uuid"
)

// DuplicatePolicy controls what happens when an import row matches an
// already-persisted lead by email.
type DuplicatePolicy string

const (
	DuplicatePolicySkip   DuplicatePolicy = "skip"
	DuplicatePolicyUpdate DuplicatePolicy = "update"
)

// Valid reports whether the policy is one of the supported values.
func (p DuplicatePolicy) Valid() bool {
	return p == DuplicatePolicySkip || p == DuplicatePolicyUpdate
}

// RawRow is one parsed data row keyed by source column header. Number is the
// 1-based position within the file, header row excluded.
type RawRow struct {
	Number int               `json:"rowNumber"`
	Values map[string]string `json:"values"`
}

// FieldMapping maps source column headers to canonical lead fields.
// Immutable once an import run starts.
type FieldMapping map[string]CanonicalField

// CandidateLead is a raw row after field mapping: canonical values plus the
// original raw cells kept for error display.
type CandidateLead struct {
	Number    int
	Values    map[CanonicalField]string
	Raw       map[string]string
	Truncated []CanonicalField
}

// Get returns the mapped value for a field, trimmed at mapping time.
// The second return reports presence of a non-empty value.
func (c CandidateLead) Get(field CanonicalField) (string, bool) {
	v, ok := c.Values[field]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// RowVerdict is the validation outcome for one candidate row. A row with
// only warnings is valid.
type RowVerdict struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// IsValid holds exactly when no errors were recorded.
func (v RowVerdict) IsValid() bool {
	return len(v.Errors) == 0
}

// Disposition is the duplicate-resolution decision for a valid row.
type Disposition string

const (
	DispositionInsert Disposition = "insert"
	DispositionUpdate Disposition = "update"
	DispositionSkip   Disposition = "skip"
)

// ResolvedRow pairs a valid candidate with its disposition. ExistingID is set
// for update dispositions so the executor can target the persisted lead.
// Warnings carries non-fatal dedup notes (intra-file duplicates).
type ResolvedRow struct {
	Candidate   CandidateLead
	Disposition Disposition
	ExistingID  uuid.UUID
	Warnings    []string
}

// ImportStats summarizes validation counts for a run.
// Valid + Invalid always equals Total.
type ImportStats struct {
	Total   int `json:"total"`
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`
}

// RowOutcome is the per-row breakdown returned by dry runs.
type RowOutcome struct {
	RowNumber   int         `json:"rowNumber"`
	IsValid     bool        `json:"isValid"`
	Errors      []string    `json:"errors"`
	Warnings    []string    `json:"warnings"`
	Disposition Disposition `json:"disposition,omitempty"`
}

// RowMessages carries the flattened error/warning lists commit mode returns
// instead of full row bodies.
type RowMessages struct {
	Row      int      `json:"row"`
	Messages []string `json:"messages"`
}

// BatchError records a persistence failure for one batch. Failed batches do
// not abort the remaining ones.
type BatchError struct {
	Batch int    `json:"batch"`
	Error string `json:"error"`
}

// ImportResult is the terminal aggregate for one import run.
type ImportResult struct {
	Stats              ImportStats   `json:"stats"`
	SuccessfulImports  int           `json:"successful_imports"`
	FailedImports      int           `json:"failed_imports"`
	Rows               []RowOutcome  `json:"rows,omitempty"`
	ValidationErrors   []RowMessages `json:"validation_errors,omitempty"`
	ValidationWarnings []RowMessages `json:"validation_warnings,omitempty"`
	Errors             []BatchError  `json:"errors,omitempty"`
}
