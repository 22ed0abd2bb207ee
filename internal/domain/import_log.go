package domain

import (
	"time"

	"github.com/google/uuid"
)

// ImportLogEntry is the audit record written once per completed commit run.
type ImportLogEntry struct {
	ID                uuid.UUID    `json:"id"`
	CompanyID         uuid.UUID    `json:"company_id"`
	UserID            uuid.UUID    `json:"user_id"`
	FileName          string       `json:"file_name"`
	TotalRecords      int          `json:"total_records"`
	SuccessfulImports int          `json:"successful_imports"`
	FailedImports     int          `json:"failed_imports"`
	Errors            []BatchError `json:"errors,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
}
