package domain

import (
	"time"

	"github.com/google/uuid"
)

// LeadFilter represents the optional, ANDed export filters. All lookups are
// additionally scoped to the caller's company.
type LeadFilter struct {
	Status          string
	LeadSource      string
	AssignedTo      *uuid.UUID
	PipelineStageID *uuid.UUID
	DateFrom        *time.Time
	DateTo          *time.Time
}
