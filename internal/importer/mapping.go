package importer

import (
	"strings"

	"github.com/chlear/crm/internal/domain"
)

// ApplyMapping projects a raw row through the caller-confirmed field mapping.
// Values are trimmed, empty strings become absent, and over-length values are
// truncated to their column width with the field recorded so validation can
// surface a warning. Headers absent from the mapping are dropped.
func ApplyMapping(row domain.RawRow, mapping domain.FieldMapping) domain.CandidateLead {
	candidate := domain.CandidateLead{
		Number: row.Number,
		Values: make(map[domain.CanonicalField]string),
		Raw:    row.Values,
	}

	for header, field := range mapping {
		raw, ok := row.Values[header]
		if !ok {
			continue
		}
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}
		if max := domain.FieldMaxLength(field); max > 0 && len(value) > max {
			value = value[:max]
			candidate.Truncated = append(candidate.Truncated, field)
		}
		candidate.Values[field] = value
	}

	return candidate
}

// SuggestMapping guesses a field mapping from header text using
// case-insensitive substring heuristics. Headers matching nothing are left
// unmapped. This is a UX convenience; the caller-confirmed mapping is
// authoritative at import time.
func SuggestMapping(headers []string) domain.FieldMapping {
	mapping := domain.FieldMapping{}

	for _, header := range headers {
		h := strings.ToLower(strings.TrimSpace(header))
		if h == "" {
			continue
		}

		// Exact canonical names win outright.
		if domain.IsCanonicalField(h) {
			mapping[header] = domain.CanonicalField(h)
			continue
		}

		switch {
		case strings.Contains(h, "first") && strings.Contains(h, "name"):
			mapping[header] = domain.FieldFirstName
		case strings.Contains(h, "last") && strings.Contains(h, "name"):
			mapping[header] = domain.FieldLastName
		case strings.Contains(h, "email"):
			mapping[header] = domain.FieldEmail
		case strings.Contains(h, "phone") || strings.Contains(h, "mobile"):
			mapping[header] = domain.FieldPhone
		case strings.Contains(h, "company") || strings.Contains(h, "organization") || strings.Contains(h, "organisation"):
			mapping[header] = domain.FieldCompany
		case strings.Contains(h, "job") || strings.Contains(h, "position") || strings.Contains(h, "title"):
			mapping[header] = domain.FieldJobTitle
		case strings.Contains(h, "source"):
			mapping[header] = domain.FieldLeadSource
		case strings.Contains(h, "status"):
			mapping[header] = domain.FieldStatus
		case strings.Contains(h, "note") || strings.Contains(h, "comment"):
			mapping[header] = domain.FieldNotes
		case strings.Contains(h, "deal") && strings.Contains(h, "value"):
			mapping[header] = domain.FieldDealValue
		case strings.Contains(h, "probability"):
			mapping[header] = domain.FieldProbability
		case strings.Contains(h, "close") && strings.Contains(h, "date"):
			mapping[header] = domain.FieldExpectedCloseDate
		case strings.Contains(h, "priority"):
			mapping[header] = domain.FieldPriority
		case strings.Contains(h, "name"):
			// Bare "name" columns most often carry the contact's first name.
			mapping[header] = domain.FieldFirstName
		case strings.Contains(h, "value"):
			mapping[header] = domain.FieldDealValue
		}
	}

	return mapping
}
