package importer

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/chlear/crm/internal/domain"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^[+]?[0-9\s\-()]{0,20}$`)

	dateLayouts = []string{
		time.RFC3339,
		"2006-01-02",
		"2006-01-02 15:04:05",
		"2006/01/02",
		"01/02/2006",
		"02/01/2006",
	}
)

// excelEpoch is day zero of the 1900 date system, adjusted for the
// spreadsheet leap-year bug that counts 1900-02-29.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// Validate runs every rule against the candidate and collects all findings.
// Rules never short-circuit, so a row reports each of its problems at once.
// Enum values are normalized to canonical lowercase in place when they match.
func Validate(candidate *domain.CandidateLead) domain.RowVerdict {
	var verdict domain.RowVerdict

	email, hasEmail := candidate.Get(domain.FieldEmail)
	phone, hasPhone := candidate.Get(domain.FieldPhone)

	if !hasEmail && !hasPhone {
		verdict.Errors = append(verdict.Errors, "At least one contact method (email or phone) is required")
	}

	if hasEmail && !emailPattern.MatchString(email) {
		verdict.Errors = append(verdict.Errors, "Invalid email format")
	}

	if hasPhone && !phonePattern.MatchString(phone) {
		verdict.Errors = append(verdict.Errors, "Invalid phone format")
	}

	if _, ok := candidate.Get(domain.FieldFirstName); !ok {
		verdict.Warnings = append(verdict.Warnings, "Missing first name")
	}
	if _, ok := candidate.Get(domain.FieldLastName); !ok {
		verdict.Warnings = append(verdict.Warnings, "Missing last name")
	}

	checkEnum(candidate, domain.FieldLeadSource, domain.LeadSources, &verdict)
	checkEnum(candidate, domain.FieldStatus, domain.LeadStatuses, &verdict)

	if raw, ok := candidate.Get(domain.FieldDealValue); ok {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
			verdict.Errors = append(verdict.Errors, "Deal value must be a non-negative number")
		}
	}

	if raw, ok := candidate.Get(domain.FieldProbability); ok {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 || value > 100 {
			verdict.Errors = append(verdict.Errors, "Probability must be an integer between 0 and 100")
		}
	}

	if raw, ok := candidate.Get(domain.FieldExpectedCloseDate); ok {
		if _, err := ParseDate(raw); err != nil {
			verdict.Errors = append(verdict.Errors, "Invalid expected close date")
		}
	}

	checkEnum(candidate, domain.FieldPriority, domain.LeadPriorities, &verdict)

	for _, field := range candidate.Truncated {
		verdict.Warnings = append(verdict.Warnings,
			fmt.Sprintf("Value for %s was truncated to %d characters", field, domain.FieldMaxLength(field)))
	}

	return verdict
}

func checkEnum(candidate *domain.CandidateLead, field domain.CanonicalField, allowed []string, verdict *domain.RowVerdict) {
	raw, ok := candidate.Get(field)
	if !ok {
		return
	}
	normalized := strings.ToLower(strings.TrimSpace(raw))
	for _, value := range allowed {
		if normalized == value {
			candidate.Values[field] = value
			return
		}
	}
	verdict.Errors = append(verdict.Errors,
		fmt.Sprintf("Invalid %s: must be one of %s", field, strings.Join(allowed, ", ")))
}

// ParseDate accepts common textual date formats plus spreadsheet serial
// numbers, which excelize yields for date cells without a text format.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil && serial > 0 && serial < 200000 {
		days := int(serial)
		frac := serial - float64(days)
		ts := excelEpoch.AddDate(0, 0, days).Add(time.Duration(frac * float64(24*time.Hour)))
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date format")
}
