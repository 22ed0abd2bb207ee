package importer

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/chlear/crm/internal/domain"
	"github.com/chlear/crm/internal/repository"
)

// Resolver decides how each valid row lands against existing leads.
// Matching is by email only, case-insensitively, within one company.
// Rows without an email can never collide and always insert.
type Resolver struct {
	leadRepo repository.LeadRepository
}

func NewResolver(leadRepo repository.LeadRepository) *Resolver {
	return &Resolver{leadRepo: leadRepo}
}

// Resolve assigns a disposition to every candidate, preserving input order.
// Existing leads are fetched in one batched query up front. Within the file,
// the first occurrence of an email wins; later occurrences are skipped.
func (r *Resolver) Resolve(ctx context.Context, companyID uuid.UUID, candidates []domain.CandidateLead, policy domain.DuplicatePolicy) ([]domain.ResolvedRow, error) {
	emails := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		email, ok := candidate.Get(domain.FieldEmail)
		if !ok {
			continue
		}
		key := strings.ToLower(email)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		emails = append(emails, key)
	}

	existing := make(map[string]uuid.UUID, len(emails))
	if len(emails) > 0 {
		leads, err := r.leadRepo.FindByEmails(ctx, companyID, emails)
		if err != nil {
			return nil, fmt.Errorf("looking up existing leads: %w", err)
		}
		for _, lead := range leads {
			existing[strings.ToLower(lead.Email)] = lead.ID
		}
	}

	resolved := make([]domain.ResolvedRow, 0, len(candidates))
	claimed := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		row := domain.ResolvedRow{Candidate: candidate, Disposition: domain.DispositionInsert}

		email, ok := candidate.Get(domain.FieldEmail)
		if !ok {
			resolved = append(resolved, row)
			continue
		}
		key := strings.ToLower(email)

		if _, dup := claimed[key]; dup {
			row.Disposition = domain.DispositionSkip
			row.Warnings = append(row.Warnings, "Duplicate email within this file")
			resolved = append(resolved, row)
			continue
		}
		claimed[key] = struct{}{}

		if id, found := existing[key]; found {
			switch policy {
			case domain.DuplicatePolicyUpdate:
				row.Disposition = domain.DispositionUpdate
				row.ExistingID = id
			default:
				row.Disposition = domain.DispositionSkip
				row.Warnings = append(row.Warnings, "Skipped: a lead with this email already exists")
			}
		}

		resolved = append(resolved, row)
	}

	return resolved, nil
}
