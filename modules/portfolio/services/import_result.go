package services

import (
	"github.com/google/uuid"

	"github.com/gestio-pm/gestio/modules/portfolio/domain/batch"
)

// assemble flattens the phase ledgers into the final report. Pure
// aggregation: counts per status per family, the never-truncated error
// list, and the implicitly created contacts.
func (run *importRun) assemble(runID uuid.UUID, opts ImportOptions) *ImportResult {
	result := &ImportResult{
		RunID:           runID,
		DryRun:          opts.DryRun,
		Summary:         make(map[batch.Family]FamilyCounts, len(batch.Families())),
		Errors:          []RowOutcome{},
		CreatedContacts: []ResolvedEntity{},
	}
	for _, family := range batch.Families() {
		result.Summary[family] = FamilyCounts{}
	}

	for _, ps := range run.phases {
		counts := result.Summary[ps.family]
		for _, out := range ps.pending {
			switch out.Status {
			case RowCreated:
				counts.Created++
				result.Created++
			case RowUpdated:
				counts.Updated++
				result.Updated++
			case RowSkipped:
				counts.Skipped++
			case RowError:
				counts.Errors++
				result.Errors = append(result.Errors, out)
			}
		}
		result.Summary[ps.family] = counts

		// Implicit contacts are contact creations regardless of the phase
		// that staged them.
		if len(ps.implicits) > 0 {
			contactCounts := result.Summary[batch.FamilyContact]
			contactCounts.Created += len(ps.implicits)
			result.Summary[batch.FamilyContact] = contactCounts
			result.Created += len(ps.implicits)
			result.CreatedContacts = append(result.CreatedContacts, ps.implicits...)
		}
	}

	switch opts.ErrorMode {
	case ErrorModeAllOrNothing:
		result.Success = len(result.Errors) == 0 && !run.cancelled
	case ErrorModePartial:
		// Row-level errors are the defined contract of partial mode: the
		// run succeeds with a tolerated error list unless it was cancelled.
		result.Success = !run.cancelled
	}
	return result
}
