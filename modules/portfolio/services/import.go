// Package services implements the bulk portfolio import and reconciliation
// engine: four entity families (buildings, lots, contacts, contracts)
// resolved against an existing store by natural key, with configurable
// write and consistency policies, dry-run support and streamed progress.
package services

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/gestio-pm/gestio/modules/portfolio/domain/batch"
)

type Mode string

const (
	// ModeCreate rejects rows whose natural key already exists in the store.
	ModeCreate Mode = "create"
	// ModeUpsert updates matched rows with the columns present in the sheet.
	ModeUpsert Mode = "upsert"
)

type ErrorMode string

const (
	// ErrorModeAllOrNothing aborts on the first failing row; nothing is
	// committed unless every row across every phase succeeds.
	ErrorModeAllOrNothing ErrorMode = "all_or_nothing"
	// ErrorModePartial commits each phase's successful rows and records
	// failing rows without blocking the rest of the run.
	ErrorModePartial ErrorMode = "partial"
)

// ImportOptions is immutable for the duration of a run.
type ImportOptions struct {
	TenantID  uuid.UUID
	UserID    int64
	Mode      Mode
	ErrorMode ErrorMode
	DryRun    bool
}

func (o ImportOptions) Validate() error {
	if o.TenantID == uuid.Nil {
		return fmt.Errorf("tenant_id is required")
	}
	switch o.Mode {
	case ModeCreate, ModeUpsert:
	default:
		return fmt.Errorf("invalid mode: %q", o.Mode)
	}
	switch o.ErrorMode {
	case ErrorModeAllOrNothing, ErrorModePartial:
	default:
		return fmt.Errorf("invalid error mode: %q", o.ErrorMode)
	}
	return nil
}

type RowStatus string

const (
	RowCreated RowStatus = "created"
	RowUpdated RowStatus = "updated"
	RowSkipped RowStatus = "skipped"
	RowError   RowStatus = "error"
)

// Row error codes.
const (
	CodeMissingField     = "missing_field"
	CodeInvalidField     = "invalid_field"
	CodeInvalidRange     = "invalid_range"
	CodeDuplicateInBatch = "duplicate_in_batch"
	CodeAlreadyExists    = "already_exists"
	CodeParentNotFound   = "parent_not_resolved"
	CodeStoreWrite       = "store_write_failed"
	CodePhaseRolledBack  = "phase_rolled_back"
	CodeRunRolledBack    = "run_rolled_back"
	CodeCancelled        = "cancelled"
)

type RowErr struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *RowErr) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// RowOutcome is one entry of the append-only run ledger.
type RowOutcome struct {
	RowIndex  int          `json:"row_index"`
	Line      int          `json:"line"`
	Family    batch.Family `json:"family"`
	Status    RowStatus    `json:"status"`
	StorageID uuid.UUID    `json:"storage_id"`
	Err       *RowErr      `json:"error,omitempty"`
}

type Origin string

const (
	OriginExisting Origin = "existing"
	OriginCreated  Origin = "created"
	OriginUpdated  Origin = "updated"
)

type ResolvedEntity struct {
	Key       batch.Key `json:"-"`
	StorageID uuid.UUID `json:"storage_id"`
	Origin    Origin    `json:"origin"`
	RowIndex  int       `json:"row_index"`
	// Email is surfaced for implicitly created contacts so callers can
	// report "N contacts were created implicitly" with something useful.
	Email string `json:"email,omitempty"`
}

type FamilyCounts struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// ImportResult is assembled once, after the run finishes. Progress events
// are the only thing a caller sees earlier.
type ImportResult struct {
	RunID           uuid.UUID                     `json:"run_id"`
	Success         bool                          `json:"success"`
	DryRun          bool                          `json:"dry_run"`
	Created         int                           `json:"created"`
	Updated         int                           `json:"updated"`
	Errors          []RowOutcome                  `json:"errors"`
	Summary         map[batch.Family]FamilyCounts `json:"summary"`
	CreatedContacts []ResolvedEntity              `json:"created_contacts"`
}

// ProgressEvent is emitted after every processed row. Emission is
// fire-and-forget: a slow or failing sink never blocks the run.
type ProgressEvent struct {
	Family        batch.Family `json:"family"`
	RowIndex      int          `json:"row_index"`
	TotalInFamily int          `json:"total_in_family"`
	OutcomeStatus RowStatus    `json:"outcome_status"`
}

type ProgressFunc func(ProgressEvent)
