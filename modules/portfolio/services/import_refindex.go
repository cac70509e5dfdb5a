package services

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/gestio-pm/gestio/modules/portfolio/domain/batch"
)

// InvariantViolationError signals that the engine's own bookkeeping is
// broken: one natural key resolved to two different storage IDs in a
// single run. It is never recorded in the ledger and always aborts the
// run, regardless of error mode.
type InvariantViolationError struct {
	Key         batch.Key
	Existing    uuid.UUID
	Conflicting uuid.UUID
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf(
		"reference index: key %s/%q already reserved for %s, refused %s",
		e.Key.Family, e.Key.P1, e.Existing, e.Conflicting,
	)
}

type indexEntry struct {
	id uuid.UUID
	// runCreated marks entities materialized during this run, as opposed
	// to rows seeded from the store. The distinction drives create-mode
	// rejection (pre-existing match) vs. in-batch deduplication.
	runCreated bool
}

// referenceIndex is the single source of truth mapping natural keys to
// storage IDs for one run. It is owned by the orchestrator and discarded
// when the run completes; never shared across runs.
type referenceIndex struct {
	entries map[batch.Key]indexEntry
}

func newReferenceIndex() *referenceIndex {
	return &referenceIndex{entries: make(map[batch.Key]indexEntry)}
}

func (ix *referenceIndex) seed(entries []SeedEntry) {
	for _, e := range entries {
		ix.entries[e.Key] = indexEntry{id: e.ID}
	}
}

func (ix *referenceIndex) lookup(key batch.Key) (indexEntry, bool) {
	e, ok := ix.entries[key]
	return e, ok
}

// reserve records a newly materialized entity. Reserving the same key with
// the same ID is a no-op; a different ID is a programming error, not a row
// error.
func (ix *referenceIndex) reserve(key batch.Key, id uuid.UUID) error {
	if existing, ok := ix.entries[key]; ok {
		if existing.id != id {
			return &InvariantViolationError{Key: key, Existing: existing.id, Conflicting: id}
		}
		return nil
	}
	ix.entries[key] = indexEntry{id: id, runCreated: true}
	return nil
}

// release drops a run-created reservation after its phase was rolled back,
// so dependent rows in later phases reject instead of referencing an
// entity that was never persisted. Seeded entries are never released.
func (ix *referenceIndex) release(key batch.Key) {
	if e, ok := ix.entries[key]; ok && e.runCreated {
		delete(ix.entries, key)
	}
}

func (ix *referenceIndex) size() int {
	return len(ix.entries)
}
