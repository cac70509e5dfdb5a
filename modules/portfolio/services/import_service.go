package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/gestio-pm/gestio/modules/portfolio/domain/batch"
	"github.com/gestio-pm/gestio/modules/portfolio/domain/events"
	"github.com/gestio-pm/gestio/pkg/eventbus"
)

const defaultProgressBuffer = 256

type ImportService struct {
	store          PortfolioStore
	publisher      eventbus.EventBus
	log            *logrus.Logger
	progressBuffer int
}

type ImportServiceOption func(*ImportService)

func WithLogger(log *logrus.Logger) ImportServiceOption {
	return func(s *ImportService) { s.log = log }
}

func WithProgressBuffer(n int) ImportServiceOption {
	return func(s *ImportService) { s.progressBuffer = n }
}

func NewImportService(store PortfolioStore, publisher eventbus.EventBus, opts ...ImportServiceOption) *ImportService {
	s := &ImportService{
		store:          store,
		publisher:      publisher,
		log:            logrus.StandardLogger(),
		progressBuffer: defaultProgressBuffer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Import runs one batch against the store. Row-level problems are
// reported through the result, never through the error return; the error
// is non-nil only for option/seed failures, context cancellation and
// engine invariant violations. Runs for the same tenant must be
// serialized by the caller.
func (s *ImportService) Import(ctx context.Context, b batch.ParsedBatch, opts ImportOptions, sink ProgressFunc) (*ImportResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.New()
	startedAt := time.Now().UTC()
	log := s.log.WithFields(logrus.Fields{
		"run_id":    runID,
		"tenant_id": opts.TenantID,
		"mode":      opts.Mode,
		"on_error":  opts.ErrorMode,
		"dry_run":   opts.DryRun,
	})

	seed, err := s.store.SeedKeys(ctx, opts.TenantID)
	if err != nil {
		return nil, errors.Wrap(err, "seed reference index")
	}

	run := &importRun{
		svc:   s,
		batch: b,
		opts:  opts,
		ix:    newReferenceIndex(),
		log:   log,
	}
	run.ix.seed(seed)
	run.validator = newRowValidator()
	run.resolvers = &resolverSet{store: s.store, opts: opts, ix: run.ix}
	run.progress = newProgressDispatcher(sink, s.progressBuffer, log)
	defer run.progress.close()

	log.WithField("seeded_keys", run.ix.size()).Info("import: run started")

	runErr := run.execute(ctx)
	result := run.assemble(runID, opts)
	s.publishCompleted(result, opts, startedAt)

	var inv *InvariantViolationError
	if errors.As(runErr, &inv) {
		// Broken engine bookkeeping is surfaced raw, without a result.
		return nil, runErr
	}
	log.WithFields(logrus.Fields{
		"success":     result.Success,
		"created":     result.Created,
		"updated":     result.Updated,
		"errors":      len(result.Errors),
		"store_fault": run.storeFault,
	}).Info("import: run finished")
	return result, runErr
}

func (s *ImportService) publishCompleted(result *ImportResult, opts ImportOptions, startedAt time.Time) {
	if s.publisher == nil {
		return
	}
	counts := make(map[string]int, len(result.Summary))
	for family, c := range result.Summary {
		counts[string(family)] = c.Created + c.Updated + c.Skipped + c.Errors
	}
	s.publisher.Publish(&events.ImportCompletedV1{
		EventVersion: events.EventVersionV1,
		RunID:        result.RunID,
		TenantID:     opts.TenantID,
		InitiatorID:  opts.UserID,
		DryRun:       opts.DryRun,
		Success:      result.Success,
		Created:      result.Created,
		Updated:      result.Updated,
		ErrorCount:   len(result.Errors),
		StartedAt:    startedAt,
		FinishedAt:   time.Now().UTC(),
		Counts:       counts,
	})
	s.log.WithFields(logrus.Fields{
		"topic":  events.TopicImportCompletedV1,
		"run_id": result.RunID,
	}).Debug("import: completion event published")
}

// stagedWrite pairs a buffered store operation with the phase row it
// belongs to, for error attribution when a commit fails.
type stagedWrite struct {
	rowPos      int // index into the phase's pending outcomes; -1 for implicit contacts
	implicitPos int // index into the phase's implicit contacts; -1 otherwise
	key         batch.Key
	created     bool // run-created key, released from the index on rollback
	op          stagedOp
}

// stagedSkip remembers which run-created key a skipped duplicate row
// resolved against, so the row can be failed if that key's insert fails.
type stagedSkip struct {
	rowPos int
	key    batch.Key
}

type phaseState struct {
	family    batch.Family
	pending   []RowOutcome
	writes    []stagedWrite
	skips     []stagedSkip
	implicits []ResolvedEntity
	committed bool
}

type importRun struct {
	svc       *ImportService
	batch     batch.ParsedBatch
	opts      ImportOptions
	ix        *referenceIndex
	validator *rowValidator
	resolvers *resolverSet
	progress  *progressDispatcher
	log       *logrus.Entry

	phases     []*phaseState
	aborted    bool
	cancelled  bool
	storeFault bool
}

// execute walks the four phases in dependency order. The returned error
// is an invariant violation only; every other condition lands in the
// phase outcomes.
func (run *importRun) execute(ctx context.Context) error {
	for _, family := range batch.Families() {
		if run.aborted || run.cancelled {
			break
		}
		ps := &phaseState{family: family}
		run.phases = append(run.phases, ps)
		if err := run.runPhase(ctx, ps); err != nil {
			return err
		}
	}

	if run.opts.ErrorMode == ErrorModeAllOrNothing {
		run.commitRun(ctx)
	}
	if run.cancelled {
		run.discardUncommitted(CodeCancelled, "run cancelled before commit")
		return ctx.Err()
	}
	if run.aborted {
		run.discardUncommitted(CodeRunRolledBack, "discarded after aborted run")
	}
	return nil
}

func (run *importRun) runPhase(ctx context.Context, ps *phaseState) error {
	total := run.batch.Len(ps.family)
	run.log.WithFields(logrus.Fields{"family": ps.family, "rows": total}).Debug("import: phase started")

	for i := 0; i < total; i++ {
		// Cancellation is only observed at row boundaries.
		if ctx.Err() != nil {
			run.cancelled = true
			return nil
		}
		if err := run.processRow(ps, i); err != nil {
			return err
		}
		out := ps.pending[len(ps.pending)-1]
		run.progress.emit(ProgressEvent{
			Family:        ps.family,
			RowIndex:      i,
			TotalInFamily: total,
			OutcomeStatus: out.Status,
		})
		if out.Status == RowError && run.opts.ErrorMode == ErrorModeAllOrNothing {
			run.aborted = true
			return nil
		}
	}

	if run.opts.ErrorMode == ErrorModePartial {
		run.commitPhase(ctx, ps)
	}
	return nil
}

// processRow validates and resolves one row, appending exactly one
// outcome to the phase.
func (run *importRun) processRow(ps *phaseState, i int) error {
	var (
		line     int
		vErr     *RowErr
		dec      decision
		implicit *implicitContact
		err      error
	)

	switch ps.family {
	case batch.FamilyBuilding:
		row := run.batch.Buildings[i]
		line = row.Line
		if vErr = run.validator.Building(row); vErr == nil {
			dec, err = run.resolvers.resolveBuilding(row)
		}
	case batch.FamilyLot:
		row := run.batch.Lots[i]
		line = row.Line
		if vErr = run.validator.Lot(row); vErr == nil {
			dec, err = run.resolvers.resolveLot(row)
		}
	case batch.FamilyContact:
		row := run.batch.Contacts[i]
		line = row.Line
		if vErr = run.validator.Contact(row); vErr == nil {
			dec, err = run.resolvers.resolveContact(row)
		}
	case batch.FamilyContract:
		row := run.batch.Contracts[i]
		line = row.Line
		if vErr = run.validator.Contract(row); vErr == nil {
			dec, implicit, err = run.resolvers.resolveContract(i, row)
		}
	}
	if err != nil {
		return err
	}

	out := RowOutcome{RowIndex: i, Line: line, Family: ps.family}
	if vErr == nil && dec.kind == decideReject {
		vErr = dec.reject
	}
	if vErr != nil {
		out.Status = RowError
		out.Err = vErr
		ps.pending = append(ps.pending, out)
		return nil
	}

	if implicit != nil {
		ps.implicits = append(ps.implicits, implicit.entity)
		ps.writes = append(ps.writes, stagedWrite{
			rowPos:      -1,
			implicitPos: len(ps.implicits) - 1,
			key:         implicit.entity.Key,
			created:     true,
			op:          implicit.op,
		})
	}

	switch dec.kind {
	case decideUseExisting:
		out.Status = RowSkipped
		out.StorageID = dec.id
		ps.skips = append(ps.skips, stagedSkip{rowPos: len(ps.pending), key: dec.key})
	case decideCreate:
		out.Status = RowCreated
		out.StorageID = dec.id
		ps.writes = append(ps.writes, stagedWrite{
			rowPos:      len(ps.pending),
			implicitPos: -1,
			key:         dec.key,
			created:     true,
			op:          dec.op,
		})
	case decideUpdate:
		out.Status = RowUpdated
		out.StorageID = dec.id
		ps.writes = append(ps.writes, stagedWrite{
			rowPos:      len(ps.pending),
			implicitPos: -1,
			key:         dec.key,
			op:          dec.op,
		})
	}
	ps.pending = append(ps.pending, out)
	return nil
}

// commitPhase persists one phase under partial mode: one tenant
// transaction, one savepoint per staged write so a failing row is
// recorded without poisoning the rest of the phase. A failing phase
// commit rolls the whole phase back and converts its staged successes to
// errors; earlier phases stay committed.
func (run *importRun) commitPhase(ctx context.Context, ps *phaseState) {
	if run.opts.DryRun || len(ps.writes) == 0 {
		ps.committed = true
		return
	}

	failedImplicit := make(map[int]bool)
	released := make(map[batch.Key]bool)
	err := run.svc.store.WithinTx(ctx, run.opts.TenantID, func(txCtx context.Context) error {
		for _, w := range ps.writes {
			spErr := run.svc.store.WithinSavepoint(txCtx, func(spCtx context.Context) error {
				return w.op(spCtx)
			})
			if spErr == nil {
				continue
			}
			run.storeFault = true
			if w.created {
				run.ix.release(w.key)
				released[w.key] = true
			}
			if w.implicitPos >= 0 {
				failedImplicit[w.implicitPos] = true
				continue
			}
			out := &ps.pending[w.rowPos]
			out.Status = RowError
			out.StorageID = uuid.Nil
			out.Err = &RowErr{Code: CodeStoreWrite, Message: spErr.Error()}
		}
		return nil
	})
	if err != nil {
		run.storeFault = true
		run.rollbackPhase(ps, &RowErr{Code: CodePhaseRolledBack, Message: err.Error()})
		run.log.WithField("family", ps.family).WithError(err).Error("import: phase commit failed, phase rolled back")
		return
	}

	// A skipped duplicate points at a row-created entity. When that
	// entity's insert failed its storage id was never persisted, so the
	// duplicate must fail too.
	for _, s := range ps.skips {
		if !released[s.key] {
			continue
		}
		out := &ps.pending[s.rowPos]
		if out.Status != RowSkipped {
			continue
		}
		out.Status = RowError
		out.StorageID = uuid.Nil
		out.Err = &RowErr{Code: CodeStoreWrite, Message: "duplicate of a row that failed to persist"}
	}

	if len(failedImplicit) > 0 {
		kept := ps.implicits[:0]
		for i, entity := range ps.implicits {
			if !failedImplicit[i] {
				kept = append(kept, entity)
			}
		}
		ps.implicits = kept
	}
	ps.committed = true
}

// commitRun persists every staged write in one transaction under
// all_or_nothing mode. Nothing runs when any row already failed.
func (run *importRun) commitRun(ctx context.Context) {
	if run.aborted || run.cancelled {
		return
	}
	if run.opts.DryRun {
		for _, ps := range run.phases {
			ps.committed = true
		}
		return
	}

	var (
		failed      *stagedWrite
		failedPhase *phaseState
	)
	err := run.svc.store.WithinTx(ctx, run.opts.TenantID, func(txCtx context.Context) error {
		for _, ps := range run.phases {
			for i := range ps.writes {
				if err := ps.writes[i].op(txCtx); err != nil {
					failed = &ps.writes[i]
					failedPhase = ps
					return err
				}
			}
		}
		return nil
	})
	if err == nil {
		for _, ps := range run.phases {
			ps.committed = true
		}
		return
	}

	run.storeFault = true
	run.log.WithError(err).Error("import: commit failed, run rolled back")
	for _, ps := range run.phases {
		for rowPos := range ps.pending {
			out := &ps.pending[rowPos]
			if out.Status == RowError {
				continue
			}
			code := CodeRunRolledBack
			message := "discarded after failed commit"
			if failed != nil && ps == failedPhase && failed.rowPos == rowPos {
				code = CodeStoreWrite
				message = err.Error()
			}
			out.Status = RowError
			out.StorageID = uuid.Nil
			out.Err = &RowErr{Code: code, Field: "", Message: message}
		}
		ps.implicits = nil
	}
}

// discardUncommitted marks rows of never-committed phases after a
// cancellation or abort so the result never claims uncommitted writes.
func (run *importRun) discardUncommitted(code, message string) {
	for _, ps := range run.phases {
		if ps.committed {
			continue
		}
		for i := range ps.pending {
			out := &ps.pending[i]
			if out.Status == RowError {
				continue
			}
			out.Status = RowError
			out.StorageID = uuid.Nil
			out.Err = &RowErr{Code: code, Message: message}
		}
		ps.implicits = nil
	}
}

// rollbackPhase converts a phase's staged successes to errors and
// releases its run-created reservations so later phases reject dependents
// instead of referencing entities that were never persisted.
func (run *importRun) rollbackPhase(ps *phaseState, cause *RowErr) {
	for _, w := range ps.writes {
		if w.created {
			run.ix.release(w.key)
		}
	}
	for i := range ps.pending {
		out := &ps.pending[i]
		if out.Status == RowError {
			continue
		}
		out.Status = RowError
		out.StorageID = uuid.Nil
		out.Err = cause
	}
	ps.implicits = nil
}
