package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/gestio-pm/gestio/modules/portfolio/domain/batch"
)

type decisionKind int

const (
	decideUseExisting decisionKind = iota
	decideCreate
	decideUpdate
	decideReject
)

// stagedOp is a buffered write. Resolvers only build these closures; the
// orchestrator decides when (and whether) they run, so resolvers stay
// unaware of transaction scope and dry-run.
type stagedOp func(ctx context.Context) error

type decision struct {
	kind   decisionKind
	id     uuid.UUID
	key    batch.Key
	op     stagedOp
	reject *RowErr
}

func rejected(code, field, message string) decision {
	return decision{kind: decideReject, reject: &RowErr{Code: code, Field: field, Message: message}}
}

// implicitContact is a contact materialized as a side effect of a contract
// row whose email has no explicit contact row.
type implicitContact struct {
	entity ResolvedEntity
	op     stagedOp
}

// resolverSet resolves validated rows against the reference index under
// one run's options. The decision logic is shared: key already created in
// this run → UseExisting; key seeded from the store → Reject under create
// mode, Update under upsert; unknown key → CreateNew with a pre-assigned
// storage ID reserved in the index.
type resolverSet struct {
	store PortfolioStore
	opts  ImportOptions
	ix    *referenceIndex
}

func (r *resolverSet) resolveBuilding(row batch.BuildingRow) (decision, error) {
	key := batch.BuildingKey(r.opts.TenantID, row.Address)
	if entry, ok := r.ix.lookup(key); ok {
		if entry.runCreated {
			return decision{kind: decideUseExisting, id: entry.id, key: key}, nil
		}
		if r.opts.Mode == ModeCreate {
			return rejected(CodeAlreadyExists, "address", "building already exists"), nil
		}
		patch := BuildingPatch{
			PostalCode:       trimmed(row.PostalCode),
			City:             trimmed(row.City),
			ConstructionYear: row.ConstructionYear,
			LotCount:         row.LotCount,
		}
		id := entry.id
		return decision{kind: decideUpdate, id: id, key: key, op: func(ctx context.Context) error {
			return r.store.UpdateBuilding(ctx, r.opts.TenantID, id, patch)
		}}, nil
	}

	id := uuid.New()
	if err := r.ix.reserve(key, id); err != nil {
		return decision{}, err
	}
	rec := BuildingRecord{
		ID:               id,
		TenantID:         r.opts.TenantID,
		Address:          strings.TrimSpace(row.Address),
		AddressNorm:      key.P1,
		PostalCode:       trimmed(row.PostalCode),
		City:             trimmed(row.City),
		ConstructionYear: row.ConstructionYear,
		LotCount:         row.LotCount,
		CreatedBy:        r.opts.UserID,
	}
	return decision{kind: decideCreate, id: id, key: key, op: func(ctx context.Context) error {
		return r.store.InsertBuilding(ctx, rec)
	}}, nil
}

func (r *resolverSet) resolveLot(row batch.LotRow) (decision, error) {
	buildingAddress := ""
	var buildingID *uuid.UUID
	if row.BuildingAddress != nil && strings.TrimSpace(*row.BuildingAddress) != "" {
		buildingAddress = *row.BuildingAddress
		entry, ok := r.ix.lookup(batch.BuildingKey(r.opts.TenantID, buildingAddress))
		if !ok {
			return rejected(CodeParentNotFound, "building_address", "building could not be resolved"), nil
		}
		id := entry.id
		buildingID = &id
	}

	key := batch.LotKey(r.opts.TenantID, buildingAddress, row.Reference)
	if entry, ok := r.ix.lookup(key); ok {
		if entry.runCreated {
			return decision{kind: decideUseExisting, id: entry.id, key: key}, nil
		}
		if r.opts.Mode == ModeCreate {
			return rejected(CodeAlreadyExists, "reference", "lot already exists"), nil
		}
		patch := LotPatch{
			Floor:    trimmed(row.Floor),
			Category: lowered(row.Category),
			Surface:  row.Surface,
		}
		id := entry.id
		return decision{kind: decideUpdate, id: id, key: key, op: func(ctx context.Context) error {
			return r.store.UpdateLot(ctx, r.opts.TenantID, id, patch)
		}}, nil
	}

	id := uuid.New()
	if err := r.ix.reserve(key, id); err != nil {
		return decision{}, err
	}
	rec := LotRecord{
		ID:         id,
		TenantID:   r.opts.TenantID,
		BuildingID: buildingID,
		Reference:  batch.NormalizeReference(row.Reference),
		Floor:      trimmed(row.Floor),
		Category:   lowered(row.Category),
		Surface:    row.Surface,
		CreatedBy:  r.opts.UserID,
	}
	return decision{kind: decideCreate, id: id, key: key, op: func(ctx context.Context) error {
		return r.store.InsertLot(ctx, rec)
	}}, nil
}

func (r *resolverSet) resolveContact(row batch.ContactRow) (decision, error) {
	key := batch.ContactKey(r.opts.TenantID, row.Email)
	if entry, ok := r.ix.lookup(key); ok {
		if entry.runCreated {
			// Two explicit rows with the same email in one batch is an
			// authoring mistake; flag it instead of guessing which row wins.
			return rejected(CodeDuplicateInBatch, "email", "contact email appears twice in this batch"), nil
		}
		if r.opts.Mode == ModeCreate {
			return rejected(CodeAlreadyExists, "email", "contact already exists"), nil
		}
		patch := ContactPatch{
			FirstName: trimmed(row.FirstName),
			LastName:  trimmed(row.LastName),
			Phone:     trimmed(row.Phone),
			Company:   trimmed(row.Company),
		}
		id := entry.id
		return decision{kind: decideUpdate, id: id, key: key, op: func(ctx context.Context) error {
			return r.store.UpdateContact(ctx, r.opts.TenantID, id, patch)
		}}, nil
	}

	id := uuid.New()
	if err := r.ix.reserve(key, id); err != nil {
		return decision{}, err
	}
	rec := ContactRecord{
		ID:        id,
		TenantID:  r.opts.TenantID,
		Email:     key.P1,
		FirstName: trimmed(row.FirstName),
		LastName:  trimmed(row.LastName),
		Phone:     trimmed(row.Phone),
		Company:   trimmed(row.Company),
		CreatedBy: r.opts.UserID,
	}
	return decision{kind: decideCreate, id: id, key: key, op: func(ctx context.Context) error {
		return r.store.InsertContact(ctx, rec)
	}}, nil
}

// resolveContract resolves both parents, synthesizing a minimal contact
// when the email has no explicit row. The implicit contact is returned
// separately so the orchestrator can stage it through the same contact
// creation path and surface it on the final result.
func (r *resolverSet) resolveContract(rowIndex int, row batch.ContractRow) (decision, *implicitContact, error) {
	buildingAddress := ""
	if row.BuildingAddress != nil {
		buildingAddress = *row.BuildingAddress
	}
	lotKey := batch.LotKey(r.opts.TenantID, buildingAddress, row.LotReference)
	lotEntry, ok := r.ix.lookup(lotKey)
	if !ok {
		return rejected(CodeParentNotFound, "lot_reference", "lot could not be resolved"), nil, nil
	}

	contactKey := batch.ContactKey(r.opts.TenantID, row.ContactEmail)
	contactEntry, contactKnown := r.ix.lookup(contactKey)

	var implicit *implicitContact
	if !contactKnown {
		contactID := uuid.New()
		if err := r.ix.reserve(contactKey, contactID); err != nil {
			return decision{}, nil, err
		}
		first, last := splitContactName(row.ContactName)
		rec := ContactRecord{
			ID:        contactID,
			TenantID:  r.opts.TenantID,
			Email:     contactKey.P1,
			FirstName: first,
			LastName:  last,
			CreatedBy: r.opts.UserID,
		}
		implicit = &implicitContact{
			entity: ResolvedEntity{
				Key:       contactKey,
				StorageID: contactID,
				Origin:    OriginCreated,
				RowIndex:  rowIndex,
				Email:     contactKey.P1,
			},
			op: func(ctx context.Context) error {
				return r.store.InsertContact(ctx, rec)
			},
		}
		contactEntry = indexEntry{id: contactID, runCreated: true}
	}

	role := strings.ToLower(strings.TrimSpace(row.Role))
	key := batch.ContractKey(lotKey, contactKey, role)
	if entry, found := r.ix.lookup(key); found {
		if entry.runCreated {
			return decision{kind: decideUseExisting, id: entry.id, key: key}, implicit, nil
		}
		if r.opts.Mode == ModeCreate {
			return rejected(CodeAlreadyExists, "lot_reference", "contract already exists"), implicit, nil
		}
		patch := ContractPatch{
			StartDate:     row.StartDate,
			EndDate:       row.EndDate,
			RentAmount:    row.RentAmount,
			ChargesAmount: row.ChargesAmount,
		}
		id := entry.id
		return decision{kind: decideUpdate, id: id, key: key, op: func(ctx context.Context) error {
			return r.store.UpdateContract(ctx, r.opts.TenantID, id, patch)
		}}, implicit, nil
	}

	id := uuid.New()
	if err := r.ix.reserve(key, id); err != nil {
		return decision{}, nil, err
	}
	rec := ContractRecord{
		ID:            id,
		TenantID:      r.opts.TenantID,
		LotID:         lotEntry.id,
		ContactID:     contactEntry.id,
		Role:          role,
		StartDate:     row.StartDate,
		EndDate:       row.EndDate,
		RentAmount:    row.RentAmount,
		ChargesAmount: row.ChargesAmount,
		CreatedBy:     r.opts.UserID,
	}
	return decision{kind: decideCreate, id: id, key: key, op: func(ctx context.Context) error {
		return r.store.InsertContract(ctx, rec)
	}}, implicit, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func lowered(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.ToLower(strings.TrimSpace(*s))
	return &v
}

func splitContactName(name *string) (*string, *string) {
	if name == nil {
		return nil, nil
	}
	fields := strings.Fields(*name)
	switch len(fields) {
	case 0:
		return nil, nil
	case 1:
		return nil, &fields[0]
	default:
		first := fields[0]
		last := strings.Join(fields[1:], " ")
		return &first, &last
	}
}
