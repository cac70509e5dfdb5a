package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gestio-pm/gestio/modules/portfolio/domain/batch"
)

// SeedEntry is one pre-existing natural-key → storage-ID mapping.
type SeedEntry struct {
	Key batch.Key
	ID  uuid.UUID
}

// PortfolioStore is the storage boundary of the engine. Implementations
// must make every write visible to later reads inside the same WithinTx
// scope, and must discard all writes of a WithinTx/WithinSavepoint scope
// whose function returns an error.
type PortfolioStore interface {
	// SeedKeys loads all four families' natural keys for the tenant in one
	// round-trip, once, before processing begins.
	SeedKeys(ctx context.Context, tenantID uuid.UUID) ([]SeedEntry, error)

	// WithinTx runs fn inside one transaction scoped to the tenant.
	WithinTx(ctx context.Context, tenantID uuid.UUID, fn func(ctx context.Context) error) error
	// WithinSavepoint runs fn inside a nested scope of the enclosing
	// WithinTx so a failing row can be rolled back without poisoning the
	// phase transaction.
	WithinSavepoint(ctx context.Context, fn func(ctx context.Context) error) error

	InsertBuilding(ctx context.Context, rec BuildingRecord) error
	UpdateBuilding(ctx context.Context, tenantID, id uuid.UUID, patch BuildingPatch) error
	InsertLot(ctx context.Context, rec LotRecord) error
	UpdateLot(ctx context.Context, tenantID, id uuid.UUID, patch LotPatch) error
	InsertContact(ctx context.Context, rec ContactRecord) error
	UpdateContact(ctx context.Context, tenantID, id uuid.UUID, patch ContactPatch) error
	InsertContract(ctx context.Context, rec ContractRecord) error
	UpdateContract(ctx context.Context, tenantID, id uuid.UUID, patch ContractPatch) error
}

// Records carry storage IDs pre-assigned at resolution time so rows later
// in the batch can reference entities that are still staged.

type BuildingRecord struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	Address          string
	AddressNorm      string
	PostalCode       *string
	City             *string
	ConstructionYear *int
	LotCount         *int
	CreatedBy        int64
}

type LotRecord struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	BuildingID *uuid.UUID
	Reference  string
	Floor      *string
	Category   *string
	Surface    *decimal.Decimal
	CreatedBy  int64
}

type ContactRecord struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Email     string
	FirstName *string
	LastName  *string
	Phone     *string
	Company   *string
	CreatedBy int64
}

type ContractRecord struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	LotID         uuid.UUID
	ContactID     uuid.UUID
	Role          string
	StartDate     *time.Time
	EndDate       *time.Time
	RentAmount    *decimal.Decimal
	ChargesAmount *decimal.Decimal
	CreatedBy     int64
}

// Patches carry only the columns present in the sheet row. A nil field is
// left untouched by the store; absent columns never null out stored values.

type BuildingPatch struct {
	PostalCode       *string
	City             *string
	ConstructionYear *int
	LotCount         *int
}

func (p BuildingPatch) IsZero() bool {
	return p.PostalCode == nil && p.City == nil && p.ConstructionYear == nil && p.LotCount == nil
}

type LotPatch struct {
	Floor    *string
	Category *string
	Surface  *decimal.Decimal
}

func (p LotPatch) IsZero() bool {
	return p.Floor == nil && p.Category == nil && p.Surface == nil
}

type ContactPatch struct {
	FirstName *string
	LastName  *string
	Phone     *string
	Company   *string
}

func (p ContactPatch) IsZero() bool {
	return p.FirstName == nil && p.LastName == nil && p.Phone == nil && p.Company == nil
}

type ContractPatch struct {
	StartDate     *time.Time
	EndDate       *time.Time
	RentAmount    *decimal.Decimal
	ChargesAmount *decimal.Decimal
}

func (p ContractPatch) IsZero() bool {
	return p.StartDate == nil && p.EndDate == nil && p.RentAmount == nil && p.ChargesAmount == nil
}
