// Package batch holds the parsed spreadsheet model consumed by the import
// engine: one ordered slice of rows per entity family, plus the natural
// keys used to reconcile rows against stored entities. The package is
// pure; parsing file formats and talking to storage happen elsewhere.
package batch

import (
	"time"

	"github.com/shopspring/decimal"
)

type Family string

const (
	FamilyBuilding Family = "building"
	FamilyLot      Family = "lot"
	FamilyContact  Family = "contact"
	FamilyContract Family = "contract"
)

// Families returns the fixed processing order. Lots may reference
// buildings created earlier in the same run; contracts may reference both
// lots and contacts. The order is load-bearing and must not change.
func Families() []Family {
	return []Family{FamilyBuilding, FamilyLot, FamilyContact, FamilyContract}
}

// ParsedBatch is the immutable input of one import run.
type ParsedBatch struct {
	Buildings []BuildingRow
	Lots      []LotRow
	Contacts  []ContactRow
	Contracts []ContractRow
}

func (b ParsedBatch) Len(f Family) int {
	switch f {
	case FamilyBuilding:
		return len(b.Buildings)
	case FamilyLot:
		return len(b.Lots)
	case FamilyContact:
		return len(b.Contacts)
	case FamilyContract:
		return len(b.Contracts)
	}
	return 0
}

func (b ParsedBatch) TotalRows() int {
	return len(b.Buildings) + len(b.Lots) + len(b.Contacts) + len(b.Contracts)
}

// Row structs carry the 1-based line number of their source sheet and
// pointer-typed optional columns: a nil pointer means the column was
// absent, which must never overwrite a stored value.

type BuildingRow struct {
	Line             int
	Address          string
	PostalCode       *string
	City             *string
	ConstructionYear *int
	LotCount         *int
}

type LotRow struct {
	Line      int
	Reference string
	// BuildingAddress is a batch-local reference: the building address as
	// written in the sheet, not a storage ID. Nil for standalone lots.
	BuildingAddress *string
	Floor           *string
	Category        *string
	Surface         *decimal.Decimal
}

type ContactRow struct {
	Line      int
	Email     string
	FirstName *string
	LastName  *string
	Phone     *string
	Company   *string
}

type ContractRow struct {
	Line            int
	LotReference    string
	BuildingAddress *string
	ContactEmail    string
	// ContactName feeds implicit contact creation when the email has no
	// explicit contact row.
	ContactName   *string
	Role          string
	StartDate     *time.Time
	EndDate       *time.Time
	RentAmount    *decimal.Decimal
	ChargesAmount *decimal.Decimal
}
