package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestio-pm/gestio/modules/portfolio/domain/batch"
)

func TestRowValidator_Building(t *testing.T) {
	v := newRowValidator()

	assert.Nil(t, v.Building(batch.BuildingRow{Address: "12 Rue de la Paix"}))

	err := v.Building(batch.BuildingRow{Address: "   "})
	require.NotNil(t, err)
	assert.Equal(t, CodeMissingField, err.Code)
	assert.Equal(t, "address", err.Field)

	year := 99
	err = v.Building(batch.BuildingRow{Address: "12 Rue de la Paix", ConstructionYear: &year})
	require.NotNil(t, err)
	assert.Equal(t, CodeInvalidField, err.Code)
	assert.Equal(t, "construction_year", err.Field)

	count := -3
	err = v.Building(batch.BuildingRow{Address: "12 Rue de la Paix", LotCount: &count})
	require.NotNil(t, err)
	assert.Equal(t, CodeInvalidRange, err.Code)
	assert.Equal(t, "lot_count", err.Field)
}

func TestRowValidator_Lot(t *testing.T) {
	v := newRowValidator()

	assert.Nil(t, v.Lot(batch.LotRow{Reference: "A-101"}))

	err := v.Lot(batch.LotRow{Reference: ""})
	require.NotNil(t, err)
	assert.Equal(t, CodeMissingField, err.Code)
	assert.Equal(t, "reference", err.Field)

	category := "Apartment" // case folded before the oneof check
	assert.Nil(t, v.Lot(batch.LotRow{Reference: "A-101", Category: &category}))

	bogus := "boat"
	err = v.Lot(batch.LotRow{Reference: "A-101", Category: &bogus})
	require.NotNil(t, err)
	assert.Equal(t, CodeInvalidField, err.Code)
	assert.Equal(t, "category", err.Field)

	err = v.Lot(batch.LotRow{Reference: "A-101", Surface: decPtr("-1.5")})
	require.NotNil(t, err)
	assert.Equal(t, CodeInvalidRange, err.Code)
	assert.Equal(t, "surface", err.Field)
}

func TestRowValidator_Contact(t *testing.T) {
	v := newRowValidator()

	assert.Nil(t, v.Contact(batch.ContactRow{Email: "  A@X.com "}))

	err := v.Contact(batch.ContactRow{Email: ""})
	require.NotNil(t, err)
	assert.Equal(t, CodeMissingField, err.Code)

	err = v.Contact(batch.ContactRow{Email: "not-an-email"})
	require.NotNil(t, err)
	assert.Equal(t, CodeInvalidField, err.Code)
	assert.Equal(t, "email", err.Field)
}

func TestRowValidator_Contract(t *testing.T) {
	v := newRowValidator()

	valid := batch.ContractRow{LotReference: "A-101", ContactEmail: "a@x.com", Role: "Owner"}
	assert.Nil(t, v.Contract(valid))

	err := v.Contract(batch.ContractRow{LotReference: "A-101", ContactEmail: "a@x.com", Role: "landlord"})
	require.NotNil(t, err)
	assert.Equal(t, CodeInvalidField, err.Code)
	assert.Equal(t, "role", err.Field)

	err = v.Contract(batch.ContractRow{ContactEmail: "a@x.com", Role: "owner"})
	require.NotNil(t, err)
	assert.Equal(t, CodeMissingField, err.Code)
	assert.Equal(t, "lot_reference", err.Field)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, -1, 0)
	row := valid
	row.StartDate = &start
	row.EndDate = &end
	err = v.Contract(row)
	require.NotNil(t, err)
	assert.Equal(t, CodeInvalidRange, err.Code)
	assert.Equal(t, "end_date", err.Field)

	row = valid
	row.RentAmount = decPtr("-820")
	err = v.Contract(row)
	require.NotNil(t, err)
	assert.Equal(t, CodeInvalidRange, err.Code)
	assert.Equal(t, "rent_amount", err.Field)
}
