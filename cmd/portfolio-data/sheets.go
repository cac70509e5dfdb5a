package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/gestio-pm/gestio/modules/portfolio/domain/batch"
)

// Sheet shapes. Every family is one sheet: a CSV file per family inside
// the input directory, or one worksheet per family in an XLSX workbook.
// Optional columns map to nil when the cell is empty, so an absent value
// never overwrites a stored one downstream.

const (
	sheetBuildings = "buildings"
	sheetLots      = "lots"
	sheetContacts  = "contacts"
	sheetContracts = "contracts"
)

// sheetSchema is the column contract of one family sheet. Required
// columns must be present; anything outside allowed is rejected so a
// typoed column name fails loudly instead of silently dropping data.
type sheetSchema struct {
	required []string
	allowed  []string
}

// checkHeader validates the column set and returns a name-to-position map.
func (s sheetSchema) checkHeader(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[name] = i
	}
	for _, req := range s.required {
		if _, ok := idx[req]; !ok {
			return nil, fmt.Errorf("missing required header column: %s", req)
		}
	}
	known := make(map[string]struct{}, len(s.allowed))
	for _, a := range s.allowed {
		known[a] = struct{}{}
	}
	for _, name := range header {
		if _, ok := known[name]; !ok {
			return nil, fmt.Errorf("unexpected header column: %s", name)
		}
	}
	return idx, nil
}

var sheetSchemas = map[string]sheetSchema{
	sheetBuildings: {
		required: []string{"address"},
		allowed:  []string{"address", "postal_code", "city", "construction_year", "lot_count"},
	},
	sheetLots: {
		required: []string{"reference"},
		allowed:  []string{"reference", "building_address", "floor", "category", "surface"},
	},
	sheetContacts: {
		required: []string{"email"},
		allowed:  []string{"email", "first_name", "last_name", "phone", "company"},
	},
	sheetContracts: {
		required: []string{"lot_reference", "contact_email", "role"},
		allowed: []string{
			"lot_reference", "building_address", "contact_email", "contact_name",
			"role", "start_date", "end_date", "rent_amount", "charges_amount",
		},
	},
}

// sheetRow is one data row with header-addressed cells. Line is 1-based
// and counts the header, matching what a user sees in a spreadsheet.
type sheetRow struct {
	line  int
	cells map[string]string
}

func (r sheetRow) get(name string) string {
	return strings.TrimSpace(r.cells[name])
}

func (r sheetRow) optString(name string) *string {
	v := r.get(name)
	if v == "" {
		return nil
	}
	return &v
}

func (r sheetRow) optInt(name string) (*int, error) {
	v := r.get(name)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("line %d: %s: invalid integer: %s", r.line, name, v)
	}
	return &n, nil
}

func (r sheetRow) optDecimal(name string) (*decimal.Decimal, error) {
	v := r.get(name)
	if v == "" {
		return nil, nil
	}
	// Agency exports use comma decimal separators.
	d, err := decimal.NewFromString(strings.ReplaceAll(v, ",", "."))
	if err != nil {
		return nil, fmt.Errorf("line %d: %s: invalid amount: %s", r.line, name, v)
	}
	return &d, nil
}

func rowsToRows(sheet string, header []string, records [][]string) ([]sheetRow, error) {
	idx, err := sheetSchemas[sheet].checkHeader(header)
	if err != nil {
		return nil, err
	}

	out := make([]sheetRow, 0, len(records))
	for i, rec := range records {
		if isBlankRecord(rec) {
			continue
		}
		cells := make(map[string]string, len(idx))
		for name, col := range idx {
			if col < len(rec) {
				cells[name] = rec[col]
			}
		}
		out = append(out, sheetRow{line: i + 2, cells: cells})
	}
	return out, nil
}

func isBlankRecord(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func buildBatch(sheets map[string][]sheetRow) (batch.ParsedBatch, error) {
	var b batch.ParsedBatch

	for _, r := range sheets[sheetBuildings] {
		year, err := r.optInt("construction_year")
		if err != nil {
			return b, err
		}
		count, err := r.optInt("lot_count")
		if err != nil {
			return b, err
		}
		b.Buildings = append(b.Buildings, batch.BuildingRow{
			Line:             r.line,
			Address:          r.get("address"),
			PostalCode:       r.optString("postal_code"),
			City:             r.optString("city"),
			ConstructionYear: year,
			LotCount:         count,
		})
	}

	for _, r := range sheets[sheetLots] {
		surface, err := r.optDecimal("surface")
		if err != nil {
			return b, err
		}
		b.Lots = append(b.Lots, batch.LotRow{
			Line:            r.line,
			Reference:       r.get("reference"),
			BuildingAddress: r.optString("building_address"),
			Floor:           r.optString("floor"),
			Category:        r.optString("category"),
			Surface:         surface,
		})
	}

	for _, r := range sheets[sheetContacts] {
		b.Contacts = append(b.Contacts, batch.ContactRow{
			Line:      r.line,
			Email:     r.get("email"),
			FirstName: r.optString("first_name"),
			LastName:  r.optString("last_name"),
			Phone:     r.optString("phone"),
			Company:   r.optString("company"),
		})
	}

	for _, r := range sheets[sheetContracts] {
		row := batch.ContractRow{
			Line:            r.line,
			LotReference:    r.get("lot_reference"),
			BuildingAddress: r.optString("building_address"),
			ContactEmail:    r.get("contact_email"),
			ContactName:     r.optString("contact_name"),
			Role:            r.get("role"),
		}
		if v := r.get("start_date"); v != "" {
			t, err := parseDateField(v)
			if err != nil {
				return b, fmt.Errorf("line %d: start_date: %w", r.line, err)
			}
			row.StartDate = &t
		}
		if v := r.get("end_date"); v != "" {
			t, err := parseDateField(v)
			if err != nil {
				return b, fmt.Errorf("line %d: end_date: %w", r.line, err)
			}
			row.EndDate = &t
		}
		rent, err := r.optDecimal("rent_amount")
		if err != nil {
			return b, err
		}
		charges, err := r.optDecimal("charges_amount")
		if err != nil {
			return b, err
		}
		row.RentAmount = rent
		row.ChargesAmount = charges
		b.Contracts = append(b.Contracts, row)
	}

	return b, nil
}
