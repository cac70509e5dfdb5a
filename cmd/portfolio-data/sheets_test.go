package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadCSVDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "buildings.csv", "address,postal_code,city\n12 Rue de la Paix,75002,Paris\n")
	writeFile(t, dir, "lots.csv", "reference,building_address,surface\nA-101,12 Rue de la Paix,\"54,3\"\n\n")
	writeFile(t, dir, "contracts.csv", "lot_reference,building_address,contact_email,role,start_date,rent_amount\nA-101,12 Rue de la Paix,a@x.com,owner,2026-01-01,820\n")

	b, err := loadBatch(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(b.Buildings) != 1 || len(b.Lots) != 1 || len(b.Contacts) != 0 || len(b.Contracts) != 1 {
		t.Fatalf("unexpected row counts: %d/%d/%d/%d", len(b.Buildings), len(b.Lots), len(b.Contacts), len(b.Contracts))
	}
	if b.Buildings[0].Line != 2 {
		t.Fatalf("unexpected line: %d", b.Buildings[0].Line)
	}
	if b.Buildings[0].City == nil || *b.Buildings[0].City != "Paris" {
		t.Fatalf("city not parsed")
	}
	if b.Buildings[0].ConstructionYear != nil {
		t.Fatalf("absent column must stay nil")
	}
	if b.Lots[0].Surface == nil || b.Lots[0].Surface.String() != "54.3" {
		t.Fatalf("comma decimal not parsed: %v", b.Lots[0].Surface)
	}
	ct := b.Contracts[0]
	if ct.StartDate == nil || ct.StartDate.Format("2006-01-02") != "2026-01-01" {
		t.Fatalf("start_date not parsed: %v", ct.StartDate)
	}
	if ct.RentAmount == nil || ct.RentAmount.String() != "820" {
		t.Fatalf("rent_amount not parsed: %v", ct.RentAmount)
	}
}

func TestLoadCSVDir_BOMHeader(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "contacts.csv", "\xEF\xBB\xBFemail,first_name\na@x.com,Anna\n")

	b, err := loadBatch(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b.Contacts) != 1 || b.Contacts[0].Email != "a@x.com" {
		t.Fatalf("BOM header not handled: %+v", b.Contacts)
	}
}

func TestLoadCSVDir_RejectsUnknownColumn(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "buildings.csv", "address,color\n12 Rue de la Paix,blue\n")

	_, err := loadBatch(dir)
	if err == nil || !strings.Contains(err.Error(), "unexpected header column") {
		t.Fatalf("expected header error, got: %v", err)
	}
}

func TestLoadCSVDir_RejectsMissingRequiredColumn(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "contracts.csv", "lot_reference,contact_email\nA-101,a@x.com\n")

	_, err := loadBatch(dir)
	if err == nil || !strings.Contains(err.Error(), "missing required header column: role") {
		t.Fatalf("expected header error, got: %v", err)
	}
}

func TestLoadCSVDir_InvalidAmount(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lots.csv", "reference,surface\nA-101,not-a-number\n")

	_, err := loadBatch(dir)
	if err == nil || !strings.Contains(err.Error(), "line 2: surface") {
		t.Fatalf("expected amount error, got: %v", err)
	}
}

func TestLoadCSVDir_Empty(t *testing.T) {
	dir := t.TempDir()
	if _, err := loadBatch(dir); err == nil {
		t.Fatal("expected error for empty input dir")
	}
}

func TestLoadXLSX(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "portfolio.xlsx")

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if _, err := f.NewSheet("buildings"); err != nil {
		t.Fatalf("new sheet: %v", err)
	}
	mustSetRow(t, f, "buildings", 1, []any{"address", "postal_code"})
	mustSetRow(t, f, "buildings", 2, []any{"12 Rue de la Paix", "75002"})

	if _, err := f.NewSheet("contacts"); err != nil {
		t.Fatalf("new sheet: %v", err)
	}
	mustSetRow(t, f, "contacts", 1, []any{"email", "last_name"})
	mustSetRow(t, f, "contacts", 2, []any{"a@x.com", "Martin"})
	mustSetRow(t, f, "contacts", 3, []any{"", ""})

	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}

	b, err := loadBatch(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b.Buildings) != 1 || len(b.Contacts) != 1 {
		t.Fatalf("unexpected row counts: %d buildings, %d contacts", len(b.Buildings), len(b.Contacts))
	}
	if b.Contacts[0].LastName == nil || *b.Contacts[0].LastName != "Martin" {
		t.Fatalf("last_name not parsed: %+v", b.Contacts[0])
	}
}

func mustSetRow(t *testing.T, f *excelize.File, sheet string, row int, values []any) {
	t.Helper()
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		t.Fatalf("cell name: %v", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		t.Fatalf("set row: %v", err)
	}
}

func TestParseDateField(t *testing.T) {
	for _, v := range []string{"2026-01-01", "01/01/2026", "2026-01-01T00:00:00Z"} {
		got, err := parseDateField(v)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", v, err)
		}
		if got.Format("2006-01-02") != "2026-01-01" {
			t.Fatalf("%s: parsed to %s", v, got)
		}
	}
	if _, err := parseDateField("January 1st"); err == nil {
		t.Fatal("expected error for free-form date")
	}
}
