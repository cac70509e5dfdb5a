package main

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/gestio-pm/gestio/modules/portfolio/domain/batch"
)

// loadBatch reads the input into a ParsedBatch. A path ending in .xlsx is
// one workbook with a worksheet per family; anything else is a directory
// of per-family CSV files. Missing sheets mean "no rows of that family",
// so a contacts-only import is a one-file directory.
func loadBatch(path string) (batch.ParsedBatch, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return loadXLSX(path)
	}
	return loadCSVDir(path)
}

func loadCSVDir(dir string) (batch.ParsedBatch, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return batch.ParsedBatch{}, err
	}
	if !info.IsDir() {
		return batch.ParsedBatch{}, fmt.Errorf("%s is neither a directory nor an .xlsx workbook", dir)
	}

	sheets := make(map[string][]sheetRow, 4)
	found := false
	for _, sheet := range []string{sheetBuildings, sheetLots, sheetContacts, sheetContracts} {
		path := filepath.Join(dir, sheet+".csv")
		rows, ok, err := parseCSVSheet(sheet, path)
		if err != nil {
			return batch.ParsedBatch{}, fmt.Errorf("%s.csv: %w", sheet, err)
		}
		if ok {
			sheets[sheet] = rows
			found = true
		}
	}
	if !found {
		return batch.ParsedBatch{}, fmt.Errorf("no sheet files found in %s", dir)
	}
	return buildBatch(sheets)
}

// parseCSVSheet reads one per-family CSV file. A missing file is not an
// error; the family simply has no rows.
func parseCSVSheet(sheet, path string) ([]sheetRow, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer func() { _ = f.Close() }()

	br := bufio.NewReader(f)
	// Spreadsheet exports routinely start with a UTF-8 BOM.
	if lead, peekErr := br.Peek(3); peekErr == nil && bytes.Equal(lead, []byte{0xEF, 0xBB, 0xBF}) {
		_, _ = br.Discard(3)
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, false, fmt.Errorf("missing header")
		}
		return nil, false, err
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
		if !utf8.ValidString(header[i]) {
			return nil, false, fmt.Errorf("invalid header encoding")
		}
	}

	records, err := cr.ReadAll()
	if err != nil {
		return nil, false, err
	}
	rows, err := rowsToRows(sheet, header, records)
	if err != nil {
		return nil, false, err
	}
	return rows, true, nil
}

func loadXLSX(path string) (batch.ParsedBatch, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return batch.ParsedBatch{}, err
	}
	defer func() { _ = f.Close() }()

	sheets := make(map[string][]sheetRow, 4)
	found := false
	for _, sheet := range []string{sheetBuildings, sheetLots, sheetContacts, sheetContracts} {
		idx, err := f.GetSheetIndex(sheet)
		if err != nil {
			return batch.ParsedBatch{}, err
		}
		if idx < 0 {
			continue
		}
		all, err := f.GetRows(sheet)
		if err != nil {
			return batch.ParsedBatch{}, fmt.Errorf("sheet %s: %w", sheet, err)
		}
		if len(all) == 0 {
			continue
		}
		header := all[0]
		for i := range header {
			header[i] = strings.TrimSpace(header[i])
		}
		rows, err := rowsToRows(sheet, header, all[1:])
		if err != nil {
			return batch.ParsedBatch{}, fmt.Errorf("sheet %s: %w", sheet, err)
		}
		sheets[sheet] = rows
		found = true
	}
	if !found {
		return batch.ParsedBatch{}, fmt.Errorf("workbook %s has none of the expected worksheets", path)
	}
	return buildBatch(sheets)
}
