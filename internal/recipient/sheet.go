package recipient

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/xuri/excelize/v2"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ErrUnsupportedSheet is returned for uploads that are neither xlsx nor csv.
var ErrUnsupportedSheet = errors.New("unsupported spreadsheet format")

// ExtractSheet reads the first worksheet of an xlsx workbook, or a csv file,
// and returns the raw phone values found under the header row.
func (r *Resolver) ExtractSheet(filename string, data []byte) ([]string, error) {
	rows, err := readRows(filename, data)
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, nil
	}

	col := -1
	if r.rules.SheetColumn != "" {
		for i, h := range rows[0] {
			if strings.EqualFold(strings.TrimSpace(h), r.rules.SheetColumn) {
				col = i
				break
			}
		}
		if col < 0 {
			return nil, fmt.Errorf("column %q not found in sheet header", r.rules.SheetColumn)
		}
	}

	var values []string
	for _, row := range rows[1:] {
		v := pickCell(row, col)
		if v == "" {
			continue
		}
		if r.rules.SheetNumericOnly && !isDigits(v) {
			continue
		}
		values = append(values, v)
	}
	return values, nil
}

// pickCell returns the trimmed cell at col, or the first non-empty cell
// when col is negative.
func pickCell(row []string, col int) string {
	if col >= 0 {
		if col < len(row) {
			return strings.TrimSpace(row[col])
		}
		return ""
	}
	for _, c := range row {
		if v := strings.TrimSpace(c); v != "" {
			return v
		}
	}
	return ""
}

func readRows(filename string, data []byte) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return readWorkbook(data)
	case ".csv", ".txt":
		return readCSV(data)
	}

	m := mimetype.Detect(data)
	switch {
	case m.Is(xlsxMIME), m.Is("application/zip"):
		return readWorkbook(data)
	case m.Is("text/csv"), m.Is("text/plain"):
		return readCSV(data)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedSheet, m.String())
}

func readWorkbook(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}

	// Raw values keep long numbers out of scientific notation.
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	rd := csv.NewReader(bytes.NewReader(data))
	rd.FieldsPerRecord = -1
	rd.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := rd.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse csv: %w", err)
		}
		rows = append(rows, rec)
	}
	return rows, nil
}
