// Package spreadsheet reads the recipient seed file (xlsx or csv).
package spreadsheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Kind is the format of a seed file
type Kind string

const (
	KindXLSX Kind = "xlsx"
	KindCSV  Kind = "csv"
)

var ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")

// Row is one data row with raw cell values. Validation is left to the caller.
type Row struct {
	Line       int // 1-based line in the sheet, header is line 1
	Identifier string
	Name       string
	Email      string
}

// KindFromPath derives the format from a file extension
func KindFromPath(path string) (Kind, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return KindXLSX, nil
	case ".csv":
		return KindCSV, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// ParseFile reads the seed file at path
func ParseFile(path string) ([]Row, error) {
	kind, err := KindFromPath(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Parse(f, kind)
}

// Parse reads rows from r. Only the first worksheet of a workbook is used.
func Parse(r io.Reader, kind Kind) ([]Row, error) {
	var (
		records [][]string
		err     error
	)

	switch kind {
	case KindXLSX:
		records, err = readWorkbook(r)
	case KindCSV:
		records, err = readCSV(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, kind)
	}
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return []Row{}, nil
	}

	idx := columnIndexes(records[0])
	cell := func(record []string, col Column) string {
		i, ok := idx[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	rows := make([]Row, 0, len(records)-1)
	for i, record := range records[1:] {
		if isBlank(record) {
			continue
		}
		rows = append(rows, Row{
			Line:       i + 2,
			Identifier: cell(record, ColumnIdentifier),
			Name:       cell(record, ColumnName),
			Email:      cell(record, ColumnEmail),
		})
	}

	return rows, nil
}

func readWorkbook(r io.Reader) ([][]string, error) {
	file, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}

	rows, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}
	return rows, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) > 0 && len(records[0]) > 0 {
		// Excel exports often start with a UTF-8 BOM
		records[0][0] = strings.TrimPrefix(records[0][0], "\ufeff")
	}
	return records, nil
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
