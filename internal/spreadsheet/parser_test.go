package spreadsheet

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, rows [][]any) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		r := row
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			t.Fatalf("SetSheetRow() error = %v", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer() error = %v", err)
	}
	return buf.Bytes()
}

func TestFoldHeader(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"NIT", "nit"},
		{"  Nombre   Tercero ", "nombre tercero"},
		{"Correo Electrónico", "correo electronico"},
		{"RAZÓN_SOCIAL", "razon social"},
	}
	for _, tt := range tests {
		if got := FoldHeader(tt.in); got != tt.want {
			t.Errorf("FoldHeader(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLookupColumn(t *testing.T) {
	tests := []struct {
		header string
		want   Column
	}{
		{"Nit", ColumnIdentifier},
		{"Identificación", ColumnIdentifier},
		{"Nombre Tercero", ColumnName},
		{"CORREO", ColumnEmail},
		{"E-mail", ColumnEmail},
		{"Telefono", ColumnNone},
	}
	for _, tt := range tests {
		if got := LookupColumn(tt.header); got != tt.want {
			t.Errorf("LookupColumn(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

func TestParseWorkbook(t *testing.T) {
	data := buildWorkbook(t, [][]any{
		{"NIT", "Nombre Tercero", "Telefono", "Correo"},
		{"900.123.456", "Acme SAS", "555", "facturas@acme.com"},
		{"", "", "", ""},
		{"800555111", " Beta ", "", "beta@example.com"},
		{"811222333", "Sin correo"},
	})

	rows, err := Parse(bytes.NewReader(data), KindXLSX)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d, want 3 (blank row dropped)", len(rows))
	}

	if rows[0].Identifier != "900.123.456" || rows[0].Name != "Acme SAS" || rows[0].Email != "facturas@acme.com" {
		t.Errorf("rows[0] = %+v", rows[0])
	}
	if rows[0].Line != 2 {
		t.Errorf("rows[0].Line = %d, want 2", rows[0].Line)
	}
	if rows[1].Name != "Beta" {
		t.Errorf("rows[1].Name = %q, want trimmed Beta", rows[1].Name)
	}
	if rows[1].Line != 4 {
		t.Errorf("rows[1].Line = %d, want 4", rows[1].Line)
	}
	if rows[2].Email != "" {
		t.Errorf("rows[2].Email = %q, want empty for short row", rows[2].Email)
	}
}

func TestParseCSV(t *testing.T) {
	input := "\ufeffnit,nombre,email\n123-4567,Gamma,gamma@example.com\n,Delta,delta@example.com\n"

	rows, err := Parse(strings.NewReader(input), KindCSV)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	if rows[0].Identifier != "123-4567" {
		t.Errorf("rows[0].Identifier = %q, want BOM-stripped header match", rows[0].Identifier)
	}
	if rows[1].Identifier != "" || rows[1].Name != "Delta" {
		t.Errorf("rows[1] = %+v", rows[1])
	}
}

func TestParseMissingColumns(t *testing.T) {
	rows, err := Parse(strings.NewReader("foo,bar\n1,2\n"), KindCSV)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(rows))
	}
	if rows[0] != (Row{Line: 2}) {
		t.Errorf("rows[0] = %+v, want empty values", rows[0])
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "terceros.xlsx")
	data := buildWorkbook(t, [][]any{
		{"Nit", "Nombre", "Email"},
		{"900123456", "Acme", "a@acme.com"},
	})
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	rows, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("len(rows) = %d, want 1", len(rows))
	}

	if _, err := ParseFile(filepath.Join(dir, "terceros.ods")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("ParseFile(.ods) error = %v, want ErrUnsupportedFormat", err)
	}
}
