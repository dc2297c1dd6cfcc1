package directory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/foxzi/pagesend/internal/db"
	"github.com/foxzi/pagesend/internal/models"
	"github.com/foxzi/pagesend/internal/repository"
	"github.com/foxzi/pagesend/internal/spreadsheet"
)

func newTestDirectory(t *testing.T) *Directory {
	t.Helper()

	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := database.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d, err := New(context.Background(), repository.NewRecipientRepository(database.DB), logger)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return d
}

func TestUpsertByIdentifierRoundTrip(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()

	if _, err := d.UpsertByIdentifier(ctx, "900.123.456", "Acme SAS", "old@acme.com"); err != nil {
		t.Fatalf("first upsert error = %v", err)
	}
	rec, err := d.UpsertByIdentifier(ctx, "900123456", "Acme SAS", "new@acme.com")
	if err != nil {
		t.Fatalf("second upsert error = %v", err)
	}

	list, err := d.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("len(List()) = %d, want 1", len(list))
	}
	if list[0].Email != "new@acme.com" {
		t.Errorf("Email = %q, want new@acme.com", list[0].Email)
	}
	if rec.Nit != "900123456" {
		t.Errorf("Nit = %q, want 900123456", rec.Nit)
	}
	if !d.Known().Contains("900123456") {
		t.Error("known set does not contain upserted identifier")
	}
}

func TestValidation(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		in    Input
		field string
	}{
		{"empty name", Input{Identifier: "900123456", Name: "  ", Email: "a@b.co"}, "nombre"},
		{"bad email", Input{Identifier: "900123456", Name: "Acme", Email: "not-an-email"}, "email"},
		{"bad email by name", Input{Name: "Acme", Email: "a@b"}, "email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Save(ctx, tt.in)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Save() error = %v, want ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Errorf("Field = %q, want %q", verr.Field, tt.field)
			}
		})
	}

	if n, _ := d.Count(ctx); n != 0 {
		t.Errorf("Count() = %d, want 0 after rejected saves", n)
	}
}

func TestSaveOutcomes(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()

	res, err := d.Save(ctx, Input{Name: "Beta Ltda", Email: "beta@example.com"})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if res.Outcome != models.OutcomeCreated {
		t.Errorf("Outcome = %q, want created", res.Outcome)
	}
	if res.Recipient.Nit != "" {
		t.Errorf("Nit = %q, want empty", res.Recipient.Nit)
	}

	res, err = d.Save(ctx, Input{Name: "BETA LTDA", Email: "otro@example.com"})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if res.Outcome != models.OutcomeUpdated {
		t.Errorf("Outcome = %q, want updated", res.Outcome)
	}
	if res.Recipient.Email != "otro@example.com" {
		t.Errorf("Email = %q, want otro@example.com", res.Recipient.Email)
	}

	// Identifier with no digits is treated as absent
	res, err = d.Save(ctx, Input{Identifier: "n/a", Name: "Beta Ltda", Email: "tercero@example.com"})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if res.Outcome != models.OutcomeUpdated {
		t.Errorf("Outcome = %q, want updated", res.Outcome)
	}

	res, err = d.Save(ctx, Input{Identifier: "800-555-111", Name: "Gamma", Email: "g@example.com"})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if res.Outcome != models.OutcomeUpserted {
		t.Errorf("Outcome = %q, want upserted", res.Outcome)
	}

	if n, _ := d.Count(ctx); n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}

	// Names outside ASCII fold too
	res, err = d.Save(ctx, Input{Name: "Peña Ñandú S.A.S", Email: "pena@example.com"})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if res.Outcome != models.OutcomeCreated {
		t.Errorf("Outcome = %q, want created", res.Outcome)
	}
	res, err = d.Save(ctx, Input{Name: "PEÑA ÑANDÚ S.A.S", Email: "nandu@example.com"})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if res.Outcome != models.OutcomeUpdated {
		t.Errorf("Outcome = %q, want updated", res.Outcome)
	}
	if res.Recipient.Email != "nandu@example.com" {
		t.Errorf("Email = %q, want nandu@example.com", res.Recipient.Email)
	}
	if n, _ := d.Count(ctx); n != 3 {
		t.Errorf("Count() = %d, want 3", n)
	}
}

func TestFind(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()

	if _, err := d.UpsertByIdentifier(ctx, "900123456", "Acme SAS", "a@acme.com"); err != nil {
		t.Fatal(err)
	}

	rec, err := d.FindByIdentifier(ctx, "900.123.456")
	if err != nil || rec == nil {
		t.Fatalf("FindByIdentifier() = %v, %v", rec, err)
	}
	rec, err = d.FindByName(ctx, "acme sas")
	if err != nil || rec == nil {
		t.Fatalf("FindByName() = %v, %v", rec, err)
	}

	if _, _, err := d.UpsertByNameFallback(ctx, "Peña Ñandú S.A.S", "pena@example.com"); err != nil {
		t.Fatal(err)
	}
	rec, err = d.FindByName(ctx, "PEÑA ÑANDÚ S.A.S")
	if err != nil || rec == nil {
		t.Fatalf("FindByName(upper accented) = %v, %v", rec, err)
	}
	if rec.Name != "Peña Ñandú S.A.S" {
		t.Errorf("Name = %q, want stored spelling", rec.Name)
	}
	rec, err = d.FindByName(ctx, "Pena Nandu S.A.S")
	if err != nil || rec != nil {
		t.Errorf("FindByName(unaccented) = %v, %v, want nil, nil", rec, err)
	}

	rec, err = d.FindByIdentifier(ctx, "111111111")
	if err != nil || rec != nil {
		t.Errorf("FindByIdentifier(unknown) = %v, %v, want nil, nil", rec, err)
	}
	rec, err = d.FindByIdentifier(ctx, "")
	if err != nil || rec != nil {
		t.Errorf("FindByIdentifier(\"\") = %v, %v, want nil, nil", rec, err)
	}
}

func TestDelete(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()

	rec, err := d.UpsertByIdentifier(ctx, "900123456", "Acme SAS", "a@acme.com")
	if err != nil {
		t.Fatal(err)
	}

	if err := d.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if d.Known().Contains("900123456") {
		t.Error("known set still contains deleted identifier")
	}
	if err := d.Delete(ctx, rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() twice error = %v, want ErrNotFound", err)
	}
}

func TestImportIdempotent(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()

	rows := []spreadsheet.Row{
		{Line: 2, Identifier: "900.123.456", Name: "Acme SAS", Email: "a@acme.com"},
		{Line: 3, Identifier: "800555111", Name: "Beta", Email: "beta@example.com"},
		{Line: 4, Identifier: "", Name: "Sin Nit", Email: "x@example.com"},
		{Line: 5, Identifier: "700000001", Name: "", Email: "y@example.com"},
		{Line: 6, Identifier: "700000002", Name: "Mal Correo", Email: "correo"},
	}

	first, err := d.Import(ctx, rows)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if first.Total != 5 || first.Processed != 2 || first.Skipped != 3 {
		t.Errorf("Import() = %+v, want total 5 processed 2 skipped 3", first)
	}

	before, _ := d.List(ctx)

	second, err := d.Import(ctx, rows)
	if err != nil {
		t.Fatalf("second Import() error = %v", err)
	}
	if *second != *first {
		t.Errorf("second Import() = %+v, want %+v", second, first)
	}

	after, _ := d.List(ctx)
	if len(after) != len(before) {
		t.Fatalf("len after = %d, want %d", len(after), len(before))
	}
	for i := range before {
		if before[i].ID != after[i].ID || before[i].Nit != after[i].Nit || before[i].Email != after[i].Email {
			t.Errorf("row %d changed: %+v -> %+v", i, before[i], after[i])
		}
	}

	if d.Known().Len() != 2 {
		t.Errorf("Known().Len() = %d, want 2", d.Known().Len())
	}
}

func TestReimportFileMissing(t *testing.T) {
	d := newTestDirectory(t)

	res, err := d.ReimportFile(context.Background(), filepath.Join(t.TempDir(), "terceros.xlsx"))
	if err != nil {
		t.Fatalf("ReimportFile() error = %v", err)
	}
	if res.Message != MessageSeedNotFound {
		t.Errorf("Message = %q, want %q", res.Message, MessageSeedNotFound)
	}
	if res.Processed != 0 || res.Total != 0 || res.Skipped != 0 {
		t.Errorf("counts = %+v, want zero", res)
	}
}

func TestReimportFileCSV(t *testing.T) {
	d := newTestDirectory(t)
	path := filepath.Join(t.TempDir(), "terceros.csv")
	data := "NIT,Nombre Tercero,Correo\n900123456,Acme,a@acme.com\n,Nadie,n@example.com\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := d.ReimportFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ReimportFile() error = %v", err)
	}
	if res.Processed != 1 || res.Skipped != 1 || res.Total != 2 {
		t.Errorf("ReimportFile() = %+v", res)
	}
	if !d.Known().Contains("900123456") {
		t.Error("known set not refreshed after import")
	}
}
