package db

import (
	"path/filepath"
	"testing"
)

func TestNewAndMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "pagesend.db")

	database, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	// Migrations must be re-runnable
	if err := database.Migrate(); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	var count int
	if err := database.QueryRow("SELECT COUNT(*) FROM terceros").Scan(&count); err != nil {
		t.Fatalf("terceros table missing: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}

func TestNullNitIsNotUnique(t *testing.T) {
	database, err := New(":memory:")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := database.Exec("INSERT INTO terceros (nit, nombre, email) VALUES (NULL, 'x', 'x@example.com')"); err != nil {
			t.Fatalf("insert %d with NULL nit failed: %v", i, err)
		}
	}

	if _, err := database.Exec("INSERT INTO terceros (nit, nombre, email) VALUES ('123', 'a', 'a@example.com')"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if _, err := database.Exec("INSERT INTO terceros (nit, nombre, email) VALUES ('123', 'b', 'b@example.com')"); err == nil {
		t.Error("expected unique violation for duplicate nit")
	}
}
