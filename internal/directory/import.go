package directory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/foxzi/pagesend/internal/identifier"
	"github.com/foxzi/pagesend/internal/metrics"
	"github.com/foxzi/pagesend/internal/models"
	"github.com/foxzi/pagesend/internal/repository"
	"github.com/foxzi/pagesend/internal/spreadsheet"
)

// MessageSeedNotFound is reported when the seed file does not exist
const MessageSeedNotFound = "excel no encontrado"

// Import upserts every valid row by identifier inside one transaction.
// Rows without identifier, name or a well-formed email are skipped.
func (d *Directory) Import(ctx context.Context, rows []spreadsheet.Row) (*models.ImportResult, error) {
	result := &models.ImportResult{Total: len(rows)}

	err := d.repo.WithTx(ctx, func(tx *repository.RecipientRepository) error {
		for _, row := range rows {
			nit := identifier.Normalize(row.Identifier)
			name := strings.TrimSpace(row.Name)
			email := strings.TrimSpace(row.Email)

			if nit == "" || name == "" || !identifier.IsEmail(email) {
				result.Skipped++
				d.logger.Debug("import row skipped", "line", row.Line)
				continue
			}

			rec := &models.Recipient{Nit: nit, Name: name, Email: email}
			if err := tx.UpsertByNit(ctx, rec); err != nil {
				return fmt.Errorf("line %d: %w", row.Line, err)
			}
			result.Processed++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("import failed: %w", err)
	}

	if err := d.Refresh(ctx); err != nil {
		return nil, err
	}

	metrics.AddImportRows(result.Processed, result.Skipped)
	d.logger.Info("import finished",
		"total", result.Total,
		"processed", result.Processed,
		"skipped", result.Skipped,
	)
	return result, nil
}

// ReimportFile parses the seed spreadsheet at path and imports it.
// A missing file is not an error: the result carries MessageSeedNotFound.
func (d *Directory) ReimportFile(ctx context.Context, path string) (*models.ImportResult, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		d.logger.Warn("seed file not found", "path", path)
		return &models.ImportResult{Message: MessageSeedNotFound}, nil
	}

	rows, err := spreadsheet.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return d.Import(ctx, rows)
}
