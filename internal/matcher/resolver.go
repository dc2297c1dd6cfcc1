// Package matcher turns extracted page text into page rows matched against
// the recipient directory.
package matcher

import (
	"context"

	"github.com/foxzi/pagesend/internal/identifier"
	"github.com/foxzi/pagesend/internal/metrics"
	"github.com/foxzi/pagesend/internal/models"
)

// Directory is the lookup side of the recipient directory
type Directory interface {
	Known() *identifier.KnownSet
	FindByIdentifier(ctx context.Context, id string) (*models.Recipient, error)
}

// Resolver matches pages to recipients
type Resolver struct {
	dir Directory
}

func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve builds one row per page, in page order
func (r *Resolver) Resolve(ctx context.Context, pages []string) ([]models.PageRow, error) {
	known := r.dir.Known()
	rows := make([]models.PageRow, 0, len(pages))
	matched := 0

	for i, text := range pages {
		row := models.PageRow{
			Page:        i + 1,
			Nit:         identifier.Extract(text, known),
			TextPreview: preview(text, models.PreviewLength),
		}

		if row.Nit != "" {
			rec, err := r.dir.FindByIdentifier(ctx, row.Nit)
			if err != nil {
				return nil, err
			}
			row.Matched = rec
		}
		if row.Matched != nil {
			matched++
		}

		rows = append(rows, row)
	}

	metrics.AddPages(len(pages), matched)
	return rows, nil
}

// preview cuts s to at most n characters without splitting a rune
func preview(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
