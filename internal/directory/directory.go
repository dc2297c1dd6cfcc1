// Package directory manages the recipient directory and keeps the set of
// known identifiers in sync with it.
package directory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/foxzi/pagesend/internal/identifier"
	"github.com/foxzi/pagesend/internal/metrics"
	"github.com/foxzi/pagesend/internal/models"
	"github.com/foxzi/pagesend/internal/repository"
)

// Directory is the recipient directory service
type Directory struct {
	repo   *repository.RecipientRepository
	known  *identifier.KnownSet
	logger *slog.Logger
}

// Input is a recipient as submitted by the operator
type Input struct {
	Identifier string
	Name       string
	Email      string
}

// SaveResult is the stored recipient and how it was saved
type SaveResult struct {
	Recipient *models.Recipient
	Outcome   models.SaveOutcome
}

// New creates a directory and loads the known identifiers from the store
func New(ctx context.Context, repo *repository.RecipientRepository, logger *slog.Logger) (*Directory, error) {
	d := &Directory{
		repo:   repo,
		known:  identifier.NewKnownSet(),
		logger: logger.With("component", "directory"),
	}
	if err := d.Refresh(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// Known returns the live set of identifiers present in the directory
func (d *Directory) Known() *identifier.KnownSet {
	return d.known
}

// Refresh rebuilds the known identifier set from the store
func (d *Directory) Refresh(ctx context.Context) error {
	nits, err := d.repo.Nits(ctx)
	if err != nil {
		return fmt.Errorf("failed to load identifiers: %w", err)
	}
	d.known.Replace(nits)
	d.updateGauge(ctx)
	return nil
}

// List returns all recipients ordered by name
func (d *Directory) List(ctx context.Context) ([]models.Recipient, error) {
	return d.repo.List(ctx)
}

// Count returns the number of recipients
func (d *Directory) Count(ctx context.Context) (int, error) {
	return d.repo.Count(ctx)
}

// Save stores a recipient by identifier when one is given, by name otherwise
func (d *Directory) Save(ctx context.Context, in Input) (*SaveResult, error) {
	if nit := identifier.Normalize(in.Identifier); nit != "" {
		rec, err := d.UpsertByIdentifier(ctx, nit, in.Name, in.Email)
		if err != nil {
			return nil, err
		}
		return &SaveResult{Recipient: rec, Outcome: models.OutcomeUpserted}, nil
	}

	rec, outcome, err := d.UpsertByNameFallback(ctx, in.Name, in.Email)
	if err != nil {
		return nil, err
	}
	return &SaveResult{Recipient: rec, Outcome: outcome}, nil
}

// UpsertByIdentifier inserts the recipient or updates name and email of the
// one holding the same identifier
func (d *Directory) UpsertByIdentifier(ctx context.Context, id, name, email string) (*models.Recipient, error) {
	name, email, err := validate(name, email)
	if err != nil {
		return nil, err
	}

	nit := identifier.Normalize(id)
	if nit == "" {
		return nil, &ValidationError{Field: "nit", Message: "nit inválido"}
	}

	rec := &models.Recipient{Nit: nit, Name: name, Email: email}
	if err := d.repo.UpsertByNit(ctx, rec); err != nil {
		return nil, err
	}

	d.known.Add(nit)
	d.updateGauge(ctx)
	d.logger.Info("recipient upserted", "id", rec.ID, "nit", nit)
	return rec, nil
}

// UpsertByNameFallback updates the email of the recipient with the same
// name (case-insensitive) or inserts a new one without identifier
func (d *Directory) UpsertByNameFallback(ctx context.Context, name, email string) (*models.Recipient, models.SaveOutcome, error) {
	name, email, err := validate(name, email)
	if err != nil {
		return nil, "", err
	}

	existing, err := d.repo.GetByName(ctx, name)
	if err != nil {
		return nil, "", err
	}

	if existing != nil {
		if err := d.repo.UpdateEmail(ctx, existing.ID, email); err != nil {
			return nil, "", fmt.Errorf("failed to update recipient: %w", err)
		}
		existing.Email = email
		d.logger.Info("recipient email updated", "id", existing.ID)
		return existing, models.OutcomeUpdated, nil
	}

	rec := &models.Recipient{Name: name, Email: email}
	if err := d.repo.Insert(ctx, rec); err != nil {
		return nil, "", err
	}
	d.updateGauge(ctx)
	d.logger.Info("recipient created", "id", rec.ID)
	return rec, models.OutcomeCreated, nil
}

// FindByIdentifier returns the recipient holding id, or nil
func (d *Directory) FindByIdentifier(ctx context.Context, id string) (*models.Recipient, error) {
	nit := identifier.Normalize(id)
	if nit == "" {
		return nil, nil
	}
	return d.repo.GetByNit(ctx, nit)
}

// FindByName returns the recipient whose name matches case-insensitively, or nil
func (d *Directory) FindByName(ctx context.Context, name string) (*models.Recipient, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	return d.repo.GetByName(ctx, name)
}

// Delete removes a recipient by id
func (d *Directory) Delete(ctx context.Context, id int64) error {
	deleted, err := d.repo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete recipient: %w", err)
	}
	if !deleted {
		return ErrNotFound
	}

	d.logger.Info("recipient deleted", "id", id)
	return d.Refresh(ctx)
}

func (d *Directory) updateGauge(ctx context.Context) {
	n, err := d.repo.Count(ctx)
	if err != nil {
		d.logger.Warn("failed to count recipients", "error", err)
		return
	}
	metrics.SetDirectoryRecipients(n)
}

func validate(name, email string) (string, string, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	if name == "" {
		return "", "", &ValidationError{Field: "nombre", Message: "nombre requerido"}
	}
	if !identifier.IsEmail(email) {
		return "", "", &ValidationError{Field: "email", Message: "email inválido"}
	}
	return name, email, nil
}
