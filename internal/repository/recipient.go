package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/foxzi/pagesend/internal/models"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type RecipientRepository struct {
	db   *sql.DB
	exec querier
}

func NewRecipientRepository(db *sql.DB) *RecipientRepository {
	return &RecipientRepository{db: db, exec: db}
}

const recipientColumns = "id, nit, nombre, email, created_at, updated_at"

// WithTx runs fn with a repository bound to a single transaction.
// The transaction is committed when fn returns nil.
func (r *RecipientRepository) WithTx(ctx context.Context, fn func(tx *RecipientRepository) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&RecipientRepository{db: r.db, exec: tx}); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// List returns all recipients ordered by name
func (r *RecipientRepository) List(ctx context.Context) ([]models.Recipient, error) {
	rows, err := r.exec.QueryContext(ctx, "SELECT "+recipientColumns+" FROM terceros ORDER BY nombre, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recipients := []models.Recipient{}
	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, *rec)
	}
	return recipients, rows.Err()
}

// GetByID returns a recipient by ID
func (r *RecipientRepository) GetByID(ctx context.Context, id int64) (*models.Recipient, error) {
	return r.getOne(ctx, "SELECT "+recipientColumns+" FROM terceros WHERE id = ?", id)
}

// GetByNit returns a recipient by canonical identifier
func (r *RecipientRepository) GetByNit(ctx context.Context, nit string) (*models.Recipient, error) {
	return r.getOne(ctx, "SELECT "+recipientColumns+" FROM terceros WHERE nit = ?", nit)
}

// GetByName returns the first recipient whose name matches case-insensitively.
// Matching goes through nombre_key since SQLite LOWER only folds ASCII.
func (r *RecipientRepository) GetByName(ctx context.Context, name string) (*models.Recipient, error) {
	return r.getOne(ctx, "SELECT "+recipientColumns+" FROM terceros WHERE nombre_key = ? ORDER BY id LIMIT 1", NameKey(name))
}

// NameKey is the comparable form of a name: NFC normalized and case folded.
// Accents are kept, so "Peña" and "Pena" stay distinct.
func NameKey(name string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(name)))
}

func (r *RecipientRepository) getOne(ctx context.Context, query string, args ...any) (*models.Recipient, error) {
	rec, err := scanRecipient(r.exec.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// UpsertByNit inserts the recipient or updates name and email of the one
// holding the same nit. rec.ID is filled in.
func (r *RecipientRepository) UpsertByNit(ctx context.Context, rec *models.Recipient) error {
	if rec.Nit == "" {
		return fmt.Errorf("upsert by nit requires a nit")
	}

	now := time.Now().UTC()
	_, err := r.exec.ExecContext(ctx, `
		INSERT INTO terceros (nit, nombre, nombre_key, email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(nit) DO UPDATE SET
			nombre = excluded.nombre,
			nombre_key = excluded.nombre_key,
			email = excluded.email,
			updated_at = excluded.updated_at`,
		rec.Nit, rec.Name, NameKey(rec.Name), rec.Email, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert recipient: %w", err)
	}

	stored, err := r.GetByNit(ctx, rec.Nit)
	if err != nil {
		return err
	}
	if stored == nil {
		return fmt.Errorf("recipient %s vanished after upsert", rec.Nit)
	}
	*rec = *stored
	return nil
}

// Insert adds a new recipient. An empty nit is stored as NULL.
func (r *RecipientRepository) Insert(ctx context.Context, rec *models.Recipient) error {
	rec.CreatedAt = time.Now().UTC()
	rec.UpdatedAt = rec.CreatedAt

	res, err := r.exec.ExecContext(ctx, `
		INSERT INTO terceros (nit, nombre, nombre_key, email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		nullString(rec.Nit), rec.Name, NameKey(rec.Name), rec.Email, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert recipient: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rec.ID = id
	return nil
}

// UpdateEmail changes the email of a recipient
func (r *RecipientRepository) UpdateEmail(ctx context.Context, id int64, email string) error {
	_, err := r.exec.ExecContext(ctx,
		"UPDATE terceros SET email = ?, updated_at = ? WHERE id = ?",
		email, time.Now().UTC(), id,
	)
	return err
}

// Delete removes a recipient. Returns false when no row had that id.
func (r *RecipientRepository) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.exec.ExecContext(ctx, "DELETE FROM terceros WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Nits returns every non-null identifier
func (r *RecipientRepository) Nits(ctx context.Context) ([]string, error) {
	rows, err := r.exec.QueryContext(ctx, "SELECT nit FROM terceros WHERE nit IS NOT NULL")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	nits := []string{}
	for rows.Next() {
		var nit string
		if err := rows.Scan(&nit); err != nil {
			return nil, err
		}
		nits = append(nits, nit)
	}
	return nits, rows.Err()
}

// Count returns the number of recipients
func (r *RecipientRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.exec.QueryRowContext(ctx, "SELECT COUNT(*) FROM terceros").Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecipient(s scanner) (*models.Recipient, error) {
	rec := &models.Recipient{}
	var nit sql.NullString
	if err := s.Scan(&rec.ID, &nit, &rec.Name, &rec.Email, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Nit = nit.String
	return rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
