package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/pharmeast/pharmeast-backend/internal/models"
)

// StaffRepository persists back-office accounts.
type StaffRepository struct {
	db *sqlx.DB
}

// NewStaffRepository creates a new staff repository.
func NewStaffRepository(db *sqlx.DB) *StaffRepository {
	return &StaffRepository{db: db}
}

const staffColumns = `id, email, name, password_hash, role, active, created_at, updated_at`

// Create inserts a staff account. The password must already be hashed.
func (r *StaffRepository) Create(ctx context.Context, s *models.Staff) (int64, error) {
	if !models.ValidRole(s.Role) {
		return 0, fmt.Errorf("invalid role %q", s.Role)
	}
	var id int64
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO staff (email, name, password_hash, role, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING id`,
		strings.ToLower(strings.TrimSpace(s.Email)), s.Name, s.PasswordHash, s.Role, s.Active,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert staff: %w", err)
	}
	return id, nil
}

// GetByEmail loads one account by address.
func (r *StaffRepository) GetByEmail(ctx context.Context, email string) (*models.Staff, error) {
	var s models.Staff
	err := r.db.GetContext(ctx, &s,
		`SELECT `+staffColumns+` FROM staff WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load staff: %w", err)
	}
	return &s, nil
}

// GetByID loads one account.
func (r *StaffRepository) GetByID(ctx context.Context, id int64) (*models.Staff, error) {
	var s models.Staff
	err := r.db.GetContext(ctx, &s, `SELECT `+staffColumns+` FROM staff WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load staff: %w", err)
	}
	return &s, nil
}

// ListActive returns every active account; notification fan-out targets.
func (r *StaffRepository) ListActive(ctx context.Context) ([]models.Staff, error) {
	var rows []models.Staff
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+staffColumns+` FROM staff
		WHERE active = TRUE
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list staff: %w", err)
	}
	return rows, nil
}

// List returns all accounts for the admin panel.
func (r *StaffRepository) List(ctx context.Context) ([]models.Staff, error) {
	var rows []models.Staff
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+staffColumns+` FROM staff ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list staff: %w", err)
	}
	return rows, nil
}

// Update changes name, role, and active flag.
func (r *StaffRepository) Update(ctx context.Context, s *models.Staff) error {
	if !models.ValidRole(s.Role) {
		return fmt.Errorf("invalid role %q", s.Role)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE staff SET name = $2, role = $3, active = $4, updated_at = now()
		WHERE id = $1`, s.ID, s.Name, s.Role, s.Active)
	if err != nil {
		return fmt.Errorf("failed to update staff: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPassword replaces the stored hash.
func (r *StaffRepository) SetPassword(ctx context.Context, id int64, hash string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE staff SET password_hash = $2, updated_at = now() WHERE id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("failed to set password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an account.
func (r *StaffRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM staff WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete staff: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
