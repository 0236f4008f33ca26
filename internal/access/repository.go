package access

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

// Insert persists a new principal.
func (r *PGRepository) Insert(ctx context.Context, u User) error {
	grants, err := json.Marshal(u.Grants)
	if err != nil {
		return fmt.Errorf("access: marshal grants: %w", err)
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO principals (id, role, grants, mfa_enabled, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, string(u.Role), grants, u.MFAEnabled, u.IsActive, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// Get fetches a principal by id.
func (r *PGRepository) Get(ctx context.Context, id string) (User, error) {
	var u User
	var role string
	var grants []byte
	err := r.pool.QueryRow(ctx, `SELECT id, role, grants, mfa_enabled, is_active, created_at, updated_at
FROM principals WHERE id = $1`, id).
		Scan(&u.ID, &role, &grants, &u.MFAEnabled, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, fmt.Errorf("%w: principal %s", ErrNotFound, id)
		}
		return User{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	u.Role = Role(role)
	if len(grants) > 0 && string(grants) != "null" {
		if err := json.Unmarshal(grants, &u.Grants); err != nil {
			return User{}, fmt.Errorf("access: unmarshal grants: %w", err)
		}
	}
	return u, nil
}

// UpdateRole changes a principal's role.
func (r *PGRepository) UpdateRole(ctx context.Context, id string, role Role) error {
	tag, err := r.pool.Exec(ctx, `UPDATE principals SET role = $2, updated_at = $3 WHERE id = $1`,
		id, string(role), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: principal %s", ErrNotFound, id)
	}
	return nil
}

// Deactivate soft-deletes a principal. The row stays for the audit trail.
func (r *PGRepository) Deactivate(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE principals SET is_active = FALSE, updated_at = $2 WHERE id = $1`,
		id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: principal %s", ErrNotFound, id)
	}
	return nil
}
