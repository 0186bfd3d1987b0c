package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/boost-marketplace/internal/domain"
)

const profileColumns = `id, email, name, role, created_at`

func scanProfile(row rowScanner) (*domain.Profile, error) {
	var p domain.Profile
	var role string
	if err := row.Scan(&p.ID, &p.Email, &p.Name, &role, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Role = domain.Role(role)
	return &p, nil
}

// EnsureProfile inserts a profile if none exists for its id and returns the stored row.
// When a concurrent insert wins the race the row is not visible to this
// statement's snapshot, so it is read again.
func (r *Repository) EnsureProfile(ctx context.Context, profile domain.Profile) (*domain.Profile, error) {
	query := `
		WITH inserted AS (
			INSERT INTO profiles (id, email, name, role, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING
			RETURNING ` + profileColumns + `
		)
		SELECT ` + profileColumns + ` FROM inserted
		UNION ALL
		SELECT ` + profileColumns + ` FROM profiles WHERE id = $1
		LIMIT 1
	`
	p, err := scanProfile(r.pool.QueryRow(ctx, query,
		profile.ID,
		profile.Email,
		profile.Name,
		string(profile.Role),
		profile.CreatedAt,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		r.logger.Debug("profile created concurrently, reloading", "user_id", profile.ID)
		return r.GetProfile(ctx, profile.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("ensuring profile: %w", err)
	}
	return p, nil
}

// GetProfile retrieves a profile by ID
func (r *Repository) GetProfile(ctx context.Context, id string) (*domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`
	p, err := scanProfile(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	return p, nil
}

// ListProfiles retrieves all profiles, newest first
func (r *Repository) ListProfiles(ctx context.Context) ([]domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	defer rows.Close()

	profiles := []domain.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating profiles: %w", err)
	}
	return profiles, nil
}

// UpdateRole changes the role of a profile
func (r *Repository) UpdateRole(ctx context.Context, id string, role domain.Role) error {
	query := `UPDATE profiles SET role = $1 WHERE id = $2`
	result, err := r.pool.Exec(ctx, query, string(role), id)
	if err != nil {
		return fmt.Errorf("updating role: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrProfileNotFound
	}
	return nil
}
