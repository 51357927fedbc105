package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bazarhq/fulfillment/internal/domain/user"
)

const getUserSQL = `SELECT id, name, email FROM users WHERE id = $1`

const upsertAddressSQL = `INSERT INTO addresses (user_id, name, line1, line2,
		city, state, postal_code, country, phone)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (user_id, line1, postal_code)
	DO UPDATE SET name = EXCLUDED.name, line2 = EXCLUDED.line2,
		city = EXCLUDED.city, state = EXCLUDED.state,
		country = EXCLUDED.country, phone = EXCLUDED.phone`

var _ user.Directory = (*UserDirectory)(nil)

// UserDirectory implements user.Directory backed by PostgreSQL.
type UserDirectory struct {
	pool *pgxpool.Pool
}

// NewUserDirectory returns a UserDirectory that uses the given pool.
func NewUserDirectory(pool *pgxpool.Pool) *UserDirectory {
	return &UserDirectory{pool: pool}
}

// GetUser returns a user by id.
func (r *UserDirectory) GetUser(ctx context.Context, id string) (*user.User, error) {
	var u user.User
	err := r.pool.QueryRow(ctx, getUserSQL, id).Scan(&u.ID, &u.Name, &u.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("getting user %q: %w", id, err)
	}
	return &u, nil
}

// UpsertAddress saves an address into the user's address book, replacing an
// existing entry at the same line and postal code.
func (r *UserDirectory) UpsertAddress(ctx context.Context, userID string, addr user.Address) error {
	_, err := r.pool.Exec(ctx, upsertAddressSQL,
		userID, addr.Name, addr.Line1, addr.Line2,
		addr.City, addr.State, addr.PostalCode, addr.Country, addr.Phone,
	)
	if err != nil {
		return fmt.Errorf("upserting address for user %q: %w", userID, err)
	}
	return nil
}
