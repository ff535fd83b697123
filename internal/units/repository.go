package units

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads business units from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get loads a single unit.
func (r *Repository) Get(ctx context.Context, id int64) (Unit, error) {
	const query = `SELECT id, code, name, timezone, active FROM business_units WHERE id = $1`
	var u Unit
	err := r.pool.QueryRow(ctx, query, id).Scan(&u.ID, &u.Code, &u.Name, &u.Timezone, &u.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Unit{}, ErrNotFound
		}
		return Unit{}, err
	}
	return u, nil
}

// List returns units ordered by id. When activeOnly is set inactive units are skipped.
func (r *Repository) List(ctx context.Context, activeOnly bool) ([]Unit, error) {
	query := `SELECT id, code, name, timezone, active FROM business_units`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Unit, 0)
	for rows.Next() {
		var u Unit
		if err := rows.Scan(&u.ID, &u.Code, &u.Name, &u.Timezone, &u.Active); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
