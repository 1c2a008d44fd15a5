// README: Fare rate overrides backed by PostgreSQL.
package pricing

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) LoadRates(ctx context.Context) ([]Rate, error) {
	rows, err := s.db.Query(ctx, `
		SELECT vehicle_type, per_km::float8, per_minute::float8, minimum_fare::bigint
		FROM fare_rates
		ORDER BY vehicle_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Rate
	for rows.Next() {
		var r Rate
		if err := rows.Scan(&r.VehicleType, &r.PerKm, &r.PerMinute, &r.MinimumFare); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
