// README: Driver profile store backed by PostgreSQL.
package driver

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bidride/internal/types"
)

// ErrNotFound means the user never submitted a driver registration.
var ErrNotFound = errors.New("driver profile not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, userID types.ID) (*Profile, error) {
	var p Profile
	var id, status string
	var license *string
	var docs []byte
	err := s.db.QueryRow(ctx, `
		SELECT user_id, status, vehicle_type, vehicle_number, license_url, documents,
		       has_sufficient_deposit, deposit_required::bigint, created_at, updated_at
		FROM driver_profiles
		WHERE user_id = $1`, string(userID),
	).Scan(&id, &status, &p.VehicleType, &p.VehicleNumber, &license, &docs,
		&p.HasSufficientDeposit, &p.DepositRequired, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.UserID = types.ID(id)
	p.Status = Status(status)
	if license != nil {
		p.LicenseURL = *license
	}
	if len(docs) > 0 {
		if err := json.Unmarshal(docs, &p.Documents); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

// Upsert stores a (re)submitted registration. Resubmission resets review status.
func (s *Store) Upsert(ctx context.Context, p *Profile) error {
	docs, err := json.Marshal(p.Documents)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO driver_profiles (
			user_id, status, vehicle_type, vehicle_number, license_url, documents,
			has_sufficient_deposit, deposit_required, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			status = EXCLUDED.status,
			vehicle_type = EXCLUDED.vehicle_type,
			vehicle_number = EXCLUDED.vehicle_number,
			license_url = EXCLUDED.license_url,
			documents = EXCLUDED.documents,
			deposit_required = EXCLUDED.deposit_required,
			updated_at = EXCLUDED.updated_at`,
		string(p.UserID), string(p.Status), p.VehicleType, p.VehicleNumber, p.LicenseURL, docs,
		p.HasSufficientDeposit, p.DepositRequired, p.CreatedAt,
	)
	return err
}

func (s *Store) SetStatus(ctx context.Context, userID types.ID, status Status) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE driver_profiles SET status = $2, updated_at = NOW()
		WHERE user_id = $1`, string(userID), string(status))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) SetDeposit(ctx context.Context, userID types.ID, sufficient bool) error {
	_, err := s.db.Exec(ctx, `
		UPDATE driver_profiles SET has_sufficient_deposit = $2, updated_at = NOW()
		WHERE user_id = $1 AND has_sufficient_deposit <> $2`, string(userID), sufficient)
	return err
}
