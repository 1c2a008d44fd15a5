// README: Ride store backed by PostgreSQL.
package ride

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bidride/internal/modules/location"
	"bidride/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const rideColumns = `
	r.id, r.passenger_id, r.driver_id, r.pickup_location, r.dropoff_location,
	r.vehicle_option, r.price::bigint, r.currency, r.distance_km::float8, r.duration_minutes,
	r.payment_method, r.status, r.status_version, r.driver_location,
	r.created_at, r.started_at, r.ended_at, r.cancel_reason,
	p.full_name, p.phone, p.avatar_url`

const rideFrom = `
	FROM rides r
	LEFT JOIN profiles p ON p.id = r.passenger_id`

func (s *Store) Create(ctx context.Context, r *Ride) error {
	vehicle, err := json.Marshal(r.VehicleOption)
	if err != nil {
		return err
	}
	var lat, lng *float64
	var cell *string
	if p, ok := r.PickupPoint(); ok {
		lat, lng = &p.Lat, &p.Lng
		h := location.Geohash(p)
		cell = &h
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO rides (
			id, passenger_id, driver_id, pickup_location, dropoff_location,
			pickup_lat, pickup_lng, pickup_geohash,
			vehicle_option, price, currency, distance_km, duration_minutes,
			payment_method, status, status_version, created_at
		) VALUES (
			$1, $2, NULL, $3, $4,
			$5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15, $16
		)`,
		string(r.ID), string(r.PassengerID), []byte(r.Pickup), []byte(r.Dropoff),
		lat, lng, cell,
		vehicle, r.Price.Amount, r.Price.Currency, r.DistanceKm, r.DurationMinutes,
		string(r.PaymentMethod), string(r.Status), r.StatusVersion, r.CreatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Ride, error) {
	row := s.db.QueryRow(ctx, `SELECT `+rideColumns+rideFrom+` WHERE r.id = $1`, string(id))
	r, err := scanRide(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *Store) ListSearching(ctx context.Context) ([]*Ride, error) {
	return s.list(ctx, `SELECT `+rideColumns+rideFrom+`
		WHERE r.status = 'searching' AND r.driver_id IS NULL
		ORDER BY r.created_at`)
}

func (s *Store) ListNearby(ctx context.Context, center types.Point, radiusKm float64, cells []string) ([]*Ride, error) {
	return s.list(ctx, `SELECT `+rideColumns+`
		FROM get_nearby_ride_requests($1, $2, $3, $4) r
		LEFT JOIN profiles p ON p.id = r.passenger_id
		ORDER BY r.created_at`, center.Lat, center.Lng, radiusKm, cells)
}

func (s *Store) UpdateStatus(ctx context.Context, t Transition) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE rides
		SET status = $1,
		    status_version = status_version + 1,
		    driver_id = CASE WHEN $2::boolean THEN NULL ELSE driver_id END,
		    started_at = CASE WHEN $1 = 'in_progress' THEN $3 ELSE started_at END,
		    ended_at = CASE WHEN $1 IN ('completed', 'cancelled') THEN $3 ELSE ended_at END,
		    cancel_reason = COALESCE($4, cancel_reason)
		WHERE id = $5 AND status = $6 AND status_version = $7`,
		string(t.To), t.ClearDriver, t.At, t.CancelReason,
		string(t.RideID), string(t.From), t.Version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Accept is the only write that sets driver_id. The predicate makes
// concurrent accepts of one ride succeed at most once.
func (s *Store) Accept(ctx context.Context, a Assignment) (bool, error) {
	var loc []byte
	if a.DriverLocation != nil {
		b, err := json.Marshal(a.DriverLocation)
		if err != nil {
			return false, err
		}
		loc = b
	}
	var price *int64
	if a.Price != nil {
		price = &a.Price.Amount
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE rides
		SET driver_id = $2,
		    status = 'confirmed',
		    status_version = status_version + 1,
		    started_at = $3,
		    driver_location = $4,
		    price = COALESCE($5, price)
		WHERE id = $1 AND status = 'searching' AND driver_id IS NULL`,
		string(a.RideID), string(a.DriverID), a.At, loc, price,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO ride_events (
			ride_id, from_status, to_status, actor_type, actor_id, previous_driver_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(e.RideID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorType,
		toStringPtr(e.ActorID),
		toStringPtr(e.PreviousDriverID),
		e.CreatedAt,
	)
	return err
}

func (s *Store) ActiveByPassenger(ctx context.Context, passengerID types.ID) (*Ride, error) {
	return s.active(ctx, `r.passenger_id = $1`, passengerID)
}

func (s *Store) ActiveByDriver(ctx context.Context, driverID types.ID) (*Ride, error) {
	return s.active(ctx, `r.driver_id = $1`, driverID)
}

func (s *Store) active(ctx context.Context, where string, id types.ID) (*Ride, error) {
	row := s.db.QueryRow(ctx, `SELECT `+rideColumns+rideFrom+`
		WHERE `+where+` AND r.status IN ('searching', 'confirmed', 'in_progress')
		ORDER BY r.created_at DESC
		LIMIT 1`, string(id))
	r, err := scanRide(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (s *Store) list(ctx context.Context, sql string, args ...any) ([]*Ride, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRide(row pgx.Row) (*Ride, error) {
	var r Ride
	var id, passengerID, paymentMethod, status string
	var driverID, cancelReason *string
	var pickup, dropoff, vehicle, driverLoc []byte
	var startedAt, endedAt *time.Time
	var fullName, phone, avatar *string

	err := row.Scan(
		&id, &passengerID, &driverID, &pickup, &dropoff,
		&vehicle, &r.Price.Amount, &r.Price.Currency, &r.DistanceKm, &r.DurationMinutes,
		&paymentMethod, &status, &r.StatusVersion, &driverLoc,
		&r.CreatedAt, &startedAt, &endedAt, &cancelReason,
		&fullName, &phone, &avatar,
	)
	if err != nil {
		return nil, err
	}
	r.ID = types.ID(id)
	r.PassengerID = types.ID(passengerID)
	if driverID != nil {
		d := types.ID(*driverID)
		r.DriverID = &d
	}
	r.Pickup = json.RawMessage(pickup)
	r.Dropoff = json.RawMessage(dropoff)
	if len(vehicle) > 0 {
		// Legacy rows may carry a bare vehicle name; keep what decodes.
		_ = json.Unmarshal(vehicle, &r.VehicleOption)
	}
	r.PaymentMethod = PaymentMethod(paymentMethod)
	r.Status = Status(status)
	if len(driverLoc) > 0 {
		if p, ok := location.ExtractCoordinates(driverLoc); ok {
			r.DriverLocation = &p
		}
	}
	r.StartedAt = startedAt
	r.EndedAt = endedAt
	r.CancelReason = cancelReason
	if fullName != nil || phone != nil || avatar != nil {
		r.Passenger = &Passenger{FullName: deref(fullName), Phone: deref(phone), AvatarURL: deref(avatar)}
	}
	if r.Price.Currency == "" {
		r.Price.Currency = types.DefaultCurrency
	}
	return &r, nil
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
