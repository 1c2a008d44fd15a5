// README: Matching service resolves a driver's position and vehicle, then queries the engine.
package matching

import (
	"context"

	"bidride/internal/apperr"
	"bidride/internal/modules/driver"
	"bidride/internal/types"
)

type Gate interface {
	IsEligible(ctx context.Context, driverID types.ID) (driver.Eligibility, error)
}

type Positions interface {
	Last(ctx context.Context, driverID types.ID) (types.Point, bool, error)
}

type Service struct {
	engine    *Engine
	gate      Gate
	positions Positions
}

func NewService(engine *Engine, gate Gate, positions Positions) *Service {
	return &Service{engine: engine, gate: gate, positions: positions}
}

// NearbyForDriver re-checks eligibility and then lists rides near pos, or near
// the driver's last tracked position when pos is nil.
func (s *Service) NearbyForDriver(ctx context.Context, driverID types.ID, pos *types.Point, radiusKm float64) ([]RideWithDistance, error) {
	const op = "matching.nearby"
	elig, err := s.gate.IsEligible(ctx, driverID)
	if err != nil {
		return nil, apperr.Store(op, err)
	}
	if !elig.Eligible {
		return nil, apperr.Rejected(op, elig.Reason)
	}
	var at types.Point
	switch {
	case pos != nil:
		if !pos.Valid() {
			return nil, apperr.Validation(op, "coordinates out of range")
		}
		at = *pos
	case s.positions != nil:
		p, ok, err := s.positions.Last(ctx, driverID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.Validation(op, "driver location unknown")
		}
		at = p
	default:
		return nil, apperr.Validation(op, "driver location unknown")
	}
	return s.engine.FindNearbyRides(ctx, Query{
		DriverPosition: at,
		VehicleType:    elig.VehicleType,
		MaxDistanceKm:  radiusKm,
	})
}
