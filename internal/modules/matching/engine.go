// README: Matching engine ranks searching rides by distance to a driver.
package matching

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"bidride/internal/modules/location"
	"bidride/internal/modules/ride"
	"bidride/internal/observability"
	"bidride/internal/types"
)

// Source fetches the candidate set before client-side filtering. Sources may
// over-fetch; the engine applies the radius itself.
type Source interface {
	Name() string
	Candidates(ctx context.Context, center types.Point, radiusKm float64) ([]*ride.Ride, error)
}

type Engine struct {
	source        Source
	defaultRadius float64
	log           *zap.Logger
}

func NewEngine(source Source, defaultRadiusKm float64, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{source: source, defaultRadius: defaultRadiusKm, log: log}
}

// FindNearbyRides is recomputed on every call; nothing is cached between calls.
func (e *Engine) FindNearbyRides(ctx context.Context, q Query) ([]RideWithDistance, error) {
	if q.MaxDistanceKm <= 0 {
		q.MaxDistanceKm = e.defaultRadius
	}
	start := time.Now()
	candidates, err := e.source.Candidates(ctx, q.DriverPosition, q.MaxDistanceKm)
	observability.NearbyQueryLatency.WithLabelValues(e.source.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return Rank(candidates, q, e.log), nil
}

// Rank keeps searching rides within q.MaxDistanceKm whose vehicle tag matches,
// sorted by distance to pickup and then by age. Rides whose pickup cannot be
// decoded are logged and skipped.
func Rank(rides []*ride.Ride, q Query, log *zap.Logger) []RideWithDistance {
	out := make([]RideWithDistance, 0, len(rides))
	for _, r := range rides {
		if r.Status != ride.StatusSearching || r.DriverID != nil {
			continue
		}
		pickup, ok := r.PickupPoint()
		if !ok {
			observability.LocationDecodeSkips.Inc()
			if log != nil {
				log.Debug("skipping ride with undecodable pickup", zap.String("ride_id", string(r.ID)))
			}
			continue
		}
		if !r.MatchesVehicle(q.VehicleType) {
			continue
		}
		d := location.DistanceKm(q.DriverPosition, pickup)
		if d > q.MaxDistanceKm {
			continue
		}
		out = append(out, RideWithDistance{Ride: r, DistanceToPickupKm: d})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DistanceToPickupKm != out[j].DistanceToPickupKm {
			return out[i].DistanceToPickupKm < out[j].DistanceToPickupKm
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
