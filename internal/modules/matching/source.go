package matching

import (
	"context"

	"go.uber.org/zap"

	"bidride/internal/apperr"
	"bidride/internal/modules/ride"
	"bidride/internal/types"
)

type RideLister interface {
	ListSearching(ctx context.Context) ([]*ride.Ride, error)
	ListNearby(ctx context.Context, center types.Point, radiusKm float64) ([]*ride.Ride, error)
	Get(ctx context.Context, id types.ID) (*ride.Ride, error)
}

// ScanSource reads every searching ride.
type ScanSource struct{ Rides RideLister }

func (ScanSource) Name() string { return "scan" }

func (s ScanSource) Candidates(ctx context.Context, _ types.Point, _ float64) ([]*ride.Ride, error) {
	return s.Rides.ListSearching(ctx)
}

// RPCSource asks get_nearby_ride_requests for a geohash-prefiltered set.
type RPCSource struct{ Rides RideLister }

func (RPCSource) Name() string { return "rpc" }

func (s RPCSource) Candidates(ctx context.Context, center types.Point, radiusKm float64) ([]*ride.Ride, error) {
	return s.Rides.ListNearby(ctx, center, radiusKm)
}

// GeoSource looks ride ids up in the Redis GEO index and loads each row.
// Rows that vanished or left searching since indexing are dropped.
type GeoSource struct {
	Index *RedisIndex
	Rides RideLister
	Log   *zap.Logger
}

func (GeoSource) Name() string { return "redis" }

func (s GeoSource) Candidates(ctx context.Context, center types.Point, radiusKm float64) ([]*ride.Ride, error) {
	ids, err := s.Index.Nearby(ctx, center, radiusKm)
	if err != nil {
		return nil, apperr.Store("matching.geo_candidates", err)
	}
	out := make([]*ride.Ride, 0, len(ids))
	for _, id := range ids {
		r, err := s.Rides.Get(ctx, id)
		if apperr.IsNotFound(err) {
			_ = s.Index.Remove(ctx, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if r.Status != ride.StatusSearching {
			if err := s.Index.Remove(ctx, id); err != nil && s.Log != nil {
				s.Log.Warn("stale index entry not removed", zap.String("ride_id", string(id)), zap.Error(err))
			}
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
