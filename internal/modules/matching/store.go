// README: Geo index of searching rides backed by Redis GEO.
package matching

import (
	"context"

	"github.com/redis/go-redis/v9"

	"bidride/internal/modules/ride"
	"bidride/internal/types"
)

const rideGeoKey = "matching:rides:searching"

type RedisIndex struct {
	redis *redis.Client
}

func NewRedisIndex(client *redis.Client) *RedisIndex {
	return &RedisIndex{redis: client}
}

// Add indexes the ride's pickup. Rides without decodable coordinates are not
// indexed; the scan source still sees them.
func (s *RedisIndex) Add(ctx context.Context, r *ride.Ride) error {
	p, ok := r.PickupPoint()
	if !ok {
		return nil
	}
	return s.redis.GeoAdd(ctx, rideGeoKey, &redis.GeoLocation{
		Name:      string(r.ID),
		Longitude: p.Lng,
		Latitude:  p.Lat,
	}).Err()
}

func (s *RedisIndex) Remove(ctx context.Context, id types.ID) error {
	return s.redis.ZRem(ctx, rideGeoKey, string(id)).Err()
}

func (s *RedisIndex) Nearby(ctx context.Context, p types.Point, radiusKm float64) ([]types.ID, error) {
	results, err := s.redis.GeoSearch(ctx, rideGeoKey, &redis.GeoSearchQuery{
		Longitude:  p.Lng,
		Latitude:   p.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(results))
	for i, r := range results {
		ids[i] = types.ID(r)
	}
	return ids, nil
}

// Rebuild replaces the index with the given searching rides.
func (s *RedisIndex) Rebuild(ctx context.Context, rides []*ride.Ride) error {
	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, rideGeoKey)
	for _, r := range rides {
		p, ok := r.PickupPoint()
		if !ok {
			continue
		}
		pipe.GeoAdd(ctx, rideGeoKey, &redis.GeoLocation{Name: string(r.ID), Longitude: p.Lng, Latitude: p.Lat})
	}
	_, err := pipe.Exec(ctx)
	return err
}
