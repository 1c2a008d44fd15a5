package ride

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bidride/internal/types"
)

const acceptGuardKey = "bidride:accept:%s:%s"

// RedisGuard holds a short-lived SETNX key per (ride, driver) while an accept
// is in flight. It only suppresses duplicate submissions; the conditional
// update in Store.Accept decides the race.
type RedisGuard struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisGuard{redis: client, ttl: ttl}
}

func (g *RedisGuard) Acquire(ctx context.Context, rideID, driverID types.ID) (func(), bool, error) {
	key := fmt.Sprintf(acceptGuardKey, rideID, driverID)
	ok, err := g.redis.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339Nano), g.ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		g.redis.Del(ctx, key)
	}
	return release, true, nil
}
