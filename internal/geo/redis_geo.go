package geo

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/rider-client/internal/models"
)

const metaTTL = 10 * time.Minute

// RedisGeo stores rider positions with Redis GEO commands plus a short
// lived metadata hash per rider.
type RedisGeo struct {
	client *redis.Client
	key    string
}

func NewRedisGeo(client *redis.Client, key string) *RedisGeo {
	return &RedisGeo{client: client, key: key}
}

func (r *RedisGeo) Name() string { return "redis" }

func (r *RedisGeo) Report(ctx context.Context, p models.RiderPosition) error {
	if p.UserID == "" {
		return fmt.Errorf("redis geo: position without user id")
	}
	pipe := r.client.TxPipeline()
	pipe.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: p.Lng, Latitude: p.Lat, Name: p.UserID})
	pipe.HSet(ctx, metaKey(p.UserID), map[string]interface{}{"updated": p.At.UTC().Format(time.RFC3339)})
	pipe.Expire(ctx, metaKey(p.UserID), metaTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis geo: %w", err)
	}
	return nil
}

func (r *RedisGeo) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func metaKey(id string) string { return "rider:meta:" + id }
