package geo

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-hail/internal/models"
)

// RedisGeo implements Geo using Redis GEO commands. Written by the Kafka
// location consumer, read by the nearby-drivers API.
type RedisGeo struct {
	client *redis.Client
	key    string
}

func NewRedisGeo(client *redis.Client, key string) *RedisGeo {
	return &RedisGeo{client: client, key: key}
}

func (r *RedisGeo) Upsert(loc models.DriverLocation) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _ = r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{
		Longitude: loc.Loc.Lng,
		Latitude:  loc.Loc.Lat,
		Name:      loc.DriverID,
	}).Result()
	_ = r.client.HSet(ctx, metaKey(loc.DriverID), map[string]interface{}{
		"observed": loc.Observed.Format(time.RFC3339),
	}).Err()
}

func (r *RedisGeo) Nearby(lat, lng float64, limit int) []models.DriverLocation {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := r.client.GeoRadius(ctx, r.key, lng, lat, &redis.GeoRadiusQuery{
		Radius: 5000, Unit: "m", WithCoord: true, WithDist: true, Count: limit, Sort: "ASC",
	}).Result()
	if err != nil {
		return nil
	}
	out := make([]models.DriverLocation, 0, len(res))
	for _, g := range res {
		loc := models.DriverLocation{DriverID: g.Name}
		loc.Loc.Lat = g.Latitude
		loc.Loc.Lng = g.Longitude
		if m, err := r.client.HGetAll(ctx, metaKey(g.Name)).Result(); err == nil {
			if v, ok := m["observed"]; ok {
				if ts, err := time.Parse(time.RFC3339, v); err == nil {
					loc.Observed = ts
				}
			}
		}
		out = append(out, loc)
	}
	return out
}

func metaKey(id string) string { return "driver:meta:" + id }
