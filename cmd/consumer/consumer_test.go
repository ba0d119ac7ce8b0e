package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-hail/internal/models"
)

type fakeGeoWriter struct {
	failGeo  int // number of GeoAdd calls that fail before succeeding
	failH    int // number of HSet calls that fail before succeeding
	geoCalls int
	hCalls   int
	lastKey  string
}

func (f *fakeGeoWriter) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	f.geoCalls++
	f.lastKey = key
	if f.geoCalls <= f.failGeo {
		return errors.New("geo fail")
	}
	return nil
}

func (f *fakeGeoWriter) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	f.hCalls++
	if f.hCalls <= f.failH {
		return errors.New("hset fail")
	}
	return nil
}

func testLocation() models.DriverLocation {
	return models.DriverLocation{
		DriverID: "d1",
		Loc:      models.Coord{Lat: 33.57, Lng: -7.59},
		Observed: time.Now(),
	}
}

func TestUpdateGeoSucceedsAfterRetries(t *testing.T) {
	f := &fakeGeoWriter{failGeo: 1, failH: 1}
	if err := updateGeoWithRetry(context.Background(), f, "drivers_geo", testLocation(), 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.geoCalls < 2 || f.hCalls < 2 {
		t.Fatalf("expected retries, got geo=%d h=%d", f.geoCalls, f.hCalls)
	}
	if f.lastKey != "drivers_geo" {
		t.Fatalf("geo key = %q", f.lastKey)
	}
}

func TestUpdateGeoFailsWhenExhausted(t *testing.T) {
	f := &fakeGeoWriter{failGeo: 5}
	if err := updateGeoWithRetry(context.Background(), f, "drivers_geo", testLocation(), 3, 5*time.Millisecond); err == nil {
		t.Fatal("expected error after retries")
	}
}
