package geo

import (
	"sort"
	"sync"
	"time"

	"github.com/example/ride-hail/internal/models"
	"github.com/example/ride-hail/internal/pricing"
)

// Geo is the minimal interface required by the nearby-drivers API and
// the location consumer.
type Geo interface {
	Nearby(lat, lng float64, limit int) []models.DriverLocation
	Upsert(loc models.DriverLocation)
}

// Index is the in-process fallback used when Redis is not configured.
type Index struct {
	mu      sync.RWMutex
	drivers map[string]models.DriverLocation
}

func NewIndex() *Index {
	return &Index{drivers: make(map[string]models.DriverLocation)}
}

func (g *Index) Upsert(loc models.DriverLocation) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if loc.Observed.IsZero() {
		loc.Observed = time.Now()
	}
	g.drivers[loc.DriverID] = loc
}

// naive scan; in prod use geo-hash or H3
func (g *Index) Nearby(lat, lng float64, limit int) []models.DriverLocation {
	g.mu.RLock()
	defer g.mu.RUnlock()
	type pair struct {
		loc  models.DriverLocation
		dist float64
	}
	arr := make([]pair, 0, len(g.drivers))
	for _, loc := range g.drivers {
		arr = append(arr, pair{loc, pricing.Haversine(lat, lng, loc.Loc.Lat, loc.Loc.Lng)})
	}
	sort.Slice(arr, func(i, j int) bool { return arr[i].dist < arr[j].dist })
	if limit > len(arr) {
		limit = len(arr)
	}
	out := make([]models.DriverLocation, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, arr[i].loc)
	}
	return out
}
