package pricing

import (
	"math"
	"strings"

	"github.com/example/ride-hail/internal/models"
)

// Ride categories with distinct per-km rates.
const (
	CategoryClassic = "classic"
	CategoryComfort = "comfort"
	CategoryExpress = "express"
)

// Estimator computes the reference fare attached to a ride request.
// Drivers bid against this number; it is an estimate, not a quote.
type Estimator struct {
	Base     float64
	Minimum  float64
	Currency string
	PerKm    map[string]float64
}

func NewEstimator(base, minimum float64, currency string, classicPerKm, comfortPerKm, expressPerKm float64) *Estimator {
	return &Estimator{
		Base:     base,
		Minimum:  minimum,
		Currency: currency,
		PerKm: map[string]float64{
			CategoryClassic: classicPerKm,
			CategoryComfort: comfortPerKm,
			CategoryExpress: expressPerKm,
		},
	}
}

// ValidCategory reports whether the category has a configured rate.
func (e *Estimator) ValidCategory(category string) bool {
	_, ok := e.PerKm[strings.ToLower(category)]
	return ok
}

// Estimate returns base + distance_km * per_km, floored at the minimum
// fare, rounded to two decimals.
func (e *Estimator) Estimate(pickup, dropoff models.Coord, category string) float64 {
	perKm, ok := e.PerKm[strings.ToLower(category)]
	if !ok {
		perKm = e.PerKm[CategoryClassic]
	}
	distanceKm := Haversine(pickup.Lat, pickup.Lng, dropoff.Lat, dropoff.Lng) / 1000
	fare := e.Base + distanceKm*perKm
	if fare < e.Minimum {
		fare = e.Minimum
	}
	return math.Round(fare*100) / 100
}

// Haversine distance in meters
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
