package pricing

import (
	"testing"

	"github.com/example/ride-hail/internal/models"
)

func testEstimator() *Estimator {
	return NewEstimator(10, 15, "mad", 3.50, 5.00, 4.00)
}

func TestHaversineZero(t *testing.T) {
	if d := Haversine(0, 0, 0, 0); d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestEstimateMinimumApplies(t *testing.T) {
	e := testEstimator()
	// zero-distance ride falls back to the minimum fare
	got := e.Estimate(models.Coord{Lat: 33.57, Lng: -7.59}, models.Coord{Lat: 33.57, Lng: -7.59}, CategoryClassic)
	if got != 15 {
		t.Fatalf("expected minimum fare 15, got %f", got)
	}
}

func TestEstimateCategoryRates(t *testing.T) {
	e := testEstimator()
	pickup := models.Coord{Lat: 33.5731, Lng: -7.5898}
	dropoff := models.Coord{Lat: 33.5950, Lng: -7.6187}

	classic := e.Estimate(pickup, dropoff, CategoryClassic)
	comfort := e.Estimate(pickup, dropoff, CategoryComfort)
	express := e.Estimate(pickup, dropoff, CategoryExpress)

	if !(classic < express && express < comfort) {
		t.Fatalf("rate ordering broken: classic=%f express=%f comfort=%f", classic, express, comfort)
	}
	// unknown category falls back to classic
	if got := e.Estimate(pickup, dropoff, "hoverboard"); got != classic {
		t.Fatalf("unknown category: got %f, want classic %f", got, classic)
	}
}

func TestValidCategory(t *testing.T) {
	e := testEstimator()
	for _, c := range []string{CategoryClassic, CategoryComfort, CategoryExpress, "Comfort"} {
		if !e.ValidCategory(c) {
			t.Errorf("%q should be valid", c)
		}
	}
	if e.ValidCategory("pogo") {
		t.Error("pogo should not be valid")
	}
}
