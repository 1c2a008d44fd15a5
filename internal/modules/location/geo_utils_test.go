package location

import (
	"math"
	"math/rand"
	"strings"
	"testing"

	"bidride/internal/types"
)

func TestDistanceKm_KnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		a, b      types.Point
		wantKm    float64
		tolerance float64
	}{
		{
			name:      "same point",
			a:         types.Point{Lat: 31.52, Lng: 74.35},
			b:         types.Point{Lat: 31.52, Lng: 74.35},
			wantKm:    0,
			tolerance: 1e-9,
		},
		{
			name:      "Lahore pickup to dropoff (~5.8km)",
			a:         types.Point{Lat: 31.52, Lng: 74.35},
			b:         types.Point{Lat: 31.55, Lng: 74.40},
			wantKm:    5.8,
			tolerance: 0.4,
		},
		{
			name:      "New York to Los Angeles (~3944km)",
			a:         types.Point{Lat: 40.7128, Lng: -74.0060},
			b:         types.Point{Lat: 34.0522, Lng: -118.2437},
			wantKm:    3944,
			tolerance: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceKm(tt.a, tt.b)
			if math.Abs(got-tt.wantKm) > tt.tolerance {
				t.Errorf("DistanceKm() = %f, want %f (±%f)", got, tt.wantKm, tt.tolerance)
			}
		})
	}
}

func TestDistanceKm_SymmetryAndZero(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		a := types.Point{Lat: rng.Float64()*180 - 90, Lng: rng.Float64()*360 - 180}
		b := types.Point{Lat: rng.Float64()*180 - 90, Lng: rng.Float64()*360 - 180}
		d1, d2 := DistanceKm(a, b), DistanceKm(b, a)
		if math.Abs(d1-d2) > 1e-9 {
			t.Fatalf("not symmetric for %v %v: %f vs %f", a, b, d1, d2)
		}
		if d1 < 0 {
			t.Fatalf("negative distance %f", d1)
		}
		if z := DistanceKm(a, a); z > 1e-9 {
			t.Fatalf("DistanceKm(a,a) = %f", z)
		}
	}
}

func TestETAMinutes(t *testing.T) {
	cases := []struct {
		km    float64
		speed float64
		want  int
	}{
		{0, 30, 0},
		{5, 30, 10},
		{5.01, 30, 11},
		{5.8, 30, 12},
		{10, 0, 20}, // falls back to the default speed
		{15, 60, 15},
	}
	for _, tc := range cases {
		if got := ETAMinutes(tc.km, tc.speed); got != tc.want {
			t.Errorf("ETAMinutes(%v, %v) = %d, want %d", tc.km, tc.speed, got, tc.want)
		}
	}
}

func TestCoverCellsContainsNearbyPoints(t *testing.T) {
	center := types.Point{Lat: 31.52, Lng: 74.35}
	cells := CoverCells(center, 4)
	if len(cells) != 9 {
		t.Fatalf("expected 9 cells, got %d", len(cells))
	}
	// A pickup ~3km north-east must share a prefix with one of the cells.
	near := types.Point{Lat: 31.54, Lng: 74.37}
	h := Geohash(near)
	found := false
	for _, c := range cells {
		if strings.HasPrefix(h, c) {
			found = true
		}
	}
	if !found {
		t.Fatalf("geohash %s not covered by %v", h, cells)
	}
}

func TestCoverCellsRejectsHugeRadius(t *testing.T) {
	if cells := CoverCells(types.Point{Lat: 10, Lng: 10}, 500); cells != nil {
		t.Fatalf("expected nil for 500km radius, got %v", cells)
	}
	if cells := CoverCells(types.Point{Lat: 10, Lng: 10}, 0); cells != nil {
		t.Fatalf("expected nil for zero radius, got %v", cells)
	}
}
