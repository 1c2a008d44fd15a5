package maps

import (
	"testing"

	"bidride/internal/types"
)

func TestLatLng(t *testing.T) {
	got := LatLng(types.Point{Lat: 31.52, Lng: 74.35})
	if got != "31.520000,74.350000" {
		t.Fatalf("unexpected origin string %q", got)
	}
}
