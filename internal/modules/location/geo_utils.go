// README: Pure geographic helpers: haversine distance, ETA and geohash cover cells.
package location

import (
	"math"

	"github.com/mmcloughlin/geohash"

	"bidride/internal/types"
)

const earthRadiusKm = 6371.0

// DefaultAvgSpeedKmH is the assumed city speed for travel-time estimates.
const DefaultAvgSpeedKmH = 30.0

// DistanceKm returns the great-circle distance in kilometres between two
// points using the Haversine formula.
func DistanceKm(a, b types.Point) float64 {
	return haversineKm(a.Lat, a.Lng, b.Lat, b.Lng)
}

func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	if a > 1 {
		a = 1
	}
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// ETAMinutes converts a distance into whole minutes at avgSpeedKmH, rounding
// up. A non-positive speed falls back to DefaultAvgSpeedKmH.
func ETAMinutes(distanceKm, avgSpeedKmH float64) int {
	if avgSpeedKmH <= 0 {
		avgSpeedKmH = DefaultAvgSpeedKmH
	}
	if distanceKm <= 0 {
		return 0
	}
	return int(math.Ceil(distanceKm / avgSpeedKmH * 60))
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// cellSpanDeg is the lat/lng span of one geohash cell per precision.
var cellSpanDeg = map[uint][2]float64{
	3: {1.40625, 1.40625},
	4: {0.17578125, 0.3515625},
	5: {0.0439453125, 0.0439453125},
	6: {0.0054931640625, 0.010986328125},
}

// CoverCells returns the geohash cell containing center plus its eight
// neighbours, at the finest precision whose cells are at least radiusKm wide,
// so every point within radiusKm falls in one of them. It returns nil when
// the radius is too large for a useful prefilter.
func CoverCells(center types.Point, radiusKm float64) []string {
	if radiusKm <= 0 || !center.Valid() {
		return nil
	}
	kmPerDeg := earthRadiusKm * math.Pi / 180
	cosLat := math.Cos(degreesToRadians(center.Lat))
	for precision := uint(6); precision >= 3; precision-- {
		span := cellSpanDeg[precision]
		heightKm := span[0] * kmPerDeg
		widthKm := span[1] * kmPerDeg * cosLat
		if heightKm >= radiusKm && widthKm >= radiusKm {
			hash := geohash.EncodeWithPrecision(center.Lat, center.Lng, precision)
			return append([]string{hash}, geohash.Neighbors(hash)...)
		}
	}
	return nil
}

// Geohash returns the precision-6 cell used to index pickup points.
func Geohash(p types.Point) string {
	return geohash.EncodeWithPrecision(p.Lat, p.Lng, 6)
}
