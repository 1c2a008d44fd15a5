// README: Nearby-ride query and result types.
package matching

import (
	"bidride/internal/modules/ride"
	"bidride/internal/types"
)

// Query describes one driver's nearby-ride request.
type Query struct {
	DriverPosition types.Point
	VehicleType    string
	MaxDistanceKm  float64
}

type RideWithDistance struct {
	*ride.Ride
	DistanceToPickupKm float64 `json:"distance_to_pickup_km"`
}
