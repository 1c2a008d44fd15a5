// README: Ride lifecycle events published to the configured broker.
package events

import (
	"context"
	"time"

	"bidride/internal/types"
)

const (
	TypeRideCreated       = "ride.created"
	TypeRideAccepted      = "ride.accepted"
	TypeRideStatusChanged = "ride.status_changed"
)

type RideEvent struct {
	Type        string       `json:"type"`
	RideID      types.ID     `json:"ride_id"`
	PassengerID types.ID     `json:"passenger_id"`
	DriverID    *types.ID    `json:"driver_id,omitempty"`
	Status      string       `json:"status"`
	Price       types.Money  `json:"price"`
	VehicleType string       `json:"vehicle_type,omitempty"`
	Pickup      *types.Point `json:"pickup,omitempty"`
	OccurredAt  time.Time    `json:"occurred_at"`
}

// Publisher delivers ride events. Publishing is best effort; callers log
// failures and never undo the write that produced the event.
type Publisher interface {
	Publish(ctx context.Context, e RideEvent) error
	Close() error
}

type Noop struct{}

func (Noop) Publish(context.Context, RideEvent) error { return nil }
func (Noop) Close() error                             { return nil }
