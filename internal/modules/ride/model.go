// README: Ride aggregate and status definitions.
package ride

import (
	"encoding/json"
	"strings"
	"time"

	"bidride/internal/modules/location"
	"bidride/internal/types"
)

type Status string

const (
	StatusNone       Status = "none"
	StatusSearching  Status = "searching"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// HasDriver reports whether a ride in status s must carry a driver.
func (s Status) HasDriver() bool {
	return s == StatusConfirmed || s == StatusInProgress || s == StatusCompleted
}

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentWallet PaymentMethod = "wallet"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentWallet
}

// Free-text limits in runes. Every ride row is sent through pg_notify,
// whose payload is capped at 8000 bytes.
const (
	MaxNameLength   = 120
	MaxReasonLength = 280
)

type VehicleOption struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	BasePrice int64  `json:"basePrice"`
}

// Passenger is the profile joined onto a ride when it is fetched by id.
type Passenger struct {
	FullName  string `json:"full_name,omitempty"`
	Phone     string `json:"phone,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type Ride struct {
	ID          types.ID  `json:"id"`
	PassengerID types.ID  `json:"passenger_id"`
	DriverID    *types.ID `json:"driver_id"`
	// Pickup and Dropoff hold the stored payload as-is; rows written by older
	// clients use several shapes, so read them through PickupPoint and friends.
	Pickup          json.RawMessage `json:"pickup_location"`
	Dropoff         json.RawMessage `json:"dropoff_location"`
	VehicleOption   VehicleOption   `json:"vehicle_option"`
	Price           types.Money     `json:"price"`
	DistanceKm      float64         `json:"distance_km"`
	DurationMinutes int             `json:"duration_minutes"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	Status          Status          `json:"status"`
	StatusVersion   int             `json:"status_version"`
	DriverLocation  *types.Point    `json:"driver_location,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	EndedAt         *time.Time      `json:"ended_at,omitempty"`
	CancelReason    *string         `json:"cancel_reason,omitempty"`
	Passenger       *Passenger      `json:"passenger,omitempty"`
}

func (r *Ride) PickupPoint() (types.Point, bool) {
	return location.ExtractCoordinates(r.Pickup)
}

func (r *Ride) DropoffPoint() (types.Point, bool) {
	return location.ExtractCoordinates(r.Dropoff)
}

func (r *Ride) PickupName() string {
	return location.ExtractName(r.Pickup, "Pickup")
}

func (r *Ride) DropoffName() string {
	return location.ExtractName(r.Dropoff, "Dropoff")
}

// VehicleType is the normalized vehicle tag; empty means any vehicle.
func (r *Ride) VehicleType() string {
	return strings.ToLower(strings.TrimSpace(r.VehicleOption.Type))
}

// MatchesVehicle compares case-insensitively; an untagged ride matches every driver.
func (r *Ride) MatchesVehicle(driverVehicle string) bool {
	vt := r.VehicleType()
	return vt == "" || vt == strings.ToLower(strings.TrimSpace(driverVehicle))
}

func (r *Ride) IsParty(userID types.ID) bool {
	return r.PassengerID == userID || (r.DriverID != nil && *r.DriverID == userID)
}

type Event struct {
	ID         int64
	RideID     types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  string
	ActorID    *types.ID
	// PreviousDriverID is set when a confirmed ride is cancelled and loses its driver.
	PreviousDriverID *types.ID
	CreatedAt        time.Time
}

// Actor types recorded on events.
const (
	ActorPassenger = "passenger"
	ActorDriver    = "driver"
	ActorSystem    = "system"
)

// AllowedTransitions represents the ride state flow as code.
var AllowedTransitions = map[Status][]Status{
	StatusSearching:  {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}
