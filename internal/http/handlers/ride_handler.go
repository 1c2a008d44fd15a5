// README: Passenger ride handlers: quote, create, get, cancel, active.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"bidride/internal/modules/location"
	"bidride/internal/modules/ride"
	"bidride/internal/types"
)

type RideHandler struct {
	rides *ride.Service
}

func NewRideHandler(svc *ride.Service) *RideHandler {
	return &RideHandler{rides: svc}
}

type quoteReq struct {
	Pickup      types.Point `json:"pickup"`
	Dropoff     types.Point `json:"dropoff"`
	VehicleType string      `json:"vehicle_type"`
}

func (h *RideHandler) Quote(c *gin.Context) {
	var req quoteReq
	if !bindJSON(c, &req) {
		return
	}
	q, err := h.rides.Quote(c.Request.Context(), ride.QuoteCommand{
		Pickup:      req.Pickup,
		Dropoff:     req.Dropoff,
		VehicleType: req.VehicleType,
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, q)
}

// createRideReq takes locations in any stored shape: {name, coordinates},
// {lat, lng}, a [lng, lat] pair or a JSON-encoded string of those.
type createRideReq struct {
	PickupLocation  json.RawMessage    `json:"pickup_location"`
	DropoffLocation json.RawMessage    `json:"dropoff_location"`
	VehicleOption   ride.VehicleOption `json:"vehicle_option"`
	Price           int64              `json:"price"`
	DistanceKm      float64            `json:"distance_km"`
	DurationMinutes int                `json:"duration_minutes"`
	PaymentMethod   string             `json:"payment_method"`
}

func (h *RideHandler) Create(c *gin.Context) {
	var req createRideReq
	if !bindJSON(c, &req) {
		return
	}
	pickup, ok := location.ExtractCoordinates(req.PickupLocation)
	if !ok {
		writeError(c, http.StatusBadRequest, "invalid pickup_location")
		return
	}
	dropoff, ok := location.ExtractCoordinates(req.DropoffLocation)
	if !ok {
		writeError(c, http.StatusBadRequest, "invalid dropoff_location")
		return
	}
	r, err := h.rides.Create(c.Request.Context(), ride.CreateCommand{
		PassengerID:     callerID(c),
		Pickup:          location.New(location.ExtractName(req.PickupLocation, "Pickup"), pickup),
		Dropoff:         location.New(location.ExtractName(req.DropoffLocation, "Dropoff"), dropoff),
		VehicleOption:   req.VehicleOption,
		Bid:             types.RS(req.Price),
		DistanceKm:      req.DistanceKm,
		DurationMinutes: req.DurationMinutes,
		PaymentMethod:   ride.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, r)
}

// Get is open to the ride's parties and, while it is searching, to any
// caller so drivers can inspect an offer.
func (h *RideHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	r, err := h.rides.Get(c.Request.Context(), id)
	if err != nil {
		writeAppError(c, err)
		return
	}
	if r.Status != ride.StatusSearching && !r.IsParty(callerID(c)) {
		writeError(c, http.StatusForbidden, "forbidden: not a party to this ride")
		return
	}
	writeJSON(c, http.StatusOK, r)
}

type cancelReq struct {
	Reason string `json:"reason"`
}

func (h *RideHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req cancelReq
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	r, err := h.rides.Cancel(c.Request.Context(), ride.CancelCommand{
		RideID:  id,
		ActorID: callerID(c),
		Reason:  req.Reason,
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RideHandler) Active(c *gin.Context) {
	r, err := h.rides.ActiveForPassenger(c.Request.Context(), callerID(c))
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"ride": r})
}
