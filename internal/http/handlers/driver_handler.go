// README: Driver handlers: nearby rides, accept/start/complete, registration, location.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bidride/internal/apperr"
	"bidride/internal/modules/driver"
	"bidride/internal/modules/location"
	"bidride/internal/modules/matching"
	"bidride/internal/modules/ride"
	"bidride/internal/types"
)

// maxDocumentMemory caps how much of a registration form is held in memory.
const maxDocumentMemory = 16 << 20

type DriverHandler struct {
	rides     *ride.Service
	matching  *matching.Service
	drivers   *driver.Service
	locations *location.Service
}

func NewDriverHandler(rides *ride.Service, matchingSvc *matching.Service, drivers *driver.Service, locations *location.Service) *DriverHandler {
	return &DriverHandler{rides: rides, matching: matchingSvc, drivers: drivers, locations: locations}
}

func (h *DriverHandler) Nearby(c *gin.Context) {
	var pos *types.Point
	if c.Query("lat") != "" || c.Query("lng") != "" {
		lat, err1 := strconv.ParseFloat(c.Query("lat"), 64)
		lng, err2 := strconv.ParseFloat(c.Query("lng"), 64)
		if err1 != nil || err2 != nil {
			writeError(c, http.StatusBadRequest, "invalid lat/lng")
			return
		}
		pos = &types.Point{Lat: lat, Lng: lng}
	}
	var radius float64
	if v := c.Query("radius_km"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r <= 0 {
			writeError(c, http.StatusBadRequest, "invalid radius_km")
			return
		}
		radius = r
	}
	rides, err := h.matching.NearbyForDriver(c.Request.Context(), callerID(c), pos, radius)
	if err != nil {
		writeAppError(c, err)
		return
	}
	if rides == nil {
		rides = []matching.RideWithDistance{}
	}
	writeJSON(c, http.StatusOK, gin.H{"rides": rides})
}

type acceptReq struct {
	pointReq
	Price *int64 `json:"price"`
}

func (h *DriverHandler) Accept(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req acceptReq
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	cmd := ride.AcceptCommand{
		RideID:         id,
		DriverID:       callerID(c),
		DriverLocation: req.point(),
	}
	if req.Price != nil {
		bid := types.RS(*req.Price)
		cmd.CounterBid = &bid
	}
	r, err := h.rides.Accept(c.Request.Context(), cmd)
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *DriverHandler) Start(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	r, err := h.rides.Start(c.Request.Context(), id, callerID(c))
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *DriverHandler) Complete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	r, err := h.rides.Complete(c.Request.Context(), id, callerID(c))
	if err != nil {
		// Settlement can fail after the ride is already completed; posting
		// complete again retries it.
		if r != nil {
			msg := "please try again"
			if apperr.IsRejected(err) {
				msg = apperr.ReasonOf(err)
			}
			writeJSON(c, http.StatusOK, gin.H{"ride": r, "settlement_error": msg})
			return
		}
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"ride": r})
}

// Register takes a multipart form: vehicle_type, vehicle_number and one file
// per document, keyed by document kind.
func (h *DriverHandler) Register(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(maxDocumentMemory); err != nil {
		writeError(c, http.StatusBadRequest, "invalid multipart form")
		return
	}
	form := c.Request.MultipartForm
	cmd := driver.RegisterCommand{
		UserID:        callerID(c),
		VehicleType:   c.PostForm("vehicle_type"),
		VehicleNumber: c.PostForm("vehicle_number"),
	}
	for kind, files := range form.File {
		for _, fh := range files {
			f, err := fh.Open()
			if err != nil {
				writeError(c, http.StatusBadRequest, "unreadable document "+kind)
				return
			}
			defer f.Close()
			cmd.Documents = append(cmd.Documents, driver.Document{
				Kind:        kind,
				FileName:    fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Body:        f,
			})
		}
	}
	p, err := h.drivers.Register(c.Request.Context(), cmd)
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, p)
}

func (h *DriverHandler) Eligibility(c *gin.Context) {
	e, err := h.drivers.IsEligible(c.Request.Context(), callerID(c))
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, e)
}

type locationReq struct {
	pointReq
	Status string `json:"status"`
}

func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	var req locationReq
	if !bindJSON(c, &req) {
		return
	}
	p := req.point()
	if p == nil {
		writeError(c, http.StatusBadRequest, errNoPoint.Error())
		return
	}
	err := h.locations.Update(c.Request.Context(), location.Update{
		DriverID: callerID(c),
		Point:    *p,
		Status:   req.Status,
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

type driverStatusReq struct {
	Status string `json:"status"`
}

// SetStatus is the admin review hook.
func (h *DriverHandler) SetStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req driverStatusReq
	if !bindJSON(c, &req) {
		return
	}
	e, err := h.drivers.SetStatus(c.Request.Context(), id, driver.Status(req.Status))
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, e)
}
