// README: Websocket stream of realtime session snapshots.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"bidride/internal/modules/chat"
	"bidride/internal/modules/driver"
	"bidride/internal/modules/location"
	"bidride/internal/modules/matching"
	"bidride/internal/modules/ride"
	"bidride/internal/realtime"
	"bidride/internal/types"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

type RealtimeHandler struct {
	feed      *realtime.Feed
	rides     *ride.Service
	chat      *chat.Service
	matching  *matching.Service
	drivers   *driver.Service
	locations *location.Service
	radiusKm  float64
	tick      time.Duration
	log       *zap.Logger
}

type RealtimeDeps struct {
	Feed      *realtime.Feed
	Rides     *ride.Service
	Chat      *chat.Service
	Matching  *matching.Service
	Drivers   *driver.Service
	Locations *location.Service
	RadiusKm  float64
	Tick      time.Duration
	Log       *zap.Logger
}

func NewRealtimeHandler(d RealtimeDeps) *RealtimeHandler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &RealtimeHandler{
		feed:      d.Feed,
		rides:     d.Rides,
		chat:      d.Chat,
		matching:  d.Matching,
		drivers:   d.Drivers,
		locations: d.Locations,
		radiusKm:  d.RadiusKm,
		tick:      d.Tick,
		log:       d.Log,
	}
}

type snapshotSource interface {
	Run(ctx context.Context)
	Snapshots() <-chan realtime.Snapshot
}

// clientMessage is what a driver sends upstream; only location is understood.
type clientMessage struct {
	Type string  `json:"type"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

// Stream serves GET /ws?role=driver|passenger[&ride_id=]. Passenger
// streams resolve the active ride when ride_id is omitted.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	uid := callerID(c)
	var (
		src    snapshotSource
		onMove func(ctx context.Context, p types.Point)
	)
	switch c.Query("role") {
	case "driver":
		s := realtime.NewDriverSession(h.feed, uid, h.radiusKm, h.tick, realtime.DriverDeps{
			Nearby:      h.matching,
			Eligibility: h.drivers,
			Rides:       h.rides,
		}, h.log)
		src = s
		onMove = func(ctx context.Context, p types.Point) {
			if err := h.locations.Update(ctx, location.Update{DriverID: uid, Point: p}); err != nil {
				h.log.Debug("ws location update failed", zap.String("driver_id", string(uid)), zap.Error(err))
			}
			s.SetPosition(p)
		}
	case "passenger":
		r, ok := h.passengerRide(c, uid)
		if !ok {
			return
		}
		src = realtime.NewPassengerSession(h.feed, uid, r.ID, h.rides, h.chat, h.log)
	default:
		writeError(c, http.StatusBadRequest, "role must be driver or passenger")
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go src.Run(ctx)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Info("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	go h.readLoop(ctx, cancel, conn, onMove)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case snap, open := <-src.Snapshots():
			if !open {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(snap); err != nil {
				h.log.Debug("websocket write failed", zap.String("uid", string(uid)), zap.Error(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (h *RealtimeHandler) passengerRide(c *gin.Context, uid types.ID) (*ride.Ride, bool) {
	ctx := c.Request.Context()
	if id := c.Query("ride_id"); id != "" {
		r, err := h.rides.Get(ctx, types.ID(id))
		if err != nil {
			writeAppError(c, err)
			return nil, false
		}
		if !r.IsParty(uid) {
			writeError(c, http.StatusForbidden, "forbidden: not a party to this ride")
			return nil, false
		}
		return r, true
	}
	r, err := h.rides.ActiveForPassenger(ctx, uid)
	if err != nil {
		writeAppError(c, err)
		return nil, false
	}
	if r == nil {
		writeError(c, http.StatusNotFound, "no active ride")
		return nil, false
	}
	return r, true
}

// readLoop keeps the read deadline alive and cancels the stream when the
// client goes away.
func (h *RealtimeHandler) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, onMove func(context.Context, types.Point)) {
	defer cancel()
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if msg.Type == "location" && onMove != nil {
			onMove(ctx, types.Point{Lat: msg.Lat, Lng: msg.Lng})
		}
	}
}
