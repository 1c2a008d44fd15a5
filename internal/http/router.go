// README: HTTP router registration.
package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"bidride/internal/http/handlers"
	"bidride/internal/http/middleware"
	"bidride/internal/infra"
	"bidride/internal/modules/chat"
	"bidride/internal/modules/driver"
	"bidride/internal/modules/location"
	"bidride/internal/modules/matching"
	"bidride/internal/modules/profile"
	"bidride/internal/modules/ride"
	"bidride/internal/modules/wallet"
	"bidride/internal/realtime"
)

type RouterDeps struct {
	Verifier  infra.TokenVerifier
	Rides     *ride.Service
	Matching  *matching.Service
	Drivers   *driver.Service
	Locations *location.Service
	Chat      *chat.Service
	Wallet    *wallet.Service
	Profiles  *profile.Service
	Feed      *realtime.Feed
	// RadiusKm and Tick configure driver realtime sessions.
	RadiusKm float64
	Tick     time.Duration
	Log      *zap.Logger
}

func NewRouter(d RouterDeps) *gin.Engine {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	r := gin.New()
	r.Use(middleware.Recovery(log), middleware.Logging(log), middleware.Metrics())

	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "OK") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", middleware.Auth(d.Verifier))

	rides := handlers.NewRideHandler(d.Rides)
	api.POST("/rides/quote", rides.Quote)
	api.POST("/rides", rides.Create)
	api.GET("/rides/active", rides.Active)
	api.GET("/rides/:id", rides.Get)
	api.POST("/rides/:id/cancel", rides.Cancel)

	if d.Chat != nil {
		chats := handlers.NewChatHandler(d.Chat)
		api.GET("/rides/:id/messages", chats.List)
		api.POST("/rides/:id/messages", chats.Send)
		api.POST("/rides/:id/messages/read", chats.MarkRead)
	}

	drivers := handlers.NewDriverHandler(d.Rides, d.Matching, d.Drivers, d.Locations)
	api.GET("/drivers/rides/nearby", drivers.Nearby)
	api.POST("/drivers/rides/:id/accept", drivers.Accept)
	api.POST("/drivers/rides/:id/start", drivers.Start)
	api.POST("/drivers/rides/:id/complete", drivers.Complete)
	api.POST("/drivers/register", drivers.Register)
	api.GET("/drivers/me/eligibility", drivers.Eligibility)
	api.PUT("/drivers/me/location", drivers.UpdateLocation)
	api.POST("/admin/drivers/:id/status", middleware.RequireRole("admin"), drivers.SetStatus)

	if d.Wallet != nil {
		w := handlers.NewWalletHandler(d.Wallet)
		api.GET("/wallet", w.Get)
		api.POST("/wallet/topup", w.TopUp)
	}

	if d.Profiles != nil {
		p := handlers.NewProfileHandler(d.Profiles)
		api.GET("/profile", p.Me)
		api.PUT("/profile", p.Update)
		api.POST("/profile/avatar", p.UploadAvatar)
	}

	if d.Feed != nil {
		rt := handlers.NewRealtimeHandler(handlers.RealtimeDeps{
			Feed:      d.Feed,
			Rides:     d.Rides,
			Chat:      d.Chat,
			Matching:  d.Matching,
			Drivers:   d.Drivers,
			Locations: d.Locations,
			RadiusKm:  d.RadiusKm,
			Tick:      d.Tick,
			Log:       log,
		})
		r.GET("/ws", middleware.AuthQuery(d.Verifier), rt.Stream)
	}
	return r
}
