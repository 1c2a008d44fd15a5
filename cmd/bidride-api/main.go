// README: Entry point; loads config, wires services, starts the HTTP server and background loops.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"bidride/internal/config"
	"bidride/internal/events"
	httptransport "bidride/internal/http"
	"bidride/internal/infra"
	"bidride/internal/modules/chat"
	"bidride/internal/modules/driver"
	"bidride/internal/modules/location"
	"bidride/internal/modules/matching"
	"bidride/internal/modules/pricing"
	"bidride/internal/modules/profile"
	"bidride/internal/modules/ride"
	"bidride/internal/modules/wallet"
	"bidride/internal/realtime"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := infra.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		return err
	}
	defer dbPool.Close()

	c, err := newCollaborators(ctx, cfg, log)
	if err != nil {
		return err
	}

	var redisClient *redis.Client
	if rc, err := infra.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password); err == nil {
		redisClient = rc
		defer rc.Close()
	} else if cfg.Matching.Source == config.SourceRedis {
		return err
	} else {
		log.Warn("redis unavailable, running without accept guard", zap.Error(err))
	}

	publisher, err := events.New(cfg.Events)
	if err != nil {
		return fmt.Errorf("events: %w", err)
	}
	defer publisher.Close()

	var rateSource pricing.RateSource
	if cfg.Pricing.LoadRatesFromDB {
		rateSource = pricing.NewStore(dbPool)
	}
	pricingSvc := pricing.NewService(rateSource, cfg.Pricing.AvgSpeedKmH, cfg.Pricing.Currency, log)
	if err := pricingSvc.Reload(ctx); err != nil {
		log.Warn("fare overrides not loaded, using defaults", zap.Error(err))
	}
	knownVehicle := func(vt string) bool {
		_, ok := pricingSvc.Rate(vt)
		return ok
	}

	walletSvc := newWalletService(cfg, wallet.NewStore(dbPool), c.gateway, log)
	driverSvc := driver.NewService(driver.NewStore(dbPool), walletSvc, c.uploader, cfg.Driver.DepositRequired, knownVehicle, log)
	locationSvc := location.NewService(c.tracker, cfg.Matching.LocationMaxAge)

	rideStore := ride.NewStore(dbPool)
	opts := []ride.Option{
		ride.WithPayments(walletSvc),
		ride.WithPublisher(publisher),
		ride.WithLogger(log),
	}
	if c.estimator != nil {
		opts = append(opts, ride.WithEstimator(c.estimator))
	}
	var index *matching.RedisIndex
	if redisClient != nil {
		opts = append(opts, ride.WithGuard(ride.NewRedisGuard(redisClient, cfg.Matching.AcceptGuardTTL)))
		if cfg.Matching.Source == config.SourceRedis {
			index = matching.NewRedisIndex(redisClient)
			opts = append(opts, ride.WithIndex(index))
		}
	}
	rideSvc := ride.NewService(rideStore, pricingSvc, driverSvc, opts...)

	var source matching.Source
	switch cfg.Matching.Source {
	case config.SourceRPC:
		source = matching.RPCSource{Rides: rideSvc}
	case config.SourceRedis:
		source = matching.GeoSource{Index: index, Rides: rideSvc, Log: log}
	default:
		source = matching.ScanSource{Rides: rideSvc}
	}
	engine := matching.NewEngine(source, cfg.Matching.RadiusKm, log)
	matchingSvc := matching.NewService(engine, driverSvc, locationSvc)

	chatSvc := chat.NewService(chat.NewStore(dbPool), rideSvc)
	profileSvc := profile.NewService(profile.NewStore(dbPool), c.uploader)

	feed := realtime.NewFeed(log)
	go realtime.NewPGListener(dbPool, feed, log).Run(ctx)
	go realtime.WatchDeposits(ctx, feed, driverSvc, log)
	if index != nil {
		if err := rebuildIndex(ctx, index, rideSvc); err != nil {
			log.Warn("ride index rebuild failed", zap.Error(err))
		}
		go followIndex(ctx, feed, index, rideSvc, log)
	}

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Verifier:  c.verifier,
		Rides:     rideSvc,
		Matching:  matchingSvc,
		Drivers:   driverSvc,
		Locations: locationSvc,
		Chat:      chatSvc,
		Wallet:    walletSvc,
		Profiles:  profileSvc,
		Feed:      feed,
		RadiusKm:  cfg.Matching.RadiusKm,
		Tick:      cfg.Matching.Tick(),
		Log:       log,
	})
	return httptransport.NewServer(cfg.HTTP.Addr, router, cfg.HTTP.ShutdownTimeout, log).Run(ctx)
}
