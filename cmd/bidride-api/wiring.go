package main

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"bidride/internal/apperr"
	"bidride/internal/config"
	"bidride/internal/infra"
	"bidride/internal/maps"
	"bidride/internal/modules/location"
	"bidride/internal/modules/matching"
	"bidride/internal/modules/ride"
	"bidride/internal/modules/wallet"
	"bidride/internal/realtime"
	"bidride/internal/types"
)

type objectUploader interface {
	Upload(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error)
}

// collaborators are the external services. Each one is optional except
// auth; a nil field disables the feature or falls back to a local stand-in.
type collaborators struct {
	verifier  infra.TokenVerifier
	tracker   location.Tracker
	uploader  objectUploader
	estimator ride.Estimator
	gateway   wallet.Gateway
}

// newWalletService reports balances in the fare currency so wallet and ride
// amounts share one unit. The Stripe ISO code stays inside the gateway.
func newWalletService(cfg config.Config, repo wallet.Repository, gateway wallet.Gateway, log *zap.Logger) *wallet.Service {
	return wallet.NewService(repo, gateway, cfg.Pricing.Currency, log)
}

func newCollaborators(ctx context.Context, cfg config.Config, log *zap.Logger) (collaborators, error) {
	c := collaborators{tracker: location.NewMemoryTracker()}

	if cfg.Firebase.ProjectID != "" {
		app, err := infra.NewFirebaseApp(ctx, cfg.Firebase)
		if err != nil {
			return c, err
		}
		if c.verifier, err = infra.NewFirebaseVerifier(ctx, app); err != nil {
			return c, err
		}
		if cfg.Firebase.DatabaseURL != "" {
			rtdb, err := infra.NewRealtimeDB(ctx, app)
			if err != nil {
				return c, err
			}
			c.tracker = location.NewFirebaseTracker(rtdb)
		}
		if cfg.Firebase.StorageBucket != "" {
			up, err := infra.NewFirebaseUploader(ctx, app, cfg.Firebase.StorageBucket)
			if err != nil {
				return c, err
			}
			c.uploader = up
		}
	} else {
		log.Warn("firebase not configured, using shared-secret tokens and in-memory driver positions")
		c.verifier = infra.NewJWTVerifier(cfg.Auth.JWTSecret)
	}

	if cfg.Maps.APIKey != "" {
		routes, err := maps.NewRouteService(cfg.Maps.APIKey, cfg.Maps.Region)
		if err != nil {
			return c, fmt.Errorf("maps: %w", err)
		}
		c.estimator = routes
	}
	if cfg.Stripe.APIKey != "" {
		c.gateway = wallet.NewStripeGateway(cfg.Stripe.APIKey, cfg.Stripe.Currency)
	}
	return c, nil
}

func rebuildIndex(ctx context.Context, index *matching.RedisIndex, rides *ride.Service) error {
	searching, err := rides.ListSearching(ctx)
	if err != nil {
		return err
	}
	return index.Rebuild(ctx, searching)
}

// followIndex keeps the GEO index in step with ride changes made by other
// instances. Searching rides are re-added; anything else is removed.
func followIndex(ctx context.Context, feed *realtime.Feed, index *matching.RedisIndex, rides *ride.Service, log *zap.Logger) {
	changed := make(chan types.ID, 256)
	unsubscribe := feed.Subscribe(realtime.TopicRides, nil, func(c realtime.Change) {
		select {
		case changed <- types.ID(c.String("id")):
		default:
			log.Warn("ride index queue full, dropping change", zap.String("ride_id", c.String("id")))
		}
	})
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case id := <-changed:
			r, err := rides.Get(ctx, id)
			switch {
			case err == nil && r.Status == ride.StatusSearching:
				err = index.Add(ctx, r)
			case err == nil, apperr.IsNotFound(err):
				err = index.Remove(ctx, id)
			}
			if err != nil {
				log.Warn("ride index sync failed", zap.String("ride_id", string(id)), zap.Error(err))
			}
		}
	}
}
