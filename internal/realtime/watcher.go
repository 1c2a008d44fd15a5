package realtime

import (
	"context"

	"go.uber.org/zap"

	"bidride/internal/modules/driver"
	"bidride/internal/types"
)

type DepositRecomputer interface {
	RecomputeDeposit(ctx context.Context, userID types.ID) (driver.Eligibility, error)
}

// WatchDeposits keeps drivers' deposit flags in step with wallet changes. It
// blocks until ctx ends.
func WatchDeposits(ctx context.Context, feed *Feed, drivers DepositRecomputer, log *zap.Logger) {
	users := make(chan types.ID, 256)
	unsubscribe := feed.Subscribe(TopicWallets, nil, func(c Change) {
		id := types.ID(c.String("user_id"))
		if id == "" {
			return
		}
		select {
		case users <- id:
		default:
			log.Warn("deposit watcher queue full", zap.String("user_id", string(id)))
		}
	})
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case id := <-users:
			if _, err := drivers.RecomputeDeposit(ctx, id); err != nil {
				log.Warn("recompute deposit failed", zap.String("user_id", string(id)), zap.Error(err))
			}
		}
	}
}
