package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Channel is the NOTIFY channel the table triggers write to.
const Channel = "bidride_changes"

type notification struct {
	Table string         `json:"table"`
	Op    string         `json:"op"`
	Row   map[string]any `json:"row"`
}

func ParseNotification(payload string) (Change, error) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return Change{}, fmt.Errorf("decode notification: %w", err)
	}
	switch Topic(n.Table) {
	case TopicRides, TopicChat, TopicWallets:
	default:
		return Change{}, fmt.Errorf("unknown table %q", n.Table)
	}
	return Change{Topic: Topic(n.Table), Op: n.Op, Row: n.Row}, nil
}

// PGListener holds one pooled connection in LISTEN and publishes every
// notification to the feed. It reconnects with backoff until ctx ends.
type PGListener struct {
	pool *pgxpool.Pool
	feed *Feed
	log  *zap.Logger
}

func NewPGListener(pool *pgxpool.Pool, feed *Feed, log *zap.Logger) *PGListener {
	return &PGListener{pool: pool, feed: feed, log: log}
}

func (l *PGListener) Run(ctx context.Context) {
	backoff := 500 * time.Millisecond
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		l.log.Warn("change feed connection lost", zap.Error(err), zap.Duration("retry_in", backoff))
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (l *PGListener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return err
	}
	l.log.Info("listening for changes", zap.String("channel", Channel))
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		c, err := ParseNotification(n.Payload)
		if err != nil {
			l.log.Debug("ignoring notification", zap.Error(err))
			continue
		}
		l.feed.Publish(c)
	}
}
