// README: Live sessions. Each session owns one reducer goroutine that folds feed
// changes into a snapshot and emits the latest snapshot to its consumer.
package realtime

import (
	"context"
	"time"

	"go.uber.org/zap"

	"bidride/internal/modules/chat"
	"bidride/internal/modules/driver"
	"bidride/internal/modules/matching"
	"bidride/internal/modules/ride"
	"bidride/internal/observability"
	"bidride/internal/types"
)

const changeBuffer = 64

type Snapshot struct {
	Type        string                      `json:"type"`
	Seq         int64                       `json:"seq"`
	Eligibility *driver.Eligibility         `json:"eligibility,omitempty"`
	Nearby      []matching.RideWithDistance `json:"nearby,omitempty"`
	Ride        *ride.Ride                  `json:"ride,omitempty"`
	Messages    []chat.Message              `json:"messages,omitempty"`
	Error       string                      `json:"error,omitempty"`
}

// session is the shared plumbing: a bounded change queue, an overflow flag
// that forces a full refresh, and a one-slot output where newer snapshots
// replace unread ones.
type session struct {
	changes chan Change
	resync  chan struct{}
	out     chan Snapshot
	unsubs  []func()
	seq     int64
	log     *zap.Logger
}

func newSession(log *zap.Logger) session {
	if log == nil {
		log = zap.NewNop()
	}
	return session{
		changes: make(chan Change, changeBuffer),
		resync:  make(chan struct{}, 1),
		out:     make(chan Snapshot, 1),
		log:     log,
	}
}

func (s *session) enqueue(c Change) {
	select {
	case s.changes <- c:
	default:
		select {
		case s.resync <- struct{}{}:
		default:
		}
	}
}

func (s *session) emit(snap Snapshot) {
	s.seq++
	snap.Seq = s.seq
	select {
	case <-s.out:
	default:
	}
	s.out <- snap
}

func (s *session) close() {
	for _, u := range s.unsubs {
		u()
	}
	close(s.out)
	observability.RealtimeSessions.Dec()
}

type NearbyFinder interface {
	NearbyForDriver(ctx context.Context, driverID types.ID, pos *types.Point, radiusKm float64) ([]matching.RideWithDistance, error)
}

type EligibilityChecker interface {
	IsEligible(ctx context.Context, driverID types.ID) (driver.Eligibility, error)
}

type DriverRides interface {
	ActiveForDriver(ctx context.Context, driverID types.ID) (*ride.Ride, error)
}

type DriverDeps struct {
	Nearby      NearbyFinder
	Eligibility EligibilityChecker
	Rides       DriverRides
}

// DriverSession streams the driver's eligibility together with either the
// assigned ride or the ranked nearby rides. Any ride change re-runs the
// query; a change to the driver's own wallet re-checks eligibility.
type DriverSession struct {
	session
	driverID  types.ID
	radiusKm  float64
	tick      time.Duration
	deps      DriverDeps
	positions chan types.Point
	pos       *types.Point
	elig      driver.Eligibility
}

func NewDriverSession(feed *Feed, driverID types.ID, radiusKm float64, tick time.Duration, deps DriverDeps, log *zap.Logger) *DriverSession {
	d := &DriverSession{
		session:   newSession(log),
		driverID:  driverID,
		radiusKm:  radiusKm,
		tick:      tick,
		deps:      deps,
		positions: make(chan types.Point, 1),
	}
	d.unsubs = append(d.unsubs,
		feed.Subscribe(TopicRides, nil, d.enqueue),
		feed.Subscribe(TopicWallets, FieldEquals("user_id", string(driverID)), d.enqueue),
	)
	observability.RealtimeSessions.Inc()
	return d
}

func (d *DriverSession) Snapshots() <-chan Snapshot { return d.out }

// SetPosition replaces any position the reducer has not consumed yet.
func (d *DriverSession) SetPosition(p types.Point) {
	for {
		select {
		case d.positions <- p:
			return
		default:
		}
		select {
		case <-d.positions:
		default:
		}
	}
}

// Run blocks until ctx ends, then unsubscribes and closes Snapshots.
func (d *DriverSession) Run(ctx context.Context) {
	defer d.close()

	var tick <-chan time.Time
	if d.tick > 0 {
		t := time.NewTicker(d.tick)
		defer t.Stop()
		tick = t.C
	}

	d.checkEligibility(ctx)
	d.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-d.changes:
			if c.Topic == TopicWallets {
				d.checkEligibility(ctx)
			}
			d.refresh(ctx)
		case <-d.resync:
			d.checkEligibility(ctx)
			d.refresh(ctx)
		case p := <-d.positions:
			d.pos = &p
			d.refresh(ctx)
		case <-tick:
			d.refresh(ctx)
		}
	}
}

func (d *DriverSession) checkEligibility(ctx context.Context) {
	e, err := d.deps.Eligibility.IsEligible(ctx, d.driverID)
	if err != nil {
		d.log.Warn("eligibility check failed", zap.String("driver_id", string(d.driverID)), zap.Error(err))
		return
	}
	d.elig = e
}

func (d *DriverSession) refresh(ctx context.Context) {
	elig := d.elig
	snap := Snapshot{Type: "driver", Eligibility: &elig, Nearby: []matching.RideWithDistance{}}
	if d.deps.Rides != nil {
		active, err := d.deps.Rides.ActiveForDriver(ctx, d.driverID)
		if err != nil {
			snap.Error = err.Error()
			d.emit(snap)
			return
		}
		if active != nil {
			snap.Ride = active
			d.emit(snap)
			return
		}
	}
	if elig.Eligible {
		nearby, err := d.deps.Nearby.NearbyForDriver(ctx, d.driverID, d.pos, d.radiusKm)
		if err != nil {
			snap.Error = err.Error()
		} else {
			snap.Nearby = nearby
		}
	}
	d.emit(snap)
}

type RideReader interface {
	Get(ctx context.Context, id types.ID) (*ride.Ride, error)
}

type ChatReader interface {
	List(ctx context.Context, rideID, userID types.ID) ([]chat.Message, error)
}

// PassengerSession follows one ride and its chat thread.
type PassengerSession struct {
	session
	userID types.ID
	rideID types.ID
	rides  RideReader
	chat   ChatReader
	ride   *ride.Ride
	msgs   []chat.Message
}

func NewPassengerSession(feed *Feed, userID, rideID types.ID, rides RideReader, chats ChatReader, log *zap.Logger) *PassengerSession {
	p := &PassengerSession{
		session: newSession(log),
		userID:  userID,
		rideID:  rideID,
		rides:   rides,
		chat:    chats,
	}
	p.unsubs = append(p.unsubs,
		feed.Subscribe(TopicRides, FieldEquals("id", string(rideID)), p.enqueue),
		feed.Subscribe(TopicChat, FieldEquals("ride_id", string(rideID)), p.enqueue),
	)
	observability.RealtimeSessions.Inc()
	return p
}

func (p *PassengerSession) Snapshots() <-chan Snapshot { return p.out }

func (p *PassengerSession) Run(ctx context.Context) {
	defer p.close()

	p.loadRide(ctx)
	p.loadChat(ctx)
	p.publish()
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-p.changes:
			switch c.Topic {
			case TopicRides:
				p.loadRide(ctx)
			case TopicChat:
				p.loadChat(ctx)
			}
			p.publish()
		case <-p.resync:
			p.loadRide(ctx)
			p.loadChat(ctx)
			p.publish()
		}
	}
}

func (p *PassengerSession) loadRide(ctx context.Context) {
	r, err := p.rides.Get(ctx, p.rideID)
	if err != nil {
		p.log.Warn("ride reload failed", zap.String("ride_id", string(p.rideID)), zap.Error(err))
		return
	}
	p.ride = r
}

func (p *PassengerSession) loadChat(ctx context.Context) {
	if p.chat == nil {
		return
	}
	msgs, err := p.chat.List(ctx, p.rideID, p.userID)
	if err != nil {
		p.log.Warn("chat reload failed", zap.String("ride_id", string(p.rideID)), zap.Error(err))
		return
	}
	p.msgs = msgs
}

func (p *PassengerSession) publish() {
	p.emit(Snapshot{Type: "passenger", Ride: p.ride, Messages: p.msgs})
}
