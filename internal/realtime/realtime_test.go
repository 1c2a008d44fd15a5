package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"bidride/internal/modules/chat"
	"bidride/internal/modules/driver"
	"bidride/internal/modules/matching"
	"bidride/internal/modules/ride"
	"bidride/internal/types"
)

func TestFeedRoutesByTopicAndPredicate(t *testing.T) {
	f := NewFeed(nil)
	var got []string
	unsub := f.Subscribe(TopicRides, FieldEquals("id", "r1"), func(c Change) {
		got = append(got, c.Op)
	})
	f.Subscribe(TopicChat, nil, func(Change) { t.Fatalf("chat subscriber got a ride change") })

	f.Publish(Change{Topic: TopicRides, Op: "UPDATE", Row: map[string]any{"id": "r1"}})
	f.Publish(Change{Topic: TopicRides, Op: "UPDATE", Row: map[string]any{"id": "r2"}})
	unsub()
	unsub()
	f.Publish(Change{Topic: TopicRides, Op: "DELETE", Row: map[string]any{"id": "r1"}})

	if len(got) != 1 || got[0] != "UPDATE" {
		t.Fatalf("unexpected deliveries: %v", got)
	}
	if f.Len() != 1 {
		t.Fatalf("expected one remaining subscription, got %d", f.Len())
	}
}

func TestParseNotification(t *testing.T) {
	c, err := ParseNotification(`{"table":"wallets","op":"UPDATE","row":{"user_id":"u1","balance":3000}}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Topic != TopicWallets || c.String("user_id") != "u1" || c.String("balance") != "3000" {
		t.Fatalf("unexpected change: %+v", c)
	}
	var w struct {
		Balance int64 `json:"balance"`
	}
	if err := c.Decode(&w); err != nil || w.Balance != 3000 {
		t.Fatalf("decode: %v %+v", err, w)
	}

	for _, payload := range []string{`not json`, `{"table":"profiles","op":"INSERT","row":{}}`} {
		if _, err := ParseNotification(payload); err == nil {
			t.Fatalf("expected error for %q", payload)
		}
	}
}

type fakeEligibility struct {
	mu sync.Mutex
	e  driver.Eligibility
}

func (f *fakeEligibility) set(e driver.Eligibility) {
	f.mu.Lock()
	f.e = e
	f.mu.Unlock()
}

func (f *fakeEligibility) IsEligible(context.Context, types.ID) (driver.Eligibility, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.e, nil
}

type fakeNearby struct {
	mu    sync.Mutex
	rides []matching.RideWithDistance
	pos   *types.Point
}

func (f *fakeNearby) set(ids ...types.ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rides = nil
	for _, id := range ids {
		f.rides = append(f.rides, matching.RideWithDistance{Ride: &ride.Ride{ID: id, Status: ride.StatusSearching}})
	}
}

func (f *fakeNearby) NearbyForDriver(_ context.Context, _ types.ID, pos *types.Point, _ float64) ([]matching.RideWithDistance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pos = pos
	return append([]matching.RideWithDistance(nil), f.rides...), nil
}

type noActive struct{}

func (noActive) ActiveForDriver(context.Context, types.ID) (*ride.Ride, error) { return nil, nil }

// waitFor drains snapshots until one satisfies ok.
func waitFor(t *testing.T, ch <-chan Snapshot, ok func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s, open := <-ch:
			if !open {
				t.Fatalf("snapshot channel closed")
			}
			if ok(s) {
				return s
			}
		case <-deadline:
			t.Fatalf("timed out waiting for snapshot")
		}
	}
}

func TestDriverSessionFollowsRideChanges(t *testing.T) {
	feed := NewFeed(nil)
	elig := &fakeEligibility{e: driver.Eligibility{Eligible: true, VehicleType: "car"}}
	nearby := &fakeNearby{}
	nearby.set("r1", "r2")

	s := NewDriverSession(feed, "d1", 8, 0, DriverDeps{Nearby: nearby, Eligibility: elig, Rides: noActive{}}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { s.Run(ctx); close(done) }()

	waitFor(t, s.Snapshots(), func(s Snapshot) bool { return len(s.Nearby) == 2 })

	// Another driver took r1.
	nearby.set("r2")
	feed.Publish(Change{Topic: TopicRides, Op: "UPDATE", Row: map[string]any{"id": "r1", "status": "confirmed"}})
	snap := waitFor(t, s.Snapshots(), func(s Snapshot) bool { return len(s.Nearby) == 1 })
	if snap.Nearby[0].ID != "r2" {
		t.Fatalf("expected r2 to remain, got %s", snap.Nearby[0].ID)
	}

	// Position updates are passed through to the query.
	s.SetPosition(types.Point{Lat: 31.52, Lng: 74.35})
	waitFor(t, s.Snapshots(), func(Snapshot) bool {
		nearby.mu.Lock()
		defer nearby.mu.Unlock()
		return nearby.pos != nil && nearby.pos.Lat == 31.52
	})

	cancel()
	<-done
	if feed.Len() != 0 {
		t.Fatalf("session left %d subscriptions behind", feed.Len())
	}
}

func TestDriverSessionWalletChangeRechecksEligibility(t *testing.T) {
	feed := NewFeed(nil)
	elig := &fakeEligibility{e: driver.Eligibility{Reason: driver.ReasonInsufficientDeposit, Balance: 0, Required: 3000}}
	nearby := &fakeNearby{}
	nearby.set("r1")

	s := NewDriverSession(feed, "d1", 8, 0, DriverDeps{Nearby: nearby, Eligibility: elig, Rides: noActive{}}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	first := waitFor(t, s.Snapshots(), func(Snapshot) bool { return true })
	if first.Eligibility.Eligible || len(first.Nearby) != 0 {
		t.Fatalf("ineligible driver must not see rides: %+v", first)
	}

	elig.set(driver.Eligibility{Eligible: true, Balance: 3000, Required: 3000})
	// Another user's wallet does not concern this session.
	feed.Publish(Change{Topic: TopicWallets, Op: "UPDATE", Row: map[string]any{"user_id": "someone-else"}})
	feed.Publish(Change{Topic: TopicWallets, Op: "UPDATE", Row: map[string]any{"user_id": "d1", "balance": 3000}})

	snap := waitFor(t, s.Snapshots(), func(s Snapshot) bool { return s.Eligibility.Eligible })
	if len(snap.Nearby) != 1 {
		t.Fatalf("expected nearby rides after top-up, got %d", len(snap.Nearby))
	}
}

type fakeRides struct {
	mu sync.Mutex
	r  *ride.Ride
}

func (f *fakeRides) setStatus(s ride.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.r
	cp.Status = s
	f.r = &cp
}

func (f *fakeRides) Get(context.Context, types.ID) (*ride.Ride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.r, nil
}

type fakeChat struct {
	mu   sync.Mutex
	msgs []chat.Message
}

func (f *fakeChat) add(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, chat.Message{ID: types.NewID(), RideID: "r1", Message: text})
}

func (f *fakeChat) List(context.Context, types.ID, types.ID) ([]chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chat.Message(nil), f.msgs...), nil
}

func TestPassengerSessionTracksRideAndChat(t *testing.T) {
	feed := NewFeed(nil)
	rides := &fakeRides{r: &ride.Ride{ID: "r1", Status: ride.StatusSearching}}
	chats := &fakeChat{}

	s := NewPassengerSession(feed, "p1", "r1", rides, chats, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	waitFor(t, s.Snapshots(), func(s Snapshot) bool { return s.Ride != nil && s.Ride.Status == ride.StatusSearching })

	rides.setStatus(ride.StatusConfirmed)
	feed.Publish(Change{Topic: TopicRides, Op: "UPDATE", Row: map[string]any{"id": "r1"}})
	waitFor(t, s.Snapshots(), func(s Snapshot) bool { return s.Ride.Status == ride.StatusConfirmed })

	chats.add("on my way")
	feed.Publish(Change{Topic: TopicChat, Op: "INSERT", Row: map[string]any{"ride_id": "r1"}})
	snap := waitFor(t, s.Snapshots(), func(s Snapshot) bool { return len(s.Messages) == 1 })
	if snap.Type != "passenger" || snap.Messages[0].Message != "on my way" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestSessionOverflowForcesResync(t *testing.T) {
	s := newSession(nil)
	for i := 0; i < changeBuffer+5; i++ {
		s.enqueue(Change{Topic: TopicRides})
	}
	if len(s.changes) != changeBuffer {
		t.Fatalf("expected full queue, got %d", len(s.changes))
	}
	select {
	case <-s.resync:
	default:
		t.Fatalf("overflow must request a resync")
	}
}

func TestEmitKeepsOnlyLatestSnapshot(t *testing.T) {
	s := newSession(nil)
	s.emit(Snapshot{Type: "a"})
	s.emit(Snapshot{Type: "b"})
	got := <-s.out
	if got.Type != "b" || got.Seq != 2 {
		t.Fatalf("expected latest snapshot, got %+v", got)
	}
}

type recordingRecomputer struct {
	mu   sync.Mutex
	seen []types.ID
	err  error
}

func (r *recordingRecomputer) RecomputeDeposit(_ context.Context, id types.ID) (driver.Eligibility, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, id)
	return driver.Eligibility{}, r.err
}

func (r *recordingRecomputer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func TestWatchDepositsRecomputesOnWalletChange(t *testing.T) {
	feed := NewFeed(nil)
	rec := &recordingRecomputer{err: errors.New("transient")}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { WatchDeposits(ctx, feed, rec, zap.NewNop()); close(done) }()

	deadline := time.Now().Add(2 * time.Second)
	for feed.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	feed.Publish(Change{Topic: TopicWallets, Row: map[string]any{"user_id": "d1"}})
	feed.Publish(Change{Topic: TopicWallets, Row: map[string]any{}})
	feed.Publish(Change{Topic: TopicWallets, Row: map[string]any{"user_id": "d2"}})

	for rec.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if rec.count() != 2 {
		t.Fatalf("expected two recomputes, got %d", rec.count())
	}
	if feed.Len() != 0 {
		t.Fatalf("watcher left its subscription behind")
	}
}
