package ride

import (
	"context"
	"sort"
	"sync"

	"bidride/internal/modules/location"
	"bidride/internal/types"
)

// MemoryStore is an in-process Repository. Every write is applied under one
// lock, which gives it the same conditional-update semantics as the SQL store.
type MemoryStore struct {
	mu     sync.Mutex
	rides  map[types.ID]*Ride
	events []Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rides: make(map[types.ID]*Ride)}
}

// Put stores r as-is; used to seed rows with legacy location payloads.
func (m *MemoryStore) Put(r *Ride) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[r.ID] = clone(r)
}

func (m *MemoryStore) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

func (m *MemoryStore) Create(_ context.Context, r *Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[r.ID] = clone(r)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id types.ID) (*Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(r), nil
}

func (m *MemoryStore) ListSearching(_ context.Context) ([]*Ride, error) {
	return m.filter(func(r *Ride) bool {
		return r.Status == StatusSearching && r.DriverID == nil
	}), nil
}

// ListNearby applies the radius on decoded pickups; cells are ignored.
func (m *MemoryStore) ListNearby(_ context.Context, center types.Point, radiusKm float64, _ []string) ([]*Ride, error) {
	return m.filter(func(r *Ride) bool {
		if r.Status != StatusSearching || r.DriverID != nil {
			return false
		}
		p, ok := r.PickupPoint()
		return ok && location.DistanceKm(center, p) <= radiusKm
	}), nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, t Transition) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[t.RideID]
	if !ok || r.Status != t.From || r.StatusVersion != t.Version {
		return false, nil
	}
	r.Status = t.To
	r.StatusVersion++
	if t.ClearDriver {
		r.DriverID = nil
	}
	at := t.At
	switch t.To {
	case StatusInProgress:
		r.StartedAt = &at
	case StatusCompleted, StatusCancelled:
		r.EndedAt = &at
	}
	if t.CancelReason != nil {
		reason := *t.CancelReason
		r.CancelReason = &reason
	}
	return true, nil
}

func (m *MemoryStore) Accept(_ context.Context, a Assignment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[a.RideID]
	if !ok || r.Status != StatusSearching || r.DriverID != nil {
		return false, nil
	}
	d := a.DriverID
	at := a.At
	r.DriverID = &d
	r.Status = StatusConfirmed
	r.StatusVersion++
	r.StartedAt = &at
	if a.DriverLocation != nil {
		p := *a.DriverLocation
		r.DriverLocation = &p
	}
	if a.Price != nil {
		r.Price = *a.Price
	}
	return true, nil
}

func (m *MemoryStore) AppendEvent(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = int64(len(m.events) + 1)
	m.events = append(m.events, *e)
	return nil
}

func (m *MemoryStore) ActiveByPassenger(_ context.Context, passengerID types.ID) (*Ride, error) {
	return m.latestActive(func(r *Ride) bool { return r.PassengerID == passengerID }), nil
}

func (m *MemoryStore) ActiveByDriver(_ context.Context, driverID types.ID) (*Ride, error) {
	return m.latestActive(func(r *Ride) bool { return r.DriverID != nil && *r.DriverID == driverID }), nil
}

func (m *MemoryStore) latestActive(match func(*Ride) bool) *Ride {
	rides := m.filter(func(r *Ride) bool { return !r.Status.Terminal() && match(r) })
	if len(rides) == 0 {
		return nil
	}
	return rides[len(rides)-1]
}

func (m *MemoryStore) filter(keep func(*Ride) bool) []*Ride {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Ride
	for _, r := range m.rides {
		if keep(r) {
			out = append(out, clone(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func clone(r *Ride) *Ride {
	cp := *r
	if r.DriverID != nil {
		d := *r.DriverID
		cp.DriverID = &d
	}
	if r.DriverLocation != nil {
		p := *r.DriverLocation
		cp.DriverLocation = &p
	}
	return &cp
}
