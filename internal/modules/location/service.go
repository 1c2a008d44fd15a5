// README: Location service keeps each driver's last reported position.
package location

import (
	"context"
	"sync"
	"time"

	"bidride/internal/apperr"
	"bidride/internal/types"
)

// Position is a driver's reported location at a point in time.
type Position struct {
	DriverID   types.ID
	Point      types.Point
	Status     string
	RecordedAt time.Time
}

type Tracker interface {
	Save(ctx context.Context, pos Position) error
	Load(ctx context.Context, driverID types.ID) (Position, bool, error)
}

type Service struct {
	tracker Tracker
	maxAge  time.Duration
	now     func() time.Time
}

// NewService returns a service that treats positions older than maxAge as
// unknown. A zero maxAge disables the staleness check.
func NewService(tracker Tracker, maxAge time.Duration) *Service {
	return &Service{tracker: tracker, maxAge: maxAge, now: time.Now}
}

type Update struct {
	DriverID types.ID
	Point    types.Point
	Status   string
}

func (s *Service) Update(ctx context.Context, u Update) error {
	if u.DriverID == "" {
		return apperr.Validation("location.update", "missing driver id")
	}
	if !u.Point.Valid() {
		return apperr.Validation("location.update", "coordinates out of range")
	}
	if u.Status == "" {
		u.Status = "online"
	}
	err := s.tracker.Save(ctx, Position{
		DriverID:   u.DriverID,
		Point:      u.Point,
		Status:     u.Status,
		RecordedAt: s.now(),
	})
	return apperr.Store("location.update", err)
}

// Last returns the driver's most recent fresh position.
func (s *Service) Last(ctx context.Context, driverID types.ID) (types.Point, bool, error) {
	pos, ok, err := s.tracker.Load(ctx, driverID)
	if err != nil {
		return types.Point{}, false, apperr.Store("location.last", err)
	}
	if !ok {
		return types.Point{}, false, nil
	}
	if s.maxAge > 0 && s.now().Sub(pos.RecordedAt) > s.maxAge {
		return types.Point{}, false, nil
	}
	return pos.Point, true, nil
}

// MemoryTracker keeps positions in process memory; used when no RTDB is configured.
type MemoryTracker struct {
	mu        sync.RWMutex
	positions map[types.ID]Position
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{positions: make(map[types.ID]Position)}
}

func (m *MemoryTracker) Save(_ context.Context, pos Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[pos.DriverID] = pos
	return nil
}

func (m *MemoryTracker) Load(_ context.Context, driverID types.ID) (Position, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, ok := m.positions[driverID]
	return pos, ok, nil
}
