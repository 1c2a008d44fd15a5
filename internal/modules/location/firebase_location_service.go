// Package location provides the location codec, distance helpers and the
// Firebase RTDB-backed tracker of each driver's last reported position.
package location

import (
	"context"
	"fmt"
	"time"

	"firebase.google.com/go/v4/db"

	"bidride/internal/types"
)

const driverLocationsRef = "driver_locations"

// rtdbDriverEntry mirrors a single driver entry stored in Firebase RTDB
// under the /driver_locations node.
type rtdbDriverEntry struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Status    string  `json:"status"`
	Timestamp int64   `json:"timestamp"`
}

// FirebaseTracker stores driver positions in Firebase RTDB so the driver app
// and the matching queries read the same source.
type FirebaseTracker struct {
	dbClient *db.Client
}

func NewFirebaseTracker(dbClient *db.Client) *FirebaseTracker {
	return &FirebaseTracker{dbClient: dbClient}
}

func (t *FirebaseTracker) Save(ctx context.Context, pos Position) error {
	ref := t.dbClient.NewRef(driverLocationsRef).Child(string(pos.DriverID))
	entry := rtdbDriverEntry{
		Lat:       pos.Point.Lat,
		Lng:       pos.Point.Lng,
		Status:    pos.Status,
		Timestamp: pos.RecordedAt.UnixMilli(),
	}
	if err := ref.Set(ctx, entry); err != nil {
		return fmt.Errorf("writing driver location %s: %w", pos.DriverID, err)
	}
	return nil
}

func (t *FirebaseTracker) Load(ctx context.Context, driverID types.ID) (Position, bool, error) {
	ref := t.dbClient.NewRef(driverLocationsRef).Child(string(driverID))
	var entry *rtdbDriverEntry
	if err := ref.Get(ctx, &entry); err != nil {
		return Position{}, false, fmt.Errorf("reading driver location %s: %w", driverID, err)
	}
	if entry == nil {
		return Position{}, false, nil
	}
	return Position{
		DriverID:   driverID,
		Point:      types.Point{Lat: entry.Lat, Lng: entry.Lng},
		Status:     entry.Status,
		RecordedAt: time.UnixMilli(entry.Timestamp),
	}, true, nil
}
