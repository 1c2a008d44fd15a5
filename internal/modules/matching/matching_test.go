// README: Matching engine tests covering radius filtering, ordering and skipped rows.
package matching

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"bidride/internal/apperr"
	"bidride/internal/modules/driver"
	"bidride/internal/modules/location"
	"bidride/internal/modules/ride"
	"bidride/internal/types"
)

var (
	baseTime = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	driverA  = types.Point{Lat: 31.53, Lng: 74.36}
)

func searching(id string, pickup string, vehicle string, age time.Duration) *ride.Ride {
	return &ride.Ride{
		ID:            types.ID(id),
		PassengerID:   types.ID("p-" + id),
		Pickup:        []byte(pickup),
		VehicleOption: ride.VehicleOption{Type: vehicle},
		Status:        ride.StatusSearching,
		CreatedAt:     baseTime.Add(-age),
	}
}

func at(p types.Point) string {
	return fmt.Sprintf(`{"name":"x","coordinates":[%f,%f]}`, p.Lng, p.Lat)
}

type fakeLister struct {
	rides []*ride.Ride
	err   error
}

func (f fakeLister) ListSearching(context.Context) ([]*ride.Ride, error) { return f.rides, f.err }

func (f fakeLister) ListNearby(_ context.Context, c types.Point, radius float64) ([]*ride.Ride, error) {
	return f.rides, f.err
}

func (f fakeLister) Get(_ context.Context, id types.ID) (*ride.Ride, error) {
	for _, r := range f.rides {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, apperr.NotFound("ride.get", "ride")
}

func TestRankRadiusAndOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var rides []*ride.Ride
	for i := 0; i < 300; i++ {
		p := types.Point{Lat: driverA.Lat + (rng.Float64()-0.5)*0.3, Lng: driverA.Lng + (rng.Float64()-0.5)*0.3}
		rides = append(rides, searching(fmt.Sprintf("r%03d", i), at(p), "car", time.Duration(rng.Intn(600))*time.Second))
	}
	for _, radius := range []float64{1, 5, 8, 10} {
		got := Rank(rides, Query{DriverPosition: driverA, VehicleType: "car", MaxDistanceKm: radius}, nil)
		for i, r := range got {
			if r.DistanceToPickupKm > radius {
				t.Fatalf("radius %.0f: ride %s at %.3f km", radius, r.ID, r.DistanceToPickupKm)
			}
			if i > 0 && got[i-1].DistanceToPickupKm > r.DistanceToPickupKm {
				t.Fatalf("radius %.0f: not sorted at %d", radius, i)
			}
		}
		// every ride inside the radius is kept
		want := 0
		for _, r := range rides {
			p, _ := r.PickupPoint()
			if location.DistanceKm(driverA, p) <= radius {
				want++
			}
		}
		if len(got) != want {
			t.Fatalf("radius %.0f: got %d rides, want %d", radius, len(got), want)
		}
	}
}

func TestRankTieBreaksByAge(t *testing.T) {
	p := at(types.Point{Lat: 31.54, Lng: 74.37})
	rides := []*ride.Ride{
		searching("young", p, "car", time.Minute),
		searching("old", p, "car", time.Hour),
		searching("middle", p, "car", 10*time.Minute),
	}
	got := Rank(rides, Query{DriverPosition: driverA, VehicleType: "car", MaxDistanceKm: 10}, nil)
	order := []types.ID{"old", "middle", "young"}
	for i, id := range order {
		if got[i].ID != id {
			t.Fatalf("position %d = %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestRankSkipsUndecodableAndMismatched(t *testing.T) {
	near := types.Point{Lat: 31.52, Lng: 74.35}
	rides := []*ride.Ride{
		searching("string-json", `"{\"coordinates\":[74.3,31.5]}"`, "car", 0),
		searching("empty-object", `{}`, "car", 0),
		searching("garbage", `not json`, "car", 0),
		searching("bike-only", at(near), "bike", 0),
		searching("untagged", at(near), "", 0),
		searching("upper", at(near), "CAR", 0),
	}
	assigned := searching("taken", at(near), "car", 0)
	assigned.Status = ride.StatusConfirmed
	d := types.ID("d9")
	assigned.DriverID = &d
	rides = append(rides, assigned)

	got := Rank(rides, Query{DriverPosition: driverA, VehicleType: "car", MaxDistanceKm: 10}, nil)
	ids := map[types.ID]bool{}
	for _, r := range got {
		ids[r.ID] = true
	}
	for _, want := range []types.ID{"string-json", "untagged", "upper"} {
		if !ids[want] {
			t.Errorf("expected %s in results", want)
		}
	}
	for _, not := range []types.ID{"empty-object", "garbage", "bike-only", "taken"} {
		if ids[not] {
			t.Errorf("did not expect %s in results", not)
		}
	}
}

func TestEngineUsesDefaultRadius(t *testing.T) {
	far := searching("far", at(types.Point{Lat: 31.62, Lng: 74.36}), "car", 0) // ~10 km north
	near := searching("near", at(types.Point{Lat: 31.54, Lng: 74.36}), "car", 0)
	e := NewEngine(ScanSource{Rides: fakeLister{rides: []*ride.Ride{far, near}}}, 8, nil)

	got, err := e.FindNearbyRides(context.Background(), Query{DriverPosition: driverA, VehicleType: "car"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "near" {
		t.Fatalf("got %+v", got)
	}
}

type gate map[types.ID]driver.Eligibility

func (g gate) IsEligible(_ context.Context, id types.ID) (driver.Eligibility, error) {
	if e, ok := g[id]; ok {
		return e, nil
	}
	return driver.Eligibility{Reason: driver.ReasonNotRegistered}, nil
}

type positions map[types.ID]types.Point

func (p positions) Last(_ context.Context, id types.ID) (types.Point, bool, error) {
	pt, ok := p[id]
	return pt, ok, nil
}

func TestNearbyForDriver(t *testing.T) {
	rides := []*ride.Ride{
		searching("car-ride", at(types.Point{Lat: 31.531, Lng: 74.361}), "car", 0),
		searching("bike-ride", at(types.Point{Lat: 31.531, Lng: 74.361}), "bike", 0),
	}
	e := NewEngine(RPCSource{Rides: fakeLister{rides: rides}}, 8, nil)
	g := gate{
		"d1":      {Eligible: true, VehicleType: "car"},
		"pending": {Reason: driver.ReasonPendingApproval},
	}
	svc := NewService(e, g, positions{"d1": driverA})
	ctx := context.Background()

	got, err := svc.NearbyForDriver(ctx, "d1", nil, 5)
	if err != nil {
		t.Fatalf("tracked position: %v", err)
	}
	if len(got) != 1 || got[0].ID != "car-ride" {
		t.Fatalf("expected only the car ride, got %+v", got)
	}

	if _, err := svc.NearbyForDriver(ctx, "pending", &driverA, 5); !apperr.IsRejected(err) || apperr.ReasonOf(err) != driver.ReasonPendingApproval {
		t.Fatalf("ineligible driver: got %v", err)
	}

	svc2 := NewService(e, gate{"d2": {Eligible: true, VehicleType: "car"}}, positions{})
	if _, err := svc2.NearbyForDriver(ctx, "d2", nil, 5); !apperr.IsValidation(err) {
		t.Fatalf("unknown position: got %v", err)
	}
}
