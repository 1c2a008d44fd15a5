package pricing

import (
	"context"
	"errors"
	"testing"

	"bidride/internal/apperr"
	"bidride/internal/types"
)

type fakeRates struct {
	rates []Rate
	err   error
}

func (f fakeRates) LoadRates(context.Context) ([]Rate, error) { return f.rates, f.err }

func TestService_BaseFare(t *testing.T) {
	s := NewService(nil, 30, "", nil)

	tests := []struct {
		name        string
		distanceKm  float64
		vehicleType string
		want        int64
	}{
		// 5.8 km at 30 km/h -> 12 min; 5.8*35 + 12*2 = 227
		{name: "car city trip", distanceKm: 5.8, vehicleType: "car", want: 227},
		// 5.8*15 + 12*1 = 99
		{name: "bike city trip", distanceKm: 5.8, vehicleType: "bike", want: 99},
		// 5.8*25 + 12*1.5 = 163
		{name: "auto city trip", distanceKm: 5.8, vehicleType: "auto", want: 163},
		{name: "zero distance", distanceKm: 0, vehicleType: "car", want: 0},
		{name: "case insensitive", distanceKm: 1, vehicleType: " Car ", want: 39},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.BaseFare(tt.distanceKm, tt.vehicleType)
			if err != nil {
				t.Fatalf("BaseFare() error = %v", err)
			}
			if got.Amount != tt.want {
				t.Errorf("BaseFare() = %d, want %d", got.Amount, tt.want)
			}
			if got.Currency != types.DefaultCurrency {
				t.Errorf("currency = %q", got.Currency)
			}
		})
	}
}

func TestService_BaseFareInvalidInput(t *testing.T) {
	s := NewService(nil, 30, "RS", nil)
	for _, tc := range []struct {
		distance float64
		vehicle  string
	}{
		{-1, "car"},
		{3, ""},
		{3, "helicopter"},
	} {
		if _, err := s.BaseFare(tc.distance, tc.vehicle); !apperr.IsValidation(err) {
			t.Errorf("BaseFare(%v, %q) err = %v, want validation", tc.distance, tc.vehicle, err)
		}
	}
}

func TestService_BaseFareMonotonic(t *testing.T) {
	s := NewService(nil, 30, "RS", nil)
	for _, r := range DefaultRates {
		prev := int64(-1)
		for d := 0.0; d <= 40; d += 0.05 {
			got, err := s.BaseFare(d, r.VehicleType)
			if err != nil {
				t.Fatalf("BaseFare(%v, %s): %v", d, r.VehicleType, err)
			}
			if got.Amount < prev {
				t.Fatalf("%s fare decreased at %.2f km: %d < %d", r.VehicleType, d, got.Amount, prev)
			}
			prev = got.Amount
		}
	}
}

func TestService_CheckBid(t *testing.T) {
	s := NewService(nil, 30, "RS", nil)

	base, err := s.CheckBid(types.RS(250), 5.8, "car")
	if err != nil {
		t.Fatalf("bid 250: %v", err)
	}
	if base.Amount != 227 {
		t.Fatalf("base = %d, want 227", base.Amount)
	}
	if _, err := s.CheckBid(types.RS(200), 5.8, "car"); !apperr.IsValidation(err) {
		t.Fatalf("bid 200: expected validation error, got %v", err)
	}
	if _, err := s.CheckBid(types.RS(227), 5.8, "car"); err != nil {
		t.Fatalf("bid equal to base fare must be accepted: %v", err)
	}
}

func TestService_ReloadOverrides(t *testing.T) {
	src := fakeRates{rates: []Rate{
		{VehicleType: "CAR", PerKm: 40, PerMinute: 2, MinimumFare: 150},
		{VehicleType: "rickshaw", PerKm: 20, PerMinute: 1},
		{VehicleType: "broken", PerKm: -1},
	}}
	s := NewService(src, 30, "RS", nil)
	if err := s.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	got, err := s.BaseFare(1, "car")
	if err != nil {
		t.Fatal(err)
	}
	if got.Amount != 150 {
		t.Errorf("minimum fare not applied: %d", got.Amount)
	}
	if _, ok := s.Rate("rickshaw"); !ok {
		t.Error("expected new vehicle type from overrides")
	}
	if _, ok := s.Rate("broken"); ok {
		t.Error("negative rate must be ignored")
	}
	if _, ok := s.Rate("bike"); !ok {
		t.Error("defaults must survive a reload")
	}
}

func TestService_ReloadError(t *testing.T) {
	s := NewService(fakeRates{err: errors.New("db down")}, 30, "RS", nil)
	if err := s.Reload(context.Background()); !apperr.IsStore(err) {
		t.Fatalf("expected store error, got %v", err)
	}
}
