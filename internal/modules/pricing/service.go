// README: Pricing service computes the minimum acceptable fare for a trip.
package pricing

import (
	"context"
	"math"
	"strings"
	"sync"

	"go.uber.org/zap"

	"bidride/internal/apperr"
	"bidride/internal/modules/location"
	"bidride/internal/types"
)

type RateSource interface {
	LoadRates(ctx context.Context) ([]Rate, error)
}

type Service struct {
	source      RateSource
	avgSpeedKmH float64
	currency    string
	log         *zap.Logger

	mu    sync.RWMutex
	rates map[string]Rate
}

// NewService seeds the rate table with DefaultRates. source may be nil.
func NewService(source RateSource, avgSpeedKmH float64, currency string, log *zap.Logger) *Service {
	if currency == "" {
		currency = types.DefaultCurrency
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		source:      source,
		avgSpeedKmH: avgSpeedKmH,
		currency:    currency,
		log:         log,
		rates:       make(map[string]Rate, len(DefaultRates)),
	}
	for _, r := range DefaultRates {
		s.rates[r.VehicleType] = r
	}
	return s
}

// Reload merges fare_rates overrides from the source over the defaults.
func (s *Service) Reload(ctx context.Context) error {
	if s.source == nil {
		return nil
	}
	rates, err := s.source.LoadRates(ctx)
	if err != nil {
		return apperr.Store("pricing.reload", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rates {
		key := normalize(r.VehicleType)
		if key == "" || r.PerKm < 0 || r.PerMinute < 0 {
			s.log.Warn("ignoring invalid fare rate", zap.String("vehicle_type", r.VehicleType))
			continue
		}
		r.VehicleType = key
		s.rates[key] = r
	}
	s.log.Info("fare rates loaded", zap.Int("overrides", len(rates)))
	return nil
}

func (s *Service) Rate(vehicleType string) (Rate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rates[normalize(vehicleType)]
	return r, ok
}

// BaseFare is distance fare plus time fare, rounded to the nearest unit.
// Duration is derived from the distance so the fare is non-decreasing in it.
func (s *Service) BaseFare(distanceKm float64, vehicleType string) (types.Money, error) {
	q, err := s.Quote(distanceKm, vehicleType)
	if err != nil {
		return types.Money{}, err
	}
	return types.Money{Amount: q.Total, Currency: q.Currency}, nil
}

func (s *Service) Quote(distanceKm float64, vehicleType string) (Quote, error) {
	if math.IsNaN(distanceKm) || math.IsInf(distanceKm, 0) || distanceKm < 0 {
		return Quote{}, apperr.Validation("pricing.base_fare", "invalid distance")
	}
	if normalize(vehicleType) == "" {
		return Quote{}, apperr.Validation("pricing.base_fare", "missing vehicle type")
	}
	rate, ok := s.Rate(vehicleType)
	if !ok {
		return Quote{}, apperr.Validation("pricing.base_fare", "unknown vehicle type "+vehicleType)
	}
	minutes := location.ETAMinutes(distanceKm, s.avgSpeedKmH)
	q := Quote{
		VehicleType:     rate.VehicleType,
		DistanceKm:      distanceKm,
		DurationMinutes: minutes,
		DistanceFare:    distanceKm * rate.PerKm,
		TimeFare:        float64(minutes) * rate.PerMinute,
		Currency:        s.currency,
	}
	q.Total = int64(math.Round(q.DistanceFare + q.TimeFare))
	if q.Total < rate.MinimumFare {
		q.Total = rate.MinimumFare
	}
	return q, nil
}

// CheckBid rejects a bid below the base fare for the trip.
func (s *Service) CheckBid(bid types.Money, distanceKm float64, vehicleType string) (types.Money, error) {
	base, err := s.BaseFare(distanceKm, vehicleType)
	if err != nil {
		return types.Money{}, err
	}
	if bid.Less(base) {
		return base, apperr.Validation("pricing.check_bid", "bid "+bid.String()+" is below base fare "+base.String())
	}
	return base, nil
}

func normalize(vehicleType string) string {
	return strings.ToLower(strings.TrimSpace(vehicleType))
}
