// README: Road distance and duration estimates from the Google Maps Directions API.
package maps

import (
	"context"
	"errors"
	"fmt"
	"math"

	"googlemaps.github.io/maps"

	"bidride/internal/types"
)

var ErrNoRoute = errors.New("no route found")

// RouteService handles interactions with Google Maps API.
type RouteService struct {
	client *maps.Client
	region string
}

// NewRouteService creates a new RouteService with the given API Key. region
// biases geocoding, e.g. "pk".
func NewRouteService(apiKey, region string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client, region: region}, nil
}

// Estimate returns the driving distance in km and duration in whole minutes,
// rounded up, of the first route leg.
func (s *RouteService) Estimate(ctx context.Context, from, to types.Point) (float64, int, error) {
	r := &maps.DirectionsRequest{
		Origin:      LatLng(from),
		Destination: LatLng(to),
		Mode:        maps.TravelModeDriving,
		Region:      s.region,
	}
	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return 0, 0, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return 0, 0, ErrNoRoute
	}
	leg := routes[0].Legs[0]
	return float64(leg.Distance.Meters) / 1000, int(math.Ceil(leg.Duration.Minutes())), nil
}

// LatLng formats p the way the Directions API accepts coordinates.
func LatLng(p types.Point) string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}
