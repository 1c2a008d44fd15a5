// README: Pricing rate definition for each vehicle type.
package pricing

// Rate is the per-kilometre and per-minute tariff of one vehicle type.
type Rate struct {
	VehicleType string
	PerKm       float64
	PerMinute   float64
	MinimumFare int64
}

// DefaultRates is used for any vehicle type without a fare_rates override.
var DefaultRates = []Rate{
	{VehicleType: "bike", PerKm: 15, PerMinute: 1},
	{VehicleType: "auto", PerKm: 25, PerMinute: 1.5},
	{VehicleType: "car", PerKm: 35, PerMinute: 2},
}

// Quote is the breakdown behind a base fare.
type Quote struct {
	VehicleType     string  `json:"vehicle_type"`
	DistanceKm      float64 `json:"distance_km"`
	DurationMinutes int     `json:"duration_minutes"`
	DistanceFare    float64 `json:"distance_fare"`
	TimeFare        float64 `json:"time_fare"`
	Total           int64   `json:"total"`
	Currency        string  `json:"currency"`
}
