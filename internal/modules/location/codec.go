// README: Location codec; normalizes the loosely-typed stored location shapes.
package location

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"bidride/internal/types"
)

// Location is the canonical persisted shape: coordinates are [lng, lat].
type Location struct {
	Name        string     `json:"name"`
	Coordinates [2]float64 `json:"coordinates"`
}

func New(name string, p types.Point) Location {
	return Location{Name: name, Coordinates: [2]float64{p.Lng, p.Lat}}
}

func (l Location) Point() types.Point {
	return types.Point{Lng: l.Coordinates[0], Lat: l.Coordinates[1]}
}

// maxStringDepth bounds how many times a JSON-encoded string is unwrapped.
const maxStringDepth = 2

// ExtractCoordinates decodes raw into a point. raw may be a JSON string, raw
// JSON bytes, a decoded object or a bare [lng, lat] array. Object shapes are
// tried in order: coordinates array, lng/lat, longitude/latitude, x/y. The
// second result is false when no shape matches; it never panics.
func ExtractCoordinates(raw any) (types.Point, bool) {
	return extractCoordinates(raw, 0)
}

func extractCoordinates(raw any, depth int) (types.Point, bool) {
	switch v := raw.(type) {
	case nil:
		return types.Point{}, false
	case Location:
		return checked(v.Coordinates[0], v.Coordinates[1])
	case *Location:
		if v == nil {
			return types.Point{}, false
		}
		return checked(v.Coordinates[0], v.Coordinates[1])
	case string:
		decoded, ok := decodeString(v, depth)
		if !ok {
			return types.Point{}, false
		}
		return extractCoordinates(decoded, depth+1)
	case []byte:
		return extractCoordinates(string(v), depth)
	case json.RawMessage:
		return extractCoordinates(string(v), depth)
	case map[string]any:
		return fromObject(v)
	case []any:
		return fromPair(v)
	default:
		return types.Point{}, false
	}
}

// ExtractName returns the location's display name, or def when none is present.
// A plain string that is not JSON is taken as the name itself.
func ExtractName(raw any, def string) string {
	return extractName(raw, def, 0)
}

func extractName(raw any, def string, depth int) string {
	switch v := raw.(type) {
	case Location:
		return nonEmpty(v.Name, def)
	case *Location:
		if v == nil {
			return def
		}
		return nonEmpty(v.Name, def)
	case string:
		decoded, ok := decodeString(v, depth)
		if !ok {
			return nonEmpty(strings.TrimSpace(v), def)
		}
		if s, isString := decoded.(string); isString {
			return nonEmpty(strings.TrimSpace(s), def)
		}
		return extractName(decoded, def, depth+1)
	case []byte:
		return extractName(string(v), def, depth)
	case json.RawMessage:
		return extractName(string(v), def, depth)
	case map[string]any:
		for _, key := range []string{"name", "address", "display_name"} {
			if s, ok := v[key].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return def
}

func decodeString(s string, depth int) (any, bool) {
	if depth >= maxStringDepth {
		return nil, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	var decoded any
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		return nil, false
	}
	return decoded, true
}

func fromObject(m map[string]any) (types.Point, bool) {
	if arr, ok := m["coordinates"].([]any); ok {
		if p, ok := fromPair(arr); ok {
			return p, true
		}
	}
	shapes := [][2]string{
		{"lng", "lat"},
		{"longitude", "latitude"},
		{"x", "y"},
	}
	for _, keys := range shapes {
		lng, okLng := number(m[keys[0]])
		lat, okLat := number(m[keys[1]])
		if okLng && okLat {
			if p, ok := checked(lng, lat); ok {
				return p, true
			}
		}
	}
	return types.Point{}, false
}

func fromPair(arr []any) (types.Point, bool) {
	if len(arr) < 2 {
		return types.Point{}, false
	}
	lng, okLng := number(arr[0])
	lat, okLat := number(arr[1])
	if !okLng || !okLat {
		return types.Point{}, false
	}
	return checked(lng, lat)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func checked(lng, lat float64) (types.Point, bool) {
	if math.IsNaN(lng) || math.IsNaN(lat) || math.IsInf(lng, 0) || math.IsInf(lat, 0) {
		return types.Point{}, false
	}
	p := types.Point{Lat: lat, Lng: lng}
	if !p.Valid() {
		return types.Point{}, false
	}
	return p, true
}

func nonEmpty(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
