package location

import (
	"encoding/json"
	"testing"

	"bidride/internal/types"
)

func TestExtractCoordinates_Shapes(t *testing.T) {
	want := types.Point{Lat: 31.5, Lng: 74.3}
	cases := []struct {
		name string
		raw  any
	}{
		{"json string with coordinates", `{"coordinates":[74.3,31.5]}`},
		{"raw bytes", []byte(`{"lng":74.3,"lat":31.5}`)},
		{"raw message", json.RawMessage(`{"longitude":74.3,"latitude":31.5}`)},
		{"coordinates object", map[string]any{"coordinates": []any{74.3, 31.5}}},
		{"lng/lat object", map[string]any{"lng": 74.3, "lat": 31.5}},
		{"longitude/latitude object", map[string]any{"longitude": 74.3, "latitude": 31.5}},
		{"x/y object", map[string]any{"x": 74.3, "y": 31.5}},
		{"numeric strings", map[string]any{"lng": "74.3", "lat": " 31.5 "}},
		{"bare array", []any{74.3, 31.5}},
		{"double encoded string", `"{\"coordinates\":[74.3,31.5]}"`},
		{"canonical value", New("Gulberg", want)},
		{"geojson point", `{"type":"Point","coordinates":[74.3,31.5]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractCoordinates(tc.raw)
			if !ok {
				t.Fatalf("expected coordinates for %v", tc.raw)
			}
			if got != want {
				t.Fatalf("got %+v, want %+v", got, want)
			}
		})
	}
}

func TestExtractCoordinates_Priority(t *testing.T) {
	// The coordinates array wins over every other shape.
	raw := map[string]any{
		"coordinates": []any{1.0, 2.0},
		"lng":         3.0, "lat": 4.0,
		"longitude": 5.0, "latitude": 6.0,
	}
	got, ok := ExtractCoordinates(raw)
	if !ok || got != (types.Point{Lng: 1, Lat: 2}) {
		t.Fatalf("got %+v ok=%v", got, ok)
	}
	// A broken coordinates array falls through to lng/lat.
	raw["coordinates"] = []any{"east", "north"}
	got, ok = ExtractCoordinates(raw)
	if !ok || got != (types.Point{Lng: 3, Lat: 4}) {
		t.Fatalf("fallthrough got %+v ok=%v", got, ok)
	}
	// lng/lat beats longitude/latitude and x/y.
	got, _ = ExtractCoordinates(map[string]any{"x": 9.0, "y": 9.0, "longitude": 5.0, "latitude": 6.0})
	if got != (types.Point{Lng: 5, Lat: 6}) {
		t.Fatalf("longitude/latitude should beat x/y, got %+v", got)
	}
}

func TestExtractCoordinates_Malformed(t *testing.T) {
	cases := []struct {
		name string
		raw  any
	}{
		{"nil", nil},
		{"empty string", ""},
		{"whitespace", "   "},
		{"unparseable json", `{"coordinates":[74.3,`},
		{"plain text", "Liberty Market"},
		{"empty object", map[string]any{}},
		{"empty object string", "{}"},
		{"only lat", map[string]any{"lat": 31.5}},
		{"short array", []any{74.3}},
		{"non numeric", map[string]any{"lng": true, "lat": false}},
		{"out of range", map[string]any{"lng": 200.0, "lat": 31.5}},
		{"number", 42},
		{"triple encoded", `"\"{\\\"lng\\\":1,\\\"lat\\\":2}\""`},
		{"nil location", (*Location)(nil)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if p, ok := ExtractCoordinates(tc.raw); ok {
				t.Fatalf("expected no coordinates, got %+v", p)
			}
		})
	}
}

func TestExtractName(t *testing.T) {
	cases := []struct {
		name string
		raw  any
		want string
	}{
		{"object name", map[string]any{"name": "Liberty Market"}, "Liberty Market"},
		{"address fallback", map[string]any{"address": "MM Alam Rd"}, "MM Alam Rd"},
		{"json string", `{"name":"Packages Mall","coordinates":[74.3,31.5]}`, "Packages Mall"},
		{"plain string", "  Model Town ", "Model Town"},
		{"missing", map[string]any{"lat": 1.0}, "Unknown"},
		{"empty", "", "Unknown"},
		{"canonical", New("DHA", types.Point{}), "DHA"},
		{"nil", nil, "Unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractName(tc.raw, "Unknown"); got != tc.want {
				t.Fatalf("ExtractName = %q, want %q", got, tc.want)
			}
		})
	}
}
