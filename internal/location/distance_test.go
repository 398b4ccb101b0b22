package location

import (
	"math"
	"testing"
)

func TestDistance_SamePointIsZero(t *testing.T) {
	points := []Point{
		{Latitude: 0, Longitude: 0},
		{Latitude: 51.5074, Longitude: -0.1278},
		{Latitude: -33.8688, Longitude: 151.2093},
		{Latitude: 89.9, Longitude: 179.9},
	}
	for _, p := range points {
		if d := Distance(p, p); d != 0 {
			t.Errorf("Distance(%v, %v) = %f, want 0", p, p, d)
		}
	}
}

func TestDistance_Symmetric(t *testing.T) {
	pairs := [][2]Point{
		{{51.5074, -0.1278}, {48.8566, 2.3522}},
		{{40.7128, -74.0060}, {34.0522, -118.2437}},
		{{-33.8688, 151.2093}, {35.6762, 139.6503}},
	}
	for _, pair := range pairs {
		ab := Distance(pair[0], pair[1])
		ba := Distance(pair[1], pair[0])
		if math.Abs(ab-ba) > 1e-6 {
			t.Errorf("asymmetric distance: %f vs %f", ab, ba)
		}
	}
}

func TestDistance_LondonParis(t *testing.T) {
	d := DistanceBetween(51.5074, -0.1278, 48.8566, 2.3522)
	want := 343000.0
	if math.Abs(d-want) > want*0.05 {
		t.Errorf("London-Paris distance = %f, want %f ±5%%", d, want)
	}
}

func TestDistance_QuarterMeridian(t *testing.T) {
	d := DistanceBetween(0, 0, 90, 0)
	want := math.Pi / 2 * EarthRadius
	if math.Abs(d-want) > 1e-3 {
		t.Errorf("equator-pole distance = %f, want %f", d, want)
	}
}
