package geo

import (
	"math"
	"time"
)

// EarthRadius is the mean Earth radius in meters used for all spherical math.
const EarthRadius = 6371000

// Point represents a geographic coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the point is a usable coordinate.
// (0,0) is treated as a sentinel for "no fix" and rejected.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return false
	}
	if p.Lat == 0 && p.Lon == 0 {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Fix is a single raw location reading from a positioning sensor.
// Optional sensor fields are zero when the platform did not report them.
type Fix struct {
	Point
	Timestamp        time.Time `json:"timestamp,omitzero"`
	Accuracy         float64   `json:"accuracy,omitempty"`          // radius in meters
	Speed            float64   `json:"speed,omitempty"`             // m/s
	Altitude         float64   `json:"altitude,omitempty"`          // meters
	AltitudeAccuracy float64   `json:"altitude_accuracy,omitempty"` // meters
	BatteryLevel     float64   `json:"battery_level,omitempty"`     // [0,1]
	IsMoving         bool      `json:"is_moving,omitempty"`
}

// Distance calculates the Haversine distance between two points in meters.
// Identical points short-circuit to exactly 0 to avoid float noise in the
// trig for near-zero deltas.
func Distance(p1, p2 Point) float64 {
	if p1.Lat == p2.Lat && p1.Lon == p2.Lon {
		return 0
	}

	dLat := (p2.Lat - p1.Lat) * (math.Pi / 180.0)
	dLon := (p2.Lon - p1.Lon) * (math.Pi / 180.0)
	lat1 := p1.Lat * (math.Pi / 180.0)
	lat2 := p2.Lat * (math.Pi / 180.0)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1)*math.Cos(lat2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadius * c
}

// PerpendicularDistance calculates the distance in meters from p to the line
// through lineStart and lineEnd using the triangle-area method. When the line
// degenerates to a point it falls back to the distance to that point.
func PerpendicularDistance(p, lineStart, lineEnd Point) float64 {
	if lineStart.Lat == lineEnd.Lat && lineStart.Lon == lineEnd.Lon {
		return Distance(p, lineStart)
	}

	a := Distance(lineStart, lineEnd)
	b := Distance(lineStart, p)
	c := Distance(lineEnd, p)

	// Heron's formula for the triangle area, height = 2*area / base.
	s := (a + b + c) / 2
	area := math.Sqrt(math.Max(0, s*(s-a)*(s-b)*(s-c)))
	return 2 * area / a
}

// Bearing calculates the initial bearing (forward azimuth) from p1 to p2 in degrees.
func Bearing(p1, p2 Point) float64 {
	lat1 := p1.Lat * (math.Pi / 180.0)
	lat2 := p2.Lat * (math.Pi / 180.0)
	dLon := (p2.Lon - p1.Lon) * (math.Pi / 180.0)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) -
		math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	brng := math.Atan2(y, x)

	return math.Mod(brng*(180.0/math.Pi)+360.0, 360.0)
}

// DestinationPoint calculates the destination point from a start point, given distance (in meters) and bearing (in degrees).
func DestinationPoint(start Point, distMeters, bearing float64) Point {
	lat1 := start.Lat * (math.Pi / 180.0)
	lon1 := start.Lon * (math.Pi / 180.0)
	brng := bearing * (math.Pi / 180.0)

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(distMeters/EarthRadius) +
		math.Cos(lat1)*math.Sin(distMeters/EarthRadius)*math.Cos(brng))
	lon2 := lon1 + math.Atan2(math.Sin(brng)*math.Sin(distMeters/EarthRadius)*math.Cos(lat1),
		math.Cos(distMeters/EarthRadius)-math.Sin(lat1)*math.Sin(lat2))

	return Point{
		Lat: lat2 * (180.0 / math.Pi),
		Lon: lon2 * (180.0 / math.Pi),
	}
}
