// Package geo provides geodetic value types and distance helpers shared by
// the routing engine and the simulation kernel.
package geo

import (
	"fmt"
	"math"
)

const (
	// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
	EarthRadiusMeters = 6371000.0

	// KmPerDegree is the flat-plane approximation used when clustering
	// destinations in degree space.
	KmPerDegree = 111.0

	// CoordEpsilon is the tolerance (~11 m) for matching a pickup location
	// against a route waypoint.
	CoordEpsilon = 1e-4
)

// Location is a geodetic (lat, lon) pair. It is a value object; identity is
// defined by 6-decimal rounding (~0.1 m).
type Location struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Key returns a canonical identity string with coordinates rounded to
// 6 decimals. Used as a cache key component.
func (l Location) Key() string {
	return fmt.Sprintf("%.6f,%.6f", l.Lat, l.Lon)
}

// ApproxEqual reports whether two locations agree within CoordEpsilon
// on both axes.
func (l Location) ApproxEqual(other Location) bool {
	return math.Abs(l.Lat-other.Lat) < CoordEpsilon &&
		math.Abs(l.Lon-other.Lon) < CoordEpsilon
}

// HaversineMeters computes the great-circle distance between two points
// in meters.
func HaversineMeters(a, b Location) float64 {
	dLat := radians(b.Lat - a.Lat)
	dLon := radians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(a.Lat))*math.Cos(radians(b.Lat))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

// HaversineKm computes the great-circle distance between two points in km.
func HaversineKm(a, b Location) float64 {
	return HaversineMeters(a, b) / 1000.0
}

// DegreeDistance computes the plain Euclidean distance in degree space.
// The destination clusterer compares this against radius_km / KmPerDegree.
func DegreeDistance(a, b Location) float64 {
	dLat := a.Lat - b.Lat
	dLon := a.Lon - b.Lon
	return math.Sqrt(dLat*dLat + dLon*dLon)
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
