// Package geo contains pure geographic computation helpers: great-circle
// distance, initial bearing, destination points and coordinate validation.
package geo

import (
	"fmt"
	"math"
	"slices"

	"fleet/internal/types"
)

const earthRadiusKm = 6371.0

// Distance returns the Haversine great-circle distance in kilometres between
// two points specified in decimal degrees.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	a = math.Min(1, math.Max(0, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// DistancePoints is Distance over two Points.
func DistancePoints(a, b types.Point) float64 {
	return Distance(a.Lat, a.Lng, b.Lat, b.Lng)
}

// Bearing returns the initial bearing in degrees [0,360) along the great
// circle from point 1 to point 2. Identical points yield 0.
func Bearing(lat1, lng1, lat2, lng2 float64) float64 {
	if lat1 == lat2 && lng1 == lng2 {
		return 0
	}
	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)
	dLng := degreesToRadians(lng2 - lng1)

	y := math.Sin(dLng) * math.Cos(rLat2)
	x := math.Cos(rLat1)*math.Sin(rLat2) - math.Sin(rLat1)*math.Cos(rLat2)*math.Cos(dLng)

	return NormalizeHeading(radiansToDegrees(math.Atan2(y, x)))
}

// Destination returns the point reached by travelling km along the great
// circle starting at (lat, lng) with the given initial bearing.
func Destination(lat, lng, bearingDeg, km float64) types.Point {
	brng := degreesToRadians(bearingDeg)
	rLat := degreesToRadians(lat)
	rLng := degreesToRadians(lng)
	angular := km / earthRadiusKm

	lat2 := math.Asin(math.Sin(rLat)*math.Cos(angular) +
		math.Cos(rLat)*math.Sin(angular)*math.Cos(brng))
	lng2 := rLng + math.Atan2(
		math.Sin(brng)*math.Sin(angular)*math.Cos(rLat),
		math.Cos(angular)-math.Sin(rLat)*math.Sin(lat2),
	)

	out := radiansToDegrees(lng2)
	out = math.Mod(out+540, 360) - 180
	return types.Point{Lat: radiansToDegrees(lat2), Lng: out}
}

// ValidateCoordinate rejects latitudes outside [-90,90], longitudes outside
// [-180,180] and NaNs.
func ValidateCoordinate(lat, lng float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %v", types.ErrInvalidCoordinate, lat)
	}
	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		return fmt.Errorf("%w: longitude %v", types.ErrInvalidCoordinate, lng)
	}
	return nil
}

// NormalizeHeading maps any angle in degrees into [0,360).
func NormalizeHeading(deg float64) float64 {
	h := math.Mod(deg, 360)
	if h < 0 {
		h += 360
	}
	if h >= 360 {
		h = 0
	}
	return h
}

// SortByDistance stably sorts any slice where each element exposes a
// distance via the accessor function, closest first.
func SortByDistance[T any](items []T, dist func(T) float64) {
	slices.SortStableFunc(items, func(a, b T) int {
		da, db := dist(a), dist(b)
		switch {
		case da < db:
			return -1
		case da > db:
			return 1
		}
		return 0
	})
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

func radiansToDegrees(rad float64) float64 {
	return rad * 180.0 / math.Pi
}
