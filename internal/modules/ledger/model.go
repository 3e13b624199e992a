// README: Location points recorded in the append-only per-asset ledger.
package ledger

import (
	"context"
	"fmt"
	"math"
	"time"

	"fleet/internal/geo"
	"fleet/internal/types"
)

type Source string

const (
	SourceGPS    Source = "gps"
	SourceCell   Source = "cell"
	SourceWiFi   Source = "wifi"
	SourceManual Source = "manual"
)

// Point is one immutable fix. Timestamps are UTC and non-decreasing per asset.
type Point struct {
	AssetID    types.ID
	Lat        float64
	Lng        float64
	Timestamp  time.Time
	SpeedKmh   float64
	HeadingDeg float64
	AccuracyM  float64
	Source     Source
}

func (p Point) Position() types.Point {
	return types.Point{Lat: p.Lat, Lng: p.Lng}
}

// Repository stores points; it does not check asset existence.
type Repository interface {
	Append(ctx context.Context, p Point) error
	Latest(ctx context.Context, assetID types.ID) (*Point, error)
	// Range returns points with since <= ts (and ts <= until when until is
	// non-zero), ascending by timestamp.
	Range(ctx context.Context, assetID types.ID, since, until time.Time) ([]Point, error)
}

func ValidSource(s Source) bool {
	switch s {
	case SourceGPS, SourceCell, SourceWiFi, SourceManual:
		return true
	}
	return false
}

// Validate checks a point before it is written.
func Validate(p Point) error {
	if err := geo.ValidateCoordinate(p.Lat, p.Lng); err != nil {
		return err
	}
	if p.AssetID == "" {
		return fmt.Errorf("%w: missing asset id", types.ErrInvalidFix)
	}
	if p.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", types.ErrInvalidFix)
	}
	if math.IsNaN(p.SpeedKmh) || p.SpeedKmh < 0 {
		return fmt.Errorf("%w: speed %v", types.ErrInvalidFix, p.SpeedKmh)
	}
	if math.IsNaN(p.AccuracyM) || p.AccuracyM < 0 {
		return fmt.Errorf("%w: accuracy %v", types.ErrInvalidFix, p.AccuracyM)
	}
	if math.IsNaN(p.HeadingDeg) || p.HeadingDeg < 0 || p.HeadingDeg >= 360 {
		return fmt.Errorf("%w: heading %v", types.ErrInvalidFix, p.HeadingDeg)
	}
	if !ValidSource(p.Source) {
		return fmt.Errorf("%w: source %q", types.ErrInvalidFix, p.Source)
	}
	return nil
}

// PathLength sums the Haversine distance between consecutive points.
func PathLength(points []Point) float64 {
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += geo.Distance(points[i-1].Lat, points[i-1].Lng, points[i].Lat, points[i].Lng)
	}
	return total
}
