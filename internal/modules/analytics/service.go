// README: Analytics service: idle detection, trip distance and fleet status.
package analytics

import (
	"context"
	"fmt"
	"time"

	"fleet/internal/geo"
	"fleet/internal/modules/asset"
	"fleet/internal/types"
)

type Service struct {
	history        History
	assets         AssetLister
	idleMovementKm float64
	now            func() time.Time
}

// NewService returns an analytics service. idleMovementKm <= 0 selects
// DefaultIdleMovementKm.
func NewService(history History, assets AssetLister, idleMovementKm float64) *Service {
	if idleMovementKm <= 0 {
		idleMovementKm = DefaultIdleMovementKm
	}
	return &Service{
		history:        history,
		assets:         assets,
		idleMovementKm: idleMovementKm,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) IdleMovementKm() float64 {
	return s.idleMovementKm
}

// DetectIdle reports whether the asset stayed within the idle movement
// threshold over the last thresholdMinutes. With no points in the window the
// asset is reported as not idle.
func (s *Service) DetectIdle(ctx context.Context, assetID types.ID, thresholdMinutes float64) (IdleReport, error) {
	if thresholdMinutes <= 0 {
		return IdleReport{}, fmt.Errorf("%w: threshold must be positive", types.ErrBadRequest)
	}
	end := s.now()
	start := end.Add(-time.Duration(thresholdMinutes * float64(time.Minute)))

	points, err := s.history.Window(ctx, assetID, start, end)
	if err != nil {
		return IdleReport{}, err
	}

	report := IdleReport{
		AssetID:     assetID,
		WindowStart: start,
		WindowEnd:   end,
		ThresholdKm: s.idleMovementKm,
		Points:      len(points),
	}
	if len(points) == 0 {
		report.Reason = ReasonInsufficientData
		return report, nil
	}

	maxKm := 0.0
	for i := 0; i < len(points); i++ {
		for j := i + 1; j < len(points); j++ {
			d := geo.Distance(points[i].Lat, points[i].Lng, points[j].Lat, points[j].Lng)
			if d > maxKm {
				maxKm = d
			}
		}
	}
	report.MaxDisplacementKm = maxKm
	report.IsIdle = maxKm < s.idleMovementKm
	if report.IsIdle {
		report.Reason = ReasonStationary
	} else {
		report.Reason = ReasonMoving
	}
	return report, nil
}

// TripDistance sums the path length over the last hours.
func (s *Service) TripDistance(ctx context.Context, assetID types.ID, hours float64) (float64, error) {
	if hours < 0 {
		return 0, fmt.Errorf("%w: hours must be non-negative", types.ErrBadRequest)
	}
	since := s.now().Add(-time.Duration(hours * float64(time.Hour)))
	return s.history.TripDistance(ctx, assetID, since)
}

func (s *Service) FleetStatus(ctx context.Context) (FleetStatus, error) {
	assets, err := s.assets.List(ctx, asset.ListFilter{})
	if err != nil {
		return FleetStatus{}, err
	}
	out := FleetStatus{
		Total:    len(assets),
		ByStatus: make(map[asset.Status]int),
		Assets:   make([]AssetSummary, 0, len(assets)),
	}
	for _, a := range assets {
		out.ByStatus[a.Status]++
		out.Assets = append(out.Assets, AssetSummary{
			ID:       a.ID,
			Name:     a.Name,
			Type:     a.Type,
			Status:   a.Status,
			LastSeen: a.LastSeen,
			Location: a.Location,
		})
	}
	return out, nil
}
