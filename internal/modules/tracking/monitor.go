package tracking

import (
	"context"
	"log"
	"time"

	"fleet/internal/modules/asset"
)

// RunStatusMonitor periodically marks silent assets offline and stationary
// ones idle until ctx is cancelled.
func (c *Coordinator) RunStatusMonitor(ctx context.Context) {
	ticker := time.NewTicker(c.opts.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := c.SweepStatuses(ctx); err != nil {
				log.Printf("status monitor: %v", err)
			} else if n > 0 {
				log.Printf("status monitor: updated %d assets", n)
			}
		}
	}
}

// SweepStatuses runs one monitor pass and returns how many assets changed.
// Assets in maintenance are never touched.
func (c *Coordinator) SweepStatuses(ctx context.Context) (int, error) {
	assets, err := c.assets.List(ctx, asset.ListFilter{})
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, a := range assets {
		if a.Status == asset.StatusMaintenance || a.Status == asset.StatusOffline {
			continue
		}
		next, err := c.nextStatus(ctx, a)
		if err != nil {
			log.Printf("status monitor: %s: %v", a.ID, err)
			continue
		}
		if next == a.Status {
			continue
		}
		if ok, err := c.transition(ctx, a, next); err != nil {
			log.Printf("status monitor: %s: %v", a.ID, err)
		} else if ok {
			log.Printf("status monitor: asset=%s %s -> %s", a.ID, a.Status, next)
			changed++
		}
	}
	return changed, nil
}

func (c *Coordinator) nextStatus(ctx context.Context, a asset.Asset) (asset.Status, error) {
	if c.now().Sub(a.LastSeen) > c.opts.OfflineAfter {
		return asset.StatusOffline, nil
	}
	if a.Status != asset.StatusActive {
		return a.Status, nil
	}
	report, err := c.analytics.DetectIdle(ctx, a.ID, c.opts.IdleWindow.Minutes())
	if err != nil {
		return a.Status, err
	}
	if report.IsIdle {
		return asset.StatusIdle, nil
	}
	return a.Status, nil
}

// transition applies next unless a fix arrived since the sweep listed the
// asset.
func (c *Coordinator) transition(ctx context.Context, seen asset.Asset, next asset.Status) (bool, error) {
	unlock := c.locks.Lock(seen.ID)
	defer unlock()

	cur, err := c.assets.Get(ctx, seen.ID)
	if err != nil {
		return false, err
	}
	if !cur.LastSeen.Equal(seen.LastSeen) || cur.Status != seen.Status {
		return false, nil
	}
	cur.Status = next
	if _, err := c.assets.Upsert(ctx, cur); err != nil {
		return false, err
	}
	return true, nil
}
