// README: Fix messages received from device brokers (MQTT, NATS).
package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"fleet/internal/modules/ledger"
	"fleet/internal/modules/tracking"
	"fleet/internal/types"
)

type fixMessage struct {
	AssetID    string   `json:"asset_id"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
	SpeedKmh   float64  `json:"speed_kmh"`
	HeadingDeg float64  `json:"heading_deg"`
	AccuracyM  *float64 `json:"accuracy_m"`
	Source     string   `json:"source"`
	// Unix seconds; 0 lets the server stamp the fix.
	Timestamp int64 `json:"timestamp"`
}

// decodeFix parses a JSON fix. fallbackID is used when the payload carries
// no asset_id, e.g. when the ID is part of the MQTT topic.
func decodeFix(payload []byte, fallbackID string) (tracking.FixCommand, error) {
	var raw fixMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return tracking.FixCommand{}, fmt.Errorf("%w: %v", types.ErrInvalidFix, err)
	}
	if raw.AssetID == "" {
		raw.AssetID = fallbackID
	}
	if raw.AssetID == "" {
		return tracking.FixCommand{}, fmt.Errorf("%w: asset_id required", types.ErrInvalidFix)
	}
	if raw.Latitude == nil || raw.Longitude == nil {
		return tracking.FixCommand{}, fmt.Errorf("%w: latitude and longitude required", types.ErrInvalidFix)
	}
	if raw.Timestamp < 0 {
		return tracking.FixCommand{}, fmt.Errorf("%w: timestamp must be positive", types.ErrInvalidFix)
	}
	cmd := tracking.FixCommand{
		AssetID:    types.ID(raw.AssetID),
		Lat:        *raw.Latitude,
		Lng:        *raw.Longitude,
		SpeedKmh:   raw.SpeedKmh,
		HeadingDeg: raw.HeadingDeg,
		AccuracyM:  raw.AccuracyM,
		Source:     ledger.Source(raw.Source),
	}
	if raw.Timestamp > 0 {
		cmd.RecordedAt = time.Unix(raw.Timestamp, 0).UTC()
	}
	return cmd, nil
}

// assetFromTopic extracts <id> from topics shaped like fleet/assets/<id>/location.
func assetFromTopic(topic string) string {
	parts := strings.Split(strings.Trim(topic, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "assets" && parts[i+2] == "location" {
			return parts[i+1]
		}
	}
	return ""
}
