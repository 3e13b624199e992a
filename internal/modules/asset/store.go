// README: Asset store backed by PostgreSQL (assets, geofences, geofence_events).
package asset

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fleet/internal/infra"
	"fleet/internal/types"
)

var _ Repository = (*Store)(nil)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const assetColumns = `id, name, type, location_lat, location_lng, status, last_seen,
       speed_kmh, heading_deg, metadata, created_at`

func (s *Store) Get(ctx context.Context, id types.ID) (*Asset, error) {
	row := infra.Conn(ctx, s.db).QueryRow(ctx, `
        SELECT `+assetColumns+`
        FROM assets
        WHERE id = $1`, string(id),
	)
	a, err := scanAsset(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.ErrUnknownAsset
	}
	if err != nil {
		return nil, infra.StorageErr(err)
	}
	return a, nil
}

func (s *Store) Upsert(ctx context.Context, a *Asset) (*Asset, error) {
	metadata := a.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	_, err := infra.Conn(ctx, s.db).Exec(ctx, `
        INSERT INTO assets (
            id, name, type, location_lat, location_lng, status, last_seen,
            speed_kmh, heading_deg, metadata, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (id) DO UPDATE SET
            name = EXCLUDED.name,
            type = EXCLUDED.type,
            location_lat = EXCLUDED.location_lat,
            location_lng = EXCLUDED.location_lng,
            status = EXCLUDED.status,
            last_seen = EXCLUDED.last_seen,
            speed_kmh = EXCLUDED.speed_kmh,
            heading_deg = EXCLUDED.heading_deg,
            metadata = EXCLUDED.metadata`,
		string(a.ID),
		a.Name,
		string(a.Type),
		a.Location.Lat, a.Location.Lng,
		string(a.Status),
		a.LastSeen.UTC(),
		a.SpeedKmh,
		a.HeadingDeg,
		metadata,
		a.CreatedAt.UTC(),
	)
	if err != nil {
		return nil, infra.StorageErr(err)
	}
	return a.clone(), nil
}

func (s *Store) List(ctx context.Context, f ListFilter) ([]Asset, error) {
	rows, err := infra.Conn(ctx, s.db).Query(ctx, `
        SELECT `+assetColumns+`
        FROM assets
        WHERE ($1 = '' OR status = $1)
          AND ($2 = '' OR type = $2)
        ORDER BY id`,
		string(f.Status), string(f.Type),
	)
	if err != nil {
		return nil, infra.StorageErr(err)
	}
	defer rows.Close()

	var out []Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, infra.StorageErr(err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.StorageErr(err)
	}
	return out, nil
}

func (s *Store) Geofence(ctx context.Context, id types.ID) (*Geofence, error) {
	row := infra.Conn(ctx, s.db).QueryRow(ctx, `
        SELECT id, name, center_lat, center_lng, radius_km, type, active, created_at
        FROM geofences
        WHERE id = $1`, string(id),
	)
	g, err := scanGeofence(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.ErrUnknownGeofence
	}
	if err != nil {
		return nil, infra.StorageErr(err)
	}
	return g, nil
}

func (s *Store) Geofences(ctx context.Context, activeOnly bool) ([]Geofence, error) {
	rows, err := infra.Conn(ctx, s.db).Query(ctx, `
        SELECT id, name, center_lat, center_lng, radius_km, type, active, created_at
        FROM geofences
        WHERE (NOT $1 OR active)
        ORDER BY id`, activeOnly,
	)
	if err != nil {
		return nil, infra.StorageErr(err)
	}
	defer rows.Close()

	var out []Geofence
	for rows.Next() {
		g, err := scanGeofence(rows)
		if err != nil {
			return nil, infra.StorageErr(err)
		}
		out = append(out, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.StorageErr(err)
	}
	return out, nil
}

func (s *Store) UpsertGeofence(ctx context.Context, g *Geofence) (*Geofence, error) {
	_, err := infra.Conn(ctx, s.db).Exec(ctx, `
        INSERT INTO geofences (id, name, center_lat, center_lng, radius_km, type, active, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (id) DO UPDATE SET
            name = EXCLUDED.name,
            center_lat = EXCLUDED.center_lat,
            center_lng = EXCLUDED.center_lng,
            radius_km = EXCLUDED.radius_km,
            type = EXCLUDED.type,
            active = EXCLUDED.active`,
		string(g.ID),
		g.Name,
		g.Center.Lat, g.Center.Lng,
		g.RadiusKm,
		g.Type,
		g.Active,
		g.CreatedAt.UTC(),
	)
	if err != nil {
		return nil, infra.StorageErr(err)
	}
	cp := *g
	return &cp, nil
}

func (s *Store) AppendEvent(ctx context.Context, e GeofenceEvent) error {
	_, err := infra.Conn(ctx, s.db).Exec(ctx, `
        INSERT INTO geofence_events (asset_id, geofence_id, event_type, lat, lng, occurred_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.AssetID),
		string(e.GeofenceID),
		string(e.EventType),
		e.Lat, e.Lng,
		e.Timestamp.UTC(),
	)
	return infra.StorageErr(err)
}

func (s *Store) ListEvents(ctx context.Context, f EventFilter) ([]GeofenceEvent, error) {
	var assetID *string
	if f.AssetID != nil {
		v := string(*f.AssetID)
		assetID = &v
	}
	until := f.Until
	if until.IsZero() {
		until = time.Now().UTC()
	}
	rows, err := infra.Conn(ctx, s.db).Query(ctx, `
        SELECT asset_id, geofence_id, event_type, lat, lng, occurred_at
        FROM geofence_events
        WHERE ($1::text IS NULL OR asset_id = $1)
          AND occurred_at >= $2
          AND occurred_at <= $3
        ORDER BY occurred_at ASC, id ASC`,
		assetID, f.Since.UTC(), until.UTC(),
	)
	if err != nil {
		return nil, infra.StorageErr(err)
	}
	defer rows.Close()

	var out []GeofenceEvent
	for rows.Next() {
		var e GeofenceEvent
		if err := rows.Scan(&e.AssetID, &e.GeofenceID, &e.EventType, &e.Lat, &e.Lng, &e.Timestamp); err != nil {
			return nil, infra.StorageErr(err)
		}
		e.Timestamp = e.Timestamp.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.StorageErr(err)
	}
	return out, nil
}

func scanAsset(row pgx.Row) (*Asset, error) {
	var a Asset
	err := row.Scan(
		&a.ID, &a.Name, &a.Type, &a.Location.Lat, &a.Location.Lng, &a.Status, &a.LastSeen,
		&a.SpeedKmh, &a.HeadingDeg, &a.Metadata, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.LastSeen = a.LastSeen.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}

func scanGeofence(row pgx.Row) (*Geofence, error) {
	var g Geofence
	err := row.Scan(&g.ID, &g.Name, &g.Center.Lat, &g.Center.Lng, &g.RadiusKm, &g.Type, &g.Active, &g.CreatedAt)
	if err != nil {
		return nil, err
	}
	g.CreatedAt = g.CreatedAt.UTC()
	return &g, nil
}
