// README: Ledger store backed by the PostgreSQL location_points table.
package ledger

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

func (s *Store) Append(ctx context.Context, p Point) error {
	_, err := infra.Conn(ctx, s.db).Exec(ctx, `
        INSERT INTO location_points (asset_id, lat, lng, speed_kmh, heading_deg, accuracy_m, source, recorded_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(p.AssetID),
		p.Lat, p.Lng,
		p.SpeedKmh,
		p.HeadingDeg,
		p.AccuracyM,
		string(p.Source),
		p.Timestamp.UTC(),
	)
	return infra.StorageErr(err)
}

func (s *Store) Latest(ctx context.Context, assetID types.ID) (*Point, error) {
	row := infra.Conn(ctx, s.db).QueryRow(ctx, `
        SELECT asset_id, lat, lng, speed_kmh, heading_deg, accuracy_m, source, recorded_at
        FROM location_points
        WHERE asset_id = $1
        ORDER BY recorded_at DESC, id DESC
        LIMIT 1`, string(assetID),
	)
	p, err := scanPoint(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, infra.StorageErr(err)
	}
	return p, nil
}

func (s *Store) Range(ctx context.Context, assetID types.ID, since, until time.Time) ([]Point, error) {
	var upper *time.Time
	if !until.IsZero() {
		u := until.UTC()
		upper = &u
	}
	rows, err := infra.Conn(ctx, s.db).Query(ctx, `
        SELECT asset_id, lat, lng, speed_kmh, heading_deg, accuracy_m, source, recorded_at
        FROM location_points
        WHERE asset_id = $1
          AND recorded_at >= $2
          AND ($3::timestamptz IS NULL OR recorded_at <= $3)
        ORDER BY recorded_at ASC, id ASC`,
		string(assetID), since.UTC(), upper,
	)
	if err != nil {
		return nil, infra.StorageErr(err)
	}
	defer rows.Close()

	out := []Point{}
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, infra.StorageErr(err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.StorageErr(err)
	}
	return out, nil
}

func scanPoint(row pgx.Row) (*Point, error) {
	var p Point
	err := row.Scan(&p.AssetID, &p.Lat, &p.Lng, &p.SpeedKmh, &p.HeadingDeg, &p.AccuracyM, &p.Source, &p.Timestamp)
	if err != nil {
		return nil, err
	}
	p.Timestamp = p.Timestamp.UTC()
	return &p, nil
}
