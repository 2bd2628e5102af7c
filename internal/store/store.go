package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"geofleet-sync/internal/models"
)

// VehicleStore mirrors synchronized positions into the remote vehicle
// collection and its position-history log. The orchestrator treats it as
// best-effort secondary storage; the local cache stays authoritative.
type VehicleStore struct {
	pool *pgxpool.Pool
}

// New connects to the remote store and makes sure the schema exists.
func New(ctx context.Context, databaseURL string) (*VehicleStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to remote store: %w", err)
	}

	s := &VehicleStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initializing remote store schema: %w", err)
	}
	return s, nil
}

func (s *VehicleStore) ensureSchema(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS vehicles (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	current_latitude DOUBLE PRECISION,
	current_longitude DOUBLE PRECISION,
	current_timestamp_ms BIGINT,
	images TEXT[] NOT NULL DEFAULT '{}',
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS coordinates_history (
	id BIGSERIAL PRIMARY KEY,
	vehicle_id TEXT NOT NULL REFERENCES vehicles(id),
	latitude DOUBLE PRECISION NOT NULL,
	longitude DOUBLE PRECISION NOT NULL,
	timestamp_ms BIGINT NOT NULL,
	created_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_vehicle_ts ON coordinates_history(vehicle_id, timestamp_ms DESC);
`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close releases the connection pool.
func (s *VehicleStore) Close() {
	s.pool.Close()
}

// UpsertCurrentPosition writes a vehicle's current position, creating the
// vehicle record with defaults (name = id) when it does not exist yet.
func (s *VehicleStore) UpsertCurrentPosition(ctx context.Context, p models.CachedPosition) error {
	now := models.NowMillis()
	_, err := s.pool.Exec(ctx, `
INSERT INTO vehicles (id, name, current_latitude, current_longitude, current_timestamp_ms, created_at, updated_at)
VALUES ($1, $1, $2, $3, $4, $5, $5)
ON CONFLICT (id) DO UPDATE
SET current_latitude = EXCLUDED.current_latitude,
    current_longitude = EXCLUDED.current_longitude,
    current_timestamp_ms = EXCLUDED.current_timestamp_ms,
    updated_at = EXCLUDED.updated_at`,
		p.VehicleID, p.Latitude, p.Longitude, p.Timestamp, now)
	if err != nil {
		return fmt.Errorf("upserting current position for %s: %w", p.VehicleID, err)
	}
	return nil
}

// AppendHistory adds one entry to the vehicle's position-history log.
func (s *VehicleStore) AppendHistory(ctx context.Context, p models.CachedPosition) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO coordinates_history (vehicle_id, latitude, longitude, timestamp_ms, created_at)
VALUES ($1, $2, $3, $4, $5)`,
		p.VehicleID, p.Latitude, p.Longitude, p.Timestamp, models.NowMillis())
	if err != nil {
		return fmt.Errorf("appending history for %s: %w", p.VehicleID, err)
	}
	return nil
}

// ListVehicles returns all vehicle records ordered by name.
func (s *VehicleStore) ListVehicles(ctx context.Context) ([]models.Vehicle, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, name, images, created_at, updated_at
FROM vehicles
ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vehicles []models.Vehicle
	for rows.Next() {
		var v models.Vehicle
		if err := rows.Scan(&v.ID, &v.Name, &v.Images, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}

// PositionHistory returns up to limit history entries for a vehicle in
// descending timestamp order. Rows with absent coordinate fields are
// skipped rather than failing the whole read.
func (s *VehicleStore) PositionHistory(ctx context.Context, vehicleID string, limit int) ([]models.HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
SELECT latitude, longitude, timestamp_ms, created_at
FROM coordinates_history
WHERE vehicle_id = $1
ORDER BY timestamp_ms DESC
LIMIT $2`, vehicleID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.HistoryEntry
	for rows.Next() {
		var lat, lng *float64
		var ts, createdAt *int64
		if err := rows.Scan(&lat, &lng, &ts, &createdAt); err != nil {
			return nil, err
		}
		if lat == nil || lng == nil || ts == nil {
			continue
		}
		e := models.HistoryEntry{
			VehicleID: vehicleID,
			Latitude:  *lat,
			Longitude: *lng,
			Timestamp: *ts,
		}
		if createdAt != nil {
			e.CreatedAt = *createdAt
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
