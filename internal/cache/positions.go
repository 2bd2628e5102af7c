package cache

import (
	"database/sql"

	"geofleet-sync/internal/models"
)

// UpsertAll replaces-or-inserts cached positions by vehicle id. A new
// write for an existing id replaces the row unconditionally: the latest
// poll wins, with no ordering check against the incoming timestamp.
// Storage faults propagate.
func (c *Cache) UpsertAll(entries []models.CachedPosition) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := c.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO vehicle_positions (vehicle_id, latitude, longitude, timestamp)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.Exec(e.VehicleID, e.Latitude, e.Longitude, e.Timestamp); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetAll returns every cached position in descending timestamp order.
func (c *Cache) GetAll() ([]models.CachedPosition, error) {
	rows, err := c.conn.Query(`
		SELECT vehicle_id, latitude, longitude, timestamp
		FROM vehicle_positions
		ORDER BY timestamp DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []models.CachedPosition
	for rows.Next() {
		var p models.CachedPosition
		if err := rows.Scan(&p.VehicleID, &p.Latitude, &p.Longitude, &p.Timestamp); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// GetLast returns the cached position for a vehicle, or nil when the
// vehicle has never been cached.
func (c *Cache) GetLast(vehicleID string) (*models.CachedPosition, error) {
	var p models.CachedPosition
	err := c.conn.QueryRow(`
		SELECT vehicle_id, latitude, longitude, timestamp
		FROM vehicle_positions
		WHERE vehicle_id = ?
	`, vehicleID).Scan(&p.VehicleID, &p.Latitude, &p.Longitude, &p.Timestamp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// PurgeOlderThan deletes positions with a timestamp before the threshold
// and returns the number of rows removed.
func (c *Cache) PurgeOlderThan(timestamp int64) (int64, error) {
	res, err := c.conn.Exec(`DELETE FROM vehicle_positions WHERE timestamp < ?`, timestamp)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
