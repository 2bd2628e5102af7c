package cache

import (
	"database/sql"

	"geofleet-sync/internal/models"
)

// GetAddress returns the cached address for a coordinate key, or nil when
// the key has never been resolved. Freshness is the caller's concern.
func (c *Cache) GetAddress(coordinates string) (*models.CachedAddress, error) {
	var a models.CachedAddress
	err := c.conn.QueryRow(`
		SELECT coordinates, address, timestamp
		FROM geocoded_addresses
		WHERE coordinates = ?
	`, coordinates).Scan(&a.Coordinates, &a.Address, &a.Timestamp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// PutAddress stores a resolved address, replacing any previous row for
// the same coordinate key.
func (c *Cache) PutAddress(a models.CachedAddress) error {
	_, err := c.conn.Exec(`
		INSERT OR REPLACE INTO geocoded_addresses (coordinates, address, timestamp)
		VALUES (?, ?, ?)
	`, a.Coordinates, a.Address, a.Timestamp)
	return err
}

// DeleteAddressesOlderThan purges address rows resolved before the
// threshold.
func (c *Cache) DeleteAddressesOlderThan(timestamp int64) error {
	_, err := c.conn.Exec(`DELETE FROM geocoded_addresses WHERE timestamp < ?`, timestamp)
	return err
}
