package cache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geofleet-sync/internal/models"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestUpsertAllAndGetAll(t *testing.T) {
	c := newTestCache(t)

	err := c.UpsertAll([]models.CachedPosition{
		{VehicleID: "V1", Latitude: 40.0, Longitude: -3.0, Timestamp: 100},
		{VehicleID: "V2", Latitude: 41.5, Longitude: -2.5, Timestamp: 200},
	})
	require.NoError(t, err)

	positions, err := c.GetAll()
	require.NoError(t, err)
	require.Len(t, positions, 2)

	// Descending timestamp order
	assert.Equal(t, "V2", positions[0].VehicleID)
	assert.Equal(t, "V1", positions[1].VehicleID)
}

func TestUpsertReplacesByVehicleID(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.UpsertAll([]models.CachedPosition{
		{VehicleID: "V1", Latitude: 40.0, Longitude: -3.0, Timestamp: 100},
	}))
	require.NoError(t, c.UpsertAll([]models.CachedPosition{
		{VehicleID: "V1", Latitude: 40.5, Longitude: -3.5, Timestamp: 200},
	}))

	positions, err := c.GetAll()
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, 40.5, positions[0].Latitude)
	assert.Equal(t, int64(200), positions[0].Timestamp)
}

func TestUpsertIsIdempotent(t *testing.T) {
	c := newTestCache(t)

	entry := models.CachedPosition{VehicleID: "V1", Latitude: 40.0, Longitude: -3.0, Timestamp: 100}
	require.NoError(t, c.UpsertAll([]models.CachedPosition{entry}))
	require.NoError(t, c.UpsertAll([]models.CachedPosition{entry}))

	positions, err := c.GetAll()
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, entry, positions[0])
}

func TestUpsertAllEmpty(t *testing.T) {
	c := newTestCache(t)
	assert.NoError(t, c.UpsertAll(nil))
}

func TestGetLast(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.UpsertAll([]models.CachedPosition{
		{VehicleID: "V1", Latitude: 40.0, Longitude: -3.0, Timestamp: 100},
	}))

	p, err := c.GetLast("V1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 40.0, p.Latitude)

	// Absent vehicle is not an error
	p, err = c.GetLast("unknown")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestPurgeOlderThan(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.UpsertAll([]models.CachedPosition{
		{VehicleID: "V1", Latitude: 40.0, Longitude: -3.0, Timestamp: 100},
		{VehicleID: "V2", Latitude: 41.0, Longitude: -2.0, Timestamp: 300},
	}))

	n, err := c.PurgeOlderThan(200)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	positions, err := c.GetAll()
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "V2", positions[0].VehicleID)
}
