package geocode

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geofleet-sync/internal/cache"
)

type fakeGeocoder struct {
	calls int
	addr  *Address
	err   error
}

func (g *fakeGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (*Address, error) {
	g.calls++
	return g.addr, g.err
}

func newTestResolver(t *testing.T, g Geocoder) (*Resolver, *time.Time) {
	t.Helper()
	c, err := cache.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	r := NewResolver(g, c)
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }
	return r, &clock
}

func TestResolveCachesWithinValidityWindow(t *testing.T) {
	g := &fakeGeocoder{addr: &Address{Road: "Gran Vía", HouseNumber: "1", Locality: "Madrid"}}
	r, clock := newTestResolver(t, g)

	got := r.Resolve(context.Background(), 40.4168, -3.7038)
	assert.Equal(t, "Gran Vía 1, Madrid", got)
	assert.Equal(t, 1, g.calls)

	// One hour later: cached, no new geocoding call.
	*clock = clock.Add(time.Hour)
	got = r.Resolve(context.Background(), 40.4168, -3.7038)
	assert.Equal(t, "Gran Vía 1, Madrid", got)
	assert.Equal(t, 1, g.calls)

	// Eight days later: stale, geocoded again.
	*clock = clock.Add(8 * 24 * time.Hour)
	got = r.Resolve(context.Background(), 40.4168, -3.7038)
	assert.Equal(t, "Gran Vía 1, Madrid", got)
	assert.Equal(t, 2, g.calls)
}

func TestResolveNeverCachesCoordinateFallback(t *testing.T) {
	g := &fakeGeocoder{err: errors.New("geocoder down")}
	r, _ := newTestResolver(t, g)

	got := r.Resolve(context.Background(), 40.4168, -3.7038)
	assert.Equal(t, "40.416800, -3.703800", got)
	assert.Equal(t, 1, g.calls)

	// A transient failure must not stick: the next call geocodes again.
	g.err = nil
	g.addr = &Address{Road: "Gran Vía", Locality: "Madrid"}
	got = r.Resolve(context.Background(), 40.4168, -3.7038)
	assert.Equal(t, "Gran Vía, Madrid", got)
	assert.Equal(t, 2, g.calls)
}

func TestResolveEmptyResultFallsBackToCoordinates(t *testing.T) {
	g := &fakeGeocoder{} // nil addr, nil err: provider had no result
	r, _ := newTestResolver(t, g)

	got := r.Resolve(context.Background(), 1.5, 2.5)
	assert.Equal(t, "1.500000, 2.500000", got)

	// Not cached either.
	got = r.Resolve(context.Background(), 1.5, 2.5)
	assert.Equal(t, "1.500000, 2.500000", got)
	assert.Equal(t, 2, g.calls)
}

func TestFormatAddressFallbackChain(t *testing.T) {
	tests := []struct {
		name string
		addr Address
		want string
	}{
		{
			"street with number",
			Address{Road: "Gran Vía", HouseNumber: "1", SubLocality: "Centro", Locality: "Madrid"},
			"Gran Vía 1, Centro, Madrid",
		},
		{
			"street without number",
			Address{Road: "Gran Vía", Locality: "Madrid"},
			"Gran Vía, Madrid",
		},
		{
			"locality only",
			Address{Locality: "Madrid"},
			"Madrid",
		},
		{
			"display line fallback",
			Address{DisplayLine: "Somewhere, Spain"},
			"Somewhere, Spain",
		},
		{
			"nothing usable",
			Address{},
			"40.000000, -3.000000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatAddress(&tt.addr, 40.0, -3.0))
		})
	}
}

func TestCoordinateKey(t *testing.T) {
	assert.Equal(t, "40.416800,-3.703800", CoordinateKey(40.4168, -3.7038))
	// Rounding keeps nearby fixes on the same key.
	assert.Equal(t, "40.416800,-3.703800", CoordinateKey(40.4168004, -3.7038004))
}
