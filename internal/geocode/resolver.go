package geocode

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"geofleet-sync/internal/models"
)

// ValidityWindow is how long a cached address stays fresh.
const ValidityWindow = 7 * 24 * time.Hour

// AddressCache is the local cache side the resolver reads and writes.
type AddressCache interface {
	GetAddress(coordinates string) (*models.CachedAddress, error)
	PutAddress(a models.CachedAddress) error
	DeleteAddressesOlderThan(timestamp int64) error
}

// Resolver turns coordinate pairs into human-readable addresses, caching
// genuine results for the validity window. It never returns an error: the
// worst case is the fixed-precision coordinate string.
type Resolver struct {
	geocoder Geocoder
	cache    AddressCache
	validity time.Duration

	now func() time.Time // swapped out in tests
}

// NewResolver creates a resolver with the standard 7-day validity window.
func NewResolver(g Geocoder, c AddressCache) *Resolver {
	return &Resolver{
		geocoder: g,
		cache:    c,
		validity: ValidityWindow,
		now:      time.Now,
	}
}

// CoordinateKey builds the fixed-precision cache key for a coordinate
// pair.
func CoordinateKey(lat, lng float64) string {
	return fmt.Sprintf("%.6f,%.6f", lat, lng)
}

// FormatCoordinates renders the fallback string used when no address is
// available.
func FormatCoordinates(lat, lng float64) string {
	return fmt.Sprintf("%.6f, %.6f", lat, lng)
}

// Resolve returns the address for a coordinate pair: the cached value if
// fresh, otherwise a new geocoding result. On any failure or empty result
// the coordinate string is returned and nothing is cached, so a transient
// geocoding failure never sticks.
func (r *Resolver) Resolve(ctx context.Context, lat, lng float64) string {
	key := CoordinateKey(lat, lng)

	cached, err := r.cache.GetAddress(key)
	if err != nil {
		log.WithError(err).Warn("address cache lookup failed")
	} else if cached != nil && r.isFresh(cached) {
		return cached.Address
	}

	addr, err := r.geocoder.ReverseGeocode(ctx, lat, lng)
	if err != nil {
		log.WithFields(log.Fields{"lat": lat, "lng": lng}).WithError(err).Warn("reverse geocoding failed")
		return FormatCoordinates(lat, lng)
	}
	if addr == nil {
		return FormatCoordinates(lat, lng)
	}

	text := formatAddress(addr, lat, lng)

	// Only genuine addresses are cached; the coordinate fallback must
	// not shadow future geocoding attempts.
	if text != FormatCoordinates(lat, lng) {
		entry := models.CachedAddress{
			Coordinates: key,
			Address:     text,
			Timestamp:   r.now().UnixMilli(),
		}
		if err := r.cache.PutAddress(entry); err != nil {
			log.WithError(err).Warn("address cache write failed")
		} else {
			expiry := r.now().Add(-r.validity).UnixMilli()
			if err := r.cache.DeleteAddressesOlderThan(expiry); err != nil {
				log.WithError(err).Warn("address cache purge failed")
			}
		}
	}

	return text
}

func (r *Resolver) isFresh(a *models.CachedAddress) bool {
	return r.now().UnixMilli()-a.Timestamp < r.validity.Milliseconds()
}

// formatAddress builds the most complete human string available: street
// and number first, then sub-locality and locality, then the provider's
// display line, then the bare coordinates.
func formatAddress(a *Address, lat, lng float64) string {
	var b strings.Builder

	if a.Road != "" {
		b.WriteString(a.Road)
		if a.HouseNumber != "" {
			b.WriteString(" ")
			b.WriteString(a.HouseNumber)
		}
	}

	if a.SubLocality != "" {
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		b.WriteString(a.SubLocality)
	}

	if a.Locality != "" {
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		b.WriteString(a.Locality)
	}

	if b.Len() == 0 && a.DisplayLine != "" {
		b.WriteString(a.DisplayLine)
	}

	if b.Len() == 0 {
		return FormatCoordinates(lat, lng)
	}

	return b.String()
}
