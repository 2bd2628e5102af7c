package models

import (
	"strconv"
	"time"
)

// VehiclePosition is the wire payload returned by the positions endpoint.
// Latitude and longitude arrive as text and are parsed on demand; the
// endpoint omits the timestamp on some firmware versions, in which case
// the capture time is used.
type VehiclePosition struct {
	VehicleID string `json:"vehicle_id"`
	Latitude  string `json:"Latitude"`
	Longitude string `json:"Longitude"`
	Timestamp int64  `json:"timestamp"`
}

// LatitudeFloat parses the latitude text, returning 0 for invalid or
// missing values.
func (p *VehiclePosition) LatitudeFloat() float64 {
	v, err := strconv.ParseFloat(p.Latitude, 64)
	if err != nil {
		return 0
	}
	return v
}

// LongitudeFloat parses the longitude text, returning 0 for invalid or
// missing values.
func (p *VehiclePosition) LongitudeFloat() float64 {
	v, err := strconv.ParseFloat(p.Longitude, 64)
	if err != nil {
		return 0
	}
	return v
}

// CachedPosition is a row of the local position cache: the last known
// position per vehicle, one row per vehicle id.
type CachedPosition struct {
	VehicleID string  `json:"vehicle_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp"` // epoch millis
}

// CachedAddress is a row of the local geocoding cache, keyed by a
// fixed-precision "lat,lng" string.
type CachedAddress struct {
	Coordinates string `json:"coordinates"`
	Address     string `json:"address"`
	Timestamp   int64  `json:"timestamp"` // epoch millis of resolution
}

// Vehicle is a record from the remote vehicle store.
type Vehicle struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Images    []string `json:"images,omitempty"`
	CreatedAt int64    `json:"created_at"`
	UpdatedAt int64    `json:"updated_at"`
}

// VehicleInfo composes a remote vehicle record with its cached last
// position. Built at read time for list rendering, never persisted.
type VehicleInfo struct {
	Vehicle
	LastPosition *CachedPosition `json:"last_position,omitempty"`
}

// HistoryEntry is one row of a vehicle's position-history log.
type HistoryEntry struct {
	VehicleID string  `json:"vehicle_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp"`
	CreatedAt int64   `json:"created_at"`
}

// NowMillis returns the current time as epoch milliseconds, the timestamp
// representation used throughout the caches and the remote store.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
