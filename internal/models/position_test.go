package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVehiclePositionCoordinateParsing(t *testing.T) {
	tests := []struct {
		name    string
		lat     string
		lng     string
		wantLat float64
		wantLng float64
	}{
		{"valid", "40.4168", "-3.7038", 40.4168, -3.7038},
		{"invalid text", "north", "west", 0, 0},
		{"empty", "", "", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := VehiclePosition{Latitude: tt.lat, Longitude: tt.lng}
			assert.Equal(t, tt.wantLat, p.LatitudeFloat())
			assert.Equal(t, tt.wantLng, p.LongitudeFloat())
		})
	}
}

func TestVehiclePositionWireFormat(t *testing.T) {
	payload := `{"Latitude": "40.0", "Longitude": "-3.0", "timestamp": 1700000000000}`

	var p VehiclePosition
	require.NoError(t, json.Unmarshal([]byte(payload), &p))

	assert.Equal(t, "40.0", p.Latitude)
	assert.Equal(t, "-3.0", p.Longitude)
	assert.Equal(t, int64(1700000000000), p.Timestamp)
}
