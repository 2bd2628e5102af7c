package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchPositionsOneResultPerVehicle(t *testing.T) {
	var requests int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&requests, 1)
		fmt.Fprint(w, `{"Latitude": "40.0", "Longitude": "-3.0", "timestamp": 1700000000000}`)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	ids := []string{"V1", "V2", "V3", "V4"}
	results := c.FetchPositions(context.Background(), ids)

	assert.Equal(t, int64(len(ids)), atomic.LoadInt64(&requests))
	require.Len(t, results, len(ids))
	for i, r := range results {
		assert.Equal(t, ids[i], r.VehicleID)
		require.True(t, r.OK())
		assert.Equal(t, 40.0, r.Position.LatitudeFloat())
		assert.Equal(t, -3.0, r.Position.LongitudeFloat())
		assert.Equal(t, int64(1700000000000), r.Position.Timestamp)
	}
}

func TestFetchPositionsSendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "/vehicle/V1", r.URL.Path)
		fmt.Fprint(w, `{"Latitude": "1", "Longitude": "2"}`)
	}))
	defer srv.Close()

	results := New(srv.URL, "secret").FetchPositions(context.Background(), []string{"V1"})
	require.Len(t, results, 1)
	assert.True(t, results[0].OK())
}

func TestFetchPositionsIsolatesFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/vehicle/V1":
			fmt.Fprint(w, `{"Latitude": "40.0", "Longitude": "-3.0"}`)
		case "/vehicle/V2":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			fmt.Fprint(w, `not json`)
		}
	}))
	defer srv.Close()

	results := New(srv.URL, "tok").FetchPositions(context.Background(), []string{"V1", "V2", "V3"})
	require.Len(t, results, 3)

	assert.True(t, results[0].OK())
	assert.Equal(t, 40.0, results[0].Position.LatitudeFloat())

	assert.False(t, results[1].OK())
	assert.NotErrorIs(t, results[1].Err, ErrNetwork)

	assert.False(t, results[2].OK())
	assert.NotErrorIs(t, results[2].Err, ErrNetwork)
}

func TestFetchPositionsNetworkErrorsAreMarked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	results := New(srv.URL, "tok").FetchPositions(context.Background(), []string{"V1", "V2"})
	require.Len(t, results, 2)
	for _, r := range results {
		assert.False(t, r.OK())
		assert.ErrorIs(t, r.Err, ErrNetwork)
	}
}

func TestFetchPositionsDefaultsMissingTimestamp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Latitude": "40.0", "Longitude": "-3.0"}`)
	}))
	defer srv.Close()

	results := New(srv.URL, "tok").FetchPositions(context.Background(), []string{"V1"})
	require.True(t, results[0].OK())
	assert.Positive(t, results[0].Position.Timestamp)
}

func TestFetchPositionsEmptyIDSet(t *testing.T) {
	results := New("http://unused", "tok").FetchPositions(context.Background(), nil)
	assert.Empty(t, results)
}
