package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Address is a reverse-geocoding result reduced to the components the
// resolver formats from.
type Address struct {
	Road        string
	HouseNumber string
	SubLocality string
	Locality    string
	DisplayLine string
}

// Geocoder resolves a coordinate pair to an address. Implementations
// return (nil, nil) when the provider has no result for the location.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (*Address, error)
}

// HTTPGeocoder calls a Nominatim-compatible reverse endpoint.
type HTTPGeocoder struct {
	http    *http.Client
	baseURL string
}

// NewHTTPGeocoder creates a geocoder against baseURL.
func NewHTTPGeocoder(baseURL string) *HTTPGeocoder {
	return &HTTPGeocoder{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: baseURL,
	}
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		Road          string `json:"road"`
		HouseNumber   string `json:"house_number"`
		Suburb        string `json:"suburb"`
		Neighbourhood string `json:"neighbourhood"`
		City          string `json:"city"`
		Town          string `json:"town"`
		Village       string `json:"village"`
	} `json:"address"`
}

// ReverseGeocode requests the single best address for the coordinates.
func (g *HTTPGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (*Address, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', 6, 64))
	q.Set("addressdetails", "1")

	reqURL := fmt.Sprintf("%s/reverse?%s", g.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "geofleet-sync")

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reverse geocoding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reverse geocoding: unexpected status %d", resp.StatusCode)
	}

	var rr reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, fmt.Errorf("decoding reverse geocoding response: %w", err)
	}

	if rr.DisplayName == "" && rr.Address.Road == "" {
		return nil, nil
	}

	addr := &Address{
		Road:        rr.Address.Road,
		HouseNumber: rr.Address.HouseNumber,
		SubLocality: rr.Address.Suburb,
		Locality:    rr.Address.City,
		DisplayLine: rr.DisplayName,
	}
	if addr.SubLocality == "" {
		addr.SubLocality = rr.Address.Neighbourhood
	}
	if addr.Locality == "" {
		addr.Locality = rr.Address.Town
	}
	if addr.Locality == "" {
		addr.Locality = rr.Address.Village
	}
	return addr, nil
}
