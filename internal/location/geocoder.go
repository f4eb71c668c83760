package location

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// nominatimBaseURL is the default reverse-geocoding endpoint. Nominatim asks
// callers to identify themselves via User-Agent rather than an API key.
const nominatimBaseURL = "https://nominatim.openstreetmap.org/reverse"

// nominatimReverseResponse is the subset of Nominatim's reverse-geocode
// response this package cares about.
type nominatimReverseResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

// NominatimGeocoder resolves coordinates to a place name via the public
// OpenStreetMap Nominatim reverse-geocoding API. It satisfies Geocoder.
type NominatimGeocoder struct {
	client    *http.Client
	baseURL   string
	userAgent string
}

// NewNominatimGeocoder constructs a Geocoder backed by Nominatim. userAgent
// identifies this deployment, as Nominatim's usage policy requires.
func NewNominatimGeocoder(userAgent string) *NominatimGeocoder {
	return &NominatimGeocoder{
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
		baseURL:   nominatimBaseURL,
		userAgent: userAgent,
	}
}

// Geocode resolves (lat, lng) to a human-readable place name.
func (g *NominatimGeocoder) Geocode(ctx context.Context, lat, lng float64) (string, error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%f", lat))
	q.Set("lon", fmt.Sprintf("%f", lng))
	q.Set("format", "jsonv2")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build geocode request: %w", err)
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geocode request: unexpected status %d", resp.StatusCode)
	}

	var wire nominatimReverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return "", fmt.Errorf("decode geocode response: %w", err)
	}
	if wire.Error != "" {
		return "", fmt.Errorf("geocode: %s", wire.Error)
	}
	if wire.DisplayName == "" {
		return "", fmt.Errorf("geocode: no place name for %.5f,%.5f", lat, lng)
	}
	return wire.DisplayName, nil
}
