package location

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNominatimGeocoderParsesDisplayName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua == "" {
			t.Error("expected a User-Agent header")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"display_name": "Golden Gate Park, San Francisco, CA"}`))
	}))
	defer srv.Close()

	g := NewNominatimGeocoder("test-agent/1.0")
	g.baseURL = srv.URL

	name, err := g.Geocode(context.Background(), 37.7, -122.4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "Golden Gate Park, San Francisco, CA" {
		t.Fatalf("got %q", name)
	}
}

func TestNominatimGeocoderReturnsErrorOnAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error": "Unable to geocode"}`))
	}))
	defer srv.Close()

	g := NewNominatimGeocoder("test-agent/1.0")
	g.baseURL = srv.URL

	if _, err := g.Geocode(context.Background(), 0, 0); err == nil {
		t.Fatal("expected an error")
	}
}

func TestNominatimGeocoderReturnsErrorOnHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := NewNominatimGeocoder("test-agent/1.0")
	g.baseURL = srv.URL

	if _, err := g.Geocode(context.Background(), 0, 0); err == nil {
		t.Fatal("expected an error")
	}
}
