package geocoding

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func TestNewClientDisabledWithoutKey(t *testing.T) {
	if NewClient("") != nil {
		t.Error("expected nil client without API key")
	}
}

func TestGeocodeParsesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("components") != "country:BH" {
			t.Errorf("missing country bias: %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{
			"status": "OK",
			"results": [{
				"formatted_address": "Road 4012, Block 340, Juffair, Bahrain",
				"geometry": {"location": {"lat": 26.2123, "lng": 50.6081}},
				"address_components": [
					{"long_name": "Juffair", "short_name": "Juffair", "types": ["sublocality", "political"]},
					{"long_name": "Manama", "short_name": "Manama", "types": ["locality"]},
					{"long_name": "340", "short_name": "340", "types": ["postal_code"]}
				]
			}]
		}`))
	}))
	defer srv.Close()

	c := NewClient("test-key")
	c.baseURL = srv.URL

	res, err := c.Geocode(context.Background(), "Road 4012 Juffair")
	if err != nil {
		t.Fatalf("Geocode: %v", err)
	}
	if res.Area != "Juffair" || res.Block != "340" {
		t.Errorf("area=%q block=%q", res.Area, res.Block)
	}
	if res.Lat != 26.2123 || res.Lng != 50.6081 {
		t.Errorf("coords = %v,%v", res.Lat, res.Lng)
	}
}

func TestGeocodeZeroResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "ZERO_RESULTS", "results": []}`))
	}))
	defer srv.Close()

	c := NewClient("test-key")
	c.baseURL = srv.URL
	if _, err := c.Geocode(context.Background(), "nowhere"); !errors.Is(err, ErrNoResult) {
		t.Errorf("expected ErrNoResult, got %v", err)
	}
}

func TestGeocodeLive(t *testing.T) {
	// This test requires GOOGLE_MAPS_API_KEY to be set
	key := os.Getenv("GOOGLE_MAPS_API_KEY")
	if key == "" {
		t.Skip("GOOGLE_MAPS_API_KEY not set")
	}

	res, err := NewClient(key).Geocode(context.Background(), "Bahrain World Trade Center, Manama")
	if err != nil {
		t.Fatalf("Geocode: %v", err)
	}
	if res.Lat < 25.5 || res.Lat > 26.5 || res.Lng < 50.3 || res.Lng > 50.9 {
		t.Errorf("result outside Bahrain: %+v", res)
	}
}
