package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

var ErrNoResult = errors.New("geocoding returned no results")

// Result holds the parts of a Google geocoding response a stub needs.
type Result struct {
	Formatted string  `json:"formatted"`
	Area      string  `json:"area"`  // neighbourhood or locality, e.g. "Juffair"
	Block     string  `json:"block"` // Bahraini block number when present
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
}

// Client wraps the Google Maps Geocoding API, biased to Bahrain.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient returns nil when apiKey is empty; callers treat a nil client as
// "geocoding disabled".
func NewClient(apiKey string) *Client {
	if apiKey == "" {
		return nil
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: "https://maps.googleapis.com/maps/api/geocode/json",
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type geocodeResponse struct {
	Results      []geocodeResult `json:"results"`
	Status       string          `json:"status"`
	ErrorMessage string          `json:"error_message"`
}

type geocodeResult struct {
	AddressComponents []addressComponent `json:"address_components"`
	FormattedAddress  string             `json:"formatted_address"`
	Geometry          geometry           `json:"geometry"`
}

type addressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

type geometry struct {
	Location latLng `json:"location"`
}

type latLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Geocode converts a free-form address into coordinates and area names.
func (c *Client) Geocode(ctx context.Context, address string) (*Result, error) {
	q := url.Values{}
	q.Set("address", address)
	q.Set("components", "country:BH")
	q.Set("region", "bh")
	q.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocoding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocoding API returned HTTP %d", resp.StatusCode)
	}

	var geoResp geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&geoResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	switch geoResp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, ErrNoResult
	default:
		return nil, fmt.Errorf("geocoding failed: status=%s %s", geoResp.Status, geoResp.ErrorMessage)
	}
	if len(geoResp.Results) == 0 {
		return nil, ErrNoResult
	}

	result := geoResp.Results[0]
	out := &Result{
		Formatted: result.FormattedAddress,
		Lat:       result.Geometry.Location.Lat,
		Lng:       result.Geometry.Location.Lng,
	}

	for _, comp := range result.AddressComponents {
		for _, t := range comp.Types {
			switch t {
			case "neighborhood", "sublocality", "sublocality_level_1":
				if out.Area == "" {
					out.Area = comp.LongName
				}
			case "locality":
				if out.Area == "" {
					out.Area = comp.LongName
				}
			case "postal_code":
				// Bahraini addresses put the block number in the postal code slot.
				out.Block = comp.ShortName
			}
		}
	}

	return out, nil
}
