package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"trafficview.org/internal/config"
	"trafficview.org/internal/geo"
	"trafficview.org/internal/models"
)

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// NominatimClient queries a Nominatim-compatible /search endpoint.
type NominatimClient struct {
	baseURL    string
	userAgent  string
	client     *http.Client
	maxRetries int
}

func NewNominatimClient(baseURL, userAgent string, client *http.Client, maxRetries int) *NominatimClient {
	return &NominatimClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
		client:     client,
		maxRetries: maxRetries,
	}
}

// Geocode returns the first match for text. Blank text fails with
// ErrEmptyQuery before any request is made; an empty result array fails
// with a *NotFoundError.
func (n *NominatimClient) Geocode(ctx context.Context, text string) (models.Coordinate, error) {
	query := strings.TrimSpace(text)
	if query == "" {
		return models.Coordinate{}, ErrEmptyQuery
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return models.Coordinate{}, fmt.Errorf("create geocode request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", n.userAgent)

	// DoWithBackoff treats zero retries as unlimited, so only use it when a
	// retry budget is configured.
	var resp *http.Response
	if n.maxRetries > 0 {
		resp, err = config.DoWithBackoff(ctx, n.client, req, n.maxRetries)
	} else {
		resp, err = n.client.Do(req)
	}
	if err != nil {
		return models.Coordinate{}, fmt.Errorf("geocode %q: %w", query, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return models.Coordinate{}, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return models.Coordinate{}, fmt.Errorf("decode geocode response: %w", err)
	}
	if len(places) == 0 {
		return models.Coordinate{}, &NotFoundError{Query: query}
	}

	first := places[0]
	lat, err := strconv.ParseFloat(first.Lat, 64)
	if err != nil {
		return models.Coordinate{}, fmt.Errorf("decode geocode latitude %q: %w", first.Lat, err)
	}
	lon, err := strconv.ParseFloat(first.Lon, 64)
	if err != nil {
		return models.Coordinate{}, fmt.Errorf("decode geocode longitude %q: %w", first.Lon, err)
	}
	if !geo.IsValidLatLon(lat, lon) {
		return models.Coordinate{}, fmt.Errorf("geocoder returned invalid coordinate %v,%v", lat, lon)
	}

	return models.Coordinate{Lat: lat, Lng: lon}, nil
}
