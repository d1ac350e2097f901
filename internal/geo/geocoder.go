package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/doyensec/safeurl"

	"github.com/merkelview/merkel-server/internal/metrics"
	"github.com/merkelview/merkel-server/internal/model"
)

// Result is a normalized geocoder response. Unmatched address components
// stay empty; parsing never fails on a missing part.
type Result struct {
	Latitude         float64
	Longitude        float64
	FormattedAddress string
	City             string
	State            string
	Country          string
	PostalCode       string
}

// Geocoder resolves addresses to coordinates and back.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (Result, error)
	ReverseGeocode(ctx context.Context, lat, lng float64) (Result, error)
}

// ErrUnavailable marks a geocoding service outage, as opposed to an address
// that simply has no match.
var ErrUnavailable = model.NewGeocodeError("geocoding service unavailable")

// ErrNotFound is returned when the service answered but found no match.
var ErrNotFound = model.NewGeocodeError("address not found")

// Client is a Geocoder backed by a Nominatim-compatible HTTP API.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	metrics   metrics.Recorder
}

var _ Geocoder = (*Client)(nil)

// NewClient creates a geocoding client. The outbound HTTP client is
// SSRF-hardened: only http/https on standard ports, public addresses only.
func NewClient(baseURL, userAgent string, timeout time.Duration, rec metrics.Recorder) *Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()

	return &Client{
		baseURL:   baseURL,
		userAgent: userAgent,
		http:      safeurl.Client(config).Client,
		metrics:   rec,
	}
}

// NewClientWithHTTP injects a custom HTTP client (used in tests).
func NewClientWithHTTP(baseURL, userAgent string, httpClient *http.Client, rec metrics.Recorder) *Client {
	return &Client{baseURL: baseURL, userAgent: userAgent, http: httpClient, metrics: rec}
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Address     struct {
		City     string `json:"city"`
		Town     string `json:"town"`
		Village  string `json:"village"`
		State    string `json:"state"`
		StateISO string `json:"ISO3166-2-lvl4"`
		Country  string `json:"country"`
		Postcode string `json:"postcode"`
	} `json:"address"`
}

// Geocode forward-geocodes a free-text address.
func (c *Client) Geocode(ctx context.Context, address string) (Result, error) {
	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("addressdetails", "1")
	q.Set("limit", "1")

	var places []nominatimPlace
	if err := c.get(ctx, "/search?"+q.Encode(), &places); err != nil {
		return Result{}, err
	}
	if len(places) == 0 {
		c.metrics.RecordGeocodeFailure()
		return Result{}, ErrNotFound
	}

	return parsePlace(places[0])
}

// ReverseGeocode resolves coordinates to the nearest address.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lng float64) (Result, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
	q.Set("format", "json")
	q.Set("addressdetails", "1")

	var place nominatimPlace
	if err := c.get(ctx, "/reverse?"+q.Encode(), &place); err != nil {
		return Result{}, err
	}
	if place.Lat == "" && place.DisplayName == "" {
		c.metrics.RecordGeocodeFailure()
		return Result{}, ErrNotFound
	}

	return parsePlace(place)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	start := time.Now()
	defer func() {
		c.metrics.RecordGeocodeLatency(time.Since(start))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build geocode request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordGeocodeFailure()
		return ErrUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.RecordGeocodeFailure()
		return ErrUnavailable
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.metrics.RecordGeocodeFailure()
		return ErrUnavailable
	}

	if err := json.Unmarshal(body, out); err != nil {
		c.metrics.RecordGeocodeFailure()
		return ErrUnavailable
	}

	return nil
}

func parsePlace(p nominatimPlace) (Result, error) {
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return Result{}, ErrUnavailable
	}
	lng, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return Result{}, ErrUnavailable
	}

	city := p.Address.City
	if city == "" {
		city = p.Address.Town
	}
	if city == "" {
		city = p.Address.Village
	}

	// Prefer the short-form region code ("US-CA" -> "CA") over the full
	// state name when the geocoder provides one.
	state := p.Address.State
	if iso := p.Address.StateISO; iso != "" {
		if dash := strings.LastIndex(iso, "-"); dash >= 0 && dash < len(iso)-1 {
			state = iso[dash+1:]
		}
	}

	return Result{
		Latitude:         lat,
		Longitude:        lng,
		FormattedAddress: p.DisplayName,
		City:             city,
		State:            state,
		Country:          p.Address.Country,
		PostalCode:       p.Address.Postcode,
	}, nil
}
