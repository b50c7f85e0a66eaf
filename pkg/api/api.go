// Package api provides types and functions to interact with the Tankerkönig
// fuel price API and fetch the gas stations around a location.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	DefaultBaseURL  = "https://creativecommons.tankerkoenig.de/json/list.php"
	DefaultTimeout  = 30 * time.Second
	DefaultRadiusKm = 5
	MaxRadiusKm     = 25
)

// SortMode selects the server side ordering of the station list.
type SortMode string

const (
	SortByDistance SortMode = "dist"
	SortByPrice    SortMode = "price"
)

// ParseSortMode validates a user supplied sort mode. An empty string selects
// SortByDistance.
func ParseSortMode(s string) (SortMode, error) {
	switch SortMode(s) {
	case "", SortByDistance:
		return SortByDistance, nil
	case SortByPrice:
		return SortByPrice, nil
	default:
		return "", fmt.Errorf("invalid sort mode %q: must be %q or %q", s, SortByDistance, SortByPrice)
	}
}

// ValidateRadius checks that km is within the range the service accepts.
func ValidateRadius(km int) error {
	if km < 1 || km > MaxRadiusKm {
		return fmt.Errorf("invalid radius %d km: must be between 1 and %d", km, MaxRadiusKm)
	}
	return nil
}

// ErrFetchFailed is matched by every error reporting that no station data
// could be obtained.
var ErrFetchFailed = errors.New("unable to fetch gas prices")

// StatusError is returned when the service answers with a non-200 status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return ErrFetchFailed
}

// ServiceError is returned when the service answers with ok=false.
type ServiceError struct {
	Message string
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return "service reported failure"
	}
	return fmt.Sprintf("service reported failure: %s", e.Message)
}

func (e *ServiceError) Unwrap() error {
	return ErrFetchFailed
}

// HTTPClient is the subset of *http.Client used by FuelPriceAPI.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// FuelPriceAPI provides methods to fetch fuel price data from Tankerkönig.
type FuelPriceAPI struct {
	baseURL    string
	apiKey     string
	httpClient HTTPClient
	log        *slog.Logger
}

// Option configures a FuelPriceAPI.
type Option func(*FuelPriceAPI)

// WithBaseURL points the client at a different list.php endpoint.
func WithBaseURL(u string) Option {
	return func(api *FuelPriceAPI) {
		api.baseURL = u
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c HTTPClient) Option {
	return func(api *FuelPriceAPI) {
		api.httpClient = c
	}
}

// WithLogger sets the logger. Logging is discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(api *FuelPriceAPI) {
		api.log = l
	}
}

// NewFuelPriceAPI creates a new FuelPriceAPI client with default settings.
func NewFuelPriceAPI(apiKey string, opts ...Option) *FuelPriceAPI {
	api := &FuelPriceAPI{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		log: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(api)
	}
	return api
}

// FetchStations fetches the stations within radiusKm of lat/lng, ordered by
// the service according to sort. The station order is never changed.
func (api *FuelPriceAPI) FetchStations(ctx context.Context, lat, lng float64, radiusKm int, sort SortMode) (*StationList, error) {
	if sort == "" {
		sort = SortByDistance
	}

	reqURL, err := url.Parse(api.baseURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing base URL: %w", err)
	}
	query := reqURL.Query()
	query.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	query.Set("lng", strconv.FormatFloat(lng, 'f', -1, 64))
	query.Set("rad", strconv.Itoa(radiusKm))
	query.Set("sort", string(sort))
	query.Set("type", "all")
	query.Set("apikey", api.apiKey)
	reqURL.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	api.log.DebugContext(ctx, "Fetching stations", "lat", lat, "lng", lng, "rad", radiusKm, "sort", sort)
	resp, err := api.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		api.log.ErrorContext(ctx, "Fuel price API error", "status", resp.StatusCode)
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	var list StationList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("error unmarshaling JSON: %w", err)
	}

	if !list.OK {
		api.log.ErrorContext(ctx, "Fuel price API reported failure", "message", list.Message)
		return nil, &ServiceError{Message: list.Message}
	}

	if list.Stations == nil {
		list.Stations = []Station{}
	}
	list.Raw = body

	api.log.DebugContext(ctx, "Fetched stations", "count", len(list.Stations))
	return &list, nil
}
