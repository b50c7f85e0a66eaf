// Package geocode resolves postal codes and place names to coordinates using
// OpenStreetMap's Nominatim service.
package geocode

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
	"strings"
	"time"

	"github.com/muesli/gominatim"
	"github.com/patrickmn/go-cache"
)

const (
	DefaultBaseURL   = "https://nominatim.openstreetmap.org/search"
	DefaultServer    = "https://nominatim.openstreetmap.org/"
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "gaspreis/1.0 (https://github.com/rubiojr/gaspreis)"

	cacheExpiry  = 30 * time.Minute
	cacheCleanup = 90 * time.Minute

	// gominatim reports an empty result list as an error with this text.
	gominatimNothingFound = "Nothing found"
)

// Coordinate is a WGS84 position in decimal degrees.
type Coordinate struct {
	Latitude  float64
	Longitude float64
}

// Place is a free text search result.
type Place struct {
	Coordinate
	DisplayName string
}

// ErrLookupFailed is matched by ErrNotFound, ErrInvalidCoordinates and
// *StatusError.
var ErrLookupFailed = errors.New("location lookup failed")

var (
	ErrNotFound           error = &lookupError{msg: "no location found"}
	ErrInvalidCoordinates error = &lookupError{msg: "nominatim returned invalid coordinates"}
)

type lookupError struct {
	msg string
}

func (e *lookupError) Error() string {
	return e.msg
}

func (e *lookupError) Unwrap() error {
	return ErrLookupFailed
}

// StatusError is returned when Nominatim answers with a non-200 status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unable to fetch data (status code: %d)", e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return ErrLookupFailed
}

// HTTPClient defines the interface for making HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Nominatim geocodes through a Nominatim search endpoint.
type Nominatim struct {
	client    HTTPClient
	baseURL   string
	server    string
	userAgent string
	log       *slog.Logger
	cache     *cache.Cache
}

// Option configures a Nominatim geocoder.
type Option func(*Nominatim)

// WithBaseURL sets the search endpoint used for postal code lookups.
func WithBaseURL(u string) Option {
	return func(n *Nominatim) {
		n.baseURL = u
	}
}

// WithServer sets the server root used for free text searches.
func WithServer(u string) Option {
	return func(n *Nominatim) {
		n.server = u
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c HTTPClient) Option {
	return func(n *Nominatim) {
		n.client = c
	}
}

// WithLogger sets the logger. Logging is discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(n *Nominatim) {
		n.log = l
	}
}

// New creates a Nominatim geocoder using the public endpoint.
func New(opts ...Option) *Nominatim {
	n := &Nominatim{
		client: &http.Client{
			Timeout: DefaultTimeout,
		},
		baseURL:   DefaultBaseURL,
		server:    DefaultServer,
		userAgent: DefaultUserAgent,
		log:       slog.New(slog.DiscardHandler),
		cache:     cache.New(cacheExpiry, cacheCleanup),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Resolve returns the coordinate of the first match for postalCode in the
// given country. A query with no match returns ErrNotFound; a non-200 answer
// returns a *StatusError. One request is made per distinct query.
func (n *Nominatim) Resolve(ctx context.Context, postalCode, countryCode string) (Coordinate, error) {
	key := strings.ToLower(countryCode) + ":" + postalCode
	if c, found := n.cache.Get(key); found {
		n.log.DebugContext(ctx, "Using cached coordinate", "key", key)
		return c.(Coordinate), nil
	}

	reqURL, err := url.Parse(n.baseURL)
	if err != nil {
		return Coordinate{}, fmt.Errorf("error parsing base URL: %w", err)
	}
	query := reqURL.Query()
	query.Set("postalcode", postalCode)
	query.Set("country", countryCode)
	query.Set("format", "json")
	query.Set("limit", "1")
	reqURL.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), http.NoBody)
	if err != nil {
		return Coordinate{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("User-Agent", n.userAgent)

	n.log.DebugContext(ctx, "Geocoding postal code", "postal_code", postalCode, "country", countryCode)
	resp, err := n.client.Do(req)
	if err != nil {
		return Coordinate{}, fmt.Errorf("error executing geocoding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		n.log.ErrorContext(ctx, "Nominatim API error", "status", resp.StatusCode)
		return Coordinate{}, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Coordinate{}, fmt.Errorf("error reading response body: %w", err)
	}

	var results []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.Unmarshal(body, &results); err != nil {
		return Coordinate{}, fmt.Errorf("error decoding nominatim response: %w", err)
	}

	if len(results) == 0 {
		n.log.WarnContext(ctx, "No data found for postal code", "postal_code", postalCode, "country", countryCode)
		return Coordinate{}, fmt.Errorf("%w for postal code %s", ErrNotFound, postalCode)
	}

	c, err := parseCoordinate(results[0].Lat, results[0].Lon)
	if err != nil {
		return Coordinate{}, err
	}

	n.cache.Set(key, c, cache.DefaultExpiration)
	return c, nil
}

// Search resolves a free text location such as "Alexanderplatz, Berlin".
//
// Requests go through gominatim, which uses http.Get against the server set
// with WithServer. The context, WithHTTPClient, the timeout and the User-Agent
// do not apply to them.
func (n *Nominatim) Search(ctx context.Context, location string) (Place, error) {
	if p, found := n.cache.Get("q:" + location); found {
		return p.(Place), nil
	}

	gominatim.SetServer(n.server)
	qry := gominatim.SearchQuery{
		Q: location,
	}

	n.log.DebugContext(ctx, "Searching location", "location", location)
	results, err := qry.Get()
	if err != nil && !strings.Contains(err.Error(), gominatimNothingFound) {
		return Place{}, fmt.Errorf("geocoding error: %w", err)
	}
	if len(results) == 0 {
		n.log.WarnContext(ctx, "No results found for location", "location", location)
		return Place{}, fmt.Errorf("%w for location: %s", ErrNotFound, location)
	}

	c, err := parseCoordinate(results[0].Lat, results[0].Lon)
	if err != nil {
		return Place{}, err
	}

	p := Place{Coordinate: c, DisplayName: results[0].DisplayName}
	n.cache.Set("q:"+location, p, cache.DefaultExpiration)
	return p, nil
}

func parseCoordinate(latStr, lonStr string) (Coordinate, error) {
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("%w: invalid latitude %q", ErrInvalidCoordinates, latStr)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("%w: invalid longitude %q", ErrInvalidCoordinates, lonStr)
	}
	return Coordinate{Latitude: lat, Longitude: lon}, nil
}
