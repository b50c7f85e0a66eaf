// Package config loads the key-value settings file used by gaspreis.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	DefaultFile       = "tk.env"
	DefaultPostalCode = "10115"
	DefaultCountry    = "de"
	DefaultRadius     = 5
	DefaultLimit      = 5
	DefaultSort       = "dist"
)

// ErrMissingAPIKey is returned by Validate when no API key was configured.
var ErrMissingAPIKey = errors.New("missing API key: set API_KEY in the settings file or pass --api-key")

// Config holds the settings for a price lookup.
//
// Fields:
// - APIKey: Tankerkönig API key.
// - PostalCode, Country: location to search around.
// - Radius: search radius in km.
// - Limit: number of rows to print, negative for all.
// - Sort: "dist" or "price".
type Config struct {
	APIKey     string
	PostalCode string
	Country    string
	Radius     int
	Limit      int
	Sort       string
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		PostalCode: DefaultPostalCode,
		Country:    DefaultCountry,
		Radius:     DefaultRadius,
		Limit:      DefaultLimit,
		Sort:       DefaultSort,
	}
}

// Load reads path on top of the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("error reading settings file %s: %w", path, err)
	}

	if v, ok := values["API_KEY"]; ok {
		cfg.APIKey = v
	}
	if v, ok := values["POSTAL_CODE"]; ok && v != "" {
		cfg.PostalCode = v
	}
	if v, ok := values["COUNTRY"]; ok && v != "" {
		cfg.Country = v
	}
	if v, ok := values["SORT"]; ok && v != "" {
		cfg.Sort = v
	}
	if v, ok := values["RADIUS"]; ok && v != "" {
		cfg.Radius, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid RADIUS %q: %w", v, err)
		}
	}
	if v, ok := values["LIMIT"]; ok && v != "" {
		cfg.Limit, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid LIMIT %q: %w", v, err)
		}
	}

	return cfg, nil
}

// Validate checks the settings required before any network call.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.PostalCode == "" {
		return errors.New("missing postal code")
	}
	return nil
}
