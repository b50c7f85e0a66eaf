package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/rubiojr/gaspreis/internal/config"
	"github.com/rubiojr/gaspreis/internal/export"
	"github.com/rubiojr/gaspreis/internal/pricedb"
	"github.com/rubiojr/gaspreis/internal/table"
	"github.com/rubiojr/gaspreis/pkg/api"
	"github.com/rubiojr/gaspreis/pkg/geocode"
	"github.com/urfave/cli/v2"
)

// Flags shared by prices and locate.
func locationFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "Settings file with KEY=value lines",
			Value: config.DefaultFile,
		},
		&cli.StringFlag{
			Name:  "country",
			Usage: "Country code of the postal code (default: de)",
		},
		&cli.StringFlag{
			Name:   "geocode-url",
			Usage:  "Nominatim search endpoint",
			Value:  geocode.DefaultBaseURL,
			Hidden: true,
		},
		&cli.StringFlag{
			Name:   "nominatim-server",
			Usage:  "Nominatim server used for free text searches",
			Value:  geocode.DefaultServer,
			Hidden: true,
		},
	}
}

func pricesCommand() *cli.Command {
	flags := append(locationFlags(),
		&cli.StringFlag{
			Name:    "postal-code",
			Aliases: []string{"p"},
			Usage:   "Postal code to search around (default: 10115)",
		},
		&cli.StringFlag{
			Name:  "location",
			Usage: "Free text location to search around, instead of a postal code",
		},
		&cli.IntFlag{
			Name:    "radius",
			Aliases: []string{"r"},
			Usage:   "Search radius in kilometers (default: 5)",
		},
		&cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"n"},
			Usage:   "Number of stations to print, -1 for all (default: 5)",
		},
		&cli.StringFlag{
			Name:  "sort",
			Usage: "Sort stations by dist or price (default: dist)",
		},
		&cli.StringFlag{
			Name:    "api-key",
			Usage:   "Tankerkönig API key",
			EnvVars: []string{"TANKERKOENIG_API_KEY", "API_KEY"},
		},
		&cli.StringFlag{
			Name:  "db",
			Usage: "Record the lookup in this database file",
		},
		&cli.StringFlag{
			Name:  "gpx",
			Usage: "Write the listed stations as GPX waypoints to this file",
		},
		&cli.StringFlag{
			Name:   "api-url",
			Usage:  "Tankerkönig list endpoint",
			Value:  api.DefaultBaseURL,
			Hidden: true,
		},
	)

	return &cli.Command{
		Name:   "prices",
		Usage:  "List gas prices around a postal code",
		Flags:  flags,
		Action: pricesAction,
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	if c.IsSet("api-key") {
		cfg.APIKey = c.String("api-key")
	}
	if c.IsSet("postal-code") {
		cfg.PostalCode = c.String("postal-code")
	}
	if c.IsSet("country") {
		cfg.Country = c.String("country")
	}
	if c.IsSet("radius") {
		cfg.Radius = c.Int("radius")
	}
	if c.IsSet("limit") {
		cfg.Limit = c.Int("limit")
	}
	if c.IsSet("sort") {
		cfg.Sort = c.String("sort")
	}
	return cfg, nil
}

func newGeocoder(c *cli.Context, logger *slog.Logger) *geocode.Nominatim {
	return geocode.New(
		geocode.WithHTTPClient(newHTTPClient(logger)),
		geocode.WithLogger(logger),
		geocode.WithBaseURL(c.String("geocode-url")),
		geocode.WithServer(c.String("nominatim-server")),
	)
}

func pricesAction(c *cli.Context) error {
	ctx := c.Context
	logger := newLogger(c)

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	sortMode, err := api.ParseSortMode(cfg.Sort)
	if err != nil {
		return err
	}
	if err := api.ValidateRadius(cfg.Radius); err != nil {
		return err
	}

	geocoder := newGeocoder(c, logger)
	var origin geocode.Coordinate
	if loc := c.String("location"); loc != "" {
		place, err := geocoder.Search(ctx, loc)
		if err != nil {
			return fmt.Errorf("error loading lat long: %w", err)
		}
		logger.Info("Location found", "name", place.DisplayName)
		origin = place.Coordinate
		cfg.PostalCode = ""
	} else {
		origin, err = geocoder.Resolve(ctx, cfg.PostalCode, cfg.Country)
		if err != nil {
			return fmt.Errorf("error loading lat long: %w", err)
		}
	}

	client := api.NewFuelPriceAPI(cfg.APIKey,
		api.WithHTTPClient(newHTTPClient(logger)),
		api.WithLogger(logger),
		api.WithBaseURL(c.String("api-url")),
	)
	list, err := client.FetchStations(ctx, origin.Latitude, origin.Longitude, cfg.Radius, sortMode)
	if err != nil {
		return fmt.Errorf("unable to fetch gas prices: %w", err)
	}

	if err := table.Render(c.App.Writer, list.Stations, cfg.Limit); err != nil {
		return err
	}

	if dbPath := c.String("db"); dbPath != "" {
		if err := recordSearch(ctx, dbPath, logger, cfg, origin, sortMode, list.Raw); err != nil {
			return err
		}
	}

	if gpxPath := c.String("gpx"); gpxPath != "" {
		shown := list.Stations
		if cfg.Limit >= 0 && cfg.Limit < len(shown) {
			shown = shown[:cfg.Limit]
		}
		if err := writeGPXFile(gpxPath, origin, shown); err != nil {
			return err
		}
	}

	return nil
}

func recordSearch(ctx context.Context, dbPath string, logger *slog.Logger, cfg *config.Config, origin geocode.Coordinate, sortMode api.SortMode, raw []byte) error {
	storage, err := pricedb.NewStorage(ctx, dbPath, logger)
	if err != nil {
		return fmt.Errorf("error initializing storage: %w", err)
	}
	defer storage.Close()

	_, err = storage.SaveSearch(ctx, pricedb.Search{
		PostalCode: cfg.PostalCode,
		Country:    cfg.Country,
		Latitude:   origin.Latitude,
		Longitude:  origin.Longitude,
		Radius:     cfg.Radius,
		Sort:       string(sortMode),
	}, raw)
	if err != nil {
		return fmt.Errorf("error recording search: %w", err)
	}
	return nil
}

func writeGPXFile(path string, origin geocode.Coordinate, stations []api.Station) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating GPX file: %w", err)
	}
	if err := export.WriteGPX(f, origin, stations); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
