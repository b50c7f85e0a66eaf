package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/rubiojr/gaspreis/internal/pricedb"
	"github.com/urfave/cli/v2"
)

const (
	defaultDBPath  = "gaspreis.db"
	metersPerKm    = 1000.0
	historyDateFmt = "2006-01-02 15:04"
)

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recorded price lookups",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "db",
				Usage: "Database file",
				Value: defaultDBPath,
			},
			&cli.StringFlag{
				Name:  "fuel",
				Usage: "Fuel to rank by: diesel, e5 or e10",
				Value: "e5",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Number of rows per table",
				Value:   10,
			},
			&cli.Float64Flag{
				Name:  "lat",
				Usage: "Latitude to list the latest recorded prices around",
			},
			&cli.Float64Flag{
				Name:  "long",
				Usage: "Longitude to list the latest recorded prices around",
			},
			&cli.Float64Flag{
				Name:    "radius",
				Aliases: []string{"r"},
				Usage:   "Radius in kilometers for --lat/--long",
				Value:   5.0,
			},
			&cli.IntFlag{
				Name:  "prune-days",
				Usage: "Delete lookups older than this many days before listing",
			},
		},
		Action: historyAction,
	}
}

func historyAction(c *cli.Context) error {
	ctx := c.Context
	w := c.App.Writer
	fuel := c.String("fuel")
	limit := c.Int("limit")

	if c.IsSet("lat") != c.IsSet("long") {
		return errors.New("--lat and --long must be used together")
	}

	storage, err := pricedb.NewStorage(ctx, c.String("db"), newLogger(c))
	if err != nil {
		return fmt.Errorf("error initializing storage: %w", err)
	}
	defer storage.Close()

	if days := c.Int("prune-days"); days > 0 {
		n, err := storage.DeleteOldSearches(ctx, days)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Deleted %d lookups older than %d days\n\n", n, days)
	}

	searches, err := storage.Searches(ctx, limit)
	if err != nil {
		return err
	}
	if len(searches) == 0 {
		fmt.Fprintln(w, "No lookups recorded.")
		return nil
	}

	fmt.Fprintln(w, "Recent lookups:")
	t := newTable(w, "ID", "Date", "Postal code", "Latitude", "Longitude", "Radius (km)", "Sort", "Stations")
	for _, s := range searches {
		t.Append([]string{
			strconv.FormatInt(s.ID, 10),
			s.SearchedAt.Local().Format(historyDateFmt),
			s.PostalCode,
			formatFloat(s.Latitude),
			formatFloat(s.Longitude),
			strconv.Itoa(s.Radius),
			s.Sort,
			strconv.Itoa(s.Stations),
		})
	}
	t.Render()

	cheapest, err := storage.CheapestPrices(ctx, fuel, limit)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\nCheapest %s prices recorded:\n", fuel)
	renderRecords(w, cheapest, fuel, func(r *pricedb.PriceRecord) string {
		return formatOptional(r.Dist)
	})

	if c.IsSet("lat") && c.IsSet("long") {
		lat, lng, radius := c.Float64("lat"), c.Float64("long"), c.Float64("radius")
		nearby, err := storage.NearbyPrices(ctx, lat, lng, radius*metersPerKm)
		if err != nil {
			return fmt.Errorf("error fetching nearby stations: %w", err)
		}
		fmt.Fprintf(w, "\nLatest prices within %g km of %s, %s:\n", radius, formatFloat(lat), formatFloat(lng))
		if limit > 0 && len(nearby) > limit {
			nearby = nearby[:limit]
		}
		renderRecords(w, nearby, fuel, func(r *pricedb.PriceRecord) string {
			return fmt.Sprintf("%.2f", r.Distance/metersPerKm)
		})
	}

	return nil
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetHeader(header)
	t.SetAutoFormatHeaders(false)
	return t
}

func renderRecords(w io.Writer, records []pricedb.PriceRecord, fuel string, dist func(*pricedb.PriceRecord) string) {
	t := newTable(w, "Date", "Name", "Brand", fuel, "Distance (km)")
	for i := range records {
		r := &records[i]
		t.Append([]string{
			r.SearchedAt.Local().Format(historyDateFmt),
			r.Name,
			r.Brand,
			formatOptional(r.Price(fuel)),
			dist(r),
		})
	}
	t.Render()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatOptional(f *float64) string {
	if f == nil {
		return "N/A"
	}
	return formatFloat(*f)
}
