package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

func locateCommand() *cli.Command {
	return &cli.Command{
		Name:      "locate",
		Usage:     "Print the coordinates of one or more postal codes",
		ArgsUsage: "[POSTAL_CODE...]",
		Flags:     locationFlags(),
		Action:    locateAction,
	}
}

func locateAction(c *cli.Context) error {
	logger := newLogger(c)

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	codes := c.Args().Slice()
	if len(codes) == 0 {
		codes = []string{cfg.PostalCode}
	}

	geocoder := newGeocoder(c, logger)

	t := newTable(c.App.Writer, "Postal code", "Country", "Latitude", "Longitude")
	for _, code := range codes {
		coord, err := geocoder.Resolve(c.Context, code, cfg.Country)
		if err != nil {
			return fmt.Errorf("could not find the location for postal code %s: %w", code, err)
		}
		t.Append([]string{
			code,
			cfg.Country,
			formatFloat(coord.Latitude),
			formatFloat(coord.Longitude),
		})
	}
	t.Render()

	return nil
}
