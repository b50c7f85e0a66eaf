package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func newApp() *cli.App {
	return &cli.App{
		Name:           "gaspreis",
		Usage:          "Find the cheapest and nearest gas stations around a postal code",
		DefaultCommand: "prices",
		Writer:         os.Stdout,
		ErrWriter:      os.Stderr,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Log debug output and HTTP requests to stderr",
			},
		},
		Commands: []*cli.Command{
			pricesCommand(),
			locateCommand(),
			historyCommand(),
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stdout, "Error: %v\n", err)
		os.Exit(1)
	}
}
