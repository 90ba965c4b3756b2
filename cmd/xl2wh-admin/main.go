// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/urfave/cli"

	"github.com/ManuGH/xl2wh/internal/version"
)

func main() {
	app := buildApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func buildApp() *cli.App {
	app := cli.NewApp()

	app.Name = "xl2wh-admin"
	app.Usage = "operate an xl2wh import daemon"
	app.Version = version.Version

	app.Commands = []cli.Command{
		Status(),
		ETL(),
		KPI(),
		Batch(),
		DB(),
		Archive(),
	}

	// Global options; subcommands read everything else from their own flags.
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "level",
			Value: "info",
			Usage: "minimum visible log level: 'debug|info|warn|error'",
		},
	}

	app.Before = func(c *cli.Context) error {
		lvl, err := zerolog.ParseLevel(c.String("level"))
		if err != nil {
			return errors.Wrap(err, "parse log level")
		}
		zerolog.SetGlobalLevel(lvl)
		return nil
	}

	return app
}
