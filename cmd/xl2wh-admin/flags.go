// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

// Flag name constants shared across subcommands.
const (
	hostFlagName      = "host"
	tokenFlagName     = "token"
	dbFlagName        = "db"
	batchFlagName     = "batch"
	fileFlagName      = "file"
	outputFlagName    = "output"
	datasetFlagName   = "dataset"
	periodFlagName    = "period"
	thresholdFlagName = "threshold"
	modeFlagName      = "mode"
	backendFlagName   = "backend"
	pathFlagName      = "path"
	bucketFlagName    = "bucket"
	prefixFlagName    = "prefix"
	regionFlagName    = "region"
)

func joinFlagNames(ids ...string) string { return strings.Join(ids, ", ") }

// hostFlags configure commands that talk to a running daemon over HTTP.
func hostFlags(flags ...cli.Flag) []cli.Flag {
	return append(flags,
		cli.StringFlag{
			Name:   hostFlagName,
			Usage:  "base URL of the running daemon",
			Value:  "http://localhost:8080",
			EnvVar: "XL2WH_HOST",
		},
		cli.StringFlag{
			Name:   tokenFlagName,
			Usage:  "API token for guarded endpoints",
			EnvVar: "XL2WH_API_TOKEN",
		},
	)
}

// dbFlags configure commands that operate on the SQLite database directly.
func dbFlags(flags ...cli.Flag) []cli.Flag {
	return append(flags, cli.StringFlag{
		Name:   joinFlagNames(dbFlagName, "database"),
		Usage:  "path to the xl2wh SQLite database",
		Value:  "/data/xl2wh.db",
		EnvVar: "XL2WH_DB_PATH",
	})
}

// requireBatchFlag rejects commands invoked without a positive --batch id.
func requireBatchFlag(c *cli.Context) error {
	if c.Int64(batchFlagName) <= 0 {
		return errors.Errorf("--%s is required and must be positive", batchFlagName)
	}
	return nil
}

func requireStringFlag(name string) func(*cli.Context) error {
	return func(c *cli.Context) error {
		if strings.TrimSpace(c.String(name)) == "" {
			return errors.Errorf("--%s is required", name)
		}
		return nil
	}
}
