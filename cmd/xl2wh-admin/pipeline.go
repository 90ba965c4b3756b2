// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/ManuGH/xl2wh/internal/etl"
	"github.com/ManuGH/xl2wh/internal/kpi"
)

// ETL runs pipeline stages directly against the database, bypassing the
// daemon's job queue. Meant for reprocessing and recovery, not routine use.
func ETL() cli.Command {
	return cli.Command{
		Name:  "etl",
		Usage: "run ETL stages against the database directly",
		Subcommands: []cli.Command{
			etlRun(),
		},
	}
}

func etlRun() cli.Command {
	return cli.Command{
		Name:  "run",
		Usage: "load one staged batch into the warehouse",
		Flags: dbFlags(
			cli.Int64Flag{
				Name:  batchFlagName,
				Usage: "staged batch to load",
			},
			cli.StringSliceFlag{
				Name:  thresholdFlagName,
				Usage: "per-metric anomaly threshold override, metric=value (repeatable)",
			},
		),
		Before: requireBatchFlag,
		Action: func(c *cli.Context) error {
			thresholds, err := parseThresholds(c.StringSlice(thresholdFlagName))
			if err != nil {
				return err
			}
			st, err := openStores(c)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			runner := etl.NewRunner(st.staging, st.warehouse, 0, "")
			summary, err := runner.RunBatch(context.Background(), c.Int64(batchFlagName), thresholds)
			if err != nil {
				return errors.Wrap(err, "etl run")
			}
			return printJSON(summary)
		},
	}
}

// KPI manages metric definitions and recalculates results.
func KPI() cli.Command {
	return cli.Command{
		Name:  "kpi",
		Usage: "calculate KPI results and seed metric definitions",
		Subcommands: []cli.Command{
			kpiCalculate(),
			kpiSeed(),
		},
	}
}

func kpiCalculate() cli.Command {
	return cli.Command{
		Name:  "calculate",
		Usage: "evaluate all metric definitions for one batch",
		Flags: dbFlags(
			cli.Int64Flag{
				Name:  batchFlagName,
				Usage: "batch whose calculated facts are replaced",
			},
			cli.Int64SliceFlag{
				Name:  periodFlagName,
				Usage: "restrict to period key YYYYMM (repeatable, default all)",
			},
		),
		Before: requireBatchFlag,
		Action: func(c *cli.Context) error {
			st, err := openStores(c)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			engine := kpi.NewEngine(st.warehouse, nil)
			rows, err := engine.Calculate(context.Background(), c.Int64(batchFlagName), c.Int64Slice(periodFlagName))
			if err != nil {
				return errors.Wrap(err, "kpi calculate")
			}
			fmt.Printf("wrote %d result rows\n", rows)
			return nil
		},
	}
}

func kpiSeed() cli.Command {
	return cli.Command{
		Name:  "seed",
		Usage: "load metric definitions from an HCL file into the warehouse",
		Flags: dbFlags(
			cli.StringFlag{
				Name:  fileFlagName,
				Usage: "path to the definitions file",
			},
		),
		Before: requireStringFlag(fileFlagName),
		Action: func(c *cli.Context) error {
			st, err := openStores(c)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			n, err := kpi.SeedDefinitions(context.Background(), st.warehouse, c.String(fileFlagName))
			if err != nil {
				return errors.Wrap(err, "seed definitions")
			}
			fmt.Printf("seeded %d metric definitions\n", n)
			return nil
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
