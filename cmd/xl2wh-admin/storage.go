// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/ManuGH/xl2wh/internal/archive"
	"github.com/ManuGH/xl2wh/internal/fsutil"
	"github.com/ManuGH/xl2wh/internal/persistence/sqlite"
)

// Batch inspects staged batches without going through the API.
func Batch() cli.Command {
	return cli.Command{
		Name:  "batch",
		Usage: "inspect staged upload batches",
		Subcommands: []cli.Command{
			batchStatus(),
		},
	}
}

func batchStatus() cli.Command {
	return cli.Command{
		Name:  "status",
		Usage: "print one batch record as JSON",
		Flags: dbFlags(
			cli.Int64Flag{
				Name:  batchFlagName,
				Usage: "batch to inspect",
			},
		),
		Before: requireBatchFlag,
		Action: func(c *cli.Context) error {
			st, err := openStores(c)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			b, err := st.staging.GetBatch(context.Background(), c.Int64(batchFlagName))
			if err != nil {
				return errors.Wrap(err, "get batch")
			}
			return printJSON(b)
		},
	}
}

// DB checks database files on disk.
func DB() cli.Command {
	return cli.Command{
		Name:  "db",
		Usage: "check the SQLite database",
		Subcommands: []cli.Command{
			dbVerify(),
		},
	}
}

func dbVerify() cli.Command {
	return cli.Command{
		Name:  "verify",
		Usage: "run a SQLite integrity check",
		Flags: dbFlags(
			cli.StringFlag{
				Name:  modeFlagName,
				Usage: "check mode, quick or full",
				Value: "quick",
			},
		),
		Action: func(c *cli.Context) error {
			path := c.String(dbFlagName)
			if err := fsutil.IsRegularFile(path); err != nil {
				return errors.Wrapf(err, "database %s", path)
			}
			findings, err := sqlite.VerifyIntegrity(path, c.String(modeFlagName))
			if err != nil {
				return errors.Wrap(err, "verify")
			}
			if len(findings) > 0 {
				for _, f := range findings {
					fmt.Fprintln(os.Stderr, f)
				}
				return errors.Errorf("%s: integrity check reported %d findings", path, len(findings))
			}
			fmt.Printf("%s: integrity ok\n", path)
			return nil
		},
	}
}

// Archive retrieves archived workbooks.
func Archive() cli.Command {
	return cli.Command{
		Name:  "archive",
		Usage: "access the workbook archive",
		Subcommands: []cli.Command{
			archiveFetch(),
		},
	}
}

func archiveFetch() cli.Command {
	return cli.Command{
		Name:  "fetch",
		Usage: "download one archived workbook",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  datasetFlagName,
				Usage: "dataset the file was uploaded under",
			},
			cli.Int64Flag{
				Name:  batchFlagName,
				Usage: "batch the file belongs to",
			},
			cli.StringFlag{
				Name:  fileFlagName,
				Usage: "archived file name",
			},
			cli.StringFlag{
				Name:  joinFlagNames(outputFlagName, "o"),
				Usage: "destination path (default: the file name, - for stdout)",
			},
			cli.StringFlag{
				Name:   backendFlagName,
				Usage:  "archive backend, local or s3",
				Value:  "local",
				EnvVar: "XL2WH_ARCHIVE_BACKEND",
			},
			cli.StringFlag{
				Name:   pathFlagName,
				Usage:  "root directory of the local archive",
				Value:  "/data/archive",
				EnvVar: "XL2WH_ARCHIVE_PATH",
			},
			cli.StringFlag{
				Name:   bucketFlagName,
				Usage:  "S3 bucket of the archive",
				EnvVar: "XL2WH_ARCHIVE_BUCKET",
			},
			cli.StringFlag{
				Name:   prefixFlagName,
				Usage:  "key prefix inside the archive",
				Value:  "xl2wh",
				EnvVar: "XL2WH_ARCHIVE_PREFIX",
			},
			cli.StringFlag{
				Name:   regionFlagName,
				Usage:  "AWS region for the s3 backend",
				Value:  "us-east-1",
				EnvVar: "AWS_REGION",
			},
		},
		Before: func(c *cli.Context) error {
			if err := requireStringFlag(datasetFlagName)(c); err != nil {
				return err
			}
			if err := requireBatchFlag(c); err != nil {
				return err
			}
			return requireStringFlag(fileFlagName)(c)
		},
		Action: func(c *cli.Context) error {
			ctx := context.Background()
			store, err := archive.New(ctx, archive.Options{
				Backend:   c.String(backendFlagName),
				Path:      c.String(pathFlagName),
				Bucket:    c.String(bucketFlagName),
				Prefix:    c.String(prefixFlagName),
				Region:    c.String(regionFlagName),
				AWSKey:    os.Getenv("AWS_ACCESS_KEY_ID"),
				AWSSecret: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			})
			if err != nil {
				return errors.Wrap(err, "open archive")
			}
			if store == nil {
				return errors.New("archive backend is off")
			}

			key := archive.Key(c.String(datasetFlagName), c.Int64(batchFlagName), c.String(fileFlagName))
			rc, err := store.Open(ctx, key)
			if err != nil {
				return errors.Wrapf(err, "fetch %s", key)
			}
			defer func() { _ = rc.Close() }()

			dest := c.String(outputFlagName)
			if dest == "" {
				dest = filepath.Base(c.String(fileFlagName))
			}
			if dest == "-" {
				_, err := io.Copy(os.Stdout, rc)
				return errors.Wrap(err, "write stdout")
			}

			out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
			if err != nil {
				return errors.Wrap(err, "create output")
			}
			n, err := io.Copy(out, rc)
			if cerr := out.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return errors.Wrapf(err, "write %s", dest)
			}
			fmt.Printf("wrote %s (%d bytes)\n", dest, n)
			return nil
		},
	}
}
