// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package archive keeps every accepted workbook byte-for-byte in a pail
// bucket, a local directory by default or S3 when configured.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/evergreen-ci/pail"

	"github.com/ManuGH/xl2wh/internal/fsutil"
	"github.com/ManuGH/xl2wh/internal/log"
)

// Options selects and configures the archive backend.
type Options struct {
	Backend   string // "local", "s3" or "off"
	Path      string // root directory for the local backend
	Bucket    string // bucket name for the s3 backend
	Prefix    string
	Region    string
	AWSKey    string
	AWSSecret string
}

// Store writes uploaded workbooks into the configured bucket.
type Store struct {
	bucket pail.Bucket

	// localRoot and prefix confine reads on the local backend; both stay
	// empty for S3, where a traversal key is inert.
	localRoot string
	prefix    string
}

// New opens the configured archive. Backend "off" (or empty) returns a nil
// store, which callers treat as archiving disabled.
func New(ctx context.Context, opts Options) (*Store, error) {
	var (
		bucket    pail.Bucket
		localRoot string
		err       error
	)
	switch opts.Backend {
	case "", "off":
		return nil, nil
	case "local":
		if err := os.MkdirAll(opts.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create archive directory: %w", err)
		}
		localRoot = opts.Path
		bucket, err = pail.NewLocalBucket(pail.LocalOptions{
			Path:   opts.Path,
			Prefix: opts.Prefix,
		})
	case "s3":
		maxRetries := 10
		bucket, err = pail.NewS3Bucket(ctx, pail.S3Options{
			Name:        opts.Bucket,
			Prefix:      opts.Prefix,
			Region:      opts.Region,
			Permissions: pail.S3PermissionsPrivate,
			Credentials: pail.CreateAWSCredentials(opts.AWSKey, opts.AWSSecret, ""),
			MaxRetries:  &maxRetries,
		})
	default:
		return nil, fmt.Errorf("unknown archive backend %q", opts.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open archive bucket: %w", err)
	}
	if err := bucket.Check(ctx); err != nil {
		return nil, fmt.Errorf("check archive bucket: %w", err)
	}

	logger := log.WithComponent("archive")
	logger.Info().
		Str("backend", opts.Backend).
		Str("prefix", opts.Prefix).
		Msg("archive.ready")
	return &Store{bucket: bucket, localRoot: localRoot, prefix: opts.Prefix}, nil
}

// Key names one archived workbook. Client-supplied path segments in the
// file name are stripped.
func Key(dataset string, batchID int64, fileName string) string {
	return fmt.Sprintf("%s/%d/%s", dataset, batchID, path.Base(fileName))
}

// Save writes one workbook under Key. Uploads do not depend on the archive;
// callers log failures and move on.
func (s *Store) Save(ctx context.Context, dataset string, batchID int64, fileName string, content []byte) error {
	key := Key(dataset, batchID, fileName)
	if err := s.bucket.Put(ctx, key, bytes.NewReader(content)); err != nil {
		return fmt.Errorf("archive %s: %w", key, err)
	}
	return nil
}

// Open retrieves an archived workbook by key. Keys come from API and CLI
// callers, so on the local backend they are confined under the archive
// root before the bucket sees them.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if s.localRoot != "" {
		// Join would swallow a leading slash before confinement sees it.
		if filepath.IsAbs(key) {
			return nil, fmt.Errorf("archive key %q rejected: absolute path", key)
		}
		if _, err := fsutil.ResolveUnder(s.localRoot, filepath.Join(s.prefix, key)); err != nil {
			return nil, fmt.Errorf("archive key %q rejected: %w", key, err)
		}
	}
	return s.bucket.Get(ctx, key)
}
