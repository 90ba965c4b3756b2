// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package kpi

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ManuGH/xl2wh/internal/log"
	"github.com/ManuGH/xl2wh/internal/warehouse"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// LoadDefinitionsFile reads metric definitions from a YAML file with a
// top-level metrics list.
func LoadDefinitionsFile(path string) ([]warehouse.MetricDefinition, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied definitions path
	if err != nil {
		return nil, fmt.Errorf("read definitions: %w", err)
	}
	var file struct {
		Metrics []warehouse.MetricDefinition `yaml:"metrics"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse definitions: %w", err)
	}
	if len(file.Metrics) == 0 {
		return nil, fmt.Errorf("no metrics defined in %s", path)
	}
	return file.Metrics, nil
}

// SeedDefinitions loads a YAML definitions file into the warehouse and
// returns how many metrics it carried. Upserts are atomic: a bad file leaves
// the stored definitions untouched.
func SeedDefinitions(ctx context.Context, store *warehouse.SqliteStore, path string) (int, error) {
	defs, err := LoadDefinitionsFile(path)
	if err != nil {
		return 0, err
	}
	if err := store.UpsertMetrics(ctx, defs); err != nil {
		return 0, err
	}
	return len(defs), nil
}

// DefinitionsWatcher reseeds metric definitions whenever the YAML file
// changes on disk.
type DefinitionsWatcher struct {
	store   *warehouse.SqliteStore
	path    string
	watcher *fsnotify.Watcher
	logger  zerolog.Logger
}

// NewDefinitionsWatcher returns a watcher for the given definitions file.
func NewDefinitionsWatcher(store *warehouse.SqliteStore, path string) *DefinitionsWatcher {
	return &DefinitionsWatcher{
		store:  store,
		path:   path,
		logger: log.WithComponent("kpi"),
	}
}

// Start begins watching the definitions file. An empty path is a no-op so
// deployments without a definitions file skip the watcher entirely.
func (w *DefinitionsWatcher) Start(ctx context.Context) error {
	if w.path == "" {
		w.logger.Info().
			Str("event", "kpi.watcher_disabled").
			Msg("definitions watcher disabled (no definitions file configured)")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	w.watcher = watcher

	if err := watcher.Add(w.path); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch definitions file: %w", err)
	}

	w.logger.Info().
		Str("event", "kpi.watcher_started").
		Str("path", w.path).
		Msg("watching metric definitions for changes")

	go w.watchLoop(ctx)
	return nil
}

func (w *DefinitionsWatcher) watchLoop(ctx context.Context) {
	// Debounce so editors that write in bursts trigger a single reload.
	var debounce *time.Timer
	const debounceDelay = 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Str("event", "kpi.watcher_stopped").Msg("definitions watcher stopped")
			_ = w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.logger.Debug().
					Str("event", "kpi.definitions_changed").
					Str("op", event.Op.String()).
					Msg("definitions file changed")
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceDelay, func() {
					w.reload(ctx)
				})
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().
				Err(err).
				Str("event", "kpi.watcher_error").
				Msg("definitions watcher error")
		}
	}
}

func (w *DefinitionsWatcher) reload(ctx context.Context) {
	count, err := SeedDefinitions(ctx, w.store, w.path)
	if err != nil {
		w.logger.Error().
			Err(err).
			Str("event", "kpi.reload_failed").
			Msg("definitions reload failed, keeping stored definitions")
		return
	}
	w.logger.Info().
		Str("event", "kpi.reload_success").
		Int("metrics", count).
		Msg("metric definitions reloaded")
}

// Stop closes the underlying file watcher.
func (w *DefinitionsWatcher) Stop() {
	if w.watcher != nil {
		_ = w.watcher.Close()
	}
}
