// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package dedup tracks content hashes of uploaded workbooks so repeat
// uploads can be flagged with their first sighting.
package dedup

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Entry is the first-seen metadata stored per content hash.
type Entry struct {
	FileName string    `json:"file_name"`
	Dataset  string    `json:"dataset,omitempty"`
	Table    string    `json:"table,omitempty"`
	SeenAt   time.Time `json:"seen_at"`
}

// Index is a badger-backed hash index. Keys are "hash:<md5hex>", values are
// JSON entries.
type Index struct {
	db *badger.DB
}

// Open opens (or creates) the index under dir.
func Open(dir string) (*Index, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open dedup index: %w", err)
	}
	return &Index{db: db}, nil
}

// OpenInMemory backs the index with badger's in-memory mode. Used by tests
// and by deployments that opt out of persistent dedup state.
func OpenInMemory() (*Index, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open dedup index: %w", err)
	}
	return &Index{db: db}, nil
}

func (ix *Index) Close() error {
	return ix.db.Close()
}

// Seen returns the first-seen metadata for hash, nil when unknown.
func (ix *Index) Seen(hash string) (*Entry, error) {
	var out Entry
	err := ix.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(hash))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Observe records hash on first sighting. When the hash is already known it
// leaves the stored entry untouched and returns it.
func (ix *Index) Observe(hash string, e Entry) (*Entry, error) {
	var prior *Entry
	err := ix.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key(hash))
		if err == nil {
			var out Entry
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &out)
			}); err != nil {
				return err
			}
			prior = &out
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if e.SeenAt.IsZero() {
			e.SeenAt = time.Now().UTC()
		}
		buf, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return txn.Set(key(hash), buf)
	})
	if err != nil {
		return nil, err
	}
	return prior, nil
}

func key(hash string) []byte {
	return []byte("hash:" + hash)
}
