// Copyright (C) 2025 Code Atlas AI (oss@codeatlas.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"

	"github.com/CodeAtlasAI/codeatlas/services/atlas/analyzer"
)

// cacheKeyPrefix versions the cache schema. Bump it when the cached record
// shape changes so stale entries miss instead of decoding wrong.
const cacheKeyPrefix = "parse/v1/"

// cachedParse is the record stored per analyzed file.
type cachedParse struct {
	Components []*analyzer.Component     `json:"components"`
	Edges      []analyzer.DependencyEdge `json:"edges"`
}

// ParseCache is a content-addressed store of per-file extraction results.
//
// Keys hash the file's language, repo-relative path, and full content, so
// any edit misses and reparses. Values are JSON records.
//
// Thread Safety: safe for concurrent use.
type ParseCache struct {
	db *badger.DB
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenCache opens the on-disk parse cache at dir. An empty dir resolves to
// a per-user default under the OS cache directory.
func OpenCache(dir string, logger *slog.Logger) (*ParseCache, error) {
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("resolve cache directory: %w", err)
		}
		dir = filepath.Join(base, "codeatlas", "parse")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create cache directory %s: %w", dir, err)
	}

	opts := badger.DefaultOptions(dir).WithSyncWrites(false)
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open parse cache: %w", err)
	}
	return &ParseCache{db: db}, nil
}

// OpenInMemoryCache opens a cache that lives only for the process. Used in
// tests and for runs with no writable cache directory.
func OpenInMemoryCache() (*ParseCache, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory parse cache: %w", err)
	}
	return &ParseCache{db: db}, nil
}

// Close releases the underlying database.
func (c *ParseCache) Close() error {
	return c.db.Close()
}

// Key derives the cache key for one file input.
func (c *ParseCache) Key(in analyzer.FileInput) string {
	h := sha256.New()
	h.Write([]byte(in.Language))
	h.Write([]byte{0})
	h.Write([]byte(in.Path))
	h.Write([]byte{0})
	h.Write(in.Content)
	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Get looks up a cached extraction. The third return is false on a miss.
func (c *ParseCache) Get(ctx context.Context, key string) ([]*analyzer.Component, []analyzer.DependencyEdge, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, false, err
	}

	var record cachedParse
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, fmt.Errorf("read parse cache: %w", err)
	}
	return record.Components, record.Edges, true, nil
}

// Put stores one file's extraction result. Failures are returned but
// callers treat them as non-fatal; the cache is an accelerator only.
func (c *ParseCache) Put(ctx context.Context, key string, components []*analyzer.Component, edges []analyzer.DependencyEdge) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(cachedParse{Components: components, Edges: edges})
	if err != nil {
		return fmt.Errorf("encode parse cache record: %w", err)
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("write parse cache: %w", err)
	}
	return nil
}
