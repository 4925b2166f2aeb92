/*
Copyright (C) 2026  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package kvstore is the thin external wrapper around package engine:
// directory creation, option defaults, and a string-id-only surface
// for callers that don't need engine's string-or-integer id union.
package kvstore

import (
	"fmt"
	"os"
	"time"

	"github.com/launix-de/linekv/engine"
)

// DB is an open key-value store rooted at one directory.
type DB struct {
	eng *engine.Engine
	dir string
}

// Option configures Open, as a functional option over the underlying
// engine.Options.
type Option func(*engine.Options)

// WithMaxBlockSize sets the block-rotation threshold in bytes.
func WithMaxBlockSize(bytes int64) Option {
	return func(o *engine.Options) { o.MaxBlockSize = bytes }
}

// WithMaxBlockSizeHuman sets the block-rotation threshold from a
// human-readable string such as "8MiB", parsed via go-units.
func WithMaxBlockSizeHuman(human string) Option {
	return func(o *engine.Options) { o.MaxBlockSizeHuman = human }
}

// WithDataSyncDelay sets the throttle window between fsyncs of a
// given block. Zero makes every write synchronous.
func WithDataSyncDelay(d time.Duration) Option {
	return func(o *engine.Options) { o.DataSyncDelay = d }
}

// WithStaleDataThreshold sets the fraction of MaxBlockSize that a
// block's stale bytes must reach before it becomes eligible for
// compaction.
func WithStaleDataThreshold(fraction float64) Option {
	return func(o *engine.Options) { o.StaleDataThreshold = fraction }
}

// WithCompactDelay sets the period of the background compaction
// sweep.
func WithCompactDelay(d time.Duration) Option {
	return func(o *engine.Options) { o.CompactDelay = d }
}

// WithCachedFields names the payload fields eagerly projected into
// every MapEntry's Cache().
func WithCachedFields(fields ...string) Option {
	return func(o *engine.Options) { o.CachedFields = fields }
}

// WithOnError installs a callback for asynchronous I/O failures
// (throttled fsyncs, background compaction) that have no synchronous
// caller to return to.
func WithOnError(fn func(error)) Option {
	return func(o *engine.Options) { o.OnError = fn }
}

// Open creates dirPath if it does not already exist, then opens (or
// initializes) a store rooted there. Directory creation is this
// package's job, not the engine's (spec §1's scope boundary).
func Open(dirPath string, opts ...Option) (*DB, error) {
	if err := os.MkdirAll(dirPath, 0750); err != nil {
		return nil, fmt.Errorf("kvstore: cannot create directory %s: %w", dirPath, err)
	}

	eo := engine.DefaultOptions(dirPath)
	for _, opt := range opts {
		opt(&eo)
	}

	eng, err := engine.Open(eo)
	if err != nil {
		return nil, err
	}
	return &DB{eng: eng, dir: dirPath}, nil
}

// Has reports whether id is present.
func (db *DB) Has(id string) (bool, error) {
	return db.eng.Has(id)
}

// Get returns the record stored under id, if any.
func (db *DB) Get(id string) (map[string]interface{}, bool, error) {
	return db.eng.Get(id)
}

// Set installs value as the record for id, returning its full
// external view (user fields plus the reserved id/_oid/_rid/_seq
// fields).
func (db *DB) Set(id string, value interface{}) (map[string]interface{}, error) {
	return db.eng.Set(id, value)
}

// Delete removes id. Deleting an absent key is a no-op.
func (db *DB) Delete(id string) error {
	return db.eng.Delete(id)
}

// Close flushes and releases every open block handle. Safe to call
// more than once.
func (db *DB) Close() error {
	return db.eng.Close()
}

// Dir returns the directory this store is rooted at.
func (db *DB) Dir() string {
	return db.dir
}
