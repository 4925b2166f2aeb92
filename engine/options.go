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
package engine

import (
	"time"

	units "github.com/docker/go-units"
	"github.com/sirupsen/logrus"
)

// block extension reserved for live block files.
const blockExt = ".block"
const oldExt = ".old"
const tmpExt = ".tmp"

// Options configures an Engine. Mirrors the teacher's package-level
// SettingsT struct, but instance-scoped rather than global: an
// embedded library must support more than one open directory per
// process.
type Options struct {
	DirPath string

	// MaxBlockSize accepts either an already-resolved byte count
	// (set this field directly) or, if MaxBlockSizeHuman is set
	// instead, a human string like "8MiB" parsed via go-units.
	MaxBlockSize      int64
	MaxBlockSizeHuman string

	DataSyncDelay time.Duration

	StaleDataThreshold float64

	CompactDelay time.Duration

	CachedFields []string

	OnError func(error)

	Logger *logrus.Logger
}

// DefaultOptions returns the spec's documented defaults for every
// field except DirPath, which has no default.
func DefaultOptions(dirPath string) Options {
	return Options{
		DirPath:            dirPath,
		MaxBlockSize:       8 * 1024 * 1024,
		DataSyncDelay:      1000 * time.Millisecond,
		StaleDataThreshold: 0.1,
		CompactDelay:       24 * time.Hour,
		Logger:             logrus.StandardLogger(),
	}
}

// validate resolves MaxBlockSizeHuman (if given) and checks every
// option against the spec's constraints, fail-fast and synchronous —
// the same posture the teacher takes in CreateDatabase/CreateTable,
// which panic immediately on a bad precondition rather than deferring
// the failure.
func (o *Options) validate() error {
	if o.DirPath == "" {
		return &InvalidOptionError{Option: "DirPath", Reason: "must not be empty"}
	}
	if o.MaxBlockSizeHuman != "" {
		n, err := units.RAMInBytes(o.MaxBlockSizeHuman)
		if err != nil {
			return &InvalidOptionError{Option: "MaxBlockSizeHuman", Reason: err.Error()}
		}
		o.MaxBlockSize = n
	}
	if o.MaxBlockSize == 0 {
		o.MaxBlockSize = 8 * 1024 * 1024
	}
	if o.MaxBlockSize < 1024 || o.MaxBlockSize%1024 != 0 {
		return &InvalidOptionError{Option: "MaxBlockSize", Reason: "must be a multiple of 1024 and >= 1024"}
	}
	if o.DataSyncDelay < 0 {
		return &InvalidOptionError{Option: "DataSyncDelay", Reason: "negative values are reserved"}
	}
	if o.StaleDataThreshold < 0 || o.StaleDataThreshold > 1 {
		return &InvalidOptionError{Option: "StaleDataThreshold", Reason: "must be within [0,1]"}
	}
	if o.CompactDelay == 0 {
		o.CompactDelay = 24 * time.Hour
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return nil
}
