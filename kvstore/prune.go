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
package kvstore

import (
	"os"
	"path/filepath"
	"time"
)

// PruneResidue removes *.old and *.tmp files in this store's
// directory whose modification time is older than olderThan. It
// reports the count of files removed.
//
// Compaction retires a superseded block by renaming it to .old rather
// than deleting it, and a crash mid-compaction can leave a .tmp file
// behind; neither the engine's recovery scan nor its compaction sweep
// ever looks at either extension again, so nothing reclaims them on
// its own. This is deliberately not part of package engine: the
// engine's job ends at "never reference a retired file again", and
// residue disposal is an operational policy best left to the caller
// (run it from a cron-style goroutine, an admin command, whatever
// fits the deployment).
func (db *DB) PruneResidue(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(db.dir)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		ext := filepath.Ext(de.Name())
		if ext != ".old" && ext != ".tmp" {
			continue
		}
		info, ierr := de.Info()
		if ierr != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if rerr := os.Remove(filepath.Join(db.dir, de.Name())); rerr == nil {
			removed++
		}
	}
	return removed, nil
}
