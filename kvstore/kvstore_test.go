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
	"testing"
	"time"
)

func TestOpenCreatesDirectory(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "nested", "store")

	db, err := Open(dir, WithDataSyncDelay(0))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		t.Fatalf("expected directory %s to exist", dir)
	}
}

func TestSetGetDelete(t *testing.T) {
	db, err := Open(t.TempDir(), WithDataSyncDelay(0))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if _, err := db.Set("k1", map[string]interface{}{"v": 1}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	record, found, err := db.Get("k1")
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if record["v"] != float64(1) && record["v"] != 1 {
		t.Errorf("v = %v", record["v"])
	}

	if err := db.Delete("k1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if found, _ := db.Has("k1"); found {
		t.Fatalf("Has after delete = true")
	}
}

func TestPruneResidueRemovesOldAndTmpFiles(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, WithDataSyncDelay(0))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	oldFile := filepath.Join(dir, "residue.old")
	tmpFile := filepath.Join(dir, "residue.tmp")
	for _, p := range []string{oldFile, tmpFile} {
		if err := os.WriteFile(p, []byte("x"), 0640); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
	past := time.Now().Add(-2 * time.Hour)
	os.Chtimes(oldFile, past, past)
	os.Chtimes(tmpFile, past, past)

	removed, err := db.PruneResidue(time.Hour)
	if err != nil {
		t.Fatalf("PruneResidue: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	if _, err := os.Stat(oldFile); !os.IsNotExist(err) {
		t.Errorf("expected %s to be removed", oldFile)
	}
}

func TestPruneResidueKeepsRecentFiles(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, WithDataSyncDelay(0))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	recent := filepath.Join(dir, "residue.old")
	if err := os.WriteFile(recent, []byte("x"), 0640); err != nil {
		t.Fatalf("write: %v", err)
	}

	removed, err := db.PruneResidue(time.Hour)
	if err != nil {
		t.Fatalf("PruneResidue: %v", err)
	}
	if removed != 0 {
		t.Fatalf("removed = %d, want 0 for a recent file", removed)
	}
}
