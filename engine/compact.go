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
	"fmt"
)

type compactSnapshotEntry struct {
	entry *MapEntry
	line  []byte
}

// compactionSweep implements spec §4.5: scan the registry for blocks
// past the stale-bytes threshold and compact each one in turn. A
// singleflight key per bid collapses concurrent compactionSweep calls
// against the same block into one compaction; the periodic ticker
// itself runs sweeps one at a time from a single goroutine. A
// compaction failure is handed to Options.OnError.
func (e *Engine) compactionSweep() {
	e.mu.Lock()
	var candidates []string
	for _, b := range e.registry.blocks {
		if eligibleForCompaction(b, e.opts.MaxBlockSize, e.opts.StaleDataThreshold) {
			candidates = append(candidates, b.Bid)
		}
	}
	e.mu.Unlock()

	for _, bid := range candidates {
		_, err, _ := e.sf.Do(bid, func() (interface{}, error) {
			return nil, e.compactBlock(bid)
		})
		if err != nil && e.opts.OnError != nil {
			e.opts.OnError(err)
		}
	}
}

// compactBlock rewrites bid's surviving live entries into a fresh
// block and retires the original, per spec §4.5:
//  1. lock the block in the registry so no further write can target it
//  2. snapshot its currently-live entries from the index
//  3. mint a token, write the snapshot to <token>.tmp
//  4. rename <token>.tmp to <token>.block (same stem, live extension)
//  5. under mu, repoint every snapshotted entry's Bid to the new
//     block and install the new BlockInfo in place of the old one
//  6. rename the old block file to its .old extension, to retire it
//     for later pruning rather than deleting it immediately (spec
//     §10's supplemented residue-management feature)
//
// Step 5b of the spec ("no stray entry may still reference bid") needs
// no separate scan: once the block is locked in step 1, no new write
// can ever be assigned to it again (spec §4.5's own invariant), so the
// snapshot taken in step 2 is already exhaustive.
func (e *Engine) compactBlock(bid string) (err error) {
	defer recoverCorruption(&err)

	snapshot, eligible := func() ([]compactSnapshotEntry, bool) {
		e.mu.Lock()
		defer e.mu.Unlock()

		block, found := e.registry.find(bid)
		if !found || block.Locked {
			return nil, false
		}
		block.Locked = true

		var snap []compactSnapshotEntry
		e.idx.ascend(func(me *MapEntry) bool {
			if me.Bid == bid {
				line := make([]byte, len(me.Record))
				copy(line, me.Record)
				snap = append(snap, compactSnapshotEntry{entry: me, line: line})
			}
			return true
		})
		return snap, true
	}()
	if !eligible {
		return nil
	}

	if len(snapshot) == 0 {
		return e.retireEmptyBlock(bid)
	}

	stem := newBlockTokenStem()
	tmpBid := stem + tmpExt
	if err := e.backend.createBlock(tmpBid); err != nil {
		e.unlockBlock(bid)
		return fmt.Errorf("engine: compaction cannot create tmp block: %w", err)
	}
	var liveBytes int64
	for _, se := range snapshot {
		if err := e.backend.appendToBlock(tmpBid, se.line); err != nil {
			e.backend.deleteBlock(tmpBid)
			e.unlockBlock(bid)
			return fmt.Errorf("engine: compaction write failed: %w", err)
		}
		liveBytes += byteLen(se.line)
	}
	if err := e.backend.flush(tmpBid); err != nil {
		e.backend.deleteBlock(tmpBid)
		e.unlockBlock(bid)
		return fmt.Errorf("engine: compaction flush failed: %w", err)
	}

	newBid := stem + blockExt
	if err := e.backend.renameBlock(tmpBid, newBid); err != nil {
		e.backend.deleteBlock(tmpBid)
		e.unlockBlock(bid)
		return fmt.Errorf("engine: compaction rename failed: %w", err)
	}

	oldSize := int64(0)
	func() {
		e.mu.Lock()
		defer e.mu.Unlock()

		if b, found := e.registry.find(bid); found {
			oldSize = b.Size
		}
		for _, se := range snapshot {
			// an entry may have been overwritten by a concurrent Set
			// between the snapshot and the repoint; only repoint it if
			// it still points at the block being compacted.
			cur, ok := e.idx.get(se.entry.ID)
			if !ok || cur.Bid != bid {
				continue
			}
			cur.Bid = newBid
		}
		e.registry.replace(bid, &BlockInfo{Bid: newBid, Size: liveBytes, StaleBytes: 0, Locked: false})
	}()

	if err := e.backend.renameBlock(bid, bid[:len(bid)-len(blockExt)]+oldExt); err != nil {
		logAppendFailure(e.opts.Logger, bid, fmt.Errorf("compaction could not retire old block: %w", err))
		return nil
	}
	logCompactionDone(e.opts.Logger, bid, newBid, oldSize, liveBytes)
	return nil
}

// retireEmptyBlock handles the degenerate case where every entry in
// bid was superseded or deleted before compaction ran: there is
// nothing to rewrite, so the block is dropped from the registry and
// its file retired directly, with no replacement live block minted.
func (e *Engine) retireEmptyBlock(bid string) error {
	var oldSize int64
	func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if b, found := e.registry.find(bid); found {
			oldSize = b.Size
		}
		e.registry.remove(bid)
	}()

	if err := e.backend.renameBlock(bid, bid[:len(bid)-len(blockExt)]+oldExt); err != nil {
		return err
	}
	logCompactionDone(e.opts.Logger, bid, "", oldSize, 0)
	return nil
}

func (e *Engine) unlockBlock(bid string) {
	e.mu.Lock()
	if b, ok := e.registry.find(bid); ok {
		b.Locked = false
	}
	e.mu.Unlock()
}
