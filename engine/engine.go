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

// Package engine implements the directory-local, append-only,
// newline-delimited-JSON storage engine: the in-memory index, block
// lifecycle, sequence-numbered write protocol, recovery, durability
// policy and background compaction. It has no notion of a
// network-facing or multi-process deployment; see package kvstore
// for the thin external wrapper.
package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Engine is the facade described in spec §2 item 5: it coordinates
// sequence allocation, block selection, storage-backend writes, and
// atomic index mutation, and fires the background flush/compaction
// timers. All index+registry+counter mutations run inside mu —
// the single logical task of spec §5 — while backend I/O (appends,
// flush, block reads) runs outside it.
type Engine struct {
	opts    Options
	backend *backend

	mu       sync.Mutex
	registry *blockRegistry
	idx      *primaryIndex
	seqNo    int64
	ridNo    int64
	closed   bool

	sf     singleflight.Group
	timers *timers
}

// Open scans opts.DirPath, rebuilds the index, and arms the
// background timers. The directory itself must already exist — per
// spec §1, directory creation belongs to the external wrapper, not
// the core engine.
func Open(opts Options) (e *Engine, err error) {
	if verr := opts.validate(); verr != nil {
		return nil, verr
	}

	info, statErr := os.Stat(opts.DirPath)
	if statErr != nil {
		return nil, fmt.Errorf("engine: cannot open directory: %w", statErr)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("engine: %s is not a directory", opts.DirPath)
	}

	e = &Engine{
		opts:     opts,
		registry: newBlockRegistry(),
		idx:      newPrimaryIndex(),
	}
	e.backend = newBackend(opts.DirPath, opts.DataSyncDelay, func(ioErr error) {
		if opts.OnError != nil {
			opts.OnError(ioErr)
		}
	})

	if err := e.recover(); err != nil {
		return nil, err
	}

	e.startTimers()
	return e, nil
}

// recover implements the recovery protocol of spec §4.4.
func (e *Engine) recover() error {
	entries, err := os.ReadDir(e.opts.DirPath)
	if err != nil {
		return fmt.Errorf("engine: cannot list directory: %w", err)
	}

	var bids []string
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		if filepath.Ext(de.Name()) != blockExt {
			continue
		}
		bids = append(bids, de.Name())
	}
	sort.Strings(bids) // deterministic processing order for the merge tie-break

	type winner struct {
		bid    string
		record *Record
		raw    []byte
	}
	merged := make(map[ID]winner)
	var maxSeq int64

	for _, bid := range bids {
		it, ierr := e.backend.readBlock(bid)
		if ierr != nil {
			return fmt.Errorf("engine: cannot read block %s: %w", bid, ierr)
		}
		for {
			line, lineNo, ok := it.Next()
			if !ok {
				break
			}
			rec, derr := decodeLine(bid, lineNo, line)
			if derr != nil {
				return derr
			}
			if rec.Seq > maxSeq {
				maxSeq = rec.Seq
			}
			cur, exists := merged[rec.ID]
			// newer wins strictly; on a tie the later-merged
			// occurrence wins (spec §4.4 merge rule rationale).
			if !exists || !(cur.record.Seq > rec.Seq) {
				raw := make([]byte, len(line))
				copy(raw, line)
				merged[rec.ID] = winner{bid: bid, record: rec, raw: raw}
			}
		}
		if ierr := it.Err(); ierr != nil {
			return ierr
		}
	}

	// tombstones consume their _seq but never survive into the live
	// index (spec §4.4 step 4 / I1).
	for id, w := range merged {
		if w.record.Oid == oidDelete {
			delete(merged, id)
		}
	}

	blockSize := make(map[string]int64)
	liveBytes := make(map[string]int64)
	for _, bid := range bids {
		sz, serr := e.backend.getBlockStats(bid)
		if serr != nil {
			return fmt.Errorf("engine: cannot stat block %s: %w", bid, serr)
		}
		blockSize[bid] = sz
	}

	var maxRid int64
	for _, w := range merged {
		entry := &MapEntry{
			ID:     w.record.ID,
			Oid:    w.record.Oid,
			Rid:    w.record.Rid,
			Seq:    w.record.Seq,
			Bid:    w.bid,
			Record: w.raw,
			cache:  projectCache(w.record.Extra, e.opts.CachedFields),
		}
		e.idx.put(entry)
		liveBytes[w.bid] += byteLen(w.raw)
		if w.record.Rid > maxRid {
			maxRid = w.record.Rid
		}
	}

	for _, bid := range bids {
		e.registry.add(&BlockInfo{
			Bid:        bid,
			Size:       blockSize[bid],
			StaleBytes: blockSize[bid] - liveBytes[bid],
			Locked:     false,
		})
	}
	if len(bids) > 0 {
		e.registry.lastUsedBid = len(bids) - 1
	}

	e.seqNo = maxSeq
	e.ridNo = maxRid

	if len(bids) == 0 {
		// nothing to recover from -> preallocate one empty block so
		// the first write is O(1) (spec §4.4 step 7).
		if _, err := e.registry.getFreeBlock(e.opts.MaxBlockSize, e.backend.createBlock); err != nil {
			return err
		}
	}

	logRecoveryStats(e.opts.Logger, e.opts.DirPath, len(e.registry.blocks), e.idx.len(), e.seqNo, e.ridNo)
	return nil
}

// Has reports whether id is present in the live index.
func (e *Engine) Has(rawID interface{}) (found bool, err error) {
	defer recoverCorruption(&err)
	id, ok := idFromAny(rawID)
	if !ok {
		return false, &InvalidIDError{Reason: "id is empty or not a string/integer"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false, &NotOpenError{}
	}
	_, found = e.idx.get(id)
	return found, nil
}

// Get returns the full external view of the record for id, parsed
// from the resident map-entry text — never from disk in the steady
// state.
func (e *Engine) Get(rawID interface{}) (record map[string]interface{}, found bool, err error) {
	defer recoverCorruption(&err)
	id, ok := idFromAny(rawID)
	if !ok {
		return nil, false, &InvalidIDError{Reason: "id is empty or not a string/integer"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, false, &NotOpenError{}
	}
	entry, found := e.idx.get(id)
	if !found {
		return nil, false, nil
	}

	parsed, derr := decodeLine(entry.Bid, 0, entry.Record)
	if derr != nil {
		corrupt(fmt.Sprintf("stored record for id %s failed to re-parse: %v", id.String(), derr))
	}
	if parsed.ID != id {
		corrupt(fmt.Sprintf("map entry id mismatch: index key %s, stored id %s", id.String(), parsed.ID.String()))
	}
	return parsed.Map(), true, nil
}

// Set overlays the reserved fields onto value and installs it as the
// live record for id, per spec §4.4.
func (e *Engine) Set(rawID interface{}, value interface{}) (record map[string]interface{}, err error) {
	defer recoverCorruption(&err)
	id, ok := idFromAny(rawID)
	if !ok {
		return nil, &InvalidIDError{Reason: "id is empty or not a string/integer"}
	}
	payload, perr := valueToPayload(value)
	if perr != nil {
		return nil, perr
	}

	var (
		bid  string
		line []byte
		seq  int64
		rid  int64
	)
	if lockErr := func() error {
		e.mu.Lock()
		defer e.mu.Unlock()

		if e.closed {
			return &NotOpenError{}
		}

		existing, hadExisting := e.idx.get(id)
		e.seqNo++
		seq = e.seqNo
		if hadExisting {
			rid = existing.Rid
		} else {
			e.ridNo++
			rid = e.ridNo
		}

		var lerr error
		line, lerr = buildLine(id, oidSet, rid, seq, payload)
		if lerr != nil {
			return lerr
		}

		block, aerr := e.registry.getFreeBlock(e.opts.MaxBlockSize, e.backend.createBlock)
		if aerr != nil {
			return aerr
		}
		bid = block.Bid

		entry := &MapEntry{
			ID:     id,
			Oid:    oidSet,
			Rid:    rid,
			Seq:    seq,
			Bid:    block.Bid,
			Record: line,
			cache:  projectCache(payload, e.opts.CachedFields),
		}
		prev, hadPrev := e.idx.put(entry)
		if hadPrev {
			prevBlock, found := e.registry.find(prev.Bid)
			if !found {
				corrupt("displaced entry referenced unregistered block " + prev.Bid)
			}
			prevBlock.StaleBytes += byteLen(prev.Record)
		}
		block.Size += byteLen(line)
		return nil
	}(); lockErr != nil {
		return nil, lockErr
	}

	if werr := e.backend.appendToBlock(bid, line); werr != nil {
		logAppendFailure(e.opts.Logger, bid, werr)
		if e.opts.OnError != nil {
			e.opts.OnError(werr)
		}
	}

	return recordMapFromPayload(id, oidSet, rid, seq, payload), nil
}

// Delete writes a tombstone for id and evicts it from the index. A
// delete of an absent key is a successful no-op (spec §4.4).
func (e *Engine) Delete(rawID interface{}) (err error) {
	defer recoverCorruption(&err)
	id, ok := idFromAny(rawID)
	if !ok {
		return &InvalidIDError{Reason: "id is empty or not a string/integer"}
	}

	var (
		bid  string
		line []byte
		noOp bool
	)
	if lockErr := func() error {
		e.mu.Lock()
		defer e.mu.Unlock()

		if e.closed {
			return &NotOpenError{}
		}

		existing, hadExisting := e.idx.get(id)
		if !hadExisting {
			noOp = true
			return nil
		}

		e.seqNo++
		seq := e.seqNo
		rid := existing.Rid

		var lerr error
		line, lerr = buildLine(id, oidDelete, rid, seq, nil)
		if lerr != nil {
			return lerr
		}

		block, aerr := e.registry.getFreeBlock(e.opts.MaxBlockSize, e.backend.createBlock)
		if aerr != nil {
			return aerr
		}
		bid = block.Bid

		prevBlock, found := e.registry.find(existing.Bid)
		if !found {
			corrupt("existing entry referenced unregistered block " + existing.Bid)
		}
		prevBlock.StaleBytes += byteLen(existing.Record)
		e.idx.remove(id)

		block.StaleBytes += byteLen(line)
		block.Size += byteLen(line)
		return nil
	}(); lockErr != nil {
		return lockErr
	}
	if noOp {
		return nil
	}

	if werr := e.backend.appendToBlock(bid, line); werr != nil {
		logAppendFailure(e.opts.Logger, bid, werr)
		if e.opts.OnError != nil {
			e.opts.OnError(werr)
		}
	}
	return nil
}

// Close cancels the background timers, flushes every open handle,
// and marks the engine unusable for further operations. Idempotent.
func (e *Engine) Close() (err error) {
	defer recoverCorruption(&err)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.cancelTimers()

	if ferr := e.backend.flushAll(); ferr != nil {
		err = ferr
	}
	if cerr := e.backend.close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
