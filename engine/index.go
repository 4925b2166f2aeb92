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

import "github.com/google/btree"

// MapEntry is the index value described in spec §3: per-record
// metadata plus the exact JSON text that was appended for it.
type MapEntry struct {
	ID     ID
	Oid    int64
	Rid    int64
	Seq    int64
	Bid    string
	Record []byte
	cache  map[string]interface{}
}

// Cache returns the eagerly-maintained projection of cachedFields,
// computed on every Set and when recovery loads an entry, per spec
// §3/§6.
func (e *MapEntry) Cache() map[string]interface{} {
	return e.cache
}

// primaryIndex holds the id-map and the rid-map described in spec
// §3/I2, kept consistent under every mutation. byID is the
// authoritative O(1) lookup structure for has/get; order is an
// ordered mirror (adapting the teacher's storage/index.go delta
// btree, github.com/google/btree, from a secondary query accelerator
// into a deterministic-iteration mirror of the primary map) used only
// by compaction, which walks live entries in a stable order — has/get never touch it, so its presence cannot
// regress their O(1) contract (spec P-style note in §4.4).
type primaryIndex struct {
	byID  map[ID]*MapEntry
	byRid map[int64]*MapEntry
	order *btree.BTreeG[*MapEntry]
}

func lessMapEntry(a, b *MapEntry) bool {
	return a.ID.Less(b.ID)
}

func newPrimaryIndex() *primaryIndex {
	return &primaryIndex{
		byID:  make(map[ID]*MapEntry),
		byRid: make(map[int64]*MapEntry),
		order: btree.NewG[*MapEntry](32, lessMapEntry),
	}
}

// get returns the live entry for id, if any.
func (x *primaryIndex) get(id ID) (*MapEntry, bool) {
	e, ok := x.byID[id]
	return e, ok
}

// getByRid returns the live entry owning rid, if any.
func (x *primaryIndex) getByRid(rid int64) (*MapEntry, bool) {
	e, ok := x.byRid[rid]
	return e, ok
}

// put installs e, replacing and returning any entry previously
// keyed by the same id (I2: both maps stay consistent).
func (x *primaryIndex) put(e *MapEntry) (prev *MapEntry, hadPrev bool) {
	prev, hadPrev = x.byID[e.ID]
	if hadPrev {
		delete(x.byRid, prev.Rid)
		x.order.Delete(prev)
	}
	x.byID[e.ID] = e
	x.byRid[e.Rid] = e
	x.order.ReplaceOrInsert(e)
	return prev, hadPrev
}

// remove evicts id's entry from both maps, returning it if present.
func (x *primaryIndex) remove(id ID) (*MapEntry, bool) {
	e, ok := x.byID[id]
	if !ok {
		return nil, false
	}
	delete(x.byID, id)
	delete(x.byRid, e.Rid)
	x.order.Delete(e)
	return e, true
}

// len reports the number of live entries.
func (x *primaryIndex) len() int {
	return len(x.byID)
}

// ascend walks all live entries in ID order, stopping early if fn
// returns false. Used by compaction to walk the live id-map for a
// given block.
func (x *primaryIndex) ascend(fn func(e *MapEntry) bool) {
	x.order.Ascend(func(e *MapEntry) bool {
		return fn(e)
	})
}
