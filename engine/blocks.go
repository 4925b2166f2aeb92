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
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// BlockInfo is the registry entry described in spec §3: file name,
// on-disk size, bytes no longer reachable from the index, and
// whether the block is currently being compacted (I5).
type BlockInfo struct {
	Bid        string
	Size       int64
	StaleBytes int64
	Locked     bool
}

// blockRegistry is the ordered list of BlockInfo from spec §4.3, plus
// the allocator's lastUsedBid cursor.
type blockRegistry struct {
	blocks      []*BlockInfo
	byBid       map[string]int // bid -> index into blocks
	lastUsedBid int             // -1 if empty
}

func newBlockRegistry() *blockRegistry {
	return &blockRegistry{byBid: make(map[string]int), lastUsedBid: -1}
}

func (r *blockRegistry) find(bid string) (*BlockInfo, bool) {
	i, ok := r.byBid[bid]
	if !ok {
		return nil, false
	}
	return r.blocks[i], true
}

// add appends a freshly created BlockInfo to the registry.
func (r *blockRegistry) add(b *BlockInfo) int {
	r.blocks = append(r.blocks, b)
	idx := len(r.blocks) - 1
	r.byBid[b.Bid] = idx
	return idx
}

// replace swaps the BlockInfo at oldBid's position for a new one,
// used by compaction's registry update (spec §4.5 step 5c).
func (r *blockRegistry) replace(oldBid string, newBlock *BlockInfo) {
	idx, ok := r.byBid[oldBid]
	if !ok {
		corrupt("compaction tried to replace an unregistered block " + oldBid)
	}
	delete(r.byBid, oldBid)
	r.blocks[idx] = newBlock
	r.byBid[newBlock.Bid] = idx
}

// remove drops bid from the registry entirely, used when compaction
// retires a block with no surviving live entries to repoint (spec
// §4.5's degenerate empty-block case). The last block is moved into
// the freed slot, and lastUsedBid is only clamped back into range; it
// is only ever a hint, re-validated by getFreeBlock on next use.
func (r *blockRegistry) remove(bid string) {
	idx, ok := r.byBid[bid]
	if !ok {
		corrupt("compaction tried to remove an unregistered block " + bid)
	}
	delete(r.byBid, bid)
	last := len(r.blocks) - 1
	r.blocks[idx] = r.blocks[last]
	r.byBid[r.blocks[idx].Bid] = idx
	r.blocks = r.blocks[:last]
	if r.lastUsedBid >= len(r.blocks) {
		r.lastUsedBid = len(r.blocks) - 1
	}
}

// uuidCounter seeds block-token generation; adapted from the
// teacher's storage/fast_uuid.go newUUID(), which avoids relying on
// crypto/rand so token minting never stalls block rotation on a
// low-entropy host.
var uuidCounter uint64 = uint64(time.Now().UnixNano())

// newBlockTokenStem mints an opaque, unique token with no extension.
func newBlockTokenStem() string {
	ctr := atomic.AddUint64(&uuidCounter, 1)
	now := uint64(time.Now().UnixNano())
	var b [16]byte
	binary.LittleEndian.PutUint64(b[0:8], ctr)
	binary.LittleEndian.PutUint64(b[8:16], ctr^now^(now<<17))
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return uuid.UUID(b).String()
}

func newBlockToken() string {
	return newBlockTokenStem() + blockExt
}

// getFreeBlock implements the allocation policy of spec §4.3: prefer
// lastUsedBid if it still has headroom, else scan forward for the
// first unlocked block under the size cap, else mint a fresh one.
// maxBlockSize is a soft cap: a single record may still push the
// chosen block over it by at most that one record's size.
func (r *blockRegistry) getFreeBlock(maxBlockSize int64, create func(bid string) error) (*BlockInfo, error) {
	if r.lastUsedBid >= 0 && r.lastUsedBid < len(r.blocks) {
		b := r.blocks[r.lastUsedBid]
		if !b.Locked && b.Size < maxBlockSize {
			return b, nil
		}
	}

	for i := r.lastUsedBid + 1; i < len(r.blocks); i++ {
		b := r.blocks[i]
		if !b.Locked && b.Size < maxBlockSize {
			r.lastUsedBid = i
			return b, nil
		}
	}

	bid := newBlockToken()
	if err := create(bid); err != nil {
		return nil, err
	}
	b := &BlockInfo{Bid: bid}
	idx := r.add(b)
	r.lastUsedBid = idx
	return b, nil
}

// eligibleForCompaction reports whether b has crossed the stale-ratio
// threshold and is not already locked (spec §4.5 eligibility rule).
// threshold==0 disables compaction entirely.
func eligibleForCompaction(b *BlockInfo, maxBlockSize int64, threshold float64) bool {
	if threshold <= 0 || b.Locked {
		return false
	}
	return float64(b.StaleBytes) >= float64(maxBlockSize)*threshold
}
