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
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

// blockHandle is one open write handle, adapting the teacher's
// PersistenceLogfile (storage/persistence-files.go) to the throttled
// (rather than always-immediate) sync policy the spec requires.
type blockHandle struct {
	mu          sync.Mutex
	f           *os.File
	syncPending bool
	syncTimer   *time.Timer
}

// backend is the directory-scoped storage primitive described in
// spec §4.2: a handle cache mapping block name to open write handle,
// plus append/flush/read/create/close/delete/rename/stat.
type backend struct {
	dir       string
	syncDelay time.Duration
	onError   func(error)

	mu      sync.Mutex
	handles map[string]*blockHandle
}

func newBackend(dir string, syncDelay time.Duration, onError func(error)) *backend {
	return &backend{
		dir:       dir,
		syncDelay: syncDelay,
		onError:   onError,
		handles:   make(map[string]*blockHandle),
	}
}

func (b *backend) path(bid string) string {
	return filepath.Join(b.dir, bid)
}

func (b *backend) getHandle(bid string) (*blockHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if h, ok := b.handles[bid]; ok {
		return h, nil
	}
	f, err := os.OpenFile(b.path(bid), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err != nil {
		return nil, err
	}
	h := &blockHandle{f: f}
	b.handles[bid] = h
	return h, nil
}

// createBlock opens (and creates, if absent) a block's write handle
// without appending anything — used when the allocator mints a fresh
// block so getBlockStats sees it immediately.
func (b *backend) createBlock(bid string) error {
	_, err := b.getHandle(bid)
	return err
}

// appendToBlock appends line+'\n' to bid's handle. With syncDelay==0
// every append is synchronous (write + fsync on the same call path);
// otherwise the append returns once the OS accepts the write and a
// throttled background sync is scheduled (spec §4.2).
func (b *backend) appendToBlock(bid string, line []byte) error {
	h, err := b.getHandle(bid)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	if _, err := h.f.Write(buf); err != nil {
		return err
	}

	if b.syncDelay <= 0 {
		return syncFile(h.f)
	}
	b.scheduleThrottledSyncLocked(bid, h)
	return nil
}

// scheduleThrottledSyncLocked arms a one-shot timer for this block if
// none is already pending, coalescing bursts of writes into at most
// one sync per syncDelay. Caller must hold h.mu.
func (b *backend) scheduleThrottledSyncLocked(bid string, h *blockHandle) {
	if h.syncPending {
		return
	}
	h.syncPending = true
	h.syncTimer = time.AfterFunc(b.syncDelay, func() {
		h.mu.Lock()
		h.syncPending = false
		f := h.f
		h.mu.Unlock()
		if err := syncFile(f); err != nil && b.onError != nil {
			b.onError(fmt.Errorf("engine: throttled sync failed for block %s: %w", bid, err))
		}
	})
}

// flush forces a durable sync of bid's buffered bytes right now,
// cancelling any pending throttled timer.
func (b *backend) flush(bid string) error {
	b.mu.Lock()
	h, ok := b.handles[bid]
	b.mu.Unlock()
	if !ok {
		return nil
	}
	h.mu.Lock()
	if h.syncTimer != nil {
		h.syncTimer.Stop()
	}
	h.syncPending = false
	f := h.f
	h.mu.Unlock()
	return syncFile(f)
}

// flushAll syncs every open handle; used by the periodic flush timer
// and by Close.
func (b *backend) flushAll() error {
	b.mu.Lock()
	bids := make([]string, 0, len(b.handles))
	for bid := range b.handles {
		bids = append(bids, bid)
	}
	b.mu.Unlock()
	var firstErr error
	for _, bid := range bids {
		if err := b.flush(bid); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// syncFile calls fsync and swallows "bad file descriptor" errors on
// an already-closed handle, per spec §4.2/§7; every other error
// propagates.
func syncFile(f *os.File) error {
	err := f.Sync()
	if err == nil {
		return nil
	}
	if errors.Is(err, os.ErrClosed) || errors.Is(err, syscall.EBADF) {
		return nil
	}
	var perr *fs.PathError
	if errors.As(err, &perr) && errors.Is(perr.Err, syscall.EBADF) {
		return nil
	}
	return err
}

func (b *backend) closeBlock(bid string) error {
	b.mu.Lock()
	h, ok := b.handles[bid]
	delete(b.handles, bid)
	b.mu.Unlock()
	if !ok {
		return nil
	}
	h.mu.Lock()
	if h.syncTimer != nil {
		h.syncTimer.Stop()
	}
	err := h.f.Close()
	h.mu.Unlock()
	return err
}

// deleteBlock closes (if open) then removes the block file.
func (b *backend) deleteBlock(bid string) error {
	_ = b.closeBlock(bid)
	err := os.Remove(b.path(bid))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (b *backend) renameBlock(oldBid, newBid string) error {
	_ = b.closeBlock(oldBid)
	return os.Rename(b.path(oldBid), b.path(newBid))
}

// getBlockStats returns the on-disk byte size of bid.
func (b *backend) getBlockStats(bid string) (int64, error) {
	fi, err := os.Stat(b.path(bid))
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (b *backend) close() error {
	b.mu.Lock()
	bids := make([]string, 0, len(b.handles))
	for bid := range b.handles {
		bids = append(bids, bid)
	}
	b.mu.Unlock()
	var firstErr error
	for _, bid := range bids {
		if err := b.closeBlock(bid); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// lineIterator is the lazy, ordered (line, lineNo) sequence spec
// §4.2 requires from readBlock. A trailing unterminated fragment at
// EOF is silently discarded; a structurally illegal empty line
// surfaces as EmptyLineError from Err() after Next returns false.
type lineIterator struct {
	f      *os.File
	r      *bufio.Reader
	lineNo int
	err    error
	closed bool
}

func (b *backend) readBlock(bid string) (*lineIterator, error) {
	f, err := os.Open(b.path(bid))
	if err != nil {
		return nil, err
	}
	return &lineIterator{f: f, r: bufio.NewReaderSize(f, 64*1024)}, nil
}

// Next advances the iterator. ok is false once the block is
// exhausted or an error (including EmptyLineError) was encountered;
// callers must check Err() to distinguish the two.
func (it *lineIterator) Next() (line []byte, lineNo int, ok bool) {
	if it.err != nil || it.closed {
		return nil, 0, false
	}
	raw, err := it.r.ReadBytes('\n')
	if err != nil {
		// io.EOF with a non-empty raw means a trailing fragment with
		// no newline: discard it, per spec B2.
		it.closeFile()
		if err != io.EOF {
			it.err = err
		}
		return nil, 0, false
	}
	it.lineNo++
	content := raw[:len(raw)-1]
	if len(content) == 0 {
		it.err = &EmptyLineError{Bid: filepath.Base(it.f.Name()), LineNo: it.lineNo}
		it.closeFile()
		return nil, 0, false
	}
	return content, it.lineNo, true
}

func (it *lineIterator) Err() error { return it.err }

func (it *lineIterator) closeFile() {
	if !it.closed {
		it.closed = true
		it.f.Close()
	}
}
