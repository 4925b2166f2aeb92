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
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// timers owns the background goroutines an open Engine runs for the
// lifetime of the directory: the throttled flush ticker and the
// compaction sweep ticker described in spec §2/§4.5. Modeled on the
// teacher's background save loop in storage/shard.go, generalized
// here to a cancellable, errgroup-supervised, per-Engine group instead
// of a single process-wide loop.
type timers struct {
	cancel context.CancelFunc
	group  *errgroup.Group
}

// startTimers arms the flush and compaction tickers. A DataSyncDelay
// of zero starts no flush ticker (every append already syncs), and a
// StaleDataThreshold of zero starts no compaction ticker. A zero
// CompactDelay does not disable the sweep: validate replaces it with
// the 24h default before Open gets here.
func (e *Engine) startTimers() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	if e.opts.DataSyncDelay > 0 {
		g.Go(func() error {
			return runTicker(ctx, e.opts.DataSyncDelay, func() {
				if err := e.backend.flushAll(); err != nil && e.opts.OnError != nil {
					e.opts.OnError(err)
				}
			})
		})
	}
	if e.opts.StaleDataThreshold > 0 && e.opts.CompactDelay > 0 {
		g.Go(func() error {
			return runTicker(ctx, e.opts.CompactDelay, e.compactionSweep)
		})
	}

	e.timers = &timers{cancel: cancel, group: g}
}

// cancelTimers stops both background goroutines and waits for them to
// return, so Close never races an in-flight sweep or flush.
func (e *Engine) cancelTimers() {
	if e.timers == nil {
		return
	}
	e.timers.cancel()
	_ = e.timers.group.Wait()
}

// runTicker invokes fn on every tick of period until ctx is
// cancelled, at which point it returns nil — cancellation is the
// expected shutdown path, not an error.
func runTicker(ctx context.Context, period time.Duration, fn func()) error {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			fn()
		}
	}
}
