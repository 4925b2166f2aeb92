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

import "github.com/sirupsen/logrus"

// logRecoveryStats narrates what Open's recovery protocol found, the
// structured-logging equivalent of the teacher's fmt.Println status
// lines in storage/shard.go's rebuild().
func logRecoveryStats(log *logrus.Logger, dir string, blocks, keys int, seqNo, ridNo int64) {
	log.WithFields(logrus.Fields{
		"dir":    dir,
		"blocks": blocks,
		"keys":   keys,
		"seqNo":  seqNo,
		"ridNo":  ridNo,
	}).Info("engine: recovered")
}

func logAppendFailure(log *logrus.Logger, bid string, err error) {
	log.WithFields(logrus.Fields{"block": bid}).WithError(err).Error("engine: append failed; index already mutated, relying on recovery to reconcile")
}

// logCompactionDone narrates a finished compaction: the retired block,
// its replacement (empty when the block was dropped outright with no
// surviving entries), and the bytes reclaimed. Debug-level since it
// fires on a routine background timer, not an operator-facing event.
func logCompactionDone(log *logrus.Logger, oldBid, newBid string, oldSize, newSize int64) {
	fields := logrus.Fields{
		"block":     oldBid,
		"reclaimed": oldSize - newSize,
	}
	if newBid != "" {
		fields["replacement"] = newBid
	}
	log.WithFields(fields).Debug("engine: compaction finished")
}
