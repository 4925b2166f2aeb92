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

import "fmt"

// NotOpenError is returned by Has, Get, Set and Delete once Close has
// been called. A repeated Close returns nil instead.
type NotOpenError struct{}

func (e *NotOpenError) Error() string { return "engine: not open" }

// InvalidIDError is returned when an id is empty, absent, or of the
// wrong primitive type.
type InvalidIDError struct {
	Reason string
}

func (e *InvalidIDError) Error() string { return "engine: invalid id: " + e.Reason }

// InvalidOptionError is returned by Open when an option fails
// validation.
type InvalidOptionError struct {
	Option string
	Reason string
}

func (e *InvalidOptionError) Error() string {
	return fmt.Sprintf("engine: invalid option %s: %s", e.Option, e.Reason)
}

// InvalidRecordError is raised while decoding a block line.
type InvalidRecordError struct {
	Bid    string
	LineNo int
	Cause  error
}

func (e *InvalidRecordError) Error() string {
	return fmt.Sprintf("engine: invalid record in block %s line %d: %v", e.Bid, e.LineNo, e.Cause)
}

func (e *InvalidRecordError) Unwrap() error { return e.Cause }

// EmptyLineError is raised when readBlock encounters a structurally
// illegal empty line.
type EmptyLineError struct {
	Bid    string
	LineNo int
}

func (e *EmptyLineError) Error() string {
	return fmt.Sprintf("engine: empty line in block %s at line %d", e.Bid, e.LineNo)
}

// InternalCorruptionError marks a runtime invariant violation — a bug,
// not a recoverable condition. Exported methods recover a panic of
// this type at their boundary and return it as a normal error instead
// of crashing the host process, since linekv is an embedded library.
type InternalCorruptionError struct {
	Reason string
}

func (e *InternalCorruptionError) Error() string { return "engine: internal corruption: " + e.Reason }

func corrupt(reason string) {
	panic(&InternalCorruptionError{Reason: reason})
}

// recoverCorruption turns a panic of type *InternalCorruptionError
// into a returned error; any other panic value propagates unchanged
// since it signals a genuine bug, not an anticipated invariant check.
func recoverCorruption(errp *error) {
	if r := recover(); r != nil {
		if ce, ok := r.(*InternalCorruptionError); ok {
			*errp = ce
			return
		}
		panic(r)
	}
}
