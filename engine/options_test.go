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

import "testing"

func TestValidateRejectsEmptyDirPath(t *testing.T) {
	o := Options{}
	if err := o.validate(); err == nil {
		t.Fatalf("expected error for empty DirPath")
	}
}

func TestValidateParsesHumanBlockSize(t *testing.T) {
	o := DefaultOptions("/tmp/somewhere")
	o.MaxBlockSizeHuman = "8MiB"
	if err := o.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if o.MaxBlockSize != 8*1024*1024 {
		t.Fatalf("MaxBlockSize = %d, want 8MiB", o.MaxBlockSize)
	}
}

func TestValidateRejectsNonMultipleBlockSize(t *testing.T) {
	o := DefaultOptions("/tmp/somewhere")
	o.MaxBlockSize = 100
	if err := o.validate(); err == nil {
		t.Fatalf("expected error for non-1024-multiple MaxBlockSize")
	}
}

func TestValidateRejectsOutOfRangeStaleThreshold(t *testing.T) {
	o := DefaultOptions("/tmp/somewhere")
	o.StaleDataThreshold = 1.5
	if err := o.validate(); err == nil {
		t.Fatalf("expected error for StaleDataThreshold > 1")
	}
}

func TestValidateFillsLoggerDefault(t *testing.T) {
	o := DefaultOptions("/tmp/somewhere")
	o.Logger = nil
	if err := o.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if o.Logger == nil {
		t.Fatalf("expected default logger to be filled in")
	}
}
