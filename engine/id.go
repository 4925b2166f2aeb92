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
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is the user-facing primary key. Per spec it is either a string or
// an integer; both are carried as a single canonical value so the
// id-map and rid-map can use it as a comparable key.
type ID struct {
	isString bool
	s        string
	i        int64
}

// StringID builds an ID from a string.
func StringID(s string) ID { return ID{isString: true, s: s} }

// IntID builds an ID from an integer.
func IntID(i int64) ID { return ID{isString: false, i: i} }

// IsZero reports whether id is the empty/absent value (InvalidId
// territory). IntID(0) has the same representation and also reports
// true.
func (id ID) IsZero() bool {
	return !id.isString && id.i == 0 && id.s == ""
}

// Less gives a canonical, deterministic total order over IDs: all
// integer ids sort before all string ids, then by natural order
// within each kind. Only used for the ordered index mirror; has/get
// never consult it.
func (id ID) Less(other ID) bool {
	if id.isString != other.isString {
		return !id.isString
	}
	if id.isString {
		return id.s < other.s
	}
	return id.i < other.i
}

// Raw returns the id as a string or int64, for embedding into JSON.
func (id ID) Raw() interface{} {
	if id.isString {
		return id.s
	}
	return id.i
}

func (id ID) String() string {
	if id.isString {
		return id.s
	}
	return strconv.FormatInt(id.i, 10)
}

// idFromAny normalizes a caller-supplied id (string, any integer kind,
// json.Number, or float64 with no fractional part) into an ID.
// Returns ok=false for anything else (InvalidId).
func idFromAny(v interface{}) (ID, bool) {
	switch t := v.(type) {
	case string:
		if t == "" {
			return ID{}, false
		}
		return StringID(t), true
	case int:
		return IntID(int64(t)), true
	case int32:
		return IntID(int64(t)), true
	case int64:
		return IntID(t), true
	case int8:
		return IntID(int64(t)), true
	case int16:
		return IntID(int64(t)), true
	case uint8:
		return IntID(int64(t)), true
	case uint16:
		return IntID(int64(t)), true
	case uint32:
		return IntID(int64(t)), true
	case uint:
		return IntID(int64(t)), true
	case uint64:
		return IntID(int64(t)), true
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			return ID{}, false
		}
		return IntID(i), true
	case float64:
		if t != float64(int64(t)) {
			return ID{}, false
		}
		return IntID(int64(t)), true
	default:
		return ID{}, false
	}
}

// idFromJSONValue decodes the "id" field of a parsed record line. It
// requires a string or integer primitive, per the codec's validation
// rule.
func idFromJSONValue(raw json.RawMessage) (ID, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return ID{}, fmt.Errorf("id is empty")
		}
		return StringID(s), nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err == nil {
		i, err := n.Int64()
		if err != nil {
			return ID{}, fmt.Errorf("id is not an integer: %w", err)
		}
		return IntID(i), nil
	}
	return ID{}, fmt.Errorf("id has wrong primitive type")
}
