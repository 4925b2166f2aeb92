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
	"sort"
	"strconv"
)

const (
	oidSet    = 1
	oidDelete = 2
)

// Record is a single parsed line: the four reserved fields plus
// whatever else the user put on the object. Extra holds the raw,
// still-encoded JSON for every non-reserved top-level key, so the
// engine never has to guess a target Go type for arbitrary user
// payloads (spec §9's "carries opaque JSON text plus four reserved
// fields").
type Record struct {
	ID    ID
	Oid   int64
	Rid   int64
	Seq   int64
	Extra map[string]json.RawMessage
}

// Map renders the full external view of a record: user fields plus
// the overlaid reserved fields, as a plain map ready for
// json.Marshal or for handing back to a caller.
func (r *Record) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(r.Extra)+4)
	for k, v := range r.Extra {
		var decoded interface{}
		if err := json.Unmarshal(v, &decoded); err == nil {
			out[k] = decoded
		}
	}
	out["id"] = r.ID.Raw()
	out["_oid"] = r.Oid
	out["_rid"] = r.Rid
	out["_seq"] = r.Seq
	return out
}

// isReservedKey reports whether a top-level JSON key is one of the
// four engine-owned fields.
func isReservedKey(k string) bool {
	switch k {
	case "id", "_oid", "_rid", "_seq":
		return true
	default:
		return false
	}
}

// decodeLine parses one block line into a Record. Empty lines and
// JSON/type errors are reported with the line number so callers can
// point at the offending byte range of the block file.
func decodeLine(bid string, lineNo int, line []byte) (*Record, error) {
	if len(line) == 0 {
		return nil, &EmptyLineError{Bid: bid, LineNo: lineNo}
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, &InvalidRecordError{Bid: bid, LineNo: lineNo, Cause: err}
	}

	idRaw, ok := raw["id"]
	if !ok {
		return nil, &InvalidRecordError{Bid: bid, LineNo: lineNo, Cause: fmt.Errorf("missing id")}
	}
	id, err := idFromJSONValue(idRaw)
	if err != nil {
		return nil, &InvalidRecordError{Bid: bid, LineNo: lineNo, Cause: err}
	}

	oid, err := requireInt(raw, "_oid", bid, lineNo)
	if err != nil {
		return nil, err
	}
	rid, err := requireInt(raw, "_rid", bid, lineNo)
	if err != nil {
		return nil, err
	}
	seq, err := requireInt(raw, "_seq", bid, lineNo)
	if err != nil {
		return nil, err
	}
	delete(raw, "id")

	return &Record{ID: id, Oid: oid, Rid: rid, Seq: seq, Extra: raw}, nil
}

// requireInt extracts and removes an integer-typed field, reporting
// InvalidRecordError if it is missing or not an integer primitive.
func requireInt(raw map[string]json.RawMessage, field, bid string, lineNo int) (int64, error) {
	v, ok := raw[field]
	if !ok {
		return 0, &InvalidRecordError{Bid: bid, LineNo: lineNo, Cause: fmt.Errorf("missing %s", field)}
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(v))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return 0, &InvalidRecordError{Bid: bid, LineNo: lineNo, Cause: fmt.Errorf("%s has wrong primitive type", field)}
	}
	i, err := n.Int64()
	if err != nil {
		return 0, &InvalidRecordError{Bid: bid, LineNo: lineNo, Cause: fmt.Errorf("%s is not an integer: %w", field, err)}
	}
	delete(raw, field)
	return i, nil
}

// valueToPayload marshals an arbitrary user value into its top-level
// JSON fields. The value must marshal to a JSON object; reserved keys
// present on it are silently dropped since the engine always
// overlays its own.
func valueToPayload(value interface{}) (map[string]json.RawMessage, error) {
	if value == nil {
		return map[string]json.RawMessage{}, nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("engine: value does not marshal to JSON: %w", err)
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(b, &payload); err != nil {
		return nil, fmt.Errorf("engine: value must marshal to a JSON object: %w", err)
	}
	for k := range payload {
		if isReservedKey(k) {
			delete(payload, k)
		}
	}
	return payload, nil
}

// buildLine serializes one record line with a stable field order:
// the four reserved fields first (in spec order), then the remaining
// user fields sorted by key. Ordering has no correctness impact per
// spec §4.1, but a stable order makes the exact bytes reproducible
// and keeps block diffs readable.
func buildLine(id ID, oid, rid, seq int64, payload map[string]json.RawMessage) ([]byte, error) {
	idBytes, err := json.Marshal(id.Raw())
	if err != nil {
		return nil, fmt.Errorf("engine: cannot encode id: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	buf.WriteString(`"id":`)
	buf.Write(idBytes)
	buf.WriteString(`,"_oid":`)
	buf.WriteString(strconv.FormatInt(oid, 10))
	buf.WriteString(`,"_rid":`)
	buf.WriteString(strconv.FormatInt(rid, 10))
	buf.WriteString(`,"_seq":`)
	buf.WriteString(strconv.FormatInt(seq, 10))

	keys := make([]string, 0, len(payload))
	for k := range payload {
		if isReservedKey(k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf.WriteByte(',')
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("engine: cannot encode field %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(payload[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// recordMapFromPayload renders the same external shape as
// (*Record).Map directly from an already-decoded payload, so Set can
// hand back its result without a second JSON decode pass.
func recordMapFromPayload(id ID, oid, rid, seq int64, payload map[string]json.RawMessage) map[string]interface{} {
	out := make(map[string]interface{}, len(payload)+4)
	for k, v := range payload {
		var decoded interface{}
		if err := json.Unmarshal(v, &decoded); err == nil {
			out[k] = decoded
		}
	}
	out["id"] = id.Raw()
	out["_oid"] = oid
	out["_rid"] = rid
	out["_seq"] = seq
	return out
}

// projectCache extracts a sub-object of payload restricted to fields,
// decoding each present value. Missing fields are silently omitted —
// never an error, per spec §4.1.
func projectCache(payload map[string]json.RawMessage, fields []string) map[string]interface{} {
	if len(fields) == 0 {
		return nil
	}
	cache := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		raw, ok := payload[f]
		if !ok {
			continue
		}
		var v interface{}
		if err := json.Unmarshal(raw, &v); err == nil {
			cache[f] = v
		}
	}
	return cache
}

// byteLen returns the UTF-8 byte length of line content plus the
// trailing newline the backend appends — the unit "stale bytes" and
// "block size" are measured in throughout, per spec §4.3's note that
// byte length (not character length) is the correct measure.
func byteLen(line []byte) int64 {
	return int64(len(line)) + 1
}
