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
	"encoding/json"
	"testing"
)

func TestBuildLineDecodeLineRoundTrip(t *testing.T) {
	payload, err := valueToPayload(map[string]interface{}{"name": "lemon", "qty": 3})
	if err != nil {
		t.Fatalf("valueToPayload: %v", err)
	}
	line, err := buildLine(StringID("k1"), oidSet, 1, 1, payload)
	if err != nil {
		t.Fatalf("buildLine: %v", err)
	}

	rec, err := decodeLine("b1.block", 1, line)
	if err != nil {
		t.Fatalf("decodeLine: %v", err)
	}
	if rec.ID != StringID("k1") || rec.Oid != oidSet || rec.Rid != 1 || rec.Seq != 1 {
		t.Fatalf("decoded record mismatch: %+v", rec)
	}
	m := rec.Map()
	if m["name"] != "lemon" {
		t.Errorf("name = %v, want lemon", m["name"])
	}
}

func TestValueToPayloadDropsReservedKeys(t *testing.T) {
	payload, err := valueToPayload(map[string]interface{}{"id": "x", "_seq": 99, "real": "field"})
	if err != nil {
		t.Fatalf("valueToPayload: %v", err)
	}
	if _, ok := payload["id"]; ok {
		t.Errorf("payload retained reserved key id")
	}
	if _, ok := payload["_seq"]; ok {
		t.Errorf("payload retained reserved key _seq")
	}
	if _, ok := payload["real"]; !ok {
		t.Errorf("payload dropped non-reserved key real")
	}
}

func TestValueToPayloadRejectsNonObject(t *testing.T) {
	if _, err := valueToPayload([]int{1, 2, 3}); err == nil {
		t.Fatalf("expected error marshaling a non-object value")
	}
}

func TestDecodeLineMissingFieldErrors(t *testing.T) {
	if _, err := decodeLine("b1.block", 1, []byte(`{"id":"k1","_oid":1,"_rid":1}`)); err == nil {
		t.Fatalf("expected error for missing _seq")
	}
}

func TestProjectCacheOmitsMissingFields(t *testing.T) {
	payload := map[string]json.RawMessage{"name": json.RawMessage(`"lemon"`)}
	cache := projectCache(payload, []string{"name", "missing"})
	if len(cache) != 1 || cache["name"] != "lemon" {
		t.Fatalf("unexpected cache projection: %v", cache)
	}
}

func TestByteLenCountsUTF8Bytes(t *testing.T) {
	line := []byte("🍋") // 4 UTF-8 bytes
	if got := byteLen(line); got != 5 {
		t.Fatalf("byteLen(🍋) = %d, want 5 (4 bytes + newline)", got)
	}
}
