// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
	"time"
)

type record struct {
	Name    string         `cbor:"name"`
	Count   int            `cbor:"count"`
	Started time.Time      `cbor:"started"`
	Info    map[string]any `cbor:"info,omitempty"`
}

func TestMarshalRoundTrip(t *testing.T) {
	original := record{
		Name:    "opengym",
		Count:   3,
		Started: time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC),
		Info:    map[string]any{"flows": uint64(4)},
	}
	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded record
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !decoded.Started.Equal(original.Started) {
		t.Errorf("Started = %v, want %v", decoded.Started, original.Started)
	}
	decoded.Started = original.Started
	if !reflect.DeepEqual(decoded, original) {
		t.Errorf("decoded = %+v, want %+v", decoded, original)
	}
}

func TestMarshalIsDeterministic(t *testing.T) {
	value := map[string]int{"zeta": 1, "alpha": 2, "mid": 3}
	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for range 10 {
		again, err := Marshal(value)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("Marshal not deterministic: %x vs %x", first, again)
		}
	}
}

func TestAnyMapsDecodeWithStringKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"nested": map[string]any{"ok": true}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	outer, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded = %T, want map[string]any", decoded)
	}
	if _, ok := outer["nested"].(map[string]any); !ok {
		t.Errorf("nested = %T, want map[string]any", outer["nested"])
	}
}

func TestStreamRoundTrip(t *testing.T) {
	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for i := range 3 {
		if err := encoder.Encode(record{Name: "step", Count: i}); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for i := range 3 {
		var decoded record
		if err := decoder.Decode(&decoded); err != nil {
			t.Fatalf("Decode %d: %v", i, err)
		}
		if decoded.Count != i {
			t.Errorf("record %d has Count %d", i, decoded.Count)
		}
	}
	var extra record
	if err := decoder.Decode(&extra); !errors.Is(err, io.EOF) {
		t.Errorf("Decode past the end = %v, want io.EOF", err)
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	var decoded record
	if err := Unmarshal([]byte{0xff, 0x00}, &decoded); err == nil {
		t.Fatal("Unmarshal accepted invalid CBOR")
	}
}

func TestDiagnose(t *testing.T) {
	data, err := Marshal(map[string]int{"a": 1})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	notation, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(notation, `"a": 1`) {
		t.Errorf("Diagnose = %q", notation)
	}
}
