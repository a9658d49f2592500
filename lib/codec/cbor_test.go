// Copyright 2026 The Cyst Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
)

// sampleParams is a representative factor parameter blob using cbor
// struct tags (the convention for purely-internal types).
type sampleParams struct {
	Salt    []byte `cbor:"salt"`
	Time    uint32 `cbor:"time"`
	Memory  uint32 `cbor:"memory,omitempty"`
	Threads uint8  `cbor:"threads,omitempty"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sampleParams{
		Salt:    []byte{0x01, 0x02, 0x03, 0x04},
		Time:    3,
		Memory:  65536,
		Threads: 4,
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	if len(data) == 0 {
		t.Fatal("Marshal produced empty output")
	}

	var decoded sampleParams
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if !bytes.Equal(decoded.Salt, original.Salt) ||
		decoded.Time != original.Time ||
		decoded.Memory != original.Memory ||
		decoded.Threads != original.Threads {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	params := sampleParams{
		Salt:    []byte{0xaa, 0xbb},
		Time:    1,
		Memory:  8,
		Threads: 1,
	}

	first, err := Marshal(params)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	second, err := Marshal(params)
	if err != nil {
		t.Fatalf("second Marshal: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Error("deterministic encoding produced different bytes for the same value")
	}
}

func TestUnmarshal_IgnoresUnknownFields(t *testing.T) {
	// A future format version may add fields; older readers must skip
	// them rather than fail.
	data, err := Marshal(map[string]any{
		"salt":   []byte{0x01},
		"time":   uint32(2),
		"future": "field",
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleParams
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal with unknown field: %v", err)
	}
	if decoded.Time != 2 {
		t.Errorf("expected time 2, got %d", decoded.Time)
	}
}

func TestUnmarshal_Garbage(t *testing.T) {
	var decoded sampleParams
	if err := Unmarshal([]byte{0xff, 0xff, 0xff}, &decoded); err == nil {
		t.Fatal("expected error decoding garbage bytes")
	}
}

func TestDiagnose(t *testing.T) {
	data, err := Marshal(sampleParams{Salt: []byte{0x01}, Time: 9})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	notation, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(notation, "salt") {
		t.Errorf("diagnostic notation missing field name: %s", notation)
	}
}
