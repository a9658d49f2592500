// Copyright 2026 The Cyst Authors
// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"github.com/cyst-foundation/cyst/lib/codec"
	"github.com/cyst-foundation/cyst/lib/policy"
)

// FormatVersion is the envelope format version byte. It sits outside
// the CBOR body: a reader that does not recognize it must not attempt
// to parse the rest.
const FormatVersion byte = 0x01

// Wire kind bytes. Fixed small integers rather than the in-memory
// policy.Kind values, so the wire format cannot drift if the engine's
// enum is ever reordered.
const (
	wireKindLeaf uint8 = 1
	wireKindAll  uint8 = 2
	wireKindAny  uint8 = 3
)

// nodeRecord is the CBOR form of one wrapped node. Deterministic CBOR
// supplies the kind, count, and length framing; unknown fields are
// ignored on read for forward compatibility within a format version.
type nodeRecord struct {
	Kind     uint8        `cbor:"kind"`
	Tag      string       `cbor:"tag,omitempty"`
	Name     string       `cbor:"name,omitempty"`
	Params   []byte       `cbor:"params,omitempty"`
	Children []nodeRecord `cbor:"children,omitempty"`
	Wraps    [][]byte     `cbor:"wraps,omitempty"`
}

// envelopeBody is the CBOR form of an envelope, everything after the
// version byte.
type envelopeBody struct {
	Root    nodeRecord `cbor:"root"`
	DEKWrap []byte     `cbor:"dek_wrap"`
}

// Encode serializes the envelope: one format-version byte followed by
// a deterministic-CBOR body. The same envelope always encodes to
// identical bytes.
func (e *Envelope) Encode() ([]byte, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}

	body, err := codec.Marshal(envelopeBody{
		Root:    toRecord(e.Root),
		DEKWrap: e.DEKWrap,
	})
	if err != nil {
		return nil, corrupt("encoding body: %v", err)
	}

	out := make([]byte, 1+len(body))
	out[0] = FormatVersion
	copy(out[1:], body)
	return out, nil
}

// Decode parses an envelope. Parsing is fail-closed: an unknown
// version byte, undecodable CBOR, or any structural violation yields
// an error wrapping ErrCorruptEnvelope, and malformed input is never
// partially trusted.
func Decode(data []byte) (*Envelope, error) {
	if len(data) < 2 {
		return nil, corrupt("envelope is %d bytes, minimum is 2", len(data))
	}
	if data[0] != FormatVersion {
		return nil, corrupt("format version %d is not supported (expected %d)", data[0], FormatVersion)
	}

	var body envelopeBody
	if err := codec.Unmarshal(data[1:], &body); err != nil {
		return nil, corrupt("decoding body: %v", err)
	}

	root, err := fromRecord(&body.Root, 1)
	if err != nil {
		return nil, err
	}

	envelope := &Envelope{Root: root, DEKWrap: body.DEKWrap}
	if err := envelope.validate(); err != nil {
		return nil, err
	}
	return envelope, nil
}

func toRecord(node *WrappedNode) nodeRecord {
	record := nodeRecord{Params: node.Params, Wraps: node.Wraps}

	switch node.Kind {
	case policy.KindLeaf:
		record.Kind = wireKindLeaf
		record.Tag = node.Tag
		// The name is stored only when it differs from the tag.
		if node.Name != node.Tag {
			record.Name = node.Name
		}
	case policy.KindAll:
		record.Kind = wireKindAll
	case policy.KindAny:
		record.Kind = wireKindAny
	}

	if len(node.Children) > 0 {
		record.Children = make([]nodeRecord, len(node.Children))
		for i, child := range node.Children {
			record.Children[i] = toRecord(child)
		}
	}
	return record
}

func fromRecord(record *nodeRecord, depth int) (*WrappedNode, error) {
	if depth > policy.MaxDepth {
		return nil, corrupt("tree deeper than %d levels", policy.MaxDepth)
	}

	node := &WrappedNode{Params: record.Params, Wraps: record.Wraps}

	switch record.Kind {
	case wireKindLeaf:
		node.Kind = policy.KindLeaf
		node.Tag = record.Tag
		node.Name = record.Name
		if node.Name == "" {
			node.Name = node.Tag
		}
	case wireKindAll:
		node.Kind = policy.KindAll
	case wireKindAny:
		node.Kind = policy.KindAny
	default:
		return nil, corrupt("unknown node kind byte %d", record.Kind)
	}

	if len(record.Children) > 0 {
		node.Children = make([]*WrappedNode, len(record.Children))
		for i := range record.Children {
			child, err := fromRecord(&record.Children[i], depth+1)
			if err != nil {
				return nil, err
			}
			node.Children[i] = child
		}
	}
	return node, nil
}
