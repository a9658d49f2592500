// Copyright 2026 The Cyst Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Cyst's standard CBOR encoding configuration.
//
// Cyst envelopes are binary: one format-version byte followed by a CBOR
// body. This package provides the shared encoding and decoding modes so
// that the envelope codec and every factor's parameter blob encode
// identically without duplicating configuration. The encoder uses Core
// Deterministic Encoding (RFC 8949 §4.2): sorted map keys, smallest
// integer encoding, no indefinite-length items. The same logical data
// always produces identical bytes, so sealing the same tree with the
// same randomness would produce the same envelope — useful for tests
// and for auditing envelope contents.
//
// The decoder ignores unknown fields for forward compatibility: a
// future format version may add fields that an older reader skips,
// while the version byte outside the CBOR body gates incompatible
// changes.
package codec
