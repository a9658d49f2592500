// Copyright 2026 The Cyst Authors
// SPDX-License-Identifier: Apache-2.0

// Package content encrypts payload streams under a data encryption
// key. Plaintext is split into fixed-size chunks, each sealed with
// XChaCha20-Poly1305 under a per-stream random nonce prefix and a
// chunk counter. The final chunk is marked in the authenticated
// associated data, so a stream cut at a chunk boundary fails to
// decrypt instead of yielding a silently shortened payload.
//
// The package also frames the container file: a magic header, the
// length-prefixed sealed envelope, then the chunk stream. Callers
// obtain the envelope via ReadHeader, recover the DEK from it, and
// hand the DEK to NewReader for the remainder of the file.
package content
