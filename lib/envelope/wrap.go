// Copyright 2026 The Cyst Authors
// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"sort"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/cyst-foundation/cyst/lib/factor"
	"github.com/cyst-foundation/cyst/lib/secret"
)

// wrapVersion is the version byte prepended to every key wrap.
// Included in the AAD, so tampering with it fails authentication.
const wrapVersion byte = 0x01

// wrapOverhead is the total byte overhead per wrap:
// 1 (version) + 24 (XChaCha20-Poly1305 nonce) + 16 (Poly1305 tag).
const wrapOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// AAD domain tags. Domain separation keeps a disjunction-branch wrap
// from ever being replayed as a DEK wrap or vice versa. Changing any
// of these orphans all existing envelopes.
var (
	wrapDomainBranch = []byte("cyst.wrap.branch.v1")
	wrapDomainDEK    = []byte("cyst.wrap.dek.v1")
	combineInfoAll   = []byte("cyst.combine.all.v1")
)

// wrapKey authenticated-encrypts innerKey under wrappingKey:
//
//	[Version: 1 byte] [Nonce: 24 bytes (random)] [Ciphertext+Tag]
//
// The version byte and the domain tag are the AAD. Successful
// decryption both recovers innerKey and proves possession of
// wrappingKey.
func wrapKey(innerKey, wrappingKey *secret.Buffer, domain []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(wrappingKey.Bytes())
	if err != nil {
		return nil, fmt.Errorf("envelope: creating XChaCha20-Poly1305 cipher: %w", err)
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("envelope: generating wrap nonce: %w", err)
	}

	output := make([]byte, 1+chacha20poly1305.NonceSizeX, wrapOverhead+innerKey.Len())
	output[0] = wrapVersion
	copy(output[1:], nonce[:])

	return aead.Seal(output, nonce[:], innerKey.Bytes(), buildAAD(wrapVersion, domain)), nil
}

// unwrapKey decrypts a wrap produced by wrapKey. Any fault — short
// blob, unknown version, failed authentication — yields an error; the
// caller decides whether that means a dead branch or a corrupt
// envelope.
func unwrapKey(blob []byte, wrappingKey *secret.Buffer, domain []byte) (*secret.Buffer, error) {
	if len(blob) < wrapOverhead {
		return nil, fmt.Errorf("envelope: wrap is %d bytes, minimum is %d", len(blob), wrapOverhead)
	}
	version := blob[0]
	if version != wrapVersion {
		return nil, fmt.Errorf("envelope: wrap version %d is not supported (expected %d)", version, wrapVersion)
	}

	aead, err := chacha20poly1305.NewX(wrappingKey.Bytes())
	if err != nil {
		return nil, fmt.Errorf("envelope: creating XChaCha20-Poly1305 cipher: %w", err)
	}

	nonce := blob[1 : 1+chacha20poly1305.NonceSizeX]
	ciphertext := blob[1+chacha20poly1305.NonceSizeX:]

	innerKey, err := aead.Open(nil, nonce, ciphertext, buildAAD(version, domain))
	if err != nil {
		return nil, fmt.Errorf("envelope: wrap authentication failed: %w", err)
	}

	// NewFromBytes copies into mmap-backed memory and zeros the heap copy.
	return secret.NewFromBytes(innerKey)
}

// combineAll computes a conjunction's node key from its children's
// keys: the keys are copied, sorted bytewise, concatenated, and fed as
// input key material to HKDF-SHA256 with a domain info string. Sorting
// makes the combine a pure function of the key set, independent of
// child order; the result is computable only by a party holding every
// child key.
func combineAll(childKeys []*secret.Buffer) (*secret.Buffer, error) {
	sorted := make([][]byte, len(childKeys))
	for i, key := range childKeys {
		sorted[i] = bytes.Clone(key.Bytes())
	}
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i], sorted[j]) < 0 })

	material := bytes.Join(sorted, nil)
	defer secret.Zero(material)
	for _, copied := range sorted {
		secret.Zero(copied)
	}

	reader := hkdf.New(sha256.New, material, nil, combineInfoAll)
	combined := make([]byte, factor.KeySize)
	if _, err := io.ReadFull(reader, combined); err != nil {
		secret.Zero(combined)
		return nil, fmt.Errorf("envelope: HKDF combine failed: %w", err)
	}
	return secret.NewFromBytes(combined)
}

// randomKey generates a fresh random node key.
func randomKey() (*secret.Buffer, error) {
	key := make([]byte, factor.KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		secret.Zero(key)
		return nil, fmt.Errorf("envelope: generating node key: %w", err)
	}
	return secret.NewFromBytes(key)
}

// buildAAD constructs the additional authenticated data for a wrap:
// the version byte followed by the domain tag.
func buildAAD(version byte, domain []byte) []byte {
	aad := make([]byte, 1+len(domain))
	aad[0] = version
	copy(aad[1:], domain)
	return aad
}
