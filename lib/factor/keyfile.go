// Copyright 2026 The Cyst Authors
// SPDX-License-Identifier: Apache-2.0

package factor

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/zeebo/blake3"

	"github.com/cyst-foundation/cyst/lib/codec"
	"github.com/cyst-foundation/cyst/lib/secret"
)

// TagKeyfile is the wire tag for the keyfile factor.
const TagKeyfile = "keyfile"

// keyfileSaltSize is the size of the random salt generated per leaf.
// The salt makes two leaves over the same keyfile derive different
// keys, so an envelope never reveals that two branches share a file.
const keyfileSaltSize = 16

// keyfileDomainKey is the BLAKE3 keyed-hash key for keyfile
// derivation. The byte values are the ASCII encoding of the domain
// name, zero-padded to 32 bytes: readable in hex dumps without
// sacrificing any cryptographic property. Changing it orphans every
// envelope with a keyfile leaf.
var keyfileDomainKey = [32]byte{
	'c', 'y', 's', 't', '.', 'f', 'a', 'c', 't', 'o', 'r', '.',
	'k', 'e', 'y', 'f', 'i', 'l', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// keyfileParams is the stored public parameter blob for one keyfile leaf.
type keyfileParams struct {
	Salt []byte `cbor:"salt"`
}

// Keyfile derives keys from high-entropy file contents with a single
// BLAKE3 keyed hash. No slow KDF: the input is assumed to be random
// bytes (for example a file written by "cyst keygen --keyfile"), so
// stretching adds nothing.
type Keyfile struct{}

// Tag implements Factor.
func (Keyfile) Tag() string { return TagKeyfile }

// GenerateParams generates a fresh random salt. The secret is not
// consulted.
func (Keyfile) GenerateParams(_ *secret.Buffer) ([]byte, error) {
	salt := make([]byte, keyfileSaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("keyfile factor: generating salt: %w", err)
	}

	params, err := codec.Marshal(keyfileParams{Salt: salt})
	if err != nil {
		return nil, fmt.Errorf("keyfile factor: encoding params: %w", err)
	}
	return params, nil
}

// Derive computes BLAKE3-keyed(domain, salt || contents).
func (Keyfile) Derive(contents *secret.Buffer, paramBlob []byte) (*secret.Buffer, error) {
	var params keyfileParams
	if err := codec.Unmarshal(paramBlob, &params); err != nil {
		return nil, fmt.Errorf("keyfile factor: decoding params: %w", err)
	}
	if len(params.Salt) == 0 {
		return nil, fmt.Errorf("keyfile factor: invalid stored params")
	}

	hasher, err := blake3.NewKeyed(keyfileDomainKey[:])
	if err != nil {
		panic("factor: BLAKE3 keyed hash initialization failed (key must be 32 bytes): " + err.Error())
	}
	hasher.Write(params.Salt)
	hasher.Write(contents.Bytes())

	key := hasher.Sum(nil)[:KeySize]
	return secret.NewFromBytes(key)
}
