// Copyright 2026 The Cyst Authors
// SPDX-License-Identifier: Apache-2.0

package factor

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"

	"filippo.io/age"

	"github.com/cyst-foundation/cyst/lib/codec"
	"github.com/cyst-foundation/cyst/lib/secret"
)

// TagAge is the wire tag for the age identity factor.
const TagAge = "age"

// ageParams is the stored public parameter blob for one age leaf: a
// fresh random value encrypted to the identity's recipient. The
// ciphertext is safe to publish; only the matching identity recovers
// the value.
type ageParams struct {
	Wrapped []byte `cbor:"wrapped"`
}

// AgeKey derives keys from an age x25519 identity (the
// AGE-SECRET-KEY-1... string produced by "cyst keygen"). At seal time
// a random value is encrypted to the identity's recipient and stored
// as the leaf's parameters; deriving decrypts it. Unlike the hash
// factors, possession of the identity is proven by decryption rather
// than recomputation.
type AgeKey struct{}

// Tag implements Factor.
func (AgeKey) Tag() string { return TagAge }

// GenerateParams encrypts a fresh random value to the recipient of
// the supplied identity.
func (AgeKey) GenerateParams(identitySecret *secret.Buffer) ([]byte, error) {
	identity, err := age.ParseX25519Identity(identitySecret.String())
	if err != nil {
		return nil, fmt.Errorf("age factor: parsing identity: %w", err)
	}

	fresh := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, fresh); err != nil {
		return nil, fmt.Errorf("age factor: generating leaf value: %w", err)
	}
	defer secret.Zero(fresh)

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, identity.Recipient())
	if err != nil {
		return nil, fmt.Errorf("age factor: creating encryptor: %w", err)
	}
	if _, err := writer.Write(fresh); err != nil {
		return nil, fmt.Errorf("age factor: encrypting leaf value: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("age factor: finalizing encryption: %w", err)
	}

	params, err := codec.Marshal(ageParams{Wrapped: ciphertext.Bytes()})
	if err != nil {
		return nil, fmt.Errorf("age factor: encoding params: %w", err)
	}
	return params, nil
}

// Derive decrypts the stored value with the supplied identity. A wrong
// identity fails to decrypt, which the engine treats the same as any
// other unusable leaf.
func (AgeKey) Derive(identitySecret *secret.Buffer, paramBlob []byte) (*secret.Buffer, error) {
	var params ageParams
	if err := codec.Unmarshal(paramBlob, &params); err != nil {
		return nil, fmt.Errorf("age factor: decoding params: %w", err)
	}
	if len(params.Wrapped) == 0 {
		return nil, fmt.Errorf("age factor: invalid stored params")
	}

	identity, err := age.ParseX25519Identity(identitySecret.String())
	if err != nil {
		return nil, fmt.Errorf("age factor: parsing identity: %w", err)
	}

	reader, err := age.Decrypt(bytes.NewReader(params.Wrapped), identity)
	if err != nil {
		return nil, fmt.Errorf("age factor: decrypting leaf value: %w", err)
	}
	value, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("age factor: reading decrypted leaf value: %w", err)
	}
	if len(value) != KeySize {
		secret.Zero(value)
		return nil, fmt.Errorf("age factor: decrypted leaf value is %d bytes, want %d", len(value), KeySize)
	}

	return secret.NewFromBytes(value)
}
