// Copyright 2026 The Cyst Authors
// SPDX-License-Identifier: Apache-2.0

package factor

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"

	"github.com/cyst-foundation/cyst/lib/codec"
	"github.com/cyst-foundation/cyst/lib/secret"
)

// TagPassphrase is the wire tag for the passphrase factor.
const TagPassphrase = "passphrase"

// passphraseSaltSize is the size of the random salt generated per leaf.
const passphraseSaltSize = 16

// passphraseParams is the stored public parameter blob for one
// passphrase leaf. Costs are stored alongside the salt so envelopes
// sealed under older defaults remain openable after defaults change.
type passphraseParams struct {
	Salt      []byte `cbor:"salt"`
	Time      uint32 `cbor:"time"`
	MemoryKiB uint32 `cbor:"memory_kib"`
	Threads   uint8  `cbor:"threads"`
}

// Passphrase derives keys from human-chosen secrets with Argon2id, a
// memory-hard KDF. The cost settings are deliberately slow to resist
// offline guessing of low-entropy inputs.
type Passphrase struct {
	// Time is the number of Argon2id passes.
	Time uint32

	// MemoryKiB is the Argon2id memory cost in KiB.
	MemoryKiB uint32

	// Threads is the Argon2id parallelism degree.
	Threads uint8
}

// NewPassphrase returns a passphrase factor with the recommended
// Argon2id costs from the x/crypto documentation: 1 pass, 64 MiB,
// 4 lanes.
func NewPassphrase() *Passphrase {
	return &Passphrase{Time: 1, MemoryKiB: 64 * 1024, Threads: 4}
}

// Tag implements Factor.
func (p *Passphrase) Tag() string { return TagPassphrase }

// GenerateParams generates a fresh random salt and records the
// factor's current cost settings. The secret is not consulted.
func (p *Passphrase) GenerateParams(_ *secret.Buffer) ([]byte, error) {
	if p.Time == 0 || p.MemoryKiB == 0 || p.Threads == 0 {
		return nil, fmt.Errorf("passphrase factor: costs must be non-zero (time=%d memory=%d threads=%d)",
			p.Time, p.MemoryKiB, p.Threads)
	}

	salt := make([]byte, passphraseSaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("passphrase factor: generating salt: %w", err)
	}

	params, err := codec.Marshal(passphraseParams{
		Salt:      salt,
		Time:      p.Time,
		MemoryKiB: p.MemoryKiB,
		Threads:   p.Threads,
	})
	if err != nil {
		return nil, fmt.Errorf("passphrase factor: encoding params: %w", err)
	}
	return params, nil
}

// Derive runs Argon2id over the passphrase with the stored salt and
// costs. The costs come from the envelope, not the factor instance, so
// unsealing does not depend on current defaults.
func (p *Passphrase) Derive(passphrase *secret.Buffer, paramBlob []byte) (*secret.Buffer, error) {
	var params passphraseParams
	if err := codec.Unmarshal(paramBlob, &params); err != nil {
		return nil, fmt.Errorf("passphrase factor: decoding params: %w", err)
	}
	if len(params.Salt) == 0 || params.Time == 0 || params.MemoryKiB == 0 || params.Threads == 0 {
		return nil, fmt.Errorf("passphrase factor: invalid stored params")
	}

	key := argon2.IDKey(passphrase.Bytes(), params.Salt, params.Time, params.MemoryKiB, params.Threads, KeySize)

	// NewFromBytes copies into mmap-backed memory and zeros the heap copy.
	return secret.NewFromBytes(key)
}
