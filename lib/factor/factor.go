// Copyright 2026 The Cyst Authors
// SPDX-License-Identifier: Apache-2.0

// Package factor defines the pluggable factor capability and the tag
// registry that dispatches envelope leaves to implementations.
//
// A factor turns a user-supplied secret (a passphrase, the contents of
// a keyfile, an age identity) plus stored public parameters into a
// fixed-size key. Derivation is deterministic: the same secret and the
// same parameters always produce the same key, which is what lets an
// envelope sealed today be opened later. Parameters are generated fresh
// at seal time and stored in the envelope; they are public and never
// contain derived material.
//
// Envelopes reference factors by a stable string tag, not by code
// identity, so new factor kinds can be added without touching the
// engine. An envelope carrying a tag the registry does not know is
// reported by the engine as an unsupported factor, never a crash.
package factor

import (
	"fmt"
	"sort"

	"github.com/cyst-foundation/cyst/lib/secret"
)

// KeySize is the size in bytes of every factor-derived key, node key,
// and the data encryption key.
const KeySize = 32

// Factor derives key material from a secret input plus stored public
// parameters. Implementations choose their own derivation: a slow,
// salted KDF for low-entropy secrets (passphrases) or a fast
// cryptographic hash for high-entropy secrets (keyfiles).
type Factor interface {
	// Tag returns the stable identifier written into envelopes.
	// Changing a tag orphans every envelope sealed under it.
	Tag() string

	// GenerateParams produces fresh public parameters (salt, cost
	// settings) for one leaf at seal time, encoded as a CBOR blob.
	// The secret is borrowed: some factors (age) need it to bind the
	// parameters to the supplied credential, most ignore it.
	GenerateParams(secret *secret.Buffer) ([]byte, error)

	// Derive computes the leaf key from the secret and the stored
	// parameters. The returned buffer is exactly KeySize bytes and
	// must be closed by the caller. The secret is borrowed and NOT
	// closed.
	Derive(secret *secret.Buffer, params []byte) (*secret.Buffer, error)
}

// Registry maps stable tags to factor implementations.
type Registry struct {
	factors map[string]Factor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factors: make(map[string]Factor)}
}

// DefaultRegistry returns a registry with the built-in factors:
// passphrase (Argon2id with default costs), keyfile, and age.
func DefaultRegistry() *Registry {
	registry := NewRegistry()
	for _, f := range []Factor{NewPassphrase(), Keyfile{}, AgeKey{}} {
		if err := registry.Register(f); err != nil {
			panic("factor: registering built-in factor: " + err.Error())
		}
	}
	return registry
}

// Register adds a factor. Returns an error if the tag is empty or
// already registered.
func (r *Registry) Register(f Factor) error {
	tag := f.Tag()
	if tag == "" {
		return fmt.Errorf("factor: cannot register empty tag")
	}
	if _, exists := r.factors[tag]; exists {
		return fmt.Errorf("factor: tag %q already registered", tag)
	}
	r.factors[tag] = f
	return nil
}

// Lookup returns the factor for a tag, or false if the tag is unknown.
func (r *Registry) Lookup(tag string) (Factor, bool) {
	f, ok := r.factors[tag]
	return f, ok
}

// Tags returns all registered tags in sorted order.
func (r *Registry) Tags() []string {
	tags := make([]string, 0, len(r.factors))
	for tag := range r.factors {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
