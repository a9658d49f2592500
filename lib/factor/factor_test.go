// Copyright 2026 The Cyst Authors
// SPDX-License-Identifier: Apache-2.0

package factor

import (
	"bytes"
	"testing"

	"filippo.io/age"

	"github.com/cyst-foundation/cyst/lib/secret"
)

// cheapPassphrase returns a passphrase factor with minimal Argon2id
// costs so tests stay fast. Production defaults live in NewPassphrase.
func cheapPassphrase() *Passphrase {
	return &Passphrase{Time: 1, MemoryKiB: 8, Threads: 1}
}

// testSecret wraps a byte string in a secret buffer and registers
// cleanup.
func testSecret(t *testing.T, value string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromBytes([]byte(value))
	if err != nil {
		t.Fatalf("creating secret buffer: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })
	return buffer
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(cheapPassphrase()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, ok := registry.Lookup(TagPassphrase); !ok {
		t.Error("registered tag not found")
	}
	if _, ok := registry.Lookup("smartcard"); ok {
		t.Error("unknown tag unexpectedly found")
	}
}

func TestRegistry_DuplicateTag(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(cheapPassphrase()); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := registry.Register(NewPassphrase()); err == nil {
		t.Fatal("expected error registering duplicate tag")
	}
}

func TestDefaultRegistry_Tags(t *testing.T) {
	tags := DefaultRegistry().Tags()
	want := []string{TagAge, TagKeyfile, TagPassphrase}
	if len(tags) != len(want) {
		t.Fatalf("got tags %v, want %v", tags, want)
	}
	for i := range want {
		if tags[i] != want[i] {
			t.Fatalf("got tags %v, want %v", tags, want)
		}
	}
}

func TestPassphrase_DeriveDeterministic(t *testing.T) {
	f := cheapPassphrase()
	phrase := testSecret(t, "correct horse battery staple")

	params, err := f.GenerateParams(phrase)
	if err != nil {
		t.Fatalf("GenerateParams: %v", err)
	}

	first, err := f.Derive(phrase, params)
	if err != nil {
		t.Fatalf("first Derive: %v", err)
	}
	defer first.Close()

	second, err := f.Derive(phrase, params)
	if err != nil {
		t.Fatalf("second Derive: %v", err)
	}
	defer second.Close()

	if first.Len() != KeySize {
		t.Errorf("derived key is %d bytes, want %d", first.Len(), KeySize)
	}
	if !first.Equal(second.Bytes()) {
		t.Error("identical inputs derived different keys")
	}
}

func TestPassphrase_WrongSecretDerivesDifferentKey(t *testing.T) {
	f := cheapPassphrase()
	right := testSecret(t, "right passphrase")
	wrong := testSecret(t, "wrong passphrase")

	params, err := f.GenerateParams(right)
	if err != nil {
		t.Fatalf("GenerateParams: %v", err)
	}

	rightKey, err := f.Derive(right, params)
	if err != nil {
		t.Fatalf("Derive(right): %v", err)
	}
	defer rightKey.Close()

	wrongKey, err := f.Derive(wrong, params)
	if err != nil {
		t.Fatalf("Derive(wrong): %v", err)
	}
	defer wrongKey.Close()

	if rightKey.Equal(wrongKey.Bytes()) {
		t.Error("different passphrases derived the same key")
	}
}

func TestPassphrase_FreshSaltPerSeal(t *testing.T) {
	f := cheapPassphrase()
	phrase := testSecret(t, "some passphrase")

	first, err := f.GenerateParams(phrase)
	if err != nil {
		t.Fatalf("first GenerateParams: %v", err)
	}
	second, err := f.GenerateParams(phrase)
	if err != nil {
		t.Fatalf("second GenerateParams: %v", err)
	}

	if bytes.Equal(first, second) {
		t.Error("two seals produced identical params (salt not fresh)")
	}
}

func TestPassphrase_CorruptParams(t *testing.T) {
	f := cheapPassphrase()
	phrase := testSecret(t, "some passphrase")

	if _, err := f.Derive(phrase, []byte{0xff, 0xff}); err == nil {
		t.Fatal("expected error for undecodable params")
	}
}

func TestKeyfile_Derive(t *testing.T) {
	f := Keyfile{}
	contents := testSecret(t, "pretend-this-is-random-keyfile-data")

	params, err := f.GenerateParams(contents)
	if err != nil {
		t.Fatalf("GenerateParams: %v", err)
	}

	key, err := f.Derive(contents, params)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	defer key.Close()

	if key.Len() != KeySize {
		t.Errorf("derived key is %d bytes, want %d", key.Len(), KeySize)
	}

	// Same contents, different salt: different key.
	otherParams, err := f.GenerateParams(contents)
	if err != nil {
		t.Fatalf("second GenerateParams: %v", err)
	}
	otherKey, err := f.Derive(contents, otherParams)
	if err != nil {
		t.Fatalf("second Derive: %v", err)
	}
	defer otherKey.Close()

	if key.Equal(otherKey.Bytes()) {
		t.Error("different salts derived the same key")
	}
}

func TestAgeKey_RoundTrip(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("generating age identity: %v", err)
	}
	identitySecret := testSecret(t, identity.String())

	f := AgeKey{}
	params, err := f.GenerateParams(identitySecret)
	if err != nil {
		t.Fatalf("GenerateParams: %v", err)
	}

	first, err := f.Derive(identitySecret, params)
	if err != nil {
		t.Fatalf("first Derive: %v", err)
	}
	defer first.Close()

	second, err := f.Derive(identitySecret, params)
	if err != nil {
		t.Fatalf("second Derive: %v", err)
	}
	defer second.Close()

	if !first.Equal(second.Bytes()) {
		t.Error("repeated derivation with the same identity differed")
	}
}

func TestAgeKey_WrongIdentityFails(t *testing.T) {
	rightIdentity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("generating age identity: %v", err)
	}
	wrongIdentity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("generating age identity: %v", err)
	}

	f := AgeKey{}
	params, err := f.GenerateParams(testSecret(t, rightIdentity.String()))
	if err != nil {
		t.Fatalf("GenerateParams: %v", err)
	}

	if _, err := f.Derive(testSecret(t, wrongIdentity.String()), params); err == nil {
		t.Fatal("expected error deriving with the wrong identity")
	}
}
