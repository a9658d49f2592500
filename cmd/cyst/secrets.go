// Copyright 2026 The Cyst Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/cyst-foundation/cyst/cmd/cyst/cli"
	"github.com/cyst-foundation/cyst/lib/factor"
	"github.com/cyst-foundation/cyst/lib/policy"
	"github.com/cyst-foundation/cyst/lib/secret"
)

// secretSources holds the repeatable name=path flags that bind factor
// secrets to policy leaves. The name is a leaf name from the policy
// expression (which defaults to the factor tag when unnamed).
type secretSources struct {
	passphraseFiles []string
	keyfiles        []string
	identityFiles   []string
}

// parseNamedPaths splits repeated "name=path" flag values into a map.
// A bare "path" with no "=" binds to defaultName, so single-leaf
// policies don't force the name= prefix.
func parseNamedPaths(values []string, flagName, defaultName string) (map[string]string, error) {
	paths := make(map[string]string, len(values))
	for _, value := range values {
		name, path, found := strings.Cut(value, "=")
		if !found {
			name, path = defaultName, value
		}
		if name == "" || path == "" {
			return nil, fmt.Errorf("--%s %q: want name=path", flagName, value)
		}
		if _, duplicate := paths[name]; duplicate {
			return nil, fmt.Errorf("--%s: duplicate entry for %q", flagName, name)
		}
		paths[name] = path
	}
	return paths, nil
}

// collectSecrets gathers a secret buffer per policy leaf from the flag
// sources, prompting on the terminal where the sources are silent.
//
// When sealing every leaf needs a secret and passphrase prompts ask
// for confirmation. When unsealing a missing secret skips the leaf
// (the policy decides whether enough remain), and empty prompt input
// also skips.
func collectSecrets(leaves []*policy.Node, sources secretSources, sealing bool) (map[string]*secret.Buffer, error) {
	passphrases, err := parseNamedPaths(sources.passphraseFiles, "passphrase-file", factor.TagPassphrase)
	if err != nil {
		return nil, err
	}
	keyfiles, err := parseNamedPaths(sources.keyfiles, "keyfile", factor.TagKeyfile)
	if err != nil {
		return nil, err
	}
	identities, err := parseNamedPaths(sources.identityFiles, "identity", factor.TagAge)
	if err != nil {
		return nil, err
	}

	secrets := make(map[string]*secret.Buffer, len(leaves))
	closeAll := func() {
		for _, buffer := range secrets {
			buffer.Close()
		}
	}

	for _, leaf := range leaves {
		var buffer *secret.Buffer
		var err error
		switch leaf.Tag {
		case factor.TagPassphrase:
			buffer, err = passphraseSecret(leaf.Name, passphrases, sealing)
		case factor.TagKeyfile:
			buffer, err = keyfileSecret(leaf.Name, keyfiles, sealing)
		case factor.TagAge:
			buffer, err = identitySecret(leaf.Name, identities, sealing)
		default:
			err = fmt.Errorf("no secret source for factor %q", leaf.Tag)
		}
		if err != nil {
			closeAll()
			return nil, err
		}
		if buffer != nil {
			secrets[leaf.Name] = buffer
		}
	}
	return secrets, nil
}

func passphraseSecret(name string, paths map[string]string, sealing bool) (*secret.Buffer, error) {
	if path, ok := paths[name]; ok {
		return secret.ReadFromPath(path)
	}
	label := fmt.Sprintf("passphrase %q", name)
	buffer, err := cli.ReadSecret("", label, sealing)
	if err != nil && !sealing && errors.Is(err, secret.ErrEmpty) {
		// During unsealing an empty prompt means "I don't have this
		// one" and skips the leaf.
		return nil, nil
	}
	return buffer, err
}

func keyfileSecret(name string, paths map[string]string, sealing bool) (*secret.Buffer, error) {
	path, ok := paths[name]
	if !ok {
		if sealing {
			return nil, fmt.Errorf("keyfile leaf %q needs --keyfile %s=<path>", name, name)
		}
		return nil, nil
	}
	// Keyfiles are raw bytes; read them without the whitespace
	// trimming applied to textual secrets.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading keyfile %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("keyfile %s is empty", path)
	}
	return secret.NewFromBytes(data)
}

func identitySecret(name string, paths map[string]string, sealing bool) (*secret.Buffer, error) {
	path, ok := paths[name]
	if !ok {
		if sealing {
			return nil, fmt.Errorf("age leaf %q needs --identity %s=<path>", name, name)
		}
		return nil, nil
	}
	// Identity files written by "cyst keygen" (and age-keygen) carry
	// comment lines; the identity itself is the AGE-SECRET-KEY line.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading identity %s: %w", path, err)
	}
	defer secret.Zero(data)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "AGE-SECRET-KEY-") {
			return secret.NewFromBytes([]byte(line))
		}
	}
	return nil, fmt.Errorf("no AGE-SECRET-KEY line in %s", path)
}
