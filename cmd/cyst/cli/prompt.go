// Copyright 2026 The Cyst Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/cyst-foundation/cyst/lib/secret"
)

// ReadSecret obtains a secret for a factor. When path is non-empty it
// reads the file (or stdin for "-"). Otherwise it prompts on the
// terminal with echo disabled, or falls back to reading stdin when no
// terminal is attached (pipelines, tests).
//
// confirm asks for the secret twice and rejects mismatches; it is set
// when sealing, where a typo would lock the payload under a
// passphrase nobody knows. Empty input is reported as
// [secret.ErrEmpty].
func ReadSecret(path, label string, confirm bool) (*secret.Buffer, error) {
	if path != "" {
		return secret.ReadFromPath(path)
	}

	stdinFileDescriptor := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFileDescriptor) {
		return secret.ReadFromPath("-")
	}

	fmt.Fprintf(os.Stderr, "%s: ", label)
	first, err := term.ReadPassword(stdinFileDescriptor)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", label, err)
	}
	if len(first) == 0 {
		return nil, fmt.Errorf("%s: %w", label, secret.ErrEmpty)
	}

	if confirm {
		fmt.Fprintf(os.Stderr, "Confirm %s: ", label)
		second, err := term.ReadPassword(stdinFileDescriptor)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			secret.Zero(first)
			return nil, fmt.Errorf("reading %s confirmation: %w", label, err)
		}
		match := len(first) == len(second)
		if match {
			for index := range first {
				if first[index] != second[index] {
					match = false
					break
				}
			}
		}
		secret.Zero(second)
		if !match {
			secret.Zero(first)
			return nil, fmt.Errorf("%s entries do not match", label)
		}
	}

	buffer, err := secret.NewFromBytes(first)
	if err != nil {
		secret.Zero(first)
		return nil, err
	}
	return buffer, nil
}
