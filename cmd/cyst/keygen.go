// Copyright 2026 The Cyst Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"

	"filippo.io/age"
	"github.com/spf13/pflag"

	"github.com/cyst-foundation/cyst/cmd/cyst/cli"
)

// keyfileSize is the size of generated keyfiles. Larger than the
// derived key so a partial read of the file never reconstructs it.
const keyfileSize = 64

func keygenCommand() *cli.Command {
	var keyfilePath string

	return &cli.Command{
		Name:    "keygen",
		Summary: "Generate an age identity or a random keyfile",
		Description: `Generate key material for cyst factors.

By default, generates an age identity: the recipient (public half)
goes to stdout, the identity itself to stderr for safekeeping. With
--keyfile, writes a random keyfile to the given path instead.`,
		Usage: "cyst keygen [flags]",
		Examples: []cli.Example{
			{
				Description: "Generate an age identity, saving it to a file",
				Command:     "cyst keygen 2> ~/.config/cyst/identity.txt",
			},
			{
				Description: "Generate a keyfile on a USB stick",
				Command:     "cyst keygen --keyfile /mnt/usb/key.bin",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
			flagSet.StringVar(&keyfilePath, "keyfile", "", "write a random keyfile to this path instead")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("keygen takes no positional arguments, got %q", args[0])
			}
			if keyfilePath != "" {
				return runKeyfileGen(keyfilePath)
			}
			return runAgeKeygen()
		},
	}
}

// runAgeKeygen generates a new age identity and prints it. The
// recipient goes to stdout (safe to share and script with), the
// identity to stderr (for safekeeping).
func runAgeKeygen() error {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating identity: %w", err)
	}

	fmt.Fprintf(os.Stderr, "# Identity (keep this secret — store securely):\n")
	fmt.Fprintf(os.Stderr, "%s\n", identity.String())
	fmt.Fprintf(os.Stdout, "%s\n", identity.Recipient())
	return nil
}

// runKeyfileGen writes a fresh random keyfile, refusing to clobber an
// existing one.
func runKeyfileGen(path string) error {
	material := make([]byte, keyfileSize)
	if _, err := io.ReadFull(rand.Reader, material); err != nil {
		return fmt.Errorf("generating key material: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("creating keyfile: %w", err)
	}
	if _, err := file.Write(material); err != nil {
		file.Close()
		return fmt.Errorf("writing keyfile: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing keyfile: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Keyfile written to %s\n", path)
	return nil
}
