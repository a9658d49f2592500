// Copyright 2026 The Cyst Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/cyst-foundation/cyst/cmd/cyst/cli"
	"github.com/cyst-foundation/cyst/lib/version"
)

func main() {
	if err := run(); err != nil {
		// Commands that print their own output return an ExitError
		// with the desired exit code. Don't print a redundant
		// "error:" line for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return rootCommand().Execute(os.Args[1:])
}

func rootCommand() *cli.Command {
	return &cli.Command{
		Name:    "cyst",
		Summary: "Seal files under factor-tree policies",
		Description: `cyst encrypts files under a policy tree of key factors: passphrases,
keyfiles, and age identities, combined with all(...) and any(...).
Decryption succeeds with any subset of factors that satisfies the
policy; no partial satisfaction leaks anything about the key.`,
		Subcommands: []*cli.Command{
			encryptCommand(),
			decryptCommand(),
			inspectCommand(),
			keygenCommand(),
			versionCommand(),
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Run: func(args []string) error {
			fmt.Printf("cyst %s\n", version.Info())
			return nil
		},
	}
}
