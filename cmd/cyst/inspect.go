// Copyright 2026 The Cyst Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"
	"github.com/zeebo/blake3"

	"github.com/cyst-foundation/cyst/cmd/cyst/cli"
	"github.com/cyst-foundation/cyst/lib/codec"
	"github.com/cyst-foundation/cyst/lib/content"
	"github.com/cyst-foundation/cyst/lib/envelope"
)

func inspectCommand() *cli.Command {
	var showCBOR bool

	return &cli.Command{
		Name:    "inspect",
		Summary: "Show a container's policy and factor parameters",
		Description: `Show what a cyst container requires to decrypt: the policy tree, each
factor leaf with its tag and stored parameter size, and the envelope
format version. No secrets are needed; everything shown is public.

Exits 1 when the file is not a readable cyst container.`,
		Usage: "cyst inspect [flags] <input>",
		Examples: []cli.Example{
			{
				Description: "Show the policy of a container",
				Command:     "cyst inspect backup.tar.cyst",
			},
			{
				Description: "Dump the envelope in CBOR diagnostic notation",
				Command:     "cyst inspect --cbor backup.tar.cyst",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
			flagSet.BoolVar(&showCBOR, "cbor", false, "dump the envelope body in CBOR diagnostic notation")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one input file required (use - for stdin)")
			}
			return runInspect(args[0], showCBOR)
		},
	}
}

func runInspect(inputPath string, showCBOR bool) error {
	input, closeInput, err := openInput(inputPath)
	if err != nil {
		return err
	}
	defer closeInput()

	encoded, err := content.ReadHeader(input)
	if err != nil {
		fmt.Printf("container unreadable: %v\n", err)
		return &cli.ExitError{Code: 1}
	}
	env, err := envelope.Decode(encoded)
	if err != nil {
		fmt.Printf("envelope unreadable: %v\n", err)
		return &cli.ExitError{Code: 1}
	}

	fingerprint := blake3.Sum256(encoded)

	fmt.Printf("format version: %d\n", encoded[0])
	fmt.Printf("policy: %s\n", env.Policy().String())
	fmt.Printf("envelope size: %d bytes\n", len(encoded))
	fmt.Printf("envelope fingerprint: %s\n", hex.EncodeToString(fingerprint[:8]))

	leaves := env.Leaves()
	fmt.Printf("\nfactors (%d):\n", len(leaves))
	tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "  NAME\tFACTOR\tPARAMS\n")
	for _, leaf := range leaves {
		fmt.Fprintf(tw, "  %s\t%s\t%d bytes\n", leaf.Name, leaf.Tag, len(leaf.Params))
	}
	tw.Flush()

	if showCBOR {
		diagnostic, err := codec.Diagnose(encoded[1:])
		if err != nil {
			return fmt.Errorf("rendering diagnostic notation: %w", err)
		}
		fmt.Printf("\n%s\n", diagnostic)
	}
	return nil
}
