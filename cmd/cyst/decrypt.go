// Copyright 2026 The Cyst Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/cyst-foundation/cyst/cmd/cyst/cli"
	"github.com/cyst-foundation/cyst/lib/content"
	"github.com/cyst-foundation/cyst/lib/envelope"
	"github.com/cyst-foundation/cyst/lib/factor"
)

func decryptCommand() *cli.Command {
	var (
		outputPath string
		workers    int
		sources    secretSources
	)

	return &cli.Command{
		Name:    "decrypt",
		Summary: "Decrypt a container with a satisfying set of factors",
		Description: `Decrypt a cyst container.

The container's policy determines which factor combinations suffice.
Secrets bind to policy leaves by name via --passphrase-file, --keyfile,
and --identity; passphrase leaves without a file are prompted for
(press enter to skip a passphrase you don't have).`,
		Usage: "cyst decrypt [flags] <input>",
		Examples: []cli.Example{
			{
				Description: "Decrypt with the recovery passphrase only",
				Command:     "cyst decrypt notes.txt.cyst",
			},
			{
				Description: "Decrypt with a keyfile bound to the leaf named usb",
				Command:     "cyst decrypt --keyfile usb=/mnt/usb/key.bin -o backup.tar backup.tar.cyst",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("decrypt", pflag.ContinueOnError)
			flagSet.StringVarP(&outputPath, "output", "o", "", "output path (default strips the .cyst suffix)")
			flagSet.IntVar(&workers, "workers", 0, "parallel factor derivations (0 = serial)")
			flagSet.StringArrayVar(&sources.passphraseFiles, "passphrase-file", nil, "passphrase source as name=path (repeatable)")
			flagSet.StringArrayVar(&sources.keyfiles, "keyfile", nil, "keyfile as name=path (repeatable)")
			flagSet.StringArrayVar(&sources.identityFiles, "identity", nil, "age identity file as name=path (repeatable)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one input file required (use - for stdin)")
			}
			return runDecrypt(args[0], outputPath, workers, sources)
		},
	}
}

func runDecrypt(inputPath, outputPath string, workers int, sources secretSources) error {
	logger := cli.NewCommandLogger().With("command", "decrypt")

	input, closeInput, err := openInput(inputPath)
	if err != nil {
		return err
	}
	defer closeInput()

	encoded, err := content.ReadHeader(input)
	if err != nil {
		return err
	}
	env, err := envelope.Decode(encoded)
	if err != nil {
		return err
	}
	logger.Info("container policy", "policy", env.Policy().String())

	secrets, err := collectSecrets(env.Policy().Leaves(), sources, false)
	if err != nil {
		return err
	}
	defer closeSecrets(secrets)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := factor.DefaultRegistry()
	dek, err := envelope.Unseal(ctx, env, registry, secrets, envelope.Options{DeriveWorkers: workers})
	if err != nil {
		return fmt.Errorf("unsealing: %w", err)
	}
	defer dek.Close()

	if outputPath == "" {
		outputPath = defaultDecryptOutput(inputPath)
	}
	// Plaintext comes back owner-only; the caller loosens it if wanted.
	output, commit, abort, err := openOutput(outputPath, 0600)
	if err != nil {
		return err
	}
	defer abort()

	reader, err := content.NewReader(input, dek)
	if err != nil {
		return err
	}
	if _, err := io.Copy(output, reader); err != nil {
		return fmt.Errorf("decrypting payload: %w", err)
	}
	if err := commit(); err != nil {
		return err
	}

	logger.Info("unsealed", "output", outputPath)
	return nil
}

func defaultDecryptOutput(inputPath string) string {
	if inputPath == "-" {
		return "-"
	}
	if trimmed := strings.TrimSuffix(inputPath, ".cyst"); trimmed != inputPath {
		return trimmed
	}
	return inputPath + ".out"
}
