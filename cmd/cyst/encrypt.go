// Copyright 2026 The Cyst Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/cyst-foundation/cyst/cmd/cyst/cli"
	"github.com/cyst-foundation/cyst/lib/content"
	"github.com/cyst-foundation/cyst/lib/envelope"
	"github.com/cyst-foundation/cyst/lib/factor"
	"github.com/cyst-foundation/cyst/lib/policy"
	"github.com/cyst-foundation/cyst/lib/secret"
)

func encryptCommand() *cli.Command {
	var (
		policyExpression string
		policyFile       string
		outputPath       string
		workers          int
		sources          secretSources
	)

	return &cli.Command{
		Name:    "encrypt",
		Summary: "Encrypt a file under a factor-tree policy",
		Description: `Encrypt a file under a policy of key factors.

The policy is an expression of factor leaves combined with all(...)
and any(...). A leaf is a factor tag, optionally with a name to
distinguish multiple leaves of the same factor: "passphrase:work".
Secrets bind to leaves by name via the repeatable --passphrase-file,
--keyfile, and --identity flags; passphrase leaves without a file are
prompted for on the terminal.`,
		Usage: "cyst encrypt --policy <expression> [flags] <input>",
		Examples: []cli.Example{
			{
				Description: "Passphrase plus USB keyfile, with a recovery passphrase",
				Command:     "cyst encrypt --policy 'any(all(passphrase, keyfile), passphrase:recovery)' --keyfile /mnt/usb/key.bin notes.txt",
			},
			{
				Description: "Policy from a YAML document",
				Command:     "cyst encrypt --policy-file vault.yaml --keyfile usb=/mnt/usb/key.bin backup.tar",
			},
			{
				Description: "Encrypt a stream",
				Command:     "tar cz /data | cyst encrypt --policy passphrase -o backup.cyst -",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("encrypt", pflag.ContinueOnError)
			flagSet.StringVar(&policyExpression, "policy", "", "policy expression, e.g. 'all(passphrase, keyfile)'")
			flagSet.StringVar(&policyFile, "policy-file", "", "path to a YAML policy document")
			flagSet.StringVarP(&outputPath, "output", "o", "", "output path (default <input>.cyst, or stdout for stdin input)")
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
			return runEncrypt(args[0], policyExpression, policyFile, outputPath, workers, sources)
		},
	}
}

func runEncrypt(inputPath, policyExpression, policyFile, outputPath string, workers int, sources secretSources) error {
	logger := cli.NewCommandLogger().With("command", "encrypt")

	tree, err := loadPolicy(policyExpression, policyFile)
	if err != nil {
		return err
	}
	registry := factor.DefaultRegistry()
	if err := tree.Validate(registry); err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}

	secrets, err := collectSecrets(tree.Leaves(), sources, true)
	if err != nil {
		return err
	}
	defer closeSecrets(secrets)

	dek, err := newDEK()
	if err != nil {
		return err
	}
	defer dek.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := envelope.Seal(ctx, tree, registry, secrets, dek, envelope.Options{DeriveWorkers: workers})
	if err != nil {
		return fmt.Errorf("sealing: %w", err)
	}
	encoded, err := env.Encode()
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}

	input, closeInput, err := openInput(inputPath)
	if err != nil {
		return err
	}
	defer closeInput()

	if outputPath == "" {
		if inputPath == "-" {
			outputPath = "-"
		} else {
			outputPath = inputPath + ".cyst"
		}
	}
	output, commit, abort, err := openOutput(outputPath, 0644)
	if err != nil {
		return err
	}
	defer abort()

	if err := content.WriteHeader(output, encoded); err != nil {
		return err
	}
	writer, err := content.NewWriter(output, dek)
	if err != nil {
		return err
	}
	if _, err := io.Copy(writer, input); err != nil {
		return fmt.Errorf("encrypting payload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return err
	}
	if err := commit(); err != nil {
		return err
	}

	logger.Info("sealed", "output", outputPath, "policy", tree.String())
	return nil
}

// loadPolicy builds the policy tree from exactly one of the two
// sources.
func loadPolicy(expression, file string) (*policy.Node, error) {
	switch {
	case expression != "" && file != "":
		return nil, fmt.Errorf("--policy and --policy-file are mutually exclusive")
	case expression != "":
		tree, err := policy.Parse(expression)
		if err != nil {
			return nil, fmt.Errorf("parsing policy: %w", err)
		}
		return tree, nil
	case file != "":
		tree, err := policy.LoadFile(file)
		if err != nil {
			return nil, fmt.Errorf("loading policy from %s: %w", file, err)
		}
		return tree, nil
	default:
		return nil, fmt.Errorf("a policy is required (--policy or --policy-file)")
	}
}

func newDEK() (*secret.Buffer, error) {
	raw := make([]byte, factor.KeySize)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return nil, fmt.Errorf("generating data encryption key: %w", err)
	}
	return secret.NewFromBytes(raw)
}

func closeSecrets(secrets map[string]*secret.Buffer) {
	for _, buffer := range secrets {
		buffer.Close()
	}
}

// openInput opens the payload source, with "-" meaning stdin.
func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return file, func() { file.Close() }, nil
}

// openOutput opens the destination, with "-" meaning stdout. commit
// closes the file and keeps it; abort is safe to defer unconditionally
// and, unless commit already ran, closes the file and removes the
// partial output so a failed run leaves nothing behind.
func openOutput(path string, mode os.FileMode) (output io.Writer, commit func() error, abort func(), err error) {
	if path == "-" {
		return os.Stdout, func() error { return nil }, func() {}, nil
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating %s: %w", path, err)
	}
	committed := false
	commit = func() error {
		committed = true
		return file.Close()
	}
	abort = func() {
		if committed {
			return
		}
		file.Close()
		os.Remove(path)
	}
	return file, commit, abort, nil
}
