// Copyright 2026 The Cyst Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "cyst",
		Subcommands: []*Command{
			{
				Name: "version",
				Run: func(args []string) error {
					called = "version"
					return nil
				},
			},
			{
				Name: "encrypt",
				Run: func(args []string) error {
					called = "encrypt"
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"encrypt"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "encrypt" {
		t.Errorf("dispatched to %q, want %q", called, "encrypt")
	}
}

func TestCommand_Execute_NestedSubcommands(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &Command{
		Name: "cyst",
		Subcommands: []*Command{
			{
				Name: "keygen",
				Subcommands: []*Command{
					{
						Name: "age",
						Run: func(args []string) error {
							called = "keygen age"
							receivedArgs = args
							return nil
						},
					},
				},
			},
		},
	}

	if err := root.Execute([]string{"keygen", "age", "extra-arg"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "keygen age" {
		t.Errorf("dispatched to %q, want %q", called, "keygen age")
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "extra-arg" {
		t.Errorf("args = %v, want [extra-arg]", receivedArgs)
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var policy string
	var target string

	command := &Command{
		Name: "encrypt",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("encrypt", pflag.ContinueOnError)
			flagSet.StringVar(&policy, "policy", "passphrase", "policy expression")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				target = args[0]
			}
			return nil
		},
	}

	if err := command.Execute([]string{"--policy", "any(passphrase, keyfile)", "notes.txt"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if policy != "any(passphrase, keyfile)" {
		t.Errorf("policy = %q", policy)
	}
	if target != "notes.txt" {
		t.Errorf("positional arg = %q, want notes.txt", target)
	}
}

func TestCommand_Execute_UnknownSubcommandSuggestion(t *testing.T) {
	root := &Command{
		Name: "cyst",
		Subcommands: []*Command{
			{Name: "encrypt", Run: func([]string) error { return nil }},
			{Name: "decrypt", Run: func([]string) error { return nil }},
		},
	}

	err := root.Execute([]string{"encrpyt"})
	if err == nil {
		t.Fatal("expected error for unknown subcommand")
	}
	if !strings.Contains(err.Error(), `did you mean "encrypt"`) {
		t.Errorf("error %q lacks suggestion", err)
	}
}

func TestCommand_Execute_UnknownFlagSuggestion(t *testing.T) {
	command := &Command{
		Name: "decrypt",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("decrypt", pflag.ContinueOnError)
			flagSet.String("output", "", "output path")
			return flagSet
		},
		Run: func([]string) error { return nil },
	}

	err := command.Execute([]string{"--outptu", "x"})
	if err == nil {
		t.Fatal("expected error for unknown flag")
	}
	if !strings.Contains(err.Error(), "--output") {
		t.Errorf("error %q lacks flag suggestion", err)
	}
}

func TestCommand_Execute_SubcommandRequired(t *testing.T) {
	root := &Command{
		Name: "cyst",
		Subcommands: []*Command{
			{Name: "version", Run: func([]string) error { return nil }},
		},
	}

	if err := root.Execute(nil); err == nil {
		t.Fatal("expected error when no subcommand is given")
	}
}

func TestCommand_PrintHelp(t *testing.T) {
	root := &Command{
		Name:    "cyst",
		Summary: "Seal files under factor-tree policies",
		Subcommands: []*Command{
			{Name: "encrypt", Summary: "Encrypt a file under a policy"},
			{Name: "inspect", Summary: "Show a container's policy"},
		},
		Examples: []Example{
			{Description: "Encrypt with two factors", Command: "cyst encrypt --policy 'all(passphrase, keyfile)' notes.txt"},
		},
	}

	var out bytes.Buffer
	root.PrintHelp(&out)
	help := out.String()

	for _, want := range []string{
		"Seal files under factor-tree policies",
		"encrypt",
		"Show a container's policy",
		"Encrypt with two factors",
		"cyst <command> [flags]",
	} {
		if !strings.Contains(help, want) {
			t.Errorf("help output lacks %q", want)
		}
	}
}

func TestLevenshtein(t *testing.T) {
	for _, tc := range []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"encrypt", "encrypt", 0},
		{"encrpyt", "encrypt", 2},
		{"inspct", "inspect", 1},
		{"", "abc", 3},
	} {
		if got := levenshtein(tc.a, tc.b); got != tc.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}
