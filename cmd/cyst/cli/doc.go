// Copyright 2026 The Cyst Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command framework for the cyst binary:
// a small command tree over pflag flag sets, structured help output
// with typo suggestions, secret prompting on the terminal, and the
// logger wiring shared by all subcommands.
package cli
