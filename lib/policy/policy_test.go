// Copyright 2026 The Cyst Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"strings"
	"testing"

	"github.com/cyst-foundation/cyst/lib/factor"
)

func testRegistry(t *testing.T) *factor.Registry {
	t.Helper()
	return factor.DefaultRegistry()
}

func TestParse_SingleLeaf(t *testing.T) {
	node, err := Parse("passphrase")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if node.Kind != KindLeaf || node.Tag != "passphrase" || node.Name != "passphrase" {
		t.Errorf("unexpected node: %+v", node)
	}
}

func TestParse_NamedLeaf(t *testing.T) {
	node, err := Parse("passphrase:recovery")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if node.Tag != "passphrase" || node.Name != "recovery" {
		t.Errorf("unexpected node: %+v", node)
	}
}

func TestParse_Nested(t *testing.T) {
	node, err := Parse("any(all(passphrase:work, keyfile), passphrase:recovery)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if node.Kind != KindAny || len(node.Children) != 2 {
		t.Fatalf("unexpected root: %+v", node)
	}
	conjunction := node.Children[0]
	if conjunction.Kind != KindAll || len(conjunction.Children) != 2 {
		t.Fatalf("unexpected first child: %+v", conjunction)
	}
	if conjunction.Children[0].Name != "work" || conjunction.Children[1].Tag != "keyfile" {
		t.Errorf("unexpected leaves: %+v, %+v", conjunction.Children[0], conjunction.Children[1])
	}
	if node.Children[1].Name != "recovery" {
		t.Errorf("unexpected second child: %+v", node.Children[1])
	}
}

func TestParse_WhitespaceInsignificant(t *testing.T) {
	compact, err := Parse("all(passphrase,keyfile)")
	if err != nil {
		t.Fatalf("Parse compact: %v", err)
	}
	spaced, err := Parse("  all( passphrase ,\n\tkeyfile )  ")
	if err != nil {
		t.Fatalf("Parse spaced: %v", err)
	}
	if compact.String() != spaced.String() {
		t.Errorf("whitespace changed parse: %q vs %q", compact, spaced)
	}
}

func TestParse_Errors(t *testing.T) {
	cases := []string{
		"",
		"all()",
		"all(passphrase",
		"all(passphrase,)",
		"both(passphrase, keyfile)",
		"passphrase:",
		"passphrase keyfile",
		"any(passphrase))",
	}
	for _, expression := range cases {
		if _, err := Parse(expression); err == nil {
			t.Errorf("Parse(%q): expected error", expression)
		}
	}
}

func TestParse_DepthLimit(t *testing.T) {
	expression := strings.Repeat("all(", MaxDepth+1) + "passphrase" + strings.Repeat(")", MaxDepth+1)
	if _, err := Parse(expression); err == nil {
		t.Fatal("expected error for over-deep expression")
	}
}

func TestString_RoundTrip(t *testing.T) {
	original := "any(all(passphrase:work, keyfile), passphrase:recovery)"
	node, err := Parse(original)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	reparsed, err := Parse(node.String())
	if err != nil {
		t.Fatalf("Parse(String()): %v", err)
	}
	if reparsed.String() != node.String() {
		t.Errorf("round trip changed expression: %q vs %q", node, reparsed)
	}
}

func TestValidate_Valid(t *testing.T) {
	node, err := Parse("any(all(passphrase:work, keyfile), passphrase:recovery)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := node.Validate(testRegistry(t)); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_UnknownTag(t *testing.T) {
	node, err := Parse("any(passphrase, smartcard)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := node.Validate(testRegistry(t)); err == nil {
		t.Fatal("expected error for unknown factor tag")
	}
}

func TestValidate_DuplicateLeafNames(t *testing.T) {
	node, err := Parse("all(passphrase, passphrase)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := node.Validate(testRegistry(t)); err == nil {
		t.Fatal("expected error for duplicate leaf names")
	}
}

func TestValidate_EmptyCombinator(t *testing.T) {
	node := &Node{Kind: KindAll}
	if err := node.Validate(testRegistry(t)); err == nil {
		t.Fatal("expected error for combinator with no children")
	}
}

func TestLeaves_Order(t *testing.T) {
	node, err := Parse("any(all(passphrase:a, keyfile:b), passphrase:c)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	leaves := node.Leaves()
	names := make([]string, len(leaves))
	for i, leaf := range leaves {
		names[i] = leaf.Name
	}
	want := []string{"a", "b", "c"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("leaf order %v, want %v", names, want)
		}
	}
}

func TestParseDocument(t *testing.T) {
	document := `
any:
  - all:
      - factor: passphrase
        name: work
      - factor: keyfile
  - factor: passphrase
    name: recovery
`
	node, err := ParseDocument([]byte(document))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	if err := node.Validate(testRegistry(t)); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	want := "any(all(passphrase:work, keyfile), passphrase:recovery)"
	if node.String() != want {
		t.Errorf("got %q, want %q", node, want)
	}
}

func TestParseDocument_Errors(t *testing.T) {
	cases := map[string]string{
		"empty node":         `any: [{}]`,
		"two kinds":          "factor: passphrase\nall:\n  - factor: keyfile",
		"name on combinator": "name: x\nall:\n  - factor: keyfile",
		"not yaml":           `{{{`,
	}
	for label, document := range cases {
		if _, err := ParseDocument([]byte(document)); err == nil {
			t.Errorf("%s: expected error", label)
		}
	}
}
