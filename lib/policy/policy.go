// Copyright 2026 The Cyst Authors
// SPDX-License-Identifier: Apache-2.0

// Package policy models the unlock policy for an envelope: a strict
// tree whose leaves name factors and whose internal nodes require all
// children (conjunction) or any one child (disjunction).
//
// Trees are built from a compact expression syntax ([Parse]) or from a
// YAML document ([ParseDocument]), validated once against a factor
// registry, and never mutated afterwards. The tree structure is public:
// it is written into every envelope so that unsealing can reconstruct
// the policy without any secret input.
package policy

import (
	"fmt"
	"strings"

	"github.com/cyst-foundation/cyst/lib/factor"
)

// Kind discriminates the node variants.
type Kind uint8

const (
	// KindLeaf names a single factor.
	KindLeaf Kind = iota
	// KindAll requires every child (conjunction).
	KindAll
	// KindAny requires at least one child (disjunction).
	KindAny
)

// MaxDepth bounds tree nesting. Policies are human-written; anything
// deeper than this is a mistake or an attack on the parser.
const MaxDepth = 64

// Node is one node of a policy tree. The tree is an owned tree: no
// shared subtrees, no cycles, exactly one root. Nodes are read-only
// after construction.
type Node struct {
	// Kind discriminates leaf, all, and any nodes.
	Kind Kind

	// Tag is the factor tag. Leaf nodes only.
	Tag string

	// Name distinguishes leaves of the same factor type. Defaults to
	// Tag. Supplied secrets are keyed by Name.
	Name string

	// Children are the sub-policies, in input order. All/Any only.
	Children []*Node
}

// Leaf returns a leaf node for a factor tag. The leaf's name defaults
// to the tag.
func Leaf(tag string) *Node {
	return &Node{Kind: KindLeaf, Tag: tag, Name: tag}
}

// NamedLeaf returns a leaf node with an explicit name, for policies
// holding several leaves of the same factor type.
func NamedLeaf(tag, name string) *Node {
	return &Node{Kind: KindLeaf, Tag: tag, Name: name}
}

// All returns a conjunction node: every child must be satisfied.
func All(children ...*Node) *Node {
	return &Node{Kind: KindAll, Children: children}
}

// Any returns a disjunction node: one satisfied child suffices.
func Any(children ...*Node) *Node {
	return &Node{Kind: KindAny, Children: children}
}

// Validate checks structural rules: every All/Any has at least one
// child, every leaf names a tag known to the registry, leaf names are
// unique, and nesting stays within MaxDepth. The engine assumes a
// validated tree.
func (n *Node) Validate(registry *factor.Registry) error {
	type frame struct {
		node  *Node
		depth int
	}

	seenNames := make(map[string]bool)
	stack := []frame{{n, 1}}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if current.depth > MaxDepth {
			return fmt.Errorf("policy: tree deeper than %d levels", MaxDepth)
		}

		switch current.node.Kind {
		case KindLeaf:
			if current.node.Tag == "" {
				return fmt.Errorf("policy: leaf with empty factor tag")
			}
			if _, ok := registry.Lookup(current.node.Tag); !ok {
				return fmt.Errorf("policy: unknown factor tag %q", current.node.Tag)
			}
			name := current.node.Name
			if name == "" {
				return fmt.Errorf("policy: leaf %q with empty name", current.node.Tag)
			}
			if seenNames[name] {
				return fmt.Errorf("policy: duplicate leaf name %q (use tag:name to distinguish)", name)
			}
			seenNames[name] = true
			if len(current.node.Children) > 0 {
				return fmt.Errorf("policy: leaf %q has children", name)
			}
		case KindAll, KindAny:
			if len(current.node.Children) == 0 {
				return fmt.Errorf("policy: %s node with no children", current.node.Kind)
			}
			for _, child := range current.node.Children {
				if child == nil {
					return fmt.Errorf("policy: nil child node")
				}
				stack = append(stack, frame{child, current.depth + 1})
			}
		default:
			return fmt.Errorf("policy: unknown node kind %d", current.node.Kind)
		}
	}
	return nil
}

// Leaves returns every leaf in serialization order (depth-first,
// children in input order).
func (n *Node) Leaves() []*Node {
	var leaves []*Node
	stack := []*Node{n}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if current.Kind == KindLeaf {
			leaves = append(leaves, current)
			continue
		}
		// Push children in reverse so they pop in input order.
		for i := len(current.Children) - 1; i >= 0; i-- {
			stack = append(stack, current.Children[i])
		}
	}
	return leaves
}

// String renders the tree in the expression syntax accepted by Parse.
func (n *Node) String() string {
	var builder strings.Builder
	n.writeExpression(&builder)
	return builder.String()
}

func (n *Node) writeExpression(builder *strings.Builder) {
	switch n.Kind {
	case KindLeaf:
		builder.WriteString(n.Tag)
		if n.Name != n.Tag {
			builder.WriteByte(':')
			builder.WriteString(n.Name)
		}
	case KindAll, KindAny:
		builder.WriteString(n.Kind.String())
		builder.WriteByte('(')
		for i, child := range n.Children {
			if i > 0 {
				builder.WriteString(", ")
			}
			child.writeExpression(builder)
		}
		builder.WriteByte(')')
	}
}

func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindAll:
		return "all"
	case KindAny:
		return "any"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}
