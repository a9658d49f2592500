// Copyright 2026 The Cyst Authors
// SPDX-License-Identifier: Apache-2.0

// Package envelope implements the factor-tree key-derivation and
// envelope engine: sealing a data encryption key (DEK) under an
// AND/OR policy tree of factors, and unsealing it from user-supplied
// factor secrets.
//
// Sealing assigns every policy node a node key. A leaf's key is
// derived by its factor from the supplied secret and fresh public
// parameters. A conjunction's key is an HKDF combine of all child
// keys, computable only with every child. A disjunction's key is a
// fresh random value, stored once per child as an
// XChaCha20-Poly1305 wrap under that child's key, so recovering any
// single child unwraps the parent. The DEK is wrapped under the root
// node key, and the wrapped tree plus the DEK wrap form the envelope.
//
// Unsealing evaluates the tree bottom-up from whatever secrets were
// supplied, marking each node available or unavailable. Failures fold
// into a single [ErrPolicyUnsatisfied] at the root: the engine never
// reports which branch was close or which secret was wrong.
//
// All key material lives in [secret.Buffer] values and is wiped on
// every exit path. Trees are evaluated with explicit stacks, so
// hostile nesting cannot exhaust the goroutine stack.
package envelope

import (
	"github.com/cyst-foundation/cyst/lib/factor"
	"github.com/cyst-foundation/cyst/lib/policy"
)

// WrappedNode is the sealed state of one policy node. Leaves store
// only public parameters, never derived material. Conjunctions store
// nothing beyond their children: their key is recomputed. Disjunctions
// store one wrap of the node key per child branch.
//
// WrappedNode trees are read-only after sealing or decoding.
type WrappedNode struct {
	// Kind discriminates leaf, all, and any nodes.
	Kind policy.Kind

	// Tag is the factor tag. Leaf nodes only.
	Tag string

	// Name is the leaf's secret-map key, defaulting to Tag. Leaf
	// nodes only.
	Name string

	// Params is the factor's public parameter blob generated at seal
	// time. Leaf nodes only.
	Params []byte

	// Children are the sealed sub-policies, in policy order.
	Children []*WrappedNode

	// Wraps holds, for disjunction nodes, one wrap of this node's key
	// per child, index-aligned with Children.
	Wraps [][]byte
}

// Envelope is the sealed container: the wrapped policy tree plus the
// DEK wrapped under the root's node key. It is self-describing —
// unsealing needs no input beyond the factor secrets themselves.
type Envelope struct {
	// Root is the wrapped policy tree.
	Root *WrappedNode

	// DEKWrap is the authenticated wrap of the DEK under the root
	// node key.
	DEKWrap []byte
}

// Policy reconstructs the public policy tree from the envelope. The
// structure is public by design; only secrets are protected.
func (e *Envelope) Policy() *policy.Node {
	return e.Root.toPolicy()
}

// Leaves returns every leaf of the wrapped tree in serialization
// order. Callers use this to discover which factor secrets an
// envelope can accept.
func (e *Envelope) Leaves() []*WrappedNode {
	var leaves []*WrappedNode
	stack := []*WrappedNode{e.Root}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if current.Kind == policy.KindLeaf {
			leaves = append(leaves, current)
			continue
		}
		for i := len(current.Children) - 1; i >= 0; i-- {
			stack = append(stack, current.Children[i])
		}
	}
	return leaves
}

func (n *WrappedNode) toPolicy() *policy.Node {
	switch n.Kind {
	case policy.KindLeaf:
		return policy.NamedLeaf(n.Tag, n.Name)
	default:
		children := make([]*policy.Node, len(n.Children))
		for i, child := range n.Children {
			children[i] = child.toPolicy()
		}
		if n.Kind == policy.KindAll {
			return policy.All(children...)
		}
		return policy.Any(children...)
	}
}

// validate checks the structural invariants of a wrapped tree: valid
// kinds, leaf fields present, children present on combinators, wrap
// count matching child count on disjunctions, and bounded depth.
// Decode enforces this on every parsed envelope; Unseal re-checks so
// that hand-built envelopes fail closed too.
func (e *Envelope) validate() error {
	if e.Root == nil {
		return corrupt("missing root node")
	}
	if len(e.DEKWrap) == 0 {
		return corrupt("missing DEK wrap")
	}

	type frame struct {
		node  *WrappedNode
		depth int
	}
	stack := []frame{{e.Root, 1}}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if current.depth > policy.MaxDepth {
			return corrupt("tree deeper than %d levels", policy.MaxDepth)
		}

		node := current.node
		switch node.Kind {
		case policy.KindLeaf:
			if node.Tag == "" {
				return corrupt("leaf with empty factor tag")
			}
			if node.Name == "" {
				return corrupt("leaf %q with empty name", node.Tag)
			}
			if len(node.Params) == 0 {
				return corrupt("leaf %q with empty params", node.Name)
			}
			if len(node.Children) > 0 || len(node.Wraps) > 0 {
				return corrupt("leaf %q with children or wraps", node.Name)
			}
		case policy.KindAll:
			if len(node.Children) == 0 {
				return corrupt("all node with no children")
			}
			if len(node.Wraps) > 0 {
				return corrupt("all node with wraps")
			}
		case policy.KindAny:
			if len(node.Children) == 0 {
				return corrupt("any node with no children")
			}
			if len(node.Wraps) != len(node.Children) {
				return corrupt("any node with %d wraps for %d children", len(node.Wraps), len(node.Children))
			}
			for _, wrap := range node.Wraps {
				if len(wrap) < wrapOverhead {
					return corrupt("any node with truncated wrap")
				}
			}
		default:
			return corrupt("unknown node kind %d", node.Kind)
		}

		for _, child := range node.Children {
			if child == nil {
				return corrupt("nil child node")
			}
			stack = append(stack, frame{child, current.depth + 1})
		}
	}
	return nil
}

// checkFactors verifies that every leaf tag is known to the registry.
// Returns an UnsupportedFactorError for the first unknown tag, before
// any derivation is attempted — even when the unknown leaf sits in an
// otherwise-satisfiable branch.
func (e *Envelope) checkFactors(registry *factor.Registry) error {
	for _, leaf := range e.Leaves() {
		if _, ok := registry.Lookup(leaf.Tag); !ok {
			return &UnsupportedFactorError{Tag: leaf.Tag}
		}
	}
	return nil
}
