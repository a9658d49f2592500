// Copyright 2026 The Cyst Authors
// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"context"
	"fmt"

	"github.com/cyst-foundation/cyst/lib/factor"
	"github.com/cyst-foundation/cyst/lib/policy"
	"github.com/cyst-foundation/cyst/lib/secret"
)

// Seal wraps a fresh DEK under the policy tree. Every leaf must have
// its secret supplied (keyed by leaf name): sealing derives the exact
// key each factor will reproduce at unseal time. The DEK is borrowed
// and not closed; it must be exactly factor.KeySize bytes.
//
// Failures are fatal-only — randomness exhaustion, a derivation
// fault, an invalid DEK — and are never retried. No partial envelope
// is returned on failure, and all node keys are wiped on every exit
// path.
func Seal(ctx context.Context, tree *policy.Node, registry *factor.Registry, secrets map[string]*secret.Buffer, dek *secret.Buffer, options Options) (*Envelope, error) {
	if err := tree.Validate(registry); err != nil {
		return nil, err
	}
	if dek.Len() != factor.KeySize {
		return nil, fmt.Errorf("envelope: DEK is %d bytes, want %d", dek.Len(), factor.KeySize)
	}

	// Generate params and collect derivation jobs for every leaf.
	leaves := tree.Leaves()
	jobs := make([]leafDerivation, len(leaves))
	paramsByLeaf := make(map[*policy.Node][]byte, len(leaves))
	jobIndexByLeaf := make(map[*policy.Node]int, len(leaves))
	for i, leaf := range leaves {
		leafSecret, ok := secrets[leaf.Name]
		if !ok || leafSecret == nil {
			return nil, fmt.Errorf("envelope: no secret supplied for leaf %q", leaf.Name)
		}
		implementation, _ := registry.Lookup(leaf.Tag)

		params, err := implementation.GenerateParams(leafSecret)
		if err != nil {
			return nil, fmt.Errorf("envelope: generating params for leaf %q: %w", leaf.Name, err)
		}
		paramsByLeaf[leaf] = params
		jobIndexByLeaf[leaf] = i
		jobs[i] = leafDerivation{factor: implementation, secret: leafSecret, params: params}
	}

	leafKeys, leafErrs, err := deriveLeafKeys(ctx, jobs, options.workers(len(jobs)))
	if err != nil {
		return nil, err
	}
	defer closeAll(leafKeys)
	for i, derivationErr := range leafErrs {
		if derivationErr != nil {
			return nil, fmt.Errorf("envelope: deriving key for leaf %q: %w", leaves[i].Name, derivationErr)
		}
	}

	// Assign node keys bottom-up. nodeKeys tracks every internal key
	// for wiping; leaf keys are owned by leafKeys above.
	nodeKeys := make(map[*policy.Node]*secret.Buffer)
	defer func() {
		for _, key := range nodeKeys {
			key.Close()
		}
	}()

	wrappedOf := make(map[*policy.Node]*WrappedNode)
	keyOf := func(node *policy.Node) *secret.Buffer {
		if node.Kind == policy.KindLeaf {
			return leafKeys[jobIndexByLeaf[node]]
		}
		return nodeKeys[node]
	}

	for _, node := range postOrder(tree) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch node.Kind {
		case policy.KindLeaf:
			wrappedOf[node] = &WrappedNode{
				Kind:   policy.KindLeaf,
				Tag:    node.Tag,
				Name:   node.Name,
				Params: paramsByLeaf[node],
			}

		case policy.KindAll:
			childKeys := make([]*secret.Buffer, len(node.Children))
			children := make([]*WrappedNode, len(node.Children))
			for i, child := range node.Children {
				childKeys[i] = keyOf(child)
				children[i] = wrappedOf[child]
			}
			combined, err := combineAll(childKeys)
			if err != nil {
				return nil, err
			}
			nodeKeys[node] = combined
			wrappedOf[node] = &WrappedNode{Kind: policy.KindAll, Children: children}

		case policy.KindAny:
			nodeKey, err := randomKey()
			if err != nil {
				return nil, err
			}
			nodeKeys[node] = nodeKey

			children := make([]*WrappedNode, len(node.Children))
			wraps := make([][]byte, len(node.Children))
			for i, child := range node.Children {
				children[i] = wrappedOf[child]
				wrap, err := wrapKey(nodeKey, keyOf(child), wrapDomainBranch)
				if err != nil {
					return nil, err
				}
				wraps[i] = wrap
			}
			wrappedOf[node] = &WrappedNode{Kind: policy.KindAny, Children: children, Wraps: wraps}
		}
	}

	dekWrap, err := wrapKey(dek, keyOf(tree), wrapDomainDEK)
	if err != nil {
		return nil, err
	}

	return &Envelope{Root: wrappedOf[tree], DEKWrap: dekWrap}, nil
}

// postOrder returns the tree's nodes children-before-parents, using an
// explicit stack rather than recursion.
func postOrder(root *policy.Node) []*policy.Node {
	var reversed []*policy.Node
	stack := []*policy.Node{root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		reversed = append(reversed, node)
		stack = append(stack, node.Children...)
	}

	ordered := make([]*policy.Node, len(reversed))
	for i, node := range reversed {
		ordered[len(reversed)-1-i] = node
	}
	return ordered
}
