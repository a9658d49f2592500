// Copyright 2026 The Cyst Authors
// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"context"

	"github.com/cyst-foundation/cyst/lib/factor"
	"github.com/cyst-foundation/cyst/lib/policy"
	"github.com/cyst-foundation/cyst/lib/secret"
)

// Unseal evaluates the envelope's policy tree against the supplied
// secrets (keyed by leaf name; not every leaf need be supplied) and
// recovers the DEK when the tree is satisfied. The returned buffer
// must be closed by the caller.
//
// Outcomes:
//   - the DEK, when the supplied secrets satisfy the tree
//   - [UnsupportedFactorError] when the envelope references a factor
//     tag the registry does not know (checked before any derivation)
//   - [ErrPolicyUnsatisfied] when the tree cannot be satisfied —
//     missing secrets and wrong secrets are indistinguishable here
//   - [ErrCorruptEnvelope] when the envelope is malformed, or when the
//     root DEK unwrap fails authentication after the tree reported
//     satisfiable (an internal or format fault, not a user error)
//
// Unsealing is deterministic and side-effect-free: repeated calls with
// identical inputs return identical results.
func Unseal(ctx context.Context, env *Envelope, registry *factor.Registry, secrets map[string]*secret.Buffer, options Options) (*secret.Buffer, error) {
	if err := env.validate(); err != nil {
		return nil, err
	}
	if err := env.checkFactors(registry); err != nil {
		return nil, err
	}

	// Derive candidate keys for every supplied leaf. A leaf whose
	// secret was not supplied is unavailable — never guessed. A leaf
	// whose derivation fails (for example an age identity that cannot
	// decrypt its params) is likewise unavailable rather than fatal:
	// the tree may still be satisfiable through another branch.
	leaves := env.Leaves()
	var jobs []leafDerivation
	jobLeafIndex := make([]int, 0, len(leaves))
	for i, leaf := range leaves {
		leafSecret, ok := secrets[leaf.Name]
		if !ok || leafSecret == nil {
			continue
		}
		implementation, _ := registry.Lookup(leaf.Tag)
		jobs = append(jobs, leafDerivation{factor: implementation, secret: leafSecret, params: leaf.Params})
		jobLeafIndex = append(jobLeafIndex, i)
	}

	derivedKeys, derivedErrs, err := deriveLeafKeys(ctx, jobs, options.workers(len(jobs)))
	if err != nil {
		return nil, err
	}
	// Wipe every derived key on every exit path. Keys that migrate into
	// keyOf are closed again by the defer below; Close is idempotent.
	defer closeAll(derivedKeys)

	leafKeys := make([]*secret.Buffer, len(leaves))
	for jobIndex, leafIndex := range jobLeafIndex {
		if derivedErrs[jobIndex] == nil {
			leafKeys[leafIndex] = derivedKeys[jobIndex]
		}
	}

	// Bottom-up availability evaluation. keyOf holds the node key of
	// every AVAILABLE node; absent means UNAVAILABLE. All keys are
	// wiped before returning, whatever the outcome.
	keyOf := make(map[*WrappedNode]*secret.Buffer)
	defer func() {
		for _, key := range keyOf {
			key.Close()
		}
	}()

	nextLeaf := 0
	for _, node := range wrappedPostOrder(env.Root) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch node.Kind {
		case policy.KindLeaf:
			if key := leafKeys[nextLeaf]; key != nil {
				keyOf[node] = key
			}
			nextLeaf++

		case policy.KindAll:
			// Any unavailable child short-circuits the conjunction;
			// no partial combination is attempted.
			childKeys := make([]*secret.Buffer, 0, len(node.Children))
			for _, child := range node.Children {
				key, ok := keyOf[child]
				if !ok {
					childKeys = nil
					break
				}
				childKeys = append(childKeys, key)
			}
			if childKeys == nil {
				continue
			}
			combined, err := combineAll(childKeys)
			if err != nil {
				return nil, err
			}
			keyOf[node] = combined

		case policy.KindAny:
			// Try each available child's stored wrap. A failed
			// attempt on one branch is not fatal — it means that
			// child's candidate key is wrong — and remaining
			// children are still tried.
			for i, child := range node.Children {
				childKey, ok := keyOf[child]
				if !ok {
					continue
				}
				nodeKey, err := unwrapKey(node.Wraps[i], childKey, wrapDomainBranch)
				if err != nil {
					continue
				}
				keyOf[node] = nodeKey
				break
			}
		}
	}

	rootKey, ok := keyOf[env.Root]
	if !ok {
		return nil, ErrPolicyUnsatisfied
	}

	// The tree reported satisfiable, so this unwrap must succeed; an
	// authentication failure here is a format or integrity fault,
	// distinct from an unsatisfied policy.
	dek, err := unwrapKey(env.DEKWrap, rootKey, wrapDomainDEK)
	if err != nil {
		return nil, corrupt("root DEK unwrap failed: %v", err)
	}
	if dek.Len() != factor.KeySize {
		dek.Close()
		return nil, corrupt("unwrapped DEK is %d bytes, want %d", dek.Len(), factor.KeySize)
	}
	return dek, nil
}

// wrappedPostOrder returns the wrapped tree's nodes children-before-
// parents, siblings in serialization order, using an explicit stack.
// Leaves appear in the same order as Envelope.Leaves.
func wrappedPostOrder(root *WrappedNode) []*WrappedNode {
	var reversed []*WrappedNode
	stack := []*WrappedNode{root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		reversed = append(reversed, node)
		stack = append(stack, node.Children...)
	}

	ordered := make([]*WrappedNode, len(reversed))
	for i, node := range reversed {
		ordered[len(reversed)-1-i] = node
	}
	return ordered
}
