// Copyright 2026 The Cyst Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// documentNode is the YAML form of one policy node. Exactly one of
// All, Any, or Factor must be set:
//
//	any:
//	  - all:
//	      - factor: passphrase
//	        name: work
//	      - factor: keyfile
//	  - factor: passphrase
//	    name: recovery
type documentNode struct {
	All    []documentNode `yaml:"all,omitempty"`
	Any    []documentNode `yaml:"any,omitempty"`
	Factor string         `yaml:"factor,omitempty"`
	Name   string         `yaml:"name,omitempty"`
}

// ParseDocument builds a policy tree from a YAML policy document.
// Like Parse, this checks only structure; call Validate on the result
// to check tags against a registry.
func ParseDocument(data []byte) (*Node, error) {
	var document documentNode
	if err := yaml.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("policy: parsing YAML document: %w", err)
	}
	return document.toNode(1)
}

// LoadFile reads and parses a YAML policy file.
func LoadFile(path string) (*Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: reading policy file: %w", err)
	}
	node, err := ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("policy: in %s: %w", path, err)
	}
	return node, nil
}

func (d documentNode) toNode(depth int) (*Node, error) {
	if depth > MaxDepth {
		return nil, fmt.Errorf("policy: document deeper than %d levels", MaxDepth)
	}

	set := 0
	if len(d.All) > 0 {
		set++
	}
	if len(d.Any) > 0 {
		set++
	}
	if d.Factor != "" {
		set++
	}
	if set != 1 {
		return nil, fmt.Errorf("policy: node must set exactly one of \"all\", \"any\", or \"factor\"")
	}

	switch {
	case d.Factor != "":
		node := Leaf(d.Factor)
		if d.Name != "" {
			node.Name = d.Name
		}
		return node, nil
	case len(d.All) > 0:
		if d.Name != "" {
			return nil, fmt.Errorf("policy: \"name\" is only valid on factor nodes")
		}
		children, err := toChildren(d.All, depth)
		if err != nil {
			return nil, err
		}
		return All(children...), nil
	default:
		if d.Name != "" {
			return nil, fmt.Errorf("policy: \"name\" is only valid on factor nodes")
		}
		children, err := toChildren(d.Any, depth)
		if err != nil {
			return nil, err
		}
		return Any(children...), nil
	}
}

func toChildren(documents []documentNode, depth int) ([]*Node, error) {
	children := make([]*Node, 0, len(documents))
	for _, document := range documents {
		child, err := document.toNode(depth + 1)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}
