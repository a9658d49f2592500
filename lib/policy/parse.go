// Copyright 2026 The Cyst Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"fmt"
	"strings"
)

// Parse builds a policy tree from the compact expression syntax:
//
//	passphrase
//	all(passphrase, keyfile)
//	any(all(passphrase:work, keyfile), passphrase:recovery)
//
// A leaf is a factor tag, optionally followed by ":name" when the
// policy holds several leaves of the same factor type. "all" requires
// every argument; "any" requires one. Whitespace is insignificant.
//
// Parse checks only syntax; call Validate on the result to check tags
// against a registry.
func Parse(expression string) (*Node, error) {
	parser := &exprParser{input: expression}
	node, err := parser.parseNode(1)
	if err != nil {
		return nil, err
	}
	parser.skipSpace()
	if parser.position < len(parser.input) {
		return nil, parser.errorf("unexpected %q after expression", parser.rest())
	}
	return node, nil
}

// exprParser is a recursive-descent parser over the expression syntax.
// Depth is tracked explicitly and capped at MaxDepth so hostile input
// cannot exhaust the goroutine stack.
type exprParser struct {
	input    string
	position int
}

func (p *exprParser) parseNode(depth int) (*Node, error) {
	if depth > MaxDepth {
		return nil, p.errorf("expression deeper than %d levels", MaxDepth)
	}

	p.skipSpace()
	word := p.readWord()
	if word == "" {
		return nil, p.errorf("expected factor tag, \"all\", or \"any\"")
	}

	p.skipSpace()
	if p.peek() == '(' {
		if word != "all" && word != "any" {
			return nil, p.errorf("unknown combinator %q (want \"all\" or \"any\")", word)
		}
		p.position++ // consume '('

		var children []*Node
		for {
			child, err := p.parseNode(depth + 1)
			if err != nil {
				return nil, err
			}
			children = append(children, child)

			p.skipSpace()
			switch p.peek() {
			case ',':
				p.position++
			case ')':
				p.position++
				if word == "all" {
					return All(children...), nil
				}
				return Any(children...), nil
			default:
				return nil, p.errorf("expected ',' or ')'")
			}
		}
	}

	// Leaf: tag, optionally ":name".
	node := Leaf(word)
	if p.peek() == ':' {
		p.position++
		name := p.readWord()
		if name == "" {
			return nil, p.errorf("expected leaf name after %q:", word)
		}
		node.Name = name
	}
	return node, nil
}

// readWord consumes a run of tag characters: ASCII letters, digits,
// '-', '_', '.'.
func (p *exprParser) readWord() string {
	start := p.position
	for p.position < len(p.input) {
		c := p.input[p.position]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '-' || c == '_' || c == '.' {
			p.position++
			continue
		}
		break
	}
	return p.input[start:p.position]
}

func (p *exprParser) skipSpace() {
	for p.position < len(p.input) && (p.input[p.position] == ' ' || p.input[p.position] == '\t' || p.input[p.position] == '\n') {
		p.position++
	}
}

// peek returns the next byte without consuming it, or 0 at end of input.
func (p *exprParser) peek() byte {
	if p.position >= len(p.input) {
		return 0
	}
	return p.input[p.position]
}

// rest returns a short prefix of the unconsumed input for error messages.
func (p *exprParser) rest() string {
	remaining := strings.TrimSpace(p.input[p.position:])
	if len(remaining) > 20 {
		remaining = remaining[:20] + "..."
	}
	return remaining
}

func (p *exprParser) errorf(format string, args ...any) error {
	return fmt.Errorf("policy: parsing expression at offset %d: %s", p.position, fmt.Sprintf(format, args...))
}
