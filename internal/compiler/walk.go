// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

package compiler

import (
	"gopkg.isalang.org/isac/internal/isa"
)

// walkDocument visits every node in source order. Subfields and bus ranges
// are visited after the node that owns them.
func walkDocument(doc *isa.Document, f func(isa.Node)) {
	for _, n := range doc.Nodes {
		walkNode(n, f)
	}
}

func walkNode(n isa.Node, f func(isa.Node)) {
	f(n)
	switch n := n.(type) {
	case *isa.Field:
		for _, sf := range n.Subfields {
			f(sf)
		}
	case *isa.Bus:
		for _, r := range n.Ranges {
			f(r)
		}
	}
}
