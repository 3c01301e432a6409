// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

package isa

import "fmt"

type SymbolKind uint8

const (
	SymbolKindSpace SymbolKind = iota
	SymbolKindField
	SymbolKindSubfield
	SymbolKindInstruction
	SymbolKindBus
)

func (k SymbolKind) String() string {
	switch k {
	case SymbolKindSpace:
		return "space"
	case SymbolKindField:
		return "field"
	case SymbolKindSubfield:
		return "subfield"
	case SymbolKindInstruction:
		return "instruction"
	case SymbolKindBus:
		return "bus"
	default:
		return fmt.Sprintf("unknown-%d", k)
	}
}

func (k SymbolKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

type Symbol struct {
	Name     string     `json:"name" yaml:"name"`
	Kind     SymbolKind `json:"kind" yaml:"kind"`
	Span     Span       `json:"range" yaml:"range"`
	URI      string     `json:"uri" yaml:"uri"`
	SpaceTag string     `json:"spaceTag,omitempty" yaml:"spaceTag,omitempty"`
	// Parent is the owning field tag of a subfield. Subfields of untagged
	// fields have an empty parent.
	Parent string `json:"parent,omitempty" yaml:"parent,omitempty"`
	Node   Node   `json:"-" yaml:"-"`
}

func (s *Symbol) String() string {
	if s.SpaceTag == "" {
		return fmt.Sprintf("%s %s", s.Kind, s.Name)
	}
	if s.Parent != "" {
		return fmt.Sprintf("%s %s;%s;%s", s.Kind, s.SpaceTag, s.Parent, s.Name)
	}
	return fmt.Sprintf("%s %s;%s", s.Kind, s.SpaceTag, s.Name)
}
