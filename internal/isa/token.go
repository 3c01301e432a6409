// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

package isa

import (
	"fmt"
	"strings"
)

type Token struct {
	Span  Span
	Kind  TokenKind
	Value string
	// SpaceTag is the space named by the most recent space directive, if any.
	SpaceTag  string
	Modifiers Modifier
}

// WithKind returns a copy of the token with a refined kind. Source positions
// are never altered.
func (t *Token) WithKind(kind TokenKind) *Token {
	c := *t
	c.Kind = kind
	return &c
}

func (t *Token) Is(kind TokenKind, value string) bool {
	return t != nil && t.Kind == kind && t.Value == value
}

func (t *Token) String() string {
	return fmt.Sprintf("%d:%d %s %q", t.Span.Start.Line, t.Span.Start.Column, t.Kind, t.Value)
}

type Modifier uint8

const (
	ModifierInSubfields Modifier = 1 << iota
	ModifierDeprecated
	ModifierDeclaration
	ModifierOpaque
)

func (m Modifier) Has(o Modifier) bool {
	return m&o == o
}

func (m Modifier) String() string {
	var parts []string
	if m.Has(ModifierInSubfields) {
		parts = append(parts, "in-subfields")
	}
	if m.Has(ModifierDeprecated) {
		parts = append(parts, "deprecated")
	}
	if m.Has(ModifierDeclaration) {
		parts = append(parts, "declaration")
	}
	if m.Has(ModifierOpaque) {
		parts = append(parts, "opaque")
	}
	return strings.Join(parts, ",")
}

type TokenKind uint16

const (
	TokenKindUnknown TokenKind = iota
	TokenKindComment
	TokenKindDirective
	TokenKindSpaceDirective
	TokenKindSpaceTag
	TokenKindFieldTag
	TokenKindSubfieldTag
	TokenKindInstructionTag
	TokenKindSpaceOption
	TokenKindFieldOption
	TokenKindSubfieldOption
	TokenKindInstructionOption
	TokenKindBusOption
	TokenKindRangeOption
	TokenKindEquals
	TokenKindNumericLiteral
	TokenKindInvalidLiteral
	TokenKindBitField
	TokenKindQuotedString
	TokenKindFieldReference
	TokenKindUndefinedReference
	TokenKindAliasReference
	TokenKindSpaceIndirection
	TokenKindContextOperator
	TokenKindLegacyArrow
	TokenKindBraceOpen
	TokenKindBraceClose
	TokenKindParenOpen
	TokenKindParenClose
	TokenKindBracketOpen
	TokenKindBracketClose
	TokenKindIndexSeparator
	TokenKindComma
	TokenKindOperator
	TokenKindIdentifier
	TokenKindIndexedFieldTag
)

var tokenKindNames = map[TokenKind]string{
	TokenKindUnknown:            "unknown",
	TokenKindComment:            "comment",
	TokenKindDirective:          "directive",
	TokenKindSpaceDirective:     "space-directive",
	TokenKindSpaceTag:           "space-tag",
	TokenKindFieldTag:           "field-tag",
	TokenKindSubfieldTag:        "subfield-tag",
	TokenKindInstructionTag:     "instruction-tag",
	TokenKindSpaceOption:        "space-option",
	TokenKindFieldOption:        "field-option",
	TokenKindSubfieldOption:     "subfield-option",
	TokenKindInstructionOption:  "instruction-option",
	TokenKindBusOption:          "bus-option",
	TokenKindRangeOption:        "range-option",
	TokenKindEquals:             "equals-sign",
	TokenKindNumericLiteral:     "numeric-literal",
	TokenKindInvalidLiteral:     "invalid-literal",
	TokenKindBitField:           "bit-field",
	TokenKindQuotedString:       "quoted-string",
	TokenKindFieldReference:     "field-reference",
	TokenKindUndefinedReference: "undefined-reference",
	TokenKindAliasReference:     "alias-reference",
	TokenKindSpaceIndirection:   "space-indirection",
	TokenKindContextOperator:    "context-operator",
	TokenKindLegacyArrow:        "legacy-arrow",
	TokenKindBraceOpen:          "brace-open",
	TokenKindBraceClose:         "brace-close",
	TokenKindParenOpen:          "paren-open",
	TokenKindParenClose:         "paren-close",
	TokenKindBracketOpen:        "bracket-open",
	TokenKindBracketClose:       "bracket-close",
	TokenKindIndexSeparator:     "index-separator",
	TokenKindComma:              "comma",
	TokenKindOperator:           "operator",
	TokenKindIdentifier:         "identifier",
	TokenKindIndexedFieldTag:    "indexed-field-tag",
}

func (k TokenKind) String() string {
	if name, ok := tokenKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown-%d", k)
}

// IsOption reports whether the kind is one of the option tag variants.
func (k TokenKind) IsOption() bool {
	switch k {
	case TokenKindSpaceOption, TokenKindFieldOption, TokenKindSubfieldOption,
		TokenKindInstructionOption, TokenKindBusOption, TokenKindRangeOption:
		return true
	default:
		return false
	}
}

// ClassifiedToken is the coloring view of a token handed to editors.
type ClassifiedToken struct {
	Range     Span   `json:"range" yaml:"range"`
	KindName  string `json:"kind" yaml:"kind"`
	SpaceTag  string `json:"spaceTag,omitempty" yaml:"spaceTag,omitempty"`
	Modifiers string `json:"modifiers,omitempty" yaml:"modifiers,omitempty"`
}
