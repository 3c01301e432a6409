// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

package compiler

import (
	"fmt"
	"strings"

	"gopkg.isalang.org/isac/internal/compiler/frontend"
	"gopkg.isalang.org/isac/internal/exc"
	"gopkg.isalang.org/isac/internal/isa"
)

// Option keys accepted by each declaration kind.
var optionTables = map[isa.TokenKind]map[string]bool{
	isa.TokenKindSpaceOption:       {"addr": true, "word": true, "type": true, "align": true, "endian": true, "descr": true},
	isa.TokenKindFieldOption:       {"offset": true, "size": true, "count": true, "reset": true, "name": true, "descr": true, "redirect": true, "subfields": true},
	isa.TokenKindSubfieldOption:    {"op": true, "descr": true},
	isa.TokenKindInstructionOption: {"mask": true, "descr": true, "semantics": true},
	isa.TokenKindBusOption:         {"addr": true, "descr": true, "ranges": true},
	isa.TokenKindRangeOption:       {"size": true, "prio": true, "offset": true, "buslen": true},
}

var optionCodes = map[isa.TokenKind]string{
	isa.TokenKindSpaceOption:       exc.CodeInvalidSpaceOption,
	isa.TokenKindFieldOption:       exc.CodeInvalidFieldOption,
	isa.TokenKindSubfieldOption:    exc.CodeInvalidSubfieldOption,
	isa.TokenKindInstructionOption: exc.CodeInvalidInstructionOption,
	isa.TokenKindBusOption:         exc.CodeInvalidBusOption,
	isa.TokenKindRangeOption:       exc.CodeInvalidRangeOption,
}

type statementKind uint8

const (
	statementNone statementKind = iota
	statementSpace
	statementBus
	statementDeclaration
	statementOther
)

func statementOf(directive *isa.Token) statementKind {
	switch directive.Value {
	case ":space":
		return statementSpace
	case ":bus":
		return statementBus
	}
	if directive.Kind == isa.TokenKindSpaceDirective {
		return statementDeclaration
	}
	return statementOther
}

// classifier derives the final kind of every token from the declarations,
// the linker results and the token context.
type classifier struct {
	uri          string
	reporter     exc.Reporter
	historyLimit int
	declarations map[*isa.Token]isa.TokenKind
	linker       *linker
}

func newClassifier(doc *isa.Document, l *linker, reporter exc.Reporter, historyLimit int) *classifier {
	c := &classifier{
		uri:          doc.URI,
		reporter:     reporter,
		historyLimit: historyLimit,
		declarations: make(map[*isa.Token]isa.TokenKind),
		linker:       l,
	}
	walkDocument(doc, func(n isa.Node) {
		switch n := n.(type) {
		case *isa.Space:
			c.declarations[n.Tag] = isa.TokenKindSpaceTag
		case *isa.Bus:
			c.declarations[n.Tag] = isa.TokenKindSpaceTag
		case *isa.Field:
			if n.Tag != nil {
				c.declarations[n.Tag] = isa.TokenKindFieldTag
			}
		case *isa.Subfield:
			c.declarations[n.Tag] = isa.TokenKindSubfieldTag
		case *isa.Instruction:
			c.declarations[n.Tag] = isa.TokenKindInstructionTag
		}
	})
	return c
}

// classify returns derived tokens with refined kinds. Source positions are
// never altered.
// reports: unknown option keys
func (c *classifier) classify(tokens []*isa.Token) []*isa.Token {
	machine := frontend.NewTokenContext(c.historyLimit)
	machine.Reset()
	out := make([]*isa.Token, 0, len(tokens))
	statement := statementNone
	for offset, tok := range tokens {
		result := machine.Process(tok, nextSignificant(tokens, offset))
		if (tok.Kind == isa.TokenKindDirective || tok.Kind == isa.TokenKindSpaceDirective) &&
			result.State == frontend.StateUnknown && machine.State() == frontend.StateFieldDefinition {
			statement = statementOf(tok)
		}

		kind := tok.Kind
		modifiers := tok.Modifiers
		switch {
		case tok.Modifiers.Has(isa.ModifierOpaque):
		case c.declarations[tok] != isa.TokenKindUnknown:
			kind = c.declarations[tok]
			modifiers = modifiers | isa.ModifierDeclaration
		case c.linker.kinds[tok] != isa.TokenKindUnknown:
			kind = c.linker.kinds[tok]
		case tok.Kind == isa.TokenKindIdentifier && result.IsOption():
			kind = c.optionKind(result, statement)
			if kind != isa.TokenKindIdentifier && !optionTables[kind][tok.Value] {
				_ = c.reporter.Report(exc.New(exc.Location{URI: c.uri, Span: tok.Span}, optionCodes[kind],
					fmt.Sprintf("invalid %s option '%s'", strings.TrimSuffix(kind.String(), "-option"), tok.Value)))
			}
		}
		if kind == tok.Kind && modifiers == tok.Modifiers {
			out = append(out, tok)
			continue
		}
		derived := tok.WithKind(kind)
		derived.Modifiers = modifiers
		out = append(out, derived)
	}
	return out
}

func (c *classifier) optionKind(result frontend.ContextResult, statement statementKind) isa.TokenKind {
	switch {
	case result.IsSubfieldOption:
		return isa.TokenKindSubfieldOption
	case result.IsInstructionOption:
		return isa.TokenKindInstructionOption
	case result.IsRangeOption:
		return isa.TokenKindRangeOption
	}
	switch statement {
	case statementSpace:
		return isa.TokenKindSpaceOption
	case statementBus:
		return isa.TokenKindBusOption
	case statementDeclaration:
		return isa.TokenKindFieldOption
	}
	return isa.TokenKindIdentifier
}

func nextSignificant(tokens []*isa.Token, offset int) *isa.Token {
	for x := offset + 1; x < len(tokens); x = x + 1 {
		if tokens[x].Kind != isa.TokenKindComment {
			return tokens[x]
		}
	}
	return nil
}

// classifiedTokens converts tokens into the coloring view. Space tags,
// space directives and space indirections carry the space they name.
func classifiedTokens(tokens []*isa.Token) []isa.ClassifiedToken {
	out := make([]isa.ClassifiedToken, 0, len(tokens))
	for _, tok := range tokens {
		ct := isa.ClassifiedToken{
			Range:     tok.Span,
			KindName:  tok.Kind.String(),
			SpaceTag:  tok.SpaceTag,
			Modifiers: tok.Modifiers.String(),
		}
		switch tok.Kind {
		case isa.TokenKindSpaceDirective:
			ct.KindName = ct.KindName + ":" + strings.TrimPrefix(tok.Value, ":")
		case isa.TokenKindSpaceTag:
			ct.KindName = ct.KindName + ":" + tok.Value
			ct.SpaceTag = tok.Value
		case isa.TokenKindSpaceIndirection:
			ct.KindName = ct.KindName + ":" + strings.TrimPrefix(tok.Value, "$")
		}
		out = append(out, ct)
	}
	return out
}
