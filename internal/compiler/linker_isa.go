// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

package compiler

import (
	"fmt"
	"strings"

	"gopkg.isalang.org/isac/internal/bitfield"
	"gopkg.isalang.org/isac/internal/exc"
	"gopkg.isalang.org/isac/internal/isa"
	"gopkg.isalang.org/isac/internal/numeric"
	"gopkg.isalang.org/isac/internal/optional"
)

// referenceUse selects the undefined-reference code and whether the legacy
// arrow is accepted.
type referenceUse uint8

const (
	useOperand referenceUse = iota
	useRedirect
	useRangeTarget
)

// linker resolves context references of the form base (';' element)* where
// base is a field name or $space. Every syntax variant goes through resolve.
type linker struct {
	uri          string
	table        *symbolTable
	reporter     exc.Reporter
	defaultWidth int
	// references maps reference tokens to the symbol they name.
	references map[*isa.Token]*isa.Symbol
	// kinds holds refined token kinds for reference tokens.
	kinds map[*isa.Token]isa.TokenKind
}

func newLinker(uri string, table *symbolTable, reporter exc.Reporter, defaultWidth int) *linker {
	return &linker{
		uri:          uri,
		table:        table,
		reporter:     reporter,
		defaultWidth: defaultWidth,
		references:   make(map[*isa.Token]*isa.Symbol),
		kinds:        make(map[*isa.Token]isa.TokenKind),
	}
}

func (l *linker) report(span isa.Span, code string, message string) {
	_ = l.reporter.Report(exc.New(exc.Location{URI: l.uri, Span: span}, code, message))
}

// resolve walks a reference left to right, each element resolved in the
// scope established by the previous one. Resolution stops at the first
// failure, which is reported once.
func (l *linker) resolve(tokens []*isa.Token, scope string, use referenceUse) optional.Optional[*isa.Symbol] {
	none := optional.None[*isa.Symbol]()
	if len(tokens) == 0 {
		return none
	}
	var elements []*isa.Token
	for offset, t := range tokens {
		if offset%2 == 0 {
			elements = append(elements, t)
			continue
		}
		switch t.Kind {
		case isa.TokenKindContextOperator:
		case isa.TokenKindLegacyArrow:
			if use != useRangeTarget {
				l.report(t.Span, exc.CodeInvalidSyntax, fmt.Sprintf("legacy '->' in '%s' is only accepted in bus ranges; use '%s'", joinTokens(tokens), strings.ReplaceAll(joinTokens(tokens), "->", ";")))
			}
		default:
			l.report(t.Span, exc.CodeInvalidSyntax, fmt.Sprintf("unexpected '%s' in reference '%s'", t.Value, joinTokens(tokens)))
			return none
		}
	}

	var current *isa.Symbol
	var currentField *isa.Field
	first := elements[0]
	if first.Kind == isa.TokenKindSpaceIndirection {
		tag := strings.TrimPrefix(first.Value, "$")
		space := l.table.findSymbol(tag, "")
		if !space.IsPresent() || space.Value().Kind != isa.SymbolKindSpace {
			l.undefined(first, exc.CodeUndefinedSpace, fmt.Sprintf("undefined space '%s'", first.Value))
			return none
		}
		l.references[first] = space.Value()
		current = space.Value()
		scope = tag
		elements = elements[1:]
	}

	for _, el := range elements {
		if el.Kind != isa.TokenKindIdentifier {
			l.undefined(el, exc.CodeInvalidSyntax, fmt.Sprintf("unexpected '%s' in reference '%s'", el.Value, joinTokens(tokens)))
			return none
		}
		switch {
		case current == nil || current.Kind == isa.SymbolKindSpace:
			sym, field, ok := l.resolveBase(el, scope, use, current == nil)
			if !ok {
				return none
			}
			current, currentField = sym, field
		case currentField != nil:
			if !l.table.findSubfieldInField(current.Name, el.Value, scope) {
				l.undefined(el, exc.CodeUndefinedSubfield, fmt.Sprintf("undefined subfield '%s' in '%s'", el.Value, current.Name))
				return none
			}
			sub := l.table.subfieldOf(currentField, el.Value, scope).Value()
			l.link(el, sub, use)
			current, currentField = sub, nil
		default:
			l.undefined(el, exc.CodeUndefinedSubfield, fmt.Sprintf("%s '%s' has no subfield '%s'", current.Kind, current.Name, el.Value))
			return none
		}
	}
	return optional.Some(current)
}

// resolveBase resolves the field element of a reference. Bare operands may
// also name a subfield of the space directly.
func (l *linker) resolveBase(el *isa.Token, scope string, use referenceUse, bare bool) (*isa.Symbol, *isa.Field, bool) {
	lookup := l.table.lookupField(el.Value, scope)
	switch {
	case lookup.found():
		l.link(el, lookup.symbol, use)
		return lookup.symbol, lookup.field, true
	case lookup.outOfRange != nil:
		a := lookup.outOfRange
		l.undefined(el, exc.CodeInvalidIndexRange, fmt.Sprintf("'%s' is out of range for '%s' (valid range %s)", el.Value, a.symbol.Name, a.validRange()))
		return nil, nil, false
	case strings.Contains(el.Value, "."):
		l.undefined(el, exc.CodeInvalidSyntax, fmt.Sprintf("deprecated dotted reference '%s'; use '%s'", el.Value, strings.ReplaceAll(el.Value, ".", ";")))
		return nil, nil, false
	}
	if bare && use == useOperand {
		if sym := l.table.findSymbol(el.Value, scope); sym.IsPresent() {
			l.link(el, sym.Value(), use)
			return sym.Value(), nil, true
		}
	}
	switch use {
	case useRedirect:
		l.undefined(el, exc.CodeUndefinedRedirect, fmt.Sprintf("undefined redirect target '%s' in space '%s'", el.Value, scope))
	default:
		l.undefined(el, exc.CodeUndefinedFieldReference, fmt.Sprintf("undefined field '%s' in space '%s'", el.Value, scope))
	}
	return nil, nil, false
}

// resolveIndexed checks NAME[a-b] and NAME[a]. For arrays the indices select
// elements, otherwise they select bits of the field.
func (l *linker) resolveIndexed(tok *isa.Token, scope string) optional.Optional[*isa.Symbol] {
	none := optional.None[*isa.Symbol]()
	open := strings.IndexByte(tok.Value, '[')
	if open < 0 || !strings.HasSuffix(tok.Value, "]") {
		l.undefined(tok, exc.CodeInvalidSyntax, fmt.Sprintf("malformed indexed reference '%s'", tok.Value))
		return none
	}
	name := tok.Value[:open]
	inner := tok.Value[open+1 : len(tok.Value)-1]
	lookup := l.table.lookupField(name, scope)
	if !lookup.found() || lookup.field == nil {
		l.undefined(tok, exc.CodeUndefinedFieldReference, fmt.Sprintf("undefined field '%s' in space '%s'", name, scope))
		return none
	}
	field := lookup.field
	if count := field.Count.OrElse(1); count > 1 {
		start, end, ok := indexBounds(inner)
		if !ok || start > end || end >= count {
			l.undefined(tok, exc.CodeInvalidIndexRange, fmt.Sprintf("index range '%s' is out of range for '%s' (valid range 0..%d)", inner, name, count-1))
			return none
		}
	} else {
		width := l.containerWidth(scope, field)
		if _, errs := bitfield.Parse(inner, width); len(errs) > 0 {
			for _, e := range errs {
				l.report(tok.Span, e.Code, fmt.Sprintf("%s in '%s'", e.Message, tok.Value))
			}
			l.kinds[tok] = isa.TokenKindUndefinedReference
			return none
		}
	}
	l.link(tok, lookup.symbol, useOperand)
	return optional.Some(lookup.symbol)
}

func (l *linker) link(tok *isa.Token, sym *isa.Symbol, use referenceUse) {
	l.references[tok] = sym
	if use == useRedirect {
		l.kinds[tok] = isa.TokenKindAliasReference
		return
	}
	l.kinds[tok] = isa.TokenKindFieldReference
}

func (l *linker) undefined(tok *isa.Token, code string, message string) {
	l.kinds[tok] = isa.TokenKindUndefinedReference
	l.report(tok.Span, code, message)
}

// containerWidth is the field size, else the space word width, else the
// configured default.
func (l *linker) containerWidth(scope string, field *isa.Field) int {
	if field != nil && field.Size.IsPresent() {
		return int(field.Size.Value())
	}
	if space := l.table.findSymbol(scope, ""); space.IsPresent() {
		if s, ok := space.Value().Node.(*isa.Space); ok && s.WordWidth.IsPresent() {
			return int(s.WordWidth.Value())
		}
	}
	return l.defaultWidth
}

func indexBounds(inner string) (uint64, uint64, bool) {
	lo, hi, isRange := strings.Cut(inner, "-")
	start, err := numeric.Parse(lo)
	if err != nil {
		return 0, 0, false
	}
	if !isRange {
		return start.Value, start.Value, true
	}
	end, err := numeric.Parse(hi)
	if err != nil {
		return 0, 0, false
	}
	return start.Value, end.Value, true
}

func joinTokens(tokens []*isa.Token) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteString(t.Value)
	}
	return b.String()
}
