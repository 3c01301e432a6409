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
)

var (
	spaceKinds  = []string{"rw", "ro", "memio", "register"}
	endianness  = []string{"big", "little"}
	aliasBlocks = []string{"offset", "size", "count", "name"}
)

// check applies the declaration rules to a parsed document. References are
// resolved through the linker so their tokens are classified as a side
// effect.
// reports: malformed values, bit specifications, mutually exclusive
// attributes, unresolved references, mask widths
func check(doc *isa.Document, l *linker, reporter exc.Reporter) {
	checker := documentChecker{
		uri:      doc.URI,
		linker:   l,
		reporter: reporter,
	}
	for _, n := range doc.Nodes {
		checker.check(n)
	}
}

type documentChecker struct {
	uri      string
	linker   *linker
	reporter exc.Reporter
}

func (c *documentChecker) report(span isa.Span, code string, message string) {
	_ = c.reporter.Report(exc.New(exc.Location{URI: c.uri, Span: span}, code, message))
}

func (c *documentChecker) check(n isa.Node) {
	switch n := n.(type) {
	case *isa.Directive:
		c.checkDirective(n)
	case *isa.Space:
		c.checkSpace(n)
	case *isa.Field:
		c.checkField(n)
	case *isa.Instruction:
		c.checkInstruction(n)
	case *isa.Bus:
		c.checkBus(n)
	}
}

func (c *documentChecker) checkDirective(n *isa.Directive) {
	switch n.Name() {
	case "include", "attach":
		if len(n.Args) != 1 || n.Args[0].Kind != isa.TokenKindQuotedString {
			c.report(n.Keyword.Span, exc.CodeInvalidSyntax, fmt.Sprintf("expected a quoted path after '%s'", n.Keyword.Value))
		}
	case "param":
		if len(n.Args) != 3 || n.Args[0].Kind != isa.TokenKindIdentifier || n.Args[1].Kind != isa.TokenKindEquals || !isScalar(n.Args[2]) {
			span := n.Keyword.Span
			if len(n.Args) > 0 {
				span = spanOfTokens(n.Args)
			}
			c.report(span, exc.CodeInvalidParamFormat, fmt.Sprintf("expected NAME=value after ':param', found '%s'", joinTokens(n.Args)))
		}
	}
}

func (c *documentChecker) checkSpace(n *isa.Space) {
	for _, key := range []string{"addr", "word", "align"} {
		if lit, ok := c.number(n.Options, key); ok && (lit.Value == 0 || lit.Value > bitfield.NativeWidth) {
			c.report(n.Options.Get(key).Value().Span(), exc.CodeInvalidParamFormat, fmt.Sprintf("'%s' must be between 1 and %d, found '%s'", key, bitfield.NativeWidth, lit.Text))
		}
	}
	c.enumeration(n.Options, "type", spaceKinds)
	c.enumeration(n.Options, "endian", endianness)
}

func (c *documentChecker) checkField(n *isa.Field) {
	c.requireSpace(n.Directive, n.SpaceTag)
	for _, key := range []string{"offset", "count", "reset"} {
		_, _ = c.number(n.Options, key)
	}
	if lit, ok := c.number(n.Options, "size"); ok && (lit.Value == 0 || lit.Value > bitfield.NativeWidth) {
		c.report(n.Options.Get("size").Value().Span(), exc.CodeInvalidParamFormat, fmt.Sprintf("'size' must be between 1 and %d, found '%s'", bitfield.NativeWidth, lit.Text))
	}

	if redirect := n.Options.Get("redirect"); redirect.IsPresent() {
		for _, key := range aliasBlocks {
			if o := n.Options.Get(key); o.IsPresent() {
				c.report(o.Value().Key.Span, exc.CodeMutuallyExclusive, fmt.Sprintf("'%s' cannot be combined with 'redirect'", key))
			}
		}
		if len(n.Redirect) > 0 {
			_ = c.linker.resolve(n.Redirect, n.SpaceTag, useRedirect)
		}
	} else {
		c.checkNameFormat(n)
	}

	if n.Reset.IsPresent() && n.Size.IsPresent() && !numeric.Fits(n.Reset.Value(), int(n.Size.Value())) {
		o := n.Options.Get("reset").Value()
		c.report(o.Span(), exc.CodeExcessBitsWarning, fmt.Sprintf("reset value '%s' exceeds the %d-bit field '%s'", o.ValueText(), n.Size.Value(), n.Name()))
	}

	width := c.linker.containerWidth(n.SpaceTag, n)
	for _, sf := range n.Subfields {
		c.checkSubfield(sf, width)
	}
}

func (c *documentChecker) checkNameFormat(n *isa.Field) {
	count := n.Count.OrElse(1)
	name := n.Options.Get("name")
	if count > 1 {
		if !name.IsPresent() {
			c.report(n.Options.Get("count").Value().Span(), exc.CodeInvalidParamFormat, fmt.Sprintf("field '%s' with count=%d requires a name format with one '%%d'", n.Name(), count))
			return
		}
		if strings.Count(n.NameFormat, "%d") != 1 {
			c.report(name.Value().Span(), exc.CodeInvalidParamFormat, fmt.Sprintf("name format '%s' must contain exactly one '%%d'", n.NameFormat))
		}
		return
	}
	if name.IsPresent() && strings.Contains(n.NameFormat, "%d") {
		c.report(name.Value().Span(), exc.CodeInvalidParamFormat, fmt.Sprintf("name format '%s' requires count > 1", n.NameFormat))
	}
}

func (c *documentChecker) checkSubfield(sf *isa.Subfield, width int) {
	if sf.Bits == nil {
		c.report(sf.Tag.Span, exc.CodeInvalidBitfieldSyntax, fmt.Sprintf("subfield '%s' has no bit-field", sf.Tag.Value))
		return
	}
	_, errs := bitfield.ParseToken(sf.Bits.Value, width)
	c.bitfieldErrors(sf.Bits, errs)
}

func (c *documentChecker) checkInstruction(n *isa.Instruction) {
	c.requireSpace(n.Directive, n.SpaceTag)
	width := c.linker.containerWidth(n.SpaceTag, nil)
	for _, operand := range n.Operands {
		first := operand.Tokens[0]
		switch {
		case len(operand.Tokens) == 1 && first.Kind == isa.TokenKindBitField:
			_, errs := bitfield.ParseToken(first.Value, width)
			c.bitfieldErrors(first, errs)
		case len(operand.Tokens) == 1 && first.Kind == isa.TokenKindIndexedFieldTag:
			_ = c.linker.resolveIndexed(first, n.SpaceTag)
		default:
			_ = c.linker.resolve(operand.Tokens, n.SpaceTag, useOperand)
		}
	}
	for _, entry := range n.Mask {
		c.checkMaskEntry(n, entry, width)
	}
}

func (c *documentChecker) checkMaskEntry(n *isa.Instruction, entry *isa.MaskEntry, width int) {
	fieldWidth := -1
	switch entry.Key.Kind {
	case isa.TokenKindBitField:
		spec, errs := bitfield.ParseToken(entry.Key.Value, width)
		c.bitfieldErrors(entry.Key, errs)
		if len(errs) == 0 {
			fieldWidth = spec.Width()
		}
	default:
		sym := c.linker.table.findSymbol(entry.Key.Value, n.SpaceTag)
		if !sym.IsPresent() || sym.Value().Kind != isa.SymbolKindSubfield {
			c.linker.undefined(entry.Key, exc.CodeUndefinedSubfield, fmt.Sprintf("undefined subfield '%s' in mask of '%s'", entry.Key.Value, n.Tag.Value))
			return
		}
		c.linker.link(entry.Key, sym.Value(), useOperand)
		if sf, ok := sym.Value().Node.(*isa.Subfield); ok && sf.Bits != nil {
			if spec, errs := bitfield.ParseToken(sf.Bits.Value, width); len(errs) == 0 {
				fieldWidth = spec.Width()
			}
		}
	}
	if entry.Value == nil {
		return
	}
	switch entry.Value.Kind {
	case isa.TokenKindInvalidLiteral:
		return
	case isa.TokenKindNumericLiteral:
	default:
		c.report(entry.Value.Span, exc.CodeInvalidParamFormat, fmt.Sprintf("mask value for '%s' must be a number, found '%s'", entry.Key.Value, entry.Value.Value))
		return
	}
	lit, err := numeric.Parse(entry.Value.Value)
	if err != nil || fieldWidth < 0 {
		return
	}
	switch {
	case lit.Base == numeric.Binary && lit.Digits() > fieldWidth:
		c.report(entry.Value.Span, exc.CodeExcessBitsWarning, fmt.Sprintf("binary literal '%s' is wider than the %d-bit field '%s'", lit.Text, fieldWidth, entry.Key.Value))
	case !numeric.Fits(lit.Value, fieldWidth):
		c.report(entry.Value.Span, exc.CodeExcessBitsWarning, fmt.Sprintf("value '%s' does not fit the %d-bit field '%s'", lit.Text, fieldWidth, entry.Key.Value))
	}
}

func (c *documentChecker) checkBus(n *isa.Bus) {
	if lit, ok := c.number(n.Options, "addr"); ok && (lit.Value == 0 || lit.Value > bitfield.NativeWidth) {
		c.report(n.Options.Get("addr").Value().Span(), exc.CodeInvalidParamFormat, fmt.Sprintf("'addr' must be between 1 and %d, found '%s'", bitfield.NativeWidth, lit.Text))
	}
	for _, r := range n.Ranges {
		_ = c.linker.resolve(r.Target, "", useRangeTarget)
		for _, key := range []string{"size", "prio", "offset", "buslen"} {
			_, _ = c.number(r.Options, key)
		}
		if r.Start == nil || r.Start.Kind != isa.TokenKindNumericLiteral || !n.AddressWidth.IsPresent() {
			continue
		}
		lit, err := numeric.Parse(r.Start.Value)
		if err == nil && !numeric.Fits(lit.Value, int(n.AddressWidth.Value())) {
			c.report(r.Start.Span, exc.CodeExcessBitsWarning, fmt.Sprintf("start address '%s' exceeds the %d-bit address width of '%s'", lit.Text, n.AddressWidth.Value(), n.Tag.Value))
		}
	}
}

func (c *documentChecker) requireSpace(directive *isa.Token, tag string) {
	if !c.linker.table.hasSymbol(tag, "") {
		c.report(directive.Span, exc.CodeUndefinedSpace, fmt.Sprintf("undefined space '%s'", tag))
		return
	}
	if sym := c.linker.table.findSymbol(tag, "").Value(); sym.Kind != isa.SymbolKindSpace {
		c.report(directive.Span, exc.CodeUndefinedSpace, fmt.Sprintf("'%s' is a %s, not a space", tag, sym.Kind))
	}
}

// number returns the numeric value of an option. Malformed literals were
// already reported by the lexer.
func (c *documentChecker) number(options isa.Options, key string) (numeric.Literal, bool) {
	o := options.Get(key)
	if !o.IsPresent() || !o.Value().HasValue() {
		return numeric.Literal{}, false
	}
	option := o.Value()
	if option.Block != nil || len(option.Value) != 1 {
		c.report(option.Span(), exc.CodeInvalidParamFormat, fmt.Sprintf("'%s' expects a number, found '%s'", key, valueText(option)))
		return numeric.Literal{}, false
	}
	v := option.Value[0]
	switch v.Kind {
	case isa.TokenKindNumericLiteral:
		lit, err := numeric.Parse(v.Value)
		return lit, err == nil
	case isa.TokenKindInvalidLiteral:
		return numeric.Literal{}, false
	}
	c.report(v.Span, exc.CodeInvalidParamFormat, fmt.Sprintf("'%s' expects a number, found '%s'", key, v.Value))
	return numeric.Literal{}, false
}

func (c *documentChecker) enumeration(options isa.Options, key string, allowed []string) {
	o := options.Get(key)
	if !o.IsPresent() || !o.Value().HasValue() {
		return
	}
	value := valueText(o.Value())
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	c.report(o.Value().Span(), exc.CodeInvalidParamFormat, fmt.Sprintf("invalid %s '%s' (expected one of %s)", key, value, strings.Join(allowed, ", ")))
}

// bitfieldErrors reports bit-field errors at the offending characters of the
// token. Bit-fields never span lines.
func (c *documentChecker) bitfieldErrors(tok *isa.Token, errs []*bitfield.Error) {
	for _, e := range errs {
		span := tok.Span
		if e.Length > 0 && e.Offset+e.Length <= len(tok.Value) {
			span.Start.Column = tok.Span.Start.Column + int32(e.Offset)
			span.Start.Offset = tok.Span.Start.Offset + int64(e.Offset)
			span.End.Line = span.Start.Line
			span.End.Column = span.Start.Column + int32(e.Length)
			span.End.Offset = span.Start.Offset + int64(e.Length)
		}
		c.report(span, e.Code, e.Message)
	}
}

func valueText(o *isa.Option) string {
	if o.Block != nil {
		return "{...}"
	}
	return o.ValueText()
}

func isScalar(t *isa.Token) bool {
	switch t.Kind {
	case isa.TokenKindIdentifier, isa.TokenKindNumericLiteral, isa.TokenKindQuotedString:
		return true
	}
	return false
}

func spanOfTokens(tokens []*isa.Token) isa.Span {
	return isa.Span{Start: tokens[0].Span.Start, End: tokens[len(tokens)-1].Span.End}
}
