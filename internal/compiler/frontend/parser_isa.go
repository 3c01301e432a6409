// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

package frontend

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"gopkg.isalang.org/isac/internal/exc"
	"gopkg.isalang.org/isac/internal/isa"
	"gopkg.isalang.org/isac/internal/iter"
	"gopkg.isalang.org/isac/internal/numeric"
	"gopkg.isalang.org/isac/internal/optional"
)

// ParserISA builds declaration nodes from a token stream. Statements begin at
// a directive that is the first token on its line. A malformed statement is
// reported and parsing resumes at the next statement.
type ParserISA struct {
	reporter exc.Reporter
	logger   *slog.Logger
}

func NewParserISA(reporter exc.Reporter, logger *slog.Logger) *ParserISA {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ParserISA{reporter: reporter, logger: logger.With(slog.String("component", "parser"))}
}

// Parse consumes the token stream. The source text is used for node text
// only and may be empty.
func (self *ParserISA) Parse(ctx context.Context, uri string, source string, tokens isa.Iterator[*isa.Token]) (*isa.Document, error) {
	filtered := iter.NewIteratorFilter(tokens, isa.Filter[*isa.Token](iter.FilterFunc[*isa.Token](func(ctx context.Context, t *isa.Token) bool {
		return t.Kind != isa.TokenKindComment
	})))
	p := &parserISATokens{
		reporter: self.reporter,
		ctx:      ctx,
		uri:      uri,
		source:   source,
		tokens:   iter.NewLookahead(filtered, 1),
	}
	doc := &isa.Document{URI: uri}
	for statement := p.statement(); statement != nil; statement = p.statement() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if node := p.parseStatement(statement); node != nil {
			doc.Nodes = append(doc.Nodes, node)
		}
	}
	self.logger.Debug("nodes built", slog.String("uri", uri), slog.Int("count", len(doc.Nodes)))
	return doc, tokens.Close(ctx)
}

type parserISATokens struct {
	reporter exc.Reporter
	ctx      context.Context
	uri      string
	source   string
	tokens   isa.Lookahead[*isa.Token]
	last     *isa.Token
}

func (p *parserISATokens) report(span isa.Span, code string, message string) {
	_ = p.reporter.Report(exc.New(exc.Location{URI: p.uri, Span: span}, code, message))
}

func (p *parserISATokens) peek() *isa.Token {
	maybeToken := p.tokens.Lookahead(p.ctx, 0)
	if !maybeToken.IsPresent() {
		return nil
	}
	return maybeToken.Value()
}

func (p *parserISATokens) advance() {
	if t := p.peek(); t != nil {
		p.last = t
	}
	_ = p.tokens.Next(p.ctx)
}

func (p *parserISATokens) atStatementStart(t *isa.Token) bool {
	if t.Kind != isa.TokenKindDirective && t.Kind != isa.TokenKindSpaceDirective {
		return false
	}
	return p.last == nil || p.last.Span.End.Line < t.Span.Start.Line
}

// statement returns the tokens of the next statement, reporting any tokens
// that precede it.
func (p *parserISATokens) statement() []*isa.Token {
	stray := false
	for t := p.peek(); t != nil; t = p.peek() {
		if p.atStatementStart(t) {
			break
		}
		if !stray {
			p.report(t.Span, exc.CodeInvalidSyntax, fmt.Sprintf("unexpected '%s' outside of a declaration", t.Value))
			stray = true
		}
		p.advance()
	}
	first := p.peek()
	if first == nil {
		return nil
	}
	p.advance()
	statement := []*isa.Token{first}
	for t := p.peek(); t != nil && !p.atStatementStart(t); t = p.peek() {
		statement = append(statement, t)
		p.advance()
	}
	return statement
}

func (p *parserISATokens) base(tokens []*isa.Token) isa.Base {
	span := spanOf(tokens)
	b := isa.Base{Span: span}
	if int(span.End.Offset) <= len(p.source) && span.Start.Offset <= span.End.Offset {
		b.Text = p.source[span.Start.Offset:span.End.Offset]
	}
	return b
}

func (p *parserISATokens) parseStatement(statement []*isa.Token) isa.Node {
	head := statement[0]
	c := &cursor{tokens: statement[1:]}
	if head.Kind == isa.TokenKindSpaceDirective {
		return p.parseDeclaration(head, statement, c)
	}
	switch head.Value {
	case ":space":
		return p.parseSpace(head, statement, c)
	case ":bus":
		return p.parseBus(head, statement, c)
	default:
		return &isa.Directive{Base: p.base(statement), Keyword: head, Args: c.rest()}
	}
}

func (p *parserISATokens) parseSpace(head *isa.Token, statement []*isa.Token, c *cursor) isa.Node {
	tag := p.tag(head, c)
	if tag == nil {
		return nil
	}
	space := &isa.Space{Base: p.base(statement), Directive: head, Tag: tag}
	space.Options = p.parseOptions(c, nil)
	space.AddressWidth = numericOption(space.Options, "addr")
	space.WordWidth = numericOption(space.Options, "word")
	space.Alignment = numericOption(space.Options, "align")
	space.Kind = textOption(space.Options, "type")
	space.Endianness = textOption(space.Options, "endian")
	return space
}

func (p *parserISATokens) parseBus(head *isa.Token, statement []*isa.Token, c *cursor) isa.Node {
	tag := p.tag(head, c)
	if tag == nil {
		return nil
	}
	bus := &isa.Bus{Base: p.base(statement), Directive: head, Tag: tag}
	bus.Options = p.parseOptions(c, nil)
	bus.AddressWidth = numericOption(bus.Options, "addr")
	bus.Description = textOption(bus.Options, "descr")
	if ranges := bus.Options.Get("ranges"); ranges.IsPresent() && ranges.Value().Block != nil {
		bus.Ranges = p.parseRanges(ranges.Value().Block)
	}
	return bus
}

func (p *parserISATokens) tag(head *isa.Token, c *cursor) *isa.Token {
	t := c.peek(0)
	if t == nil || t.Kind != isa.TokenKindIdentifier || c.peek(1).Is(isa.TokenKindEquals, "=") {
		p.report(head.Span, exc.CodeInvalidSyntax, fmt.Sprintf("expected a tag after '%s'", head.Value))
		return nil
	}
	c.next()
	return t
}

func (p *parserISATokens) parseDeclaration(head *isa.Token, statement []*isa.Token, c *cursor) isa.Node {
	spaceTag := head.Value[1:]
	t := c.peek(0)
	if t == nil {
		p.report(head.Span, exc.CodeInvalidSyntax, fmt.Sprintf("expected a field or instruction declaration after '%s'", head.Value))
		return nil
	}
	if t.Kind == isa.TokenKindIdentifier && c.peek(1).Is(isa.TokenKindParenOpen, "(") {
		return p.parseInstruction(head, statement, c, spaceTag)
	}
	field := &isa.Field{Base: p.base(statement), Directive: head, SpaceTag: spaceTag}
	if t.Kind == isa.TokenKindIdentifier && !c.peek(1).Is(isa.TokenKindEquals, "=") {
		field.Tag = t
		c.next()
	}
	field.Options = p.parseOptions(c, nil)
	field.Offset = numericOption(field.Options, "offset")
	field.Size = numericOption(field.Options, "size")
	field.Count = numericOption(field.Options, "count")
	field.Reset = numericOption(field.Options, "reset")
	field.NameFormat = textOption(field.Options, "name")
	if redirect := field.Options.Get("redirect"); redirect.IsPresent() {
		field.Redirect = redirect.Value().Value
	}
	if subfields := field.Options.Get("subfields"); subfields.IsPresent() && subfields.Value().Block != nil {
		field.Subfields = p.parseSubfields(subfields.Value().Block)
	}
	return field
}

func (p *parserISATokens) parseInstruction(head *isa.Token, statement []*isa.Token, c *cursor, spaceTag string) isa.Node {
	insn := &isa.Instruction{Base: p.base(statement), Directive: head, SpaceTag: spaceTag, Tag: c.next()}
	open := c.next()
	var operand []*isa.Token
	closed := false
	depth := 0
	for t := c.peek(0); t != nil; t = c.peek(0) {
		c.next()
		switch {
		case t.Kind == isa.TokenKindBracketOpen:
			depth = depth + 1
		case t.Kind == isa.TokenKindBracketClose:
			depth = decrement(depth)
		case depth == 0 && (t.Kind == isa.TokenKindComma || t.Kind == isa.TokenKindParenClose):
			if len(operand) == 0 {
				if t.Kind == isa.TokenKindComma || len(insn.Operands) > 0 {
					p.report(t.Span, exc.CodeInvalidSyntax, fmt.Sprintf("empty operand before '%s'", t.Value))
				}
			} else {
				insn.Operands = append(insn.Operands, &isa.Operand{Tokens: operand})
			}
			operand = nil
			if t.Kind == isa.TokenKindParenClose {
				closed = true
			}
		}
		if closed {
			break
		}
		if t.Kind != isa.TokenKindComma || depth > 0 {
			operand = append(operand, t)
		}
	}
	if !closed {
		p.report(open.Span, exc.CodeInvalidSyntax, fmt.Sprintf("unterminated operand list for '%s'", insn.Tag.Value))
		if len(operand) > 0 {
			insn.Operands = append(insn.Operands, &isa.Operand{Tokens: operand})
		}
	}
	insn.Options = p.parseOptions(c, nil)
	insn.Description = textOption(insn.Options, "descr")
	if mask := insn.Options.Get("mask"); mask.IsPresent() && mask.Value().Block != nil {
		insn.Mask = p.parseMask(mask.Value().Block)
	}
	if semantics := insn.Options.Get("semantics"); semantics.IsPresent() {
		insn.Semantics = semantics.Value().Block
	}
	return insn
}

// parseOptions reads key=value pairs and bare keys until the cursor is
// exhausted or stop reports the start of the next entry.
func (p *parserISATokens) parseOptions(c *cursor, stop func(c *cursor) bool) isa.Options {
	var options isa.Options
	for t := c.peek(0); t != nil; t = c.peek(0) {
		if stop != nil && stop(c) {
			break
		}
		if t.Kind != isa.TokenKindIdentifier {
			p.report(t.Span, exc.CodeInvalidSyntax, fmt.Sprintf("unexpected '%s'", t.Value))
			c.next()
			continue
		}
		option := &isa.Option{Key: c.next()}
		options = append(options, option)
		if !c.peek(0).Is(isa.TokenKindEquals, "=") {
			continue
		}
		option.Equals = c.next()
		if c.peek(0) != nil && c.peek(0).Kind == isa.TokenKindBraceOpen {
			option.Block = p.parseBlock(c)
			continue
		}
		option.Value = p.parseValue(c)
		if len(option.Value) == 0 {
			p.report(option.Span(), exc.CodeInvalidSyntax, fmt.Sprintf("missing value for '%s'", option.Key.Value))
		}
	}
	return options
}

// parseValue reads one value token and any joined continuations.
func (p *parserISATokens) parseValue(c *cursor) []*isa.Token {
	if !isValue(c.peek(0)) {
		return nil
	}
	value := []*isa.Token{c.next()}
	for isJoiner(c.peek(0)) && isValue(c.peek(1)) {
		value = append(value, c.next(), c.next())
	}
	return value
}

func (p *parserISATokens) parseBlock(c *cursor) *isa.Block {
	block := &isa.Block{Open: c.next()}
	depth := 1
	for t := c.peek(0); t != nil; t = c.peek(0) {
		c.next()
		switch t.Kind {
		case isa.TokenKindBraceOpen:
			depth = depth + 1
		case isa.TokenKindBraceClose:
			depth = depth - 1
			if depth == 0 {
				block.Close = t
				return block
			}
		}
		block.Tokens = append(block.Tokens, t)
	}
	p.report(block.Open.Span, exc.CodeInvalidSyntax, "unterminated '{'")
	return block
}

func (p *parserISATokens) parseSubfields(block *isa.Block) []*isa.Subfield {
	var subfields []*isa.Subfield
	c := &cursor{tokens: block.Tokens}
	for t := c.peek(0); t != nil; t = c.peek(0) {
		if t.Kind == isa.TokenKindComma {
			c.next()
			continue
		}
		if t.Kind != isa.TokenKindIdentifier || c.peek(1).Is(isa.TokenKindEquals, "=") {
			p.report(t.Span, exc.CodeInvalidSyntax, fmt.Sprintf("expected a subfield name, found '%s'", t.Value))
			c.next()
			continue
		}
		start := c.pos
		sf := &isa.Subfield{Tag: c.next()}
		if b := c.peek(0); b != nil && b.Kind == isa.TokenKindBitField {
			sf.Bits = c.next()
		}
		sf.Options = p.parseOptions(c, subfieldEntryStart)
		sf.Base = p.base(c.tokens[start:c.pos])
		sf.Description = textOption(sf.Options, "descr")
		if op := sf.Options.Get("op"); op.IsPresent() {
			for _, v := range op.Value().Value {
				if v.Kind == isa.TokenKindIdentifier {
					sf.OpTypes = append(sf.OpTypes, v.Value)
				}
			}
		}
		subfields = append(subfields, sf)
	}
	return subfields
}

func subfieldEntryStart(c *cursor) bool {
	t := c.peek(0)
	if t.Kind == isa.TokenKindComma {
		return true
	}
	next := c.peek(1)
	return t.Kind == isa.TokenKindIdentifier && next != nil && next.Kind == isa.TokenKindBitField
}

func (p *parserISATokens) parseMask(block *isa.Block) []*isa.MaskEntry {
	var entries []*isa.MaskEntry
	c := &cursor{tokens: block.Tokens}
	for t := c.peek(0); t != nil; t = c.peek(0) {
		if t.Kind == isa.TokenKindComma {
			c.next()
			continue
		}
		if (t.Kind != isa.TokenKindIdentifier && t.Kind != isa.TokenKindBitField) || !c.peek(1).Is(isa.TokenKindEquals, "=") {
			p.report(t.Span, exc.CodeInvalidSyntax, fmt.Sprintf("expected a mask entry 'key=value', found '%s'", t.Value))
			c.next()
			continue
		}
		entry := &isa.MaskEntry{Key: c.next()}
		equals := c.next()
		if isValue(c.peek(0)) {
			entry.Value = c.next()
		} else {
			p.report(equals.Span, exc.CodeInvalidSyntax, fmt.Sprintf("missing value for mask entry '%s'", entry.Key.Value))
		}
		entries = append(entries, entry)
	}
	return entries
}

func (p *parserISATokens) parseRanges(block *isa.Block) []*isa.BusRange {
	var ranges []*isa.BusRange
	c := &cursor{tokens: block.Tokens}
	for t := c.peek(0); t != nil; t = c.peek(0) {
		if t.Kind == isa.TokenKindComma {
			c.next()
			continue
		}
		if t.Kind != isa.TokenKindSpaceIndirection {
			p.report(t.Span, exc.CodeInvalidSyntax, fmt.Sprintf("expected a '$space' range entry, found '%s'", t.Value))
			c.next()
			continue
		}
		start := c.pos
		r := &isa.BusRange{Target: []*isa.Token{c.next()}}
		for isJoiner(c.peek(0)) && c.peek(1) != nil && c.peek(1).Kind == isa.TokenKindIdentifier {
			r.Target = append(r.Target, c.next(), c.next())
		}
		if s := c.peek(0); s != nil && (s.Kind == isa.TokenKindNumericLiteral || s.Kind == isa.TokenKindInvalidLiteral) {
			r.Start = c.next()
		} else {
			p.report(t.Span, exc.CodeInvalidSyntax, fmt.Sprintf("expected a start address for range '%s'", t.Value))
		}
		r.Options = p.parseOptions(c, rangeEntryStart)
		r.Base = p.base(c.tokens[start:c.pos])
		ranges = append(ranges, r)
	}
	return ranges
}

func rangeEntryStart(c *cursor) bool {
	t := c.peek(0)
	return t.Kind == isa.TokenKindComma || t.Kind == isa.TokenKindSpaceIndirection
}

type cursor struct {
	tokens []*isa.Token
	pos    int
}

func (c *cursor) peek(n int) *isa.Token {
	if c.pos+n < len(c.tokens) {
		return c.tokens[c.pos+n]
	}
	return nil
}

func (c *cursor) next() *isa.Token {
	t := c.peek(0)
	if t != nil {
		c.pos = c.pos + 1
	}
	return t
}

func (c *cursor) rest() []*isa.Token {
	r := c.tokens[c.pos:]
	c.pos = len(c.tokens)
	return r
}

func isValue(t *isa.Token) bool {
	if t == nil {
		return false
	}
	switch t.Kind {
	case isa.TokenKindIdentifier, isa.TokenKindNumericLiteral, isa.TokenKindInvalidLiteral, isa.TokenKindBitField,
		isa.TokenKindQuotedString, isa.TokenKindSpaceIndirection, isa.TokenKindIndexedFieldTag:
		return true
	}
	return false
}

func isJoiner(t *isa.Token) bool {
	if t == nil {
		return false
	}
	return t.Kind == isa.TokenKindContextOperator || t.Kind == isa.TokenKindLegacyArrow || t.Is(isa.TokenKindOperator, "|")
}

// numericOption returns the value of a single numeric literal option.
// Malformed values are left to the checker.
func numericOption(options isa.Options, name string) optional.Optional[uint64] {
	o := options.Get(name)
	if !o.IsPresent() || len(o.Value().Value) != 1 {
		return optional.None[uint64]()
	}
	lit, err := numeric.Parse(o.Value().Value[0].Value)
	if err != nil {
		return optional.None[uint64]()
	}
	return optional.Some(lit.Value)
}

func textOption(options isa.Options, name string) string {
	o := options.Get(name)
	if !o.IsPresent() {
		return ""
	}
	return o.Value().ValueText()
}

func spanOf(tokens []*isa.Token) isa.Span {
	if len(tokens) == 0 {
		return isa.Span{}
	}
	return isa.Span{Start: tokens[0].Span.Start, End: tokens[len(tokens)-1].Span.End}
}
