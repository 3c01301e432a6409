// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

package frontend

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"gopkg.isalang.org/isac/internal/exc"
	"gopkg.isalang.org/isac/internal/isa"
	"gopkg.isalang.org/isac/internal/iter"
	"gopkg.isalang.org/isac/internal/numeric"
	"gopkg.isalang.org/isac/internal/optional"
)

const (
	// Enough to see a whole NAME[start-end] suffix.
	lexerISALookahead = 16
)

// directiveKeywords are the generic directives. Any other :word names a
// space.
var directiveKeywords = map[string]bool{
	"space":   true,
	"bus":     true,
	"include": true,
	"attach":  true,
	"param":   true,
}

// IsDirectiveKeyword reports whether name, without the leading colon, is a
// generic directive.
func IsDirectiveKeyword(name string) bool {
	return directiveKeywords[name]
}

// LexerISA implements a tokenizer for ISA description files. Each call to
// Tokens produces an independent stream so a single LexerISA may be shared
// by concurrent analyses.
type LexerISA struct {
	reporter exc.Reporter
	logger   *slog.Logger
}

func NewLexerISA(reporter exc.Reporter, logger *slog.Logger) *LexerISA {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &LexerISA{reporter: reporter, logger: logger.With(slog.String("component", "lexer"))}
}

func (self *LexerISA) Lex(ctx context.Context, f isa.File) (isa.LexerFile, error) {
	return &lexerFileISA{
		File:  f,
		lexer: self,
	}, nil
}

// LexString tokenizes in-memory text.
func (self *LexerISA) LexString(ctx context.Context, uri string, text string) isa.Iterator[*isa.Token] {
	return self.stream(uri, iter.NewUnicodeString(text))
}

func (self *LexerISA) stream(uri string, points isa.Iterator[isa.CodePoint]) *lexerFileISATokens {
	return &lexerFileISATokens{
		uri:      uri,
		body:     iter.NewLookahead(points, lexerISALookahead),
		reporter: self.reporter,
		logger:   self.logger.With(slog.String("uri", uri)),
		line:     1,
	}
}

type lexerFileISA struct {
	isa.File
	lexer *LexerISA
}

func (self *lexerFileISA) Tokens(ctx context.Context) (isa.Iterator[*isa.Token], error) {
	b, err := self.File.Body(ctx)
	if err != nil {
		return nil, err
	}
	return self.lexer.stream(self.File.Path(ctx), iter.NewUnicodeFileBodyCtx(ctx, b)), nil
}

type lexerFileISATokens struct {
	uri      string
	body     isa.Lookahead[isa.CodePoint]
	reporter exc.Reporter
	logger   *slog.Logger

	line   int32
	col    int32
	offset int64
	// last is the position of the most recently consumed rune.
	last isa.Location

	spaceTag     string
	braceDepth   int
	parenDepth   int
	bracketDepth int
	// subfieldsDepth and opaqueDepth are the brace depths of an open
	// subfields={ or semantics={ block, zero when none is open.
	subfieldsDepth int
	opaqueDepth    int

	prev     *isa.Token
	prevPrev *isa.Token
	count    int
}

func (self *lexerFileISATokens) Next(ctx context.Context) optional.Optional[*isa.Token] {
	for point := self.next(ctx); point.IsPresent(); point = self.next(ctx) {
		r := rune(point.Value())
		start := self.last
		switch {
		case r == ' ' || r == '\t' || r == '\r' || r == '\n' || r == '\f' || r == 0xFEFF:
			continue
		case r == '#':
			return self.readComment(ctx, start)
		case r == ':':
			return self.readDirective(ctx, start)
		case r == '@':
			return self.readBitField(ctx, start)
		case r == '"':
			return self.readQuoted(ctx, start)
		case r == '{':
			return self.emit(start, isa.TokenKindBraceOpen, "{")
		case r == '}':
			return self.emit(start, isa.TokenKindBraceClose, "}")
		case r == '(':
			return self.emit(start, isa.TokenKindParenOpen, "(")
		case r == ')':
			return self.emit(start, isa.TokenKindParenClose, ")")
		case r == '[':
			return self.emit(start, isa.TokenKindBracketOpen, "[")
		case r == ']':
			return self.emit(start, isa.TokenKindBracketClose, "]")
		case r == '=':
			return self.emit(start, isa.TokenKindEquals, "=")
		case r == ',':
			return self.emit(start, isa.TokenKindComma, ",")
		case r == ';':
			return self.emit(start, isa.TokenKindContextOperator, ";")
		case r == '$':
			return self.readSpaceIndirection(ctx, start)
		case r == '-':
			if self.peekIs(ctx, 1, '>') {
				_ = self.next(ctx)
				return self.emit(start, isa.TokenKindLegacyArrow, "->")
			}
			if self.bracketDepth > 0 && self.prev != nil && self.prev.Kind == isa.TokenKindNumericLiteral &&
				self.prev.Span.End.Offset == start.Offset && self.peekDigit(ctx, 1) {
				return self.emit(start, isa.TokenKindIndexSeparator, "-")
			}
			return self.emit(start, isa.TokenKindOperator, "-")
		case r >= '0' && r <= '9':
			return self.readNumber(ctx, start, r)
		case isIdentifierStart(r):
			return self.readIdentifier(ctx, start, r)
		case strings.ContainsRune("|+*/<>!&^~%?.", r):
			return self.emit(start, isa.TokenKindOperator, string(r))
		default:
			tok := self.emit(start, isa.TokenKindUnknown, string(r))
			self.report(tok.Value().Span, exc.CodeInvalidIdentifier, fmt.Sprintf("unexpected character '%s'", string(r)))
			return tok
		}
	}
	self.logger.Debug("tokens lexed", slog.Int("count", self.count), slog.Int("lines", int(self.line)))
	return optional.None[*isa.Token]()
}

func (self *lexerFileISATokens) readComment(ctx context.Context, start isa.Location) optional.Optional[*isa.Token] {
	var builder strings.Builder
	_, _ = builder.WriteRune('#')
	for {
		n, ok := self.peek(ctx, 1)
		if !ok || n == '\n' || n == '\r' {
			return self.emit(start, isa.TokenKindComment, builder.String())
		}
		_ = self.next(ctx)
		_, _ = builder.WriteRune(n)
	}
}

func (self *lexerFileISATokens) readDirective(ctx context.Context, start isa.Location) optional.Optional[*isa.Token] {
	n, ok := self.peek(ctx, 1)
	if !ok || !isIdentifierStart(n) {
		tok := self.emit(start, isa.TokenKindUnknown, ":")
		self.report(tok.Value().Span, exc.CodeInvalidSyntax, "expected a directive name after ':'")
		return tok
	}
	name := self.readRun(ctx, "", isIdentifierPart)
	value := ":" + name
	atStatementStart := self.prev == nil || self.prev.Span.End.Line < start.Line
	if atStatementStart {
		self.braceDepth = 0
		self.parenDepth = 0
		self.bracketDepth = 0
		self.subfieldsDepth = 0
		self.opaqueDepth = 0
	}
	if directiveKeywords[name] {
		self.spaceTag = ""
		return self.emit(start, isa.TokenKindDirective, value)
	}
	self.spaceTag = name
	return self.emit(start, isa.TokenKindSpaceDirective, value)
}

func (self *lexerFileISATokens) readBitField(ctx context.Context, start isa.Location) optional.Optional[*isa.Token] {
	if !self.peekIs(ctx, 1, '(') {
		tok := self.emit(start, isa.TokenKindUnknown, "@")
		self.report(tok.Value().Span, exc.CodeInvalidBitfieldSyntax, "expected '(' after '@'")
		return tok
	}
	var builder strings.Builder
	_, _ = builder.WriteRune('@')
	depth := 0
	for {
		n, ok := self.peek(ctx, 1)
		if !ok || n == '\n' || n == '\r' {
			tok := self.emit(start, isa.TokenKindBitField, builder.String())
			self.report(tok.Value().Span, exc.CodeInvalidBitfieldSyntax, fmt.Sprintf("unterminated bit-field '%s'", builder.String()))
			return tok
		}
		_ = self.next(ctx)
		_, _ = builder.WriteRune(n)
		switch n {
		case '(':
			depth = depth + 1
		case ')':
			depth = depth - 1
			if depth == 0 {
				return self.emit(start, isa.TokenKindBitField, builder.String())
			}
		}
	}
}

func (self *lexerFileISATokens) readQuoted(ctx context.Context, start isa.Location) optional.Optional[*isa.Token] {
	var builder strings.Builder
	for {
		n, ok := self.peek(ctx, 1)
		if !ok || n == '\n' || n == '\r' {
			tok := self.emit(start, isa.TokenKindQuotedString, builder.String())
			self.report(tok.Value().Span, exc.CodeInvalidSyntax, "unterminated quoted string")
			return tok
		}
		_ = self.next(ctx)
		switch n {
		case '"':
			return self.emit(start, isa.TokenKindQuotedString, builder.String())
		case '\\':
			if nn, ok := self.peek(ctx, 1); ok && nn != '\n' && nn != '\r' {
				_ = self.next(ctx)
				_, _ = builder.WriteRune(unescape(nn))
				continue
			}
			_, _ = builder.WriteRune(n)
		default:
			_, _ = builder.WriteRune(n)
		}
	}
}

func (self *lexerFileISATokens) readSpaceIndirection(ctx context.Context, start isa.Location) optional.Optional[*isa.Token] {
	n, ok := self.peek(ctx, 1)
	if !ok || !isIdentifierStart(n) {
		tok := self.emit(start, isa.TokenKindUnknown, "$")
		self.report(tok.Value().Span, exc.CodeInvalidIdentifier, "expected a space tag after '$'")
		return tok
	}
	return self.emit(start, isa.TokenKindSpaceIndirection, self.readRun(ctx, "$", isIdentifierPart))
}

func (self *lexerFileISATokens) readNumber(ctx context.Context, start isa.Location, first rune) optional.Optional[*isa.Token] {
	text := self.readRun(ctx, string(first), isNumberPart)
	if _, err := numeric.Parse(text); err != nil {
		tok := self.emit(start, isa.TokenKindInvalidLiteral, text)
		self.report(tok.Value().Span, exc.CodeInvalidNumericLiteral, fmt.Sprintf("invalid numeric literal '%s': %s", text, err))
		return tok
	}
	return self.emit(start, isa.TokenKindNumericLiteral, text)
}

func (self *lexerFileISATokens) readIdentifier(ctx context.Context, start isa.Location, first rune) optional.Optional[*isa.Token] {
	text := self.readRun(ctx, string(first), isIdentifierPart)
	if size := self.indexSuffix(ctx); size > 0 {
		var builder strings.Builder
		_, _ = builder.WriteString(text)
		for x := 0; x < size; x = x + 1 {
			p := self.next(ctx)
			_, _ = builder.WriteRune(rune(p.Value()))
		}
		return self.emit(start, isa.TokenKindIndexedFieldTag, builder.String())
	}
	return self.emit(start, isa.TokenKindIdentifier, text)
}

// indexSuffix returns the rune count of a [n] or [n-m] suffix that directly
// follows, or zero.
func (self *lexerFileISATokens) indexSuffix(ctx context.Context) int {
	if !self.peekIs(ctx, 1, '[') {
		return 0
	}
	n := uint8(2)
	digits := 0
	dashes := 0
	for ; n <= lexerISALookahead; n = n + 1 {
		r, ok := self.peek(ctx, n)
		switch {
		case !ok:
			return 0
		case r >= '0' && r <= '9':
			digits = digits + 1
		case r == '-' && digits > 0 && dashes == 0:
			dashes = dashes + 1
			digits = 0
		case r == ']' && digits > 0:
			return int(n)
		default:
			return 0
		}
	}
	return 0
}

// readRun consumes runes accepted by the predicate. A run never swallows the
// legacy arrow.
func (self *lexerFileISATokens) readRun(ctx context.Context, prefix string, accept func(rune) bool) string {
	var builder strings.Builder
	_, _ = builder.WriteString(prefix)
	for {
		n, ok := self.peek(ctx, 1)
		if !ok || !accept(n) {
			return builder.String()
		}
		if n == '-' && self.peekIs(ctx, 2, '>') {
			return builder.String()
		}
		_ = self.next(ctx)
		_, _ = builder.WriteRune(n)
	}
}

func (self *lexerFileISATokens) emit(start isa.Location, kind isa.TokenKind, value string) optional.Optional[*isa.Token] {
	t := newToken(start.Line, start.Column, start.Offset, self.line, self.col, self.offset, kind, value)
	t.SpaceTag = self.spaceTag
	if kind == isa.TokenKindLegacyArrow {
		t.Modifiers = t.Modifiers | isa.ModifierDeprecated
	}

	switch kind {
	case isa.TokenKindBraceOpen:
		self.braceDepth = self.braceDepth + 1
		if self.opaqueDepth == 0 && self.prev.Is(isa.TokenKindEquals, "=") {
			switch {
			case self.prevPrev.Is(isa.TokenKindIdentifier, "subfields"):
				self.subfieldsDepth = self.braceDepth
			case self.prevPrev.Is(isa.TokenKindIdentifier, "semantics"):
				self.opaqueDepth = self.braceDepth
			}
		}
	case isa.TokenKindParenOpen:
		self.parenDepth = self.parenDepth + 1
	case isa.TokenKindParenClose:
		self.parenDepth = decrement(self.parenDepth)
	case isa.TokenKindBracketOpen:
		self.bracketDepth = self.bracketDepth + 1
	case isa.TokenKindBracketClose:
		self.bracketDepth = decrement(self.bracketDepth)
	}
	if self.subfieldsDepth > 0 && self.braceDepth >= self.subfieldsDepth {
		t.Modifiers = t.Modifiers | isa.ModifierInSubfields
	}
	if self.opaqueDepth > 0 && self.braceDepth >= self.opaqueDepth {
		t.Modifiers = t.Modifiers | isa.ModifierOpaque
	}
	if kind == isa.TokenKindBraceClose {
		if self.braceDepth == self.subfieldsDepth {
			self.subfieldsDepth = 0
		}
		if self.braceDepth == self.opaqueDepth {
			self.opaqueDepth = 0
		}
		self.braceDepth = decrement(self.braceDepth)
	}

	if kind != isa.TokenKindComment {
		self.prevPrev = self.prev
		self.prev = t
	}
	self.count = self.count + 1
	return optional.Some(t)
}

func (self *lexerFileISATokens) report(span isa.Span, code string, message string) {
	_ = self.reporter.Report(exc.New(exc.Location{URI: self.uri, Span: span}, code, message))
}

func (self *lexerFileISATokens) next(ctx context.Context) optional.Optional[isa.CodePoint] {
	n := self.body.Next(ctx)
	if n.IsPresent() {
		self.last = isa.Location{Line: self.line, Column: self.col, Offset: self.offset}
		r := rune(n.Value())
		self.offset = self.offset + int64(utf8.RuneLen(r))
		if r == '\n' {
			self.line = self.line + 1
			self.col = 0
		} else {
			self.col = self.col + 1
		}
	}
	return n
}

func (self *lexerFileISATokens) peek(ctx context.Context, n uint8) (rune, bool) {
	p := self.body.Lookahead(ctx, n)
	if !p.IsPresent() {
		return 0, false
	}
	return rune(p.Value()), true
}

func (self *lexerFileISATokens) peekIs(ctx context.Context, n uint8, r rune) bool {
	p, ok := self.peek(ctx, n)
	return ok && p == r
}

func (self *lexerFileISATokens) peekDigit(ctx context.Context, n uint8) bool {
	p, ok := self.peek(ctx, n)
	return ok && p >= '0' && p <= '9'
}

func (self *lexerFileISATokens) Close(ctx context.Context) error {
	return self.body.Close(ctx)
}

func isIdentifierStart(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
}

func isIdentifierPart(r rune) bool {
	return isIdentifierStart(r) || (r >= '0' && r <= '9') || r == '.' || r == '-'
}

func isNumberPart(r rune) bool {
	return isIdentifierStart(r) || (r >= '0' && r <= '9')
}

func unescape(r rune) rune {
	switch r {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	default:
		return r
	}
}

func decrement(v int) int {
	if v > 0 {
		return v - 1
	}
	return 0
}

func newToken(startLine int32, startCol int32, startOffset int64, endLine int32, endCol int32, endOffset int64, kind isa.TokenKind, value string) *isa.Token {
	return &isa.Token{
		Span: isa.Span{
			Start: isa.Location{
				Line:   startLine,
				Column: startCol,
				Offset: startOffset,
			},
			End: isa.Location{
				Line:   endLine,
				Column: endCol,
				Offset: endOffset,
			},
		},
		Kind:  kind,
		Value: value,
	}
}
