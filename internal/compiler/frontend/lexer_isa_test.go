// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

package frontend

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"gopkg.isalang.org/isac/internal/exc"
	"gopkg.isalang.org/isac/internal/fs"
	"gopkg.isalang.org/isac/internal/isa"
	"gopkg.isalang.org/isac/internal/iter"
	"gopkg.isalang.org/isac/internal/optional"
)

type kindValue struct {
	Kind  isa.TokenKind
	Value string
}

func lexString(t testing.TB, input string) ([]*isa.Token, []exc.Exception) {
	t.Helper()
	ctx := context.Background()
	rep := exc.NewReporter(nil)
	lexer := NewLexerISA(rep, nil)
	tokens, err := iter.Collect(ctx, lexer.LexString(ctx, "/test.isa", input))
	require.NoError(t, err)
	return tokens, rep.Reported()
}

func kindValues(tokens []*isa.Token) []kindValue {
	out := make([]kindValue, 0, len(tokens))
	for _, tok := range tokens {
		out = append(out, kindValue{Kind: tok.Kind, Value: tok.Value})
	}
	return out
}

func codes(es []exc.Exception) []string {
	out := make([]string, 0, len(es))
	for _, e := range es {
		out = append(out, e.Code())
	}
	return out
}

func TestLexer(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected []kindValue
		errors   []string
	}{
		{
			name:     "empty file",
			input:    "",
			expected: []kindValue{},
		},
		{
			name:     "whitespace only",
			input:    " \t\r\n\n  ",
			expected: []kindValue{},
		},
		{
			name:  "comment",
			input: "# a comment\n",
			expected: []kindValue{
				{isa.TokenKindComment, "# a comment"},
			},
		},
		{
			name:  "space declaration",
			input: ":space reg addr=32 word=64 type=register",
			expected: []kindValue{
				{isa.TokenKindDirective, ":space"},
				{isa.TokenKindIdentifier, "reg"},
				{isa.TokenKindIdentifier, "addr"},
				{isa.TokenKindEquals, "="},
				{isa.TokenKindNumericLiteral, "32"},
				{isa.TokenKindIdentifier, "word"},
				{isa.TokenKindEquals, "="},
				{isa.TokenKindNumericLiteral, "64"},
				{isa.TokenKindIdentifier, "type"},
				{isa.TokenKindEquals, "="},
				{isa.TokenKindIdentifier, "register"},
			},
		},
		{
			name:  "space directive",
			input: ":reg SPR offset=0x100 name=\"spr%d\"",
			expected: []kindValue{
				{isa.TokenKindSpaceDirective, ":reg"},
				{isa.TokenKindIdentifier, "SPR"},
				{isa.TokenKindIdentifier, "offset"},
				{isa.TokenKindEquals, "="},
				{isa.TokenKindNumericLiteral, "0x100"},
				{isa.TokenKindIdentifier, "name"},
				{isa.TokenKindEquals, "="},
				{isa.TokenKindQuotedString, "spr%d"},
			},
		},
		{
			name:  "bit-fields",
			input: "@(0-5|?1) @(1|(2))",
			expected: []kindValue{
				{isa.TokenKindBitField, "@(0-5|?1)"},
				{isa.TokenKindBitField, "@(1|(2))"},
			},
		},
		{
			name:  "unterminated bit-field",
			input: "@(0-3\nx",
			expected: []kindValue{
				{isa.TokenKindBitField, "@(0-3"},
				{isa.TokenKindIdentifier, "x"},
			},
			errors: []string{exc.CodeInvalidBitfieldSyntax},
		},
		{
			name:  "at without paren",
			input: "@0",
			expected: []kindValue{
				{isa.TokenKindUnknown, "@"},
				{isa.TokenKindNumericLiteral, "0"},
			},
			errors: []string{exc.CodeInvalidBitfieldSyntax},
		},
		{
			name:  "escaped string",
			input: `descr="a \"b\""`,
			expected: []kindValue{
				{isa.TokenKindIdentifier, "descr"},
				{isa.TokenKindEquals, "="},
				{isa.TokenKindQuotedString, `a "b"`},
			},
		},
		{
			name:  "unterminated string",
			input: "\"abc\nx",
			expected: []kindValue{
				{isa.TokenKindQuotedString, "abc"},
				{isa.TokenKindIdentifier, "x"},
			},
			errors: []string{exc.CodeInvalidSyntax},
		},
		{
			name:  "indexed field tags",
			input: "SPR[3-5] x[2] a[b]",
			expected: []kindValue{
				{isa.TokenKindIndexedFieldTag, "SPR[3-5]"},
				{isa.TokenKindIndexedFieldTag, "x[2]"},
				{isa.TokenKindIdentifier, "a"},
				{isa.TokenKindBracketOpen, "["},
				{isa.TokenKindIdentifier, "b"},
				{isa.TokenKindBracketClose, "]"},
			},
		},
		{
			name:  "index separator",
			input: "[0-3] a - b",
			expected: []kindValue{
				{isa.TokenKindBracketOpen, "["},
				{isa.TokenKindNumericLiteral, "0"},
				{isa.TokenKindIndexSeparator, "-"},
				{isa.TokenKindNumericLiteral, "3"},
				{isa.TokenKindBracketClose, "]"},
				{isa.TokenKindIdentifier, "a"},
				{isa.TokenKindOperator, "-"},
				{isa.TokenKindIdentifier, "b"},
			},
		},
		{
			name:  "context reference",
			input: "$reg;spr22;lsb",
			expected: []kindValue{
				{isa.TokenKindSpaceIndirection, "$reg"},
				{isa.TokenKindContextOperator, ";"},
				{isa.TokenKindIdentifier, "spr22"},
				{isa.TokenKindContextOperator, ";"},
				{isa.TokenKindIdentifier, "lsb"},
			},
		},
		{
			name:  "legacy arrow",
			input: "$ram->SPR",
			expected: []kindValue{
				{isa.TokenKindSpaceIndirection, "$ram"},
				{isa.TokenKindLegacyArrow, "->"},
				{isa.TokenKindIdentifier, "SPR"},
			},
		},
		{
			name:  "dotted reference is one identifier",
			input: "redirect=spr22.lsb",
			expected: []kindValue{
				{isa.TokenKindIdentifier, "redirect"},
				{isa.TokenKindEquals, "="},
				{isa.TokenKindIdentifier, "spr22.lsb"},
			},
		},
		{
			name:  "numeric literals",
			input: "0b1010 0o17 0XfF 42 12ab 0x",
			expected: []kindValue{
				{isa.TokenKindNumericLiteral, "0b1010"},
				{isa.TokenKindNumericLiteral, "0o17"},
				{isa.TokenKindNumericLiteral, "0XfF"},
				{isa.TokenKindNumericLiteral, "42"},
				{isa.TokenKindInvalidLiteral, "12ab"},
				{isa.TokenKindInvalidLiteral, "0x"},
			},
			errors: []string{exc.CodeInvalidNumericLiteral, exc.CodeInvalidNumericLiteral},
		},
		{
			name:  "instruction",
			input: ":insn add (rd,ra,rb) mask={opc=31}",
			expected: []kindValue{
				{isa.TokenKindSpaceDirective, ":insn"},
				{isa.TokenKindIdentifier, "add"},
				{isa.TokenKindParenOpen, "("},
				{isa.TokenKindIdentifier, "rd"},
				{isa.TokenKindComma, ","},
				{isa.TokenKindIdentifier, "ra"},
				{isa.TokenKindComma, ","},
				{isa.TokenKindIdentifier, "rb"},
				{isa.TokenKindParenClose, ")"},
				{isa.TokenKindIdentifier, "mask"},
				{isa.TokenKindEquals, "="},
				{isa.TokenKindBraceOpen, "{"},
				{isa.TokenKindIdentifier, "opc"},
				{isa.TokenKindEquals, "="},
				{isa.TokenKindNumericLiteral, "31"},
				{isa.TokenKindBraceClose, "}"},
			},
		},
		{
			name:  "unknown characters",
			input: "a ` $ :",
			expected: []kindValue{
				{isa.TokenKindIdentifier, "a"},
				{isa.TokenKindUnknown, "`"},
				{isa.TokenKindUnknown, "$"},
				{isa.TokenKindUnknown, ":"},
			},
			errors: []string{exc.CodeInvalidIdentifier, exc.CodeInvalidIdentifier, exc.CodeInvalidSyntax},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			tokens, reported := lexString(t, testCase.input)
			if diff := cmp.Diff(testCase.expected, kindValues(tokens)); diff != "" {
				t.Fatalf("tokens mismatch (-want +got):\n%s", diff)
			}
			expectedErrors := testCase.errors
			if expectedErrors == nil {
				expectedErrors = []string{}
			}
			require.Equal(t, expectedErrors, codes(reported))
		})
	}
}

func TestLexerPositions(t *testing.T) {
	t.Parallel()

	tokens, reported := lexString(t, "# c\n:reg SPR offset=0x100")
	require.Empty(t, reported)
	expected := []*isa.Token{
		newToken(1, 0, 0, 1, 3, 3, isa.TokenKindComment, "# c"),
		newToken(2, 0, 4, 2, 4, 8, isa.TokenKindSpaceDirective, ":reg"),
		newToken(2, 5, 9, 2, 8, 12, isa.TokenKindIdentifier, "SPR"),
		newToken(2, 9, 13, 2, 15, 19, isa.TokenKindIdentifier, "offset"),
		newToken(2, 15, 19, 2, 16, 20, isa.TokenKindEquals, "="),
		newToken(2, 16, 20, 2, 21, 25, isa.TokenKindNumericLiteral, "0x100"),
	}
	for _, tok := range expected[1:] {
		tok.SpaceTag = "reg"
	}
	if diff := cmp.Diff(expected, tokens); diff != "" {
		t.Fatalf("tokens mismatch (-want +got):\n%s", diff)
	}
}

func TestLexerOrdering(t *testing.T) {
	t.Parallel()

	tokens, _ := lexString(t, sample)
	for x := 1; x < len(tokens); x = x + 1 {
		prev, cur := tokens[x-1], tokens[x]
		require.True(t, prev.Span.Before(cur.Span), "%s before %s", prev, cur)
		require.LessOrEqual(t, prev.Span.End.Offset, cur.Span.Start.Offset)
	}
}

func TestLexerSpaceTag(t *testing.T) {
	t.Parallel()

	tokens, _ := lexString(t, ":reg SPR\n:space ram\n:ram RAM")
	tags := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		tags = append(tags, tok.SpaceTag)
	}
	require.Equal(t, []string{"reg", "reg", "", "", "ram", "ram"}, tags)
}

func TestLexerModifiers(t *testing.T) {
	t.Parallel()

	tokens, _ := lexString(t, ":reg SPR subfields={ lsb @(0) } semantics={ rd = ra; } x->y")
	modifiers := make(map[string]isa.Modifier)
	for _, tok := range tokens {
		modifiers[tok.Value] = modifiers[tok.Value] | tok.Modifiers
	}
	require.False(t, modifiers["subfields"].Has(isa.ModifierInSubfields))
	require.True(t, modifiers["lsb"].Has(isa.ModifierInSubfields))
	require.True(t, modifiers["@(0)"].Has(isa.ModifierInSubfields))
	require.True(t, modifiers["rd"].Has(isa.ModifierOpaque))
	require.True(t, modifiers[";"].Has(isa.ModifierOpaque))
	require.False(t, modifiers["rd"].Has(isa.ModifierInSubfields))
	require.False(t, modifiers["semantics"].Has(isa.ModifierOpaque))
	require.False(t, modifiers["x"].Has(isa.ModifierOpaque))
	require.True(t, modifiers["->"].Has(isa.ModifierDeprecated))
}

func TestLexerDeterministic(t *testing.T) {
	t.Parallel()

	first, firstErrs := lexString(t, sample)
	second, secondErrs := lexString(t, sample)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("tokens differ between runs (-first +second):\n%s", diff)
	}
	require.Equal(t, codes(firstErrs), codes(secondErrs))
}

func TestLexerFile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	lexer := NewLexerISA(exc.NewReporter(nil), nil)
	f, err := lexer.Lex(ctx, fs.NewFileString("/test.isa", sample, isa.FileKindISA))
	require.NoError(t, err)
	stream, err := f.Tokens(ctx)
	require.NoError(t, err)
	fromFile, err := iter.Collect(ctx, stream)
	require.NoError(t, err)

	fromString, _ := lexString(t, sample)
	if diff := cmp.Diff(fromString, fromFile); diff != "" {
		t.Fatalf("file and string streams differ (-string +file):\n%s", diff)
	}
}

var tokenKindEscape isa.TokenKind

// BenchmarkLexer is included mostly for future analysis of the lexer
// performance such as minimizing allocations.
func BenchmarkLexer(b *testing.B) {
	ctx := context.Background()
	lexer := NewLexerISA(exc.NewReporter(nil), nil)
	var tok optional.Optional[*isa.Token]
	var kind isa.TokenKind
	b.ResetTimer()
	for x := 0; x < b.N; x = x + 1 {
		stream := lexer.LexString(ctx, "/test.isa", sample)
		for tok = stream.Next(ctx); tok.IsPresent(); tok = stream.Next(ctx) {
			kind = tok.Value().Kind
		}
		if err := stream.Close(ctx); err != nil {
			b.Fatal(err)
		}
	}
	tokenKindEscape = kind
}

var sample = `# sample machine
:param ENDIANNESS=big
:space reg addr=32 word=64 type=register
:space insn addr=32 word=32 type=ro
:space ram addr=32 word=8 type=rw

:reg SPR offset=0x100 size=64 count=1024 name="spr%d" reset=0 subfields={
    msb @(0-31) op=data descr="upper half"
    lsb @(32-63) op=data|signed
}
:reg LR redirect=spr8
:reg CTR redirect=spr9;lsb

:insn size=32 subfields={
    opc @(0-5) op=func
    rd @(6-10) op=target
    ra @(11-15) op=source
    rb @(16-20) op=source
    xo @(21-30) op=func
    AA @(30) op=imm
    overlap @(6-10|16-20) op=source
}
:insn add (rd,ra,rb) mask={opc=0b011111 xo=266} descr="Add" semantics={ rd = ra + rb; }
:insn b (AA) mask={opc=18}

:bus sysbus addr=32 descr="system bus" ranges={
    $ram 0x00000000 size=0x10000 prio=1
    $reg 0x10000000 size=0x1000
}
`
