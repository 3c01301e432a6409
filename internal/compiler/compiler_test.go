// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

package compiler

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"gopkg.isalang.org/isac/internal/compiler/frontend"
	"gopkg.isalang.org/isac/internal/config"
	"gopkg.isalang.org/isac/internal/exc"
	"gopkg.isalang.org/isac/internal/fs"
	"gopkg.isalang.org/isac/internal/isa"
	"gopkg.isalang.org/isac/internal/iter"
)

const testURI = "/test.isa"

// preamble declares two spaces, a register array with subfields and an
// instruction word layout. It analyzes without diagnostics.
const preamble = `:space reg addr=32 word=64 type=register
:space insn addr=32 word=32 type=ro
:reg SPR offset=0x100 size=64 count=1024 name="spr%d" subfields={
    msb @(0-31) op=data
    lsb @(32-63) op=data|signed
}
:insn size=32 subfields={
    opc @(0-5) op=func
    rd @(6-10) op=target
    ra @(11-15) op=source
    rb @(16-20) op=source
    AA @(30) op=imm
    overlap @(6-10|16-20) op=source
}
`

func newTestAnalyzer(t testing.TB, files map[string]string, opts ...Option) isa.Analyzer {
	t.Helper()
	opts = append([]Option{OptionWithFS(fs.NewFileSystemMemory(files))}, opts...)
	a, err := New(opts...)
	require.NoError(t, err)
	return a
}

func analyze(t testing.TB, text string) *isa.AnalyzeResponse {
	t.Helper()
	a := newTestAnalyzer(t, nil)
	resp, err := a.Analyze(context.Background(), &isa.AnalyzeRequest{URI: testURI, Text: text})
	require.NoError(t, err)
	return resp
}

func diagnosticCodes(resp *isa.AnalyzeResponse) []string {
	codes := make([]string, 0, len(resp.Diagnostics))
	for _, d := range resp.Diagnostics {
		codes = append(codes, d.Code)
	}
	return codes
}

// kindAt returns the kind name of the classified token starting at the
// given position.
func kindAt(resp *isa.AnalyzeResponse, line int32, col int32) string {
	for _, tok := range resp.Tokens {
		if tok.Range.Start.Line == line && tok.Range.Start.Column == col {
			return tok.KindName
		}
	}
	return ""
}

// parseDocument runs the front end up to the declaration nodes.
func parseDocument(t testing.TB, text string) (*isa.Document, []*isa.Token, exc.Reporter) {
	t.Helper()
	ctx := context.Background()
	reporter := exc.NewReporter(nil)
	tokens, err := iter.Collect(ctx, frontend.NewLexerISA(reporter, nil).LexString(ctx, testURI, text))
	require.NoError(t, err)
	doc, err := frontend.NewParserISA(reporter, nil).Parse(ctx, testURI, text, iter.NewSlice(tokens))
	require.NoError(t, err)
	return doc, tokens, reporter
}

func TestAnalyzePreamble(t *testing.T) {
	t.Parallel()
	resp := analyze(t, preamble)
	require.Empty(t, resp.Diagnostics, "%v", resp.Diagnostics)
	require.Equal(t, testURI, resp.URI)
	require.False(t, resp.HasErrors())
	require.Equal(t, map[string]string{"reg": DefaultPalette[0], "insn": DefaultPalette[1]}, resp.Colors)
}

func TestAnalyzeUsage(t *testing.T) {
	t.Parallel()
	resp := analyze(t, ":space a\n:space b\n:a X\n:a Y subfields={ lo @(0-3) }\n")
	require.Empty(t, resp.Diagnostics, "%v", resp.Diagnostics)
	require.Equal(t, map[string]int{"a": 3, "b": 0}, resp.Usage)
}

func TestAnalyzeReferences(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name     string
		text     string
		codes    []string
		contains string
	}{
		{
			name:  "array element with subfield",
			text:  ":reg CTR redirect=spr22;lsb\n",
			codes: []string{},
		},
		{
			name:     "array element out of range",
			text:     ":reg LR redirect=spr1024\n",
			codes:    []string{exc.CodeInvalidIndexRange},
			contains: "'spr1024' is out of range for 'SPR' (valid range spr0..spr1023)",
		},
		{
			name:     "dotted reference",
			text:     ":reg CTR redirect=spr22.lsb\n",
			codes:    []string{exc.CodeInvalidSyntax},
			contains: "use 'spr22;lsb'",
		},
		{
			name:  "overlapping subfield operands",
			text:  ":insn add (overlap,AA) mask={opc=31}\n",
			codes: []string{},
		},
		{
			name:     "undefined subfield",
			text:     ":reg CTR redirect=spr22;mid\n",
			codes:    []string{exc.CodeUndefinedSubfield},
			contains: "'mid'",
		},
		{
			name:     "undefined redirect",
			text:     ":reg CTR redirect=ghost\n",
			codes:    []string{exc.CodeUndefinedRedirect},
			contains: "'ghost'",
		},
		{
			name:  "space indirection",
			text:  ":reg CTR redirect=$reg;spr9;msb\n",
			codes: []string{},
		},
		{
			name:     "undefined space indirection",
			text:     ":reg CTR redirect=$mem;spr9\n",
			codes:    []string{exc.CodeUndefinedSpace},
			contains: "'$mem'",
		},
		{
			name:     "legacy arrow outside bus",
			text:     ":reg CTR redirect=spr9->lsb\n",
			codes:    []string{exc.CodeInvalidSyntax},
			contains: "'spr9;lsb'",
		},
		{
			name:     "undefined operand",
			text:     ":insn add (rd,foo)\n",
			codes:    []string{exc.CodeUndefinedFieldReference},
			contains: "'foo'",
		},
		{
			name:  "indexed array operand",
			text:  ":insn GPR size=32 count=32 name=\"r%d\"\n:insn mtspr (GPR[0-7])\n",
			codes: []string{},
		},
		{
			name:     "indexed array operand out of range",
			text:     ":insn GPR size=32 count=32 name=\"r%d\"\n:insn mtspr (GPR[0-32])\n",
			codes:    []string{exc.CodeInvalidIndexRange},
			contains: "valid range 0..31",
		},
		{
			name:     "bit-field operand out of range",
			text:     ":insn x (@(35-40))\n",
			codes:    []string{exc.CodeBitIndexOutOfRange, exc.CodeInvalidBitfieldPart},
			contains: "35",
		},
		{
			name:  "bit-field operand with sign extension",
			text:  ":insn x (@(16-31|?1))\n",
			codes: []string{},
		},
		{
			name:  "bad sign extension operand",
			text:  ":insn x (@(?2))\n",
			codes: []string{exc.CodeInvalidBitfieldPart},
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			resp := analyze(t, preamble+testCase.text)
			require.Equal(t, testCase.codes, diagnosticCodes(resp), "%v", resp.Diagnostics)
			if testCase.contains != "" {
				require.Contains(t, resp.Diagnostics[0].Message, testCase.contains)
			}
		})
	}
}

func TestAnalyzeDiagnosticSpan(t *testing.T) {
	t.Parallel()
	resp := analyze(t, preamble+":reg LR redirect=spr1024\n")
	require.Len(t, resp.Diagnostics, 1)
	d := resp.Diagnostics[0]
	require.Equal(t, testURI, d.URI)
	require.Equal(t, isa.SeverityError, d.Severity)
	require.Equal(t, int32(15), d.Range.Start.Line)
	require.Equal(t, int32(17), d.Range.Start.Column)
	require.Equal(t, int32(24), d.Range.End.Column)
}

func TestAnalyzeIdempotent(t *testing.T) {
	t.Parallel()
	text := preamble + ":reg LR redirect=spr1024\n:reg PC size=8 reset=0x1FF bogus=1\n:insn add (rd,ra,rb) mask={opc=0b1111111}\n"
	a := newTestAnalyzer(t, nil)
	ctx := context.Background()
	first, err := a.Analyze(ctx, &isa.AnalyzeRequest{URI: testURI, Text: text})
	require.NoError(t, err)
	second, err := a.Analyze(ctx, &isa.AnalyzeRequest{URI: testURI, Text: text})
	require.NoError(t, err)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated analysis differs (-first +second):\n%s", diff)
	}
	require.NotEmpty(t, first.Diagnostics)
}

func TestAnalyzeOrdering(t *testing.T) {
	t.Parallel()
	resp := analyze(t, preamble+":reg PC size=8 reset=0x1FF bogus=1\n:reg LR redirect=ghost\n")
	require.Equal(t, []string{exc.CodeExcessBitsWarning, exc.CodeInvalidFieldOption, exc.CodeUndefinedRedirect}, diagnosticCodes(resp))
	for x := 1; x < len(resp.Diagnostics); x = x + 1 {
		require.False(t, resp.Diagnostics[x].Range.Before(resp.Diagnostics[x-1].Range))
	}
	require.True(t, resp.HasErrors())
}

func TestAnalyzeTokens(t *testing.T) {
	t.Parallel()
	resp := analyze(t, preamble+":reg LR redirect=spr8\n:insn add (rd,ra,rb) mask={opc=31} semantics={ rd = ra + rb; }\n")
	testCases := []struct {
		line int32
		col  int32
		kind string
	}{
		{line: 1, col: 0, kind: "directive"},
		{line: 1, col: 7, kind: "space-tag:reg"},
		{line: 1, col: 11, kind: "space-option"},
		{line: 3, col: 0, kind: "space-directive:reg"},
		{line: 3, col: 5, kind: "field-tag"},
		{line: 3, col: 9, kind: "field-option"},
		{line: 4, col: 4, kind: "subfield-tag"},
		{line: 4, col: 8, kind: "bit-field"},
		{line: 4, col: 16, kind: "subfield-option"},
		{line: 15, col: 5, kind: "field-tag"},
		{line: 15, col: 17, kind: "alias-reference"},
		{line: 16, col: 6, kind: "instruction-tag"},
		{line: 16, col: 11, kind: "field-reference"},
		{line: 16, col: 21, kind: "instruction-option"},
		{line: 16, col: 27, kind: "field-reference"},
		{line: 16, col: 35, kind: "instruction-option"},
		{line: 16, col: 47, kind: "identifier"},
	}
	for _, testCase := range testCases {
		require.Equal(t, testCase.kind, kindAt(resp, testCase.line, testCase.col), "%d:%d", testCase.line, testCase.col)
	}
	for _, tok := range resp.Tokens {
		if tok.Range.Start.Line == 3 && tok.Range.Start.Column == 5 {
			require.Equal(t, "declaration", tok.Modifiers)
			require.Equal(t, "reg", tok.SpaceTag)
		}
		if tok.Range.Start.Line == 16 && tok.Range.Start.Column >= 45 {
			require.Contains(t, tok.Modifiers, "opaque")
		}
	}
}

func TestFindSymbolAtPosition(t *testing.T) {
	t.Parallel()
	a := newTestAnalyzer(t, nil)
	_, err := a.Analyze(context.Background(), &isa.AnalyzeRequest{URI: testURI, Text: preamble + ":reg LR redirect=spr8;lsb\n"})
	require.NoError(t, err)

	testCases := []struct {
		name   string
		line   int32
		col    int32
		symbol string
	}{
		{name: "space declaration", line: 1, col: 8, symbol: "space reg"},
		{name: "field declaration", line: 3, col: 6, symbol: "field reg;SPR"},
		{name: "subfield declaration", line: 9, col: 4, symbol: "subfield insn;rd"},
		{name: "array element reference", line: 15, col: 18, symbol: "field reg;spr8"},
		{name: "subfield reference", line: 15, col: 22, symbol: "subfield reg;SPR;lsb"},
		{name: "space directive", line: 15, col: 1, symbol: "space reg"},
	}
	for _, testCase := range testCases {
		sym := a.FindSymbolAtPosition(testURI, testCase.line, testCase.col)
		require.True(t, sym.IsPresent(), testCase.name)
		require.Equal(t, testCase.symbol, sym.Value().String(), testCase.name)
	}
	require.False(t, a.FindSymbolAtPosition(testURI, 15, 10).IsPresent())
	require.False(t, a.FindSymbolAtPosition("/other.isa", 1, 8).IsPresent())
}

func TestSymbolsInScope(t *testing.T) {
	t.Parallel()
	a := newTestAnalyzer(t, nil)
	_, err := a.Analyze(context.Background(), &isa.AnalyzeRequest{URI: testURI, Text: preamble + ":insn add (rd,ra,rb)\n"})
	require.NoError(t, err)
	var names []string
	for _, sym := range a.SymbolsInScope(testURI, "insn") {
		names = append(names, sym.Name)
	}
	require.Equal(t, []string{"AA", "add", "opc", "overlap", "ra", "rb", "rd"}, names)
	require.Empty(t, a.SymbolsInScope(testURI, "ram"))
	require.Nil(t, a.SymbolsInScope("/other.isa", "insn"))
}

func TestAnalyzeReplacesCache(t *testing.T) {
	t.Parallel()
	a := newTestAnalyzer(t, nil)
	ctx := context.Background()
	_, err := a.Analyze(ctx, &isa.AnalyzeRequest{URI: testURI, Text: preamble})
	require.NoError(t, err)
	require.True(t, a.FindSymbolAtPosition(testURI, 3, 5).IsPresent())
	_, err = a.Analyze(ctx, &isa.AnalyzeRequest{URI: testURI, Text: ":space reg\n"})
	require.NoError(t, err)
	require.False(t, a.FindSymbolAtPosition(testURI, 3, 5).IsPresent())
	require.Empty(t, a.SymbolsInScope(testURI, "insn"))
}

func TestDependencies(t *testing.T) {
	t.Parallel()
	files := map[string]string{
		"/cpu/common.isa": ":space ram addr=32 word=8\n",
		"/lib/dev.isaext": ":space io addr=16 word=8\n",
	}
	a := newTestAnalyzer(t, files)
	resp, err := a.Analyze(context.Background(), &isa.AnalyzeRequest{
		URI:  "/cpu/core.isa",
		Text: ":include \"common.isa\"\n:attach \"lib/dev.isaext\"\n:attach \"missing.isaext\"\n",
	})
	require.NoError(t, err)
	expected := []isa.Dependency{
		{Kind: isa.DependencyInclude, Path: "common.isa", Resolved: "/cpu/common.isa"},
		{Kind: isa.DependencyAttach, Path: "lib/dev.isaext", Resolved: "/lib/dev.isaext"},
		{Kind: isa.DependencyAttach, Path: "missing.isaext"},
	}
	require.Len(t, resp.Dependencies, len(expected))
	for offset, dep := range resp.Dependencies {
		dep.Span = isa.Span{}
		require.Equal(t, expected[offset], dep)
	}
	require.Equal(t, []string{exc.CodeUnresolvedDependency}, diagnosticCodes(resp))
	require.Equal(t, int32(3), resp.Diagnostics[0].Range.Start.Line)
	require.Contains(t, resp.Diagnostics[0].Message, "'missing.isaext'")
}

func TestAnalyzeFiles(t *testing.T) {
	t.Parallel()
	files := map[string]string{
		"/cpu/core.isa":   ":include \"common.isa\"\n:space reg addr=32 word=32\n",
		"/cpu/extra.isa":  ":include \"common.isa\"\n:space io\n",
		"/cpu/common.isa": ":include \"core.isa\"\n:space ram addr=32 word=8\n",
		"/cpu/notes.txt":  "not a description",
	}
	ctx := context.Background()

	a := newTestAnalyzer(t, files, OptionWithMaxConcurrency(2))
	out, err := a.AnalyzeFiles(ctx, &isa.AnalyzeFilesRequest{Files: []string{"cpu/core.isa"}})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	require.Equal(t, "/cpu/core.isa", out.Results[0].URI)

	out, err = a.AnalyzeFiles(ctx, &isa.AnalyzeFilesRequest{Files: []string{"/cpu/core.isa"}, FollowDependencies: true})
	require.NoError(t, err)
	var uris []string
	for _, r := range out.Results {
		uris = append(uris, r.URI)
	}
	require.Equal(t, []string{"/cpu/core.isa", "/cpu/common.isa"}, uris)

	out, err = a.AnalyzeFiles(ctx, &isa.AnalyzeFilesRequest{Files: []string{"/cpu"}, FollowDependencies: true})
	require.NoError(t, err)
	require.Len(t, out.Results, 3)

	out, err = a.AnalyzeFiles(ctx, &isa.AnalyzeFilesRequest{Files: []string{"/cpu/core.isa", "/missing.isa"}})
	require.Error(t, err)
	var me MultiException
	require.True(t, errors.As(err, &me))
	require.Len(t, me, 1)
	require.Equal(t, exc.CodeFileNotFound, me[0].Code())
	require.Len(t, out.Results, 1)
}

func TestAnalyzeCanceled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestAnalyzer(t, nil).Analyze(ctx, &isa.AnalyzeRequest{URI: testURI, Text: preamble})
	require.ErrorIs(t, err, context.Canceled)
}

func TestOptions(t *testing.T) {
	t.Parallel()

	_, err := New(OptionWithFS(fs.NewFileSystemMemory(nil)), OptionWithDefaultWordWidth(65))
	require.Error(t, err)
	_, err = New(OptionWithFS(fs.NewFileSystemMemory(nil)), OptionWithHistoryLimit(0))
	require.Error(t, err)

	cfg := config.Default()
	cfg.Analysis.DefaultWordWidth = 65
	_, err = New(OptionWithFS(fs.NewFileSystemMemory(nil)), OptionWithConfig(cfg))
	require.Error(t, err)

	cfg = config.Default()
	cfg.Colors.Palette = []string{"#000001", "#000002"}
	a := newTestAnalyzer(t, nil, OptionWithConfig(cfg))
	resp, err := a.Analyze(context.Background(), &isa.AnalyzeRequest{URI: testURI, Text: ":space a\n:space b\n:space c\n"})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"a": "#000001", "b": "#000002", "c": "#000001"}, resp.Colors)

	single := newTestAnalyzer(t, nil, OptionWithPalette([]string{"#abcdef"}))
	resp, err = single.Analyze(context.Background(), &isa.AnalyzeRequest{URI: testURI, Text: ":space a\n:space b\n"})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"a": "#abcdef", "b": "#abcdef"}, resp.Colors)

	// Subfields of fields in a space without a word width use the default.
	narrow := newTestAnalyzer(t, nil, OptionWithDefaultWordWidth(16))
	resp, err = narrow.Analyze(context.Background(), &isa.AnalyzeRequest{URI: testURI, Text: ":space s\n:s F subfields={ hi @(8-20) }\n"})
	require.NoError(t, err)
	require.Equal(t, []string{exc.CodeBitIndexOutOfRange, exc.CodeInvalidBitfieldPart}, diagnosticCodes(resp))
}

func TestSharedReporter(t *testing.T) {
	t.Parallel()
	shared := exc.NewReporter(nil)
	a := newTestAnalyzer(t, nil, OptionWithExcReporter(shared))
	ctx := context.Background()
	_, err := a.Analyze(ctx, &isa.AnalyzeRequest{URI: "/a.isa", Text: ":mem X\n"})
	require.NoError(t, err)
	_, err = a.Analyze(ctx, &isa.AnalyzeRequest{URI: "/b.isa", Text: ":space s type=flash\n"})
	require.NoError(t, err)
	reported := shared.Reported()
	require.Len(t, reported, 2)
	require.Equal(t, exc.CodeUndefinedSpace, reported[0].Code())
	require.Equal(t, "/a.isa", reported[0].Location().URI)
	require.Equal(t, exc.CodeInvalidParamFormat, reported[1].Code())
}

func BenchmarkAnalyze(b *testing.B) {
	a := newTestAnalyzer(b, nil)
	ctx := context.Background()
	req := &isa.AnalyzeRequest{URI: testURI, Text: preamble + ":reg LR redirect=spr8\n:insn add (rd,ra,rb) mask={opc=31}\n"}
	b.ResetTimer()
	for x := 0; x < b.N; x = x + 1 {
		if _, err := a.Analyze(ctx, req); err != nil {
			b.Fatal(err)
		}
	}
}
