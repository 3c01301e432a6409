// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

package compiler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"gopkg.isalang.org/isac/internal/compiler/frontend"
	"gopkg.isalang.org/isac/internal/config"
	"gopkg.isalang.org/isac/internal/exc"
	"gopkg.isalang.org/isac/internal/isa"
	"gopkg.isalang.org/isac/internal/iter"
	"gopkg.isalang.org/isac/internal/optional"
	"gopkg.isalang.org/isac/internal/target"
)

type Option func(c *compiler) error

func OptionWithFS(fs isa.FileSystem) Option {
	return func(c *compiler) error {
		c.FS = fs
		return nil
	}
}

func OptionWithLookupEnv(lookupEnv func(string) (string, bool)) Option {
	return func(c *compiler) error {
		c.LookupENV = lookupEnv
		return nil
	}
}

// OptionWithExcReporter installs a reporter that receives every exception of
// every analysis in addition to the per document results.
func OptionWithExcReporter(reporter exc.Reporter) Option {
	return func(c *compiler) error {
		c.Reporter = reporter
		return nil
	}
}

func OptionWithLogger(logger *slog.Logger) Option {
	return func(c *compiler) error {
		c.Logger = logger
		return nil
	}
}

// OptionWithConfig applies the analysis and color sections of a loaded
// configuration. Options given later override individual values.
func OptionWithConfig(cfg *config.Config) Option {
	return func(c *compiler) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		c.DefaultWordWidth = cfg.Analysis.DefaultWordWidth
		c.HistoryLimit = cfg.Analysis.HistoryLimit
		c.MaxConcurrency = cfg.Analysis.MaxConcurrency
		c.Palette = cfg.Colors.Palette
		return nil
	}
}

func OptionWithDefaultWordWidth(width int) Option {
	return func(c *compiler) error {
		if width < 1 || width > 64 {
			return fmt.Errorf("default word width must be in 1..64, found %d", width)
		}
		c.DefaultWordWidth = width
		return nil
	}
}

func OptionWithHistoryLimit(limit int) Option {
	return func(c *compiler) error {
		if limit < 1 {
			return fmt.Errorf("history limit must be positive, found %d", limit)
		}
		c.HistoryLimit = limit
		return nil
	}
}

func OptionWithPalette(palette []string) Option {
	return func(c *compiler) error {
		c.Palette = palette
		return nil
	}
}

func OptionWithMaxConcurrency(max int) Option {
	return func(c *compiler) error {
		c.MaxConcurrency = max
		return nil
	}
}

func New(opts ...Option) (isa.Analyzer, error) {
	c := &compiler{}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.LookupENV == nil {
		c.LookupENV = os.LookupEnv
	}
	if c.FS == nil {
		dfs, err := NewDefaultFS(c.LookupENV, nil)
		if err != nil {
			return nil, err
		}
		c.FS = dfs
	}
	if c.MaxConcurrency == 0 {
		max := runtime.GOMAXPROCS(-1)
		cpus := runtime.NumCPU()
		if max > cpus {
			max = cpus
		}
		c.MaxConcurrency = max
	}
	if c.DefaultWordWidth == 0 {
		c.DefaultWordWidth = config.DefaultWordWidth
	}
	if c.HistoryLimit == 0 {
		c.HistoryLimit = frontend.DefaultHistoryLimit
	}
	if len(c.Palette) == 0 {
		c.Palette = DefaultPalette
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c.documents = make(map[string]*document)
	return c, nil
}

type compiler struct {
	LookupENV        func(string) (string, bool)
	FS               isa.FileSystem
	MaxConcurrency   int
	Reporter         exc.Reporter
	Logger           *slog.Logger
	DefaultWordWidth int
	HistoryLimit     int
	Palette          []string

	lock      sync.RWMutex
	documents map[string]*document
}

// document is the cached result of the most recent analysis of one URI.
type document struct {
	response *isa.AnalyzeResponse
	table    *symbolTable
	linker   *linker
	// declarations maps declaring tag tokens to their symbols.
	declarations map[*isa.Token]*isa.Symbol
	tokens       []*isa.Token
}

// Analyze runs the front end over one document. User errors never fail the
// call; they are returned as diagnostics. The result replaces any previous
// entry for the same URI.
func (self *compiler) Analyze(ctx context.Context, req *isa.AnalyzeRequest) (*isa.AnalyzeResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := self.Logger.With(slog.String("component", "analyzer"), slog.String("uri", req.URI))
	reporter := exc.NewReporter(nil)

	lexer := frontend.NewLexerISA(reporter, self.Logger)
	tokens, err := iter.Collect(ctx, lexer.LexString(ctx, req.URI, req.Text))
	if err != nil {
		return nil, err
	}
	logger.Debug("lexed", slog.Int("tokens", len(tokens)))

	parser := frontend.NewParserISA(reporter, self.Logger)
	doc, err := parser.Parse(ctx, req.URI, req.Text, iter.NewSlice(tokens))
	if err != nil {
		return nil, err
	}
	logger.Debug("parsed", slog.Int("nodes", len(doc.Nodes)))

	table := newSymbolTable(req.URI, self.Palette)
	table.collect(doc, reporter)
	logger.Debug("collected", slog.Int("symbols", len(table.all)))

	l := newLinker(req.URI, table, reporter, self.DefaultWordWidth)
	check(doc, l, reporter)

	classified := newClassifier(doc, l, reporter, self.HistoryLimit).classify(tokens)

	deps := self.dependencies(ctx, doc, reporter)

	caught := reporter.Reported()
	if self.Reporter != nil {
		for _, e := range caught {
			_ = self.Reporter.Report(e)
		}
	}
	resp := &isa.AnalyzeResponse{
		URI:          req.URI,
		Diagnostics:  exc.Diagnostics(caught),
		Tokens:       classifiedTokens(classified),
		Dependencies: deps,
		Colors:       table.spaceColors(),
	}
	resp.Usage = make(map[string]int, len(resp.Colors))
	for tag := range resp.Colors {
		resp.Usage[tag] = table.spaceUsageCount(tag)
	}
	logger.Debug("analyzed", slog.Int("diagnostics", len(resp.Diagnostics)), slog.Int("dependencies", len(deps)))

	entry := &document{
		response:     resp,
		table:        table,
		linker:       l,
		declarations: make(map[*isa.Token]*isa.Symbol),
		tokens:       tokens,
	}
	for _, sym := range table.all {
		if tag := declaringToken(sym.Node); tag != nil {
			entry.declarations[tag] = sym
		}
	}
	self.lock.Lock()
	self.documents[req.URI] = entry
	self.lock.Unlock()
	return resp, nil
}

// dependencies extracts :include and :attach paths and looks each one up in
// the file system.
// reports: unresolved dependencies
func (self *compiler) dependencies(ctx context.Context, doc *isa.Document, reporter exc.Reporter) []isa.Dependency {
	var deps []isa.Dependency
	for _, n := range doc.Nodes {
		d, ok := n.(*isa.Directive)
		if !ok {
			continue
		}
		kind := isa.DependencyKind(d.Name())
		if kind != isa.DependencyInclude && kind != isa.DependencyAttach {
			continue
		}
		if len(d.Args) != 1 || d.Args[0].Kind != isa.TokenKindQuotedString {
			continue
		}
		arg := d.Args[0]
		dep := isa.Dependency{Kind: kind, Path: arg.Value, Span: arg.Span}
		resolved := self.resolveDependency(ctx, doc.URI, arg.Value)
		if resolved.IsPresent() {
			dep.Resolved = resolved.Value()
		} else {
			_ = reporter.Report(exc.New(exc.Location{URI: doc.URI, Span: arg.Span}, exc.CodeUnresolvedDependency,
				fmt.Sprintf("cannot resolve %s '%s'", kind, arg.Value)))
		}
		deps = append(deps, dep)
	}
	return deps
}

func (self *compiler) resolveDependency(ctx context.Context, uri string, path string) optional.Optional[string] {
	for _, candidate := range target.Resolve(uri, path) {
		files, err := self.FS.Open(ctx, candidate)
		if err != nil || len(files) != 1 {
			continue
		}
		return optional.Some(files[0].Path(ctx))
	}
	return optional.None[string]()
}

// AnalyzeFiles opens the given files or directories through the file system
// and analyzes every document concurrently. With FollowDependencies the
// resolved dependencies are analyzed as well, each one once.
func (self *compiler) AnalyzeFiles(ctx context.Context, req *isa.AnalyzeFilesRequest) (*isa.AnalyzeFilesResponse, error) {
	var failures MultiException
	queue := make([]isa.File, 0, len(req.Files))
	for _, f := range req.Files {
		uri := target.Normalize(f)
		files, err := self.FS.Open(ctx, uri)
		if err != nil {
			failures = append(failures, exc.Wrap(exc.Location{URI: uri}, exc.CodeFileNotFound, err))
			continue
		}
		for _, file := range files {
			if file.Kind(ctx) == isa.FileKindNone {
				continue
			}
			queue = append(queue, file)
		}
	}

	seen := make(map[string]bool)
	var results []*isa.AnalyzeResponse
	for len(queue) > 0 {
		wave := make([]isa.File, 0, len(queue))
		for _, file := range queue {
			if seen[file.Path(ctx)] {
				continue
			}
			seen[file.Path(ctx)] = true
			wave = append(wave, file)
		}
		responses := make([]*isa.AnalyzeResponse, len(wave))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(self.MaxConcurrency)
		for offset, file := range wave {
			g.Go(func() error {
				resp, err := self.analyzeFile(gctx, file)
				if err != nil {
					return err
				}
				responses[offset] = resp
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		results = append(results, responses...)

		queue = queue[:0]
		if !req.FollowDependencies {
			break
		}
		for _, resp := range responses {
			for _, dep := range resp.Dependencies {
				if dep.Resolved == "" || seen[dep.Resolved] {
					continue
				}
				files, err := self.FS.Open(ctx, dep.Resolved)
				if err != nil {
					failures = append(failures, exc.Wrap(exc.Location{URI: resp.URI, Span: dep.Span}, exc.CodeUnresolvedDependency, err))
					continue
				}
				queue = append(queue, files...)
			}
		}
	}
	self.Logger.Debug("analyzed files", slog.String("component", "analyzer"), slog.Int("documents", len(results)), slog.Int("failures", len(failures)))

	out := &isa.AnalyzeFilesResponse{Results: results}
	if len(failures) > 0 {
		return out, failures
	}
	return out, nil
}

func (self *compiler) analyzeFile(ctx context.Context, file isa.File) (*isa.AnalyzeResponse, error) {
	body, err := file.Body(ctx)
	if err != nil {
		return nil, exc.Wrap(exc.Location{URI: file.Path(ctx)}, exc.CodeFileNotFound, err)
	}
	defer body.Close(ctx)
	text, err := iter.ReadAll(ctx, body)
	if err != nil {
		return nil, exc.WrapUnknown(exc.Location{URI: file.Path(ctx)}, err)
	}
	return self.Analyze(ctx, &isa.AnalyzeRequest{URI: file.Path(ctx), Text: text})
}

func (self *compiler) cached(uri string) *document {
	self.lock.RLock()
	defer self.lock.RUnlock()
	return self.documents[uri]
}

// FindSymbolAtPosition returns the declared symbol when the position is on a
// declaring tag, or the resolved target when it is on a reference.
func (self *compiler) FindSymbolAtPosition(uri string, line int32, col int32) optional.Optional[*isa.Symbol] {
	doc := self.cached(uri)
	if doc == nil {
		return optional.None[*isa.Symbol]()
	}
	for _, tok := range doc.tokens {
		if !tok.Span.Contains(line, col) {
			continue
		}
		if sym, ok := doc.declarations[tok]; ok {
			return optional.Some(sym)
		}
		if sym, ok := doc.linker.references[tok]; ok {
			return optional.Some(sym)
		}
		if tok.Kind == isa.TokenKindSpaceDirective || tok.Kind == isa.TokenKindSpaceIndirection {
			name := strings.TrimLeft(tok.Value, ":$")
			if sym := doc.table.findSymbol(name, ""); sym.IsPresent() {
				return sym
			}
		}
	}
	return optional.None[*isa.Symbol]()
}

func (self *compiler) SymbolsInScope(uri string, spaceTag string) []*isa.Symbol {
	doc := self.cached(uri)
	if doc == nil {
		return nil
	}
	return doc.table.symbolsInScope(spaceTag)
}

func declaringToken(n isa.Node) *isa.Token {
	switch n := n.(type) {
	case *isa.Space:
		return n.Tag
	case *isa.Bus:
		return n.Tag
	case *isa.Field:
		return n.Tag
	case *isa.Subfield:
		return n.Tag
	case *isa.Instruction:
		return n.Tag
	}
	return nil
}

type MultiException []exc.Exception

func (self MultiException) Error() string {
	var b strings.Builder
	for _, err := range self[:len(self)-1] {
		b.WriteString(err.Error())
		b.WriteString("; ")
	}
	b.WriteString(self[len(self)-1].Error())
	return b.String()
}
