// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

package isa

import (
	"context"
	"fmt"

	"gopkg.isalang.org/isac/internal/optional"
)

type Closer interface {
	Close(ctx context.Context) error
}

type CodePoint uint32

type Iterator[T any] interface {
	Next(ctx context.Context) optional.Optional[T]
	Closer
}

type Lookahead[T any] interface {
	Iterator[T]
	Lookahead(ctx context.Context, n uint8) optional.Optional[T]
}

type Filter[T any] interface {
	Keep(ctx context.Context, v T) bool
}

type Reader interface {
	Read(ctx context.Context, size int32) ([]byte, error)
}

type FileBody interface {
	Reader
	Closer
}

type FileKind uint32

const (
	FileKindNone FileKind = iota
	FileKindISA
	FileKindISAExtension
)

func (k FileKind) String() string {
	switch k {
	case FileKindNone:
		return "none"
	case FileKindISA:
		return "isa"
	case FileKindISAExtension:
		return "isa-extension"
	default:
		return fmt.Sprintf("unknown-%d", k)
	}
}

type File interface {
	Path(ctx context.Context) string
	Kind(ctx context.Context) FileKind
	Body(ctx context.Context) (FileBody, error)
}

type FileSystem interface {
	Open(ctx context.Context, uri string) ([]File, error)
	Write(ctx context.Context, uri string, content string) error
}

// Location is a point in a document. Lines are one-based, columns are
// zero-based rune counts, and offsets are zero-based byte counts.
type Location struct {
	Line   int32 `json:"line" yaml:"line"`
	Column int32 `json:"column" yaml:"column"`
	Offset int64 `json:"offset" yaml:"offset"`
}

// Span is a half open range of a document. End is exclusive.
type Span struct {
	Start Location `json:"start" yaml:"start"`
	End   Location `json:"end" yaml:"end"`
}

// Contains reports whether the given line and column fall inside the span.
func (s Span) Contains(line int32, col int32) bool {
	if line < s.Start.Line || line > s.End.Line {
		return false
	}
	if line == s.Start.Line && col < s.Start.Column {
		return false
	}
	if line == s.End.Line && col >= s.End.Column {
		return false
	}
	return true
}

// Before orders spans by their start position.
func (s Span) Before(o Span) bool {
	if s.Start.Line != o.Start.Line {
		return s.Start.Line < o.Start.Line
	}
	return s.Start.Column < o.Start.Column
}

type LexerFile interface {
	File
	Tokens(ctx context.Context) (Iterator[*Token], error)
}

type Lexer interface {
	Lex(ctx context.Context, f File) (LexerFile, error)
}

// Analyzer runs the full front end over documents and answers symbol queries
// against the most recent result for each document.
type Analyzer interface {
	Analyze(ctx context.Context, req *AnalyzeRequest) (*AnalyzeResponse, error)
	AnalyzeFiles(ctx context.Context, req *AnalyzeFilesRequest) (*AnalyzeFilesResponse, error)
	FindSymbolAtPosition(uri string, line int32, col int32) optional.Optional[*Symbol]
	SymbolsInScope(uri string, spaceTag string) []*Symbol
}

type AnalyzeRequest struct {
	URI  string
	Text string
}

type AnalyzeResponse struct {
	URI          string            `json:"uri" yaml:"uri"`
	Diagnostics  []Diagnostic      `json:"diagnostics" yaml:"diagnostics"`
	Tokens       []ClassifiedToken `json:"tokens,omitempty" yaml:"tokens,omitempty"`
	Dependencies []Dependency      `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	// Colors maps each declared space to its palette entry.
	Colors map[string]string `json:"colors,omitempty" yaml:"colors,omitempty"`
	// Usage counts the symbols declared in each space.
	Usage map[string]int `json:"usage,omitempty" yaml:"usage,omitempty"`
}

// HasErrors reports whether any diagnostic is of error severity.
func (r *AnalyzeResponse) HasErrors() bool {
	for _, d := range r.Diagnostics {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

type AnalyzeFilesRequest struct {
	Files []string
	// FollowDependencies also analyzes files named by :include and :attach
	// directives when they can be resolved.
	FollowDependencies bool
}

type AnalyzeFilesResponse struct {
	Results []*AnalyzeResponse
}
