// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

package isa

import "fmt"

type Severity uint8

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	default:
		return fmt.Sprintf("unknown-%d", s)
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	for _, v := range []Severity{SeverityError, SeverityWarning, SeverityInfo} {
		if v.String() == string(text) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown severity %q", text)
}

// Diagnostic is a reported problem in a document. The range is always at
// least one character wide.
type Diagnostic struct {
	URI      string   `json:"uri" yaml:"uri"`
	Range    Span     `json:"range" yaml:"range"`
	Message  string   `json:"message" yaml:"message"`
	Severity Severity `json:"severity" yaml:"severity"`
	Code     string   `json:"code" yaml:"code"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%d:%d: %s %s: %s", d.URI, d.Range.Start.Line, d.Range.Start.Column+1, d.Severity, d.Code, d.Message)
}

type DependencyKind string

const (
	DependencyInclude DependencyKind = "include"
	DependencyAttach  DependencyKind = "attach"
)

// Dependency is a file named by an :include or :attach directive.
type Dependency struct {
	Kind DependencyKind `json:"kind" yaml:"kind"`
	Path string         `json:"path" yaml:"path"`
	Span Span           `json:"range" yaml:"range"`
	// Resolved is the URI the path was found at, empty when unresolved or
	// when no file system is configured.
	Resolved string `json:"resolved,omitempty" yaml:"resolved,omitempty"`
}
