// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

package exc

import (
	"fmt"

	"gopkg.isalang.org/isac/internal/isa"
)

type Exception interface {
	error
	Code() string
	Message() string
	Location() Location
	Severity() isa.Severity
}

type Location struct {
	isa.Span
	URI string
}

type exc struct {
	code     string
	message  string
	location Location
}

func (e *exc) Error() string {
	return fmt.Sprintf("%s:%d:%d -- %s: %s", e.location.URI, e.location.Start.Line, e.location.Start.Column+1, e.code, e.message)
}

func (e *exc) Code() string {
	return e.code
}

func (e *exc) Message() string {
	return e.message
}

func (e *exc) Location() Location {
	return e.location
}

func (e *exc) Severity() isa.Severity {
	return SeverityOf(e.code)
}

type excUnwrap struct {
	Exception
	cause error
}

func (e *excUnwrap) Unwrap() error {
	return e.cause
}

func New(location Location, code string, message string) Exception {
	return &exc{
		location: location,
		message:  message,
		code:     code,
	}
}

// Newf is New with a formatted message.
func Newf(location Location, code string, format string, args ...any) Exception {
	return New(location, code, fmt.Sprintf(format, args...))
}

func Wrap(location Location, code string, err error) Exception {
	if err == nil {
		return nil
	}
	if e, ok := err.(Exception); ok {
		return &excUnwrap{
			Exception: New(location, code, e.Message()),
			cause:     e,
		}
	}
	return &excUnwrap{
		cause:     err,
		Exception: New(location, code, err.Error()),
	}
}

func WrapUnknown(location Location, err error) Exception {
	return Wrap(location, CodeUnknownFatal, err)
}

// ToDiagnostic converts an exception into the editor facing form. Empty
// ranges are widened to one character so they can be underlined.
func ToDiagnostic(e Exception) isa.Diagnostic {
	loc := e.Location()
	span := loc.Span
	if span.End.Line < span.Start.Line || (span.End.Line == span.Start.Line && span.End.Column <= span.Start.Column) {
		span.End = isa.Location{
			Line:   span.Start.Line,
			Column: span.Start.Column + 1,
			Offset: span.Start.Offset + 1,
		}
	}
	return isa.Diagnostic{
		URI:      loc.URI,
		Range:    span,
		Message:  e.Message(),
		Severity: e.Severity(),
		Code:     e.Code(),
	}
}
