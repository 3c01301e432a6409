// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

package exc

import (
	"github.com/bufbuild/protocompile/ast"
	"github.com/bufbuild/protocompile/reporter"

	"gopkg.isalang.org/isac/internal/isa"
)

// ToProtocompile converts an exception into a positioned protocompile error.
// protocompile columns are one-based.
func ToProtocompile(e Exception) reporter.ErrorWithPos {
	loc := e.Location()
	start := ast.SourcePos{
		Filename: loc.URI,
		Line:     int(loc.Start.Line),
		Col:      int(loc.Start.Column) + 1,
		Offset:   int(loc.Start.Offset),
	}
	end := ast.SourcePos{
		Filename: loc.URI,
		Line:     int(loc.End.Line),
		Col:      int(loc.End.Column) + 1,
		Offset:   int(loc.End.Offset),
	}
	return reporter.Error(ast.NewSourceSpan(start, end), e)
}

// Forward hands exceptions to a protocompile handler. Warnings and info go to
// the warning channel. The first error the handler's reporter refuses is
// returned.
func Forward(h *reporter.Handler, es []Exception) error {
	for _, e := range es {
		if e.Severity() != isa.SeverityError {
			h.HandleWarning(ToProtocompile(e))
			continue
		}
		if err := h.HandleError(ToProtocompile(e)); err != nil {
			return err
		}
	}
	return nil
}
