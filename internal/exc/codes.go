// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

package exc

import "gopkg.isalang.org/isac/internal/isa"

// Infrastructure failures. These surface as Go errors and are fatal when
// reported.
const (
	CodeUnknownFatal                  = "unknown-fatal"
	CodeFileNotFound                  = "file-not-found"
	CodeUnsuportedFileSystemOperation = "unsupported-file-system-operation"
	CodePermissionDenied              = "permission-denied"
	CodeUnsupportedFileFormat         = "unsupported-file-format"
	CodeInvalidConfig                 = "invalid-config"
)

// Document diagnostics. The values are a stable vocabulary consumed by
// editors and must not change.
const (
	CodeInvalidBitfieldSyntax    = "invalid-bitfield-syntax"
	CodeInvalidBitfieldPart      = "invalid-bitfield-part"
	CodeBitIndexOutOfRange       = "bit-index-out-of-range"
	CodeInvalidNumericLiteral    = "invalid-numeric-literal"
	CodeInvalidIdentifier        = "invalid-identifier"
	CodeInvalidParamFormat       = "invalid-param-format"
	CodeInvalidSyntax            = "invalid-syntax"
	CodeUndefinedSpace           = "undefined-space"
	CodeUndefinedFieldReference  = "undefined-field-reference"
	CodeUndefinedSubfield        = "undefined-subfield"
	CodeUndefinedRedirect        = "undefined-redirect"
	CodeUnresolvedDependency     = "unresolved-dependency"
	CodeMutuallyExclusive        = "mutually-exclusive-attributes"
	CodeInvalidIndexRange        = "invalid-index-range"
	CodeDuplicateDefinition      = "duplicate-definition"
	CodeInvalidSpaceOption       = "invalid-space-option"
	CodeInvalidFieldOption       = "invalid-field-option"
	CodeInvalidBusOption         = "invalid-bus-option"
	CodeInvalidSubfieldOption    = "invalid-subfield-option"
	CodeInvalidInstructionOption = "invalid-instruction-option"
	CodeInvalidRangeOption       = "invalid-range-option"
	CodeExcessBitsWarning        = "excess-bits-warning"
)

const (
	CodeEOF = "_EOF_"
)

var severities = map[string]isa.Severity{
	CodeInvalidSpaceOption:       isa.SeverityWarning,
	CodeInvalidFieldOption:       isa.SeverityWarning,
	CodeInvalidBusOption:         isa.SeverityWarning,
	CodeInvalidSubfieldOption:    isa.SeverityWarning,
	CodeInvalidInstructionOption: isa.SeverityWarning,
	CodeInvalidRangeOption:       isa.SeverityWarning,
	CodeExcessBitsWarning:        isa.SeverityWarning,
}

// SeverityOf returns the fixed severity of a code. Anything not listed as a
// warning is an error.
func SeverityOf(code string) isa.Severity {
	if s, ok := severities[code]; ok {
		return s
	}
	return isa.SeverityError
}

var (
	defaultNonFatal = map[string]bool{
		CodeInvalidBitfieldSyntax:    true,
		CodeInvalidBitfieldPart:      true,
		CodeBitIndexOutOfRange:       true,
		CodeInvalidNumericLiteral:    true,
		CodeInvalidIdentifier:        true,
		CodeInvalidParamFormat:       true,
		CodeInvalidSyntax:            true,
		CodeUndefinedSpace:           true,
		CodeUndefinedFieldReference:  true,
		CodeUndefinedSubfield:        true,
		CodeUndefinedRedirect:        true,
		CodeUnresolvedDependency:     true,
		CodeMutuallyExclusive:        true,
		CodeInvalidIndexRange:        true,
		CodeDuplicateDefinition:      true,
		CodeInvalidSpaceOption:       true,
		CodeInvalidFieldOption:       true,
		CodeInvalidBusOption:         true,
		CodeInvalidSubfieldOption:    true,
		CodeInvalidInstructionOption: true,
		CodeInvalidRangeOption:       true,
		CodeExcessBitsWarning:        true,
	}
)
