// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

package frontend

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"gopkg.isalang.org/isac/internal/isa"
)

type role struct {
	Value string
	Role  string
}

func roleOf(r ContextResult) string {
	switch {
	case r.IsFieldOption:
		return "field-option"
	case r.IsSubfieldOption:
		return "subfield-option"
	case r.IsInstructionOption:
		return "instruction-option"
	case r.IsRangeOption:
		return "range-option"
	}
	return ""
}

// identifierRoles runs the machine over input and reports the role of every
// bare identifier.
func identifierRoles(t *testing.T, input string) ([]role, *TokenContext) {
	t.Helper()
	tokens, _ := lexString(t, input)
	machine := NewTokenContext(DefaultHistoryLimit)
	roles := []role{}
	for x, tok := range tokens {
		var next *isa.Token
		if x+1 < len(tokens) {
			next = tokens[x+1]
		}
		result := machine.Process(tok, next)
		if tok.Kind == isa.TokenKindIdentifier {
			roles = append(roles, role{Value: tok.Value, Role: roleOf(result)})
		}
	}
	return roles, machine
}

func processAll(machine *TokenContext, tokens []*isa.Token) {
	for x, tok := range tokens {
		var next *isa.Token
		if x+1 < len(tokens) {
			next = tokens[x+1]
		}
		machine.Process(tok, next)
	}
}

func TestTokenContextRoles(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected []role
		state    ContextState
	}{
		{
			name:  "field name is not an option",
			input: ":reg SPR offset=0x100 bogus=1",
			expected: []role{
				{"SPR", ""},
				{"offset", "field-option"},
				{"bogus", "field-option"},
			},
			state: StateFieldOptions,
		},
		{
			name:  "instruction operands and mask",
			input: ":other insn (overlap,AA) mask={opc=1 xo=2} descr=\"x\"",
			expected: []role{
				{"insn", ""},
				{"overlap", ""},
				{"AA", ""},
				{"mask", "instruction-option"},
				{"opc", ""},
				{"xo", ""},
				{"descr", "instruction-option"},
			},
			state: StateInstructionOptions,
		},
		{
			name: "subfields block",
			input: ":insn size=32 subfields={\n" +
				"    opc @(0-5) op=func\n" +
				"    rd @(6-10) op=target, xx @(1) bad=1\n" +
				"}",
			expected: []role{
				{"size", "field-option"},
				{"subfields", "field-option"},
				{"opc", ""},
				{"op", "subfield-option"},
				{"func", ""},
				{"rd", ""},
				{"op", "subfield-option"},
				{"target", ""},
				{"xx", ""},
				{"bad", "subfield-option"},
			},
			state: StateFieldOptions,
		},
		{
			name:  "joined values",
			input: ":reg CTR redirect=spr9;lsb descr=x op=a|b",
			expected: []role{
				{"CTR", ""},
				{"redirect", "field-option"},
				{"spr9", ""},
				{"lsb", ""},
				{"descr", "field-option"},
				{"x", ""},
				{"op", "field-option"},
				{"a", ""},
				{"b", ""},
			},
			state: StateFieldOptions,
		},
		{
			name:  "bus ranges",
			input: ":bus sysbus addr=32 ranges={\n    $ram 0x0 size=1 bogus=2\n    $reg->SPR 0x10\n}",
			expected: []role{
				{"sysbus", ""},
				{"addr", "field-option"},
				{"ranges", "field-option"},
				{"size", "range-option"},
				{"bogus", "range-option"},
				{"SPR", ""},
			},
			state: StateFieldOptions,
		},
		{
			name:  "semantics block is opaque",
			input: ":insn add (rd) semantics={ foo = bar; if { baz = 1 } }",
			expected: []role{
				{"add", ""},
				{"rd", ""},
				{"semantics", "instruction-option"},
				{"foo", ""},
				{"bar", ""},
				{"if", ""},
				{"baz", ""},
			},
			state: StateInstructionOptions,
		},
		{
			name:  "directive on a new line ends an unterminated block",
			input: ":reg A subfields={\n:reg B c=1",
			expected: []role{
				{"A", ""},
				{"subfields", "field-option"},
				{"B", ""},
				{"c", "field-option"},
			},
			state: StateFieldOptions,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			roles, machine := identifierRoles(t, testCase.input)
			if diff := cmp.Diff(testCase.expected, roles); diff != "" {
				t.Fatalf("roles mismatch (-want +got):\n%s", diff)
			}
			require.Equal(t, testCase.state, machine.State())
		})
	}
}

func TestTokenContextStates(t *testing.T) {
	t.Parallel()

	tokens, _ := lexString(t, ":insn add (rd) mask={opc=1}")
	machine := NewTokenContext(DefaultHistoryLimit)
	states := []ContextState{}
	for x, tok := range tokens {
		var next *isa.Token
		if x+1 < len(tokens) {
			next = tokens[x+1]
		}
		machine.Process(tok, next)
		states = append(states, machine.State())
	}
	expected := []ContextState{
		StateFieldDefinition,     // :insn
		StateFieldOptions,        // add
		StateInstructionOperands, // (
		StateInstructionOperands, // rd
		StateInstructionOptions,  // )
		StateInstructionOptions,  // mask
		StateInstructionOptions,  // =
		StateMaskDefinition,      // {
		StateMaskDefinition,      // opc
		StateMaskDefinition,      // =
		StateMaskDefinition,      // 1
		StateInstructionOptions,  // }
	}
	require.Equal(t, expected, states)
}

func TestTokenContextMalformed(t *testing.T) {
	t.Parallel()

	tokens, _ := lexString(t, "} ) } ( ) ]")
	machine := NewTokenContext(DefaultHistoryLimit)
	for _, tok := range tokens {
		result := machine.Process(tok, nil)
		require.False(t, result.IsOption())
		braces, parens := machine.Depth()
		require.GreaterOrEqual(t, braces, 0)
		require.GreaterOrEqual(t, parens, 0)
	}
	braces, parens := machine.Depth()
	require.Equal(t, 0, braces)
	require.Equal(t, 0, parens)
	require.Equal(t, StateUnknown, machine.State())
}

func TestTokenContextReset(t *testing.T) {
	t.Parallel()

	tokens, _ := lexString(t, ":reg A subfields={ x @(1)")
	machine := NewTokenContext(DefaultHistoryLimit)
	processAll(machine, tokens)
	require.Equal(t, StateSubfieldOptions, machine.State())
	machine.Reset()
	require.Equal(t, StateUnknown, machine.State())
	require.Empty(t, machine.History())
	braces, parens := machine.Depth()
	require.Equal(t, 0, braces)
	require.Equal(t, 0, parens)
}

func TestTokenContextHistoryLimit(t *testing.T) {
	t.Parallel()

	tokens, _ := lexString(t, "a b c d e f g h i j")
	machine := NewTokenContext(3)
	processAll(machine, tokens)
	history := machine.History()
	require.Len(t, history, 3)
	require.Equal(t, "h", history[0].Value)
	require.Equal(t, "j", history[2].Value)
}
