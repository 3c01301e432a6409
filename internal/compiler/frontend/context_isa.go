// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

package frontend

import (
	"gopkg.isalang.org/isac/internal/isa"
	"gopkg.isalang.org/isac/internal/optional"
)

const DefaultHistoryLimit = 100

type ContextState uint8

const (
	StateUnknown ContextState = iota
	StateFieldDefinition
	StateFieldOptions
	StateInstructionOperands
	StateInstructionOptions
	StateMaskDefinition
	StateSubfieldsDefinition
	StateSubfieldOptions
	StateRangesDefinition
)

var contextStateNames = [...]string{
	StateUnknown:             "unknown",
	StateFieldDefinition:     "field-definition",
	StateFieldOptions:        "field-options",
	StateInstructionOperands: "instruction-operands",
	StateInstructionOptions:  "instruction-options",
	StateMaskDefinition:      "mask-definition",
	StateSubfieldsDefinition: "subfields-definition",
	StateSubfieldOptions:     "subfield-options",
	StateRangesDefinition:    "ranges-definition",
}

func (s ContextState) String() string {
	if int(s) < len(contextStateNames) {
		return contextStateNames[s]
	}
	return "unknown"
}

type ContextTrigger uint8

const (
	TriggerNone ContextTrigger = iota
	TriggerDirective
	TriggerIdentifier
	TriggerParenOpen
	TriggerParenClose
	TriggerBraceOpen
	TriggerBraceClose
	TriggerEquals
	TriggerMask
	TriggerSubfields
	TriggerRanges
	TriggerSemantics
	TriggerBitField
	TriggerComma
	TriggerValue
	TriggerJoin
)

// ContextResult describes the role of one processed token. State is the state
// the token was interpreted in.
type ContextResult struct {
	State               ContextState
	IsFieldOption       bool
	IsSubfieldOption    bool
	IsInstructionOption bool
	IsRangeOption       bool
}

// IsOption reports whether the token is an option key of any kind.
func (r ContextResult) IsOption() bool {
	return r.IsFieldOption || r.IsSubfieldOption || r.IsInstructionOption || r.IsRangeOption
}

type contextFrame struct {
	state ContextState
	brace bool
}

// TokenContext classifies bare identifiers by where they appear. It never
// rejects input: unexpected tokens leave the state unchanged. A TokenContext
// belongs to one analysis and must be Reset before reuse.
type TokenContext struct {
	state        ContextState
	stack        []contextFrame
	enter        optional.Optional[ContextState]
	braceDepth   int
	parenDepth   int
	pendingValue bool
	history      []*isa.Token
	limit        int
}

func NewTokenContext(historyLimit int) *TokenContext {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &TokenContext{limit: historyLimit}
}

func (self *TokenContext) Reset() {
	self.state = StateUnknown
	self.stack = nil
	self.enter = optional.None[ContextState]()
	self.braceDepth = 0
	self.parenDepth = 0
	self.pendingValue = false
	self.history = nil
}

func (self *TokenContext) State() ContextState {
	return self.state
}

// Depth returns the current brace and paren nesting.
func (self *TokenContext) Depth() (int, int) {
	return self.braceDepth, self.parenDepth
}

// History returns the most recent processed tokens, oldest first.
func (self *TokenContext) History() []*isa.Token {
	return append([]*isa.Token(nil), self.history...)
}

// TriggerOf derives the transition trigger for tok. The following token, if
// any, separates option keys from declaration names.
func (self *TokenContext) TriggerOf(tok *isa.Token, next *isa.Token) ContextTrigger {
	switch tok.Kind {
	case isa.TokenKindDirective, isa.TokenKindSpaceDirective:
		if self.atLineStart(tok) {
			return TriggerDirective
		}
		return TriggerNone
	case isa.TokenKindIdentifier:
		if self.pendingValue {
			return TriggerValue
		}
		if next.Is(isa.TokenKindEquals, "=") {
			switch tok.Value {
			case "mask":
				return TriggerMask
			case "subfields":
				return TriggerSubfields
			case "ranges":
				return TriggerRanges
			case "semantics":
				return TriggerSemantics
			}
		}
		return TriggerIdentifier
	case isa.TokenKindParenOpen:
		return TriggerParenOpen
	case isa.TokenKindParenClose:
		return TriggerParenClose
	case isa.TokenKindBraceOpen:
		return TriggerBraceOpen
	case isa.TokenKindBraceClose:
		return TriggerBraceClose
	case isa.TokenKindEquals:
		return TriggerEquals
	case isa.TokenKindBitField:
		if self.pendingValue {
			return TriggerValue
		}
		return TriggerBitField
	case isa.TokenKindComma:
		return TriggerComma
	case isa.TokenKindContextOperator, isa.TokenKindLegacyArrow:
		return TriggerJoin
	case isa.TokenKindOperator:
		if tok.Value == "|" {
			return TriggerJoin
		}
		return TriggerNone
	case isa.TokenKindNumericLiteral, isa.TokenKindInvalidLiteral, isa.TokenKindQuotedString,
		isa.TokenKindSpaceIndirection, isa.TokenKindIndexedFieldTag:
		return TriggerValue
	}
	return TriggerNone
}

// Process advances the machine by one token. Comments are ignored.
func (self *TokenContext) Process(tok *isa.Token, next *isa.Token) ContextResult {
	if tok.Kind == isa.TokenKindComment {
		return ContextResult{State: self.state}
	}
	trigger := self.TriggerOf(tok, next)
	self.remember(tok)
	if tok.Modifiers.Has(isa.ModifierOpaque) {
		switch trigger {
		case TriggerBraceOpen, TriggerBraceClose:
		default:
			return ContextResult{State: self.state}
		}
	}

	result := ContextResult{State: self.state}
	switch trigger {
	case TriggerDirective:
		// A directive at the start of a line ends the previous statement.
		self.Reset()
		self.remember(tok)
		result.State = StateUnknown
		self.state = StateFieldDefinition
	case TriggerMask, TriggerSubfields, TriggerRanges, TriggerSemantics, TriggerIdentifier:
		self.identifier(tok, next, trigger, &result)
	case TriggerBitField:
		if self.state == StateSubfieldsDefinition {
			self.state = StateSubfieldOptions
		}
	case TriggerComma:
		if self.state == StateSubfieldOptions {
			self.state = StateSubfieldsDefinition
		}
		self.pendingValue = false
	case TriggerEquals:
		self.pendingValue = true
	case TriggerJoin:
		self.pendingValue = true
	case TriggerValue:
		self.pendingValue = false
	case TriggerParenOpen:
		self.parenDepth = self.parenDepth + 1
		self.push(false)
		if self.state == StateFieldDefinition || self.state == StateFieldOptions {
			self.state = StateInstructionOperands
		}
		self.pendingValue = false
	case TriggerParenClose:
		self.parenDepth = decrement(self.parenDepth)
		from := self.state
		self.pop(false)
		if from == StateInstructionOperands {
			self.state = StateInstructionOptions
		}
		self.pendingValue = false
	case TriggerBraceOpen:
		self.braceDepth = self.braceDepth + 1
		self.push(true)
		if self.enter.IsPresent() {
			self.state = self.enter.Value()
			self.enter = optional.None[ContextState]()
		}
		self.pendingValue = false
	case TriggerBraceClose:
		self.braceDepth = decrement(self.braceDepth)
		self.pop(true)
		self.pendingValue = false
	}
	return result
}

func (self *TokenContext) identifier(tok *isa.Token, next *isa.Token, trigger ContextTrigger, result *ContextResult) {
	keyed := next.Is(isa.TokenKindEquals, "=")
	switch self.state {
	case StateFieldDefinition:
		// The first bare word names the declaration unless it is keyed.
		self.state = StateFieldOptions
		if keyed {
			result.IsFieldOption = true
			self.keyword(trigger)
		}
	case StateFieldOptions:
		result.IsFieldOption = true
		self.keyword(trigger)
	case StateInstructionOptions:
		result.IsInstructionOption = true
		self.keyword(trigger)
	case StateSubfieldOptions:
		if next != nil && next.Kind == isa.TokenKindBitField {
			result.State = StateSubfieldsDefinition
			self.state = StateSubfieldsDefinition
			return
		}
		result.IsSubfieldOption = true
	case StateRangesDefinition:
		result.IsRangeOption = keyed
	}
}

func (self *TokenContext) keyword(trigger ContextTrigger) {
	switch trigger {
	case TriggerMask:
		self.enter = optional.Some(StateMaskDefinition)
	case TriggerSubfields:
		self.enter = optional.Some(StateSubfieldsDefinition)
	case TriggerRanges:
		self.enter = optional.Some(StateRangesDefinition)
	case TriggerSemantics:
		self.enter = optional.Some(self.state)
	}
}

func (self *TokenContext) push(brace bool) {
	self.stack = append(self.stack, contextFrame{state: self.state, brace: brace})
}

// pop restores the state saved by the matching open token. Unbalanced close
// tokens leave the state unchanged.
func (self *TokenContext) pop(brace bool) {
	for x := len(self.stack) - 1; x >= 0; x = x - 1 {
		if self.stack[x].brace == brace {
			self.state = self.stack[x].state
			self.stack = self.stack[:x]
			return
		}
	}
}

func (self *TokenContext) atLineStart(tok *isa.Token) bool {
	if len(self.history) == 0 {
		return true
	}
	return self.history[len(self.history)-1].Span.End.Line < tok.Span.Start.Line
}

func (self *TokenContext) remember(tok *isa.Token) {
	if len(self.history) >= self.limit {
		self.history = append(self.history[:0], self.history[len(self.history)-self.limit+1:]...)
	}
	self.history = append(self.history, tok)
}
