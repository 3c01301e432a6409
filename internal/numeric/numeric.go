// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

// Package numeric parses the integer literal forms of the description
// language: 0x hexadecimal, 0b binary, 0o octal and bare decimal.
package numeric

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Base uint8

const (
	Binary      Base = 2
	Octal       Base = 8
	Decimal     Base = 10
	Hexadecimal Base = 16
)

func (b Base) Prefix() string {
	switch b {
	case Binary:
		return "0b"
	case Octal:
		return "0o"
	case Hexadecimal:
		return "0x"
	default:
		return ""
	}
}

func (b Base) String() string {
	switch b {
	case Binary:
		return "binary"
	case Octal:
		return "octal"
	case Decimal:
		return "decimal"
	case Hexadecimal:
		return "hexadecimal"
	default:
		return fmt.Sprintf("base-%d", uint8(b))
	}
}

var (
	ErrEmpty        = errors.New("empty numeric literal")
	ErrNoDigits     = errors.New("numeric prefix without digits")
	ErrInvalidDigit = errors.New("invalid digit")
	ErrOverflow     = errors.New("numeric literal exceeds 64 bits")
)

// Literal is a parsed integer. Text is the trimmed source text.
type Literal struct {
	Value uint64
	Base  Base
	Text  string
}

// Digits returns the number of digits after the prefix.
func (l Literal) Digits() int {
	return len(l.Text) - len(l.Base.Prefix())
}

func (l Literal) String() string {
	return Format(l.Value, l.Base)
}

// Parse reads one literal. Prefixes are case-insensitive and surrounding
// whitespace is ignored. Values that do not fit in 64 bits are rejected
// rather than truncated.
func Parse(text string) (Literal, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Literal{}, ErrEmpty
	}
	base := Decimal
	digits := s
	if len(s) >= 2 && s[0] == '0' {
		switch s[1] {
		case 'x', 'X':
			base = Hexadecimal
		case 'b', 'B':
			base = Binary
		case 'o', 'O':
			base = Octal
		}
		if base != Decimal {
			digits = s[2:]
			if digits == "" {
				return Literal{}, fmt.Errorf("%w: %s", ErrNoDigits, s)
			}
		}
	}
	for _, r := range digits {
		if !isDigit(r, base) {
			return Literal{}, fmt.Errorf("%w '%c' in %s literal %s", ErrInvalidDigit, r, base, s)
		}
	}
	v, err := strconv.ParseUint(digits, int(base), 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return Literal{}, fmt.Errorf("%w: %s", ErrOverflow, s)
		}
		return Literal{}, fmt.Errorf("%w in %s", ErrInvalidDigit, s)
	}
	return Literal{Value: v, Base: base, Text: s}, nil
}

// IsLiteral reports whether text parses as a literal.
func IsLiteral(text string) bool {
	_, err := Parse(text)
	return err == nil
}

func isDigit(r rune, base Base) bool {
	switch base {
	case Binary:
		return r == '0' || r == '1'
	case Octal:
		return r >= '0' && r <= '7'
	case Hexadecimal:
		return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
	default:
		return r >= '0' && r <= '9'
	}
}

// Fits reports whether value is representable in width bits.
func Fits(value uint64, width int) bool {
	if width < 0 {
		return false
	}
	if width >= 64 {
		return true
	}
	return value <= (uint64(1)<<uint(width))-1
}

// ValidateBitWidth reports whether 0 <= lit.Value <= 2^width-1.
func ValidateBitWidth(lit Literal, width int) bool {
	return Fits(lit.Value, width)
}

// ConvertToBase renders the literal's value in another base with that base's
// prefix.
func ConvertToBase(lit Literal, base Base) string {
	return Format(lit.Value, base)
}

func Format(value uint64, base Base) string {
	switch base {
	case Binary, Octal, Hexadecimal:
		return base.Prefix() + strconv.FormatUint(value, int(base))
	default:
		return strconv.FormatUint(value, 10)
	}
}

// BitLength is the number of bits needed to hold value, at least one.
func BitLength(value uint64) int {
	n := 1
	for value > 1 {
		value = value >> 1
		n = n + 1
	}
	return n
}
