// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

// Package bitfield implements the @(seg|seg|...) bit specification syntax.
// Bits are numbered MSB-0: bit 0 is the most significant bit of the
// container.
package bitfield

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"gopkg.isalang.org/isac/internal/exc"
	"gopkg.isalang.org/isac/internal/numeric"
)

// NativeWidth is the width results are sign extended to.
const NativeWidth = 64

type SegmentKind uint8

const (
	SegmentRange SegmentKind = iota
	SegmentIndex
	SegmentLiteral
	SegmentSignExtension
)

func (k SegmentKind) String() string {
	switch k {
	case SegmentRange:
		return "range"
	case SegmentIndex:
		return "index"
	case SegmentLiteral:
		return "literal"
	case SegmentSignExtension:
		return "sign-extension"
	default:
		return fmt.Sprintf("unknown-%d", k)
	}
}

type Segment struct {
	Kind SegmentKind
	// Start and End are inclusive. An index has Start == End.
	Start int
	End   int
	// Bits holds the digits of a literal segment.
	Bits string
	// SignBit is 0 or 1 for a sign extension segment.
	SignBit int
	// Offset and Length locate the segment text inside the parentheses.
	Offset int
	Length int
}

func (s Segment) Width() int {
	switch s.Kind {
	case SegmentRange:
		return s.End - s.Start + 1
	case SegmentIndex:
		return 1
	case SegmentLiteral:
		return len(s.Bits)
	default:
		return 0
	}
}

func (s Segment) String() string {
	switch s.Kind {
	case SegmentRange:
		return fmt.Sprintf("%d-%d", s.Start, s.End)
	case SegmentIndex:
		return fmt.Sprintf("%d", s.Start)
	case SegmentLiteral:
		return "0b" + s.Bits
	default:
		return fmt.Sprintf("?%d", s.SignBit)
	}
}

type Spec struct {
	Segments       []Segment
	ContainerWidth int
}

// Width is the number of bits the bit specification assembles. Sign extension
// contributes nothing.
func (s *Spec) Width() int {
	w := 0
	for _, seg := range s.Segments {
		w = w + seg.Width()
	}
	return w
}

// String renders the canonical @(...) form.
func (s *Spec) String() string {
	parts := make([]string, 0, len(s.Segments))
	for _, seg := range s.Segments {
		parts = append(parts, seg.String())
	}
	return "@(" + strings.Join(parts, "|") + ")"
}

// Extract assembles the designated bits of container. Earlier segments land
// in more significant result bits.
func (s *Spec) Extract(container uint64) uint64 {
	var result uint64
	width := 0
	for _, seg := range s.Segments {
		switch seg.Kind {
		case SegmentRange, SegmentIndex:
			w := seg.Width()
			result = shiftIn(result, w, s.bits(container, seg.Start, seg.End))
			width = width + w
		case SegmentLiteral:
			lit, _ := numeric.Parse("0b" + seg.Bits)
			result = shiftIn(result, len(seg.Bits), lit.Value)
			width = width + len(seg.Bits)
		case SegmentSignExtension:
			if seg.SignBit == 1 && width > 0 && width < NativeWidth && result&(uint64(1)<<uint(width-1)) != 0 {
				result = result | ^(uint64(1)<<uint(width) - 1)
			}
		}
	}
	return result
}

// Insert distributes the low Width() bits of value into the positions of the
// container named by the bit specification. Literal bits are skipped.
func (s *Spec) Insert(container uint64, value uint64) uint64 {
	remaining := s.Width()
	for _, seg := range s.Segments {
		w := seg.Width()
		if w == 0 {
			continue
		}
		remaining = remaining - w
		if seg.Kind == SegmentLiteral {
			continue
		}
		part := (value >> uint(remaining)) & mask(w)
		shift := s.ContainerWidth - 1 - seg.End
		if shift < 0 || shift >= 64 {
			continue
		}
		container = container&^(mask(w)<<uint(shift)) | part<<uint(shift)
	}
	return container
}

func (s *Spec) bits(container uint64, start int, end int) uint64 {
	shift := s.ContainerWidth - 1 - end
	if shift < 0 || shift >= 64 {
		return 0
	}
	return (container >> uint(shift)) & mask(end-start+1)
}

func shiftIn(result uint64, width int, v uint64) uint64 {
	if width >= 64 {
		return v
	}
	return result<<uint(width) | v&mask(width)
}

func mask(width int) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return uint64(1)<<uint(width) - 1
}

var (
	ErrEmpty            = errors.New("empty bit-field")
	ErrEmptySegment     = errors.New("empty segment")
	ErrAmpersand        = errors.New("'&' is not a segment separator")
	ErrEmbeddedSpace    = errors.New("spaces are not allowed inside a segment")
	ErrDoubleDash       = errors.New("'--' is not a range")
	ErrUnderscoreRange  = errors.New("'_' is not a range separator")
	ErrSignExtension    = errors.New("invalid sign extension")
	ErrBinaryLiteral    = errors.New("invalid binary literal")
	ErrIndex            = errors.New("invalid bit index")
	ErrReversedRange    = errors.New("reversed bit range")
	ErrIndexOutOfRange  = errors.New("bit index out of range")
	ErrOutsideContainer = errors.New("bit outside the container")
	ErrUnterminated     = errors.New("unterminated bit-field")
	ErrMissingDelimiter = errors.New("bit-field must be written as @(...)")
)

// Error is a problem located inside a bit-field's text.
type Error struct {
	Code    string
	Message string
	// Offset and Length are relative to the text that was parsed.
	Offset int
	Length int
	Err    error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Parse reads the text between @( and ) against a container width. Every
// problem is returned; the bit specification holds the segments that parsed.
func Parse(inner string, containerWidth int) (*Spec, []*Error) {
	spec := &Spec{ContainerWidth: containerWidth}
	if strings.TrimSpace(inner) == "" {
		return spec, []*Error{{
			Code:    exc.CodeInvalidBitfieldSyntax,
			Message: "empty bit-field '@()'",
			Length:  len(inner),
			Err:     ErrEmpty,
		}}
	}
	var errs []*Error
	var checks []Segment
	for _, part := range split(inner) {
		seg, check, err := parseSegment(part.text, part.offset, containerWidth)
		if err != nil {
			errs = append(errs, err)
		}
		if seg != nil {
			spec.Segments = append(spec.Segments, *seg)
		}
		if check != nil {
			checks = append(checks, *check)
		}
	}
	for _, seg := range checks {
		if err := validateRange(seg, containerWidth); err != nil {
			errs = append(errs, err)
		}
	}
	return spec, errs
}

// ParseToken reads a whole @(...) token. Error offsets are relative to the
// token text.
func ParseToken(text string, containerWidth int) (*Spec, []*Error) {
	if !strings.HasPrefix(text, "@(") {
		return &Spec{ContainerWidth: containerWidth}, []*Error{{
			Code:    exc.CodeInvalidBitfieldSyntax,
			Message: fmt.Sprintf("bit-field '%s' must be written as @(...)", text),
			Length:  len(text),
			Err:     ErrMissingDelimiter,
		}}
	}
	inner := text[2:]
	var errs []*Error
	if strings.HasSuffix(inner, ")") {
		inner = inner[:len(inner)-1]
	} else {
		errs = append(errs, &Error{
			Code:    exc.CodeInvalidBitfieldSyntax,
			Message: fmt.Sprintf("unterminated bit-field '%s'", text),
			Length:  len(text),
			Err:     ErrUnterminated,
		})
	}
	spec, parseErrs := Parse(inner, containerWidth)
	for _, e := range parseErrs {
		e.Offset = e.Offset + 2
		errs = append(errs, e)
	}
	return spec, errs
}

type part struct {
	text   string
	offset int
}

// split cuts on '|' outside of any () or [] nesting.
func split(inner string) []part {
	var parts []part
	depth := 0
	start := 0
	for i, r := range inner {
		switch r {
		case '(', '[':
			depth = depth + 1
		case ')', ']':
			if depth > 0 {
				depth = depth - 1
			}
		case '|':
			if depth == 0 {
				parts = append(parts, part{text: inner[start:i], offset: start})
				start = i + 1
			}
		}
	}
	return append(parts, part{text: inner[start:], offset: start})
}

func parseSegment(raw string, offset int, containerWidth int) (*Segment, *Segment, *Error) {
	text := strings.TrimSpace(raw)
	offset = offset + strings.Index(raw, text)
	syntaxErr := func(err error, message string) *Error {
		length := len(text)
		if length == 0 {
			length = 1
		}
		return &Error{Code: exc.CodeInvalidBitfieldSyntax, Message: message, Offset: offset, Length: length, Err: err}
	}
	partErr := func(err error, message string) *Error {
		return &Error{Code: exc.CodeInvalidBitfieldPart, Message: message, Offset: offset, Length: len(text), Err: err}
	}
	switch {
	case text == "":
		return nil, nil, syntaxErr(ErrEmptySegment, "empty bit-field segment; '||' is not allowed, use a single '|' between segments")
	case strings.Contains(text, "&"):
		return nil, nil, syntaxErr(ErrAmpersand, fmt.Sprintf("'&' in segment '%s'; use '|' to concatenate segments", text))
	case strings.IndexFunc(text, unicode.IsSpace) >= 0:
		return nil, nil, syntaxErr(ErrEmbeddedSpace, fmt.Sprintf("spaces in segment '%s' are not allowed", text))
	case strings.Contains(text, "--"):
		return nil, nil, syntaxErr(ErrDoubleDash, fmt.Sprintf("'--' in segment '%s'; write ranges as start-end", text))
	case strings.Contains(text, "_"):
		return nil, nil, syntaxErr(ErrUnderscoreRange, fmt.Sprintf("'_' in segment '%s'; use '-' for bit ranges", text))
	}
	seg := Segment{Offset: offset, Length: len(text)}
	switch {
	case strings.HasPrefix(text, "?"):
		if text == "?0" || text == "?1" {
			seg.Kind = SegmentSignExtension
			seg.SignBit = int(text[1] - '0')
			return &seg, nil, nil
		}
		if text == "?" {
			return nil, nil, partErr(ErrSignExtension, "incomplete sign extension '?'; expected ?0 or ?1")
		}
		return nil, nil, partErr(ErrSignExtension, fmt.Sprintf("invalid sign extension '%s'; expected ?0 or ?1", text))
	case len(text) >= 2 && (text[:2] == "0b" || text[:2] == "0B"):
		bits := text[2:]
		if bits == "" || strings.Trim(bits, "01") != "" {
			return nil, nil, partErr(ErrBinaryLiteral, fmt.Sprintf("invalid binary literal '%s'", text))
		}
		seg.Kind = SegmentLiteral
		seg.Bits = bits
		return &seg, nil, nil
	case strings.Contains(text, "-"):
		dash := strings.Index(text, "-")
		start, errStart := numeric.Parse(text[:dash])
		end, errEnd := numeric.Parse(text[dash+1:])
		if errStart != nil || errEnd != nil {
			return nil, nil, partErr(ErrIndex, fmt.Sprintf("invalid bit range '%s'", text))
		}
		seg.Kind = SegmentRange
		seg.Start = clampInt(start.Value)
		seg.End = clampInt(end.Value)
		if seg.Start > seg.End {
			return nil, &seg, partErr(ErrReversedRange, fmt.Sprintf("bit range '%s' starts after it ends; MSB-0 ranges are written start-end with start <= end", text))
		}
		if seg.End >= containerWidth {
			return &seg, &seg, partErr(ErrOutsideContainer, fmt.Sprintf("bit range '%s' ends outside the %d-bit container [0, %d)", text, containerWidth, containerWidth))
		}
		return &seg, &seg, nil
	default:
		idx, err := numeric.Parse(text)
		if err != nil {
			return nil, nil, partErr(ErrIndex, fmt.Sprintf("invalid bit index '%s'", text))
		}
		seg.Kind = SegmentIndex
		seg.Start = clampInt(idx.Value)
		seg.End = seg.Start
		if seg.Start >= containerWidth {
			return &seg, &seg, partErr(ErrOutsideContainer, fmt.Sprintf("bit index '%s' is outside the %d-bit container [0, %d)", text, containerWidth, containerWidth))
		}
		return &seg, &seg, nil
	}
}

func validateRange(seg Segment, containerWidth int) *Error {
	lo, hi := seg.Start, seg.End
	if lo > hi {
		lo, hi = hi, lo
	}
	if lo >= 0 && hi < containerWidth {
		return nil
	}
	var message string
	if seg.Kind == SegmentIndex {
		message = fmt.Sprintf("bit %d is out of range for a %d-bit container (valid 0-%d)", seg.Start, containerWidth, containerWidth-1)
	} else {
		message = fmt.Sprintf("bit range %d-%d is out of range for a %d-bit container (valid 0-%d)", seg.Start, seg.End, containerWidth, containerWidth-1)
	}
	return &Error{
		Code:    exc.CodeBitIndexOutOfRange,
		Message: message,
		Offset:  seg.Offset,
		Length:  seg.Length,
		Err:     ErrIndexOutOfRange,
	}
}

func clampInt(v uint64) int {
	const maxInt = int(^uint(0) >> 1)
	if v > uint64(maxInt) {
		return maxInt
	}
	return int(v)
}
