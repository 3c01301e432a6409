// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

package isa

import (
	"strings"

	"gopkg.isalang.org/isac/internal/optional"
)

// Node is one declaration of a document. The concrete types form a closed
// set: *Directive, *Space, *Field, *Subfield, *Instruction and *Bus.
type Node interface {
	NodeSpan() Span
	NodeText() string
}

type Base struct {
	Span Span
	Text string
}

func (b *Base) NodeSpan() Span {
	return b.Span
}

func (b *Base) NodeText() string {
	return b.Text
}

type Document struct {
	URI   string
	Nodes []Node
}

// Block is a brace delimited option value. Tokens excludes the braces.
type Block struct {
	Open   *Token
	Close  *Token
	Tokens []*Token
}

type Option struct {
	Key    *Token
	Equals *Token
	// Value holds the value tokens including any '|', ';' or '->' joiners.
	Value []*Token
	Block *Block
}

func (o *Option) Name() string {
	return o.Key.Value
}

func (o *Option) HasValue() bool {
	return len(o.Value) > 0 || o.Block != nil
}

// ValueText joins the value tokens without separators, which reproduces the
// source text for values written without whitespace.
func (o *Option) ValueText() string {
	var b strings.Builder
	for _, t := range o.Value {
		b.WriteString(t.Value)
	}
	return b.String()
}

func (o *Option) Span() Span {
	s := o.Key.Span
	switch {
	case o.Block != nil && o.Block.Close != nil:
		s.End = o.Block.Close.Span.End
	case len(o.Value) > 0:
		s.End = o.Value[len(o.Value)-1].Span.End
	case o.Equals != nil:
		s.End = o.Equals.Span.End
	}
	return s
}

type Options []*Option

// Get returns the first option with the given key.
func (os Options) Get(name string) optional.Optional[*Option] {
	for _, o := range os {
		if o.Name() == name {
			return optional.Some(o)
		}
	}
	return optional.None[*Option]()
}

// Directive is one of the generic directives such as :include or :param.
type Directive struct {
	Base
	Keyword *Token
	Args    []*Token
}

func (d *Directive) Name() string {
	return strings.TrimPrefix(d.Keyword.Value, ":")
}

type Space struct {
	Base
	Directive    *Token
	Tag          *Token
	Options      Options
	AddressWidth optional.Optional[uint64]
	WordWidth    optional.Optional[uint64]
	Kind         string
	Alignment    optional.Optional[uint64]
	Endianness   string
}

type Field struct {
	Base
	Directive *Token
	SpaceTag  string
	// Tag is nil for untagged fields such as instruction word layouts.
	Tag        *Token
	Options    Options
	Offset     optional.Optional[uint64]
	Size       optional.Optional[uint64]
	Count      optional.Optional[uint64]
	Reset      optional.Optional[uint64]
	NameFormat string
	// Redirect is the alias chain, nil unless redirect= is present.
	Redirect  []*Token
	Subfields []*Subfield
}

func (f *Field) Name() string {
	if f.Tag == nil {
		return ""
	}
	return f.Tag.Value
}

type Subfield struct {
	Base
	Tag         *Token
	Bits        *Token
	Options     Options
	OpTypes     []string
	Description string
}

type Instruction struct {
	Base
	Directive   *Token
	SpaceTag    string
	Tag         *Token
	Operands    []*Operand
	Mask        []*MaskEntry
	Options     Options
	Description string
	Semantics   *Block
}

// Operand is a bit-field, an indexed field tag or a context reference.
type Operand struct {
	Tokens []*Token
}

func (o *Operand) Text() string {
	var b strings.Builder
	for _, t := range o.Tokens {
		b.WriteString(t.Value)
	}
	return b.String()
}

func (o *Operand) Span() Span {
	return Span{Start: o.Tokens[0].Span.Start, End: o.Tokens[len(o.Tokens)-1].Span.End}
}

type MaskEntry struct {
	Key   *Token
	Value *Token
}

type Bus struct {
	Base
	Directive    *Token
	Tag          *Token
	Options      Options
	AddressWidth optional.Optional[uint64]
	Description  string
	Ranges       []*BusRange
}

// BusRange maps a space, or a field of a space through the legacy arrow, into
// a bus address range.
type BusRange struct {
	Base
	Target  []*Token
	Start   *Token
	Options Options
}
