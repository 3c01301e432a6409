// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

package compiler

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"gopkg.isalang.org/isac/internal/exc"
	"gopkg.isalang.org/isac/internal/isa"
	"gopkg.isalang.org/isac/internal/optional"
)

// DefaultPalette assigns per-space colors in declaration order.
var DefaultPalette = []string{
	"#e06c75",
	"#98c379",
	"#e5c07b",
	"#61afef",
	"#c678dd",
	"#56b6c2",
	"#d19a66",
	"#abb2bf",
}

// arrayField describes a field declared with count > 1. Elements are never
// materialized; lookups synthesize them from the name format.
type arrayField struct {
	symbol *isa.Symbol
	field  *isa.Field
	prefix string
	suffix string
	count  uint64
}

func (a *arrayField) elementName(index uint64) string {
	return a.prefix + strconv.FormatUint(index, 10) + a.suffix
}

// validRange renders the inclusive element name range.
func (a *arrayField) validRange() string {
	return fmt.Sprintf("%s..%s", a.elementName(0), a.elementName(a.count-1))
}

// index parses name as an element of the array. The boolean is false when
// name does not follow the name format at all.
func (a *arrayField) index(name string) (uint64, bool) {
	if !strings.HasPrefix(name, a.prefix) || !strings.HasSuffix(name, a.suffix) || len(name) <= len(a.prefix)+len(a.suffix) {
		return 0, false
	}
	digits := name[len(a.prefix) : len(name)-len(a.suffix)]
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	v, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// fieldLookup is the outcome of resolving a field name in a space, including
// array elements that are out of range.
type fieldLookup struct {
	symbol     *isa.Symbol
	field      *isa.Field
	outOfRange *arrayField
}

func (l fieldLookup) found() bool {
	return l.symbol != nil
}

type symbolTable struct {
	lock    sync.RWMutex
	uri     string
	palette []string

	spaces     map[string]*isa.Symbol
	spaceOrder []string
	buses      map[string]*isa.Symbol
	scopes     map[string]map[string]*isa.Symbol
	subfields  map[string]map[string]map[string]*isa.Symbol
	arrays     map[string][]*arrayField
	fields     map[*isa.Symbol]*isa.Field
	usage      map[string]int
	all        []*isa.Symbol
}

func newSymbolTable(uri string, palette []string) *symbolTable {
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	return &symbolTable{
		uri:       uri,
		palette:   palette,
		spaces:    make(map[string]*isa.Symbol),
		buses:     make(map[string]*isa.Symbol),
		scopes:    make(map[string]map[string]*isa.Symbol),
		subfields: make(map[string]map[string]map[string]*isa.Symbol),
		arrays:    make(map[string][]*arrayField),
		fields:    make(map[*isa.Symbol]*isa.Field),
		usage:     make(map[string]int),
	}
}

// collect populates the table with every declaration of a document.
// reports: duplicate definitions
func (s *symbolTable) collect(doc *isa.Document, r exc.Reporter) {
	walkDocument(doc, func(n isa.Node) {
		switch n := n.(type) {
		case *isa.Space:
			s.addSymbol(r, &isa.Symbol{Name: n.Tag.Value, Kind: isa.SymbolKindSpace, Span: n.Tag.Span, URI: s.uri, Node: n})
		case *isa.Bus:
			s.addSymbol(r, &isa.Symbol{Name: n.Tag.Value, Kind: isa.SymbolKindBus, Span: n.Tag.Span, URI: s.uri, Node: n})
		case *isa.Field:
			if n.Tag != nil {
				s.addField(r, n)
			}
			parent := n.Name()
			for _, sf := range n.Subfields {
				s.addSymbol(r, &isa.Symbol{Name: sf.Tag.Value, Kind: isa.SymbolKindSubfield, Span: sf.Tag.Span, URI: s.uri, SpaceTag: n.SpaceTag, Parent: parent, Node: sf})
			}
		case *isa.Instruction:
			s.addSymbol(r, &isa.Symbol{Name: n.Tag.Value, Kind: isa.SymbolKindInstruction, Span: n.Tag.Span, URI: s.uri, SpaceTag: n.SpaceTag, Node: n})
		}
	})
}

func (s *symbolTable) addField(r exc.Reporter, field *isa.Field) {
	sym := &isa.Symbol{Name: field.Tag.Value, Kind: isa.SymbolKindField, Span: field.Tag.Span, URI: s.uri, SpaceTag: field.SpaceTag, Node: field}
	if !s.addSymbol(r, sym) {
		return
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.fields[sym] = field
	count := field.Count.OrElse(1)
	if count <= 1 || strings.Count(field.NameFormat, "%d") != 1 {
		return
	}
	parts := strings.SplitN(field.NameFormat, "%d", 2)
	s.arrays[field.SpaceTag] = append(s.arrays[field.SpaceTag], &arrayField{
		symbol: sym,
		field:  field,
		prefix: parts[0],
		suffix: parts[1],
		count:  count,
	})
}

// addSymbol registers a symbol, reporting a collision with an existing
// symbol of the same scope. It returns false when the symbol was rejected.
func (s *symbolTable) addSymbol(r exc.Reporter, sym *isa.Symbol) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	var existing *isa.Symbol
	switch sym.Kind {
	case isa.SymbolKindSpace:
		existing = s.spaces[sym.Name]
		if existing == nil {
			s.spaces[sym.Name] = sym
			s.spaceOrder = append(s.spaceOrder, sym.Name)
		}
	case isa.SymbolKindBus:
		existing = s.buses[sym.Name]
		if existing == nil {
			s.buses[sym.Name] = sym
		}
	case isa.SymbolKindSubfield:
		if s.subfields[sym.SpaceTag] == nil {
			s.subfields[sym.SpaceTag] = make(map[string]map[string]*isa.Symbol)
		}
		if s.subfields[sym.SpaceTag][sym.Parent] == nil {
			s.subfields[sym.SpaceTag][sym.Parent] = make(map[string]*isa.Symbol)
		}
		existing = s.subfields[sym.SpaceTag][sym.Parent][sym.Name]
		if existing == nil {
			s.subfields[sym.SpaceTag][sym.Parent][sym.Name] = sym
		}
	default:
		if s.scopes[sym.SpaceTag] == nil {
			s.scopes[sym.SpaceTag] = make(map[string]*isa.Symbol)
		}
		existing = s.scopes[sym.SpaceTag][sym.Name]
		if existing == nil {
			s.scopes[sym.SpaceTag][sym.Name] = sym
		}
	}
	if existing != nil {
		_ = r.Report(exc.New(exc.Location{URI: s.uri, Span: sym.Span}, exc.CodeDuplicateDefinition,
			fmt.Sprintf("'%s' is already defined as a %s at line %d", sym.Name, existing.Kind, existing.Span.Start.Line)))
		return false
	}
	s.all = append(s.all, sym)
	if sym.SpaceTag != "" {
		s.usage[sym.SpaceTag] = s.usage[sym.SpaceTag] + 1
	}
	return true
}

// findSymbol looks a name up in a scope. Spaces and buses have no scope and
// are found with an empty scope. Fields and instructions take precedence
// over subfields, and array elements are synthesized on demand.
func (s *symbolTable) findSymbol(name string, scope string) optional.Optional[*isa.Symbol] {
	if scope == "" {
		s.lock.RLock()
		defer s.lock.RUnlock()
		if sym, ok := s.spaces[name]; ok {
			return optional.Some(sym)
		}
		if sym, ok := s.buses[name]; ok {
			return optional.Some(sym)
		}
		return optional.None[*isa.Symbol]()
	}
	if l := s.lookupField(name, scope); l.found() {
		return optional.Some(l.symbol)
	}
	s.lock.RLock()
	defer s.lock.RUnlock()
	for _, parent := range sortedKeys(s.subfields[scope]) {
		if sym, ok := s.subfields[scope][parent][name]; ok {
			return optional.Some(sym)
		}
	}
	return optional.None[*isa.Symbol]()
}

func (s *symbolTable) hasSymbol(name string, scope string) bool {
	return s.findSymbol(name, scope).IsPresent()
}

// lookupField resolves a field or instruction name in a space, expanding
// array element names.
func (s *symbolTable) lookupField(name string, scope string) fieldLookup {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if sym, ok := s.scopes[scope][name]; ok {
		return fieldLookup{symbol: sym, field: s.fields[sym]}
	}
	for _, a := range s.arrays[scope] {
		index, ok := a.index(name)
		if !ok {
			continue
		}
		if index >= a.count {
			return fieldLookup{outOfRange: a}
		}
		return fieldLookup{
			symbol: &isa.Symbol{
				Name:     name,
				Kind:     isa.SymbolKindField,
				Span:     a.symbol.Span,
				URI:      a.symbol.URI,
				SpaceTag: scope,
				Node:     a.field,
			},
			field: a.field,
		}
	}
	return fieldLookup{}
}

// findSubfieldInField reports whether the named field, or the array the
// named element belongs to, declares the subfield.
func (s *symbolTable) findSubfieldInField(fieldName string, subfieldName string, scope string) bool {
	l := s.lookupField(fieldName, scope)
	if !l.found() || l.field == nil {
		return false
	}
	return s.subfieldOf(l.field, subfieldName, scope).IsPresent()
}

func (s *symbolTable) subfieldOf(field *isa.Field, name string, scope string) optional.Optional[*isa.Symbol] {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if sym, ok := s.subfields[scope][field.Name()][name]; ok {
		return optional.Some(sym)
	}
	return optional.None[*isa.Symbol]()
}

// symbolsInScope returns the fields, instructions and subfields of a space
// sorted by name.
func (s *symbolTable) symbolsInScope(scope string) []*isa.Symbol {
	s.lock.RLock()
	defer s.lock.RUnlock()
	var out []*isa.Symbol
	for _, sym := range s.all {
		if sym.SpaceTag == scope && sym.Kind != isa.SymbolKindSpace && sym.Kind != isa.SymbolKindBus {
			out = append(out, sym)
		}
	}
	slices.SortStableFunc(out, func(a *isa.Symbol, b *isa.Symbol) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// spaceColors assigns each declared space a palette entry in declaration
// order, cycling when the palette is exhausted.
func (s *symbolTable) spaceColors() map[string]string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	colors := make(map[string]string, len(s.spaceOrder))
	for offset, tag := range s.spaceOrder {
		colors[tag] = s.palette[offset%len(s.palette)]
	}
	return colors
}

func (s *symbolTable) spaceUsageCount(tag string) int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.usage[tag]
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
