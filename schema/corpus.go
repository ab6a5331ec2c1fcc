// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package schema describes the compiled schema
// corpus consumed by the EXI grammar builder.
//
// A Corpus is immutable once built. It is
// produced either programmatically with a
// Builder or from a YAML/JSON description
// with Decode.
package schema

import (
	"encoding/hex"
	"fmt"

	"github.com/SnellerInc/exi/exierr"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Corpus is a compiled set of type, element
// and attribute declarations.
type Corpus struct {
	id         string
	types      map[QName]*Type
	elements   map[QName]*Element
	attributes map[QName]*Attribute
	globals    []*Element
	decls      []*Element
	all        []*Type
	namespaces []string
	sum        [32]byte
}

// Type returns the named type q, or nil.
func (c *Corpus) Type(q QName) *Type { return c.types[q] }

// Builtin returns the built-in type with
// the given local name, or nil.
func (c *Corpus) Builtin(local string) *Type {
	return c.types[QName{Space: XSDNamespace, Local: local}]
}

// AnyType returns xsd:anyType.
func (c *Corpus) AnyType() *Type { return c.Builtin("anyType") }

// Element returns the global element declaration q, or nil.
func (c *Corpus) Element(q QName) *Element { return c.elements[q] }

// Attribute returns the global attribute declaration q, or nil.
func (c *Corpus) Attribute(q QName) *Attribute { return c.attributes[q] }

// GlobalElements returns the global element
// declarations sorted by local name and namespace.
func (c *Corpus) GlobalElements() []*Element { return c.globals }

// Declarations returns every element declaration,
// global and local, in declaration order.
func (c *Corpus) Declarations() []*Element { return c.decls }

// Types returns every type reachable from the
// declarations, built-in types first.
func (c *Corpus) Types() []*Type { return c.all }

// Attributes returns the global attribute
// declarations sorted by local name and namespace.
func (c *Corpus) Attributes() []*Attribute {
	out := maps.Values(c.attributes)
	slices.SortFunc(out, func(a, b *Attribute) bool { return a.Name.Less(b.Name) })
	return out
}

// Namespaces returns the sorted target namespaces
// of the corpus, excluding the empty namespace and
// the namespaces EXI tables always contain.
func (c *Corpus) Namespaces() []string { return c.namespaces }

// Fingerprint returns a digest identifying
// the structure of the corpus.
func (c *Corpus) Fingerprint() [32]byte { return c.sum }

// ID returns the schema identifier announced
// in EXI headers. Unless set explicitly, it
// is derived from the fingerprint.
func (c *Corpus) ID() string {
	if c.id != "" {
		return c.id
	}
	return hex.EncodeToString(c.sum[:8])
}

// Builder assembles a Corpus.
type Builder struct {
	id         string
	builtins   map[string]*Type
	types      []*Type
	elements   []*Element
	attributes []*Attribute
}

// NewBuilder constructs an empty Builder.
func NewBuilder() *Builder {
	return &Builder{builtins: newBuiltins()}
}

// SetID sets an explicit schema identifier.
func (b *Builder) SetID(id string) { b.id = id }

// Builtin returns the built-in type with the given
// local name. It panics if no such type exists.
func (b *Builder) Builtin(local string) *Type {
	t := b.builtins[local]
	if t == nil {
		panic("schema: unknown built-in type " + local)
	}
	return t
}

// AddType registers a named type.
func (b *Builder) AddType(t *Type) *Type {
	b.types = append(b.types, t)
	return t
}

// AddElement registers a global element declaration.
func (b *Builder) AddElement(e *Element) *Element {
	e.Global = true
	b.elements = append(b.elements, e)
	return e
}

// AddAttribute registers a global attribute declaration.
func (b *Builder) AddAttribute(a *Attribute) *Attribute {
	b.attributes = append(b.attributes, a)
	return a
}

// Restrict returns a new simple type derived
// by restriction from base. Facets may be
// set on the result before Build.
func Restrict(name QName, base *Type) *Type {
	return &Type{
		Name:         name,
		Serial:       -1,
		Base:         base,
		Simple:       true,
		Variety:      base.Variety,
		Family:       base.Family,
		Item:         base.Item,
		Members:      base.Members,
		Unsigned:     base.Unsigned,
		MinInclusive: base.MinInclusive,
		MaxInclusive: base.MaxInclusive,
	}
}

// ListOf returns a new list type.
func ListOf(name QName, item, anySimple *Type) *Type {
	return &Type{Name: name, Serial: -1, Base: anySimple, Simple: true, Variety: List, Family: FamilyList, Item: item}
}

// UnionOf returns a new union type.
func UnionOf(name QName, anySimple *Type, members ...*Type) *Type {
	return &Type{Name: name, Serial: -1, Base: anySimple, Simple: true, Variety: Union, Family: FamilyString, Members: members}
}

// ElementParticle returns a particle for e.
func ElementParticle(e *Element, min, max int) *Particle {
	return &Particle{Kind: ParticleElement, MinOccurs: min, MaxOccurs: max, Element: e}
}

// WildcardParticle returns a particle for w.
func WildcardParticle(w *Wildcard, min, max int) *Particle {
	return &Particle{Kind: ParticleWildcard, MinOccurs: min, MaxOccurs: max, Wildcard: w}
}

// Sequence returns a sequence model group particle.
func Sequence(min, max int, children ...*Particle) *Particle {
	return &Particle{Kind: ParticleSequence, MinOccurs: min, MaxOccurs: max, Children: children}
}

// Choice returns a choice model group particle.
func Choice(min, max int, children ...*Particle) *Particle {
	return &Particle{Kind: ParticleChoice, MinOccurs: min, MaxOccurs: max, Children: children}
}

// All returns an all model group particle.
func All(min int, children ...*Particle) *Particle {
	return &Particle{Kind: ParticleAll, MinOccurs: min, MaxOccurs: 1, Children: children}
}

type walker struct {
	builtin map[*Type]bool
	types   map[*Type]bool
	order   []*Type
	decls   map[*Element]bool
	out     []*Element
	ur      *Type
	simple  *Type
}

func (w *walker) typ(t *Type) error {
	if t == nil || w.types[t] {
		return nil
	}
	w.types[t] = true
	w.order = append(w.order, t)
	if !w.builtin[t] {
		t.Serial = -1
	}
	t.derived = t.derived[:0]
	if t.Simple {
		if t.Variety == List && t.Item == nil {
			return exierr.New(exierr.Schema, "list type %s has no item type", t.Name)
		}
		if t.MinInclusive != nil && t.MaxInclusive != nil && *t.MinInclusive > *t.MaxInclusive {
			return exierr.New(exierr.Schema, "type %s has an empty value space", t.Name)
		}
		if err := w.typ(t.Item); err != nil {
			return err
		}
		for _, m := range t.Members {
			if err := w.typ(m); err != nil {
				return err
			}
		}
		return w.typ(t.Base)
	}
	if t.Content == ContentSimple {
		if t.SimpleContent == nil || !t.SimpleContent.Simple {
			return exierr.New(exierr.Schema, "complex type %s has simple content without a simple type", t.Name)
		}
		if err := w.typ(t.SimpleContent); err != nil {
			return err
		}
	}
	for _, u := range t.Attributes {
		if u.Attribute == nil {
			return exierr.New(exierr.Schema, "type %s has an empty attribute use", t.Name)
		}
		if err := w.attr(u.Attribute); err != nil {
			return err
		}
	}
	if t.Particle != nil {
		if err := w.particle(t.Particle); err != nil {
			return err
		}
	}
	return w.typ(t.Base)
}

func (w *walker) attr(a *Attribute) error {
	if a.Type == nil {
		a.Type = w.simple
	}
	if !a.Type.Simple {
		return exierr.New(exierr.Schema, "attribute %s has a complex type", a.Name)
	}
	return w.typ(a.Type)
}

func (w *walker) particle(p *Particle) error {
	if p.MaxOccurs != Unbounded && p.MaxOccurs < p.MinOccurs {
		return exierr.New(exierr.Schema, "particle has maxOccurs %d < minOccurs %d", p.MaxOccurs, p.MinOccurs)
	}
	switch p.Kind {
	case ParticleElement:
		if p.Element == nil {
			return exierr.New(exierr.Schema, "element particle without a declaration")
		}
		return w.elem(p.Element)
	case ParticleWildcard:
		if p.Wildcard == nil {
			return exierr.New(exierr.Schema, "wildcard particle without a wildcard")
		}
		return nil
	case ParticleAll:
		if p.MaxOccurs != 1 {
			return exierr.New(exierr.Schema, "all group must have maxOccurs 1")
		}
	}
	for _, c := range p.Children {
		if err := w.particle(c); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) elem(e *Element) error {
	if w.decls[e] {
		return nil
	}
	w.decls[e] = true
	w.out = append(w.out, e)
	if e.Type == nil {
		e.Type = w.ur
	}
	e.members = e.members[:0]
	return w.typ(e.Type)
}

// Build validates the declarations and returns the Corpus.
func (b *Builder) Build() (*Corpus, error) {
	c := &Corpus{
		id:         b.id,
		types:      make(map[QName]*Type),
		elements:   make(map[QName]*Element),
		attributes: make(map[QName]*Attribute),
	}
	w := &walker{
		builtin: make(map[*Type]bool),
		types:   make(map[*Type]bool),
		decls:   make(map[*Element]bool),
		ur:      b.builtins["anyType"],
		simple:  b.builtins["anySimpleType"],
	}
	names := maps.Keys(b.builtins)
	slices.Sort(names)
	for _, n := range names {
		t := b.builtins[n]
		w.builtin[t] = true
		c.types[t.Name] = t
	}
	for _, n := range names {
		if err := w.typ(b.builtins[n]); err != nil {
			return nil, err
		}
	}
	for _, t := range b.types {
		if t.Name.IsZero() {
			return nil, exierr.New(exierr.Schema, "named type without a name")
		}
		if c.types[t.Name] != nil && c.types[t.Name] != t {
			return nil, exierr.New(exierr.Schema, "duplicate type %s", t.Name)
		}
		c.types[t.Name] = t
		if err := w.typ(t); err != nil {
			return nil, err
		}
	}
	for _, a := range b.attributes {
		if c.attributes[a.Name] != nil {
			return nil, exierr.New(exierr.Schema, "duplicate global attribute %s", a.Name)
		}
		c.attributes[a.Name] = a
		if err := w.attr(a); err != nil {
			return nil, err
		}
	}
	for _, e := range b.elements {
		if c.elements[e.Name] != nil {
			return nil, exierr.New(exierr.Schema, "duplicate global element %s", e.Name)
		}
		c.elements[e.Name] = e
		c.globals = append(c.globals, e)
		if err := w.elem(e); err != nil {
			return nil, err
		}
	}
	c.decls = w.out
	c.all = w.order

	// derivation links
	for _, t := range w.order {
		for base := t.Base; base != nil; base = base.Base {
			if base == t {
				return nil, exierr.New(exierr.Schema, "type %s derives from itself", t.Name)
			}
			base.derived = append(base.derived, t)
		}
	}
	// substitution groups, transitively
	for _, e := range c.globals {
		if e.Abstract {
			continue
		}
		seen := map[*Element]bool{e: true}
		for head := e.SubstitutionGroup; head != nil; head = head.SubstitutionGroup {
			if seen[head] {
				return nil, exierr.New(exierr.Schema, "substitution group cycle at %s", e.Name)
			}
			seen[head] = true
			head.members = append(head.members, e)
		}
	}
	slices.SortFunc(c.globals, func(a, b *Element) bool { return a.Name.Less(b.Name) })

	ns := make(map[string]bool)
	for _, t := range w.order {
		ns[t.Name.Space] = true
	}
	for _, e := range c.decls {
		ns[e.Name.Space] = true
	}
	for _, a := range c.attributes {
		ns[a.Name.Space] = true
	}
	for _, t := range w.order {
		for _, u := range t.Attributes {
			ns[u.Attribute.Name.Space] = true
		}
	}
	for _, fixed := range []string{"", XMLNamespace, XSINamespace, XSDNamespace} {
		delete(ns, fixed)
	}
	c.namespaces = maps.Keys(ns)
	slices.Sort(c.namespaces)
	c.sum = fingerprint(c, w.order)
	return c, nil
}

// MustBuild is like Build but panics on error.
func (b *Builder) MustBuild() *Corpus {
	c, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("schema: %v", err))
	}
	return c
}
