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

package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/SnellerInc/exi/exierr"

	"sigs.k8s.io/yaml"
)

// Description is the YAML (or JSON) form of a corpus.
//
// Names are written as "prefix:local". The
// prefixes "xs" and "xsd" are predefined; other
// prefixes come from Namespaces. Unprefixed type,
// global element and attribute names are in
// TargetNamespace. Local element names are in
// TargetNamespace only when Qualified is set.
//
// Complex types derived by extension or restriction
// list their complete content; Base only records
// the derivation for xsi:type processing.
type Description struct {
	ID              string            `json:"id,omitempty"`
	TargetNamespace string            `json:"targetNamespace,omitempty"`
	Qualified       bool              `json:"qualified,omitempty"`
	Namespaces      map[string]string `json:"namespaces,omitempty"`
	Types           []TypeDesc        `json:"types,omitempty"`
	Elements        []ElementDesc     `json:"elements,omitempty"`
	Attributes      []AttributeDesc   `json:"attributes,omitempty"`
}

// TypeDesc describes a simple or complex type.
// A type is simple when it has List, Union, or a
// simple Base and no Content.
type TypeDesc struct {
	Name          string          `json:"name,omitempty"`
	Base          string          `json:"base,omitempty"`
	List          string          `json:"list,omitempty"`
	Union         []string        `json:"union,omitempty"`
	Enumeration   []string        `json:"enumeration,omitempty"`
	MinInclusive  *int64          `json:"minInclusive,omitempty"`
	MaxInclusive  *int64          `json:"maxInclusive,omitempty"`
	Content       string          `json:"content,omitempty"`
	SimpleContent string          `json:"simpleContent,omitempty"`
	Attributes    []AttributeDesc `json:"attributes,omitempty"`
	AnyAttribute  *WildcardDesc   `json:"anyAttribute,omitempty"`
	Particle      *ParticleDesc   `json:"particle,omitempty"`
}

// AttributeDesc describes an attribute
// declaration or use.
type AttributeDesc struct {
	Name     string `json:"name,omitempty"`
	Ref      string `json:"ref,omitempty"`
	Type     string `json:"type,omitempty"`
	Required bool   `json:"required,omitempty"`
}

// ElementDesc describes an element declaration.
type ElementDesc struct {
	Name              string    `json:"name,omitempty"`
	Ref               string    `json:"ref,omitempty"`
	Type              string    `json:"type,omitempty"`
	ComplexType       *TypeDesc `json:"complexType,omitempty"`
	Nillable          bool      `json:"nillable,omitempty"`
	Abstract          bool      `json:"abstract,omitempty"`
	SubstitutionGroup string    `json:"substitutionGroup,omitempty"`
}

// WildcardDesc describes a wildcard. Namespace is
// "##any", "##other", or a space separated list of
// namespaces where "##targetNamespace" and "##local"
// have their XML Schema meaning.
type WildcardDesc struct {
	Namespace string `json:"namespace,omitempty"`
}

// Occurs is a maxOccurs value: an integer or "unbounded".
type Occurs int

// UnmarshalJSON implements json.Unmarshaler.
func (o *Occurs) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s == "unbounded" {
			*o = Unbounded
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("schema: invalid occurrence %q", s)
		}
		*o = Occurs(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("schema: invalid occurrence %s", b)
	}
	*o = Occurs(n)
	return nil
}

// ParticleDesc describes a particle. Exactly one of
// Element, Any, Sequence, Choice and All is set.
// Min and Max default to 1.
type ParticleDesc struct {
	Min      *int           `json:"min,omitempty"`
	Max      *Occurs        `json:"max,omitempty"`
	Element  *ElementDesc   `json:"element,omitempty"`
	Any      *WildcardDesc  `json:"any,omitempty"`
	Sequence []ParticleDesc `json:"sequence,omitempty"`
	Choice   []ParticleDesc `json:"choice,omitempty"`
	All      []ParticleDesc `json:"all,omitempty"`
}

// Decode builds a Corpus from a YAML or JSON Description.
func Decode(data []byte) (*Corpus, error) {
	var d Description
	if err := yaml.UnmarshalStrict(data, &d); err != nil {
		return nil, exierr.Wrap(exierr.Schema, err, "decoding schema description")
	}
	return d.Build()
}

type resolver struct {
	d        *Description
	b        *Builder
	types    map[QName]*Type
	elements map[QName]*Element
	attrs    map[QName]*Attribute
}

func (r *resolver) qname(s string, unprefixed string) (QName, error) {
	prefix, local, ok := strings.Cut(s, ":")
	if !ok {
		return QName{Space: unprefixed, Local: s}, nil
	}
	switch prefix {
	case "xs", "xsd":
		if _, ok := r.d.Namespaces[prefix]; !ok {
			return QName{Space: XSDNamespace, Local: local}, nil
		}
	case "xml":
		return QName{Space: XMLNamespace, Local: local}, nil
	}
	ns, ok := r.d.Namespaces[prefix]
	if !ok {
		return QName{}, exierr.New(exierr.Schema, "undeclared prefix in %q", s)
	}
	return QName{Space: ns, Local: local}, nil
}

func (r *resolver) typeRef(s string) (*Type, error) {
	q, err := r.qname(s, r.d.TargetNamespace)
	if err != nil {
		return nil, err
	}
	if q.Space == XSDNamespace {
		if t := r.b.builtins[q.Local]; t != nil {
			return t, nil
		}
	}
	if t := r.types[q]; t != nil {
		return t, nil
	}
	return nil, exierr.New(exierr.Schema, "unknown type %s", q)
}

func (r *resolver) elementRef(s string) (*Element, error) {
	q, err := r.qname(s, r.d.TargetNamespace)
	if err != nil {
		return nil, err
	}
	if e := r.elements[q]; e != nil {
		return e, nil
	}
	return nil, exierr.New(exierr.Schema, "unknown element %s", q)
}

func (r *resolver) fillType(t *Type, td *TypeDesc) error {
	simple := td.List != "" || len(td.Union) > 0
	var base *Type
	if td.Base != "" {
		b, err := r.typeRef(td.Base)
		if err != nil {
			return err
		}
		base = b
		if b.Simple && td.Content == "" {
			simple = true
		}
	}
	if simple {
		anySimple := r.b.builtins["anySimpleType"]
		var proto *Type
		switch {
		case td.List != "":
			item, err := r.typeRef(td.List)
			if err != nil {
				return err
			}
			proto = ListOf(t.Name, item, anySimple)
		case len(td.Union) > 0:
			members := make([]*Type, 0, len(td.Union))
			for _, m := range td.Union {
				mt, err := r.typeRef(m)
				if err != nil {
					return err
				}
				members = append(members, mt)
			}
			proto = UnionOf(t.Name, anySimple, members...)
		default:
			proto = Restrict(t.Name, base)
		}
		*t = *proto
		t.Enumeration = td.Enumeration
		if td.MinInclusive != nil {
			t.MinInclusive = td.MinInclusive
		}
		if td.MaxInclusive != nil {
			t.MaxInclusive = td.MaxInclusive
		}
		if t.Family == FamilyInteger && t.MinInclusive != nil && *t.MinInclusive >= 0 {
			t.Unsigned = true
		}
		return nil
	}
	t.Base = base
	if t.Base == nil {
		t.Base = r.b.builtins["anyType"]
	}
	switch td.Content {
	case "", "empty":
		t.Content = ContentEmpty
		if td.Particle != nil {
			t.Content = ContentElementOnly
		}
	case "simple":
		t.Content = ContentSimple
	case "elementOnly":
		t.Content = ContentElementOnly
	case "mixed":
		t.Content = ContentMixed
	default:
		return exierr.New(exierr.Schema, "unknown content kind %q", td.Content)
	}
	if td.SimpleContent != "" {
		st, err := r.typeRef(td.SimpleContent)
		if err != nil {
			return err
		}
		t.Content = ContentSimple
		t.SimpleContent = st
	}
	for i := range td.Attributes {
		ad := &td.Attributes[i]
		var a *Attribute
		if ad.Ref != "" {
			q, err := r.qname(ad.Ref, r.d.TargetNamespace)
			if err != nil {
				return err
			}
			a = r.attrs[q]
			if a == nil {
				return exierr.New(exierr.Schema, "unknown attribute %s", q)
			}
		} else {
			q, err := r.qname(ad.Name, "")
			if err != nil {
				return err
			}
			a = &Attribute{Name: q}
			if ad.Type != "" {
				at, err := r.typeRef(ad.Type)
				if err != nil {
					return err
				}
				a.Type = at
			}
		}
		t.Attributes = append(t.Attributes, &AttributeUse{Attribute: a, Required: ad.Required})
	}
	if td.AnyAttribute != nil {
		t.AttributeWildcard = r.wildcard(td.AnyAttribute)
	}
	if td.Particle != nil {
		p, err := r.particle(td.Particle)
		if err != nil {
			return err
		}
		t.Particle = p
	}
	return nil
}

func (r *resolver) wildcard(wd *WildcardDesc) *Wildcard {
	switch wd.Namespace {
	case "", "##any":
		return &Wildcard{Kind: WildcardAny}
	case "##other":
		return &Wildcard{Kind: WildcardOther, Namespaces: []string{r.d.TargetNamespace}}
	}
	w := &Wildcard{Kind: WildcardList}
	for _, ns := range strings.Fields(wd.Namespace) {
		switch ns {
		case "##targetNamespace":
			ns = r.d.TargetNamespace
		case "##local":
			ns = ""
		}
		w.Namespaces = append(w.Namespaces, ns)
	}
	return w
}

func (r *resolver) particle(pd *ParticleDesc) (*Particle, error) {
	p := &Particle{MinOccurs: 1, MaxOccurs: 1}
	if pd.Min != nil {
		p.MinOccurs = *pd.Min
	}
	if pd.Max != nil {
		p.MaxOccurs = int(*pd.Max)
	}
	var children []ParticleDesc
	switch {
	case pd.Element != nil:
		p.Kind = ParticleElement
		e, err := r.localElement(pd.Element)
		if err != nil {
			return nil, err
		}
		p.Element = e
		return p, nil
	case pd.Any != nil:
		p.Kind = ParticleWildcard
		p.Wildcard = r.wildcard(pd.Any)
		return p, nil
	case pd.Sequence != nil:
		p.Kind, children = ParticleSequence, pd.Sequence
	case pd.Choice != nil:
		p.Kind, children = ParticleChoice, pd.Choice
	case pd.All != nil:
		p.Kind, children = ParticleAll, pd.All
	default:
		return nil, exierr.New(exierr.Schema, "empty particle")
	}
	for i := range children {
		c, err := r.particle(&children[i])
		if err != nil {
			return nil, err
		}
		p.Children = append(p.Children, c)
	}
	return p, nil
}

func (r *resolver) localElement(ed *ElementDesc) (*Element, error) {
	if ed.Ref != "" {
		return r.elementRef(ed.Ref)
	}
	ns := ""
	if r.d.Qualified {
		ns = r.d.TargetNamespace
	}
	q, err := r.qname(ed.Name, ns)
	if err != nil {
		return nil, err
	}
	e := &Element{Name: q, Nillable: ed.Nillable}
	if err := r.elementType(e, ed); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *resolver) elementType(e *Element, ed *ElementDesc) error {
	switch {
	case ed.ComplexType != nil:
		t := &Type{Serial: -1}
		if err := r.fillType(t, ed.ComplexType); err != nil {
			return err
		}
		e.Type = t
	case ed.Type != "":
		t, err := r.typeRef(ed.Type)
		if err != nil {
			return err
		}
		e.Type = t
	}
	return nil
}

// Build constructs the Corpus described by d.
func (d *Description) Build() (*Corpus, error) {
	r := &resolver{
		d:        d,
		b:        NewBuilder(),
		types:    make(map[QName]*Type),
		elements: make(map[QName]*Element),
		attrs:    make(map[QName]*Attribute),
	}
	r.b.SetID(d.ID)
	// declare every global name first so
	// that references may be forward
	for i := range d.Types {
		q, err := r.qname(d.Types[i].Name, d.TargetNamespace)
		if err != nil {
			return nil, err
		}
		if r.types[q] != nil {
			return nil, exierr.New(exierr.Schema, "duplicate type %s", q)
		}
		r.types[q] = &Type{Name: q, Serial: -1}
	}
	for i := range d.Elements {
		q, err := r.qname(d.Elements[i].Name, d.TargetNamespace)
		if err != nil {
			return nil, err
		}
		r.elements[q] = &Element{Name: q}
	}
	for i := range d.Attributes {
		ad := &d.Attributes[i]
		q, err := r.qname(ad.Name, d.TargetNamespace)
		if err != nil {
			return nil, err
		}
		r.attrs[q] = &Attribute{Name: q}
	}
	for i := range d.Attributes {
		ad := &d.Attributes[i]
		q, _ := r.qname(ad.Name, d.TargetNamespace)
		a := r.attrs[q]
		if ad.Type != "" {
			t, err := r.typeRef(ad.Type)
			if err != nil {
				return nil, err
			}
			a.Type = t
		}
		r.b.AddAttribute(a)
	}
	for i := range d.Types {
		td := &d.Types[i]
		q, _ := r.qname(td.Name, d.TargetNamespace)
		t := r.types[q]
		if err := r.fillType(t, td); err != nil {
			return nil, err
		}
		t.Name = q
		r.b.AddType(t)
	}
	for i := range d.Elements {
		ed := &d.Elements[i]
		q, _ := r.qname(ed.Name, d.TargetNamespace)
		e := r.elements[q]
		e.Nillable = ed.Nillable
		e.Abstract = ed.Abstract
		if err := r.elementType(e, ed); err != nil {
			return nil, err
		}
		if ed.SubstitutionGroup != "" {
			head, err := r.elementRef(ed.SubstitutionGroup)
			if err != nil {
				return nil, err
			}
			e.SubstitutionGroup = head
			if e.Type == nil {
				e.Type = head.Type
			}
		}
		r.b.AddElement(e)
	}
	return r.b.Build()
}
