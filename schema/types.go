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

// Variety is the variety of a simple type.
type Variety uint8

const (
	Atomic Variety = iota
	List
	Union
)

func (v Variety) String() string {
	switch v {
	case Atomic:
		return "atomic"
	case List:
		return "list"
	case Union:
		return "union"
	}
	return "invalid"
}

// Family is the EXI datatype family of
// an atomic simple type. It selects the
// value representation used on the wire.
type Family uint8

const (
	FamilyString Family = iota
	FamilyBoolean
	FamilyDecimal
	FamilyFloat
	FamilyInteger
	FamilyDateTime
	FamilyDate
	FamilyTime
	FamilyGYear
	FamilyGYearMonth
	FamilyGMonth
	FamilyGMonthDay
	FamilyGDay
	FamilyBase64Binary
	FamilyHexBinary
	FamilyQName
	FamilyList
	numFamilies
)

var familyNames = [numFamilies]string{
	FamilyString:       "string",
	FamilyBoolean:      "boolean",
	FamilyDecimal:      "decimal",
	FamilyFloat:        "float",
	FamilyInteger:      "integer",
	FamilyDateTime:     "dateTime",
	FamilyDate:         "date",
	FamilyTime:         "time",
	FamilyGYear:        "gYear",
	FamilyGYearMonth:   "gYearMonth",
	FamilyGMonth:       "gMonth",
	FamilyGMonthDay:    "gMonthDay",
	FamilyGDay:         "gDay",
	FamilyBase64Binary: "base64Binary",
	FamilyHexBinary:    "hexBinary",
	FamilyQName:        "QName",
	FamilyList:         "list",
}

func (f Family) String() string {
	if f < numFamilies {
		return familyNames[f]
	}
	return "invalid"
}

// IsCalendar returns whether f is one
// of the date-time families.
func (f Family) IsCalendar() bool {
	return f >= FamilyDateTime && f <= FamilyGDay
}

// ContentKind describes the content
// model of a complex type.
type ContentKind uint8

const (
	ContentEmpty ContentKind = iota
	ContentSimple
	ContentElementOnly
	ContentMixed
)

// Type is a simple or complex type definition.
type Type struct {
	// Name is zero for anonymous types.
	Name QName
	// Serial is the position of a built-in
	// type in the XSD namespace partition,
	// or -1 for user-defined types.
	Serial int
	Base   *Type
	Simple bool

	// simple types
	Variety     Variety
	Family      Family
	Item        *Type   // list item type
	Members     []*Type // union member types
	Enumeration []string
	// MinInclusive and MaxInclusive bound
	// integer types when set.
	MinInclusive *int64
	MaxInclusive *int64
	// Unsigned is set for integer types
	// whose value space is non-negative.
	Unsigned bool

	// complex types
	Content           ContentKind
	SimpleContent     *Type
	Attributes        []*AttributeUse
	AttributeWildcard *Wildcard
	Particle          *Particle

	derived []*Type
}

// Derived returns the named types
// directly or indirectly derived from t.
func (t *Type) Derived() []*Type { return t.derived }

// HasNamedSubtypes returns whether a named
// type derives from t.
func (t *Type) HasNamedSubtypes() bool {
	for _, d := range t.derived {
		if !d.Name.IsZero() {
			return true
		}
	}
	return false
}

// IsUnion returns whether t is a simple union type.
func (t *Type) IsUnion() bool {
	return t.Simple && t.Variety == Union
}

// ValueType returns the simple type
// that governs character content of t,
// or nil if t has no simple content.
func (t *Type) ValueType() *Type {
	if t.Simple {
		return t
	}
	if t.Content == ContentSimple {
		return t.SimpleContent
	}
	return nil
}

// DerivesFrom returns whether t is base
// or derives from it.
func (t *Type) DerivesFrom(base *Type) bool {
	for x := t; x != nil; x = x.Base {
		if x == base {
			return true
		}
	}
	return false
}

// Element is an element declaration.
type Element struct {
	Name     QName
	Type     *Type
	Nillable bool
	Abstract bool
	// Global is set for top-level declarations.
	Global bool
	// SubstitutionGroup is the head
	// element of this element's group.
	SubstitutionGroup *Element

	members []*Element
}

// Substitutes returns the non-abstract members of
// the substitution group headed by e, excluding e,
// in declaration order.
func (e *Element) Substitutes() []*Element { return e.members }

// Attribute is an attribute declaration.
type Attribute struct {
	Name QName
	Type *Type
}

// AttributeUse is the use of an attribute in a complex type.
type AttributeUse struct {
	Attribute *Attribute
	Required  bool
}

// WildcardKind selects the namespace
// constraint of a wildcard.
type WildcardKind uint8

const (
	// WildcardAny is ##any.
	WildcardAny WildcardKind = iota
	// WildcardOther is ##other, i.e. any
	// namespace except the target namespace
	// and the absent namespace.
	WildcardOther
	// WildcardList allows the listed namespaces.
	WildcardList
)

// Wildcard is an element or attribute wildcard.
type Wildcard struct {
	Kind WildcardKind
	// Namespaces holds the target namespace
	// for WildcardOther and the allowed
	// namespaces for WildcardList.
	Namespaces []string
}

// Allows returns whether the wildcard
// admits names in namespace ns.
func (w *Wildcard) Allows(ns string) bool {
	switch w.Kind {
	case WildcardAny:
		return true
	case WildcardOther:
		if ns == "" {
			return false
		}
		for _, x := range w.Namespaces {
			if x == ns {
				return false
			}
		}
		return true
	default:
		for _, x := range w.Namespaces {
			if x == ns {
				return true
			}
		}
		return false
	}
}

// ParticleKind is the kind of a Particle.
type ParticleKind uint8

const (
	ParticleElement ParticleKind = iota
	ParticleWildcard
	ParticleSequence
	ParticleChoice
	ParticleAll
)

// Unbounded is the MaxOccurs of an unbounded particle.
const Unbounded = -1

// Particle is a term with occurrence constraints.
type Particle struct {
	Kind      ParticleKind
	MinOccurs int
	MaxOccurs int
	Element   *Element
	Wildcard  *Wildcard
	Children  []*Particle
}
