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
	"golang.org/x/exp/slices"
)

// BuiltinNames lists the local names of the XML Schema
// built-in types in the order of the initial EXI string
// table partition for the XSD namespace.
var BuiltinNames = []string{
	"ENTITIES", "ENTITY", "ID", "IDREF", "IDREFS",
	"NCName", "NMTOKEN", "NMTOKENS", "NOTATION", "Name",
	"QName", "anySimpleType", "anyType", "anyURI", "base64Binary",
	"boolean", "byte", "date", "dateTime", "decimal",
	"double", "duration", "float", "gDay", "gMonth",
	"gMonthDay", "gYear", "gYearMonth", "hexBinary", "int",
	"integer", "language", "long", "negativeInteger", "nonNegativeInteger",
	"nonPositiveInteger", "normalizedString", "positiveInteger", "short", "string",
	"time", "token", "unsignedByte", "unsignedInt", "unsignedLong",
	"unsignedShort",
}

type builtinDef struct {
	name, base string
	family     Family
	variety    Variety
	item       string
	unsigned   bool
	min, max   *int64
}

func i64(v int64) *int64 { return &v }

// builtinDefs is ordered so that every
// base precedes the types derived from it.
var builtinDefs = []builtinDef{
	{name: "anySimpleType", family: FamilyString},
	{name: "string", base: "anySimpleType", family: FamilyString},
	{name: "normalizedString", base: "string", family: FamilyString},
	{name: "token", base: "normalizedString", family: FamilyString},
	{name: "language", base: "token", family: FamilyString},
	{name: "Name", base: "token", family: FamilyString},
	{name: "NMTOKEN", base: "token", family: FamilyString},
	{name: "NCName", base: "Name", family: FamilyString},
	{name: "ID", base: "NCName", family: FamilyString},
	{name: "IDREF", base: "NCName", family: FamilyString},
	{name: "ENTITY", base: "NCName", family: FamilyString},
	{name: "NMTOKENS", base: "anySimpleType", family: FamilyList, variety: List, item: "NMTOKEN"},
	{name: "IDREFS", base: "anySimpleType", family: FamilyList, variety: List, item: "IDREF"},
	{name: "ENTITIES", base: "anySimpleType", family: FamilyList, variety: List, item: "ENTITY"},
	{name: "anyURI", base: "anySimpleType", family: FamilyString},
	{name: "QName", base: "anySimpleType", family: FamilyQName},
	{name: "NOTATION", base: "anySimpleType", family: FamilyQName},
	{name: "duration", base: "anySimpleType", family: FamilyString},
	{name: "boolean", base: "anySimpleType", family: FamilyBoolean},
	{name: "decimal", base: "anySimpleType", family: FamilyDecimal},
	{name: "float", base: "anySimpleType", family: FamilyFloat},
	{name: "double", base: "anySimpleType", family: FamilyFloat},
	{name: "integer", base: "decimal", family: FamilyInteger},
	{name: "nonPositiveInteger", base: "integer", family: FamilyInteger, max: i64(0)},
	{name: "negativeInteger", base: "nonPositiveInteger", family: FamilyInteger, max: i64(-1)},
	{name: "long", base: "integer", family: FamilyInteger},
	{name: "int", base: "long", family: FamilyInteger, min: i64(-1 << 31), max: i64(1<<31 - 1)},
	{name: "short", base: "int", family: FamilyInteger, min: i64(-1 << 15), max: i64(1<<15 - 1)},
	{name: "byte", base: "short", family: FamilyInteger, min: i64(-128), max: i64(127)},
	{name: "nonNegativeInteger", base: "integer", family: FamilyInteger, unsigned: true, min: i64(0)},
	{name: "positiveInteger", base: "nonNegativeInteger", family: FamilyInteger, unsigned: true, min: i64(1)},
	{name: "unsignedLong", base: "nonNegativeInteger", family: FamilyInteger, unsigned: true, min: i64(0)},
	{name: "unsignedInt", base: "unsignedLong", family: FamilyInteger, unsigned: true, min: i64(0), max: i64(1<<32 - 1)},
	{name: "unsignedShort", base: "unsignedInt", family: FamilyInteger, unsigned: true, min: i64(0), max: i64(1<<16 - 1)},
	{name: "unsignedByte", base: "unsignedShort", family: FamilyInteger, unsigned: true, min: i64(0), max: i64(255)},
	{name: "dateTime", base: "anySimpleType", family: FamilyDateTime},
	{name: "date", base: "anySimpleType", family: FamilyDate},
	{name: "time", base: "anySimpleType", family: FamilyTime},
	{name: "gYear", base: "anySimpleType", family: FamilyGYear},
	{name: "gYearMonth", base: "anySimpleType", family: FamilyGYearMonth},
	{name: "gMonth", base: "anySimpleType", family: FamilyGMonth},
	{name: "gMonthDay", base: "anySimpleType", family: FamilyGMonthDay},
	{name: "gDay", base: "anySimpleType", family: FamilyGDay},
	{name: "base64Binary", base: "anySimpleType", family: FamilyBase64Binary},
	{name: "hexBinary", base: "anySimpleType", family: FamilyHexBinary},
}

// newBuiltins returns a fresh set of built-in
// type definitions. Every corpus gets its own
// set so that derivation links never leak
// between corpora.
func newBuiltins() map[string]*Type {
	m := make(map[string]*Type, len(BuiltinNames))
	for _, d := range builtinDefs {
		t := &Type{
			Name:         QName{Space: XSDNamespace, Local: d.name},
			Serial:       slices.Index(BuiltinNames, d.name),
			Simple:       true,
			Variety:      d.variety,
			Family:       d.family,
			Unsigned:     d.unsigned,
			MinInclusive: d.min,
			MaxInclusive: d.max,
		}
		if d.base != "" {
			t.Base = m[d.base]
		}
		if d.item != "" {
			t.Item = m[d.item]
		}
		m[d.name] = t
	}
	ur := &Type{
		Name:              QName{Space: XSDNamespace, Local: "anyType"},
		Serial:            slices.Index(BuiltinNames, "anyType"),
		Content:           ContentMixed,
		AttributeWildcard: &Wildcard{Kind: WildcardAny},
		Particle: &Particle{
			Kind:      ParticleWildcard,
			MinOccurs: 0,
			MaxOccurs: Unbounded,
			Wildcard:  &Wildcard{Kind: WildcardAny},
		},
	}
	m["anyType"] = ur
	m["anySimpleType"].Base = ur
	return m
}
