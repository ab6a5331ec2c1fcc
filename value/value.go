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

// Package value implements the EXI datatype
// representations used for attribute values
// and character content.
//
// A Codec is selected once per simple type with
// For. During a session each value goes through
// Parse, which fills a Scribble with the typed
// form, and then Write. A failed Parse means the
// value is not in the lexical space of the type
// and must be coded with an untyped production.
package value

import (
	"math/big"
	"strings"

	"github.com/SnellerInc/exi/bitio"
	"github.com/SnellerInc/exi/date"
	"github.com/SnellerInc/exi/schema"
	"github.com/SnellerInc/exi/stringtable"
	"github.com/SnellerInc/exi/utf8"
)

// Scribble is per-value scratch space shared by
// the Parse and Write steps of a Codec. Table and
// Name are set by the caller before use; the
// remaining fields belong to the codec.
type Scribble struct {
	// Table is the session string table.
	Table *stringtable.Table
	// Name owns the value in the local
	// value partition.
	Name schema.QName

	text  string
	b     bool
	neg   bool
	i     int64
	big   *big.Int
	frac  *big.Int
	exp   int64
	cal   date.Value
	bin   []byte
	items []Scribble
}

// Reset prepares s for a value owned by name.
func (s *Scribble) Reset(t *stringtable.Table, name schema.QName) {
	items := s.items[:0]
	*s = Scribble{Table: t, Name: name, items: items}
}

func (s *Scribble) bigInt() *big.Int {
	if s.big == nil {
		s.big = new(big.Int)
	}
	return s.big
}

func (s *Scribble) fracInt() *big.Int {
	if s.frac == nil {
		s.frac = new(big.Int)
	}
	return s.frac
}

// Codec codes the values of one simple type.
type Codec interface {
	// Family returns the datatype family of
	// the values coded by the codec.
	Family() schema.Family
	// Variety returns the variety of the type.
	Variety() schema.Variety
	// Parse converts a lexical value into
	// its typed form. It returns false if
	// lexical is not valid for the codec.
	Parse(lexical string, s *Scribble) bool
	// Write codes the value held by s.
	Write(w *bitio.Writer, s *Scribble) error
	// Read decodes a value and returns
	// its canonical lexical form.
	Read(r *bitio.Reader, s *Scribble) (string, error)
}

// Untyped codes every value as a string
// through the value partitions.
var Untyped Codec = stringCodec{family: schema.FamilyString}

// BoundedRange is the largest number of values
// an integer type may span and still be coded
// as an n-bit unsigned integer.
const BoundedRange = 4096

// For returns the codec for simple type t.
// When lexical is set, every value is coded as
// a string using the restricted character set
// of the type, if any. A nil t yields Untyped.
func For(t *schema.Type, lexical bool) Codec {
	if t == nil {
		return Untyped
	}
	if t.Variety == schema.Union {
		return stringCodec{family: schema.FamilyString, variety: schema.Union}
	}
	if lexical {
		fam := t.Family
		if t.Variety == schema.List && t.Item != nil {
			fam = t.Item.Family
		}
		return stringCodec{family: t.Family, variety: t.Variety, alpha: charsetFor(fam)}
	}
	if t.Variety == schema.List {
		return &listCodec{item: For(t.Item, false)}
	}
	if len(t.Enumeration) > 0 {
		return newEnumCodec(t)
	}
	return atomic(t)
}

func atomic(t *schema.Type) Codec {
	switch t.Family {
	case schema.FamilyBoolean:
		return booleanCodec{}
	case schema.FamilyDecimal:
		return decimalCodec{}
	case schema.FamilyFloat:
		return floatCodec{}
	case schema.FamilyInteger:
		if t.MinInclusive != nil && t.MaxInclusive != nil {
			span := uint64(*t.MaxInclusive - *t.MinInclusive)
			if span < BoundedRange {
				return &boundedCodec{min: *t.MinInclusive, max: *t.MaxInclusive}
			}
		}
		return integerCodec{unsigned: t.Unsigned}
	case schema.FamilyBase64Binary:
		return binaryCodec{}
	case schema.FamilyHexBinary:
		return binaryCodec{hex: true}
	}
	if t.Family.IsCalendar() {
		return calendarCodec{family: t.Family, kind: calendarKind(t.Family)}
	}
	return stringCodec{family: t.Family}
}

func trim(s string) string {
	return strings.TrimFunc(s, utf8.IsSpace)
}
