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

package value

import (
	"strings"

	"github.com/SnellerInc/exi/bitio"
	"github.com/SnellerInc/exi/exierr"
	"github.com/SnellerInc/exi/ints"
	"github.com/SnellerInc/exi/schema"
	"github.com/SnellerInc/exi/stringtable"
)

type stringCodec struct {
	family  schema.Family
	variety schema.Variety
	alpha   *Charset
}

func (c stringCodec) Family() schema.Family   { return c.family }
func (c stringCodec) Variety() schema.Variety { return c.variety }

func (c stringCodec) Parse(lexical string, s *Scribble) bool {
	s.text = lexical
	return true
}

func (c stringCodec) alphabet() stringtable.Alphabet {
	if c.alpha == nil {
		return nil
	}
	return c.alpha
}

func (c stringCodec) Write(w *bitio.Writer, s *Scribble) error {
	s.Table.WriteValue(w, s.Name, s.text, c.alphabet())
	return nil
}

func (c stringCodec) Read(r *bitio.Reader, s *Scribble) (string, error) {
	return s.Table.ReadValue(r, s.Name, c.alphabet())
}

// Charset is an EXI restricted character set.
// Characters in the set are coded as n-bit
// indexes; any other character is coded as the
// escape index followed by its code point.
type Charset struct {
	chars []rune
	index [128]int8
	width int
}

// NewCharset constructs a Charset from chars,
// which must be ASCII and sorted by code point.
func NewCharset(chars string) *Charset {
	c := &Charset{chars: []rune(chars)}
	for i := range c.index {
		c.index[i] = -1
	}
	for i, r := range c.chars {
		c.index[r] = int8(i)
	}
	c.width = ints.Width(len(c.chars) + 1)
	return c
}

// Len returns the number of characters in the set.
func (c *Charset) Len() int { return len(c.chars) }

func (c *Charset) lookup(r rune) (int, bool) {
	if r < 0 || r >= 128 || c.index[r] < 0 {
		return 0, false
	}
	return int(c.index[r]), true
}

// WriteChars implements stringtable.Alphabet.
func (c *Charset) WriteChars(w *bitio.Writer, s string) {
	escape := uint64(len(c.chars))
	for _, r := range s {
		if i, ok := c.lookup(r); ok {
			w.WriteBits(uint64(i), c.width)
			continue
		}
		w.WriteBits(escape, c.width)
		w.WriteUint(uint64(r))
	}
}

// ReadChars implements stringtable.Alphabet.
func (c *Charset) ReadChars(r *bitio.Reader, n int) (string, error) {
	var b strings.Builder
	for i := 0; i < n; i++ {
		v, err := r.ReadBits(c.width)
		if err != nil {
			return "", err
		}
		switch {
		case v < uint64(len(c.chars)):
			b.WriteRune(c.chars[v])
		case v == uint64(len(c.chars)):
			cp, err := r.ReadUint()
			if err != nil {
				return "", err
			}
			if cp > 0x10ffff {
				return "", exierr.New(exierr.Malformed, "invalid code point %#x", cp)
			}
			b.WriteRune(rune(cp))
		default:
			return "", exierr.New(exierr.CodeOutOfRange, "character index %d out of range", v)
		}
	}
	return b.String(), nil
}

const ws = "\t\n\r "

// restricted character sets, sorted by code point
var (
	Base64Chars   = NewCharset(ws + "+/0123456789=ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz")
	BooleanChars  = NewCharset(ws + "01aeflrstu")
	DateTimeChars = NewCharset(ws + "+-.0123456789:TZ")
	DecimalChars  = NewCharset(ws + "+-.0123456789")
	DoubleChars   = NewCharset(ws + "+-.0123456789EFINae")
	HexChars      = NewCharset(ws + "0123456789ABCDEFabcdef")
	IntegerChars  = NewCharset(ws + "+-0123456789")
)

func charsetFor(f schema.Family) *Charset {
	switch f {
	case schema.FamilyBase64Binary:
		return Base64Chars
	case schema.FamilyBoolean:
		return BooleanChars
	case schema.FamilyDecimal:
		return DecimalChars
	case schema.FamilyFloat:
		return DoubleChars
	case schema.FamilyHexBinary:
		return HexChars
	case schema.FamilyInteger:
		return IntegerChars
	}
	if f.IsCalendar() {
		return DateTimeChars
	}
	return nil
}
