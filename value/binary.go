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
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/SnellerInc/exi/bitio"
	"github.com/SnellerInc/exi/exierr"
	"github.com/SnellerInc/exi/ints"
	"github.com/SnellerInc/exi/schema"
	"github.com/SnellerInc/exi/utf8"
)

type binaryCodec struct {
	hex bool
}

func (c binaryCodec) Family() schema.Family {
	if c.hex {
		return schema.FamilyHexBinary
	}
	return schema.FamilyBase64Binary
}

func (binaryCodec) Variety() schema.Variety { return schema.Atomic }

func (c binaryCodec) Parse(lexical string, s *Scribble) bool {
	str := strings.Join(utf8.Fields(lexical), "")
	var err error
	if c.hex {
		s.bin, err = hex.DecodeString(str)
	} else {
		s.bin, err = base64.StdEncoding.DecodeString(str)
	}
	return err == nil
}

func (binaryCodec) Write(w *bitio.Writer, s *Scribble) error {
	w.WriteBinary(s.bin)
	return nil
}

func (c binaryCodec) Read(r *bitio.Reader, s *Scribble) (string, error) {
	b, err := r.ReadBinary()
	if err != nil {
		return "", err
	}
	if c.hex {
		return strings.ToUpper(hex.EncodeToString(b)), nil
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// enumCodec codes a value of an enumerated
// type as the n-bit index of the value in
// the enumeration.
type enumCodec struct {
	family schema.Family
	values []string
	base   Codec
	// canon maps the canonical form of each
	// value to its index
	canon map[string]int
}

func newEnumCodec(t *schema.Type) *enumCodec {
	c := &enumCodec{family: t.Family, values: t.Enumeration, canon: make(map[string]int)}
	base := *t
	base.Enumeration = nil
	c.base = atomic(&base)
	for i, v := range c.values {
		if k, ok := c.key(v); ok {
			if _, dup := c.canon[k]; !dup {
				c.canon[k] = i
			}
		}
	}
	return c
}

// key returns a representation of lexical
// that is equal for equal values.
func (c *enumCodec) key(lexical string) (string, bool) {
	if c.family == schema.FamilyString || c.family == schema.FamilyQName {
		return lexical, true
	}
	var s Scribble
	if !c.base.Parse(lexical, &s) {
		return "", false
	}
	w := bitio.NewWriter(true)
	if err := c.base.Write(w, &s); err != nil {
		return "", false
	}
	return string(w.Bytes()), true
}

func (c *enumCodec) Family() schema.Family { return c.family }
func (*enumCodec) Variety() schema.Variety { return schema.Atomic }

func (c *enumCodec) Parse(lexical string, s *Scribble) bool {
	k, ok := c.key(lexical)
	if !ok {
		return false
	}
	i, ok := c.canon[k]
	s.i = int64(i)
	return ok
}

func (c *enumCodec) Write(w *bitio.Writer, s *Scribble) error {
	if s.i < 0 || int(s.i) >= len(c.values) {
		return exierr.New(exierr.InvalidValue, "enumeration index %d out of range", s.i)
	}
	w.WriteBits(uint64(s.i), ints.Width(len(c.values)))
	return nil
}

func (c *enumCodec) Read(r *bitio.Reader, s *Scribble) (string, error) {
	v, err := r.ReadBits(ints.Width(len(c.values)))
	if err != nil {
		return "", err
	}
	if v >= uint64(len(c.values)) {
		return "", exierr.New(exierr.Malformed, "enumeration index %d out of range", v)
	}
	return c.values[v], nil
}

// listCodec codes a list as its item count
// followed by each item.
type listCodec struct {
	item Codec
}

func (c *listCodec) Family() schema.Family { return schema.FamilyList }
func (*listCodec) Variety() schema.Variety { return schema.List }

func (c *listCodec) Parse(lexical string, s *Scribble) bool {
	fields := utf8.Fields(lexical)
	items := s.items[:0]
	for _, f := range fields {
		items = append(items, Scribble{Table: s.Table, Name: s.Name})
		if !c.item.Parse(f, &items[len(items)-1]) {
			return false
		}
	}
	s.items = items
	return true
}

func (c *listCodec) Write(w *bitio.Writer, s *Scribble) error {
	w.WriteUint(uint64(len(s.items)))
	for i := range s.items {
		if err := c.item.Write(w, &s.items[i]); err != nil {
			return err
		}
	}
	return nil
}

func (c *listCodec) Read(r *bitio.Reader, s *Scribble) (string, error) {
	n, err := r.ReadUint()
	if err != nil {
		return "", err
	}
	if n > 1<<24 {
		return "", exierr.New(exierr.Malformed, "list length %d too large", n)
	}
	var b strings.Builder
	item := Scribble{Table: s.Table, Name: s.Name}
	for i := uint64(0); i < n; i++ {
		v, err := c.item.Read(r, &item)
		if err != nil {
			return "", err
		}
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(v)
	}
	return b.String(), nil
}
