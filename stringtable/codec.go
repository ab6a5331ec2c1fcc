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

package stringtable

import (
	"github.com/SnellerInc/exi/bitio"
	"github.com/SnellerInc/exi/exierr"
	"github.com/SnellerInc/exi/ints"
	"github.com/SnellerInc/exi/schema"
	"github.com/SnellerInc/exi/utf8"
)

// Alphabet codes the characters of a
// literal value. A nil Alphabet codes each
// character as an Unsigned Integer.
type Alphabet interface {
	WriteChars(w *bitio.Writer, s string)
	ReadChars(r *bitio.Reader, n int) (string, error)
}

// WriteURI codes uri and returns its identifier.
// A hit is coded as the n-bit value id+1 and a
// miss as 0 followed by the literal.
func (t *Table) WriteURI(w *bitio.Writer, uri string) int {
	n := ints.Width(len(t.uris) + 1)
	if id, ok := t.uriIndex[uri]; ok {
		w.WriteBits(uint64(id+1), n)
		return id
	}
	w.WriteBits(0, n)
	w.WriteString(uri)
	t.addURI(uri)
	return t.uriIndex[uri]
}

// ReadURI decodes a URI and returns it with its identifier.
func (t *Table) ReadURI(r *bitio.Reader) (string, int, error) {
	v, err := r.ReadBits(ints.Width(len(t.uris) + 1))
	if err != nil {
		return "", 0, err
	}
	if v > 0 {
		id := int(v - 1)
		if id >= len(t.uris) {
			return "", 0, exierr.New(exierr.Malformed, "uri id %d out of range", id)
		}
		return t.uris[id].uri, id, nil
	}
	uri, err := r.ReadString()
	if err != nil {
		return "", 0, err
	}
	t.addURI(uri)
	return uri, t.uriIndex[uri], nil
}

// WriteLocal codes a local name in the partition
// of URI id. A hit is coded as Unsigned Integer 0
// followed by the n-bit id, and a miss as the
// length plus one followed by the characters.
func (t *Table) WriteLocal(w *bitio.Writer, uriID int, local string) {
	p := &t.uris[uriID].locals
	if id, ok := p.symbolize(local); ok {
		w.WriteUint(0)
		w.WriteBits(uint64(id), ints.Width(p.len()))
		return
	}
	w.WriteUint(uint64(utf8.ValidStringLength(local)) + 1)
	w.WriteChars(local)
	p.intern(local)
}

// ReadLocal decodes a local name in the partition of URI id.
func (t *Table) ReadLocal(r *bitio.Reader, uriID int) (string, error) {
	p := &t.uris[uriID].locals
	n, err := r.ReadUint()
	if err != nil {
		return "", err
	}
	if n == 0 {
		id, err := r.ReadBits(ints.Width(p.len()))
		if err != nil {
			return "", err
		}
		s, ok := p.lookup(int(id))
		if !ok {
			return "", exierr.New(exierr.Malformed, "local name id %d out of range", id)
		}
		return s, nil
	}
	s, err := r.ReadChars(int(n - 1))
	if err != nil {
		return "", err
	}
	p.intern(s)
	return s, nil
}

// WriteQName codes a URI and local name.
func (t *Table) WriteQName(w *bitio.Writer, q schema.QName) int {
	id := t.WriteURI(w, q.Space)
	t.WriteLocal(w, id, q.Local)
	return id
}

// ReadQName decodes a URI and local name.
func (t *Table) ReadQName(r *bitio.Reader) (schema.QName, int, error) {
	uri, id, err := t.ReadURI(r)
	if err != nil {
		return schema.QName{}, 0, err
	}
	local, err := t.ReadLocal(r, id)
	if err != nil {
		return schema.QName{}, 0, err
	}
	return schema.QName{Space: uri, Local: local}, id, nil
}

// WritePrefix codes the prefix of a namespace
// declaration in the partition of URI id. A hit
// is coded as the n-bit value id+1 and a miss as
// 0 followed by the literal.
func (t *Table) WritePrefix(w *bitio.Writer, uriID int, prefix string) {
	p := &t.uris[uriID].prefixes
	n := ints.Width(p.len() + 1)
	if id, ok := p.symbolize(prefix); ok {
		w.WriteBits(uint64(id+1), n)
		return
	}
	w.WriteBits(0, n)
	w.WriteString(prefix)
	p.intern(prefix)
}

// ReadPrefix decodes the prefix of a namespace declaration.
func (t *Table) ReadPrefix(r *bitio.Reader, uriID int) (string, error) {
	p := &t.uris[uriID].prefixes
	v, err := r.ReadBits(ints.Width(p.len() + 1))
	if err != nil {
		return "", err
	}
	if v > 0 {
		s, ok := p.lookup(int(v - 1))
		if !ok {
			return "", exierr.New(exierr.Malformed, "prefix id %d out of range", v-1)
		}
		return s, nil
	}
	s, err := r.ReadString()
	if err != nil {
		return "", err
	}
	p.intern(s)
	return s, nil
}

// WriteQNamePrefix codes the prefix of a qualified
// name as an n-bit index into the prefixes already
// recorded for URI id. The prefix must be present.
func (t *Table) WriteQNamePrefix(w *bitio.Writer, uriID int, prefix string) error {
	p := &t.uris[uriID].prefixes
	id, ok := p.symbolize(prefix)
	if !ok {
		return exierr.Binding(exierr.PrefixNotBound, prefix, t.uris[uriID].uri, "")
	}
	w.WriteBits(uint64(id), ints.Width(p.len()))
	return nil
}

// ReadQNamePrefix decodes the prefix of a qualified name.
func (t *Table) ReadQNamePrefix(r *bitio.Reader, uriID int) (string, error) {
	p := &t.uris[uriID].prefixes
	v, err := r.ReadBits(ints.Width(p.len()))
	if err != nil {
		return "", err
	}
	if p.len() == 0 {
		return "", nil
	}
	s, ok := p.lookup(int(v))
	if !ok {
		return "", exierr.New(exierr.Malformed, "prefix id %d out of range", v)
	}
	return s, nil
}

// WriteValue codes a value owned by name.
// A hit in the local partition of name is coded
// as Unsigned Integer 0 followed by the n-bit id,
// a hit in the global partition as 1 followed by
// the n-bit id, and a miss as the length plus two
// followed by the characters.
func (t *Table) WriteValue(w *bitio.Writer, name schema.QName, s string, a Alphabet) {
	if lp := t.local[name]; lp != nil {
		if id, ok := lp.symbolize(s); ok {
			w.WriteUint(0)
			w.WriteBits(uint64(id), ints.Width(lp.len()))
			return
		}
	}
	if id, ok := t.global.symbolize(s); ok {
		w.WriteUint(1)
		w.WriteBits(uint64(id), ints.Width(t.global.len()))
		return
	}
	n := utf8.ValidStringLength(s)
	w.WriteUint(uint64(n) + 2)
	if a == nil {
		w.WriteChars(s)
	} else {
		a.WriteChars(w, s)
	}
	t.addValue(name, s, n)
}

// ReadValue decodes a value owned by name.
func (t *Table) ReadValue(r *bitio.Reader, name schema.QName, a Alphabet) (string, error) {
	n, err := r.ReadUint()
	if err != nil {
		return "", err
	}
	switch n {
	case 0:
		lp := t.local[name]
		if lp == nil {
			return "", exierr.New(exierr.Malformed, "local value hit in empty partition of %s", name)
		}
		id, err := r.ReadBits(ints.Width(lp.len()))
		if err != nil {
			return "", err
		}
		s, ok := lp.lookup(int(id))
		if !ok {
			return "", exierr.New(exierr.Malformed, "local value id %d out of range", id)
		}
		return s, nil
	case 1:
		id, err := r.ReadBits(ints.Width(t.global.len()))
		if err != nil {
			return "", err
		}
		s, ok := t.global.lookup(int(id))
		if !ok {
			return "", exierr.New(exierr.Malformed, "global value id %d out of range", id)
		}
		return s, nil
	}
	var s string
	if a == nil {
		s, err = r.ReadChars(int(n - 2))
	} else {
		s, err = a.ReadChars(r, int(n-2))
	}
	if err != nil {
		return "", err
	}
	t.addValue(name, s, int(n-2))
	return s, nil
}
