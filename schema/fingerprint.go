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
	"encoding/binary"
	"hash"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type fphash struct {
	h     hash.Hash
	types map[*Type]int
	elems map[*Element]int
	tmp   [binary.MaxVarintLen64]byte
}

func (f *fphash) int(v int64) {
	n := binary.PutVarint(f.tmp[:], v)
	f.h.Write(f.tmp[:n])
}

func (f *fphash) str(s string) {
	f.int(int64(len(s)))
	f.h.Write([]byte(s))
}

func (f *fphash) name(q QName) {
	f.str(q.Space)
	f.str(q.Local)
}

func (f *fphash) ref(t *Type) {
	if t == nil {
		f.int(-1)
		return
	}
	f.int(int64(f.types[t]))
}

func (f *fphash) optint(p *int64) {
	if p == nil {
		f.int(0)
		return
	}
	f.int(1)
	f.int(*p)
}

func (f *fphash) wildcard(w *Wildcard) {
	if w == nil {
		f.int(-1)
		return
	}
	f.int(int64(w.Kind))
	f.int(int64(len(w.Namespaces)))
	for _, ns := range w.Namespaces {
		f.str(ns)
	}
}

func (f *fphash) particle(p *Particle) {
	if p == nil {
		f.int(-1)
		return
	}
	f.int(int64(p.Kind))
	f.int(int64(p.MinOccurs))
	f.int(int64(p.MaxOccurs))
	switch p.Kind {
	case ParticleElement:
		f.int(int64(f.elems[p.Element]))
	case ParticleWildcard:
		f.wildcard(p.Wildcard)
	default:
		f.int(int64(len(p.Children)))
		for _, c := range p.Children {
			f.particle(c)
		}
	}
}

func (f *fphash) typ(t *Type) {
	f.name(t.Name)
	f.ref(t.Base)
	if t.Simple {
		f.int(int64(t.Variety))
		f.int(int64(t.Family))
		f.ref(t.Item)
		f.int(int64(len(t.Members)))
		for _, m := range t.Members {
			f.ref(m)
		}
		f.int(int64(len(t.Enumeration)))
		for _, e := range t.Enumeration {
			f.str(e)
		}
		f.optint(t.MinInclusive)
		f.optint(t.MaxInclusive)
		return
	}
	f.int(int64(t.Content))
	f.ref(t.SimpleContent)
	f.int(int64(len(t.Attributes)))
	for _, u := range t.Attributes {
		f.name(u.Attribute.Name)
		f.ref(u.Attribute.Type)
		if u.Required {
			f.int(1)
		} else {
			f.int(0)
		}
	}
	f.wildcard(t.AttributeWildcard)
	f.particle(t.Particle)
}

// fingerprint hashes a canonical rendering of
// the corpus. Types and elements are referenced
// by their position in declaration order so
// recursive definitions hash finitely.
func fingerprint(c *Corpus, types []*Type) [32]byte {
	h, _ := blake2b.New256(nil)
	f := &fphash{
		h:     h,
		types: make(map[*Type]int, len(types)),
		elems: make(map[*Element]int, len(c.decls)),
	}
	for i, t := range types {
		f.types[t] = i
	}
	for i, e := range c.decls {
		f.elems[e] = i
	}
	f.int(int64(len(types)))
	for _, t := range types {
		f.typ(t)
	}
	f.int(int64(len(c.decls)))
	for _, e := range c.decls {
		f.name(e.Name)
		f.ref(e.Type)
		flags := int64(0)
		if e.Nillable {
			flags |= 1
		}
		if e.Abstract {
			flags |= 2
		}
		if e.Global {
			flags |= 4
		}
		f.int(flags)
		if e.SubstitutionGroup != nil {
			f.int(int64(f.elems[e.SubstitutionGroup]))
		} else {
			f.int(-1)
		}
	}
	attrs := maps.Keys(c.attributes)
	slices.SortFunc(attrs, func(a, b QName) bool { return a.Less(b) })
	f.int(int64(len(attrs)))
	for _, q := range attrs {
		f.name(q)
		f.ref(c.attributes[q].Type)
	}
	var out [32]byte
	h.Sum(out[:0])
	return out
}
