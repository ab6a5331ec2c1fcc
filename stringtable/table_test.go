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
	"errors"
	"testing"

	"github.com/SnellerInc/exi/bitio"
	"github.com/SnellerInc/exi/exierr"
	"github.com/SnellerInc/exi/schema"
)

func TestInitialEntries(t *testing.T) {
	tab := New(Config{MaxLength: Unbounded, Capacity: Unbounded})
	if tab.URIs() != 3 {
		t.Fatalf("schema-less table has %d URIs", tab.URIs())
	}
	if tab.Locals(schema.XMLNamespace) != 4 || tab.Locals(schema.XSINamespace) != 2 {
		t.Fatal("wrong initial local names")
	}
	if p, ok := tab.Prefix(schema.XSINamespace); !ok || p != "xsi" {
		t.Fatalf("xsi prefix %q %v", p, ok)
	}

	b := schema.NewBuilder()
	b.AddElement(&schema.Element{Name: schema.QName{Space: "urn:b", Local: "zeta"}, Type: b.Builtin("string")})
	b.AddElement(&schema.Element{Name: schema.QName{Space: "urn:a", Local: "alpha"}, Type: b.Builtin("string")})
	c := b.MustBuild()
	tab = New(Config{Schema: c, MaxLength: Unbounded, Capacity: Unbounded})
	if tab.URIs() != 6 {
		t.Fatalf("schema-informed table has %d URIs", tab.URIs())
	}
	if tab.URI(3) != schema.XSDNamespace || tab.URI(4) != "urn:a" || tab.URI(5) != "urn:b" {
		t.Fatalf("URIs %q %q %q", tab.URI(3), tab.URI(4), tab.URI(5))
	}
	if tab.Locals(schema.XSDNamespace) != 46 {
		t.Fatalf("xsd partition has %d names", tab.Locals(schema.XSDNamespace))
	}
}

// names of types and global attributes are
// known even when no element declaration uses them
func TestSchemaNames(t *testing.T) {
	b := schema.NewBuilder()
	str := b.Builtin("string")
	b.AddType(&schema.Type{
		Name:    schema.QName{Local: "Sub"},
		Serial:  -1,
		Content: schema.ContentEmpty,
		Attributes: []*schema.AttributeUse{
			{Attribute: &schema.Attribute{Name: schema.QName{Local: "own"}, Type: str}},
		},
	})
	b.AddAttribute(&schema.Attribute{Name: schema.QName{Local: "lonely"}, Type: str})
	b.AddElement(&schema.Element{Name: schema.QName{Local: "root"}, Type: str})
	tab := New(Config{Schema: b.MustBuild(), MaxLength: Unbounded, Capacity: Unbounded})
	if n := tab.Locals(""); n != 4 {
		t.Fatalf("empty namespace has %d local names, want 4", n)
	}
}

// repeated qnames and values shrink to identifiers
func TestGrowth(t *testing.T) {
	for _, aligned := range []bool{false, true} {
		enc := New(Config{MaxLength: Unbounded, Capacity: Unbounded})
		w := bitio.NewWriter(aligned)
		q := schema.QName{Space: "urn:x", Local: "item"}

		start := w.Bits()
		enc.WriteQName(w, q)
		enc.WriteValue(w, q, "some value", nil)
		first := w.Bits() - start

		start = w.Bits()
		enc.WriteQName(w, q)
		enc.WriteValue(w, q, "some value", nil)
		second := w.Bits() - start

		if second >= first {
			t.Fatalf("aligned=%v: second occurrence %d bits, first %d", aligned, second, first)
		}
		other := schema.QName{Local: "other"}
		enc.WriteValue(w, other, "some value", nil)

		dec := New(Config{MaxLength: Unbounded, Capacity: Unbounded})
		r := bitio.NewBytesReader(w.Bytes(), aligned)
		for i := 0; i < 2; i++ {
			got, _, err := dec.ReadQName(r)
			if err != nil {
				t.Fatal(err)
			}
			if got != q {
				t.Fatalf("qname %v", got)
			}
			v, err := dec.ReadValue(r, q, nil)
			if err != nil {
				t.Fatal(err)
			}
			if v != "some value" {
				t.Fatalf("value %q", v)
			}
		}
		// global hit from a different owner
		v, err := dec.ReadValue(r, other, nil)
		if err != nil || v != "some value" {
			t.Fatalf("global hit %q %v", v, err)
		}
	}
}

func TestValueLimits(t *testing.T) {
	testcases := []struct {
		maxLength, capacity int
		values              []string
		stored              int
	}{
		{Unbounded, Unbounded, []string{"a", "bb", "ccc"}, 3},
		{0, Unbounded, []string{"a", "bb"}, 0},
		{2, Unbounded, []string{"a", "bb", "ccc"}, 2},
		{Unbounded, 2, []string{"a", "bb", "ccc", "dddd"}, 2},
		{Unbounded, Unbounded, []string{""}, 0},
	}
	for i, tc := range testcases {
		tab := New(Config{MaxLength: tc.maxLength, Capacity: tc.capacity})
		w := bitio.NewWriter(false)
		for _, v := range tc.values {
			tab.WriteValue(w, schema.QName{Local: "x"}, v, nil)
		}
		if tab.Values() != tc.stored {
			t.Errorf("case %d: %d values stored, want %d", i, tab.Values(), tc.stored)
		}
	}
}

func TestPrefixes(t *testing.T) {
	enc := New(Config{MaxLength: Unbounded, Capacity: Unbounded})
	w := bitio.NewWriter(false)
	id := enc.WriteURI(w, "urn:p")
	enc.WritePrefix(w, id, "p")
	if err := enc.WriteQNamePrefix(w, id, "p"); err != nil {
		t.Fatal(err)
	}
	if err := enc.WriteQNamePrefix(w, id, "q"); !errors.Is(err, exierr.ErrPrefixNotBound) {
		t.Fatalf("got %v", err)
	}

	dec := New(Config{MaxLength: Unbounded, Capacity: Unbounded})
	r := bitio.NewBytesReader(w.Bytes(), false)
	uri, did, err := dec.ReadURI(r)
	if err != nil || uri != "urn:p" || did != id {
		t.Fatalf("uri %q %d %v", uri, did, err)
	}
	if p, err := dec.ReadPrefix(r, did); err != nil || p != "p" {
		t.Fatalf("prefix %q %v", p, err)
	}
	if p, err := dec.ReadQNamePrefix(r, did); err != nil || p != "p" {
		t.Fatalf("qname prefix %q %v", p, err)
	}
}

func TestValueWrapAround(t *testing.T) {
	x, y := schema.QName{Local: "x"}, schema.QName{Local: "y"}
	writes := []struct {
		owner schema.QName
		value string
	}{
		{x, "a"}, {x, "b"},
		// full: c takes the global id of a
		{y, "c"},
		// a is gone from both partitions
		{x, "a"},
		{x, "b"}, {y, "c"},
	}
	enc := New(Config{MaxLength: Unbounded, Capacity: 2})
	w := bitio.NewWriter(false)
	for i, wr := range writes {
		enc.WriteValue(w, wr.owner, wr.value, nil)
		if i == 2 {
			if _, ok := enc.global.symbolize("a"); ok {
				t.Fatal("a still in the global partition")
			}
			if _, ok := enc.local[x].symbolize("a"); ok {
				t.Fatal("a still in its local partition")
			}
			if id, ok := enc.global.symbolize("c"); !ok || id != 0 {
				t.Fatalf("c has global id %d %v, want 0", id, ok)
			}
		}
	}
	if enc.Values() != 2 {
		t.Fatalf("%d values, capacity 2", enc.Values())
	}
	// the ids keep rotating through the partition
	for id, want := range []string{"b", "c"} {
		if got, _ := enc.global.lookup(id); got != want {
			t.Fatalf("global id %d holds %q, want %q", id, got, want)
		}
	}
	if _, ok := enc.global.symbolize("a"); ok {
		t.Fatal("a survived its replacement")
	}

	dec := New(Config{MaxLength: Unbounded, Capacity: 2})
	r := bitio.NewBytesReader(w.Bytes(), false)
	for i, wr := range writes {
		v, err := dec.ReadValue(r, wr.owner, nil)
		if err != nil {
			t.Fatalf("value %d: %v", i, err)
		}
		if v != wr.value {
			t.Fatalf("value %d: got %q, want %q", i, v, wr.value)
		}
	}
}
