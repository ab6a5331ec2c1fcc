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
	"errors"
	"testing"

	"github.com/SnellerInc/exi/exierr"

	"golang.org/x/exp/slices"
)

const library = `
id: library-1
targetNamespace: urn:library
namespaces:
  lib: urn:library
types:
  - name: Book
    content: elementOnly
    attributes:
      - {name: id, type: xsd:int, required: true}
      - {name: lang, type: xsd:language}
    particle:
      sequence:
        - element: {name: title, type: xsd:string}
        - element: {name: year, type: xsd:gYear}
          min: 0
        - element: {name: tag, type: lib:Tag}
          min: 0
          max: unbounded
  - name: Tag
    base: xsd:string
    enumeration: [fiction, poetry, history]
  - name: Rating
    base: xsd:int
    minInclusive: 1
    maxInclusive: 5
  - name: Novel
    base: lib:Book
    content: elementOnly
    particle:
      sequence:
        - element: {name: title, type: xsd:string}
elements:
  - {name: library, complexType: {particle: {sequence: [{element: {ref: lib:book}, min: 0, max: unbounded}]}}}
  - {name: book, type: lib:Book, nillable: true}
  - {name: rating, type: lib:Rating}
`

func TestDecode(t *testing.T) {
	c, err := Decode([]byte(library))
	if err != nil {
		t.Fatal(err)
	}
	if c.ID() != "library-1" {
		t.Errorf("ID() = %q", c.ID())
	}
	var names []string
	for _, e := range c.GlobalElements() {
		names = append(names, e.Name.Local)
	}
	if !slices.Equal(names, []string{"book", "library", "rating"}) {
		t.Errorf("global elements %v", names)
	}
	book := c.Type(QName{Space: "urn:library", Local: "Book"})
	if book == nil {
		t.Fatal("no Book type")
	}
	if !book.HasNamedSubtypes() {
		t.Error("Book should have named subtypes")
	}
	if len(book.Attributes) != 2 || !book.Attributes[0].Required {
		t.Errorf("attributes %+v", book.Attributes)
	}
	rating := c.Type(QName{Space: "urn:library", Local: "Rating"})
	if rating.Family != FamilyInteger || *rating.MinInclusive != 1 || !rating.Unsigned {
		t.Errorf("rating %+v", rating)
	}
	tag := c.Type(QName{Space: "urn:library", Local: "Tag"})
	if len(tag.Enumeration) != 3 || tag.Serial != -1 {
		t.Errorf("tag %+v", tag)
	}
	if !slices.Equal(c.Namespaces(), []string{"urn:library"}) {
		t.Errorf("namespaces %v", c.Namespaces())
	}
	// the local elements are unqualified
	found := false
	for _, e := range c.Declarations() {
		if e.Name == (QName{Local: "title"}) {
			found = true
		}
	}
	if !found {
		t.Error("local title declaration missing")
	}
}

func TestFingerprint(t *testing.T) {
	a, err := Decode([]byte(library))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Decode([]byte(library))
	if err != nil {
		t.Fatal(err)
	}
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatal("identical descriptions have different fingerprints")
	}
	c, err := Decode([]byte(library + "  - {name: extra, type: xsd:string}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if a.Fingerprint() == c.Fingerprint() {
		t.Fatal("different descriptions have equal fingerprints")
	}
}

func TestBuiltins(t *testing.T) {
	b := NewBuilder()
	c := b.MustBuild()
	if len(BuiltinNames) != 46 {
		t.Fatalf("%d built-in names", len(BuiltinNames))
	}
	if !slices.IsSorted(BuiltinNames) {
		t.Fatal("built-in names not sorted")
	}
	for i, n := range BuiltinNames {
		bt := c.Builtin(n)
		if bt == nil {
			t.Fatalf("missing built-in %s", n)
		}
		if bt.Serial != i {
			t.Errorf("%s: serial %d, want %d", n, bt.Serial, i)
		}
	}
	if !c.Builtin("unsignedByte").DerivesFrom(c.Builtin("integer")) {
		t.Error("unsignedByte should derive from integer")
	}
	if c.Builtin("NMTOKENS").Variety != List {
		t.Error("NMTOKENS should be a list")
	}
}

func TestBuildErrors(t *testing.T) {
	b := NewBuilder()
	b.AddElement(&Element{Name: QName{Local: "a"}})
	b.AddElement(&Element{Name: QName{Local: "a"}})
	if _, err := b.Build(); !errors.Is(err, exierr.ErrSchema) {
		t.Fatalf("duplicate element: got %v", err)
	}
	if _, err := Decode([]byte("types: [{name: T, base: nope:x}]")); !errors.Is(err, exierr.ErrSchema) {
		t.Fatalf("bad prefix: got %v", err)
	}
}

func TestHeaderSchema(t *testing.T) {
	c := HeaderSchema()
	h := c.Element(QName{Space: EXINamespace, Local: "header"})
	if h == nil {
		t.Fatal("no header element")
	}
	if len(h.Type.Particle.Children) != 3 {
		t.Fatalf("header has %d children", len(h.Type.Particle.Children))
	}
	if HeaderSchema() != c {
		t.Fatal("header schema not memoized")
	}
}
