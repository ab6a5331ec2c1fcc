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

package grammar

import (
	"fmt"

	"github.com/SnellerInc/exi/bitio"
	"github.com/SnellerInc/exi/exierr"
	"github.com/SnellerInc/exi/ints"
	"github.com/SnellerInc/exi/schema"
)

// Kind is the kind of an event type.
type Kind uint8

const (
	SD           Kind = iota // start document
	ED                       // end document
	SE                       // start element with a known qname
	SEns                     // start element in a namespace (uri:*)
	SEany                    // start element with any qname (*)
	EE                       // end element
	AT                       // attribute with a known qname
	ATinvalid                // declared attribute with an untyped value
	ATns                     // attribute in a namespace (uri:*)
	ATany                    // attribute with any qname (*)
	ATanyUntyped             // attribute with any qname and an untyped value
	ATxsiType                // xsi:type
	ATxsiNil                 // xsi:nil
	CH                       // characters
	CHmixed                  // untyped characters in mixed content
	CHundeclared             // untyped characters not declared by the schema
	CM                       // comment
	PI                       // processing instruction
	ER                       // entity reference
	NS                       // namespace declaration
	SC                       // self-contained element
	DT                       // document type
	numKinds
)

var kindNames = [numKinds]string{
	SD: "SD", ED: "ED",
	SE: "SE", SEns: "SE(uri:*)", SEany: "SE(*)",
	EE: "EE",
	AT: "AT", ATinvalid: "AT[untyped]", ATns: "AT(uri:*)", ATany: "AT(*)",
	ATanyUntyped: "AT(*)[untyped]", ATxsiType: "AT(xsi:type)", ATxsiNil: "AT(xsi:nil)",
	CH: "CH", CHmixed: "CH[mixed]", CHundeclared: "CH[untyped]",
	CM: "CM", PI: "PI", ER: "ER", NS: "NS", SC: "SC", DT: "DT",
}

func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// IsStartElement returns whether k starts an element.
func (k Kind) IsStartElement() bool { return k == SE || k == SEns || k == SEany }

// IsAttribute returns whether k is an attribute kind,
// including xsi:type and xsi:nil.
func (k Kind) IsAttribute() bool { return k >= AT && k <= ATxsiNil }

// IsCharacters returns whether k is a characters kind.
func (k Kind) IsCharacters() bool { return k == CH || k == CHmixed || k == CHundeclared }

// EventType is one admissible event of a lexicon.
// Event types belong to exactly one EventTypeList;
// Index and Code are only meaningful within it.
type EventType struct {
	Kind Kind
	// Name is set for SE, AT and ATinvalid.
	Name schema.QName
	// URI is set for SEns and ATns.
	URI string
	// Type is the datatype of the value of an
	// attribute or characters event. It is nil
	// for untyped values.
	Type *schema.Type

	Index int
	// Depth is the number of parts of Code.
	Depth int
	Code  [3]int
	width [3]int

	next  *State   // schema successor, or nil
	to    Phase    // built-in successor phase
	elem  *Grammar // grammar of a declared element
	decl  *schema.Element
	owner *EventTypeList
}

// Element returns the declaration of the element
// started by a declared SE event type, or nil.
func (e *EventType) Element() *schema.Element { return e.decl }

func (e *EventType) String() string {
	switch e.Kind {
	case SE, AT, ATinvalid:
		return fmt.Sprintf("%s(%s)", e.Kind, e.Name)
	case SEns, ATns:
		return fmt.Sprintf("%s(%s:*)", e.Kind.String()[:2], e.URI)
	}
	return e.Kind.String()
}

// node is a position in an event code tree:
// either a leaf event type or a group of nodes
// whose codes share a prefix.
type node struct {
	et   *EventType
	kids []node
}

func leaf(et EventType) node {
	return node{et: &et}
}

// group returns a group node, or false
// if there are no children.
func group(kids ...node) (node, bool) {
	return node{kids: kids}, len(kids) > 0
}

// EventTypeList is an immutable, ordered
// lexicon of the event types admissible at
// one grammar state, with their event codes.
type EventTypeList struct {
	items []EventType
	root  []node
	ee    *EventType
}

// newList assigns indexes and codes to the
// leaves of tree, in depth-first order.
func newList(tree []node) *EventTypeList {
	l := &EventTypeList{}
	var count func(ns []node) int
	count = func(ns []node) int {
		n := 0
		for i := range ns {
			if ns[i].et != nil {
				n++
			} else {
				n += count(ns[i].kids)
			}
		}
		return n
	}
	l.items = make([]EventType, 0, count(tree))
	var walk func(ns []node, depth int, prefix [3]int, widths [3]int) []node
	walk = func(ns []node, depth int, prefix [3]int, widths [3]int) []node {
		if depth >= 3 {
			panic("grammar: event code tree deeper than three levels")
		}
		out := make([]node, len(ns))
		widths[depth] = ints.Width(len(ns))
		for i := range ns {
			code := prefix
			code[depth] = i
			if ns[i].et == nil {
				out[i] = node{kids: walk(ns[i].kids, depth+1, code, widths)}
				continue
			}
			et := *ns[i].et
			et.Index = len(l.items)
			et.Depth = depth + 1
			et.Code = code
			et.width = widths
			et.owner = l
			l.items = append(l.items, et)
			out[i] = node{et: &l.items[len(l.items)-1]}
		}
		return out
	}
	l.root = walk(tree, 0, [3]int{}, [3]int{})
	for i := range l.items {
		if k := l.items[i].Kind; k == EE || k == ED {
			l.ee = &l.items[i]
			break
		}
	}
	return l
}

// Len returns the number of event types.
func (l *EventTypeList) Len() int { return len(l.items) }

// Item returns the event type with index i.
func (l *EventTypeList) Item(i int) *EventType { return &l.items[i] }

// EE returns the first EE or ED event type, or nil.
func (l *EventTypeList) EE() *EventType { return l.ee }

// Contains returns whether et belongs to l.
func (l *EventTypeList) Contains(et *EventType) bool {
	return et != nil && et.owner == l
}

// Match returns the first event type of the given
// kind whose Name (for SE, AT and ATinvalid) or URI
// (for SEns and ATns, taken from name.Space) matches,
// or nil if there is none.
func (l *EventTypeList) Match(kind Kind, name schema.QName) *EventType {
	for i := range l.items {
		et := &l.items[i]
		if et.Kind != kind {
			continue
		}
		switch kind {
		case SE, AT, ATinvalid:
			if et.Name != name {
				continue
			}
		case SEns, ATns:
			if et.URI != name.Space {
				continue
			}
		}
		return et
	}
	return nil
}

// First returns the first event type of kind k
// whatever its name, or nil.
func (l *EventTypeList) First(k Kind) *EventType {
	for i := range l.items {
		if l.items[i].Kind == k {
			return &l.items[i]
		}
	}
	return nil
}

// WriteCode writes the event code of et.
func (l *EventTypeList) WriteCode(w *bitio.Writer, et *EventType) {
	if et.owner != l {
		panic("grammar: event type written against a foreign lexicon")
	}
	for i := 0; i < et.Depth; i++ {
		w.WriteBits(uint64(et.Code[i]), et.width[i])
	}
}

// ReadCode reads an event code and returns
// the event type it designates.
func (l *EventTypeList) ReadCode(r *bitio.Reader) (*EventType, error) {
	ns := l.root
	for depth := 0; depth < 3; depth++ {
		v, err := r.ReadBits(ints.Width(len(ns)))
		if err != nil {
			return nil, err
		}
		if v >= uint64(len(ns)) {
			return nil, exierr.New(exierr.CodeOutOfRange, "event code part %d at level %d exceeds %d entries", v, depth+1, len(ns))
		}
		n := &ns[v]
		if n.et != nil {
			return n.et, nil
		}
		ns = n.kids
	}
	return nil, exierr.New(exierr.Malformed, "event code tree too deep")
}

func (l *EventTypeList) String() string {
	s := "["
	for i := range l.items {
		if i > 0 {
			s += " "
		}
		et := &l.items[i]
		s += et.String() + "="
		for d := 0; d < et.Depth; d++ {
			if d > 0 {
				s += "."
			}
			s += fmt.Sprint(et.Code[d])
		}
	}
	return s + "]"
}
