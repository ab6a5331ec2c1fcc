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

package exi

import (
	"fmt"

	"github.com/SnellerInc/exi/grammar"
)

// EventKind is the kind of an infoset event.
type EventKind uint8

const (
	StartDocument EventKind = iota
	EndDocument
	StartElement
	EndElement
	Attribute
	Characters
	NamespaceDeclaration
	Comment
	ProcessingInstruction
	DocType
	EntityReference
)

var eventNames = [...]string{
	StartDocument:         "SD",
	EndDocument:           "ED",
	StartElement:          "SE",
	EndElement:            "EE",
	Attribute:             "AT",
	Characters:            "CH",
	NamespaceDeclaration:  "NS",
	Comment:               "CM",
	ProcessingInstruction: "PI",
	DocType:               "DT",
	EntityReference:       "ER",
}

func (k EventKind) String() string {
	if int(k) < len(eventNames) {
		return eventNames[k]
	}
	return fmt.Sprintf("EventKind(%d)", k)
}

// Event is one infoset event. Which fields
// are meaningful depends on Kind:
//
//	StartElement          URI, Local, Prefix
//	Attribute             URI, Local, Prefix, Value
//	Characters            Value
//	NamespaceDeclaration  URI, Prefix, ElementNS
//	Comment               Value
//	ProcessingInstruction Local (the target), Value
//	DocType               Local (the name), Public, System, Value
//	EntityReference       Local
//
// The Value of an xsi:type attribute is a
// lexical qname whose namespace is ValueURI.
type Event struct {
	Kind   EventKind
	URI    string
	Local  string
	Prefix string
	Value  string

	ValueURI  string
	Public    string
	System    string
	ElementNS bool
}

func (e *Event) String() string {
	switch e.Kind {
	case StartElement:
		return fmt.Sprintf("SE({%s}%s)", e.URI, e.Local)
	case Attribute:
		return fmt.Sprintf("AT({%s}%s=%q)", e.URI, e.Local, e.Value)
	case Characters:
		return fmt.Sprintf("CH(%q)", e.Value)
	case NamespaceDeclaration:
		return fmt.Sprintf("NS(%s=%s)", e.Prefix, e.URI)
	case Comment:
		return fmt.Sprintf("CM(%q)", e.Value)
	case ProcessingInstruction:
		return fmt.Sprintf("PI(%s %q)", e.Local, e.Value)
	case DocType:
		return fmt.Sprintf("DT(%s)", e.Local)
	case EntityReference:
		return fmt.Sprintf("ER(%s)", e.Local)
	}
	return e.Kind.String()
}

// nameShape is how the qname of an event
// travels after its event code.
type nameShape uint8

const (
	noName       nameShape = iota
	declaredName           // fixed by the event type
	localName              // URI fixed by the event type
	fullName               // URI and local name
)

// valueShape is how the content of an
// event travels after its name.
type valueShape uint8

const (
	noValue      valueShape = iota
	typedValue              // the datatype of the event, or untyped
	untypedValue            // a string through the value partitions
	xsiTypeValue            // a qname in the structure channel
	xsiNilValue             // a boolean in a value channel
	nsValue                 // URI, prefix and local-element-ns flag
	textValue               // a string in the structure channel
	piValue                 // target and data
	dtValue                 // name, public, system and text
)

// shape is the layout of an event after its
// event code. prefix is set for names whose
// prefix follows when prefixes are preserved.
type shape struct {
	name   nameShape
	value  valueShape
	prefix bool
}

// shapes is consulted by both the encoder
// and the decoder, so the two cannot drift.
var shapes = [...]shape{
	grammar.SD:           {},
	grammar.ED:           {},
	grammar.SE:           {name: declaredName},
	grammar.SEns:         {name: localName},
	grammar.SEany:        {name: fullName},
	grammar.EE:           {},
	grammar.AT:           {name: declaredName, value: typedValue, prefix: true},
	grammar.ATinvalid:    {name: declaredName, value: untypedValue, prefix: true},
	grammar.ATns:         {name: localName, value: typedValue, prefix: true},
	grammar.ATany:        {name: fullName, value: typedValue, prefix: true},
	grammar.ATanyUntyped: {name: fullName, value: untypedValue, prefix: true},
	grammar.ATxsiType:    {value: xsiTypeValue, prefix: true},
	grammar.ATxsiNil:     {value: xsiNilValue, prefix: true},
	grammar.CH:           {value: typedValue},
	grammar.CHmixed:      {value: untypedValue},
	grammar.CHundeclared: {value: untypedValue},
	grammar.CM:           {value: textValue},
	grammar.PI:           {value: piValue},
	grammar.ER:           {value: textValue},
	grammar.NS:           {value: nsValue},
	grammar.SC:           {},
	grammar.DT:           {value: dtValue},
}

// payloadOf returns the shape of events of kind k.
func payloadOf(k grammar.Kind) shape {
	if int(k) < len(shapes) {
		return shapes[k]
	}
	return shape{}
}
