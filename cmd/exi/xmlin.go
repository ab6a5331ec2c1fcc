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

package main

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/SnellerInc/exi"
	"github.com/SnellerInc/exi/schema"
)

// xmlReader turns an XML text document
// into a sequence of EXI events.
type xmlReader struct {
	dec   *xml.Decoder
	scope []binding
	marks []int
	out   []exi.Event
}

type binding struct {
	prefix, uri string
}

func newXMLReader(r io.Reader) *xmlReader {
	dec := xml.NewDecoder(r)
	dec.Strict = true
	return &xmlReader{dec: dec}
}

func (x *xmlReader) lookup(prefix string) (string, bool) {
	for i := len(x.scope) - 1; i >= 0; i-- {
		if x.scope[i].prefix == prefix {
			return x.scope[i].uri, true
		}
	}
	switch prefix {
	case "":
		return "", true
	case "xml":
		return schema.XMLNamespace, true
	}
	return "", false
}

// each calls fn for every event of the document,
// starting with SD and ending with ED.
func (x *xmlReader) each(fn func(ev *exi.Event) error) error {
	if err := fn(&exi.Event{Kind: exi.StartDocument}); err != nil {
		return err
	}
	for {
		// RawToken leaves prefixes unresolved;
		// the scope below resolves them
		tok, err := x.dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		x.out = x.out[:0]
		if err := x.token(tok); err != nil {
			return err
		}
		for i := range x.out {
			if err := fn(&x.out[i]); err != nil {
				return err
			}
		}
	}
	if len(x.marks) != 0 {
		return fmt.Errorf("unexpected end of input inside %d open elements", len(x.marks))
	}
	return fn(&exi.Event{Kind: exi.EndDocument})
}

func (x *xmlReader) token(tok xml.Token) error {
	switch t := tok.(type) {
	case xml.StartElement:
		return x.start(&t)
	case xml.EndElement:
		if len(x.marks) == 0 {
			return fmt.Errorf("unbalanced end tag %s", t.Name.Local)
		}
		x.end()
	case xml.CharData:
		return x.text(t)
	case xml.Comment:
		x.out = append(x.out, exi.Event{Kind: exi.Comment, Value: string(t)})
	case xml.ProcInst:
		if t.Target == "xml" {
			return nil
		}
		x.out = append(x.out, exi.Event{
			Kind:  exi.ProcessingInstruction,
			Local: t.Target,
			Value: string(t.Inst),
		})
	case xml.Directive:
		return x.directive(t)
	}
	return nil
}

// directive handles document type declarations;
// other declarations are dropped.
func (x *xmlReader) directive(d xml.Directive) error {
	rest, ok := bytes.CutPrefix(d, []byte("DOCTYPE"))
	if !ok {
		return nil
	}
	ev := exi.Event{Kind: exi.DocType}
	if f := strings.Fields(string(rest)); len(f) > 0 {
		ev.Local = f[0]
	}
	x.out = append(x.out, ev)
	return nil
}

func (x *xmlReader) text(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if len(x.marks) == 0 {
		if len(bytes.Trim(data, " \t\r\n")) != 0 {
			return fmt.Errorf("character data outside of the root element")
		}
		return nil
	}
	x.out = append(x.out, exi.Event{Kind: exi.Characters, Value: string(data)})
	return nil
}

func (x *xmlReader) start(tok *xml.StartElement) error {
	x.marks = append(x.marks, len(x.scope))
	var decls []exi.Event
	for i := range tok.Attr {
		a := &tok.Attr[i]
		local := a.Name.Local
		switch {
		case a.Name.Space == "" && local == "xmlns":
			local = ""
		case a.Name.Space == "xmlns":
		default:
			continue
		}
		x.scope = append(x.scope, binding{prefix: local, uri: a.Value})
		decls = append(decls, exi.Event{Kind: exi.NamespaceDeclaration, Prefix: local, URI: a.Value})
	}
	prefix := tok.Name.Space
	uri, ok := x.lookup(prefix)
	if !ok {
		return fmt.Errorf("element %s: prefix %q not bound", tok.Name.Local, prefix)
	}
	for i := range decls {
		decls[i].ElementNS = decls[i].Prefix == prefix && decls[i].URI == uri
	}
	x.out = append(x.out, exi.Event{
		Kind:   exi.StartElement,
		URI:    uri,
		Local:  tok.Name.Local,
		Prefix: prefix,
	})
	x.out = append(x.out, decls...)
	for i := range tok.Attr {
		a := &tok.Attr[i]
		space, local := a.Name.Space, a.Name.Local
		if space == "xmlns" || (space == "" && local == "xmlns") {
			continue
		}
		ev := exi.Event{Kind: exi.Attribute, Local: local, Prefix: space, Value: a.Value}
		if space != "" {
			if ev.URI, ok = x.lookup(space); !ok {
				return fmt.Errorf("attribute %s:%s: prefix %q not bound", space, local, space)
			}
		}
		x.out = append(x.out, ev)
	}
	return nil
}

func (x *xmlReader) end() {
	n := len(x.marks) - 1
	x.scope = x.scope[:x.marks[n]]
	x.marks = x.marks[:n]
	x.out = append(x.out, exi.Event{Kind: exi.EndElement})
}
