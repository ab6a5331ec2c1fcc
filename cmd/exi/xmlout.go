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
	"fmt"
	"io"
	"strings"

	"github.com/SnellerInc/exi"
	"github.com/SnellerInc/exi/schema"

	"github.com/shabbyrobe/xmlwriter"
)

// xmlWriter writes decoded events as XML text,
// declaring whatever prefixes the events use
// that are not already in scope.
type xmlWriter struct {
	w        *xmlwriter.Writer
	fragment bool

	scope []binding
	marks []int
	gen   int

	// the start tag is buffered until
	// its attributes are complete
	tag   *exi.Event
	decls []binding
	attrs []xmlwriter.Attr
}

func newXMLWriter(dst io.Writer, fragment, indent bool) *xmlWriter {
	var w *xmlwriter.Writer
	if indent {
		w = xmlwriter.Open(dst, xmlwriter.WithIndent())
	} else {
		w = xmlwriter.Open(dst)
	}
	return &xmlWriter{w: w, fragment: fragment}
}

func (x *xmlWriter) lookup(prefix string) (string, bool) {
	for i := len(x.scope) - 1; i >= 0; i-- {
		if x.scope[i].prefix == prefix {
			return x.scope[i].uri, true
		}
	}
	if prefix == "" {
		return "", true
	}
	return "", false
}

// prefix returns a prefix bound to uri, declaring
// one on the current tag if necessary. Only
// elements use the default namespace.
func (x *xmlWriter) prefix(want, uri string, element bool) string {
	if uri == schema.XMLNamespace {
		return "xml"
	}
	if uri == "" && !element {
		return ""
	}
	if want != "" || element {
		if got, ok := x.lookup(want); ok && got == uri {
			return want
		}
	}
	if uri == "" {
		x.declare("", "")
		return ""
	}
	for i := len(x.scope) - 1; i >= 0; i-- {
		b := x.scope[i]
		if b.uri != uri || (b.prefix == "" && !element) {
			continue
		}
		if got, _ := x.lookup(b.prefix); got == uri {
			return b.prefix
		}
	}
	if want == "" && element {
		x.declare("", uri)
		return ""
	}
	for want == "" || x.bound(want) {
		x.gen++
		want = fmt.Sprintf("ns%d", x.gen)
	}
	x.declare(want, uri)
	return want
}

func (x *xmlWriter) bound(prefix string) bool {
	_, ok := x.lookup(prefix)
	return ok
}

func (x *xmlWriter) declare(prefix, uri string) {
	b := binding{prefix: prefix, uri: uri}
	x.scope = append(x.scope, b)
	x.decls = append(x.decls, b)
}

func qualify(prefix, local string) string {
	if prefix == "" {
		return local
	}
	return prefix + ":" + local
}

// flush writes the buffered start tag.
func (x *xmlWriter) flush() error {
	if x.tag == nil {
		return nil
	}
	tag := x.tag
	x.tag = nil
	name := qualify(x.prefix(tag.Prefix, tag.URI, true), tag.Local)
	attrs := make([]xmlwriter.Attr, 0, len(x.decls)+len(x.attrs))
	for _, b := range x.decls {
		attrs = append(attrs, xmlwriter.Attr{Name: qualify("xmlns", b.prefix), Value: b.uri})
	}
	attrs = append(attrs, x.attrs...)
	x.decls, x.attrs = x.decls[:0], x.attrs[:0]
	if err := x.w.StartElem(xmlwriter.Elem{Name: name}); err != nil {
		return err
	}
	for i := range attrs {
		if err := x.w.WriteAttr(attrs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (x *xmlWriter) write(ev *exi.Event) error {
	switch ev.Kind {
	case exi.NamespaceDeclaration:
		x.declare(ev.Prefix, ev.URI)
		return nil
	case exi.Attribute:
		value := ev.Value
		// a qualified value needs its
		// prefix bound on this tag
		if p, local, ok := strings.Cut(value, ":"); ok && ev.ValueURI != "" {
			value = qualify(x.prefix(p, ev.ValueURI, false), local)
		}
		name := qualify(x.prefix(ev.Prefix, ev.URI, false), ev.Local)
		x.attrs = append(x.attrs, xmlwriter.Attr{Name: name, Value: value})
		return nil
	}
	if err := x.flush(); err != nil {
		return err
	}
	switch ev.Kind {
	case exi.StartDocument:
		if !x.fragment {
			return x.w.StartDoc(xmlwriter.Doc{})
		}
	case exi.EndDocument:
		return x.w.EndAllFlush()
	case exi.StartElement:
		cp := *ev
		x.tag = &cp
		x.marks = append(x.marks, len(x.scope))
	case exi.EndElement:
		n := len(x.marks) - 1
		x.scope = x.scope[:x.marks[n]]
		x.marks = x.marks[:n]
		return x.w.EndElem()
	case exi.Characters:
		return x.w.Write(xmlwriter.Text(ev.Value))
	case exi.Comment:
		return x.w.Write(xmlwriter.Comment{Content: ev.Value})
	case exi.ProcessingInstruction:
		return x.w.Write(xmlwriter.PI{Target: ev.Local, Content: ev.Value})
	case exi.DocType:
		return x.w.Write(xmlwriter.Raw(doctype(ev)))
	case exi.EntityReference:
		return x.w.Write(xmlwriter.Raw("&" + ev.Local + ";"))
	}
	return nil
}

func doctype(ev *exi.Event) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE ")
	b.WriteString(ev.Local)
	switch {
	case ev.Public != "":
		fmt.Fprintf(&b, " PUBLIC %q %q", ev.Public, ev.System)
	case ev.System != "":
		fmt.Fprintf(&b, " SYSTEM %q", ev.System)
	}
	if ev.Value != "" {
		fmt.Fprintf(&b, " [%s]", ev.Value)
	}
	b.WriteString(">")
	return b.String()
}
