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
	"reflect"
	"strings"
	"testing"

	"github.com/SnellerInc/exi"
)

func readEvents(t *testing.T, text string) []exi.Event {
	t.Helper()
	var out []exi.Event
	err := newXMLReader(strings.NewReader(text)).each(func(ev *exi.Event) error {
		out = append(out, *ev)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestXMLRoundTrip(t *testing.T) {
	const doc = `<root xmlns:p="urn:a" p:x="1" y="a &amp; b"><p:a>text</p:a><b/></root>`
	want := []exi.Event{
		{Kind: exi.StartDocument},
		{Kind: exi.StartElement, Local: "root"},
		{Kind: exi.NamespaceDeclaration, Prefix: "p", URI: "urn:a"},
		{Kind: exi.Attribute, URI: "urn:a", Local: "x", Prefix: "p", Value: "1"},
		{Kind: exi.Attribute, Local: "y", Value: "a & b"},
		{Kind: exi.StartElement, URI: "urn:a", Local: "a", Prefix: "p"},
		{Kind: exi.Characters, Value: "text"},
		{Kind: exi.EndElement},
		{Kind: exi.StartElement, Local: "b"},
		{Kind: exi.EndElement},
		{Kind: exi.EndElement},
		{Kind: exi.EndDocument},
	}
	got := readEvents(t, doc)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v", got)
	}

	for _, a := range []exi.Alignment{exi.BitPacked, exi.Compression} {
		opts := exi.DefaultOptions()
		opts.Alignment = a
		opts.PreservePrefixes = true
		var buf bytes.Buffer
		enc, err := exi.NewEncoder(&buf, nil, &opts)
		if err != nil {
			t.Fatal(err)
		}
		for i := range got {
			if err := enc.Encode(&got[i]); err != nil {
				t.Fatal(err)
			}
		}
		dec, err := exi.NewDecoder(&buf, nil, &opts)
		if err != nil {
			t.Fatal(err)
		}
		var text bytes.Buffer
		x := newXMLWriter(&text, true, false)
		for {
			ev, err := dec.Next()
			if err != nil {
				break
			}
			if err := x.write(ev); err != nil {
				t.Fatal(err)
			}
		}
		dec.Close()
		if again := readEvents(t, text.String()); !reflect.DeepEqual(again, want) {
			t.Fatalf("%s: %s reads back as %v", a, text.String(), again)
		}
	}
}

func TestWriterDeclaresPrefixes(t *testing.T) {
	evs := []exi.Event{
		{Kind: exi.StartDocument},
		{Kind: exi.StartElement, URI: "urn:a", Local: "root"},
		{Kind: exi.Attribute, URI: "urn:b", Local: "x", Value: "1"},
		{Kind: exi.StartElement, Local: "plain"},
		{Kind: exi.EndElement},
		{Kind: exi.EndElement},
		{Kind: exi.EndDocument},
	}
	var text bytes.Buffer
	x := newXMLWriter(&text, true, false)
	for i := range evs {
		if err := x.write(&evs[i]); err != nil {
			t.Fatal(err)
		}
	}
	var names []string
	for _, ev := range readEvents(t, text.String()) {
		switch ev.Kind {
		case exi.StartElement, exi.Attribute:
			names = append(names, "{"+ev.URI+"}"+ev.Local)
		}
	}
	want := []string{"{urn:a}root", "{urn:b}x", "{}plain"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("%s: names %v", text.String(), names)
	}
}

func TestXMLMarkup(t *testing.T) {
	const doc = `<?xml version="1.0"?>
<!DOCTYPE root>
<!-- lead -->
<root><?pi some data?><![CDATA[<raw>]]> &lt;x&gt;</root>
`
	want := []exi.Event{
		{Kind: exi.StartDocument},
		{Kind: exi.DocType, Local: "root"},
		{Kind: exi.Comment, Value: " lead "},
		{Kind: exi.StartElement, Local: "root"},
		{Kind: exi.ProcessingInstruction, Local: "pi", Value: "some data"},
		{Kind: exi.Characters, Value: "<raw>"},
		{Kind: exi.Characters, Value: " <x>"},
		{Kind: exi.EndElement},
		{Kind: exi.EndDocument},
	}
	got := readEvents(t, doc)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v", got)
	}
}

func TestXMLReaderErrors(t *testing.T) {
	for _, doc := range []string{
		`<p:root/>`,
		`<root>`,
		`<root/>text`,
	} {
		err := newXMLReader(strings.NewReader(doc)).each(func(*exi.Event) error { return nil })
		if err == nil {
			t.Errorf("%s: expected an error", doc)
		}
	}
}
