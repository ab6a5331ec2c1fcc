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
	"bytes"
	"errors"
	"fmt"
	"io"
	"reflect"
	"testing"

	"github.com/SnellerInc/exi/channel"
	"github.com/SnellerInc/exi/exierr"
	"github.com/SnellerInc/exi/schema"
)

func sd() Event { return Event{Kind: StartDocument} }
func ed() Event { return Event{Kind: EndDocument} }
func se(local string) Event { return Event{Kind: StartElement, Local: local} }
func ee() Event { return Event{Kind: EndElement} }
func ch(text string) Event { return Event{Kind: Characters, Value: text} }
func at(local, v string) Event { return Event{Kind: Attribute, Local: local, Value: v} }

func xsiNil(v string) Event {
	return Event{Kind: Attribute, URI: schema.XSINamespace, Local: "nil", Value: v}
}

func encode(t *testing.T, corpus *schema.Corpus, opts *Options, evs []Event) ([]byte, *Encoder) {
	t.Helper()
	var buf bytes.Buffer
	e, err := NewEncoder(&buf, corpus, opts)
	if err != nil {
		t.Fatal(err)
	}
	for i := range evs {
		if err := e.Encode(&evs[i]); err != nil {
			t.Fatalf("event %d %s: %s", i, &evs[i], err)
		}
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes(), e
}

func decode(buf []byte, corpus *schema.Corpus, opts *Options) ([]Event, error) {
	d, err := NewDecoder(bytes.NewReader(buf), corpus, opts)
	if err != nil {
		return nil, err
	}
	defer d.Close()
	var out []Event
	for {
		ev, err := d.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, *ev)
	}
}

func sameEvents(t *testing.T, got, want []Event) {
	t.Helper()
	if reflect.DeepEqual(got, want) {
		return
	}
	for i := range want {
		if i >= len(got) {
			t.Fatalf("missing events from %d: %s", i, &want[i])
		}
		if !reflect.DeepEqual(got[i], want[i]) {
			t.Fatalf("event %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
	t.Fatalf("%d extra events, first %s", len(got)-len(want), &got[len(want)])
}

func roundTrip(t *testing.T, corpus *schema.Corpus, opts *Options, in, want []Event) []byte {
	t.Helper()
	buf, _ := encode(t, corpus, opts, in)
	got, err := decode(buf, corpus, opts)
	if err != nil {
		t.Fatal(err)
	}
	sameEvents(t, got, want)
	return buf
}

func withAlignment(a Alignment) *Options {
	opts := DefaultOptions()
	opts.Alignment = a
	return &opts
}

var alignments = []Alignment{BitPacked, ByteAligned, PreCompression, Compression}

func q(local string) schema.QName { return schema.QName{Local: local} }

// testCorpus declares
//
//	<root a="int"? b="string"><x>string</x><y>int</y>?</root>
//	<n>int, nillable</n>
func testCorpus(t *testing.T) *schema.Corpus {
	b := schema.NewBuilder()
	str, integer := b.Builtin("string"), b.Builtin("int")
	typ := b.AddType(&schema.Type{
		Name:    q("T"),
		Serial:  -1,
		Content: schema.ContentElementOnly,
		Attributes: []*schema.AttributeUse{
			{Attribute: &schema.Attribute{Name: q("b"), Type: str}, Required: true},
			{Attribute: &schema.Attribute{Name: q("a"), Type: integer}},
		},
		Particle: schema.Sequence(1, 1,
			schema.ElementParticle(&schema.Element{Name: q("x"), Type: str}, 1, 1),
			schema.ElementParticle(&schema.Element{Name: q("y"), Type: integer}, 0, 1),
		),
	})
	b.AddElement(&schema.Element{Name: q("root"), Type: typ})
	b.AddElement(&schema.Element{Name: q("n"), Type: integer, Nillable: true})
	c, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	return c
}

var builtinDoc = []Event{
	sd(),
	se("root"), at("id", "r1"),
	se("item"), at("n", "1"), ch("alpha"), ee(),
	se("item"), at("n", "2"), ch("alpha"), ee(),
	se("item"), at("n", "1"), ch("beta"), ee(),
	se("other"), ee(),
	ch("tail "),
	ee(),
	ed(),
}

func TestRoundTripBuiltin(t *testing.T) {
	for _, a := range alignments {
		for _, threaded := range []bool{false, true} {
			if threaded && a != Compression {
				continue
			}
			t.Run(fmt.Sprintf("%s/threaded=%v", a, threaded), func(t *testing.T) {
				opts := withAlignment(a)
				opts.ThreadedInflater = threaded
				roundTrip(t, nil, opts, builtinDoc, builtinDoc)
			})
		}
	}
}

func TestRoundTripFidelity(t *testing.T) {
	doc := []Event{
		sd(),
		{Kind: DocType, Local: "root", System: "root.dtd"},
		{Kind: Comment, Value: " before "},
		{Kind: StartElement, URI: "urn:a", Local: "root", Prefix: "p"},
		{Kind: NamespaceDeclaration, Prefix: "p", URI: "urn:a", ElementNS: true},
		{Kind: NamespaceDeclaration, Prefix: "", URI: "urn:d"},
		{Kind: Attribute, URI: "urn:a", Local: "x", Prefix: "p", Value: "1"},
		{Kind: StartElement, URI: "urn:d", Local: "child"},
		{Kind: ProcessingInstruction, Local: "target", Value: "data"},
		ch("text"),
		{Kind: EntityReference, Local: "ent"},
		ee(),
		{Kind: StartElement, URI: "urn:a", Local: "child", Prefix: "p"},
		ee(),
		ee(),
		{Kind: Comment, Value: " after "},
		ed(),
	}
	for _, a := range alignments {
		t.Run(a.String(), func(t *testing.T) {
			opts := withAlignment(a)
			opts.PreserveComments = true
			opts.PreservePIs = true
			opts.PreserveDTD = true
			opts.PreservePrefixes = true
			roundTrip(t, nil, opts, doc, doc)
		})
	}
}

func TestDroppedFidelity(t *testing.T) {
	in := []Event{
		sd(),
		{Kind: Comment, Value: "gone"},
		se("root"),
		{Kind: ProcessingInstruction, Local: "gone"},
		ch("kept"),
		ee(),
		ed(),
	}
	want := []Event{sd(), se("root"), ch("kept"), ee(), ed()}
	roundTrip(t, nil, nil, in, want)
}

func TestRoundTripSchema(t *testing.T) {
	corpus := testCorpus(t)
	in := []Event{
		sd(),
		se("root"), at("b", "text"), at("a", "007"),
		ch("\n  "),
		se("x"), ch("hello"), ee(),
		ch("\n  "),
		se("y"), ch(" 42 "), ee(),
		ch("\n"),
		ee(),
		ed(),
	}
	want := []Event{
		sd(),
		se("root"), at("a", "7"), at("b", "text"),
		se("x"), ch("hello"), ee(),
		se("y"), ch("42"), ee(),
		ee(),
		ed(),
	}
	for _, strict := range []bool{false, true} {
		for _, a := range alignments {
			t.Run(fmt.Sprintf("%s/strict=%v", a, strict), func(t *testing.T) {
				opts := withAlignment(a)
				opts.Strict = strict
				opts.IncludeSchemaID = true
				roundTrip(t, corpus, opts, in, want)
			})
		}
	}
}

func TestPreserveWhitespace(t *testing.T) {
	corpus := testCorpus(t)
	doc := []Event{
		sd(),
		se("root"), at("b", "text"),
		ch("\n  "),
		se("x"), ch("hello"), ee(),
		ch("\n"),
		ee(),
		ed(),
	}
	opts := DefaultOptions()
	opts.PreserveWhitespace = true
	roundTrip(t, corpus, &opts, doc, doc)
}

func TestPreserveLexicalValues(t *testing.T) {
	corpus := testCorpus(t)
	doc := []Event{
		sd(),
		se("root"), at("a", "007"), at("b", "text"),
		se("x"), ch("hello"), ee(),
		se("y"), ch("+42"), ee(),
		ee(),
		ed(),
	}
	opts := DefaultOptions()
	opts.PreserveLexicalValues = true
	roundTrip(t, corpus, &opts, doc, doc)
}

func TestInvalidValues(t *testing.T) {
	corpus := testCorpus(t)
	doc := []Event{
		sd(),
		se("root"), at("a", "abc"), at("b", "text"),
		se("x"), ch("hello"), ee(),
		se("y"), ch("x1"), ee(),
		ee(),
		ed(),
	}
	// undeclared content survives
	// when the grammar is not strict
	roundTrip(t, corpus, nil, doc, doc)

	opts := DefaultOptions()
	opts.Strict = true
	e, err := NewEncoder(io.Discard, corpus, &opts)
	if err != nil {
		t.Fatal(err)
	}
	for i := range doc {
		if err = e.Encode(&doc[i]); err != nil {
			break
		}
	}
	if !errors.Is(err, exierr.ErrInvalidValue) {
		t.Fatalf("got %v, want %v", err, exierr.ErrInvalidValue)
	}
}

func TestNotAdmissible(t *testing.T) {
	corpus := testCorpus(t)
	opts := DefaultOptions()
	opts.Strict = true
	e, err := NewEncoder(io.Discard, corpus, &opts)
	if err != nil {
		t.Fatal(err)
	}
	evs := []Event{sd(), se("root"), at("b", "x"), se("zzz")}
	for i := range evs {
		if err = e.Encode(&evs[i]); err != nil {
			break
		}
	}
	// the start tag is only emitted
	// once its content begins
	if err == nil {
		err = e.EndElement()
	}
	if !errors.Is(err, exierr.ErrEventNotAdmissible) {
		t.Fatalf("got %v", err)
	}

	e, err = NewEncoder(io.Discard, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Attribute("", "a", "", "1"); !errors.Is(err, exierr.ErrEventNotAdmissible) {
		t.Fatalf("attribute without element: %v", err)
	}
	if err := e.EndDocument(); !errors.Is(err, exierr.ErrEventNotAdmissible) {
		t.Fatalf("ED before SD: %v", err)
	}
	if err := e.StartDocument(); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); !errors.Is(err, exierr.ErrEventNotAdmissible) {
		t.Fatalf("close before ED: %v", err)
	}
}

func TestPrefixErrors(t *testing.T) {
	opts := DefaultOptions()
	opts.PreservePrefixes = true

	e, err := NewEncoder(io.Discard, nil, &opts)
	if err != nil {
		t.Fatal(err)
	}
	e.StartDocument()
	e.StartElement("urn:a", "root", "p")
	err = e.EndElement()
	var xe *exierr.Error
	if !errors.As(err, &xe) || xe.Code != exierr.PrefixNotBound || xe.Prefix != "p" {
		t.Fatalf("got %v, want prefix not bound", err)
	}

	e, err = NewEncoder(io.Discard, nil, &opts)
	if err != nil {
		t.Fatal(err)
	}
	e.StartDocument()
	e.StartElement("urn:a", "root", "p")
	e.NamespaceDeclaration("p", "urn:b")
	err = e.EndElement()
	if !errors.As(err, &xe) || xe.Code != exierr.PrefixMismatch {
		t.Fatalf("got %v, want prefix mismatch", err)
	}
	if xe.Prefix != "p" || xe.Expected != "urn:a" || xe.Actual != "urn:b" {
		t.Fatalf("binding context %+v", xe)
	}
}

func TestXsiType(t *testing.T) {
	b := schema.NewBuilder()
	b.AddElement(&schema.Element{Name: q("v"), Type: b.Builtin("anySimpleType")})
	corpus, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	in := []Event{
		sd(),
		se("v"),
		{Kind: NamespaceDeclaration, Prefix: "xsi", URI: schema.XSINamespace},
		{Kind: NamespaceDeclaration, Prefix: "xs", URI: schema.XSDNamespace},
		{Kind: Attribute, URI: schema.XSINamespace, Local: "type", Prefix: "xsi", Value: "xs:int"},
		ch(" 012 "),
		ee(),
		ed(),
	}
	want := append([]Event(nil), in...)
	want[4].ValueURI = schema.XSDNamespace
	want[5] = ch("12")
	opts := DefaultOptions()
	opts.PreservePrefixes = true
	roundTrip(t, corpus, &opts, in, want)

	// an unbound type prefix is an error
	bad := []Event{sd(), se("v"), {Kind: Attribute, URI: schema.XSINamespace, Local: "type", Value: "zz:int"}, ch("1")}
	e, err := NewEncoder(io.Discard, corpus, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := range bad {
		if err = e.Encode(&bad[i]); err != nil {
			break
		}
	}
	if !errors.Is(err, exierr.ErrPrefixNotBound) {
		t.Fatalf("got %v", err)
	}
}

func mustEncode(t *testing.T, corpus *schema.Corpus, opts *Options, evs []Event) []byte {
	t.Helper()
	buf, _ := encode(t, corpus, opts, evs)
	return buf
}

func hasKey(keys []channel.Key, k channel.Key) bool {
	for _, x := range keys {
		if x == k {
			return true
		}
	}
	return false
}

func TestXsiNilPlacement(t *testing.T) {
	doc := []Event{sd(), se("n"), xsiNil("true"), ee(), ed()}
	nilKey := channel.Key{Name: schema.XsiNil}
	opts := withAlignment(Compression)

	corpus := testCorpus(t)
	buf, e := encode(t, corpus, opts, doc)
	if !hasKey(e.ValueChannels(), nilKey) {
		t.Fatalf("schema-informed xsi:nil not in a value channel: %v", e.ValueChannels())
	}
	got, err := decode(buf, corpus, opts)
	if err != nil {
		t.Fatal(err)
	}
	sameEvents(t, got, doc)

	buf, e = encode(t, nil, opts, doc)
	if hasKey(e.ValueChannels(), nilKey) {
		t.Fatalf("built-in xsi:nil in a value channel: %v", e.ValueChannels())
	}
	got, err = decode(buf, nil, opts)
	if err != nil {
		t.Fatal(err)
	}
	sameEvents(t, got, doc)

	// a nilled element takes no content
	bad := []Event{sd(), se("n"), xsiNil("true"), ch("1"), ee(), ed()}
	strict := withAlignment(BitPacked)
	strict.Strict = true
	e, err = NewEncoder(io.Discard, corpus, strict)
	if err != nil {
		t.Fatal(err)
	}
	for i := range bad {
		if err = e.Encode(&bad[i]); err != nil {
			break
		}
	}
	if !errors.Is(err, exierr.ErrEventNotAdmissible) {
		t.Fatalf("got %v", err)
	}
}

func repeating(n int) []Event {
	evs := []Event{sd(), se("root")}
	for i := 0; i < n; i++ {
		evs = append(evs, se("item"), ch(fmt.Sprintf("value %d", i%7)), ee())
	}
	return append(evs, ee(), ed())
}

func TestBlockSize(t *testing.T) {
	doc := repeating(100)
	if len(doc) < 300 {
		t.Fatalf("only %d events", len(doc))
	}
	for _, a := range []Alignment{PreCompression, Compression} {
		t.Run(a.String(), func(t *testing.T) {
			one := withAlignment(a)
			one.BlockSize = 1
			unbounded := withAlignment(a)
			roundTrip(t, nil, one, doc, doc)
			roundTrip(t, nil, unbounded, doc, doc)

			// without options in the header the
			// decoder relies on its own block size
			one.IncludeOptions = false
			buf := mustEncode(t, nil, one, doc)
			two := withAlignment(a)
			two.IncludeOptions = false
			two.BlockSize = 2
			for _, threaded := range []bool{false, true} {
				two.ThreadedInflater = threaded
				_, err := decode(buf, nil, two)
				if !errors.Is(err, exierr.ErrBlockDesync) {
					t.Fatalf("threaded=%v: got %v, want %v", threaded, err, exierr.ErrBlockDesync)
				}
			}
		})
	}
}

func TestStringTableGrowth(t *testing.T) {
	const long = "a fairly long value that repeats"
	opts := withAlignment(BitPacked)
	once := []Event{sd(), se("r"), se("a"), ch(long), ee(), ee(), ed()}
	twice := []Event{sd(), se("r"), se("a"), ch(long), ee(), se("a"), ch(long), ee(), ee(), ed()}
	b1 := roundTrip(t, nil, opts, once, once)
	b2 := roundTrip(t, nil, opts, twice, twice)
	if grew := len(b2) - len(b1); grew > 4 {
		t.Fatalf("second occurrence took %d bytes", grew)
	}

	values := func(opts *Options, vals ...string) int {
		evs := []Event{sd(), se("r")}
		for _, v := range vals {
			evs = append(evs, se("v"), ch(v), ee())
		}
		evs = append(evs, ee(), ed())
		buf, e := encode(t, nil, opts, evs)
		got, err := decode(buf, nil, opts)
		if err != nil {
			t.Fatal(err)
		}
		sameEvents(t, got, evs)
		return e.table.Values()
	}
	bounded := withAlignment(BitPacked)
	bounded.ValueMaxLength = 3
	if n := values(bounded, "ab", "abcd", "ab", "abcd"); n != 1 {
		t.Fatalf("max length 3: %d values", n)
	}
	bounded = withAlignment(BitPacked)
	bounded.ValuePartitionCapacity = 1
	if n := values(bounded, "a", "b", "a"); n != 1 {
		t.Fatalf("capacity 1: %d values", n)
	}
	bounded = withAlignment(BitPacked)
	bounded.ValueMaxLength = 0
	if n := values(bounded, "a", "a"); n != 0 {
		t.Fatalf("max length 0: %d values", n)
	}
}

func TestFragment(t *testing.T) {
	corpus := testCorpus(t)
	doc := []Event{
		sd(),
		se("n"), ch("1"), ee(),
		se("n"), xsiNil("true"), ee(),
		se("x"), ch("undeclared"), ee(),
		se("n"), ch("2"), ee(),
		ed(),
	}
	for _, a := range alignments {
		t.Run(a.String(), func(t *testing.T) {
			opts := withAlignment(a)
			opts.Fragment = true
			roundTrip(t, corpus, opts, doc, doc)
			roundTrip(t, nil, opts, doc, doc)
		})
	}
}

func TestDeterminism(t *testing.T) {
	corpus := testCorpus(t)
	doc := []Event{
		sd(),
		se("root"), at("b", "v"),
		se("x"), ch("x"), ee(),
		se("extra"), at("k", "1"), ee(),
		ee(),
		ed(),
	}
	for _, a := range alignments {
		opts := withAlignment(a)
		first := mustEncode(t, corpus, opts, doc)
		second := mustEncode(t, corpus, opts, doc)
		if !bytes.Equal(first, second) {
			t.Fatalf("%s: encodings differ", a)
		}
	}
}

func TestChannelOrder(t *testing.T) {
	doc := []Event{
		sd(),
		se("root"),
		se("a"), ch("1"), ee(),
		se("b"), ch("bla"), ee(),
		se("a"), ch("3"), ee(),
		ee(),
		ed(),
	}
	for _, a := range []Alignment{PreCompression, Compression} {
		t.Run(a.String(), func(t *testing.T) {
			opts := withAlignment(a)
			buf, e := encode(t, nil, opts, doc)
			want := []channel.Key{{Name: q("a")}, {Name: q("b")}}
			if got := e.ValueChannels(); !reflect.DeepEqual(got, want) {
				t.Fatalf("channels %v, want %v", got, want)
			}
			got, err := decode(buf, nil, opts)
			if err != nil {
				t.Fatal(err)
			}
			sameEvents(t, got, doc)

			opts.ChannelPolicy = channel.PolicyFamily
			roundTrip(t, nil, opts, doc, doc)
		})
	}
}

func TestCompressionStrategies(t *testing.T) {
	evs := []Event{sd(), se("log")}
	for i := 0; i < 400; i++ {
		evs = append(evs,
			se("entry"),
			at("id", fmt.Sprintf("entry-%05d", i)),
			ch(fmt.Sprintf("request %d served from cache node %d in %d ms", i, i%5, i%13)),
			ee())
	}
	evs = append(evs, ee(), ed())
	size := func(strategy string) int {
		opts := withAlignment(Compression)
		opts.DeflateStrategy = strategy
		return len(roundTrip(t, nil, opts, evs, evs))
	}
	def, filtered, huffman := size("default"), size("filtered"), size("huffman")
	t.Logf("default %d, filtered %d, huffman %d", def, filtered, huffman)
	if def > huffman || filtered > huffman {
		t.Fatalf("huffman-only output is smaller: default %d, filtered %d, huffman %d", def, filtered, huffman)
	}
}

func TestHeader(t *testing.T) {
	doc := []Event{sd(), se("r"), ch("v"), ee(), ed()}
	t.Run("cookie", func(t *testing.T) {
		opts := DefaultOptions()
		opts.IncludeCookie = true
		buf := roundTrip(t, nil, &opts, doc, doc)
		if !bytes.HasPrefix(buf, []byte(Cookie)) {
			t.Fatalf("no cookie in %x", buf)
		}
	})
	t.Run("header wins", func(t *testing.T) {
		buf := mustEncode(t, nil, withAlignment(ByteAligned), doc)
		got, err := decode(buf, nil, withAlignment(Compression))
		if err != nil {
			t.Fatal(err)
		}
		sameEvents(t, got, doc)
	})
	t.Run("options", func(t *testing.T) {
		opts := withAlignment(PreCompression)
		opts.ValueMaxLength = 5
		opts.ValuePartitionCapacity = 10
		opts.BlockSize = 77
		opts.PreserveComments = true
		opts.PreserveLexicalValues = true
		opts.Fragment = true
		buf := mustEncode(t, nil, opts, doc)
		d, err := NewDecoder(bytes.NewReader(buf), nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		defer d.Close()
		if err := d.ProcessHeader(); err != nil {
			t.Fatal(err)
		}
		got := d.Options()
		if got.Alignment != PreCompression || got.ValueMaxLength != 5 || got.ValuePartitionCapacity != 10 ||
			got.BlockSize != 77 || !got.PreserveComments || !got.PreserveLexicalValues || !got.Fragment || got.Strict {
			t.Fatalf("decoded options %+v", got)
		}
	})
	t.Run("schema id", func(t *testing.T) {
		corpus := testCorpus(t)
		opts := DefaultOptions()
		opts.IncludeSchemaID = true
		in := []Event{sd(), se("x"), ch("v"), ee(), ed()}
		buf := mustEncode(t, corpus, &opts, in)
		if _, err := decode(buf, nil, nil); !errors.Is(err, exierr.ErrHeader) {
			t.Fatalf("decoding without the schema: %v", err)
		}
		// a schema-less stream names no schema
		buf = mustEncode(t, nil, &opts, in)
		got, err := decode(buf, corpus, nil)
		if err != nil {
			t.Fatal(err)
		}
		sameEvents(t, got, in)
	})
	t.Run("malformed", func(t *testing.T) {
		cases := []struct {
			buf  []byte
			want error
		}{
			{[]byte{0x00}, exierr.ErrHeader},
			{[]byte("$EXX"), exierr.ErrHeader},
			{[]byte{0xb0}, exierr.ErrUnsupported}, // preview version
			{[]byte{0x81}, exierr.ErrUnsupported}, // version 2
			{nil, exierr.ErrHeader},
		}
		for _, c := range cases {
			if _, err := decode(c.buf, nil, nil); !errors.Is(err, c.want) {
				t.Errorf("%x: got %v, want %v", c.buf, err, c.want)
			}
		}
	})
}

func TestTruncated(t *testing.T) {
	doc := repeating(50)
	for _, a := range alignments {
		opts := withAlignment(a)
		buf := mustEncode(t, nil, opts, doc)
		for _, threaded := range []bool{false, true} {
			opts.ThreadedInflater = threaded
			_, err := decode(buf[:len(buf)/2], nil, opts)
			if err == nil {
				t.Fatalf("%s: truncated stream decoded", a)
			}
		}
	}
}

func TestLoadOptions(t *testing.T) {
	opts, err := LoadOptions([]byte(`
alignment: compression
blockSize: 10
preservePrefixes: true
deflateStrategy: huffman
channelPolicy: family
`))
	if err != nil {
		t.Fatal(err)
	}
	if opts.Alignment != Compression || opts.BlockSize != 10 || !opts.PreservePrefixes ||
		opts.DeflateStrategy != "huffman" || opts.ChannelPolicy != channel.PolicyFamily {
		t.Fatalf("loaded %+v", opts)
	}
	if opts.ValueMaxLength != Unbounded || !opts.IncludeOptions {
		t.Fatalf("defaults lost: %+v", opts)
	}
	bad := []string{
		"alignment: sideways",
		"strict: true\npreserveComments: true",
		"deflateStrategy: best",
		"deflateLevel: 12",
	}
	for _, text := range bad {
		if _, err := LoadOptions([]byte(text)); !errors.Is(err, exierr.ErrOptions) {
			t.Errorf("%q: got %v", text, err)
		}
	}
}
