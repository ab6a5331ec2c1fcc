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
	"io"
	"strings"

	"github.com/SnellerInc/exi/bitio"
	"github.com/SnellerInc/exi/channel"
	"github.com/SnellerInc/exi/exierr"
	"github.com/SnellerInc/exi/grammar"
	"github.com/SnellerInc/exi/schema"
	"github.com/SnellerInc/exi/utf8"
	"github.com/SnellerInc/exi/value"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

type binding struct {
	prefix, uri string
}

type attr struct {
	name   schema.QName
	prefix string
	value  string
}

// startTag is an element whose namespace
// declarations and attributes are still
// being collected.
type startTag struct {
	name    schema.QName
	prefix  string
	ns      []binding
	attrs   []attr
	xsiType *attr
	xsiNil  *attr
}

// elementPrefix is the prefix of an element
// that no namespace declaration of its own
// carries. It follows the next event code.
type elementPrefix struct {
	uriID  int
	prefix string
}

// Encoder writes an EXI stream from a sequence
// of infoset events. Events must form a document
// (or a fragment when Options.Fragment is set),
// starting with StartDocument and ending with
// EndDocument.
//
// An Encoder is not safe for concurrent use.
type Encoder struct {
	session

	dst   io.Writer
	chans channel.Writer
	mux   *channel.Multiplexer
	// embedded encoders write the options
	// document inside a header
	embedded bool

	started, ended bool

	tag      *startTag
	text     strings.Builder
	scope    []binding
	marks    []int
	sePrefix *elementPrefix
}

// NewEncoder returns an Encoder writing to w.
// The corpus may be nil for schema-less coding.
// A nil opts selects DefaultOptions.
func NewEncoder(w io.Writer, corpus *schema.Corpus, opts *Options) (*Encoder, error) {
	if opts == nil {
		def := DefaultOptions()
		opts = &def
	}
	e := &Encoder{dst: w}
	if err := e.init(corpus, opts); err != nil {
		return nil, err
	}
	return e, nil
}

func notAdmissible(what string, lex *grammar.EventTypeList) error {
	return exierr.New(exierr.EventNotAdmissible, "%s is not admissible in %s", what, lex)
}

func invalidValue(q schema.QName, v string) error {
	return exierr.New(exierr.InvalidValue, "value %q of %s matches no admissible datatype", v, q)
}

func (e *Encoder) ready(what string) error {
	if !e.started {
		return exierr.New(exierr.EventNotAdmissible, "%s before start of document", what)
	}
	if e.ended {
		return exierr.New(exierr.EventNotAdmissible, "%s after end of document", what)
	}
	return nil
}

// begin writes the header and sets up the
// channels of the body.
func (e *Encoder) begin() error {
	if e.embedded {
		return nil
	}
	hw := bitio.NewWriter(false)
	if err := writeHeader(hw, &e.opts, e.corpus); err != nil {
		return err
	}
	switch e.opts.Alignment {
	case BitPacked:
		e.chans = channel.NewInline(hw, e.dst)
	case ByteAligned:
		hw.Align()
		if err := hw.Drain(e.dst); err != nil {
			return err
		}
		e.chans = channel.NewInline(bitio.NewWriter(true), e.dst)
	default:
		hw.Align()
		if err := hw.Drain(e.dst); err != nil {
			return err
		}
		mux, err := channel.NewMultiplexer(e.dst, e.opts.channels())
		if err != nil {
			return err
		}
		e.mux = mux
		e.chans = mux
	}
	e.log.Debug("encoder started", e.fields()...)
	return nil
}

// writeCode writes the event code of et,
// followed by a pending element prefix.
func (e *Encoder) writeCode(lex *grammar.EventTypeList, et *grammar.EventType) error {
	w := e.chans.Structure()
	lex.WriteCode(w, et)
	if p := e.sePrefix; p != nil && et.Kind != grammar.NS {
		e.sePrefix = nil
		return e.table.WriteQNamePrefix(w, p.uriID, p.prefix)
	}
	return nil
}

// writeName writes the name of an event
// according to its shape.
func (e *Encoder) writeName(sh shape, q schema.QName, prefix string) error {
	w := e.chans.Structure()
	switch sh.name {
	case localName:
		e.table.WriteLocal(w, e.table.EnsureURI(q.Space), q.Local)
	case fullName:
		e.table.WriteQName(w, q)
	}
	if sh.prefix && e.opts.PreservePrefixes {
		return e.table.WriteQNamePrefix(w, e.table.EnsureURI(q.Space), prefix)
	}
	return nil
}

// writeValue writes the value parsed by c
// to the channel of its owner.
func (e *Encoder) writeValue(c value.Codec) error {
	w := e.chans.Value(e.key(e.scr.Name, c))
	if err := c.Write(w, &e.scr); err != nil {
		return err
	}
	return e.chans.EndValue()
}

// parse parses v as a value of type t owned by
// owner. It returns nil if v is not valid.
func (e *Encoder) parse(t *schema.Type, owner schema.QName, v string) value.Codec {
	c := e.codec(t)
	e.scr.Reset(e.table, owner)
	if !c.Parse(v, &e.scr) {
		return nil
	}
	return c
}

// StartDocument writes the header
// and the SD event.
func (e *Encoder) StartDocument() error {
	if e.started {
		return exierr.New(exierr.EventNotAdmissible, "document already started")
	}
	e.started = true
	if err := e.begin(); err != nil {
		return err
	}
	lex := e.stack.Lexicon()
	et := lex.First(grammar.SD)
	if et == nil {
		return notAdmissible("SD", lex)
	}
	if err := e.writeCode(lex, et); err != nil {
		return err
	}
	return e.stack.StartDocument(et)
}

// EndDocument writes the ED event
// and flushes the stream.
func (e *Encoder) EndDocument() error {
	if err := e.ready("ED"); err != nil {
		return err
	}
	if err := e.flush(); err != nil {
		return err
	}
	lex := e.stack.Lexicon()
	et := lex.First(grammar.ED)
	if et == nil {
		return notAdmissible("ED", lex)
	}
	if err := e.writeCode(lex, et); err != nil {
		return err
	}
	if err := e.stack.EndDocument(et); err != nil {
		return err
	}
	e.ended = true
	if e.embedded {
		return nil
	}
	if err := e.chans.Finish(); err != nil {
		return err
	}
	fields := []zap.Field{zap.Stringer("session", e.id)}
	if e.mux != nil {
		fields = append(fields, zap.Int("blocks", e.mux.Blocks()), zap.Int("channels", len(e.mux.Channels())))
	}
	e.log.Debug("encoder finished", fields...)
	return nil
}

// Close returns an error if the document
// was not ended.
func (e *Encoder) Close() error {
	if e.started && !e.ended {
		return exierr.New(exierr.EventNotAdmissible, "document not ended")
	}
	return nil
}

// ValueChannels returns the keys of every value
// channel written so far, in order of first use.
// It is nil unless the stream is multiplexed.
func (e *Encoder) ValueChannels() []channel.Key {
	if e.mux == nil {
		return nil
	}
	return e.mux.Channels()
}

// StartElement starts an element. Its namespace
// declarations and attributes follow.
func (e *Encoder) StartElement(uri, local, prefix string) error {
	if err := e.ready("SE"); err != nil {
		return err
	}
	if err := e.flush(); err != nil {
		return err
	}
	e.tag = &startTag{name: schema.QName{Space: uri, Local: local}, prefix: prefix}
	e.marks = append(e.marks, len(e.scope))
	return nil
}

// NamespaceDeclaration binds prefix to uri on
// the element just started.
func (e *Encoder) NamespaceDeclaration(prefix, uri string) error {
	if e.tag == nil {
		return exierr.New(exierr.EventNotAdmissible, "namespace declaration outside of a start tag")
	}
	b := binding{prefix: prefix, uri: uri}
	e.tag.ns = append(e.tag.ns, b)
	e.scope = append(e.scope, b)
	return nil
}

// Attribute adds an attribute to the element
// just started.
func (e *Encoder) Attribute(uri, local, prefix, val string) error {
	if e.tag == nil {
		return exierr.New(exierr.EventNotAdmissible, "attribute outside of a start tag")
	}
	a := attr{name: schema.QName{Space: uri, Local: local}, prefix: prefix, value: val}
	switch a.name {
	case schema.XsiType:
		e.tag.xsiType = &a
	case schema.XsiNil:
		e.tag.xsiNil = &a
	default:
		e.tag.attrs = append(e.tag.attrs, a)
	}
	return nil
}

// Characters adds character content. Adjacent
// calls are coded as one event.
func (e *Encoder) Characters(text string) error {
	if err := e.ready("CH"); err != nil {
		return err
	}
	if e.tag != nil {
		if err := e.emitTag(); err != nil {
			return err
		}
	}
	e.text.WriteString(text)
	return nil
}

// EndElement ends the current element.
func (e *Encoder) EndElement() error {
	if err := e.ready("EE"); err != nil {
		return err
	}
	if err := e.flush(); err != nil {
		return err
	}
	lex := e.stack.Lexicon()
	et := lex.EE()
	if et == nil || et.Kind != grammar.EE {
		// simple content must be present
		// even when it is empty
		ch := lex.First(grammar.CH)
		if ch == nil || e.parse(ch.Type, e.stack.Name(), "") == nil {
			return notAdmissible("EE", lex)
		}
		if err := e.characters(lex, ch, e.codec(ch.Type)); err != nil {
			return err
		}
		lex = e.stack.Lexicon()
		if et = lex.EE(); et == nil {
			return notAdmissible("EE", lex)
		}
	}
	if err := e.writeCode(lex, et); err != nil {
		return err
	}
	if err := e.stack.EndElement(et); err != nil {
		return err
	}
	if n := len(e.marks); n > 0 {
		e.scope = e.scope[:e.marks[n-1]]
		e.marks = e.marks[:n-1]
	}
	return nil
}

// Comment writes a comment. Comments are
// dropped unless PreserveComments is set.
func (e *Encoder) Comment(text string) error {
	if err := e.misc("CM", grammar.CM, e.opts.PreserveComments); err != nil || !e.opts.PreserveComments {
		return err
	}
	e.chans.Structure().WriteString(text)
	return nil
}

// ProcessingInstruction writes a processing
// instruction. PIs are dropped unless
// PreservePIs is set.
func (e *Encoder) ProcessingInstruction(target, data string) error {
	if err := e.misc("PI", grammar.PI, e.opts.PreservePIs); err != nil || !e.opts.PreservePIs {
		return err
	}
	w := e.chans.Structure()
	w.WriteString(target)
	w.WriteString(data)
	return nil
}

// DocType writes a document type declaration.
// It is dropped unless PreserveDTD is set.
func (e *Encoder) DocType(name, public, system, text string) error {
	if err := e.misc("DT", grammar.DT, e.opts.PreserveDTD); err != nil || !e.opts.PreserveDTD {
		return err
	}
	w := e.chans.Structure()
	w.WriteString(name)
	w.WriteString(public)
	w.WriteString(system)
	w.WriteString(text)
	return nil
}

// EntityReference writes an unexpanded
// entity reference. It requires PreserveDTD.
func (e *Encoder) EntityReference(name string) error {
	if !e.opts.PreserveDTD {
		return exierr.New(exierr.Unsupported, "entity reference %q requires preserveDTD", name)
	}
	if err := e.misc("ER", grammar.ER, true); err != nil {
		return err
	}
	e.chans.Structure().WriteString(name)
	return nil
}

// misc writes the event code of a CM, PI, DT
// or ER event when keep is set. The caller
// writes the payload.
func (e *Encoder) misc(what string, kind grammar.Kind, keep bool) error {
	if err := e.ready(what); err != nil {
		return err
	}
	if err := e.flush(); err != nil || !keep {
		return err
	}
	lex := e.stack.Lexicon()
	et := lex.First(kind)
	if et == nil {
		return notAdmissible(what, lex)
	}
	if err := e.writeCode(lex, et); err != nil {
		return err
	}
	return e.stack.Misc(et)
}

// Encode writes one event.
func (e *Encoder) Encode(ev *Event) error {
	switch ev.Kind {
	case StartDocument:
		return e.StartDocument()
	case EndDocument:
		return e.EndDocument()
	case StartElement:
		return e.StartElement(ev.URI, ev.Local, ev.Prefix)
	case EndElement:
		return e.EndElement()
	case Attribute:
		return e.Attribute(ev.URI, ev.Local, ev.Prefix, ev.Value)
	case Characters:
		return e.Characters(ev.Value)
	case NamespaceDeclaration:
		return e.NamespaceDeclaration(ev.Prefix, ev.URI)
	case Comment:
		return e.Comment(ev.Value)
	case ProcessingInstruction:
		return e.ProcessingInstruction(ev.Local, ev.Value)
	case DocType:
		return e.DocType(ev.Local, ev.Public, ev.System, ev.Value)
	case EntityReference:
		return e.EntityReference(ev.Local)
	}
	return fmt.Errorf("exi: unknown event kind %s", ev.Kind)
}

// flush emits a buffered start tag
// and buffered characters.
func (e *Encoder) flush() error {
	if e.tag != nil {
		if err := e.emitTag(); err != nil {
			return err
		}
	}
	if e.text.Len() == 0 {
		return nil
	}
	text := e.text.String()
	e.text.Reset()
	lex := e.stack.Lexicon()
	if e.stack.Depth() == 0 {
		if utf8.AllSpace(text) {
			return nil
		}
		return notAdmissible("CH", lex)
	}
	if !e.opts.PreserveWhitespace && utf8.AllSpace(text) && e.elementOnly(lex) {
		return nil
	}
	owner := e.stack.Name()
	var et *grammar.EventType
	var c value.Codec
	if typed := lex.First(grammar.CH); typed != nil {
		et, c = typed, e.parse(typed.Type, owner, text)
		if c == nil {
			if et = lex.First(grammar.CHundeclared); et == nil {
				return invalidValue(owner, text)
			}
			c = e.parse(nil, owner, text)
		}
	} else {
		if et = lex.First(grammar.CHmixed); et == nil {
			et = lex.First(grammar.CHundeclared)
		}
		if et == nil {
			return notAdmissible("CH", lex)
		}
		c = e.parse(nil, owner, text)
	}
	return e.characters(lex, et, c)
}

// characters writes a CH event whose
// value has been parsed into e.scr.
func (e *Encoder) characters(lex *grammar.EventTypeList, et *grammar.EventType, c value.Codec) error {
	if err := e.writeCode(lex, et); err != nil {
		return err
	}
	if err := e.writeValue(c); err != nil {
		return err
	}
	return e.stack.Characters(et)
}

// elementOnly returns whether a schema-informed
// grammar admits characters here only as
// undeclared content.
func (e *Encoder) elementOnly(lex *grammar.EventTypeList) bool {
	return !e.stack.Builtin() && lex.First(grammar.CH) == nil && lex.First(grammar.CHmixed) == nil
}

func (e *Encoder) lookup(prefix string) (string, bool) {
	for i := len(e.scope) - 1; i >= 0; i-- {
		if e.scope[i].prefix == prefix {
			return e.scope[i].uri, true
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

// checkPrefix checks that prefix is bound
// to uri. An attribute without a prefix is
// in no namespace.
func (e *Encoder) checkPrefix(prefix, uri string, attribute bool) error {
	bound, ok := "", true
	if prefix != "" || !attribute {
		bound, ok = e.lookup(prefix)
	}
	if !ok {
		return exierr.Binding(exierr.PrefixNotBound, prefix, uri, "")
	}
	if bound != uri {
		return exierr.Binding(exierr.PrefixMismatch, prefix, uri, bound)
	}
	return nil
}

// resolve resolves a lexical qname
// against the namespaces in scope.
func (e *Encoder) resolve(v string) (schema.QName, string, error) {
	v = strings.Trim(v, xmlSpace)
	prefix, local, ok := strings.Cut(v, ":")
	if !ok {
		prefix, local = "", v
	}
	uri, ok := e.lookup(prefix)
	if !ok {
		return schema.QName{}, "", exierr.Binding(exierr.PrefixNotBound, prefix, "", "")
	}
	return schema.QName{Space: uri, Local: local}, prefix, nil
}

// validate checks the prefixes of a start tag.
func (e *Encoder) validate(t *startTag) error {
	check := func(prefix, uri string, attribute bool) error {
		if prefix == "" && !e.opts.PreservePrefixes {
			return nil
		}
		return e.checkPrefix(prefix, uri, attribute)
	}
	if err := check(t.prefix, t.name.Space, false); err != nil {
		return err
	}
	for _, a := range t.attrs {
		if err := check(a.prefix, a.name.Space, true); err != nil {
			return err
		}
	}
	for _, a := range []*attr{t.xsiType, t.xsiNil} {
		if a != nil {
			if err := check(a.prefix, schema.XSINamespace, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// emitTag writes the buffered start tag: the
// SE event, namespace declarations, xsi:type,
// xsi:nil and the attributes, sorted by name
// under a schema.
func (e *Encoder) emitTag() error {
	t := e.tag
	e.tag = nil
	if err := e.validate(t); err != nil {
		return err
	}
	lex := e.stack.Lexicon()
	et := lex.Match(grammar.SE, t.name)
	if et == nil {
		et = lex.Match(grammar.SEns, t.name)
	}
	if et == nil {
		et = lex.First(grammar.SEany)
	}
	if et == nil {
		return notAdmissible(fmt.Sprintf("SE(%s)", t.name), lex)
	}
	if err := e.writeCode(lex, et); err != nil {
		return err
	}
	if err := e.writeName(payloadOf(et.Kind), t.name, ""); err != nil {
		return err
	}
	if err := e.stack.StartElement(et, t.name); err != nil {
		return err
	}
	if e.opts.PreservePrefixes {
		local := false
		for _, b := range t.ns {
			own := !local && b.prefix == t.prefix && b.uri == t.name.Space
			if err := e.namespace(b, own); err != nil {
				return err
			}
			local = local || own
		}
		if !local {
			e.sePrefix = &elementPrefix{uriID: e.table.EnsureURI(t.name.Space), prefix: t.prefix}
		}
	}
	if t.xsiType != nil {
		if err := e.xsiTypeAttribute(t.xsiType); err != nil {
			return err
		}
	}
	if t.xsiNil != nil {
		if err := e.xsiNilAttribute(t.xsiNil); err != nil {
			return err
		}
	}
	if e.corpus != nil {
		slices.SortStableFunc(t.attrs, func(a, b attr) bool {
			return a.name.Less(b.name)
		})
	}
	for i := range t.attrs {
		if err := e.attribute(&t.attrs[i]); err != nil {
			return err
		}
	}
	return nil
}

// namespace writes an NS event. own is set
// for the declaration of the element's prefix.
func (e *Encoder) namespace(b binding, own bool) error {
	lex := e.stack.Lexicon()
	et := lex.First(grammar.NS)
	if et == nil {
		return notAdmissible("NS", lex)
	}
	if err := e.writeCode(lex, et); err != nil {
		return err
	}
	w := e.chans.Structure()
	id := e.table.WriteURI(w, b.uri)
	e.table.WritePrefix(w, id, b.prefix)
	w.WriteBool(own)
	return e.stack.Misc(et)
}

// wildcard returns the event type of an
// attribute matched by a wildcard, or nil.
func wildcard(lex *grammar.EventTypeList, q schema.QName) *grammar.EventType {
	if et := lex.Match(grammar.ATns, q); et != nil {
		return et
	}
	return lex.First(grammar.ATany)
}

func (e *Encoder) xsiTypeAttribute(a *attr) error {
	q, prefix, err := e.resolve(a.value)
	if err != nil {
		return err
	}
	lex := e.stack.Lexicon()
	et := lex.First(grammar.ATxsiType)
	if et == nil {
		et = lex.First(grammar.ATany)
	}
	if et == nil {
		return notAdmissible("AT(xsi:type)", lex)
	}
	if err := e.writeCode(lex, et); err != nil {
		return err
	}
	if err := e.writeName(payloadOf(et.Kind), schema.XsiType, a.prefix); err != nil {
		return err
	}
	w := e.chans.Structure()
	id := e.table.WriteQName(w, q)
	if e.opts.PreservePrefixes {
		if err := e.table.WriteQNamePrefix(w, id, prefix); err != nil {
			return err
		}
	}
	if err := e.stack.Attribute(et, schema.XsiType); err != nil {
		return err
	}
	e.xsiType(q)
	return nil
}

func (e *Encoder) xsiNilAttribute(a *attr) error {
	b, ok := parseBool(a.value)
	if !ok {
		return invalidValue(schema.XsiNil, a.value)
	}
	lex := e.stack.Lexicon()
	et := lex.First(grammar.ATxsiNil)
	if et == nil {
		et = lex.First(grammar.ATany)
	}
	if et == nil {
		return notAdmissible("AT(xsi:nil)", lex)
	}
	if err := e.writeCode(lex, et); err != nil {
		return err
	}
	if err := e.writeName(payloadOf(et.Kind), schema.XsiNil, a.prefix); err != nil {
		return err
	}
	if et.Kind == grammar.ATxsiNil {
		e.chans.Value(e.nilKey()).WriteBool(b)
		if err := e.chans.EndValue(); err != nil {
			return err
		}
	} else {
		e.chans.Structure().WriteBool(b)
	}
	if err := e.stack.Attribute(et, schema.XsiNil); err != nil {
		return err
	}
	if b {
		e.stack.Nil()
	}
	return nil
}

func (e *Encoder) attribute(a *attr) error {
	lex := e.stack.Lexicon()
	q := a.name
	var et *grammar.EventType
	var c value.Codec
	if decl := lex.Match(grammar.AT, q); decl != nil {
		et, c = decl, e.parse(decl.Type, q, a.value)
		if c == nil {
			if et = lex.Match(grammar.ATinvalid, q); et == nil {
				return invalidValue(q, a.value)
			}
			c = e.parse(nil, q, a.value)
		}
	} else {
		if et = wildcard(lex, q); et != nil {
			c = e.parse(e.globalType(q), q, a.value)
		}
		if c == nil {
			wild := et
			if et = lex.First(grammar.ATanyUntyped); et == nil {
				if wild != nil {
					return invalidValue(q, a.value)
				}
				return notAdmissible(fmt.Sprintf("AT(%s)", q), lex)
			}
			c = e.parse(nil, q, a.value)
		}
	}
	if err := e.writeCode(lex, et); err != nil {
		return err
	}
	if err := e.writeName(payloadOf(et.Kind), q, a.prefix); err != nil {
		return err
	}
	if err := e.writeValue(c); err != nil {
		return err
	}
	return e.stack.Attribute(et, q)
}
