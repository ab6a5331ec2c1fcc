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
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/SnellerInc/exi/bitio"
	"github.com/SnellerInc/exi/channel"
	"github.com/SnellerInc/exi/exierr"
	"github.com/SnellerInc/exi/grammar"
	"github.com/SnellerInc/exi/schema"
	"github.com/SnellerInc/exi/value"

	"go.uber.org/zap"
)

// Decoder reads the events of an EXI stream.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	session

	src   *bufio.Reader
	given *schema.Corpus
	hint  Options
	chans channel.Reader

	embedded  bool
	processed bool
	done      bool

	queue []Event
	head  int
	// ahead is an event code read past
	// the namespace declarations of an
	// element to find its prefix
	ahead *grammar.EventType

	scope     []binding
	marks     []int
	generated map[string]string
}

// NewDecoder returns a Decoder reading from r.
// The corpus may be nil for schema-less streams.
// opts supplies the options of streams whose
// header does not carry them; the header wins
// otherwise. A nil opts selects DefaultOptions.
func NewDecoder(r io.Reader, corpus *schema.Corpus, opts *Options) (*Decoder, error) {
	if opts == nil {
		def := DefaultOptions()
		opts = &def
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Decoder{src: br, given: corpus, hint: *opts}, nil
}

// ProcessHeader reads the header and prepares
// the body. Next calls it implicitly.
func (d *Decoder) ProcessHeader() error {
	if d.processed {
		return nil
	}
	d.processed = true
	r, opts, h, err := readHeader(d.src, &d.hint)
	if err != nil {
		return err
	}
	corpus := d.given
	switch {
	case h.schemaNil:
		corpus = nil
	case h.schemaID != nil && *h.schemaID != "":
		id := *h.schemaID
		if corpus == nil {
			return exierr.New(exierr.Header, "stream requires schema %q", id)
		}
		if id != corpus.ID() && id != d.hint.SchemaID {
			return exierr.New(exierr.Header, "stream schema %q does not match %q", id, corpus.ID())
		}
	}
	if err := d.init(corpus, &opts); err != nil {
		return err
	}
	switch opts.Alignment {
	case BitPacked:
		d.chans = channel.NewInlineReader(r)
	case ByteAligned:
		r.Align()
		d.chans = channel.NewInlineReader(bitio.NewReader(d.src, true))
	default:
		r.Align()
		demux, err := channel.NewDemultiplexer(d.src, opts.channels())
		if err != nil {
			return err
		}
		d.chans = demux
	}
	d.log.Debug("decoder started", append(d.fields(), zap.Bool("header options", h.options))...)
	return nil
}

// Options returns the options in force,
// which are only known once the header
// has been processed.
func (d *Decoder) Options() Options {
	if !d.processed {
		return d.hint
	}
	return d.opts
}

// Close stops any background inflater.
func (d *Decoder) Close() error {
	if d.chans == nil {
		return nil
	}
	return d.chans.Close()
}

func (d *Decoder) push(ev Event) { d.queue = append(d.queue, ev) }

// Next returns the next event. It returns
// io.EOF once the ED event has been returned.
func (d *Decoder) Next() (*Event, error) {
	if err := d.ProcessHeader(); err != nil {
		return nil, err
	}
	for d.head == len(d.queue) {
		d.queue, d.head = d.queue[:0], 0
		if d.done {
			return nil, io.EOF
		}
		if err := d.decode(); err != nil {
			return nil, err
		}
	}
	ev := d.queue[d.head]
	d.head++
	return &ev, nil
}

func (d *Decoder) readCode() (*grammar.EventType, error) {
	if et := d.ahead; et != nil {
		d.ahead = nil
		return et, nil
	}
	r, err := d.chans.Structure()
	if err != nil {
		return nil, err
	}
	return d.stack.Lexicon().ReadCode(r)
}

// decode decodes one event code with its
// payload and queues the resulting events.
func (d *Decoder) decode() error {
	et, err := d.readCode()
	if err != nil {
		return err
	}
	r, err := d.chans.Structure()
	if err != nil {
		return err
	}
	sh := payloadOf(et.Kind)
	switch k := et.Kind; {
	case k == grammar.SD:
		if err := d.stack.StartDocument(et); err != nil {
			return err
		}
		d.push(Event{Kind: StartDocument})
	case k == grammar.ED:
		return d.end(et)
	case k.IsStartElement():
		return d.startElement(r, et, sh)
	case k == grammar.EE:
		if err := d.stack.EndElement(et); err != nil {
			return err
		}
		if n := len(d.marks); n > 0 {
			d.scope = d.scope[:d.marks[n-1]]
			d.marks = d.marks[:n-1]
		}
		d.push(Event{Kind: EndElement})
	case k.IsAttribute():
		return d.attribute(r, et, sh)
	case k.IsCharacters():
		return d.characters(et)
	case k == grammar.NS:
		ev, err := d.namespace(r, et)
		if err != nil {
			return err
		}
		d.push(ev)
	case k == grammar.SC:
		return unsupported()
	default:
		return d.misc(r, et)
	}
	return nil
}

func (d *Decoder) end(et *grammar.EventType) error {
	if err := d.stack.EndDocument(et); err != nil {
		return err
	}
	d.done = true
	if !d.embedded {
		if err := d.chans.Finish(); err != nil {
			return err
		}
		d.log.Debug("decoder finished", zap.Stringer("session", d.id))
	}
	d.push(Event{Kind: EndDocument})
	return nil
}

// readName reads the name of an event
// according to its shape.
func (d *Decoder) readName(r *bitio.Reader, et *grammar.EventType, sh shape) (schema.QName, error) {
	switch sh.name {
	case declaredName:
		return et.Name, nil
	case localName:
		local, err := d.table.ReadLocal(r, d.table.EnsureURI(et.URI))
		return schema.QName{Space: et.URI, Local: local}, err
	case fullName:
		q, _, err := d.table.ReadQName(r)
		return q, err
	}
	switch et.Kind {
	case grammar.ATxsiType:
		return schema.XsiType, nil
	case grammar.ATxsiNil:
		return schema.XsiNil, nil
	}
	return schema.QName{}, nil
}

func (d *Decoder) readPrefix(r *bitio.Reader, sh shape, q schema.QName) (string, error) {
	if !sh.prefix || !d.opts.PreservePrefixes {
		return "", nil
	}
	return d.table.ReadQNamePrefix(r, d.table.EnsureURI(q.Space))
}

func (d *Decoder) readValue(owner schema.QName, c value.Codec) (string, error) {
	r, err := d.chans.Value(d.key(owner, c))
	if err != nil {
		return "", err
	}
	d.scr.Reset(d.table, owner)
	v, err := c.Read(r, &d.scr)
	if err != nil {
		return "", err
	}
	d.chans.EndValue()
	return v, nil
}

func (d *Decoder) startElement(r *bitio.Reader, et *grammar.EventType, sh shape) error {
	q, err := d.readName(r, et, sh)
	if err != nil {
		return err
	}
	if err := d.stack.StartElement(et, q); err != nil {
		return err
	}
	d.marks = append(d.marks, len(d.scope))
	se := len(d.queue)
	d.push(Event{Kind: StartElement, URI: q.Space, Local: q.Local})
	if !d.opts.PreservePrefixes {
		return nil
	}
	// the prefix of the element is carried by one of
	// its namespace declarations or follows the first
	// event code after them
	own := false
	for {
		next, err := d.readCode()
		if err != nil {
			return err
		}
		if next.Kind != grammar.NS {
			d.ahead = next
			break
		}
		r, err := d.chans.Structure()
		if err != nil {
			return err
		}
		ns, err := d.namespace(r, next)
		if err != nil {
			return err
		}
		if ns.ElementNS && !own {
			own = true
			d.queue[se].Prefix = ns.Prefix
		}
		d.push(ns)
	}
	if !own {
		r, err := d.chans.Structure()
		if err != nil {
			return err
		}
		p, err := d.table.ReadQNamePrefix(r, d.table.EnsureURI(q.Space))
		if err != nil {
			return err
		}
		d.queue[se].Prefix = p
	}
	return nil
}

func (d *Decoder) namespace(r *bitio.Reader, et *grammar.EventType) (Event, error) {
	uri, id, err := d.table.ReadURI(r)
	if err != nil {
		return Event{}, err
	}
	prefix, err := d.table.ReadPrefix(r, id)
	if err != nil {
		return Event{}, err
	}
	own, err := r.ReadBool()
	if err != nil {
		return Event{}, err
	}
	if err := d.stack.Misc(et); err != nil {
		return Event{}, err
	}
	d.scope = append(d.scope, binding{prefix: prefix, uri: uri})
	return Event{Kind: NamespaceDeclaration, URI: uri, Prefix: prefix, ElementNS: own}, nil
}

// prefixFor returns a prefix for uri when
// prefixes are not preserved.
func (d *Decoder) prefixFor(uri string) string {
	for i := len(d.scope) - 1; i >= 0; i-- {
		if d.scope[i].uri == uri {
			return d.scope[i].prefix
		}
	}
	if p, ok := d.table.Prefix(uri); ok {
		return p
	}
	if p, ok := d.generated[uri]; ok {
		return p
	}
	if d.generated == nil {
		d.generated = make(map[string]string)
	}
	p := fmt.Sprintf("ns%d", len(d.generated))
	d.generated[uri] = p
	return p
}

func (d *Decoder) attribute(r *bitio.Reader, et *grammar.EventType, sh shape) error {
	q, err := d.readName(r, et, sh)
	if err != nil {
		return err
	}
	prefix, err := d.readPrefix(r, sh, q)
	if err != nil {
		return err
	}
	ev := Event{Kind: Attribute, URI: q.Space, Local: q.Local, Prefix: prefix}
	switch attrValue(sh, q) {
	case xsiTypeValue:
		tq, id, err := d.table.ReadQName(r)
		if err != nil {
			return err
		}
		var tp string
		if d.opts.PreservePrefixes {
			if tp, err = d.table.ReadQNamePrefix(r, id); err != nil {
				return err
			}
		} else {
			tp = d.prefixFor(tq.Space)
		}
		ev.Value, ev.ValueURI = tq.Local, tq.Space
		if tp != "" {
			ev.Value = tp + ":" + tq.Local
		}
		if err := d.stack.Attribute(et, q); err != nil {
			return err
		}
		d.xsiType(tq)
	case xsiNilValue:
		var b bool
		if et.Kind == grammar.ATxsiNil {
			vr, err := d.chans.Value(d.nilKey())
			if err != nil {
				return err
			}
			if b, err = vr.ReadBool(); err != nil {
				return err
			}
			d.chans.EndValue()
		} else if b, err = r.ReadBool(); err != nil {
			return err
		}
		ev.Value = strconv.FormatBool(b)
		if err := d.stack.Attribute(et, q); err != nil {
			return err
		}
		if b {
			d.stack.Nil()
		}
	default:
		v, err := d.readValue(q, d.codec(d.valueType(et, q)))
		if err != nil {
			return err
		}
		ev.Value = v
		if err := d.stack.Attribute(et, q); err != nil {
			return err
		}
	}
	d.push(ev)
	return nil
}

func (d *Decoder) characters(et *grammar.EventType) error {
	owner := d.stack.Name()
	v, err := d.readValue(owner, d.codec(d.valueType(et, owner)))
	if err != nil {
		return err
	}
	if err := d.stack.Characters(et); err != nil {
		return err
	}
	// empty simple content is coded
	// but is not an event of its own
	if v != "" {
		d.push(Event{Kind: Characters, Value: v})
	}
	return nil
}

// misc decodes CM, PI, DT and ER events.
func (d *Decoder) misc(r *bitio.Reader, et *grammar.EventType) error {
	var strs [4]string
	n := 1
	switch et.Kind {
	case grammar.PI:
		n = 2
	case grammar.DT:
		n = 4
	}
	for i := 0; i < n; i++ {
		s, err := r.ReadString()
		if err != nil {
			return err
		}
		strs[i] = s
	}
	if err := d.stack.Misc(et); err != nil {
		return err
	}
	switch et.Kind {
	case grammar.CM:
		d.push(Event{Kind: Comment, Value: strs[0]})
	case grammar.PI:
		d.push(Event{Kind: ProcessingInstruction, Local: strs[0], Value: strs[1]})
	case grammar.DT:
		d.push(Event{Kind: DocType, Local: strs[0], Public: strs[1], System: strs[2], Value: strs[3]})
	case grammar.ER:
		d.push(Event{Kind: EntityReference, Local: strs[0]})
	}
	return nil
}
