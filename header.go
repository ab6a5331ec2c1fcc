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
	"io"
	"strconv"

	"github.com/SnellerInc/exi/bitio"
	"github.com/SnellerInc/exi/channel"
	"github.com/SnellerInc/exi/exierr"
	"github.com/SnellerInc/exi/schema"
)

// Cookie is the optional first four
// bytes of an EXI stream.
const Cookie = "$EXI"

const (
	distinguishingBits = 2 // binary 10
	versionBits        = 4
	// version 1, coded as version-1
	formatVersion = 1
)

// headerOptions configures the sessions that
// code the options document of a header.
func headerOptions() Options {
	return Options{
		Strict:                 true,
		ValueMaxLength:         Unbounded,
		ValuePartitionCapacity: Unbounded,
		BlockSize:              DefaultBlockSize,
	}
}

// writeHeader writes the header of a stream
// with options opts. The header is always
// bit-packed; padding is up to the caller.
func writeHeader(w *bitio.Writer, opts *Options, corpus *schema.Corpus) error {
	if opts.IncludeCookie {
		w.WriteBytes([]byte(Cookie))
	}
	w.WriteBits(distinguishingBits, 2)
	w.WriteBool(opts.IncludeOptions)
	w.WriteBool(false) // final version
	w.WriteBits(formatVersion-1, versionBits)
	if !opts.IncludeOptions {
		return nil
	}
	e := &Encoder{embedded: true}
	hopts := headerOptions()
	if err := e.init(schema.HeaderSchema(), &hopts); err != nil {
		return err
	}
	e.chans = channel.NewInline(w, nil)
	od := optionsDoc{e: e}
	od.write(opts, corpus)
	if od.err != nil {
		return exierr.Wrap(exierr.Header, od.err, "writing options")
	}
	return nil
}

// optionsDoc writes an options document,
// keeping the first error.
type optionsDoc struct {
	e   *Encoder
	err error
}

func (d *optionsDoc) start(local string) {
	if d.err == nil {
		d.err = d.e.StartElement(schema.EXINamespace, local, "")
	}
}

func (d *optionsDoc) end() {
	if d.err == nil {
		d.err = d.e.EndElement()
	}
}

func (d *optionsDoc) flag(local string, set bool) {
	if set {
		d.start(local)
		d.end()
	}
}

func (d *optionsDoc) text(local, text string) {
	d.start(local)
	if d.err == nil {
		d.err = d.e.Characters(text)
	}
	d.end()
}

func (d *optionsDoc) write(o *Options, corpus *schema.Corpus) {
	alignment := o.Alignment == ByteAligned || o.Alignment == PreCompression
	uncommon := alignment || o.SelfContained ||
		o.ValueMaxLength != Unbounded || o.ValuePartitionCapacity != Unbounded
	preserve := o.PreserveDTD || o.PreservePrefixes || o.PreserveLexicalValues ||
		o.PreserveComments || o.PreservePIs
	blockSize := o.blockSize() != DefaultBlockSize
	common := o.Alignment == Compression || o.Fragment || o.IncludeSchemaID

	if d.err == nil {
		d.err = d.e.StartDocument()
	}
	d.start("header")
	if uncommon || preserve || blockSize {
		d.start("lesscommon")
		if uncommon {
			d.start("uncommon")
			if alignment {
				d.start("alignment")
				d.flag("byte", o.Alignment == ByteAligned)
				d.flag("pre-compress", o.Alignment == PreCompression)
				d.end()
			}
			d.flag("selfContained", o.SelfContained)
			if o.ValueMaxLength != Unbounded {
				d.text("valueMaxLength", strconv.Itoa(o.ValueMaxLength))
			}
			if o.ValuePartitionCapacity != Unbounded {
				d.text("valuePartitionCapacity", strconv.Itoa(o.ValuePartitionCapacity))
			}
			d.end()
		}
		if preserve {
			d.start("preserve")
			d.flag("dtd", o.PreserveDTD)
			d.flag("prefixes", o.PreservePrefixes)
			d.flag("lexicalValues", o.PreserveLexicalValues)
			d.flag("comments", o.PreserveComments)
			d.flag("pis", o.PreservePIs)
			d.end()
		}
		if blockSize {
			d.text("blockSize", strconv.Itoa(o.blockSize()))
		}
		d.end()
	}
	if common {
		d.start("common")
		d.flag("compression", o.Alignment == Compression)
		d.flag("fragment", o.Fragment)
		if o.IncludeSchemaID {
			d.start("schemaId")
			if corpus == nil {
				if d.err == nil {
					d.err = d.e.Attribute(schema.XSINamespace, "nil", "", "true")
				}
			} else if d.err == nil {
				id := o.SchemaID
				if id == "" {
					id = corpus.ID()
				}
				d.err = d.e.Characters(id)
			}
			d.end()
		}
		d.end()
	}
	d.flag("strict", o.Strict)
	d.end()
	if d.err == nil {
		d.err = d.e.EndDocument()
	}
}

// header is what a decoded header
// says beyond the options themselves.
type header struct {
	options bool
	// schemaID is nil when absent
	schemaID  *string
	schemaNil bool
}

// readHeader reads a header from src and returns
// the bit reader positioned after it along with
// the options in force. The options of hint are
// used for everything the header does not carry.
func readHeader(src *bufio.Reader, hint *Options) (*bitio.Reader, Options, header, error) {
	var h header
	opts := *hint
	peek, err := src.Peek(1)
	if err != nil {
		return nil, opts, h, exierr.Wrap(exierr.Header, err, "reading header")
	}
	if peek[0] == Cookie[0] {
		var buf [len(Cookie)]byte
		if _, err := io.ReadFull(src, buf[:]); err != nil {
			return nil, opts, h, exierr.Wrap(exierr.Header, err, "reading cookie")
		}
		if string(buf[:]) != Cookie {
			return nil, opts, h, exierr.New(exierr.Header, "bad cookie %q", buf[:])
		}
	}
	r := bitio.NewReader(src, false)
	r.SetExhausted(exierr.Header)
	bits, err := r.ReadBits(2)
	if err != nil {
		return nil, opts, h, err
	}
	if bits != distinguishingBits {
		return nil, opts, h, exierr.New(exierr.Header, "distinguishing bits %02b", bits)
	}
	if h.options, err = r.ReadBool(); err != nil {
		return nil, opts, h, err
	}
	preview, err := r.ReadBool()
	if err != nil {
		return nil, opts, h, err
	}
	version := 1
	for {
		v, err := r.ReadBits(versionBits)
		if err != nil {
			return nil, opts, h, err
		}
		version += int(v)
		if v != 1<<versionBits-1 {
			break
		}
	}
	if preview || version != formatVersion {
		return nil, opts, h, exierr.New(exierr.Unsupported, "format version %d (preview %v)", version, preview)
	}
	if h.options {
		if err := readOptions(r, &opts, &h); err != nil {
			return nil, opts, h, err
		}
	}
	r.SetExhausted(exierr.Truncated)
	return r, opts, h, nil
}

// readOptions decodes the options document of
// a header into opts. Every option the header
// can carry is reset to its default first.
func readOptions(r *bitio.Reader, opts *Options, h *header) error {
	d := &Decoder{embedded: true, processed: true}
	hopts := headerOptions()
	if err := d.init(schema.HeaderSchema(), &hopts); err != nil {
		return err
	}
	d.chans = channel.NewInlineReader(r)

	def := DefaultOptions()
	opts.Alignment = def.Alignment
	opts.Fragment, opts.Strict, opts.SelfContained = false, false, false
	opts.PreserveDTD, opts.PreservePrefixes, opts.PreserveLexicalValues = false, false, false
	opts.PreserveComments, opts.PreservePIs = false, false
	opts.ValueMaxLength = def.ValueMaxLength
	opts.ValuePartitionCapacity = def.ValuePartitionCapacity
	opts.BlockSize = def.BlockSize

	number := func(s string) (int, error) {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, exierr.Wrap(exierr.Header, err, "options value")
		}
		return n, nil
	}
	var path []string
	compression := false
	for {
		ev, err := d.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		top := ""
		if len(path) > 0 {
			top = path[len(path)-1]
		}
		switch ev.Kind {
		case StartElement:
			path = append(path, ev.Local)
			if ev.URI != schema.EXINamespace {
				continue
			}
			switch ev.Local {
			case "byte":
				opts.Alignment = ByteAligned
			case "pre-compress":
				opts.Alignment = PreCompression
			case "compression":
				compression = true
			case "selfContained":
				opts.SelfContained = true
			case "datatypeRepresentationMap":
				return exierr.New(exierr.Unsupported, "datatype representation maps")
			case "dtd":
				opts.PreserveDTD = true
			case "prefixes":
				opts.PreservePrefixes = true
			case "lexicalValues":
				opts.PreserveLexicalValues = true
			case "comments":
				opts.PreserveComments = true
			case "pis":
				opts.PreservePIs = true
			case "fragment":
				opts.Fragment = true
			case "strict":
				opts.Strict = true
			case "schemaId":
				h.schemaID = new(string)
			}
		case EndElement:
			path = path[:len(path)-1]
		case Attribute:
			if top == "schemaId" && ev.URI == schema.XSINamespace && ev.Local == "nil" && ev.Value == "true" {
				h.schemaNil = true
			}
		case Characters:
			switch top {
			case "valueMaxLength":
				opts.ValueMaxLength, err = number(ev.Value)
			case "valuePartitionCapacity":
				opts.ValuePartitionCapacity, err = number(ev.Value)
			case "blockSize":
				opts.BlockSize, err = number(ev.Value)
			case "schemaId":
				*h.schemaID = ev.Value
			}
			if err != nil {
				return err
			}
		}
	}
	if compression {
		opts.Alignment = Compression
	}
	return nil
}
