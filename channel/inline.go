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

package channel

import (
	"io"

	"github.com/SnellerInc/exi/bitio"
)

// flushBits is how much an Inline writer
// buffers before draining to its destination.
const flushBits = 32 << 10 * 8

// Inline is a Writer in which every channel
// is one bit-packed or byte-aligned stream.
type Inline struct {
	w   *bitio.Writer
	dst io.Writer
}

// NewInline returns an Inline writer that
// continues w and drains it to dst. With a nil
// dst the bits stay in w.
func NewInline(w *bitio.Writer, dst io.Writer) *Inline {
	return &Inline{w: w, dst: dst}
}

func (i *Inline) Structure() *bitio.Writer { return i.w }

func (i *Inline) Value(Key) *bitio.Writer { return i.w }

// EndValue drains the complete bytes
// once enough have accumulated.
func (i *Inline) EndValue() error {
	if i.dst != nil && i.w.Bits() >= flushBits {
		return i.w.Drain(i.dst)
	}
	return nil
}

// Finish pads the stream to a byte
// boundary and drains it.
func (i *Inline) Finish() error {
	i.w.Align()
	return i.w.Drain(i.dst)
}

// InlineReader is the Reader of an Inline stream.
type InlineReader struct {
	r *bitio.Reader
}

// NewInlineReader returns an InlineReader
// that continues r.
func NewInlineReader(r *bitio.Reader) *InlineReader {
	return &InlineReader{r: r}
}

func (i *InlineReader) Structure() (*bitio.Reader, error) { return i.r, nil }

func (i *InlineReader) Value(Key) (*bitio.Reader, error) { return i.r, nil }

func (i *InlineReader) EndValue() {}

// Finish discards the padding of the final byte.
func (i *InlineReader) Finish() error {
	i.r.Align()
	return nil
}

func (i *InlineReader) Close() error { return nil }
