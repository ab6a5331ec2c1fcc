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

// Package bitio implements the primitive EXI
// encodings (n-bit unsigned integers, Boolean,
// Unsigned Integer, Integer, String and Binary)
// in both the bit-packed and the byte-aligned
// representation.
package bitio

import (
	"io"
	"math/big"

	"github.com/SnellerInc/exi/utf8"
)

// Writer accumulates an EXI bit stream in memory.
//
// In bit-packed mode, n-bit values are written
// most significant bit first with no padding.
// In byte-aligned mode, an n-bit value occupies
// ceil(n/8) bytes, least significant byte first.
//
// The zero value is a bit-packed Writer.
type Writer struct {
	buf     []byte
	cur     byte // partial byte, bits fill from the top
	used    uint // number of bits used in cur
	aligned bool
}

// NewWriter constructs a Writer.
func NewWriter(aligned bool) *Writer {
	return &Writer{aligned: aligned}
}

// Aligned returns whether w is byte-aligned.
func (w *Writer) Aligned() bool { return w.aligned }

// Reset discards the contents of w.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
	w.cur = 0
	w.used = 0
}

// Bits returns the number of bits written.
func (w *Writer) Bits() int {
	return len(w.buf)*8 + int(w.used)
}

// Bytes returns the written bytes, including
// any partial final byte padded with zeros.
// The returned slice aliases the Writer's buffer.
func (w *Writer) Bytes() []byte {
	if w.used > 0 {
		return append(w.buf, w.cur)
	}
	return w.buf
}

// Align pads the stream with zero bits
// up to the next byte boundary.
func (w *Writer) Align() {
	if w.used > 0 {
		w.buf = append(w.buf, w.cur)
		w.cur = 0
		w.used = 0
	}
}

// Drain writes every complete byte to dst
// and removes it from w. A partial trailing
// byte stays buffered.
func (w *Writer) Drain(dst io.Writer) error {
	if len(w.buf) == 0 {
		return nil
	}
	_, err := dst.Write(w.buf)
	w.buf = w.buf[:0]
	return err
}

func (w *Writer) bit(b uint) {
	w.cur |= byte(b&1) << (7 - w.used)
	w.used++
	if w.used == 8 {
		w.buf = append(w.buf, w.cur)
		w.cur = 0
		w.used = 0
	}
}

func (w *Writer) octet(b byte) {
	if w.used == 0 {
		w.buf = append(w.buf, b)
		return
	}
	for i := 7; i >= 0; i-- {
		w.bit(uint(b >> i))
	}
}

// WriteBits writes the low n bits of v
// as an n-bit unsigned integer.
func (w *Writer) WriteBits(v uint64, n int) {
	if n < 0 || n > 64 {
		panic("bitio: invalid bit width")
	}
	if w.aligned {
		for n > 0 {
			w.buf = append(w.buf, byte(v))
			v >>= 8
			n -= 8
		}
		return
	}
	for i := n - 1; i >= 0; i-- {
		w.bit(uint(v >> i))
	}
}

// WriteBool writes a Boolean.
func (w *Writer) WriteBool(b bool) {
	v := uint64(0)
	if b {
		v = 1
	}
	w.WriteBits(v, 1)
}

// WriteUint writes an Unsigned Integer as a
// sequence of 7-bit groups, least significant
// group first, with the high bit of each octet
// set when more octets follow.
func (w *Writer) WriteUint(v uint64) {
	for v >= 0x80 {
		w.octet(byte(v) | 0x80)
		v >>= 7
	}
	w.octet(byte(v))
}

var mask7 = big.NewInt(0x7f)

// WriteBigUint writes an arbitrary precision
// Unsigned Integer. v must not be negative.
func (w *Writer) WriteBigUint(v *big.Int) {
	if v.IsUint64() {
		w.WriteUint(v.Uint64())
		return
	}
	tmp := new(big.Int).Set(v)
	group := new(big.Int)
	for {
		group.And(tmp, mask7)
		tmp.Rsh(tmp, 7)
		if tmp.Sign() == 0 {
			w.octet(byte(group.Uint64()))
			return
		}
		w.octet(byte(group.Uint64()) | 0x80)
	}
}

// WriteInt writes an Integer: a sign Boolean
// followed by the magnitude. Negative values
// store -v-1 as the magnitude.
func (w *Writer) WriteInt(v int64) {
	if v < 0 {
		w.WriteBool(true)
		w.WriteUint(uint64(-(v + 1)))
		return
	}
	w.WriteBool(false)
	w.WriteUint(uint64(v))
}

// WriteBigInt writes an arbitrary precision Integer.
func (w *Writer) WriteBigInt(v *big.Int) {
	if v.Sign() < 0 {
		w.WriteBool(true)
		mag := new(big.Int).Neg(v)
		w.WriteBigUint(mag.Sub(mag, big.NewInt(1)))
		return
	}
	w.WriteBool(false)
	w.WriteBigUint(v)
}

// WriteChars writes the code points of s
// without a length prefix.
func (w *Writer) WriteChars(s string) {
	for _, r := range s {
		w.WriteUint(uint64(r))
	}
}

// WriteString writes a String: the number
// of code points followed by the code points.
func (w *Writer) WriteString(s string) {
	w.WriteUint(uint64(utf8.ValidStringLength(s)))
	w.WriteChars(s)
}

// WriteBinary writes a length-prefixed byte sequence.
func (w *Writer) WriteBinary(b []byte) {
	w.WriteUint(uint64(len(b)))
	for _, c := range b {
		w.octet(c)
	}
}

// WriteBytes writes raw octets.
func (w *Writer) WriteBytes(b []byte) {
	if w.used == 0 {
		w.buf = append(w.buf, b...)
		return
	}
	for _, c := range b {
		w.octet(c)
	}
}
