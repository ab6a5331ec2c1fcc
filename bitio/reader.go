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

package bitio

import (
	"bytes"
	"errors"
	"io"
	"math/big"
	"strings"

	"github.com/SnellerInc/exi/exierr"
)

// maxLength bounds the lengths accepted for
// strings and binary values so that corrupt
// input cannot force huge allocations.
const maxLength = 1 << 28

// Reader is the decoding counterpart of Writer.
type Reader struct {
	src     io.ByteReader
	cur     byte
	left    uint // bits remaining in cur
	aligned bool
	eof     exierr.Code
}

// NewReader constructs a Reader over src.
func NewReader(src io.ByteReader, aligned bool) *Reader {
	return &Reader{src: src, aligned: aligned, eof: exierr.Truncated}
}

// NewBytesReader constructs a Reader over buf.
func NewBytesReader(buf []byte, aligned bool) *Reader {
	return NewReader(bytes.NewReader(buf), aligned)
}

// SetExhausted sets the error code reported
// when the underlying source runs out of data.
// The default is exierr.Truncated.
func (r *Reader) SetExhausted(code exierr.Code) { r.eof = code }

// Aligned returns whether r is byte-aligned.
func (r *Reader) Aligned() bool { return r.aligned }

// Align discards the remaining bits
// of the current partial byte.
func (r *Reader) Align() {
	r.left = 0
	r.cur = 0
}

func (r *Reader) fail(err error) error {
	if errors.Is(err, io.EOF) {
		return exierr.New(r.eof, "unexpected end of stream")
	}
	return err
}

func (r *Reader) bit() (uint, error) {
	if r.left == 0 {
		b, err := r.src.ReadByte()
		if err != nil {
			return 0, r.fail(err)
		}
		r.cur = b
		r.left = 8
	}
	r.left--
	return uint(r.cur>>r.left) & 1, nil
}

func (r *Reader) octet() (byte, error) {
	if r.left == 0 {
		b, err := r.src.ReadByte()
		if err != nil {
			return 0, r.fail(err)
		}
		return b, nil
	}
	var out byte
	for i := 0; i < 8; i++ {
		b, err := r.bit()
		if err != nil {
			return 0, err
		}
		out = out<<1 | byte(b)
	}
	return out, nil
}

// ReadBits reads an n-bit unsigned integer.
func (r *Reader) ReadBits(n int) (uint64, error) {
	if n < 0 || n > 64 {
		panic("bitio: invalid bit width")
	}
	var v uint64
	if r.aligned {
		for shift := 0; shift < n; shift += 8 {
			b, err := r.src.ReadByte()
			if err != nil {
				return 0, r.fail(err)
			}
			v |= uint64(b) << shift
		}
		if n < 64 {
			v &= (uint64(1) << n) - 1
		}
		return v, nil
	}
	for i := 0; i < n; i++ {
		b, err := r.bit()
		if err != nil {
			return 0, err
		}
		v = v<<1 | uint64(b)
	}
	return v, nil
}

// ReadBool reads a Boolean.
func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadBits(1)
	return v != 0, err
}

// ReadUint reads an Unsigned Integer that fits in 64 bits.
func (r *Reader) ReadUint() (uint64, error) {
	var v uint64
	for shift := uint(0); ; shift += 7 {
		b, err := r.octet()
		if err != nil {
			return 0, err
		}
		if shift > 63 || (shift == 63 && b&0x7f > 1) {
			return 0, exierr.New(exierr.Malformed, "unsigned integer overflows 64 bits")
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, nil
		}
	}
}

// ReadBigUint reads an arbitrary precision Unsigned Integer.
func (r *Reader) ReadBigUint() (*big.Int, error) {
	var groups []byte
	for {
		b, err := r.octet()
		if err != nil {
			return nil, err
		}
		groups = append(groups, b&0x7f)
		if b&0x80 == 0 {
			break
		}
		if len(groups) > maxLength {
			return nil, exierr.New(exierr.Malformed, "unsigned integer too long")
		}
	}
	v := new(big.Int)
	for i := len(groups) - 1; i >= 0; i-- {
		v.Lsh(v, 7)
		v.Or(v, big.NewInt(int64(groups[i])))
	}
	return v, nil
}

// ReadInt reads an Integer that fits in 64 bits.
func (r *Reader) ReadInt() (int64, error) {
	neg, err := r.ReadBool()
	if err != nil {
		return 0, err
	}
	mag, err := r.ReadUint()
	if err != nil {
		return 0, err
	}
	if mag > 1<<63-1 {
		return 0, exierr.New(exierr.Malformed, "integer overflows 64 bits")
	}
	if neg {
		return -int64(mag) - 1, nil
	}
	return int64(mag), nil
}

// ReadBigInt reads an arbitrary precision Integer.
func (r *Reader) ReadBigInt() (*big.Int, error) {
	neg, err := r.ReadBool()
	if err != nil {
		return nil, err
	}
	mag, err := r.ReadBigUint()
	if err != nil {
		return nil, err
	}
	if neg {
		mag.Add(mag, big.NewInt(1))
		mag.Neg(mag)
	}
	return mag, nil
}

// ReadChars reads n code points.
func (r *Reader) ReadChars(n int) (string, error) {
	if n > maxLength {
		return "", exierr.New(exierr.Malformed, "string length %d too large", n)
	}
	var b strings.Builder
	for i := 0; i < n; i++ {
		c, err := r.ReadUint()
		if err != nil {
			return "", err
		}
		if c > 0x10ffff {
			return "", exierr.New(exierr.Malformed, "invalid code point %#x", c)
		}
		b.WriteRune(rune(c))
	}
	return b.String(), nil
}

// ReadString reads a length-prefixed String.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadUint()
	if err != nil {
		return "", err
	}
	if n > maxLength {
		return "", exierr.New(exierr.Malformed, "string length %d too large", n)
	}
	return r.ReadChars(int(n))
}

// ReadBinary reads a length-prefixed byte sequence.
func (r *Reader) ReadBinary() ([]byte, error) {
	n, err := r.ReadUint()
	if err != nil {
		return nil, err
	}
	if n > maxLength {
		return nil, exierr.New(exierr.Malformed, "binary length %d too large", n)
	}
	return r.ReadBytes(int(n))
}

// ReadBytes reads n raw octets. The result
// grows with the input actually read, so a
// corrupt n fails when the input ends.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, exierr.New(exierr.Malformed, "negative length %d", n)
	}
	out := make([]byte, 0, min(n, 4096))
	for len(out) < n {
		b, err := r.octet()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
