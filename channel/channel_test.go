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
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/SnellerInc/exi/bitio"
	"github.com/SnellerInc/exi/compr"
	"github.com/SnellerInc/exi/exierr"
	"github.com/SnellerInc/exi/schema"
)

// op writes n to the structure channel
// when name is empty, and otherwise writes
// the string value s owned by name
type op struct {
	name string
	n    uint64
	s    string
}

func script(values int) []op {
	var ops []op
	for i := 0; i < values; i++ {
		ops = append(ops, op{n: uint64(i % 7)})
		name := "a"
		if i%3 == 1 {
			name = "b"
		}
		ops = append(ops, op{name: name, s: fmt.Sprintf("value-%d", i)})
	}
	return append(ops, op{n: 5})
}

func key(name string) Key {
	return PolicyQName.Key(schema.QName{Local: name}, schema.FamilyString)
}

func encode(t *testing.T, cfg Config, ops []op) ([]byte, *Multiplexer) {
	t.Helper()
	var buf bytes.Buffer
	m, err := NewMultiplexer(&buf, cfg)
	if err != nil {
		t.Fatal(err)
	}
	for _, o := range ops {
		if o.name == "" {
			m.Structure().WriteBits(o.n, 3)
			continue
		}
		m.Value(key(o.name)).WriteString(o.s)
		if err := m.EndValue(); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.Finish(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes(), m
}

func decode(buf []byte, cfg Config, ops []op) error {
	d, err := NewDemultiplexer(bufio.NewReader(bytes.NewReader(buf)), cfg)
	if err != nil {
		return err
	}
	defer d.Close()
	for i, o := range ops {
		if o.name == "" {
			r, err := d.Structure()
			if err != nil {
				return err
			}
			n, err := r.ReadBits(3)
			if err != nil {
				return err
			}
			if n != o.n {
				return fmt.Errorf("op %d: read %d, want %d", i, n, o.n)
			}
			continue
		}
		r, err := d.Value(key(o.name))
		if err != nil {
			return err
		}
		s, err := r.ReadString()
		if err != nil {
			return err
		}
		if s != o.s {
			return fmt.Errorf("op %d: read %q, want %q", i, s, o.s)
		}
		d.EndValue()
	}
	return d.Finish()
}

func TestRoundTrip(t *testing.T) {
	ops := script(100)
	for _, size := range []int{Unbounded, 1, 2, 7, 100, 1000} {
		for _, compress := range []bool{false, true} {
			for _, threaded := range []bool{false, true} {
				name := fmt.Sprintf("size=%d/compress=%v/threaded=%v", size, compress, threaded)
				t.Run(name, func(t *testing.T) {
					cfg := Config{BlockSize: size, Compress: compress}
					buf, m := encode(t, cfg, ops)
					want := 1
					if size != Unbounded {
						want = 100/size + 1
					}
					if m.Blocks() != want {
						t.Errorf("%d blocks, want %d", m.Blocks(), want)
					}
					cfg.Threaded = threaded
					if err := decode(buf, cfg, ops); err != nil {
						t.Fatal(err)
					}
				})
			}
		}
	}
}

func TestCompressor(t *testing.T) {
	ops := script(200)
	plain, _ := encode(t, Config{Compress: true}, ops)
	huffman, _ := encode(t, Config{Compress: true, Compressor: compr.Compression("deflate-huffman")}, ops)
	if bytes.Equal(plain, huffman) {
		t.Fatal("Compressor did not reach the multiplexer")
	}
	for _, buf := range [][]byte{plain, huffman} {
		if err := decode(buf, Config{Compress: true}, ops); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := NewMultiplexer(io.Discard, Config{BlockSize: -1}); !errors.Is(err, exierr.ErrOptions) {
		t.Fatalf("negative block size: got %v", err)
	}
}

func TestBlockSizeMismatch(t *testing.T) {
	ops := script(20)
	testcases := []struct{ enc, dec int }{
		{1, Unbounded},
		{Unbounded, 1},
		{3, 4},
	}
	for _, tc := range testcases {
		for _, compress := range []bool{false, true} {
			buf, _ := encode(t, Config{BlockSize: tc.enc, Compress: compress}, ops)
			err := decode(buf, Config{BlockSize: tc.dec, Compress: compress}, ops)
			if !errors.Is(err, exierr.ErrBlockDesync) {
				t.Errorf("block size %d vs %d: got %v", tc.enc, tc.dec, err)
			}
		}
	}
}

func TestEmptyBlock(t *testing.T) {
	buf, m := encode(t, Config{BlockSize: 1}, nil)
	if m.Blocks() != 1 {
		t.Fatalf("%d blocks", m.Blocks())
	}
	// one channel of length zero
	if !bytes.Equal(buf, []byte{1, 0}) {
		t.Fatalf("empty block encoded as %x", buf)
	}
	d, err := NewDemultiplexer(bufio.NewReader(bytes.NewReader(buf)), Config{BlockSize: 1})
	if err != nil {
		t.Fatal(err)
	}
	r, err := d.Structure()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.ReadBits(1); !errors.Is(err, exierr.ErrBlockDesync) {
		t.Fatalf("reading past an empty structure channel: %v", err)
	}
	if err := d.Finish(); err != nil {
		t.Fatal(err)
	}
}

func TestChannelOrder(t *testing.T) {
	ops := []op{
		{name: "b", s: "1"},
		{name: "a", s: "2"},
		{name: "b", s: "3"},
		{n: 1},
	}
	_, m := encode(t, Config{}, ops)
	keys := m.Channels()
	if len(keys) != 2 || keys[0] != key("b") || keys[1] != key("a") {
		t.Fatalf("channels %v", keys)
	}
	fam := PolicyFamily.Key(schema.QName{Local: "x"}, schema.FamilyBoolean)
	if !fam.Name.IsZero() || fam.Family != schema.FamilyBoolean {
		t.Fatalf("family key %+v", fam)
	}
}

func TestTrailingBlock(t *testing.T) {
	ops := script(3)
	buf, _ := encode(t, Config{}, ops)
	extra, _ := encode(t, Config{}, []op{{n: 1}})
	err := decode(append(buf, extra...), Config{}, ops)
	if !errors.Is(err, exierr.ErrBlockDesync) {
		t.Fatalf("got %v", err)
	}
}

func TestCorruptCompression(t *testing.T) {
	ops := script(10)
	buf, _ := encode(t, Config{Compress: true}, ops)
	// structure channel length is the second byte;
	// flip the first payload byte after the lengths
	bad := append([]byte(nil), buf...)
	bad[1+int(bad[0])] ^= 0xff
	for _, threaded := range []bool{false, true} {
		err := decode(bad, Config{Compress: true, Threaded: threaded}, ops)
		if err == nil {
			t.Fatalf("threaded=%v: corrupt stream decoded", threaded)
		}
	}
}

func TestCorruptFrameLength(t *testing.T) {
	frame := func(size uint64) []byte {
		w := bitio.NewWriter(true)
		w.WriteUint(1)
		w.WriteUint(size)
		w.WriteBytes([]byte{0x01, 0x02})
		return w.Bytes()
	}
	tcs := []struct {
		size uint64
		want error
	}{
		{1 << 63, exierr.ErrMalformed},
		{maxChannelSize + 1, exierr.ErrMalformed},
		// plausible but longer than the input
		{maxChannelSize, exierr.ErrTruncated},
	}
	for _, tc := range tcs {
		err := decode(frame(tc.size), Config{}, []op{{n: 1}})
		if !errors.Is(err, tc.want) {
			t.Errorf("length %d: got %v, want %v", tc.size, err, tc.want)
		}
	}
}

func TestCloseEarly(t *testing.T) {
	ops := script(500)
	buf, _ := encode(t, Config{BlockSize: 1, Compress: true}, ops)
	d, err := NewDemultiplexer(bufio.NewReader(bytes.NewReader(buf)), Config{BlockSize: 1, Compress: true, Threaded: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Structure(); err != nil {
		t.Fatal(err)
	}
	// must not hang with the worker blocked on a send
	d.Close()
	d.Close()
}

func TestInline(t *testing.T) {
	for _, aligned := range []bool{false, true} {
		var buf bytes.Buffer
		w := NewInline(bitio.NewWriter(aligned), &buf)
		w.Structure().WriteBits(5, 3)
		w.Value(key("a")).WriteString("hello")
		w.EndValue()
		w.Structure().WriteBits(2, 3)
		if err := w.Finish(); err != nil {
			t.Fatal(err)
		}
		r := NewInlineReader(bitio.NewBytesReader(buf.Bytes(), aligned))
		s, _ := r.Structure()
		if n, _ := s.ReadBits(3); n != 5 {
			t.Fatalf("aligned=%v: read %d", aligned, n)
		}
		v, _ := r.Value(key("a"))
		if str, _ := v.ReadString(); str != "hello" {
			t.Fatalf("aligned=%v: read %q", aligned, str)
		}
		r.EndValue()
		if n, _ := s.ReadBits(3); n != 2 {
			t.Fatalf("aligned=%v: read %d", aligned, n)
		}
		if err := r.Finish(); err != nil {
			t.Fatal(err)
		}
	}
}
