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

// Package compr provides a unified interface wrapping
// the DEFLATE implementation used for compressed
// EXI channels.
package compr

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"unsafe"

	"github.com/klauspost/compress/flate"
)

// Compressor describes the interface that the
// channel multiplexer needs a compression
// algorithm to implement.
type Compressor interface {
	// Name is the name of the compression algorithm.
	Name() string
	// Compress should append the compressed contents
	// of src to dst and return the result.
	Compress(src, dst []byte) []byte
}

// Decompressor is the interface that the channel
// demultiplexer uses to inflate channels.
type Decompressor interface {
	// Name is the name of the compression algorithm.
	// See also Compressor.Name.
	Name() string
	// Decompress appends the decompressed contents
	// of src to dst and returns the result.
	//
	// It must be safe to make multiple
	// calls to Decompress simultaneously
	// from different goroutines.
	Decompress(src, dst []byte) ([]byte, error)
}

// appender is an io.Writer that appends to buf.
type appender struct {
	buf []byte
}

func (a *appender) Write(p []byte) (int, error) {
	a.buf = append(a.buf, p...)
	return len(p), nil
}

type deflateCompressor struct {
	name    string
	level   int
	writers sync.Pool
}

func newDeflate(name string, level int) *deflateCompressor {
	return &deflateCompressor{name: name, level: level}
}

func (d *deflateCompressor) Name() string { return d.name }

func (d *deflateCompressor) Compress(src, dst []byte) []byte {
	out := &appender{buf: dst}
	// the compressor writes into the spare
	// capacity of dst, which must not alias src
	if overlaps(src, dst[len(dst):cap(dst)]) {
		out.buf = append(make([]byte, 0, len(dst)+len(src)/2), dst...)
	}
	w, _ := d.writers.Get().(*flate.Writer)
	if w == nil {
		var err error
		w, err = flate.NewWriter(out, d.level)
		if err != nil {
			// levels are validated by Deflate
			panic(err)
		}
	} else {
		w.Reset(out)
	}
	// writes to an appender cannot fail
	w.Write(src)
	w.Close()
	w.Reset(io.Discard)
	d.writers.Put(w)
	return out.buf
}

type deflateDecompressor struct{}

var readers sync.Pool

func (deflateDecompressor) Name() string { return "deflate" }

func (deflateDecompressor) Decompress(src, dst []byte) ([]byte, error) {
	in := bytes.NewReader(src)
	r, _ := readers.Get().(io.ReadCloser)
	if r == nil {
		r = flate.NewReader(in)
	} else if err := r.(flate.Resetter).Reset(in, nil); err != nil {
		return dst, err
	}
	defer readers.Put(r)
	buf := bytes.NewBuffer(dst)
	if _, err := buf.ReadFrom(r); err != nil {
		return dst, fmt.Errorf("deflate: %w", err)
	}
	if in.Len() != 0 {
		return dst, fmt.Errorf("deflate: %d trailing bytes after end of stream", in.Len())
	}
	return buf.Bytes(), nil
}

var (
	deflateDefault  = newDeflate("deflate", flate.DefaultCompression)
	deflateFiltered = newDeflate("deflate-filtered", flate.BestSpeed)
	deflateHuffman  = newDeflate("deflate-huffman", flate.HuffmanOnly)
)

// Deflate returns a DEFLATE compressor with the given
// level, which must be flate.HuffmanOnly or between
// flate.DefaultCompression and flate.BestCompression.
func Deflate(level int) (Compressor, error) {
	switch level {
	case flate.DefaultCompression:
		return deflateDefault, nil
	case flate.HuffmanOnly:
		return deflateHuffman, nil
	}
	if level < flate.NoCompression || level > flate.BestCompression {
		return nil, fmt.Errorf("compr: invalid deflate level %d", level)
	}
	return newDeflate(fmt.Sprintf("deflate-%d", level), level), nil
}

// Compression selects a compression algorithm by name.
// The returned Compressor will return the same value
// for Compressor.Name as the specified name.
func Compression(name string) Compressor {
	switch name {
	case "deflate":
		return deflateDefault
	case "deflate-filtered":
		return deflateFiltered
	case "deflate-huffman":
		return deflateHuffman
	default:
		return nil
	}
}

// Decompression selects a decompressor by name.
// Every deflate variant shares one decompressor.
func Decompression(name string) Decompressor {
	switch name {
	case "deflate", "deflate-filtered", "deflate-huffman":
		return deflateDecompressor{}
	default:
		return nil
	}
}

func overlaps(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	a0 := uintptr(unsafe.Pointer(&a[0]))
	a1 := a0 + uintptr(len(a))
	b0 := uintptr(unsafe.Pointer(&b[0]))
	b1 := b0 + uintptr(len(b))
	return a0 < b1 && b0 < a1
}
