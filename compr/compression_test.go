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

package compr

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/klauspost/compress/flate"
)

func TestDeflate(t *testing.T) {
	for _, name := range []string{"deflate", "deflate-filtered", "deflate-huffman"} {
		t.Run(name, func(t *testing.T) {
			comp := Compression(name)
			if comp == nil {
				t.Fatalf("no compressor for %s", name)
			} else if n := comp.Name(); n != name {
				t.Fatalf("bad compressor name %q", n)
			}
			dec := Decompression(name)
			if dec == nil {
				t.Fatalf("no decompressor for %s", name)
			}
			// test separate buffers
			ctl := bytes.Repeat([]byte("<item>foo</item>"), 1000)
			src := append([]byte(nil), ctl...)
			cmp := comp.Compress(src, nil)
			got, err := dec.Decompress(cmp, nil)
			if err != nil {
				t.Fatal(err)
			} else if !bytes.Equal(ctl, got) {
				t.Fatal("mismatch")
			}
			// test appending and overlapping buffers
			cmp = comp.Compress(src[10:], src[:8])
			if !bytes.Equal(cmp[:8], ctl[:8]) {
				t.Fatal("prefix clobbered")
			}
			got, err = dec.Decompress(cmp[8:], []byte("prefix"))
			if err != nil {
				t.Fatal(err)
			} else if string(got[:6]) != "prefix" || !bytes.Equal(ctl[10:], got[6:]) {
				t.Fatal("mismatch")
			}
		})
	}
}

func TestEmpty(t *testing.T) {
	comp := Compression("deflate")
	cmp := comp.Compress(nil, nil)
	if len(cmp) == 0 {
		t.Fatal("an empty stream still has a final block")
	}
	got, err := Decompression("deflate").Decompress(cmp, nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("got %q %v", got, err)
	}
}

// Huffman-only coding cannot exploit repetition,
// so it must lose to the default level on
// repetitive input.
func TestStrategyOrdering(t *testing.T) {
	var buf bytes.Buffer
	for i := 0; i < 2000; i++ {
		fmt.Fprintf(&buf, "<record id=\"%d\"><name>widget</name></record>", i%50)
	}
	src := buf.Bytes()
	sizes := make(map[string]int)
	for _, name := range []string{"deflate", "deflate-filtered", "deflate-huffman"} {
		sizes[name] = len(Compression(name).Compress(src, nil))
	}
	if sizes["deflate"] > sizes["deflate-filtered"] {
		t.Errorf("default level %d bytes, fast level %d bytes", sizes["deflate"], sizes["deflate-filtered"])
	}
	if sizes["deflate-filtered"] >= sizes["deflate-huffman"] {
		t.Errorf("fast level %d bytes, huffman only %d bytes", sizes["deflate-filtered"], sizes["deflate-huffman"])
	}
}

func TestLevels(t *testing.T) {
	for _, level := range []int{flate.HuffmanOnly, flate.DefaultCompression, flate.NoCompression, flate.BestSpeed, flate.BestCompression} {
		comp, err := Deflate(level)
		if err != nil {
			t.Fatalf("level %d: %v", level, err)
		}
		src := bytes.Repeat([]byte("abcabd"), 100)
		got, err := Decompression("deflate").Decompress(comp.Compress(src, nil), nil)
		if err != nil || !bytes.Equal(got, src) {
			t.Fatalf("level %d: round trip failed: %v", level, err)
		}
	}
	if _, err := Deflate(42); err == nil {
		t.Fatal("expected an error for level 42")
	}
	if Compression("zstd") != nil || Decompression("s2") != nil {
		t.Fatal("only deflate variants are supported")
	}
}

func TestCorrupt(t *testing.T) {
	cmp := Compression("deflate").Compress(bytes.Repeat([]byte("x"), 100), nil)
	if _, err := Decompression("deflate").Decompress(cmp[:len(cmp)/2], nil); err == nil {
		t.Fatal("expected an error for a truncated stream")
	}
	if _, err := Decompression("deflate").Decompress(append(cmp, 0xff), nil); err == nil {
		t.Fatal("expected an error for trailing data")
	}
}

func TestOverlaps(t *testing.T) {
	// trivial case
	a := make([]byte, 10)
	b := make([]byte, 20)
	if overlaps(a, b) {
		t.Error("overlaps(a, b) should be false")
	}
	// a and b are adjacent (no overlap)
	a = make([]byte, 10, 30)
	b = a[10:]
	if overlaps(a, b) {
		t.Error("overlaps(a, b) should be false")
	} else if overlaps(b, a) {
		t.Error("overlaps(b, a) should be false")
	}
	// a and b overlap by 5
	b = a[5:]
	if !overlaps(a, b) {
		t.Error("overlaps(a, b) should be true")
	} else if !overlaps(b, a) {
		t.Error("overlaps(b, a) should be true")
	}
}
