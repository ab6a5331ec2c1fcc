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

package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/SnellerInc/exi"
	"github.com/SnellerInc/exi/grammar"
	"github.com/SnellerInc/exi/schema"

	"go.uber.org/zap"
)

var (
	dashv      bool
	dashh      bool
	dashindent bool
	dashs      string
	dashc      string
	dasho      string
	dasha      string
)

func init() {
	flag.BoolVar(&dashv, "v", false, "verbose")
	flag.BoolVar(&dashh, "h", false, "show usage help")
	flag.BoolVar(&dashindent, "indent", false, "indent decoded XML")
	flag.StringVar(&dashs, "s", "", "schema description (.json or .yaml)")
	flag.StringVar(&dashc, "c", "", "options file (.json or .yaml)")
	flag.StringVar(&dasho, "o", "-", "output file (or - for stdout)")
	flag.StringVar(&dasha, "alignment", "", "override the alignment option")
}

func exitf(f string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, f, args...)
	os.Exit(1)
}

func logger() *zap.Logger {
	if !dashv {
		return zap.NewNop()
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		exitf("zap.NewDevelopment: %s\n", err)
	}
	return l
}

func options(log *zap.Logger) *exi.Options {
	opts := exi.DefaultOptions()
	if dashc != "" {
		buf, err := os.ReadFile(dashc)
		if err != nil {
			exitf("%s\n", err)
		}
		loaded, err := exi.LoadOptions(buf)
		if err != nil {
			exitf("loading %s: %s\n", dashc, err)
		}
		opts = *loaded
	}
	if dasha != "" {
		if err := opts.Alignment.UnmarshalText([]byte(dasha)); err != nil {
			exitf("%s\n", err)
		}
	}
	opts.Logger = log
	return &opts
}

func corpus() *schema.Corpus {
	if dashs == "" {
		return nil
	}
	buf, err := os.ReadFile(dashs)
	if err != nil {
		exitf("%s\n", err)
	}
	c, err := schema.Decode(buf)
	if err != nil {
		exitf("schema %s: %s\n", dashs, err)
	}
	return c
}

func input(args []string) io.ReadCloser {
	if len(args) == 0 || args[0] == "-" {
		return io.NopCloser(os.Stdin)
	}
	f, err := os.Open(args[0])
	if err != nil {
		exitf("can't open %q: %s\n", args[0], err)
	}
	return f
}

func output() (*bufio.Writer, func()) {
	out := os.Stdout
	if dasho != "-" {
		f, err := os.Create(dasho)
		if err != nil {
			exitf("%s\n", err)
		}
		out = f
	}
	w := bufio.NewWriter(out)
	return w, func() {
		if err := w.Flush(); err != nil {
			exitf("%s\n", err)
		}
		if err := out.Close(); err != nil {
			exitf("%s\n", err)
		}
	}
}

// entry point for 'exi encode ...'
func encode(args []string) {
	log := logger()
	defer log.Sync()
	in := input(args)
	defer in.Close()
	w, done := output()
	start := time.Now()
	enc, err := exi.NewEncoder(w, corpus(), options(log))
	if err != nil {
		exitf("%s\n", err)
	}
	n := 0
	err = newXMLReader(in).each(func(ev *exi.Event) error {
		n++
		return enc.Encode(ev)
	})
	if err != nil {
		exitf("encode: %s\n", err)
	}
	if err := enc.Close(); err != nil {
		exitf("encode: %s\n", err)
	}
	done()
	log.Debug("encoded", zap.Int("events", n), zap.Duration("elapsed", time.Since(start)))
}

// entry point for 'exi decode ...'
func decode(args []string) {
	log := logger()
	defer log.Sync()
	in := input(args)
	defer in.Close()
	w, done := output()
	dec, err := exi.NewDecoder(in, corpus(), options(log))
	if err != nil {
		exitf("%s\n", err)
	}
	defer dec.Close()
	if err := dec.ProcessHeader(); err != nil {
		exitf("decode: %s\n", err)
	}
	x := newXMLWriter(w, dec.Options().Fragment, dashindent)
	for {
		ev, err := dec.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			exitf("decode: %s\n", err)
		}
		if err := x.write(ev); err != nil {
			exitf("writing xml: %s\n", err)
		}
	}
	done()
}

// entry point for 'exi grammar ...'
func grammars() {
	c := corpus()
	opts := options(zap.NewNop())
	var g grammar.Options
	if opts.Strict {
		g = g.Add(grammar.Strict)
	}
	if opts.PreservePrefixes {
		g = g.Add(grammar.PreserveNamespaces)
	}
	cache, err := grammar.DefaultRegistry.Get(c, g)
	if err != nil {
		exitf("%s\n", err)
	}
	fmt.Printf("%d grammars for options %s\n", grammar.DefaultRegistry.Len(), cache.Options())
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 || dashh {
		fmt.Fprintf(os.Stderr, "usage:\n")
		fmt.Fprintf(os.Stderr, "    %s [-s <schema>] [-c <options>] [-o <output>] encode <file.xml>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "        encode an XML document as EXI\n")
		fmt.Fprintf(os.Stderr, "    %s [-s <schema>] [-c <options>] [-o <output>] decode <file.exi>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "        decode an EXI stream as XML\n")
		fmt.Fprintf(os.Stderr, "    %s [-s <schema>] [-c <options>] grammar\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "        build the grammars of a schema\n")
		fmt.Fprintf(os.Stderr, "flag usage:\n")
		flag.Usage()
		os.Exit(1)
	}
	switch args[0] {
	case "encode":
		encode(args[1:])
	case "decode":
		decode(args[1:])
	case "grammar":
		grammars()
	default:
		exitf("unknown command %q\n", args[0])
	}
}
