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
	"strings"

	"github.com/SnellerInc/exi"
	"github.com/SnellerInc/exi/schema"
)

var (
	dashs string
	dashp bool
)

func init() {
	flag.StringVar(&dashs, "s", "", "schema description (.json or .yaml)")
	flag.BoolVar(&dashp, "p", false, "print the header options of each input")
}

func dump(o *bufio.Writer, in io.Reader, corpus *schema.Corpus) error {
	dec, err := exi.NewDecoder(in, corpus, nil)
	if err != nil {
		return err
	}
	defer dec.Close()
	if err := dec.ProcessHeader(); err != nil {
		return err
	}
	if dashp {
		opts := dec.Options()
		fmt.Fprintf(o, "# alignment=%s strict=%v fragment=%v schema=%q\n",
			opts.Alignment, opts.Strict, opts.Fragment, opts.SchemaID)
	}
	depth := 0
	for {
		ev, err := dec.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if ev.Kind == exi.EndElement {
			depth--
		}
		fmt.Fprintf(o, "%s%s\n", strings.Repeat("  ", depth), ev)
		if ev.Kind == exi.StartElement {
			depth++
		}
	}
}

func main() {
	flag.Parse()
	var corpus *schema.Corpus
	if dashs != "" {
		buf, err := os.ReadFile(dashs)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		corpus, err = schema.Decode(buf)
		if err != nil {
			fmt.Fprintf(os.Stderr, "schema %s: %s\n", dashs, err)
			os.Exit(1)
		}
	}
	o := bufio.NewWriter(os.Stdout)
	args := flag.Args()
	if len(args) == 0 {
		args = []string{"-"}
	}
	var inbuf *bufio.Reader
	for _, arg := range args {
		var err error
		var in *os.File
		if arg == "-" {
			in = os.Stdin
		} else {
			in, err = os.Open(arg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "can't open %q: %s\n", arg, err)
				os.Exit(1)
			}
		}
		if inbuf == nil {
			inbuf = bufio.NewReader(in)
		} else {
			inbuf.Reset(in)
		}
		if err := dump(o, inbuf, corpus); err != nil {
			fmt.Fprintf(os.Stderr, "input %s: %s\n", arg, err)
			os.Exit(1)
		}
	}
	if err := o.Flush(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
