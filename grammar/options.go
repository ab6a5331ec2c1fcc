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

package grammar

import (
	"strings"
)

// Options selects the productions a grammar
// cache contains. The zero value is Default.
type Options uint8

const (
	// Strict removes every production for
	// content the schema does not declare.
	Strict Options = 1 << iota
	// PreserveNamespaces adds NS productions.
	PreserveNamespaces
	// PreserveComments adds CM productions.
	PreserveComments
	// PreservePIs adds PI productions.
	PreservePIs
	// PreserveDTD adds DT and ER productions.
	PreserveDTD
	// SelfContained adds SC productions.
	SelfContained
)

// Default keeps the extensibility productions
// and preserves nothing optional.
const Default Options = 0

// Union returns the combination of opts.
func Union(opts ...Options) Options {
	var o Options
	for _, x := range opts {
		o |= x
	}
	return o
}

// Has returns whether every bit of x is set in o.
func (o Options) Has(x Options) bool { return o&x == x }

// Add returns o with the bits of x set.
func (o Options) Add(x Options) Options { return o | x }

var optionNames = []struct {
	bit  Options
	name string
}{
	{Strict, "strict"},
	{PreserveNamespaces, "ns"},
	{PreserveComments, "cm"},
	{PreservePIs, "pi"},
	{PreserveDTD, "dtd"},
	{SelfContained, "sc"},
}

func (o Options) String() string {
	if o == Default {
		return "default"
	}
	var parts []string
	for _, n := range optionNames {
		if o.Has(n.bit) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}
