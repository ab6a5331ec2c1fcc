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

// Package ints provides int-related common functions.
package ints

import (
	"math/bits"
	"unsafe"

	"golang.org/x/exp/constraints"
)

// TestBit check if the k-th bit is set in range "in"
func TestBit[T, K constraints.Integer](in []T, k K) bool {
	return (in[uintptr(k)/(unsafe.Sizeof(in[0])*8)] & (T(1) << (uintptr(k) % (unsafe.Sizeof(in[0]) * 8)))) != 0
}

// SetBit sets the k-th bit in range "in"
func SetBit[T, K constraints.Integer](in []T, k K) {
	in[uintptr(k)/(unsafe.Sizeof(in[0])*8)] |= (T(1) << (uintptr(k) % (unsafe.Sizeof(in[0]) * 8)))
}

// Width returns the number of bits needed to
// distinguish n values, i.e. ceil(log2(n)).
// Width returns 0 for n <= 1.
func Width[T constraints.Integer](n T) int {
	if n <= 1 {
		return 0
	}
	return bits.Len64(uint64(n - 1))
}

// Set is a fixed-size bitset.
type Set []uint64

// NewSet returns a Set that can hold n bits.
func NewSet(n int) Set {
	return make(Set, (n+63)/64)
}

// Has returns whether bit k is set.
func (s Set) Has(k int) bool { return TestBit(s, k) }

// Add sets bit k and returns whether it was
// previously clear.
func (s Set) Add(k int) bool {
	if TestBit(s, k) {
		return false
	}
	SetBit(s, k)
	return true
}

// Each calls fn for each set bit in ascending order.
func (s Set) Each(fn func(k int)) {
	for i, w := range s {
		for w != 0 {
			b := bits.TrailingZeros64(w)
			fn(i*64 + b)
			w &= w - 1
		}
	}
}

// Empty returns whether no bit is set.
func (s Set) Empty() bool {
	for _, w := range s {
		if w != 0 {
			return false
		}
	}
	return true
}

// Key returns a string usable as a map key
// that uniquely identifies the contents of s.
func (s Set) Key() string {
	buf := make([]byte, len(s)*8)
	for i, w := range s {
		for j := 0; j < 8; j++ {
			buf[i*8+j] = byte(w >> (8 * j))
		}
	}
	return string(buf)
}
