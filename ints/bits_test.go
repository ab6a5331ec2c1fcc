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

package ints

import (
	"testing"
)

func TestWidth(t *testing.T) {
	testcases := []struct {
		n, width int
	}{
		{0, 0},
		{1, 0},
		{2, 1},
		{3, 2},
		{4, 2},
		{5, 3},
		{8, 3},
		{9, 4},
		{4096, 12},
		{4097, 13},
	}
	for _, tc := range testcases {
		if got := Width(tc.n); got != tc.width {
			t.Errorf("Width(%d) = %d, want %d", tc.n, got, tc.width)
		}
	}
}

func TestSet(t *testing.T) {
	s := NewSet(130)
	if !s.Empty() {
		t.Fatal("new set not empty")
	}
	for _, k := range []int{129, 0, 64, 3} {
		if !s.Add(k) {
			t.Fatalf("Add(%d) reported bit already set", k)
		}
	}
	if s.Add(64) {
		t.Fatal("Add(64) twice reported a change")
	}
	var got []int
	s.Each(func(k int) { got = append(got, k) })
	want := []int{0, 3, 64, 129}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	other := NewSet(130)
	for _, k := range want {
		other.Add(k)
	}
	if s.Key() != other.Key() {
		t.Fatal("equal sets have different keys")
	}
	other.Add(5)
	if s.Key() == other.Key() {
		t.Fatal("different sets have equal keys")
	}
}
