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

// Package utf8 provides additional UTF-8 and
// XML character handling functions.
package utf8

import (
	"math/bits"
	"strings"
)

// ValidStringLength returns the number of runes in a valid UTF-8 string
func ValidStringLength[T ~string | ~[]byte](str T) int {
	n := len(str)
	continuation := 0
	// We count how many continuation bytes (0b10xx_xxxxxx) are there.
	// Then the remaining bytes are leading bytes, and it's the number of runes.

	// process 8 bytes at once using a SWAR algorithm
	i := 0
	for ; i+8 <= n; i += 8 {
		qword := uint64(str[i]) | uint64(str[i+1])<<8 |
			uint64(str[i+2])<<16 | uint64(str[i+3])<<24 |
			uint64(str[i+4])<<32 | uint64(str[i+5])<<40 |
			uint64(str[i+6])<<48 | uint64(str[i+7])<<56

		bit7 := qword & 0x8080808080808080
		if bit7 == 0 {
			// all 8 bytes are ASCII chars
			continue
		}

		bit6 := qword << 1
		comb := bit7 &^ bit6 // bit7 = 1 and bit6 = 0 => continuation byte
		continuation += bits.OnesCount64(comb)
	}

	// process the remaining 1..7 bytes
	for ; i < n; i++ {
		if str[i]&0b11_000000 == 0b10_000000 {
			continuation += 1
		}
	}

	return n - continuation
}

// IsSpace reports whether c is an XML whitespace character.
func IsSpace(c rune) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// AllSpace reports whether s consists only
// of XML whitespace. The empty string is all space.
func AllSpace(s string) bool {
	for i := 0; i < len(s); i++ {
		if !IsSpace(rune(s[i])) {
			return false
		}
	}
	return true
}

// Collapse applies the XML Schema "collapse"
// whitespace facet: runs of whitespace become
// a single space and leading and trailing
// whitespace is removed.
func Collapse(s string) string {
	if !needsCollapse(s) {
		return s
	}
	return strings.Join(Fields(s), " ")
}

func needsCollapse(s string) bool {
	if s == "" {
		return false
	}
	if IsSpace(rune(s[0])) || IsSpace(rune(s[len(s)-1])) {
		return true
	}
	prev := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\t' || c == '\n' || c == '\r' {
			return true
		}
		if c == ' ' {
			if prev {
				return true
			}
			prev = true
		} else {
			prev = false
		}
	}
	return false
}

// Fields splits s around runs of XML whitespace.
func Fields(s string) []string {
	return strings.FieldsFunc(s, IsSpace)
}
