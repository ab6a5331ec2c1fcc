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

package exierr

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestIs(t *testing.T) {
	err := fmt.Errorf("decoding block: %w", Wrap(Inflate, io.ErrUnexpectedEOF, "channel %d", 2))
	if !errors.Is(err, ErrInflate) {
		t.Fatal("expected ErrInflate")
	}
	if errors.Is(err, ErrTruncated) {
		t.Fatal("unexpected match with ErrTruncated")
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatal("cause not reachable")
	}
	if c := CodeOf(err); c != Inflate {
		t.Fatalf("CodeOf = %q", c)
	}
	if c := CodeOf(io.EOF); c != "" {
		t.Fatalf("CodeOf(io.EOF) = %q", c)
	}
}

func TestBinding(t *testing.T) {
	err := Binding(PrefixMismatch, "p", "urn:a", "urn:b")
	msg := err.Error()
	for _, want := range []string{"exi-prefix-mismatch", `"p"`, `"urn:a"`, `"urn:b"`} {
		if !strings.Contains(msg, want) {
			t.Errorf("%q does not contain %q", msg, want)
		}
	}
	if !errors.Is(err, ErrPrefixMismatch) || errors.Is(err, ErrPrefixNotBound) {
		t.Fatal("wrong code matching")
	}
}
