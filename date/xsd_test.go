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

package date

import (
	"testing"
)

func TestParseCanonical(t *testing.T) {
	testcases := []struct {
		kind      Kind
		in, canon string
	}{
		{DateTime, "2019-10-12T07:20:50.52Z", "2019-10-12T07:20:50.52Z"},
		{DateTime, " 2019-10-12T07:20:50.5200-05:30\n", "2019-10-12T07:20:50.52-05:30"},
		{DateTime, "2016-12-31T23:59:60Z", "2016-12-31T23:59:60Z"},
		{DateTime, "2001-02-31T24:00:00", "2001-02-31T24:00:00"},
		{DateTime, "2001-01-01T00:00:00.000+00:00", "2001-01-01T00:00:00Z"},
		{Date, "-0044-03-15", "-0044-03-15"},
		{Date, "12345-01-01+14:00", "12345-01-01+14:00"},
		{Time, "13:20:00.001", "13:20:00.001"},
		{GYear, "1999", "1999"},
		{GYearMonth, "1999-05Z", "1999-05Z"},
		{GMonth, "--05", "--05"},
		{GMonthDay, "--02-29", "--02-29"},
		{GDay, "---31-01:00", "---31-01:00"},
	}
	for _, tc := range testcases {
		v, ok := Parse(tc.kind, tc.in)
		if !ok {
			t.Errorf("couldn't parse %q", tc.in)
			continue
		}
		if got := v.String(); got != tc.canon {
			t.Errorf("%q: got %q, want %q", tc.in, got, tc.canon)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	testcases := []struct {
		kind Kind
		in   string
	}{
		{DateTime, "2019-10-12"},
		{DateTime, "2019-13-12T00:00:00"},
		{DateTime, "2019-10-12T24:00:01"},
		{DateTime, "2019-10-12T00:00:61"},
		{DateTime, "2019-10-12T00:00:00."},
		{Date, "019-10-12"},
		{Date, "01999-10-12"},
		{Date, "-0000-01-01"},
		{Date, "2019-10-12+15:00"},
		{Date, "2019-10-12 junk"},
		{GMonth, "-05"},
		{GDay, "--31"},
		{Time, "1:00:00"},
	}
	for _, tc := range testcases {
		if v, ok := Parse(tc.kind, tc.in); ok {
			t.Errorf("parsed %q as %s", tc.in, v)
		}
	}
}

func TestComponents(t *testing.T) {
	v, ok := Parse(DateTime, "2022-06-30T11:05:09.25+02:00")
	if !ok {
		t.Fatal("parse failed")
	}
	want := Value{
		Kind: DateTime, Year: 2022, Month: 6, Day: 30,
		Hour: 11, Minute: 5, Second: 9, Frac: "25",
		HasTZ: true, TZ: 120,
	}
	if v != want {
		t.Fatalf("got %+v, want %+v", v, want)
	}
	if !DateTime.HasTime() || GDay.HasYear() || !GDay.HasMonthDay() || Time.HasMonthDay() {
		t.Fatal("wrong component flags")
	}
}
