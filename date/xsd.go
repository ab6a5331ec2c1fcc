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

// Package date parses and formats the XML Schema
// calendar types (dateTime, date, time and the
// Gregorian fragments) as independent components.
//
// Values are not normalized against the calendar:
// a leap second or the 31st of February survives a
// round trip unchanged, which is what EXI requires.
package date

// Kind selects one of the calendar lexical forms.
type Kind uint8

const (
	DateTime Kind = iota
	Date
	Time
	GYear
	GYearMonth
	GMonth
	GMonthDay
	GDay
)

// HasYear returns whether values of kind k carry a year.
func (k Kind) HasYear() bool {
	return k == DateTime || k == Date || k == GYear || k == GYearMonth
}

// HasMonthDay returns whether values of kind k
// carry a month or day component.
func (k Kind) HasMonthDay() bool {
	return k == DateTime || k == Date || k == GYearMonth ||
		k == GMonth || k == GMonthDay || k == GDay
}

// HasTime returns whether values of kind k carry
// a time of day and fractional seconds.
func (k Kind) HasTime() bool {
	return k == DateTime || k == Time
}

// Value holds the components of a calendar value.
// Components absent from Kind are zero.
type Value struct {
	Kind   Kind
	Year   int64
	Month  int
	Day    int
	Hour   int
	Minute int
	Second int
	// Frac holds the decimal digits of the
	// fractional seconds without trailing zeroes.
	Frac string
	// HasTZ is set when a timezone is present,
	// in which case TZ is the offset in minutes.
	HasTZ bool
	TZ    int
}

const maxTZ = 14 * 60

type scanner struct {
	s   string
	pos int
}

func (s *scanner) peek() byte {
	if s.pos < len(s.s) {
		return s.s[s.pos]
	}
	return 0
}

func (s *scanner) lit(c byte) bool {
	if s.peek() == c {
		s.pos++
		return true
	}
	return false
}

// digits reads exactly n decimal digits.
func (s *scanner) digits(n int) (int, bool) {
	if s.pos+n > len(s.s) {
		return 0, false
	}
	v := 0
	for _, c := range []byte(s.s[s.pos : s.pos+n]) {
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + int(c-'0')
	}
	s.pos += n
	return v, true
}

func (s *scanner) year() (int64, bool) {
	neg := s.lit('-')
	start := s.pos
	var v int64
	for s.pos < len(s.s) && s.s[s.pos] >= '0' && s.s[s.pos] <= '9' {
		if s.pos-start >= 18 {
			return 0, false
		}
		v = v*10 + int64(s.s[s.pos]-'0')
		s.pos++
	}
	n := s.pos - start
	if n < 4 || (n > 4 && s.s[start] == '0') {
		return 0, false
	}
	if neg {
		if v == 0 {
			return 0, false
		}
		v = -v
	}
	return v, true
}

func (s *scanner) month() (int, bool) {
	m, ok := s.digits(2)
	return m, ok && m >= 1 && m <= 12
}

func (s *scanner) day() (int, bool) {
	d, ok := s.digits(2)
	return d, ok && d >= 1 && d <= 31
}

func (s *scanner) clock(v *Value) bool {
	var ok bool
	if v.Hour, ok = s.digits(2); !ok || v.Hour > 24 || !s.lit(':') {
		return false
	}
	if v.Minute, ok = s.digits(2); !ok || v.Minute > 59 || !s.lit(':') {
		return false
	}
	if v.Second, ok = s.digits(2); !ok || v.Second > 60 {
		return false
	}
	if s.lit('.') {
		start := s.pos
		for s.pos < len(s.s) && s.s[s.pos] >= '0' && s.s[s.pos] <= '9' {
			s.pos++
		}
		if s.pos == start {
			return false
		}
		frac := s.s[start:s.pos]
		for len(frac) > 0 && frac[len(frac)-1] == '0' {
			frac = frac[:len(frac)-1]
		}
		v.Frac = frac
	}
	if v.Hour == 24 && (v.Minute != 0 || v.Second != 0 || v.Frac != "") {
		return false
	}
	return true
}

func (s *scanner) zone(v *Value) bool {
	switch s.peek() {
	case 'Z':
		s.pos++
		v.HasTZ = true
		return true
	case '+', '-':
		neg := s.peek() == '-'
		s.pos++
		h, ok := s.digits(2)
		if !ok || !s.lit(':') {
			return false
		}
		m, ok := s.digits(2)
		if !ok || m > 59 {
			return false
		}
		tz := h*60 + m
		if tz > maxTZ {
			return false
		}
		if neg {
			tz = -tz
		}
		v.HasTZ, v.TZ = true, tz
		return true
	}
	return true
}

// Parse parses s as a value of kind k and returns
// the value and true, or the zero Value and false
// if s is not a valid lexical form.
// Leading and trailing XML whitespace is ignored.
func Parse(k Kind, s string) (Value, bool) {
	s = trim(s)
	v := Value{Kind: k}
	sc := &scanner{s: s}
	ok := true
	switch k {
	case DateTime, Date, GYear, GYearMonth:
		v.Year, ok = sc.year()
		if ok && k != GYear {
			ok = sc.lit('-')
			if ok {
				v.Month, ok = sc.month()
			}
			if ok && k != GYearMonth {
				ok = sc.lit('-')
				if ok {
					v.Day, ok = sc.day()
				}
			}
			if ok && k == DateTime {
				ok = sc.lit('T') && sc.clock(&v)
			}
		}
	case Time:
		ok = sc.clock(&v)
	case GMonth, GMonthDay:
		ok = sc.lit('-') && sc.lit('-')
		if ok {
			v.Month, ok = sc.month()
		}
		if ok && k == GMonthDay {
			ok = sc.lit('-')
			if ok {
				v.Day, ok = sc.day()
			}
		}
	case GDay:
		ok = sc.lit('-') && sc.lit('-') && sc.lit('-')
		if ok {
			v.Day, ok = sc.day()
		}
	default:
		ok = false
	}
	if !ok || !sc.zone(&v) || sc.pos != len(s) {
		return Value{}, false
	}
	return v, true
}

func trim(s string) string {
	isSpace := func(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }
	for len(s) > 0 && isSpace(s[0]) {
		s = s[1:]
	}
	for len(s) > 0 && isSpace(s[len(s)-1]) {
		s = s[:len(s)-1]
	}
	return s
}

// AppendTo appends the canonical lexical
// form of v to dst and returns the result.
func (v *Value) AppendTo(dst []byte) []byte {
	switch v.Kind {
	case DateTime, Date, GYear, GYearMonth:
		dst = appendInt(dst, v.Year, 4, false)
		if v.Kind != GYear {
			dst = append(dst, '-')
			dst = appendInt(dst, int64(v.Month), 2, false)
		}
		if v.Kind == DateTime || v.Kind == Date {
			dst = append(dst, '-')
			dst = appendInt(dst, int64(v.Day), 2, false)
		}
		if v.Kind == DateTime {
			dst = append(dst, 'T')
			dst = v.appendClock(dst)
		}
	case Time:
		dst = v.appendClock(dst)
	case GMonth, GMonthDay:
		dst = append(dst, '-', '-')
		dst = appendInt(dst, int64(v.Month), 2, false)
		if v.Kind == GMonthDay {
			dst = append(dst, '-')
			dst = appendInt(dst, int64(v.Day), 2, false)
		}
	case GDay:
		dst = append(dst, '-', '-', '-')
		dst = appendInt(dst, int64(v.Day), 2, false)
	}
	if v.HasTZ {
		dst = appendZone(dst, v.TZ)
	}
	return dst
}

func (v *Value) appendClock(dst []byte) []byte {
	dst = appendInt(dst, int64(v.Hour), 2, false)
	dst = append(dst, ':')
	dst = appendInt(dst, int64(v.Minute), 2, false)
	dst = append(dst, ':')
	dst = appendInt(dst, int64(v.Second), 2, false)
	if v.Frac != "" {
		dst = append(dst, '.')
		dst = append(dst, v.Frac...)
	}
	return dst
}

func appendZone(dst []byte, tz int) []byte {
	if tz == 0 {
		return append(dst, 'Z')
	}
	if tz < 0 {
		dst = append(dst, '-')
		tz = -tz
	} else {
		dst = append(dst, '+')
	}
	dst = appendInt(dst, int64(tz/60), 2, false)
	dst = append(dst, ':')
	return appendInt(dst, int64(tz%60), 2, false)
}

// String returns the canonical lexical form of v.
func (v Value) String() string {
	return string(v.AppendTo(nil))
}
