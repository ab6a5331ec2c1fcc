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

package value

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/SnellerInc/exi/bitio"
	"github.com/SnellerInc/exi/exierr"
	"github.com/SnellerInc/exi/ints"
	"github.com/SnellerInc/exi/schema"
)

type booleanCodec struct{}

func (booleanCodec) Family() schema.Family   { return schema.FamilyBoolean }
func (booleanCodec) Variety() schema.Variety { return schema.Atomic }

func (booleanCodec) Parse(lexical string, s *Scribble) bool {
	switch trim(lexical) {
	case "true", "1":
		s.b = true
	case "false", "0":
		s.b = false
	default:
		return false
	}
	return true
}

func (booleanCodec) Write(w *bitio.Writer, s *Scribble) error {
	w.WriteBool(s.b)
	return nil
}

func (booleanCodec) Read(r *bitio.Reader, s *Scribble) (string, error) {
	b, err := r.ReadBool()
	if err != nil {
		return "", err
	}
	return strconv.FormatBool(b), nil
}

// allDigits returns whether s is a
// non-empty run of decimal digits.
func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// splitSign removes a leading sign from s.
func splitSign(s string) (string, bool) {
	if s != "" && (s[0] == '-' || s[0] == '+') {
		return s[1:], s[0] == '-'
	}
	return s, false
}

func reverse(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

// decimalCodec codes a Decimal as a sign, the
// integral part and the fractional digits in
// reverse order, each as an Unsigned Integer.
type decimalCodec struct{}

func (decimalCodec) Family() schema.Family   { return schema.FamilyDecimal }
func (decimalCodec) Variety() schema.Variety { return schema.Atomic }

func (decimalCodec) Parse(lexical string, s *Scribble) bool {
	body, neg := splitSign(trim(lexical))
	ip, fp, _ := strings.Cut(body, ".")
	if (ip == "" && fp == "") || (ip != "" && !allDigits(ip)) || (fp != "" && !allDigits(fp)) {
		return false
	}
	fp = strings.TrimRight(fp, "0")
	in := s.bigInt()
	if ip == "" {
		in.SetInt64(0)
	} else if _, ok := in.SetString(ip, 10); !ok {
		return false
	}
	fr := s.fracInt()
	if fp == "" {
		fr.SetInt64(0)
	} else if _, ok := fr.SetString(reverse(fp), 10); !ok {
		return false
	}
	s.neg = neg && (in.Sign() != 0 || fr.Sign() != 0)
	return true
}

func (decimalCodec) Write(w *bitio.Writer, s *Scribble) error {
	w.WriteBool(s.neg)
	w.WriteBigUint(s.big)
	w.WriteBigUint(s.frac)
	return nil
}

func (decimalCodec) Read(r *bitio.Reader, s *Scribble) (string, error) {
	neg, err := r.ReadBool()
	if err != nil {
		return "", err
	}
	in, err := r.ReadBigUint()
	if err != nil {
		return "", err
	}
	fr, err := r.ReadBigUint()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if neg && (in.Sign() != 0 || fr.Sign() != 0) {
		b.WriteByte('-')
	}
	b.WriteString(in.String())
	b.WriteByte('.')
	b.WriteString(reverse(fr.String()))
	return b.String(), nil
}

// special exponent of INF, -INF and NaN
const (
	floatSpecial = -(1 << 14)
	maxExponent  = 1<<14 - 1
)

// floatCodec codes a Float as a mantissa and a
// base-10 exponent, each as an Integer.
type floatCodec struct{}

func (floatCodec) Family() schema.Family   { return schema.FamilyFloat }
func (floatCodec) Variety() schema.Variety { return schema.Atomic }

func (floatCodec) Parse(lexical string, s *Scribble) bool {
	str := trim(lexical)
	switch str {
	case "INF", "+INF":
		s.i, s.exp = 1, floatSpecial
		return true
	case "-INF":
		s.i, s.exp = -1, floatSpecial
		return true
	case "NaN":
		s.i, s.exp = 0, floatSpecial
		return true
	}
	body, neg := splitSign(str)
	mant, ex, hasExp := strings.Cut(body, "E")
	if !hasExp {
		mant, ex, hasExp = strings.Cut(body, "e")
	}
	var exp int64
	if hasExp {
		digits, eneg := splitSign(ex)
		if !allDigits(digits) || len(digits) > 6 {
			return false
		}
		exp, _ = strconv.ParseInt(digits, 10, 64)
		if eneg {
			exp = -exp
		}
	}
	ip, fp, _ := strings.Cut(mant, ".")
	if (ip == "" && fp == "") || (ip != "" && !allDigits(ip)) || (fp != "" && !allDigits(fp)) {
		return false
	}
	digits := strings.TrimLeft(ip+fp, "0")
	exp -= int64(len(fp))
	for strings.HasSuffix(digits, "0") {
		digits = digits[:len(digits)-1]
		exp++
	}
	if digits == "" {
		s.i, s.exp = 0, 0
		return true
	}
	m, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || exp < -maxExponent || exp > maxExponent {
		return false
	}
	if neg {
		m = -m
	}
	s.i, s.exp = m, exp
	return true
}

func (floatCodec) Write(w *bitio.Writer, s *Scribble) error {
	w.WriteInt(s.i)
	w.WriteInt(s.exp)
	return nil
}

func (floatCodec) Read(r *bitio.Reader, s *Scribble) (string, error) {
	m, err := r.ReadInt()
	if err != nil {
		return "", err
	}
	e, err := r.ReadInt()
	if err != nil {
		return "", err
	}
	if e == floatSpecial {
		switch m {
		case 1:
			return "INF", nil
		case -1:
			return "-INF", nil
		}
		return "NaN", nil
	}
	if e < -maxExponent || e > maxExponent {
		return "", exierr.New(exierr.Malformed, "float exponent %d out of range", e)
	}
	for m != 0 && m%10 == 0 {
		m /= 10
		e++
	}
	if m == 0 {
		e = 0
	}
	return strconv.FormatInt(m, 10) + "E" + strconv.FormatInt(e, 10), nil
}

// parseInteger parses an xsd:integer lexical form into dst.
func parseInteger(lexical string, dst *big.Int) bool {
	str := trim(lexical)
	body, _ := splitSign(str)
	if !allDigits(body) {
		return false
	}
	_, ok := dst.SetString(str, 10)
	return ok
}

// integerCodec codes an Integer, or an Unsigned
// Integer when the value space is non-negative.
type integerCodec struct {
	unsigned bool
}

func (integerCodec) Family() schema.Family   { return schema.FamilyInteger }
func (integerCodec) Variety() schema.Variety { return schema.Atomic }

func (c integerCodec) Parse(lexical string, s *Scribble) bool {
	v := s.bigInt()
	if !parseInteger(lexical, v) {
		return false
	}
	return !c.unsigned || v.Sign() >= 0
}

func (c integerCodec) Write(w *bitio.Writer, s *Scribble) error {
	if c.unsigned {
		w.WriteBigUint(s.big)
		return nil
	}
	if s.big.IsInt64() {
		w.WriteInt(s.big.Int64())
		return nil
	}
	w.WriteBigInt(s.big)
	return nil
}

func (c integerCodec) Read(r *bitio.Reader, s *Scribble) (string, error) {
	var v *big.Int
	var err error
	if c.unsigned {
		v, err = r.ReadBigUint()
	} else {
		v, err = r.ReadBigInt()
	}
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

// boundedCodec codes an integer with a small
// value space as the n-bit offset from min.
type boundedCodec struct {
	min, max int64
}

func (*boundedCodec) Family() schema.Family   { return schema.FamilyInteger }
func (*boundedCodec) Variety() schema.Variety { return schema.Atomic }

func (c *boundedCodec) width() int {
	return ints.Width(uint64(c.max-c.min) + 1)
}

func (c *boundedCodec) Parse(lexical string, s *Scribble) bool {
	v := s.bigInt()
	if !parseInteger(lexical, v) || !v.IsInt64() {
		return false
	}
	s.i = v.Int64()
	return s.i >= c.min && s.i <= c.max
}

func (c *boundedCodec) Write(w *bitio.Writer, s *Scribble) error {
	if s.i < c.min || s.i > c.max {
		return exierr.New(exierr.InvalidValue, "integer %d outside [%d, %d]", s.i, c.min, c.max)
	}
	w.WriteBits(uint64(s.i-c.min), c.width())
	return nil
}

func (c *boundedCodec) Read(r *bitio.Reader, s *Scribble) (string, error) {
	v, err := r.ReadBits(c.width())
	if err != nil {
		return "", err
	}
	if v > uint64(c.max-c.min) {
		return "", exierr.New(exierr.Malformed, "bounded integer offset %d out of range", v)
	}
	return strconv.FormatInt(c.min+int64(v), 10), nil
}
