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

	"github.com/SnellerInc/exi/bitio"
	"github.com/SnellerInc/exi/date"
	"github.com/SnellerInc/exi/exierr"
	"github.com/SnellerInc/exi/schema"
)

const (
	yearOffset = 2000
	tzOffset   = 896
	monthDayW  = 9
	timeW      = 17
	tzW        = 11
)

func calendarKind(f schema.Family) date.Kind {
	switch f {
	case schema.FamilyDate:
		return date.Date
	case schema.FamilyTime:
		return date.Time
	case schema.FamilyGYear:
		return date.GYear
	case schema.FamilyGYearMonth:
		return date.GYearMonth
	case schema.FamilyGMonth:
		return date.GMonth
	case schema.FamilyGMonthDay:
		return date.GMonthDay
	case schema.FamilyGDay:
		return date.GDay
	}
	return date.DateTime
}

// calendarCodec codes the date-time family as a
// sequence of components: the year as an Integer
// offset from 2000, month and day as a 9-bit
// value, the time of day as a 17-bit value, the
// reversed fractional second digits and an
// optional 11-bit timezone. Components that the
// kind does not carry are omitted.
type calendarCodec struct {
	family schema.Family
	kind   date.Kind
}

func (c calendarCodec) Family() schema.Family { return c.family }
func (calendarCodec) Variety() schema.Variety { return schema.Atomic }

func (c calendarCodec) Parse(lexical string, s *Scribble) bool {
	v, ok := date.Parse(c.kind, lexical)
	s.cal = v
	return ok
}

func (c calendarCodec) Write(w *bitio.Writer, s *Scribble) error {
	v := &s.cal
	if c.kind.HasYear() {
		w.WriteInt(v.Year - yearOffset)
	}
	if c.kind.HasMonthDay() {
		w.WriteBits(uint64(v.Month*32+v.Day), monthDayW)
	}
	if c.kind.HasTime() {
		w.WriteBits(uint64((v.Hour*64+v.Minute)*64+v.Second), timeW)
		w.WriteBool(v.Frac != "")
		if v.Frac != "" {
			f, ok := s.fracInt().SetString(reverse(v.Frac), 10)
			if !ok {
				return exierr.New(exierr.InvalidValue, "bad fractional seconds %q", v.Frac)
			}
			w.WriteBigUint(f)
		}
	}
	w.WriteBool(v.HasTZ)
	if v.HasTZ {
		w.WriteBits(uint64((v.TZ/60)*64+v.TZ%60+tzOffset), tzW)
	}
	return nil
}

func (c calendarCodec) Read(r *bitio.Reader, s *Scribble) (string, error) {
	v := date.Value{Kind: c.kind}
	if c.kind.HasYear() {
		y, err := r.ReadInt()
		if err != nil {
			return "", err
		}
		v.Year = y + yearOffset
	}
	if c.kind.HasMonthDay() {
		md, err := r.ReadBits(monthDayW)
		if err != nil {
			return "", err
		}
		v.Month, v.Day = int(md/32), int(md%32)
	}
	if c.kind.HasTime() {
		t, err := r.ReadBits(timeW)
		if err != nil {
			return "", err
		}
		v.Hour, v.Minute, v.Second = int(t/4096), int(t/64%64), int(t%64)
		ok, err := r.ReadBool()
		if err != nil {
			return "", err
		}
		if ok {
			f, err := r.ReadBigUint()
			if err != nil {
				return "", err
			}
			v.Frac = fracDigits(f)
		}
	}
	ok, err := r.ReadBool()
	if err != nil {
		return "", err
	}
	if ok {
		tz, err := r.ReadBits(tzW)
		if err != nil {
			return "", err
		}
		x := int(tz) - tzOffset
		v.HasTZ, v.TZ = true, (x/64)*60+x%64
	}
	return v.String(), nil
}

func fracDigits(f *big.Int) string {
	if f.Sign() == 0 {
		return ""
	}
	return reverse(f.String())
}
