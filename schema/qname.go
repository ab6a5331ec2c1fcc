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

package schema

// Well-known namespaces.
const (
	XMLNamespace = "http://www.w3.org/XML/1998/namespace"
	XSINamespace = "http://www.w3.org/2001/XMLSchema-instance"
	XSDNamespace = "http://www.w3.org/2001/XMLSchema"
	EXINamespace = "http://www.w3.org/2009/exi"
)

// QName is an expanded name.
type QName struct {
	Space string
	Local string
}

// Common attribute names.
var (
	XsiType = QName{Space: XSINamespace, Local: "type"}
	XsiNil  = QName{Space: XSINamespace, Local: "nil"}
)

// Less orders names by local name and then
// by namespace, which is the order EXI uses
// for sorted productions.
func (q QName) Less(o QName) bool {
	if q.Local != o.Local {
		return q.Local < o.Local
	}
	return q.Space < o.Space
}

// IsZero returns whether q is the empty name.
func (q QName) IsZero() bool { return q == QName{} }

func (q QName) String() string {
	if q.Space == "" {
		return q.Local
	}
	return "{" + q.Space + "}" + q.Local
}
