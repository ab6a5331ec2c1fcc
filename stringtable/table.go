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

// Package stringtable implements the EXI string
// table: the URI, prefix, local-name and value
// partitions that let repeated strings be coded
// as compact identifiers.
//
// Identifiers are assigned in first-occurrence
// order and are never removed during a session.
package stringtable

import (
	"github.com/SnellerInc/exi/schema"

	"golang.org/x/exp/slices"
)

// Unbounded disables a size limit.
const Unbounded = -1

// partition is a bijection between
// compact identifiers and strings.
type partition struct {
	interned []string       // id -> string lookup
	toindex  map[string]int // string -> id lookup
}

func (p *partition) lookup(id int) (string, bool) {
	if id < 0 || id >= len(p.interned) {
		return "", false
	}
	return p.interned[id], true
}

func (p *partition) symbolize(s string) (int, bool) {
	i, ok := p.toindex[s]
	return i, ok
}

// intern adds s if it is not present
// and returns its identifier.
func (p *partition) intern(s string) int {
	if p.toindex == nil {
		p.toindex = make(map[string]int)
	}
	if i, ok := p.toindex[s]; ok {
		return i
	}
	id := len(p.interned)
	p.toindex[s] = id
	p.interned = append(p.interned, s)
	return id
}

func (p *partition) len() int { return len(p.interned) }

// replace assigns s to the existing identifier id.
func (p *partition) replace(id int, s string) {
	p.forget(id)
	p.interned[id] = s
	p.toindex[s] = id
}

// forget makes the string with identifier id
// unreachable by symbolize. The identifier
// stays allocated so that id widths do not shrink.
func (p *partition) forget(id int) {
	old := p.interned[id]
	if i, ok := p.toindex[old]; ok && i == id {
		delete(p.toindex, old)
	}
}

// valueOwner records where a global
// value was added locally.
type valueOwner struct {
	name  schema.QName
	local int
}

// uriEntry holds the partitions scoped to one URI.
type uriEntry struct {
	uri      string
	prefixes partition
	locals   partition
}

// Config configures a Table.
type Config struct {
	// Schema pre-populates the table with the
	// names of a schema corpus. It may be nil.
	Schema *schema.Corpus
	// MaxLength is the longest value, in
	// characters, added to the value partitions.
	// Zero disables value tokenization and
	// Unbounded removes the limit.
	MaxLength int
	// Capacity bounds the number of entries in
	// the global value partition. Once reached,
	// each new value replaces the oldest entry,
	// which also leaves its local partition.
	// Unbounded removes the limit.
	Capacity int
}

// Table is the per-session string table.
// It is not safe for concurrent use.
type Table struct {
	uris      []*uriEntry
	uriIndex  map[string]int
	global    partition
	local     map[schema.QName]*partition
	owners    []valueOwner // by global id
	wrap      int          // next global id to replace
	maxLength int
	capacity  int
}

var xmlLocals = []string{"base", "id", "lang", "space"}
var xsiLocals = []string{"nil", "type"}

// New constructs a Table with its initial entries.
func New(cfg Config) *Table {
	t := &Table{
		uriIndex:  make(map[string]int),
		local:     make(map[schema.QName]*partition),
		maxLength: cfg.MaxLength,
		capacity:  cfg.Capacity,
	}
	empty := t.addURI("")
	empty.prefixes.intern("")
	xml := t.addURI(schema.XMLNamespace)
	xml.prefixes.intern("xml")
	for _, l := range xmlLocals {
		xml.locals.intern(l)
	}
	xsi := t.addURI(schema.XSINamespace)
	xsi.prefixes.intern("xsi")
	for _, l := range xsiLocals {
		xsi.locals.intern(l)
	}
	if cfg.Schema != nil {
		xsd := t.addURI(schema.XSDNamespace)
		for _, l := range schema.BuiltinNames {
			xsd.locals.intern(l)
		}
		for _, ns := range cfg.Schema.Namespaces() {
			t.addURI(ns)
		}
		t.addSchemaNames(cfg.Schema)
	}
	return t
}

// addSchemaNames adds the local names declared in c
// to their URI partitions in sorted order.
func (t *Table) addSchemaNames(c *schema.Corpus) {
	byURI := make(map[string][]string)
	seen := make(map[schema.QName]bool)
	add := func(q schema.QName) {
		if q.IsZero() || seen[q] {
			return
		}
		seen[q] = true
		if q.Space == schema.XSDNamespace || q.Space == schema.XMLNamespace || q.Space == schema.XSINamespace {
			return
		}
		byURI[q.Space] = append(byURI[q.Space], q.Local)
	}
	for _, e := range c.Declarations() {
		add(e.Name)
	}
	// every named type, global or not referenced
	// by any element, and the attributes it uses
	for _, typ := range c.Types() {
		add(typ.Name)
		for _, u := range typ.Attributes {
			add(u.Attribute.Name)
		}
	}
	for _, a := range c.Attributes() {
		add(a.Name)
	}
	for _, ns := range append([]string{""}, c.Namespaces()...) {
		names := byURI[ns]
		slices.Sort(names)
		ent := t.uris[t.uriIndex[ns]]
		for _, l := range names {
			ent.locals.intern(l)
		}
	}
}

func (t *Table) addURI(uri string) *uriEntry {
	if i, ok := t.uriIndex[uri]; ok {
		return t.uris[i]
	}
	e := &uriEntry{uri: uri}
	t.uriIndex[uri] = len(t.uris)
	t.uris = append(t.uris, e)
	return e
}

// URIs returns the number of URI entries.
func (t *Table) URIs() int { return len(t.uris) }

// EnsureURI returns the identifier of uri,
// adding it without coding it if it is absent.
// It is used for names whose URI is implied by
// the event type.
func (t *Table) EnsureURI(uri string) int {
	t.addURI(uri)
	return t.uriIndex[uri]
}

// URI returns the URI with the given identifier.
func (t *Table) URI(id int) string { return t.uris[id].uri }

// Locals returns the number of local
// names in the partition of uri.
func (t *Table) Locals(uri string) int {
	i, ok := t.uriIndex[uri]
	if !ok {
		return 0
	}
	return t.uris[i].locals.len()
}

// Values returns the number of entries in
// the global value partition.
func (t *Table) Values() int { return t.global.len() }

// HasPrefix returns whether prefix is
// in the prefix partition of uri.
func (t *Table) HasPrefix(uri, prefix string) bool {
	i, ok := t.uriIndex[uri]
	if !ok {
		return false
	}
	_, ok = t.uris[i].prefixes.symbolize(prefix)
	return ok
}

// Prefix returns the first prefix recorded
// for uri, if any.
func (t *Table) Prefix(uri string) (string, bool) {
	i, ok := t.uriIndex[uri]
	if !ok {
		return "", false
	}
	return t.uris[i].prefixes.lookup(0)
}

// addValue adds s to the global partition and to
// the local partition of name, subject to the
// length and capacity limits.
func (t *Table) addValue(name schema.QName, s string, length int) {
	if length == 0 || t.maxLength == 0 {
		return
	}
	if t.maxLength != Unbounded && length > t.maxLength {
		return
	}
	if t.capacity == 0 {
		return
	}
	if _, ok := t.global.symbolize(s); ok {
		return
	}
	if t.capacity != Unbounded && t.global.len() >= t.capacity {
		id := t.wrap
		t.wrap = (t.wrap + 1) % t.capacity
		old := t.owners[id]
		t.local[old.name].forget(old.local)
		t.global.replace(id, s)
		t.owners[id] = valueOwner{name: name, local: t.localPartition(name).intern(s)}
		return
	}
	t.global.intern(s)
	t.owners = append(t.owners, valueOwner{name: name, local: t.localPartition(name).intern(s)})
}

func (t *Table) localPartition(name schema.QName) *partition {
	lp := t.local[name]
	if lp == nil {
		lp = &partition{}
		t.local[name] = lp
	}
	return lp
}
