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

package grammar

import (
	"github.com/SnellerInc/exi/exierr"
	"github.com/SnellerInc/exi/schema"

	"golang.org/x/exp/slices"
)

type typeKey struct {
	t        *schema.Type
	nillable bool
}

// Cache holds the grammars derived from one
// schema corpus and one set of Options. It is
// immutable once built and may be shared by
// concurrent sessions, each of which should use
// its own Workspace (see NewWorkspace).
type Cache struct {
	corpus *schema.Corpus
	opts   Options

	doc, frag *Grammar
	types     map[typeKey]*Grammar
	// fragments maps the qnames of the fragment
	// grammar to the grammar of their content
	fragments map[schema.QName]*Grammar
	elemFrag  *Grammar

	pending []*Grammar
	sealed  bool
	shared  *Workspace
}

// Build constructs the grammars for corpus, which
// may be nil for schema-less coding, under opts.
// Building is deterministic.
func Build(corpus *schema.Corpus, opts Options) (*Cache, error) {
	if opts.Has(Strict) {
		if corpus == nil {
			return nil, exierr.New(exierr.Options, "strict grammars require a schema")
		}
		if opts&(PreserveNamespaces|PreserveComments|PreservePIs|PreserveDTD|SelfContained) != 0 {
			return nil, exierr.New(exierr.Options, "strict grammars cannot preserve %s", opts&^Strict)
		}
	}
	c := &Cache{
		corpus:    corpus,
		opts:      opts,
		types:     make(map[typeKey]*Grammar),
		fragments: make(map[schema.QName]*Grammar),
	}
	if corpus != nil {
		for _, t := range corpus.Types() {
			c.TypeGrammar(t, false)
			if c.strict() {
				c.TypeGrammar(t, true)
			}
		}
	}
	c.doc = c.document()
	c.frag = c.fragment()
	for len(c.pending) > 0 {
		g := c.pending[0]
		c.pending = c.pending[1:]
		c.build(g)
	}
	c.sealed = true
	c.shared = newWorkspace(opts, true)
	return c, nil
}

// Schema returns the corpus of c, or nil.
func (c *Cache) Schema() *schema.Corpus { return c.corpus }

// Options returns the options c was built with.
func (c *Cache) Options() Options { return c.opts }

// Root returns the document grammar, or the
// fragment grammar if fragment is set.
func (c *Cache) Root(fragment bool) *Grammar {
	if fragment {
		return c.frag
	}
	return c.doc
}

// NewWorkspace returns an empty Workspace for
// one session.
func (c *Cache) NewWorkspace() *Workspace { return newWorkspace(c.opts, false) }

// Shared returns the Workspace shared by every
// session that opts into cache-scoped learning.
// It is guarded by a mutex.
func (c *Cache) Shared() *Workspace { return c.shared }

func (c *Cache) strict() bool { return c.opts.Has(Strict) }

// TypeGrammar returns the grammar of type t for an
// element whose declaration has the given nillable
// property. Nillability only matters to strict
// grammars.
func (c *Cache) TypeGrammar(t *schema.Type, nillable bool) *Grammar {
	key := typeKey{t: t, nillable: nillable && c.strict()}
	if g, ok := c.types[key]; ok {
		return g
	}
	if c.sealed {
		// types outside the corpus cannot be
		// added to a built cache
		return nil
	}
	g := &Grammar{Kind: SchemaElement, Type: t, Nillable: key.nillable}
	g.empty = &Grammar{Kind: SchemaElement, Type: t, Nillable: key.nillable}
	c.types[key] = g
	c.pending = append(c.pending, g)
	return g
}

// ElementGrammar returns the grammar of
// the content of element declaration e.
func (c *Cache) ElementGrammar(e *schema.Element) *Grammar {
	return c.TypeGrammar(e.Type, e.Nillable)
}

// Global returns the grammar of the global element
// q, or nil if the corpus does not declare it.
func (c *Cache) Global(q schema.QName) (*Grammar, *schema.Element) {
	if c.corpus == nil {
		return nil, nil
	}
	e := c.corpus.Element(q)
	if e == nil {
		return nil, nil
	}
	return c.ElementGrammar(e), e
}

// tree appends level2 to level1 as a trailing group.
func tree(level1 []node, level2 ...node) []node {
	if g, ok := group(level2...); ok {
		return append(level1, g)
	}
	return level1
}

// misc returns the CM and PI leaves leading to next.
func (c *Cache) misc(next *State, to Phase) []node {
	var out []node
	if c.opts.Has(PreserveComments) {
		out = append(out, leaf(EventType{Kind: CM, next: next, to: to}))
	}
	if c.opts.Has(PreservePIs) {
		out = append(out, leaf(EventType{Kind: PI, next: next, to: to}))
	}
	return out
}

func appendGroup(level []node, kids []node) []node {
	if g, ok := group(kids...); ok {
		return append(level, g)
	}
	return level
}

func (c *Cache) document() *Grammar {
	g := &Grammar{Kind: Document, built: true}
	start := g.add(PhaseStart)
	content := g.add(PhaseContent)
	end := g.add(PhaseEnd)
	start.lex = newList([]node{leaf(EventType{Kind: SD, next: content})})

	var l1 []node
	if c.corpus != nil {
		for _, e := range c.corpus.GlobalElements() {
			l1 = append(l1, leaf(EventType{Kind: SE, Name: e.Name, next: end, elem: c.ElementGrammar(e), decl: e}))
		}
	}
	if !c.strict() {
		l1 = append(l1, leaf(EventType{Kind: SEany, next: end}))
	}
	var l2 []node
	if c.opts.Has(PreserveDTD) {
		l2 = append(l2, leaf(EventType{Kind: DT, next: content}))
	}
	l2 = appendGroup(l2, c.misc(content, PhaseContent))
	content.lex = newList(tree(l1, l2...))
	end.lex = newList(tree([]node{leaf(EventType{Kind: ED})}, c.misc(end, PhaseEnd)...))
	return g
}

func (c *Cache) fragment() *Grammar {
	g := &Grammar{Kind: Fragment, built: true}
	start := g.add(PhaseStart)
	content := g.add(PhaseContent)
	start.lex = newList([]node{leaf(EventType{Kind: SD, next: content})})
	if c.corpus == nil {
		g.Kind = BuiltinFragment
		content.builtin = true
		return g
	}
	var l1 []node
	for _, q := range c.fragmentNames() {
		fg := c.fragments[q]
		l1 = append(l1, leaf(EventType{Kind: SE, Name: q, next: content, elem: fg}))
	}
	if !c.strict() {
		l1 = append(l1, leaf(EventType{Kind: SEany, next: content}))
	}
	l1 = append(l1, leaf(EventType{Kind: ED}))
	content.lex = newList(tree(l1, c.misc(content, PhaseContent)...))
	return g
}

// fragmentNames returns the sorted qnames of every
// element declaration and fills c.fragments. A
// qname declared with differing types or nillable
// properties maps to the element fragment grammar.
func (c *Cache) fragmentNames() []schema.QName {
	if len(c.fragments) > 0 {
		names := make([]schema.QName, 0, len(c.fragments))
		for q := range c.fragments {
			names = append(names, q)
		}
		slices.SortFunc(names, schema.QName.Less)
		return names
	}
	first := make(map[schema.QName]*schema.Element)
	var names []schema.QName
	for _, e := range c.corpus.Declarations() {
		prev, ok := first[e.Name]
		if !ok {
			first[e.Name] = e
			names = append(names, e.Name)
			c.fragments[e.Name] = c.ElementGrammar(e)
			continue
		}
		if prev.Type != e.Type || prev.Nillable != e.Nillable {
			c.fragments[e.Name] = c.elementFragment()
		}
	}
	slices.SortFunc(names, schema.QName.Less)
	return names
}

// elementFragment returns the relaxed grammar
// shared by qnames with conflicting declarations.
func (c *Cache) elementFragment() *Grammar {
	if c.elemFrag == nil {
		c.elemFrag = &Grammar{Kind: ElementFragment}
		c.elemFrag.empty = &Grammar{Kind: ElementFragment}
		c.pending = append(c.pending, c.elemFrag)
	}
	return c.elemFrag
}

func (c *Cache) build(g *Grammar) {
	if g.built {
		return
	}
	g.built = true
	if g.Kind == ElementFragment {
		c.buildElementFragment(g)
		return
	}
	c.buildType(g, false)
	g.empty.built = true
	c.buildType(g.empty, true)
}

// eventOf converts a determinized production.
func (c *Cache) eventOf(e dedge) EventType {
	et := EventType{Kind: e.lab.kind, Name: e.lab.name, URI: e.lab.uri, Type: e.lab.typ}
	if e.to != nil {
		et.next = e.to.st
	}
	if e.lab.kind == SE {
		et.decl = e.lab.decl
		et.elem = c.ElementGrammar(e.lab.decl)
	}
	return et
}

func (c *Cache) buildType(g *Grammar, empty bool) {
	t := g.Type
	n, uses := typeNFA(t, empty)
	k := len(uses)
	states, content2 := n.determinize(k, !c.strict())
	for i, d := range states {
		p := PhaseContent
		if i == 0 || d.isTag(k) {
			p = PhaseTag
		}
		d.st = g.add(p)
	}
	if content2 != nil {
		content2.st = g.add(PhaseContent)
		states = append(states, content2)
	}
	for i, d := range states {
		var l1 []node
		hasEE := false
		for _, e := range d.out {
			l1 = append(l1, leaf(c.eventOf(e)))
			hasEE = hasEE || e.lab.kind == EE
		}
		if d.st.Phase == PhaseContent && hasEE {
			d.st.Phase = PhaseContentComplete
		}
		info := extension{
			state:  d.st,
			first:  i == 0,
			hasEE:  hasEE,
			level1: l1,
		}
		if content2 != nil {
			info.content2 = content2.st
		}
		if c.strict() && i == 0 && !empty {
			info.xsiType = t.HasNamedSubtypes() || t.IsUnion()
			info.xsiNil = g.Nillable
		}
		d.st.lex = newList(c.extend(info))
	}
}

// extension describes the state whose
// productions are being completed.
type extension struct {
	state    *State
	first    bool
	hasEE    bool
	level1   []node
	content2 *State
	// strict xsi:type and xsi:nil productions
	xsiType, xsiNil bool
}

// extend adds the productions for undeclared
// content to a state of a schema-informed
// element grammar. Strict grammars only get
// AT(xsi:type) and AT(xsi:nil) in their first
// state when the declaration allows them.
func (c *Cache) extend(x extension) []node {
	s := x.state
	if c.strict() {
		var l2 []node
		if x.xsiType {
			l2 = append(l2, leaf(EventType{Kind: ATxsiType, next: s}))
		}
		if x.xsiNil {
			l2 = append(l2, leaf(EventType{Kind: ATxsiNil, next: s}))
		}
		return tree(x.level1, l2...)
	}
	var l2 []node
	if !x.hasEE {
		l2 = append(l2, leaf(EventType{Kind: EE}))
	}
	tag := s.Phase == PhaseTag || s.Phase == PhaseEmptyTag
	if !tag {
		l2 = append(l2,
			leaf(EventType{Kind: SEany, next: s}),
			leaf(EventType{Kind: CHundeclared, next: s}))
		if c.opts.Has(PreserveDTD) {
			l2 = append(l2, leaf(EventType{Kind: ER, next: s}))
		}
		l2 = appendGroup(l2, c.misc(s, PhaseContent))
		return tree(x.level1, l2...)
	}
	if x.first {
		l2 = append(l2,
			leaf(EventType{Kind: ATxsiType, next: s}),
			leaf(EventType{Kind: ATxsiNil, next: s}))
	}
	l2 = append(l2, leaf(EventType{Kind: ATany, next: s}))
	// one untyped production per AT(qname)
	// this state admits, in the same order
	var invalid []node
	for _, n := range x.level1 {
		if n.et != nil && n.et.Kind == AT {
			invalid = append(invalid, leaf(EventType{Kind: ATinvalid, Name: n.et.Name, next: n.et.next}))
		}
	}
	invalid = append(invalid, leaf(EventType{Kind: ATanyUntyped, next: s}))
	l2 = appendGroup(l2, invalid)
	if x.first && c.opts.Has(PreserveNamespaces) {
		l2 = append(l2, leaf(EventType{Kind: NS, next: s}))
	}
	if x.first && c.opts.Has(SelfContained) {
		l2 = append(l2, leaf(EventType{Kind: SC, next: s}))
	}
	l2 = append(l2,
		leaf(EventType{Kind: SEany, next: x.content2}),
		leaf(EventType{Kind: CHundeclared, next: x.content2}))
	if c.opts.Has(PreserveDTD) {
		l2 = append(l2, leaf(EventType{Kind: ER, next: x.content2}))
	}
	l2 = appendGroup(l2, c.misc(x.content2, PhaseContent))
	return tree(x.level1, l2...)
}

// fragmentAttributes returns every attribute
// declared in the corpus, sorted. Attributes
// declared with differing types are untyped.
func (c *Cache) fragmentAttributes() ([]schema.QName, map[schema.QName]*schema.Type) {
	types := make(map[schema.QName]*schema.Type)
	var names []schema.QName
	add := func(a *schema.Attribute) {
		prev, ok := types[a.Name]
		if !ok {
			types[a.Name] = a.Type
			names = append(names, a.Name)
			return
		}
		if prev != a.Type {
			types[a.Name] = nil
		}
	}
	for _, a := range c.corpus.Attributes() {
		add(a)
	}
	for _, t := range c.corpus.Types() {
		for _, u := range t.Attributes {
			add(u.Attribute)
		}
	}
	slices.SortFunc(names, schema.QName.Less)
	return names, types
}

func (c *Cache) buildElementFragment(g *Grammar) {
	tag := g.add(PhaseTag)
	content := g.add(PhaseContentComplete)
	e := g.empty
	e.built = true
	emptyTag := e.add(PhaseEmptyTag)
	emptyContent := e.add(PhaseEmptyContent)

	names, types := c.fragmentAttributes()
	attrs := func(next *State) []node {
		var out []node
		for _, q := range names {
			out = append(out, leaf(EventType{Kind: AT, Name: q, Type: types[q], next: next}))
		}
		return append(out, leaf(EventType{Kind: ATany, next: next}))
	}
	children := func(next *State) []node {
		var out []node
		for _, q := range c.fragmentNames() {
			out = append(out, leaf(EventType{Kind: SE, Name: q, next: next, elem: c.fragments[q]}))
		}
		return append(out,
			leaf(EventType{Kind: SEany, next: next}),
			leaf(EventType{Kind: EE}),
			leaf(EventType{Kind: CH, next: next}))
	}

	l1 := append(attrs(tag), children(content)...)
	tag.lex = newList(c.extend(extension{
		state: tag, first: true, hasEE: true, level1: l1,
		content2: content, xsiType: true, xsiNil: true,
	}))
	content.lex = newList(c.extend(extension{
		state: content, hasEE: true, level1: children(content),
	}))
	l1 = append(attrs(emptyTag), leaf(EventType{Kind: EE}))
	emptyTag.lex = newList(c.extend(extension{
		state: emptyTag, first: true, hasEE: true, level1: l1,
		content2: emptyContent,
	}))
	emptyContent.lex = newList(c.extend(extension{
		state: emptyContent, hasEE: true, level1: []node{leaf(EventType{Kind: EE})},
	}))
}
