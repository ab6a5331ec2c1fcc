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
	"github.com/SnellerInc/exi/ints"
	"github.com/SnellerInc/exi/schema"

	"golang.org/x/exp/slices"
)

// labelKey identifies the event of a production.
// Productions with equal keys leaving one state
// are merged during determinization.
type labelKey struct {
	kind Kind
	name schema.QName
	uri  string
}

type label struct {
	labelKey
	typ  *schema.Type
	decl *schema.Element
	ord  int
}

type edge struct {
	lab *label
	to  int
}

// nfa is a type grammar with epsilon
// productions, before normalization.
type nfa struct {
	eps   [][]int
	edges [][]edge
	final int

	elems map[*schema.Element]*label
	ords  int
}

func (n *nfa) node() int {
	n.eps = append(n.eps, nil)
	n.edges = append(n.edges, nil)
	return len(n.eps) - 1
}

func (n *nfa) epsilon(from, to int) { n.eps[from] = append(n.eps[from], to) }

func (n *nfa) add(from, to int, l *label) {
	n.edges[from] = append(n.edges[from], edge{lab: l, to: to})
}

func (n *nfa) newLabel(k labelKey) *label {
	n.ords++
	return &label{labelKey: k, ord: n.ords}
}

// elemLabel returns the one label of e, so that
// unrolled copies of a particle share an order.
func (n *nfa) elemLabel(e *schema.Element) *label {
	if l, ok := n.elems[e]; ok {
		return l
	}
	l := n.newLabel(labelKey{kind: SE, name: e.Name})
	l.decl = e
	n.elems[e] = l
	return l
}

// closure returns the epsilon closure of seed.
func (n *nfa) closure(seed ...int) ints.Set {
	set := ints.NewSet(len(n.eps))
	stack := append([]int(nil), seed...)
	for _, s := range seed {
		set.Add(s)
	}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, t := range n.eps[s] {
			if set.Add(t) {
				stack = append(stack, t)
			}
		}
	}
	return set
}

// particle adds p with its occurrence
// constraints and returns its entry and exit.
func (n *nfa) particle(p *schema.Particle) (int, int) {
	start := n.node()
	cur := start
	for i := 0; i < p.MinOccurs; i++ {
		s, e := n.term(p)
		n.epsilon(cur, s)
		cur = e
	}
	if p.MaxOccurs == schema.Unbounded {
		s, e := n.term(p)
		exit := n.node()
		n.epsilon(cur, s)
		n.epsilon(e, s)
		n.epsilon(cur, exit)
		n.epsilon(e, exit)
		return start, exit
	}
	if p.MaxOccurs > p.MinOccurs {
		exit := n.node()
		for i := p.MinOccurs; i < p.MaxOccurs; i++ {
			s, e := n.term(p)
			n.epsilon(cur, s)
			n.epsilon(cur, exit)
			cur = e
		}
		n.epsilon(cur, exit)
		cur = exit
	}
	return start, cur
}

// term adds one occurrence of the term of p.
func (n *nfa) term(p *schema.Particle) (int, int) {
	s, e := n.node(), n.node()
	switch p.Kind {
	case schema.ParticleElement:
		if !p.Element.Abstract {
			n.add(s, e, n.elemLabel(p.Element))
		}
		for _, m := range p.Element.Substitutes() {
			n.add(s, e, n.elemLabel(m))
		}
	case schema.ParticleWildcard:
		if p.Wildcard.Kind == schema.WildcardList {
			for _, ns := range p.Wildcard.Namespaces {
				n.add(s, e, n.newLabel(labelKey{kind: SEns, uri: ns}))
			}
		} else {
			n.add(s, e, n.newLabel(labelKey{kind: SEany}))
		}
	case schema.ParticleSequence:
		cur := s
		for _, c := range p.Children {
			cs, ce := n.particle(c)
			n.epsilon(cur, cs)
			cur = ce
		}
		n.epsilon(cur, e)
	case schema.ParticleChoice:
		for _, c := range p.Children {
			cs, ce := n.particle(c)
			n.epsilon(s, cs)
			n.epsilon(ce, e)
		}
	case schema.ParticleAll:
		for _, c := range p.Children {
			cs, ce := n.particle(c)
			n.epsilon(s, cs)
			n.epsilon(ce, s)
		}
		n.epsilon(s, e)
	}
	return s, e
}

// typeNFA builds the grammar of t. Nodes 0..k
// are the attribute positions, where k is the
// number of attribute uses; node k is where the
// content begins. If empty is set the content
// is replaced by EE.
func typeNFA(t *schema.Type, empty bool) (*nfa, []*schema.AttributeUse) {
	n := &nfa{elems: make(map[*schema.Element]*label)}
	uses := slices.Clone(t.Attributes)
	slices.SortFunc(uses, func(a, b *schema.AttributeUse) bool {
		return a.Attribute.Name.Less(b.Attribute.Name)
	})
	k := len(uses)
	for i := 0; i <= k; i++ {
		n.node()
	}
	var wild []*label
	if w := t.AttributeWildcard; w != nil {
		if w.Kind == schema.WildcardList {
			for _, ns := range w.Namespaces {
				wild = append(wild, n.newLabel(labelKey{kind: ATns, uri: ns}))
			}
		} else {
			wild = append(wild, n.newLabel(labelKey{kind: ATany}))
		}
	}
	for i, u := range uses {
		l := n.newLabel(labelKey{kind: AT, name: u.Attribute.Name})
		l.typ = u.Attribute.Type
		n.add(i, i+1, l)
		if !u.Required {
			n.epsilon(i, i+1)
		}
	}
	for i := 0; i <= k; i++ {
		for _, l := range wild {
			n.add(i, i, l)
		}
	}
	n.final = n.node()
	ee := n.newLabel(labelKey{kind: EE})
	if empty {
		n.add(k, n.final, ee)
		return n, uses
	}
	switch vt := t.ValueType(); {
	case vt != nil:
		c0, c1 := n.node(), n.node()
		l := n.newLabel(labelKey{kind: CH})
		l.typ = vt
		n.epsilon(k, c0)
		n.add(c0, c1, l)
		n.add(c1, n.final, ee)
	case t.Content == schema.ContentEmpty:
		n.add(k, n.final, ee)
	default:
		first := len(n.eps)
		var s, e int
		if t.Particle != nil {
			s, e = n.particle(t.Particle)
		} else {
			s = n.node()
			e = s
		}
		n.epsilon(k, s)
		n.add(e, n.final, ee)
		if t.Content == schema.ContentMixed {
			ch := n.newLabel(labelKey{kind: CHmixed})
			for i := first; i < len(n.eps); i++ {
				n.add(i, i, ch)
			}
		}
	}
	return n, uses
}

// dstate is a state of the determinized grammar.
type dstate struct {
	set   ints.Set
	clone bool
	out   []dedge
	st    *State
}

type dedge struct {
	lab *label
	to  *dstate // nil for EE
}

func rank(k Kind) int {
	switch k {
	case AT:
		return 0
	case ATns:
		return 1
	case ATany:
		return 2
	case SE:
		return 3
	case SEns:
		return 4
	case SEany:
		return 5
	case EE:
		return 6
	}
	return 7
}

// lessEdge orders the productions of a state:
// AT(qname) by local name and URI, AT(uri:*) by
// URI, AT(*), SE(qname) and SE(uri:*) in schema
// order, SE(*), EE and CH.
func lessEdge(a, b dedge) bool {
	ra, rb := rank(a.lab.kind), rank(b.lab.kind)
	if ra != rb {
		return ra < rb
	}
	switch a.lab.kind {
	case AT:
		return a.lab.name.Less(b.lab.name)
	case ATns:
		return a.lab.uri < b.lab.uri
	}
	return a.lab.ord < b.lab.ord
}

// determinize performs the subset construction
// from the closure of node 0. If content2 is set,
// it also returns a distinct state for the closure
// of the content entry node k.
func (n *nfa) determinize(k int, content2 bool) ([]*dstate, *dstate) {
	byKey := make(map[string]*dstate)
	var order []*dstate
	lookup := func(set ints.Set) *dstate {
		key := set.Key()
		if d, ok := byKey[key]; ok {
			return d
		}
		d := &dstate{set: set}
		byKey[key] = d
		order = append(order, d)
		return d
	}
	lookup(n.closure(0))
	var clone *dstate
	if content2 {
		clone = &dstate{set: n.closure(k), clone: true}
	}
	expand := func(d *dstate) {
		type target struct {
			lab   *label
			nodes []int
		}
		var targets []*target
		index := make(map[labelKey]*target)
		d.set.Each(func(s int) {
			for _, e := range n.edges[s] {
				t, ok := index[e.lab.labelKey]
				if !ok {
					t = &target{lab: e.lab}
					index[e.lab.labelKey] = t
					targets = append(targets, t)
				} else if e.lab.ord < t.lab.ord {
					t.lab = e.lab
				}
				t.nodes = append(t.nodes, e.to)
			}
		})
		for _, t := range targets {
			de := dedge{lab: t.lab}
			if t.lab.kind != EE {
				de.to = lookup(n.closure(t.nodes...))
			}
			d.out = append(d.out, de)
		}
		slices.SortStableFunc(d.out, lessEdge)
	}
	for i := 0; i < len(order); i++ {
		expand(order[i])
	}
	if clone != nil {
		expand(clone)
		for i := 0; i < len(order); i++ {
			if order[i].out == nil {
				expand(order[i])
			}
		}
	}
	return order, clone
}

// isTag returns whether attributes may still
// occur in d, i.e. whether d holds one of the
// attribute positions 0..k.
func (d *dstate) isTag(k int) bool {
	if d.clone {
		return false
	}
	for i := 0; i <= k; i++ {
		if d.set.Has(i) {
			return true
		}
	}
	return false
}
