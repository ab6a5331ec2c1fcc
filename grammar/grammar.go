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

// Package grammar builds the EXI grammars that
// predict the admissible events at every point
// of a document, and walks them at run time.
//
// A Cache holds the immutable grammars derived
// from one schema corpus and one set of Options.
// Built-in grammars, which learn productions as
// undeclared content is seen, live in a Workspace
// so that learning is scoped to whoever owns it.
package grammar

import (
	"github.com/SnellerInc/exi/schema"
)

// GrammarKind identifies the variant of a Grammar.
type GrammarKind uint8

const (
	Document GrammarKind = iota
	Fragment
	ElementFragment
	SchemaElement
	BuiltinElement
	BuiltinFragment
)

func (k GrammarKind) String() string {
	switch k {
	case Document:
		return "document"
	case Fragment:
		return "fragment"
	case ElementFragment:
		return "element-fragment"
	case SchemaElement:
		return "schema-element"
	case BuiltinElement:
		return "builtin-element"
	case BuiltinFragment:
		return "builtin-fragment"
	}
	return "invalid"
}

// Phase is the sub-state of a grammar state.
type Phase uint8

const (
	PhaseStart Phase = iota
	// PhaseTag admits attributes.
	PhaseTag
	// PhaseContent admits content only.
	PhaseContent
	// PhaseContentComplete is a content
	// phase in which the element may end.
	PhaseContentComplete
	// PhaseEmptyTag is the tag phase of an
	// element that has been nilled.
	PhaseEmptyTag
	PhaseEmptyContent
	PhaseEnd
)

func (p Phase) String() string {
	switch p {
	case PhaseStart:
		return "start"
	case PhaseTag:
		return "tag"
	case PhaseContent:
		return "content"
	case PhaseContentComplete:
		return "content-complete"
	case PhaseEmptyTag:
		return "empty-tag"
	case PhaseEmptyContent:
		return "empty-content"
	case PhaseEnd:
		return "end"
	}
	return "invalid"
}

// Grammar is a set of states with their
// productions. Schema-informed grammars are
// immutable once their Cache is built.
type Grammar struct {
	Kind GrammarKind
	// Type is the type of a SchemaElement grammar.
	Type     *schema.Type
	Nillable bool

	states []*State
	// empty is the grammar entered after
	// xsi:nil="true", if any.
	empty *Grammar
	built bool
}

// Start returns the initial state.
func (g *Grammar) Start() *State { return g.states[0] }

// States returns the states of g.
func (g *Grammar) States() []*State { return g.states }

// Empty returns the grammar used once the
// element has been nilled, or nil.
func (g *Grammar) Empty() *Grammar { return g.empty }

func (g *Grammar) add(p Phase) *State {
	s := &State{g: g, id: len(g.states), Phase: p}
	g.states = append(g.states, s)
	return s
}

// State is a state of a schema-informed grammar,
// or of a document or fragment grammar.
type State struct {
	Phase Phase

	g   *Grammar
	id  int
	lex *EventTypeList
	// builtin is set for the content
	// state of a built-in fragment grammar
	builtin bool
}

// Grammar returns the grammar that owns s.
func (s *State) Grammar() *Grammar { return s.g }

// ID returns the position of s in its grammar.
func (s *State) ID() int { return s.id }

// Lexicon returns the event types admissible
// in s. It is nil for states whose lexicon is
// learned at run time.
func (s *State) Lexicon() *EventTypeList { return s.lex }
