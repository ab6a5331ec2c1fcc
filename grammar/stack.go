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
)

type frame struct {
	name     schema.QName
	state    *State
	builtin  *builtinElement
	phase    Phase
	nillable bool
}

// Stack walks the grammars of one session. Every
// transition takes an event type from the current
// lexicon and fails with exierr.ErrEventNotAdmissible
// for any other.
type Stack struct {
	cache  *Cache
	ws     *Workspace
	root   *State
	frames []frame
}

// NewStack returns a Stack positioned at the start
// of the document or fragment grammar of c. Learned
// productions go to ws.
func NewStack(c *Cache, ws *Workspace, fragment bool) *Stack {
	return &Stack{cache: c, ws: ws, root: c.Root(fragment).Start()}
}

// Cache returns the grammar cache of s.
func (s *Stack) Cache() *Cache { return s.cache }

// Depth returns the number of open elements.
func (s *Stack) Depth() int { return len(s.frames) }

func (s *Stack) top() *frame {
	if len(s.frames) == 0 {
		return nil
	}
	return &s.frames[len(s.frames)-1]
}

// Lexicon returns the event types admissible now.
func (s *Stack) Lexicon() *EventTypeList {
	f := s.top()
	if f == nil {
		if s.root.builtin {
			return s.ws.fragmentLexicon()
		}
		return s.root.lex
	}
	if f.builtin != nil {
		return s.ws.lexicon(f.builtin, f.phase)
	}
	return f.state.lex
}

// Phase returns the phase of the current state.
func (s *Stack) Phase() Phase {
	f := s.top()
	switch {
	case f == nil:
		return s.root.Phase
	case f.builtin != nil:
		return f.phase
	}
	return f.state.Phase
}

// Builtin returns whether the current element
// is governed by a built-in grammar.
func (s *Stack) Builtin() bool {
	f := s.top()
	return f != nil && f.builtin != nil
}

// Grammar returns the schema-informed grammar of
// the current element, or nil.
func (s *Stack) Grammar() *Grammar {
	f := s.top()
	if f == nil || f.builtin != nil {
		return nil
	}
	return f.state.g
}

// Name returns the qname of the current element.
func (s *Stack) Name() schema.QName {
	if f := s.top(); f != nil {
		return f.name
	}
	return schema.QName{}
}

func (s *Stack) admit(et *EventType, ok bool) error {
	lex := s.Lexicon()
	if !lex.Contains(et) || !ok {
		if et == nil {
			return exierr.New(exierr.EventNotAdmissible, "no event type admissible in %s", lex)
		}
		return exierr.New(exierr.EventNotAdmissible, "%s is not admissible in %s", et, lex)
	}
	return nil
}

// advance moves the current grammar past et.
func (s *Stack) advance(et *EventType) {
	f := s.top()
	switch {
	case f == nil:
		if !s.root.builtin && et.next != nil {
			s.root = et.next
		}
	case f.builtin != nil:
		f.phase = et.to
	default:
		if et.next != nil {
			f.state = et.next
		}
	}
}

// StartDocument applies SD.
func (s *Stack) StartDocument(et *EventType) error {
	if err := s.admit(et, et != nil && et.Kind == SD); err != nil {
		return err
	}
	s.advance(et)
	return nil
}

// EndDocument applies ED.
func (s *Stack) EndDocument(et *EventType) error {
	if err := s.admit(et, et != nil && et.Kind == ED && len(s.frames) == 0); err != nil {
		return err
	}
	return nil
}

// StartElement applies a start element event
// for name and enters the grammar of its content.
func (s *Stack) StartElement(et *EventType, name schema.QName) error {
	if err := s.admit(et, et != nil && et.Kind.IsStartElement()); err != nil {
		return err
	}
	if f := s.top(); f == nil {
		if s.root.builtin && et.Kind == SEany {
			s.ws.learnFragment(name)
		}
	} else if f.builtin != nil && et.Kind == SEany {
		s.ws.learn(f.builtin, f.phase, EventType{Kind: SE, Name: name, to: PhaseContent})
	}
	s.advance(et)

	g := et.elem
	if g == nil {
		g, _ = s.cache.Global(name)
	}
	if g == nil {
		s.frames = append(s.frames, frame{name: name, builtin: s.ws.element(name), phase: PhaseTag})
		return nil
	}
	s.frames = append(s.frames, frame{name: name, state: g.Start(), nillable: g.Nillable})
	return nil
}

// Attribute applies an attribute event, including
// AT(xsi:type) and AT(xsi:nil). Built-in grammars
// learn AT(name) from AT(*) unless name is
// xsi:type or xsi:nil.
func (s *Stack) Attribute(et *EventType, name schema.QName) error {
	f := s.top()
	if err := s.admit(et, et != nil && et.Kind.IsAttribute() && f != nil); err != nil {
		return err
	}
	if f.builtin != nil && et.Kind == ATany && name != schema.XsiType && name != schema.XsiNil {
		s.ws.learn(f.builtin, PhaseTag, EventType{Kind: AT, Name: name, to: PhaseTag})
	}
	s.advance(et)
	return nil
}

// XsiType switches the current element to the
// grammar of t. It returns false, leaving the
// grammar unchanged, if there is no grammar for t.
func (s *Stack) XsiType(t *schema.Type) bool {
	f := s.top()
	if f == nil || t == nil {
		return false
	}
	g := s.cache.TypeGrammar(t, f.nillable)
	if g == nil {
		return false
	}
	f.builtin = nil
	f.state = g.Start()
	return true
}

// Nil moves the current element to the grammar
// used after xsi:nil="true", where only
// attributes and EE remain.
func (s *Stack) Nil() {
	f := s.top()
	if f == nil || f.builtin != nil {
		return
	}
	if e := f.state.g.empty; e != nil {
		f.state = e.Start()
	}
}

// Characters applies a characters event.
func (s *Stack) Characters(et *EventType) error {
	f := s.top()
	if err := s.admit(et, et != nil && et.Kind.IsCharacters() && f != nil); err != nil {
		return err
	}
	if f.builtin != nil && et.Depth > 1 {
		s.ws.learn(f.builtin, f.phase, EventType{Kind: CH, to: PhaseContent})
	}
	s.advance(et)
	return nil
}

// EndElement applies EE and returns to the
// grammar of the parent.
func (s *Stack) EndElement(et *EventType) error {
	f := s.top()
	if err := s.admit(et, et != nil && et.Kind == EE && f != nil); err != nil {
		return err
	}
	if f.builtin != nil && f.phase == PhaseTag && et.Depth > 1 {
		s.ws.learn(f.builtin, PhaseTag, EventType{Kind: EE, to: PhaseEnd})
	}
	s.frames = s.frames[:len(s.frames)-1]
	return nil
}

// Misc applies a CM, PI, ER, NS, SC or DT event.
func (s *Stack) Misc(et *EventType) error {
	ok := false
	if et != nil {
		switch et.Kind {
		case CM, PI, ER, NS, SC, DT:
			ok = true
		}
	}
	if err := s.admit(et, ok); err != nil {
		return err
	}
	s.advance(et)
	return nil
}
