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
	"sync"

	"github.com/SnellerInc/exi/schema"
)

// Workspace holds the built-in grammars and the
// productions they learn. Learning only appends:
// a learned production takes event code 0 and
// lexicons handed out earlier are never changed.
//
// A Workspace from Cache.NewWorkspace belongs to
// one session and is not safe for concurrent use.
// The Workspace from Cache.Shared is guarded by a
// mutex so that sessions may learn together, but
// an encoder and decoder then only agree if they
// observe the same learning history.
type Workspace struct {
	mu       *sync.Mutex
	opts     Options
	elements map[schema.QName]*builtinElement
	frag     builtinFragment
}

type builtinElement struct {
	name schema.QName
	// learned productions in learning order
	tag, content       []EventType
	tagLex, contentLex *EventTypeList
}

type builtinFragment struct {
	learned []EventType
	lex     *EventTypeList
}

func newWorkspace(opts Options, shared bool) *Workspace {
	w := &Workspace{opts: opts, elements: make(map[schema.QName]*builtinElement)}
	if shared {
		w.mu = new(sync.Mutex)
	}
	return w
}

func (w *Workspace) lock() {
	if w.mu != nil {
		w.mu.Lock()
	}
}

func (w *Workspace) unlock() {
	if w.mu != nil {
		w.mu.Unlock()
	}
}

// Learned returns the number of productions
// learned by the built-in grammar of q.
func (w *Workspace) Learned(q schema.QName) int {
	w.lock()
	defer w.unlock()
	b := w.elements[q]
	if b == nil {
		return 0
	}
	return len(b.tag) + len(b.content)
}

func (w *Workspace) element(q schema.QName) *builtinElement {
	w.lock()
	defer w.unlock()
	b := w.elements[q]
	if b == nil {
		b = &builtinElement{name: q}
		w.elements[q] = b
	}
	return b
}

func reversed(learned []EventType) []node {
	out := make([]node, 0, len(learned))
	for i := len(learned) - 1; i >= 0; i-- {
		out = append(out, leaf(learned[i]))
	}
	return out
}

func (w *Workspace) misc(to Phase) []node {
	var out []node
	if w.opts.Has(PreserveComments) {
		out = append(out, leaf(EventType{Kind: CM, to: to}))
	}
	if w.opts.Has(PreservePIs) {
		out = append(out, leaf(EventType{Kind: PI, to: to}))
	}
	return out
}

// children returns the productions shared by
// both states of a built-in element grammar.
func (w *Workspace) children() []node {
	out := []node{
		leaf(EventType{Kind: SEany, to: PhaseContent}),
		leaf(EventType{Kind: CH, to: PhaseContent}),
	}
	if w.opts.Has(PreserveDTD) {
		out = append(out, leaf(EventType{Kind: ER, to: PhaseContent}))
	}
	return appendGroup(out, w.misc(PhaseContent))
}

// lexicon returns the current lexicon of the
// tag or content state of b.
func (w *Workspace) lexicon(b *builtinElement, p Phase) *EventTypeList {
	w.lock()
	defer w.unlock()
	if p == PhaseTag {
		if b.tagLex == nil {
			l2 := []node{
				leaf(EventType{Kind: EE, to: PhaseEnd}),
				leaf(EventType{Kind: ATany, to: PhaseTag}),
			}
			if w.opts.Has(PreserveNamespaces) {
				l2 = append(l2, leaf(EventType{Kind: NS, to: PhaseTag}))
			}
			if w.opts.Has(SelfContained) {
				l2 = append(l2, leaf(EventType{Kind: SC, to: PhaseContent}))
			}
			l2 = append(l2, w.children()...)
			b.tagLex = newList(tree(reversed(b.tag), l2...))
		}
		return b.tagLex
	}
	if b.contentLex == nil {
		l1 := append(reversed(b.content), leaf(EventType{Kind: EE, to: PhaseEnd}))
		b.contentLex = newList(tree(l1, w.children()...))
	}
	return b.contentLex
}

func has(learned []EventType, kind Kind, name schema.QName) bool {
	for i := range learned {
		if learned[i].Kind == kind && learned[i].Name == name {
			return true
		}
	}
	return false
}

// learn appends a production to the tag or
// content state of b unless it is present.
func (w *Workspace) learn(b *builtinElement, p Phase, et EventType) {
	w.lock()
	defer w.unlock()
	if p == PhaseTag {
		if !has(b.tag, et.Kind, et.Name) {
			b.tag = append(b.tag, et)
			b.tagLex = nil
		}
		return
	}
	if !has(b.content, et.Kind, et.Name) {
		b.content = append(b.content, et)
		b.contentLex = nil
	}
}

func (w *Workspace) fragmentLexicon() *EventTypeList {
	w.lock()
	defer w.unlock()
	if w.frag.lex == nil {
		l1 := append(reversed(w.frag.learned),
			leaf(EventType{Kind: SEany, to: PhaseContent}),
			leaf(EventType{Kind: ED, to: PhaseEnd}))
		w.frag.lex = newList(tree(l1, w.misc(PhaseContent)...))
	}
	return w.frag.lex
}

func (w *Workspace) learnFragment(q schema.QName) {
	w.lock()
	defer w.unlock()
	if !has(w.frag.learned, SE, q) {
		w.frag.learned = append(w.frag.learned, EventType{Kind: SE, Name: q, to: PhaseContent})
		w.frag.lex = nil
	}
}
