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

// Package exi encodes XML infoset events into
// Efficient XML Interchange streams and decodes
// them back.
//
// An Encoder and a Decoder are driven by the same
// grammars, the same string table rules and the
// same payload layout, so a stream decodes into
// the events that produced it, up to the fidelity
// the options preserve.
package exi

import (
	"strings"

	"github.com/SnellerInc/exi/channel"
	"github.com/SnellerInc/exi/exierr"
	"github.com/SnellerInc/exi/grammar"
	"github.com/SnellerInc/exi/schema"
	"github.com/SnellerInc/exi/stringtable"
	"github.com/SnellerInc/exi/value"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// session is the state an Encoder and a
// Decoder keep in the same way.
type session struct {
	opts   Options
	corpus *schema.Corpus
	log    *zap.Logger
	id     uuid.UUID

	cache  *grammar.Cache
	stack  *grammar.Stack
	table  *stringtable.Table
	codecs map[*schema.Type]value.Codec
	scr    value.Scribble
}

func (s *session) init(corpus *schema.Corpus, opts *Options) error {
	if err := opts.validate(); err != nil {
		return err
	}
	cache, err := grammar.DefaultRegistry.Get(corpus, opts.grammar())
	if err != nil {
		return err
	}
	ws := cache.NewWorkspace()
	if opts.SharedLearning {
		ws = cache.Shared()
	}
	cfg := opts.strings()
	cfg.Schema = corpus
	s.opts = *opts
	s.corpus = corpus
	s.log = opts.logger()
	s.id = uuid.New()
	s.cache = cache
	s.stack = grammar.NewStack(cache, ws, opts.Fragment)
	s.table = stringtable.New(cfg)
	s.codecs = make(map[*schema.Type]value.Codec)
	return nil
}

func (s *session) fields() []zap.Field {
	schemaID := "none"
	if s.corpus != nil {
		schemaID = s.corpus.ID()
	}
	return []zap.Field{
		zap.Stringer("session", s.id),
		zap.Stringer("alignment", s.opts.Alignment),
		zap.String("schema", schemaID),
		zap.Stringer("grammar", s.cache.Options()),
	}
}

// codec returns the codec of values of type t.
func (s *session) codec(t *schema.Type) value.Codec {
	if t == nil {
		return value.Untyped
	}
	c, ok := s.codecs[t]
	if !ok {
		c = value.For(t, s.opts.PreserveLexicalValues)
		s.codecs[t] = c
	}
	return c
}

// key returns the channel of a value
// owned by name and coded by c.
func (s *session) key(name schema.QName, c value.Codec) channel.Key {
	return s.opts.ChannelPolicy.Key(name, c.Family())
}

func (s *session) nilKey() channel.Key {
	return s.opts.ChannelPolicy.Key(schema.XsiNil, schema.FamilyBoolean)
}

// globalType returns the type of the global
// declaration of attribute q, if any.
func (s *session) globalType(q schema.QName) *schema.Type {
	if s.corpus == nil {
		return nil
	}
	if a := s.corpus.Attribute(q); a != nil {
		return a.Type
	}
	return nil
}

// valueType returns the datatype of the value
// of an event of type et named q.
func (s *session) valueType(et *grammar.EventType, q schema.QName) *schema.Type {
	switch et.Kind {
	case grammar.AT, grammar.CH:
		return et.Type
	case grammar.ATns, grammar.ATany:
		return s.globalType(q)
	}
	return nil
}

// attrValue returns the value shape of an
// attribute named q matched by a wildcard.
// xsi:type and xsi:nil keep their meaning
// outside of schema-informed grammars.
func attrValue(sh shape, q schema.QName) valueShape {
	if sh.name != fullName {
		return sh.value
	}
	switch q {
	case schema.XsiType:
		return xsiTypeValue
	case schema.XsiNil:
		return xsiNilValue
	}
	return sh.value
}

// xsiType applies an xsi:type switch to q.
func (s *session) xsiType(q schema.QName) {
	if s.corpus == nil {
		return
	}
	s.stack.XsiType(s.corpus.Type(q))
}

func parseBool(v string) (bool, bool) {
	switch strings.Trim(v, xmlSpace) {
	case "true", "1":
		return true, true
	case "false", "0":
		return false, true
	}
	return false, false
}

const xmlSpace = " \t\n\r"

// unsupported is the error of an SC event.
func unsupported() error {
	return exierr.New(exierr.Unsupported, "self-contained elements are not supported")
}
