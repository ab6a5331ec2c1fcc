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

import (
	"sync"
)

var (
	headerOnce   sync.Once
	headerCorpus *Corpus
)

// HeaderSchema returns the corpus of the EXI
// options document carried in stream headers.
func HeaderSchema() *Corpus {
	headerOnce.Do(func() {
		headerCorpus = buildHeaderSchema()
	})
	return headerCorpus
}

func buildHeaderSchema() *Corpus {
	b := NewBuilder()
	b.SetID("exi-options")
	exi := func(local string) QName { return QName{Space: EXINamespace, Local: local} }
	empty := func() *Type { return &Type{Serial: -1, Content: ContentEmpty} }
	flag := func(local string) *Particle {
		return ElementParticle(&Element{Name: exi(local), Type: empty()}, 0, 1)
	}
	unsignedInt := b.Builtin("unsignedInt")
	blockSize := Restrict(QName{}, unsignedInt)
	blockSize.MinInclusive = i64(1)

	seq := func(ps ...*Particle) *Type {
		return &Type{Serial: -1, Content: ContentElementOnly, Particle: Sequence(1, 1, ps...)}
	}
	alignment := &Type{
		Serial:  -1,
		Content: ContentElementOnly,
		Particle: Choice(1, 1,
			ElementParticle(&Element{Name: exi("byte"), Type: empty()}, 1, 1),
			ElementParticle(&Element{Name: exi("pre-compress"), Type: empty()}, 1, 1),
		),
	}
	dtrm := seq(
		WildcardParticle(&Wildcard{Kind: WildcardOther, Namespaces: []string{EXINamespace}}, 1, 1),
		WildcardParticle(&Wildcard{Kind: WildcardAny}, 1, 1),
	)
	uncommon := seq(
		WildcardParticle(&Wildcard{Kind: WildcardOther, Namespaces: []string{EXINamespace}}, 0, Unbounded),
		ElementParticle(&Element{Name: exi("alignment"), Type: alignment}, 0, 1),
		flag("selfContained"),
		ElementParticle(&Element{Name: exi("valueMaxLength"), Type: unsignedInt}, 0, 1),
		ElementParticle(&Element{Name: exi("valuePartitionCapacity"), Type: unsignedInt}, 0, 1),
		ElementParticle(&Element{Name: exi("datatypeRepresentationMap"), Type: dtrm}, 0, Unbounded),
	)
	preserve := seq(
		flag("dtd"),
		flag("prefixes"),
		flag("lexicalValues"),
		flag("comments"),
		flag("pis"),
	)
	lesscommon := seq(
		ElementParticle(&Element{Name: exi("uncommon"), Type: uncommon}, 0, 1),
		ElementParticle(&Element{Name: exi("preserve"), Type: preserve}, 0, 1),
		ElementParticle(&Element{Name: exi("blockSize"), Type: blockSize}, 0, 1),
	)
	common := seq(
		flag("compression"),
		flag("fragment"),
		ElementParticle(&Element{Name: exi("schemaId"), Type: b.Builtin("string"), Nillable: true}, 0, 1),
	)
	header := seq(
		ElementParticle(&Element{Name: exi("lesscommon"), Type: lesscommon}, 0, 1),
		ElementParticle(&Element{Name: exi("common"), Type: common}, 0, 1),
		flag("strict"),
	)
	b.AddElement(&Element{Name: exi("header"), Type: header})
	return b.MustBuild()
}
