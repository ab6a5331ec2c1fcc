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

package exi

import (
	"fmt"

	"github.com/SnellerInc/exi/channel"
	"github.com/SnellerInc/exi/compr"
	"github.com/SnellerInc/exi/exierr"
	"github.com/SnellerInc/exi/grammar"
	"github.com/SnellerInc/exi/stringtable"

	"go.uber.org/zap"
	"sigs.k8s.io/yaml"
)

// Alignment is the layout of the body of a stream.
type Alignment uint8

const (
	BitPacked Alignment = iota
	ByteAligned
	PreCompression
	Compression
)

var alignmentNames = [...]string{
	BitPacked:      "bit-packed",
	ByteAligned:    "byte-aligned",
	PreCompression: "pre-compression",
	Compression:    "compression",
}

func (a Alignment) String() string {
	if int(a) < len(alignmentNames) {
		return alignmentNames[a]
	}
	return fmt.Sprintf("Alignment(%d)", a)
}

// MarshalText implements encoding.TextMarshaler.
func (a Alignment) MarshalText() ([]byte, error) {
	if int(a) >= len(alignmentNames) {
		return nil, exierr.New(exierr.Options, "invalid alignment %d", a)
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Alignment) UnmarshalText(text []byte) error {
	for i, name := range alignmentNames {
		if string(text) == name {
			*a = Alignment(i)
			return nil
		}
	}
	return exierr.New(exierr.Options, "unknown alignment %q", text)
}

// multiplexed returns whether a stream with
// alignment a uses blocks of channels.
func (a Alignment) multiplexed() bool {
	return a == PreCompression || a == Compression
}

// Unbounded disables the bound of
// ValueMaxLength and ValuePartitionCapacity.
const Unbounded = stringtable.Unbounded

// DefaultBlockSize is the block size of
// streams that do not set one.
const DefaultBlockSize = channel.DefaultBlockSize

// Options configures an encoding or decoding
// session. The fields carried by the EXI header
// are overridden by the header when decoding.
type Options struct {
	Alignment Alignment `json:"alignment"`
	// Fragment codes a fragment of zero or
	// more elements instead of a document.
	Fragment bool `json:"fragment,omitempty"`
	// Strict removes the productions for
	// content the schema does not declare.
	Strict bool `json:"strict,omitempty"`

	PreserveComments      bool `json:"preserveComments,omitempty"`
	PreservePIs           bool `json:"preservePIs,omitempty"`
	PreserveDTD           bool `json:"preserveDTD,omitempty"`
	PreservePrefixes      bool `json:"preservePrefixes,omitempty"`
	PreserveLexicalValues bool `json:"preserveLexicalValues,omitempty"`
	// PreserveWhitespace keeps whitespace-only
	// characters in element-only content. It is
	// not carried by the header.
	PreserveWhitespace bool `json:"preserveWhitespace,omitempty"`
	// SelfContained enables SC productions.
	// SC events themselves are not supported.
	SelfContained bool `json:"selfContained,omitempty"`

	// SchemaID identifies the schema in the
	// header. When empty, the ID of the corpus
	// is used.
	SchemaID string `json:"schemaId,omitempty"`
	// ValueMaxLength is the longest value added
	// to the value partitions, or Unbounded.
	// Zero disables adding values.
	ValueMaxLength int `json:"valueMaxLength"`
	// ValuePartitionCapacity bounds the global
	// value partition, or is Unbounded.
	ValuePartitionCapacity int `json:"valuePartitionCapacity"`
	// BlockSize is the number of values per
	// block of a multiplexed stream.
	BlockSize int `json:"blockSize,omitempty"`

	// DeflateLevel selects a compression level
	// from -2 to 9. Zero selects the strategy
	// default.
	DeflateLevel int `json:"deflateLevel,omitempty"`
	// DeflateStrategy is one of "default",
	// "filtered" and "huffman".
	DeflateStrategy string `json:"deflateStrategy,omitempty"`
	// ChannelPolicy groups values into channels
	// by qname or by datatype family. Encoder
	// and decoder must agree on it.
	ChannelPolicy channel.Policy `json:"channelPolicy,omitempty"`

	IncludeCookie   bool `json:"includeCookie,omitempty"`
	IncludeOptions  bool `json:"includeOptions,omitempty"`
	IncludeSchemaID bool `json:"includeSchemaId,omitempty"`

	// ThreadedInflater decodes multiplexed
	// blocks ahead of need on a goroutine.
	ThreadedInflater bool `json:"threadedInflater,omitempty"`
	// SharedLearning makes built-in grammars
	// learn into the workspace shared by every
	// session of the same grammar cache.
	SharedLearning bool `json:"sharedLearning,omitempty"`

	// Logger receives debug messages about
	// the session. It may be nil.
	Logger *zap.Logger `json:"-"`
}

// DefaultOptions returns the options of a
// bit-packed stream with a header that
// carries its options.
func DefaultOptions() Options {
	return Options{
		ValueMaxLength:         Unbounded,
		ValuePartitionCapacity: Unbounded,
		BlockSize:              DefaultBlockSize,
		IncludeOptions:         true,
	}
}

// LoadOptions decodes options from YAML or JSON.
// Fields that are absent keep their default.
func LoadOptions(buf []byte) (*Options, error) {
	opts := DefaultOptions()
	if err := yaml.Unmarshal(buf, &opts); err != nil {
		return nil, exierr.Wrap(exierr.Options, err, "decoding options")
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &opts, nil
}

func (o *Options) validate() error {
	if int(o.Alignment) >= len(alignmentNames) {
		return exierr.New(exierr.Options, "invalid alignment %d", o.Alignment)
	}
	if o.Strict && (o.PreserveComments || o.PreservePIs || o.PreserveDTD || o.PreservePrefixes || o.SelfContained) {
		return exierr.New(exierr.Options, "strict excludes preserving comments, PIs, DTDs, prefixes and self-contained elements")
	}
	if o.SelfContained && o.Alignment.multiplexed() {
		return exierr.New(exierr.Options, "self-contained elements require bit-packed or byte-aligned streams")
	}
	if o.ValueMaxLength < Unbounded || o.ValuePartitionCapacity < Unbounded {
		return exierr.New(exierr.Options, "negative value bounds")
	}
	if o.BlockSize < 0 {
		return exierr.New(exierr.Options, "negative block size %d", o.BlockSize)
	}
	if _, err := o.compressor(); err != nil {
		return err
	}
	return nil
}

func (o *Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

func (o *Options) blockSize() int {
	if o.BlockSize <= 0 {
		return DefaultBlockSize
	}
	return o.BlockSize
}

// grammar returns the grammar options of o.
func (o *Options) grammar() grammar.Options {
	var g grammar.Options
	if o.Strict {
		g = g.Add(grammar.Strict)
	}
	if o.PreservePrefixes {
		g = g.Add(grammar.PreserveNamespaces)
	}
	if o.PreserveComments {
		g = g.Add(grammar.PreserveComments)
	}
	if o.PreservePIs {
		g = g.Add(grammar.PreservePIs)
	}
	if o.PreserveDTD {
		g = g.Add(grammar.PreserveDTD)
	}
	if o.SelfContained {
		g = g.Add(grammar.SelfContained)
	}
	return g
}

// compressor resolves DeflateStrategy and
// DeflateLevel. It returns nil for the default.
func (o *Options) compressor() (compr.Compressor, error) {
	switch o.DeflateStrategy {
	case "", "default":
		if o.DeflateLevel == 0 {
			return nil, nil
		}
		c, err := compr.Deflate(o.DeflateLevel)
		if err != nil {
			return nil, exierr.Wrap(exierr.Options, err, "deflate level")
		}
		return c, nil
	case "filtered":
		return compr.Compression("deflate-filtered"), nil
	case "huffman":
		return compr.Compression("deflate-huffman"), nil
	}
	return nil, exierr.New(exierr.Options, "unknown deflate strategy %q", o.DeflateStrategy)
}

// channels returns the configuration of the
// channel layer of a multiplexed stream.
func (o *Options) channels() channel.Config {
	c, _ := o.compressor()
	return channel.Config{
		BlockSize:  o.blockSize(),
		Compress:   o.Alignment == Compression,
		Compressor: c,
		Threaded:   o.ThreadedInflater,
		Logger:     o.Logger,
	}
}

func (o *Options) strings() stringtable.Config {
	return stringtable.Config{
		MaxLength: o.ValueMaxLength,
		Capacity:  o.ValuePartitionCapacity,
	}
}
