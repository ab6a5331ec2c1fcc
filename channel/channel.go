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

// Package channel routes the bits of an EXI body
// to the structure channel and the value channels.
//
// Bit-packed and byte-aligned streams are inline:
// every channel is the same stream. Pre-compression
// and compression streams are multiplexed: values
// are grouped by Key within blocks of BlockSize
// values, and each block is framed as
//
//	UInt(channels) UInt(len_0) ... UInt(len_n) payload_0 ... payload_n
//
// where channel 0 is the structure channel and the
// value channels follow in order of first use within
// the block. In compression mode each payload is
// deflated on its own.
package channel

import (
	"fmt"

	"github.com/SnellerInc/exi/bitio"
	"github.com/SnellerInc/exi/compr"
	"github.com/SnellerInc/exi/schema"

	"go.uber.org/zap"
)

// Policy selects how values are grouped
// into channels.
type Policy uint8

const (
	// PolicyQName groups values by the
	// qname that owns them.
	PolicyQName Policy = iota
	// PolicyFamily groups values by
	// datatype family.
	PolicyFamily
)

func (p Policy) String() string {
	switch p {
	case PolicyQName:
		return "qname"
	case PolicyFamily:
		return "family"
	}
	return fmt.Sprintf("Policy(%d)", p)
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(text []byte) error {
	switch string(text) {
	case "qname", "":
		*p = PolicyQName
	case "family":
		*p = PolicyFamily
	default:
		return fmt.Errorf("channel: unknown policy %q", text)
	}
	return nil
}

// Key identifies a value channel. Only the
// field selected by the Policy is set.
type Key struct {
	Name   schema.QName
	Family schema.Family
}

// Key returns the channel key of a value owned
// by name whose datatype belongs to family.
func (p Policy) Key(name schema.QName, family schema.Family) Key {
	if p == PolicyFamily {
		return Key{Family: family}
	}
	return Key{Name: name}
}

func (k Key) String() string {
	if k.Name.IsZero() {
		return k.Family.String()
	}
	return k.Name.String()
}

// Unbounded is the BlockSize that never
// flushes before Finish.
const Unbounded = 0

// DefaultBlockSize is the EXI default block size.
const DefaultBlockSize = 1000000

// Writer is the encoding side of the channel layer.
type Writer interface {
	// Structure returns the structure channel.
	Structure() *bitio.Writer
	// Value returns the channel of key.
	Value(key Key) *bitio.Writer
	// EndValue marks the end of a value
	// written to a value channel.
	EndValue() error
	// Finish flushes everything written.
	Finish() error
}

// Reader is the decoding side of the channel layer.
// Structure and Value fail with exierr.ErrBlockDesync
// when the framing does not match the values read.
type Reader interface {
	Structure() (*bitio.Reader, error)
	Value(key Key) (*bitio.Reader, error)
	// EndValue marks the end of a value read
	// from a value channel.
	EndValue()
	// Finish checks that the stream
	// holds nothing more.
	Finish() error
	// Close releases any background worker.
	Close() error
}

// Config configures the multiplexed channels.
type Config struct {
	// BlockSize is the number of values per
	// block. Unbounded keeps one block.
	BlockSize int
	// Compress enables deflating the channels.
	Compress bool
	// Compressor deflates the channels when
	// Compress is set. Nil means plain deflate.
	// Every variant inflates the same way.
	Compressor compr.Compressor
	// Threaded inflates blocks ahead of need
	// on a background goroutine.
	Threaded bool
	// Logger receives debug messages.
	// It may be nil.
	Logger *zap.Logger
}

func (c *Config) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func (c *Config) full(values int) bool {
	return c.BlockSize > 0 && values >= c.BlockSize
}
