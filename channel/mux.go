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

package channel

import (
	"fmt"
	"io"

	"github.com/SnellerInc/exi/bitio"
	"github.com/SnellerInc/exi/compr"
	"github.com/SnellerInc/exi/exierr"
)

// Multiplexer is the Writer of pre-compression
// and compression streams.
type Multiplexer struct {
	cfg  Config
	dst  io.Writer
	comp compr.Compressor

	structure *bitio.Writer
	values    []*bitio.Writer // in order of first use
	index     map[Key]int
	spare     []*bitio.Writer
	count     int

	frame   *bitio.Writer
	scratch [][]byte
	blocks  int
	seen    map[Key]bool
	keys    []Key
}

// NewMultiplexer returns a Multiplexer that
// writes framed blocks to dst.
func NewMultiplexer(dst io.Writer, cfg Config) (*Multiplexer, error) {
	if cfg.BlockSize < 0 {
		return nil, exierr.New(exierr.Options, "block size %d", cfg.BlockSize)
	}
	m := &Multiplexer{
		cfg:       cfg,
		dst:       dst,
		structure: bitio.NewWriter(true),
		index:     make(map[Key]int),
		frame:     bitio.NewWriter(true),
		seen:      make(map[Key]bool),
	}
	if cfg.Compress {
		m.comp = cfg.Compressor
		if m.comp == nil {
			m.comp = compr.Compression("deflate")
		}
	}
	return m, nil
}

// Structure implements Writer.Structure.
func (m *Multiplexer) Structure() *bitio.Writer { return m.structure }

// Value implements Writer.Value.
func (m *Multiplexer) Value(key Key) *bitio.Writer {
	if i, ok := m.index[key]; ok {
		return m.values[i]
	}
	var w *bitio.Writer
	if n := len(m.spare); n > 0 {
		w = m.spare[n-1]
		m.spare = m.spare[:n-1]
	} else {
		w = bitio.NewWriter(true)
	}
	m.index[key] = len(m.values)
	m.values = append(m.values, w)
	if !m.seen[key] {
		m.seen[key] = true
		m.keys = append(m.keys, key)
	}
	return w
}

// EndValue implements Writer.EndValue.
// The block is flushed after its last value.
func (m *Multiplexer) EndValue() error {
	m.count++
	if m.cfg.full(m.count) {
		return m.flush()
	}
	return nil
}

// Finish implements Writer.Finish.
// It always writes a final block.
func (m *Multiplexer) Finish() error {
	return m.flush()
}

// Blocks returns the number of blocks written.
func (m *Multiplexer) Blocks() int { return m.blocks }

// Channels returns the key of every value
// channel used so far, in order of first use.
func (m *Multiplexer) Channels() []Key { return m.keys }

func (m *Multiplexer) payload(i int, w *bitio.Writer) []byte {
	w.Align()
	b := w.Bytes()
	if m.comp == nil {
		return b
	}
	for len(m.scratch) <= i {
		m.scratch = append(m.scratch, nil)
	}
	m.scratch[i] = m.comp.Compress(b, m.scratch[i][:0])
	return m.scratch[i]
}

func (m *Multiplexer) flush() error {
	payloads := make([][]byte, 0, len(m.values)+1)
	payloads = append(payloads, m.payload(0, m.structure))
	for i, w := range m.values {
		payloads = append(payloads, m.payload(i+1, w))
	}
	m.frame.Reset()
	m.frame.WriteUint(uint64(len(payloads)))
	for _, p := range payloads {
		m.frame.WriteUint(uint64(len(p)))
	}
	for _, p := range payloads {
		m.frame.WriteBytes(p)
	}
	if err := m.frame.Drain(m.dst); err != nil {
		return fmt.Errorf("channel: writing block %d: %w", m.blocks, err)
	}
	m.blocks++
	m.structure.Reset()
	for _, w := range m.values {
		w.Reset()
		m.spare = append(m.spare, w)
	}
	m.values = m.values[:0]
	for k := range m.index {
		delete(m.index, k)
	}
	m.count = 0
	return nil
}
