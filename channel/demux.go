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
	"bufio"
	"errors"
	"io"
	"sync"

	"github.com/SnellerInc/exi/bitio"
	"github.com/SnellerInc/exi/compr"
	"github.com/SnellerInc/exi/exierr"

	"go.uber.org/zap"
)

// maxChannels bounds the channel count of a block
// so that corrupt input cannot force huge allocations.
const maxChannels = 1 << 20

// maxChannelSize bounds the framed length
// of a single channel.
const maxChannelSize = 1 << 30

// block is one demultiplexed (and inflated) block.
type block struct {
	seq   int
	chans [][]byte
}

// blockSource reads the framed blocks of a stream.
type blockSource struct {
	src    *bufio.Reader
	frame  *bitio.Reader
	decomp compr.Decompressor
	seq    int
}

// next returns the next block, or nil
// at the end of the stream.
func (s *blockSource) next() (*block, error) {
	if _, err := s.src.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	n, err := s.frame.ReadUint()
	if err != nil {
		return nil, err
	}
	if n == 0 || n > maxChannels {
		return nil, exierr.New(exierr.Malformed, "block %d has %d channels", s.seq, n)
	}
	lengths := make([]uint64, n)
	for i := range lengths {
		if lengths[i], err = s.frame.ReadUint(); err != nil {
			return nil, err
		}
		if lengths[i] > maxChannelSize {
			return nil, exierr.New(exierr.Malformed, "channel %d of block %d has length %d", i, s.seq, lengths[i])
		}
	}
	b := &block{seq: s.seq, chans: make([][]byte, n)}
	for i, size := range lengths {
		buf, err := s.frame.ReadBytes(int(size))
		if err != nil {
			return nil, err
		}
		if s.decomp != nil {
			buf, err = s.decomp.Decompress(buf, nil)
			if err != nil {
				return nil, exierr.Wrap(exierr.Inflate, err, "channel %d of block %d", i, s.seq)
			}
		}
		b.chans[i] = buf
	}
	s.seq++
	return b, nil
}

type result struct {
	blk *block
	err error
}

// Demultiplexer is the Reader of pre-compression
// and compression streams.
type Demultiplexer struct {
	cfg    Config
	source *blockSource

	cur       *block
	structure *bitio.Reader
	values    map[Key]*bitio.Reader
	assigned  int
	count     int
	// the next block is loaded lazily,
	// on the first read after the last
	// value of the current block
	pending bool

	// threaded inflater
	results chan result
	stop    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewDemultiplexer returns a Demultiplexer reading
// framed blocks from src. With cfg.Threaded set, a
// goroutine inflates blocks ahead of need until
// Close is called.
func NewDemultiplexer(src *bufio.Reader, cfg Config) (*Demultiplexer, error) {
	frame := bitio.NewReader(src, true)
	d := &Demultiplexer{
		cfg:     cfg,
		source:  &blockSource{src: src, frame: frame},
		values:  make(map[Key]*bitio.Reader),
		pending: true,
	}
	if cfg.Compress {
		d.source.decomp = compr.Decompression("deflate")
	}
	if cfg.Threaded {
		d.results = make(chan result, 1)
		d.stop = make(chan struct{})
		d.wg.Add(1)
		go d.inflate(cfg.logger())
	}
	return d, nil
}

func (d *Demultiplexer) inflate(log *zap.Logger) {
	defer d.wg.Done()
	defer close(d.results)
	log.Debug("inflater started")
	blocks := 0
	defer func() {
		log.Debug("inflater stopped", zap.Int("blocks", blocks))
	}()
	for {
		blk, err := d.source.next()
		select {
		case d.results <- result{blk, err}:
		case <-d.stop:
			return
		}
		if blk == nil || err != nil {
			return
		}
		blocks++
	}
}

func (d *Demultiplexer) next() (*block, error) {
	if d.results == nil {
		return d.source.next()
	}
	r, ok := <-d.results
	if !ok {
		return nil, nil
	}
	return r.blk, r.err
}

func (d *Demultiplexer) load() error {
	if !d.pending {
		return nil
	}
	blk, err := d.next()
	if err != nil {
		return err
	}
	if blk == nil {
		return exierr.New(exierr.BlockDesync, "stream ended where block %d was expected", d.blocks())
	}
	d.cur = blk
	d.pending = false
	d.structure = bitio.NewBytesReader(blk.chans[0], true)
	d.structure.SetExhausted(exierr.BlockDesync)
	for k := range d.values {
		delete(d.values, k)
	}
	d.assigned = 1
	d.count = 0
	return nil
}

func (d *Demultiplexer) blocks() int {
	if d.cur == nil {
		return 0
	}
	return d.cur.seq + 1
}

// Structure implements Reader.Structure.
func (d *Demultiplexer) Structure() (*bitio.Reader, error) {
	if err := d.load(); err != nil {
		return nil, err
	}
	return d.structure, nil
}

// Value implements Reader.Value.
func (d *Demultiplexer) Value(key Key) (*bitio.Reader, error) {
	if err := d.load(); err != nil {
		return nil, err
	}
	if r, ok := d.values[key]; ok {
		return r, nil
	}
	if d.assigned >= len(d.cur.chans) {
		return nil, exierr.New(exierr.BlockDesync, "block %d has no channel for %s", d.cur.seq, key)
	}
	r := bitio.NewBytesReader(d.cur.chans[d.assigned], true)
	r.SetExhausted(exierr.BlockDesync)
	d.assigned++
	d.values[key] = r
	return r, nil
}

// EndValue implements Reader.EndValue.
func (d *Demultiplexer) EndValue() {
	d.count++
	if d.cfg.full(d.count) {
		d.pending = true
	}
}

// Finish implements Reader.Finish. It fails
// if another block follows the last one read.
func (d *Demultiplexer) Finish() error {
	if d.pending && d.cur != nil {
		// the final block holds no values
		// and must still be present
		if err := d.load(); err != nil {
			return err
		}
	}
	blk, err := d.next()
	if err != nil {
		return err
	}
	if blk != nil {
		return exierr.New(exierr.BlockDesync, "unexpected block %d after the end of the document", blk.seq)
	}
	return nil
}

// Close stops the background inflater, if any,
// and waits for it to exit.
func (d *Demultiplexer) Close() error {
	if d.results == nil {
		return nil
	}
	d.once.Do(func() { close(d.stop) })
	d.wg.Wait()
	return nil
}
