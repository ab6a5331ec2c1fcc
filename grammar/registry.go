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
	"time"

	"github.com/SnellerInc/exi/schema"

	"github.com/dchest/siphash"
	"go.uber.org/zap"
)

// arbitrary keys; cache keys never leave the process
const (
	k0 = 0x6a09e667f3bcc908
	k1 = 0xbb67ae8584caa73b
)

// DefaultCapacity is the number of caches
// a Registry keeps when Capacity is zero.
const DefaultCapacity = 64

// Registry memoizes caches by schema
// fingerprint and options. It keeps at most
// Capacity caches, evicting the least
// recently used one to make room.
type Registry struct {
	// Logger receives debug messages about
	// cache builds. Nil disables logging.
	Logger *zap.Logger
	// Capacity bounds the number of caches.
	// Zero means DefaultCapacity.
	Capacity int

	lock   sync.Mutex
	caches map[uint64][]*entry
	count  int
	clock  uint64
}

type entry struct {
	cache *Cache
	used  uint64
}

// DefaultRegistry is the process-wide Registry.
var DefaultRegistry Registry

func cacheKey(corpus *schema.Corpus, opts Options) uint64 {
	var buf [33]byte
	if corpus != nil {
		sum := corpus.Fingerprint()
		copy(buf[:], sum[:])
	}
	buf[32] = byte(opts)
	return siphash.Hash(k0, k1, buf[:])
}

func (r *Registry) capacity() int {
	if r.Capacity <= 0 {
		return DefaultCapacity
	}
	return r.Capacity
}

// Get returns the cache for corpus and opts,
// building it on first use. Caches hold pointers
// into their corpus, so a cache is only reused
// for the identical corpus.
func (r *Registry) Get(corpus *schema.Corpus, opts Options) (*Cache, error) {
	key := cacheKey(corpus, opts)
	r.lock.Lock()
	defer r.lock.Unlock()
	r.clock++
	for _, e := range r.caches[key] {
		if e.cache.opts == opts && e.cache.corpus == corpus {
			e.used = r.clock
			return e.cache, nil
		}
	}
	start := time.Now()
	c, err := Build(corpus, opts)
	if err != nil {
		return nil, err
	}
	if r.caches == nil {
		r.caches = make(map[uint64][]*entry)
	}
	for r.count >= r.capacity() {
		r.evict()
	}
	r.caches[key] = append(r.caches[key], &entry{cache: c, used: r.clock})
	r.count++
	if r.Logger != nil {
		id := "none"
		if corpus != nil {
			id = corpus.ID()
		}
		r.Logger.Debug("built grammar cache",
			zap.String("schema", id),
			zap.Stringer("options", opts),
			zap.Int("grammars", len(c.types)),
			zap.Duration("elapsed", time.Since(start)))
	}
	return c, nil
}

// evict drops the least recently used cache.
func (r *Registry) evict() {
	var (
		victim uint64
		at     = -1
		oldest uint64
	)
	for key, list := range r.caches {
		for i, e := range list {
			if at < 0 || e.used < oldest {
				victim, at, oldest = key, i, e.used
			}
		}
	}
	if at < 0 {
		r.count = 0
		return
	}
	list := r.caches[victim]
	old := list[at].cache
	list = append(list[:at], list[at+1:]...)
	if len(list) == 0 {
		delete(r.caches, victim)
	} else {
		r.caches[victim] = list
	}
	r.count--
	if r.Logger != nil {
		r.Logger.Debug("evicted grammar cache", zap.Stringer("options", old.opts))
	}
}

// Len returns the number of cached grammars.
func (r *Registry) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.count
}
