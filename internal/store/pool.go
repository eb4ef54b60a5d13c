// Package store implements the chunked record store (spec §4.1): a
// per-transaction sequence of record words held as direct references into
// the producer ring ("chunks") and/or a private owned buffer.
package store

import (
	"math/bits"
	"sync"

	"github.com/vslqcore/vslq/internal/constants"
)

// wordPool hands out power-of-two []uint32 buffers bucketed by bits.Len,
// the same indexing trick used by byte-buffer pools in the wider
// ecosystem (e.g. cloudwego/gopkg's cache/mempool): a transaction's owned
// buffer only ever grows by doubling (spec §4.1), so every size it will
// ever request is already a power of two, and a bucketed sync.Pool avoids
// the realloc-and-copy churn of a naive append for short-lived
// transactions.
type wordPool struct {
	mu    sync.Mutex
	pools map[int]*sync.Pool
}

func newWordPool() *wordPool {
	return &wordPool{pools: make(map[int]*sync.Pool)}
}

func (p *wordPool) poolFor(words int) *sync.Pool {
	p.mu.Lock()
	defer p.mu.Unlock()
	pl, ok := p.pools[words]
	if !ok {
		n := words
		pl = &sync.Pool{New: func() any {
			b := make([]uint32, n)
			return &b
		}}
		p.pools[words] = pl
	}
	return pl
}

// get returns a buffer with capacity exactly the next power of two >= words
// (floored at constants.MinBufferWords), length 0.
func (p *wordPool) get(words int) []uint32 {
	size := bucketSize(words)
	buf := *(p.poolFor(size).Get().(*[]uint32))
	return buf[:0]
}

// put returns a buffer to its bucket, keyed by capacity. Buffers whose
// capacity isn't a bucket size (shouldn't happen given bucketSize is
// always used to allocate) are simply dropped.
func (p *wordPool) put(buf []uint32) {
	size := cap(buf)
	if size == 0 || size&(size-1) != 0 {
		return
	}
	buf = buf[:size]
	p.poolFor(size).Put(&buf)
}

// bucketSize rounds words up to the nearest power of two, floored at
// constants.MinBufferWords.
func bucketSize(words int) int {
	if words < constants.MinBufferWords {
		return constants.MinBufferWords
	}
	if words&(words-1) == 0 {
		return words
	}
	return 1 << bits.Len(uint(words))
}

var globalWordPool = newWordPool()
