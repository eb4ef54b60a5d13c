// Package cursor provides reference recio.Cursor implementations: a
// mmap-backed simulated producer ring (the kind of shared memory
// region a real log producer would hand the dispatch core) and a
// one-shot raw cursor for a single already-decoded record. Neither is
// required by the core — any recio.Cursor will do — but both give the
// rest of this module, and its tests, something concrete to drive
// against.
package cursor

import (
	"errors"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/vslqcore/vslq/internal/recio"
)

// guardWords is how many words of headroom Check treats as the
// "overwrite imminent" zone before a reference is actually lost.
const guardWords = 64

// SimRing is a fixed-capacity ring of words backed by an anonymous
// mmap region, standing in for the shared memory segment a real log
// producer would own. It is safe for concurrent use by one producer
// and any number of cursors.
type SimRing struct {
	mu       sync.RWMutex
	raw      []byte
	buf      []uint32
	capWords int
	writePos uint64
	decode   recio.Decode
}

// NewSimRing allocates a ring holding capWords words, decoding records
// with decode.
func NewSimRing(capWords int, decode recio.Decode) (*SimRing, error) {
	if capWords <= 0 {
		return nil, errors.New("cursor: capWords must be positive")
	}
	size := capWords * 4
	raw, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, err
	}
	buf := unsafe.Slice((*uint32)(unsafe.Pointer(&raw[0])), capWords)
	return &SimRing{raw: raw, buf: buf, capWords: capWords, decode: decode}, nil
}

// Close releases the mmap region. The ring must not be used
// afterward.
func (r *SimRing) Close() error {
	return unix.Munmap(r.raw)
}

// Append writes words to the ring, advancing the producer position,
// and returns the cumulative word offset they were written at (for
// tests that need to construct a RingRef directly).
func (r *SimRing) Append(words []uint32) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	start := r.writePos
	for i, w := range words {
		r.buf[(int(start)+i)%r.capWords] = w
	}
	r.writePos += uint64(len(words))
	return start
}

func (r *SimRing) peekLocked(start uint64, n int) []uint32 {
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(int(start)+i)%r.capWords]
	}
	return out
}

func (r *SimRing) peek(start uint64, n int) []uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.peekLocked(start, n)
}

// NewCursor returns a fresh reader over the ring, starting at whatever
// has been written so far (i.e. it does not replay history written
// before it was created, mirroring a tailing VSL cursor).
func (r *SimRing) NewCursor() *RingCursor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return &RingCursor{ring: r, readPos: r.writePos}
}

// RingCursor implements recio.Cursor over a SimRing.
type RingCursor struct {
	ring    *SimRing
	readPos uint64
}

// ringRef identifies a span of words starting at a cumulative ring
// position, for later Words()/Check() calls.
type ringRef struct {
	ring  *SimRing
	start uint64
	words int
}

func (r *ringRef) Words() []uint32 {
	return r.ring.peek(r.start, r.words)
}

// Next implements recio.Cursor. It peeks the header word layout
// internal/wire uses (tag, vxid, payload byte length, batch total)
// directly, rather than going through decode twice, so this cursor is
// only usable with that reference codec. For a Batch record the
// returned RingRef spans the whole batch (header and body), while the
// cursor itself only advances past the header; Skip steps over the body.
func (c *RingCursor) Next() (recio.Record, recio.RingRef, int) {
	c.ring.mu.RLock()
	avail := c.ring.writePos - c.readPos
	if avail < headerWords {
		c.ring.mu.RUnlock()
		return nil, nil, 0
	}
	hdr := c.ring.peekLocked(c.readPos, headerWords)
	total := headerWords + int(hdr[2]+3)/4
	span := total
	if recio.Tag(hdr[0]) == recio.TagBatch && int(hdr[3]) > span {
		span = int(hdr[3])
	}
	if uint64(span) > avail {
		c.ring.mu.RUnlock()
		return nil, nil, 0
	}
	words := c.ring.peekLocked(c.readPos, span)
	c.ring.mu.RUnlock()

	rec := c.ring.decode(words)
	ref := &ringRef{ring: c.ring, start: c.readPos, words: span}
	c.readPos += uint64(total)
	return rec, ref, 1
}

// headerWords mirrors internal/wire's fixed header size: the cursor
// only needs to know how many leading words carry tag/vxid/length
// fields, not the rest of that package's encoding.
const headerWords = 4

// Check implements recio.Cursor.
func (c *RingCursor) Check(ref recio.RingRef) recio.CheckResult {
	rr, ok := ref.(*ringRef)
	if !ok {
		return recio.CheckLost
	}
	rr.ring.mu.RLock()
	defer rr.ring.mu.RUnlock()
	age := rr.ring.writePos - rr.start
	switch {
	case age > uint64(rr.ring.capWords):
		return recio.CheckLost
	case age > uint64(rr.ring.capWords-guardWords-rr.words):
		return recio.CheckOverwriteImminent
	default:
		return recio.CheckValid
	}
}

// Skip implements recio.Cursor.
func (c *RingCursor) Skip(words int) error {
	c.ring.mu.RLock()
	avail := c.ring.writePos - c.readPos
	c.ring.mu.RUnlock()
	if uint64(words) > avail {
		return errors.New("cursor: skip past available data")
	}
	c.readPos += uint64(words)
	return nil
}
