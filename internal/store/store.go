package store

import (
	"github.com/vslqcore/vslq/internal/constants"
	"github.com/vslqcore/vslq/internal/recio"
)

// chunkRef is one direct reference into the producer ring: the span a
// single Append call covers, read lazily through Words() rather than
// copied (vtx_append's zero-copy path, vsl_dispatch.c).
type chunkRef struct {
	ref   recio.RingRef
	words int
}

// Store is the chunked record store (spec §4.1). Up to
// constants.ChunksPerTx appends may be held as direct ring references;
// beyond that, or as soon as a caller demands a copy, the store
// promotes to a private word buffer and every later append lands
// there instead. Promotion is one-way and copies whatever chunks were
// already held.
type Store struct {
	decode   recio.Decode
	chunks   []chunkRef
	buf      []uint32
	promoted bool
	total    int
}

// New returns an empty store that decodes records with decode.
func New(decode recio.Decode) *Store {
	return &Store{decode: decode}
}

// Append records a span of words starting at ref. If the store still
// has room among its direct chunks and the caller doesn't require a
// copy, the span is held by reference; otherwise the store promotes
// (if it hasn't already) and copies the span into its owned buffer.
func (s *Store) Append(ref recio.RingRef, words int, mustCopy bool) {
	if !s.promoted && !mustCopy && len(s.chunks) < constants.ChunksPerTx {
		s.chunks = append(s.chunks, chunkRef{ref: ref, words: words})
		s.total += words
		return
	}
	if !s.promoted {
		s.promote()
	}
	s.appendToBuffer(ref.Words()[:words])
	s.total += words
}

// ForcePromote copies any ring-referenced chunks into the owned buffer
// now. It is idempotent: calling it on an already-promoted store is a
// no-op. Callers use this when a held RingRef reports
// recio.CheckOverwriteImminent and the data must be copied before the
// producer recycles it.
func (s *Store) ForcePromote() {
	if !s.promoted {
		s.promote()
	}
}

// Promoted reports whether the store has switched to its owned
// buffer.
func (s *Store) Promoted() bool {
	return s.promoted
}

// TotalWords returns the number of words appended so far.
func (s *Store) TotalWords() int {
	return s.total
}

// Chunks returns the still-unpromoted direct ring references, for
// callers (the transaction table's eviction sweep) that need to probe
// each one's RingRef with Cursor.Check.
func (s *Store) Chunks() []recio.RingRef {
	if s.promoted {
		return nil
	}
	refs := make([]recio.RingRef, len(s.chunks))
	for i, c := range s.chunks {
		refs[i] = c.ref
	}
	return refs
}

func (s *Store) promote() {
	buf := globalWordPool.get(s.total)
	for _, c := range s.chunks {
		buf = append(buf, c.ref.Words()[:c.words]...)
	}
	s.buf = buf
	s.chunks = nil
	s.promoted = true
}

func (s *Store) appendToBuffer(words []uint32) {
	need := len(s.buf) + len(words)
	if need > cap(s.buf) {
		nb := globalWordPool.get(need)
		nb = append(nb, s.buf...)
		globalWordPool.put(s.buf)
		s.buf = nb
	}
	s.buf = append(s.buf, words...)
}

// Release returns the owned buffer to the shared pool and resets the
// store to empty, so it can be recycled from the transaction table's
// cache queue instead of discarded.
func (s *Store) Release() {
	if s.promoted && s.buf != nil {
		globalWordPool.put(s.buf)
	}
	s.buf = nil
	s.chunks = nil
	s.promoted = false
	s.total = 0
}

// segments returns the current word spans in append order, without
// copying: either the live chunk references or, once promoted, the
// single owned buffer.
func (s *Store) segments() [][]uint32 {
	if s.promoted {
		return [][]uint32{s.buf}
	}
	segs := make([][]uint32, len(s.chunks))
	for i, c := range s.chunks {
		segs[i] = c.ref.Words()[:c.words]
	}
	return segs
}

// Iterator returns a restartable walk over every record appended so
// far, in insertion order, decoding across chunk/buffer boundaries
// transparently (vslc_vtx_next's reset-and-replay behavior,
// vsl_dispatch.c).
func (s *Store) Iterator() *Iterator {
	return &Iterator{decode: s.decode, segs: s.segments()}
}

// Iterator walks a Store's records one at a time.
type Iterator struct {
	decode recio.Decode
	segs   [][]uint32
	segIdx int
	pos    int
	cur    recio.Record
}

// Next advances to the next record, returning false once every
// segment is exhausted.
func (it *Iterator) Next() bool {
	for it.segIdx < len(it.segs) {
		seg := it.segs[it.segIdx]
		if it.pos >= len(seg) {
			it.segIdx++
			it.pos = 0
			continue
		}
		rec := it.decode(seg[it.pos:])
		it.cur = rec
		it.pos += rec.LenWords()
		return true
	}
	return false
}

// Record returns the record at the current position. Valid only after
// a Next call returned true.
func (it *Iterator) Record() recio.Record {
	return it.cur
}

// Reset rewinds the iterator to the first record.
func (it *Iterator) Reset() {
	it.segIdx = 0
	it.pos = 0
	it.cur = nil
}
