package vslq

import (
	"sync"

	"github.com/vslqcore/vslq/internal/recio"
	"github.com/vslqcore/vslq/internal/wire"
)

// MockCursor is an in-memory recio.Cursor for tests: records are
// queued with FeedRecord/FeedBatch and handed out in order by Next.
// It always reports every reference as recio.CheckValid, since it
// never actually recycles memory; tests that need to exercise the
// eviction guard should drive internal/cursor.SimRing directly.
type MockCursor struct {
	mu      sync.Mutex
	pending [][]uint32
	ended   bool
	err     error
}

// NewMockCursor returns an empty MockCursor, decoding fed records with
// the internal/wire reference codec.
func NewMockCursor() *MockCursor {
	return &MockCursor{}
}

// FeedRecord queues a single record.
func (m *MockCursor) FeedRecord(tag Tag, vxid uint64, payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, wire.Encode(tag, vxid, payload))
}

// FeedBatch queues a Batch record wrapping body, which should be the
// concatenation of other Encode/EncodeBatch outputs.
func (m *MockCursor) FeedBatch(vxid uint64, body []uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, wire.EncodeBatch(vxid, body))
}

// EndLog marks the cursor as exhausted: once every queued record has
// been delivered, Next reports end-of-log (status -1) instead of "no
// data yet" (status 0).
func (m *MockCursor) EndLog() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ended = true
}

// FailWith makes every subsequent Next call report a permanent cursor
// error (status -2).
func (m *MockCursor) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockCursor) Next() (recio.Record, recio.RingRef, int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, nil, -2
	}
	if len(m.pending) == 0 {
		if m.ended {
			return nil, nil, -1
		}
		return nil, nil, 0
	}
	words := m.pending[0]
	m.pending = m.pending[1:]
	return wire.Decode(words), &mockRef{words: words}, 1
}

func (m *MockCursor) Check(ref recio.RingRef) recio.CheckResult {
	return recio.CheckValid
}

// Skip is a no-op: each pending entry already carries its full span
// (batch header and body together), so there's nothing left to skip.
func (m *MockCursor) Skip(words int) error {
	return nil
}

type mockRef struct {
	words []uint32
}

func (r *mockRef) Words() []uint32 { return r.words }
