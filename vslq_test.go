package vslq

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vslqcore/vslq/internal/cursor"
	"github.com/vslqcore/vslq/internal/wire"
)

// evictionRingWords sizes a SimRing small enough that a handful of
// filler appends push an older reference first into the
// overwrite-imminent guard zone and then past it into loss, mirroring
// internal/cursor's own eviction tests.
const evictionRingWords = 4 + 64 + 8

func TestDispatch_VxidGrouping_SimpleRequestFiresOncePerNode(t *testing.T) {
	cur := NewMockCursor()
	cur.FeedRecord(TagBegin, 1, []byte("req 0 rxreq"))
	cur.FeedRecord(TagData, 1, []byte("ReqURL /"))
	cur.FeedRecord(TagEnd, 1, []byte(""))

	q, err := New(cur, wire.Decode, GroupingVxid)
	require.NoError(t, err)

	var seen []string
	err = q.Dispatch(context.Background(), func(nodes []TreeCursor) error {
		require.Len(t, nodes, 1, "GroupingVxid trees never have children")
		for nodes[0].Next() {
			seen = append(seen, string(nodes[0].Record().Payload()))
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"req 0 rxreq", "ReqURL /", ""}, seen)
}

func TestDispatch_RequestGrouping_WaitsForChildThenFiresWholeTree(t *testing.T) {
	cur := NewMockCursor()
	cur.FeedRecord(TagBegin, 2, []byte("bereq 1 fetch"))
	cur.FeedRecord(TagBegin, 1, []byte("req 0 rxreq"))
	cur.FeedRecord(TagEnd, 1, []byte(""))
	cur.FeedRecord(TagData, 2, []byte("BereqURL /backend"))
	cur.FeedRecord(TagEnd, 2, []byte(""))

	q, err := New(cur, wire.Decode, GroupingRequest)
	require.NoError(t, err)

	var levels []int
	var fires int
	err = q.Dispatch(context.Background(), func(nodes []TreeCursor) error {
		fires++
		for _, n := range nodes {
			levels = append(levels, n.Level())
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, fires, "one callback invocation delivers the whole tree")
	require.Equal(t, []int{1, 0}, levels, "deepest-first: bereq child before its request parent")
}

func TestDispatch_RequestGrouping_BareBereqNeverFiresAlone(t *testing.T) {
	cur := NewMockCursor()
	cur.FeedRecord(TagBegin, 1, []byte("bereq 0 fetch"))
	cur.FeedRecord(TagEnd, 1, []byte(""))
	cur.EndLog()

	q, err := New(cur, wire.Decode, GroupingRequest)
	require.NoError(t, err)

	fired := false
	err = q.Dispatch(context.Background(), func(nodes []TreeCursor) error {
		fired = true
		return nil
	})
	require.NoError(t, err)
	require.False(t, fired, "a parentless bereq should stay undelivered under GroupingRequest")
}

func TestDispatch_RawGrouping_FiresPerRecordNoAssembly(t *testing.T) {
	cur := NewMockCursor()
	cur.FeedRecord(TagData, 1, []byte("one"))
	cur.FeedRecord(TagData, 2, []byte("two"))

	q, err := New(cur, wire.Decode, GroupingRaw)
	require.NoError(t, err)

	var seen []string
	err = q.Dispatch(context.Background(), func(nodes []TreeCursor) error {
		require.Len(t, nodes, 1, "raw passthrough delivers one record per callback")
		tc := nodes[0]
		require.EqualValues(t, -1, tc.Vxid())
		for tc.Next() {
			seen = append(seen, string(tc.Record().Payload()))
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"one", "two"}, seen)
}

func TestDispatch_OutOfOrderArrival_ChildBeginPrecedesParentBegin(t *testing.T) {
	cur := NewMockCursor()
	cur.FeedRecord(TagBegin, 3, []byte("req 2"))
	cur.FeedRecord(TagBegin, 2, []byte("sess"))
	cur.FeedRecord(TagLink, 2, []byte("req 3"))
	cur.FeedRecord(TagEnd, 3, []byte(""))
	cur.FeedRecord(TagEnd, 2, []byte(""))

	q, err := New(cur, wire.Decode, GroupingSession)
	require.NoError(t, err)

	var delivered []int64
	fires := 0
	err = q.Dispatch(context.Background(), func(nodes []TreeCursor) error {
		fires++
		for _, n := range nodes {
			delivered = append(delivered, n.Vxid())
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, fires, "one tree, one callback, despite the child's Begin arriving first")
	require.Equal(t, []int64{3, 2}, delivered, "deepest-first: child vxid 3 before its session root")
}

func TestDispatch_PredicateFiltersNonMatchingTrees(t *testing.T) {
	cur := NewMockCursor()
	cur.FeedRecord(TagBegin, 1, []byte("req 0 rxreq"))
	cur.FeedRecord(TagData, 1, []byte("ReqURL /boring"))
	cur.FeedRecord(TagEnd, 1, []byte(""))
	cur.FeedRecord(TagBegin, 2, []byte("req 0 rxreq"))
	cur.FeedRecord(TagData, 2, []byte("ReqURL /interesting"))
	cur.FeedRecord(TagEnd, 2, []byte(""))

	q, err := New(cur, wire.Decode, GroupingVxid, WithPredicate(func(rec Record) bool {
		return string(rec.Payload()) == "ReqURL /interesting"
	}))
	require.NoError(t, err)

	var delivered []int64
	err = q.Dispatch(context.Background(), func(nodes []TreeCursor) error {
		delivered = append(delivered, nodes[0].Vxid())
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []int64{2}, delivered, "only the matching tree should reach the callback")
}

func TestDispatch_CallbackErrStopEndsDispatchCleanly(t *testing.T) {
	cur := NewMockCursor()
	cur.FeedRecord(TagBegin, 1, []byte("req 0 rxreq"))
	cur.FeedRecord(TagEnd, 1, []byte(""))
	cur.FeedRecord(TagBegin, 2, []byte("req 0 rxreq"))
	cur.FeedRecord(TagEnd, 2, []byte(""))

	q, err := New(cur, wire.Decode, GroupingVxid)
	require.NoError(t, err)

	fired := 0
	err = q.Dispatch(context.Background(), func(nodes []TreeCursor) error {
		fired++
		return ErrStop
	})
	require.NoError(t, err, "ErrStop should end Dispatch without surfacing an error")
	require.Equal(t, 1, fired)
}

func TestDispatch_NoDataReturnsNilForRetry(t *testing.T) {
	cur := NewMockCursor()
	q, err := New(cur, wire.Decode, GroupingVxid)
	require.NoError(t, err)
	require.NoError(t, q.Dispatch(context.Background(), func([]TreeCursor) error { return nil }))
}

func TestFlush_DeliversIncompleteTreesAtShutdown(t *testing.T) {
	cur := NewMockCursor()
	cur.FeedRecord(TagBegin, 1, []byte("req 0 rxreq"))
	cur.FeedRecord(TagData, 1, []byte("ReqURL /unfinished"))
	cur.EndLog()

	q, err := New(cur, wire.Decode, GroupingVxid)
	require.NoError(t, err)
	require.NoError(t, q.Dispatch(context.Background(), func([]TreeCursor) error { return nil }))

	fired := false
	require.NoError(t, q.Flush(func(nodes []TreeCursor) error { fired = true; return nil }))
	require.True(t, fired, "Flush should dispatch the still-incomplete transaction")
}

func TestNew_RejectsInvalidConstruction(t *testing.T) {
	cur := NewMockCursor()

	_, err := New(nil, wire.Decode, GroupingVxid)
	require.Error(t, err)

	_, err = New(cur, nil, GroupingVxid)
	require.Error(t, err)

	_, err = New(cur, wire.Decode, Grouping(99))
	require.Error(t, err)
}

func TestDispatch_ForcedTimeoutDeliversStaleTransaction(t *testing.T) {
	cur := NewMockCursor()
	cur.FeedRecord(TagBegin, 1, []byte("req 0 rxreq"))
	cur.FeedRecord(TagData, 1, []byte("ReqURL /slow"))

	obs := &captureObserver{}
	q, err := New(cur, wire.Decode, GroupingVxid, WithIncompleteTimeout(0), WithObserver(obs))
	require.NoError(t, err)

	fired := false
	err = q.Dispatch(context.Background(), func(nodes []TreeCursor) error { fired = true; return nil })
	require.NoError(t, err)
	require.True(t, fired, "a zero incomplete timeout should force the transaction complete once the cursor goes dry")
	require.NotEmpty(t, obs.forced)
}

func TestDispatch_ForcedTimeoutFiresOnDryCursorWithSingleRecord(t *testing.T) {
	cur := NewMockCursor()
	cur.FeedRecord(TagBegin, 9, []byte("req 0 rxreq"))

	obs := &captureObserver{}
	q, err := New(cur, wire.Decode, GroupingVxid, WithIncompleteTimeout(0), WithObserver(obs))
	require.NoError(t, err)

	fired := false
	err = q.Dispatch(context.Background(), func(nodes []TreeCursor) error { fired = true; return nil })
	require.NoError(t, err)
	require.True(t, fired, "the backstop sweep must run once the cursor goes dry, even with only one record fed")
	require.Equal(t, []uint64{9}, obs.forced)
}

func TestDispatch_BatchBodyRecordsDriveAssembly(t *testing.T) {
	cur := NewMockCursor()
	body := append(append(
		wire.Encode(TagBegin, 1, []byte("req 0 rxreq")),
		wire.Encode(TagData, 1, []byte("ReqURL /batched"))...),
		wire.Encode(TagEnd, 1, []byte(""))...)
	cur.FeedBatch(1, body)

	q, err := New(cur, wire.Decode, GroupingVxid)
	require.NoError(t, err)

	var seen []string
	fired := false
	err = q.Dispatch(context.Background(), func(nodes []TreeCursor) error {
		fired = true
		for nodes[0].Next() {
			seen = append(seen, string(nodes[0].Record().Payload()))
		}
		return nil
	})
	require.NoError(t, err)
	require.True(t, fired, "Begin/End records nested inside a Batch must still drive the transaction to ready")
	require.Contains(t, seen, "req 0 rxreq")
	require.Contains(t, seen, "ReqURL /batched")
}

func TestDispatch_ZeroVxidRecordsAreIgnored(t *testing.T) {
	cur := NewMockCursor()
	cur.FeedRecord(TagData, 0, []byte("orphan"))
	cur.FeedRecord(TagBegin, 1, []byte("req 0 rxreq"))
	cur.FeedRecord(TagEnd, 1, []byte(""))

	q, err := New(cur, wire.Decode, GroupingVxid)
	require.NoError(t, err)

	fires := 0
	err = q.Dispatch(context.Background(), func(nodes []TreeCursor) error {
		fires++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, fires, "a vxid-0 record must not be keyed into the table as its own transaction")
}

func TestFlush_SkipsRootsNotQualifyingUnderGrouping(t *testing.T) {
	cur := NewMockCursor()
	cur.FeedRecord(TagBegin, 1, []byte("bereq 0 fetch"))
	cur.EndLog()

	q, err := New(cur, wire.Decode, GroupingRequest)
	require.NoError(t, err)
	require.NoError(t, q.Dispatch(context.Background(), func([]TreeCursor) error { return nil }))

	fired := false
	require.NoError(t, q.Flush(func(nodes []TreeCursor) error { fired = true; return nil }))
	require.False(t, fired, "Flush must apply the same grouping filter as the live dispatch path")
}

func TestDispatch_EvictionGuardPromotesOnOverwriteImminent(t *testing.T) {
	ring, err := cursor.NewSimRing(evictionRingWords, wire.Decode)
	require.NoError(t, err)
	defer ring.Close()
	rc := ring.NewCursor()

	obs := &captureObserver{}
	q, err := New(rc, wire.Decode, GroupingVxid, WithObserver(obs))
	require.NoError(t, err)

	ring.Append(wire.Encode(TagBegin, 1, nil))
	require.NoError(t, q.Dispatch(context.Background(), func([]TreeCursor) error { return nil }))

	// Push the held chunk reference into the guard zone without
	// crossing into loss (mirrors internal/cursor's own wraparound math).
	for i := 0; i < 4; i++ {
		ring.Append(wire.Encode(TagData, 2, nil))
	}

	err = q.Dispatch(context.Background(), func([]TreeCursor) error { return nil })
	require.NoError(t, err, "an overwrite-imminent chunk should be promoted, not fail Dispatch")
	require.Contains(t, obs.diagnostics, "promoted to owned buffer: overwrite imminent")
}

func TestDispatch_EvictionGuardAbortsOnLostChunk(t *testing.T) {
	ring, err := cursor.NewSimRing(evictionRingWords, wire.Decode)
	require.NoError(t, err)
	defer ring.Close()
	rc := ring.NewCursor()

	q, err := New(rc, wire.Decode, GroupingVxid)
	require.NoError(t, err)

	ring.Append(wire.Encode(TagBegin, 1, nil))
	require.NoError(t, q.Dispatch(context.Background(), func([]TreeCursor) error { return nil }))

	// Jump straight past the guard zone into loss before Dispatch gets
	// another chance to promote the held chunk.
	for i := 0; i < 24; i++ {
		ring.Append(wire.Encode(TagData, 2, nil))
	}

	err = q.Dispatch(context.Background(), func([]TreeCursor) error { return nil })
	require.Error(t, err)
	require.True(t, IsCode(err, CodeFatal))
}

type captureObserver struct {
	forced      []uint64
	diagnostics []string
}

func (c *captureObserver) OnRecord()                  {}
func (c *captureObserver) OnTransactionBegun(uint64)  {}
func (c *captureObserver) OnTransactionReady(uint64)  {}
func (c *captureObserver) OnTreeDispatched(uint64)    {}
func (c *captureObserver) OnTreeFiltered(uint64)      {}
func (c *captureObserver) OnForcedComplete(vxid uint64) {
	c.forced = append(c.forced, vxid)
}
func (c *captureObserver) OnDiagnostic(_ uint64, msg string) {
	c.diagnostics = append(c.diagnostics, msg)
}
