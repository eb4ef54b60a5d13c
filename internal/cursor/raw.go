package cursor

import "github.com/vslqcore/vslq/internal/recio"

// RawCursor is a one-shot recio.Cursor wrapping a single
// already-decoded record. The dispatcher's raw-grouping path (spec
// §4.5) does not use it; that path hands each record to the callback
// through NewRawTreeCursor below.
type RawCursor struct {
	rec    recio.Record
	ref    recio.RingRef
	served bool
}

// NewRawCursor returns a cursor that yields rec exactly once.
func NewRawCursor(rec recio.Record, ref recio.RingRef) *RawCursor {
	return &RawCursor{rec: rec, ref: ref}
}

// Next implements recio.Cursor.
func (c *RawCursor) Next() (recio.Record, recio.RingRef, int) {
	if c.served {
		return nil, nil, -1
	}
	c.served = true
	return c.rec, c.ref, 1
}

// Check implements recio.Cursor by delegating to the wrapped
// reference, if any.
func (c *RawCursor) Check(ref recio.RingRef) recio.CheckResult {
	if rr, ok := ref.(*ringRef); ok {
		cur := &RingCursor{ring: rr.ring, readPos: rr.ring.writePos}
		return cur.Check(ref)
	}
	return recio.CheckValid
}

// Skip is a no-op: a RawCursor carries a single record with nothing
// to skip past.
func (c *RawCursor) Skip(words int) error {
	return nil
}

// treeNode implements recio.TreeCursor over exactly one record, used
// when the raw-grouping dispatcher builds a one-node "tree" to hand
// the callback (spec §4.5's Vxid() == -1 sentinel).
type treeNode struct {
	rec    recio.Record
	served bool
}

// NewRawTreeCursor returns a recio.TreeCursor that yields rec as the
// sole node of a depth-0, vxid -1 tree.
func NewRawTreeCursor(rec recio.Record) recio.TreeCursor {
	return &treeNode{rec: rec}
}

func (n *treeNode) Next() bool {
	if n.served {
		return false
	}
	n.served = true
	return true
}

func (n *treeNode) Record() recio.Record { return n.rec }
func (n *treeNode) Reset()               { n.served = false }
func (n *treeNode) Vxid() int64          { return -1 }
func (n *treeNode) Level() int           { return 0 }
