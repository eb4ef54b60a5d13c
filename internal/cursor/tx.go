package cursor

import (
	"github.com/vslqcore/vslq/internal/recio"
	"github.com/vslqcore/vslq/internal/store"
)

// TxCursor adapts a store.Iterator into a recio.TreeCursor for one
// node of a dispatched tree, tagged with the transaction's vxid and
// its depth in that tree (spec §4.4).
type TxCursor struct {
	it    *store.Iterator
	vxid  int64
	level int
}

// NewTxCursor wraps it as a tree node at the given vxid and level.
func NewTxCursor(it *store.Iterator, vxid uint64, level int) *TxCursor {
	return &TxCursor{it: it, vxid: int64(vxid), level: level}
}

func (c *TxCursor) Next() bool          { return c.it.Next() }
func (c *TxCursor) Record() recio.Record { return c.it.Record() }
func (c *TxCursor) Reset()              { c.it.Reset() }
func (c *TxCursor) Vxid() int64         { return c.vxid }
func (c *TxCursor) Level() int          { return c.level }
