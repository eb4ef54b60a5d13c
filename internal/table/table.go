// Package table implements the transaction table (spec §4.2): the
// vxid-indexed set of in-flight transactions, the FIFO queue used to
// force stale ones complete, and a small freelist of retired
// transaction shells kept around for reuse.
package table

import (
	"container/list"
	"time"

	"github.com/cloudwego/gopkg/container/ring"

	"github.com/vslqcore/vslq/internal/constants"
	"github.com/vslqcore/vslq/internal/recio"
	"github.com/vslqcore/vslq/internal/store"
)

// diagRing is a fixed-capacity FIFO of diagnostic strings, oldest
// dropped first. It's built on cloudwego/gopkg's generic ring rather
// than a hand-shifted slice, since the ring already gives us
// modulo-indexed fixed storage with in-place mutation via
// Item.Pointer.
type diagRing struct {
	r     *ring.Ring[string]
	head  int
	count int
}

func newDiagRing(capacity int) *diagRing {
	return &diagRing{r: ring.NewFromSlice(make([]string, capacity))}
}

func (d *diagRing) add(msg string) {
	cap := d.r.Len()
	item, _ := d.r.Get(d.head)
	*item.Pointer() = msg
	d.head = (d.head + 1) % cap
	if d.count < cap {
		d.count++
	}
}

func (d *diagRing) list() []string {
	cap := d.r.Len()
	start := (d.head - d.count + cap) % cap
	out := make([]string, 0, d.count)
	for i := 0; i < d.count; i++ {
		item, _ := d.r.Get((start + i) % cap)
		out = append(out, item.Value())
	}
	return out
}

func (d *diagRing) reset() {
	d.head = 0
	d.count = 0
}

// Transaction is one node of the dispatch tree (spec §3/§4.2),
// identified by vxid. It owns its record store and tracks the parent
// link, child set, and completion/readiness flags the assembler
// mutates as records arrive (vtx_scan_begintag/vtx_scan_linktag/
// vtx_check_ready, vsl_dispatch.c).
type Transaction struct {
	Vxid    uint64
	Type    recio.TxType
	Arrived time.Time

	Complete bool
	Ready    bool

	Parent      *Transaction
	Children    []*Transaction
	NChild      int
	NChildReady int

	Store *store.Store

	diag      *diagRing
	diagTotal int // monotonic count of every AddDiagnostic call, even past the ring's capacity

	incompleteElem *list.Element
}

func newTransaction(vxid uint64, decode recio.Decode) *Transaction {
	return &Transaction{
		Vxid:  vxid,
		Store: store.New(decode),
		diag:  newDiagRing(constants.DiagnosticRingSize),
	}
}

// reset recycles tx for a new vxid, as when pulled from the table's
// cache freelist.
func (tx *Transaction) reset(vxid uint64) {
	tx.Vxid = vxid
	tx.Type = recio.TxUnknown
	tx.Arrived = time.Time{}
	tx.Complete = false
	tx.Ready = false
	tx.Parent = nil
	tx.Children = nil
	tx.NChild = 0
	tx.NChildReady = 0
	tx.diag.reset()
	tx.diagTotal = 0
	tx.incompleteElem = nil
	tx.Store.Release()
}

// AddDiagnostic appends msg to the transaction's diagnostic ring,
// dropping the oldest entry once constants.DiagnosticRingSize is
// reached.
func (tx *Transaction) AddDiagnostic(msg string) {
	tx.diag.add(msg)
	tx.diagTotal++
}

// Diagnostics returns the transaction's recorded diagnostics, oldest
// first (at most constants.DiagnosticRingSize; older ones have been
// dropped).
func (tx *Transaction) Diagnostics() []string {
	return tx.diag.list()
}

// DiagnosticCount returns how many diagnostics have ever been
// recorded against tx, including ones the bounded ring has since
// dropped.
func (tx *Transaction) DiagnosticCount() int {
	return tx.diagTotal
}

// AddChild links child under tx. It does not touch readiness
// bookkeeping: NChildReady only changes when the assembler's
// CheckReady later marks child ready (spec §4.2/I4).
func (tx *Transaction) AddChild(child *Transaction) {
	child.Parent = tx
	tx.Children = append(tx.Children, child)
	tx.NChild++
}

// Table is the vxid-indexed transaction set (spec §4.2).
type Table struct {
	decode recio.Decode

	byVxid     map[uint64]*Transaction
	incomplete *list.List // FIFO, oldest (first-arrived) at Front

	cache []*Transaction // freelist of released shells, capped at constants.CachePoolSize
}

// New returns an empty table whose transactions decode records with
// decode.
func New(decode recio.Decode) *Table {
	return &Table{
		decode:     decode,
		byVxid:     make(map[uint64]*Transaction),
		incomplete: list.New(),
	}
}

// Lookup returns the transaction for vxid, if one already exists.
func (t *Table) Lookup(vxid uint64) (*Transaction, bool) {
	tx, ok := t.byVxid[vxid]
	return tx, ok
}

// LookupOrInsert returns the transaction for vxid, creating and
// queuing a new one (reusing a cached shell if available) if it
// doesn't yet exist. created reports whether a new transaction was
// made.
func (t *Table) LookupOrInsert(vxid uint64, now time.Time) (tx *Transaction, created bool) {
	if tx, ok := t.byVxid[vxid]; ok {
		return tx, false
	}
	tx = t.acquire(vxid)
	tx.Arrived = now
	t.byVxid[vxid] = tx
	tx.incompleteElem = t.incomplete.PushBack(tx)
	return tx, true
}

func (t *Table) acquire(vxid uint64) *Transaction {
	if n := len(t.cache); n > 0 {
		tx := t.cache[n-1]
		t.cache = t.cache[:n-1]
		tx.reset(vxid)
		return tx
	}
	return newTransaction(vxid, t.decode)
}

// MarkComplete records tx as complete and removes it from the
// incomplete queue, if it was still on it.
func (t *Table) MarkComplete(tx *Transaction) {
	tx.Complete = true
	t.dequeueIncomplete(tx)
}

func (t *Table) dequeueIncomplete(tx *Transaction) {
	if tx.incompleteElem != nil {
		t.incomplete.Remove(tx.incompleteElem)
		tx.incompleteElem = nil
	}
}

// SweepTimeouts forces complete every incomplete transaction older
// than timeout, oldest first, and returns the ones it forced so the
// caller can re-run readiness propagation on them (spec §4.2's
// incomplete-timeout backstop).
func (t *Table) SweepTimeouts(now time.Time, timeout time.Duration) []*Transaction {
	var forced []*Transaction
	for e := t.incomplete.Front(); e != nil; {
		tx := e.Value.(*Transaction)
		if now.Sub(tx.Arrived) <= timeout {
			break
		}
		next := e.Next()
		tx.AddDiagnostic("forced complete: incomplete timeout exceeded")
		t.MarkComplete(tx)
		forced = append(forced, tx)
		e = next
	}
	return forced
}

// SweepOverflow forces complete the oldest incomplete transactions
// until the incomplete queue's length is within max (spec §4.2's
// incomplete-count backstop).
func (t *Table) SweepOverflow(max int) []*Transaction {
	var forced []*Transaction
	for t.incomplete.Len() > max {
		e := t.incomplete.Front()
		tx := e.Value.(*Transaction)
		tx.AddDiagnostic("forced complete: incomplete bound exceeded")
		t.MarkComplete(tx)
		forced = append(forced, tx)
	}
	return forced
}

// IncompleteLen reports how many transactions are currently queued as
// incomplete.
func (t *Table) IncompleteLen() int {
	return t.incomplete.Len()
}

// All returns every transaction currently indexed by vxid, in no
// particular order. Used by the eviction guard, which must probe every
// transaction still holding direct ring chunks, not just the one the
// triggering record belongs to.
func (t *Table) All() []*Transaction {
	out := make([]*Transaction, 0, len(t.byVxid))
	for _, tx := range t.byVxid {
		out = append(out, tx)
	}
	return out
}

// Roots returns every currently indexed transaction with no parent,
// in no particular order. Callers use this to walk whatever remains
// in the table (e.g. on Flush).
func (t *Table) Roots() []*Transaction {
	var roots []*Transaction
	for _, tx := range t.byVxid {
		if tx.Parent == nil {
			roots = append(roots, tx)
		}
	}
	return roots
}

// ForceAllComplete marks every remaining transaction complete,
// regardless of the incomplete queue, and returns the ones that
// weren't already complete. Used by Flush to drain the table at
// shutdown.
func (t *Table) ForceAllComplete() []*Transaction {
	var forced []*Transaction
	for _, tx := range t.byVxid {
		if tx.Complete {
			continue
		}
		tx.AddDiagnostic("forced complete: flush")
		t.MarkComplete(tx)
		forced = append(forced, tx)
	}
	return forced
}

// Release retires tx: it is removed from the vxid index, its store is
// returned to the pool, and the shell itself is kept on a small
// freelist for reuse (capped at constants.CachePoolSize) rather than
// discarded outright.
func (t *Table) Release(tx *Transaction) {
	t.dequeueIncomplete(tx)
	delete(t.byVxid, tx.Vxid)
	if len(t.cache) < constants.CachePoolSize {
		t.cache = append(t.cache, tx)
		return
	}
	tx.Store.Release()
}

// Len returns the number of transactions currently indexed by vxid,
// complete or not.
func (t *Table) Len() int {
	return len(t.byVxid)
}
