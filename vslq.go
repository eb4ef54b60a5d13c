package vslq

import (
	"context"
	"errors"
	"time"

	icursor "github.com/vslqcore/vslq/internal/cursor"
	"github.com/vslqcore/vslq/internal/assembler"
	"github.com/vslqcore/vslq/internal/logging"
	"github.com/vslqcore/vslq/internal/query"
	"github.com/vslqcore/vslq/internal/recio"
	"github.com/vslqcore/vslq/internal/table"
)

// DispatchFunc is invoked once per dispatched tree, carrying one
// restartable cursor per node, ordered deepest-first (reverse BFS:
// the deepest level first, shallower levels in turn, root last),
// sibling order following child-insertion order within a level (spec
// §4.4/§5). Raw-grouping passthrough invokes it once per record with
// a single-element slice. Returning ErrStop ends the current Dispatch
// call early without error; any other non-nil error also ends it, and
// is returned from Dispatch wrapped as a *Error with CodeFatal.
type DispatchFunc func(nodes []recio.TreeCursor) error

// VSLQ is the transaction dispatch core (spec §1-§5): it pulls records
// from a Cursor, assembles them into transaction trees keyed by vxid,
// and dispatches each tree to a DispatchFunc once it (and, depending
// on Grouping, its descendants) are ready.
type VSLQ struct {
	cursor   recio.Cursor
	decode   recio.Decode
	grouping recio.Grouping
	cfg      Config
	table    *table.Table
	observer Observer
}

// New returns a VSLQ reading from cur, decoding stored record spans
// with decode, grouping dispatched trees per grouping.
func New(cur recio.Cursor, decode recio.Decode, grouping recio.Grouping, opts ...Option) (*VSLQ, error) {
	if cur == nil {
		return nil, newError("New", CodeFatal, "cursor must not be nil")
	}
	if decode == nil {
		return nil, newError("New", CodeFatal, "decode must not be nil")
	}
	if !grouping.Valid() {
		return nil, newError("New", CodeFatal, "invalid grouping")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	var obs Observer = noopObserver{}
	if cfg.Observer != nil {
		obs = cfg.Observer
	}

	return &VSLQ{
		cursor:   cur,
		decode:   decode,
		grouping: grouping,
		cfg:      cfg,
		table:    table.New(decode),
		observer: obs,
	}, nil
}

// Dispatch drains whatever records are currently available from the
// cursor, assembling them and firing cb for every tree that becomes
// ready (subject to Grouping and any configured predicate), until the
// cursor reports no more data is currently available. It returns nil
// in that case, and also when the cursor reports end of log (status
// -1): the return value does not distinguish the two, so a nil return
// does not mean the log is done. A cursor error (status -2) is
// returned as a CodeFatal *Error.
func (q *VSLQ) Dispatch(ctx context.Context, cb DispatchFunc) error {
	for {
		if err := ctx.Err(); err != nil {
			return wrapError("Dispatch", err)
		}

		if q.grouping != recio.GroupingRaw {
			if err := q.sweepEvictions(); err != nil {
				return wrapError("Dispatch", err)
			}
		}

		rec, ref, status := q.cursor.Next()
		if status <= 0 {
			if status == -2 {
				return newError("Dispatch", CodeFatal, "cursor error")
			}
			// The cursor has nothing more to give us right now: this is
			// the one point the backstops run (spec §4.4 "After the main
			// loop terminates…", §5 "applied only after cursor.next stops
			// returning data in the current call"), not per record.
			if err := q.dispatchBackstops(cb); err != nil {
				if errors.Is(err, ErrStop) {
					return nil
				}
				return wrapError("Dispatch", err)
			}
			return nil
		}

		if err := q.ingest(rec, ref, cb); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return wrapError("Dispatch", err)
		}
	}
}

func (q *VSLQ) ingest(rec recio.Record, ref recio.RingRef, cb DispatchFunc) error {
	q.observer.OnRecord()

	if q.grouping == recio.GroupingRaw {
		return q.dispatchRaw(rec, cb)
	}

	now := time.Now()
	vxid := rec.Vxid()
	words := rec.LenWords()
	if rec.Tag() == recio.TagBatch {
		vxid = rec.BatchVxid()
		words = rec.BatchLenWords()
	}
	if vxid == 0 {
		// vxid 0 is reserved and never keyed (spec §3, invariant I7).
		return nil
	}

	tx, created := q.table.LookupOrInsert(vxid, now)
	if created {
		q.observer.OnTransactionBegun(vxid)
	}

	tx.Store.Append(ref, words, false)

	var newlyReady []*table.Transaction
	if rec.Tag() == recio.TagBatch {
		if err := q.cursor.Skip(rec.BatchLenWords() - rec.LenWords()); err != nil {
			tx.AddDiagnostic("failed to skip batch body: " + err.Error())
		}
		newlyReady = q.scanBatchBody(tx, rec, ref, now)
	} else {
		beforeDiag := tx.DiagnosticCount()
		newlyReady = assembler.Scan(q.table, tx, rec, now, q.grouping)
		q.surfaceNewDiagnostics(tx, beforeDiag)
	}

	for _, ready := range newlyReady {
		q.observer.OnTransactionReady(ready.Vxid)
		if !q.qualifies(ready) {
			continue
		}
		if err := q.dispatchQualified(ready, cb); err != nil {
			return err
		}
	}
	return nil
}

// sweepEvictions drains the eviction guard (spec §4.4 step 1): every
// transaction still holding direct ring chunks has those chunks probed
// via Cursor.Check. A chunk reporting overwrite-imminent is copied out
// now (ForcePromote); one reporting lost means the data is already
// gone, which is fatal and stops Dispatch entirely rather than handing
// the caller a torn tree.
func (q *VSLQ) sweepEvictions() error {
	for _, tx := range q.table.All() {
		for _, ref := range tx.Store.Chunks() {
			switch q.cursor.Check(ref) {
			case recio.CheckOverwriteImminent:
				tx.Store.ForcePromote()
				const msg = "promoted to owned buffer: overwrite imminent"
				tx.AddDiagnostic(msg)
				q.observer.OnDiagnostic(tx.Vxid, msg)
			case recio.CheckLost:
				return newVxidError("Dispatch", tx.Vxid, CodeFatal, "ring chunk lost before promotion")
			}
		}
	}
	return nil
}

// sweepBackstops forces complete any transaction that has overstayed
// the incomplete timeout or pushed the incomplete queue past its
// bound, then re-runs readiness on each (spec §4.2).
func (q *VSLQ) sweepBackstops(now time.Time) []*table.Transaction {
	var ready []*table.Transaction
	forced := q.table.SweepTimeouts(now, q.cfg.IncompleteTimeout)
	forced = append(forced, q.table.SweepOverflow(q.cfg.IncompleteMax)...)
	for _, tx := range forced {
		q.observer.OnForcedComplete(tx.Vxid)
		ready = append(ready, assembler.CheckReady(tx)...)
	}
	return ready
}

// dispatchBackstops runs the timeout/overflow sweep and dispatches
// whatever it forces ready, subject to the same Grouping/predicate
// filtering as the normal per-record path (spec §4.4/§6).
func (q *VSLQ) dispatchBackstops(cb DispatchFunc) error {
	if q.grouping == recio.GroupingRaw {
		return nil
	}
	for _, ready := range q.sweepBackstops(time.Now()) {
		q.observer.OnTransactionReady(ready.Vxid)
		if !q.qualifies(ready) {
			continue
		}
		if err := q.dispatchQualified(ready, cb); err != nil {
			return err
		}
	}
	return nil
}

// surfaceNewDiagnostics reports tx's most recent diagnostic to both the
// Observer and the configured Logger, if Scan added any since before.
func (q *VSLQ) surfaceNewDiagnostics(tx *table.Transaction, before int) {
	if tx.DiagnosticCount() <= before {
		return
	}
	diags := tx.Diagnostics()
	if len(diags) == 0 {
		return
	}
	msg := diags[len(diags)-1]
	q.observer.OnDiagnostic(tx.Vxid, msg)
	if q.cfg.Logger != nil {
		q.cfg.Logger.Warn("transaction diagnostic", "vxid", tx.Vxid, "msg", msg)
	}
}

// scanBatchBody feeds every record carried inside a Batch span through
// the assembler, not just the batch header itself (spec §3/§9): the
// header was already appended as one chunk by the caller, so this
// walks that same span's words, decoding and scanning each inner
// record in turn (vtx_scan's per-record iteration over the store,
// vsl_dispatch.c). hdr is the batch header record just decoded by the
// cursor; ref points at the whole span, header included.
func (q *VSLQ) scanBatchBody(tx *table.Transaction, hdr recio.Record, ref recio.RingRef, now time.Time) []*table.Transaction {
	words := ref.Words()
	total := hdr.BatchLenWords()
	pos := hdr.LenWords()
	var newlyReady []*table.Transaction
	for pos < total {
		inner := q.decode(words[pos:])
		pos += inner.LenWords()

		beforeDiag := tx.DiagnosticCount()
		newlyReady = append(newlyReady, assembler.Scan(q.table, tx, inner, now, q.grouping)...)
		q.surfaceNewDiagnostics(tx, beforeDiag)
	}
	return newlyReady
}

// qualifies reports whether tx becoming ready should itself trigger a
// dispatch, per the configured Grouping (spec §4.4/§6).
func (q *VSLQ) qualifies(tx *table.Transaction) bool {
	switch q.grouping {
	case recio.GroupingVxid:
		return true
	case recio.GroupingRequest:
		return tx.Type == recio.TxRequest
	case recio.GroupingSession:
		return tx.Type == recio.TxSession
	default:
		return false
	}
}

func (q *VSLQ) dispatchQualified(tx *table.Transaction, cb DispatchFunc) error {
	if q.cfg.Predicate != nil && !treeMatches(tx, q.cfg.Predicate) {
		q.observer.OnTreeFiltered(tx.Vxid)
		q.retireTree(tx)
		return nil
	}

	nodes := collectDeepestFirst(tx)
	if err := cb(nodes); err != nil {
		return err
	}
	q.observer.OnTreeDispatched(tx.Vxid)
	q.retireTree(tx)
	return nil
}

// collectDeepestFirst returns every node of tx's tree as a TreeCursor,
// ordered deepest level first down to the root (reverse BFS), with
// sibling order within a level following child-insertion order (spec
// §4.4's "Callback input" / §5's ordering guarantees).
func collectDeepestFirst(tx *table.Transaction) []recio.TreeCursor {
	type queued struct {
		tx    *table.Transaction
		level int
	}
	var levels [][]*table.Transaction
	queue := []queued{{tx, 0}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for len(levels) <= cur.level {
			levels = append(levels, nil)
		}
		levels[cur.level] = append(levels[cur.level], cur.tx)
		for _, child := range cur.tx.Children {
			queue = append(queue, queued{child, cur.level + 1})
		}
	}

	var out []recio.TreeCursor
	for lvl := len(levels) - 1; lvl >= 0; lvl-- {
		for _, node := range levels[lvl] {
			out = append(out, icursor.NewTxCursor(node.Store.Iterator(), node.Vxid, lvl))
		}
	}
	return out
}

// retireTree releases tx and every descendant back to the table,
// children first (vtx_retire's teardown order, vsl_dispatch.c).
func (q *VSLQ) retireTree(tx *table.Transaction) {
	for _, child := range tx.Children {
		q.retireTree(child)
	}
	q.table.Release(tx)
}

func treeMatches(tx *table.Transaction, pred query.Predicate) bool {
	if query.MatchAny(icursor.NewTxCursor(tx.Store.Iterator(), tx.Vxid, 0), pred) {
		return true
	}
	for _, child := range tx.Children {
		if treeMatches(child, pred) {
			return true
		}
	}
	return false
}

func (q *VSLQ) dispatchRaw(rec recio.Record, cb DispatchFunc) error {
	cur := icursor.NewRawTreeCursor(rec)
	if q.cfg.Predicate != nil && !query.MatchAny(cur, q.cfg.Predicate) {
		q.observer.OnTreeFiltered(0)
		return nil
	}
	cur = icursor.NewRawTreeCursor(rec)
	if err := cb([]recio.TreeCursor{cur}); err != nil {
		return err
	}
	q.observer.OnTreeDispatched(0)
	return nil
}

// Flush forces every transaction still held by the table through
// dispatch, regardless of readiness, then empties the table (spec
// §4.6). Used when the caller is shutting down and wants whatever was
// assembled so far delivered rather than discarded.
func (q *VSLQ) Flush(cb DispatchFunc) error {
	forced := q.table.ForceAllComplete()
	for _, tx := range forced {
		q.observer.OnForcedComplete(tx.Vxid)
		assembler.CheckReady(tx)
	}

	for _, root := range q.table.Roots() {
		if !q.qualifies(root) {
			q.retireTree(root)
			continue
		}
		if err := q.dispatchQualified(root, cb); err != nil {
			if errors.Is(err, ErrStop) {
				break
			}
			return wrapError("Flush", err)
		}
	}
	return nil
}

// Close releases whatever transactions the table is still holding.
// It does not close the underlying Cursor; callers own that.
func (q *VSLQ) Close() error {
	for _, root := range q.table.Roots() {
		q.retireTree(root)
	}
	return nil
}

// DefaultLogger returns the package-wide default logger, used when a
// VSLQ is constructed without WithLogger.
func DefaultLogger() *logging.Logger {
	return logging.Default()
}
