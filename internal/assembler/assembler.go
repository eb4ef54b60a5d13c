// Package assembler implements the transaction-assembly state machine
// (spec §4.3): parsing Begin/Link/End payloads, wiring parent/child
// links regardless of which arrives first, and propagating readiness
// up the tree once a transaction and all its children are complete.
// It is grounded on vsl_dispatch.c's vtx_scan_begintag/
// vtx_scan_linktag/vtx_check_ready/vtx_set_parent.
package assembler

import (
	"strconv"
	"strings"
	"time"

	"github.com/vslqcore/vslq/internal/recio"
	"github.com/vslqcore/vslq/internal/table"
)

// Scan feeds one record of tx's own log into the assembler. rec's tag
// drives what happens: Begin and Link mutate the tree, End marks tx
// complete and re-checks readiness, anything else is a no-op here
// (the caller is responsible for appending every record, including
// these, to tx's store). grouping gates whether Begin/Link are even
// allowed to link at all (spec §4.3: VXID never links; REQUEST stops
// at a Request node's own Begin, and at a Session's own Link). It
// returns every transaction that newly became ready as a result of
// processing rec — zero, one, or several if readiness cascaded up
// multiple ancestors.
func Scan(tb *table.Table, tx *table.Transaction, rec recio.Record, now time.Time, grouping recio.Grouping) []*table.Transaction {
	switch rec.Tag() {
	case recio.TagBegin:
		if tx.Complete {
			tx.AddDiagnostic("late Begin record ignored")
			return nil
		}
		scanBegin(tb, tx, string(rec.Payload()), now, grouping)
		return nil

	case recio.TagLink:
		if tx.Complete {
			tx.AddDiagnostic("late Link record ignored")
			return nil
		}
		scanLink(tb, tx, string(rec.Payload()), now, grouping)
		return nil

	case recio.TagEnd:
		if tx.Complete {
			tx.AddDiagnostic("duplicate End record ignored")
			return nil
		}
		if tx.Type == recio.TxUnknown {
			tx.AddDiagnostic("End record on transaction with unresolved type")
		}
		tb.MarkComplete(tx)
		return CheckReady(tx)

	default:
		if tx.Complete {
			tx.AddDiagnostic("late record after End ignored for readiness purposes")
		} else if tx.Type == recio.TxUnknown && rec.Tag() != recio.TagBatch {
			tx.AddDiagnostic("record seen before transaction's Begin")
		}
		return nil
	}
}

// scanBegin parses a Begin payload of the form "<type-word>
// [<parent-vxid>]" (spec §3/§4.3) and, if a parent vxid is present and
// nonzero, links tx under that parent (creating the parent transaction
// if it hasn't been seen yet). The parent vxid is optional: a root
// transaction (a session) is logged with just its type word. Under
// VXID grouping, or under REQUEST grouping once tx resolves to
// Request, no link is made at all (spec §4.3 steps 3-4) — type
// reconciliation still happens either way.
func scanBegin(tb *table.Table, tx *table.Transaction, payload string, now time.Time, grouping recio.Grouping) {
	fields := strings.Fields(payload)
	if len(fields) < 1 {
		tx.AddDiagnostic("malformed Begin payload: " + payload)
		return
	}

	applyType(tx, fields[0])

	if len(fields) < 2 {
		return
	}
	if grouping == recio.GroupingVxid {
		return
	}
	if grouping == recio.GroupingRequest && tx.Type == recio.TxRequest {
		return
	}

	parentVxid, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		tx.AddDiagnostic("malformed parent vxid in Begin: " + fields[1])
		return
	}
	if parentVxid == 0 {
		return
	}
	parent, _ := tb.LookupOrInsert(parentVxid, now)
	link(parent, tx)
}

// scanLink parses a Link payload of the form "<child-type>
// <child-vxid> [reason...]" emitted by parent, and links the named
// child under it (creating the child transaction if it hasn't been
// seen yet). Under VXID grouping, or under REQUEST grouping when
// parent is a Session, no link is made at all (spec §4.3 step 2), and
// the child transaction is never looked up or typed from this Link —
// mirroring scanBegin's own grouping check ahead of its parent lookup.
func scanLink(tb *table.Table, parent *table.Transaction, payload string, now time.Time, grouping recio.Grouping) {
	fields := strings.Fields(payload)
	if len(fields) < 2 {
		parent.AddDiagnostic("malformed Link payload: " + payload)
		return
	}

	if grouping == recio.GroupingVxid {
		return
	}
	if grouping == recio.GroupingRequest && parent.Type == recio.TxSession {
		return
	}

	childVxid, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		parent.AddDiagnostic("malformed child vxid in Link: " + fields[1])
		return
	}

	child, _ := tb.LookupOrInsert(childVxid, now)
	applyType(child, fields[0])
	link(parent, child)
}

func applyType(tx *table.Transaction, word string) {
	typ, ok := recio.ParseTxType(word)
	if !ok {
		tx.AddDiagnostic("unknown transaction type: " + word)
		return
	}
	if tx.Type != recio.TxUnknown && tx.Type != typ {
		tx.AddDiagnostic("conflicting transaction type: " + word)
		return
	}
	tx.Type = typ
}

// link attaches child under parent. It is idempotent and
// order-independent: whichever of Begin (child names its parent) or
// Link (parent names its child) is scanned first performs the link;
// the other becomes a no-op. A child claimed by two different parents
// is a diagnostic, not a panic (spec I4). Attaching to or linking an
// already-ready side is diagnosed and dropped rather than applied,
// since either would retroactively break "ready implies every child is
// ready" (spec I2).
func link(parent, child *table.Transaction) {
	if child.Parent == parent {
		return
	}
	if child.Parent != nil {
		child.AddDiagnostic("conflicting parent link ignored")
		return
	}
	if parent.Ready || child.Ready {
		child.AddDiagnostic("link too late: target already ready")
		return
	}
	parent.AddChild(child)
}

// CheckReady evaluates whether tx is now ready (complete, and every
// child ready) and, if so, marks it and recurses into its parent,
// since the parent's own readiness may now follow. It returns every
// transaction that transitioned to ready during this call, in
// bottom-up order.
func CheckReady(tx *table.Transaction) []*table.Transaction {
	if tx.Ready {
		return nil
	}
	if !tx.Complete || tx.NChildReady < tx.NChild {
		return nil
	}
	tx.Ready = true
	newly := []*table.Transaction{tx}
	if tx.Parent != nil {
		tx.Parent.NChildReady++
		newly = append(newly, CheckReady(tx.Parent)...)
	}
	return newly
}
