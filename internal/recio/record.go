// Package recio defines the record/cursor contract the dispatch core
// consumes. It has no dependents inside this module other than the
// packages that need the shared vocabulary (store, table, assembler,
// cursor, query, wire, and the root package, which re-exports these types for
// callers implementing their own producer ring).
package recio

// Tag discriminates record kinds. Begin/Link/End/Batch are meaningful to
// the assembler; any other value is an opaque data tag the core passes
// through untouched to the callback.
type Tag uint16

const (
	TagBegin Tag = iota + 1
	TagLink
	TagEnd
	TagBatch
	// TagData is the first value available to callers for their own
	// payload tags (ReqURL, RespStatus, ...). Values below it are
	// reserved for the dispatch core's own control tags.
	TagData
)

// Record is the accessor contract for a single word-sequence record
// pulled from the producer ring. Implementations are provided by the
// caller (or by internal/wire's reference codec); the core never
// constructs one directly.
type Record interface {
	// Tag returns the record's tag.
	Tag() Tag
	// Vxid returns the transaction id this record is filed under. For a
	// Batch record this is the carrier vxid, not any inner record's.
	Vxid() uint64
	// LenWords returns the number of words this record occupies,
	// including its own header. For a Batch record this is the batch
	// header alone, so a record-by-record walk steps onto the first
	// inner record; BatchLenWords gives the full span.
	LenWords() int
	// Payload returns the record's payload bytes (Begin/Link encode
	// "<type> [<vxid>]" here; data tags carry caller-defined bytes).
	Payload() []byte
	// BatchVxid returns the carrier vxid for a Batch record. Undefined
	// (implementations may return 0) when Tag() != TagBatch.
	BatchVxid() uint64
	// BatchLenWords returns the full span of a Batch record in words,
	// header plus every inner record it carries. Undefined (may return
	// the same value as LenWords) when Tag() != TagBatch.
	BatchLenWords() int
}

// RingRef is a handle a Cursor hands back alongside a Record, identifying
// the ring-backed words a Record view directly. The core never
// interprets its identity; it only threads it back into Cursor.Check,
// and reads through Words when it needs to copy or decode the span
// (e.g. promoting a chunk, or decoding the inner records of a Batch).
type RingRef interface {
	// Words returns a zero-copy view of the words starting at this
	// reference. It is valid to call only while Cursor.Check(ref)
	// reports CheckValid or CheckOverwriteImminent; once CheckLost is
	// reported the backing memory may no longer be safe to read.
	Words() []uint32
}

// Decode parses one record starting at words[0]. It must not read past
// the record's own header-declared length. Implementations are supplied
// by the record-encoding collaborator (spec §1); internal/wire provides
// a concrete reference codec.
type Decode func(words []uint32) Record

// CheckResult is the outcome of probing whether a previously-issued
// RingRef is still safe to read directly from the ring.
type CheckResult int

const (
	// CheckValid means the reference is safe; no action needed.
	CheckValid CheckResult = iota
	// CheckOverwriteImminent means the producer is about to recycle
	// this region; the holder must copy the data out now.
	CheckOverwriteImminent
	// CheckLost means the region has already been overwritten; any data
	// referenced through it is gone.
	CheckLost
)

// Cursor is the external producer-ring collaborator (spec §1's "Record
// Cursor"). The dispatch core uses it through exactly these three
// operations.
type Cursor interface {
	// Next yields the next record. status mirrors the original VSL_Next
	// convention: 1 means rec/ref are valid, 0 means no data is
	// currently available, -1 means end of log, -2 means a cursor
	// error occurred (permanent).
	Next() (rec Record, ref RingRef, status int)
	// Check reports whether ref is still safely readable from the ring.
	Check(ref RingRef) CheckResult
	// Skip advances the cursor past the given number of words without
	// yielding them through Next (used to step over a Batch's inner
	// records once they've been bulk-appended).
	Skip(words int) error
}

// TreeCursor is the per-node cursor the callback receives (spec §4.4):
// a restartable walk over one transaction's records in insertion order,
// tagged with its depth in the dispatched tree.
type TreeCursor interface {
	// Next advances to the next record, returning false when exhausted.
	Next() bool
	// Record returns the record at the current position. Valid only
	// after a Next call returned true.
	Record() Record
	// Reset rewinds to the start of the sequence.
	Reset()
	// Vxid is this node's transaction id (the raw-grouping tree cursor,
	// cursor.NewRawTreeCursor, uses the sentinel -1 per spec §4.5).
	Vxid() int64
	// Level is this node's depth in the dispatched tree (root = 0).
	Level() int
}
