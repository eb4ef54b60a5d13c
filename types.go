// Package vslq is a transaction dispatch core for a shared-memory log
// query engine: it assembles individually-logged records into the
// parent/child transaction trees they describe, waits for each tree
// to become ready, and hands the whole tree to a caller-supplied
// callback in one call, as a deepest-first ordered slice of per-node
// cursors.
package vslq

import "github.com/vslqcore/vslq/internal/recio"

// Record, Cursor, RingRef, TreeCursor, CheckResult, Decode, Tag, and
// TxType are the caller-facing vocabulary, aliased from internal/recio
// so both this package and the producer a caller writes can refer to
// the same types without importing an internal package.
type (
	Record     = recio.Record
	Cursor     = recio.Cursor
	RingRef    = recio.RingRef
	TreeCursor = recio.TreeCursor
	CheckResult = recio.CheckResult
	Decode     = recio.Decode
	Tag        = recio.Tag
	TxType     = recio.TxType
	Grouping   = recio.Grouping
)

const (
	TagBegin = recio.TagBegin
	TagLink  = recio.TagLink
	TagEnd   = recio.TagEnd
	TagBatch = recio.TagBatch
	TagData  = recio.TagData
)

const (
	CheckValid              = recio.CheckValid
	CheckOverwriteImminent  = recio.CheckOverwriteImminent
	CheckLost               = recio.CheckLost
)

const (
	TxUnknown        = recio.TxUnknown
	TxSession        = recio.TxSession
	TxRequest        = recio.TxRequest
	TxEsiRequest     = recio.TxEsiRequest
	TxBackendRequest = recio.TxBackendRequest
)

const (
	GroupingRaw     = recio.GroupingRaw
	GroupingVxid    = recio.GroupingVxid
	GroupingRequest = recio.GroupingRequest
	GroupingSession = recio.GroupingSession
)
