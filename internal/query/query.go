// Package query implements the small compiled-predicate language used
// to filter which records a dispatched tree must contain before its
// callback runs (spec §4.6): tag equality, vxid equality, and payload
// substring matching, composed with and/or/not.
package query

import (
	"strings"

	"github.com/vslqcore/vslq/internal/recio"
)

// Predicate reports whether rec matches.
type Predicate func(rec recio.Record) bool

// Tag matches records carrying exactly tag.
func Tag(tag recio.Tag) Predicate {
	return func(rec recio.Record) bool { return rec.Tag() == tag }
}

// Vxid matches records carrying exactly vxid.
func Vxid(vxid uint64) Predicate {
	return func(rec recio.Record) bool { return rec.Vxid() == vxid }
}

// PayloadContains matches records whose payload contains substr.
func PayloadContains(substr string) Predicate {
	b := []byte(substr)
	return func(rec recio.Record) bool {
		return strings.Contains(string(rec.Payload()), string(b))
	}
}

// And matches when every one of preds matches. And() with no
// predicates always matches.
func And(preds ...Predicate) Predicate {
	return func(rec recio.Record) bool {
		for _, p := range preds {
			if !p(rec) {
				return false
			}
		}
		return true
	}
}

// Or matches when any one of preds matches. Or() with no predicates
// never matches.
func Or(preds ...Predicate) Predicate {
	return func(rec recio.Record) bool {
		for _, p := range preds {
			if p(rec) {
				return true
			}
		}
		return false
	}
}

// Not inverts p.
func Not(p Predicate) Predicate {
	return func(rec recio.Record) bool { return !p(rec) }
}

// MatchAny reports whether any record yielded by walking cur (via
// Next/Record, from its current position) matches p. cur is left just
// past the first matching record, or exhausted if none matched;
// callers that still need to iterate the tree afterward should Reset
// it first.
func MatchAny(cur recio.TreeCursor, p Predicate) bool {
	for cur.Next() {
		if p(cur.Record()) {
			return true
		}
	}
	return false
}
