package cursor

import (
	"testing"

	"github.com/vslqcore/vslq/internal/recio"
	"github.com/vslqcore/vslq/internal/wire"
)

func TestSimRing_AppendAndNext(t *testing.T) {
	r, err := NewSimRing(4096, wire.Decode)
	if err != nil {
		t.Fatalf("NewSimRing: %v", err)
	}
	defer r.Close()

	c := r.NewCursor()
	r.Append(wire.Encode(recio.TagBegin, 1, []byte("req 0 rxreq")))
	r.Append(wire.Encode(recio.TagEnd, 1, nil))

	rec, ref, status := c.Next()
	if status != 1 {
		t.Fatalf("status = %d, want 1", status)
	}
	if rec.Tag() != recio.TagBegin || rec.Vxid() != 1 {
		t.Errorf("rec = %+v, want Begin/vxid1", rec)
	}
	if c.Check(ref) != recio.CheckValid {
		t.Errorf("Check() = %v, want CheckValid", c.Check(ref))
	}

	rec, _, status = c.Next()
	if status != 1 || rec.Tag() != recio.TagEnd {
		t.Fatalf("second Next() = %+v status %d, want End/1", rec, status)
	}

	_, _, status = c.Next()
	if status != 0 {
		t.Fatalf("Next() past end = status %d, want 0 (no data yet)", status)
	}
}

func TestSimRing_CursorTailsFromCreation(t *testing.T) {
	r, err := NewSimRing(4096, wire.Decode)
	if err != nil {
		t.Fatalf("NewSimRing: %v", err)
	}
	defer r.Close()

	r.Append(wire.Encode(recio.TagData, 1, []byte("before")))
	c := r.NewCursor()
	r.Append(wire.Encode(recio.TagData, 1, []byte("after")))

	rec, _, status := c.Next()
	if status != 1 || string(rec.Payload()) != "after" {
		t.Fatalf("rec = %+v, want payload 'after' (cursor should not replay history)", rec)
	}
}

func TestSimRing_CheckDetectsOverwriteAndLoss(t *testing.T) {
	// A tiny ring forces wraparound quickly.
	r, err := NewSimRing(headerWords+guardWords+8, wire.Decode)
	if err != nil {
		t.Fatalf("NewSimRing: %v", err)
	}
	defer r.Close()

	c := r.NewCursor()
	r.Append(wire.Encode(recio.TagData, 1, nil))
	_, ref, _ := c.Next()

	if got := c.Check(ref); got != recio.CheckValid {
		t.Fatalf("Check() immediately after read = %v, want CheckValid", got)
	}

	// Fill the ring with enough additional words to push this
	// reference into, then past, the guard zone.
	for i := 0; i < 4; i++ {
		r.Append(wire.Encode(recio.TagData, 1, nil))
	}
	if got := c.Check(ref); got != recio.CheckOverwriteImminent {
		t.Fatalf("Check() after partial wrap = %v, want CheckOverwriteImminent", got)
	}

	for i := 0; i < 20; i++ {
		r.Append(wire.Encode(recio.TagData, 1, nil))
	}
	if got := c.Check(ref); got != recio.CheckLost {
		t.Fatalf("Check() after full wrap = %v, want CheckLost", got)
	}
}

func TestSimRing_Skip(t *testing.T) {
	r, err := NewSimRing(4096, wire.Decode)
	if err != nil {
		t.Fatalf("NewSimRing: %v", err)
	}
	defer r.Close()

	inner := wire.Encode(recio.TagData, 5, []byte("x"))
	batch := wire.EncodeBatch(5, inner)
	r.Append(batch)
	r.Append(wire.Encode(recio.TagEnd, 5, nil))

	c := r.NewCursor()
	rec, _, status := c.Next()
	if status != 1 || rec.Tag() != recio.TagBatch {
		t.Fatalf("first record = %+v status %d, want Batch/1", rec, status)
	}
	if err := c.Skip(rec.BatchLenWords() - rec.LenWords()); err != nil {
		t.Fatalf("Skip: %v", err)
	}

	rec, _, status = c.Next()
	if status != 1 || rec.Tag() != recio.TagEnd {
		t.Fatalf("record after skip = %+v status %d, want End/1", rec, status)
	}
}
