// Package wire is a reference record codec: a small, self-contained
// word encoding for recio.Record, used by the bundled simulated ring
// (internal/cursor) and by tests. It is not the only legal encoding —
// any caller may hand the dispatch core its own recio.Decode — but it
// gives the rest of this module something concrete to dispatch against.
//
// Layout, four header words followed by the payload packed 4 bytes to
// a word (little-endian, zero-padded):
//
//	word0  tag
//	word1  vxid (carrier vxid, for a Batch record)
//	word2  payload length in bytes
//	word3  batch total length in words (header + body); 0 for non-Batch
package wire

import (
	"encoding/binary"

	"github.com/vslqcore/vslq/internal/recio"
)

const headerWords = 4

type record struct {
	tag        recio.Tag
	vxid       uint64
	payload    []byte
	batchWords int
}

func (r *record) Tag() recio.Tag        { return r.tag }
func (r *record) Vxid() uint64          { return r.vxid }
func (r *record) Payload() []byte       { return r.payload }
func (r *record) BatchVxid() uint64     { return r.vxid }
func (r *record) BatchLenWords() int    { return r.batchWords }
func (r *record) LenWords() int {
	return headerWords + payloadWords(len(r.payload))
}

func payloadWords(byteLen int) int {
	return (byteLen + 3) / 4
}

// Encode packs a single record (tag, vxid, payload) into words, with
// the batch-total header word left 0; use EncodeBatch to build a Batch
// header.
func Encode(tag recio.Tag, vxid uint64, payload []byte) []uint32 {
	return encode(tag, vxid, payload, 0)
}

// EncodeBatch wraps an already-encoded run of inner records (body,
// produced by concatenating the output of Encode/EncodeBatch calls)
// behind a single Batch header carrying vxid. The returned slice is
// the full span the dispatcher should append as one chunk.
func EncodeBatch(vxid uint64, body []uint32) []uint32 {
	head := encode(recio.TagBatch, vxid, nil, 0)
	total := len(head) + len(body)
	// the header's own batch-total-words field is written after we
	// know the full length, so re-encode with it set.
	out := encode(recio.TagBatch, vxid, nil, total)
	out = append(out, body...)
	return out
}

func encode(tag recio.Tag, vxid uint64, payload []byte, batchWords int) []uint32 {
	pw := payloadWords(len(payload))
	words := make([]uint32, headerWords+pw)
	words[0] = uint32(tag)
	words[1] = uint32(vxid)
	words[2] = uint32(len(payload))
	words[3] = uint32(batchWords)
	for i := 0; i < len(payload); i += 4 {
		var buf [4]byte
		n := copy(buf[:], payload[i:])
		_ = n
		words[headerWords+i/4] = binary.LittleEndian.Uint32(buf[:])
	}
	return words
}

// Decode parses the record starting at words[0]. It panics if words is
// shorter than the declared header-plus-payload span, which indicates
// a corrupt or truncated ring — callers should never pass a slice
// shorter than what Cursor.Check already validated.
func Decode(words []uint32) recio.Record {
	tag := recio.Tag(words[0])
	vxid := uint64(words[1])
	byteLen := int(words[2])
	batchWords := int(words[3])
	pw := payloadWords(byteLen)
	payload := make([]byte, byteLen)
	for i := 0; i < byteLen; i += 4 {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], words[headerWords+i/4])
		n := copy(payload[i:], buf[:])
		_ = n
	}
	_ = pw
	return &record{tag: tag, vxid: vxid, payload: payload, batchWords: batchWords}
}
