package packv4

import (
	"bytes"
	"compress/zlib"
)

// memWindow is an in-memory Window over a fixed byte buffer, used
// throughout the test suite in place of a real file-backed pack. Acquire
// returns fresh copies, matching fileWindow's own no-aliasing discipline.
type memWindow struct {
	data []byte
}

func (w *memWindow) Acquire(offset int64, want int) (View, error) {
	if offset < 0 || offset > int64(len(w.data)) {
		return &sliceView{}, nil
	}
	end := offset + int64(want)
	if end > int64(len(w.data)) {
		end = int64(len(w.data))
	}
	buf := make([]byte, end-offset)
	copy(buf, w.data[offset:end])
	return &sliceView{data: buf}, nil
}

func deflate(b []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	w.Write(b)
	w.Close()
	return buf.Bytes()
}

func encodeVarintBytes(v uint64) []byte {
	// Inverse of decodeVarint's offset-varint rule: produce the byte
	// sequence decodeVarint reads back to v, last byte (no high bit)
	// first, then reversed into stream order.
	digits := []byte{byte(v & 0x7f)}
	v >>= 7
	for v != 0 {
		v--
		digits = append(digits, 0x80|byte(v&0x7f))
		v >>= 7
	}
	out := make([]byte, len(digits))
	for i, d := range digits {
		out[len(digits)-1-i] = d
	}
	return out
}

func newTestPack(hashTable []byte, numObjects int, win *memWindow) *PackHandle {
	return &PackHandle{win: win, numObjects: numObjects, hashTable: hashTable}
}
