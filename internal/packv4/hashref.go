package packv4

import "fmt"

// readHashRef decodes a hash reference at cur: either the inline form (a
// zero tag byte followed by 20 literal hash bytes) or an indexed form (a
// nonzero varint 1-based index into pack.hashTable). See §4.2.
//
// The returned Hash is always an owned copy — readFull already copies out
// of the window's view — so it safely outlives the cursor's current
// window acquisition, unlike the raw pointer semantics §4.2 describes for
// a C-style implementation.
func readHashRef(cur *cursor, pack *PackHandle) (Hash, error) {
	tag, err := cur.readByte()
	if err != nil {
		return Hash{}, err
	}
	if tag == 0 {
		b, err := cur.readFull(HashSize)
		if err != nil {
			return Hash{}, err
		}
		var h Hash
		copy(h[:], b)
		return h, nil
	}

	// The tag byte itself is the varint's first byte; rewind by treating
	// it as already consumed and continuing the varint decode from here.
	value, _, err := decodeVarintFrom(cur, tag)
	if err != nil {
		return Hash{}, err
	}
	if value < 1 || value > uint64(pack.numObjects) {
		return Hash{}, fmt.Errorf("packv4: hashref index %d out of range [1,%d]", value, pack.numObjects)
	}
	return pack.HashAt(int(value - 1))
}

// decodeVarintFrom continues an offset-varint decode given its first byte
// already read as first. Used by readHashRef, which must branch on that
// first byte (zero vs. nonzero tag) before knowing whether a varint
// follows at all.
func decodeVarintFrom(cur *cursor, first byte) (uint64, int, error) {
	value := uint64(first & 0x7f)
	n := 1
	if first&0x80 == 0 {
		return value, n, nil
	}
	value++
	for {
		b, err := cur.readByte()
		if err != nil {
			return 0, n, err
		}
		n++
		value = (value << 7) | uint64(b&0x7f)
		if b&0x80 == 0 {
			return value, n, nil
		}
		value++
	}
}
