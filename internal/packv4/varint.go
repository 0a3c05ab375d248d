package packv4

// decodeVarint reads the pack-v4 "offset varint" from cur: a base-128
// encoding, most significant 7-bit group first, where every continuation
// byte (all but the last) also
// adds 1 to the accumulator before the next shift, producing a prefix-free
// code with no redundant encodings of the same value. This is distinct
// from the classic Git pack varint used by internal/packidx, which applies
// no such offset — the two must not be confused or shared.
//
// Returns the decoded value and the number of bytes consumed. A zero-byte
// advance never happens here: ensure's own error surfaces first on a
// truncated stream. Callers that need to detect "no progress" corruption
// do so by comparing cursor offsets before and after, per §4.1.
func decodeVarint(cur *cursor) (uint64, int, error) {
	var value uint64
	var n int
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
