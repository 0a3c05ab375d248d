package packv4

import "testing"

func hashFromByte(b byte) Hash {
	var h Hash
	for i := range h {
		h[i] = b
	}
	return h
}

func TestReadHashRefInline(t *testing.T) {
	h := hashFromByte(0xab)
	data := append([]byte{0x00}, h[:]...)
	win := &memWindow{data: data}
	cur := newCursor(win, 0)
	defer cur.close()

	pack := newTestPack(nil, 0, win)
	got, err := readHashRef(cur, pack)
	if err != nil {
		t.Fatalf("readHashRef: %v", err)
	}
	if got != h {
		t.Errorf("got %x, want %x", got, h)
	}
	if cur.offset() != 21 {
		t.Errorf("cursor advanced %d, want 21", cur.offset())
	}
}

func TestReadHashRefIndexed(t *testing.T) {
	h0, h1, h2 := hashFromByte(0x00), hashFromByte(0x11), hashFromByte(0x22)
	table := append(append(append([]byte{}, h0[:]...), h1[:]...), h2[:]...)

	data := []byte{0x02} // index 2 -> H1
	win := &memWindow{data: data}
	cur := newCursor(win, 0)
	defer cur.close()

	pack := newTestPack(table, 3, win)
	got, err := readHashRef(cur, pack)
	if err != nil {
		t.Fatalf("readHashRef: %v", err)
	}
	if got != h1 {
		t.Errorf("got %x, want %x", got, h1)
	}
	if cur.offset() != 1 {
		t.Errorf("cursor advanced %d, want 1", cur.offset())
	}
}

func TestReadHashRefIndexBoundaries(t *testing.T) {
	h0 := hashFromByte(0x00)
	table := append([]byte{}, h0[:]...)
	pack := newTestPack(table, 1, &memWindow{})

	// index 1 (valid, the only object)
	win := &memWindow{data: []byte{0x01}}
	cur := newCursor(win, 0)
	if _, err := readHashRef(cur, pack); err != nil {
		t.Errorf("index 1 should be valid: %v", err)
	}
	cur.close()

	// index 0 (invalid — tag byte 0 means inline form, so encode index 0
	// as a nonzero varint that decodes to 0 is impossible; this package's
	// decode never produces a literal zero-valued indexed form, so the
	// invalid case to test is index num_objects+1)
	win2 := &memWindow{data: []byte{0x02}} // index 2, num_objects=1
	cur2 := newCursor(win2, 0)
	if _, err := readHashRef(cur2, pack); err == nil {
		t.Error("index num_objects+1 should be invalid")
	}
	cur2.close()
}

func TestReadHashRefEmptyStreamError(t *testing.T) {
	win := &memWindow{data: nil}
	cur := newCursor(win, 0)
	defer cur.close()
	pack := newTestPack(nil, 0, win)
	if _, err := readHashRef(cur, pack); err == nil {
		t.Error("expected error reading from empty stream")
	}
}
