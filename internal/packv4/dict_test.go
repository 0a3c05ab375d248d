package packv4

import (
	"bytes"
	"testing"
)

// buildDictBytes lays out a dictionary the way the on-disk format expects:
// a varint uncompressed size followed by the DEFLATE-compressed records.
// Each record is prefix[2] + str + NUL.
func buildDictBytes(records [][3]interface{}) []byte {
	var raw bytes.Buffer
	for _, r := range records {
		prefix := r[0].([2]byte)
		str := r[1].(string)
		raw.Write(prefix[:])
		raw.WriteString(str)
		raw.WriteByte(0)
	}
	compressed := deflate(raw.Bytes())
	var out bytes.Buffer
	out.Write(encodeVarintBytes(uint64(raw.Len())))
	out.Write(compressed)
	return out.Bytes()
}

func TestLoadDictionary(t *testing.T) {
	records := [][3]interface{}{
		{[2]byte{0x00, 0x00}, "", nil},
		{[2]byte{0x12, 0x34}, "hello", nil},
		{[2]byte{0xff, 0xff}, "world", nil},
	}
	data := buildDictBytes(records)
	win := &memWindow{data: data}
	pack := newTestPack(nil, 0, win)

	dict, end, err := loadDictionary(pack, 0)
	if err != nil {
		t.Fatalf("loadDictionary: %v", err)
	}
	if dict.NumEntries() != 3 {
		t.Fatalf("NumEntries: got %d, want 3", dict.NumEntries())
	}
	if end != int64(len(data)) {
		t.Errorf("end offset: got %d, want %d", end, len(data))
	}

	prefix, str, err := dict.Record(1)
	if err != nil {
		t.Fatalf("Record(1): %v", err)
	}
	if prefix != ([2]byte{0x12, 0x34}) || string(str) != "hello" {
		t.Errorf("Record(1): got prefix=%v str=%q", prefix, str)
	}

	// lookup idempotence: repeated calls return byte-identical views
	prefix2, str2, _ := dict.Record(1)
	if prefix2 != prefix || string(str2) != string(str) {
		t.Errorf("Record(1) not idempotent")
	}
}

func TestLoadDictionaryIndexBoundary(t *testing.T) {
	records := [][3]interface{}{
		{[2]byte{0, 0}, "a", nil},
		{[2]byte{0, 0}, "b", nil},
	}
	data := buildDictBytes(records)
	win := &memWindow{data: data}
	pack := newTestPack(nil, 0, win)

	dict, _, err := loadDictionary(pack, 0)
	if err != nil {
		t.Fatalf("loadDictionary: %v", err)
	}

	if _, _, err := dict.Record(dict.NumEntries() - 1); err != nil {
		t.Errorf("last valid index should succeed: %v", err)
	}
	if _, _, err := dict.Record(dict.NumEntries()); err == nil {
		t.Error("index == nb_entries should be invalid")
	}
}

func TestLoadDictionaryRejectsUndersize(t *testing.T) {
	var out bytes.Buffer
	out.Write(encodeVarintBytes(2)) // below minDictSize of 3
	win := &memWindow{data: out.Bytes()}
	pack := newTestPack(nil, 0, win)

	if _, _, err := loadDictionary(pack, 0); err == nil {
		t.Error("expected rejection of undersized dictionary")
	}
}

func TestLoadDictionaryRejectsLengthMismatch(t *testing.T) {
	// Declare more uncompressed bytes than the record walk actually
	// contains once laid out — the first-pass walk must hit the declared
	// size exactly.
	var raw bytes.Buffer
	raw.Write([]byte{0, 0})
	raw.WriteString("x")
	raw.WriteByte(0)
	compressed := deflate(raw.Bytes())

	var out bytes.Buffer
	out.Write(encodeVarintBytes(uint64(raw.Len()) + 5))
	out.Write(compressed)

	win := &memWindow{data: out.Bytes()}
	pack := newTestPack(nil, 0, win)
	if _, _, err := loadDictionary(pack, 0); err == nil {
		t.Error("expected failure on declared/actual size mismatch")
	}
}

func TestDictionaryCacheAtMostOnce(t *testing.T) {
	records := [][3]interface{}{
		{[2]byte{0, 0}, "only", nil},
	}
	identBytes := buildDictBytes(records)
	pathBytes := buildDictBytes(records)

	var full bytes.Buffer
	full.Write(make([]byte, 12)) // opaque pack header
	full.Write(identBytes)
	full.Write(pathBytes)

	win := &memWindow{data: full.Bytes()}
	pack := newTestPack(nil, 0, win)

	d1, err := pack.identDictionary()
	if err != nil {
		t.Fatalf("identDictionary: %v", err)
	}
	d2, err := pack.identDictionary()
	if err != nil {
		t.Fatalf("identDictionary (second): %v", err)
	}
	if d1 != d2 {
		t.Error("identDictionary should memoize the same *Dictionary")
	}

	pd, err := pack.pathDictionary()
	if err != nil {
		t.Fatalf("pathDictionary: %v", err)
	}
	if pd.NumEntries() != 1 {
		t.Errorf("path dictionary entries: got %d, want 1", pd.NumEntries())
	}
}
