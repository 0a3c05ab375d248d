package packmgr

import (
	"bytes"
	"compress/zlib"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vcslab/packv4/internal/packv4"
)

func deflateBytes(b []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	w.Write(b)
	w.Close()
	return buf.Bytes()
}

// encodeVarint mirrors packv4's offset-varint rule: see varint.go's
// decodeVarint for the decode side this must invert.
func encodeVarint(v uint64) []byte {
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

func buildDict(records [][2]string) []byte {
	var raw bytes.Buffer
	for _, r := range records {
		raw.WriteString(r[0])
		raw.WriteString(r[1])
		raw.WriteByte(0)
	}
	compressed := deflateBytes(raw.Bytes())
	var out bytes.Buffer
	out.Write(encodeVarint(uint64(raw.Len())))
	out.Write(compressed)
	return out.Bytes()
}

// writePackFixture builds a minimal one-commit, zero-hash-table pack-v4
// file plus its sidecar manifest, grounded on internal/packv4/commit_test.go's
// fixture layout: 12-byte header, identity dictionary, path dictionary,
// then the commit payload.
func writePackFixture(t *testing.T, dir, name string) (path string, commitOffset int64, commitSize int64) {
	t.Helper()

	treeHash := packv4.Hash{0xaa}

	identDict := buildDict([][2]string{{"\x00\x00", "Alice <a@x> "}})
	pathDict := buildDict([][2]string{{"\x00\x00", ""}})

	var payload bytes.Buffer
	payload.WriteByte(0x00) // inline tree hashref tag
	payload.Write(treeHash[:])
	payload.Write(encodeVarint(0)) // zero parents
	payload.Write(encodeVarint(1700000000))
	payload.Write(encodeVarint(0)) // committer index
	payload.Write(encodeVarint(0)) // author time delta
	payload.Write(encodeVarint(0)) // author index
	payload.Write(deflateBytes([]byte("hello\n")))

	var full bytes.Buffer
	header := [12]byte{'P', 'A', 'C', 'K', 0, 0, 0, 1, 0, 0, 0, 0}
	full.Write(header[:])
	full.Write(identDict)
	full.Write(pathDict)
	commitOffset = int64(full.Len())
	full.Write(payload.Bytes())

	path = filepath.Join(dir, name)
	if err := os.WriteFile(path, full.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	manifestPath := path + ".offsets"
	if err := os.WriteFile(manifestPath, make([]byte, 0), 0o644); err != nil {
		t.Fatal(err)
	}

	expected := "tree " + treeHash.String() + "\n" +
		"author Alice <a@x>  1700000000 +0000\n" +
		"committer Alice <a@x>  1700000000 +0000\n" +
		"hello\n"
	return path, commitOffset, int64(len(expected))
}

func testManagerConfig(t *testing.T, dir string) Config {
	t.Helper()
	return Config{
		Dir:                dir,
		MaxConcurrentOpens: 2,
		InactivityTTL:      time.Hour,
		DecodeCacheSize:    10,
	}
}

func TestManagerScanAndDecode(t *testing.T) {
	dir := t.TempDir()
	_, commitOffset, commitSize := writePackFixture(t, dir, "a.pack")

	mgr, err := New(context.Background(), testManagerConfig(t, dir))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer mgr.Close()

	packs := mgr.List()
	if len(packs) != 1 {
		t.Fatalf("List() returned %d packs, want 1", len(packs))
	}
	if packs[0].State != StateReady {
		t.Fatalf("pack state = %v, want ready (err=%s)", packs[0].State, packs[0].Error)
	}

	out, err := mgr.Decode("a.pack", commitOffset, commitSize, packv4.KindCommit)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := "tree " + (packv4.Hash{0xaa}).String() + "\n" +
		"author Alice <a@x>  1700000000 +0000\n" +
		"committer Alice <a@x>  1700000000 +0000\n" +
		"hello\n"
	if string(out) != want {
		t.Errorf("Decode() = %q, want %q", out, want)
	}

	// Second call should be served from cache; just verify it matches.
	out2, err := mgr.Decode("a.pack", commitOffset, commitSize, packv4.KindCommit)
	if err != nil {
		t.Fatalf("Decode (cached): %v", err)
	}
	if string(out2) != want {
		t.Errorf("cached Decode() = %q, want %q", out2, want)
	}
}

func TestManagerOpenUnknownPack(t *testing.T) {
	dir := t.TempDir()
	mgr, err := New(context.Background(), testManagerConfig(t, dir))
	if err != nil {
		t.Fatal(err)
	}
	defer mgr.Close()

	if _, _, err := mgr.Open("missing.pack"); err == nil {
		t.Fatal("expected error opening unknown pack")
	}
}

func TestManagerWarmFailureIsIsolated(t *testing.T) {
	dir := t.TempDir()
	_, _, _ = writePackFixture(t, dir, "good.pack")

	badPath := filepath.Join(dir, "bad.pack")
	if err := os.WriteFile(badPath, []byte("not a pack file"), 0o644); err != nil {
		t.Fatal(err)
	}

	mgr, err := New(context.Background(), testManagerConfig(t, dir))
	if err != nil {
		t.Fatalf("New should not fail outright on one bad pack: %v", err)
	}
	defer mgr.Close()

	var goodReady, badErrored bool
	for _, p := range mgr.List() {
		switch p.ID {
		case "good.pack":
			goodReady = p.State == StateReady
		case "bad.pack":
			badErrored = p.State == StateError
		}
	}
	if !goodReady {
		t.Error("good.pack should have warmed successfully")
	}
	if !badErrored {
		t.Error("bad.pack should be in error state")
	}
}

