package packmgr

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/vcslab/packv4/internal/packv4"
)

func writeManifestFile(t *testing.T, offsets []int64) string {
	t.Helper()
	buf := make([]byte, len(offsets)*8)
	for i, off := range offsets {
		binary.BigEndian.PutUint64(buf[i*8:i*8+8], uint64(off))
	}
	path := filepath.Join(t.TempDir(), "x.pack.offsets")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadManifestRoundTrip(t *testing.T) {
	path := writeManifestFile(t, []int64{12, 200, 4096})

	m, err := loadManifest(path, 3)
	if err != nil {
		t.Fatalf("loadManifest: %v", err)
	}
	for i, want := range []int64{12, 200, 4096} {
		got, err := m.NthOffset(i)
		if err != nil {
			t.Fatalf("NthOffset(%d): %v", i, err)
		}
		if got != want {
			t.Errorf("NthOffset(%d) = %d, want %d", i, got, want)
		}
	}
}

func TestLoadManifestSizeMismatch(t *testing.T) {
	path := writeManifestFile(t, []int64{1, 2})

	if _, err := loadManifest(path, 3); err == nil {
		t.Fatal("expected error for mismatched manifest size")
	}
}

func TestManifestNthOffsetBounds(t *testing.T) {
	path := writeManifestFile(t, []int64{1})
	m, err := loadManifest(path, 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.NthOffset(-1); err == nil {
		t.Error("expected error for negative index")
	}
	if _, err := m.NthOffset(1); err == nil {
		t.Error("expected error for out-of-range index")
	}
}

func TestManifestFindOffset(t *testing.T) {
	h1 := packv4.Hash{1}
	h2 := packv4.Hash{2}
	h3 := packv4.Hash{3}

	header := [12]byte{'P', 'A', 'C', 'K', 0, 0, 0, 1, 0, 0, 0, 3}
	table := append(append([]byte{}, h1[:]...), append(h2[:], h3[:]...)...)
	packPath := filepath.Join(t.TempDir(), "x.pack")
	if err := os.WriteFile(packPath, append(header[:], table...), 0o644); err != nil {
		t.Fatal(err)
	}
	pack, err := packv4.OpenFile(packPath, 3)
	if err != nil {
		t.Fatal(err)
	}
	defer pack.Close()

	path := writeManifestFile(t, []int64{100, 200, 300})
	m, err := loadManifest(path, 3)
	if err != nil {
		t.Fatal(err)
	}

	off, err := m.FindOffset(pack, h2)
	if err != nil {
		t.Fatalf("FindOffset: %v", err)
	}
	if off != 200 {
		t.Errorf("FindOffset(h2) = %d, want 200", off)
	}

	if _, err := m.FindOffset(pack, packv4.Hash{9}); err == nil {
		t.Error("expected error for unknown hash")
	}
}
